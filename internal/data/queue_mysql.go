package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"RelayLane/internal/model"
	"RelayLane/pkg/crypto"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// QueueEntry is the GORM model for the queue_entries table. FIFO order is
// the ascending auto-increment seq; a rotated entry is reinserted and gets
// a fresh seq at the tail.
type QueueEntry struct {
	Seq         int64     `gorm:"primaryKey;autoIncrement;column:seq"`
	OperationID string    `gorm:"column:operation_id;type:varchar(64);not null;uniqueIndex"`
	Payload     string    `gorm:"column:payload;type:mediumtext"`
	Encrypted   bool      `gorm:"column:encrypted;not null;default:false"`
	QueuedAt    time.Time `gorm:"column:queued_at;not null"`
	Attempts    int32     `gorm:"column:attempts;not null;default:0"`
	Status      string    `gorm:"column:status;type:varchar(20);not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM
func (QueueEntry) TableName() string {
	return "queue_entries"
}

// MySQLQueueStore keeps the offline queue in MySQL for deployments that
// already run a database and do not want Redis on the critical path.
type MySQLQueueStore struct {
	db     *gorm.DB
	aes    *crypto.AESCrypto
	logger *log.Helper
}

// NewMySQLQueueStore creates a MySQL-backed queue store. aes may be nil, in
// which case payloads are stored in the clear.
func NewMySQLQueueStore(db *gorm.DB, aes *crypto.AESCrypto, logger log.Logger) *MySQLQueueStore {
	return &MySQLQueueStore{
		db:     db,
		aes:    aes,
		logger: log.NewHelper(logger),
	}
}

// Append adds an operation at the tail.
func (s *MySQLQueueStore) Append(ctx context.Context, op *model.QueuedOperation) error {
	entry, err := s.toEntry(op)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("append queued operation: %w", err)
	}
	return nil
}

// Peek returns the head without removing it.
func (s *MySQLQueueStore) Peek(ctx context.Context) (*model.QueuedOperation, error) {
	entry, err := s.head(ctx, s.db)
	if err != nil {
		return nil, err
	}
	return s.toOperation(entry)
}

// PopHead removes and returns the head.
func (s *MySQLQueueStore) PopHead(ctx context.Context) (*model.QueuedOperation, error) {
	var popped *QueueEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err := s.head(ctx, tx)
		if err != nil {
			return err
		}
		if err := tx.Delete(&QueueEntry{}, "seq = ?", entry.Seq).Error; err != nil {
			return fmt.Errorf("pop queue head: %w", err)
		}
		popped = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.toOperation(popped)
}

// RemoveHead removes the head if it still carries the given operation id.
func (s *MySQLQueueStore) RemoveHead(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err := s.head(ctx, tx)
		if err != nil {
			return err
		}
		if entry.OperationID != id {
			return ErrHeadMismatch
		}
		if err := tx.Delete(&QueueEntry{}, "seq = ?", entry.Seq).Error; err != nil {
			return fmt.Errorf("remove queue head: %w", err)
		}
		return nil
	})
}

// RotateHead persists the updated operation and moves it to the tail by
// reinserting it with a fresh seq, all in one transaction.
func (s *MySQLQueueStore) RotateHead(ctx context.Context, op *model.QueuedOperation) error {
	updated, err := s.toEntry(op)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err := s.head(ctx, tx)
		if err != nil {
			return err
		}
		if entry.OperationID != op.ID {
			return ErrHeadMismatch
		}
		if err := tx.Delete(&QueueEntry{}, "seq = ?", entry.Seq).Error; err != nil {
			return fmt.Errorf("rotate queue head: %w", err)
		}
		if err := tx.Create(updated).Error; err != nil {
			return fmt.Errorf("requeue rotated operation: %w", err)
		}
		return nil
	})
}

// Len returns the number of queued operations.
func (s *MySQLQueueStore) Len(ctx context.Context) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&QueueEntry{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}
	return int(count), nil
}

// List returns up to limit operations in FIFO order. Entries that fail to
// decode are skipped with a warning.
func (s *MySQLQueueStore) List(ctx context.Context, limit int) ([]*model.QueuedOperation, error) {
	q := s.db.WithContext(ctx).Order("seq asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var entries []QueueEntry
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list queued operations: %w", err)
	}

	ops := make([]*model.QueuedOperation, 0, len(entries))
	for i := range entries {
		op, err := s.toOperation(&entries[i])
		if err != nil {
			s.logger.Warnw("skipping undecodable queue entry", "error", err)
			continue
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// head reads the lowest-seq entry through the given handle, so transactional
// callers observe their own snapshot.
func (s *MySQLQueueStore) head(ctx context.Context, tx *gorm.DB) (*QueueEntry, error) {
	var entry QueueEntry
	err := tx.WithContext(ctx).Order("seq asc").First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrQueueEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("read queue head: %w", err)
	}
	return &entry, nil
}

func (s *MySQLQueueStore) toEntry(op *model.QueuedOperation) (*QueueEntry, error) {
	payload, encrypted, err := encodePayload(s.aes, op.Payload)
	if err != nil {
		return nil, err
	}
	return &QueueEntry{
		OperationID: op.ID,
		Payload:     payload,
		Encrypted:   encrypted,
		QueuedAt:    op.QueuedAt,
		Attempts:    op.Attempts,
		Status:      string(op.Status),
	}, nil
}

// toOperation reports an undecodable payload as *CorruptEntryError. The row
// identity always survives, the payload column is the only part that can rot.
func (s *MySQLQueueStore) toOperation(entry *QueueEntry) (*model.QueuedOperation, error) {
	payload, err := decodePayload(s.aes, entry.Payload, entry.Encrypted)
	if err != nil {
		return nil, &CorruptEntryError{ID: entry.OperationID, Err: err}
	}
	return &model.QueuedOperation{
		ID:       entry.OperationID,
		Payload:  payload,
		QueuedAt: entry.QueuedAt,
		Attempts: entry.Attempts,
		Status:   model.OperationStatus(entry.Status),
	}, nil
}

package data

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"RelayLane/internal/model"
	"RelayLane/pkg/crypto"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// queueRecord is the serialized form of one queued operation in the Redis
// list. Payload holds ciphertext when Encrypted is set.
type queueRecord struct {
	ID        string    `json:"id"`
	Payload   string    `json:"payload"`
	Encrypted bool      `json:"encrypted,omitempty"`
	QueuedAt  time.Time `json:"queued_at"`
	Attempts  int32     `json:"attempts"`
	Status    string    `json:"status"`
}

// RedisQueueStore keeps the offline queue in a single Redis list, head at
// index 0. Every mutation is a Redis write, so the queue state survives a
// bridge restart as long as Redis does.
type RedisQueueStore struct {
	rdb    *redis.Client
	key    string
	aes    *crypto.AESCrypto
	logger *log.Helper
}

// NewRedisQueueStore creates a Redis-backed queue store under the given key
// prefix. aes may be nil, in which case payloads are stored in the clear.
func NewRedisQueueStore(rdb *redis.Client, keyPrefix string, aes *crypto.AESCrypto, logger log.Logger) *RedisQueueStore {
	return &RedisQueueStore{
		rdb:    rdb,
		key:    keyPrefix + ":queue:ops",
		aes:    aes,
		logger: log.NewHelper(logger),
	}
}

// Append adds an operation at the tail of the list.
func (s *RedisQueueStore) Append(ctx context.Context, op *model.QueuedOperation) error {
	raw, err := s.encodeRecord(op)
	if err != nil {
		return err
	}
	if err := s.rdb.RPush(ctx, s.key, raw).Err(); err != nil {
		return fmt.Errorf("append queued operation: %w", err)
	}
	return nil
}

// Peek returns the head of the list without removing it.
func (s *RedisQueueStore) Peek(ctx context.Context) (*model.QueuedOperation, error) {
	raw, err := s.rdb.LIndex(ctx, s.key, 0).Result()
	if err == redis.Nil {
		return nil, ErrQueueEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("peek queue head: %w", err)
	}
	return s.decodeRecord(raw)
}

// PopHead removes and returns the head of the list.
func (s *RedisQueueStore) PopHead(ctx context.Context) (*model.QueuedOperation, error) {
	raw, err := s.rdb.LPop(ctx, s.key).Result()
	if err == redis.Nil {
		return nil, ErrQueueEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("pop queue head: %w", err)
	}
	return s.decodeRecord(raw)
}

// RemoveHead removes the head if it still carries the given operation id.
// The drain loop is the only head remover, so the check-then-pop pair only
// loses a race to capacity eviction, which is reported as ErrHeadMismatch.
func (s *RedisQueueStore) RemoveHead(ctx context.Context, id string) error {
	raw, err := s.rdb.LIndex(ctx, s.key, 0).Result()
	if err == redis.Nil {
		return ErrQueueEmpty
	}
	if err != nil {
		return fmt.Errorf("read queue head: %w", err)
	}

	var rec queueRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return fmt.Errorf("decode queue head: %w", err)
	}
	if rec.ID != id {
		return ErrHeadMismatch
	}

	if err := s.rdb.LPop(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("remove queue head: %w", err)
	}
	return nil
}

// RotateHead persists the updated operation in place, then moves it to the
// tail. LSet before LMove keeps the attempt count durable even if the move
// never happens; the entry then just gets retried from the head next cycle.
func (s *RedisQueueStore) RotateHead(ctx context.Context, op *model.QueuedOperation) error {
	raw, err := s.rdb.LIndex(ctx, s.key, 0).Result()
	if err == redis.Nil {
		return ErrQueueEmpty
	}
	if err != nil {
		return fmt.Errorf("read queue head: %w", err)
	}

	var rec queueRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return fmt.Errorf("decode queue head: %w", err)
	}
	if rec.ID != op.ID {
		return ErrHeadMismatch
	}

	updated, err := s.encodeRecord(op)
	if err != nil {
		return err
	}
	if err := s.rdb.LSet(ctx, s.key, 0, updated).Err(); err != nil {
		return fmt.Errorf("update queue head: %w", err)
	}
	if err := s.rdb.LMove(ctx, s.key, s.key, "LEFT", "RIGHT").Err(); err != nil {
		return fmt.Errorf("rotate queue head: %w", err)
	}
	return nil
}

// Len returns the number of queued operations.
func (s *RedisQueueStore) Len(ctx context.Context) (int, error) {
	n, err := s.rdb.LLen(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}
	return int(n), nil
}

// List returns up to limit operations in FIFO order. Entries that fail to
// decode are skipped with a warning so one bad record cannot hide the rest.
func (s *RedisQueueStore) List(ctx context.Context, limit int) ([]*model.QueuedOperation, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	raws, err := s.rdb.LRange(ctx, s.key, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list queued operations: %w", err)
	}

	ops := make([]*model.QueuedOperation, 0, len(raws))
	for _, raw := range raws {
		op, err := s.decodeRecord(raw)
		if err != nil {
			s.logger.Warnw("skipping undecodable queue entry", "error", err)
			continue
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func (s *RedisQueueStore) encodeRecord(op *model.QueuedOperation) (string, error) {
	payload, encrypted, err := encodePayload(s.aes, op.Payload)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(queueRecord{
		ID:        op.ID,
		Payload:   payload,
		Encrypted: encrypted,
		QueuedAt:  op.QueuedAt,
		Attempts:  op.Attempts,
		Status:    string(op.Status),
	})
	if err != nil {
		return "", fmt.Errorf("encode queued operation: %w", err)
	}
	return string(raw), nil
}

// decodeRecord reports undecodable records as *CorruptEntryError so callers
// can tell a damaged entry apart from a store failure. A record whose JSON
// envelope is intact still yields its operation id even when the payload
// itself cannot be decrypted.
func (s *RedisQueueStore) decodeRecord(raw string) (*model.QueuedOperation, error) {
	var rec queueRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, &CorruptEntryError{Err: fmt.Errorf("decode queued operation: %w", err)}
	}
	payload, err := decodePayload(s.aes, rec.Payload, rec.Encrypted)
	if err != nil {
		return nil, &CorruptEntryError{ID: rec.ID, Err: err}
	}
	return &model.QueuedOperation{
		ID:       rec.ID,
		Payload:  payload,
		QueuedAt: rec.QueuedAt,
		Attempts: rec.Attempts,
		Status:   model.OperationStatus(rec.Status),
	}, nil
}

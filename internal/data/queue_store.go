package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"RelayLane/internal/conf"
	"RelayLane/internal/model"
	"RelayLane/pkg/crypto"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Queue store backend names accepted in configuration.
const (
	queueStoreRedis = "redis"
	queueStoreMySQL = "mysql"
)

// defaultKeyPrefix namespaces the bridge's Redis keys.
const defaultKeyPrefix = "relaylane"

var (
	// ErrQueueEmpty is returned by head operations on an empty queue.
	ErrQueueEmpty = errors.New("queue is empty")

	// ErrHeadMismatch is returned when the queue head is no longer the
	// operation the caller holds (an eviction won the race).
	ErrHeadMismatch = errors.New("queue head does not match expected operation")
)

// CorruptEntryError reports a stored record that can no longer be decoded,
// usually a tampered ciphertext or a payload written under a key this process
// does not hold. ID is empty when the record is too damaged to identify.
// PopHead still removes the raw record when it returns this error, so a
// corrupt entry never blocks the entries queued behind it.
type CorruptEntryError struct {
	ID  string
	Err error
}

func (e *CorruptEntryError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("corrupt queue entry: %v", e.Err)
	}
	return fmt.Sprintf("corrupt queue entry %s: %v", e.ID, e.Err)
}

func (e *CorruptEntryError) Unwrap() error {
	return e.Err
}

// QueueStore persists the offline queue. Implementations keep strict FIFO
// order and make every mutation durable before returning, so the queue
// survives a process restart.
type QueueStore interface {
	// Append adds an operation at the tail.
	Append(ctx context.Context, op *model.QueuedOperation) error

	// Peek returns the head without removing it. ErrQueueEmpty when empty.
	Peek(ctx context.Context) (*model.QueuedOperation, error)

	// PopHead removes and returns the head. ErrQueueEmpty when empty.
	PopHead(ctx context.Context) (*model.QueuedOperation, error)

	// RemoveHead removes the head if it still carries the given operation
	// id, ErrHeadMismatch otherwise.
	RemoveHead(ctx context.Context, id string) error

	// RotateHead persists the updated operation and moves it from the head
	// to the tail.
	RotateHead(ctx context.Context, op *model.QueuedOperation) error

	// Len returns the number of queued operations.
	Len(ctx context.Context) (int, error)

	// List returns up to limit operations in FIFO order. A non-positive
	// limit means no limit.
	List(ctx context.Context, limit int) ([]*model.QueuedOperation, error)
}

// NewQueueStore selects the queue persistence backend from configuration.
// Redis is the default.
func NewQueueStore(c *conf.Bridge, rdb *redis.Client, db *gorm.DB, aes *crypto.AESCrypto, logger log.Logger) (QueueStore, error) {
	helper := log.NewHelper(logger)

	backend := queueStoreRedis
	prefix := defaultKeyPrefix
	if c != nil && c.Queue != nil {
		if c.Queue.Store != "" {
			backend = c.Queue.Store
		}
		if c.Queue.KeyPrefix != "" {
			prefix = c.Queue.KeyPrefix
		}
	}

	switch backend {
	case queueStoreRedis:
		if rdb == nil {
			return nil, fmt.Errorf("queue store %q requires a configured Redis connection", backend)
		}
		helper.Infof("offline queue persisted in Redis under prefix %q", prefix)
		return NewRedisQueueStore(rdb, prefix, aes, logger), nil
	case queueStoreMySQL:
		if db == nil {
			return nil, fmt.Errorf("queue store %q requires a configured database connection", backend)
		}
		helper.Info("offline queue persisted in MySQL")
		return NewMySQLQueueStore(db, aes, logger), nil
	default:
		return nil, fmt.Errorf("unknown queue store backend %q", backend)
	}
}

// encodePayload prepares a payload for storage, encrypting it when an
// at-rest key is configured. It returns the stored text and whether that
// text is ciphertext.
func encodePayload(aes *crypto.AESCrypto, payload json.RawMessage) (string, bool, error) {
	if aes == nil {
		return string(payload), false, nil
	}
	enc, err := aes.Encrypt(payload)
	if err != nil {
		return "", false, fmt.Errorf("encrypt payload: %w", err)
	}
	return enc, true, nil
}

// decodePayload reverses encodePayload. Unencrypted records are accepted
// even when a key is configured, so a key can be introduced while the queue
// still holds plaintext entries.
func decodePayload(aes *crypto.AESCrypto, stored string, encrypted bool) (json.RawMessage, error) {
	if !encrypted {
		return json.RawMessage(stored), nil
	}
	if aes == nil {
		return nil, errors.New("payload is encrypted but no encryption key is configured")
	}
	plain, err := aes.Decrypt(stored)
	if err != nil {
		return nil, fmt.Errorf("decrypt payload: %w", err)
	}
	return json.RawMessage(plain), nil
}

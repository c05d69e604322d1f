package message

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cubbscratchstudios/splat/internal/metrics"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// UpdateFunc computes the next record from the current one (nil when absent)
// and reports whether it differs. It must be free of side effects: backends
// may call it while holding locks.
type UpdateFunc func(current *CapturedMessage) (CapturedMessage, bool)

// Backend persists captured messages. Update must be atomic per key.
type Backend interface {
	Update(ctx context.Context, key Key, fn UpdateFunc) (Change, error)
	Get(ctx context.Context, key Key) (CapturedMessage, error)
	List(ctx context.Context, conversationID string, limit int) ([]CapturedMessage, error)
	PurgeBefore(ctx context.Context, before time.Time) (int64, error)
}

// Reader is the read side of the store.
type Reader interface {
	Get(ctx context.Context, conversationID, messageID string) (CapturedMessage, error)
}

// Store applies merge rules on top of a Backend and serializes writes per key.
type Store struct {
	backend Backend
	locks   *keyLocker
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithMetrics records write outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithClock overrides the clock used for deletion timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(log *slog.Logger, backend Backend, opts ...Option) *Store {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{
		backend: backend,
		locks:   newKeyLocker(),
		logger:  log.With(slog.String("service", "message_store")),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put upserts msg by its key, merging with any stored record.
func (s *Store) Put(ctx context.Context, msg CapturedMessage) error {
	_, err := s.Apply(ctx, msg)
	return err
}

// Apply is Put that also returns what changed.
func (s *Store) Apply(ctx context.Context, msg CapturedMessage) (Change, error) {
	key := msg.Key().trimmed()
	msg.ConversationID, msg.MessageID = key.ConversationID, key.MessageID
	if !key.Valid() {
		return Change{}, ErrInvalidKey
	}
	return s.write(ctx, "put", key, func(current *CapturedMessage) (CapturedMessage, bool) {
		return Merge(current, msg)
	})
}

// MarkDeleted tombstones the record. It is idempotent, and on an unknown key
// it leaves a placeholder that a later create fills in.
func (s *Store) MarkDeleted(ctx context.Context, conversationID, messageID string) error {
	_, err := s.Tombstone(ctx, Key{ConversationID: conversationID, MessageID: messageID}, time.Time{})
	return err
}

// Tombstone is MarkDeleted with an explicit deletion time; zero means now.
func (s *Store) Tombstone(ctx context.Context, key Key, at time.Time) (Change, error) {
	key = key.trimmed()
	if !key.Valid() {
		return Change{}, ErrInvalidKey
	}
	if at.IsZero() {
		at = s.now()
	}
	return s.write(ctx, "delete", key, func(current *CapturedMessage) (CapturedMessage, bool) {
		return Tombstone(current, key, at)
	})
}

func (s *Store) write(ctx context.Context, op string, key Key, fn UpdateFunc) (Change, error) {
	unlock := s.locks.Lock(key)
	defer unlock()

	change, err := s.backend.Update(ctx, key, fn)
	switch {
	case err != nil:
		s.metrics.StoreWrite(op, metrics.ResultError)
		s.logger.Warn("store write failed",
			slog.String("op", op),
			slog.String("key", key.String()),
			slog.Any("error", err),
		)
		return Change{}, err
	case !change.Changed:
		s.metrics.StoreWrite(op, metrics.ResultUnchanged)
	default:
		s.metrics.StoreWrite(op, metrics.ResultOK)
	}
	return change, nil
}

// Get returns the record or ErrNotFound.
func (s *Store) Get(ctx context.Context, conversationID, messageID string) (CapturedMessage, error) {
	key := Key{ConversationID: conversationID, MessageID: messageID}.trimmed()
	if !key.Valid() {
		return CapturedMessage{}, ErrInvalidKey
	}
	return s.backend.Get(ctx, key)
}

// List returns up to limit records of a conversation, newest first.
func (s *Store) List(ctx context.Context, conversationID string, limit int) ([]CapturedMessage, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, ErrInvalidKey
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.backend.List(ctx, conversationID, limit)
}

// PurgeBefore removes records last modified before the cutoff.
func (s *Store) PurgeBefore(ctx context.Context, before time.Time) (int64, error) {
	n, err := s.backend.PurgeBefore(ctx, before)
	if err != nil {
		s.metrics.StoreWrite("purge", metrics.ResultError)
		return 0, err
	}
	s.metrics.StoreWrite("purge", metrics.ResultOK)
	return n, nil
}

// IsRetryable reports whether err is a transient store failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// sortTime orders records by creation, falling back to modification for placeholders.
func sortTime(m CapturedMessage) time.Time {
	if !m.CapturedAt.IsZero() {
		return m.CapturedAt
	}
	return m.LastModifiedAt
}

package capture

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gammazero/workerpool"

	"github.com/cubbscratchstudios/splat/internal/message"
	"github.com/cubbscratchstudios/splat/internal/message/event"
	"github.com/cubbscratchstudios/splat/internal/metrics"
)

// Options sizes the worker shards and the retry policy for store writes.
type Options struct {
	Workers      int
	QueueSize    int
	RetryMax     int
	RetryBackoff time.Duration
}

func (o Options) normalized() Options {
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.RetryMax <= 0 {
		o.RetryMax = 1
	}
	if o.RetryBackoff < 0 {
		o.RetryBackoff = 0
	}
	return o
}

// shard runs the writes of its keys one at a time, in submission order.
type shard struct {
	pool    *workerpool.WorkerPool
	backlog atomic.Int64
}

// Service normalizes events and applies them to the store through per-key
// ordered worker shards. Changes are published to the event hub.
type Service struct {
	normalizer *Normalizer
	store      *message.Store
	publisher  event.Publisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
	opts       Options
	shards     []*shard

	mu      sync.RWMutex
	stopped bool

	corruptOnce  sync.Once
	onCorruption func(error)
	now          func() time.Time
}

func NewService(log *slog.Logger, normalizer *Normalizer, store *message.Store, publisher event.Publisher, m *metrics.Metrics, opts Options) *Service {
	if log == nil {
		log = slog.Default()
	}
	opts = opts.normalized()
	shards := make([]*shard, opts.Workers)
	for i := range shards {
		shards[i] = &shard{pool: workerpool.New(1)}
	}
	return &Service{
		normalizer: normalizer,
		store:      store,
		publisher:  publisher,
		metrics:    m,
		logger:     log.With(slog.String("service", "capture")),
		opts:       opts,
		shards:     shards,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// OnCorruption registers the handler invoked once when the store reports corrupt data.
func (s *Service) OnCorruption(fn func(error)) {
	s.onCorruption = fn
}

// Capture normalizes raw synchronously and queues the store write. Malformed
// events return a *NormalizationError and are dropped; a saturated shard
// returns ErrQueueFull.
func (s *Service) Capture(ctx context.Context, raw RawEvent) error {
	msg, err := s.normalize(raw)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return ErrStopped
	}
	sh := s.shardFor(msg.Key())
	if sh.backlog.Load() >= int64(s.opts.QueueSize) {
		s.metrics.CaptureEvent(string(raw.Kind), metrics.ResultDropped)
		s.logger.Warn("capture queue full",
			slog.String("kind", string(raw.Kind)),
			slog.String("key", msg.Key().String()),
		)
		return ErrQueueFull
	}
	sh.backlog.Add(1)
	s.metrics.AddQueueDepth(1)
	taskCtx := context.WithoutCancel(ctx)
	kind := raw.Kind
	sh.pool.Submit(func() {
		defer func() {
			sh.backlog.Add(-1)
			s.metrics.AddQueueDepth(-1)
		}()
		_, _ = s.apply(taskCtx, kind, msg)
	})
	return nil
}

// Process normalizes and writes raw on the calling goroutine. Per-key
// ordering relative to queued writes is kept by the store's key lock.
func (s *Service) Process(ctx context.Context, raw RawEvent) (message.Change, error) {
	msg, err := s.normalize(raw)
	if err != nil {
		return message.Change{}, err
	}
	return s.apply(ctx, raw.Kind, msg)
}

// Stop waits for queued writes to finish. Later captures return ErrStopped.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for _, sh := range s.shards {
			sh.pool.StopWait()
		}
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) normalize(raw RawEvent) (message.CapturedMessage, error) {
	msg, err := s.normalizer.Normalize(raw)
	if err != nil {
		s.metrics.CaptureEvent(string(raw.Kind), metrics.ResultRejected)
		if errors.Is(err, ErrUnsupportedEvent) {
			s.logger.Debug("ignored event", slog.String("kind", string(raw.Kind)))
		} else {
			s.logger.Warn("dropped malformed event", slog.Any("error", err))
		}
		return message.CapturedMessage{}, err
	}
	return msg, nil
}

func (s *Service) shardFor(key message.Key) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key.String()))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// apply writes msg with linear backoff on transient store failures.
func (s *Service) apply(ctx context.Context, kind EventKind, msg message.CapturedMessage) (message.Change, error) {
	var (
		change message.Change
		err    error
	)
	for attempt := 1; ; attempt++ {
		change, err = s.write(ctx, kind, msg)
		if err == nil || !message.IsRetryable(err) || attempt >= s.opts.RetryMax {
			break
		}
		s.logger.Warn("store write retry",
			slog.String("key", msg.Key().String()),
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
		select {
		case <-time.After(time.Duration(attempt) * s.opts.RetryBackoff):
		case <-ctx.Done():
			err = ctx.Err()
		}
		if ctx.Err() != nil {
			break
		}
	}
	if errors.Is(err, message.ErrInvalidRecord) {
		s.metrics.CaptureEvent(string(kind), metrics.ResultRejected)
		s.logger.Warn("capture write rejected",
			slog.String("kind", string(kind)),
			slog.String("key", msg.Key().String()),
			slog.Any("error", err),
		)
		return message.Change{}, err
	}
	if err != nil {
		s.metrics.CaptureEvent(string(kind), metrics.ResultError)
		s.logger.Error("capture write failed",
			slog.String("kind", string(kind)),
			slog.String("key", msg.Key().String()),
			slog.Any("error", err),
		)
		if errors.Is(err, message.ErrCorrupt) {
			s.escalate(err)
		}
		return message.Change{}, err
	}

	if !change.Changed {
		s.metrics.CaptureEvent(string(kind), metrics.ResultUnchanged)
		return change, nil
	}
	s.metrics.CaptureEvent(string(kind), metrics.ResultOK)
	if s.publisher != nil {
		for _, ev := range event.FromChange(change, s.now()) {
			s.publisher.Publish(ev)
		}
	}
	return change, nil
}

func (s *Service) write(ctx context.Context, kind EventKind, msg message.CapturedMessage) (message.Change, error) {
	if kind == KindDelete && msg.Author.IsZero() {
		return s.store.Tombstone(ctx, msg.Key(), msg.DeletedAt)
	}
	return s.store.Apply(ctx, msg)
}

func (s *Service) escalate(err error) {
	s.corruptOnce.Do(func() {
		if s.onCorruption != nil {
			s.onCorruption(err)
		}
	})
}

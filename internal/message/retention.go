package message

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const purgeTimeout = 5 * time.Minute

// Purger deletes records older than a cutoff.
type Purger interface {
	PurgeBefore(ctx context.Context, before time.Time) (int64, error)
}

// Retention periodically purges records whose last modification is older than maxAge.
type Retention struct {
	purger   Purger
	cron     *cron.Cron
	schedule string
	maxAge   time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewRetention validates the schedule. A non-positive maxAge disables purging.
func NewRetention(log *slog.Logger, purger Purger, schedule string, maxAge time.Duration) (*Retention, error) {
	if log == nil {
		log = slog.Default()
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule = strings.TrimSpace(schedule)
	if maxAge > 0 {
		if _, err := parser.Parse(schedule); err != nil {
			return nil, fmt.Errorf("invalid purge schedule: %w", err)
		}
	}
	return &Retention{
		purger:   purger,
		cron:     cron.New(cron.WithParser(parser)),
		schedule: schedule,
		maxAge:   maxAge,
		logger:   log.With(slog.String("service", "retention")),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// ParseRetention reads the configured retention; empty means keep forever.
func ParseRetention(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid history retention %q: %w", raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("history retention must not be negative")
	}
	return d, nil
}

func (r *Retention) Enabled() bool {
	return r.maxAge > 0
}

// Start schedules the purge job.
func (r *Retention) Start() error {
	if !r.Enabled() {
		r.logger.Info("history retention disabled")
		return nil
	}
	if _, err := r.cron.AddFunc(r.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
		defer cancel()
		_, _ = r.RunOnce(ctx)
	}); err != nil {
		return err
	}
	r.cron.Start()
	r.logger.Info("history retention scheduled",
		slog.String("schedule", r.schedule),
		slog.Duration("max_age", r.maxAge),
	)
	return nil
}

// Stop waits for a running purge to finish or ctx to expire.
func (r *Retention) Stop(ctx context.Context) error {
	done := r.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce purges immediately and returns the number of removed records.
func (r *Retention) RunOnce(ctx context.Context) (int64, error) {
	if !r.Enabled() {
		return 0, nil
	}
	cutoff := r.now().Add(-r.maxAge)
	n, err := r.purger.PurgeBefore(ctx, cutoff)
	if err != nil {
		r.logger.Error("history purge failed", slog.Any("error", err))
		return 0, err
	}
	r.logger.Info("history purged", slog.Int64("removed", n), slog.Time("cutoff", cutoff))
	return n, nil
}

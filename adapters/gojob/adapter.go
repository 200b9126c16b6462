package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-channels/core"
)

const (
	JobIDLedgerSweep = "channels.ledger.sweep"

	ParamOlderThan = "older_than"
)

// DefaultSweepAge bounds how long a ledger row may sit pending before the
// sweep marks it failed. Crashed workers leave pending rows behind; the sweep
// is the remediation path.
const DefaultSweepAge = 30 * time.Minute

// NewLedgerSweepMessage builds the queue message for one sweep run. The
// idempotency key collapses concurrent schedules of the same sweep window.
func NewLedgerSweepMessage(olderThan time.Duration, scheduledAt time.Time) *job.ExecutionMessage {
	if olderThan <= 0 {
		olderThan = DefaultSweepAge
	}
	return &job.ExecutionMessage{
		JobID: JobIDLedgerSweep,
		Parameters: map[string]any{
			ParamOlderThan: olderThan.String(),
		},
		IdempotencyKey: fmt.Sprintf("%s:%d", JobIDLedgerSweep, scheduledAt.UTC().Truncate(olderThan).Unix()),
		DedupPolicy:    job.DeduplicationPolicy("drop"),
	}
}

// LedgerSweeper executes the stale-pending sweep against the webhook event
// ledger.
type LedgerSweeper struct {
	store  core.WebhookEventStore
	age    time.Duration
	now    func() time.Time
	logger core.Logger
}

type LedgerSweeperConfig struct {
	Store  core.WebhookEventStore
	MaxAge time.Duration
	Now    func() time.Time
	Logger core.Logger
}

func NewLedgerSweeper(cfg LedgerSweeperConfig) (*LedgerSweeper, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("gojob: webhook event store is required")
	}
	age := cfg.MaxAge
	if age <= 0 {
		age = DefaultSweepAge
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &LedgerSweeper{
		store:  cfg.Store,
		age:    age,
		now:    now,
		logger: glog.Ensure(cfg.Logger),
	}, nil
}

// Execute runs one sweep. The message's older_than parameter overrides the
// configured age when present and parseable.
func (s *LedgerSweeper) Execute(ctx context.Context, msg *job.ExecutionMessage) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("gojob: ledger sweeper is not configured")
	}
	age := s.age
	if msg != nil {
		if raw, ok := msg.Parameters[ParamOlderThan].(string); ok {
			if parsed, err := time.ParseDuration(strings.TrimSpace(raw)); err == nil && parsed > 0 {
				age = parsed
			}
		}
	}

	cutoff := s.now().Add(-age)
	swept, err := s.store.SweepStalePending(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("gojob: sweep stale pending events: %w", err)
	}
	if swept > 0 {
		s.logger.WithContext(ctx).Warn("ledger sweep marked stale pending events failed",
			"swept", swept,
			"older_than", age.String(),
		)
	}
	return nil
}

// SweepEnqueuer schedules ledger sweeps on a go-job queue.
type SweepEnqueuer struct {
	enqueuer queue.Enqueuer
	now      func() time.Time
}

func NewSweepEnqueuer(enqueuer queue.Enqueuer) *SweepEnqueuer {
	return &SweepEnqueuer{
		enqueuer: enqueuer,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (e *SweepEnqueuer) EnqueueSweep(ctx context.Context, olderThan time.Duration) error {
	if e == nil || e.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	_, err := e.enqueuer.Enqueue(ctx, NewLedgerSweepMessage(olderThan, e.now()))
	return err
}

// LoggingHook reports worker lifecycle events through the channels logger.
type LoggingHook struct {
	logger core.Logger
}

func NewLoggingHook(logger core.Logger) *LoggingHook {
	return &LoggingHook{logger: glog.Ensure(logger)}
}

func (h *LoggingHook) OnStart(ctx context.Context, event worker.Event) {
	if h == nil || h.logger == nil {
		return
	}
	h.logger.WithContext(ctx).Debug("job started",
		"job_id", eventJobID(event),
		"attempt", event.Attempt,
	)
}

func (h *LoggingHook) OnSuccess(ctx context.Context, event worker.Event) {
	if h == nil || h.logger == nil {
		return
	}
	h.logger.WithContext(ctx).Debug("job succeeded",
		"job_id", eventJobID(event),
		"duration", event.Duration.String(),
	)
}

func (h *LoggingHook) OnFailure(ctx context.Context, event worker.Event) {
	if h == nil || h.logger == nil {
		return
	}
	h.logger.WithContext(ctx).Error("job failed",
		"job_id", eventJobID(event),
		"attempt", event.Attempt,
		"error", event.Err,
	)
}

func (h *LoggingHook) OnRetry(ctx context.Context, event worker.Event) {
	if h == nil || h.logger == nil {
		return
	}
	h.logger.WithContext(ctx).Warn("job retrying",
		"job_id", eventJobID(event),
		"attempt", event.Attempt,
		"delay", event.Delay.String(),
	)
}

func eventJobID(event worker.Event) string {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	if message == nil {
		return ""
	}
	return strings.TrimSpace(message.JobID)
}

var _ worker.Hook = (*LoggingHook)(nil)

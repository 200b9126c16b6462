package gojob

import (
	"context"
	"errors"
	"testing"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"

	"github.com/goliatone/go-channels/core"
)

type stubWebhookEventStore struct {
	lastCutoff time.Time
	swept      int
	err        error
	calls      int
}

func (s *stubWebhookEventStore) Claim(context.Context, core.ClaimWebhookEventInput) (core.WebhookEvent, bool, error) {
	return core.WebhookEvent{}, false, nil
}

func (s *stubWebhookEventStore) Finish(context.Context, string, bool, string) error {
	return nil
}

func (s *stubWebhookEventStore) Get(context.Context, string) (core.WebhookEvent, error) {
	return core.WebhookEvent{}, core.ErrWebhookEventNotFound
}

func (s *stubWebhookEventStore) IsProcessed(context.Context, string) (bool, error) {
	return false, nil
}

func (s *stubWebhookEventStore) SweepStalePending(_ context.Context, olderThan time.Time) (int, error) {
	s.calls++
	s.lastCutoff = olderThan
	return s.swept, s.err
}

func TestLedgerSweeper_ExecuteUsesConfiguredAge(t *testing.T) {
	store := &stubWebhookEventStore{swept: 2}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	sweeper, err := NewLedgerSweeper(LedgerSweeperConfig{
		Store:  store,
		MaxAge: 15 * time.Minute,
		Now:    func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new ledger sweeper: %v", err)
	}

	if err := sweeper.Execute(context.Background(), &job.ExecutionMessage{JobID: JobIDLedgerSweep}); err != nil {
		t.Fatalf("execute sweep: %v", err)
	}
	if store.calls != 1 {
		t.Fatalf("expected one sweep call, got %d", store.calls)
	}
	expected := now.Add(-15 * time.Minute)
	if !store.lastCutoff.Equal(expected) {
		t.Fatalf("expected cutoff %v, got %v", expected, store.lastCutoff)
	}
}

func TestLedgerSweeper_MessageParameterOverridesAge(t *testing.T) {
	store := &stubWebhookEventStore{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	sweeper, err := NewLedgerSweeper(LedgerSweeperConfig{
		Store: store,
		Now:   func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new ledger sweeper: %v", err)
	}

	msg := &job.ExecutionMessage{
		JobID:      JobIDLedgerSweep,
		Parameters: map[string]any{ParamOlderThan: "1h"},
	}
	if err := sweeper.Execute(context.Background(), msg); err != nil {
		t.Fatalf("execute sweep: %v", err)
	}
	expected := now.Add(-time.Hour)
	if !store.lastCutoff.Equal(expected) {
		t.Fatalf("expected cutoff %v, got %v", expected, store.lastCutoff)
	}
}

func TestLedgerSweeper_PropagatesStoreErrors(t *testing.T) {
	storeErr := errors.New("db gone")
	store := &stubWebhookEventStore{err: storeErr}

	sweeper, err := NewLedgerSweeper(LedgerSweeperConfig{Store: store})
	if err != nil {
		t.Fatalf("new ledger sweeper: %v", err)
	}

	if err := sweeper.Execute(context.Background(), nil); !errors.Is(err, storeErr) {
		t.Fatalf("expected store error, got %v", err)
	}
}

type stubEnqueuer struct {
	last *job.ExecutionMessage
}

func (s *stubEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) (queue.EnqueueReceipt, error) {
	s.last = msg
	return queue.EnqueueReceipt{}, nil
}

func TestSweepEnqueuer_BuildsSweepMessage(t *testing.T) {
	enqueuer := &stubEnqueuer{}
	sweep := NewSweepEnqueuer(enqueuer)

	if err := sweep.EnqueueSweep(context.Background(), 45*time.Minute); err != nil {
		t.Fatalf("enqueue sweep: %v", err)
	}
	if enqueuer.last == nil {
		t.Fatalf("expected enqueued message")
	}
	if enqueuer.last.JobID != JobIDLedgerSweep {
		t.Fatalf("expected sweep job id, got %q", enqueuer.last.JobID)
	}
	if enqueuer.last.Parameters[ParamOlderThan] != "45m0s" {
		t.Fatalf("expected older_than parameter, got %v", enqueuer.last.Parameters[ParamOlderThan])
	}
	if enqueuer.last.IdempotencyKey == "" {
		t.Fatalf("expected idempotency key")
	}
}

func TestNewLedgerSweepMessage_DefaultsAge(t *testing.T) {
	msg := NewLedgerSweepMessage(0, time.Now())
	if msg.Parameters[ParamOlderThan] != DefaultSweepAge.String() {
		t.Fatalf("expected default sweep age, got %v", msg.Parameters[ParamOlderThan])
	}
}

package receipts

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-channels/core"
)

type recordingMessageStore struct {
	deliveredIDs     []string
	deliveredUpdated int
	readWatermarks   []int64
	readUpdated      int
}

func (s *recordingMessageStore) Persist(_ context.Context, _ core.PersistMessageInput) (core.Message, bool, error) {
	return core.Message{}, false, nil
}

func (s *recordingMessageStore) Get(_ context.Context, _ string) (core.Message, error) {
	return core.Message{}, core.ErrMessageNotFound
}

func (s *recordingMessageStore) GetByNativeID(_ context.Context, _ string, _ string) (core.Message, error) {
	return core.Message{}, core.ErrMessageNotFound
}

func (s *recordingMessageStore) ListByConversation(_ context.Context, _ string, _ int, _ int) ([]core.Message, error) {
	return nil, nil
}

func (s *recordingMessageStore) MarkDelivered(_ context.Context, _ string, nativeIDs []string, _ time.Time) (int, error) {
	s.deliveredIDs = append(s.deliveredIDs, nativeIDs...)
	return s.deliveredUpdated, nil
}

func (s *recordingMessageStore) MarkReadThrough(_ context.Context, _ string, watermarkMs int64, _ time.Time) (int, error) {
	s.readWatermarks = append(s.readWatermarks, watermarkMs)
	return s.readUpdated, nil
}

func (s *recordingMessageStore) MarkFailed(_ context.Context, _ string, _ string, _ time.Time) error {
	return nil
}

type recordingConversationStore struct {
	watermarks []int64
}

func (s *recordingConversationStore) Create(_ context.Context, _ core.CreateConversationInput) (core.Conversation, error) {
	return core.Conversation{}, nil
}

func (s *recordingConversationStore) Get(_ context.Context, _ string) (core.Conversation, error) {
	return core.Conversation{}, core.ErrConversationNotFound
}

func (s *recordingConversationStore) FindByParticipant(_ context.Context, _ string, _ string) (core.Conversation, bool, error) {
	return core.Conversation{}, false, nil
}

func (s *recordingConversationStore) RecordInbound(_ context.Context, _ string, _ time.Time) error {
	return nil
}

func (s *recordingConversationStore) RecordOutbound(_ context.Context, _ string, _ time.Time) error {
	return nil
}

func (s *recordingConversationStore) ApplyReadWatermark(_ context.Context, _ string, watermarkMs int64) error {
	s.watermarks = append(s.watermarks, watermarkMs)
	return nil
}

func (s *recordingConversationStore) UpdateProfile(_ context.Context, _ string, _ string, _ string) error {
	return nil
}

func newTestReconciler(t *testing.T, messages *recordingMessageStore, conversations *recordingConversationStore) *Reconciler {
	t.Helper()
	reconciler, err := NewReconciler(messages, conversations, nil, nil)
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}
	return reconciler
}

func TestApplyDeliveryMarksListedIDs(t *testing.T) {
	messages := &recordingMessageStore{deliveredUpdated: 2}
	reconciler := newTestReconciler(t, messages, &recordingConversationStore{})

	updated, err := reconciler.ApplyDelivery(context.Background(), core.Conversation{ID: "conv-1"}, core.DeliveryReceipt{
		MessageIDs:  []string{"mid.2", "mid.1"},
		WatermarkMs: 500,
	})
	if err != nil {
		t.Fatalf("apply delivery: %v", err)
	}
	if updated != 2 {
		t.Fatalf("expected 2 updates, got %d", updated)
	}
	if len(messages.deliveredIDs) != 2 {
		t.Fatalf("expected both ids forwarded, got %v", messages.deliveredIDs)
	}
}

func TestApplyDeliveryUnknownIDsAreNotErrors(t *testing.T) {
	messages := &recordingMessageStore{deliveredUpdated: 1}
	reconciler := newTestReconciler(t, messages, &recordingConversationStore{})

	updated, err := reconciler.ApplyDelivery(context.Background(), core.Conversation{ID: "conv-1"}, core.DeliveryReceipt{
		MessageIDs: []string{"mid.known", "mid.unknown"},
	})
	if err != nil {
		t.Fatalf("partial delivery must not fail: %v", err)
	}
	if updated != 1 {
		t.Fatalf("expected 1 update, got %d", updated)
	}
}

func TestApplyReadAdvancesWatermark(t *testing.T) {
	messages := &recordingMessageStore{readUpdated: 3}
	conversations := &recordingConversationStore{}
	reconciler := newTestReconciler(t, messages, conversations)

	conversation := core.Conversation{ID: "conv-1", LastReadWatermarkMs: 100}
	updated, err := reconciler.ApplyRead(context.Background(), conversation, core.ReadReceipt{WatermarkMs: 900})
	if err != nil {
		t.Fatalf("apply read: %v", err)
	}
	if updated != 3 {
		t.Fatalf("expected 3 updates, got %d", updated)
	}
	if len(messages.readWatermarks) != 1 || messages.readWatermarks[0] != 900 {
		t.Fatalf("expected watermark 900 forwarded, got %v", messages.readWatermarks)
	}
	if len(conversations.watermarks) != 1 || conversations.watermarks[0] != 900 {
		t.Fatalf("expected conversation watermark advanced, got %v", conversations.watermarks)
	}
}

func TestApplyReadIgnoresStaleWatermark(t *testing.T) {
	messages := &recordingMessageStore{}
	conversations := &recordingConversationStore{}
	reconciler := newTestReconciler(t, messages, conversations)

	conversation := core.Conversation{ID: "conv-1", LastReadWatermarkMs: 900}
	updated, err := reconciler.ApplyRead(context.Background(), conversation, core.ReadReceipt{WatermarkMs: 400})
	if err != nil {
		t.Fatalf("apply read: %v", err)
	}
	if updated != 0 {
		t.Fatalf("stale watermark must be a no-op, got %d updates", updated)
	}
	if len(messages.readWatermarks) != 0 || len(conversations.watermarks) != 0 {
		t.Fatal("stale watermark must not touch the stores")
	}

	// Replay of the last applied watermark is equally a no-op.
	if _, err := reconciler.ApplyRead(context.Background(), conversation, core.ReadReceipt{WatermarkMs: 900}); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(messages.readWatermarks) != 0 {
		t.Fatal("replayed watermark must not touch the stores")
	}
}

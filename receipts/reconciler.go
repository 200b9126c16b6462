// Package receipts reconciles delivery and read receipts against persisted
// outbound messages.
package receipts

import (
	"context"
	"fmt"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-channels/core"
)

type Reconciler struct {
	messages      core.MessageStore
	conversations core.ConversationStore
	now           func() time.Time
	logger        core.Logger
}

func NewReconciler(messages core.MessageStore, conversations core.ConversationStore, now func() time.Time, logger core.Logger) (*Reconciler, error) {
	if messages == nil {
		return nil, fmt.Errorf("receipts: message store is required")
	}
	if conversations == nil {
		return nil, fmt.Errorf("receipts: conversation store is required")
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Reconciler{
		messages:      messages,
		conversations: conversations,
		now:           now,
		logger:        glog.Ensure(logger),
	}, nil
}

// ApplyDelivery marks the listed native ids delivered. Receipts arrive in any
// order relative to each other; ids that reference unknown messages are
// skipped, not errors, since delivery receipts can outrun message persistence
// for messages sent by other apps on the thread.
func (r *Reconciler) ApplyDelivery(ctx context.Context, conversation core.Conversation, receipt core.DeliveryReceipt) (int, error) {
	if r == nil || r.messages == nil {
		return 0, fmt.Errorf("receipts: reconciler is not configured")
	}
	if len(receipt.MessageIDs) == 0 {
		return 0, nil
	}
	updated, err := r.messages.MarkDelivered(ctx, conversation.ID, receipt.MessageIDs, r.now())
	if err != nil {
		return 0, fmt.Errorf("receipts: mark delivered: %w", err)
	}
	if updated < len(receipt.MessageIDs) {
		r.logger.WithContext(ctx).Debug("receipts: delivery receipt referenced unknown messages",
			"conversation_id", conversation.ID,
			"receipt_ids", len(receipt.MessageIDs),
			"updated", updated,
		)
	}
	return updated, nil
}

// ApplyRead marks every outbound message at or below the watermark read and
// resets the conversation's unread counter. A watermark at or below the last
// applied one is a replayed or reordered receipt and changes nothing.
func (r *Reconciler) ApplyRead(ctx context.Context, conversation core.Conversation, receipt core.ReadReceipt) (int, error) {
	if r == nil || r.messages == nil {
		return 0, fmt.Errorf("receipts: reconciler is not configured")
	}
	if receipt.WatermarkMs <= conversation.LastReadWatermarkMs {
		return 0, nil
	}
	updated, err := r.messages.MarkReadThrough(ctx, conversation.ID, receipt.WatermarkMs, r.now())
	if err != nil {
		return 0, fmt.Errorf("receipts: mark read through watermark: %w", err)
	}
	if err := r.conversations.ApplyReadWatermark(ctx, conversation.ID, receipt.WatermarkMs); err != nil {
		return 0, fmt.Errorf("receipts: apply read watermark: %w", err)
	}
	return updated, nil
}

package conversations

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-channels/core"
)

// Persister writes normalized message events to the message store and keeps
// the conversation's activity counters current. The store guarantees the
// unified mirror write and native-id idempotency; the persister decides the
// shape of the row.
type Persister struct {
	messages      core.MessageStore
	conversations core.ConversationStore
	now           func() time.Time
}

func NewPersister(messages core.MessageStore, conversations core.ConversationStore, now func() time.Time) (*Persister, error) {
	if messages == nil {
		return nil, fmt.Errorf("conversations: message store is required")
	}
	if conversations == nil {
		return nil, fmt.Errorf("conversations: conversation store is required")
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Persister{
		messages:      messages,
		conversations: conversations,
		now:           now,
	}, nil
}

// PersistInbound stores one inbound event as a platform message. Message
// events map directly; postback and referral events synthesize a postback
// message carrying the opaque payload. Unread and last-message counters are
// bumped only when the row is newly created; a replayed native id changes
// nothing.
func (p *Persister) PersistInbound(ctx context.Context, conversation core.Conversation, event core.CanonicalEvent) (core.Message, bool, error) {
	if p == nil || p.messages == nil {
		return core.Message{}, false, fmt.Errorf("conversations: persister is not configured")
	}

	input, err := buildPersistInput(conversation, event)
	if err != nil {
		return core.Message{}, false, err
	}
	message, created, err := p.messages.Persist(ctx, input)
	if err != nil {
		return core.Message{}, false, fmt.Errorf("conversations: persist message: %w", err)
	}
	if created {
		if err := p.conversations.RecordInbound(ctx, conversation.ID, p.now()); err != nil {
			return core.Message{}, false, fmt.Errorf("conversations: record inbound activity: %w", err)
		}
	}
	return message, created, nil
}

// PersistOutbound stores a platform-acknowledged outbound message with its
// native id. Last-message bumps without touching the unread counter.
func (p *Persister) PersistOutbound(ctx context.Context, conversation core.Conversation, nativeID string, msg core.OutboundMessage, timestampMs int64) (core.Message, error) {
	if p == nil || p.messages == nil {
		return core.Message{}, fmt.Errorf("conversations: persister is not configured")
	}
	kind := msg.Kind
	if kind == "" {
		kind = core.MessageKindText
	}
	message, created, err := p.messages.Persist(ctx, core.PersistMessageInput{
		ConversationID:        conversation.ID,
		UnifiedConversationID: conversation.UnifiedConversationID,
		Channel:               conversation.Platform,
		NativeID:              nativeID,
		Direction:             core.MessageDirectionOutbound,
		Kind:                  kind,
		Text:                  msg.Text,
		MediaURL:              msg.MediaURL,
		Payload:               msg.Payload,
		Status:                core.MessageStatusSent,
		PlatformTimestampMs:   timestampMs,
	})
	if err != nil {
		return core.Message{}, fmt.Errorf("conversations: persist outbound message: %w", err)
	}
	if created {
		if err := p.conversations.RecordOutbound(ctx, conversation.ID, p.now()); err != nil {
			return core.Message{}, fmt.Errorf("conversations: record outbound activity: %w", err)
		}
	}
	return message, nil
}

func buildPersistInput(conversation core.Conversation, event core.CanonicalEvent) (core.PersistMessageInput, error) {
	input := core.PersistMessageInput{
		ConversationID:        conversation.ID,
		UnifiedConversationID: conversation.UnifiedConversationID,
		Channel:               conversation.Platform,
		Direction:             core.MessageDirectionInbound,
		Status:                core.MessageStatusSent,
		PlatformTimestampMs:   event.TimestampMs,
	}
	switch event.Kind {
	case core.EventKindMessage:
		if event.Message == nil {
			return core.PersistMessageInput{}, fmt.Errorf("conversations: message event without message payload")
		}
		input.NativeID = event.Message.NativeID
		input.Kind = event.Message.Kind
		input.Text = event.Message.Text
		input.MediaURL = event.Message.MediaURL
		input.Title = event.Message.Title
		input.URL = event.Message.URL
		input.Payload = event.Message.Payload
	case core.EventKindPostback, core.EventKindReferral:
		if event.Postback == nil {
			return core.PersistMessageInput{}, fmt.Errorf("conversations: postback event without postback payload")
		}
		input.NativeID = event.EventID
		input.Kind = core.MessageKindPostback
		input.Text = event.Postback.Title
		payload := map[string]any{}
		if event.Postback.Payload != "" {
			payload["payload"] = event.Postback.Payload
		}
		if len(event.Postback.Referral) > 0 {
			payload["referral"] = event.Postback.Referral
		}
		if len(payload) > 0 {
			input.Payload = payload
		}
	default:
		return core.PersistMessageInput{}, fmt.Errorf("conversations: event kind %q is not persistable", event.Kind)
	}
	return input, nil
}

package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidPlatform                = errors.New("core: invalid platform")
	ErrInvalidThreadOwner             = errors.New("core: invalid thread owner")
	ErrInvalidThreadControlAction     = errors.New("core: invalid thread control action")
	ErrInvalidMessageStatusTransition = errors.New("core: invalid message status transition")
	ErrInvalidWebhookEventTransition  = errors.New("core: invalid webhook event transition")
	ErrConnectionNotFound             = errors.New("core: connection not found")
	ErrConversationNotFound           = errors.New("core: conversation not found")
	ErrConversationExists             = errors.New("core: conversation already exists")
	ErrMessageNotFound                = errors.New("core: message not found")
	ErrWebhookEventNotFound           = errors.New("core: webhook event not found")
	ErrThreadNotOwned                 = errors.New("core: thread is not owned by this app")
)

type Platform string

const (
	PlatformMessenger Platform = "messenger"
	PlatformInstagram Platform = "instagram"
)

func (p Platform) Valid() bool {
	return p == PlatformMessenger || p == PlatformInstagram
}

func ParsePlatform(value string) (Platform, error) {
	platform := Platform(strings.TrimSpace(strings.ToLower(value)))
	if !platform.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPlatform, value)
	}
	return platform, nil
}

// Connection is the per-organization platform account record. It is created by
// the OAuth layer and is read-only to this module.
type Connection struct {
	ID                string
	OrgID             string
	Platform          Platform
	ExternalAccountID string
	AppID             string
	Active            bool
	WebhookSubscribed bool
	SecondaryAppIDs   []string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type ThreadOwner string

const (
	ThreadOwnerApp          ThreadOwner = "app"
	ThreadOwnerPageInbox    ThreadOwner = "page_inbox"
	ThreadOwnerSecondaryApp ThreadOwner = "secondary_app"
)

func (o ThreadOwner) Valid() bool {
	switch o {
	case ThreadOwnerApp, ThreadOwnerPageInbox, ThreadOwnerSecondaryApp:
		return true
	}
	return false
}

// AllowsOutbound reports whether the local app may send on a thread with this
// owner. The platform remains authoritative; this is the advisory local gate.
func (o ThreadOwner) AllowsOutbound() bool {
	return o == ThreadOwnerApp
}

// ResolveThreadOwner maps a platform app id to an ownership category. The
// page-inbox app id is configuration, not a literal.
func ResolveThreadOwner(targetAppID string, selfAppID string, pageInboxAppID string) (ThreadOwner, error) {
	targetAppID = strings.TrimSpace(targetAppID)
	if targetAppID == "" {
		return "", fmt.Errorf("%w: empty app id", ErrInvalidThreadOwner)
	}
	switch targetAppID {
	case strings.TrimSpace(selfAppID):
		return ThreadOwnerApp, nil
	case strings.TrimSpace(pageInboxAppID):
		return ThreadOwnerPageInbox, nil
	default:
		return ThreadOwnerSecondaryApp, nil
	}
}

type ThreadControlAction string

const (
	ThreadControlActionPass    ThreadControlAction = "pass"
	ThreadControlActionTake    ThreadControlAction = "take"
	ThreadControlActionRequest ThreadControlAction = "request"
)

func (a ThreadControlAction) Valid() bool {
	switch a {
	case ThreadControlActionPass, ThreadControlActionTake, ThreadControlActionRequest:
		return true
	}
	return false
}

// ApplyThreadAction computes the owner that results from a confirmed handover
// action. It is pure: callers apply it only after platform acknowledgement.
func ApplyThreadAction(current ThreadOwner, action ThreadControlAction, target ThreadOwner) (ThreadOwner, error) {
	if !current.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidThreadOwner, current)
	}
	switch action {
	case ThreadControlActionPass:
		if !target.Valid() {
			return "", fmt.Errorf("%w: %q", ErrInvalidThreadOwner, target)
		}
		return target, nil
	case ThreadControlActionTake:
		return ThreadOwnerApp, nil
	case ThreadControlActionRequest:
		return current, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidThreadControlAction, action)
	}
}

// ThreadControlEntry is one append-only record of the handover log. The
// conversation's cached owner always equals the latest entry's ResultingOwner.
type ThreadControlEntry struct {
	ID             string
	ConversationID string
	Action         ThreadControlAction
	FromAppID      string
	ToAppID        string
	ResultingOwner ThreadOwner
	Metadata       map[string]any
	CreatedAt      time.Time
}

// Conversation is the per-platform conversation with one external participant.
type Conversation struct {
	ID                    string
	ConnectionID          string
	Platform              Platform
	ParticipantID         string
	ParticipantName       string
	ParticipantAvatarURL  string
	UnifiedConversationID string
	LastMessageAt         *time.Time
	UnreadCount           int
	ThreadOwner           ThreadOwner
	ThreadOwnerAppID      string
	LastReadWatermarkMs   int64
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// UnifiedConversation is the cross-channel representation. It carries no
// platform knowledge; platform conversations hold the reference.
type UnifiedConversation struct {
	ID        string
	OrgID     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type MessageDirection string

const (
	MessageDirectionInbound  MessageDirection = "inbound"
	MessageDirectionOutbound MessageDirection = "outbound"
)

type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusFailed    MessageStatus = "failed"
)

type MessageKind string

const (
	MessageKindText         MessageKind = "text"
	MessageKindImage        MessageKind = "image"
	MessageKindVideo        MessageKind = "video"
	MessageKindAudio        MessageKind = "audio"
	MessageKindFile         MessageKind = "file"
	MessageKindSticker      MessageKind = "sticker"
	MessageKindLocation     MessageKind = "location"
	MessageKindTemplate     MessageKind = "template"
	MessageKindPostback     MessageKind = "postback"
	MessageKindStoryMention MessageKind = "story_mention"
	MessageKindShare        MessageKind = "share"
	MessageKindFallback     MessageKind = "fallback"
)

// Message is immutable except for status and the status timestamps.
type Message struct {
	ID                  string
	ConversationID      string
	NativeID            string
	Direction           MessageDirection
	Kind                MessageKind
	Text                string
	MediaURL            string
	Title               string
	URL                 string
	Payload             map[string]any
	Status              MessageStatus
	PlatformTimestampMs int64
	DeliveredAt         *time.Time
	ReadAt              *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (m *Message) TransitionTo(status MessageStatus, now time.Time) error {
	if m == nil {
		return nil
	}
	if m.Status == status {
		m.UpdatedAt = now
		return nil
	}
	if !messageTransitionAllowed(m.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidMessageStatusTransition, m.Status, status)
	}
	m.Status = status
	m.UpdatedAt = now
	switch status {
	case MessageStatusDelivered:
		at := now
		m.DeliveredAt = &at
	case MessageStatusRead:
		at := now
		m.ReadAt = &at
	}
	return nil
}

func messageTransitionAllowed(current, next MessageStatus) bool {
	allowed := map[MessageStatus]map[MessageStatus]struct{}{
		MessageStatusSent: {
			MessageStatusDelivered: {},
			MessageStatusRead:      {},
			MessageStatusFailed:    {},
		},
		MessageStatusDelivered: {
			MessageStatusRead: {},
		},
		MessageStatusRead:   {},
		MessageStatusFailed: {},
	}
	_, ok := allowed[current][next]
	return ok
}

// UnifiedMessage mirrors a platform message into the cross-channel model with a
// channel discriminator.
type UnifiedMessage struct {
	ID                    string
	UnifiedConversationID string
	Channel               Platform
	MessageID             string
	Direction             MessageDirection
	Kind                  MessageKind
	Content               string
	CreatedAt             time.Time
}

// BracketedContent is the unified-message default content when a platform
// message carries no text, e.g. "[image]".
func BracketedContent(kind MessageKind) string {
	return "[" + string(kind) + "]"
}

type WebhookEventStatus string

const (
	WebhookEventStatusPending   WebhookEventStatus = "pending"
	WebhookEventStatusProcessed WebhookEventStatus = "processed"
	WebhookEventStatusFailed    WebhookEventStatus = "failed"
)

// WebhookEvent is the idempotency ledger record: one row per attempted event,
// inserted before any of the event's side effects become visible.
type WebhookEvent struct {
	ID           string
	EventID      string
	EventType    string
	ConnectionID string
	PayloadHash  string
	Status       WebhookEventStatus
	Error        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (e *WebhookEvent) TransitionTo(status WebhookEventStatus, now time.Time) error {
	if e == nil {
		return nil
	}
	if e.Status == status {
		e.UpdatedAt = now
		return nil
	}
	if !webhookEventTransitionAllowed(e.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidWebhookEventTransition, e.Status, status)
	}
	e.Status = status
	e.UpdatedAt = now
	return nil
}

// Terminal states never revert to pending.
func webhookEventTransitionAllowed(current, next WebhookEventStatus) bool {
	allowed := map[WebhookEventStatus]map[WebhookEventStatus]struct{}{
		WebhookEventStatusPending: {
			WebhookEventStatusProcessed: {},
			WebhookEventStatusFailed:    {},
		},
		WebhookEventStatusProcessed: {},
		WebhookEventStatusFailed:    {},
	}
	_, ok := allowed[current][next]
	return ok
}

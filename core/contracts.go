package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type EventKind string

const (
	EventKindMessage              EventKind = "message"
	EventKindEcho                 EventKind = "echo"
	EventKindMessageDeleted       EventKind = "message_deleted"
	EventKindDelivery             EventKind = "delivery"
	EventKindRead                 EventKind = "read"
	EventKindPostback             EventKind = "postback"
	EventKindReferral             EventKind = "referral"
	EventKindPassThreadControl    EventKind = "pass_thread_control"
	EventKindTakeThreadControl    EventKind = "take_thread_control"
	EventKindRequestThreadControl EventKind = "request_thread_control"
	EventKindComment              EventKind = "comment"
)

// CanonicalMessage is the normalized message payload shared by both platforms.
type CanonicalMessage struct {
	NativeID string
	Kind     MessageKind
	Text     string
	MediaURL string
	Title    string
	URL      string
	Payload  map[string]any
}

type DeliveryReceipt struct {
	MessageIDs  []string
	WatermarkMs int64
}

type ReadReceipt struct {
	WatermarkMs int64
}

type PostbackPayload struct {
	Title    string
	Payload  string
	Referral map[string]any
}

type HandoverPayload struct {
	TargetAppID        string
	PreviousOwnerAppID string
	RequestedByAppID   string
	Metadata           string
}

type CommentPayload struct {
	CommentID string
	MediaID   string
	ParentID  string
	Text      string
	Username  string
}

// CanonicalEvent is the platform-neutral event shape every adapter produces.
// EventID is deterministic: native message ids for messages, composites for
// receipts and handover events, which have no stable native id.
type CanonicalEvent struct {
	EventID     string
	Kind        EventKind
	SenderID    string
	RecipientID string
	TimestampMs int64
	Standby     bool
	Message     *CanonicalMessage
	Delivery    *DeliveryReceipt
	Read        *ReadReceipt
	Postback    *PostbackPayload
	Handover    *HandoverPayload
	Comment     *CommentPayload
}

// WebhookEntry is one provider entry: the platform account it belongs to plus
// its normalized events, primary and standby collections flattened. Skipped
// counts payload items dropped during normalization: shapes the pipeline does
// not consume, or items too malformed to carry a stable event id.
type WebhookEntry struct {
	AccountID string
	TimeMs    int64
	Events    []CanonicalEvent
	Skipped   int
}

type WebhookBatch struct {
	Platform Platform
	Object   string
	Entries  []WebhookEntry
}

// EventSource normalizes a platform-specific webhook payload into the
// canonical batch shape. Implementations are pure parsers.
type EventSource interface {
	Platform() Platform
	Normalize(payload []byte) (WebhookBatch, error)
}

type ConnectionStore interface {
	Get(ctx context.Context, id string) (Connection, error)
	FindByAccount(ctx context.Context, platform Platform, externalAccountID string) (Connection, bool, error)
}

type CreateConversationInput struct {
	ConnectionID         string
	OrgID                string
	Platform             Platform
	ParticipantID        string
	ParticipantName      string
	ParticipantAvatarURL string
	ThreadOwner          ThreadOwner
	ThreadOwnerAppID     string
}

type ConversationStore interface {
	// Create inserts the platform conversation together with its linked
	// unified conversation. A (connection, participant) uniqueness violation
	// returns an error wrapping ErrConversationExists; callers re-fetch.
	Create(ctx context.Context, in CreateConversationInput) (Conversation, error)
	Get(ctx context.Context, id string) (Conversation, error)
	FindByParticipant(ctx context.Context, connectionID string, participantID string) (Conversation, bool, error)
	// RecordInbound bumps last_message_at and increments unread_count.
	RecordInbound(ctx context.Context, id string, at time.Time) error
	// RecordOutbound bumps last_message_at only; unread_count is untouched.
	RecordOutbound(ctx context.Context, id string, at time.Time) error
	// ApplyReadWatermark resets unread_count and advances
	// last_read_watermark_ms; it never moves the watermark backwards.
	ApplyReadWatermark(ctx context.Context, id string, watermarkMs int64) error
	UpdateProfile(ctx context.Context, id string, name string, avatarURL string) error
}

type PersistMessageInput struct {
	ConversationID        string
	UnifiedConversationID string
	Channel               Platform
	NativeID              string
	Direction             MessageDirection
	Kind                  MessageKind
	Text                  string
	MediaURL              string
	Title                 string
	URL                   string
	Payload               map[string]any
	Status                MessageStatus
	PlatformTimestampMs   int64
}

type MessageStore interface {
	// Persist writes the platform message and, when a unified conversation id
	// is present, the mirrored unified message in the same transaction. A
	// repeat native id is a no-op resolved by the uniqueness constraint: the
	// existing message is returned with created=false.
	Persist(ctx context.Context, in PersistMessageInput) (Message, bool, error)
	Get(ctx context.Context, id string) (Message, error)
	GetByNativeID(ctx context.Context, conversationID string, nativeID string) (Message, error)
	ListByConversation(ctx context.Context, conversationID string, limit int, offset int) ([]Message, error)
	// MarkDelivered sets status=delivered per native id, order independent.
	MarkDelivered(ctx context.Context, conversationID string, nativeIDs []string, at time.Time) (int, error)
	// MarkReadThrough marks outbound messages with platform_timestamp_ms at
	// or below the watermark as read.
	MarkReadThrough(ctx context.Context, conversationID string, watermarkMs int64, at time.Time) (int, error)
	MarkFailed(ctx context.Context, id string, reason string, at time.Time) error
}

type ClaimWebhookEventInput struct {
	EventID      string
	EventType    string
	ConnectionID string
	PayloadHash  string
}

// WebhookEventStore is the idempotency ledger. Claim is a single atomic
// insert-if-absent guarded by the event id uniqueness constraint; the claimed
// flag is the sole dedup signal.
type WebhookEventStore interface {
	Claim(ctx context.Context, in ClaimWebhookEventInput) (WebhookEvent, bool, error)
	Finish(ctx context.Context, eventID string, success bool, errMessage string) error
	Get(ctx context.Context, eventID string) (WebhookEvent, error)
	IsProcessed(ctx context.Context, eventID string) (bool, error)
	// SweepStalePending marks pending rows older than the cutoff failed so
	// an external sweep can surface them; crash remediation per the
	// concurrency model.
	SweepStalePending(ctx context.Context, olderThan time.Time) (int, error)
}

type AppendThreadControlInput struct {
	ConversationID string
	Action         ThreadControlAction
	FromAppID      string
	ToAppID        string
	ResultingOwner ThreadOwner
	Metadata       map[string]any
}

// ThreadControlStore appends handover log entries. Append updates the
// conversation's cached owner in the same transaction as the log insert.
type ThreadControlStore interface {
	Append(ctx context.Context, in AppendThreadControlInput) (ThreadControlEntry, error)
	List(ctx context.Context, conversationID string, limit int, offset int) ([]ThreadControlEntry, error)
	Latest(ctx context.Context, conversationID string) (ThreadControlEntry, bool, error)
}

// StoreProvider bundles the persistence stores the pipeline depends on.
// Factories implement it so wiring code can accept one value instead of five.
type StoreProvider interface {
	ConnectionStore() ConnectionStore
	ConversationStore() ConversationStore
	MessageStore() MessageStore
	WebhookEventStore() WebhookEventStore
	ThreadControlStore() ThreadControlStore
}

type OutboundMessage struct {
	Kind     MessageKind
	Text     string
	MediaURL string
	Payload  map[string]any
}

type SendResult struct {
	RecipientID string
	MessageID   string
}

// PlatformClient is the graph client boundary. The pipeline only depends on
// this interface; platforms/meta/graph ships the HTTP implementation.
type PlatformClient interface {
	SendMessage(ctx context.Context, conn Connection, recipientID string, msg OutboundMessage) (SendResult, error)
	SubscribeWebhooks(ctx context.Context, conn Connection) error
	PassThreadControl(ctx context.Context, conn Connection, recipientID string, targetAppID string, metadata string) error
	TakeThreadControl(ctx context.Context, conn Connection, recipientID string, metadata string) error
	RequestThreadControl(ctx context.Context, conn Connection, recipientID string, metadata string) error
}

type Profile struct {
	Name      string
	AvatarURL string
}

// ProfileFetcher enriches new conversations with display metadata. Failures
// are swallowed by callers; the profile stays optional.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, conn Connection, participantID string) (Profile, error)
}

type ObservedMessage struct {
	OrgID          string           `json:"org_id"`
	Platform       Platform         `json:"platform"`
	ConnectionID   string           `json:"connection_id"`
	ConversationID string           `json:"conversation_id"`
	MessageID      string           `json:"message_id"`
	NativeID       string           `json:"native_id"`
	Direction      MessageDirection `json:"direction"`
	Kind           MessageKind      `json:"kind"`
	TextPreview    string           `json:"text_preview"`
	MediaURL       string           `json:"media_url,omitempty"`
	TimestampMs    int64            `json:"timestamp_ms"`
	Standby        bool             `json:"standby"`
}

type CommentEvent struct {
	OrgID        string   `json:"org_id"`
	Platform     Platform `json:"platform"`
	ConnectionID string   `json:"connection_id"`
	CommentID    string   `json:"comment_id"`
	MediaID      string   `json:"media_id"`
	ParentID     string   `json:"parent_id,omitempty"`
	AuthorID     string   `json:"author_id"`
	Username     string   `json:"username,omitempty"`
	Text         string   `json:"text"`
	TimestampMs  int64    `json:"timestamp_ms"`
}

// EventPublisher fans normalized events out to downstream consumers such as
// the comment automation engine. Delivery is best effort; persistence is the
// guarantee, not downstream exactly-once.
type EventPublisher interface {
	PublishObservedMessage(ctx context.Context, msg ObservedMessage) error
	PublishComment(ctx context.Context, event CommentEvent) error
}

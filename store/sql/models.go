package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type connectionRecord struct {
	bun.BaseModel `bun:"table:channel_connections,alias:cc"`

	ID                string    `bun:"id,pk"`
	OrgID             string    `bun:"org_id,notnull"`
	Platform          string    `bun:"platform,notnull"`
	ExternalAccountID string    `bun:"external_account_id,notnull"`
	AppID             string    `bun:"app_id,notnull"`
	Active            bool      `bun:"active,notnull"`
	WebhookSubscribed bool      `bun:"webhook_subscribed,notnull"`
	SecondaryAppIDs   []string  `bun:"secondary_app_ids,type:jsonb"`
	CreatedAt         time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type unifiedConversationRecord struct {
	bun.BaseModel `bun:"table:unified_conversations,alias:uc"`

	ID        string    `bun:"id,pk"`
	OrgID     string    `bun:"org_id,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type conversationRecord struct {
	bun.BaseModel `bun:"table:channel_conversations,alias:cv"`

	ID                    string     `bun:"id,pk"`
	ConnectionID          string     `bun:"connection_id,notnull"`
	Platform              string     `bun:"platform,notnull"`
	ParticipantID         string     `bun:"participant_id,notnull"`
	ParticipantName       string     `bun:"participant_name"`
	ParticipantAvatarURL  string     `bun:"participant_avatar_url"`
	UnifiedConversationID string     `bun:"unified_conversation_id,notnull"`
	LastMessageAt         *time.Time `bun:"last_message_at,nullzero"`
	UnreadCount           int        `bun:"unread_count,notnull"`
	ThreadOwner           string     `bun:"thread_owner,notnull"`
	ThreadOwnerAppID      string     `bun:"thread_owner_app_id"`
	LastReadWatermarkMs   int64      `bun:"last_read_watermark_ms,notnull"`
	CreatedAt             time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt             time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type messageRecord struct {
	bun.BaseModel `bun:"table:channel_messages,alias:cm"`

	ID                  string         `bun:"id,pk"`
	ConversationID      string         `bun:"conversation_id,notnull"`
	NativeID            string         `bun:"native_id,notnull"`
	Direction           string         `bun:"direction,notnull"`
	Kind                string         `bun:"kind,notnull"`
	Text                string         `bun:"text"`
	MediaURL            string         `bun:"media_url"`
	Title               string         `bun:"title"`
	URL                 string         `bun:"url"`
	Payload             map[string]any `bun:"payload,type:jsonb"`
	Status              string         `bun:"status,notnull"`
	FailureReason       string         `bun:"failure_reason"`
	PlatformTimestampMs int64          `bun:"platform_timestamp_ms,notnull"`
	DeliveredAt         *time.Time     `bun:"delivered_at,nullzero"`
	ReadAt              *time.Time     `bun:"read_at,nullzero"`
	CreatedAt           time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt           time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type unifiedMessageRecord struct {
	bun.BaseModel `bun:"table:unified_messages,alias:um"`

	ID                    string    `bun:"id,pk"`
	UnifiedConversationID string    `bun:"unified_conversation_id,notnull"`
	Channel               string    `bun:"channel,notnull"`
	MessageID             string    `bun:"message_id,notnull"`
	Direction             string    `bun:"direction,notnull"`
	Kind                  string    `bun:"kind,notnull"`
	Content               string    `bun:"content"`
	CreatedAt             time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type webhookEventRecord struct {
	bun.BaseModel `bun:"table:channel_webhook_events,alias:we"`

	ID           string    `bun:"id,pk"`
	EventID      string    `bun:"event_id,notnull"`
	EventType    string    `bun:"event_type,notnull"`
	ConnectionID string    `bun:"connection_id,notnull"`
	PayloadHash  string    `bun:"payload_hash"`
	Status       string    `bun:"status,notnull"`
	Error        string    `bun:"error"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type threadControlRecord struct {
	bun.BaseModel `bun:"table:channel_thread_control_entries,alias:tc"`

	ID             string         `bun:"id,pk"`
	ConversationID string         `bun:"conversation_id,notnull"`
	Action         string         `bun:"action,notnull"`
	FromAppID      string         `bun:"from_app_id"`
	ToAppID        string         `bun:"to_app_id"`
	ResultingOwner string         `bun:"resulting_owner,notnull"`
	Metadata       map[string]any `bun:"metadata,type:jsonb"`
	CreatedAt      time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type rateLimitWindowRecord struct {
	bun.BaseModel `bun:"table:channel_rate_limit_windows,alias:rl"`

	OrgID       string    `bun:"org_id,pk"`
	Count       int       `bun:"count,notnull"`
	WindowStart time.Time `bun:"window_start,notnull"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

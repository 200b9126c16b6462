package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-channels/core"
)

// ConversationStore persists platform conversations together with their
// unified cross-channel mirror. Create inserts both rows in one transaction so
// a conversation never exists without its unified counterpart.
type ConversationStore struct {
	db   *bun.DB
	repo repository.Repository[*conversationRecord]
	now  func() time.Time
}

func NewConversationStore(db *bun.DB) (*ConversationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*conversationRecord](db, conversationHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid conversation repository wiring: %w", err)
		}
	}
	return &ConversationStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *ConversationStore) Create(ctx context.Context, in core.CreateConversationInput) (core.Conversation, error) {
	if s == nil || s.db == nil {
		return core.Conversation{}, fmt.Errorf("sqlstore: conversation store is not configured")
	}
	if strings.TrimSpace(in.ConnectionID) == "" {
		return core.Conversation{}, fmt.Errorf("sqlstore: connection id is required")
	}
	if strings.TrimSpace(in.ParticipantID) == "" {
		return core.Conversation{}, fmt.Errorf("sqlstore: participant id is required")
	}
	if !in.ThreadOwner.Valid() {
		return core.Conversation{}, fmt.Errorf("%w: %q", core.ErrInvalidThreadOwner, in.ThreadOwner)
	}

	now := s.now()
	unified := &unifiedConversationRecord{
		ID:        uuid.NewString(),
		OrgID:     strings.TrimSpace(in.OrgID),
		CreatedAt: now,
		UpdatedAt: now,
	}
	record := &conversationRecord{
		ID:                    uuid.NewString(),
		ConnectionID:          strings.TrimSpace(in.ConnectionID),
		Platform:              string(in.Platform),
		ParticipantID:         strings.TrimSpace(in.ParticipantID),
		ParticipantName:       strings.TrimSpace(in.ParticipantName),
		ParticipantAvatarURL:  strings.TrimSpace(in.ParticipantAvatarURL),
		UnifiedConversationID: unified.ID,
		ThreadOwner:           string(in.ThreadOwner),
		ThreadOwnerAppID:      strings.TrimSpace(in.ThreadOwnerAppID),
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(unified).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return core.Conversation{}, fmt.Errorf(
				"sqlstore: conversation for connection %s participant %s: %w",
				record.ConnectionID, record.ParticipantID, core.ErrConversationExists,
			)
		}
		return core.Conversation{}, err
	}
	return conversationToDomain(record), nil
}

func (s *ConversationStore) Get(ctx context.Context, id string) (core.Conversation, error) {
	if s == nil || s.db == nil {
		return core.Conversation{}, fmt.Errorf("sqlstore: conversation store is not configured")
	}
	record := &conversationRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Conversation{}, fmt.Errorf("sqlstore: conversation %q: %w", id, core.ErrConversationNotFound)
		}
		return core.Conversation{}, err
	}
	return conversationToDomain(record), nil
}

func (s *ConversationStore) FindByParticipant(ctx context.Context, connectionID string, participantID string) (core.Conversation, bool, error) {
	if s == nil || s.db == nil {
		return core.Conversation{}, false, fmt.Errorf("sqlstore: conversation store is not configured")
	}
	record := &conversationRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.connection_id = ?", strings.TrimSpace(connectionID)).
		Where("?TableAlias.participant_id = ?", strings.TrimSpace(participantID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Conversation{}, false, nil
		}
		return core.Conversation{}, false, err
	}
	return conversationToDomain(record), true, nil
}

func (s *ConversationStore) RecordInbound(ctx context.Context, id string, at time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: conversation store is not configured")
	}
	_, err := s.db.NewUpdate().
		Model((*conversationRecord)(nil)).
		Set("last_message_at = ?", at).
		Set("unread_count = unread_count + 1").
		Set("updated_at = ?", s.now()).
		Where("id = ?", strings.TrimSpace(id)).
		Exec(ctx)
	return err
}

func (s *ConversationStore) RecordOutbound(ctx context.Context, id string, at time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: conversation store is not configured")
	}
	_, err := s.db.NewUpdate().
		Model((*conversationRecord)(nil)).
		Set("last_message_at = ?", at).
		Set("updated_at = ?", s.now()).
		Where("id = ?", strings.TrimSpace(id)).
		Exec(ctx)
	return err
}

func (s *ConversationStore) ApplyReadWatermark(ctx context.Context, id string, watermarkMs int64) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: conversation store is not configured")
	}
	// The watermark guard in the where clause keeps the update monotonic even
	// when receipts arrive out of order across workers.
	_, err := s.db.NewUpdate().
		Model((*conversationRecord)(nil)).
		Set("last_read_watermark_ms = ?", watermarkMs).
		Set("unread_count = 0").
		Set("updated_at = ?", s.now()).
		Where("id = ?", strings.TrimSpace(id)).
		Where("last_read_watermark_ms < ?", watermarkMs).
		Exec(ctx)
	return err
}

func (s *ConversationStore) UpdateProfile(ctx context.Context, id string, name string, avatarURL string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: conversation store is not configured")
	}
	_, err := s.db.NewUpdate().
		Model((*conversationRecord)(nil)).
		Set("participant_name = ?", strings.TrimSpace(name)).
		Set("participant_avatar_url = ?", strings.TrimSpace(avatarURL)).
		Set("updated_at = ?", s.now()).
		Where("id = ?", strings.TrimSpace(id)).
		Exec(ctx)
	return err
}

func conversationToDomain(record *conversationRecord) core.Conversation {
	if record == nil {
		return core.Conversation{}
	}
	return core.Conversation{
		ID:                    record.ID,
		ConnectionID:          record.ConnectionID,
		Platform:              core.Platform(record.Platform),
		ParticipantID:         record.ParticipantID,
		ParticipantName:       record.ParticipantName,
		ParticipantAvatarURL:  record.ParticipantAvatarURL,
		UnifiedConversationID: record.UnifiedConversationID,
		LastMessageAt:         record.LastMessageAt,
		UnreadCount:           record.UnreadCount,
		ThreadOwner:           core.ThreadOwner(record.ThreadOwner),
		ThreadOwnerAppID:      record.ThreadOwnerAppID,
		LastReadWatermarkMs:   record.LastReadWatermarkMs,
		CreatedAt:             record.CreatedAt,
		UpdatedAt:             record.UpdatedAt,
	}
}

var _ core.ConversationStore = (*ConversationStore)(nil)

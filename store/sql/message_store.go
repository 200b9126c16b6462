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

// MessageStore persists platform messages and mirrors each one into the
// unified message stream. The (conversation, native id) uniqueness constraint
// makes Persist replay safe without a prior existence check.
type MessageStore struct {
	db   *bun.DB
	repo repository.Repository[*messageRecord]
	now  func() time.Time
}

func NewMessageStore(db *bun.DB) (*MessageStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*messageRecord](db, messageHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid message repository wiring: %w", err)
		}
	}
	return &MessageStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *MessageStore) Persist(ctx context.Context, in core.PersistMessageInput) (core.Message, bool, error) {
	if s == nil || s.db == nil {
		return core.Message{}, false, fmt.Errorf("sqlstore: message store is not configured")
	}
	if strings.TrimSpace(in.ConversationID) == "" {
		return core.Message{}, false, fmt.Errorf("sqlstore: conversation id is required")
	}
	if strings.TrimSpace(in.NativeID) == "" {
		return core.Message{}, false, fmt.Errorf("sqlstore: native id is required")
	}

	now := s.now()
	record := &messageRecord{
		ID:                  uuid.NewString(),
		ConversationID:      strings.TrimSpace(in.ConversationID),
		NativeID:            strings.TrimSpace(in.NativeID),
		Direction:           string(in.Direction),
		Kind:                string(in.Kind),
		Text:                in.Text,
		MediaURL:            strings.TrimSpace(in.MediaURL),
		Title:               in.Title,
		URL:                 strings.TrimSpace(in.URL),
		Payload:             in.Payload,
		Status:              string(in.Status),
		PlatformTimestampMs: in.PlatformTimestampMs,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
			return err
		}
		if strings.TrimSpace(in.UnifiedConversationID) == "" {
			return nil
		}
		mirror := &unifiedMessageRecord{
			ID:                    uuid.NewString(),
			UnifiedConversationID: strings.TrimSpace(in.UnifiedConversationID),
			Channel:               string(in.Channel),
			MessageID:             record.ID,
			Direction:             record.Direction,
			Kind:                  record.Kind,
			Content:               unifiedContent(in),
			CreatedAt:             now,
		}
		_, err := tx.NewInsert().Model(mirror).Exec(ctx)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			existing, getErr := s.GetByNativeID(ctx, record.ConversationID, record.NativeID)
			if getErr != nil {
				return core.Message{}, false, getErr
			}
			return existing, false, nil
		}
		return core.Message{}, false, err
	}
	return messageToDomain(record), true, nil
}

func (s *MessageStore) Get(ctx context.Context, id string) (core.Message, error) {
	if s == nil || s.db == nil {
		return core.Message{}, fmt.Errorf("sqlstore: message store is not configured")
	}
	record := &messageRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Message{}, fmt.Errorf("sqlstore: message %q: %w", id, core.ErrMessageNotFound)
		}
		return core.Message{}, err
	}
	return messageToDomain(record), nil
}

func (s *MessageStore) GetByNativeID(ctx context.Context, conversationID string, nativeID string) (core.Message, error) {
	if s == nil || s.db == nil {
		return core.Message{}, fmt.Errorf("sqlstore: message store is not configured")
	}
	record := &messageRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.conversation_id = ?", strings.TrimSpace(conversationID)).
		Where("?TableAlias.native_id = ?", strings.TrimSpace(nativeID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Message{}, fmt.Errorf("sqlstore: message %q: %w", nativeID, core.ErrMessageNotFound)
		}
		return core.Message{}, err
	}
	return messageToDomain(record), nil
}

func (s *MessageStore) ListByConversation(ctx context.Context, conversationID string, limit int, offset int) ([]core.Message, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: message store is not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	var records []*messageRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.conversation_id = ?", strings.TrimSpace(conversationID)).
		OrderExpr("?TableAlias.platform_timestamp_ms DESC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	messages := make([]core.Message, 0, len(records))
	for _, record := range records {
		messages = append(messages, messageToDomain(record))
	}
	return messages, nil
}

func (s *MessageStore) MarkDelivered(ctx context.Context, conversationID string, nativeIDs []string, at time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: message store is not configured")
	}
	ids := make([]string, 0, len(nativeIDs))
	for _, id := range nativeIDs {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	result, err := s.db.NewUpdate().
		Model((*messageRecord)(nil)).
		Set("status = ?", string(core.MessageStatusDelivered)).
		Set("delivered_at = ?", at).
		Set("updated_at = ?", s.now()).
		Where("conversation_id = ?", strings.TrimSpace(conversationID)).
		Where("native_id IN (?)", bun.In(ids)).
		Where("direction = ?", string(core.MessageDirectionOutbound)).
		Where("status = ?", string(core.MessageStatusSent)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return rowsAffected(result), nil
}

func (s *MessageStore) MarkReadThrough(ctx context.Context, conversationID string, watermarkMs int64, at time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: message store is not configured")
	}
	result, err := s.db.NewUpdate().
		Model((*messageRecord)(nil)).
		Set("status = ?", string(core.MessageStatusRead)).
		Set("read_at = ?", at).
		Set("updated_at = ?", s.now()).
		Where("conversation_id = ?", strings.TrimSpace(conversationID)).
		Where("direction = ?", string(core.MessageDirectionOutbound)).
		Where("platform_timestamp_ms <= ?", watermarkMs).
		Where("status IN (?)", bun.In([]string{
			string(core.MessageStatusSent),
			string(core.MessageStatusDelivered),
		})).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return rowsAffected(result), nil
}

func (s *MessageStore) MarkFailed(ctx context.Context, id string, reason string, at time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: message store is not configured")
	}
	_, err := s.db.NewUpdate().
		Model((*messageRecord)(nil)).
		Set("status = ?", string(core.MessageStatusFailed)).
		Set("failure_reason = ?", strings.TrimSpace(reason)).
		Set("updated_at = ?", at).
		Where("id = ?", strings.TrimSpace(id)).
		Exec(ctx)
	return err
}

// unifiedContent picks the mirror body: the message text when present,
// otherwise the bracketed kind placeholder, e.g. "[image]".
func unifiedContent(in core.PersistMessageInput) string {
	if text := strings.TrimSpace(in.Text); text != "" {
		return text
	}
	return core.BracketedContent(in.Kind)
}

func rowsAffected(result sql.Result) int {
	if result == nil {
		return 0
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0
	}
	return int(affected)
}

func messageToDomain(record *messageRecord) core.Message {
	if record == nil {
		return core.Message{}
	}
	return core.Message{
		ID:                  record.ID,
		ConversationID:      record.ConversationID,
		NativeID:            record.NativeID,
		Direction:           core.MessageDirection(record.Direction),
		Kind:                core.MessageKind(record.Kind),
		Text:                record.Text,
		MediaURL:            record.MediaURL,
		Title:               record.Title,
		URL:                 record.URL,
		Payload:             record.Payload,
		Status:              core.MessageStatus(record.Status),
		PlatformTimestampMs: record.PlatformTimestampMs,
		DeliveredAt:         record.DeliveredAt,
		ReadAt:              record.ReadAt,
		CreatedAt:           record.CreatedAt,
		UpdatedAt:           record.UpdatedAt,
	}
}

var _ core.MessageStore = (*MessageStore)(nil)

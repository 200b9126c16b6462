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

// ThreadControlStore appends handover log entries. Append writes the log row
// and the conversation's cached owner in the same transaction so the cached
// owner always matches the latest entry.
type ThreadControlStore struct {
	db   *bun.DB
	repo repository.Repository[*threadControlRecord]
	now  func() time.Time
}

func NewThreadControlStore(db *bun.DB) (*ThreadControlStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*threadControlRecord](db, threadControlHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid thread control repository wiring: %w", err)
		}
	}
	return &ThreadControlStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *ThreadControlStore) Append(ctx context.Context, in core.AppendThreadControlInput) (core.ThreadControlEntry, error) {
	if s == nil || s.db == nil {
		return core.ThreadControlEntry{}, fmt.Errorf("sqlstore: thread control store is not configured")
	}
	if strings.TrimSpace(in.ConversationID) == "" {
		return core.ThreadControlEntry{}, fmt.Errorf("sqlstore: conversation id is required")
	}
	if !in.Action.Valid() {
		return core.ThreadControlEntry{}, fmt.Errorf("%w: %q", core.ErrInvalidThreadControlAction, in.Action)
	}
	if !in.ResultingOwner.Valid() {
		return core.ThreadControlEntry{}, fmt.Errorf("%w: %q", core.ErrInvalidThreadOwner, in.ResultingOwner)
	}

	now := s.now()
	record := &threadControlRecord{
		ID:             uuid.NewString(),
		ConversationID: strings.TrimSpace(in.ConversationID),
		Action:         string(in.Action),
		FromAppID:      strings.TrimSpace(in.FromAppID),
		ToAppID:        strings.TrimSpace(in.ToAppID),
		ResultingOwner: string(in.ResultingOwner),
		Metadata:       in.Metadata,
		CreatedAt:      now,
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewUpdate().
			Model((*conversationRecord)(nil)).
			Set("thread_owner = ?", record.ResultingOwner).
			Set("thread_owner_app_id = ?", record.ToAppID).
			Set("updated_at = ?", now).
			Where("id = ?", record.ConversationID).
			Exec(ctx)
		return err
	})
	if err != nil {
		return core.ThreadControlEntry{}, err
	}
	return threadControlToDomain(record), nil
}

func (s *ThreadControlStore) List(ctx context.Context, conversationID string, limit int, offset int) ([]core.ThreadControlEntry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: thread control store is not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	var records []*threadControlRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.conversation_id = ?", strings.TrimSpace(conversationID)).
		OrderExpr("?TableAlias.created_at DESC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]core.ThreadControlEntry, 0, len(records))
	for _, record := range records {
		entries = append(entries, threadControlToDomain(record))
	}
	return entries, nil
}

func (s *ThreadControlStore) Latest(ctx context.Context, conversationID string) (core.ThreadControlEntry, bool, error) {
	if s == nil || s.db == nil {
		return core.ThreadControlEntry{}, false, fmt.Errorf("sqlstore: thread control store is not configured")
	}
	record := &threadControlRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.conversation_id = ?", strings.TrimSpace(conversationID)).
		OrderExpr("?TableAlias.created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.ThreadControlEntry{}, false, nil
		}
		return core.ThreadControlEntry{}, false, err
	}
	return threadControlToDomain(record), true, nil
}

func threadControlToDomain(record *threadControlRecord) core.ThreadControlEntry {
	if record == nil {
		return core.ThreadControlEntry{}
	}
	return core.ThreadControlEntry{
		ID:             record.ID,
		ConversationID: record.ConversationID,
		Action:         core.ThreadControlAction(record.Action),
		FromAppID:      record.FromAppID,
		ToAppID:        record.ToAppID,
		ResultingOwner: core.ThreadOwner(record.ResultingOwner),
		Metadata:       record.Metadata,
		CreatedAt:      record.CreatedAt,
	}
}

var _ core.ThreadControlStore = (*ThreadControlStore)(nil)

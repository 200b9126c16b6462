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

// WebhookEventStore is the idempotency ledger. Claim races resolve on the
// event_id uniqueness constraint: the first insert wins and every concurrent
// or later attempt observes claimed=false.
type WebhookEventStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookEventRecord]
	now  func() time.Time
}

func NewWebhookEventStore(db *bun.DB) (*WebhookEventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookEventRecord](db, webhookEventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid webhook event repository wiring: %w", err)
		}
	}
	return &WebhookEventStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *WebhookEventStore) Claim(ctx context.Context, in core.ClaimWebhookEventInput) (core.WebhookEvent, bool, error) {
	if s == nil || s.db == nil {
		return core.WebhookEvent{}, false, fmt.Errorf("sqlstore: webhook event store is not configured")
	}
	eventID := strings.TrimSpace(in.EventID)
	if eventID == "" {
		return core.WebhookEvent{}, false, fmt.Errorf("sqlstore: event id is required")
	}

	now := s.now()
	record := &webhookEventRecord{
		ID:           uuid.NewString(),
		EventID:      eventID,
		EventType:    strings.TrimSpace(in.EventType),
		ConnectionID: strings.TrimSpace(in.ConnectionID),
		PayloadHash:  strings.TrimSpace(in.PayloadHash),
		Status:       string(core.WebhookEventStatusPending),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			existing, getErr := s.Get(ctx, eventID)
			if getErr != nil {
				return core.WebhookEvent{}, false, getErr
			}
			return existing, false, nil
		}
		return core.WebhookEvent{}, false, err
	}
	return webhookEventToDomain(record), true, nil
}

func (s *WebhookEventStore) Finish(ctx context.Context, eventID string, success bool, errMessage string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook event store is not configured")
	}
	event, err := s.Get(ctx, eventID)
	if err != nil {
		return err
	}
	next := core.WebhookEventStatusProcessed
	if !success {
		next = core.WebhookEventStatusFailed
	}
	now := s.now()
	if err := event.TransitionTo(next, now); err != nil {
		return err
	}
	_, err = s.db.NewUpdate().
		Model((*webhookEventRecord)(nil)).
		Set("status = ?", string(event.Status)).
		Set("error = ?", strings.TrimSpace(errMessage)).
		Set("updated_at = ?", now).
		Where("event_id = ?", strings.TrimSpace(eventID)).
		Exec(ctx)
	return err
}

func (s *WebhookEventStore) Get(ctx context.Context, eventID string) (core.WebhookEvent, error) {
	if s == nil || s.db == nil {
		return core.WebhookEvent{}, fmt.Errorf("sqlstore: webhook event store is not configured")
	}
	record := &webhookEventRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.event_id = ?", strings.TrimSpace(eventID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.WebhookEvent{}, fmt.Errorf("sqlstore: webhook event %q: %w", eventID, core.ErrWebhookEventNotFound)
		}
		return core.WebhookEvent{}, err
	}
	return webhookEventToDomain(record), nil
}

func (s *WebhookEventStore) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: webhook event store is not configured")
	}
	event, err := s.Get(ctx, eventID)
	if err != nil {
		if errors.Is(err, core.ErrWebhookEventNotFound) {
			return false, nil
		}
		return false, err
	}
	return event.Status == core.WebhookEventStatusProcessed, nil
}

func (s *WebhookEventStore) SweepStalePending(ctx context.Context, olderThan time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: webhook event store is not configured")
	}
	result, err := s.db.NewUpdate().
		Model((*webhookEventRecord)(nil)).
		Set("status = ?", string(core.WebhookEventStatusFailed)).
		Set("error = ?", "abandoned before completion").
		Set("updated_at = ?", s.now()).
		Where("status = ?", string(core.WebhookEventStatusPending)).
		Where("updated_at < ?", olderThan).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return rowsAffected(result), nil
}

func webhookEventToDomain(record *webhookEventRecord) core.WebhookEvent {
	if record == nil {
		return core.WebhookEvent{}
	}
	return core.WebhookEvent{
		ID:           record.ID,
		EventID:      record.EventID,
		EventType:    record.EventType,
		ConnectionID: record.ConnectionID,
		PayloadHash:  record.PayloadHash,
		Status:       core.WebhookEventStatus(record.Status),
		Error:        record.Error,
		CreatedAt:    record.CreatedAt,
		UpdatedAt:    record.UpdatedAt,
	}
}

var _ core.WebhookEventStore = (*WebhookEventStore)(nil)

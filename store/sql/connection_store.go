package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-channels/core"
)

// ConnectionStore reads platform connection records. Connections are written
// by the OAuth layer; this module only resolves them.
type ConnectionStore struct {
	db   *bun.DB
	repo repository.Repository[*connectionRecord]
}

func NewConnectionStore(db *bun.DB) (*ConnectionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*connectionRecord](db, connectionHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid connection repository wiring: %w", err)
		}
	}
	return &ConnectionStore{db: db, repo: repo}, nil
}

func (s *ConnectionStore) Get(ctx context.Context, id string) (core.Connection, error) {
	if s == nil || s.db == nil {
		return core.Connection{}, fmt.Errorf("sqlstore: connection store is not configured")
	}
	record := &connectionRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Connection{}, fmt.Errorf("sqlstore: connection %q: %w", id, core.ErrConnectionNotFound)
		}
		return core.Connection{}, err
	}
	return connectionToDomain(record), nil
}

func (s *ConnectionStore) FindByAccount(ctx context.Context, platform core.Platform, externalAccountID string) (core.Connection, bool, error) {
	if s == nil || s.db == nil {
		return core.Connection{}, false, fmt.Errorf("sqlstore: connection store is not configured")
	}
	record := &connectionRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.platform = ?", string(platform)).
		Where("?TableAlias.external_account_id = ?", strings.TrimSpace(externalAccountID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Connection{}, false, nil
		}
		return core.Connection{}, false, err
	}
	return connectionToDomain(record), true, nil
}

// MarkWebhookSubscribed records a successful subscription call.
func (s *ConnectionStore) MarkWebhookSubscribed(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: connection store is not configured")
	}
	_, err := s.db.NewUpdate().
		Model((*connectionRecord)(nil)).
		Set("webhook_subscribed = ?", true).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", strings.TrimSpace(id)).
		Exec(ctx)
	return err
}

func connectionToDomain(record *connectionRecord) core.Connection {
	if record == nil {
		return core.Connection{}
	}
	return core.Connection{
		ID:                record.ID,
		OrgID:             record.OrgID,
		Platform:          core.Platform(record.Platform),
		ExternalAccountID: record.ExternalAccountID,
		AppID:             record.AppID,
		Active:            record.Active,
		WebhookSubscribed: record.WebhookSubscribed,
		SecondaryAppIDs:   append([]string(nil), record.SecondaryAppIDs...),
		CreatedAt:         record.CreatedAt,
		UpdatedAt:         record.UpdatedAt,
	}
}

var _ core.ConnectionStore = (*ConnectionStore)(nil)

package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-channels/ratelimit"
)

// RateLimitStore backs the hourly send limiter with a single-row-per-org
// upsert. The conflict branch rolls the window over in SQL so concurrent
// senders never double count or reset each other's windows.
type RateLimitStore struct {
	db *bun.DB
}

func NewRateLimitStore(db *bun.DB) (*RateLimitStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &RateLimitStore{db: db}, nil
}

func (s *RateLimitStore) Increment(ctx context.Context, orgID string, cutoff time.Time, now time.Time) (ratelimit.Window, error) {
	if s == nil || s.db == nil {
		return ratelimit.Window{}, fmt.Errorf("sqlstore: rate limit store is not configured")
	}
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return ratelimit.Window{}, fmt.Errorf("sqlstore: org id is required")
	}

	record := &rateLimitWindowRecord{
		OrgID:       orgID,
		Count:       1,
		WindowStart: now,
		UpdatedAt:   now,
	}
	err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (org_id) DO UPDATE").
		Set("count = CASE WHEN ?TableAlias.window_start > ? THEN ?TableAlias.count + 1 ELSE 1 END", cutoff).
		Set("window_start = CASE WHEN ?TableAlias.window_start > ? THEN ?TableAlias.window_start ELSE EXCLUDED.window_start END", cutoff).
		Set("updated_at = EXCLUDED.updated_at").
		Returning("*").
		Scan(ctx)
	if err != nil {
		return ratelimit.Window{}, err
	}
	return ratelimit.Window{
		OrgID:       record.OrgID,
		Count:       record.Count,
		WindowStart: record.WindowStart,
		UpdatedAt:   record.UpdatedAt,
	}, nil
}

var _ ratelimit.WindowStore = (*RateLimitStore)(nil)

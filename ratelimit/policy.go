// Package ratelimit enforces the per-organization hourly cap on outbound
// Instagram sends.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-channels/core"
)

// Window is one organization's fixed-hour counter.
type Window struct {
	OrgID       string
	Count       int
	WindowStart time.Time
	UpdatedAt   time.Time
}

// WindowStore increments atomically: the rollover decision and the count bump
// happen in one store operation so concurrent sends cannot race past the cap.
type WindowStore interface {
	// Increment bumps the counter for the org, rolling the window over when
	// its start is at or before the cutoff, and returns the post-increment
	// state.
	Increment(ctx context.Context, orgID string, cutoff time.Time, now time.Time) (Window, error)
}

type ExceededError struct {
	OrgID      string
	Limit      int
	Count      int
	RetryAfter time.Duration
}

func (e ExceededError) Error() string {
	return fmt.Sprintf(
		"ratelimit: org %q exceeded %d sends per hour (attempt %d)",
		strings.TrimSpace(e.OrgID), e.Limit, e.Count,
	)
}

// AsExceeded unwraps the typed rejection from an error chain.
func AsExceeded(err error) (ExceededError, bool) {
	var exceeded ExceededError
	if errors.As(err, &exceeded) {
		return exceeded, true
	}
	return ExceededError{}, false
}

func (e ExceededError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{
		"org_id": strings.TrimSpace(e.OrgID),
		"limit":  e.Limit,
		"count":  e.Count,
	}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.ChannelsErrorRateLimited).
		WithMetadata(metadata)
}

// HourlyWindowPolicy admits up to Limit sends per org per fixed window. The
// counter bumps before the platform call, so a rejected attempt still consumed
// nothing: the increment that crossed the cap is the rejected one.
type HourlyWindowPolicy struct {
	Store  WindowStore
	Limit  int
	Window time.Duration
	Now    func() time.Time
}

func NewHourlyWindowPolicy(store WindowStore, limit int, window time.Duration) *HourlyWindowPolicy {
	if limit <= 0 {
		limit = core.DefaultHourlyCap
	}
	if window <= 0 {
		window = core.DefaultRateLimitWindow
	}
	return &HourlyWindowPolicy{
		Store:  store,
		Limit:  limit,
		Window: window,
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

// Allow consumes one slot for the org. The Limit-th send in a window is
// admitted; the next one returns ExceededError with a retry hint pointing at
// the window rollover.
func (p *HourlyWindowPolicy) Allow(ctx context.Context, orgID string) error {
	if p == nil || p.Store == nil {
		return nil
	}
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return fmt.Errorf("ratelimit: org id is required")
	}
	now := p.now()
	window, err := p.Store.Increment(ctx, orgID, now.Add(-p.Window), now)
	if err != nil {
		return fmt.Errorf("ratelimit: increment window: %w", err)
	}
	if window.Count > p.Limit {
		resetAt := window.WindowStart.Add(p.Window)
		retryAfter := resetAt.Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return ExceededError{
			OrgID:      orgID,
			Limit:      p.Limit,
			Count:      window.Count,
			RetryAfter: retryAfter,
		}
	}
	return nil
}

func (p *HourlyWindowPolicy) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

type MemoryWindowStore struct {
	mu    sync.Mutex
	items map[string]Window
}

func NewMemoryWindowStore() *MemoryWindowStore {
	return &MemoryWindowStore{items: map[string]Window{}}
}

func (s *MemoryWindowStore) Increment(_ context.Context, orgID string, cutoff time.Time, now time.Time) (Window, error) {
	if s == nil {
		return Window{}, fmt.Errorf("ratelimit: window store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	window, ok := s.items[orgID]
	if !ok || !window.WindowStart.After(cutoff) {
		window = Window{OrgID: orgID, Count: 0, WindowStart: now}
	}
	window.Count++
	window.UpdatedAt = now
	s.items[orgID] = window
	return window, nil
}

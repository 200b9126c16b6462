package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-channels/core"
)

const conversationCacheKeyPrefix = "go-channels::conversation::v1"

// CachedConversationStore decorates a conversation store with a read-through
// cache keyed by conversation id. The ingest hot path resolves the same
// conversation once per event; the cache keeps those reads off the database.
// Writes invalidate rather than refresh: the next read repopulates the entry.
type CachedConversationStore struct {
	base  core.ConversationStore
	cache repositorycache.CacheService
}

func NewCachedConversationStore(
	base core.ConversationStore,
	cacheService repositorycache.CacheService,
) (*CachedConversationStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base conversation store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: conversation cache service is required")
	}
	return &CachedConversationStore{base: base, cache: cacheService}, nil
}

// ConversationCacheKey returns the deterministic cache key for conversation
// reads: go-channels::conversation::v1::<conversation_id>.
func ConversationCacheKey(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("sqlstore: conversation id is required")
	}
	return conversationCacheKeyPrefix + "::" + url.PathEscape(id), nil
}

func (s *CachedConversationStore) Create(ctx context.Context, in core.CreateConversationInput) (core.Conversation, error) {
	if s == nil || s.base == nil {
		return core.Conversation{}, fmt.Errorf("sqlstore: cached conversation store is not configured")
	}
	return s.base.Create(ctx, in)
}

func (s *CachedConversationStore) Get(ctx context.Context, id string) (core.Conversation, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Conversation{}, fmt.Errorf("sqlstore: cached conversation store is not configured")
	}
	cacheKey, err := ConversationCacheKey(id)
	if err != nil {
		return core.Conversation{}, err
	}
	conversation, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Conversation, error) {
		fetched, fetchErr := s.base.Get(ctx, id)
		if fetchErr != nil {
			return core.Conversation{}, fetchErr
		}
		return cloneConversation(fetched), nil
	})
	if err != nil {
		return core.Conversation{}, err
	}
	return cloneConversation(conversation), nil
}

// FindByParticipant is uncached: participant lookups happen once per event
// before the id is known, and caching a miss would mask concurrent creates.
func (s *CachedConversationStore) FindByParticipant(ctx context.Context, connectionID string, participantID string) (core.Conversation, bool, error) {
	if s == nil || s.base == nil {
		return core.Conversation{}, false, fmt.Errorf("sqlstore: cached conversation store is not configured")
	}
	return s.base.FindByParticipant(ctx, connectionID, participantID)
}

func (s *CachedConversationStore) RecordInbound(ctx context.Context, id string, at time.Time) error {
	if s == nil || s.base == nil {
		return fmt.Errorf("sqlstore: cached conversation store is not configured")
	}
	if err := s.base.RecordInbound(ctx, id, at); err != nil {
		return err
	}
	return s.invalidate(ctx, id)
}

func (s *CachedConversationStore) RecordOutbound(ctx context.Context, id string, at time.Time) error {
	if s == nil || s.base == nil {
		return fmt.Errorf("sqlstore: cached conversation store is not configured")
	}
	if err := s.base.RecordOutbound(ctx, id, at); err != nil {
		return err
	}
	return s.invalidate(ctx, id)
}

func (s *CachedConversationStore) ApplyReadWatermark(ctx context.Context, id string, watermarkMs int64) error {
	if s == nil || s.base == nil {
		return fmt.Errorf("sqlstore: cached conversation store is not configured")
	}
	if err := s.base.ApplyReadWatermark(ctx, id, watermarkMs); err != nil {
		return err
	}
	return s.invalidate(ctx, id)
}

func (s *CachedConversationStore) UpdateProfile(ctx context.Context, id string, name string, avatarURL string) error {
	if s == nil || s.base == nil {
		return fmt.Errorf("sqlstore: cached conversation store is not configured")
	}
	if err := s.base.UpdateProfile(ctx, id, name, avatarURL); err != nil {
		return err
	}
	return s.invalidate(ctx, id)
}

func (s *CachedConversationStore) invalidate(ctx context.Context, id string) error {
	if s.cache == nil {
		return nil
	}
	cacheKey, err := ConversationCacheKey(id)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func cloneConversation(conversation core.Conversation) core.Conversation {
	cloned := conversation
	if conversation.LastMessageAt != nil {
		at := conversation.LastMessageAt.UTC()
		cloned.LastMessageAt = &at
	}
	return cloned
}

var _ core.ConversationStore = (*CachedConversationStore)(nil)

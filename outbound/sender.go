// Package outbound sends messages through the platform client, gated by
// thread ownership and the per-organization send cap.
package outbound

import (
	"context"
	"fmt"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-channels/conversations"
	"github.com/goliatone/go-channels/core"
	"github.com/goliatone/go-channels/ratelimit"
)

// RatePolicy is the send admission gate. Only Instagram sends consult it.
type RatePolicy interface {
	Allow(ctx context.Context, orgID string) error
}

type Sender struct {
	client    core.PlatformClient
	persister *conversations.Persister
	limiter   RatePolicy
	now       func() time.Time
	logger    core.Logger
}

type Config struct {
	Client    core.PlatformClient
	Persister *conversations.Persister
	Limiter   RatePolicy
	Now       func() time.Time
	Logger    core.Logger
}

func NewSender(cfg Config) (*Sender, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("outbound: platform client is required")
	}
	if cfg.Persister == nil {
		return nil, fmt.Errorf("outbound: persister is required")
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Sender{
		client:    cfg.Client,
		persister: cfg.Persister,
		limiter:   cfg.Limiter,
		now:       now,
		logger:    glog.Ensure(cfg.Logger),
	}, nil
}

// Send delivers one message on the conversation's thread. The ownership gate
// runs first: sending on a thread another app owns fails locally without
// touching the platform. Instagram sends then pass the hourly cap. Only a
// platform-acknowledged send is persisted, with the platform's message id as
// the native id.
func (s *Sender) Send(ctx context.Context, conn core.Connection, conversation core.Conversation, msg core.OutboundMessage) (core.Message, error) {
	if s == nil || s.client == nil {
		return core.Message{}, fmt.Errorf("outbound: sender is not configured")
	}
	if !conversation.ThreadOwner.AllowsOutbound() {
		return core.Message{}, fmt.Errorf(
			"outbound: conversation %s owner is %s: %w",
			conversation.ID, conversation.ThreadOwner, core.ErrThreadNotOwned,
		)
	}
	if conn.Platform == core.PlatformInstagram && s.limiter != nil {
		if err := s.limiter.Allow(ctx, conn.OrgID); err != nil {
			if exceeded, ok := ratelimit.AsExceeded(err); ok {
				return core.Message{}, exceeded.ToServiceError()
			}
			return core.Message{}, err
		}
	}

	result, err := s.client.SendMessage(ctx, conn, conversation.ParticipantID, msg)
	if err != nil {
		return core.Message{}, fmt.Errorf("outbound: platform send: %w", err)
	}

	message, err := s.persister.PersistOutbound(ctx, conversation, result.MessageID, msg, s.now().UnixMilli())
	if err != nil {
		// The platform accepted the send; surface the persistence failure but
		// keep the native id so the caller can reconcile.
		s.logger.WithContext(ctx).Error("outbound: persist after send failed",
			"conversation_id", conversation.ID,
			"native_id", result.MessageID,
			"error", err,
		)
		return core.Message{}, err
	}
	return message, nil
}

// Package handover implements the thread-ownership side of the Meta Handover
// Protocol: explicit pass/take/request calls against the platform and the
// application of handover events arriving through webhooks.
package handover

import (
	"context"
	"fmt"
	"strings"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-channels/core"
)

type Service struct {
	conversations core.ConversationStore
	log           core.ThreadControlStore
	client        core.PlatformClient
	selfAppID     func(core.Connection) string
	inboxAppID    string
	logger        core.Logger
}

type Config struct {
	Conversations  core.ConversationStore
	ThreadControl  core.ThreadControlStore
	Client         core.PlatformClient
	PageInboxAppID string
	Logger         core.Logger
}

func NewService(cfg Config) (*Service, error) {
	if cfg.Conversations == nil {
		return nil, fmt.Errorf("handover: conversation store is required")
	}
	if cfg.ThreadControl == nil {
		return nil, fmt.Errorf("handover: thread control store is required")
	}
	return &Service{
		conversations: cfg.Conversations,
		log:           cfg.ThreadControl,
		client:        cfg.Client,
		selfAppID:     func(conn core.Connection) string { return conn.AppID },
		inboxAppID:    strings.TrimSpace(cfg.PageInboxAppID),
		logger:        glog.Ensure(cfg.Logger),
	}, nil
}

// Pass hands the thread to another app. The platform call goes first; the
// local owner and the control log change only after the platform acknowledged
// the transfer.
func (s *Service) Pass(ctx context.Context, conn core.Connection, conversation core.Conversation, targetAppID string, metadata string) (core.ThreadControlEntry, error) {
	if s == nil || s.client == nil {
		return core.ThreadControlEntry{}, fmt.Errorf("handover: platform client is required")
	}
	targetAppID = strings.TrimSpace(targetAppID)
	resultingOwner, err := core.ResolveThreadOwner(targetAppID, s.selfAppID(conn), s.inboxAppID)
	if err != nil {
		return core.ThreadControlEntry{}, err
	}
	if err := s.client.PassThreadControl(ctx, conn, conversation.ParticipantID, targetAppID, metadata); err != nil {
		return core.ThreadControlEntry{}, fmt.Errorf("handover: pass thread control: %w", err)
	}
	return s.append(ctx, conversation, core.AppendThreadControlInput{
		ConversationID: conversation.ID,
		Action:         core.ThreadControlActionPass,
		FromAppID:      conversation.ThreadOwnerAppID,
		ToAppID:        targetAppID,
		ResultingOwner: resultingOwner,
		Metadata:       metadataMap(metadata),
	})
}

// Take reclaims the thread for this app.
func (s *Service) Take(ctx context.Context, conn core.Connection, conversation core.Conversation, metadata string) (core.ThreadControlEntry, error) {
	if s == nil || s.client == nil {
		return core.ThreadControlEntry{}, fmt.Errorf("handover: platform client is required")
	}
	if err := s.client.TakeThreadControl(ctx, conn, conversation.ParticipantID, metadata); err != nil {
		return core.ThreadControlEntry{}, fmt.Errorf("handover: take thread control: %w", err)
	}
	return s.append(ctx, conversation, core.AppendThreadControlInput{
		ConversationID: conversation.ID,
		Action:         core.ThreadControlActionTake,
		FromAppID:      conversation.ThreadOwnerAppID,
		ToAppID:        s.selfAppID(conn),
		ResultingOwner: core.ThreadOwnerApp,
		Metadata:       metadataMap(metadata),
	})
}

// Request asks the current owner for the thread. Ownership does not change
// until the owner passes it; the request itself is still logged.
func (s *Service) Request(ctx context.Context, conn core.Connection, conversation core.Conversation, metadata string) (core.ThreadControlEntry, error) {
	if s == nil || s.client == nil {
		return core.ThreadControlEntry{}, fmt.Errorf("handover: platform client is required")
	}
	if err := s.client.RequestThreadControl(ctx, conn, conversation.ParticipantID, metadata); err != nil {
		return core.ThreadControlEntry{}, fmt.Errorf("handover: request thread control: %w", err)
	}
	return s.append(ctx, conversation, core.AppendThreadControlInput{
		ConversationID: conversation.ID,
		Action:         core.ThreadControlActionRequest,
		FromAppID:      s.selfAppID(conn),
		ToAppID:        conversation.ThreadOwnerAppID,
		ResultingOwner: conversation.ThreadOwner,
		Metadata:       metadataMap(metadata),
	})
}

// ApplyPassEvent records a pass_thread_control webhook notification: the
// platform already executed the transfer, so the local state follows
// unconditionally.
func (s *Service) ApplyPassEvent(ctx context.Context, conn core.Connection, conversation core.Conversation, payload core.HandoverPayload) (core.ThreadControlEntry, error) {
	targetAppID := strings.TrimSpace(payload.TargetAppID)
	resultingOwner, err := core.ResolveThreadOwner(targetAppID, s.selfAppID(conn), s.inboxAppID)
	if err != nil {
		return core.ThreadControlEntry{}, err
	}
	return s.append(ctx, conversation, core.AppendThreadControlInput{
		ConversationID: conversation.ID,
		Action:         core.ThreadControlActionPass,
		FromAppID:      conversation.ThreadOwnerAppID,
		ToAppID:        targetAppID,
		ResultingOwner: resultingOwner,
		Metadata:       metadataMap(payload.Metadata),
	})
}

// ApplyTakeEvent records a take_thread_control notification. The payload
// names only the previous owner; the taker is the connection's configured
// primary receiver, which is the page inbox for standard setups and this app
// itself when the connection's app is configured as primary.
func (s *Service) ApplyTakeEvent(ctx context.Context, conn core.Connection, conversation core.Conversation, payload core.HandoverPayload) (core.ThreadControlEntry, error) {
	resultingOwner := core.ThreadOwnerPageInbox
	toAppID := s.inboxAppID
	if owner, err := core.ResolveThreadOwner(toAppID, s.selfAppID(conn), s.inboxAppID); err == nil {
		resultingOwner = owner
	}
	return s.append(ctx, conversation, core.AppendThreadControlInput{
		ConversationID: conversation.ID,
		Action:         core.ThreadControlActionTake,
		FromAppID:      strings.TrimSpace(payload.PreviousOwnerAppID),
		ToAppID:        toAppID,
		ResultingOwner: resultingOwner,
		Metadata:       metadataMap(payload.Metadata),
	})
}

// ApplyRequestEvent records a request_thread_control notification. Ownership
// is unchanged; the log entry preserves who asked.
func (s *Service) ApplyRequestEvent(ctx context.Context, conversation core.Conversation, payload core.HandoverPayload) (core.ThreadControlEntry, error) {
	return s.append(ctx, conversation, core.AppendThreadControlInput{
		ConversationID: conversation.ID,
		Action:         core.ThreadControlActionRequest,
		FromAppID:      strings.TrimSpace(payload.RequestedByAppID),
		ToAppID:        conversation.ThreadOwnerAppID,
		ResultingOwner: conversation.ThreadOwner,
		Metadata:       metadataMap(payload.Metadata),
	})
}

// SendAllowed reports whether the app may send on the conversation's thread.
func (s *Service) SendAllowed(conversation core.Conversation) bool {
	return conversation.ThreadOwner.AllowsOutbound()
}

func (s *Service) History(ctx context.Context, conversationID string, limit int, offset int) ([]core.ThreadControlEntry, error) {
	if s == nil || s.log == nil {
		return nil, fmt.Errorf("handover: service is not configured")
	}
	return s.log.List(ctx, conversationID, limit, offset)
}

func (s *Service) append(ctx context.Context, conversation core.Conversation, input core.AppendThreadControlInput) (core.ThreadControlEntry, error) {
	entry, err := s.log.Append(ctx, input)
	if err != nil {
		return core.ThreadControlEntry{}, fmt.Errorf("handover: append control log: %w", err)
	}
	s.logger.WithContext(ctx).Info("handover: thread ownership changed",
		"conversation_id", conversation.ID,
		"action", string(input.Action),
		"resulting_owner", string(input.ResultingOwner),
		"to_app_id", input.ToAppID,
	)
	return entry, nil
}

func metadataMap(metadata string) map[string]any {
	metadata = strings.TrimSpace(metadata)
	if metadata == "" {
		return nil
	}
	return map[string]any{"metadata": metadata}
}

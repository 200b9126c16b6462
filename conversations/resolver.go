// Package conversations finds or creates conversation records for inbound
// events and persists normalized messages with their unified mirrors.
package conversations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-channels/core"
)

// Resolver maps (connection, participant) pairs to conversation records,
// creating them on first contact.
type Resolver struct {
	store          core.ConversationStore
	profiles       core.ProfileFetcher
	pageInboxAppID string
	logger         core.Logger
}

func NewResolver(store core.ConversationStore, profiles core.ProfileFetcher, pageInboxAppID string, logger core.Logger) (*Resolver, error) {
	if store == nil {
		return nil, fmt.Errorf("conversations: conversation store is required")
	}
	return &Resolver{
		store:          store,
		profiles:       profiles,
		pageInboxAppID: strings.TrimSpace(pageInboxAppID),
		logger:         glog.Ensure(logger),
	}, nil
}

// Resolve returns the conversation for the participant, creating it when none
// exists. A thread first seen through the standby collection is owned by the
// page inbox, not this app. Profile enrichment is best effort: a fetch failure
// is logged and the conversation is created without display metadata. A
// concurrent create racing on the (connection, participant) uniqueness
// constraint resolves by re-fetching the winner's row.
func (r *Resolver) Resolve(ctx context.Context, conn core.Connection, participantID string, standby bool) (core.Conversation, error) {
	if r == nil || r.store == nil {
		return core.Conversation{}, fmt.Errorf("conversations: resolver is not configured")
	}
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return core.Conversation{}, fmt.Errorf("conversations: participant id is required")
	}

	existing, found, err := r.store.FindByParticipant(ctx, conn.ID, participantID)
	if err != nil {
		return core.Conversation{}, fmt.Errorf("conversations: find by participant: %w", err)
	}
	if found {
		return existing, nil
	}

	input := core.CreateConversationInput{
		ConnectionID:     conn.ID,
		OrgID:            conn.OrgID,
		Platform:         conn.Platform,
		ParticipantID:    participantID,
		ThreadOwner:      core.ThreadOwnerApp,
		ThreadOwnerAppID: conn.AppID,
	}
	if standby {
		input.ThreadOwner = core.ThreadOwnerPageInbox
		input.ThreadOwnerAppID = r.pageInboxAppID
	}
	if r.profiles != nil {
		profile, profileErr := r.profiles.FetchProfile(ctx, conn, participantID)
		if profileErr != nil {
			r.logger.WithContext(ctx).Warn("conversations: profile fetch failed",
				"connection_id", conn.ID,
				"participant_id", participantID,
				"error", profileErr,
			)
		} else {
			input.ParticipantName = profile.Name
			input.ParticipantAvatarURL = profile.AvatarURL
		}
	}

	created, err := r.store.Create(ctx, input)
	if err == nil {
		return created, nil
	}
	if errors.Is(err, core.ErrConversationExists) {
		winner, found, findErr := r.store.FindByParticipant(ctx, conn.ID, participantID)
		if findErr != nil {
			return core.Conversation{}, fmt.Errorf("conversations: refetch after create race: %w", findErr)
		}
		if !found {
			return core.Conversation{}, fmt.Errorf("conversations: conversation vanished after create race")
		}
		return winner, nil
	}
	return core.Conversation{}, fmt.Errorf("conversations: create conversation: %w", err)
}

// RefreshProfile re-fetches and stores the participant's display metadata.
func (r *Resolver) RefreshProfile(ctx context.Context, conn core.Connection, conversation core.Conversation) error {
	if r == nil || r.profiles == nil {
		return nil
	}
	profile, err := r.profiles.FetchProfile(ctx, conn, conversation.ParticipantID)
	if err != nil {
		return fmt.Errorf("conversations: fetch profile: %w", err)
	}
	if err := r.store.UpdateProfile(ctx, conversation.ID, profile.Name, profile.AvatarURL); err != nil {
		return fmt.Errorf("conversations: update profile: %w", err)
	}
	return nil
}

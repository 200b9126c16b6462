// Package instagram normalizes Instagram Direct webhook payloads into the
// canonical event shape. Instagram delivers direct messages through the same
// messaging envelope as Messenger and comment notifications through the
// changes collection.
package instagram

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goliatone/go-channels/core"
	"github.com/goliatone/go-channels/platforms/meta/common"
)

const (
	webhookObject = "instagram"
	commentField  = "comments"
)

type Source struct{}

var _ core.EventSource = (*Source)(nil)

func NewSource() *Source {
	return &Source{}
}

func (s *Source) Platform() core.Platform {
	return core.PlatformInstagram
}

func (s *Source) Normalize(payload []byte) (core.WebhookBatch, error) {
	envelope, err := common.ParseEnvelope(payload)
	if err != nil {
		return core.WebhookBatch{}, err
	}
	if envelope.Object != webhookObject {
		return core.WebhookBatch{}, fmt.Errorf("instagram: unexpected webhook object %q", envelope.Object)
	}

	batch := core.WebhookBatch{
		Platform: core.PlatformInstagram,
		Object:   envelope.Object,
		Entries:  make([]core.WebhookEntry, 0, len(envelope.Entry)),
	}
	for _, entry := range envelope.Entry {
		normalized := core.WebhookEntry{
			AccountID: strings.TrimSpace(entry.ID),
			TimeMs:    entry.Time,
		}
		for _, event := range entry.Messaging {
			canonical, ok, err := common.NormalizeMessagingEvent(event, false)
			if err != nil || !ok {
				// One unrecognized or malformed event never blocks its
				// siblings in the same payload.
				normalized.Skipped++
				continue
			}
			normalized.Events = append(normalized.Events, canonical)
		}
		for _, change := range entry.Changes {
			canonical, ok, err := normalizeChange(entry, change)
			if err != nil {
				normalized.Skipped++
				continue
			}
			if ok {
				normalized.Events = append(normalized.Events, canonical)
			}
		}
		batch.Entries = append(batch.Entries, normalized)
	}
	return batch, nil
}

// normalizeChange handles comment notifications. Other change fields report
// ok=false; malformed comment values are errors the caller counts as skipped.
func normalizeChange(entry common.Entry, change common.Change) (core.CanonicalEvent, bool, error) {
	if strings.TrimSpace(strings.ToLower(change.Field)) != commentField {
		return core.CanonicalEvent{}, false, nil
	}
	var value common.CommentValue
	if err := json.Unmarshal(change.Value, &value); err != nil {
		return core.CanonicalEvent{}, false, fmt.Errorf("instagram: parse comment change: %w", err)
	}
	if strings.TrimSpace(value.ID) == "" {
		return core.CanonicalEvent{}, false, fmt.Errorf("instagram: comment id is required")
	}
	canonical := core.CanonicalEvent{
		EventID:     common.ComposeEventID(string(core.EventKindComment), value.ID),
		Kind:        core.EventKindComment,
		SenderID:    strings.TrimSpace(value.From.ID),
		RecipientID: strings.TrimSpace(entry.ID),
		TimestampMs: entry.Time,
		Comment: &core.CommentPayload{
			CommentID: value.ID,
			MediaID:   value.Media.ID,
			ParentID:  value.ParentID,
			Text:      value.Text,
			Username:  value.From.Username,
		},
	}
	return canonical, true, nil
}

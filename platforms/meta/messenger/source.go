// Package messenger normalizes Facebook Messenger webhook payloads into the
// canonical event shape.
package messenger

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-channels/core"
	"github.com/goliatone/go-channels/platforms/meta/common"
)

const webhookObject = "page"

type Source struct{}

var _ core.EventSource = (*Source)(nil)

func NewSource() *Source {
	return &Source{}
}

func (s *Source) Platform() core.Platform {
	return core.PlatformMessenger
}

// Normalize parses a page webhook payload. Both the messaging and standby
// collections are flattened per entry; standby events carry the marker so the
// pipeline can persist them without acting on threads the app does not own.
func (s *Source) Normalize(payload []byte) (core.WebhookBatch, error) {
	envelope, err := common.ParseEnvelope(payload)
	if err != nil {
		return core.WebhookBatch{}, err
	}
	if envelope.Object != webhookObject {
		return core.WebhookBatch{}, fmt.Errorf("messenger: unexpected webhook object %q", envelope.Object)
	}

	batch := core.WebhookBatch{
		Platform: core.PlatformMessenger,
		Object:   envelope.Object,
		Entries:  make([]core.WebhookEntry, 0, len(envelope.Entry)),
	}
	for _, entry := range envelope.Entry {
		normalized := core.WebhookEntry{
			AccountID: strings.TrimSpace(entry.ID),
			TimeMs:    entry.Time,
		}
		for _, event := range entry.Messaging {
			appendMessagingEvent(&normalized, event, false)
		}
		for _, event := range entry.Standby {
			appendMessagingEvent(&normalized, event, true)
		}
		batch.Entries = append(batch.Entries, normalized)
	}
	return batch, nil
}

// appendMessagingEvent drops events the pipeline cannot normalize instead of
// failing the batch; one bad or unrecognized event never blocks its siblings.
func appendMessagingEvent(entry *core.WebhookEntry, event common.MessagingEvent, standby bool) {
	canonical, ok, err := common.NormalizeMessagingEvent(event, standby)
	if err != nil || !ok {
		entry.Skipped++
		return
	}
	entry.Events = append(entry.Events, canonical)
}

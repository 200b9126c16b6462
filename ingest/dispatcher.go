// Package ingest drives webhook payload processing: signature-verified
// payloads are normalized, claimed in the idempotency ledger, and applied to
// the conversation model one event at a time.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-channels/conversations"
	"github.com/goliatone/go-channels/core"
	"github.com/goliatone/go-channels/handover"
	"github.com/goliatone/go-channels/receipts"
	"github.com/goliatone/go-channels/webhooks"
)

// Result is the aggregate outcome of one webhook payload. Success means no
// event failed; duplicates count separately because a replayed payload is a
// success from the provider's point of view.
type Result struct {
	Platform       core.Platform
	ProcessedCount int
	DuplicateCount int
	SkippedCount   int
	Errors         []error
}

func (r Result) Success() bool {
	return len(r.Errors) == 0
}

type Dispatcher struct {
	sources     map[core.Platform]core.EventSource
	verifiers   map[core.Platform]webhooks.Verifier
	connections core.ConnectionStore
	ledger      core.WebhookEventStore
	resolver    *conversations.Resolver
	persister   *conversations.Persister
	handover    *handover.Service
	receipts    *receipts.Reconciler
	publisher   core.EventPublisher
	metrics     core.MetricsRecorder
	logger      core.Logger
	now         func() time.Time
}

type Config struct {
	Sources     []core.EventSource
	Verifiers   map[core.Platform]webhooks.Verifier
	Connections core.ConnectionStore
	Ledger      core.WebhookEventStore
	Resolver    *conversations.Resolver
	Persister   *conversations.Persister
	Handover    *handover.Service
	Receipts    *receipts.Reconciler
	Publisher   core.EventPublisher
	Metrics     core.MetricsRecorder
	Logger      core.Logger
	Now         func() time.Time
}

func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("ingest: at least one event source is required")
	}
	if cfg.Connections == nil {
		return nil, fmt.Errorf("ingest: connection store is required")
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("ingest: webhook event ledger is required")
	}
	if cfg.Resolver == nil || cfg.Persister == nil {
		return nil, fmt.Errorf("ingest: conversation resolver and persister are required")
	}
	if cfg.Handover == nil {
		return nil, fmt.Errorf("ingest: handover service is required")
	}
	if cfg.Receipts == nil {
		return nil, fmt.Errorf("ingest: receipt reconciler is required")
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	sources := make(map[core.Platform]core.EventSource, len(cfg.Sources))
	for _, source := range cfg.Sources {
		if source == nil {
			continue
		}
		sources[source.Platform()] = source
	}
	return &Dispatcher{
		sources:     sources,
		verifiers:   cfg.Verifiers,
		connections: cfg.Connections,
		ledger:      cfg.Ledger,
		resolver:    cfg.Resolver,
		persister:   cfg.Persister,
		handover:    cfg.Handover,
		receipts:    cfg.Receipts,
		publisher:   cfg.Publisher,
		metrics:     cfg.Metrics,
		logger:      glog.Ensure(cfg.Logger),
		now:         now,
	}, nil
}

// Dispatch verifies, normalizes, and processes one raw webhook payload. Each
// event is isolated: a failing or panicking event records a failed ledger row
// and an aggregate error while its siblings continue. Replayed events are
// deduped by the ledger claim and skipped without error.
func (d *Dispatcher) Dispatch(ctx context.Context, req webhooks.InboundRequest) (Result, error) {
	if d == nil || d.ledger == nil {
		return Result{}, fmt.Errorf("ingest: dispatcher is not configured")
	}

	platform, err := core.ParsePlatform(req.Platform)
	if err != nil {
		return Result{}, err
	}
	source, ok := d.sources[platform]
	if !ok {
		return Result{}, fmt.Errorf("ingest: no event source for platform %q", platform)
	}
	if verifier, ok := d.verifiers[platform]; ok && verifier != nil {
		if err := verifier.Verify(ctx, req); err != nil {
			return Result{}, err
		}
	}

	batch, err := source.Normalize(req.Body)
	if err != nil {
		return Result{}, err
	}

	result := Result{Platform: batch.Platform}
	payloadHash := hashPayload(req.Body)
	for _, entry := range batch.Entries {
		result.SkippedCount += entry.Skipped
		conn, found, err := d.connections.FindByAccount(ctx, batch.Platform, entry.AccountID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("ingest: resolve connection for account %s: %w", entry.AccountID, err))
			continue
		}
		if !found || !conn.Active {
			// Webhooks for accounts we no longer track are acknowledged and
			// dropped; failing them would make the provider retry forever.
			result.SkippedCount += len(entry.Events)
			d.logger.WithContext(ctx).Debug("ingest: skipping entry for unknown or inactive account",
				"platform", string(batch.Platform),
				"account_id", entry.AccountID,
			)
			continue
		}
		for _, event := range entry.Events {
			d.dispatchEvent(ctx, conn, batch.Platform, event, payloadHash, &result)
		}
	}

	d.recordBatchMetrics(ctx, result)
	if !result.Success() {
		return result, fmt.Errorf("ingest: %d of %d events failed", len(result.Errors), result.ProcessedCount+len(result.Errors))
	}
	return result, nil
}

func (d *Dispatcher) dispatchEvent(ctx context.Context, conn core.Connection, platform core.Platform, event core.CanonicalEvent, payloadHash string, result *Result) {
	eventID := ledgerEventID(platform, event.EventID)
	if strings.TrimSpace(event.EventID) == "" {
		result.Errors = append(result.Errors, fmt.Errorf("ingest: event without id on connection %s", conn.ID))
		return
	}

	record, claimed, err := d.ledger.Claim(ctx, core.ClaimWebhookEventInput{
		EventID:      eventID,
		EventType:    string(event.Kind),
		ConnectionID: conn.ID,
		PayloadHash:  payloadHash,
	})
	if err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("ingest: claim event %s: %w", eventID, err))
		return
	}
	if !claimed {
		result.DuplicateCount++
		d.logger.WithContext(ctx).Debug("ingest: replayed event skipped",
			"event_id", eventID,
			"status", string(record.Status),
		)
		return
	}

	if err := d.processEvent(ctx, conn, event); err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("ingest: event %s: %w", eventID, err))
		if finishErr := d.ledger.Finish(ctx, eventID, false, err.Error()); finishErr != nil {
			result.Errors = append(result.Errors, fmt.Errorf("ingest: mark event %s failed: %w", eventID, finishErr))
		}
		return
	}
	if err := d.ledger.Finish(ctx, eventID, true, ""); err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("ingest: mark event %s processed: %w", eventID, err))
		return
	}
	result.ProcessedCount++
}

// processEvent applies one claimed event. Panics are contained here so a
// malformed event cannot take down its siblings.
func (d *Dispatcher) processEvent(ctx context.Context, conn core.Connection, event core.CanonicalEvent) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("ingest: panic processing %s event: %v", event.Kind, recovered)
		}
	}()

	switch event.Kind {
	case core.EventKindMessage:
		return d.applyMessage(ctx, conn, event)
	case core.EventKindEcho, core.EventKindMessageDeleted:
		// Echoes are already persisted by the outbound path and deletions keep
		// history intact: both are ledgered with no message row.
		return nil
	case core.EventKindDelivery:
		conversation, err := d.resolver.Resolve(ctx, conn, event.SenderID, event.Standby)
		if err != nil {
			return err
		}
		_, err = d.receipts.ApplyDelivery(ctx, conversation, *event.Delivery)
		return err
	case core.EventKindRead:
		conversation, err := d.resolver.Resolve(ctx, conn, event.SenderID, event.Standby)
		if err != nil {
			return err
		}
		_, err = d.receipts.ApplyRead(ctx, conversation, *event.Read)
		return err
	case core.EventKindPostback, core.EventKindReferral:
		return d.applyMessage(ctx, conn, event)
	case core.EventKindPassThreadControl:
		conversation, err := d.resolveHandoverConversation(ctx, conn, event)
		if err != nil {
			return err
		}
		_, err = d.handover.ApplyPassEvent(ctx, conn, conversation, *event.Handover)
		return err
	case core.EventKindTakeThreadControl:
		conversation, err := d.resolveHandoverConversation(ctx, conn, event)
		if err != nil {
			return err
		}
		_, err = d.handover.ApplyTakeEvent(ctx, conn, conversation, *event.Handover)
		return err
	case core.EventKindRequestThreadControl:
		conversation, err := d.resolveHandoverConversation(ctx, conn, event)
		if err != nil {
			return err
		}
		_, err = d.handover.ApplyRequestEvent(ctx, conversation, *event.Handover)
		return err
	case core.EventKindComment:
		return d.publishComment(ctx, conn, event)
	default:
		return fmt.Errorf("unsupported event kind %q", event.Kind)
	}
}

func (d *Dispatcher) applyMessage(ctx context.Context, conn core.Connection, event core.CanonicalEvent) error {
	conversation, err := d.resolver.Resolve(ctx, conn, event.SenderID, event.Standby)
	if err != nil {
		return err
	}
	message, created, err := d.persister.PersistInbound(ctx, conversation, event)
	if err != nil {
		return err
	}
	if created {
		d.publishObserved(ctx, conn, conversation, message, event)
	}
	return nil
}

// Handover notifications name the thread by the user participant: the sender
// is the user on pass events delivered to the new owner, the recipient on
// notifications about this page's threads. Resolve whichever side is not the
// page account.
func (d *Dispatcher) resolveHandoverConversation(ctx context.Context, conn core.Connection, event core.CanonicalEvent) (core.Conversation, error) {
	participantID := event.SenderID
	if participantID == "" || participantID == conn.ExternalAccountID {
		participantID = event.RecipientID
	}
	return d.resolver.Resolve(ctx, conn, participantID, event.Standby)
}

func (d *Dispatcher) publishObserved(ctx context.Context, conn core.Connection, conversation core.Conversation, message core.Message, event core.CanonicalEvent) {
	if d.publisher == nil {
		return
	}
	preview := message.Text
	if preview == "" {
		preview = core.BracketedContent(message.Kind)
	}
	observed := core.ObservedMessage{
		OrgID:          conn.OrgID,
		Platform:       conn.Platform,
		ConnectionID:   conn.ID,
		ConversationID: conversation.ID,
		MessageID:      message.ID,
		NativeID:       message.NativeID,
		Direction:      message.Direction,
		Kind:           message.Kind,
		TextPreview:    preview,
		MediaURL:       message.MediaURL,
		TimestampMs:    event.TimestampMs,
		Standby:        event.Standby,
	}
	if err := d.publisher.PublishObservedMessage(ctx, observed); err != nil {
		// Persistence is the guarantee; the fan-out retries downstream.
		d.logger.WithContext(ctx).Warn("ingest: publish observed message failed",
			"message_id", message.ID,
			"error", err,
		)
	}
}

func (d *Dispatcher) publishComment(ctx context.Context, conn core.Connection, event core.CanonicalEvent) error {
	if event.Comment == nil {
		return fmt.Errorf("comment event without comment payload")
	}
	if d.publisher == nil {
		return nil
	}
	comment := core.CommentEvent{
		OrgID:        conn.OrgID,
		Platform:     conn.Platform,
		ConnectionID: conn.ID,
		CommentID:    event.Comment.CommentID,
		MediaID:      event.Comment.MediaID,
		ParentID:     event.Comment.ParentID,
		AuthorID:     event.SenderID,
		Username:     event.Comment.Username,
		Text:         event.Comment.Text,
		TimestampMs:  event.TimestampMs,
	}
	if err := d.publisher.PublishComment(ctx, comment); err != nil {
		d.logger.WithContext(ctx).Warn("ingest: publish comment failed",
			"comment_id", comment.CommentID,
			"error", err,
		)
	}
	return nil
}

func (d *Dispatcher) recordBatchMetrics(ctx context.Context, result Result) {
	if d.metrics == nil {
		return
	}
	tags := map[string]string{"platform": string(result.Platform)}
	d.metrics.IncCounter(ctx, "channels.ingest.events_processed", int64(result.ProcessedCount), tags)
	d.metrics.IncCounter(ctx, "channels.ingest.events_deduped", int64(result.DuplicateCount), tags)
	d.metrics.IncCounter(ctx, "channels.ingest.events_failed", int64(len(result.Errors)), tags)
}

func ledgerEventID(platform core.Platform, eventID string) string {
	return string(platform) + ":" + strings.TrimSpace(eventID)
}

func hashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-channels/conversations"
	"github.com/goliatone/go-channels/core"
	"github.com/goliatone/go-channels/handover"
	"github.com/goliatone/go-channels/platforms/meta/instagram"
	"github.com/goliatone/go-channels/platforms/meta/messenger"
	"github.com/goliatone/go-channels/receipts"
	"github.com/goliatone/go-channels/webhooks"
)

type memoryLedger struct {
	mu      sync.Mutex
	records map[string]core.WebhookEvent
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{records: map[string]core.WebhookEvent{}}
}

func (l *memoryLedger) Claim(_ context.Context, in core.ClaimWebhookEventInput) (core.WebhookEvent, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.records[in.EventID]; ok {
		return existing, false, nil
	}
	record := core.WebhookEvent{
		ID:           fmt.Sprintf("we-%d", len(l.records)+1),
		EventID:      in.EventID,
		EventType:    in.EventType,
		ConnectionID: in.ConnectionID,
		PayloadHash:  in.PayloadHash,
		Status:       core.WebhookEventStatusPending,
	}
	l.records[in.EventID] = record
	return record, true, nil
}

func (l *memoryLedger) Finish(_ context.Context, eventID string, success bool, errMessage string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[eventID]
	if !ok {
		return core.ErrWebhookEventNotFound
	}
	status := core.WebhookEventStatusProcessed
	if !success {
		status = core.WebhookEventStatusFailed
	}
	if err := record.TransitionTo(status, time.Now().UTC()); err != nil {
		return err
	}
	record.Error = errMessage
	l.records[eventID] = record
	return nil
}

func (l *memoryLedger) Get(_ context.Context, eventID string) (core.WebhookEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[eventID]
	if !ok {
		return core.WebhookEvent{}, core.ErrWebhookEventNotFound
	}
	return record, nil
}

func (l *memoryLedger) IsProcessed(_ context.Context, eventID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[eventID]
	return ok && record.Status == core.WebhookEventStatusProcessed, nil
}

func (l *memoryLedger) SweepStalePending(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}

func (l *memoryLedger) statusOf(eventID string) core.WebhookEventStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.records[eventID].Status
}

type memoryConnections struct {
	byAccount map[string]core.Connection
}

func (s *memoryConnections) Get(_ context.Context, id string) (core.Connection, error) {
	for _, conn := range s.byAccount {
		if conn.ID == id {
			return conn, nil
		}
	}
	return core.Connection{}, core.ErrConnectionNotFound
}

func (s *memoryConnections) FindByAccount(_ context.Context, platform core.Platform, externalAccountID string) (core.Connection, bool, error) {
	conn, ok := s.byAccount[string(platform)+"/"+externalAccountID]
	return conn, ok, nil
}

type memoryConversations struct {
	mu      sync.Mutex
	rows    map[string]core.Conversation
	inbound int
	readWMs []int64
}

func newMemoryConversations() *memoryConversations {
	return &memoryConversations{rows: map[string]core.Conversation{}}
}

func (s *memoryConversations) Create(_ context.Context, in core.CreateConversationInput) (core.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := in.ConnectionID + "/" + in.ParticipantID
	if _, ok := s.rows[key]; ok {
		return core.Conversation{}, fmt.Errorf("memory: %w", core.ErrConversationExists)
	}
	conversation := core.Conversation{
		ID:               fmt.Sprintf("conv-%d", len(s.rows)+1),
		ConnectionID:     in.ConnectionID,
		Platform:         in.Platform,
		ParticipantID:    in.ParticipantID,
		ThreadOwner:      in.ThreadOwner,
		ThreadOwnerAppID: in.ThreadOwnerAppID,
	}
	s.rows[key] = conversation
	return conversation, nil
}

func (s *memoryConversations) Get(_ context.Context, id string) (core.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conversation := range s.rows {
		if conversation.ID == id {
			return conversation, nil
		}
	}
	return core.Conversation{}, core.ErrConversationNotFound
}

func (s *memoryConversations) FindByParticipant(_ context.Context, connectionID string, participantID string) (core.Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conversation, ok := s.rows[connectionID+"/"+participantID]
	return conversation, ok, nil
}

func (s *memoryConversations) RecordInbound(_ context.Context, _ string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inbound++
	return nil
}

func (s *memoryConversations) RecordOutbound(_ context.Context, _ string, _ time.Time) error {
	return nil
}

func (s *memoryConversations) ApplyReadWatermark(_ context.Context, id string, watermarkMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readWMs = append(s.readWMs, watermarkMs)
	for key, conversation := range s.rows {
		if conversation.ID == id && watermarkMs > conversation.LastReadWatermarkMs {
			conversation.LastReadWatermarkMs = watermarkMs
			conversation.UnreadCount = 0
			s.rows[key] = conversation
		}
	}
	return nil
}

func (s *memoryConversations) UpdateProfile(_ context.Context, _ string, _ string, _ string) error {
	return nil
}

type memoryMessages struct {
	mu         sync.Mutex
	rows       map[string]core.Message
	failNative string
	delivered  []string
}

func newMemoryMessages() *memoryMessages {
	return &memoryMessages{rows: map[string]core.Message{}}
}

func (s *memoryMessages) Persist(_ context.Context, in core.PersistMessageInput) (core.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNative != "" && in.NativeID == s.failNative {
		return core.Message{}, false, fmt.Errorf("memory: storage unavailable")
	}
	key := in.ConversationID + "/" + in.NativeID
	if existing, ok := s.rows[key]; ok {
		return existing, false, nil
	}
	message := core.Message{
		ID:             fmt.Sprintf("msg-%d", len(s.rows)+1),
		ConversationID: in.ConversationID,
		NativeID:       in.NativeID,
		Direction:      in.Direction,
		Kind:           in.Kind,
		Text:           in.Text,
		Status:         in.Status,
	}
	s.rows[key] = message
	return message, true, nil
}

func (s *memoryMessages) Get(_ context.Context, _ string) (core.Message, error) {
	return core.Message{}, core.ErrMessageNotFound
}

func (s *memoryMessages) GetByNativeID(_ context.Context, _ string, _ string) (core.Message, error) {
	return core.Message{}, core.ErrMessageNotFound
}

func (s *memoryMessages) ListByConversation(_ context.Context, _ string, _ int, _ int) ([]core.Message, error) {
	return nil, nil
}

func (s *memoryMessages) MarkDelivered(_ context.Context, _ string, nativeIDs []string, _ time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = append(s.delivered, nativeIDs...)
	return len(nativeIDs), nil
}

func (s *memoryMessages) MarkReadThrough(_ context.Context, _ string, _ int64, _ time.Time) (int, error) {
	return 0, nil
}

func (s *memoryMessages) MarkFailed(_ context.Context, _ string, _ string, _ time.Time) error {
	return nil
}

type memoryThreadControl struct {
	entries []core.ThreadControlEntry
}

func (s *memoryThreadControl) Append(_ context.Context, in core.AppendThreadControlInput) (core.ThreadControlEntry, error) {
	entry := core.ThreadControlEntry{
		ID:             fmt.Sprintf("tc-%d", len(s.entries)+1),
		ConversationID: in.ConversationID,
		Action:         in.Action,
		FromAppID:      in.FromAppID,
		ToAppID:        in.ToAppID,
		ResultingOwner: in.ResultingOwner,
	}
	s.entries = append(s.entries, entry)
	return entry, nil
}

func (s *memoryThreadControl) List(_ context.Context, _ string, _ int, _ int) ([]core.ThreadControlEntry, error) {
	return s.entries, nil
}

func (s *memoryThreadControl) Latest(_ context.Context, _ string) (core.ThreadControlEntry, bool, error) {
	if len(s.entries) == 0 {
		return core.ThreadControlEntry{}, false, nil
	}
	return s.entries[len(s.entries)-1], true, nil
}

type recordingPublisher struct {
	observed []core.ObservedMessage
	comments []core.CommentEvent
}

func (p *recordingPublisher) PublishObservedMessage(_ context.Context, msg core.ObservedMessage) error {
	p.observed = append(p.observed, msg)
	return nil
}

func (p *recordingPublisher) PublishComment(_ context.Context, event core.CommentEvent) error {
	p.comments = append(p.comments, event)
	return nil
}

type testHarness struct {
	dispatcher    *Dispatcher
	ledger        *memoryLedger
	conversations *memoryConversations
	messages      *memoryMessages
	threadControl *memoryThreadControl
	publisher     *recordingPublisher
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	ledger := newMemoryLedger()
	convStore := newMemoryConversations()
	msgStore := newMemoryMessages()
	threadControl := &memoryThreadControl{}
	publisher := &recordingPublisher{}

	connections := &memoryConnections{byAccount: map[string]core.Connection{
		"messenger/page-1": {
			ID: "conn-1", OrgID: "org-1", Platform: core.PlatformMessenger,
			ExternalAccountID: "page-1", AppID: "self-app", Active: true,
		},
		"instagram/ig-account-1": {
			ID: "conn-2", OrgID: "org-1", Platform: core.PlatformInstagram,
			ExternalAccountID: "ig-account-1", AppID: "self-app", Active: true,
		},
	}}

	resolver, err := conversations.NewResolver(convStore, nil, "inbox-app", nil)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	persister, err := conversations.NewPersister(msgStore, convStore, nil)
	if err != nil {
		t.Fatalf("new persister: %v", err)
	}
	handoverService, err := handover.NewService(handover.Config{
		Conversations:  convStore,
		ThreadControl:  threadControl,
		PageInboxAppID: "inbox-app",
	})
	if err != nil {
		t.Fatalf("new handover service: %v", err)
	}
	reconciler, err := receipts.NewReconciler(msgStore, convStore, nil, nil)
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}

	dispatcher, err := NewDispatcher(Config{
		Sources:     []core.EventSource{messenger.NewSource(), instagram.NewSource()},
		Connections: connections,
		Ledger:      ledger,
		Resolver:    resolver,
		Persister:   persister,
		Handover:    handoverService,
		Receipts:    reconciler,
		Publisher:   publisher,
	})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	return &testHarness{
		dispatcher:    dispatcher,
		ledger:        ledger,
		conversations: convStore,
		messages:      msgStore,
		threadControl: threadControl,
		publisher:     publisher,
	}
}

func messengerRequest(body string) webhooks.InboundRequest {
	return webhooks.InboundRequest{Platform: "messenger", Body: []byte(body)}
}

const singleMessagePayload = `{
	"object": "page",
	"entry": [{
		"id": "page-1",
		"time": 1700000000000,
		"messaging": [{
			"sender": {"id": "user-1"},
			"recipient": {"id": "page-1"},
			"timestamp": 1700000000123,
			"message": {"mid": "mid.once", "text": "hello"}
		}]
	}]
}`

func TestDispatchPersistsAndPublishes(t *testing.T) {
	h := newHarness(t)

	result, err := h.dispatcher.Dispatch(context.Background(), messengerRequest(singleMessagePayload))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !result.Success() || result.ProcessedCount != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(h.messages.rows) != 1 {
		t.Fatalf("expected one message row, got %d", len(h.messages.rows))
	}
	if h.conversations.inbound != 1 {
		t.Fatalf("expected unread bump, got %d", h.conversations.inbound)
	}
	if len(h.publisher.observed) != 1 || h.publisher.observed[0].NativeID != "mid.once" {
		t.Fatalf("expected observed publication, got %+v", h.publisher.observed)
	}
	if h.ledger.statusOf("messenger:mid.once") != core.WebhookEventStatusProcessed {
		t.Fatal("ledger row should be processed")
	}
}

func TestDispatchReplayIsIdempotent(t *testing.T) {
	h := newHarness(t)

	if _, err := h.dispatcher.Dispatch(context.Background(), messengerRequest(singleMessagePayload)); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	result, err := h.dispatcher.Dispatch(context.Background(), messengerRequest(singleMessagePayload))
	if err != nil {
		t.Fatalf("replay dispatch must succeed: %v", err)
	}
	if result.ProcessedCount != 0 || result.DuplicateCount != 1 {
		t.Fatalf("expected pure dedup, got %+v", result)
	}
	if len(h.messages.rows) != 1 {
		t.Fatalf("replay must not add rows, got %d", len(h.messages.rows))
	}
	if h.conversations.inbound != 1 {
		t.Fatalf("replay must not bump counters, got %d", h.conversations.inbound)
	}
}

func TestDispatchIsolatesFailingEvent(t *testing.T) {
	h := newHarness(t)
	h.messages.failNative = "mid.broken"

	payload := `{
		"object": "page",
		"entry": [{
			"id": "page-1",
			"time": 1,
			"messaging": [{
				"sender": {"id": "user-1"},
				"recipient": {"id": "page-1"},
				"timestamp": 1,
				"message": {"mid": "mid.ok.1", "text": "first"}
			}]
		}, {
			"id": "page-1",
			"time": 2,
			"messaging": [{
				"sender": {"id": "user-2"},
				"recipient": {"id": "page-1"},
				"timestamp": 2,
				"message": {"mid": "mid.broken", "text": "second"}
			}]
		}, {
			"id": "page-1",
			"time": 3,
			"messaging": [{
				"sender": {"id": "user-3"},
				"recipient": {"id": "page-1"},
				"timestamp": 3,
				"message": {"mid": "mid.ok.2", "text": "third"}
			}]
		}]
	}`

	result, err := h.dispatcher.Dispatch(context.Background(), messengerRequest(payload))
	if err == nil {
		t.Fatal("expected aggregate error")
	}
	if result.ProcessedCount != 2 {
		t.Fatalf("siblings must continue, got %d processed", result.ProcessedCount)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected exactly one error, got %v", result.Errors)
	}
	if h.ledger.statusOf("messenger:mid.broken") != core.WebhookEventStatusFailed {
		t.Fatal("failing event must land in failed status")
	}
	if h.ledger.statusOf("messenger:mid.ok.1") != core.WebhookEventStatusProcessed {
		t.Fatal("sibling event must still process")
	}
}

func TestDispatchProcessesSiblingsOfUnrecognizedEvents(t *testing.T) {
	h := newHarness(t)

	payload := `{
		"object": "page",
		"entry": [{
			"id": "page-1",
			"time": 1,
			"messaging": [{
				"sender": {"id": "user-1"},
				"recipient": {"id": "page-1"},
				"timestamp": 1,
				"message": {"mid": "mid.keep", "text": "hello"}
			}, {
				"sender": {"id": "user-1"},
				"recipient": {"id": "page-1"},
				"timestamp": 2,
				"reaction": {"mid": "mid.keep", "action": "react", "emoji": "❤"}
			}]
		}]
	}`

	result, err := h.dispatcher.Dispatch(context.Background(), messengerRequest(payload))
	if err != nil {
		t.Fatalf("an unrecognized event must not fail the payload: %v", err)
	}
	if result.ProcessedCount != 1 || result.SkippedCount != 1 {
		t.Fatalf("expected the valid sibling processed and the reaction skipped, got %+v", result)
	}
	if h.ledger.statusOf("messenger:mid.keep") != core.WebhookEventStatusProcessed {
		t.Fatal("valid sibling must be ledgered as processed")
	}
	if len(h.messages.rows) != 1 {
		t.Fatalf("expected one message row, got %d", len(h.messages.rows))
	}
}

func TestDispatchEchoAndDeletedLeaveNoMessageRows(t *testing.T) {
	h := newHarness(t)

	payload := `{
		"object": "page",
		"entry": [{
			"id": "page-1",
			"time": 1,
			"messaging": [{
				"sender": {"id": "page-1"},
				"recipient": {"id": "user-1"},
				"timestamp": 1,
				"message": {"mid": "mid.echo", "text": "auto", "is_echo": true}
			}, {
				"sender": {"id": "user-1"},
				"recipient": {"id": "page-1"},
				"timestamp": 2,
				"message": {"mid": "mid.gone", "is_deleted": true}
			}]
		}]
	}`

	result, err := h.dispatcher.Dispatch(context.Background(), messengerRequest(payload))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result.ProcessedCount != 2 {
		t.Fatalf("both events should be processed, got %+v", result)
	}
	if len(h.messages.rows) != 0 {
		t.Fatalf("echo and deleted events must not create message rows, got %d", len(h.messages.rows))
	}
	if h.ledger.statusOf("messenger:mid.echo") != core.WebhookEventStatusProcessed {
		t.Fatal("echo must be ledgered as processed")
	}
}

func TestDispatchReceipts(t *testing.T) {
	h := newHarness(t)

	// Seed an existing conversation through an inbound message.
	if _, err := h.dispatcher.Dispatch(context.Background(), messengerRequest(singleMessagePayload)); err != nil {
		t.Fatalf("seed dispatch: %v", err)
	}

	payload := `{
		"object": "page",
		"entry": [{
			"id": "page-1",
			"time": 1,
			"messaging": [{
				"sender": {"id": "user-1"},
				"recipient": {"id": "page-1"},
				"timestamp": 1,
				"delivery": {"mids": ["mid.out.1"], "watermark": 1700000001000}
			}, {
				"sender": {"id": "user-1"},
				"recipient": {"id": "page-1"},
				"timestamp": 2,
				"read": {"watermark": 1700000002000}
			}]
		}]
	}`

	result, err := h.dispatcher.Dispatch(context.Background(), messengerRequest(payload))
	if err != nil {
		t.Fatalf("dispatch receipts: %v", err)
	}
	if result.ProcessedCount != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(h.messages.delivered) != 1 || h.messages.delivered[0] != "mid.out.1" {
		t.Fatalf("expected delivery mark, got %v", h.messages.delivered)
	}
	if len(h.conversations.readWMs) != 1 || h.conversations.readWMs[0] != 1700000002000 {
		t.Fatalf("expected read watermark applied, got %v", h.conversations.readWMs)
	}
}

func TestDispatchHandoverEvent(t *testing.T) {
	h := newHarness(t)

	payload := `{
		"object": "page",
		"entry": [{
			"id": "page-1",
			"time": 1,
			"messaging": [{
				"sender": {"id": "user-1"},
				"recipient": {"id": "page-1"},
				"timestamp": 5,
				"pass_thread_control": {"new_owner_app_id": "self-app", "metadata": "back to bot"}
			}]
		}]
	}`

	result, err := h.dispatcher.Dispatch(context.Background(), messengerRequest(payload))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result.ProcessedCount != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(h.threadControl.entries) != 1 {
		t.Fatalf("expected control log entry, got %d", len(h.threadControl.entries))
	}
	if h.threadControl.entries[0].ResultingOwner != core.ThreadOwnerApp {
		t.Fatalf("expected app owner, got %s", h.threadControl.entries[0].ResultingOwner)
	}
}

func TestDispatchStandbyCreatesInboxOwnedThread(t *testing.T) {
	h := newHarness(t)

	payload := `{
		"object": "page",
		"entry": [{
			"id": "page-1",
			"time": 1,
			"standby": [{
				"sender": {"id": "user-standby"},
				"recipient": {"id": "page-1"},
				"timestamp": 1,
				"message": {"mid": "mid.standby", "text": "handled by inbox"}
			}]
		}]
	}`

	if _, err := h.dispatcher.Dispatch(context.Background(), messengerRequest(payload)); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	conversation, found, err := h.conversations.FindByParticipant(context.Background(), "conn-1", "user-standby")
	if err != nil || !found {
		t.Fatalf("expected conversation, found=%v err=%v", found, err)
	}
	if conversation.ThreadOwner != core.ThreadOwnerPageInbox {
		t.Fatalf("standby thread must start inbox-owned, got %s", conversation.ThreadOwner)
	}
	if len(h.publisher.observed) != 1 || !h.publisher.observed[0].Standby {
		t.Fatalf("expected standby-tagged publication, got %+v", h.publisher.observed)
	}
}

func TestDispatchInstagramComment(t *testing.T) {
	h := newHarness(t)

	payload := `{
		"object": "instagram",
		"entry": [{
			"id": "ig-account-1",
			"time": 1700000000000,
			"changes": [{
				"field": "comments",
				"value": {
					"id": "comment-9",
					"text": "nice",
					"from": {"id": "ig-user-2", "username": "commenter"},
					"media": {"id": "media-3"}
				}
			}]
		}]
	}`

	result, err := h.dispatcher.Dispatch(context.Background(), webhooks.InboundRequest{Platform: "instagram", Body: []byte(payload)})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result.ProcessedCount != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(h.publisher.comments) != 1 || h.publisher.comments[0].CommentID != "comment-9" {
		t.Fatalf("expected comment publication, got %+v", h.publisher.comments)
	}
	if len(h.messages.rows) != 0 {
		t.Fatal("comments must not create message rows")
	}
}

func TestDispatchUnknownAccountIsSkipped(t *testing.T) {
	h := newHarness(t)

	payload := strings.Replace(singleMessagePayload, "page-1", "page-unknown", -1)
	result, err := h.dispatcher.Dispatch(context.Background(), messengerRequest(payload))
	if err != nil {
		t.Fatalf("unknown account must not fail the payload: %v", err)
	}
	if result.SkippedCount != 1 || result.ProcessedCount != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestDispatchSignatureGate(t *testing.T) {
	ledger := newMemoryLedger()
	convStore := newMemoryConversations()
	msgStore := newMemoryMessages()
	resolver, _ := conversations.NewResolver(convStore, nil, "inbox-app", nil)
	persister, _ := conversations.NewPersister(msgStore, convStore, nil)
	handoverService, _ := handover.NewService(handover.Config{
		Conversations: convStore,
		ThreadControl: &memoryThreadControl{},
	})
	reconciler, _ := receipts.NewReconciler(msgStore, convStore, nil, nil)

	dispatcher, err := NewDispatcher(Config{
		Sources: []core.EventSource{messenger.NewSource()},
		Verifiers: map[core.Platform]webhooks.Verifier{
			core.PlatformMessenger: webhooks.SignatureVerifier{Secret: "app-secret"},
		},
		Connections: &memoryConnections{byAccount: map[string]core.Connection{}},
		Ledger:      ledger,
		Resolver:    resolver,
		Persister:   persister,
		Handover:    handoverService,
		Receipts:    reconciler,
	})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	_, err = dispatcher.Dispatch(context.Background(), webhooks.InboundRequest{
		Platform: "messenger",
		Headers:  map[string]string{"X-Hub-Signature-256": "sha256=deadbeef"},
		Body:     []byte(singleMessagePayload),
	})
	if err == nil {
		t.Fatal("expected signature rejection")
	}
	if len(ledger.records) != 0 {
		t.Fatal("rejected payload must not claim ledger rows")
	}
}

package command

import (
	"context"
	"testing"

	gocmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-channels/core"
	"github.com/goliatone/go-channels/ingest"
	"github.com/goliatone/go-channels/webhooks"
)

type stubWebhookService struct {
	processFn func(ctx context.Context, req webhooks.InboundRequest) (ingest.Result, error)
}

func (s stubWebhookService) ProcessWebhook(ctx context.Context, req webhooks.InboundRequest) (ingest.Result, error) {
	return s.processFn(ctx, req)
}

type stubMessagingService struct {
	sendFn      func(ctx context.Context, connectionID string, conversationID string, msg core.OutboundMessage) (core.Message, error)
	subscribeFn func(ctx context.Context, connectionID string) error
}

func (s stubMessagingService) SendMessage(ctx context.Context, connectionID string, conversationID string, msg core.OutboundMessage) (core.Message, error) {
	return s.sendFn(ctx, connectionID, conversationID, msg)
}

func (s stubMessagingService) SubscribeWebhooks(ctx context.Context, connectionID string) error {
	return s.subscribeFn(ctx, connectionID)
}

type stubThreadControlService struct {
	passFn    func(ctx context.Context, connectionID string, conversationID string, targetAppID string, metadata string) (core.ThreadControlEntry, error)
	takeFn    func(ctx context.Context, connectionID string, conversationID string, metadata string) (core.ThreadControlEntry, error)
	requestFn func(ctx context.Context, connectionID string, conversationID string, metadata string) (core.ThreadControlEntry, error)
}

func (s stubThreadControlService) PassThreadControl(ctx context.Context, connectionID string, conversationID string, targetAppID string, metadata string) (core.ThreadControlEntry, error) {
	return s.passFn(ctx, connectionID, conversationID, targetAppID, metadata)
}

func (s stubThreadControlService) TakeThreadControl(ctx context.Context, connectionID string, conversationID string, metadata string) (core.ThreadControlEntry, error) {
	return s.takeFn(ctx, connectionID, conversationID, metadata)
}

func (s stubThreadControlService) RequestThreadControl(ctx context.Context, connectionID string, conversationID string, metadata string) (core.ThreadControlEntry, error) {
	return s.requestFn(ctx, connectionID, conversationID, metadata)
}

func TestProcessWebhookCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := ingest.Result{Platform: core.PlatformMessenger, ProcessedCount: 3, DuplicateCount: 1}
	called := false

	svc := stubWebhookService{
		processFn: func(_ context.Context, req webhooks.InboundRequest) (ingest.Result, error) {
			called = true
			if req.Platform != "messenger" {
				t.Fatalf("expected messenger platform, got %q", req.Platform)
			}
			return expected, nil
		},
	}

	cmd := NewProcessWebhookCommand(svc)
	collector := gocmd.NewResult[ingest.Result]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, ProcessWebhookMessage{Request: webhooks.InboundRequest{
		Platform: "messenger",
		Body:     []byte(`{"object":"page"}`),
	}})
	if err != nil {
		t.Fatalf("execute process webhook: %v", err)
	}
	if !called {
		t.Fatalf("expected webhook service invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if result.ProcessedCount != expected.ProcessedCount || result.DuplicateCount != expected.DuplicateCount {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestSendMessageCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := core.Message{ID: "msg-1", NativeID: "mid.out.1", Status: core.MessageStatusSent}
	called := false

	svc := stubMessagingService{
		sendFn: func(_ context.Context, connectionID string, conversationID string, msg core.OutboundMessage) (core.Message, error) {
			called = true
			if connectionID != "conn-1" || conversationID != "conv-1" {
				t.Fatalf("unexpected send target: %q %q", connectionID, conversationID)
			}
			if msg.Text != "hello" {
				t.Fatalf("unexpected outbound text %q", msg.Text)
			}
			return expected, nil
		},
	}

	cmd := NewSendMessageCommand(svc)
	collector := gocmd.NewResult[core.Message]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, SendMessageMessage{
		ConnectionID:   "conn-1",
		ConversationID: "conv-1",
		Message:        core.OutboundMessage{Kind: core.MessageKindText, Text: "hello"},
	})
	if err != nil {
		t.Fatalf("execute send message: %v", err)
	}
	if !called {
		t.Fatalf("expected messaging service invocation")
	}
	stored, ok := collector.Load()
	if !ok {
		t.Fatalf("expected message result")
	}
	if stored.NativeID != expected.NativeID {
		t.Fatalf("unexpected message result: %#v", stored)
	}
}

func TestThreadControlCommands_DelegateToService(t *testing.T) {
	entry := core.ThreadControlEntry{ID: "tc-1", ResultingOwner: core.ThreadOwnerPageInbox}

	t.Run("pass", func(t *testing.T) {
		called := false
		svc := stubThreadControlService{
			passFn: func(_ context.Context, connectionID string, conversationID string, targetAppID string, metadata string) (core.ThreadControlEntry, error) {
				called = true
				if targetAppID != "263902037430900" || metadata != "escalate" {
					t.Fatalf("unexpected pass payload: %q %q", targetAppID, metadata)
				}
				return entry, nil
			},
		}
		cmd := NewPassThreadControlCommand(svc)
		collector := gocmd.NewResult[core.ThreadControlEntry]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		err := cmd.Execute(ctx, PassThreadControlMessage{
			ConnectionID:   "conn-1",
			ConversationID: "conv-1",
			TargetAppID:    "263902037430900",
			Metadata:       "escalate",
		})
		if err != nil {
			t.Fatalf("execute pass: %v", err)
		}
		if !called {
			t.Fatalf("expected pass invocation")
		}
		stored, ok := collector.Load()
		if !ok || stored.ResultingOwner != core.ThreadOwnerPageInbox {
			t.Fatalf("unexpected pass result: ok=%v %#v", ok, stored)
		}
	})

	t.Run("take", func(t *testing.T) {
		called := false
		svc := stubThreadControlService{
			takeFn: func(_ context.Context, _ string, conversationID string, _ string) (core.ThreadControlEntry, error) {
				called = true
				if conversationID != "conv-1" {
					t.Fatalf("unexpected take conversation %q", conversationID)
				}
				return entry, nil
			},
		}
		cmd := NewTakeThreadControlCommand(svc)
		if err := cmd.Execute(context.Background(), TakeThreadControlMessage{ConnectionID: "conn-1", ConversationID: "conv-1"}); err != nil {
			t.Fatalf("execute take: %v", err)
		}
		if !called {
			t.Fatalf("expected take invocation")
		}
	})

	t.Run("request", func(t *testing.T) {
		called := false
		svc := stubThreadControlService{
			requestFn: func(_ context.Context, _ string, _ string, metadata string) (core.ThreadControlEntry, error) {
				called = true
				if metadata != "need thread" {
					t.Fatalf("unexpected request metadata %q", metadata)
				}
				return entry, nil
			},
		}
		cmd := NewRequestThreadControlCommand(svc)
		err := cmd.Execute(context.Background(), RequestThreadControlMessage{
			ConnectionID:   "conn-1",
			ConversationID: "conv-1",
			Metadata:       "need thread",
		})
		if err != nil {
			t.Fatalf("execute request: %v", err)
		}
		if !called {
			t.Fatalf("expected request invocation")
		}
	})
}

func TestSubscribeWebhooksCommand_Delegates(t *testing.T) {
	called := false
	svc := stubMessagingService{
		subscribeFn: func(_ context.Context, connectionID string) error {
			called = true
			if connectionID != "conn-1" {
				t.Fatalf("unexpected connection %q", connectionID)
			}
			return nil
		},
	}
	cmd := NewSubscribeWebhooksCommand(svc)
	if err := cmd.Execute(context.Background(), SubscribeWebhooksMessage{ConnectionID: "conn-1"}); err != nil {
		t.Fatalf("execute subscribe: %v", err)
	}
	if !called {
		t.Fatalf("expected subscribe invocation")
	}
}

func TestMessages_Validate(t *testing.T) {
	if err := (ProcessWebhookMessage{}).Validate(); err == nil {
		t.Fatalf("expected invalid platform error")
	}
	if err := (ProcessWebhookMessage{Request: webhooks.InboundRequest{Platform: "messenger"}}).Validate(); err == nil {
		t.Fatalf("expected empty body error")
	}
	if err := (SendMessageMessage{ConnectionID: "conn-1", ConversationID: "conv-1"}).Validate(); err == nil {
		t.Fatalf("expected empty content error")
	}
	if err := (PassThreadControlMessage{ConnectionID: "conn-1", ConversationID: "conv-1"}).Validate(); err == nil {
		t.Fatalf("expected missing target app error")
	}
	valid := SendMessageMessage{
		ConnectionID:   "conn-1",
		ConversationID: "conv-1",
		Message:        core.OutboundMessage{Text: "hi"},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid send message, got %v", err)
	}
}

func TestProcessWebhookCommand_NilServiceReturnsRichError(t *testing.T) {
	var cmd *ProcessWebhookCommand
	err := cmd.Execute(context.Background(), ProcessWebhookMessage{})
	if err == nil {
		t.Fatalf("expected command dependency error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
	if rich.TextCode != core.ChannelsErrorInternal {
		t.Fatalf("expected %q text code, got %q", core.ChannelsErrorInternal, rich.TextCode)
	}
}

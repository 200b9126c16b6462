package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-channels/core"
	"github.com/goliatone/go-channels/ingest"
	"github.com/goliatone/go-channels/webhooks"
)

type WebhookService interface {
	ProcessWebhook(ctx context.Context, req webhooks.InboundRequest) (ingest.Result, error)
}

type MessagingService interface {
	SendMessage(ctx context.Context, connectionID string, conversationID string, msg core.OutboundMessage) (core.Message, error)
	SubscribeWebhooks(ctx context.Context, connectionID string) error
}

type ThreadControlService interface {
	PassThreadControl(ctx context.Context, connectionID string, conversationID string, targetAppID string, metadata string) (core.ThreadControlEntry, error)
	TakeThreadControl(ctx context.Context, connectionID string, conversationID string, metadata string) (core.ThreadControlEntry, error)
	RequestThreadControl(ctx context.Context, connectionID string, conversationID string, metadata string) (core.ThreadControlEntry, error)
}

type ProcessWebhookCommand struct {
	service WebhookService
}

func NewProcessWebhookCommand(service WebhookService) *ProcessWebhookCommand {
	return &ProcessWebhookCommand{service: service}
}

func (c *ProcessWebhookCommand) Execute(ctx context.Context, msg ProcessWebhookMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: webhook service is required")
	}
	out, err := c.service.ProcessWebhook(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SendMessageCommand struct {
	service MessagingService
}

func NewSendMessageCommand(service MessagingService) *SendMessageCommand {
	return &SendMessageCommand{service: service}
}

func (c *SendMessageCommand) Execute(ctx context.Context, msg SendMessageMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: messaging service is required")
	}
	out, err := c.service.SendMessage(ctx, msg.ConnectionID, msg.ConversationID, msg.Message)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type PassThreadControlCommand struct {
	service ThreadControlService
}

func NewPassThreadControlCommand(service ThreadControlService) *PassThreadControlCommand {
	return &PassThreadControlCommand{service: service}
}

func (c *PassThreadControlCommand) Execute(ctx context.Context, msg PassThreadControlMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: thread control service is required")
	}
	out, err := c.service.PassThreadControl(ctx, msg.ConnectionID, msg.ConversationID, msg.TargetAppID, msg.Metadata)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type TakeThreadControlCommand struct {
	service ThreadControlService
}

func NewTakeThreadControlCommand(service ThreadControlService) *TakeThreadControlCommand {
	return &TakeThreadControlCommand{service: service}
}

func (c *TakeThreadControlCommand) Execute(ctx context.Context, msg TakeThreadControlMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: thread control service is required")
	}
	out, err := c.service.TakeThreadControl(ctx, msg.ConnectionID, msg.ConversationID, msg.Metadata)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RequestThreadControlCommand struct {
	service ThreadControlService
}

func NewRequestThreadControlCommand(service ThreadControlService) *RequestThreadControlCommand {
	return &RequestThreadControlCommand{service: service}
}

func (c *RequestThreadControlCommand) Execute(ctx context.Context, msg RequestThreadControlMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: thread control service is required")
	}
	out, err := c.service.RequestThreadControl(ctx, msg.ConnectionID, msg.ConversationID, msg.Metadata)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SubscribeWebhooksCommand struct {
	service MessagingService
}

func NewSubscribeWebhooksCommand(service MessagingService) *SubscribeWebhooksCommand {
	return &SubscribeWebhooksCommand{service: service}
}

func (c *SubscribeWebhooksCommand) Execute(ctx context.Context, msg SubscribeWebhooksMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: messaging service is required")
	}
	return c.service.SubscribeWebhooks(ctx, msg.ConnectionID)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}

package gocommand

import (
	"context"
	"fmt"
	"strings"

	chancmd "github.com/goliatone/go-channels/command"
	"github.com/goliatone/go-channels/core"
	chanquery "github.com/goliatone/go-channels/query"
	gocmd "github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

const messageTypePrefix = "channels."

// ValidateMessageContract enforces Type() plus optional Validate() contract.
// Pipeline messages additionally carry the channels namespace so queue
// resolvers can route them without collisions.
func ValidateMessageContract(msg any) error {
	if err := gocmd.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(gocmd.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	msgType := strings.TrimSpace(m.Type())
	if msgType == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	if !strings.HasPrefix(msgType, messageTypePrefix) {
		return fmt.Errorf("gocommand: message type %q must use the %q namespace", msgType, messageTypePrefix)
	}
	return nil
}

type RegistryAdapter struct {
	registry *gocmd.Registry
}

func NewRegistryAdapter(registry *gocmd.Registry) *RegistryAdapter {
	if registry == nil {
		registry = gocmd.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *gocmd.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(cmd)
}

func (a *RegistryAdapter) RegisterQuery(qry any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(qry)
}

func (a *RegistryAdapter) AddResolver(key string, resolver gocmd.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

// AddQueueResolver mirrors registered pipeline commands into a go-job queue
// registry so ingestion work can be replayed through the durable queue.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func SubscribeCommand[T any](cmd gocmd.Commander[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
}

func SubscribeQuery[T any, R any](qry gocmd.Querier[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd gocmd.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry gocmd.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	subscription := SubscribeQuery(qry, runnerOpts...)
	if err := adapter.RegisterQuery(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

// PipelineHandlers collects the message handlers the pipeline exposes over
// the dispatcher. Nil handlers are skipped so callers can register a subset.
type PipelineHandlers struct {
	ProcessWebhook       *chancmd.ProcessWebhookCommand
	SendMessage          *chancmd.SendMessageCommand
	PassThreadControl    *chancmd.PassThreadControlCommand
	TakeThreadControl    *chancmd.TakeThreadControlCommand
	RequestThreadControl *chancmd.RequestThreadControlCommand
	SubscribeWebhooks    *chancmd.SubscribeWebhooksCommand

	GetConversation      *chanquery.GetConversationQuery
	ListMessages         *chanquery.ListMessagesQuery
	ListThreadControlLog *chanquery.ListThreadControlLogQuery
}

// RegisterPipeline wires every configured handler into the registry and the
// dispatcher in one pass. On failure it unsubscribes everything registered so
// far, so a partial pipeline never stays attached to the dispatcher.
func RegisterPipeline(adapter *RegistryAdapter, handlers PipelineHandlers) ([]commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}

	var subscriptions []commanddispatcher.Subscription
	rollback := func() {
		for _, sub := range subscriptions {
			if sub != nil {
				sub.Unsubscribe()
			}
		}
	}
	addCommand := func(register func() (commanddispatcher.Subscription, error)) error {
		sub, err := register()
		if err != nil {
			rollback()
			return err
		}
		subscriptions = append(subscriptions, sub)
		return nil
	}

	if handlers.ProcessWebhook != nil {
		if err := addCommand(func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[chancmd.ProcessWebhookMessage](adapter, handlers.ProcessWebhook)
		}); err != nil {
			return nil, err
		}
	}
	if handlers.SendMessage != nil {
		if err := addCommand(func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[chancmd.SendMessageMessage](adapter, handlers.SendMessage)
		}); err != nil {
			return nil, err
		}
	}
	if handlers.PassThreadControl != nil {
		if err := addCommand(func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[chancmd.PassThreadControlMessage](adapter, handlers.PassThreadControl)
		}); err != nil {
			return nil, err
		}
	}
	if handlers.TakeThreadControl != nil {
		if err := addCommand(func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[chancmd.TakeThreadControlMessage](adapter, handlers.TakeThreadControl)
		}); err != nil {
			return nil, err
		}
	}
	if handlers.RequestThreadControl != nil {
		if err := addCommand(func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[chancmd.RequestThreadControlMessage](adapter, handlers.RequestThreadControl)
		}); err != nil {
			return nil, err
		}
	}
	if handlers.SubscribeWebhooks != nil {
		if err := addCommand(func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[chancmd.SubscribeWebhooksMessage](adapter, handlers.SubscribeWebhooks)
		}); err != nil {
			return nil, err
		}
	}
	if handlers.GetConversation != nil {
		if err := addCommand(func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery[chanquery.GetConversationMessage, core.Conversation](adapter, handlers.GetConversation)
		}); err != nil {
			return nil, err
		}
	}
	if handlers.ListMessages != nil {
		if err := addCommand(func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery[chanquery.ListMessagesMessage, []core.Message](adapter, handlers.ListMessages)
		}); err != nil {
			return nil, err
		}
	}
	if handlers.ListThreadControlLog != nil {
		if err := addCommand(func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery[chanquery.ListThreadControlLogMessage, []core.ThreadControlEntry](adapter, handlers.ListThreadControlLog)
		}); err != nil {
			return nil, err
		}
	}
	return subscriptions, nil
}

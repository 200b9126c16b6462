package channels

import (
	"fmt"

	"github.com/goliatone/go-channels/command"
	"github.com/goliatone/go-channels/core"
	"github.com/goliatone/go-channels/query"
)

// CommandQueryService is the operation surface the command layer needs. The
// root Service satisfies it; downstream hosts can substitute their own.
type CommandQueryService interface {
	command.WebhookService
	command.MessagingService
	command.ThreadControlService
}

// Commands bundles the write-side handlers ready for dispatcher registration.
type Commands struct {
	ProcessWebhook       *command.ProcessWebhookCommand
	SendMessage          *command.SendMessageCommand
	PassThreadControl    *command.PassThreadControlCommand
	TakeThreadControl    *command.TakeThreadControlCommand
	RequestThreadControl *command.RequestThreadControlCommand
	SubscribeWebhooks    *command.SubscribeWebhooksCommand
}

// Queries bundles the read-side handlers. Query handlers read from the stores
// directly; they are nil when no reader could be resolved.
type Queries struct {
	GetConversation      *query.GetConversationQuery
	ListMessages         *query.ListMessagesQuery
	ListThreadControlLog *query.ListThreadControlLogQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	conversations query.ConversationReader
	messages      query.MessageReader
	threadControl query.ThreadControlReader
}

func WithConversationReader(reader query.ConversationReader) FacadeOption {
	return func(o *facadeOptions) { o.conversations = reader }
}

func WithMessageReader(reader query.MessageReader) FacadeOption {
	return func(o *facadeOptions) { o.messages = reader }
}

func WithThreadControlReader(reader query.ThreadControlReader) FacadeOption {
	return func(o *facadeOptions) { o.threadControl = reader }
}

// NewFacade wires the command and query handlers around one service. Readers
// default to the service's stores when it exposes them.
func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("channels: facade requires a service")
	}

	options := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&options)
	}
	resolveReaders(service, &options)

	facade := &Facade{
		service: service,
		commands: Commands{
			ProcessWebhook:       command.NewProcessWebhookCommand(service),
			SendMessage:          command.NewSendMessageCommand(service),
			PassThreadControl:    command.NewPassThreadControlCommand(service),
			TakeThreadControl:    command.NewTakeThreadControlCommand(service),
			RequestThreadControl: command.NewRequestThreadControlCommand(service),
			SubscribeWebhooks:    command.NewSubscribeWebhooksCommand(service),
		},
	}
	if options.conversations != nil {
		facade.queries.GetConversation = query.NewGetConversationQuery(options.conversations)
	}
	if options.messages != nil {
		facade.queries.ListMessages = query.NewListMessagesQuery(options.messages)
	}
	if options.threadControl != nil {
		facade.queries.ListThreadControlLog = query.NewListThreadControlLogQuery(options.threadControl)
	}
	return facade, nil
}

func resolveReaders(service CommandQueryService, options *facadeOptions) {
	if options.conversations != nil && options.messages != nil && options.threadControl != nil {
		return
	}
	storeHost, ok := service.(interface{ Stores() core.StoreProvider })
	if !ok {
		return
	}
	stores := storeHost.Stores()
	if stores == nil {
		return
	}
	if options.conversations == nil {
		options.conversations = stores.ConversationStore()
	}
	if options.messages == nil {
		options.messages = stores.MessageStore()
	}
	if options.threadControl == nil {
		options.threadControl = stores.ThreadControlStore()
	}
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

var _ CommandQueryService = (*Service)(nil)

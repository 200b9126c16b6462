package channels

import (
	"context"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	conv "github.com/goliatone/go-channels/conversations"
	"github.com/goliatone/go-channels/core"
	"github.com/goliatone/go-channels/handover"
	"github.com/goliatone/go-channels/ingest"
	"github.com/goliatone/go-channels/outbound"
	"github.com/goliatone/go-channels/platforms/meta/instagram"
	"github.com/goliatone/go-channels/platforms/meta/messenger"
	"github.com/goliatone/go-channels/ratelimit"
	"github.com/goliatone/go-channels/receipts"
	"github.com/goliatone/go-channels/webhooks"
)

// RepositoryStoreFactory builds the store bundle from a persistence client.
// store/sql.RepositoryFactory satisfies it.
type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (core.StoreProvider, error)
}

// ConnectionSubscriptionMarker is the optional store extension that records a
// successful webhook subscription on the connection row.
type ConnectionSubscriptionMarker interface {
	MarkWebhookSubscribed(ctx context.Context, id string) error
}

type Option func(*serviceBuilder)

type serviceBuilder struct {
	runtimeConfig     core.Config
	logger            core.Logger
	loggerProvider    core.LoggerProvider
	metrics           core.MetricsRecorder
	configProvider    core.ConfigProvider
	persistenceClient any
	repositoryFactory any
	storeProvider     core.StoreProvider
	client            core.PlatformClient
	profiles          core.ProfileFetcher
	publisher         core.EventPublisher
	windowStore       ratelimit.WindowStore
	now               func() time.Time
}

func defaultServiceBuilder(cfg core.Config) serviceBuilder {
	return serviceBuilder{runtimeConfig: cfg}
}

func WithLogger(logger core.Logger) Option {
	return func(b *serviceBuilder) { b.logger = logger }
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(b *serviceBuilder) { b.loggerProvider = provider }
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(b *serviceBuilder) { b.metrics = recorder }
}

func WithConfigProvider(provider core.ConfigProvider) Option {
	return func(b *serviceBuilder) { b.configProvider = provider }
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) { b.persistenceClient = client }
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) { b.repositoryFactory = factory }
}

func WithStoreProvider(provider core.StoreProvider) Option {
	return func(b *serviceBuilder) { b.storeProvider = provider }
}

func WithPlatformClient(client core.PlatformClient) Option {
	return func(b *serviceBuilder) { b.client = client }
}

func WithProfileFetcher(fetcher core.ProfileFetcher) Option {
	return func(b *serviceBuilder) { b.profiles = fetcher }
}

func WithEventPublisher(publisher core.EventPublisher) Option {
	return func(b *serviceBuilder) { b.publisher = publisher }
}

func WithRateLimitWindowStore(store ratelimit.WindowStore) Option {
	return func(b *serviceBuilder) { b.windowStore = store }
}

func WithNow(now func() time.Time) Option {
	return func(b *serviceBuilder) { b.now = now }
}

// Service is the composition root: it owns the ingest dispatcher, the
// outbound sender, and the handover service, and exposes the operations the
// command and query layers delegate to.
type Service struct {
	config         core.Config
	logger         core.Logger
	loggerProvider core.LoggerProvider
	metrics        core.MetricsRecorder
	stores         core.StoreProvider
	client         core.PlatformClient
	publisher      core.EventPublisher
	templates      map[core.Platform]webhooks.PlatformWebhookTemplate
	dispatcher     *ingest.Dispatcher
	sender         *outbound.Sender
	handover       *handover.Service
	receipts       *receipts.Reconciler
	resolver       *conv.Resolver
	persister      *conv.Persister
	limiter        *ratelimit.HourlyWindowPolicy
	now            func() time.Time
}

type ServiceDependencies struct {
	Logger          core.Logger
	LoggerProvider  core.LoggerProvider
	MetricsRecorder core.MetricsRecorder
	Stores          core.StoreProvider
	PlatformClient  core.PlatformClient
	EventPublisher  core.EventPublisher
	Dispatcher      *ingest.Dispatcher
	Sender          *outbound.Sender
	Handover        *handover.Service
	Receipts        *receipts.Reconciler
	Resolver        *conv.Resolver
	Persister       *conv.Persister
	RateLimiter     *ratelimit.HourlyWindowPolicy
}

func NewService(cfg core.Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("channels", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("channels"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	finalConfig, err := core.ResolveConfig(context.Background(), builder.configProvider, builder.runtimeConfig)
	if err != nil {
		return nil, err
	}

	stores := builder.storeProvider
	if stores == nil && builder.repositoryFactory != nil {
		switch factory := builder.repositoryFactory.(type) {
		case RepositoryStoreFactory:
			built, buildErr := factory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, buildErr
			}
			stores = built
		case core.StoreProvider:
			stores = factory
		}
	}
	if stores == nil {
		return nil, fmt.Errorf("channels: a store provider or repository factory is required")
	}

	now := builder.now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	metrics := builder.metrics
	if metrics == nil {
		metrics = core.NopMetricsRecorder{}
	}

	windowStore := builder.windowStore
	if windowStore == nil {
		windowStore = ratelimit.NewMemoryWindowStore()
	}
	limiter := ratelimit.NewHourlyWindowPolicy(windowStore, finalConfig.RateLimit.HourlyCap, finalConfig.RateLimit.Window)
	limiter.Now = now

	resolver, err := conv.NewResolver(stores.ConversationStore(), builder.profiles, finalConfig.PageInboxAppID, logger)
	if err != nil {
		return nil, err
	}
	persister, err := conv.NewPersister(stores.MessageStore(), stores.ConversationStore(), now)
	if err != nil {
		return nil, err
	}
	handoverService, err := handover.NewService(handover.Config{
		Conversations:  stores.ConversationStore(),
		ThreadControl:  stores.ThreadControlStore(),
		Client:         builder.client,
		PageInboxAppID: finalConfig.PageInboxAppID,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}
	reconciler, err := receipts.NewReconciler(stores.MessageStore(), stores.ConversationStore(), now, logger)
	if err != nil {
		return nil, err
	}

	templates := map[core.Platform]webhooks.PlatformWebhookTemplate{
		core.PlatformMessenger: webhooks.NewMessengerWebhookTemplate(finalConfig.Messenger),
		core.PlatformInstagram: webhooks.NewInstagramWebhookTemplate(finalConfig.Instagram),
	}
	verifiers := make(map[core.Platform]webhooks.Verifier, len(templates))
	for platform, template := range templates {
		verifiers[platform] = template.Verifier
	}

	dispatcher, err := ingest.NewDispatcher(ingest.Config{
		Sources:     []core.EventSource{messenger.NewSource(), instagram.NewSource()},
		Verifiers:   verifiers,
		Connections: stores.ConnectionStore(),
		Ledger:      stores.WebhookEventStore(),
		Resolver:    resolver,
		Persister:   persister,
		Handover:    handoverService,
		Receipts:    reconciler,
		Publisher:   builder.publisher,
		Metrics:     metrics,
		Logger:      logger,
		Now:         now,
	})
	if err != nil {
		return nil, err
	}

	var sender *outbound.Sender
	if builder.client != nil {
		var ratePolicy outbound.RatePolicy
		if limiter != nil {
			ratePolicy = limiter
		}
		sender, err = outbound.NewSender(outbound.Config{
			Client:    builder.client,
			Persister: persister,
			Limiter:   ratePolicy,
			Now:       now,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
	}

	return &Service{
		config:         finalConfig,
		logger:         logger,
		loggerProvider: provider,
		metrics:        metrics,
		stores:         stores,
		client:         builder.client,
		publisher:      builder.publisher,
		templates:      templates,
		dispatcher:     dispatcher,
		sender:         sender,
		handover:       handoverService,
		receipts:       reconciler,
		resolver:       resolver,
		persister:      persister,
		limiter:        limiter,
		now:            now,
	}, nil
}

func Setup(cfg core.Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func (s *Service) Config() core.Config {
	if s == nil {
		return core.Config{}
	}
	return s.config
}

func (s *Service) Stores() core.StoreProvider {
	if s == nil {
		return nil
	}
	return s.stores
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:          s.logger,
		LoggerProvider:  s.loggerProvider,
		MetricsRecorder: s.metrics,
		Stores:          s.stores,
		PlatformClient:  s.client,
		EventPublisher:  s.publisher,
		Dispatcher:      s.dispatcher,
		Sender:          s.sender,
		Handover:        s.handover,
		Receipts:        s.receipts,
		Resolver:        s.resolver,
		Persister:       s.persister,
		RateLimiter:     s.limiter,
	}
}

// WebhookTemplate returns the verifier/challenge pair for one platform.
func (s *Service) WebhookTemplate(platform core.Platform) (webhooks.PlatformWebhookTemplate, bool) {
	if s == nil {
		return webhooks.PlatformWebhookTemplate{}, false
	}
	template, ok := s.templates[platform]
	return template, ok
}

// RespondToChallenge answers the GET subscription handshake for the platform.
func (s *Service) RespondToChallenge(platform core.Platform, mode string, token string, challenge string) (string, error) {
	template, ok := s.WebhookTemplate(platform)
	if !ok {
		return "", fmt.Errorf("%w: %q", core.ErrInvalidPlatform, platform)
	}
	return template.Challenger.Respond(mode, token, challenge)
}

// ProcessWebhook runs one raw webhook payload through the ingest pipeline.
func (s *Service) ProcessWebhook(ctx context.Context, req webhooks.InboundRequest) (ingest.Result, error) {
	if s == nil || s.dispatcher == nil {
		return ingest.Result{}, fmt.Errorf("channels: service is not configured")
	}
	startedAt := s.now()
	result, err := s.dispatcher.Dispatch(ctx, req)
	s.observeOperation(ctx, startedAt, "process_webhook", err, map[string]any{
		"platform":   req.Platform,
		"processed":  result.ProcessedCount,
		"duplicates": result.DuplicateCount,
		"skipped":    result.SkippedCount,
	})
	return result, err
}

// SendMessage delivers one outbound message on an existing conversation.
func (s *Service) SendMessage(ctx context.Context, connectionID string, conversationID string, msg core.OutboundMessage) (core.Message, error) {
	if s == nil || s.sender == nil {
		return core.Message{}, fmt.Errorf("channels: platform client is required for outbound sends")
	}
	startedAt := s.now()
	conn, conversation, err := s.loadConversation(ctx, connectionID, conversationID)
	if err != nil {
		s.observeOperation(ctx, startedAt, "send_message", err, map[string]any{
			"connection_id":   connectionID,
			"conversation_id": conversationID,
		})
		return core.Message{}, err
	}
	message, err := s.sender.Send(ctx, conn, conversation, msg)
	s.observeOperation(ctx, startedAt, "send_message", err, map[string]any{
		"platform":        conn.Platform,
		"connection_id":   conn.ID,
		"conversation_id": conversation.ID,
	})
	return message, err
}

// SubscribeWebhooks subscribes the connection's account to the webhook fields
// the pipeline consumes and records the subscription on the connection.
func (s *Service) SubscribeWebhooks(ctx context.Context, connectionID string) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("channels: platform client is required for webhook subscription")
	}
	startedAt := s.now()
	conn, err := s.stores.ConnectionStore().Get(ctx, strings.TrimSpace(connectionID))
	if err != nil {
		s.observeOperation(ctx, startedAt, "subscribe_webhooks", err, map[string]any{
			"connection_id": connectionID,
		})
		return err
	}
	if err := s.client.SubscribeWebhooks(ctx, conn); err != nil {
		err = fmt.Errorf("channels: subscribe webhooks: %w", err)
		s.observeOperation(ctx, startedAt, "subscribe_webhooks", err, map[string]any{
			"platform":      conn.Platform,
			"connection_id": conn.ID,
		})
		return err
	}
	if marker, ok := s.stores.ConnectionStore().(ConnectionSubscriptionMarker); ok {
		if err := marker.MarkWebhookSubscribed(ctx, conn.ID); err != nil {
			// The platform subscription succeeded; a stale flag is recoverable
			// on the next subscribe call.
			s.logger.WithContext(ctx).Warn("channels: mark webhook subscribed failed",
				"connection_id", conn.ID,
				"error", err,
			)
		}
	}
	s.observeOperation(ctx, startedAt, "subscribe_webhooks", nil, map[string]any{
		"platform":      conn.Platform,
		"connection_id": conn.ID,
	})
	return nil
}

func (s *Service) PassThreadControl(ctx context.Context, connectionID string, conversationID string, targetAppID string, metadata string) (core.ThreadControlEntry, error) {
	return s.threadControl(ctx, "pass_thread_control", connectionID, conversationID,
		func(conn core.Connection, conversation core.Conversation) (core.ThreadControlEntry, error) {
			return s.handover.Pass(ctx, conn, conversation, targetAppID, metadata)
		})
}

func (s *Service) TakeThreadControl(ctx context.Context, connectionID string, conversationID string, metadata string) (core.ThreadControlEntry, error) {
	return s.threadControl(ctx, "take_thread_control", connectionID, conversationID,
		func(conn core.Connection, conversation core.Conversation) (core.ThreadControlEntry, error) {
			return s.handover.Take(ctx, conn, conversation, metadata)
		})
}

func (s *Service) RequestThreadControl(ctx context.Context, connectionID string, conversationID string, metadata string) (core.ThreadControlEntry, error) {
	return s.threadControl(ctx, "request_thread_control", connectionID, conversationID,
		func(conn core.Connection, conversation core.Conversation) (core.ThreadControlEntry, error) {
			return s.handover.Request(ctx, conn, conversation, metadata)
		})
}

func (s *Service) threadControl(
	ctx context.Context,
	operation string,
	connectionID string,
	conversationID string,
	run func(core.Connection, core.Conversation) (core.ThreadControlEntry, error),
) (core.ThreadControlEntry, error) {
	startedAt := s.now()
	conn, conversation, err := s.loadConversation(ctx, connectionID, conversationID)
	if err != nil {
		s.observeOperation(ctx, startedAt, operation, err, map[string]any{
			"connection_id":   connectionID,
			"conversation_id": conversationID,
		})
		return core.ThreadControlEntry{}, err
	}
	entry, err := run(conn, conversation)
	s.observeOperation(ctx, startedAt, operation, err, map[string]any{
		"platform":        conn.Platform,
		"connection_id":   conn.ID,
		"conversation_id": conversation.ID,
	})
	return entry, err
}

// ThreadControlHistory lists handover log entries, newest first.
func (s *Service) ThreadControlHistory(ctx context.Context, conversationID string, limit int, offset int) ([]core.ThreadControlEntry, error) {
	if s == nil || s.handover == nil {
		return nil, fmt.Errorf("channels: service is not configured")
	}
	return s.handover.History(ctx, conversationID, limit, offset)
}

func (s *Service) loadConversation(ctx context.Context, connectionID string, conversationID string) (core.Connection, core.Conversation, error) {
	if s == nil || s.stores == nil {
		return core.Connection{}, core.Conversation{}, fmt.Errorf("channels: service is not configured")
	}
	conn, err := s.stores.ConnectionStore().Get(ctx, strings.TrimSpace(connectionID))
	if err != nil {
		return core.Connection{}, core.Conversation{}, err
	}
	conversation, err := s.stores.ConversationStore().Get(ctx, strings.TrimSpace(conversationID))
	if err != nil {
		return core.Connection{}, core.Conversation{}, err
	}
	if conversation.ConnectionID != conn.ID {
		return core.Connection{}, core.Conversation{}, fmt.Errorf(
			"channels: conversation %s does not belong to connection %s", conversation.ID, conn.ID,
		)
	}
	return conn, conversation, nil
}

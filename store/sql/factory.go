package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-channels/core"
)

type RepositoryFactory struct {
	db *bun.DB

	connectionStore    *ConnectionStore
	conversationStore  *ConversationStore
	messageStore       *MessageStore
	webhookEventStore  *WebhookEventStore
	threadControlStore *ThreadControlStore
	rateLimitStore     *RateLimitStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.connectionStore != nil && f.messageStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) ConnectionStore() core.ConnectionStore {
	if f == nil {
		return nil
	}
	return f.connectionStore
}

func (f *RepositoryFactory) ConversationStore() core.ConversationStore {
	if f == nil {
		return nil
	}
	return f.conversationStore
}

func (f *RepositoryFactory) MessageStore() core.MessageStore {
	if f == nil {
		return nil
	}
	return f.messageStore
}

func (f *RepositoryFactory) WebhookEventStore() core.WebhookEventStore {
	if f == nil {
		return nil
	}
	return f.webhookEventStore
}

func (f *RepositoryFactory) ThreadControlStore() core.ThreadControlStore {
	if f == nil {
		return nil
	}
	return f.threadControlStore
}

func (f *RepositoryFactory) RateLimitStore() *RateLimitStore {
	if f == nil {
		return nil
	}
	return f.rateLimitStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	connectionStore, err := NewConnectionStore(f.db)
	if err != nil {
		return err
	}
	f.connectionStore = connectionStore

	conversationStore, err := NewConversationStore(f.db)
	if err != nil {
		return err
	}
	f.conversationStore = conversationStore

	messageStore, err := NewMessageStore(f.db)
	if err != nil {
		return err
	}
	f.messageStore = messageStore

	webhookEventStore, err := NewWebhookEventStore(f.db)
	if err != nil {
		return err
	}
	f.webhookEventStore = webhookEventStore

	threadControlStore, err := NewThreadControlStore(f.db)
	if err != nil {
		return err
	}
	f.threadControlStore = threadControlStore

	rateLimitStore, err := NewRateLimitStore(f.db)
	if err != nil {
		return err
	}
	f.rateLimitStore = rateLimitStore

	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}

var _ core.StoreProvider = (*RepositoryFactory)(nil)

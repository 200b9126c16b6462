package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// ConnectConfig carries the connection settings the persistence client reads.
type ConnectConfig struct {
	Driver         string
	DSN            string
	Debug          bool
	PingTimeout    time.Duration
	OtelIdentifier string
	MaxOpenConns   int
}

func (c ConnectConfig) GetDebug() bool {
	return c.Debug
}

func (c ConnectConfig) GetDriver() string {
	return c.Driver
}

func (c ConnectConfig) GetServer() string {
	return c.DSN
}

func (c ConnectConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return 5 * time.Second
	}
	return c.PingTimeout
}

func (c ConnectConfig) GetOtelIdentifier() string {
	if strings.TrimSpace(c.OtelIdentifier) == "" {
		return "go-channels"
	}
	return c.OtelIdentifier
}

// OpenPostgres opens a persistence client over lib/pq with the bun postgres
// dialect. The caller owns the client lifecycle.
func OpenPostgres(cfg ConnectConfig) (*persistence.Client, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqlstore: postgres dsn is required")
	}
	connector, err := pq.NewConnector(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: postgres connector: %w", err)
	}
	sqlDB := sql.OpenDB(connector)
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	cfg.Driver = "postgres"
	client, err := persistence.New(cfg, sqlDB, pgdialect.New())
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: postgres client: %w", err)
	}
	return client, nil
}

// OpenSQLite opens a persistence client over the sqlite3 driver. Shared
// in-memory databases need MaxOpenConns=1 to stay on one connection.
func OpenSQLite(cfg ConnectConfig) (*persistence.Client, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqlstore: sqlite dsn is required")
	}
	sqlDB, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: sqlite open: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	cfg.Driver = "sqlite3"
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: sqlite client: %w", err)
	}
	return client, nil
}

package sqlstore_test

import (
	"context"
	"testing"

	sqlstore "github.com/goliatone/go-channels/store/sql"
)

func TestOpenSQLite(t *testing.T) {
	client, err := sqlstore.OpenSQLite(sqlstore.ConnectConfig{
		DSN:          "file:connect-test?mode=memory&cache=shared",
		MaxOpenConns: 1,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer func() {
		_ = client.DB().Close()
	}()

	var one int
	if err := client.DB().NewRaw("SELECT 1").Scan(context.Background(), &one); err != nil {
		t.Fatalf("ping query: %v", err)
	}
	if one != 1 {
		t.Fatalf("expected ping value 1, got %d", one)
	}
}

func TestOpenSQLite_RequiresDSN(t *testing.T) {
	if _, err := sqlstore.OpenSQLite(sqlstore.ConnectConfig{}); err == nil {
		t.Fatal("expected empty dsn to be rejected")
	}
}

func TestOpenPostgres_RequiresDSN(t *testing.T) {
	if _, err := sqlstore.OpenPostgres(sqlstore.ConnectConfig{}); err == nil {
		t.Fatal("expected empty dsn to be rejected")
	}
}

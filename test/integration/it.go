//go:build integration

package integration

import (
	"context"
	"database/sql"
	"net"
	"os"
	"testing"
	"time"

	pg "github.com/NordCoder/Tokengate/internal/repository/postgres"
	"github.com/NordCoder/Tokengate/migrations"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func TCPReachable(addr string, timeout time.Duration) error {
	d := net.Dialer{Timeout: timeout}
	c, err := d.Dial("tcp", addr)
	if err != nil {
		return err
	}
	_ = c.Close()
	return nil
}

// PG is a migrated Postgres started for one test.
type PG struct {
	DSN string
	DB  *pg.DB
	// SQL is a plain database/sql handle for assertions on raw rows.
	SQL *sql.DB
}

// StartPostgres runs a throwaway Postgres container and applies the embedded
// migrations. IT_DB_DSN points the tests at an existing database instead.
func StartPostgres(t *testing.T) *PG {
	t.Helper()
	ctx := context.Background()

	dsn := os.Getenv("IT_DB_DSN")
	if dsn == "" {
		c, err := tcpostgres.Run(ctx, "postgres:16-alpine",
			tcpostgres.WithDatabase("tokengate"),
			tcpostgres.WithUsername("postgres"),
			tcpostgres.WithPassword("secret"),
			tcpostgres.BasicWaitStrategies(),
		)
		if err != nil {
			t.Fatalf("[pg] start container: %v", err)
		}
		t.Cleanup(func() { _ = testcontainers.TerminateContainer(c) })

		dsn, err = c.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			t.Fatalf("[pg] connection string: %v", err)
		}
	}

	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("[pg] open: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		t.Fatalf("[pg] ping: %v", err)
	}

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		t.Fatalf("[pg] goose dialect: %v", err)
	}
	if err := goose.Reset(sqlDB, "."); err != nil {
		t.Fatalf("[pg] goose reset: %v", err)
	}
	if err := goose.Up(sqlDB, "."); err != nil {
		t.Fatalf("[pg] goose up: %v", err)
	}

	db, err := pg.New(ctx, pg.Config{DSN: dsn, MaxConns: 10, QueryTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("[pg] pool: %v", err)
	}
	t.Cleanup(db.Close)

	return &PG{DSN: dsn, DB: db, SQL: sqlDB}
}

func (p *PG) Count(t *testing.T, query string, args ...any) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	var n int
	if err := p.SQL.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		t.Fatalf("[pg] count %q: %v", query, err)
	}
	return n
}

package dbconnecter

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"CallCoordinator/internal/config"

	_ "github.com/lib/pq"
)

type DbCloser func()

const retryDelay = time.Second

// DbConnecter opens the configured database, or the postgres maintenance
// database when defaultDB is set, pinging up to retry more times.
func DbConnecter(ctx context.Context, cfg config.Postgres, defaultDB bool, retry int) (*sql.DB, string, DbCloser, error) {
	dbName := cfg.Name()
	connectDb := dbName
	if defaultDB {
		connectDb = "postgres"
	}

	db, err := sql.Open("postgres", cfg.DSN(connectDb))
	closer := func() {}
	if err != nil {
		return nil, "", closer, err
	}
	closer = func() {
		db.Close()
	}

	for attempt := 0; ; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return db, dbName, closer, nil
		}
		if attempt >= retry {
			closer()
			return nil, "", func() {}, fmt.Errorf("connect %s after %d attempts: %w", connectDb, attempt+1, err)
		}
		select {
		case <-ctx.Done():
			closer()
			return nil, "", func() {}, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
}

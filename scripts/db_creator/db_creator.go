package main

import (
	"context"
	"os"
	"time"

	"CallCoordinator/internal/config"
	connecter "CallCoordinator/pkg/dbconnecter"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL DEFAULT '',
	role         TEXT NOT NULL,
	is_online    BOOLEAN NOT NULL DEFAULT false,
	socket_id    TEXT,
	last_seen_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS call_journals (
	call_id      TEXT PRIMARY KEY,
	caller_user  TEXT NOT NULL,
	callee_user  TEXT NOT NULL,
	status       TEXT NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL,
	answered_at  TIMESTAMPTZ,
	ended_at     TIMESTAMPTZ,
	duration_sec INTEGER,
	ended_by     TEXT,
	end_reason   TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS call_journals_caller_idx ON call_journals (caller_user, started_at DESC);
CREATE INDEX IF NOT EXISTS call_journals_callee_idx ON call_journals (callee_user, started_at DESC);
`

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("component", "db_creator").Logger()

	pg, err := config.LoadDatabase()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	ctx := context.Background()

	db, dbName, closer, err := connecter.DbConnecter(ctx, pg, true, pg.Retry)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect to maintenance database")
	}
	log := logger.With().Str("db", dbName).Logger()

	_, err = db.ExecContext(ctx, "DROP DATABASE IF EXISTS "+pq.QuoteIdentifier(dbName))
	if err != nil {
		closer()
		log.Fatal().Err(err).Msg("drop database")
	}

	_, err = db.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(dbName))
	closer()
	if err != nil {
		log.Fatal().Err(err).Msg("create database")
	}

	db, _, closer, err = connecter.DbConnecter(ctx, pg, false, pg.Retry)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to new database")
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		closer()
		log.Fatal().Err(err).Msg("apply schema")
	}
	closer()
	log.Info().Msg("database created")
}

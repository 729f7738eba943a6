package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect opens the Postgres database and runs migrations.
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
            id CHAR(24) PRIMARY KEY,
            name TEXT NOT NULL,
            email TEXT NOT NULL UNIQUE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE TABLE IF NOT EXISTS conversations (
            id CHAR(24) PRIMARY KEY,
            name TEXT NOT NULL DEFAULT '',
            type TEXT NOT NULL CHECK (type IN ('direct', 'group')),
            created_by CHAR(24) NOT NULL,
            last_message_id CHAR(24),
            direct_key TEXT UNIQUE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE INDEX IF NOT EXISTS conversations_updated_at_idx ON conversations (updated_at DESC);`,
	`CREATE TABLE IF NOT EXISTS conversation_participants (
            conversation_id CHAR(24) NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
            user_id CHAR(24) NOT NULL,
            position INT NOT NULL DEFAULT 0,
            PRIMARY KEY (conversation_id, user_id)
        );`,
	`CREATE INDEX IF NOT EXISTS conversation_participants_user_idx ON conversation_participants (user_id);`,
	`CREATE TABLE IF NOT EXISTS messages (
            id CHAR(24) PRIMARY KEY,
            conversation_id CHAR(24) NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
            sender_id CHAR(24) NOT NULL,
            content TEXT NOT NULL,
            type TEXT NOT NULL DEFAULT 'text',
            status TEXT NOT NULL DEFAULT 'sent',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE INDEX IF NOT EXISTS messages_conversation_created_idx ON messages (conversation_id, created_at DESC);`,
	`CREATE TABLE IF NOT EXISTS message_reads (
            message_id CHAR(24) NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
            user_id CHAR(24) NOT NULL,
            read_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (message_id, user_id)
        );`,
}

func runMigrations(ctx context.Context, db *sqlx.DB) error {
	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	slog.Info("database migrations applied", "count", len(migrations))
	return nil
}

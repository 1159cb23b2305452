package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"campus-messaging/internal/logger"
)

// ChangeChannel is the NOTIFY channel the row triggers publish to.
const ChangeChannel = "campus_changes"

// Connect opens the database handle and runs migrations.
func Connect(ctx context.Context, dsn string, log *logger.Logger) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	log.Info("database migrations applied", zap.Int("count", len(migrations)))
	return db, nil
}

func runMigrations(ctx context.Context, db *sqlx.DB) error {
	for i, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

var migrations = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto;`,
	`CREATE TABLE IF NOT EXISTS profiles (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            username TEXT NOT NULL UNIQUE,
            display_name TEXT,
            avatar_url TEXT,
            cover_url TEXT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE TABLE IF NOT EXISTS conversations (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            type TEXT NOT NULL CHECK (type IN ('direct', 'group')),
            name TEXT,
            description TEXT,
            avatar_url TEXT,
            created_by UUID NOT NULL REFERENCES profiles(id),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            last_message_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE TABLE IF NOT EXISTS conversation_participants (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
            user_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
            role TEXT NOT NULL DEFAULT 'member' CHECK (role IN ('admin', 'moderator', 'member')),
            joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            last_read_at TIMESTAMPTZ,
            is_muted BOOLEAN NOT NULL DEFAULT FALSE,
            UNIQUE (conversation_id, user_id)
        );`,
	`CREATE INDEX IF NOT EXISTS conversation_participants_user_idx ON conversation_participants (user_id);`,
	`CREATE TABLE IF NOT EXISTS messages (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
            sender_id UUID NOT NULL REFERENCES profiles(id),
            content TEXT NOT NULL DEFAULT '',
            message_type TEXT NOT NULL DEFAULT 'text' CHECK (message_type IN ('text', 'image', 'video', 'document', 'audio')),
            reply_to UUID REFERENCES messages(id) ON DELETE SET NULL,
            edited_at TIMESTAMPTZ,
            deleted_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            client_token TEXT
        );`,
	`CREATE INDEX IF NOT EXISTS messages_conversation_created_idx ON messages (conversation_id, created_at);`,
	`CREATE TABLE IF NOT EXISTS message_attachments (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            message_id UUID NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
            file_name TEXT NOT NULL,
            file_url TEXT NOT NULL,
            file_type TEXT NOT NULL,
            file_size BIGINT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE TABLE IF NOT EXISTS message_reactions (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            message_id UUID NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
            user_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
            emoji TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            UNIQUE (message_id, user_id, emoji)
        );`,
	`CREATE TABLE IF NOT EXISTS read_receipts (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            message_id UUID NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
            user_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
            read_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            UNIQUE (message_id, user_id)
        );`,
	`CREATE TABLE IF NOT EXISTS user_presence (
            user_id UUID PRIMARY KEY REFERENCES profiles(id) ON DELETE CASCADE,
            is_online BOOLEAN NOT NULL DEFAULT FALSE,
            last_seen TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE TABLE IF NOT EXISTS typing_indicators (
            conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
            user_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
            is_typing BOOLEAN NOT NULL DEFAULT FALSE,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (conversation_id, user_id)
        );`,
	`CREATE OR REPLACE FUNCTION bump_last_message_at() RETURNS trigger AS $$
        BEGIN
            UPDATE conversations SET last_message_at = NEW.created_at, updated_at = NOW()
            WHERE id = NEW.conversation_id;
            RETURN NEW;
        END;
        $$ LANGUAGE plpgsql;`,
	`DROP TRIGGER IF EXISTS messages_bump_last_message_at ON messages;`,
	`CREATE TRIGGER messages_bump_last_message_at AFTER INSERT ON messages
        FOR EACH ROW EXECUTE FUNCTION bump_last_message_at();`,
	`CREATE OR REPLACE FUNCTION notify_campus_change() RETURNS trigger AS $$
        DECLARE
            row_data JSONB;
            conv TEXT;
        BEGIN
            IF TG_OP = 'DELETE' THEN
                row_data := to_jsonb(OLD);
            ELSE
                row_data := to_jsonb(NEW);
            END IF;

            IF TG_TABLE_NAME = 'conversations' THEN
                conv := row_data->>'id';
            ELSE
                conv := row_data->>'conversation_id';
            END IF;

            IF conv IS NULL AND row_data ? 'message_id' THEN
                SELECT m.conversation_id::text INTO conv FROM messages m
                WHERE m.id = (row_data->>'message_id')::uuid;
            END IF;

            PERFORM pg_notify('` + ChangeChannel + `', json_build_object(
                'table', TG_TABLE_NAME,
                'op', TG_OP,
                'id', row_data->>'id',
                'conversation_id', conv,
                'user_id', row_data->>'user_id'
            )::text);
            RETURN NULL;
        END;
        $$ LANGUAGE plpgsql;`,
}

// Tables whose row changes are published on ChangeChannel.
var notifyTables = []string{
	"conversations",
	"conversation_participants",
	"messages",
	"message_attachments",
	"message_reactions",
	"read_receipts",
	"user_presence",
	"typing_indicators",
}

func init() {
	for _, table := range notifyTables {
		trigger := table + "_notify_change"
		migrations = append(migrations,
			fmt.Sprintf(`DROP TRIGGER IF EXISTS %s ON %s;`, trigger, table),
			fmt.Sprintf(`CREATE TRIGGER %s AFTER INSERT OR UPDATE OR DELETE ON %s
        FOR EACH ROW EXECUTE FUNCTION notify_campus_change();`, trigger, table),
		)
	}
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// postgresBackend stores chat states in the chat_states table. Counter
// updates run as single upserts so concurrent webhooks stay consistent
// without client-side locking.
type postgresBackend struct {
	db *sqlx.DB
}

// NewPostgresBackend wraps an open connection. Callers own migrations.
func NewPostgresBackend(db *sqlx.DB) Backend {
	return &postgresBackend{db: db}
}

func (b *postgresBackend) ChatState(ctx context.Context, chatGUID string) (ChatState, error) {
	var st ChatState
	err := b.db.GetContext(ctx, &st, `
		SELECT chat_guid, last_read_message_guid, last_read_timestamp,
		       unread_count, total_messages_seen, created_at, updated_at
		FROM chat_states
		WHERE chat_guid = $1`, chatGUID)
	if errors.Is(err, sql.ErrNoRows) {
		return ChatState{}, ErrNotFound
	}
	if err != nil {
		return ChatState{}, fmt.Errorf("store: get chat state: %w", err)
	}
	return st, nil
}

func (b *postgresBackend) RecordMessage(ctx context.Context, chatGUID string) (ChatState, error) {
	var st ChatState
	err := b.db.GetContext(ctx, &st, `
		INSERT INTO chat_states (chat_guid, unread_count, total_messages_seen)
		VALUES ($1, 1, 1)
		ON CONFLICT (chat_guid) DO UPDATE
		SET unread_count        = chat_states.unread_count + 1,
		    total_messages_seen = chat_states.total_messages_seen + 1,
		    updated_at          = now()
		RETURNING chat_guid, last_read_message_guid, last_read_timestamp,
		          unread_count, total_messages_seen, created_at, updated_at`, chatGUID)
	if err != nil {
		return ChatState{}, fmt.Errorf("store: record message: %w", err)
	}
	return st, nil
}

func (b *postgresBackend) MarkRead(ctx context.Context, chatGUID, messageGUID string, readAt int64) (ChatState, error) {
	var st ChatState
	err := b.db.GetContext(ctx, &st, `
		INSERT INTO chat_states (chat_guid, last_read_message_guid, last_read_timestamp, unread_count, total_messages_seen)
		VALUES ($1, $2, $3, 0, 0)
		ON CONFLICT (chat_guid) DO UPDATE
		SET last_read_message_guid = $2,
		    last_read_timestamp    = $3,
		    unread_count           = 0,
		    updated_at             = now()
		RETURNING chat_guid, last_read_message_guid, last_read_timestamp,
		          unread_count, total_messages_seen, created_at, updated_at`,
		chatGUID, messageGUID, readAt)
	if err != nil {
		return ChatState{}, fmt.Errorf("store: mark read: %w", err)
	}
	return st, nil
}

func (b *postgresBackend) ListChatStates(ctx context.Context) ([]ChatState, error) {
	var out []ChatState
	err := b.db.SelectContext(ctx, &out, `
		SELECT chat_guid, last_read_message_guid, last_read_timestamp,
		       unread_count, total_messages_seen, created_at, updated_at
		FROM chat_states
		ORDER BY chat_guid`)
	if err != nil {
		return nil, fmt.Errorf("store: list chat states: %w", err)
	}
	return out, nil
}

func (b *postgresBackend) Close() error {
	return b.db.Close()
}

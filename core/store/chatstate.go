package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a chat has no recorded state.
var ErrNotFound = errors.New("store: chat state not found")

// ChatState tracks read progress for one chat. Timestamps from the relay
// are epoch milliseconds, matching the webhook payloads.
type ChatState struct {
	ChatGUID          string    `db:"chat_guid" json:"chat_guid"`
	LastReadGUID      string    `db:"last_read_message_guid" json:"last_read_message_guid,omitempty"`
	LastReadTimestamp int64     `db:"last_read_timestamp" json:"last_read_timestamp,omitempty"`
	UnreadCount       int       `db:"unread_count" json:"unread_count"`
	TotalMessagesSeen int       `db:"total_messages_seen" json:"total_messages_seen"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// Stats aggregates chat states for status endpoints.
type Stats struct {
	TotalChats           int     `json:"total_chats"`
	ActiveChats          int     `json:"active_chats"`
	TotalUnreadMessages  int     `json:"total_unread_messages"`
	AverageUnreadPerChat float64 `json:"average_unread_per_chat"`
}

// Backend persists chat read state. RecordMessage and MarkRead are atomic
// per chat so concurrent webhook deliveries cannot lose counts.
type Backend interface {
	ChatState(ctx context.Context, chatGUID string) (ChatState, error)
	RecordMessage(ctx context.Context, chatGUID string) (ChatState, error)
	MarkRead(ctx context.Context, chatGUID, messageGUID string, readAt int64) (ChatState, error)
	ListChatStates(ctx context.Context) ([]ChatState, error)
	Close() error
}

// Open constructs the backend selected by cfg.Driver. The file driver is
// the default so bots run without any database; postgres applies pending
// migrations before first use.
func Open(cfg Config) (Backend, error) {
	switch cfg.Driver {
	case "", "file":
		return NewFileBackend(cfg.Path)
	case "postgres":
		if err := RunMigrations(cfg); err != nil {
			return nil, err
		}
		db, err := Connect(cfg)
		if err != nil {
			return nil, err
		}
		return NewPostgresBackend(db), nil
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// ComputeStats folds chat states into the aggregate view.
func ComputeStats(states []ChatState) Stats {
	s := Stats{TotalChats: len(states)}
	for _, st := range states {
		s.TotalUnreadMessages += st.UnreadCount
		if st.UnreadCount > 0 {
			s.ActiveChats++
		}
	}
	if s.TotalChats > 0 {
		s.AverageUnreadPerChat = float64(s.TotalUnreadMessages) / float64(s.TotalChats)
	}
	return s
}

package backfill

import (
	"context"
	"database/sql"
	"time"
)

// LegacyMessage is one row of the keyword-era message archive.
type LegacyMessage struct {
	ChatID       string
	MessageID    string
	ChatUsername string
	Text         string
	Timestamp    time.Time
}

// Source reads the legacy archive. MessagesByChat must return rows in a
// stable order so that interrupted runs can be compared and re-run.
type Source interface {
	Chats(ctx context.Context) ([]string, error)
	MessagesByChat(ctx context.Context, chatID string) ([]LegacyMessage, error)
	CountByChat(ctx context.Context, chatID string) (int, error)
}

type PostgresSource struct {
	db *sql.DB
}

func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) Chats(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT chat_id FROM messages ORDER BY chat_id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []string
	for rows.Next() {
		var chatID string
		if err := rows.Scan(&chatID); err != nil {
			return nil, err
		}
		chats = append(chats, chatID)
	}
	return chats, rows.Err()
}

func (s *PostgresSource) MessagesByChat(ctx context.Context, chatID string) ([]LegacyMessage, error) {
	query := `SELECT chat_id, message_id, chat_username, text, sent_at FROM messages WHERE chat_id = $1 ORDER BY sent_at, message_id`
	rows, err := s.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []LegacyMessage
	for rows.Next() {
		var m LegacyMessage
		var username sql.NullString
		var sentAt sql.NullTime
		if err := rows.Scan(&m.ChatID, &m.MessageID, &username, &m.Text, &sentAt); err != nil {
			return nil, err
		}
		// Rows predating the username and timestamp columns carry NULLs;
		// they default to "no public link" and "indexed now".
		m.ChatUsername = username.String
		if sentAt.Valid {
			m.Timestamp = sentAt.Time
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *PostgresSource) CountByChat(ctx context.Context, chatID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM messages WHERE chat_id = $1`
	err := s.db.QueryRowContext(ctx, query, chatID).Scan(&count)
	return count, err
}

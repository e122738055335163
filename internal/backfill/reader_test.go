package backfill_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatlens/internal/backfill"
)

func TestPostgresSource_Chats(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	src := backfill.NewPostgresSource(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT chat_id FROM messages ORDER BY chat_id")).
		WillReturnRows(sqlmock.NewRows([]string{"chat_id"}).AddRow("c1").AddRow("c2"))

	chats, err := src.Chats(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, chats)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSource_MessagesByChat(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	src := backfill.NewPostgresSource(db)
	sentAt := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"chat_id", "message_id", "chat_username", "text", "sent_at"}).
		AddRow("c1", "1", "somechat", "hello", sentAt).
		AddRow("c1", "2", nil, "older row", nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT chat_id, message_id, chat_username, text, sent_at FROM messages WHERE chat_id = $1 ORDER BY sent_at, message_id")).
		WithArgs("c1").
		WillReturnRows(rows)

	messages, err := src.MessagesByChat(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, messages, 2)

	assert.Equal(t, "somechat", messages[0].ChatUsername)
	assert.Equal(t, sentAt, messages[0].Timestamp)

	// NULL username and sent_at fall back to zero values.
	assert.Equal(t, "", messages[1].ChatUsername)
	assert.True(t, messages[1].Timestamp.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSource_CountByChat(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	src := backfill.NewPostgresSource(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM messages WHERE chat_id = $1")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := src.CountByChat(context.Background(), "c1")
	assert.NoError(t, err)
	assert.Equal(t, 7, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSource_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	src := backfill.NewPostgresSource(db)

	mock.ExpectQuery("SELECT DISTINCT chat_id").WillReturnError(sql.ErrConnDone)

	_, err = src.Chats(context.Background())
	assert.Error(t, err)
}

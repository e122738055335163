package deadletter

import (
	"context"
	"database/sql"
	"time"
)

type Repository interface {
	Save(ctx context.Context, f *Failure) error
	List(ctx context.Context) ([]Failure, error)
	Count(ctx context.Context) (int, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Save(ctx context.Context, f *Failure) error {
	query := `INSERT INTO extraction_failures (chat_id, message_id, reason, enqueued_at) VALUES ($1, $2, $3, $4) RETURNING id, created_at`
	enqueuedAt := sql.NullTime{Time: f.EnqueuedAt, Valid: !f.EnqueuedAt.IsZero()}
	return r.db.QueryRowContext(ctx, query, f.ChatID, f.MessageID, f.Reason, enqueuedAt).Scan(&f.ID, &f.CreatedAt)
}

func (r *PostgresRepo) List(ctx context.Context) ([]Failure, error) {
	query := `SELECT id, chat_id, message_id, reason, enqueued_at, created_at FROM extraction_failures ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var failures []Failure
	for rows.Next() {
		var f Failure
		var enqueuedAt sql.NullTime
		if err := rows.Scan(&f.ID, &f.ChatID, &f.MessageID, &f.Reason, &enqueuedAt, &f.CreatedAt); err != nil {
			return nil, err
		}
		if enqueuedAt.Valid {
			f.EnqueuedAt = enqueuedAt.Time
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM extraction_failures`
	err := r.db.QueryRowContext(ctx, query).Scan(&count)
	return count, err
}

// RecordFailure adapts the repo to the pipeline's dead-letter hook.
func (r *PostgresRepo) RecordFailure(ctx context.Context, chatID, messageID, reason string, enqueuedAt time.Time) error {
	return r.Save(ctx, &Failure{
		ChatID:     chatID,
		MessageID:  messageID,
		Reason:     reason,
		EnqueuedAt: enqueuedAt,
	})
}

package quarantine

import (
	"context"
	"database/sql"
	"encoding/json"
)

type Repository interface {
	Save(ctx context.Context, e *Entry) error
	List(ctx context.Context) ([]Entry, error)
	Get(ctx context.Context, id string) (*Entry, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Save(ctx context.Context, e *Entry) error {
	query := `INSERT INTO quarantined_jobs (queue, job_id, payload, reason, reservations) VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`
	return r.db.QueryRowContext(ctx, query, e.Queue, e.JobID, []byte(e.Payload), e.Reason, e.Reservations).Scan(&e.ID, &e.CreatedAt)
}

func (r *PostgresRepo) List(ctx context.Context) ([]Entry, error) {
	query := `SELECT id, queue, job_id, payload, reason, reservations, created_at FROM quarantined_jobs ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var payload []byte
		if err := rows.Scan(&e.ID, &e.Queue, &e.JobID, &payload, &e.Reason, &e.Reservations, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Payload = json.RawMessage(payload)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Entry, error) {
	e := &Entry{}
	var payload []byte
	query := `SELECT id, queue, job_id, payload, reason, reservations, created_at FROM quarantined_jobs WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&e.ID, &e.Queue, &e.JobID, &payload, &e.Reason, &e.Reservations, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.Payload = json.RawMessage(payload)
	return e, nil
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM quarantined_jobs WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM quarantined_jobs`
	err := r.db.QueryRowContext(ctx, query).Scan(&count)
	return count, err
}

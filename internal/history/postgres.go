package history

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	postgresSchema = `CREATE TABLE IF NOT EXISTS load_test_history (
	id         TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL,
	payload    JSONB NOT NULL
)`
	postgresInsert = `INSERT INTO load_test_history (id, created_at, payload) VALUES ($1, $2, $3)`
	postgresList   = `SELECT payload FROM load_test_history ORDER BY created_at DESC, id DESC LIMIT $1`
	postgresGet    = `SELECT payload FROM load_test_history WHERE id = $1`
	postgresDelete = `DELETE FROM load_test_history WHERE id = $1`
	postgresClear  = `TRUNCATE TABLE load_test_history`
	postgresTrim   = `DELETE FROM load_test_history WHERE id NOT IN (
	SELECT id FROM load_test_history ORDER BY created_at DESC, id DESC LIMIT $1
)`

	// SQLSTATE class 53 "insufficient resources": disk_full and out_of_memory.
	pgDiskFull    = "53100"
	pgOutOfMemory = "53200"
)

type PostgresRepository struct {
	pool    *pgxpool.Pool
	url     string
	once    sync.Once
	initErr error
}

func NewPostgresRepository(connectionString string) *PostgresRepository {
	return &PostgresRepository{url: connectionString}
}

func (r *PostgresRepository) connect(ctx context.Context) error {
	r.once.Do(func() {
		config, err := pgxpool.ParseConfig(r.url)
		if err != nil {
			r.initErr = err
			return
		}
		config.MaxConns = 10
		config.MinConns = 1
		pool, err := pgxpool.NewWithConfig(ctx, config)
		if err != nil {
			r.initErr = err
			return
		}
		if _, err := pool.Exec(ctx, postgresSchema); err != nil {
			pool.Close()
			r.initErr = err
			return
		}
		r.pool = pool
	})
	return r.initErr
}

func (r *PostgresRepository) Insert(ctx context.Context, e *Entry) error {
	if err := r.connect(ctx); err != nil {
		return err
	}
	data, err := encodeEntry(e)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, postgresInsert, e.ID, e.Timestamp, data)
	return postgresError(err)
}

func (r *PostgresRepository) List(ctx context.Context, limit int) ([]Entry, error) {
	if err := r.connect(ctx); err != nil {
		return nil, err
	}

	var bound any
	if limit > 0 {
		bound = limit
	}
	rows, err := r.pool.Query(ctx, postgresList, bound)
	if err != nil {
		return nil, err
	}
	payloads, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(payloads))
	for _, payload := range payloads {
		e, err := decodeEntry(payload)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Entry, error) {
	if err := r.connect(ctx); err != nil {
		return nil, err
	}

	var payload []byte
	err := r.pool.QueryRow(ctx, postgresGet, id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeEntry(payload)
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) (bool, error) {
	if err := r.connect(ctx); err != nil {
		return false, err
	}
	tag, err := r.pool.Exec(ctx, postgresDelete, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) DeleteAll(ctx context.Context) error {
	if err := r.connect(ctx); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, postgresClear)
	return err
}

func (r *PostgresRepository) Trim(ctx context.Context, keep int) error {
	if err := r.connect(ctx); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, postgresTrim, max(keep, 0))
	return err
}

func (r *PostgresRepository) HealthCheck(ctx context.Context) error {
	if err := r.connect(ctx); err != nil {
		return err
	}
	return r.pool.Ping(ctx)
}

func (r *PostgresRepository) Disconnect(context.Context) error {
	if r.pool != nil {
		r.pool.Close()
	}
	return nil
}

func postgresError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == pgDiskFull || pgErr.Code == pgOutOfMemory) {
		return errors.Join(ErrQuotaExceeded, err)
	}
	return err
}

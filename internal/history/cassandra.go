package history

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gocql/gocql"
)

// All entries share one partition; the history is capped, so it never grows large.
const (
	cassandraBucket = "history"
	cassandraSchema = `CREATE TABLE IF NOT EXISTS load_test_history (
	bucket     text,
	created_at timestamp,
	id         text,
	payload    text,
	PRIMARY KEY ((bucket), created_at, id)
) WITH CLUSTERING ORDER BY (created_at DESC, id DESC)`
)

type CassandraRepository struct {
	session       *gocql.Session
	contactPoints []string
	localDC       string
	keyspace      string
	once          sync.Once
	initErr       error
}

func NewCassandraRepository(contactPoints []string, localDC, keyspace string) *CassandraRepository {
	return &CassandraRepository{
		contactPoints: contactPoints,
		localDC:       localDC,
		keyspace:      keyspace,
	}
}

func (r *CassandraRepository) connect() error {
	r.once.Do(func() {
		cluster := gocql.NewCluster(r.contactPoints...)
		cluster.Keyspace = r.keyspace
		cluster.Consistency = gocql.Quorum
		if r.localDC != "" {
			cluster.PoolConfig.HostSelectionPolicy = gocql.DCAwareRoundRobinPolicy(r.localDC)
		}
		session, err := cluster.CreateSession()
		if err != nil {
			r.initErr = err
			return
		}
		if err := session.Query(cassandraSchema).Exec(); err != nil {
			session.Close()
			r.initErr = err
			return
		}
		r.session = session
	})
	return r.initErr
}

type cassandraRow struct {
	createdAt time.Time
	id        string
	payload   string
}

// rows walks the partition newest first, stopping after limit rows when limit is positive.
func (r *CassandraRepository) rows(ctx context.Context, limit int) ([]cassandraRow, error) {
	iter := r.session.Query(
		`SELECT created_at, id, payload FROM load_test_history WHERE bucket = ?`, cassandraBucket,
	).WithContext(ctx).Iter()

	var (
		out []cassandraRow
		row cassandraRow
	)
	for iter.Scan(&row.createdAt, &row.id, &row.payload) {
		out = append(out, row)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *CassandraRepository) find(ctx context.Context, id string) (*cassandraRow, error) {
	all, err := r.rows(ctx, 0)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].id == id {
			return &all[i], nil
		}
	}
	return nil, nil
}

func (r *CassandraRepository) Insert(ctx context.Context, e *Entry) error {
	if err := r.connect(); err != nil {
		return err
	}
	data, err := encodeEntry(e)
	if err != nil {
		return err
	}
	return r.session.Query(
		`INSERT INTO load_test_history (bucket, created_at, id, payload) VALUES (?, ?, ?, ?)`,
		cassandraBucket, e.Timestamp, e.ID, string(data),
	).WithContext(ctx).Exec()
}

func (r *CassandraRepository) List(ctx context.Context, limit int) ([]Entry, error) {
	if err := r.connect(); err != nil {
		return nil, err
	}
	rows, err := r.rows(ctx, limit)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		e, err := decodeEntry([]byte(row.payload))
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, nil
}

func (r *CassandraRepository) Get(ctx context.Context, id string) (*Entry, error) {
	if err := r.connect(); err != nil {
		return nil, err
	}
	row, err := r.find(ctx, id)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if row == nil {
		return nil, ErrNotFound
	}
	return decodeEntry([]byte(row.payload))
}

func (r *CassandraRepository) Delete(ctx context.Context, id string) (bool, error) {
	if err := r.connect(); err != nil {
		return false, err
	}
	row, err := r.find(ctx, id)
	if err != nil || row == nil {
		return false, err
	}
	return true, r.deleteRow(ctx, row)
}

func (r *CassandraRepository) deleteRow(ctx context.Context, row *cassandraRow) error {
	return r.session.Query(
		`DELETE FROM load_test_history WHERE bucket = ? AND created_at = ? AND id = ?`,
		cassandraBucket, row.createdAt, row.id,
	).WithContext(ctx).Exec()
}

func (r *CassandraRepository) DeleteAll(ctx context.Context) error {
	if err := r.connect(); err != nil {
		return err
	}
	return r.session.Query(`TRUNCATE load_test_history`).WithContext(ctx).Exec()
}

func (r *CassandraRepository) Trim(ctx context.Context, keep int) error {
	if err := r.connect(); err != nil {
		return err
	}
	all, err := r.rows(ctx, 0)
	if err != nil {
		return err
	}
	for i := max(keep, 0); i < len(all); i++ {
		if err := r.deleteRow(ctx, &all[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *CassandraRepository) HealthCheck(ctx context.Context) error {
	if err := r.connect(); err != nil {
		return err
	}
	return r.session.Query(`SELECT now() FROM system.local`).WithContext(ctx).Exec()
}

func (r *CassandraRepository) Disconnect(context.Context) error {
	if r.session != nil {
		r.session.Close()
	}
	return nil
}

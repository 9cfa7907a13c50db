package exportstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	_ "embed"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

// Open opens the archive at dsn: a remote libsql database for libsql:// and http(s)://
// urls, a local sqlite file otherwise. The schema is created when missing.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("an archive path was not specified")
	}

	var db *sql.DB
	var err error
	if isRemote(dsn) {
		db, err = sql.Open("libsql", dsn)
		if err != nil {
			return nil, err
		}
	} else {
		if dsn != ":memory:" {
			_, statErr := os.Stat(dsn)
			if os.IsNotExist(statErr) {
				f, err := os.Create(dsn)
				if err != nil {
					return nil, err
				}
				f.Close()
			}
		}
		db, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, err
		}
		// a single connection serializes writers and keeps :memory: a single database
		db.SetMaxOpenConns(1)
		_, err = db.Exec("PRAGMA journal_mode=WAL")
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	_, err = db.Exec(Schema)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return db, nil
}

func isRemote(dsn string) bool {
	for _, scheme := range []string{"libsql://", "http://", "https://", "wss://"} {
		if strings.HasPrefix(dsn, scheme) {
			return true
		}
	}
	return false
}

// Export is one retrieved payload.
type Export struct {
	Id          int64
	Report      string
	Format      string
	RetrievedAt time.Time
	RecordCount int
	Payload     []byte
}

type Store struct {
	db *sql.DB
}

func NewStore(database *sql.DB) Store {
	return Store{db: database}
}

// Put archives an export and returns its id.
func (s Store) Put(ctx context.Context, export Export) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`insert into export(report, format, retrieved_at, record_count, payload) values (?, ?, ?, ?, ?)`,
		export.Report,
		export.Format,
		export.RetrievedAt.Unix(),
		export.RecordCount,
		export.Payload,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ErrNotFound is returned by Latest when a report was never archived.
var ErrNotFound = errors.New("export not found")

// Latest returns the most recent export of a report.
func (s Store) Latest(ctx context.Context, report string) (Export, error) {
	row := s.db.QueryRowContext(
		ctx,
		`select id, report, format, retrieved_at, record_count, payload from export
		where report = ?
		order by retrieved_at desc, id desc
		limit 1`,
		report,
	)

	var export Export
	var retrievedAt int64
	err := row.Scan(
		&export.Id,
		&export.Report,
		&export.Format,
		&retrievedAt,
		&export.RecordCount,
		&export.Payload,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Export{}, ErrNotFound
	}
	if err != nil {
		return Export{}, err
	}
	export.RetrievedAt = time.Unix(retrievedAt, 0)
	return export, nil
}

// Summary is an export without its payload.
type Summary struct {
	Report      string
	Format      string
	RetrievedAt time.Time
	RecordCount int
}

// List returns the latest export of every report, ordered by report name.
func (s Store) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`select e.report, e.format, e.retrieved_at, e.record_count from export e
		where e.id = (
			select id from export
			where report = e.report
			order by retrieved_at desc, id desc
			limit 1
		)
		order by e.report`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var summary Summary
		var retrievedAt int64
		err := rows.Scan(&summary.Report, &summary.Format, &retrievedAt, &summary.RecordCount)
		if err != nil {
			return nil, err
		}
		summary.RetrievedAt = time.Unix(retrievedAt, 0)
		out = append(out, summary)
	}
	return out, rows.Err()
}

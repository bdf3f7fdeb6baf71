package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/HatiCode/linecast/pkg/occupancy"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store on a local SQLite file. The schema is
// brought up to date by the embedded migrations when the store opens.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and runs
// pending migrations.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One writer keeps SQLite from answering SQLITE_BUSY under concurrent use.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}

	if err := migrateUp(db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func migrateUp(db *sql.DB, logger *slog.Logger) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	m.Log = migrateLogger{logger: logger}
	// m is not closed: closing it would close db.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// migrateLogger adapts slog to migrate.Logger.
type migrateLogger struct {
	logger *slog.Logger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...), "component", "migrate")
}

func (l migrateLogger) Verbose() bool { return false }

// SetLatest upserts the single status row.
func (s *SQLiteStore) SetLatest(ctx context.Context, sample occupancy.Sample) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO line_status (id, people, timestamp) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET people = excluded.people, timestamp = excluded.timestamp`,
		sample.Count, sample.Timestamp.Unix())
	if err != nil {
		return fmt.Errorf("set latest in sqlite: %w", err)
	}
	return nil
}

// AppendHistory inserts a row and returns its rowid as the key.
func (s *SQLiteStore) AppendHistory(ctx context.Context, sample occupancy.Sample) (string, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO line_history (people, timestamp) VALUES (?, ?)`,
		sample.Count, sample.Timestamp.Unix())
	if err != nil {
		return "", fmt.Errorf("append history to sqlite: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("append history to sqlite: %w", err)
	}
	return strconv.FormatInt(id, 10), nil
}

// GetLatest reads the status row.
func (s *SQLiteStore) GetLatest(ctx context.Context) (occupancy.Sample, bool, error) {
	var people, ts int64
	err := s.db.QueryRowContext(ctx,
		`SELECT people, timestamp FROM line_status WHERE id = 1`).Scan(&people, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return occupancy.Sample{}, false, nil
	}
	if err != nil {
		return occupancy.Sample{}, false, fmt.Errorf("get latest from sqlite: %w", err)
	}
	return occupancy.Sample{Count: int(people), Timestamp: time.Unix(ts, 0)}, true, nil
}

// History returns every history row ordered by id.
func (s *SQLiteStore) History(ctx context.Context) ([]HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, people, timestamp FROM line_history ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("read history from sqlite: %w", err)
	}
	defer rows.Close()

	var out []HistoryRecord
	for rows.Next() {
		var (
			id     int64
			people sql.NullInt64
			ts     sql.NullInt64
		)
		if err := rows.Scan(&id, &people, &ts); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		rec := HistoryRecord{Key: strconv.FormatInt(id, 10)}
		if people.Valid && ts.Valid {
			rec.Sample = occupancy.Sample{Count: int(people.Int64), Timestamp: time.Unix(ts.Int64, 0)}
			rec.Complete = true
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read history from sqlite: %w", err)
	}
	return out, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

package repository

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/okian/laptimer/internal/domain/laps"
	"github.com/okian/laptimer/internal/domain/model"
	"github.com/okian/laptimer/internal/domain/types"
	"github.com/okian/laptimer/pkg/logger"
	"github.com/okian/laptimer/pkg/metrics"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore keeps results in a SQLite database whose schema is managed by
// embedded migrations.
type SQLiteStore struct {
	db     *sql.DB
	logger logger.Logger
}

// NewSQLiteStore opens (or creates) the database at path and migrates it to
// the latest schema.
func NewSQLiteStore(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	o := applyOptions(opts)
	if dir := filepath.Dir(path); path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, logger: o.logger.Named("sqlite")}
	if err := s.migrateUp(); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.logger.Info(ctx, "sqlite store ready", logger.String("path", path), logger.Int("results", s.Count(ctx)))
	return s, nil
}

func (s *SQLiteStore) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	// m is not closed: closing it would close the shared *sql.DB.
	m.Log = migrateLogger{l: s.logger}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// SchemaVersion returns the applied migration version.
func (s *SQLiteStore) SchemaVersion() (uint, error) {
	var v uint
	err := s.db.QueryRow(`SELECT version FROM schema_migrations LIMIT 1`).Scan(&v)
	return v, err
}

// migrateLogger adapts logger.Logger to migrate.Logger.
type migrateLogger struct {
	l logger.Logger
}

func (m migrateLogger) Printf(format string, v ...interface{}) {
	m.l.Debug(context.Background(), fmt.Sprintf("[migrate] "+format, v...))
}

func (m migrateLogger) Verbose() bool { return false }

// Save implements Store.Save inside a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, r model.RaceResult) (err error) {
	defer track(KindSQLite, "save", time.Now())
	defer func() {
		if err != nil {
			metrics.RecordStoreError(KindSQLite, "save")
		}
	}()

	if err := validate(r); err != nil {
		return err
	}
	r = normalize(r)
	detection, err := json.Marshal(r.DetectionSettings)
	if err != nil {
		return fmt.Errorf("encode detection settings: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO results (
			id, recorded_at, lap_count, total_time, average_lap, best_lap,
			worst_lap, best_lap_number, max_laps, completed, detection
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Timestamp.UnixNano(), r.LapCount, r.TotalTime, r.AverageLap, r.BestLap,
		r.WorstLap, r.BestLapNumber, r.MaxLaps, boolInt(r.Completed), string(detection),
	); err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM laps WHERE result_id = ?`, r.ID); err != nil {
		return fmt.Errorf("clear laps: %w", err)
	}
	for i, sec := range r.LapTimes {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO laps (result_id, lap_number, seconds, micros) VALUES (?, ?, ?, ?)`,
			r.ID, i+1, sec, int64(toMicros(sec)),
		); err != nil {
			return fmt.Errorf("insert lap: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	metrics.UpdateStoredRaces(s.Count(ctx))
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

const resultColumns = `id, recorded_at, lap_count, total_time, average_lap, best_lap,
	worst_lap, best_lap_number, max_laps, completed, detection`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (model.RaceResult, error) {
	var (
		r         model.RaceResult
		nanos     int64
		detection string
	)
	if err := row.Scan(&r.ID, &nanos, &r.LapCount, &r.TotalTime, &r.AverageLap, &r.BestLap,
		&r.WorstLap, &r.BestLapNumber, &r.MaxLaps, &r.Completed, &detection); err != nil {
		return model.RaceResult{}, err
	}
	r.Timestamp = time.Unix(0, nanos)
	if err := json.Unmarshal([]byte(detection), &r.DetectionSettings); err != nil {
		return model.RaceResult{}, fmt.Errorf("decode detection settings: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) lapTimes(ctx context.Context, id string) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT seconds FROM laps WHERE result_id = ? ORDER BY lap_number`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var sec float64
		if err := rows.Scan(&sec); err != nil {
			return nil, err
		}
		out = append(out, sec)
	}
	return out, rows.Err()
}

// Get implements Store.Get.
func (s *SQLiteStore) Get(ctx context.Context, id string) (model.RaceResult, error) {
	defer track(KindSQLite, "get", time.Now())

	r, err := scanResult(s.db.QueryRowContext(ctx, `SELECT `+resultColumns+` FROM results WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.RaceResult{}, ErrNotFound
	}
	if err != nil {
		metrics.RecordStoreError(KindSQLite, "get")
		return model.RaceResult{}, err
	}
	if r.LapTimes, err = s.lapTimes(ctx, id); err != nil {
		metrics.RecordStoreError(KindSQLite, "get")
		return model.RaceResult{}, err
	}
	return r, nil
}

// List implements Store.List.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]model.RaceResult, error) {
	defer track(KindSQLite, "list", time.Now())

	if limit < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+resultColumns+` FROM results ORDER BY recorded_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		metrics.RecordStoreError(KindSQLite, "list")
		return nil, err
	}
	var out []model.RaceResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for i := range out {
		if out[i].LapTimes, err = s.lapTimes(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// BestLaps implements Store.BestLaps using the laps time index.
func (s *SQLiteStore) BestLaps(ctx context.Context, n int) ([]types.LapEntry, error) {
	defer track(KindSQLite, "best_laps", time.Now())

	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.result_id, l.lap_number, l.seconds, r.recorded_at
		FROM laps l JOIN results r ON r.id = l.result_id
		ORDER BY l.micros, l.result_id, l.lap_number
		LIMIT ?`, n)
	if err != nil {
		metrics.RecordStoreError(KindSQLite, "best_laps")
		return nil, err
	}
	defer rows.Close()

	out := make([]types.LapEntry, 0, n)
	for rows.Next() {
		var (
			e     types.LapEntry
			nanos int64
		)
		if err := rows.Scan(&e.RaceID, &e.LapNumber, &e.Seconds, &nanos); err != nil {
			return nil, err
		}
		e.Formatted = laps.FormatSeconds(e.Seconds)
		e.RecordedAt = time.Unix(0, nanos)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	assignRanksWithTies(out)
	return out, nil
}

// Count implements Store.Count. Query failures count as zero.
func (s *SQLiteStore) Count(ctx context.Context) int {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM results`).Scan(&n); err != nil {
		metrics.RecordStoreError(KindSQLite, "count")
		return 0
	}
	return n
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"uav-deconflict/internal/deconflict"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var ErrNotFound = errors.New("run not found")

// Run is one recorded deconfliction check.
type Run struct {
	ID           string                   `json:"id"`
	Scenario     string                   `json:"scenario"`
	PrimaryID    string                   `json:"primary_id"`
	TrafficCount int                      `json:"traffic_count"`
	Window       deconflict.MissionWindow `json:"window"`
	Config       deconflict.Config        `json:"config"`
	Result       deconflict.CheckResult   `json:"result"`
	CheckedAt    time.Time                `json:"checked_at"`

	// Primary and Traffic are the checked trajectories, kept so a run can be
	// re-plotted later.
	Primary deconflict.Trajectory   `json:"primary"`
	Traffic []deconflict.Trajectory `json:"traffic"`
}

type runInput struct {
	Primary deconflict.Trajectory   `json:"primary"`
	Traffic []deconflict.Trajectory `json:"traffic"`
}

// Store keeps check runs in a sqlite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps writers serialized and lets ":memory:" work.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrateUp(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	// m is not closed: that would close the shared *sql.DB.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// SchemaVersion returns the applied migration version and dirty state.
func (s *Store) SchemaVersion() (uint, bool, error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }

// Record stores run, assigning an ID and timestamp when they are unset.
func (s *Store) Record(ctx context.Context, run Run) (Run, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CheckedAt.IsZero() {
		run.CheckedAt = time.Now().UTC()
	}
	cfgJSON, err := json.Marshal(run.Config)
	if err != nil {
		return Run{}, err
	}
	resJSON, err := json.Marshal(run.Result)
	if err != nil {
		return Run{}, err
	}
	inJSON, err := json.Marshal(runInput{Primary: run.Primary, Traffic: run.Traffic})
	if err != nil {
		return Run{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO check_runs (
			run_id, scenario, primary_id, traffic_count, status, conflict_count,
			t_start, t_end, config_json, result_json, input_json, checked_at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Scenario, run.PrimaryID, run.TrafficCount, run.Result.Status, len(run.Result.Conflicts),
		run.Window.TStart, run.Window.TEnd, string(cfgJSON), string(resJSON), string(inJSON), run.CheckedAt.UnixNano(),
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, selectRuns+` WHERE run_id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return run, err
}

type ListOptions struct {
	// Scenario filters by scenario name when set.
	Scenario string
	// Limit defaults to 50.
	Limit int
}

// List returns runs newest first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Run, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	q := selectRuns
	args := []any{}
	if opts.Scenario != "" {
		q += ` WHERE scenario = ?`
		args = append(args, opts.Scenario)
	}
	q += ` ORDER BY checked_at_ns DESC, rowid DESC LIMIT ?`
	args = append(args, opts.Limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

const selectRuns = `
	SELECT run_id, scenario, primary_id, traffic_count, t_start, t_end,
		config_json, result_json, input_json, checked_at_ns
	FROM check_runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		run              Run
		cfgJSON, resJSON string
		inJSON           string
		checkedAt        int64
	)
	if err := sc.Scan(&run.ID, &run.Scenario, &run.PrimaryID, &run.TrafficCount,
		&run.Window.TStart, &run.Window.TEnd, &cfgJSON, &resJSON, &inJSON, &checkedAt); err != nil {
		return Run{}, err
	}
	if err := json.Unmarshal([]byte(cfgJSON), &run.Config); err != nil {
		return Run{}, fmt.Errorf("run %s config: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(resJSON), &run.Result); err != nil {
		return Run{}, fmt.Errorf("run %s result: %w", run.ID, err)
	}
	var in runInput
	if err := json.Unmarshal([]byte(inJSON), &in); err != nil {
		return Run{}, fmt.Errorf("run %s input: %w", run.ID, err)
	}
	run.Primary, run.Traffic = in.Primary, in.Traffic
	run.CheckedAt = time.Unix(0, checkedAt).UTC()
	return run, nil
}

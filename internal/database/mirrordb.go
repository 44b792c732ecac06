package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/sitemirror/internal/model"
)

// FileName is the name of the database file inside the database directory.
const FileName = "sitemirror.db"

// MirrorDB is the SQLite store of mirror sessions.
type MirrorDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures MirrorDB behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file if needed.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the database in dbDir.
func Open(dbDir string, opts Options) (*MirrorDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if opts.CreateIfNotExists {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	} else if _, err := os.Stat(dbPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w at %s", ErrNoDatabase, dbPath)
		}
		return nil, fmt.Errorf("failed to check database path: %w", err)
	}

	// mode=rw refuses to create a missing file, mode=rwc creates it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	mdb := &MirrorDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := mdb.createTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return mdb, nil
}

// Path returns the database file path.
func (m *MirrorDB) Path() string {
	return m.dbPath
}

// Close closes the database connection.
func (m *MirrorDB) Close() error {
	return m.db.Close()
}

func (m *MirrorDB) createTables(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		host TEXT NOT NULL,
		seeds TEXT NOT NULL,
		output_dir TEXT,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		total INTEGER NOT NULL DEFAULT 0,
		saved INTEGER NOT NULL DEFAULT 0,
		filtered INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		bytes INTEGER NOT NULL DEFAULT 0,
		timed_out INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_host ON sessions(host);
	CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);

	CREATE TABLE IF NOT EXISTS resources (
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		local_path TEXT,
		content_type TEXT,
		status TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		sha256 TEXT,
		depth INTEGER NOT NULL DEFAULT 0,
		title TEXT,
		error TEXT,
		PRIMARY KEY (session_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_resources_url ON resources(url);
	`

	_, err := m.db.ExecContext(ctx, schema)
	return err
}

// SessionSummary is one row of the sessions table.
type SessionSummary struct {
	ID         string
	Host       string
	Seeds      []string
	OutputDir  string
	StartedAt  time.Time
	FinishedAt time.Time
	Total      int
	Saved      int
	Filtered   int
	Failed     int
	Bytes      int64
	TimedOut   bool
	Error      string
}

// SaveReport stores report and its resource records. Saving the same
// session again replaces the earlier rows.
func (m *MirrorDB) SaveReport(ctx context.Context, report *model.MirrorReport) (err error) {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}
	seedsJSON, err := json.Marshal(report.Seeds)
	if err != nil {
		return fmt.Errorf("failed to serialize seeds: %w", err)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO sessions (id, host, seeds, output_dir, started_at, finished_at,
		total, saved, filtered, failed, bytes, timed_out, error, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		output_dir = excluded.output_dir,
		finished_at = excluded.finished_at,
		total = excluded.total,
		saved = excluded.saved,
		filtered = excluded.filtered,
		failed = excluded.failed,
		bytes = excluded.bytes,
		timed_out = excluded.timed_out,
		error = excluded.error,
		report_json = excluded.report_json
	`,
		report.SessionID,
		SessionHost(report.Seeds),
		string(seedsJSON),
		report.OutputDir,
		formatTimestamp(report.StartedAt),
		formatTimestamp(report.FinishedAt),
		report.Stats.Total,
		report.Stats.Saved,
		report.Stats.Filtered,
		report.Stats.Failed,
		report.Stats.Bytes,
		report.TimedOut,
		report.Error,
		string(reportJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM resources WHERE session_id = ?`, report.SessionID); err != nil {
		return fmt.Errorf("failed to clear resources: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO resources (session_id, url, local_path, content_type, status, size, sha256, depth, title, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare resource insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range report.Resources {
		if _, err = stmt.ExecContext(ctx,
			report.SessionID, rec.URL, rec.LocalPath, rec.ContentType, rec.Status,
			rec.Size, rec.SHA256, rec.Depth, rec.Title, rec.Error,
		); err != nil {
			return fmt.Errorf("failed to save resource %s: %w", rec.URL, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	return nil
}

// GetReport returns the stored report of a session.
func (m *MirrorDB) GetReport(ctx context.Context, sessionID string) (*model.MirrorReport, error) {
	var reportJSON string
	err := m.db.QueryRowContext(ctx, `SELECT report_json FROM sessions WHERE id = ?`, sessionID).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	var report model.MirrorReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// ListSessions returns the sessions of host, newest first. An empty host
// lists every session.
func (m *MirrorDB) ListSessions(ctx context.Context, host string) ([]SessionSummary, error) {
	query := `
	SELECT id, host, seeds, output_dir, started_at, finished_at,
		total, saved, filtered, failed, bytes, timed_out, error
	FROM sessions
	WHERE 1=1
	`
	args := make([]any, 0, 1)
	if host != "" {
		query += " AND host = ?"
		args = append(args, strings.ToLower(host))
	}
	query += " ORDER BY started_at DESC"

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionSummary
	for rows.Next() {
		var (
			s                     SessionSummary
			seedsJSON             string
			outputDir, errMsg     sql.NullString
			startedAt, finishedAt sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.Host, &seedsJSON, &outputDir, &startedAt, &finishedAt,
			&s.Total, &s.Saved, &s.Filtered, &s.Failed, &s.Bytes, &s.TimedOut, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if err := json.Unmarshal([]byte(seedsJSON), &s.Seeds); err != nil {
			s.Seeds = nil
		}
		s.OutputDir = outputDir.String
		s.Error = errMsg.String
		s.StartedAt = parseTimestamp(startedAt.String)
		s.FinishedAt = parseTimestamp(finishedAt.String)
		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}

// LatestSession returns the newest session of host.
func (m *MirrorDB) LatestSession(ctx context.Context, host string) (*SessionSummary, error) {
	sessions, err := m.ListSessions(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, fmt.Errorf("%w: no session for %s", ErrNotFound, host)
	}
	return &sessions[0], nil
}

// ListHosts returns every mirrored host.
func (m *MirrorDB) ListHosts(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT DISTINCT host FROM sessions ORDER BY host`)
	if err != nil {
		return nil, fmt.Errorf("failed to list hosts: %w", err)
	}
	defer rows.Close()

	var hosts []string
	for rows.Next() {
		var host string
		if err := rows.Scan(&host); err != nil {
			return nil, fmt.Errorf("failed to scan host: %w", err)
		}
		hosts = append(hosts, host)
	}
	return hosts, rows.Err()
}

// Resources returns the resource records of a session, ordered by URL.
func (m *MirrorDB) Resources(ctx context.Context, sessionID string) ([]model.ResourceRecord, error) {
	rows, err := m.db.QueryContext(ctx, `
	SELECT url, local_path, content_type, status, size, sha256, depth, title, error
	FROM resources
	WHERE session_id = ?
	ORDER BY url
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get resources: %w", err)
	}
	defer rows.Close()

	var records []model.ResourceRecord
	for rows.Next() {
		var (
			rec                                  model.ResourceRecord
			localPath, ct, sum, title, errString sql.NullString
		)
		if err := rows.Scan(&rec.URL, &localPath, &ct, &rec.Status, &rec.Size, &sum, &rec.Depth, &title, &errString); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		rec.LocalPath = localPath.String
		rec.ContentType = ct.String
		rec.SHA256 = sum.String
		rec.Title = title.String
		rec.Error = errString.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SessionHost returns the lowercase host of the first parsable seed.
func SessionHost(seeds []string) string {
	for _, seed := range seeds {
		if u, err := url.Parse(seed); err == nil && u.Hostname() != "" {
			return strings.ToLower(u.Hostname())
		}
	}
	return ""
}

// timestampFormats are the formats SQLite may hand back. More specific
// formats come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999",
}

// storedTimeFormat has a fixed width so stored timestamps sort as text.
const storedTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(storedTimeFormat)
}

// parseTimestamp returns the zero time if s matches no known format.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Package eventlog implements the Event Log Store (C1): a durable,
// append-mostly table of RawEvents, deduplicated by (source, external
// id).
package eventlog

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"

	"github.com/kalambet/hivemind/internal/herrors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding the raw_events table.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database at dataDir/eventlog.db and
// runs pending migrations. Pass ":memory:" for an in-memory database.
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "eventlog.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// Insert stages a RawEvent with status pending. If (source, externalID)
// already exists, it returns the id of the existing row and
// herrors.Duplicate — per spec §7, callers should treat this as success.
func (s *Store) Insert(e RawEvent) (string, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.IngestedAt.IsZero() {
		e.IngestedAt = time.Now().UTC()
	}

	if e.ExternalID != "" {
		existing, err := s.findByExternalID(e.Source, e.ExternalID)
		if err != nil {
			return "", err
		}
		if existing != "" {
			return existing, herrors.Wrap(herrors.KindDuplicate,
				fmt.Sprintf("event %s/%s already ingested", e.Source, e.ExternalID), herrors.Duplicate)
		}
	}

	payloadJSON, err := json.Marshal(e.Payload)
	if err != nil {
		return "", fmt.Errorf("marshaling payload: %w", err)
	}
	metaJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return "", fmt.Errorf("marshaling metadata: %w", err)
	}

	var externalID sql.NullString
	if e.ExternalID != "" {
		externalID = sql.NullString{String: e.ExternalID, Valid: true}
	}

	_, err = s.db.Exec(`
		INSERT INTO raw_events (id, source, event_type, external_id, payload_json, metadata_json, ingested_at, processing_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Source, e.EventType, externalID, payloadJSON, metaJSON,
		e.IngestedAt.Format(time.RFC3339Nano), StatusPending,
	)
	if err != nil {
		if isUniqueViolation(err) {
			existing, lookupErr := s.findByExternalID(e.Source, e.ExternalID)
			if lookupErr == nil && existing != "" {
				return existing, herrors.Wrap(herrors.KindDuplicate,
					fmt.Sprintf("event %s/%s already ingested", e.Source, e.ExternalID), herrors.Duplicate)
			}
		}
		return "", fmt.Errorf("inserting raw event: %w", err)
	}
	return e.ID, nil
}

func (s *Store) findByExternalID(source, externalID string) (string, error) {
	var id string
	err := s.db.QueryRow(`SELECT id FROM raw_events WHERE source = ? AND external_id = ?`, source, externalID).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("looking up event by external id: %w", err)
	}
	return id, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// MarkStatus is an idempotent status transition; repeated calls with the
// same arguments are no-ops.
func (s *Store) MarkStatus(id string, status Status, at time.Time) error {
	var processedAt sql.NullString
	if status == StatusCompleted || status == StatusFailed {
		processedAt = sql.NullString{String: at.UTC().Format(time.RFC3339Nano), Valid: true}
	}
	res, err := s.db.Exec(`UPDATE raw_events SET processing_status = ?, processed_at = COALESCE(?, processed_at) WHERE id = ?`,
		status, processedAt, id)
	if err != nil {
		return fmt.Errorf("marking status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return herrors.Wrap(herrors.KindNotFound, fmt.Sprintf("raw event %s not found", id), herrors.NotFound)
	}
	return nil
}

// GetByID fetches a single RawEvent.
func (s *Store) GetByID(id string) (RawEvent, error) {
	row := s.db.QueryRow(`
		SELECT id, source, event_type, external_id, payload_json, metadata_json, ingested_at, processed_at, processing_status
		FROM raw_events WHERE id = ?`, id)
	return scanRawEvent(row)
}

// GetPending scans for events stuck in pending, used for crash recovery.
func (s *Store) GetPending(limit int) ([]RawEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, source, event_type, external_id, payload_json, metadata_json, ingested_at, processed_at, processing_status
		FROM raw_events WHERE processing_status = ? ORDER BY ingested_at ASC LIMIT ?`, StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("querying pending events: %w", err)
	}
	defer rows.Close()

	var out []RawEvent
	for rows.Next() {
		e, err := scanRawEventRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRawEvent(row *sql.Row) (RawEvent, error) {
	e, err := scanRawEventInto(row)
	if err == sql.ErrNoRows {
		return RawEvent{}, herrors.Wrap(herrors.KindNotFound, "raw event not found", herrors.NotFound)
	}
	return e, err
}

func scanRawEventRows(rows *sql.Rows) (RawEvent, error) {
	return scanRawEventInto(rows)
}

func scanRawEventInto(s scanner) (RawEvent, error) {
	var e RawEvent
	var externalID, processedAt sql.NullString
	var payloadJSON, metaJSON, ingestedAt, status string

	if err := s.Scan(&e.ID, &e.Source, &e.EventType, &externalID, &payloadJSON, &metaJSON, &ingestedAt, &processedAt, &status); err != nil {
		return RawEvent{}, err
	}

	e.ExternalID = externalID.String
	e.Status = Status(status)

	if err := json.Unmarshal([]byte(payloadJSON), &e.Payload); err != nil {
		return RawEvent{}, fmt.Errorf("unmarshaling payload: %w", err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &e.Metadata); err != nil {
		return RawEvent{}, fmt.Errorf("unmarshaling metadata: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, ingestedAt)
	if err != nil {
		return RawEvent{}, fmt.Errorf("parsing ingested_at: %w", err)
	}
	e.IngestedAt = t

	if processedAt.Valid {
		pt, err := time.Parse(time.RFC3339Nano, processedAt.String)
		if err != nil {
			return RawEvent{}, fmt.Errorf("parsing processed_at: %w", err)
		}
		e.ProcessedAt = &pt
	}
	return e, nil
}

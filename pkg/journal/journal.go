// Package journal keeps a local SQLite record of every programme
// mutation pushed to the server, so bulk imports can be audited after
// the fact.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/scoutreports/osmsync/pkg/osm"
)

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS meeting_changes (
  id             INTEGER PRIMARY KEY,
  batch_id       TEXT NOT NULL,
  section_id     TEXT NOT NULL,
  term_id        TEXT NOT NULL,
  meeting_date   TEXT NOT NULL,
  change_type    TEXT NOT NULL CHECK (change_type IN ('created','updated','deleted')),
  changed_fields TEXT,
  occurred_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_changes_batch ON meeting_changes(batch_id);
CREATE INDEX IF NOT EXISTS idx_changes_section ON meeting_changes(section_id, occurred_at);
    `); err != nil {
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// Change is one recorded programme mutation.
type Change struct {
	BatchID       string
	SectionID     string
	TermID        string
	MeetingDate   string
	ChangeType    string
	ChangedFields []string
	OccurredAt    time.Time
}

// Record appends a single change. An empty BatchID gets a fresh one.
func (d *DB) Record(ctx context.Context, c Change) error {
	if c.BatchID == "" {
		c.BatchID = uuid.NewString()
	}
	fields, err := json.Marshal(c.ChangedFields)
	if err != nil {
		return err
	}
	_, err = d.sql.ExecContext(ctx,
		`INSERT INTO meeting_changes(batch_id, section_id, term_id, meeting_date, change_type, changed_fields) VALUES(?,?,?,?,?,?)`,
		c.BatchID, c.SectionID, c.TermID, c.MeetingDate, c.ChangeType, string(fields))
	return err
}

// RecordImport stores the outcome of one programme import as a single
// batch and returns the batch id. Meetings whose save sent an empty
// change-set are skipped.
func (d *DB) RecordImport(ctx context.Context, sectionID, termID string, results []osm.ImportResult) (string, error) {
	batchID := uuid.NewString()
	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, result := range results {
		changeType := "updated"
		if result.Created {
			changeType = "created"
		} else if len(result.Changes) == 0 {
			continue
		}

		fieldNames := make([]string, 0, len(result.Changes))
		for name := range result.Changes {
			fieldNames = append(fieldNames, name)
		}
		var fields []byte
		fields, err = json.Marshal(fieldNames)
		if err != nil {
			return "", err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO meeting_changes(batch_id, section_id, term_id, meeting_date, change_type, changed_fields) VALUES(?,?,?,?,?,?)`,
			batchID, sectionID, termID, result.Date.Format(osm.DateFormat), changeType, string(fields))
		if err != nil {
			return "", err
		}
	}

	if err = tx.Commit(); err != nil {
		return "", err
	}
	return batchID, nil
}

// ListRecent returns the most recent N changes across all sections.
func (d *DB) ListRecent(ctx context.Context, limit int) ([]Change, error) {
	if limit <= 0 {
		limit = 50
	}
	q := "SELECT batch_id, section_id, term_id, meeting_date, change_type, changed_fields, occurred_at FROM meeting_changes ORDER BY occurred_at DESC, id DESC LIMIT ?"
	rows, err := d.sql.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	changes := []Change{}
	for rows.Next() {
		var c Change
		var fieldsJSON sql.NullString
		var occurredAtStr string
		if err := rows.Scan(&c.BatchID, &c.SectionID, &c.TermID, &c.MeetingDate, &c.ChangeType, &fieldsJSON, &occurredAtStr); err != nil {
			return nil, err
		}
		if fieldsJSON.Valid && fieldsJSON.String != "" {
			if err := json.Unmarshal([]byte(fieldsJSON.String), &c.ChangedFields); err != nil {
				return nil, err
			}
		}
		// Parse SQLite CURRENT_TIMESTAMP format, then RFC3339.
		if t, perr := time.Parse("2006-01-02 15:04:05", occurredAtStr); perr == nil {
			c.OccurredAt = t
		} else if t2, perr2 := time.Parse(time.RFC3339, occurredAtStr); perr2 == nil {
			c.OccurredAt = t2
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return changes, nil
}

type SectionStats struct {
	SectionID   string
	ChangeCount int
	BatchCount  int
}

func (d *DB) Stats(ctx context.Context) ([]SectionStats, error) {
	query := `
		SELECT
			section_id,
			COUNT(*),
			COUNT(DISTINCT batch_id)
		FROM
			meeting_changes
		GROUP BY
			section_id
		ORDER BY
			section_id;
	`
	rows, err := d.sql.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []SectionStats
	for rows.Next() {
		var s SectionStats
		if err := rows.Scan(&s.SectionID, &s.ChangeCount, &s.BatchCount); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}

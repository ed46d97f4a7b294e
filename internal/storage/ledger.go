package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Ledger is a SQLite record of ingestion outcomes plus a full-text index
// over the title cache. It is a query aid; the title cache file stays the
// source of truth for deduplication.
type Ledger struct {
	db *sql.DB
}

// Outcome is one ledger row.
type Outcome struct {
	ID       int64     `json:"id"`
	Search   string    `json:"search"`
	ArxivID  string    `json:"arxiv_id"`
	Title    string    `json:"title"`
	ItemKey  string    `json:"item_key,omitempty"`
	Status   string    `json:"status"`
	Stage    string    `json:"stage,omitempty"`
	Error    string    `json:"error,omitempty"`
	Refs     int       `json:"refs"`
	Linked   int       `json:"linked"`
	Recorded time.Time `json:"recorded"`
}

// OpenLedger opens or creates a ledger database at the given path.
func OpenLedger(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if err := createLedgerSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func createLedgerSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS outcomes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			search TEXT NOT NULL,
			arxiv_id TEXT,
			title TEXT NOT NULL,
			item_key TEXT,
			status TEXT NOT NULL,
			stage TEXT,
			error TEXT,
			refs INTEGER NOT NULL DEFAULT 0,
			linked INTEGER NOT NULL DEFAULT 0,
			recorded INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_outcomes_status ON outcomes(status);

		CREATE VIRTUAL TABLE IF NOT EXISTS titles_fts USING fts5(
			title,
			item_key UNINDEXED
		);
	`
	_, err := db.Exec(schema)
	return err
}

// Record appends an outcome row.
func (l *Ledger) Record(o Outcome) error {
	if o.Recorded.IsZero() {
		o.Recorded = time.Now()
	}
	_, err := l.db.Exec(`
		INSERT INTO outcomes (search, arxiv_id, title, item_key, status, stage, error, refs, linked, recorded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.Search, o.ArxivID, o.Title, o.ItemKey, o.Status, o.Stage, o.Error,
		o.Refs, o.Linked, o.Recorded.Unix(),
	)
	if err != nil {
		return fmt.Errorf("recording outcome for %q: %w", o.Title, err)
	}
	return nil
}

// Recent returns the latest outcomes, newest first. An empty status
// matches every row.
func (l *Ledger) Recent(status string, limit int) ([]Outcome, error) {
	query := `SELECT id, search, arxiv_id, title, item_key, status, stage, error, refs, linked, recorded
		FROM outcomes`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing outcomes: %w", err)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var o Outcome
		var arxivID, itemKey, stage, errText sql.NullString
		var recorded int64
		if err := rows.Scan(&o.ID, &o.Search, &arxivID, &o.Title, &itemKey, &o.Status,
			&stage, &errText, &o.Refs, &o.Linked, &recorded); err != nil {
			return nil, fmt.Errorf("scanning outcome: %w", err)
		}
		o.ArxivID = arxivID.String
		o.ItemKey = itemKey.String
		o.Stage = stage.String
		o.Error = errText.String
		o.Recorded = time.Unix(recorded, 0)
		out = append(out, o)
	}
	return out, rows.Err()
}

// RebuildTitles clears the title index and reloads it from entries.
func (l *Ledger) RebuildTitles(entries []TitleEntry) (int, error) {
	tx, err := l.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("starting rebuild: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM titles_fts"); err != nil {
		return 0, fmt.Errorf("clearing titles_fts: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO titles_fts (title, item_key) VALUES (?, ?)")
	if err != nil {
		return 0, fmt.Errorf("preparing title insert: %w", err)
	}
	defer stmt.Close()

	seen := make(map[string]bool, len(entries))
	n := 0
	// Later entries win, as in TitleFile.Load.
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if seen[e.Title] {
			continue
		}
		seen[e.Title] = true
		if _, err := stmt.Exec(e.Title, e.Key); err != nil {
			return 0, fmt.Errorf("inserting title %q: %w", e.Title, err)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing rebuild: %w", err)
	}
	return n, nil
}

// SearchTitles runs a full-text query over the cached titles.
func (l *Ledger) SearchTitles(query string, limit int) ([]TitleEntry, error) {
	ftsQuery := prepareFTSQuery(query)
	if ftsQuery == "" {
		return nil, nil
	}

	rows, err := l.db.Query(`
		SELECT title, item_key FROM titles_fts
		WHERE titles_fts MATCH ?
		ORDER BY rank
		LIMIT ?`, ftsQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("searching titles: %w", err)
	}
	defer rows.Close()

	var out []TitleEntry
	for rows.Next() {
		var e TitleEntry
		var key sql.NullString
		if err := rows.Scan(&e.Title, &key); err != nil {
			return nil, fmt.Errorf("scanning title: %w", err)
		}
		e.Key = key.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// prepareFTSQuery quotes queries containing FTS5 operators.
func prepareFTSQuery(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return query
	}

	if strings.ContainsAny(query, "\"*+-:(){}[]^~") {
		query = strings.ReplaceAll(query, "\"", "\"\"")
		return "\"" + query + "\""
	}
	return query
}

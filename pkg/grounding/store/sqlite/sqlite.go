package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/grounding/pkg/grounding/internalerr"
	"github.com/cognicore/grounding/pkg/grounding/rank"
	"github.com/cognicore/grounding/pkg/grounding/store"
)

// searchPageSize is how many candidate rows a search reads per query while
// walking every match in key order.
var searchPageSize = 2000

// sqliteStore implements the Store interface using SQLite
type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite database with WAL mode enabled. The record
// index itself is created by EnsureIndex.
func OpenSQLite(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// One connection keeps per-connection pragmas in effect and serializes
	// writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, err
		}
	}

	if err := initRunsSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func initRunsSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS ingest_runs (
	id TEXT PRIMARY KEY,
	namespace TEXT NOT NULL,
	built INTEGER NOT NULL,
	accepted INTEGER NOT NULL,
	batches INTEGER NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	error TEXT
);
`)
	return err
}

const indexSchema = `
CREATE TABLE IF NOT EXISTS records (
	namespace TEXT NOT NULL,
	id TEXT NOT NULL,
	type TEXT,
	name TEXT,
	organism TEXT,
	protein_names TEXT,
	gene_names TEXT,
	synonyms TEXT,
	PRIMARY KEY(namespace, id)
);

CREATE TABLE IF NOT EXISTS record_names (
	namespace TEXT NOT NULL,
	id TEXT NOT NULL,
	kind TEXT NOT NULL,
	name TEXT NOT NULL,
	token TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS record_names_token ON record_names(namespace, token);
CREATE INDEX IF NOT EXISTS record_names_record ON record_names(namespace, id);

CREATE TABLE IF NOT EXISTS records_pending (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	namespace TEXT NOT NULL,
	id TEXT NOT NULL,
	type TEXT,
	name TEXT,
	organism TEXT,
	protein_names TEXT,
	gene_names TEXT,
	synonyms TEXT
);

CREATE TABLE IF NOT EXISTS index_meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

INSERT OR IGNORE INTO index_meta (key, value) VALUES ('auto_refresh', 'true');
`

// EnsureIndex creates the record tables if they don't exist
func (s *sqliteStore) EnsureIndex(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, indexSchema)
	return err
}

// Exists reports whether the record index has been created
func (s *sqliteStore) Exists(ctx context.Context) (bool, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='records'`).Scan(&n)
	return n > 0, err
}

// DeleteIndex drops the record tables. Ingestion history is kept.
func (s *sqliteStore) DeleteIndex(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
DROP TABLE IF EXISTS record_names;
DROP TABLE IF EXISTS records;
DROP TABLE IF EXISTS records_pending;
DROP TABLE IF EXISTS index_meta;
`)
	return err
}

// DisableAutoRefresh makes later inserts wait for RefreshIndex
func (s *sqliteStore) DisableAutoRefresh(ctx context.Context) error {
	return s.setAutoRefresh(ctx, false)
}

// EnableAutoRefresh makes later inserts visible immediately
func (s *sqliteStore) EnableAutoRefresh(ctx context.Context) error {
	return s.setAutoRefresh(ctx, true)
}

func (s *sqliteStore) setAutoRefresh(ctx context.Context, on bool) error {
	if err := s.requireIndex(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO index_meta (key, value) VALUES ('auto_refresh', ?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value;
`, fmt.Sprintf("%t", on))
	return err
}

func (s *sqliteStore) autoRefresh(ctx context.Context, tx *sql.Tx) (bool, error) {
	var v string
	err := tx.QueryRowContext(ctx, `SELECT value FROM index_meta WHERE key='auto_refresh'`).Scan(&v)
	if err == sql.ErrNoRows {
		return true, nil
	}
	return v == "true", err
}

// RefreshIndex publishes pending records in insertion order
func (s *sqliteStore) RefreshIndex(ctx context.Context) error {
	ok, err := s.Exists(ctx)
	if err != nil || !ok {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := publishPending(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

func publishPending(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx, `
SELECT namespace, id, type, name, organism, protein_names, gene_names, synonyms
FROM records_pending
ORDER BY seq;
`)
	if err != nil {
		return err
	}
	var pending []store.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			rows.Close()
			return err
		}
		pending = append(pending, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, r := range pending {
		if err := upsertRecord(ctx, tx, r); err != nil {
			return err
		}
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM records_pending`)
	return err
}

// ClearNamespace removes every record of a namespace, pending ones included.
// A missing index has nothing to clear.
func (s *sqliteStore) ClearNamespace(ctx context.Context, ns string) error {
	ok, err := s.Exists(ctx)
	if err != nil || !ok {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM record_names WHERE namespace=?`,
		`DELETE FROM records WHERE namespace=?`,
		`DELETE FROM records_pending WHERE namespace=?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, ns); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// InsertRecords writes a batch in a single transaction. The batch lands in
// the pending table unless auto refresh is on or refreshAfter is set, in
// which case everything pending is published as well.
func (s *sqliteStore) InsertRecords(ctx context.Context, recs []store.Record, refreshAfter bool) error {
	if err := s.requireIndex(ctx); err != nil {
		return err
	}
	for _, r := range recs {
		if r.ID == "" {
			return fmt.Errorf("insert record without id: %w", internalerr.ErrInvalidInput)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO records_pending (namespace, id, type, name, organism, protein_names, gene_names, synonyms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?);
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range recs {
		proteins, genes, synonyms, err := encodeNames(r)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, r.Namespace, r.ID, r.Type, r.Name, r.Organism, proteins, genes, synonyms); err != nil {
			return err
		}
	}

	auto, err := s.autoRefresh(ctx, tx)
	if err != nil {
		return err
	}
	if auto || refreshAfter {
		if err := publishPending(ctx, tx); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func upsertRecord(ctx context.Context, tx *sql.Tx, r store.Record) error {
	proteins, genes, synonyms, err := encodeNames(r)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO records (namespace, id, type, name, organism, protein_names, gene_names, synonyms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(namespace, id) DO UPDATE SET
	type=excluded.type,
	name=excluded.name,
	organism=excluded.organism,
	protein_names=excluded.protein_names,
	gene_names=excluded.gene_names,
	synonyms=excluded.synonyms;
`, r.Namespace, r.ID, r.Type, r.Name, r.Organism, proteins, genes, synonyms)
	if err != nil {
		return err
	}

	return replaceRecordNames(ctx, tx, r)
}

func replaceRecordNames(ctx context.Context, tx *sql.Tx, r store.Record) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM record_names WHERE namespace=? AND id=?`, r.Namespace, r.ID); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO record_names (namespace, id, kind, name, token) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, f := range r.SearchFields() {
		name := rank.Normalize(f.Text)
		for _, tok := range uniqueStrings(rank.Tokenize(f.Text)) {
			if _, err := stmt.ExecContext(ctx, r.Namespace, r.ID, string(f.Kind), name, tok); err != nil {
				return err
			}
		}
	}
	return nil
}

// Search walks every record whose name tokens are prefixed by every query
// token, in pages of searchPageSize rows, and ranks them with
// store.Ranking so only the best from+size stay in memory.
func (s *sqliteStore) Search(ctx context.Context, query, ns string, from, size int) ([]store.Record, error) {
	q := rank.ParseQuery(query)
	if q.Empty() {
		return []store.Record{}, nil
	}
	ok, err := s.Exists(ctx)
	if err != nil || !ok {
		return []store.Record{}, err
	}

	var (
		where []string
		args  []interface{}
	)
	if ns != "" {
		where = append(where, "r.namespace = ?")
		args = append(args, ns)
	}
	for _, tok := range uniqueStrings(q.Tokens) {
		where = append(where, `EXISTS (
	SELECT 1 FROM record_names n
	WHERE n.namespace = r.namespace AND n.id = r.id AND n.token LIKE ? ESCAPE '\'
)`)
		args = append(args, escapeLike(tok)+"%")
	}

	rk := store.NewRanking(query, from, size)
	var afterNS, afterID string
	for first := true; ; first = false {
		page, err := s.searchPage(ctx, where, args, !first, afterNS, afterID)
		if err != nil {
			return nil, err
		}
		for _, r := range page {
			rk.Add(r)
		}
		if len(page) < searchPageSize {
			break
		}
		last := page[len(page)-1]
		afterNS, afterID = last.Namespace, last.ID
	}
	return rk.Page(), nil
}

// searchPage reads the next page of candidates after (afterNS, afterID)
func (s *sqliteStore) searchPage(ctx context.Context, where []string, args []interface{}, after bool, afterNS, afterID string) ([]store.Record, error) {
	conds := append([]string(nil), where...)
	params := append([]interface{}(nil), args...)
	if after {
		conds = append(conds, "(r.namespace > ? OR (r.namespace = ? AND r.id > ?))")
		params = append(params, afterNS, afterNS, afterID)
	}
	params = append(params, searchPageSize)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
SELECT r.namespace, r.id, r.type, r.name, r.organism, r.protein_names, r.gene_names, r.synonyms
FROM records r
WHERE %s
ORDER BY r.namespace, r.id
LIMIT ?;
`, strings.Join(conds, "\n  AND ")), params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var page []store.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		page = append(page, r)
	}
	return page, rows.Err()
}

// Get retrieves a visible record by namespace and id
func (s *sqliteStore) Get(ctx context.Context, id, ns string) (store.Record, bool, error) {
	ok, err := s.Exists(ctx)
	if err != nil || !ok {
		return store.Record{}, false, err
	}

	row := s.db.QueryRowContext(ctx, `
SELECT namespace, id, type, name, organism, protein_names, gene_names, synonyms
FROM records
WHERE namespace = ? AND id = ?;
`, ns, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Record{}, false, nil
	}
	if err != nil {
		return store.Record{}, false, err
	}
	return r, true, nil
}

// Count returns the number of visible records in a namespace (every
// namespace when ns is empty)
func (s *sqliteStore) Count(ctx context.Context, ns string) (int64, error) {
	ok, err := s.Exists(ctx)
	if err != nil || !ok {
		return 0, err
	}

	var n int64
	if ns == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE namespace=?`, ns).Scan(&n)
	}
	return n, err
}

// RecordRun inserts or updates an ingestion run summary
func (s *sqliteStore) RecordRun(ctx context.Context, r store.Run) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO ingest_runs (id, namespace, built, accepted, batches, started_at, finished_at, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	built=excluded.built,
	accepted=excluded.accepted,
	batches=excluded.batches,
	finished_at=excluded.finished_at,
	error=excluded.error;
`, r.ID, r.Namespace, r.Built, r.Accepted, r.Batches,
		r.Started.UTC().Format(time.RFC3339Nano),
		r.Finished.UTC().Format(time.RFC3339Nano),
		r.Error)
	return err
}

// Runs lists ingestion runs, most recent first
func (s *sqliteStore) Runs(ctx context.Context, limit int) ([]store.Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, namespace, built, accepted, batches, started_at, finished_at, error
FROM ingest_runs
ORDER BY started_at DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []store.Run
	for rows.Next() {
		var (
			r                 store.Run
			started, finished string
			errText           sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Namespace, &r.Built, &r.Accepted, &r.Batches, &started, &finished, &errText); err != nil {
			return nil, err
		}
		if t, perr := time.Parse(time.RFC3339Nano, started); perr == nil {
			r.Started = t
		}
		if t, perr := time.Parse(time.RFC3339Nano, finished); perr == nil {
			r.Finished = t
		}
		r.Error = errText.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *sqliteStore) requireIndex(ctx context.Context) error {
	ok, err := s.Exists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("record index does not exist: %w", internalerr.ErrStoreUnavailable)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (store.Record, error) {
	var (
		r                       store.Record
		typ, name, organism     sql.NullString
		proteinsJSON, genesJSON sql.NullString
		synonymsJSON            sql.NullString
	)
	if err := row.Scan(&r.Namespace, &r.ID, &typ, &name, &organism, &proteinsJSON, &genesJSON, &synonymsJSON); err != nil {
		return store.Record{}, err
	}
	r.Type = typ.String
	r.Name = name.String
	r.Organism = organism.String

	r.ProteinNames = []string{}
	r.GeneNames = []string{}
	if proteinsJSON.String != "" {
		if err := json.Unmarshal([]byte(proteinsJSON.String), &r.ProteinNames); err != nil {
			return store.Record{}, err
		}
	}
	if genesJSON.String != "" {
		if err := json.Unmarshal([]byte(genesJSON.String), &r.GeneNames); err != nil {
			return store.Record{}, err
		}
	}
	if synonymsJSON.String != "" {
		if err := json.Unmarshal([]byte(synonymsJSON.String), &r.Synonyms); err != nil {
			return store.Record{}, err
		}
	}
	return r, nil
}

// encodeNames serializes the name lists. Synonyms stay empty text when
// there are none so records without them read back with a nil slice.
func encodeNames(r store.Record) (proteins, genes, synonyms string, err error) {
	p := r.ProteinNames
	if p == nil {
		p = []string{}
	}
	g := r.GeneNames
	if g == nil {
		g = []string{}
	}
	pb, err := json.Marshal(p)
	if err != nil {
		return "", "", "", err
	}
	gb, err := json.Marshal(g)
	if err != nil {
		return "", "", "", err
	}
	if len(r.Synonyms) > 0 {
		sb, err := json.Marshal(r.Synonyms)
		if err != nil {
			return "", "", "", err
		}
		synonyms = string(sb)
	}
	return string(pb), string(gb), synonyms, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func uniqueStrings(in []string) []string {
	set := make(map[string]struct{}, len(in))
	var out []string
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

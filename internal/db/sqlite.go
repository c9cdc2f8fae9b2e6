// Package db provides SQLite storage for sentbench: evaluation runs, their
// per-task results, and a cache of sentence embeddings with a sqlite-vec
// index for nearest-neighbour lookups.
package db

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/constantino-dev/sentbench/pkg/types"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDimensionMismatch = errors.New("vector dimension does not match the index")
)

const (
	metaVecDims = "vec_dims"

	// Fixed-width so that stored timestamps sort lexically.
	timeFormat = "2006-01-02T15:04:05.000000000Z07:00"
)

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB

	mu      sync.Mutex
	vecDims int // 0 until the vector index exists
}

// New creates a new database connection and initializes schema
func New(path string) (*DB, error) {
	// Register sqlite-vec extension
	sqlite_vec.Auto()

	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	if err := db.loadVecDims(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read vector index: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the database schema. The vector table is created later,
// once the first embedding reveals its dimension.
func (db *DB) migrate() error {
	schema := `
	-- Cached sentence embeddings
	CREATE TABLE IF NOT EXISTS sentences (
		id TEXT PRIMARY KEY,
		model TEXT NOT NULL,
		text TEXT NOT NULL,
		embedding BLOB NOT NULL, -- float64 little-endian
		dims INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sentences_model ON sentences(model);

	-- Evaluation runs
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		model TEXT NOT NULL,
		tasks TEXT NOT NULL, -- JSON array
		params TEXT NOT NULL, -- JSON object
		status TEXT NOT NULL,
		error TEXT,
		created_at TEXT NOT NULL,
		finished_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);

	-- Per-task metrics of a run
	CREATE TABLE IF NOT EXISTS results (
		run_id TEXT NOT NULL,
		task TEXT NOT NULL,
		metrics TEXT NOT NULL, -- JSON object
		duration_ms INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (run_id, task),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

	_, err := db.conn.Exec(schema)
	return err
}

func (db *DB) loadVecDims() error {
	var v string
	err := db.conn.QueryRow("SELECT value FROM meta WHERE key = ?", metaVecDims).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	db.vecDims, err = strconv.Atoi(v)
	return err
}

// ensureVecTable creates vec_sentences for dims on first use and reports
// whether vectors of that size can be indexed.
func (db *DB) ensureVecTable(dims int) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.vecDims != 0 {
		if db.vecDims != dims {
			return fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, dims, db.vecDims)
		}
		return nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// sqlite-vec needs the dimension in the table declaration
	ddl := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS vec_sentences USING vec0(
		sentence_id TEXT PRIMARY KEY,
		embedding float[%d] distance_metric=cosine
	)`, dims)
	if _, err := tx.Exec(ddl); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)", metaVecDims, strconv.Itoa(dims)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	db.vecDims = dims
	return nil
}

// VecDims returns the dimension of the vector index, or 0 if none exists yet.
func (db *DB) VecDims() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.vecDims
}

// SentenceID derives the cache key for text embedded by model.
func SentenceID(model, text string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(model+"\x00"+text)).String()
}

// SaveEmbedding caches vec for (model, text) and indexes it for vector
// search. A vector whose size differs from the index is cached but not
// indexed, and ErrDimensionMismatch is returned. Zero vectors have no cosine
// distance and are only cached.
func (db *DB) SaveEmbedding(model, text string, vec types.Vector) error {
	id := SentenceID(model, text)
	_, err := db.conn.Exec(`
		INSERT INTO sentences (id, model, text, embedding, dims, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			embedding = excluded.embedding,
			dims = excluded.dims,
			created_at = excluded.created_at
	`, id, model, text, float64ToBytes(vec), len(vec), time.Now().UTC().Format(timeFormat))
	if err != nil {
		return err
	}

	if isZero(vec) {
		return nil
	}
	if err := db.ensureVecTable(len(vec)); err != nil {
		return err
	}

	// sqlite-vec virtual tables don't support ON CONFLICT, so delete first
	if _, err := db.conn.Exec(`DELETE FROM vec_sentences WHERE sentence_id = ?`, id); err != nil {
		return err
	}
	_, err = db.conn.Exec(`INSERT INTO vec_sentences (sentence_id, embedding) VALUES (?, ?)`, id, serializeVector(vec))
	return err
}

// GetEmbedding returns the cached vector for (model, text), or nil.
func (db *DB) GetEmbedding(model, text string) (types.Vector, error) {
	var blob []byte
	err := db.conn.QueryRow("SELECT embedding FROM sentences WHERE id = ?", SentenceID(model, text)).Scan(&blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return bytesToFloat64(blob), nil
}

// VectorSearch returns the k cached sentences closest to query by cosine
// distance.
func (db *DB) VectorSearch(query types.Vector, k int) ([]types.Neighbor, error) {
	dims := db.VecDims()
	if dims == 0 {
		return nil, nil
	}
	if len(query) != dims {
		return nil, fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(query), dims)
	}

	// sqlite-vec requires k=? constraint for KNN queries
	rows, err := db.conn.Query(`
		SELECT s.text, s.model, v.distance
		FROM (
			SELECT sentence_id, distance
			FROM vec_sentences
			WHERE embedding MATCH ? AND k = ?
		) v
		JOIN sentences s ON s.id = v.sentence_id
		ORDER BY v.distance
	`, serializeVector(query), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Neighbor
	for rows.Next() {
		var n types.Neighbor
		if err := rows.Scan(&n.Text, &n.Model, &n.Distance); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// SaveRun stores or updates a run row. Results are saved separately.
func (db *DB) SaveRun(r *types.Run) error {
	tasksJSON, err := json.Marshal(r.Tasks)
	if err != nil {
		return err
	}
	paramsJSON, err := json.Marshal(r.Params)
	if err != nil {
		return err
	}

	var finished sql.NullString
	if r.FinishedAt != nil {
		finished = sql.NullString{String: r.FinishedAt.UTC().Format(timeFormat), Valid: true}
	}

	_, err = db.conn.Exec(`
		INSERT INTO runs (id, model, tasks, params, status, error, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			finished_at = excluded.finished_at
	`, r.ID, r.Model, string(tasksJSON), string(paramsJSON), r.Status, r.Error,
		r.CreatedAt.UTC().Format(timeFormat), finished)
	return err
}

// SaveResult stores the metrics of one task of a run
func (db *DB) SaveResult(runID string, res types.TaskResult) error {
	metricsJSON, err := json.Marshal(res.Metrics)
	if err != nil {
		return err
	}
	_, err = db.conn.Exec(`
		INSERT OR REPLACE INTO results (run_id, task, metrics, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, runID, res.Task, string(metricsJSON), res.Duration.Milliseconds(), res.CreatedAt.UTC().Format(timeFormat))
	return err
}

const runColumns = "id, model, tasks, params, status, error, created_at, finished_at"

// GetRun retrieves a run with its results, or nil if it does not exist
func (db *DB) GetRun(id string) (*types.Run, error) {
	row := db.conn.QueryRow("SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if r.Results, err = db.getResults(id); err != nil {
		return nil, err
	}
	return r, nil
}

// ListRuns returns the most recent runs first, without results
func (db *DB) ListRuns(limit int) ([]*types.Run, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY created_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*types.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run and its results
func (db *DB) DeleteRun(id string) error {
	res, err := db.conn.Exec("DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return nil
}

// Stats returns database statistics
func (db *DB) Stats() (map[string]int, error) {
	stats := make(map[string]int)

	for name, query := range map[string]string{
		"runs":      "SELECT COUNT(*) FROM runs",
		"results":   "SELECT COUNT(*) FROM results",
		"sentences": "SELECT COUNT(*) FROM sentences",
		"models":    "SELECT COUNT(DISTINCT model) FROM sentences",
	} {
		var count int
		if err := db.conn.QueryRow(query).Scan(&count); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		stats[name] = count
	}
	stats["vector_dims"] = db.VecDims()

	return stats, nil
}

// ------------------------- internals -------------------------

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*types.Run, error) {
	var r types.Run
	var tasksJSON, paramsJSON, createdStr string
	var errStr, finishedStr sql.NullString

	if err := row.Scan(&r.ID, &r.Model, &tasksJSON, &paramsJSON, &r.Status, &errStr, &createdStr, &finishedStr); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tasksJSON), &r.Tasks); err != nil {
		return nil, fmt.Errorf("run %s tasks: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(paramsJSON), &r.Params); err != nil {
		return nil, fmt.Errorf("run %s params: %w", r.ID, err)
	}
	r.Error = errStr.String
	r.CreatedAt, _ = time.Parse(timeFormat, createdStr)
	if finishedStr.Valid {
		t, _ := time.Parse(timeFormat, finishedStr.String)
		r.FinishedAt = &t
	}
	return &r, nil
}

func (db *DB) getResults(runID string) ([]types.TaskResult, error) {
	rows, err := db.conn.Query(`
		SELECT task, metrics, duration_ms, created_at
		FROM results WHERE run_id = ? ORDER BY rowid
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.TaskResult
	for rows.Next() {
		var res types.TaskResult
		var metricsJSON, createdStr string
		var ms int64
		if err := rows.Scan(&res.Task, &metricsJSON, &ms, &createdStr); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(metricsJSON), &res.Metrics); err != nil {
			return nil, fmt.Errorf("result %s/%s: %w", runID, res.Task, err)
		}
		res.Duration = time.Duration(ms) * time.Millisecond
		res.CreatedAt, _ = time.Parse(timeFormat, createdStr)
		out = append(out, res)
	}
	return out, rows.Err()
}

func isZero(v types.Vector) bool {
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}

// Helper functions for embedding serialization
func float64ToBytes(v types.Vector) []byte {
	buf := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func bytesToFloat64(buf []byte) types.Vector {
	v := make(types.Vector, len(buf)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return v
}

func serializeVector(v types.Vector) string {
	// sqlite-vec expects JSON array format
	b, _ := json.Marshal(v)
	return string(b)
}

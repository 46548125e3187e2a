package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ayxsth/cloudymate/internal/logger"
	"github.com/ayxsth/cloudymate/rag"
)

const (
	DBFileName    = "vectors.db"
	schemaVersion = "1"

	metaVersion    = "version"
	metaDimensions = "dimensions"
	metaModel      = "embedding_model"

	dsnOptions = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)&_txlock=immediate"
)

// SQLiteStore is a persistent rag.Store kept in a single SQLite file under
// a directory. The database is opened on first use. Readers run alongside
// a writer in WAL mode; write transactions take the lock up front so
// competing writers wait on the busy timeout instead of failing.
type SQLiteStore struct {
	dir   string
	model string

	mu sync.Mutex // guards db
	db *sql.DB
}

// NewSQLiteStore returns a store rooted at dir. model is recorded with the
// first write so a later model switch shows up in the logs.
func NewSQLiteStore(dir, model string) *SQLiteStore {
	return &SQLiteStore{dir: dir, model: model}
}

// Path is the database file location.
func (s *SQLiteStore) Path() string {
	return filepath.Join(s.dir, DBFileName)
}

func (s *SQLiteStore) open(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db, nil
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create directory: %w", rag.ErrStoreUnavailable, err)
	}
	db, err := sql.Open("sqlite", s.Path()+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", rag.ErrStoreUnavailable, err)
	}
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to initialize schema: %w", rag.ErrStoreUnavailable, err)
	}
	logger.Debug("Opened vector store at %s", s.Path())
	s.db = db
	return db, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			source TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			start_offset INTEGER NOT NULL,
			end_offset INTEGER NOT NULL,
			dim INTEGER NOT NULL,
			embedding BLOB NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source)`,
		`INSERT OR IGNORE INTO metadata (key, value) VALUES ('` + metaVersion + `', '` + schemaVersion + `')`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Upsert writes all chunks in one transaction. Re-writing an existing
// (source, index) replaces its content and vector and keeps its position.
func (s *SQLiteStore) Upsert(ctx context.Context, chunks ...rag.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	db, err := s.open(ctx)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", rag.ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	dim, err := storedDimensions(ctx, tx)
	if err != nil {
		return fmt.Errorf("%w: %w", rag.ErrStoreUnavailable, err)
	}
	for _, ch := range chunks {
		if err := rag.CheckEmbedding(ch, dim); err != nil {
			return err
		}
		dim = len(ch.Embedding)
	}
	if err := s.recordModel(ctx, tx, dim); err != nil {
		return fmt.Errorf("%w: %w", rag.ErrStoreUnavailable, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, source, chunk_index, content, start_offset, end_offset, dim, embedding, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			start_offset = excluded.start_offset,
			end_offset = excluded.end_offset,
			dim = excluded.dim,
			embedding = excluded.embedding,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("%w: %w", rag.ErrStoreUnavailable, err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, ch := range chunks {
		id := ch.ID
		if id == "" {
			id = rag.ChunkID(ch.Source, ch.Index)
		}
		if _, err := stmt.ExecContext(ctx, id, ch.Source, ch.Index, ch.Content, ch.Start, ch.End,
			len(ch.Embedding), encodeVector(ch.Embedding), now, now); err != nil {
			return fmt.Errorf("%w: failed to write chunk %s#%d: %w", rag.ErrStoreUnavailable, ch.Source, ch.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", rag.ErrStoreUnavailable, err)
	}
	return nil
}

func storedDimensions(ctx context.Context, q rowQuerier) (int, error) {
	v, err := getMetadata(ctx, q, metaDimensions)
	if err != nil || v == "" {
		return 0, err
	}
	return strconv.Atoi(v)
}

func (s *SQLiteStore) recordModel(ctx context.Context, tx *sql.Tx, dim int) error {
	stored, err := getMetadata(ctx, tx, metaModel)
	if err != nil {
		return err
	}
	if stored != "" && s.model != "" && stored != s.model {
		logger.Warn("Vector store was built with %s, now writing with %s", stored, s.model)
	}
	if err := setMetadata(ctx, tx, metaDimensions, strconv.Itoa(dim)); err != nil {
		return err
	}
	if stored == "" && s.model != "" {
		return setMetadata(ctx, tx, metaModel, s.model)
	}
	return nil
}

// Query scores every stored vector and returns the best k, ties in insertion
// order. A query whose dimension differs from the stored vectors fails with
// rag.ErrDimensionMismatch.
func (s *SQLiteStore) Query(ctx context.Context, embedding []float64, k int) ([]rag.SearchResult, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}
	if k <= 0 {
		return []rag.SearchResult{}, nil
	}
	db, err := s.open(ctx)
	if err != nil {
		return nil, err
	}

	dim, err := storedDimensions(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", rag.ErrStoreUnavailable, err)
	}
	if dim > 0 && dim != len(embedding) {
		return nil, fmt.Errorf("%w: query has %d, store has %d", rag.ErrDimensionMismatch, len(embedding), dim)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, source, chunk_index, content, start_offset, end_offset, embedding
		FROM chunks WHERE dim = ? ORDER BY seq
	`, len(embedding))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", rag.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var results []rag.SearchResult
	for rows.Next() {
		var ch rag.Chunk
		var blob []byte
		if err := rows.Scan(&ch.ID, &ch.Source, &ch.Index, &ch.Content, &ch.Start, &ch.End, &blob); err != nil {
			return nil, fmt.Errorf("%w: %w", rag.ErrStoreUnavailable, err)
		}
		ch.Embedding = decodeVector(blob)
		results = append(results, rag.SearchResult{
			Chunk: ch,
			Score: rag.Cosine(embedding, ch.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", rag.ErrStoreUnavailable, err)
	}
	return rag.TopK(results, k), nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	db, err := s.open(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: %w", rag.ErrStoreUnavailable, err)
	}
	return n, nil
}

// Reset deletes every chunk and forgets the recorded dimension and model.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	db, err := s.open(ctx)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", rag.ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("%w: %w", rag.ErrStoreUnavailable, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM metadata WHERE key IN (?, ?)`, metaDimensions, metaModel); err != nil {
		return fmt.Errorf("%w: %w", rag.ErrStoreUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", rag.ErrStoreUnavailable, err)
	}
	return nil
}

// Close closes the database if it was opened.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// rowQuerier is satisfied by *sql.DB and *sql.Tx.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getMetadata(ctx context.Context, q rowQuerier, key string) (string, error) {
	var value string
	err := q.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func setMetadata(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)`, key, value)
	return err
}

// encodeVector encodes a float64 slice as little-endian bytes
func encodeVector(v []float64) []byte {
	b := make([]byte, 8*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint64(b[8*i:], math.Float64bits(f))
	}
	return b
}

// decodeVector reverses encodeVector
func decodeVector(b []byte) []float64 {
	v := make([]float64, len(b)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[8*i:]))
	}
	return v
}

// Package chunkdb is the sqlite persistence collaborator. Chunk voxels are
// stored as zstd(RLE) blobs keyed by chunk coordinate; lifecycle events are
// indexed asynchronously by a single writer goroutine.
package chunkdb

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelstream.ai/internal/stream/chunk"
	"voxelstream.ai/internal/stream/encoding"
)

var ErrClosed = errors.New("chunkdb: closed")

type Store struct {
	db *sql.DB

	ch   chan EventRow
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	loads      atomic.Uint64
	hits       atomic.Uint64
	saves      atomic.Uint64
	savedBytes atomic.Uint64
	eventDrops atomic.Uint64
}

type Stats struct {
	Loads         uint64
	Hits          uint64
	Saves         uint64
	SavedBytes    uint64
	EventDrops    uint64
	QueueDepth    int
	QueueCapacity int
}

// Entry describes one stored chunk without its voxel data.
type Entry struct {
	Coord     chunk.Coord
	Version   int
	Digest    string
	Bytes     int
	UpdatedAt string
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// IO workers share one connection; sqlite serializes writers anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db: db,
		ch: make(chan EventRow, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS chunks (
			cx INTEGER NOT NULL,
			cy INTEGER NOT NULL,
			cz INTEGER NOT NULL,
			version INTEGER NOT NULL,
			digest TEXT NOT NULL,
			blob BLOB NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (cx, cy, cz)
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			stamp INTEGER NOT NULL,
			type TEXT NOT NULL,
			cx INTEGER NOT NULL,
			cy INTEGER NOT NULL,
			cz INTEGER NOT NULL,
			from_state TEXT NOT NULL,
			to_state TEXT NOT NULL,
			task TEXT,
			reason TEXT,
			at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_pos ON events(cx, cz, cy, id);`,
		`CREATE INDEX IF NOT EXISTS idx_events_type ON events(type, id);`,
		`INSERT OR IGNORE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Load returns the stored record for c. A missing row is (nil, false, nil).
func (s *Store) Load(ctx context.Context, c chunk.Coord) (*chunk.Record, bool, error) {
	if s.closed.Load() {
		return nil, false, ErrClosed
	}
	s.loads.Add(1)
	var (
		version int
		digest  string
		blob    []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT version, digest, blob FROM chunks WHERE cx=? AND cy=? AND cz=?`,
		c.X, c.Y, c.Z,
	).Scan(&version, &digest, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load chunk %d,%d,%d: %w", c.X, c.Y, c.Z, err)
	}
	if version > chunk.RecordVersion {
		return nil, false, fmt.Errorf("chunk %d,%d,%d: unsupported version %d", c.X, c.Y, c.Z, version)
	}
	blocks, err := encoding.UnpackBlocks(blob, chunk.Volume)
	if err != nil {
		return nil, false, fmt.Errorf("chunk %d,%d,%d: %w", c.X, c.Y, c.Z, err)
	}
	rec := &chunk.Record{Coord: c, Version: version, Blocks: blocks, Digest: chunk.Digest(blocks)}
	if hex.EncodeToString(rec.Digest[:]) != digest {
		return nil, false, fmt.Errorf("chunk %d,%d,%d: digest mismatch", c.X, c.Y, c.Z)
	}
	s.hits.Add(1)
	return rec, true, nil
}

func (s *Store) Save(ctx context.Context, rec *chunk.Record) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if len(rec.Blocks) != chunk.Volume {
		return fmt.Errorf("chunk %d,%d,%d: %d blocks", rec.Coord.X, rec.Coord.Y, rec.Coord.Z, len(rec.Blocks))
	}
	blob, err := encoding.PackBlocks(rec.Blocks)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO chunks(cx,cy,cz,version,digest,blob,updated_at) VALUES(?,?,?,?,?,?,?)`,
		rec.Coord.X, rec.Coord.Y, rec.Coord.Z, rec.Version,
		hex.EncodeToString(rec.Digest[:]), blob,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save chunk %d,%d,%d: %w", rec.Coord.X, rec.Coord.Y, rec.Coord.Z, err)
	}
	s.saves.Add(1)
	s.savedBytes.Add(uint64(len(blob)))
	return nil
}

// List returns stored chunks ordered by coordinate, at most limit rows
// (limit <= 0 means all).
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT cx, cy, cz, version, digest, length(blob), updated_at FROM chunks ORDER BY cx, cy, cz LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Coord.X, &e.Coord.Y, &e.Coord.Z, &e.Version, &e.Digest, &e.Bytes, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Count(ctx context.Context) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}

func (s *Store) Stats() Stats {
	return Stats{
		Loads:         s.loads.Load(),
		Hits:          s.hits.Load(),
		Saves:         s.saves.Load(),
		SavedBytes:    s.savedBytes.Load(),
		EventDrops:    s.eventDrops.Load(),
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
	}
}

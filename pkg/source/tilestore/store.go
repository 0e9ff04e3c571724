// Package tilestore persists a tile pyramid in a single SQLite file with
// zstd-compressed pixel blobs. It backs the build and bench commands: a
// pyramid is written once, then served as a slow (disk-backed) source that
// exercises the asynchronous load path.
package tilestore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/quadview/quadview/pkg/chunk"
	"github.com/quadview/quadview/pkg/errors"
)

const formatVersion = 1

// Store is one pyramid database. Safe for concurrent reads; writes are
// serialized by SQLite itself (single connection).
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	closed bool

	enc *zstd.Encoder
	dec *zstd.Decoder

	tileSize int
	shapes   [][2]int
}

// Create makes a new pyramid database at path, replacing nothing: the
// schema is created if missing and the metadata is written. shapes is the
// image shape of every level, finest first.
func Create(path string, shapes [][2]int, tileSize int) (*Store, error) {
	if len(shapes) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidLevel, "pyramid needs at least one level")
	}
	if tileSize <= 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "tile size must be positive, got %d", tileSize)
	}

	s, err := open(path)
	if err != nil {
		return nil, err
	}
	s.tileSize = tileSize
	s.shapes = shapes

	meta := map[string]string{
		"format_version": strconv.Itoa(formatVersion),
		"tile_size":      strconv.Itoa(tileSize),
		"shapes":         encodeShapes(shapes),
	}
	for k, v := range meta {
		if _, err := s.db.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			s.Close()
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "write meta %s", k)
		}
	}
	return s, nil
}

// Open opens an existing pyramid database and loads its metadata.
func Open(path string) (*Store, error) {
	s, err := open(path)
	if err != nil {
		return nil, err
	}

	version, err := s.meta("format_version")
	if err != nil {
		s.Close()
		return nil, err
	}
	if v, err := strconv.Atoi(version); err != nil || v != formatVersion {
		s.Close()
		return nil, errors.New(errors.ErrCodeStoreCorrupt, "unsupported format version %q", version)
	}

	ts, err := s.meta("tile_size")
	if err != nil {
		s.Close()
		return nil, err
	}
	if s.tileSize, err = strconv.Atoi(ts); err != nil || s.tileSize <= 0 {
		s.Close()
		return nil, errors.New(errors.ErrCodeStoreCorrupt, "bad tile_size %q", ts)
	}

	raw, err := s.meta("shapes")
	if err != nil {
		s.Close()
		return nil, err
	}
	if s.shapes, err = decodeShapes(raw); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "open %s", path)
	}
	// modernc's driver is not safe for concurrent writes over multiple
	// connections; one connection keeps SQLite's own locking in charge.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "pragma %s", p)
		}
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tiles (
			level INTEGER NOT NULL,
			row INTEGER NOT NULL,
			col INTEGER NOT NULL,
			rows INTEGER NOT NULL,
			cols INTEGER NOT NULL,
			data BLOB NOT NULL,
			PRIMARY KEY (level, row, col)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "init schema")
		}
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "zstd encoder")
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "zstd decoder")
	}
	return &Store{db: db, enc: enc, dec: dec}, nil
}

// TileSize returns the tile edge length the pyramid was built with.
func (s *Store) TileSize() int { return s.tileSize }

// LevelShapes returns the image shape of every level, finest first.
func (s *Store) LevelShapes() [][2]int { return s.shapes }

// WriteTile stores one tile, overwriting any previous blob at its location.
func (s *Store) WriteTile(loc chunk.Loc, tile *chunk.Tile) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := tile.Validate(); err != nil {
		return err
	}

	blob := s.enc.EncodeAll(tile.Data, nil)
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO tiles (level, row, col, rows, cols, data) VALUES (?, ?, ?, ?, ?, ?)`,
		loc.Level, loc.Row, loc.Col, tile.Rows, tile.Cols, blob,
	)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "write tile %s", loc)
	}
	return nil
}

// ReadTile loads and decompresses one tile. The context bounds the query
// so cancelled loads release their worker promptly.
func (s *Store) ReadTile(ctx context.Context, loc chunk.Loc) (*chunk.Tile, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	var rows, cols int
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT rows, cols, data FROM tiles WHERE level = ? AND row = ? AND col = ?`,
		loc.Level, loc.Row, loc.Col,
	).Scan(&rows, &cols, &blob)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.ErrCodeTileNotFound, "no tile at %s", loc)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "read tile %s", loc)
	}

	data, err := s.dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreCorrupt, err, "decompress tile %s", loc)
	}
	tile := &chunk.Tile{Rows: rows, Cols: cols, Data: data}
	if err := tile.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreCorrupt, err, "tile %s", loc)
	}
	return tile, nil
}

// NumTiles returns the number of stored tiles.
func (s *Store) NumTiles() (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM tiles`).Scan(&n); err != nil {
		return 0, errors.Wrap(errors.ErrCodeInternal, err, "count tiles")
	}
	return n, nil
}

// Close releases the database and the compressors. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.enc.Close()
	s.dec.Close()
	return s.db.Close()
}

func (s *Store) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New(errors.ErrCodeStoreClosed, "store is closed")
	}
	return nil
}

func (s *Store) meta(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", errors.New(errors.ErrCodeStoreCorrupt, "missing meta key %q", key)
	}
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "read meta %q", key)
	}
	return value, nil
}

// encodeShapes renders level shapes as "256x256,128x128,64x64".
func encodeShapes(shapes [][2]int) string {
	parts := make([]string, len(shapes))
	for i, s := range shapes {
		parts[i] = fmt.Sprintf("%dx%d", s[0], s[1])
	}
	return strings.Join(parts, ",")
}

func decodeShapes(raw string) ([][2]int, error) {
	var shapes [][2]int
	for _, part := range strings.Split(raw, ",") {
		var r, c int
		if _, err := fmt.Sscanf(part, "%dx%d", &r, &c); err != nil || r <= 0 || c <= 0 {
			return nil, errors.New(errors.ErrCodeStoreCorrupt, "bad shape %q", part)
		}
		shapes = append(shapes, [2]int{r, c})
	}
	return shapes, nil
}

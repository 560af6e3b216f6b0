package storage

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/dshills/gocontext-vecstore/pkg/types"
)

// PointsFileName is the database file inside a collection directory
const PointsFileName = "points.db"

// getManyChunkSize bounds the IN list of a single GetMany query
const getManyChunkSize = 500

var collectionNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateCollectionName reports whether name is usable as a collection directory name
func ValidateCollectionName(name string) error {
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: invalid collection name %q", types.ErrInvalidArgument, name)
	}
	return nil
}

var _ PointStore = (*SQLitePointStore)(nil)

// SQLitePointStore implements PointStore using one SQLite database per collection
type SQLitePointStore struct {
	db        *sql.DB
	name      string
	dimension int
	dir       string
}

// busyTimeoutMs is how long a statement waits for a database lock
const busyTimeoutMs = 5000

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Wait on a locked database instead of failing with SQLITE_BUSY
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeoutMs)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return db, nil
}

// CreatePointStore creates the collection directory and its database.
// It fails with ErrAlreadyExists when dir already holds a point store.
func CreatePointStore(ctx context.Context, dir, name string, dimension int) (*SQLitePointStore, error) {
	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", types.ErrInvalidArgument, dimension)
	}

	dbPath := filepath.Join(dir, PointsFileName)
	if _, err := os.Stat(dbPath); err == nil {
		return nil, fmt.Errorf("collection %s: %w", name, types.ErrAlreadyExists)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat %s: %w", dbPath, err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create collection directory: %w", err)
	}

	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	now := time.Now().UnixNano()
	_, err = db.ExecContext(ctx,
		"INSERT INTO collection (name, dimension, created_at, updated_at) VALUES (?, ?, ?, ?)",
		name, dimension, now, now)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to record collection: %w", err)
	}

	return &SQLitePointStore{db: db, name: name, dimension: dimension, dir: dir}, nil
}

// OpenPointStore opens an existing collection directory
func OpenPointStore(ctx context.Context, dir string) (*SQLitePointStore, error) {
	dbPath := filepath.Join(dir, PointsFileName)
	if _, err := os.Stat(dbPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", dir, types.ErrCollectionNotFound)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", dbPath, err)
	}

	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	s := &SQLitePointStore{db: db, dir: dir}
	err = db.QueryRowContext(ctx, "SELECT name, dimension FROM collection LIMIT 1").Scan(&s.name, &s.dimension)
	if err != nil {
		_ = db.Close()
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: collection metadata missing: %w", dir, types.ErrCollectionNotFound)
		}
		return nil, fmt.Errorf("failed to read collection metadata: %w", err)
	}

	return s, nil
}

// DiscoverCollections returns the names of subdirectories of root that hold a point store, sorted
func DiscoverCollections(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || ValidateCollectionName(e.Name()) != nil {
			continue
		}
		if _, err := os.Stat(filepath.Join(root, e.Name(), PointsFileName)); err == nil {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Name returns the collection name
func (s *SQLitePointStore) Name() string { return s.name }

// Dimension returns the fixed vector dimension
func (s *SQLitePointStore) Dimension() int { return s.dimension }

// Dir returns the collection directory
func (s *SQLitePointStore) Dir() string { return s.dir }

// Close closes the database connection
func (s *SQLitePointStore) Close() error {
	return s.db.Close()
}

// Info returns collection metadata and the current point count
func (s *SQLitePointStore) Info(ctx context.Context) (*CollectionInfo, error) {
	var created, updated int64
	info := &CollectionInfo{}
	err := s.db.QueryRowContext(ctx,
		"SELECT name, dimension, created_at, updated_at FROM collection LIMIT 1",
	).Scan(&info.Name, &info.Dimension, &created, &updated)
	if err != nil {
		return nil, fmt.Errorf("failed to read collection metadata: %w", err)
	}
	info.CreatedAt = time.Unix(0, created)
	info.UpdatedAt = time.Unix(0, updated)

	count, err := s.Count(ctx)
	if err != nil {
		return nil, err
	}
	info.PointCount = count
	return info, nil
}

// Upsert writes points in a single transaction. Every point is validated
// before anything is written, so a bad point rejects the whole batch.
// Repeated ids within one batch collapse to their last occurrence.
func (s *SQLitePointStore) Upsert(ctx context.Context, points []types.Point) (*UpsertResult, error) {
	for i := range points {
		if err := points[i].Validate(s.dimension); err != nil {
			return nil, err
		}
	}

	batch := dedupePoints(points)
	result := &UpsertResult{Added: []string{}, Updated: []string{}}
	if len(batch) == 0 {
		return result, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixNano()
	const query = `
		INSERT INTO points (id, vector, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			vector = excluded.vector,
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`

	for _, p := range batch {
		existed, err := existsWithQuerier(ctx, tx, p.ID)
		if err != nil {
			return nil, err
		}

		payload, err := encodePayload(p.Payload)
		if err != nil {
			return nil, fmt.Errorf("point %s: %w", p.ID, err)
		}

		if _, err := tx.ExecContext(ctx, query, p.ID, serializeVector(p.Vector), payload, now, now); err != nil {
			return nil, fmt.Errorf("failed to upsert point %s: %w", p.ID, err)
		}

		if existed {
			result.Updated = append(result.Updated, p.ID)
		} else {
			result.Added = append(result.Added, p.ID)
		}
	}

	if _, err := tx.ExecContext(ctx, "UPDATE collection SET updated_at = ?", now); err != nil {
		return nil, fmt.Errorf("failed to touch collection: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit upsert: %w", err)
	}
	return result, nil
}

// Delete removes the given ids and returns the ones that existed.
// Unknown ids are ignored.
func (s *SQLitePointStore) Delete(ctx context.Context, ids []string) ([]string, error) {
	deleted := []string{}
	if len(ids) == 0 {
		return deleted, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		res, err := tx.ExecContext(ctx, "DELETE FROM points WHERE id = ?", id)
		if err != nil {
			return nil, fmt.Errorf("failed to delete point %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n > 0 {
			deleted = append(deleted, id)
		}
	}

	if len(deleted) > 0 {
		if _, err := tx.ExecContext(ctx, "UPDATE collection SET updated_at = ?", time.Now().UnixNano()); err != nil {
			return nil, fmt.Errorf("failed to touch collection: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit delete: %w", err)
	}
	return deleted, nil
}

// Get returns a single point or ErrPointNotFound
func (s *SQLitePointStore) Get(ctx context.Context, id string) (*types.Point, error) {
	var blob, payload []byte
	err := s.db.QueryRowContext(ctx, "SELECT vector, payload FROM points WHERE id = ?", id).Scan(&blob, &payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", types.ErrPointNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get point %s: %w", id, err)
	}

	return decodePoint(id, blob, payload)
}

// GetMany returns the points that exist among ids, keyed by id
func (s *SQLitePointStore) GetMany(ctx context.Context, ids []string) (map[string]types.Point, error) {
	out := make(map[string]types.Point, len(ids))
	for start := 0; start < len(ids); start += getManyChunkSize {
		end := min(start+getManyChunkSize, len(ids))
		if err := s.getManyChunk(ctx, ids[start:end], out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLitePointStore) getManyChunk(ctx context.Context, ids []string, out map[string]types.Point) error {
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := "SELECT id, vector, payload FROM points WHERE id IN (" + strings.Join(placeholders, ",") + ")"
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query points: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id string
		var blob, payload []byte
		if err := rows.Scan(&id, &blob, &payload); err != nil {
			return fmt.Errorf("failed to scan point: %w", err)
		}
		p, err := decodePoint(id, blob, payload)
		if err != nil {
			return err
		}
		out[id] = *p
	}
	return rows.Err()
}

// Exists reports whether id is stored
func (s *SQLitePointStore) Exists(ctx context.Context, id string) (bool, error) {
	return existsWithQuerier(ctx, s.db, id)
}

// Count returns the number of stored points
func (s *SQLitePointStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM points").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return n, nil
}

// ForEachVector visits every stored vector in ascending id order.
// fn must not call back into the store: the single connection is held
// until iteration finishes.
func (s *SQLitePointStore) ForEachVector(ctx context.Context, fn func(id string, vector []float32) error) error {
	rows, err := s.db.QueryContext(ctx, "SELECT id, vector FROM points ORDER BY id ASC")
	if err != nil {
		return fmt.Errorf("failed to query vectors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return fmt.Errorf("failed to scan vector: %w", err)
		}
		vec, err := deserializeVector(blob)
		if err != nil {
			return fmt.Errorf("point %s: %w", id, err)
		}
		if err := fn(id, vec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func existsWithQuerier(ctx context.Context, q querier, id string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM points WHERE id = ?", id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check point %s: %w", id, err)
	}
	return true, nil
}

// dedupePoints keeps the last occurrence of each id, in first-seen order
func dedupePoints(points []types.Point) []types.Point {
	index := make(map[string]int, len(points))
	out := make([]types.Point, 0, len(points))
	for _, p := range points {
		if i, ok := index[p.ID]; ok {
			out[i] = p
			continue
		}
		index[p.ID] = len(out)
		out = append(out, p)
	}
	return out
}

func encodePayload(payload map[string]any) ([]byte, error) {
	if payload == nil {
		return nil, nil
	}
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return b, nil
}

func decodePayload(b []byte) (map[string]any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.UseLooseInterfaceDecoding(true)

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return payload, nil
}

func decodePoint(id string, blob, payload []byte) (*types.Point, error) {
	vec, err := deserializeVector(blob)
	if err != nil {
		return nil, fmt.Errorf("point %s: %w", id, err)
	}
	p, err := decodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("point %s: %w", id, err)
	}
	return &types.Point{ID: id, Vector: vec, Payload: p}, nil
}

// Package kvstore is the device's small persistent settings store: typed
// scalar values under string keys, one SQLite row per key.
//
// Every Put is a single upsert statement, so a key is either fully old or
// fully new after a power cut. The database runs in WAL mode with
// synchronous=FULL.
package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"crocker/internal/errcode"
	appLog "crocker/internal/log"
)

// Well-known keys.
const (
	KeyBrightness   = "brightness"
	KeyAlarmEnabled = "alarm_enabled"
	KeyUnixTime     = "unix_time"
	KeyTimeValid    = "time_valid"
)

// Kind is the stored type of a value.
type Kind string

const (
	KindUint8  Kind = "u8"
	KindBool   Kind = "bool"
	KindUint64 Kind = "u64"
)

var (
	ErrNotFound     = errors.New("key not found")
	ErrKindMismatch = errors.New("stored kind differs")
)

// Entry is one stored value.
type Entry struct {
	Key   string
	Kind  Kind
	Value uint64
}

const schema = `CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	kind  TEXT NOT NULL,
	value INTEGER NOT NULL
)`

type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the store at path.
func Open(ctx context.Context, path string) (*Store, error) {
	const op = "kvstore.open"
	if path == "" {
		return nil, errcode.New(errcode.InvalidConfig, op, "state path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errcode.Wrap(errcode.StoreAbsent, op, err)
	}

	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errcode.Wrap(errcode.StoreAbsent, op, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errcode.Wrap(errcode.StoreAbsent, op, fmt.Errorf("create schema: %w", err))
	}
	appLog.Info("kv store opened", "path", path)
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) put(ctx context.Context, key string, kind Kind, v uint64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, kind, value) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET kind = excluded.kind, value = excluded.value`,
		key, string(kind), int64(v))
	if err != nil {
		return errcode.Wrap(errcode.StoreAbsent, "kvstore.put", fmt.Errorf("%s: %w", key, err))
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string, kind Kind) (uint64, error) {
	const op = "kvstore.get"
	var (
		stored string
		v      int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT kind, value FROM kv WHERE key = ?`, key).Scan(&stored, &v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errcode.Wrap(errcode.StoreAbsent, op, fmt.Errorf("%s: %w", key, ErrNotFound))
	}
	if err != nil {
		return 0, errcode.Wrap(errcode.StoreAbsent, op, fmt.Errorf("%s: %w", key, err))
	}
	if Kind(stored) != kind {
		return 0, errcode.Wrap(errcode.ParseError, op, fmt.Errorf("%s is %s, want %s: %w", key, stored, kind, ErrKindMismatch))
	}
	return uint64(v), nil
}

func (s *Store) PutUint8(ctx context.Context, key string, v uint8) error {
	return s.put(ctx, key, KindUint8, uint64(v))
}

func (s *Store) Uint8(ctx context.Context, key string) (uint8, error) {
	v, err := s.get(ctx, key, KindUint8)
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint8 {
		return 0, errcode.New(errcode.ParseError, "kvstore.get", key+": value out of range")
	}
	return uint8(v), nil
}

func (s *Store) PutBool(ctx context.Context, key string, v bool) error {
	var n uint64
	if v {
		n = 1
	}
	return s.put(ctx, key, KindBool, n)
}

func (s *Store) Bool(ctx context.Context, key string) (bool, error) {
	v, err := s.get(ctx, key, KindBool)
	return v != 0, err
}

func (s *Store) PutUint64(ctx context.Context, key string, v uint64) error {
	return s.put(ctx, key, KindUint64, v)
}

func (s *Store) Uint64(ctx context.Context, key string) (uint64, error) {
	return s.get(ctx, key, KindUint64)
}

// Entries lists every stored value in key order.
func (s *Store) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, kind, value FROM kv ORDER BY key`)
	if err != nil {
		return nil, errcode.Wrap(errcode.StoreAbsent, "kvstore.entries", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e    Entry
			kind string
			v    int64
		)
		if err := rows.Scan(&e.Key, &kind, &v); err != nil {
			return nil, errcode.Wrap(errcode.StoreAbsent, "kvstore.entries", err)
		}
		e.Kind = Kind(kind)
		e.Value = uint64(v)
		out = append(out, e)
	}
	return out, rows.Err()
}

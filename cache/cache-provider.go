package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// CacheProvider stores byte snapshots under string keys.
// An entry with a zero expiry never expires.
//
// Implementations must be thread-safe!
type CacheProvider interface {
	// Get returns the stored value for the key and whether it was found.
	// Expired entries are reported as not found and purged.
	Get(key string) ([]byte, bool, error)
	// Put stores the value under the key, replacing any previous value.
	Put(key string, expires time.Time, bytes []byte) error
	// Purge removes the entry for the key.
	Purge(key string) error
}

func expired(expires time.Time, now time.Time) bool {
	return !expires.IsZero() && now.After(expires)
}

type memEntry struct {
	expires time.Time
	bytes   []byte
}

type MemCache struct {
	entries map[string]memEntry
	mutex   *sync.RWMutex
}

func NewMemCache() MemCache {
	return MemCache{
		entries: make(map[string]memEntry),
		mutex:   &sync.RWMutex{},
	}
}

func (m MemCache) Get(key string) ([]byte, bool, error) {
	m.mutex.RLock()
	entry, ok := m.entries[key]
	m.mutex.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if expired(entry.expires, time.Now()) {
		m.Purge(key)
		return nil, false, nil
	}
	return append([]byte(nil), entry.bytes...), true, nil
}

func (m MemCache) Put(key string, expires time.Time, bytes []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.entries[key] = memEntry{expires: expires, bytes: append([]byte(nil), bytes...)}
	return nil
}

func (m MemCache) Purge(key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.entries, key)
	return nil
}

// MemoryDB is the sqlite file name for a shared in-memory database.
const MemoryDB = "file::memory:?cache=shared"

type SQLiteCache struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteCache opens (and creates if needed) the cache db in the given file.
// If file name is empty, a new in-memory db is opened.
func NewSQLiteCache(filename string) (SQLiteCache, error) {
	if filename == "" {
		filename = MemoryDB
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return SQLiteCache{}, fmt.Errorf("open %s: %w", filename, err)
	}
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			key TEXT PRIMARY KEY,
			expires INTEGER,
			bytes BLOB
		)`,
		"CREATE INDEX IF NOT EXISTS expires_idx ON snapshots (expires)",
		"PRAGMA journal_mode=WAL",
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return SQLiteCache{}, fmt.Errorf("init %s: %w", filename, err)
		}
	}
	return SQLiteCache{
		db:         db,
		writeMutex: &sync.Mutex{},
	}, nil
}

func (s SQLiteCache) Get(key string) ([]byte, bool, error) {
	var expires int64
	var bytes []byte
	err := s.db.QueryRow("SELECT expires, bytes FROM snapshots WHERE key = ?", key).Scan(&expires, &bytes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if expires != 0 && expired(time.Unix(expires, 0), time.Now()) {
		return nil, false, s.Purge(key)
	}
	return bytes, true, nil
}

func (s SQLiteCache) Put(key string, expires time.Time, bytes []byte) error {
	var exp int64
	if !expires.IsZero() {
		exp = expires.Unix()
	}
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("INSERT OR REPLACE INTO snapshots (key, expires, bytes) VALUES (?, ?, ?)", key, exp, bytes)
	return err
}

func (s SQLiteCache) Purge(key string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("DELETE FROM snapshots WHERE key = ?", key)
	return err
}

func (s SQLiteCache) Close() error {
	return s.db.Close()
}

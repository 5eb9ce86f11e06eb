// Package securestore provides encrypted key/value persistence for session
// credentials. Values are JSON documents sealed with ChaCha20-Poly1305 and
// kept in a SQLite file; mutations stage in memory until Save flushes them
// in one transaction.
package securestore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS secure_values (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// ErrStoreClosed indicates the underlying database connection is unavailable.
var ErrStoreClosed = errors.New("securestore: closed")

// Store manages encrypted key/value persistence.
type Store struct {
	db  *sql.DB
	key []byte

	mu      sync.Mutex
	cache   map[string]json.RawMessage
	dirty   map[string]struct{}
	deleted map[string]struct{}
}

// Open opens (creating if needed) the store at path, decrypting all persisted
// values with a key derived from seed. A row that cannot be decrypted or
// parsed fails Open; absence of the file is not an error.
func Open(path, seed string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		// Credential material defaults to private permissions.
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	if err := ensurePrivateFile(path); err != nil {
		return nil, err
	}

	key, err := deriveKey(seed)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store database: %w", err)
	}

	// WAL allows readers while a Save transaction is in flight.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &Store{
		db:      db,
		key:     key,
		cache:   make(map[string]json.RawMessage),
		dirty:   make(map[string]struct{}),
		deleted: make(map[string]struct{}),
	}
	if err := s.loadAll(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) loadAll() error {
	rows, err := s.db.Query(`SELECT key, value FROM secure_values`)
	if err != nil {
		return fmt.Errorf("read store: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var sealed []byte
		if err := rows.Scan(&key, &sealed); err != nil {
			return fmt.Errorf("scan store row: %w", err)
		}
		plaintext, err := open(s.key, sealed)
		if err != nil {
			return fmt.Errorf("stored value %q is undecryptable: %w", key, err)
		}
		if !json.Valid(plaintext) {
			return fmt.Errorf("stored value %q is corrupt", key)
		}
		s.cache[key] = json.RawMessage(plaintext)
	}
	return rows.Err()
}

// Get returns the value stored under key, or false if absent.
func (s *Store) Get(key string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.cache[key]
	return value, ok
}

// Set stages a value under key. The change is not persisted until Save.
func (s *Store) Set(key string, value json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[key] = value
	s.dirty[key] = struct{}{}
	delete(s.deleted, key)
}

// Delete stages removal of a key. The change is not persisted until Save.
// Deleting an absent key is a no-op.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, key)
	delete(s.dirty, key)
	s.deleted[key] = struct{}{}
}

// Save flushes all staged changes in one transaction. On failure nothing is
// persisted and the staged changes remain pending.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return ErrStoreClosed
	}
	if len(s.dirty) == 0 && len(s.deleted) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	for key := range s.dirty {
		sealed, err := seal(s.key, s.cache[key])
		if err != nil {
			return fmt.Errorf("seal value %q: %w", key, err)
		}
		if _, err := tx.Exec(`
			INSERT INTO secure_values (key, value, updated_at)
			VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
		`, key, sealed); err != nil {
			return fmt.Errorf("write value %q: %w", key, err)
		}
	}
	for key := range s.deleted {
		if _, err := tx.Exec(`DELETE FROM secure_values WHERE key = ?`, key); err != nil {
			return fmt.Errorf("delete value %q: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}

	s.dirty = make(map[string]struct{})
	s.deleted = make(map[string]struct{})
	return nil
}

// Close closes the database connection. Staged but unsaved changes are lost.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensurePrivateFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat store path: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return fmt.Errorf("create store file: %w", err)
	}
	return f.Close()
}

// DeriveSeed builds the machine-scoped key seed from the app identifier and
// environment, mirroring what the desktop shell derives.
func DeriveSeed(identifier, osName, user, dataDir string) string {
	return identifier + "|" + osName + "|" + user + "|" + dataDir
}

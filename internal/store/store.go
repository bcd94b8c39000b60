// Package store persists the host-owned state across restarts: the
// credential pair handed back by the API client and small key/value
// settings. Backed by a single SQLite file.
package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
	_ "modernc.org/sqlite"

	"github.com/grimsteel/smarttag-go/smarttag"
)

const credentialsKey = "credentials"

const schema = `
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
);`

// Store is a SQLite-backed settings and credential store. Credentials are
// sealed with secretbox when a key is configured.
type Store struct {
	db  *sql.DB
	key *[32]byte
}

// Option configures a Store.
type Option func(*Store)

// WithEncryptionKey seals the persisted credential blob with the given
// 32-byte key.
func WithEncryptionKey(key []byte) Option {
	return func(s *Store) {
		if len(key) != 32 {
			return
		}
		s.key = new([32]byte)
		copy(s.key[:], key)
	}
}

// Open opens (creating if needed) the store at path.
func Open(path string, options ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	// WAL keeps the poller and status server from blocking each other.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &Store{db: db}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveCredentials persists the token pair.
func (s *Store) SaveCredentials(creds smarttag.Credentials) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if s.key != nil {
		data, err = s.seal(data)
		if err != nil {
			return err
		}
	}
	return s.Set(credentialsKey, data)
}

// LoadCredentials restores the persisted token pair. The second return is
// false when none has been saved yet.
func (s *Store) LoadCredentials() (smarttag.Credentials, bool, error) {
	var creds smarttag.Credentials

	data, ok, err := s.Get(credentialsKey)
	if err != nil || !ok {
		return creds, false, err
	}
	if s.key != nil {
		data, err = s.open(data)
		if err != nil {
			return creds, false, err
		}
	}
	if err := json.Unmarshal(data, &creds); err != nil {
		return creds, false, fmt.Errorf("decode credentials: %w", err)
	}
	return creds, true, nil
}

// ClearCredentials drops the persisted token pair, e.g. after the provider
// invalidates the session.
func (s *Store) ClearCredentials() error {
	_, err := s.db.Exec("DELETE FROM settings WHERE key = ?", credentialsKey)
	return err
}

// Set stores an arbitrary settings value.
func (s *Store) Set(key string, value []byte) error {
	_, err := s.db.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

// Get retrieves a settings value. The second return is false when the key
// does not exist.
func (s *Store) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *Store) seal(data []byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], data, &nonce, s.key), nil
}

func (s *Store) open(data []byte) ([]byte, error) {
	if len(data) < 24 {
		return nil, errors.New("sealed blob too short")
	}
	var nonce [24]byte
	copy(nonce[:], data[:24])
	plain, ok := secretbox.Open(nil, data[24:], &nonce, s.key)
	if !ok {
		return nil, errors.New("credential blob failed to decrypt; wrong storage key?")
	}
	return plain, nil
}

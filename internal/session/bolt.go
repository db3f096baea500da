package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/fruitsalade/ecloud/pkg/models"
)

const (
	boltBucket      = "session"
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
)

var errBucketNotFound = errors.New("session bucket not found")

// BoltStore keeps the tokens in a bbolt database.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBoltStore opens (or creates) the database at path. An empty path uses
// session.db under DefaultDir.
func OpenBoltStore(path string) (*BoltStore, error) {
	if path == "" {
		path = filepath.Join(DefaultDir(), "session.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Close releases the database file lock.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Load() (models.Tokens, error) {
	var tokens models.Tokens
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(boltBucket))
		if b == nil {
			return errBucketNotFound
		}
		tokens.AccessToken = string(b.Get([]byte(keyAccessToken)))
		tokens.RefreshToken = string(b.Get([]byte(keyRefreshToken)))
		return nil
	})
	return tokens, err
}

func (s *BoltStore) Save(tokens models.Tokens) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(boltBucket))
		if b == nil {
			return errBucketNotFound
		}
		if err := b.Put([]byte(keyAccessToken), []byte(tokens.AccessToken)); err != nil {
			return err
		}
		return b.Put([]byte(keyRefreshToken), []byte(tokens.RefreshToken))
	})
}

func (s *BoltStore) Clear() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(boltBucket))
		if b == nil {
			return errBucketNotFound
		}
		if err := b.Delete([]byte(keyAccessToken)); err != nil {
			return err
		}
		return b.Delete([]byte(keyRefreshToken))
	})
}

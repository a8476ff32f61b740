// Package store backs the engine's storage collaborators with a single
// bbolt database: pod-owned namespaces, the delegated-credential store and
// channel record persistence.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/pombredanne/bipio/engine"
)

var ErrNotFound = errors.New("not found")

const (
	channelBucket = "channels"
	authBucket    = "auth"
	podPrefix     = "pod_"
)

type Store struct {
	path string
	db   *bolt.DB
}

func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Open() error {
	db, err := bolt.Open(s.path, 0644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("opening store %s: %w", s.path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{channelBucket, authBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return fmt.Errorf("preparing store buckets: %w", err)
	}
	s.db = db
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Namespace opens (creating if needed) the pod-owned bucket for name.
func (s *Store) Namespace(name string) (engine.Namespace, error) {
	bucket := []byte(podPrefix + name)
	err := s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating namespace %s: %w", name, err)
	}
	return &namespace{db: s.db, bucket: bucket}, nil
}

type namespace struct {
	db     *bolt.DB
	bucket []byte
}

func (n *namespace) Put(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return n.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(n.bucket).Put([]byte(key), raw)
	})
}

func (n *namespace) Get(key string, out any) error {
	return n.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(n.bucket).Get([]byte(key))
		if raw == nil {
			return fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return json.Unmarshal(raw, out)
	})
}

func (n *namespace) Delete(key string) error {
	return n.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(n.bucket).Delete([]byte(key))
	})
}

func (n *namespace) ForEach(fn func(key string, raw []byte) error) error {
	return n.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(n.bucket).ForEach(func(k, v []byte) error {
			return fn(string(k), v)
		})
	})
}

func credentialKey(ownerID, pod string) []byte {
	return []byte(ownerID + "/" + pod)
}

// Credential returns the stored credential for (ownerID, pod), or
// engine.ErrNoCredential when none exists.
func (s *Store) Credential(ownerID, pod string) (*engine.Credential, error) {
	var cred engine.Credential
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(authBucket)).Get(credentialKey(ownerID, pod))
		if raw == nil {
			return engine.ErrNoCredential
		}
		return json.Unmarshal(raw, &cred)
	})
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (s *Store) PutCredential(c *engine.Credential) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding credential: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(authBucket)).Put(credentialKey(c.OwnerID, c.Pod), raw)
	})
}

// SaveChannel persists a channel record, assigning id and creation time on
// first save. Returns whether the record was new.
func (s *Store) SaveChannel(ch *engine.Channel) (bool, error) {
	isNew := ch.ID == ""
	if isNew {
		ch.ID = uuid.New().String()
		ch.Created = time.Now().UTC()
	}
	raw, err := json.Marshal(ch)
	if err != nil {
		return false, fmt.Errorf("encoding channel: %w", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(channelBucket)).Put([]byte(ch.ID), raw)
	})
	if err != nil {
		return false, fmt.Errorf("saving channel %s: %w", ch.ID, err)
	}
	return isNew, nil
}

func (s *Store) Channel(id string) (*engine.Channel, error) {
	var ch engine.Channel
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(channelBucket)).Get([]byte(id))
		if raw == nil {
			return fmt.Errorf("channel %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(raw, &ch)
	})
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// Channels iterates every persisted channel.
func (s *Store) Channels(fn func(ch *engine.Channel) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(channelBucket)).ForEach(func(k, v []byte) error {
			var ch engine.Channel
			if err := json.Unmarshal(v, &ch); err != nil {
				return err
			}
			return fn(&ch)
		})
	})
}

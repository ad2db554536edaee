package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cuemby/foreman/pkg/events"
	"github.com/cuemby/foreman/pkg/types"
	bolt "go.etcd.io/bbolt"
)

// DefaultMaxEvents bounds the event journal
const DefaultMaxEvents = 1000

// DBFile is the database file name inside the data directory
const DBFile = "foreman.db"

var (
	// Bucket names
	bucketDefinitions = []byte("definitions")
	bucketEvents      = []byte("events")
)

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db        *bolt.DB
	maxEvents int
}

// NewBoltStore opens (or creates) the store in dataDir.
// maxEvents <= 0 uses DefaultMaxEvents.
func NewBoltStore(dataDir string, maxEvents int) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}

	db, err := bolt.Open(filepath.Join(dataDir, DBFile), 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketDefinitions, bucketEvents} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, maxEvents: maxEvents}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// SaveDefinition upserts a definition keyed by name
func (s *BoltStore) SaveDefinition(def *types.WorkerDefinition) error {
	if def == nil || def.Name == "" {
		return fmt.Errorf("definition name is required")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(def)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketDefinitions).Put([]byte(def.Name), data)
	})
}

// GetDefinition returns the stored definition for name
func (s *BoltStore) GetDefinition(name string) (*types.WorkerDefinition, error) {
	var def types.WorkerDefinition
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketDefinitions).Get([]byte(name))
		if data == nil {
			return fmt.Errorf("definition %s: %w", name, ErrNotFound)
		}
		return json.Unmarshal(data, &def)
	})
	if err != nil {
		return nil, err
	}
	return &def, nil
}

// ListDefinitions returns every stored definition in name order
func (s *BoltStore) ListDefinitions() ([]*types.WorkerDefinition, error) {
	var defs []*types.WorkerDefinition
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDefinitions).ForEach(func(k, v []byte) error {
			var def types.WorkerDefinition
			if err := json.Unmarshal(v, &def); err != nil {
				return fmt.Errorf("corrupt definition %s: %w", k, err)
			}
			defs = append(defs, &def)
			return nil
		})
	})
	return defs, err
}

// DeleteDefinition removes a stored definition. Missing names are not an error.
func (s *BoltStore) DeleteDefinition(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDefinitions).Delete([]byte(name))
	})
}

// AppendEvent journals an event and trims the oldest beyond the bound
func (s *BoltStore) AppendEvent(event *events.Event) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEvents)

		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		if err := b.Put(seqKey(seq), data); err != nil {
			return err
		}

		if seq <= uint64(s.maxEvents) {
			return nil
		}
		cutoff := seq - uint64(s.maxEvents)
		c := b.Cursor()
		for k, _ := c.First(); k != nil && binary.BigEndian.Uint64(k) <= cutoff; k, _ = c.First() {
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListEvents returns up to limit of the most recent events, oldest first.
// limit <= 0 returns the whole journal.
func (s *BoltStore) ListEvents(limit int) ([]*events.Event, error) {
	var out []*events.Event
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEvents).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(out) >= limit {
				break
			}
			var ev events.Event
			if err := json.Unmarshal(v, &ev); err != nil {
				return fmt.Errorf("corrupt event %d: %w", binary.BigEndian.Uint64(k), err)
			}
			out = append(out, &ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

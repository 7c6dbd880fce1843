// Package history provides persistent storage for training run records.
// It uses BoltDB as the underlying storage engine and can optionally
// publish records to an external experiment tracker.
package history

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const runsBucket = "runs"

// Record describes one completed training pass.
type Record struct {
	Kind             string // "full" or "fold"
	Fold             int
	Loss             float64
	InnerValLoss     float64
	MeanOuterValLoss float64
	MeanTestLoss     float64
	RMSETrain        float64
	MAETrain         float64
	RMSEInnerVal     float64
	MAEInnerVal      float64
	RMSEOuterVal     float64
	MAEOuterVal      float64
	RMSETest         float64
	MAETest          float64
	Ts               time.Time
}

// Store persists run records in a BoltDB database. Records are keyed by
// kind and timestamp so runs of one kind can be scanned in order.
type Store struct {
	db *bbolt.DB
}

// New opens the history database under dataPath, creating it and its
// bucket if needed.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "history.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(runsBucket)); err != nil {
			return fmt.Errorf("create runs bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Put stores a run record. The timestamp is set to now when unset.
func (s *Store) Put(rec Record) error {
	if rec.Ts.IsZero() {
		rec.Ts = time.Now()
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(runsBucket))

		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
			return fmt.Errorf("encode record: %w", err)
		}

		key := fmt.Sprintf("%s_%020d", rec.Kind, rec.Ts.UnixNano())
		return b.Put([]byte(key), buf.Bytes())
	})
}

// Runs returns all records of the given kind in insertion order.
func (s *Store) Runs(kind string) ([]Record, error) {
	var records []Record

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(runsBucket))
		c := b.Cursor()

		prefix := []byte(kind + "_")
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var rec Record
			if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&rec); err != nil {
				return fmt.Errorf("decode record %s: %w", k, err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

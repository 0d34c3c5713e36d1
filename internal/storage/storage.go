package storage

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"osdprof/internal/models"
)

// Store persists samples in a pebble key-value database. Keys are
// "{tag}::{timestamp}" so one prefix scan selects all samples of one source
// class, optionally narrowed to one daemon.
type Store struct {
	db *pebble.DB
}

// Record is one key/payload pair returned by a scan.
type Record struct {
	Key     string
	Payload []byte
}

// TagSummary describes the samples stored under one tag.
type TagSummary struct {
	Count int
	First int64 // milliseconds since epoch
	Last  int64
}

// Open opens (or creates) a store at the given path.
func Open(path string) (*Store, error) {
	return open(path, &pebble.Options{})
}

// OpenReadOnly opens an existing store for querying.
func OpenReadOnly(path string) (*Store, error) {
	return open(path, &pebble.Options{ReadOnly: true})
}

// OpenMemory opens a store backed by an in-memory filesystem. Used by tests.
func OpenMemory() (*Store, error) {
	return open("", &pebble.Options{FS: vfs.NewMem()})
}

func open(path string, opts *pebble.Options) (*Store, error) {
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "open store %q", path)
	}
	return &Store{db: db}, nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put writes one sample under its key, overwriting any previous payload.
func (s *Store) Put(sample models.Sample) error {
	if err := s.db.Set([]byte(sample.Key()), sample.Payload, pebble.Sync); err != nil {
		return errors.Wrapf(err, "store sample %s", sample.Key())
	}
	return nil
}

// Get returns the payload stored under the exact key.
func (s *Store) Get(key string) ([]byte, error) {
	val, closer, err := s.db.Get([]byte(key))
	if err != nil {
		return nil, errors.Wrapf(err, "read %q", key)
	}
	out := append([]byte(nil), val...)
	if err := closer.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

// ScanPrefix returns all records whose key starts with prefix, in key order.
func (s *Store) ScanPrefix(prefix string) ([]Record, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: prefixUpperBound([]byte(prefix)),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open iterator")
	}
	var records []Record
	for iter.First(); iter.Valid(); iter.Next() {
		records = append(records, Record{
			Key:     string(iter.Key()),
			Payload: append([]byte(nil), iter.Value()...),
		})
	}
	if err := iter.Close(); err != nil {
		return nil, errors.Wrapf(err, "scan prefix %q", prefix)
	}
	return records, nil
}

// Summary reports per-tag sample counts and covered time ranges.
func (s *Store) Summary() (map[string]TagSummary, error) {
	records, err := s.ScanPrefix("")
	if err != nil {
		return nil, err
	}
	out := make(map[string]TagSummary)
	for _, rec := range records {
		tag, ts, err := models.ParseKey(rec.Key)
		if err != nil {
			return nil, err
		}
		sum, ok := out[tag]
		if !ok || ts < sum.First {
			sum.First = ts
		}
		if ts > sum.Last {
			sum.Last = ts
		}
		sum.Count++
		out[tag] = sum
	}
	return out, nil
}

// prefixUpperBound returns the smallest key strictly greater than every key
// with the given prefix, or nil when no such bound exists.
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

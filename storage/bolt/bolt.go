// Package bolt is a storage.Storage backed by a bbolt file.  Each
// neuron gets a bucket, and each run is a canonical CBOR record in
// that bucket.
package bolt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/Comcast/axon/storage"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"
)

var encMode cbor.EncMode

func init() {
	opts := cbor.CanonicalEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("bolt: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

var ErrNotOpen = errors.New("storage not open")

type Storage struct {
	Debug    bool
	filename string
	db       *bolt.DB
}

func NewStorage(filename string) (*Storage, error) {
	return &Storage{
		filename: filename,
	}, nil
}

func (s *Storage) Open(ctx context.Context) error {
	opts := &bolt.Options{
		Timeout: time.Second,
	}

	db, err := bolt.Open(s.filename, 0644, opts)
	if err != nil {
		return err
	}
	s.db = db
	return nil
}

func (s *Storage) Close(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Storage) logf(format string, args ...interface{}) {
	if s.Debug {
		log.Printf("BoltDB Storage."+format, args...)
	}
}

func (s *Storage) WriteRun(ctx context.Context, r *storage.Run) error {
	if s.db == nil {
		return ErrNotOpen
	}
	s.logf("WriteRun %s %s", r.Neuron, r.Id)
	bs, err := encMode.Marshal(r)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(r.Neuron))
		if err != nil {
			return err
		}
		return b.Put([]byte(r.Id), bs)
	})
}

func (s *Storage) GetRun(ctx context.Context, neuron, id string) (*storage.Run, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}
	s.logf("GetRun %s %s", neuron, id)
	var r *storage.Run
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(neuron))
		if b == nil {
			return storage.NotFound
		}
		bs := b.Get([]byte(id))
		if bs == nil {
			return storage.NotFound
		}
		r = &storage.Run{}
		return cbor.Unmarshal(bs, r)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Storage) ListRuns(ctx context.Context, neuron string) ([]*storage.Run, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}
	acc := make([]*storage.Run, 0, 32)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(neuron))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for id, bs := c.First(); id != nil; id, bs = c.Next() {
			var r storage.Run
			if err := cbor.Unmarshal(bs, &r); err != nil {
				return fmt.Errorf("run %s: %w", id, err)
			}
			acc = append(acc, &r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(acc, func(i, j int) bool {
		return acc[i].Started.Before(acc[j].Started)
	})
	s.logf("ListRuns %s found %d runs", neuron, len(acc))
	return acc, nil
}

func (s *Storage) RemRun(ctx context.Context, neuron, id string) error {
	if s.db == nil {
		return ErrNotOpen
	}
	s.logf("RemRun %s %s", neuron, id)
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(neuron))
		if b == nil {
			return storage.NotFound
		}
		return b.Delete([]byte(id))
	})
}

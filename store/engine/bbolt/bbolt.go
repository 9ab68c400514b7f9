// Package bbolt provides a file-backed storage engine on top of bbolt,
// including native write transactions.
package bbolt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/object-layer/object-layer/iterator"
	"github.com/object-layer/object-layer/query"
	"github.com/object-layer/object-layer/record"
	"github.com/object-layer/object-layer/store/engine"
)

var bucketName = []byte{0}

// BBolt engine.
type BBolt struct {
	name string
	db   *bbolt.DB
}

func init() {
	_ = engine.Register("bbolt", NewBBolt)
}

// NewBBolt opens/creates a bbolt database at location.
func NewBBolt(name, location string) (engine.Interface, error) {
	dbFile := filepath.Join(location, "db.bbolt")
	dbOptions := &bbolt.Options{
		Timeout: 1 * time.Second,
	}

	// Open/Create database, retry if there is a timeout.
	db, err := bbolt.Open(dbFile, 0o0600, dbOptions)
	for i := 0; i < 5 && err != nil; i++ {
		db, err = bbolt.Open(dbFile, 0o0600, dbOptions)
	}
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &BBolt{
		name: name,
		db:   db,
	}, nil
}

func unmarshalValue(key string, value []byte) (*record.Record, error) {
	collection, recKey := record.ParseKey(key)

	// copy data, the slice is only valid during the bbolt transaction
	duplicate := make([]byte, len(value))
	copy(duplicate, value)

	return record.Unmarshal(collection, recKey, duplicate)
}

// Get returns a record.
func (b *BBolt) Get(key string) (*record.Record, error) {
	var r *record.Record

	err := b.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(bucketName).Get([]byte(key))
		if value == nil {
			return engine.ErrNotFound
		}

		var txErr error
		r, txErr = unmarshalValue(key, value)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Put stores a record.
func (b *BBolt) Put(r *record.Record) (*record.Record, error) {
	data, err := r.Marshal()
	if err != nil {
		return nil, err
	}

	err = b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(r.EngineKey()), data)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Delete deletes a record.
func (b *BBolt) Delete(key string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(key))
	})
}

// Query returns an iterator for the supplied query.
func (b *BBolt) Query(q *query.Query) (*iterator.Iterator, error) {
	_, err := q.Check()
	if err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}

	queryIter := iterator.New()

	go b.queryExecutor(queryIter, q)
	return queryIter, nil
}

func (b *BBolt) queryExecutor(queryIter *iterator.Iterator, q *query.Query) {
	prefix := []byte(q.Collection() + "/" + q.GetKeyPrefix())
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()

		// Iterate over items in sorted key order, starting at the prefix and
		// stopping as soon as the prefix no longer matches.
		for key, value := c.Seek(prefix); key != nil; key, value = c.Next() {
			if !bytes.HasPrefix(key, prefix) {
				return nil
			}

			r, err := unmarshalValue(string(key), value)
			if err != nil {
				return err
			}

			if !r.Meta().CheckValidity() {
				continue
			}
			if !q.MatchesRecord(r) {
				continue
			}

			select {
			case <-queryIter.Done:
				return nil
			case queryIter.Next <- r:
			default:
				select {
				case <-queryIter.Done:
					return nil
				case queryIter.Next <- r:
				case <-time.After(1 * time.Second):
					return errors.New("query timeout")
				}
			}
		}
		return nil
	})
	queryIter.Finish(err)
}

// Begin starts a native bbolt write transaction.
func (b *BBolt) Begin() (engine.Tx, error) {
	tx, err := b.db.Begin(true)
	if err != nil {
		return nil, err
	}
	return &bboltTx{tx: tx}, nil
}

type bboltTx struct {
	tx *bbolt.Tx
}

func (t *bboltTx) Get(key string) (*record.Record, error) {
	value := t.tx.Bucket(bucketName).Get([]byte(key))
	if value == nil {
		return nil, engine.ErrNotFound
	}
	return unmarshalValue(key, value)
}

func (t *bboltTx) Put(r *record.Record) (*record.Record, error) {
	data, err := r.Marshal()
	if err != nil {
		return nil, err
	}
	err = t.tx.Bucket(bucketName).Put([]byte(r.EngineKey()), data)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (t *bboltTx) Delete(key string) error {
	return t.tx.Bucket(bucketName).Delete([]byte(key))
}

func (t *bboltTx) Commit() error {
	return t.tx.Commit()
}

func (t *bboltTx) Rollback() error {
	return t.tx.Rollback()
}

// Purge deletes all records that match the given query. It returns the number
// of successful deletes and an error.
func (b *BBolt) Purge(ctx context.Context, q *query.Query) (int, error) {
	_, err := q.Check()
	if err != nil {
		return 0, fmt.Errorf("invalid query: %w", err)
	}

	prefix := []byte(q.Collection() + "/" + q.GetKeyPrefix())

	var cnt int
	var done bool
	for !done {
		err := b.db.Update(func(tx *bbolt.Tx) error {
			c := tx.Bucket(bucketName).Cursor()
			for key, value := c.Seek(prefix); key != nil; key, value = c.Next() {
				select {
				case <-ctx.Done():
					done = true
					return nil
				default:
				}

				if !bytes.HasPrefix(key, prefix) {
					done = true
					return nil
				}

				r, err := unmarshalValue(string(key), value)
				if err != nil {
					return err
				}

				if !q.MatchesRecord(r) {
					continue
				}

				err = c.Delete()
				if err != nil {
					return err
				}

				// Work in batches of 1000 changes in order to enable other
				// operations in between.
				cnt++
				if cnt%1000 == 0 {
					return nil
				}
			}
			done = true
			return nil
		})
		if err != nil {
			return cnt, err
		}
	}

	return cnt, nil
}

// ReadOnly returns whether the engine is read only.
func (b *BBolt) ReadOnly() bool {
	return false
}

// Shutdown shuts down the engine.
func (b *BBolt) Shutdown() error {
	return b.db.Close()
}

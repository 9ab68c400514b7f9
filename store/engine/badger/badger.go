// Package badger provides a storage engine backed by badger, with native
// transactions and value log maintenance.
package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger"

	"github.com/object-layer/object-layer/internal/log"
	"github.com/object-layer/object-layer/iterator"
	"github.com/object-layer/object-layer/query"
	"github.com/object-layer/object-layer/record"
	"github.com/object-layer/object-layer/store/engine"
)

// Badger engine.
type Badger struct {
	name string
	db   *badger.DB
}

func init() {
	_ = engine.Register("badger", NewBadger)
}

// NewBadger opens/creates a badger database at location.
func NewBadger(name, location string) (engine.Interface, error) {
	opts := badger.DefaultOptions(location)

	db, err := badger.Open(opts)
	if errors.Is(err, badger.ErrTruncateNeeded) {
		// clean up after crash
		log.Warningf("store/engine: truncating corrupted value log of badger database %s: this may cause data loss", name)
		opts.Truncate = true
		db, err = badger.Open(opts)
	}
	if err != nil {
		return nil, err
	}

	return &Badger{
		name: name,
		db:   db,
	}, nil
}

func unmarshalItem(item *badger.Item) (*record.Record, error) {
	key := string(item.Key())
	collection, recKey := record.ParseKey(key)

	data, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}

	return record.Unmarshal(collection, recKey, data)
}

// Get returns a record.
func (b *Badger) Get(key string) (*record.Record, error) {
	var r *record.Record

	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return engine.ErrNotFound
			}
			return err
		}
		if item.IsDeletedOrExpired() {
			return engine.ErrNotFound
		}

		r, err = unmarshalItem(item)
		return err
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Put stores a record.
func (b *Badger) Put(r *record.Record) (*record.Record, error) {
	data, err := r.Marshal()
	if err != nil {
		return nil, err
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(r.EngineKey()), data)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Delete deletes a record.
func (b *Badger) Delete(key string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(key))
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return nil
	})
}

// Query returns an iterator for the supplied query.
func (b *Badger) Query(q *query.Query) (*iterator.Iterator, error) {
	_, err := q.Check()
	if err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}

	queryIter := iterator.New()

	go b.queryExecutor(queryIter, q)
	return queryIter, nil
}

func (b *Badger) queryExecutor(queryIter *iterator.Iterator, q *query.Query) {
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(q.Collection() + "/" + q.GetKeyPrefix())
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			if item.IsDeletedOrExpired() {
				continue
			}

			r, err := unmarshalItem(item)
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
				case queryIter.Next <- r:
				case <-queryIter.Done:
					return nil
				case <-time.After(1 * time.Minute):
					return errors.New("query timeout")
				}
			}
		}
		return nil
	})

	queryIter.Finish(err)
}

// Begin starts a native badger write transaction.
func (b *Badger) Begin() (engine.Tx, error) {
	return &badgerTx{txn: b.db.NewTransaction(true)}, nil
}

type badgerTx struct {
	txn *badger.Txn
}

func (t *badgerTx) Get(key string) (*record.Record, error) {
	item, err := t.txn.Get([]byte(key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, engine.ErrNotFound
		}
		return nil, err
	}
	if item.IsDeletedOrExpired() {
		return nil, engine.ErrNotFound
	}
	return unmarshalItem(item)
}

func (t *badgerTx) Put(r *record.Record) (*record.Record, error) {
	data, err := r.Marshal()
	if err != nil {
		return nil, err
	}
	err = t.txn.Set([]byte(r.EngineKey()), data)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (t *badgerTx) Delete(key string) error {
	err := t.txn.Delete([]byte(key))
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}
	return nil
}

func (t *badgerTx) Commit() error {
	return t.txn.Commit()
}

func (t *badgerTx) Rollback() error {
	t.txn.Discard()
	return nil
}

// ReadOnly returns whether the engine is read only.
func (b *Badger) ReadOnly() bool {
	return false
}

// Maintain runs a light maintenance operation on the database.
func (b *Badger) Maintain(_ context.Context) error {
	_ = b.db.RunValueLogGC(0.7)
	return nil
}

// MaintainThorough runs a thorough maintenance operation on the database.
func (b *Badger) MaintainThorough(_ context.Context) (err error) {
	for err == nil {
		err = b.db.RunValueLogGC(0.7)
	}
	return nil
}

// Shutdown shuts down the engine.
func (b *Badger) Shutdown() error {
	return b.db.Close()
}

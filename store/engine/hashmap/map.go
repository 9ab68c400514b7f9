// Package hashmap provides an in-memory storage engine. It is the default
// engine for tests and for stores that do not need persistence.
package hashmap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/object-layer/object-layer/iterator"
	"github.com/object-layer/object-layer/query"
	"github.com/object-layer/object-layer/record"
	"github.com/object-layer/object-layer/store/engine"
)

// HashMap engine.
type HashMap struct {
	name   string
	db     map[string]*record.Record
	dbLock sync.RWMutex
}

func init() {
	_ = engine.Register("hashmap", NewHashMap)
}

// NewHashMap creates a hashmap engine.
func NewHashMap(name, location string) (engine.Interface, error) {
	return &HashMap{
		name: name,
		db:   make(map[string]*record.Record),
	}, nil
}

// Get returns a record.
func (hm *HashMap) Get(key string) (*record.Record, error) {
	hm.dbLock.RLock()
	defer hm.dbLock.RUnlock()

	r, ok := hm.db[key]
	if !ok {
		return nil, engine.ErrNotFound
	}
	return r, nil
}

// Put stores a record.
func (hm *HashMap) Put(r *record.Record) (*record.Record, error) {
	hm.dbLock.Lock()
	defer hm.dbLock.Unlock()

	hm.db[r.EngineKey()] = r
	return r, nil
}

// Delete deletes a record.
func (hm *HashMap) Delete(key string) error {
	hm.dbLock.Lock()
	defer hm.dbLock.Unlock()

	delete(hm.db, key)
	return nil
}

// Query returns an iterator for the supplied query.
func (hm *HashMap) Query(q *query.Query) (*iterator.Iterator, error) {
	_, err := q.Check()
	if err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}

	queryIter := iterator.New()

	go hm.queryExecutor(queryIter, q)
	return queryIter, nil
}

func (hm *HashMap) queryExecutor(queryIter *iterator.Iterator, q *query.Query) {
	hm.dbLock.RLock()
	defer hm.dbLock.RUnlock()

	var err error
	prefix := q.Collection() + "/"

mapLoop:
	for key, r := range hm.db {
		if !strings.HasPrefix(key, prefix) ||
			!q.MatchesKey(strings.TrimPrefix(key, prefix)) ||
			!r.Meta().CheckValidity() ||
			!q.MatchesRecord(r) {
			continue
		}

		select {
		case <-queryIter.Done:
			break mapLoop
		case queryIter.Next <- r:
		default:
			select {
			case <-queryIter.Done:
				break mapLoop
			case queryIter.Next <- r:
			case <-time.After(1 * time.Second):
				err = errors.New("query timeout")
				break mapLoop
			}
		}
	}

	queryIter.Finish(err)
}

// Count returns the number of records matching the query.
func (hm *HashMap) Count(q *query.Query) (int, error) {
	_, err := q.Check()
	if err != nil {
		return 0, fmt.Errorf("invalid query: %w", err)
	}

	hm.dbLock.RLock()
	defer hm.dbLock.RUnlock()

	n := 0
	prefix := q.Collection() + "/"
	for key, r := range hm.db {
		if strings.HasPrefix(key, prefix) &&
			q.MatchesKey(strings.TrimPrefix(key, prefix)) &&
			r.Meta().CheckValidity() &&
			q.MatchesRecord(r) {
			n++
		}
	}
	return n, nil
}

// Purge deletes all records matching the query.
func (hm *HashMap) Purge(ctx context.Context, q *query.Query) (int, error) {
	_, err := q.Check()
	if err != nil {
		return 0, fmt.Errorf("invalid query: %w", err)
	}

	hm.dbLock.Lock()
	defer hm.dbLock.Unlock()

	n := 0
	prefix := q.Collection() + "/"
	for key, r := range hm.db {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if strings.HasPrefix(key, prefix) &&
			q.MatchesKey(strings.TrimPrefix(key, prefix)) &&
			q.MatchesRecord(r) {
			delete(hm.db, key)
			n++
		}
	}
	return n, nil
}

// Begin starts a write transaction backed by a write buffer. Writes become
// visible to other readers only on Commit.
func (hm *HashMap) Begin() (engine.Tx, error) {
	return &hashMapTx{
		hm:      hm,
		writes:  make(map[string]*record.Record),
		deletes: make(map[string]struct{}),
	}, nil
}

type hashMapTx struct {
	hm      *HashMap
	writes  map[string]*record.Record
	deletes map[string]struct{}
	done    bool
}

func (tx *hashMapTx) Get(key string) (*record.Record, error) {
	if _, ok := tx.deletes[key]; ok {
		return nil, engine.ErrNotFound
	}
	if r, ok := tx.writes[key]; ok {
		return r, nil
	}
	return tx.hm.Get(key)
}

func (tx *hashMapTx) Put(r *record.Record) (*record.Record, error) {
	key := r.EngineKey()
	delete(tx.deletes, key)
	tx.writes[key] = r
	return r, nil
}

func (tx *hashMapTx) Delete(key string) error {
	delete(tx.writes, key)
	tx.deletes[key] = struct{}{}
	return nil
}

func (tx *hashMapTx) Commit() error {
	if tx.done {
		return errors.New("transaction already finished")
	}
	tx.done = true

	tx.hm.dbLock.Lock()
	defer tx.hm.dbLock.Unlock()

	for key := range tx.deletes {
		delete(tx.hm.db, key)
	}
	for key, r := range tx.writes {
		tx.hm.db[key] = r
	}
	return nil
}

func (tx *hashMapTx) Rollback() error {
	if tx.done {
		return errors.New("transaction already finished")
	}
	tx.done = true
	tx.writes = nil
	tx.deletes = nil
	return nil
}

// ReadOnly returns whether the engine is read only.
func (hm *HashMap) ReadOnly() bool {
	return false
}

// Shutdown shuts down the engine.
func (hm *HashMap) Shutdown() error {
	return nil
}

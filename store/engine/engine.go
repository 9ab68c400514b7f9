// Package engine defines the storage engine API and the engine factory
// registry. Engines persist serialized records under collection-scoped keys
// and know nothing about classes, relations or transactions above the
// key-value level.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/object-layer/object-layer/iterator"
	"github.com/object-layer/object-layer/query"
	"github.com/object-layer/object-layer/record"
)

// A Factory creates a new engine of its type.
type Factory func(name, location string) (Interface, error)

var (
	engines     = make(map[string]Factory)
	enginesLock sync.Mutex
)

// Register registers a new engine type.
func Register(name string, factory Factory) error {
	enginesLock.Lock()
	defer enginesLock.Unlock()

	_, ok := engines[name]
	if ok {
		return errors.New("factory for this engine type already exists")
	}

	engines[name] = factory
	return nil
}

// StartEngine starts a new engine with the given name and type at location.
func StartEngine(name, engineType, location string) (Interface, error) {
	enginesLock.Lock()
	defer enginesLock.Unlock()

	factory, ok := engines[engineType]
	if !ok {
		return nil, fmt.Errorf("engine type %s not registered", engineType)
	}

	return factory(name, location)
}

// Interface defines the storage engine API.
type Interface interface {
	// Primary Interface
	Get(key string) (*record.Record, error)
	Put(r *record.Record) (*record.Record, error)
	Delete(key string) error
	Query(q *query.Query) (*iterator.Iterator, error)

	// Information and Control
	ReadOnly() bool
	Shutdown() error
}

// Transactor defines the engine API for backends that support atomic
// multi-operation writes.
type Transactor interface {
	Begin() (Tx, error)
}

// Tx is a write transaction on an engine. All reads see the transaction's own
// writes. Commit and Rollback both release the transaction.
type Tx interface {
	Get(key string) (*record.Record, error)
	Put(r *record.Record) (*record.Record, error)
	Delete(key string) error
	Commit() error
	Rollback() error
}

// Counter defines the engine API for backends that can count matching
// records without materializing them.
type Counter interface {
	Count(q *query.Query) (int, error)
}

// Purger defines the engine API for backends that support deleting all
// records matching a query.
type Purger interface {
	Purge(ctx context.Context, q *query.Query) (int, error)
}

// Maintainer defines the engine API for backends that require regular
// maintenance, such as log compaction.
type Maintainer interface {
	Maintain(ctx context.Context) error
	MaintainThorough(ctx context.Context) error
}

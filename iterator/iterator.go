// Package iterator provides the channel-based result iterator used by engine
// queries, including the batch checkpointing that keeps long scans from
// monopolizing the scheduler.
package iterator

import (
	"context"
	"runtime"
	"sync"

	"github.com/tevino/abool"

	"github.com/object-layer/object-layer/record"
)

// Iterator defines the iterator structure.
type Iterator struct {
	Next chan *record.Record
	Done chan struct{}

	errLock    sync.Mutex
	err        error
	doneClosed *abool.AtomicBool
}

// New creates a new Iterator.
func New() *Iterator {
	return &Iterator{
		Next:       make(chan *record.Record, 10),
		Done:       make(chan struct{}),
		doneClosed: abool.NewBool(false),
	}
}

// Finish is called by the engine to signal the end of the query results.
func (it *Iterator) Finish(err error) {
	close(it.Next)
	if it.doneClosed.SetToIf(false, true) {
		close(it.Done)
	}

	it.errLock.Lock()
	defer it.errLock.Unlock()
	it.err = err
}

// Cancel is called by the iteration consumer to cancel the running query.
func (it *Iterator) Cancel() {
	if it.doneClosed.SetToIf(false, true) {
		close(it.Done)
	}
}

// Err returns the iterator error, if exists.
func (it *Iterator) Err() error {
	it.errLock.Lock()
	defer it.errLock.Unlock()
	return it.err
}

// ForEach drains the iterator, calling fn for every record. Every batchSize
// records it checks the context and yields the scheduler, so that long scans
// do not starve other work. It cancels the iterator when fn fails.
func (it *Iterator) ForEach(ctx context.Context, batchSize int, fn func(r *record.Record) error) error {
	if batchSize <= 0 {
		batchSize = 250
	}

	n := 0
	for r := range it.Next {
		if err := fn(r); err != nil {
			it.Cancel()
			return err
		}

		n++
		if n%batchSize == 0 {
			if err := ctx.Err(); err != nil {
				it.Cancel()
				return err
			}
			runtime.Gosched()
		}
	}
	return it.Err()
}

// Collect drains the iterator into a slice.
func (it *Iterator) Collect(ctx context.Context, batchSize int) ([]*record.Record, error) {
	var all []*record.Record
	err := it.ForEach(ctx, batchSize, func(r *record.Record) error {
		all = append(all, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}

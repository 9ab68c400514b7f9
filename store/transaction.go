package store

import (
	"errors"

	"github.com/hashicorp/go-multierror"

	"github.com/object-layer/object-layer/record"
	"github.com/object-layer/object-layer/store/engine"
)

// bufferTx emulates a transaction for engines without native transaction
// support. Writes are buffered and applied on commit; atomicity then only
// holds per operation, which is the best such an engine can offer.
type bufferTx struct {
	eng     engine.Interface
	writes  map[string]*record.Record
	order   []string
	deletes map[string]struct{}
	done    bool
}

func newBufferTx(eng engine.Interface) engine.Tx {
	return &bufferTx{
		eng:     eng,
		writes:  make(map[string]*record.Record),
		deletes: make(map[string]struct{}),
	}
}

func (tx *bufferTx) Get(key string) (*record.Record, error) {
	if _, deleted := tx.deletes[key]; deleted {
		return nil, engine.ErrNotFound
	}
	if r, ok := tx.writes[key]; ok {
		return r, nil
	}
	return tx.eng.Get(key)
}

func (tx *bufferTx) Put(r *record.Record) (*record.Record, error) {
	key := r.EngineKey()
	delete(tx.deletes, key)
	if _, ok := tx.writes[key]; !ok {
		tx.order = append(tx.order, key)
	}
	tx.writes[key] = r
	return r, nil
}

func (tx *bufferTx) Delete(key string) error {
	delete(tx.writes, key)
	tx.deletes[key] = struct{}{}
	return nil
}

func (tx *bufferTx) Commit() error {
	if tx.done {
		return errors.New("transaction already finished")
	}
	tx.done = true

	var errs *multierror.Error
	for key := range tx.deletes {
		if err := tx.eng.Delete(key); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	for _, key := range tx.order {
		r, ok := tx.writes[key]
		if !ok {
			continue
		}
		if _, err := tx.eng.Put(r); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

func (tx *bufferTx) Rollback() error {
	if tx.done {
		return errors.New("transaction already finished")
	}
	tx.done = true
	tx.writes = nil
	tx.deletes = nil
	return nil
}

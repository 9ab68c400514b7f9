// Package store implements the store facade: it multiplexes class hierarchies
// into physical collections of a storage engine, enforces existence options,
// runs ordered queries and exposes engine transactions as isolated store
// views.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/tevino/abool"

	"github.com/object-layer/object-layer/internal/log"
	"github.com/object-layer/object-layer/record"
	"github.com/object-layer/object-layer/schema"
	"github.com/object-layer/object-layer/store/engine"
)

// Store is the facade over one storage engine. Each class hierarchy served by
// the store maps to one physical collection, named after the hierarchy's root
// class. A Store obtained from Transaction is an isolated view on the same
// engine; it sees its own writes and nothing else does until commit.
type Store struct {
	name       string
	registry   *schema.Registry
	engine     engine.Interface
	version    int
	minVersion int
	upgrades   map[int]UpgradeFunc

	willUpgrade func(ctx context.Context, from, to int) error
	didUpgrade  func(ctx context.Context, from, to int) error

	bootstrap *Bootstrap

	// Transaction view state, nil/empty on the root store.
	parent    *Store
	etx       engine.Tx
	txWrites  map[string]*record.Record
	txDeletes map[string]struct{}

	txLock       sync.Mutex
	shuttingDown *abool.AtomicBool
}

// Option configures a store at creation time.
type Option func(*Store)

// WithMinimumVersion sets the oldest persisted store version that can still
// be upgraded. Opening an older store fails with ErrUnsupportedVersion.
func WithMinimumVersion(v int) Option {
	return func(s *Store) {
		s.minVersion = v
	}
}

// WithUpgrade registers the upgrade function that lifts a store to the given
// version. Upgrades run in version order inside a single transaction.
func WithUpgrade(to int, fn UpgradeFunc) Option {
	return func(s *Store) {
		s.upgrades[to] = fn
	}
}

// WithWillUpgrade registers a callback that runs before any upgrade function.
// An error aborts the upgrade and the store stays at its persisted version.
func WithWillUpgrade(fn func(ctx context.Context, from, to int) error) Option {
	return func(s *Store) {
		s.willUpgrade = fn
	}
}

// WithDidUpgrade registers a callback that runs after a successful upgrade.
func WithDidUpgrade(fn func(ctx context.Context, from, to int) error) Option {
	return func(s *Store) {
		s.didUpgrade = fn
	}
}

// New opens a store: it starts the configured engine, checks that every
// served class resolves to a hierarchy root and loads or creates the
// bootstrap record, upgrading the persisted data if it is behind.
func New(ctx context.Context, cfg *Config, reg *schema.Registry, opts ...Option) (*Store, error) {
	if err := cfg.check(); err != nil {
		return nil, err
	}

	engineType, location, err := parseEngineURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	eng, err := engine.StartEngine(cfg.Name, engineType, location)
	if err != nil {
		return nil, fmt.Errorf("start engine: %w", err)
	}

	version := cfg.Version
	if version == 0 {
		version = 1
	}

	s := &Store{
		name:         cfg.Name,
		registry:     reg,
		engine:       eng,
		version:      version,
		minVersion:   1,
		upgrades:     make(map[int]UpgradeFunc),
		shuttingDown: abool.NewBool(false),
	}
	for _, opt := range opts {
		opt(s)
	}

	// Every served hierarchy must have an unambiguous root.
	for _, cc := range cfg.Collections {
		cls, err := reg.Class(cc.Class)
		if err != nil {
			_ = eng.Shutdown()
			return nil, err
		}
		if _, err := reg.RootClass(cls); err != nil {
			_ = eng.Shutdown()
			return nil, err
		}
	}

	if err := s.openBootstrap(ctx); err != nil {
		_ = eng.Shutdown()
		return nil, err
	}

	log.Infof("store: opened %s (version %d) on %s engine", s.name, s.bootstrap.Version, engineType)
	return s, nil
}

// Name returns the store name.
func (s *Store) Name() string {
	return s.name
}

// Registry returns the class registry the store serves.
func (s *Store) Registry() *schema.Registry {
	return s.registry
}

// InsideTransaction returns whether this store is a transaction view.
func (s *Store) InsideTransaction() bool {
	return s.parent != nil
}

func (s *Store) root() *Store {
	if s.parent != nil {
		return s.parent
	}
	return s
}

func (s *Store) checkActive() error {
	if s.root().shuttingDown.IsSet() {
		return ErrShuttingDown
	}
	return nil
}

// collectionFor resolves the physical collection of a class: the name of its
// hierarchy root.
func (s *Store) collectionFor(class string) (string, error) {
	cls, err := s.registry.Class(class)
	if err != nil {
		return "", err
	}
	root, err := s.registry.RootClass(cls)
	if err != nil {
		return "", err
	}
	return root.Name(), nil
}

func (s *Store) engineGet(key string) (*record.Record, error) {
	if s.parent != nil {
		if _, deleted := s.txDeletes[key]; deleted {
			return nil, engine.ErrNotFound
		}
		if r, ok := s.txWrites[key]; ok {
			return r, nil
		}
		return s.etx.Get(key)
	}
	return s.engine.Get(key)
}

func (s *Store) enginePut(r *record.Record) error {
	if s.parent != nil {
		if _, err := s.etx.Put(r); err != nil {
			return err
		}
		delete(s.txDeletes, r.EngineKey())
		s.txWrites[r.EngineKey()] = r
		return nil
	}
	_, err := s.engine.Put(r)
	return err
}

func (s *Store) engineDelete(key string) error {
	if s.parent != nil {
		if err := s.etx.Delete(key); err != nil {
			return err
		}
		delete(s.txWrites, key)
		s.txDeletes[key] = struct{}{}
		return nil
	}
	return s.engine.Delete(key)
}

// Get returns the record stored for the given class and primary key. A record
// qualifies only if the class is among its stored class names. Absence
// returns ErrNotFound, or (nil, nil) when opts disable ErrorIfMissing.
func (s *Store) Get(ctx context.Context, class string, key interface{}, opts *Options) (*record.Record, error) {
	o := opts.orDefault()
	if err := s.checkActive(); err != nil {
		return nil, err
	}

	collection, err := s.collectionFor(class)
	if err != nil {
		return nil, err
	}
	keyStr, err := record.KeyValueString(key)
	if err != nil {
		return nil, err
	}

	r, err := s.engineGet(record.MakeKey(collection, keyStr))
	switch {
	case err == nil && r.IsOf(class) && r.Meta().CheckValidity():
		return r, nil
	case err != nil && !errors.Is(err, engine.ErrNotFound):
		return nil, err
	}

	if o.ErrorIfMissing {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, class, keyStr)
	}
	return nil, nil
}

// GetMany returns the records stored for the given keys, in key order.
// Missing records are skipped unless opts demand ErrorIfMissing.
func (s *Store) GetMany(ctx context.Context, class string, keys []interface{}, opts *Options) ([]*record.Record, error) {
	o := opts.orDefault()

	records := make([]*record.Record, 0, len(keys))
	for _, key := range keys {
		r, err := s.Get(ctx, class, key, o)
		if err != nil {
			return nil, err
		}
		if r != nil {
			records = append(records, r)
		}
	}
	return records, nil
}

// Put stores the field values under the given class names and primary key.
// classNames must be ordered most-derived first; the last entry is the
// hierarchy root and names the physical collection.
func (s *Store) Put(ctx context.Context, classNames []string, key interface{}, values map[string]interface{}, opts *Options) (*record.Record, error) {
	o := opts.orDefault()
	if err := s.checkActive(); err != nil {
		return nil, err
	}
	if len(classNames) == 0 {
		return nil, errors.New("put needs at least one class name")
	}

	collection := classNames[len(classNames)-1]
	keyStr, err := record.KeyValueString(key)
	if err != nil {
		return nil, err
	}
	engineKey := record.MakeKey(collection, keyStr)

	existing, err := s.engineGet(engineKey)
	if err != nil && !errors.Is(err, engine.ErrNotFound) {
		return nil, err
	}
	if existing != nil && o.ErrorIfExists {
		return nil, fmt.Errorf("%w: %s/%s", ErrAlreadyExists, classNames[0], keyStr)
	}

	r, err := record.New(classNames, collection, keyStr, values)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		r.Meta().Created = existing.Meta().Created
	}
	r.Meta().Update()

	if err := s.enginePut(r); err != nil {
		return nil, err
	}
	return r, nil
}

// Delete removes the record stored for the given class and primary key. It
// returns whether a record was removed; with ErrorIfMissing set, absence
// fails with ErrNotFound instead.
func (s *Store) Delete(ctx context.Context, class string, key interface{}, opts *Options) (bool, error) {
	o := opts.orDefault()

	r, err := s.Get(ctx, class, key, &Options{ErrorIfMissing: false})
	if err != nil {
		return false, err
	}
	if r == nil {
		if o.ErrorIfMissing {
			return false, fmt.Errorf("%w: %s", ErrNotFound, class)
		}
		return false, nil
	}

	if err := s.engineDelete(r.EngineKey()); err != nil {
		return false, err
	}
	return true, nil
}

// queryRecords runs the option's query against the engine, restricted to
// records retrievable as the given class, with transaction overlay applied.
func (s *Store) queryRecords(ctx context.Context, class string, o *Options) ([]*record.Record, error) {
	if err := s.checkActive(); err != nil {
		return nil, err
	}

	collection, err := s.collectionFor(class)
	if err != nil {
		return nil, err
	}
	q, err := o.buildQuery(collection)
	if err != nil {
		return nil, err
	}

	it, err := s.root().engine.Query(q)
	if err != nil {
		return nil, err
	}

	var records []*record.Record
	err = it.ForEach(ctx, o.batchSize(), func(r *record.Record) error {
		if r.IsOf(class) {
			records = append(records, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.parent != nil {
		records = s.overlayTxState(records, class, q.Matches)
	}
	return records, nil
}

// overlayTxState replaces committed records by this transaction's own writes
// and drops its deletes, so queries inside a transaction read their own
// writes.
func (s *Store) overlayTxState(records []*record.Record, class string, matches func(*record.Record) bool) []*record.Record {
	merged := records[:0]
	seen := make(map[string]bool)
	for _, r := range records {
		key := r.EngineKey()
		if _, deleted := s.txDeletes[key]; deleted {
			continue
		}
		if w, ok := s.txWrites[key]; ok {
			seen[key] = true
			if w.IsOf(class) && matches(w) {
				merged = append(merged, w)
			}
			continue
		}
		merged = append(merged, r)
	}
	for key, w := range s.txWrites {
		if !seen[key] && w.IsOf(class) && matches(w) {
			merged = append(merged, w)
		}
	}
	return merged
}

// Find returns all records matching the options, retrievable as the given
// class, ordered and paginated per the options.
func (s *Store) Find(ctx context.Context, class string, opts *Options) ([]*record.Record, error) {
	o := opts.orDefault()

	records, err := s.queryRecords(ctx, class, o)
	if err != nil {
		return nil, err
	}

	sortRecords(records, o.Order)

	if o.Offset > 0 {
		if o.Offset >= len(records) {
			return nil, nil
		}
		records = records[o.Offset:]
	}
	if o.Limit > 0 && len(records) > o.Limit {
		records = records[:o.Limit]
	}
	return records, nil
}

// Count returns the number of records matching the options.
func (s *Store) Count(ctx context.Context, class string, opts *Options) (int, error) {
	o := opts.orDefault()
	if err := s.checkActive(); err != nil {
		return 0, err
	}

	collection, err := s.collectionFor(class)
	if err != nil {
		return 0, err
	}

	// Counting records of the root class covers the whole collection, which
	// engines can often do without materializing records.
	if s.parent == nil && class == collection {
		if counter, ok := s.engine.(engine.Counter); ok {
			q, err := o.buildQuery(collection)
			if err != nil {
				return 0, err
			}
			return counter.Count(q)
		}
	}

	records, err := s.queryRecords(ctx, class, o)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// ForEach calls fn for every record matching the options. Iteration yields
// the scheduler and checks ctx between batches.
func (s *Store) ForEach(ctx context.Context, class string, opts *Options, fn func(r *record.Record) error) error {
	o := opts.orDefault()

	if o.Order != "" || o.Limit > 0 || o.Offset > 0 || s.parent != nil {
		// Ordering, pagination and transaction overlay need the full result
		// set first.
		records, err := s.Find(ctx, class, o)
		if err != nil {
			return err
		}
		for _, r := range records {
			if err := fn(r); err != nil {
				return err
			}
		}
		return nil
	}

	if err := s.checkActive(); err != nil {
		return err
	}
	collection, err := s.collectionFor(class)
	if err != nil {
		return err
	}
	q, err := o.buildQuery(collection)
	if err != nil {
		return err
	}
	it, err := s.engine.Query(q)
	if err != nil {
		return err
	}
	return it.ForEach(ctx, o.batchSize(), func(r *record.Record) error {
		if !r.IsOf(class) {
			return nil
		}
		return fn(r)
	})
}

// FindAndDelete removes all records matching the options and returns how many
// were removed. Individual delete failures are aggregated; the scan continues.
func (s *Store) FindAndDelete(ctx context.Context, class string, opts *Options) (int, error) {
	o := opts.orDefault()
	if err := s.checkActive(); err != nil {
		return 0, err
	}

	collection, err := s.collectionFor(class)
	if err != nil {
		return 0, err
	}

	// Mass deletes on the root class may use the engine's purge.
	if s.parent == nil && class == collection {
		if purger, ok := s.engine.(engine.Purger); ok {
			q, err := o.buildQuery(collection)
			if err != nil {
				return 0, err
			}
			return purger.Purge(ctx, q)
		}
	}

	records, err := s.queryRecords(ctx, class, o)
	if err != nil {
		return 0, err
	}

	var errs *multierror.Error
	deleted := 0
	for _, r := range records {
		if err := s.engineDelete(r.EngineKey()); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("delete %s: %w", r.EngineKey(), err))
			continue
		}
		deleted++
	}
	return deleted, errs.ErrorOrNil()
}

// Transaction runs fn inside an isolated store view. fn's writes become
// visible to others only when fn returns nil; an error rolls everything back
// and is returned as-is. A transaction started inside a transaction joins the
// running one, there is no second isolation level.
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context, tx *Store) error) error {
	if s.parent != nil {
		return fn(ctx, s)
	}
	if err := s.checkActive(); err != nil {
		return err
	}

	s.txLock.Lock()
	defer s.txLock.Unlock()

	var etx engine.Tx
	if transactor, ok := s.engine.(engine.Transactor); ok {
		var err error
		etx, err = transactor.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
	} else {
		etx = newBufferTx(s.engine)
	}

	tx := &Store{
		name:       s.name,
		registry:   s.registry,
		engine:     s.engine,
		version:    s.version,
		minVersion: s.minVersion,
		bootstrap:  s.bootstrap,

		parent:    s,
		etx:       etx,
		txWrites:  make(map[string]*record.Record),
		txDeletes: make(map[string]struct{}),
	}

	if err := fn(ctx, tx); err != nil {
		if rbErr := etx.Rollback(); rbErr != nil {
			log.Warningf("store: rollback of transaction on %s failed: %s", s.name, rbErr)
		}
		return err
	}
	return etx.Commit()
}

// Maintain runs a light maintenance cycle on the engine, if it needs one.
func (s *Store) Maintain(ctx context.Context) error {
	if s.parent != nil {
		return ErrInsideTransaction
	}
	if maintainer, ok := s.engine.(engine.Maintainer); ok {
		return maintainer.Maintain(ctx)
	}
	return nil
}

// MaintainThorough runs a thorough maintenance cycle on the engine.
func (s *Store) MaintainThorough(ctx context.Context) error {
	if s.parent != nil {
		return ErrInsideTransaction
	}
	if maintainer, ok := s.engine.(engine.Maintainer); ok {
		return maintainer.MaintainThorough(ctx)
	}
	return nil
}

// Shutdown closes the store and shuts down the engine. Operations started
// after shutdown fail with ErrShuttingDown.
func (s *Store) Shutdown() error {
	if s.parent != nil {
		return ErrInsideTransaction
	}
	if !s.shuttingDown.SetToIf(false, true) {
		return nil
	}
	return s.engine.Shutdown()
}

// sortRecords orders records by the given field. A "-" prefix on the field
// name reverses the order. Records without the field sort last in either
// direction.
func sortRecords(records []*record.Record, orderBy string) {
	if orderBy == "" {
		return
	}
	reverse := strings.HasPrefix(orderBy, "-")
	field := strings.TrimPrefix(orderBy, "-")

	sort.SliceStable(records, func(i, j int) bool {
		av, aok := recordValue(records[i], field)
		bv, bok := recordValue(records[j], field)
		if !aok || !bok {
			return aok && !bok
		}
		c := compareValues(av, bv)
		if reverse {
			return c > 0
		}
		return c < 0
	})
}

func recordValue(r *record.Record, field string) (interface{}, bool) {
	acc := r.GetAccessor()
	if acc == nil {
		return nil, false
	}
	return acc.Get(field)
}

func compareValues(a, b interface{}) int {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	as := fmt.Sprintf("%v", a)
	bs := fmt.Sprintf("%v", b)
	return strings.Compare(as, bs)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

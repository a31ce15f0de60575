// Package store persists documents in pebble as a model snapshot plus a
// log of the patches committed since.
package store

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash"
	"github.com/cockroachdb/pebble"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v3"

	joy "github.com/lessisbetter/json-joy-rs-sub002"
	"github.com/lessisbetter/json-joy-rs-sub002/joy_errors"
	"github.com/lessisbetter/json-joy-rs-sub002/model"
	"github.com/lessisbetter/json-joy-rs-sub002/patch"
	"github.com/lessisbetter/json-joy-rs-sub002/utils"
)

type Options struct {
	pebble.Options

	// CacheSize is how many decoded models stay in memory.
	CacheSize  int
	Logger     utils.Logger
	Registerer prometheus.Registerer
}

func (o *Options) SetDefaults() {
	if o.CacheSize <= 0 {
		o.CacheSize = 1024
	}
	if o.Logger == nil {
		o.Logger = utils.NopLogger{}
	}
	o.Merger = mergeOperator
}

var WriteOptions = pebble.WriteOptions{Sync: false}

type Store struct {
	db    *pebble.DB
	dir   string
	opts  Options
	log   utils.Logger
	cache *lru.Cache[string, *model.Model]
	docs  *xsync.MapOf[string, *sync.Mutex]

	mu     sync.RWMutex
	closed bool
}

// Open opens or creates the store in dir.
func Open(dir string, opts Options) (*Store, error) {
	opts.SetDefaults()
	db, err := pebble.Open(dir, &opts.Options)
	if err != nil {
		return nil, errors.Wrapf(err, "open store %s", dir)
	}
	cache, err := lru.New[string, *model.Model](opts.CacheSize)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "model cache")
	}
	s := &Store{
		db:    db,
		dir:   dir,
		opts:  opts,
		log:   opts.Logger,
		cache: cache,
		docs:  xsync.NewMapOf[string, *sync.Mutex](),
	}
	if opts.Registerer != nil {
		for _, c := range append(Collectors(), NewPebbleCollector(db)) {
			if err := opts.Registerer.Register(c); err != nil {
				var are prometheus.AlreadyRegisteredError
				if !errors.As(err, &are) {
					s.log.Warn("metrics registration failed", "err", err)
				}
			}
		}
	}
	s.log.Info("store opened", "dir", dir)
	return s, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return joy_errors.ErrClosed
	}
	s.closed = true
	s.cache.Purge()
	s.log.Info("store closed", "dir", s.dir)
	return s.db.Close()
}

func (s *Store) Dir() string {
	return s.dir
}

// lock serializes writers of one document and fails on a closed store.
func (s *Store) lock(docID string) (unlock func(), err error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, joy_errors.ErrClosed
	}
	dl, _ := s.docs.LoadOrCompute(docID, func() *sync.Mutex { return &sync.Mutex{} })
	dl.Lock()
	return func() {
		dl.Unlock()
		s.mu.RUnlock()
	}, nil
}

func (s *Store) Create(ctx context.Context, docID string, view any, sid uint64) (*model.Model, error) {
	unlock, err := s.lock(docID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	ctx = utils.WithSession(utils.WithDocument(ctx, docID), sid)

	if _, found, err := s.get(SnapshotKey(docID)); err != nil {
		return nil, err
	} else if found {
		return nil, errors.Wrap(joy_errors.ErrDocumentExists, docID)
	}
	m, err := joy.CreateModel(view, sid)
	if err != nil {
		return nil, errors.Wrap(err, "create model")
	}
	if err := s.writeSnapshot(docID, m); err != nil {
		return nil, err
	}
	s.cache.Add(docID, m)
	s.log.InfoCtx(ctx, "document created")
	return m.Clone(), nil
}

// Load returns a private copy of the document with its log applied.
func (s *Store) Load(ctx context.Context, docID string) (*model.Model, error) {
	unlock, err := s.lock(docID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	m, err := s.load(utils.WithDocument(ctx, docID), docID)
	if err != nil {
		return nil, err
	}
	return m.Clone(), nil
}

func (s *Store) load(ctx context.Context, docID string) (*model.Model, error) {
	if m, ok := s.cache.Get(docID); ok {
		StoreLoads.WithLabelValues("cache").Inc()
		return m, nil
	}
	val, found, err := s.get(SnapshotKey(docID))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Wrap(joy_errors.ErrDocumentUnknown, docID)
	}
	blob, err := unseal(val)
	if err != nil {
		return nil, errors.Wrap(err, docID)
	}
	m, err := joy.ModelFromBinary(blob)
	if err != nil {
		return nil, errors.Wrapf(err, "snapshot of %s", docID)
	}
	log, _, err := s.get(LogKey(docID))
	if err != nil {
		return nil, err
	}
	recs, err := patch.LogRecords(log)
	if err != nil {
		return nil, errors.Wrapf(err, "log of %s", docID)
	}
	if err := joy.Merge(m, recs); err != nil {
		return nil, errors.Wrapf(err, "replay log of %s", docID)
	}
	StoreLoads.WithLabelValues("disk").Inc()
	s.log.DebugCtx(ctx, "document loaded", "patches", len(recs))
	s.cache.Add(docID, m)
	return m, nil
}

// Commit applies p to the document and appends it to the log.
func (s *Store) Commit(ctx context.Context, docID string, p *patch.Patch) error {
	unlock, err := s.lock(docID)
	if err != nil {
		return err
	}
	defer unlock()
	ctx = utils.WithDocument(ctx, docID)
	m, err := s.load(ctx, docID)
	if err != nil {
		return err
	}
	bin, err := patch.Encode(p)
	if err != nil {
		return errors.Wrap(err, "encode patch")
	}
	next := m.Clone()
	if err := next.Apply(p); err != nil {
		return errors.Wrapf(err, "commit to %s", docID)
	}
	if err := s.db.Merge(LogKey(docID), patch.AppendRecord(nil, bin), &WriteOptions); err != nil {
		return errors.Wrapf(err, "append log of %s", docID)
	}
	s.cache.Add(docID, next)
	StoreCommits.Inc()
	s.log.DebugCtx(ctx, "patch committed", "patch", p.ID.String(), "ops", len(p.Ops))
	return nil
}

// Compact folds the log into a new snapshot.
func (s *Store) Compact(ctx context.Context, docID string) error {
	unlock, err := s.lock(docID)
	if err != nil {
		return err
	}
	defer unlock()
	ctx = utils.WithDocument(ctx, docID)
	m, err := s.load(ctx, docID)
	if err != nil {
		return err
	}
	blob, err := joy.ModelToBinary(m)
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(SnapshotKey(docID), seal(blob), nil); err != nil {
		return errors.Wrap(err, "snapshot")
	}
	if err := b.Delete(LogKey(docID), nil); err != nil {
		return errors.Wrap(err, "clear log")
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return errors.Wrapf(err, "compact %s", docID)
	}
	StoreCompactions.Inc()
	s.log.InfoCtx(ctx, "document compacted", "bytes", len(blob))
	return nil
}

func (s *Store) Drop(ctx context.Context, docID string) error {
	unlock, err := s.lock(docID)
	if err != nil {
		return err
	}
	defer unlock()
	if _, found, err := s.get(SnapshotKey(docID)); err != nil {
		return err
	} else if !found {
		return errors.Wrap(joy_errors.ErrDocumentUnknown, docID)
	}
	b := s.db.NewBatch()
	defer b.Close()
	_ = b.Delete(SnapshotKey(docID), nil)
	_ = b.Delete(LogKey(docID), nil)
	if err := b.Commit(pebble.Sync); err != nil {
		return errors.Wrapf(err, "drop %s", docID)
	}
	s.cache.Remove(docID)
	s.log.InfoCtx(utils.WithDocument(ctx, docID), "document dropped")
	return nil
}

// Docs lists document ids in key order.
func (s *Store) Docs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, joy_errors.ErrClosed
	}
	lower, upper := PrefixRange(SnapshotPrefix)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, errors.Wrap(err, "list documents")
	}
	defer it.Close()
	var ids []string
	for it.First(); it.Valid(); it.Next() {
		if id, ok := DocID(it.Key()); ok {
			ids = append(ids, id)
		}
	}
	return ids, it.Error()
}

// LogSize is the byte size of the uncompacted log.
func (s *Store) LogSize(docID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, joy_errors.ErrClosed
	}
	val, _, err := s.get(LogKey(docID))
	return len(val), err
}

func (s *Store) writeSnapshot(docID string, m *model.Model) error {
	blob, err := joy.ModelToBinary(m)
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}
	if err := s.db.Set(SnapshotKey(docID), seal(blob), pebble.Sync); err != nil {
		return errors.Wrapf(err, "write snapshot of %s", docID)
	}
	return nil
}

// get copies the value out; found is false for a missing key.
func (s *Store) get(key []byte) (val []byte, found bool, err error) {
	v, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "read")
	}
	val = clone(v)
	_ = closer.Close()
	return val, true, nil
}

// seal prefixes a model blob with its xxhash64.
func seal(blob []byte) []byte {
	out := binary.BigEndian.AppendUint64(make([]byte, 0, 8+len(blob)), xxhash.Sum64(blob))
	return append(out, blob...)
}

func unseal(val []byte) ([]byte, error) {
	if len(val) < 8 {
		return nil, errors.Wrap(joy_errors.ErrInvalidModelBinary, "short snapshot")
	}
	blob := val[8:]
	if binary.BigEndian.Uint64(val) != xxhash.Sum64(blob) {
		return nil, errors.Wrap(joy_errors.ErrInvalidModelBinary, "snapshot checksum mismatch")
	}
	return blob, nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/datagenie-engine/pkg/apperrors"
	"github.com/ekaya-inc/datagenie-engine/pkg/catalog"
	"github.com/ekaya-inc/datagenie-engine/pkg/index"
	"github.com/ekaya-inc/datagenie-engine/pkg/observability"
)

// Snapshot is the read-only state every request runs against: the schema
// catalog, the example index and the lexicon derived from the catalog.
type Snapshot struct {
	Version   string
	Catalog   *catalog.Catalog
	Index     index.Index
	Lexicon   *Lexicon
	Extractor EntityExtractor
	LoadedAt  time.Time
}

// SnapshotLoader produces a fresh catalog and example index.
type SnapshotLoader func(ctx context.Context) (*catalog.Catalog, index.Index, error)

// SnapshotStore holds the current snapshot. Readers load the pointer once per
// request; installing a new snapshot never disturbs requests already running.
type SnapshotStore struct {
	current    atomic.Pointer[Snapshot]
	generation atomic.Int64
	reloadMu   sync.Mutex
	sink       observability.Sink
	base       *zap.Logger
	logger     *zap.Logger
	now        func() time.Time
}

// NewSnapshotStore creates an empty store. Load fails until a snapshot is installed.
func NewSnapshotStore(sink observability.Sink, logger *zap.Logger) *SnapshotStore {
	if sink == nil {
		sink = observability.NopSink{}
	}
	return &SnapshotStore{
		sink:   sink,
		base:   logger,
		logger: logger.Named("snapshot-store"),
		now:    time.Now,
	}
}

// Load returns the current snapshot or apperrors.ErrSnapshotNotLoaded.
func (s *SnapshotStore) Load() (*Snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, apperrors.ErrSnapshotNotLoaded
	}
	return snap, nil
}

// Install builds a snapshot from cat and idx and makes it current.
// A nil idx installs an empty index.
func (s *SnapshotStore) Install(cat *catalog.Catalog, idx index.Index) (*Snapshot, error) {
	if cat == nil {
		return nil, errors.New("snapshot requires a catalog")
	}
	if idx == nil {
		empty, err := index.NewMemoryIndex(nil)
		if err != nil {
			return nil, err
		}
		idx = empty
	}

	gen := s.generation.Add(1)
	fp := cat.Fingerprint()
	if len(fp) > 12 {
		fp = fp[:12]
	}
	lexicon := NewLexicon(cat)
	snap := &Snapshot{
		Version:   fmt.Sprintf("v%d-%s", gen, fp),
		Catalog:   cat,
		Index:     idx,
		Lexicon:   lexicon,
		Extractor: NewEntityExtractor(lexicon, s.base),
		LoadedAt:  s.now().UTC(),
	}
	s.current.Store(snap)

	s.logger.Info("Installed snapshot",
		zap.String("version", snap.Version),
		zap.Int("tables", cat.Len()),
		zap.Int("examples", idx.Len()))

	ev := observability.NewEvent(observability.EventSnapshotLoaded, "")
	ev["version"] = snap.Version
	ev["tables"] = cat.Len()
	ev["examples"] = idx.Len()
	s.sink.Emit(ev)

	return snap, nil
}

// Reload runs load and installs its result. Concurrent reloads are
// serialized; a failed load keeps the previous snapshot.
func (s *SnapshotStore) Reload(ctx context.Context, load SnapshotLoader) (*Snapshot, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	cat, idx, err := load(ctx)
	if err != nil {
		s.logger.Error("Snapshot reload failed, keeping previous snapshot", zap.Error(err))
		return nil, fmt.Errorf("reload snapshot: %w", err)
	}
	return s.Install(cat, idx)
}

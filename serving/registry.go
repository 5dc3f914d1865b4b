package serving

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"cytodx/errdefs"
	"cytodx/store"
)

const DefaultCacheSize = 4

type RegistryOption func(*Registry)

func WithRegistryLogger(logger *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithReloadHook is called with the new predictor after every successful Reload.
func WithReloadHook(hook func(*Predictor)) RegistryOption {
	return func(r *Registry) { r.onReload = hook }
}

// Registry caches predictors by version and holds the current one. The current predictor
// only changes when Reload is called.
type Registry struct {
	store    *store.Store
	cache    *lru.Cache[string, *Predictor]
	logger   *zap.Logger
	onReload func(*Predictor)

	// reloadMu orders reloads so that CURRENT is read and installed as one step.
	reloadMu sync.Mutex

	mu      sync.RWMutex
	current *Predictor
}

func NewRegistry(st *store.Store, cacheSize int, opts ...RegistryOption) (*Registry, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, *Predictor](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create predictor cache: %w", err)
	}
	r := &Registry{store: st, cache: cache, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Current returns the predictor installed by the last successful Reload.
func (r *Registry) Current() (*Predictor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == nil {
		return nil, fmt.Errorf("%w: no model loaded", errdefs.ErrArtifactNotFound)
	}
	return r.current, nil
}

// Reload re-reads CURRENT and installs that version. On failure the previous predictor
// stays current. Concurrent calls run one at a time, so the last one to return has
// installed what CURRENT named when it started.
func (r *Registry) Reload() (*Predictor, error) {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	version, err := r.store.Current()
	if err != nil {
		return nil, err
	}
	predictor, err := r.Get(version)
	if err != nil {
		r.logger.Warn("reload failed, keeping previous model", zap.String("version", version), zap.Error(err))
		return nil, err
	}

	r.mu.Lock()
	previous := r.current
	r.current = predictor
	r.mu.Unlock()

	if previous == nil || previous.Version() != predictor.Version() {
		r.logger.Info("model loaded",
			zap.String("version", predictor.Version()),
			zap.String("algorithm", string(predictor.Metadata().Algorithm)))
	}
	if r.onReload != nil {
		r.onReload(predictor)
	}
	return predictor, nil
}

// Get returns the predictor for version, loading it from the store on a cache miss.
func (r *Registry) Get(version string) (*Predictor, error) {
	if predictor, ok := r.cache.Get(version); ok {
		return predictor, nil
	}
	pair, err := r.store.LoadVersion(version)
	if err != nil {
		return nil, err
	}
	predictor, err := NewPredictor(pair)
	if err != nil {
		return nil, err
	}
	r.cache.Add(version, predictor)
	return predictor, nil
}

// Cached lists cached versions from least to most recently used.
func (r *Registry) Cached() []string {
	return r.cache.Keys()
}

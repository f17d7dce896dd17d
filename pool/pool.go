// Package pool keeps constructed model instances in memory so that repeated
// predictions against the same model do not pay for construction again.
package pool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"modelkit/ml"
	"modelkit/monitoring"
)

// Pool is an LRU of constructed models keyed by qualified name. Only
// successfully constructed instances are cached.
type Pool struct {
	cache   *lru.Cache[string, ml.Model]
	group   singleflight.Group
	logger  *zap.Logger
	metrics *monitoring.Metrics

	// mu guards dirs and gens, and orders cache insertion against eviction.
	mu   sync.RWMutex
	dirs map[string]string
	gens map[string]uint64
}

func New(size int, logger *zap.Logger, metrics *monitoring.Metrics) (*Pool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = monitoring.NewMetrics(nil)
	}
	p := &Pool{
		logger:  logger,
		metrics: metrics,
		dirs:    make(map[string]string),
		gens:    make(map[string]uint64),
	}
	cache, err := lru.NewWithEvict[string, ml.Model](size, func(name string, _ ml.Model) {
		p.logger.Debug("model evicted", zap.String("model", name))
	})
	if err != nil {
		return nil, fmt.Errorf("create model pool: %w", err)
	}
	p.cache = cache
	return p, nil
}

// Add sets the artifact directory a model is constructed from. An empty dir
// selects the packaged artifact, which is also what models never added use.
// A resident instance built from another directory is dropped.
func (p *Pool) Add(qualifiedName, dir string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev, known := p.dirs[qualifiedName]
	p.dirs[qualifiedName] = dir
	if known && prev != dir {
		p.evictLocked(qualifiedName)
	}
}

func (p *Pool) source(qualifiedName string) (string, uint64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dirs[qualifiedName], p.gens[qualifiedName]
}

// Get returns the resident instance of a model, constructing it on first use.
// Concurrent callers for the same model share one construction. A
// construction overtaken by Add or Evict still returns its instance but does
// not make it resident.
func (p *Pool) Get(qualifiedName string) (ml.Model, error) {
	if m, ok := p.cache.Get(qualifiedName); ok {
		return m, nil
	}
	dir, gen := p.source(qualifiedName)
	key := fmt.Sprintf("%s#%d", qualifiedName, gen)
	v, err, _ := p.group.Do(key, func() (any, error) {
		if m, ok := p.cache.Get(qualifiedName); ok {
			return m, nil
		}
		start := time.Now()
		m, err := ml.LoadModel(qualifiedName, dir)
		p.metrics.ObserveConstruction(qualifiedName, err)
		if err != nil {
			p.logger.Error("model construction failed",
				zap.String("model", qualifiedName),
				zap.String("dir", dir),
				zap.Error(err))
			return nil, err
		}
		if !p.admit(qualifiedName, gen, m) {
			p.logger.Info("discarding stale model construction",
				zap.String("model", qualifiedName),
				zap.String("dir", dir))
			return m, nil
		}
		p.logger.Info("model constructed",
			zap.String("model", qualifiedName),
			zap.String("version", ml.DescriptorOf(m).Version()),
			zap.String("dir", dir),
			zap.Duration("elapsed", time.Since(start)))
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(ml.Model), nil
}

// Predict runs a validated prediction against the resident instance of a
// model. A contract violation raised by the model is logged and re-raised.
func (p *Pool) Predict(qualifiedName string, input map[string]any) (out map[string]any, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.metrics.ObservePrediction(qualifiedName, ml.OutcomeFailed, time.Since(start))
			p.logger.Error("model broke its contract",
				zap.String("model", qualifiedName),
				zap.Any("violation", r))
			panic(r)
		}
		outcome := ml.OutcomeOf(err)
		p.metrics.ObservePrediction(qualifiedName, outcome, time.Since(start))
		switch outcome {
		case ml.OutcomeRejected:
			p.logger.Debug("prediction rejected", zap.String("model", qualifiedName), zap.Error(err))
		case ml.OutcomeFailed:
			p.logger.Warn("prediction failed", zap.String("model", qualifiedName), zap.Error(err))
		}
	}()

	m, err := p.Get(qualifiedName)
	if err != nil {
		return nil, err
	}
	return ml.Predict(m, input)
}

// admit caches m unless the model was re-pointed or evicted since its
// construction started.
func (p *Pool) admit(qualifiedName string, gen uint64, m ml.Model) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gens[qualifiedName] != gen {
		return false
	}
	p.cache.Add(qualifiedName, m)
	p.metrics.SetResident(p.cache.Len())
	return true
}

// Evict drops the resident instance of a model, if any. Constructions already
// in flight for it will not become resident.
func (p *Pool) Evict(qualifiedName string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.evictLocked(qualifiedName)
}

func (p *Pool) evictLocked(qualifiedName string) bool {
	p.gens[qualifiedName]++
	removed := p.cache.Remove(qualifiedName)
	p.metrics.SetResident(p.cache.Len())
	return removed
}

// Contains reports whether a model has a resident instance.
func (p *Pool) Contains(qualifiedName string) bool {
	return p.cache.Contains(qualifiedName)
}

// Resident returns the qualified names of resident instances, least recently
// used first.
func (p *Pool) Resident() []string {
	return p.cache.Keys()
}

// Watch reloads a model whenever a file under its artifact directory changes:
// the resident instance is evicted and rebuilt from the new artifact. A failed
// rebuild is logged and leaves the model unloaded until the artifact is fixed.
// The set of watched directories is taken from Add calls made before Watch;
// models using their packaged artifact are not watched. Watch blocks until
// ctx is done.
func (p *Pool) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create artifact watcher: %w", err)
	}
	defer watcher.Close()

	roots, err := p.watchRoots()
	if err != nil {
		return err
	}
	for root, names := range roots {
		if err := watchTree(watcher, root); err != nil {
			return fmt.Errorf("watch artifacts of %s: %w", strings.Join(names, ", "), err)
		}
		p.logger.Info("watching artifacts", zap.Strings("models", names), zap.String("dir", root))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			p.handleEvent(watcher, roots, event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.logger.Warn("artifact watcher error", zap.Error(err))
		}
	}
}

// watchRoots groups the models by absolute artifact directory.
func (p *Pool) watchRoots() (map[string][]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	roots := make(map[string][]string)
	for name, dir := range p.dirs {
		if dir == "" {
			continue
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, err
		}
		roots[abs] = append(roots[abs], name)
	}
	for _, names := range roots {
		sort.Strings(names)
	}
	return roots, nil
}

func (p *Pool) handleEvent(watcher *fsnotify.Watcher, roots map[string][]string, event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if event.Op&fsnotify.Create != 0 {
		if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
			_ = watchTree(watcher, event.Name)
		}
	}
	for root, names := range roots {
		if !within(root, event.Name) {
			continue
		}
		for _, name := range names {
			p.reload(name, event)
		}
	}
}

func (p *Pool) reload(name string, event fsnotify.Event) {
	p.Evict(name)
	if _, err := p.Get(name); err != nil {
		p.logger.Warn("artifact changed, reload failed",
			zap.String("model", name),
			zap.String("file", event.Name),
			zap.Error(err))
		return
	}
	p.logger.Info("artifact changed, model reloaded",
		zap.String("model", name),
		zap.String("file", event.Name),
		zap.String("op", event.Op.String()))
}

func watchTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

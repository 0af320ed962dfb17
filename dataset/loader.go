package dataset

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/brain-cockpit/cockpit/cockpit"
	"github.com/brain-cockpit/cockpit/storage"
	"github.com/brain-cockpit/cockpit/surface"

	"github.com/dustin/go-humanize"
	"github.com/golang/groupcache/lru"
	"github.com/golang/groupcache/singleflight"
	"golang.org/x/sync/errgroup"
)

// DefaultMemoEntries is the number of stores kept in memory by a Loader.
const DefaultMemoEntries = 16

// LoaderConfig configures a Loader.
type LoaderConfig struct {
	// Reader reads surface files.  Defaults to surface.FileReader.
	Reader surface.Reader

	// DataRoot is the last directory tried when resolving relative paths.
	DataRoot string

	// Workers is the number of files read concurrently.  Defaults to the
	// number of CPUs.
	Workers int

	// DB is the persistent load cache.  If nil, loads are only memoized in
	// memory.
	DB storage.KeyValueDB

	// MemoEntries bounds the number of stores memoized in memory.
	MemoEntries int
}

// Loader builds stores from dataset descriptions.  A distinct description
// is read at most once per process: results are memoized by cache key,
// concurrent loads of one key are collapsed, and stores are persisted so
// later processes skip reading surface files altogether.
type Loader struct {
	config LoaderConfig

	group singleflight.Group

	mu   sync.Mutex
	memo *lru.Cache
}

// NewLoader returns a Loader.
func NewLoader(config LoaderConfig) *Loader {
	if config.Reader == nil {
		config.Reader = surface.FileReader{}
	}
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}
	if config.MemoEntries <= 0 {
		config.MemoEntries = DefaultMemoEntries
	}
	return &Loader{
		config: config,
		memo:   lru.New(config.MemoEntries),
	}
}

// Resolve returns the absolute path of an existing file given a path as
// written in a description, trying in order the path itself if absolute,
// the description directory, then the data root.
func (l *Loader) Resolve(desc *Description, path string) (string, bool) {
	return cockpit.ResolvePath(path, desc.Dir(), l.config.DataRoot)
}

func (l *Loader) plan(desc *Description, md *Metadata) *plan {
	p := &plan{desc: desc, md: md, keys: md.Keys(), root: l.config.DataRoot}
	p.files = make([]string, len(p.keys))
	for i, k := range p.keys {
		path, found := md.Path(k)
		if !found {
			continue
		}
		if resolved, ok := l.Resolve(desc, path); ok {
			p.files[i] = resolved
		} else {
			cockpit.Debugf("No file %q for map %s\n", path, k)
		}
	}
	return p
}

// Load returns the store of a dataset description.  Missing rows, missing
// files and unreadable files all give missing maps; the only errors are
// cancellation and an unusable description.
func (l *Loader) Load(ctx context.Context, desc *Description) (*Store, error) {
	if desc == nil {
		return nil, fmt.Errorf("no dataset description to load")
	}
	md := ParseMetadata(desc)
	p := l.plan(desc, md)
	cacheKey := p.CacheKey()

	if s := l.memoized(cacheKey); s != nil {
		cockpit.Debugf("Using memoized %s for %q\n", s, desc.Path)
		return s, nil
	}
	v, err := l.group.Do(cacheKey, func() (interface{}, error) {
		if s := l.memoized(cacheKey); s != nil {
			return s, nil
		}
		s, err := l.load(ctx, p, cacheKey)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.memo.Add(cacheKey, s)
		l.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Store), nil
}

func (l *Loader) memoized(cacheKey string) *Store {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, found := l.memo.Get(cacheKey); found {
		return v.(*Store)
	}
	return nil
}

// Forget drops all memoized stores.  Persisted stores are kept.
func (l *Loader) Forget() {
	l.mu.Lock()
	l.memo.Clear()
	l.mu.Unlock()
}

func (l *Loader) load(ctx context.Context, p *plan, cacheKey string) (*Store, error) {
	if l.config.DB != nil {
		s, err := restore(l.config.DB, cacheKey, p.keys)
		if err != nil {
			cockpit.Warningf("Ignoring cached load %s of %q: %v\n", cacheKey, p.desc.Path, err)
		}
		if s != nil {
			cockpit.Infof("Restored %s for %q from %s\n", s, p.desc.Path, l.config.DB)
			return s, nil
		}
	}

	s, err := l.compute(ctx, p)
	if err != nil {
		return nil, err
	}
	if l.config.DB != nil {
		if err := persist(l.config.DB, cacheKey, s); err != nil {
			cockpit.Errorf("Unable to persist load of %q: %v\n", p.desc.Path, err)
		}
	}
	return s, nil
}

// compute reads every resolved surface file with a bounded pool of workers.
func (l *Loader) compute(ctx context.Context, p *plan) (*Store, error) {
	timedLog := cockpit.NewTimeLog()
	maps := make([][]float32, len(p.keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.config.Workers)
	for i := range p.keys {
		if p.files[i] == "" {
			continue
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			values, err := l.config.Reader.ReadMap(p.files[i])
			if err != nil {
				cockpit.Warningf("Treating map %s as missing: %v\n", p.keys[i], err)
				return nil
			}
			if values == nil {
				values = []float32{}
			}
			maps[i] = values
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load of %q interrupted: %v", p.desc.Path, err)
	}

	s := newStore(p.keys, maps, cockpit.NewUUID(), Computed)
	timedLog.Infof("Loaded %s for %q, ~%s in memory", s, p.desc.Path, humanize.Bytes(uint64(s.MemSize())))
	return s, nil
}

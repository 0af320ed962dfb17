package dataset

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/brain-cockpit/cockpit/cockpit"
	"github.com/brain-cockpit/cockpit/storage"
	_ "github.com/brain-cockpit/cockpit/storage/badger"
	"github.com/brain-cockpit/cockpit/surface"

	. "github.com/janelia-flyem/go/gocheck"
)

// countingReader counts surface file reads.
type countingReader struct {
	reads int64
}

func (r *countingReader) ReadMap(path string) ([]float32, error) {
	atomic.AddInt64(&r.reads, 1)
	return surface.FileReader{}.ReadMap(path)
}

func (s *DatasetSuite) TestLoadScenario(c *C) {
	desc, values := writeScenario(c, s.dir)
	loader := NewLoader(LoaderConfig{})
	store, err := loader.Load(context.Background(), desc)
	c.Assert(err, IsNil)
	c.Assert(store.Len(), Equals, 4) // 1 mesh x 2 subjects x 1 contrast x 2 sides
	c.Assert(store.NumLoaded(), Equals, 1)
	c.Assert(store.Origin(), Equals, Computed)

	got, ok := store.Get(Key{"fsaverage3", "sub-01", "localizer", "dummy", cockpit.Left})
	c.Assert(ok, Equals, true)
	c.Assert(got, DeepEquals, values)

	for _, k := range []Key{
		{"fsaverage3", "sub-02", "localizer", "dummy", cockpit.Left},
		{"fsaverage3", "sub-01", "localizer", "dummy", cockpit.Right},
	} {
		c.Assert(store.Has(k), Equals, true)
		v, ok := store.Get(k)
		c.Assert(ok, Equals, false)
		c.Assert(v, IsNil)
	}
	n, found := store.LeftVertexCount("fsaverage3", "sub-01")
	c.Assert(found, Equals, true)
	c.Assert(n, Equals, 642)
	_, found = store.LeftVertexCount("fsaverage3", "sub-02")
	c.Assert(found, Equals, false)
	n, found = store.LeftVertexCount("fsaverage3", "")
	c.Assert(found, Equals, true)
	c.Assert(n, Equals, 642)
}

func (s *DatasetSuite) TestLoadCorruptFile(c *C) {
	f := newFixture(s.dir)
	f.add(c, "m", "s1", "t", "c", "lh", ramp(4, 0))
	corrupt := f.add(c, "m", "s2", "t", "c", "lh", ramp(4, 0))
	c.Assert(os.WriteFile(corrupt, []byte("<GIFTI>not really"), 0644), IsNil)
	desc := f.write(c)

	store, err := NewLoader(LoaderConfig{}).Load(context.Background(), desc)
	c.Assert(err, IsNil)
	_, ok := store.Get(Key{"m", "s1", "t", "c", cockpit.Left})
	c.Assert(ok, Equals, true)
	_, ok = store.Get(Key{"m", "s2", "t", "c", cockpit.Left})
	c.Assert(ok, Equals, false)
}

func (s *DatasetSuite) TestResolvePaths(c *C) {
	descDir := filepath.Join(s.dir, "desc")
	rootDir := filepath.Join(s.dir, "root")
	for _, dir := range []string{descDir, rootDir} {
		c.Assert(os.MkdirAll(dir, 0755), IsNil)
	}
	write := func(path string, n int) {
		c.Assert(surface.WriteFile(path, surface.DataArray{Values: ramp(n, 0)}), IsNil)
	}
	absPath := filepath.Join(s.dir, "absolute.gii")
	write(absPath, 1)
	write(filepath.Join(descDir, "both.gii"), 2)
	write(filepath.Join(rootDir, "both.gii"), 3)
	write(filepath.Join(rootDir, "rootonly.gii"), 4)

	rows := []Row{
		{Mesh: "m", Subject: "s", Task: "t", Contrast: "abs", Side: "lh", Path: absPath},
		{Mesh: "m", Subject: "s", Task: "t", Contrast: "both", Side: "lh", Path: "both.gii"},
		{Mesh: "m", Subject: "s", Task: "t", Contrast: "root", Side: "lh", Path: "rootonly.gii"},
		{Mesh: "m", Subject: "s", Task: "t", Contrast: "none", Side: "lh", Path: "nowhere.gii"},
		{Mesh: "m", Subject: "s", Task: "t", Contrast: "absmissing", Side: "lh", Path: filepath.Join(s.dir, "gone.gii")},
	}
	descPath := filepath.Join(descDir, "dataset.csv")
	c.Assert(os.WriteFile(descPath, NewDescription(rows).Bytes(), 0644), IsNil)
	desc, err := ReadDescription(descPath)
	c.Assert(err, IsNil)

	loader := NewLoader(LoaderConfig{DataRoot: rootDir})
	store, err := loader.Load(context.Background(), desc)
	c.Assert(err, IsNil)

	lengths := map[string]int{"abs": 1, "both": 2, "root": 4, "none": -1, "absmissing": -1}
	for contrast, n := range lengths {
		v, ok := store.Get(Key{"m", "s", "t", contrast, cockpit.Left})
		if n < 0 {
			c.Assert(ok, Equals, false, Commentf("contrast %s", contrast))
			continue
		}
		c.Assert(ok, Equals, true, Commentf("contrast %s", contrast))
		c.Assert(v, HasLen, n, Commentf("contrast %s", contrast))
	}
}

func (s *DatasetSuite) TestLoadMemoized(c *C) {
	desc, _ := writeScenario(c, s.dir)
	reader := &countingReader{}
	loader := NewLoader(LoaderConfig{Reader: reader, Workers: 2})

	var wg sync.WaitGroup
	stores := make([]*Store, 8)
	for i := range stores {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store, err := loader.Load(context.Background(), desc)
			c.Check(err, IsNil)
			stores[i] = store
		}(i)
	}
	wg.Wait()
	for _, store := range stores[1:] {
		c.Assert(store == stores[0], Equals, true)
	}
	c.Assert(atomic.LoadInt64(&reader.reads), Equals, int64(1))

	// A changed description gives a new store.
	f := newFixture(s.dir)
	f.add(c, "fsaverage3", "sub-01", "localizer", "dummy", "lh", ramp(642, 1))
	changed := f.write(c)
	store, err := loader.Load(context.Background(), changed)
	c.Assert(err, IsNil)
	c.Assert(store == stores[0], Equals, false)
	c.Assert(store.Generation() == stores[0].Generation(), Equals, false)

	loader.Forget()
	_, err = loader.Load(context.Background(), changed)
	c.Assert(err, IsNil)
	c.Assert(atomic.LoadInt64(&reader.reads), Equals, int64(3))
}

func (s *DatasetSuite) TestCacheKeyTracksFiles(c *C) {
	desc, _ := writeScenario(c, s.dir)
	loader := NewLoader(LoaderConfig{})
	key := loader.plan(desc, ParseMetadata(desc)).CacheKey()
	c.Assert(loader.plan(desc, ParseMetadata(desc)).CacheKey(), Equals, key)

	path := filepath.Join(s.dir, "maps", "fsaverage3_sub-01_localizer_dummy_lh.gii")
	c.Assert(surface.WriteFile(path, surface.DataArray{Values: ramp(10, 0)}), IsNil)
	c.Assert(loader.plan(desc, ParseMetadata(desc)).CacheKey() == key, Equals, false)

	other := NewLoader(LoaderConfig{DataRoot: s.dir})
	c.Assert(other.plan(desc, ParseMetadata(desc)).CacheKey() == key, Equals, false)
}

func (s *DatasetSuite) TestLoadCanceled(c *C) {
	desc, _ := writeScenario(c, s.dir)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLoader(LoaderConfig{}).Load(ctx, desc)
	c.Assert(err, NotNil)

	_, err = NewLoader(LoaderConfig{}).Load(context.Background(), nil)
	c.Assert(err, NotNil)
}

// writeMixed writes a dataset with several meshes, missing maps and NaNs.
func writeMixed(c *C, dir string) *Description {
	f := newFixture(dir)
	for si, subject := range []string{"s1", "s2", "s3"} {
		for ti, tc := range []TaskContrast{{"a", "x"}, {"a", "y"}, {"b", "z"}} {
			if subject == "s2" && tc.Contrast == "y" {
				continue
			}
			left := ramp(5, float32(100*si+10*ti))
			if si == 2 {
				left[1] = float32(math.NaN())
			}
			f.add(c, "fsaverage5", subject, tc.Task, tc.Contrast, "lh", left)
			if !(subject == "s2" && tc.Contrast == "z") {
				f.add(c, "fsaverage5", subject, tc.Task, tc.Contrast, "rh", ramp(4, float32(100*si+10*ti)+0.5))
			}
			f.add(c, "individual", subject, tc.Task, tc.Contrast, "lh", ramp(3+si, 0))
		}
	}
	return f.write(c)
}

func (s *DatasetSuite) TestPersistentCache(c *C) {
	desc := writeMixed(c, s.dir)
	db, _, err := storage.Open(storage.Config{Engine: "badger", Path: filepath.Join(s.dir, "cache")})
	c.Assert(err, IsNil)

	cold, err := NewLoader(LoaderConfig{DB: db}).Load(context.Background(), desc)
	c.Assert(err, IsNil)
	c.Assert(cold.Origin(), Equals, Computed)
	db.Close()

	// A new process: reopen the cache and load again without reading files.
	db, _, err = storage.Open(storage.Config{Engine: "badger", Path: filepath.Join(s.dir, "cache")})
	c.Assert(err, IsNil)
	defer db.Close()
	reader := &countingReader{}
	warm, err := NewLoader(LoaderConfig{DB: db, Reader: reader}).Load(context.Background(), desc)
	c.Assert(err, IsNil)
	c.Assert(warm.Origin(), Equals, Persisted)
	c.Assert(atomic.LoadInt64(&reader.reads), Equals, int64(0))
	c.Assert(warm.Equal(cold), Equals, true)
	c.Assert(warm.Generation(), Equals, cold.Generation())
	c.Assert(warm.NumLoaded(), Equals, cold.NumLoaded())

	// NaN bits survive.
	k := Key{"fsaverage5", "s3", "a", "x", cockpit.Left}
	a, _ := cold.Get(k)
	b, _ := warm.Get(k)
	c.Assert(math.Float32bits(a[1]), Equals, math.Float32bits(b[1]))

	// Same answers from both.
	for _, store := range []*Store{cold, warm} {
		r := NewResolver(ParseMetadata(desc), store)
		fp, err := r.Fingerprint("fsaverage5", "s2", 3, cockpit.Both)
		c.Assert(err, IsNil)
		c.Assert(fmt.Sprint(fp), Equals, "[103 NaN 123]")
	}
}

func (s *DatasetSuite) TestPersistentCacheIgnoresBadEntries(c *C) {
	desc := writeMixed(c, s.dir)
	db, _, err := storage.Open(storage.Config{Engine: "badger", InMemory: true})
	c.Assert(err, IsNil)
	defer db.Close()

	loader := NewLoader(LoaderConfig{DB: db})
	cold, err := loader.Load(context.Background(), desc)
	c.Assert(err, IsNil)
	cacheKey := loader.plan(desc, ParseMetadata(desc)).CacheKey()

	// Incompatible format version.
	m := &manifest{Format: "2.0.0", Keys: cold.Keys(), Present: make([]bool, cold.Len())}
	v, err := encodeManifest(m)
	c.Assert(err, IsNil)
	c.Assert(db.Put(manifestKey(cacheKey), v), IsNil)
	restored, err := restore(db, cacheKey, cold.Keys())
	c.Assert(err, NotNil)
	c.Assert(restored, IsNil)

	reader := &countingReader{}
	again, err := NewLoader(LoaderConfig{DB: db, Reader: reader}).Load(context.Background(), desc)
	c.Assert(err, IsNil)
	c.Assert(again.Origin(), Equals, Computed)
	c.Assert(again.Equal(cold), Equals, true)
	c.Assert(atomic.LoadInt64(&reader.reads) > 0, Equals, true)

	// The recomputed load was persisted again and is usable.
	restored, err = restore(db, cacheKey, cold.Keys())
	c.Assert(err, IsNil)
	c.Assert(restored.Equal(cold), Equals, true)

	// A lost entry makes the whole load a miss.
	c.Assert(db.Delete(entryKey(cacheKey, 0)), IsNil)
	restored, err = restore(db, cacheKey, cold.Keys())
	c.Assert(err, NotNil)
	c.Assert(restored, IsNil)
}

func (s *DatasetSuite) TestEntryCodec(c *C) {
	values := []float32{1.5, float32(math.NaN()), float32(math.Inf(-1)), 0}
	v, err := encodeEntry(&entry{Index: 7, Values: values})
	c.Assert(err, IsNil)
	e, err := decodeEntry(v)
	c.Assert(err, IsNil)
	c.Assert(e.Index, Equals, uint32(7))
	c.Assert(e.Values, HasLen, len(values))
	for i := range values {
		c.Assert(math.Float32bits(e.Values[i]), Equals, math.Float32bits(values[i]))
	}
	_, err = decodeEntry([]byte("garbage"))
	c.Assert(err, NotNil)
}

func (s *DatasetSuite) TestManifestCodec(c *C) {
	m := &manifest{
		Format:     CacheFormat.String(),
		Generation: "gen-1",
		Created:    1700000000,
		Keys: []Key{
			{Mesh: "pial", Subject: "sub-01", Task: "audio", Contrast: "a-b", Side: cockpit.Left},
			{Mesh: "pial", Subject: "sub-01", Task: "audio", Contrast: "a-b", Side: cockpit.Right},
		},
		Present: []bool{true, false},
	}
	v, err := encodeManifest(m)
	c.Assert(err, IsNil)
	got, err := decodeManifest(v)
	c.Assert(err, IsNil)
	c.Assert(got, DeepEquals, m)

	// Truncated manifests and entries are rejected, not partially read.
	_, err = decodeManifest(v[:len(v)-1])
	c.Assert(err, NotNil)
	raw := appendEntry(nil, &entry{Index: 1, Values: []float32{1, 2}})
	_, err = readEntry(raw[:len(raw)-3])
	c.Assert(err, NotNil)
}

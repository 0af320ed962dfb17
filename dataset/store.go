package dataset

import (
	"fmt"
	"math"
	"strconv"

	"github.com/brain-cockpit/cockpit/cockpit"

	"github.com/DmitriyVTitov/size"
)

// Key identifies one surface map.
type Key struct {
	Mesh     string
	Subject  string
	Task     string
	Contrast string
	Side     cockpit.Hemisphere
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s/%s/%s", k.Mesh, k.Subject, k.Task, k.Contrast, k.Side)
}

// Values is a surface map or fingerprint.  NaN and infinite entries encode to
// JSON as null.
type Values []float32

// MarshalJSON implements json.Marshaler.
func (v Values) MarshalJSON() ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	b := make([]byte, 0, 2+len(v)*10)
	b = append(b, '[')
	for i, x := range v {
		if i != 0 {
			b = append(b, ',')
		}
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			b = append(b, "null"...)
			continue
		}
		b = strconv.AppendFloat(b, f, 'g', -1, 32)
	}
	return append(b, ']'), nil
}

// Origin tells how a store was produced.
type Origin uint8

const (
	// Computed stores were read from surface files.
	Computed Origin = iota
	// Persisted stores were restored from the persistent load cache.
	Persisted
)

func (o Origin) String() string {
	if o == Persisted {
		return "persisted"
	}
	return "computed"
}

type meshSubject struct {
	mesh    string
	subject string
}

// Store holds a surface map or the missing marker for every key of the grid
// mesh x subject x task/contrast x {left, right}.  A Store is never modified
// after construction, so it can be read concurrently without locking.
type Store struct {
	generation string
	origin     Origin
	keys       []Key
	maps       map[Key][]float32
	loaded     int

	subjectLeft map[meshSubject]int
	meshLeft    map[string]int
}

// newStore returns a store over the given grid keys with maps[i] the map of
// keys[i], or nil if missing.
func newStore(keys []Key, maps [][]float32, generation string, origin Origin) *Store {
	s := &Store{
		generation:  generation,
		origin:      origin,
		keys:        keys,
		maps:        make(map[Key][]float32, len(keys)),
		subjectLeft: make(map[meshSubject]int),
		meshLeft:    make(map[string]int),
	}
	for i, k := range keys {
		s.maps[k] = maps[i]
		if maps[i] == nil {
			continue
		}
		s.loaded++
		if k.Side != cockpit.Left {
			continue
		}
		ms := meshSubject{k.Mesh, k.Subject}
		if _, found := s.subjectLeft[ms]; !found {
			s.subjectLeft[ms] = len(maps[i])
		}
		if _, found := s.meshLeft[k.Mesh]; !found {
			s.meshLeft[k.Mesh] = len(maps[i])
		}
	}
	return s
}

// Get returns the map for a key.  The second value is false if the map is
// missing, whether or not the key belongs to the grid.
func (s *Store) Get(k Key) ([]float32, bool) {
	v := s.maps[k]
	return v, v != nil
}

// Has returns true if the key belongs to the grid, missing or not.
func (s *Store) Has(k Key) bool {
	_, found := s.maps[k]
	return found
}

// Keys returns the grid keys in canonical order.
func (s *Store) Keys() []Key {
	return s.keys
}

// Len returns the number of grid keys.
func (s *Store) Len() int {
	return len(s.keys)
}

// NumLoaded returns the number of maps that are not missing.
func (s *Store) NumLoaded() int {
	return s.loaded
}

// Generation returns an identifier unique to the content of this store.
func (s *Store) Generation() string {
	return s.generation
}

// Origin tells whether the store was computed or restored from cache.
func (s *Store) Origin() Origin {
	return s.origin
}

// LeftVertexCount returns the length of the first loaded left hemisphere map
// of a (mesh, subject) in grid order.  If subject is empty, the first such
// length across subjects of the mesh is returned.
func (s *Store) LeftVertexCount(mesh, subject string) (int, bool) {
	var n int
	var found bool
	if subject == "" {
		n, found = s.meshLeft[mesh]
	} else {
		n, found = s.subjectLeft[meshSubject{mesh, subject}]
	}
	return n, found
}

// Equal returns true if both stores hold the same grid with bit-identical maps.
func (s *Store) Equal(other *Store) bool {
	if s == nil || other == nil {
		return s == other
	}
	if len(s.keys) != len(other.keys) {
		return false
	}
	for i, k := range s.keys {
		if other.keys[i] != k {
			return false
		}
		a, b := s.maps[k], other.maps[k]
		if (a == nil) != (b == nil) || len(a) != len(b) {
			return false
		}
		for j := range a {
			if math.Float32bits(a[j]) != math.Float32bits(b[j]) {
				return false
			}
		}
	}
	return true
}

// MemSize returns an estimate of the memory held by the store in bytes.
func (s *Store) MemSize() int {
	return size.Of(s)
}

func (s *Store) String() string {
	return fmt.Sprintf("store %s (%d of %d maps loaded, %s)", s.generation, s.loaded, len(s.keys), s.origin)
}

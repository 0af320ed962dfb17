package dataset

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/brain-cockpit/cockpit/cockpit"
	"github.com/brain-cockpit/cockpit/storage"

	"github.com/dustin/go-humanize"
)

// plan is the list of surface files a load needs to read.
type plan struct {
	desc  *Description
	md    *Metadata
	keys  []Key
	files []string // resolved absolute path of keys[i], or "" if missing
	root  string
}

// CacheKey returns the load cache key of the plan: a SHA-256 digest of the
// cache format, the description location and content, the data root, and the
// size and modification time of every resolved surface file.  Any edit of
// the description or of a surface file changes the key.
func (p *plan) CacheKey() string {
	h := sha256.New()
	var buf [8]byte
	writeString := func(s string) {
		binary.LittleEndian.PutUint64(buf[:], uint64(len(s)))
		h.Write(buf[:])
		h.Write([]byte(s))
	}
	writeInt := func(i int64) {
		binary.LittleEndian.PutUint64(buf[:], uint64(i))
		h.Write(buf[:])
	}
	writeString(CacheFormat.String())
	writeString(p.desc.Path)
	writeString(string(p.desc.Bytes()))
	writeString(p.root)
	for _, f := range p.files {
		writeString(f)
		if f == "" {
			continue
		}
		if fi, err := os.Stat(f); err == nil {
			writeInt(fi.Size())
			writeInt(fi.ModTime().UnixNano())
		} else {
			writeInt(-1)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func cachePrefix(cacheKey string) storage.Key {
	return storage.Key("load/" + cacheKey + "/")
}

func manifestKey(cacheKey string) storage.Key {
	return append(cachePrefix(cacheKey), "manifest"...)
}

func entryKey(cacheKey string, i int) storage.Key {
	return append(cachePrefix(cacheKey), fmt.Sprintf("e/%08x", i)...)
}

// restore returns the store persisted under cacheKey, or nil if there is none
// usable.
func restore(db storage.KeyValueDB, cacheKey string, keys []Key) (*Store, error) {
	v, err := db.Get(manifestKey(cacheKey))
	if err != nil || v == nil {
		return nil, err
	}
	m, err := decodeManifest(v)
	if err != nil {
		return nil, err
	}
	if len(m.Keys) != len(keys) {
		return nil, fmt.Errorf("cached grid has %d keys, expected %d", len(m.Keys), len(keys))
	}
	for i, k := range keys {
		if m.Keys[i] != k {
			return nil, fmt.Errorf("cached grid key %d is %s, expected %s", i, m.Keys[i], k)
		}
	}
	maps := make([][]float32, len(keys))
	var numBytes uint64
	for i, present := range m.Present {
		if !present {
			continue
		}
		v, err := db.Get(entryKey(cacheKey, i))
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, fmt.Errorf("cached map %s missing", keys[i])
		}
		e, err := decodeEntry(v)
		if err != nil {
			return nil, err
		}
		if int(e.Index) != i {
			return nil, fmt.Errorf("cached map %d holds index %d", i, e.Index)
		}
		if e.Values == nil {
			e.Values = []float32{}
		}
		maps[i] = e.Values
		numBytes += uint64(len(v))
	}
	cockpit.Debugf("Read %s of cached maps for load %s\n", humanize.Bytes(numBytes), cacheKey)
	return newStore(keys, maps, m.Generation, Persisted), nil
}

// persist writes a store under cacheKey, replacing anything there.
func persist(db storage.KeyValueDB, cacheKey string, s *Store) error {
	if err := db.DeletePrefix(cachePrefix(cacheKey)); err != nil {
		return err
	}
	m := &manifest{
		Format:     CacheFormat.String(),
		Generation: s.Generation(),
		Created:    time.Now().Unix(),
		Keys:       s.Keys(),
		Present:    make([]bool, s.Len()),
	}
	var numBytes uint64
	batch := db.NewBatch()
	for i, k := range s.Keys() {
		values, ok := s.Get(k)
		if !ok {
			continue
		}
		m.Present[i] = true
		v, err := encodeEntry(&entry{Index: uint32(i), Values: values})
		if err != nil {
			return err
		}
		batch.Put(entryKey(cacheKey, i), v)
		numBytes += uint64(len(v))
	}
	if err := batch.Commit(); err != nil {
		return err
	}
	v, err := encodeManifest(m)
	if err != nil {
		return err
	}
	if err := db.Put(manifestKey(cacheKey), v); err != nil {
		return err
	}
	cockpit.Infof("Persisted %d maps (%s) for load %s in %s\n", s.NumLoaded(), humanize.Bytes(numBytes), cacheKey, db)
	return nil
}

/*
	Package storage provides the key-value abstraction behind the persistent
	load cache.  Storage engines register themselves by name and are opened
	from a Config; values are plain []byte and serialization happens above
	the storage level.
*/
package storage

import (
	"fmt"
	"sort"
	"sync"

	"github.com/blang/semver"
)

// Key is the slice of bytes used to store a value in a storage engine.
type Key []byte

// KeyValue stores a key-value pair.
type KeyValue struct {
	K Key
	V []byte
}

// Config holds the settings for opening a store.
type Config struct {
	// Engine is the registered name of the storage engine, e.g., "badger".
	Engine string

	// Path is the directory of an on-disk store.  Ignored for in-memory stores.
	Path string

	// InMemory requests a store that is never written to disk.
	InMemory bool

	ReadOnly bool

	// ValueThreshold is the value size in bytes above which an engine may
	// store values apart from keys.  Zero uses the engine default.
	ValueThreshold int64

	// ValueLogFileSize is the maximum size of engine log files.  Zero uses
	// the engine default.
	ValueLogFileSize int64
}

// Engine opens stores of one kind.
type Engine interface {
	GetName() string
	GetDescription() string
	GetSemVer() semver.Version
	String() string

	// NewStore opens a store, creating it if needed.  The returned bool is
	// true if the store was newly created.
	NewStore(Config) (db KeyValueDB, created bool, err error)
}

// KeyValueGetter provides reads.
type KeyValueGetter interface {
	// Get returns a value given a key, or nil if the key is not present.
	Get(k Key) ([]byte, error)

	// Exists returns true if the key is present.
	Exists(k Key) (bool, error)

	// KeysWithPrefix returns all keys starting with prefix in ascending order.
	KeysWithPrefix(prefix Key) ([]Key, error)
}

// KeyValueSetter provides writes.
type KeyValueSetter interface {
	// Put writes a value with given key.
	Put(k Key, v []byte) error

	// Delete removes a value with given key.
	Delete(k Key) error

	// DeletePrefix removes all key-value pairs whose key starts with prefix.
	DeletePrefix(prefix Key) error
}

// KeyValueDB is the simplest storage API: a key/value store.
type KeyValueDB interface {
	KeyValueGetter
	KeyValueSetter

	// NewBatch returns a batch of writes committed together.
	NewBatch() Batch

	Close()
	String() string
}

// Batch groups writes into one commit.
type Batch interface {
	Put(k Key, v []byte)
	Delete(k Key)
	Commit() error
}

var (
	enginesMu sync.RWMutex
	engines   = make(map[string]Engine)
)

// RegisterEngine makes a storage engine available by name.
func RegisterEngine(e Engine) {
	enginesMu.Lock()
	engines[e.GetName()] = e
	enginesMu.Unlock()
}

// GetEngine returns a registered engine.
func GetEngine(name string) (Engine, bool) {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	e, found := engines[name]
	return e, found
}

// EnginesAvailable returns a description of the registered engines.
func EnginesAvailable() []string {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	var avail []string
	for _, e := range engines {
		avail = append(avail, e.String())
	}
	sort.Strings(avail)
	return avail
}

// Open opens a store with the engine named in the config.
func Open(c Config) (KeyValueDB, bool, error) {
	e, found := GetEngine(c.Engine)
	if !found {
		return nil, false, fmt.Errorf("no storage engine %q registered (available: %v)", c.Engine, EnginesAvailable())
	}
	return e.NewStore(c)
}

// PrefixEnd returns the smallest key greater than every key starting with
// prefix, or nil if there is none.
func PrefixEnd(prefix Key) Key {
	end := make(Key, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

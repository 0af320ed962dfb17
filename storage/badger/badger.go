// Package badger implements the storage.KeyValueDB interface with Badger,
// either on disk or held entirely in memory.
package badger

import (
	"fmt"
	"os"
	"time"

	"github.com/brain-cockpit/cockpit/cockpit"
	"github.com/brain-cockpit/cockpit/storage"

	"github.com/blang/semver"
	"github.com/dgraph-io/badger/v3"
)

const (
	// DefaultVersionsToKeep is the number of versions to keep per key.
	DefaultVersionsToKeep = 1

	// DefaultSyncWrites is true if all writes are synced to disk, thereby making db resilient
	// at cost of speed.  Losing the tail of a cache is harmless.
	DefaultSyncWrites = false

	// deleteBatchSize is the number of deletions flushed at a time.
	deleteBatchSize = 10000
)

func init() {
	ver, err := semver.Make("0.2.0")
	if err != nil {
		cockpit.Errorf("Unable to make semver in badger: %v\n", err)
	}
	storage.RegisterEngine(Engine{"badger", "BadgerDB", ver})
}

// --- Engine Implementation ------

type Engine struct {
	name   string
	desc   string
	semver semver.Version
}

func (e Engine) GetName() string {
	return e.name
}

func (e Engine) GetDescription() string {
	return e.desc
}

func (e Engine) GetSemVer() semver.Version {
	return e.semver
}

func (e Engine) String() string {
	return fmt.Sprintf("%s [%s]", e.name, e.semver)
}

// NewStore returns a badger.  The passed Config must contain a Path unless
// InMemory is set.
func (e Engine) NewStore(config storage.Config) (storage.KeyValueDB, bool, error) {
	return e.newDB(config)
}

// Periodically sync to prevent too many writes from being buffered
// if server crashes.
func syncPeriodically(db *BadgerDB) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-db.stopSyncCh:
			cockpit.Debugf("Stopping sync goroutine for %s\n", db)
			return
		case <-ticker.C:
			if err := db.bdp.Sync(); err != nil {
				cockpit.Warningf("Unable to sync %s: %v\n", db, err)
			}
		}
	}
}

// newDB returns a Badger backend, creating one at path if it doesn't exist.
func (e Engine) newDB(config storage.Config) (*BadgerDB, bool, error) {
	if !config.InMemory && config.Path == "" {
		return nil, false, fmt.Errorf("path must be specified for BadgerDB configuration")
	}

	// Is there a database already at this path?  If not, create.
	created := config.InMemory
	if !config.InMemory {
		if _, err := os.Stat(config.Path); os.IsNotExist(err) {
			cockpit.Infof("Database not already at path (%s). Creating directory...\n", config.Path)
			created = true
			if err := os.MkdirAll(config.Path, 0755); err != nil {
				return nil, true, fmt.Errorf("can't make directory at %s: %v", config.Path, err)
			}
		}
	}

	opts := getOptions(config)
	opts.NumVersionsToKeep = DefaultVersionsToKeep
	opts.SyncWrites = DefaultSyncWrites

	badgerDB := &BadgerDB{
		directory:  config.Path,
		config:     config,
		stopSyncCh: make(chan struct{}),
	}
	cockpit.Infof("Opening %s\n", badgerDB)
	bdp, err := badger.Open(opts)
	if err != nil {
		return nil, false, err
	}
	badgerDB.bdp = bdp
	if !config.InMemory && !config.ReadOnly {
		go syncPeriodically(badgerDB)
	} else {
		close(badgerDB.stopSyncCh)
		badgerDB.stopSyncCh = nil
	}
	return badgerDB, created, nil
}

// logger routes badger messages into the leveled log, one level down since
// badger is chatty at info level.
type logger struct{}

func (logger) Errorf(format string, args ...interface{})   { cockpit.Errorf("badger: "+format, args...) }
func (logger) Warningf(format string, args ...interface{}) { cockpit.Warningf("badger: "+format, args...) }
func (logger) Infof(format string, args ...interface{})    { cockpit.Debugf("badger: "+format, args...) }
func (logger) Debugf(format string, args ...interface{})   {}

// --- The BadgerDB Implementation must satisfy a storage.KeyValueDB interface ----

type BadgerDB struct {
	// Directory of datastore
	directory string

	// Config at time of Open()
	config storage.Config

	bdp *badger.DB

	// stopSyncCh is used to signal the sync goroutine to stop.
	stopSyncCh chan struct{}
}

func (db *BadgerDB) String() string {
	if db.config.InMemory {
		return "in-memory badger"
	}
	return fmt.Sprintf("badger @ %s", db.directory)
}

// Close closes the BadgerDB
func (db *BadgerDB) Close() {
	if db != nil {
		if db.bdp != nil {
			if db.stopSyncCh != nil {
				db.stopSyncCh <- struct{}{}
			}
			if err := db.bdp.Close(); err != nil {
				cockpit.Errorf("Error closing %s: %v\n", db, err)
			}
			cockpit.Infof("Closed %s\n", db)
		}
		db.bdp = nil
	}
}

// ---- KeyValueGetter interface ------

// Get returns a value given a key.
func (db *BadgerDB) Get(k storage.Key) ([]byte, error) {
	if db == nil || db.bdp == nil {
		return nil, fmt.Errorf("can't call Get on closed BadgerDB")
	}
	var v []byte
	err := db.bdp.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		v, err = item.ValueCopy(nil)
		return err
	})
	storage.NotifyRead(len(v))
	return v, err
}

// Exists returns true if the key is present.
func (db *BadgerDB) Exists(k storage.Key) (bool, error) {
	if db == nil || db.bdp == nil {
		return false, fmt.Errorf("can't call Exists on closed BadgerDB")
	}
	var found bool
	err := db.bdp.View(func(txn *badger.Txn) error {
		_, err := txn.Get(k)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

// KeysWithPrefix returns all keys starting with prefix in ascending order.
func (db *BadgerDB) KeysWithPrefix(prefix storage.Key) ([]storage.Key, error) {
	if db == nil || db.bdp == nil {
		return nil, fmt.Errorf("can't call KeysWithPrefix on closed BadgerDB")
	}
	var keys []storage.Key
	err := db.bdp.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false // key only
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	return keys, err
}

// ---- KeyValueSetter interface ------

// Put writes a value with given key.
func (db *BadgerDB) Put(k storage.Key, v []byte) error {
	if db == nil || db.bdp == nil {
		return fmt.Errorf("can't call Put on closed BadgerDB")
	}
	err := db.bdp.Update(func(txn *badger.Txn) error {
		return txn.Set(k, v)
	})
	storage.NotifyWrite(len(k) + len(v))
	return err
}

// Delete removes a value with given key.
func (db *BadgerDB) Delete(k storage.Key) error {
	if db == nil || db.bdp == nil {
		return fmt.Errorf("can't call Delete on closed BadgerDB")
	}
	return db.bdp.Update(func(txn *badger.Txn) error {
		return txn.Delete(k)
	})
}

// DeletePrefix removes all key-value pairs whose key starts with prefix.
func (db *BadgerDB) DeletePrefix(prefix storage.Key) error {
	if db == nil || db.bdp == nil {
		return fmt.Errorf("can't call DeletePrefix on closed BadgerDB")
	}
	keys, err := db.KeysWithPrefix(prefix)
	if err != nil {
		return err
	}
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(keys) {
			end = len(keys)
		}
		if err := db.deleteKeys(keys[start:end]); err != nil {
			return fmt.Errorf("error deleting keys %d-%d with prefix %q: %v", start, end, prefix, err)
		}
	}
	cockpit.Debugf("Deleted %d keys with prefix %q from %s\n", len(keys), prefix, db)
	return nil
}

func (db *BadgerDB) deleteKeys(keys []storage.Key) error {
	wb := db.bdp.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// --- Batcher interface ----

type goBatch struct {
	db  *BadgerDB
	wb  *badger.WriteBatch
	err error
}

// NewBatch returns an implementation that allows batch writes.
func (db *BadgerDB) NewBatch() storage.Batch {
	return &goBatch{db: db, wb: db.bdp.NewWriteBatch()}
}

func (batch *goBatch) Delete(k storage.Key) {
	if batch.err != nil {
		return
	}
	batch.err = batch.wb.Delete(k)
}

func (batch *goBatch) Put(k storage.Key, v []byte) {
	if batch.err != nil {
		return
	}
	// badger takes ownership of the slices until the batch is flushed
	kc := append([]byte(nil), k...)
	if batch.err = batch.wb.Set(kc, v); batch.err == nil {
		storage.NotifyWrite(len(k) + len(v))
	}
}

func (batch *goBatch) Commit() error {
	defer batch.wb.Cancel()
	if batch.err != nil {
		return fmt.Errorf("batch write to %s failed: %v", batch.db, batch.err)
	}
	return batch.wb.Flush()
}


//go:build lowmem
// +build lowmem

package badger

import (
	"github.com/brain-cockpit/cockpit/cockpit"
	"github.com/brain-cockpit/cockpit/storage"

	"github.com/dgraph-io/badger/v3"
)

func getOptions(config storage.Config) badger.Options {
	opts := badger.DefaultOptions(config.Path).WithLogger(logger{})
	if config.InMemory {
		opts = opts.WithDir("").WithValueDir("").WithInMemory(true)
	}
	if config.ReadOnly {
		opts = opts.WithReadOnly(true)
	}
	if config.ValueThreshold > 0 {
		opts = opts.WithValueThreshold(config.ValueThreshold)
	}

	// Low-memory options
	cockpit.Infof("Using Badger with low memory options.\n")
	opts = opts.WithValueLogFileSize(1<<20 - 1) // 1 MB value log file
	opts = opts.WithMemTableSize(4 << 20)
	opts = opts.WithNumMemtables(2)
	opts = opts.WithBlockCacheSize(1 << 20)
	opts = opts.WithIndexCacheSize(1 << 20)
	return opts
}

//go:build !lowmem
// +build !lowmem

package badger

import (
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
	if config.ValueLogFileSize > 0 {
		opts = opts.WithValueLogFileSize(config.ValueLogFileSize)
	}
	return opts
}

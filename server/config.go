package server

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/brain-cockpit/cockpit/cockpit"
)

const (
	// DefaultWebAddress is the default address of the HTTP server.
	DefaultWebAddress = "localhost:5000"

	// DefaultMesh is the mesh support of queries that don't give one.
	DefaultMesh = "fsaverage5"

	// DefaultMaxConnections bounds concurrently served connections.
	DefaultMaxConnections = 64

	// DefaultResponseCacheMB is the size of the mean response cache.
	DefaultResponseCacheMB = 64
)

type tomlConfig struct {
	Server     serverConfig
	Logging    cockpit.LogConfig
	Cache      cacheConfig
	Features   datasetsConfig
	Surfaces   datasetsConfig
	Alignments alignmentsConfig
}

type serverConfig struct {
	HTTPAddress            string   `toml:"httpAddress" json:"httpAddress"`
	CacheFolder            string   `toml:"cache_folder" json:"-"`
	DataRoot               string   `toml:"data_root" json:"data_root,omitempty"`
	AllowUnsafeFileSharing bool     `toml:"allow_very_unsafe_file_sharing" json:"allow_very_unsafe_file_sharing"`
	MaxConnections         int      `toml:"max_connections" json:"max_connections"`
	Workers                int      `toml:"workers" json:"workers"`
	CorsOrigins            []string `toml:"cors_origins" json:"cors_origins,omitempty"`
	Note                   string   `toml:"note" json:"note,omitempty"`
}

type cacheConfig struct {
	// Responses is the size in MB of the mean response cache.
	Responses int
}

// MeshTypes names the mesh variants (pial, inflated, ...) available for a
// dataset.  Mesh files of the default type are listed in the description.
type MeshTypes struct {
	Default string   `toml:"default" json:"default"`
	Other   []string `toml:"other" json:"other"`
}

// Names returns the default mesh type followed by the others.
func (mt *MeshTypes) Names() []string {
	if mt == nil {
		return nil
	}
	return append([]string{mt.Default}, mt.Other...)
}

// DatasetConfig is a [features.datasets.ID] or [alignments.datasets.ID] section.
type DatasetConfig struct {
	Name         string     `toml:"name" json:"name,omitempty"`
	Path         string     `toml:"path" json:"path"`
	Unit         string     `toml:"unit" json:"unit,omitempty"`
	Descriptions string     `toml:"descriptions" json:"descriptions,omitempty"`
	MeshTypes    *MeshTypes `toml:"mesh_types" json:"mesh_types,omitempty"`

	// absolute versions of Path and Descriptions
	absPath         string
	absDescriptions string
}

type datasetsConfig struct {
	Datasets map[string]*DatasetConfig
}

type alignmentsConfig struct {
	Datasets map[string]*DatasetConfig
}

// features returns the [features] datasets, completed by the [surfaces]
// datasets whose ID isn't already used.
func (c *tomlConfig) features() map[string]*DatasetConfig {
	all := make(map[string]*DatasetConfig, len(c.Features.Datasets)+len(c.Surfaces.Datasets))
	for id, dc := range c.Surfaces.Datasets {
		all[id] = dc
	}
	for id, dc := range c.Features.Datasets {
		if _, found := all[id]; found {
			cockpit.Warningf("Dataset %q given as both features and surfaces, using features\n", id)
		}
		all[id] = dc
	}
	return all
}

func sortedIDs(m map[string]*DatasetConfig) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *tomlConfig) setDefaults(configDir string) {
	if c.Server.HTTPAddress == "" {
		c.Server.HTTPAddress = DefaultWebAddress
	}
	if c.Server.DataRoot == "" {
		c.Server.DataRoot = configDir
	}
	if c.Server.MaxConnections <= 0 {
		c.Server.MaxConnections = DefaultMaxConnections
	}
	if c.Server.Workers <= 0 {
		c.Server.Workers = runtime.NumCPU()
	}
	if c.Cache.Responses <= 0 {
		c.Cache.Responses = DefaultResponseCacheMB
	}
}

// Some settings in the TOML can be given as relative paths.
// This function converts them in-place to absolute paths,
// assuming the given paths were relative to the TOML file's own directory.
// Dataset paths keep their written form, and get an absolute copy.
func (c *tomlConfig) convertPathsToAbsolute(configPath string) error {
	var err error

	configDir := filepath.Dir(configPath)

	// [server].cache_folder
	if c.Server.CacheFolder != "" {
		c.Server.CacheFolder, err = cockpit.ConvertToAbsolute(c.Server.CacheFolder, configDir)
		if err != nil {
			return fmt.Errorf("error converting cache_folder to absolute path")
		}
	}

	// [server].data_root
	if c.Server.DataRoot != "" {
		c.Server.DataRoot, err = cockpit.ConvertToAbsolute(c.Server.DataRoot, configDir)
		if err != nil {
			return fmt.Errorf("error converting data_root to absolute path")
		}
	}

	// [logging].logfile
	if c.Logging.Logfile != "" {
		c.Logging.Logfile, err = cockpit.ConvertToAbsolute(c.Logging.Logfile, configDir)
		if err != nil {
			return fmt.Errorf("error converting logfile setting to absolute path")
		}
	}

	// [features.datasets.ID], [surfaces.datasets.ID], [alignments.datasets.ID]
	sections := []struct {
		name     string
		datasets map[string]*DatasetConfig
	}{
		{"features", c.Features.Datasets},
		{"surfaces", c.Surfaces.Datasets},
		{"alignments", c.Alignments.Datasets},
	}
	for _, section := range sections {
		for id, dc := range section.datasets {
			if dc == nil || dc.Path == "" {
				cockpit.Errorf("Skipping %s.datasets.%s: no path given\n", section.name, id)
				delete(section.datasets, id)
				continue
			}
			if dc.absPath, err = cockpit.ConvertToAbsolute(dc.Path, configDir); err != nil {
				return fmt.Errorf("error converting %s.datasets.%s.path to absolute path: %q", section.name, id, dc.Path)
			}
			if dc.Descriptions != "" {
				if dc.absDescriptions, err = cockpit.ConvertToAbsolute(dc.Descriptions, configDir); err != nil {
					return fmt.Errorf("error converting %s.datasets.%s.descriptions to absolute path: %q",
						section.name, id, dc.Descriptions)
				}
			}
		}
	}
	return nil
}

// readConfig decodes a TOML configuration file.
func readConfig(filename string) (*tomlConfig, error) {
	if filename == "" {
		return nil, fmt.Errorf("no server TOML configuration file provided")
	}
	absPath, err := filepath.Abs(filename)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(absPath); err != nil {
		return nil, fmt.Errorf("could not read TOML config: %v", err)
	}
	var c tomlConfig
	if _, err := toml.DecodeFile(absPath, &c); err != nil {
		return nil, fmt.Errorf("could not decode TOML config: %v", err)
	}
	if err := c.convertPathsToAbsolute(absPath); err != nil {
		return nil, fmt.Errorf("could not convert relative paths to absolute paths in TOML config: %v", err)
	}
	if c.Logging.Level != "" {
		if _, err := cockpit.ParseLogMode(c.Logging.Level); err != nil {
			return nil, fmt.Errorf("bad [logging] section: %v", err)
		}
	}
	c.setDefaults(filepath.Dir(absPath))
	return &c, nil
}

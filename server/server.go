package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brain-cockpit/cockpit/cockpit"
	"github.com/brain-cockpit/cockpit/dataset"
	"github.com/brain-cockpit/cockpit/storage"

	"github.com/blang/semver"
	"github.com/dustin/go-humanize"
	"github.com/zenazn/goji/web"
	"golang.org/x/net/netutil"
)

// ErrServerClosed is returned by Reload after Shutdown.
var ErrServerClosed = errors.New("server is shut down")

// Version of the cockpit server.
var Version = semver.MustParse("0.4.0")

const (
	// WebAPIPath is the base path of all HTTP API routes.
	WebAPIPath = "/api/"

	// StorageEngine is the engine of the persistent load cache.
	StorageEngine = "badger"
)

// Server owns everything a running cockpit needs: its configuration, the
// dataset loader and load cache, the registry of loaded datasets and the
// HTTP routes.  Several servers with distinct configurations can coexist.
type Server struct {
	config     tomlConfig
	configPath string

	loader    *dataset.Loader
	db        storage.KeyValueDB
	responses *responseCache

	registry atomic.Pointer[Registry]

	// reloadMu serializes reloads with each other and with closing the
	// load cache.
	reloadMu sync.Mutex

	mux     *web.Mux
	started time.Time

	// mu guards httpServer and closed.
	mu         sync.Mutex
	httpServer *http.Server
	closed     bool

	// number of requests currently handled
	activeRequests int64
}

// New returns a server configured by a TOML file.  A non-empty httpAddress
// overrides the [server] setting.  No dataset is loaded before Initialize.
func New(configPath, httpAddress string) (*Server, error) {
	c, err := readConfig(configPath)
	if err != nil {
		return nil, err
	}
	if httpAddress != "" {
		c.Server.HTTPAddress = httpAddress
	}
	absPath, _ := filepath.Abs(configPath)
	cockpit.Debugf("tomlConfig: %v\n", *c)
	return &Server{config: *c, configPath: absPath}, nil
}

// LogConfig returns the [logging] section of the configuration.
func (s *Server) LogConfig() *cockpit.LogConfig {
	return &s.config.Logging
}

// ConfigLocation returns the absolute path of the configuration file.
func (s *Server) ConfigLocation() string {
	return s.configPath
}

// HTTPAddress returns the address the server listens on.
func (s *Server) HTTPAddress() string {
	return s.config.Server.HTTPAddress
}

// Initialize opens the load cache given by the configuration and loads
// every dataset.
func (s *Server) Initialize(ctx context.Context) error {
	s.started = time.Now()
	c := &s.config
	if c.Server.CacheFolder != "" {
		db, created, err := storage.Open(storage.Config{Engine: StorageEngine, Path: c.Server.CacheFolder})
		if err != nil {
			return fmt.Errorf("can't open load cache in %q: %v", c.Server.CacheFolder, err)
		}
		if created {
			cockpit.Infof("Created load cache %s\n", db)
		} else {
			cockpit.Infof("Opened load cache %s\n", db)
		}
		s.db = db
	} else {
		cockpit.Infof("No cache_folder given: loads are not persisted.\n")
	}
	s.loader = dataset.NewLoader(dataset.LoaderConfig{
		DataRoot: c.Server.DataRoot,
		Workers:  c.Server.Workers,
		DB:       s.db,
	})
	s.responses = newResponseCache(c.Cache.Responses*cockpit.Mega, DefaultLargeResponses)
	cockpit.Infof("Reserved %s for mean responses.\n", humanize.IBytes(uint64(c.Cache.Responses*cockpit.Mega)))
	s.initRoutes()

	reg, err := buildRegistry(ctx, c, s.loader)
	if err != nil {
		return err
	}
	s.registry.Store(reg)
	return nil
}

// Registry returns the registry in service, or nil before Initialize.
func (s *Server) Registry() *Registry {
	return s.registry.Load()
}

// Reload re-reads the dataset sections of the configuration file, loads
// every dataset, then replaces the registry in service.  Requests keep
// being answered from the previous registry until the swap.
func (s *Server) Reload(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()
	if s.isClosed() {
		return ErrServerClosed
	}

	c := s.config
	fresh, err := readConfig(s.configPath)
	if err != nil {
		return fmt.Errorf("reload aborted: %v", err)
	}
	c.Features = fresh.Features
	c.Surfaces = fresh.Surfaces
	c.Alignments = fresh.Alignments

	reg, err := buildRegistry(ctx, &c, s.loader)
	if err != nil {
		return err
	}
	s.registry.Store(reg)
	return nil
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Serve listens on the configured address until Shutdown is called.  The
// number of connections handled at once is bounded by max_connections.
// Serve returns nil right away if Shutdown was already called.
func (s *Server) Serve() error {
	address := s.config.Server.HTTPAddress
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	listener, err := net.Listen("tcp", address)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	listener = netutil.LimitListener(listener, s.config.Server.MaxConnections)
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       time.Hour,
	}
	s.httpServer = srv
	s.mu.Unlock()

	cockpit.Infof("Web server listening at %s (up to %d connections)...\n", address, s.config.Server.MaxConnections)
	if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the web server and closes the load cache once any reload
// in progress is done.  Calls after the first one do nothing.
func (s *Server) Shutdown(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	srv := s.httpServer
	s.httpServer = nil
	s.mu.Unlock()

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			cockpit.Errorf("Web server shutdown: %v\n", err)
		}
	}

	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()
	if s.db != nil {
		s.db.Close()
		s.db = nil
	}
	cockpit.Infof("Server shut down after %s.\n", time.Since(s.started))
}

// ServeHTTP handles one HTTP request with the server's routes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ServerInfo describes the running server.
type ServerInfo struct {
	Version        string   `json:"version"`
	Note           string   `json:"note,omitempty"`
	Started        string   `json:"started"`
	Uptime         string   `json:"uptime"`
	Loaded         string   `json:"loaded"`
	Datasets       []string `json:"datasets"`
	Alignments     []string `json:"alignments"`
	Engines        []string `json:"storage_engines"`
	LoadCache      string   `json:"load_cache,omitempty"`
	CacheGets      uint64   `json:"cache_gets"`
	CachePuts      uint64   `json:"cache_puts"`
	CacheRead      string   `json:"cache_bytes_read"`
	CacheWritten   string   `json:"cache_bytes_written"`
	ResponseHits   int64    `json:"response_cache_hits"`
	ResponseMisses int64    `json:"response_cache_misses"`
	ActiveRequests int64    `json:"active_requests"`
	Goroutines     int      `json:"goroutines"`
	Cores          int      `json:"cores"`
}

// About returns information on the running server.
func (s *Server) About() ServerInfo {
	info := ServerInfo{
		Version:        Version.String(),
		Note:           s.config.Server.Note,
		Started:        s.started.Format(time.RFC3339),
		Uptime:         humanize.RelTime(s.started, time.Now(), "", ""),
		Datasets:       []string{},
		Alignments:     []string{},
		Engines:        storage.EnginesAvailable(),
		ActiveRequests: atomic.LoadInt64(&s.activeRequests),
		Goroutines:     runtime.NumGoroutine(),
		Cores:          runtime.NumCPU(),
	}
	if reg := s.Registry(); reg != nil {
		info.Loaded = humanize.Time(reg.Created)
		for _, id := range sortedIDs(reg.config.features()) {
			if _, found := reg.Features[id]; found {
				info.Datasets = append(info.Datasets, id)
			}
		}
		for _, id := range sortedIDs(reg.config.Alignments.Datasets) {
			if _, found := reg.Alignments[id]; found {
				info.Alignments = append(info.Alignments, id)
			}
		}
	}
	if s.db != nil {
		info.LoadCache = s.db.String()
	}
	stats := storage.GetStats()
	info.CacheGets = stats.Gets
	info.CachePuts = stats.Puts
	info.CacheRead = humanize.IBytes(stats.BytesRead)
	info.CacheWritten = humanize.IBytes(stats.BytesWritten)
	if s.responses != nil {
		info.ResponseHits, info.ResponseMisses = s.responses.counts()
	}
	return info
}

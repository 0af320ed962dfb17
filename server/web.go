package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/brain-cockpit/cockpit/cockpit"
	"github.com/brain-cockpit/cockpit/dataset"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"github.com/zenazn/goji/web"
	"github.com/zenazn/goji/web/middleware"
	"github.com/zenazn/goji/web/mutil"
)

// initRoutes builds the HTTP routes.  All routes live under WebAPIPath.
func (s *Server) initRoutes() {
	mux := web.New()
	mux.Use(middleware.RequestID)
	mux.Use(s.logRequest)
	mux.Use(middleware.Recoverer)
	mux.Use(corsHandler(s.config.Server.CorsOrigins))
	mux.Use(func(h http.Handler) http.Handler { return gzhttp.GzipHandler(h) })

	mux.Get("/api/config", s.configHandler)
	mux.Get("/api/interface", s.interfaceHandler)
	mux.Get("/api/server/info", s.serverInfoHandler)
	mux.Post("/api/server/reload", s.serverReloadHandler)

	mux.Get("/api/datasets/:dataset/info", s.withFeatures(s.infoHandler))
	mux.Get("/api/datasets/:dataset/subjects", s.withFeatures(s.subjectsHandler))
	mux.Get("/api/datasets/:dataset/contrast_labels", s.withFeatures(s.contrastLabelsHandler))
	mux.Get("/api/datasets/:dataset/descriptions", s.withFeatures(s.descriptionsHandler))
	mux.Get("/api/datasets/:dataset/mesh_url", s.withFeatures(s.meshURLHandler))
	mux.Get("/api/datasets/:dataset/mesh/*", s.withFeatures(s.meshFileHandler))
	mux.Get("/api/datasets/:dataset/voxel_fingerprint", s.withFeatures(s.fingerprintHandler))
	mux.Get("/api/datasets/:dataset/voxel_fingerprint_mean", s.withFeatures(s.fingerprintMeanHandler))
	mux.Get("/api/datasets/:dataset/contrast", s.withFeatures(s.contrastHandler))
	mux.Get("/api/datasets/:dataset/contrast_mean", s.withFeatures(s.contrastMeanHandler))

	mux.Get("/api/alignments/:dataset/models", s.withAlignment(s.modelsHandler))
	mux.Get("/api/alignments/:dataset/single_voxel", s.withAlignment(s.singleVoxelHandler))
	mux.Get("/api/alignments/:dataset/:model/info", s.withAlignment(s.modelInfoHandler))
	mux.Get("/api/alignments/:dataset/:model/mesh/*", s.withAlignment(s.modelMeshHandler))

	mux.NotFound(func(w http.ResponseWriter, r *http.Request) {
		errorJSON(w, http.StatusNotFound, "no route for %s %s", r.Method, r.URL.Path)
	})
	s.mux = mux
}

func corsHandler(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost},
	})
	return c.Handler
}

// logRequest is middleware that logs every request with its status, size
// and duration.
func (s *Server) logRequest(c *web.C, h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&s.activeRequests, 1)
		defer atomic.AddInt64(&s.activeRequests, -1)

		start := time.Now()
		lw := mutil.WrapWriter(w)
		h.ServeHTTP(lw, r)
		status := lw.Status()
		if status == 0 {
			status = http.StatusOK
		}
		cockpit.Infof("[%s] %s %s -> %d (%s) in %s\n", middleware.GetReqID(*c), r.Method, r.URL,
			status, humanize.IBytes(uint64(lw.BytesWritten())), time.Since(start))
	}
	return http.HandlerFunc(fn)
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "unable to encode response: %v", err)
		return
	}
	writeBody(w, "application/json", data)
}

func writeBody(w http.ResponseWriter, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	if _, err := w.Write(data); err != nil {
		cockpit.Debugf("Unable to write response: %v\n", err)
	}
}

// errorJSON replies with an HTTP error status and a {"error": msg} body.
func errorJSON(w http.ResponseWriter, status int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	data, _ := json.Marshal(map[string]string{"error": msg})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

// badQuery answers a malformed query with an empty array.
func badQuery(w http.ResponseWriter, r *http.Request, err error) {
	cockpit.Warningf("Bad query %s: %v\n", r.URL, err)
	writeBody(w, "application/json", []byte("[]"))
}

// --- query arguments ---

func intArg(q url.Values, name string) (int, error) {
	s := q.Get(name)
	if s == "" {
		return 0, dataset.NewQueryError("no %s given", name)
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, dataset.NewQueryError("%s %q is not an integer", name, s)
	}
	return i, nil
}

func stringArg(q url.Values, name, def string) string {
	if s := q.Get(name); s != "" {
		return s
	}
	return def
}

func hemiArg(q url.Values, def cockpit.Hemisphere) (cockpit.Hemisphere, error) {
	s := q.Get("hemi")
	if s == "" {
		if def == "" {
			return "", dataset.NewQueryError("no hemi given")
		}
		return def, nil
	}
	hemi, err := cockpit.ParseHemisphere(s)
	if err != nil {
		return "", dataset.NewQueryError("%v", err)
	}
	return hemi, nil
}

const (
	formatJSON  = "json"
	formatArrow = "arrow"
)

func formatArg(q url.Values) (string, error) {
	switch f := stringArg(q, "format", formatJSON); f {
	case formatJSON, formatArrow:
		return f, nil
	default:
		return "", dataset.NewQueryError("unknown format %q", f)
	}
}

// encodeValues encodes a surface map in the requested format.  A missing
// map is always the JSON null.
func encodeValues(values dataset.Values, format string) (data []byte, contentType string, err error) {
	if format == formatArrow && values != nil {
		var buf bytes.Buffer
		if err := writeArrow(&buf, values); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), ArrowContentType, nil
	}
	data, err = json.Marshal(values)
	return data, "application/json", err
}

// --- server routes ---

func (s *Server) interfaceHandler(w http.ResponseWriter, r *http.Request) {
	writeBody(w, "application/raml+yaml", []byte(ramlInterface))
}

func (s *Server) serverInfoHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.About())
}

func (s *Server) serverReloadHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.Reload(context.Background()); err != nil {
		errorJSON(w, http.StatusInternalServerError, "%v", err)
		return
	}
	reg := s.Registry()
	writeJSON(w, map[string]interface{}{
		"result":     "reloaded",
		"datasets":   len(reg.Features),
		"alignments": len(reg.Alignments),
	})
}

type configDataset struct {
	*DatasetConfig
	Loaded   bool     `json:"loaded"`
	Subjects []string `json:"subjects,omitempty"`
	Meshes   []string `json:"meshes,omitempty"`
	Sides    []string `json:"sides,omitempty"`
	NumFiles int      `json:"n_files"`
}

type configSection struct {
	Datasets map[string]configDataset `json:"datasets"`
}

// configHandler returns the configuration in service, without the load cache
// location, completed with what was loaded for every dataset.
func (s *Server) configHandler(w http.ResponseWriter, r *http.Request) {
	reg := s.Registry()
	if reg == nil {
		errorJSON(w, http.StatusServiceUnavailable, "server not initialized")
		return
	}
	features := configSection{Datasets: make(map[string]configDataset)}
	for id, dc := range reg.config.features() {
		out := configDataset{DatasetConfig: dc}
		if d, found := reg.Features[id]; found {
			md := d.Metadata()
			out.Loaded = true
			out.Subjects = md.Subjects
			out.Meshes = md.Meshes
			out.Sides = md.Hemispheres()
			out.NumFiles = md.NumFiles()
		}
		features.Datasets[id] = out
	}
	alignments := configSection{Datasets: make(map[string]configDataset)}
	for id, dc := range reg.config.Alignments.Datasets {
		out := configDataset{DatasetConfig: dc}
		if d, found := reg.Alignments[id]; found {
			out.Loaded = true
			out.NumFiles = len(d.Models())
		}
		alignments.Datasets[id] = out
	}
	writeJSON(w, map[string]interface{}{
		"server":     reg.config.Server,
		"features":   features,
		"alignments": alignments,
	})
}

// serveMesh serves a file named relative to dir, or an absolute file if
// unsafe file sharing is allowed.
func (s *Server) serveMesh(w http.ResponseWriter, r *http.Request, dir, name string) {
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		errorJSON(w, http.StatusNotFound, "no mesh file given")
		return
	}
	local := filepath.Join(dir, filepath.FromSlash(name))
	if cockpit.WithinDir(local, dir) && cockpit.FileExists(local) {
		http.ServeFile(w, r, local)
		return
	}
	if s.config.Server.AllowUnsafeFileSharing {
		abs := filepath.Join("/", filepath.FromSlash(name))
		if cockpit.FileExists(abs) {
			http.ServeFile(w, r, abs)
			return
		}
	}
	errorJSON(w, http.StatusNotFound, "no mesh file %q", name)
}

func isQueryError(err error) bool {
	var qerr *dataset.QueryError
	return errors.As(err, &qerr)
}

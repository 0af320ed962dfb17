package server

import (
	"net/http"
	"strconv"

	"github.com/brain-cockpit/cockpit/alignment"
	"github.com/brain-cockpit/cockpit/cockpit"
	"github.com/brain-cockpit/cockpit/dataset"

	"github.com/zenazn/goji/web"
)

type alignmentHandlerFunc func(d *AlignmentDataset, c web.C, w http.ResponseWriter, r *http.Request)

// withAlignment resolves the :dataset route parameter before calling fn.
func (s *Server) withAlignment(fn alignmentHandlerFunc) func(web.C, http.ResponseWriter, *http.Request) {
	return func(c web.C, w http.ResponseWriter, r *http.Request) {
		id := c.URLParams["dataset"]
		d, found := s.Registry().alignment(id)
		if !found {
			errorJSON(w, http.StatusNotFound, "no alignment dataset %q", id)
			return
		}
		fn(d, c, w, r)
	}
}

// routeModel resolves the :model route parameter, replying 404 if unknown.
func routeModel(d *AlignmentDataset, c web.C, w http.ResponseWriter) (int, bool) {
	s := c.URLParams["model"]
	id, err := strconv.Atoi(s)
	if err == nil {
		if _, found := d.Model(id); found {
			return id, true
		}
	}
	errorJSON(w, http.StatusNotFound, "no model %q in alignment dataset %q", s, d.ID)
	return 0, false
}

func (s *Server) modelsHandler(d *AlignmentDataset, c web.C, w http.ResponseWriter, r *http.Request) {
	writeJSON(w, d.Models())
}

func (s *Server) modelInfoHandler(d *AlignmentDataset, c web.C, w http.ResponseWriter, r *http.Request) {
	id, ok := routeModel(d, c, w)
	if !ok {
		return
	}
	info, _ := d.Info(id)
	writeJSON(w, info)
}

func (s *Server) modelMeshHandler(d *AlignmentDataset, c web.C, w http.ResponseWriter, r *http.Request) {
	if _, ok := routeModel(d, c, w); !ok {
		return
	}
	s.serveMesh(w, r, d.Dir(), c.URLParams["*"])
}

func (s *Server) singleVoxelHandler(d *AlignmentDataset, c web.C, w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, err := intArg(q, "model_id")
	if err != nil {
		badQuery(w, r, err)
		return
	}
	if _, found := d.Model(id); !found {
		errorJSON(w, http.StatusNotFound, "no model %d in alignment dataset %q", id, d.ID)
		return
	}
	voxel, err := intArg(q, "voxel")
	if err != nil {
		badQuery(w, r, err)
		return
	}
	role, err := alignment.ParseRole(q.Get("role"))
	if err != nil {
		badQuery(w, r, dataset.NewQueryError("%v", err))
		return
	}
	values, err := d.Project(id, voxel, role)
	if err != nil {
		if !isQueryError(err) {
			cockpit.Errorf("Alignment model %d of %q: %v\n", id, d.ID, err)
			writeBody(w, "application/json", []byte("[]"))
			return
		}
		badQuery(w, r, err)
		return
	}
	writeJSON(w, values)
}

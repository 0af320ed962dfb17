package server

import (
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/brain-cockpit/cockpit/cockpit"
	"github.com/brain-cockpit/cockpit/dataset"

	"github.com/zenazn/goji/web"
)

type featuresHandlerFunc func(d *FeaturesDataset, c web.C, w http.ResponseWriter, r *http.Request)

// withFeatures resolves the :dataset route parameter before calling fn.
func (s *Server) withFeatures(fn featuresHandlerFunc) func(web.C, http.ResponseWriter, *http.Request) {
	return func(c web.C, w http.ResponseWriter, r *http.Request) {
		id := c.URLParams["dataset"]
		d, found := s.Registry().feature(id)
		if !found {
			errorJSON(w, http.StatusNotFound, "no dataset %q", id)
			return
		}
		fn(d, c, w, r)
	}
}

type datasetInfo struct {
	Subjects       []string               `json:"subjects"`
	MeshSupports   []string               `json:"mesh_supports"`
	Hemispheres    []string               `json:"hemispheres"`
	TasksContrasts []dataset.TaskContrast `json:"tasks_contrasts"`
	NumFiles       int                    `json:"n_files"`
	Unit           *string                `json:"unit"`
	MeshTypes      []string               `json:"mesh_types,omitempty"`
}

func (s *Server) infoHandler(d *FeaturesDataset, c web.C, w http.ResponseWriter, r *http.Request) {
	md := d.Metadata()
	info := datasetInfo{
		Subjects:       md.Subjects,
		MeshSupports:   md.Meshes,
		Hemispheres:    md.Hemispheres(),
		TasksContrasts: md.TasksContrasts,
		NumFiles:       md.NumFiles(),
		MeshTypes:      d.Config.MeshTypes.Names(),
	}
	if d.Config.Unit != "" {
		unit := d.Config.Unit
		info.Unit = &unit
	}
	writeJSON(w, info)
}

func (s *Server) subjectsHandler(d *FeaturesDataset, c web.C, w http.ResponseWriter, r *http.Request) {
	writeJSON(w, d.Metadata().Subjects)
}

func (s *Server) contrastLabelsHandler(d *FeaturesDataset, c web.C, w http.ResponseWriter, r *http.Request) {
	writeJSON(w, d.Metadata().TasksContrasts)
}

func (s *Server) descriptionsHandler(d *FeaturesDataset, c web.C, w http.ResponseWriter, r *http.Request) {
	if d.Descriptions == nil {
		errorJSON(w, http.StatusNotFound, "dataset %q has no descriptions", d.ID)
		return
	}
	writeBody(w, "application/json", d.Descriptions)
}

// meshURLHandler returns the glTF mesh of a subject's hemisphere, of the
// requested mesh type.
func (s *Server) meshURLHandler(d *FeaturesDataset, c web.C, w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	si, err := intArg(q, "subject")
	if err != nil {
		badQuery(w, r, err)
		return
	}
	hemi, err := hemiArg(q, "")
	if err == nil && !hemi.Single() {
		err = dataset.NewQueryError("mesh files are per hemisphere, got %q", hemi)
	}
	if err != nil {
		badQuery(w, r, err)
		return
	}
	md := d.Metadata()
	subject, ok := md.Subject(si)
	if !ok {
		badQuery(w, r, dataset.NewQueryError("subject index %d out of range", si))
		return
	}
	mesh := stringArg(q, "meshSupport", DefaultMesh)
	path, found := md.MeshPath(mesh, subject, hemi)
	if !found {
		writeJSON(w, nil)
		return
	}
	meshURL := cockpit.ReplaceExt(path, ".gltf")
	meshType := q.Get("meshType")
	if mt := d.Config.MeshTypes; mt != nil && mt.Default != "" && meshType != "" {
		dir, base := filepath.Split(meshURL)
		meshURL = dir + strings.ReplaceAll(base, mt.Default, meshType)
	}
	writeJSON(w, meshURL)
}

func (s *Server) meshFileHandler(d *FeaturesDataset, c web.C, w http.ResponseWriter, r *http.Request) {
	s.serveMesh(w, r, d.Description.Dir(), c.URLParams["*"])
}

func (s *Server) fingerprintHandler(d *FeaturesDataset, c web.C, w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mesh := stringArg(q, "mesh", DefaultMesh)
	si, err := intArg(q, "subject_index")
	if err != nil {
		badQuery(w, r, err)
		return
	}
	voxel, err := intArg(q, "voxel_index")
	if err != nil {
		badQuery(w, r, err)
		return
	}
	hemi, err := hemiArg(q, "")
	if err != nil {
		badQuery(w, r, err)
		return
	}
	subject, ok := d.Metadata().Subject(si)
	if !ok {
		badQuery(w, r, dataset.NewQueryError("subject index %d out of range", si))
		return
	}
	values, err := d.Fingerprint(mesh, subject, voxel, hemi)
	if err != nil {
		badQuery(w, r, err)
		return
	}
	writeJSON(w, values)
}

func (s *Server) fingerprintMeanHandler(d *FeaturesDataset, c web.C, w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mesh := stringArg(q, "mesh", DefaultMesh)
	voxel, err := intArg(q, "voxel_index")
	if err != nil {
		badQuery(w, r, err)
		return
	}
	hemi, err := hemiArg(q, "")
	if err != nil {
		badQuery(w, r, err)
		return
	}
	key := responseKey(d, "voxel_fingerprint_mean", mesh, strconv.Itoa(voxel), hemi.String())
	if data, found := s.responses.get(key); found {
		writeBody(w, "application/json", data)
		return
	}
	values, err := d.FingerprintMean(mesh, voxel, hemi)
	if err != nil {
		badQuery(w, r, err)
		return
	}
	data, _, err := encodeValues(values, formatJSON)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "unable to encode fingerprint: %v", err)
		return
	}
	s.responses.set(key, data)
	writeBody(w, "application/json", data)
}

func (s *Server) contrastHandler(d *FeaturesDataset, c web.C, w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mesh := stringArg(q, "mesh", DefaultMesh)
	si, err := intArg(q, "subject_index")
	if err != nil {
		badQuery(w, r, err)
		return
	}
	ci, err := intArg(q, "contrast_index")
	if err != nil {
		badQuery(w, r, err)
		return
	}
	hemi, err := hemiArg(q, cockpit.Left)
	if err != nil {
		badQuery(w, r, err)
		return
	}
	format, err := formatArg(q)
	if err != nil {
		badQuery(w, r, err)
		return
	}
	md := d.Metadata()
	subject, ok := md.Subject(si)
	if !ok {
		badQuery(w, r, dataset.NewQueryError("subject index %d out of range", si))
		return
	}
	tc, ok := md.TaskContrast(ci)
	if !ok {
		badQuery(w, r, dataset.NewQueryError("contrast index %d out of range", ci))
		return
	}
	values, err := d.ContrastMap(mesh, subject, tc.Task, tc.Contrast, hemi)
	if err != nil {
		badQuery(w, r, err)
		return
	}
	data, contentType, err := encodeValues(values, format)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "unable to encode contrast map: %v", err)
		return
	}
	writeBody(w, contentType, data)
}

func (s *Server) contrastMeanHandler(d *FeaturesDataset, c web.C, w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mesh := stringArg(q, "mesh", DefaultMesh)
	ci, err := intArg(q, "contrast_index")
	if err != nil {
		badQuery(w, r, err)
		return
	}
	hemi, err := hemiArg(q, cockpit.Left)
	if err != nil {
		badQuery(w, r, err)
		return
	}
	format, err := formatArg(q)
	if err != nil {
		badQuery(w, r, err)
		return
	}
	tc, ok := d.Metadata().TaskContrast(ci)
	if !ok {
		badQuery(w, r, dataset.NewQueryError("contrast index %d out of range", ci))
		return
	}
	key := responseKey(d, "contrast_mean", mesh, strconv.Itoa(ci), hemi.String(), format)
	contentType := "application/json"
	if format == formatArrow {
		contentType = ArrowContentType
	}
	if data, found := s.responses.get(key); found {
		writeBody(w, contentType, data)
		return
	}
	values, err := d.ContrastMapMean(mesh, tc.Task, tc.Contrast, hemi)
	if err != nil {
		badQuery(w, r, err)
		return
	}
	data, contentType, err := encodeValues(values, format)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "unable to encode contrast mean: %v", err)
		return
	}
	s.responses.set(key, data)
	writeBody(w, contentType, data)
}

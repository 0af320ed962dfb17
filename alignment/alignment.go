/*
	Package alignment serves alignment datasets: lists of models, each a sparse
	coupling between the vertices of a source and a target mesh, that project a
	single voxel of one mesh onto the other.
*/
package alignment

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/brain-cockpit/cockpit/cockpit"
	"github.com/brain-cockpit/cockpit/dataset"
	"github.com/brain-cockpit/cockpit/surface"

	"golang.org/x/sync/errgroup"
)

var requiredColumns = []string{"name", "source_subject", "target_subject", "source_mesh", "target_mesh", "alignment"}

// Model is one row of an alignment description.
type Model struct {
	Name          string
	SourceSubject string
	TargetSubject string
	SourceMesh    string
	TargetMesh    string
	Alignment     string

	// Columns holds every column of the row, including the ones above.
	Columns map[string]string

	coupling *Coupling
	err      error
}

// Coupling returns the loaded coupling of the model, or the error met loading it.
func (m *Model) Coupling() (*Coupling, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.coupling == nil {
		return nil, fmt.Errorf("alignment %q is not loaded", m.Name)
	}
	return m.coupling, nil
}

// Config configures the loading of an alignment dataset.
type Config struct {
	// DataRoot is the last directory tried when resolving relative paths.
	DataRoot string

	// Workers is the number of couplings read concurrently.
	Workers int
}

// Dataset is a loaded alignment dataset.  It is immutable once read.
type Dataset struct {
	// Path is the absolute path of the description file.
	Path string

	models []*Model
}

// Dir returns the directory of the description file.
func (d *Dataset) Dir() string {
	return filepath.Dir(d.Path)
}

// Models returns the identifiers of all models, which are row indices.
func (d *Dataset) Models() []int {
	ids := make([]int, len(d.models))
	for i := range ids {
		ids[i] = i
	}
	return ids
}

// Model returns the model with the given identifier.
func (d *Dataset) Model(id int) (*Model, bool) {
	if id < 0 || id >= len(d.models) {
		return nil, false
	}
	return d.models[id], true
}

// Info returns every column of a model with the mesh files named as their
// glTF exports.
func (d *Dataset) Info(id int) (map[string]string, bool) {
	m, found := d.Model(id)
	if !found {
		return nil, false
	}
	info := make(map[string]string, len(m.Columns))
	for k, v := range m.Columns {
		info[k] = v
	}
	info["source_mesh"] = cockpit.ReplaceExt(m.SourceMesh, ".gltf")
	info["target_mesh"] = cockpit.ReplaceExt(m.TargetMesh, ".gltf")
	return info, true
}

// Project returns the coupling of one voxel through a model.  See
// Coupling.Project for the meaning of role.
func (d *Dataset) Project(id, voxel int, role Role) (dataset.Values, error) {
	m, found := d.Model(id)
	if !found {
		return nil, fmt.Errorf("no alignment model %d", id)
	}
	cp, err := m.Coupling()
	if err != nil {
		return nil, err
	}
	return cp.Project(voxel, role)
}

// NumLoaded returns the number of models whose coupling loaded.
func (d *Dataset) NumLoaded() int {
	var n int
	for _, m := range d.models {
		if m.err == nil && m.coupling != nil {
			n++
		}
	}
	return n
}

// Read reads an alignment description and eagerly loads every coupling.
// Models that fail to load are logged and kept, answering with their error.
func Read(ctx context.Context, path string, config Config) (*Dataset, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read alignment description: %v", err)
	}
	models, err := ParseModels(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("bad alignment description %q: %v", absPath, err)
	}
	d := &Dataset{Path: absPath, models: models}
	if err := d.load(ctx, config); err != nil {
		return nil, err
	}
	return d, nil
}

// ParseModels parses the CSV rows of an alignment description.
func ParseModels(r io.Reader) ([]*Model, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		header[i] = name
		col[name] = i
	}
	for _, name := range requiredColumns {
		if _, found := col[name]; !found {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}
	var models []*Model
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		m := &Model{Columns: make(map[string]string, len(header))}
		for i, name := range header {
			m.Columns[name] = record[i]
		}
		m.Name = m.Columns["name"]
		m.SourceSubject = m.Columns["source_subject"]
		m.TargetSubject = m.Columns["target_subject"]
		m.SourceMesh = m.Columns["source_mesh"]
		m.TargetMesh = m.Columns["target_mesh"]
		m.Alignment = m.Columns["alignment"]
		models = append(models, m)
	}
	return models, nil
}

func (d *Dataset) load(ctx context.Context, config Config) error {
	timedLog := cockpit.NewTimeLog()
	workers := config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, m := range d.models {
		i, m := i, m
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			m.coupling, m.err = d.loadModel(m, config.DataRoot)
			if m.err != nil {
				cockpit.Errorf("Alignment model %d (%s) of %s unusable: %v\n", i, m.Name, d.Path, m.err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	timedLog.Infof("Loaded %d of %d alignment models from %s", d.NumLoaded(), len(d.models), d.Path)
	return nil
}

func (d *Dataset) loadModel(m *Model, dataRoot string) (*Coupling, error) {
	resolve := func(what, path string) (string, error) {
		if p, ok := cockpit.ResolvePath(path, d.Dir(), dataRoot); ok {
			return p, nil
		}
		return "", fmt.Errorf("%s file %q not found", what, path)
	}
	var counts [2]int
	for i, mesh := range []string{m.SourceMesh, m.TargetMesh} {
		path, err := resolve("mesh", mesh)
		if err != nil {
			return nil, err
		}
		if counts[i], err = surface.VertexCount(path); err != nil {
			return nil, err
		}
	}
	path, err := resolve("alignment", m.Alignment)
	if err != nil {
		return nil, err
	}
	cp, err := ReadCoupling(path, counts[0], counts[1])
	if err != nil {
		return nil, err
	}
	if cp.NumSource != counts[0] || cp.NumTarget != counts[1] {
		return nil, fmt.Errorf("coupling %q is %d x %d, meshes have %d and %d vertices",
			path, cp.NumSource, cp.NumTarget, counts[0], counts[1])
	}
	cockpit.Debugf("Alignment %q: %d x %d coupling with %d weights\n", m.Name, cp.NumSource, cp.NumTarget, cp.NumEntries())
	return cp, nil
}

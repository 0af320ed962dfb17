package dataset

import (
	"fmt"
	"math"

	"github.com/brain-cockpit/cockpit/cockpit"
)

// IndividualMesh is the mesh support of subject-specific meshes, whose vertices
// don't correspond across subjects.
const IndividualMesh = "individual"

// QueryError reports a malformed query, as opposed to a valid query for data
// that is missing.
type QueryError struct {
	msg string
}

func (e *QueryError) Error() string {
	return e.msg
}

// NewQueryError returns a *QueryError with a formatted message.
func NewQueryError(format string, args ...interface{}) error {
	return &QueryError{fmt.Sprintf(format, args...)}
}

func badQuery(format string, args ...interface{}) error {
	return NewQueryError(format, args...)
}

// Resolver answers queries over one loaded dataset.  It only reads its store
// and metadata, so it is safe for concurrent use.
type Resolver struct {
	md    *Metadata
	store *Store
}

// NewResolver returns a resolver over a store built from md.
func NewResolver(md *Metadata, store *Store) *Resolver {
	return &Resolver{md: md, store: store}
}

// Metadata returns the metadata of the resolved dataset.
func (r *Resolver) Metadata() *Metadata {
	return r.md
}

// Store returns the store of the resolved dataset.
func (r *Resolver) Store() *Store {
	return r.store
}

func (r *Resolver) checkMesh(mesh string) error {
	if !r.md.HasMesh(mesh) {
		return badQuery("unknown mesh %q", mesh)
	}
	return nil
}

func (r *Resolver) checkSubject(subject string) error {
	for _, s := range r.md.Subjects {
		if s == subject {
			return nil
		}
	}
	return badQuery("unknown subject %q", subject)
}

func checkHemisphere(hemi cockpit.Hemisphere) error {
	switch hemi {
	case cockpit.Left, cockpit.Right, cockpit.Both:
		return nil
	}
	return badQuery("unknown hemisphere %q", hemi)
}

// ResolveVoxel translates a voxel index into a single hemisphere and an index
// local to it.  With hemisphere Both, indices at or past the left vertex
// count L of (mesh, subject) address the right hemisphere at voxel - L; an
// empty subject uses the count of the whole mesh.  The bool is false when
// no left hemisphere map is loaded to give L.
func (r *Resolver) ResolveVoxel(mesh, subject string, voxel int, hemi cockpit.Hemisphere) (cockpit.Hemisphere, int, bool) {
	if voxel < 0 {
		return "", 0, false
	}
	switch hemi {
	case cockpit.Left, cockpit.Right:
		return hemi, voxel, true
	case cockpit.Both:
		n, found := r.store.LeftVertexCount(mesh, subject)
		if !found {
			return "", 0, false
		}
		if voxel >= n {
			return cockpit.Right, voxel - n, true
		}
		return cockpit.Left, voxel, true
	}
	return "", 0, false
}

// valueAt returns the value of a map at a voxel, or NaN if the map is missing
// or too short.
func (r *Resolver) valueAt(k Key, voxel int) float32 {
	values, ok := r.store.Get(k)
	if !ok || voxel >= len(values) {
		return float32(math.NaN())
	}
	return values[voxel]
}

// Fingerprint returns the values of a voxel across all task/contrast pairs,
// in TasksContrasts order, with NaN for missing maps.  A nil result means the
// hemisphere of the voxel can't be resolved.
func (r *Resolver) Fingerprint(mesh, subject string, voxel int, hemi cockpit.Hemisphere) (Values, error) {
	if err := r.checkMesh(mesh); err != nil {
		return nil, err
	}
	if err := r.checkSubject(subject); err != nil {
		return nil, err
	}
	if err := checkHemisphere(hemi); err != nil {
		return nil, err
	}
	if voxel < 0 {
		return nil, badQuery("negative voxel index %d", voxel)
	}
	side, local, ok := r.ResolveVoxel(mesh, subject, voxel, hemi)
	if !ok {
		return nil, nil
	}
	fingerprint := make(Values, len(r.md.TasksContrasts))
	for i, tc := range r.md.TasksContrasts {
		fingerprint[i] = r.valueAt(Key{mesh, subject, tc.Task, tc.Contrast, side}, local)
	}
	return fingerprint, nil
}

// FingerprintMean returns for every task/contrast pair the mean value of a
// voxel across the subjects having data there.  Entries without any data are
// NaN.  Meshes of the individual support give an empty result.
func (r *Resolver) FingerprintMean(mesh string, voxel int, hemi cockpit.Hemisphere) (Values, error) {
	if mesh == IndividualMesh {
		return Values{}, nil
	}
	if err := r.checkMesh(mesh); err != nil {
		return nil, err
	}
	if err := checkHemisphere(hemi); err != nil {
		return nil, err
	}
	if voxel < 0 {
		return nil, badQuery("negative voxel index %d", voxel)
	}
	side, local, ok := r.ResolveVoxel(mesh, "", voxel, hemi)
	if !ok {
		return nil, nil
	}
	mean := make(Values, len(r.md.TasksContrasts))
	samples := make([]float64, 0, len(r.md.Subjects))
	for i, tc := range r.md.TasksContrasts {
		samples = samples[:0]
		for _, subject := range r.md.Subjects {
			samples = append(samples, float64(r.valueAt(Key{mesh, subject, tc.Task, tc.Contrast, side}, local)))
		}
		mean[i] = float32(nanMean(samples))
	}
	return mean, nil
}

// ContrastMap returns a full map.  With hemisphere Both, left and right maps
// are concatenated in that order.  A nil result means the map, or one of its
// halves, is missing.
func (r *Resolver) ContrastMap(mesh, subject, task, contrast string, hemi cockpit.Hemisphere) (Values, error) {
	if err := r.checkMesh(mesh); err != nil {
		return nil, err
	}
	if err := r.checkSubject(subject); err != nil {
		return nil, err
	}
	if err := checkHemisphere(hemi); err != nil {
		return nil, err
	}
	if !r.store.Has(Key{mesh, subject, task, contrast, cockpit.Left}) {
		return nil, badQuery("unknown task/contrast %s/%s", task, contrast)
	}
	return r.contrastMap(mesh, subject, task, contrast, hemi), nil
}

func (r *Resolver) contrastMap(mesh, subject, task, contrast string, hemi cockpit.Hemisphere) Values {
	if hemi.Single() {
		values, ok := r.store.Get(Key{mesh, subject, task, contrast, hemi})
		if !ok {
			return nil
		}
		return Values(values)
	}
	left, okLeft := r.store.Get(Key{mesh, subject, task, contrast, cockpit.Left})
	right, okRight := r.store.Get(Key{mesh, subject, task, contrast, cockpit.Right})
	if !okLeft || !okRight {
		return nil
	}
	both := make(Values, 0, len(left)+len(right))
	both = append(both, left...)
	return append(both, right...)
}

// ContrastMapMean returns the vertex-wise mean of a contrast map across the
// subjects having it.  Subjects whose map length differs from the most common
// one are left out, ties going to the length seen first.  The result is empty
// if no subject has the map, or for meshes of the individual support.
func (r *Resolver) ContrastMapMean(mesh, task, contrast string, hemi cockpit.Hemisphere) (Values, error) {
	if mesh == IndividualMesh {
		return Values{}, nil
	}
	if err := r.checkMesh(mesh); err != nil {
		return nil, err
	}
	if err := checkHemisphere(hemi); err != nil {
		return nil, err
	}
	if len(r.md.Subjects) != 0 && !r.store.Has(Key{mesh, r.md.Subjects[0], task, contrast, cockpit.Left}) {
		return nil, badQuery("unknown task/contrast %s/%s", task, contrast)
	}
	var maps []Values
	var subjects []string
	for _, subject := range r.md.Subjects {
		if m := r.contrastMap(mesh, subject, task, contrast, hemi); m != nil {
			maps = append(maps, m)
			subjects = append(subjects, subject)
		}
	}
	n := commonLength(maps)
	kept := maps[:0]
	for i, m := range maps {
		if len(m) != n {
			cockpit.Warningf("Leaving %s map of subject %q for %s/%s out of mean: %d vertices, expected %d\n",
				hemi, subjects[i], task, contrast, len(m), n)
			continue
		}
		kept = append(kept, m)
	}
	return meanMaps(kept), nil
}

// commonLength returns the most frequent length of maps.  Among equally
// frequent lengths, the one appearing first wins.
func commonLength(maps []Values) int {
	counts := make(map[int]int, 2)
	for _, m := range maps {
		counts[len(m)]++
	}
	best, bestCount := 0, 0
	for _, m := range maps {
		if c := counts[len(m)]; c > bestCount {
			best, bestCount = len(m), c
		}
	}
	return best
}

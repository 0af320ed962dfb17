package dataset

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/brain-cockpit/cockpit/cockpit"
)

// TaskContrast names one contrast of one task.  It encodes to JSON as a
// [task, contrast] pair.
type TaskContrast struct {
	Task     string
	Contrast string
}

func (tc TaskContrast) String() string {
	return tc.Task + "/" + tc.Contrast
}

// MarshalJSON implements json.Marshaler.
func (tc TaskContrast) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{tc.Task, tc.Contrast})
}

// UnmarshalJSON implements json.Unmarshaler.
func (tc *TaskContrast) UnmarshalJSON(b []byte) error {
	var pair [2]string
	if err := json.Unmarshal(b, &pair); err != nil {
		return fmt.Errorf("task contrast must be a [task, contrast] pair: %v", err)
	}
	tc.Task, tc.Contrast = pair[0], pair[1]
	return nil
}

// Metadata holds the distinct values of a dataset description and the path
// of the authoritative row for every described surface map.
type Metadata struct {
	// Meshes, Subjects and Sides are distinct column values in order of
	// first occurrence.
	Meshes   []string
	Subjects []string
	Sides    []string

	// TasksContrasts are the distinct (task, contrast) pairs sorted by task
	// then contrast.  Contrast indices used in queries point into this slice.
	TasksContrasts []TaskContrast

	paths     map[Key]string
	meshPaths map[Key]string
	numFiles  int
}

// ParseMetadata derives the distinct meshes, subjects, task/contrast pairs and
// sides of a description, and its path lookup.  When several rows describe
// the same map, the last one in file order wins, or the last one in session
// order if the description has a session column.
func ParseMetadata(desc *Description) *Metadata {
	md := &Metadata{
		Meshes:         []string{},
		Subjects:       []string{},
		Sides:          []string{},
		TasksContrasts: []TaskContrast{},
		paths:          make(map[Key]string),
		meshPaths:      make(map[Key]string),
	}
	if desc == nil {
		return md
	}
	md.numFiles = len(desc.Rows)

	seenMesh := make(map[string]struct{})
	seenSubject := make(map[string]struct{})
	seenSide := make(map[string]struct{})
	seenTC := make(map[TaskContrast]struct{})
	for _, row := range desc.Rows {
		if _, found := seenMesh[row.Mesh]; !found {
			seenMesh[row.Mesh] = struct{}{}
			md.Meshes = append(md.Meshes, row.Mesh)
		}
		if _, found := seenSubject[row.Subject]; !found {
			seenSubject[row.Subject] = struct{}{}
			md.Subjects = append(md.Subjects, row.Subject)
		}
		if _, found := seenSide[row.Side]; !found {
			seenSide[row.Side] = struct{}{}
			md.Sides = append(md.Sides, row.Side)
		}
		tc := TaskContrast{row.Task, row.Contrast}
		if _, found := seenTC[tc]; !found {
			seenTC[tc] = struct{}{}
			md.TasksContrasts = append(md.TasksContrasts, tc)
		}
		if row.MeshPath != "" {
			if hemi, ok := cockpit.ParseSide(row.Side); ok {
				mk := Key{Mesh: row.Mesh, Subject: row.Subject, Side: hemi}
				if _, found := md.meshPaths[mk]; !found {
					md.meshPaths[mk] = row.MeshPath
				}
			}
		}
	}
	sort.Slice(md.TasksContrasts, func(i, j int) bool {
		a, b := md.TasksContrasts[i], md.TasksContrasts[j]
		if a.Task != b.Task {
			return a.Task < b.Task
		}
		return a.Contrast < b.Contrast
	})

	rows := desc.Rows
	if desc.HasSession {
		rows = make([]Row, len(desc.Rows))
		copy(rows, desc.Rows)
		sort.SliceStable(rows, func(i, j int) bool {
			return sessionLess(rows[i].Session, rows[j].Session)
		})
	}
	for _, row := range rows {
		hemi, ok := cockpit.ParseSide(row.Side)
		if !ok {
			cockpit.Warningf("Ignoring %s map of subject %q, task/contrast %s/%s with unknown side %q\n",
				row.Mesh, row.Subject, row.Task, row.Contrast, row.Side)
			continue
		}
		k := Key{Mesh: row.Mesh, Subject: row.Subject, Task: row.Task, Contrast: row.Contrast, Side: hemi}
		md.paths[k] = row.Path
	}
	return md
}

// sessionLess orders sessions numerically when both are numbers, else in
// natural order, so "ses-2" comes before "ses-10".
func sessionLess(a, b string) bool {
	x, errA := strconv.ParseFloat(strings.TrimSpace(a), 64)
	y, errB := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if errA == nil && errB == nil {
		return x < y
	}
	for a != "" && b != "" {
		da, db := digitPrefix(a), digitPrefix(b)
		if da > 0 && db > 0 {
			na := strings.TrimLeft(a[:da], "0")
			nb := strings.TrimLeft(b[:db], "0")
			if len(na) != len(nb) {
				return len(na) < len(nb)
			}
			if na != nb {
				return na < nb
			}
			if da != db {
				return da < db
			}
			a, b = a[da:], b[db:]
			continue
		}
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		a, b = a[1:], b[1:]
	}
	return len(a) < len(b)
}

func digitPrefix(s string) int {
	n := 0
	for n < len(s) && s[n] >= '0' && s[n] <= '9' {
		n++
	}
	return n
}

// Path returns the path of the surface file describing a map, as written in
// the description.
func (md *Metadata) Path(k Key) (string, bool) {
	p, found := md.paths[k]
	return p, found
}

// MeshPath returns the first mesh file listed for a (mesh, subject, hemisphere).
func (md *Metadata) MeshPath(mesh, subject string, hemi cockpit.Hemisphere) (string, bool) {
	p, found := md.meshPaths[Key{Mesh: mesh, Subject: subject, Side: hemi}]
	return p, found
}

// NumFiles returns the number of rows of the description.
func (md *Metadata) NumFiles() int {
	return md.numFiles
}

// Hemispheres returns the hemisphere names of the described sides, in order
// of first occurrence.  Unknown sides are skipped.
func (md *Metadata) Hemispheres() []string {
	hemis := []string{}
	seen := make(map[cockpit.Hemisphere]bool)
	for _, side := range md.Sides {
		hemi, ok := cockpit.ParseSide(side)
		if !ok || seen[hemi] {
			continue
		}
		seen[hemi] = true
		hemis = append(hemis, hemi.String())
	}
	return hemis
}

// HasMesh returns true if the mesh is described.
func (md *Metadata) HasMesh(mesh string) bool {
	for _, m := range md.Meshes {
		if m == mesh {
			return true
		}
	}
	return false
}

// Subject returns the subject at index i.
func (md *Metadata) Subject(i int) (string, bool) {
	if i < 0 || i >= len(md.Subjects) {
		return "", false
	}
	return md.Subjects[i], true
}

// TaskContrast returns the task/contrast pair at index i.
func (md *Metadata) TaskContrast(i int) (TaskContrast, bool) {
	if i < 0 || i >= len(md.TasksContrasts) {
		return TaskContrast{}, false
	}
	return md.TasksContrasts[i], true
}

// Keys returns every (mesh, subject, task, contrast, side) of the full grid
// in canonical order: meshes, subjects, sorted task/contrast pairs, then left
// and right.
func (md *Metadata) Keys() []Key {
	keys := make([]Key, 0, len(md.Meshes)*len(md.Subjects)*len(md.TasksContrasts)*len(cockpit.Hemispheres))
	for _, mesh := range md.Meshes {
		for _, subject := range md.Subjects {
			for _, tc := range md.TasksContrasts {
				for _, hemi := range cockpit.Hemispheres {
					keys = append(keys, Key{mesh, subject, tc.Task, tc.Contrast, hemi})
				}
			}
		}
	}
	return keys
}

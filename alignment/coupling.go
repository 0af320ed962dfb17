package alignment

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/brain-cockpit/cockpit/dataset"

	"github.com/klauspost/compress/gzip"
)

// Role tells which side of a coupling a voxel belongs to.
type Role string

const (
	// Source voxels are projected onto the source mesh through the target:
	// the voxel indexes the target mesh.
	Source Role = "source"
	// Target voxels index the source mesh and are projected onto the target mesh.
	Target Role = "target"
)

// ParseRole parses a request role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case Source, Target:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Coupling is a sparse transport plan between the vertices of a source and a
// target mesh, stored as coordinate triplets sorted by source then target.
type Coupling struct {
	NumSource int
	NumTarget int

	src    []int32
	tgt    []int32
	weight []float32

	rowStart []int     // entries of source i are rowStart[i]:rowStart[i+1]
	byTarget []int     // entry indices sorted by target
	colStart []int     // byTarget[colStart[j]:colStart[j+1]] are entries of target j
	rowSum   []float64 // total weight of each source vertex
	colSum   []float64 // total weight of each target vertex
}

// NumEntries returns the number of stored weights.
func (cp *Coupling) NumEntries() int {
	return len(cp.weight)
}

// NewCoupling builds a coupling from triplets.  Duplicate (source, target)
// pairs are summed.  Dimensions grow to fit the largest indices.
func NewCoupling(numSource, numTarget int, src, tgt []int32, weight []float32) (*Coupling, error) {
	if len(src) != len(tgt) || len(src) != len(weight) {
		return nil, fmt.Errorf("triplet columns have different lengths")
	}
	order := make([]int, len(src))
	for i := range order {
		order[i] = i
		if src[i] < 0 || tgt[i] < 0 {
			return nil, fmt.Errorf("negative vertex index in coupling entry %d", i)
		}
		if int(src[i]) >= numSource {
			numSource = int(src[i]) + 1
		}
		if int(tgt[i]) >= numTarget {
			numTarget = int(tgt[i]) + 1
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		i, j := order[a], order[b]
		if src[i] != src[j] {
			return src[i] < src[j]
		}
		return tgt[i] < tgt[j]
	})

	cp := &Coupling{NumSource: numSource, NumTarget: numTarget}
	for _, i := range order {
		n := len(cp.weight)
		if n > 0 && cp.src[n-1] == src[i] && cp.tgt[n-1] == tgt[i] {
			cp.weight[n-1] += weight[i]
			continue
		}
		cp.src = append(cp.src, src[i])
		cp.tgt = append(cp.tgt, tgt[i])
		cp.weight = append(cp.weight, weight[i])
	}

	cp.rowStart = make([]int, numSource+1)
	cp.colStart = make([]int, numTarget+1)
	cp.rowSum = make([]float64, numSource)
	cp.colSum = make([]float64, numTarget)
	for e := range cp.weight {
		cp.rowStart[cp.src[e]+1]++
		cp.colStart[cp.tgt[e]+1]++
		cp.rowSum[cp.src[e]] += float64(cp.weight[e])
		cp.colSum[cp.tgt[e]] += float64(cp.weight[e])
	}
	for i := 0; i < numSource; i++ {
		cp.rowStart[i+1] += cp.rowStart[i]
	}
	for j := 0; j < numTarget; j++ {
		cp.colStart[j+1] += cp.colStart[j]
	}
	cp.byTarget = make([]int, len(cp.weight))
	next := append([]int(nil), cp.colStart[:numTarget]...)
	for e := range cp.weight {
		j := cp.tgt[e]
		cp.byTarget[next[j]] = e
		next[j]++
	}
	return cp, nil
}

// Project returns the normalized coupling of one voxel.  For role Target,
// voxel is a source vertex and the result has one value per target vertex j:
// the weight of (voxel, j) over the total weight of j.  For role Source,
// voxel is a target vertex and the result has one value per source vertex i:
// the weight of (i, voxel) over the total weight of i.  Vertices without any
// weight get NaN.
func (cp *Coupling) Project(voxel int, role Role) (dataset.Values, error) {
	switch role {
	case Target:
		if voxel < 0 || voxel >= cp.NumSource {
			return nil, dataset.NewQueryError("source voxel %d out of range [0, %d)", voxel, cp.NumSource)
		}
		out := make([]float64, cp.NumTarget)
		for e := cp.rowStart[voxel]; e < cp.rowStart[voxel+1]; e++ {
			out[cp.tgt[e]] += float64(cp.weight[e])
		}
		return normalize(out, cp.colSum), nil
	case Source:
		if voxel < 0 || voxel >= cp.NumTarget {
			return nil, dataset.NewQueryError("target voxel %d out of range [0, %d)", voxel, cp.NumTarget)
		}
		out := make([]float64, cp.NumSource)
		for _, e := range cp.byTarget[cp.colStart[voxel]:cp.colStart[voxel+1]] {
			out[cp.src[e]] += float64(cp.weight[e])
		}
		return normalize(out, cp.rowSum), nil
	}
	return nil, dataset.NewQueryError("unknown role %q", role)
}

func normalize(out, sums []float64) dataset.Values {
	values := make(dataset.Values, len(out))
	for i, v := range out {
		if sums[i] == 0 {
			values[i] = float32(math.NaN())
			continue
		}
		values[i] = float32(v / sums[i])
	}
	return values
}

// ReadCoupling reads a coupling file of "source,target,weight" lines, with an
// optional header line, possibly gzip compressed.
func ReadCoupling(path string, numSource, numTarget int) (*Coupling, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	cp, err := readCoupling(f, numSource, numTarget)
	if err != nil {
		return nil, fmt.Errorf("bad coupling file %q: %v", path, err)
	}
	return cp, nil
}

func readCoupling(r io.Reader, numSource, numTarget int) (*Coupling, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err == nil && bytes.Equal(magic, []byte{0x1f, 0x8b}) {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return readCoupling(zr, numSource, numTarget)
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = 3
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true
	var src, tgt []int32
	var weight []float32
	for line := 1; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		s, errS := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 32)
		t, errT := strconv.ParseInt(strings.TrimSpace(record[1]), 10, 32)
		w, errW := strconv.ParseFloat(strings.TrimSpace(record[2]), 32)
		if errS != nil || errT != nil || errW != nil {
			if line == 1 {
				continue // header
			}
			return nil, fmt.Errorf("line %d: expected source,target,weight, got %v", line, record)
		}
		src = append(src, int32(s))
		tgt = append(tgt, int32(t))
		weight = append(weight, float32(w))
	}
	return NewCoupling(numSource, numTarget, src, tgt, weight)
}

/*
	Package surface reads per-vertex surface maps and mesh vertex counts from
	GIFTI (.gii, .gii.gz) and FreeSurfer morphometry (curv, thickness, sulc)
	files.  Only the shape of the data is interpreted: one float32 per vertex.
*/
package surface

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

// Intents used by GIFTI data arrays.
const (
	IntentNone     = "NIFTI_INTENT_NONE"
	IntentPointSet = "NIFTI_INTENT_POINTSET"
	IntentTriangle = "NIFTI_INTENT_TRIANGLE"
	IntentShape    = "NIFTI_INTENT_SHAPE"
)

// DataArray is one array of a surface file converted to float32.
type DataArray struct {
	Intent string
	Dims   []int
	Values []float32
}

// NumRows returns the size of the first dimension.
func (da DataArray) NumRows() int {
	if len(da.Dims) == 0 {
		return len(da.Values)
	}
	return da.Dims[0]
}

// Image is the content of a surface file.
type Image struct {
	Arrays []DataArray
}

// Map returns the per-vertex scalars of the first data array.
func (img *Image) Map() ([]float32, error) {
	if img == nil || len(img.Arrays) == 0 {
		return nil, fmt.Errorf("surface file holds no data array")
	}
	da := img.Arrays[0]
	if len(da.Dims) > 1 {
		for _, d := range da.Dims[1:] {
			if d != 1 {
				return nil, fmt.Errorf("first data array has shape %v, expected one value per vertex", da.Dims)
			}
		}
	}
	return da.Values, nil
}

// VertexCount returns the number of vertices of a mesh, taken from its point
// set array, or of a map, taken from its first array.
func (img *Image) VertexCount() (int, error) {
	if img == nil || len(img.Arrays) == 0 {
		return 0, fmt.Errorf("surface file holds no data array")
	}
	for _, da := range img.Arrays {
		if da.Intent == IntentPointSet {
			return da.NumRows(), nil
		}
	}
	return img.Arrays[0].NumRows(), nil
}

// Reader turns a surface file path into a 1-D array of per-vertex values.
type Reader interface {
	ReadMap(path string) ([]float32, error)
}

// FileReader reads surface files from the local filesystem, detecting
// the format from file contents rather than file names.
type FileReader struct{}

// ReadMap implements Reader.
func (FileReader) ReadMap(path string) ([]float32, error) {
	img, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return img.Map()
}

// ReadFile reads a GIFTI or FreeSurfer curv file, possibly gzip compressed.
func ReadFile(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("unable to read surface file %q: %v", path, err)
	}
	return img, nil
}

// Read decodes a surface file from r.
func Read(r io.Reader) (*Image, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(3)
	if err != nil {
		return nil, fmt.Errorf("file too short: %v", err)
	}
	if magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return Read(zr)
	}
	if bytes.Equal(magic, curvMagic) {
		return readCurv(br)
	}
	return readGIFTI(br)
}

// VertexCount returns the number of vertices described by the surface file at path.
func VertexCount(path string) (int, error) {
	img, err := ReadFile(path)
	if err != nil {
		return 0, err
	}
	return img.VertexCount()
}

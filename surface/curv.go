package surface

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// FreeSurfer "new" curv format: a 3-byte magic, then big-endian int32
// vertex count, face count and values per vertex, then float32 values.
var curvMagic = []byte{0xff, 0xff, 0xff}

type curvHeader struct {
	NumVertices   int32
	NumFaces      int32
	ValsPerVertex int32
}

func readCurv(r *bufio.Reader) (*Image, error) {
	magic := make([]byte, len(curvMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, err
	}
	var hdr curvHeader
	if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
		return nil, fmt.Errorf("bad curv header: %v", err)
	}
	if hdr.NumVertices < 0 || hdr.ValsPerVertex < 1 {
		return nil, fmt.Errorf("bad curv header: %d vertices, %d values per vertex",
			hdr.NumVertices, hdr.ValsPerVertex)
	}
	if hdr.ValsPerVertex != 1 {
		return nil, fmt.Errorf("curv files with %d values per vertex not supported", hdr.ValsPerVertex)
	}
	values := make([]float32, hdr.NumVertices)
	if err := binary.Read(r, binary.BigEndian, values); err != nil {
		return nil, fmt.Errorf("curv data truncated: %v", err)
	}
	return &Image{Arrays: []DataArray{{
		Intent: IntentShape,
		Dims:   []int{int(hdr.NumVertices)},
		Values: values,
	}}}, nil
}

// WriteCurv writes values in FreeSurfer curv format.
func WriteCurv(w io.Writer, values []float32, numFaces int) error {
	if _, err := w.Write(curvMagic); err != nil {
		return err
	}
	hdr := curvHeader{
		NumVertices:   int32(len(values)),
		NumFaces:      int32(numFaces),
		ValsPerVertex: 1,
	}
	if err := binary.Write(w, binary.BigEndian, hdr); err != nil {
		return err
	}
	return binary.Write(w, binary.BigEndian, values)
}

// WriteCurvFile writes a FreeSurfer curv file at path.
func WriteCurvFile(path string, values []float32, numFaces int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if err := WriteCurv(bw, values, numFaces); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

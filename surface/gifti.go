package surface

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"
)

// GIFTI data encodings.
const (
	EncodingASCII      = "ASCII"
	EncodingBase64     = "Base64Binary"
	EncodingGZipBase64 = "GZipBase64Binary"
	EncodingExternal   = "ExternalFileBinary"
)

type giftiXML struct {
	XMLName    xml.Name       `xml:"GIFTI"`
	Version    string         `xml:"Version,attr"`
	NumArrays  int            `xml:"NumberOfDataArrays,attr"`
	DataArrays []dataArrayXML `xml:"DataArray"`
}

type dataArrayXML struct {
	Intent             string `xml:"Intent,attr"`
	DataType           string `xml:"DataType,attr"`
	ArrayIndexingOrder string `xml:"ArrayIndexingOrder,attr"`
	Dimensionality     int    `xml:"Dimensionality,attr"`
	Dim0               int    `xml:"Dim0,attr"`
	Dim1               int    `xml:"Dim1,attr"`
	Dim2               int    `xml:"Dim2,attr"`
	Dim3               int    `xml:"Dim3,attr"`
	Dim4               int    `xml:"Dim4,attr"`
	Dim5               int    `xml:"Dim5,attr"`
	Encoding           string `xml:"Encoding,attr"`
	Endian             string `xml:"Endian,attr"`
	ExternalFileName   string `xml:"ExternalFileName,attr"`
	ExternalFileOffset string `xml:"ExternalFileOffset,attr"`
	Data               string `xml:"Data"`
}

func (da dataArrayXML) dims() ([]int, error) {
	all := []int{da.Dim0, da.Dim1, da.Dim2, da.Dim3, da.Dim4, da.Dim5}
	if da.Dimensionality < 1 || da.Dimensionality > len(all) {
		return nil, fmt.Errorf("bad dimensionality %d", da.Dimensionality)
	}
	dims := all[:da.Dimensionality]
	for i, d := range dims {
		if d < 0 {
			return nil, fmt.Errorf("negative size %d for Dim%d", d, i)
		}
	}
	return dims, nil
}

type numericType struct {
	size   int
	decode func(b []byte, order binary.ByteOrder) float32
}

var giftiTypes = map[string]numericType{
	"NIFTI_TYPE_UINT8":   {1, func(b []byte, _ binary.ByteOrder) float32 { return float32(b[0]) }},
	"NIFTI_TYPE_INT8":    {1, func(b []byte, _ binary.ByteOrder) float32 { return float32(int8(b[0])) }},
	"NIFTI_TYPE_INT16":   {2, func(b []byte, o binary.ByteOrder) float32 { return float32(int16(o.Uint16(b))) }},
	"NIFTI_TYPE_UINT16":  {2, func(b []byte, o binary.ByteOrder) float32 { return float32(o.Uint16(b)) }},
	"NIFTI_TYPE_INT32":   {4, func(b []byte, o binary.ByteOrder) float32 { return float32(int32(o.Uint32(b))) }},
	"NIFTI_TYPE_UINT32":  {4, func(b []byte, o binary.ByteOrder) float32 { return float32(o.Uint32(b)) }},
	"NIFTI_TYPE_INT64":   {8, func(b []byte, o binary.ByteOrder) float32 { return float32(int64(o.Uint64(b))) }},
	"NIFTI_TYPE_FLOAT32": {4, func(b []byte, o binary.ByteOrder) float32 { return math.Float32frombits(o.Uint32(b)) }},
	"NIFTI_TYPE_FLOAT64": {8, func(b []byte, o binary.ByteOrder) float32 { return float32(math.Float64frombits(o.Uint64(b))) }},
}

func readGIFTI(r io.Reader) (*Image, error) {
	var doc giftiXML
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("bad GIFTI XML: %v", err)
	}
	img := &Image{Arrays: make([]DataArray, 0, len(doc.DataArrays))}
	for i, dax := range doc.DataArrays {
		da, err := decodeDataArray(dax)
		if err != nil {
			return nil, fmt.Errorf("data array %d: %v", i, err)
		}
		img.Arrays = append(img.Arrays, da)
	}
	return img, nil
}

func decodeDataArray(dax dataArrayXML) (DataArray, error) {
	dims, err := dax.dims()
	if err != nil {
		return DataArray{}, err
	}
	n := 1
	for _, d := range dims {
		n *= d
	}
	da := DataArray{Intent: dax.Intent, Dims: dims}

	if dax.Encoding == EncodingASCII {
		fields := strings.Fields(dax.Data)
		if len(fields) != n {
			return da, fmt.Errorf("expected %d ASCII values, got %d", n, len(fields))
		}
		da.Values = make([]float32, n)
		for i, field := range fields {
			v, err := strconv.ParseFloat(field, 32)
			if err != nil {
				return da, fmt.Errorf("bad ASCII value %q: %v", field, err)
			}
			da.Values[i] = float32(v)
		}
		return da, nil
	}

	nt, found := giftiTypes[dax.DataType]
	if !found {
		return da, fmt.Errorf("unsupported data type %q", dax.DataType)
	}
	var order binary.ByteOrder = binary.LittleEndian
	if dax.Endian == "BigEndian" {
		order = binary.BigEndian
	}

	raw, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(dax.Data), ""))
	if err != nil {
		return da, fmt.Errorf("bad base64 data: %v", err)
	}
	switch dax.Encoding {
	case EncodingBase64:
	case EncodingGZipBase64:
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return da, fmt.Errorf("bad compressed data: %v", err)
		}
		raw, err = io.ReadAll(zr)
		zr.Close()
		if err != nil {
			return da, fmt.Errorf("bad compressed data: %v", err)
		}
	case EncodingExternal:
		return da, fmt.Errorf("external file data (%q) not supported", dax.ExternalFileName)
	default:
		return da, fmt.Errorf("unknown encoding %q", dax.Encoding)
	}
	if len(raw) != n*nt.size {
		return da, fmt.Errorf("expected %d bytes of %s, got %d", n*nt.size, dax.DataType, len(raw))
	}
	da.Values = make([]float32, n)
	for i := range da.Values {
		da.Values[i] = nt.decode(raw[i*nt.size:(i+1)*nt.size], order)
	}
	return da, nil
}

const giftiHeader = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE GIFTI SYSTEM "http://www.nitrc.org/frs/download.php/115/gifti.dtd">
`

// Write encodes arrays as a GIFTI document of little-endian float32 arrays
// with GZipBase64Binary encoding.
func Write(w io.Writer, arrays ...DataArray) error {
	doc := giftiXML{Version: "1.0", NumArrays: len(arrays)}
	for i, da := range arrays {
		dims := da.Dims
		if len(dims) == 0 {
			dims = []int{len(da.Values)}
		}
		n := 1
		for _, d := range dims {
			n *= d
		}
		if n != len(da.Values) || len(dims) > 6 {
			return fmt.Errorf("data array %d: shape %v doesn't fit %d values", i, dims, len(da.Values))
		}
		raw := make([]byte, 4*len(da.Values))
		for j, v := range da.Values {
			binary.LittleEndian.PutUint32(raw[4*j:], math.Float32bits(v))
		}
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(raw); err != nil {
			return err
		}
		if err := zw.Close(); err != nil {
			return err
		}
		intent := da.Intent
		if intent == "" {
			intent = IntentNone
		}
		dax := dataArrayXML{
			Intent:             intent,
			DataType:           "NIFTI_TYPE_FLOAT32",
			ArrayIndexingOrder: "RowMajorOrder",
			Dimensionality:     len(dims),
			Encoding:           EncodingGZipBase64,
			Endian:             "LittleEndian",
			Data:               base64.StdEncoding.EncodeToString(buf.Bytes()),
		}
		dimPtrs := []*int{&dax.Dim0, &dax.Dim1, &dax.Dim2, &dax.Dim3, &dax.Dim4, &dax.Dim5}
		for j, d := range dims {
			*dimPtrs[j] = d
		}
		doc.DataArrays = append(doc.DataArrays, dax)
	}
	if _, err := io.WriteString(w, giftiHeader); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Flush()
}

// WriteFile writes a GIFTI file at path.
func WriteFile(path string, arrays ...DataArray) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, arrays...); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

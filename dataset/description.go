package dataset

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Columns every dataset description must hold.
var requiredColumns = []string{"mesh", "subject", "task", "contrast", "side", "path"}

// Row is one surface file listed in a dataset description.
type Row struct {
	Mesh     string
	Subject  string
	Task     string
	Contrast string
	Side     string
	Path     string

	// MeshPath is the mesh file the map is defined on.  Optional.
	MeshPath string

	// Session orders rows when the same map was acquired more than once.  Optional.
	Session string
}

// Description is a tabular dataset description: the ordered rows of a CSV file
// with a header line.
type Description struct {
	// Path is the absolute path of the description file, or empty if the
	// description was not read from a file.
	Path string

	Rows []Row

	// HasSession is true if the description has a session column.
	HasSession bool

	raw []byte
}

// Dir returns the directory holding the description file, or "" if unknown.
func (d *Description) Dir() string {
	if d == nil || d.Path == "" {
		return ""
	}
	return filepath.Dir(d.Path)
}

// NumFiles returns the number of rows of the description.
func (d *Description) NumFiles() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// Bytes returns the raw description content.
func (d *Description) Bytes() []byte {
	return d.raw
}

// ReadDescription reads a dataset description file.
func ReadDescription(path string) (*Description, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read dataset description: %v", err)
	}
	desc, err := ParseDescription(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("bad dataset description %q: %v", absPath, err)
	}
	desc.Path = absPath
	return desc, nil
}

// ParseDescription parses CSV content with a header line naming at least the
// mesh, subject, task, contrast, side and path columns in any order.  An
// input holding only a header, or nothing at all, gives an empty description.
func ParseDescription(r io.Reader) (*Description, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	desc := &Description{raw: data}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err == io.EOF {
		return desc, nil
	}
	if err != nil {
		return nil, err
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := columns[name]; !dup {
			columns[name] = i
		}
	}
	var missing []string
	for _, name := range requiredColumns {
		if _, found := columns[name]; !found {
			missing = append(missing, name)
		}
	}
	if len(missing) != 0 {
		return nil, fmt.Errorf("missing required columns %v", missing)
	}
	_, desc.HasSession = columns["session"]

	field := func(record []string, name string) string {
		i, found := columns[name]
		if !found || i >= len(record) {
			return ""
		}
		return record[i]
	}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		desc.Rows = append(desc.Rows, Row{
			Mesh:     field(record, "mesh"),
			Subject:  field(record, "subject"),
			Task:     field(record, "task"),
			Contrast: field(record, "contrast"),
			Side:     field(record, "side"),
			Path:     field(record, "path"),
			MeshPath: field(record, "mesh_path"),
			Session:  field(record, "session"),
		})
	}
	return desc, nil
}

// NewDescription returns a description holding the given rows.
func NewDescription(rows []Row) *Description {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write(append(append([]string{}, requiredColumns...), "mesh_path", "session"))
	hasSession := false
	for _, row := range rows {
		w.Write([]string{row.Mesh, row.Subject, row.Task, row.Contrast, row.Side, row.Path, row.MeshPath, row.Session})
		if row.Session != "" {
			hasSession = true
		}
	}
	w.Flush()
	return &Description{Rows: rows, HasSession: hasSession, raw: buf.Bytes()}
}

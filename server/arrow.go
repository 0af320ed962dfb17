package server

import (
	"io"
	"math"

	"github.com/brain-cockpit/cockpit/dataset"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
)

// ArrowContentType is the media type of Arrow IPC streams.
const ArrowContentType = "application/vnd.apache.arrow.stream"

var mapSchema = arrow.NewSchema([]arrow.Field{
	{Name: "value", Type: arrow.PrimitiveTypes.Float32, Nullable: true},
}, nil)

// writeArrow writes a surface map as an Arrow IPC stream with a single
// record of one float32 column.  NaN values are written as nulls.
func writeArrow(w io.Writer, values dataset.Values) error {
	pool := memory.NewGoAllocator()
	builder := array.NewFloat32Builder(pool)
	defer builder.Release()

	builder.Reserve(len(values))
	for _, v := range values {
		if math.IsNaN(float64(v)) {
			builder.AppendNull()
		} else {
			builder.Append(v)
		}
	}
	column := builder.NewArray()
	defer column.Release()

	record := array.NewRecord(mapSchema, []arrow.Array{column}, int64(len(values)))
	defer record.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(mapSchema), ipc.WithAllocator(pool))
	if err := writer.Write(record); err != nil {
		writer.Close()
		return err
	}
	return writer.Close()
}

package dataset

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Schema is the Arrow schema written by Encode. Decode is more lenient and
// accepts any integer width, dictionary-encoded or large strings, and any
// timestamp unit, since pandas/pyarrow choose these per export.
var Schema = arrow.NewSchema([]arrow.Field{
	{Name: ColX, Type: arrow.PrimitiveTypes.Float64},
	{Name: ColY, Type: arrow.PrimitiveTypes.Float64},
	{Name: ColDistrict, Type: arrow.BinaryTypes.String},
	{Name: ColNeighborhood, Type: arrow.BinaryTypes.String},
	{Name: ColYear, Type: arrow.PrimitiveTypes.Int64},
	{Name: ColMonth, Type: arrow.PrimitiveTypes.Int64},
	{Name: ColDay, Type: arrow.PrimitiveTypes.Int64},
	{Name: ColHour, Type: arrow.PrimitiveTypes.Int64},
	{Name: ColDateTime, Type: &arrow.TimestampType{Unit: arrow.Nanosecond}},
	{Name: ColYearMonth, Type: arrow.BinaryTypes.String},
	{Name: ColVehicles, Type: arrow.PrimitiveTypes.Int64},
	{Name: ColVictims, Type: arrow.PrimitiveTypes.Int64},
}, nil)

// Decode parses a feather (Arrow IPC file) payload into a Dataset.
func Decode(data []byte) (*Dataset, error) {
	r, err := ipc.NewFileReader(bytes.NewReader(data), ipc.WithAllocator(memory.DefaultAllocator))
	if err != nil {
		return nil, fmt.Errorf("open feather: %w", err)
	}
	defer r.Close()

	idx := make(map[string]int, len(Columns))
	for _, name := range Columns {
		found := r.Schema().FieldIndices(name)
		if len(found) == 0 {
			return nil, fmt.Errorf("feather: missing column %q", name)
		}
		idx[name] = found[0]
	}

	var records []Record
	for b := 0; b < r.NumRecords(); b++ {
		rec, err := r.Record(b)
		if err != nil {
			return nil, fmt.Errorf("read batch %d: %w", b, err)
		}
		batch, err := decodeBatch(rec, idx)
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", b, err)
		}
		records = append(records, batch...)
	}
	return &Dataset{records: records}, nil
}

func decodeBatch(rec arrow.Record, idx map[string]int) ([]Record, error) {
	col := func(name string) arrow.Array { return rec.Column(idx[name]) }
	n := int(rec.NumRows())
	out := make([]Record, n)

	for i := 0; i < n; i++ {
		r := &out[i]
		var err error
		if r.X, err = floatAt(col(ColX), i); err != nil {
			return nil, rowErr(ColX, i, err)
		}
		if r.Y, err = floatAt(col(ColY), i); err != nil {
			return nil, rowErr(ColY, i, err)
		}
		if r.District, err = stringAt(col(ColDistrict), i); err != nil {
			return nil, rowErr(ColDistrict, i, err)
		}
		if r.Neighborhood, err = stringAt(col(ColNeighborhood), i); err != nil {
			return nil, rowErr(ColNeighborhood, i, err)
		}
		if r.YearMonth, err = stringAt(col(ColYearMonth), i); err != nil {
			return nil, rowErr(ColYearMonth, i, err)
		}
		if r.DateTime, err = timeAt(col(ColDateTime), i); err != nil {
			return nil, rowErr(ColDateTime, i, err)
		}
		for _, f := range []struct {
			name string
			dst  *int
		}{
			{ColYear, &r.Year}, {ColMonth, &r.Month}, {ColDay, &r.Day}, {ColHour, &r.Hour},
			{ColVehicles, &r.Vehicles}, {ColVictims, &r.Victims},
		} {
			v, err := intAt(col(f.name), i)
			if err != nil {
				return nil, rowErr(f.name, i, err)
			}
			*f.dst = int(v)
		}
	}
	return out, nil
}

func rowErr(col string, row int, err error) error {
	return fmt.Errorf("column %s row %d: %w", col, row, err)
}

func floatAt(a arrow.Array, i int) (float64, error) {
	if a.IsNull(i) {
		return 0, fmt.Errorf("null value")
	}
	switch c := a.(type) {
	case *array.Float64:
		return c.Value(i), nil
	case *array.Float32:
		return float64(c.Value(i)), nil
	}
	v, err := intAt(a, i)
	return float64(v), err
}

func intAt(a arrow.Array, i int) (int64, error) {
	if a.IsNull(i) {
		return 0, fmt.Errorf("null value")
	}
	switch c := a.(type) {
	case *array.Int64:
		return c.Value(i), nil
	case *array.Int32:
		return int64(c.Value(i)), nil
	case *array.Int16:
		return int64(c.Value(i)), nil
	case *array.Int8:
		return int64(c.Value(i)), nil
	case *array.Uint64:
		return int64(c.Value(i)), nil
	case *array.Uint32:
		return int64(c.Value(i)), nil
	case *array.Uint16:
		return int64(c.Value(i)), nil
	case *array.Uint8:
		return int64(c.Value(i)), nil
	}
	return 0, fmt.Errorf("unsupported integer type %s", a.DataType())
}

func stringAt(a arrow.Array, i int) (string, error) {
	if a.IsNull(i) {
		return "", nil
	}
	switch c := a.(type) {
	case *array.String:
		return c.Value(i), nil
	case *array.LargeString:
		return c.Value(i), nil
	case *array.Dictionary:
		return stringAt(c.Dictionary(), c.GetValueIndex(i))
	}
	return "", fmt.Errorf("unsupported string type %s", a.DataType())
}

func timeAt(a arrow.Array, i int) (time.Time, error) {
	if a.IsNull(i) {
		return time.Time{}, fmt.Errorf("null value")
	}
	c, ok := a.(*array.Timestamp)
	if !ok {
		return time.Time{}, fmt.Errorf("unsupported timestamp type %s", a.DataType())
	}
	unit := c.DataType().(*arrow.TimestampType).Unit
	return c.Value(i).ToTime(unit).UTC(), nil
}

// Encode writes ds as an LZ4-compressed feather file, the layout pyarrow
// produces by default.
func Encode(w io.Writer, ds *Dataset) error {
	mem := memory.NewGoAllocator()
	b := array.NewRecordBuilder(mem, Schema)
	defer b.Release()

	for _, r := range ds.All() {
		b.Field(0).(*array.Float64Builder).Append(r.X)
		b.Field(1).(*array.Float64Builder).Append(r.Y)
		b.Field(2).(*array.StringBuilder).Append(r.District)
		b.Field(3).(*array.StringBuilder).Append(r.Neighborhood)
		b.Field(4).(*array.Int64Builder).Append(int64(r.Year))
		b.Field(5).(*array.Int64Builder).Append(int64(r.Month))
		b.Field(6).(*array.Int64Builder).Append(int64(r.Day))
		b.Field(7).(*array.Int64Builder).Append(int64(r.Hour))
		b.Field(8).(*array.TimestampBuilder).Append(arrow.Timestamp(r.DateTime.UnixNano()))
		b.Field(9).(*array.StringBuilder).Append(r.YearMonth)
		b.Field(10).(*array.Int64Builder).Append(int64(r.Vehicles))
		b.Field(11).(*array.Int64Builder).Append(int64(r.Victims))
	}

	rec := b.NewRecord()
	defer rec.Release()

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(Schema), ipc.WithAllocator(mem), ipc.WithLZ4())
	if err != nil {
		return fmt.Errorf("create feather writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		_ = fw.Close()
		return fmt.Errorf("write feather batch: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("close feather writer: %w", err)
	}
	return nil
}

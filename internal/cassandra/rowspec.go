package cassandra

import "fmt"

// RowSpec is a pure function object mapping a timestamp to a row time (row
// bucket) and a column name (in-row offset) within that row. It has no
// mutable state and is safe to share across every handler.
type RowSpec struct {
	rowWidthMs int64
}

// NewRowSpec builds a RowSpec for the given row width in milliseconds
// (typically three weeks). rowWidthMs must be positive.
func NewRowSpec(rowWidthMs int64) RowSpec {
	if rowWidthMs <= 0 {
		panic(fmt.Sprintf("cassandra: row width must be positive, got %d", rowWidthMs))
	}
	return RowSpec{rowWidthMs: rowWidthMs}
}

// RowWidthMillis returns the configured row width in milliseconds.
func (r RowSpec) RowWidthMillis() int64 { return r.rowWidthMs }

// RowTime returns floor(ts/rowWidth) * rowWidth.
func (r RowSpec) RowTime(tsMillis int64) int64 {
	bucket := tsMillis / r.rowWidthMs
	if tsMillis%r.rowWidthMs != 0 && tsMillis < 0 {
		bucket--
	}
	return bucket * r.rowWidthMs
}

// ColumnName returns the integer offset of ts from rowTime, encoded so that
// column order equals time order. ts must lie in [rowTime, rowTime+rowWidth);
// timestamps outside that range are a programming error.
//
// The offset is shifted left one bit and the low bit left clear for the
// point-value column family so that other column kinds sharing the row
// (e.g. a future annotation column type using the low bit set) never
// collide with a data point column at the same in-row time.
func (r RowSpec) ColumnName(rowTime, tsMillis int64) int32 {
	offset := tsMillis - rowTime
	if offset < 0 || offset >= r.rowWidthMs {
		panic(fmt.Sprintf("cassandra: timestamp %d outside row [%d, %d)", tsMillis, rowTime, rowTime+r.rowWidthMs))
	}
	return int32(offset << 1)
}

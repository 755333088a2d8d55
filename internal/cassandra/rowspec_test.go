package cassandra

import "testing"

func TestRowTimeFloorsPositiveTimestamps(t *testing.T) {
	spec := NewRowSpec(10)
	cases := map[int64]int64{
		0:  0,
		5:  0,
		9:  0,
		10: 10,
		15: 10,
		29: 20,
	}
	for ts, want := range cases {
		if got := spec.RowTime(ts); got != want {
			t.Errorf("RowTime(%d) = %d, want %d", ts, got, want)
		}
	}
}

func TestRowTimeFloorsNegativeTimestamps(t *testing.T) {
	spec := NewRowSpec(10)
	cases := map[int64]int64{
		-1:  -10,
		-9:  -10,
		-10: -10,
		-11: -20,
	}
	for ts, want := range cases {
		if got := spec.RowTime(ts); got != want {
			t.Errorf("RowTime(%d) = %d, want %d", ts, got, want)
		}
	}
}

func TestColumnNameIsMonotonicWithinRow(t *testing.T) {
	spec := NewRowSpec(1000)
	rowTime := int64(0)

	prev := int32(-1)
	for ts := int64(0); ts < 1000; ts += 37 {
		col := spec.ColumnName(rowTime, ts)
		if col <= prev {
			t.Fatalf("column name not strictly increasing at ts=%d: got %d, prev %d", ts, col, prev)
		}
		prev = col
	}
}

func TestColumnNamePanicsOutsideRow(t *testing.T) {
	spec := NewRowSpec(1000)
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic for a timestamp outside the row bounds")
		}
	}()
	spec.ColumnName(0, 1000)
}

func TestNewRowSpecPanicsOnNonPositiveWidth(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic for a non-positive row width")
		}
	}()
	NewRowSpec(0)
}

package memory

import (
	"fmt"
	"strconv"
)

// Ref is a handle to a dataset slot in the runtime memory manager.  The
// generation counter detects stale handles: a slot reused for a new dataset
// bumps its generation, invalidating every outstanding Ref to the old one.
type Ref struct {
	Slot int
	Gen  uint32
}

func (r Ref) String() string {
	return fmt.Sprintf("@%d.%d", r.Slot, r.Gen)
}

// -----------------------------------------------------------------------------

// ValueKind tags a runtime value.
type ValueKind int

const (
	KindUnit ValueKind = iota
	KindInt
	KindFloat
	KindBool
	KindString
	KindRef
)

// Value is a runtime scalar or dataset handle.
type Value struct {
	Kind  ValueKind
	Int   int64
	Float float64
	Bool  bool
	Str   string
	Ref   Ref
}

func Unit() Value { return Value{Kind: KindUnit} }

func IntValue(v int64) Value { return Value{Kind: KindInt, Int: v} }

func FloatValue(v float64) Value { return Value{Kind: KindFloat, Float: v} }

func BoolValue(v bool) Value { return Value{Kind: KindBool, Bool: v} }

func StringValue(v string) Value { return Value{Kind: KindString, Str: v} }

func RefValue(r Ref) Value { return Value{Kind: KindRef, Ref: r} }

func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindString:
		return v.Str
	case KindRef:
		return v.Ref.String()
	default:
		return "unit"
	}
}

// Equals compares two values for equality.  Values of different kinds are
// never equal.
func (v Value) Equals(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}

	switch v.Kind {
	case KindInt:
		return v.Int == other.Int
	case KindFloat:
		return v.Float == other.Float
	case KindBool:
		return v.Bool == other.Bool
	case KindString:
		return v.Str == other.Str
	case KindRef:
		return v.Ref == other.Ref
	default:
		return true
	}
}

// Truthy reports the boolean interpretation of a value used as a predicate.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int != 0
	case KindFloat:
		return v.Float != 0
	case KindString:
		return v.Str != ""
	case KindUnit:
		return false
	default:
		return true
	}
}

// -----------------------------------------------------------------------------

// Row is a single dataset record.
type Row map[string]Value

// Dataset is the in-memory form of a managed data object: a flat sequence of
// rows, optionally carrying the grouping produced by a group-by stage.
type Dataset struct {
	// Source names where the dataset came from, for diagnostics.
	Source string

	Rows []Row

	// Groups is non-nil for grouped datasets.  Keys preserve first-seen
	// order in GroupKeys.
	Groups    map[string][]Row
	GroupKeys []string
}

// NumRows returns the row count of the dataset.
func (ds *Dataset) NumRows() int {
	return len(ds.Rows)
}

// SizeHint estimates the footprint of the dataset in cells.  The memory
// manager records it per slot to account for resident memory.
func (ds *Dataset) SizeHint() int {
	cells := 0
	for _, row := range ds.Rows {
		cells += len(row)
	}

	return cells
}

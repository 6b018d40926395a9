package record

import (
	"math"
	"strconv"
	"strings"
)

// Value is a single field value. The zero Value is absent, which is
// distinct from a present empty string or a present zero.
type Value struct {
	present bool
	numeric bool
	text    string
	number  float64
}

func Absent() Value {
	return Value{}
}

func Text(s string) Value {
	return Value{present: true, text: s}
}

func Number(f float64) Value {
	return Value{present: true, numeric: true, number: f}
}

func Integer(i int64) Value {
	return Number(float64(i))
}

func (v Value) IsAbsent() bool {
	return !v.present
}

// IsEmpty reports whether the value carries nothing worth emitting:
// absent, or present text that is blank.
func (v Value) IsEmpty() bool {
	if !v.present {
		return true
	}
	if v.numeric {
		return false
	}
	return len(strings.TrimSpace(v.text)) == 0
}

func (v Value) Float() (float64, bool) {
	if !v.present || !v.numeric {
		return 0, false
	}
	return v.number, true
}

// String renders the value in a locale-independent canonical form.
// Absent values render as the empty string.
func (v Value) String() string {
	if !v.present {
		return ""
	}
	if v.numeric {
		return strconv.FormatFloat(v.number, 'f', -1, 64)
	}
	return v.text
}

// parse converts raw text into a Value of the given kind. Blank input is
// absent. Numeric kinds that fail to parse, or parse to NaN or an
// infinity, keep their text so that they
// still serialize, but report ok=false.
func parse(kind Kind, raw string) (Value, bool) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Absent(), true
	}

	switch kind {
	case KindInteger, KindFloat:
		f, err := strconv.ParseFloat(strings.ReplaceAll(trimmed, ",", ""), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return Text(raw), false
		}
		if kind == KindInteger {
			return Integer(int64(f)), true
		}
		return Number(f), true
	case KindIdentifier:
		return Text(trimmed), true
	default:
		return Text(raw), true
	}
}

// Package serializer projects a record onto a deterministic line of text.
package serializer

import (
	"strings"

	"github.com/w-h-a/recommender/record"
)

type Mode int

const (
	// Full emits every field in order; missing values render as empty
	// strings so positions are stable.
	Full Mode = iota
	// Sparse emits only fields holding a non-empty value.
	Sparse
)

func (m Mode) String() string {
	if m == Sparse {
		return "sparse"
	}
	return "full"
}

const (
	pairSeparator  = ": "
	fieldSeparator = " | "
)

func Serialize(rec record.Record, order []string, mode Mode) string {
	var sb strings.Builder

	written := 0
	for _, name := range order {
		v := rec.Get(name)
		if mode == Sparse && v.IsEmpty() {
			continue
		}
		if written > 0 {
			sb.WriteString(fieldSeparator)
		}
		sb.WriteString(name)
		sb.WriteString(pairSeparator)
		sb.WriteString(v.String())
		written++
	}

	return sb.String()
}

// SerializeAll serializes each record with the same order and mode.
func SerializeAll(recs []record.Record, order []string, mode Mode) []string {
	texts := make([]string, len(recs))
	for i, rec := range recs {
		texts[i] = Serialize(rec, order, mode)
	}
	return texts
}

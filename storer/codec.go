package storer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/w-h-a/recommender/record"
)

// MissingEmbedding marks a row whose vector has not been computed yet.
// An empty cell means the same.
const MissingEmbedding = "-"

// Columns is the stored column order: the schema fields followed by the
// embeddings column.
func Columns(schema record.Schema) []string {
	return append(schema.Names(), record.ColumnEmbeddings)
}

// EncodeEmbedding renders a vector as a JSON list of floats, or the
// missing sentinel for nil.
func EncodeEmbedding(vector []float32) string {
	if vector == nil {
		return MissingEmbedding
	}

	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range vector {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	sb.WriteByte(']')

	return sb.String()
}

// DecodeEmbedding parses a stored embedding cell. Blank cells and the
// missing sentinel decode to nil without error.
func DecodeEmbedding(cell string) ([]float32, error) {
	cell = strings.TrimSpace(cell)
	if len(cell) == 0 || cell == MissingEmbedding {
		return nil, nil
	}

	var raw []float64
	if err := json.Unmarshal([]byte(cell), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEmbedding, err)
	}

	vector := make([]float32, len(raw))
	for i, v := range raw {
		vector[i] = float32(v)
	}

	return vector, nil
}

// Coerce returns the stored text of a field: absent numeric fields become
// "0" and every other absent field the empty string. The label is never
// coerced so an unrated row cannot read back as rated zero.
func Coerce(rec record.Record, field record.Field) string {
	v := rec.Get(field.Name)
	if v.IsAbsent() && field.Kind.Numeric() && field.Name != rec.Schema().Label() {
		return "0"
	}
	return v.String()
}

// Row renders rec in the given column order. Columns outside the schema
// other than the embeddings column are left blank.
func Row(rec record.Record, columns []string) []string {
	row := make([]string, len(columns))
	for i, name := range columns {
		if name == record.ColumnEmbeddings {
			row[i] = EncodeEmbedding(rec.Embedding)
			continue
		}
		field, ok := rec.Schema().Field(name)
		if !ok {
			continue
		}
		row[i] = Coerce(rec, field)
	}
	return row
}

// FromRow rebuilds a record from a header and one row of cells. Unknown
// columns are ignored and short rows are treated as blank-padded. A
// malformed embedding cell is returned as an error alongside the record,
// which then carries no embedding.
func FromRow(schema record.Schema, header []string, cells []string) (record.Record, error) {
	rec := record.New(schema)

	var embeddingErr error

	for i, name := range header {
		name = strings.TrimSpace(name)

		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}

		if name == record.ColumnEmbeddings {
			rec.Embedding, embeddingErr = DecodeEmbedding(cell)
			continue
		}

		if _, ok := schema.Field(name); !ok {
			continue
		}

		if err := rec.SetText(name, cell); err != nil {
			return record.Record{}, err
		}
	}

	return rec, embeddingErr
}

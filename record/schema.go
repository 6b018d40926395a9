package record

const (
	FieldID          = "ID"
	FieldName        = "Movie Name"
	FieldYear        = "Year"
	FieldTiming      = "Timing(min)"
	FieldGenre       = "Genre"
	FieldLanguage    = "Language"
	FieldDescription = "Brief Description"
	FieldCast        = "Cast"
	FieldDirector    = "Director"
	FieldWriter      = "Screenplay/Writer"
	FieldProduction  = "Production Company"
	FieldBudget      = "Budget in Rupees"
	FieldRevenue     = "Revenue in Rupees"
	FieldReview      = "User Liking (words)"
	FieldRating      = "User Rating"

	// ColumnEmbeddings is the storage column holding the serialized vector.
	ColumnEmbeddings = "Embeddings"
)

type Kind int

const (
	KindString Kind = iota
	KindInteger
	KindFloat
	KindIdentifier
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindIdentifier:
		return "identifier"
	default:
		return "string"
	}
}

func (k Kind) Numeric() bool {
	return k == KindInteger || k == KindFloat
}

type Field struct {
	Name string
	Kind Kind
}

// Schema is the closed, ordered list of fields a Record may carry.
type Schema struct {
	fields     []Field
	index      map[string]int
	identifier string
	label      string
}

func NewSchema(identifier string, label string, fields ...Field) Schema {
	s := Schema{
		fields:     append([]Field(nil), fields...),
		index:      make(map[string]int, len(fields)),
		identifier: identifier,
		label:      label,
	}
	for i, f := range s.fields {
		s.index[f.Name] = i
	}
	return s
}

func (s Schema) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

func (s Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

func (s Schema) Identifier() string {
	return s.identifier
}

func (s Schema) Label() string {
	return s.label
}

// Names returns every field name in schema order.
func (s Schema) Names() []string {
	names := make([]string, 0, len(s.fields))
	for _, f := range s.fields {
		names = append(names, f.Name)
	}
	return names
}

// FeatureOrder returns the field order used for serialization: every
// field except the identifier and the label.
func (s Schema) FeatureOrder() []string {
	order := make([]string, 0, len(s.fields))
	for _, f := range s.fields {
		if f.Name == s.identifier || f.Name == s.label {
			continue
		}
		order = append(order, f.Name)
	}
	return order
}

// Movies is the schema of the movie table.
var Movies = NewSchema(
	FieldID,
	FieldRating,
	Field{FieldID, KindIdentifier},
	Field{FieldName, KindString},
	Field{FieldYear, KindInteger},
	Field{FieldTiming, KindFloat},
	Field{FieldGenre, KindString},
	Field{FieldLanguage, KindString},
	Field{FieldDescription, KindString},
	Field{FieldCast, KindString},
	Field{FieldDirector, KindString},
	Field{FieldWriter, KindString},
	Field{FieldProduction, KindString},
	Field{FieldBudget, KindFloat},
	Field{FieldRevenue, KindFloat},
	Field{FieldReview, KindString},
	Field{FieldRating, KindFloat},
)

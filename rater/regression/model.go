package regression

import (
	"fmt"
)

// Head is a linear regression head over the concatenation of the lexical
// tf-idf block and the frozen backbone embedding.
type Head struct {
	Bias              float64   `json:"bias"`
	Lexical           []float64 `json:"lexical"`
	Semantic          []float64 `json:"semantic"`
	BackboneModel     string    `json:"backbone_model"`
	BackboneDimension int       `json:"backbone_dimension"`
	FieldOrder        []string  `json:"field_order"`
	Examples          int       `json:"examples"`
}

func (h *Head) Forward(x features) float64 {
	out := h.Bias
	for i, v := range x.lexical {
		out += h.Lexical[i] * v
	}
	for i, v := range x.semantic {
		out += h.Semantic[i] * v
	}
	return out
}

func (h *Head) validate(t *Tokenizer) error {
	if len(h.Lexical) != t.Size() {
		return fmt.Errorf("head has %d lexical weights for a vocabulary of %d", len(h.Lexical), t.Size())
	}
	if len(h.Semantic) != h.BackboneDimension {
		return fmt.Errorf("head has %d semantic weights for a backbone of dimension %d", len(h.Semantic), h.BackboneDimension)
	}
	return nil
}

type features struct {
	lexical  []float64
	semantic []float64
}

func newFeatures(t *Tokenizer, text string, embedding []float32) features {
	semantic := make([]float64, len(embedding))
	for i, v := range embedding {
		semantic[i] = float64(v)
	}
	normalize(semantic)

	return features{
		lexical:  t.Features(t.Encode(text)),
		semantic: semantic,
	}
}

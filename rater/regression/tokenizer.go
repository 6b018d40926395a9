package regression

import (
	"fmt"
	"math"
	"slices"

	"github.com/w-h-a/recommender/embedder/hashing"
)

const (
	PadToken = "[PAD]"
	UnkToken = "[UNK]"
	ClsToken = "[CLS]"

	padID = 0
	unkID = 1
	clsID = 2
)

var specialTokens = []string{PadToken, UnkToken, ClsToken}

// Tokenizer maps text onto fixed-length id sequences. Its vocabulary and
// idf table are fitted once per training run and persisted with the
// weights they belong to.
type Tokenizer struct {
	Vocab             []string  `json:"vocab"`
	IDF               []float64 `json:"idf"`
	MaxSequenceLength int       `json:"max_sequence_length"`

	index map[string]int
}

// Encode returns exactly MaxSequenceLength ids: [CLS], the truncated
// tokens, then [PAD] up to the fixed length.
func (t *Tokenizer) Encode(text string) []int {
	ids := make([]int, t.MaxSequenceLength)

	ids[0] = clsID
	n := 1
	for _, tok := range hashing.Tokenize(text) {
		if n == t.MaxSequenceLength {
			break
		}
		id, ok := t.index[tok]
		if !ok {
			id = unkID
		}
		ids[n] = id
		n++
	}

	for ; n < t.MaxSequenceLength; n++ {
		ids[n] = padID
	}

	return ids
}

// Features is the L2-normalised tf-idf bag over the vocabulary.
func (t *Tokenizer) Features(ids []int) []float64 {
	out := make([]float64, len(t.Vocab))

	for _, id := range ids {
		if id == padID {
			continue
		}
		out[id] += t.IDF[id]
	}

	normalize(out)

	return out
}

func (t *Tokenizer) Size() int {
	return len(t.Vocab)
}

func (t *Tokenizer) init() error {
	if t.MaxSequenceLength < 2 {
		return fmt.Errorf("tokenizer max sequence length %d is too short", t.MaxSequenceLength)
	}

	if len(t.Vocab) != len(t.IDF) {
		return fmt.Errorf("tokenizer has %d tokens but %d idf weights", len(t.Vocab), len(t.IDF))
	}

	if len(t.Vocab) < len(specialTokens) || !slices.Equal(t.Vocab[:len(specialTokens)], specialTokens) {
		return fmt.Errorf("tokenizer vocabulary does not start with the special tokens")
	}

	t.index = make(map[string]int, len(t.Vocab))
	for i, tok := range t.Vocab {
		t.index[tok] = i
	}

	return nil
}

// fitTokenizer builds the vocabulary from the sorted distinct training
// tokens and weights each by idf = ln((1+n)/(1+df)). Special tokens carry
// no weight.
func fitTokenizer(texts []string, maxSequenceLength int) (*Tokenizer, error) {
	df := map[string]int{}

	for _, text := range texts {
		seen := map[string]struct{}{}
		tokens := hashing.Tokenize(text)
		if len(tokens) > maxSequenceLength-1 {
			tokens = tokens[:maxSequenceLength-1]
		}
		for _, tok := range tokens {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	words := make([]string, 0, len(df))
	for tok := range df {
		words = append(words, tok)
	}
	slices.Sort(words)

	t := &Tokenizer{
		Vocab:             append(slices.Clone(specialTokens), words...),
		IDF:               make([]float64, len(specialTokens), len(specialTokens)+len(words)),
		MaxSequenceLength: maxSequenceLength,
	}

	n := float64(len(texts))
	for _, tok := range words {
		t.IDF = append(t.IDF, math.Log((1+n)/(1+float64(df[tok]))))
	}

	if err := t.init(); err != nil {
		return nil, err
	}

	return t, nil
}

func normalize(v []float64) {
	var sum float64
	for _, x := range v {
		sum += x * x
	}

	if sum == 0 {
		return
	}

	norm := math.Sqrt(sum)
	for i := range v {
		v[i] /= norm
	}
}

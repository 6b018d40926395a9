package retriever

import "context"

type Retriever interface {
	TopK(ctx context.Context, query string, candidates []Candidate, k int) (Ranking, error)
}

// Candidate is a stored vector and the reference it belongs to. Index is
// the candidate's position in the input slice.
type Candidate struct {
	Ref    string
	Vector []float32
}

type Result struct {
	Ref   string  `json:"ref"`
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Ranking is ordered by score, highest first. Scores are rounded to four
// decimals.
type Ranking struct {
	Results []Result `json:"results"`
}

func (r Ranking) Len() int {
	return len(r.Results)
}

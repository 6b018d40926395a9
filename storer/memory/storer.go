package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/w-h-a/recommender/record"
	"github.com/w-h-a/recommender/storer"
)

const storeName = "memory"

// memoryStorer keeps rows as they would be stored remotely, so reads see
// the same coercion a tabular backend applies.
type memoryStorer struct {
	options storer.Options
	columns []string
	rows    [][]string
	index   map[string]int
	mtx     sync.RWMutex
}

func (s *memoryStorer) ReadAll(ctx context.Context) ([]record.Record, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	records := make([]record.Record, 0, len(s.rows))

	for _, row := range s.rows {
		rec, err := storer.FromRow(s.options.Schema, s.columns, row)
		if errors.Is(err, storer.ErrMalformedEmbedding) {
			slog.WarnContext(ctx, "treating malformed embedding as missing", "id", rec.ID(), "error", err)
		} else if err != nil {
			return nil, &storer.StoreReadError{Store: storeName, Err: err}
		}
		records = append(records, rec)
	}

	return records, nil
}

func (s *memoryStorer) WriteEmbedding(ctx context.Context, id string, vector []float32) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	i, ok := s.index[id]
	if !ok {
		return &storer.StoreWriteError{Store: storeName, ID: id, Err: storer.ErrRecordNotFound}
	}

	s.rows[i][len(s.columns)-1] = storer.EncodeEmbedding(vector)

	return nil
}

func (s *memoryStorer) AppendRecord(ctx context.Context, rec record.Record) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	rec = rec.Clone()

	id := rec.ID()
	if len(id) == 0 {
		id = uuid.New().String()
		if err := rec.SetText(s.options.Schema.Identifier(), id); err != nil {
			return &storer.StoreWriteError{Store: storeName, Err: err}
		}
	}

	if _, exists := s.index[id]; exists {
		return &storer.StoreWriteError{Store: storeName, ID: id, Err: storer.ErrDuplicateID}
	}

	s.index[id] = len(s.rows)
	s.rows = append(s.rows, storer.Row(rec, s.columns))

	return nil
}

// Len reports the number of stored rows.
func (s *memoryStorer) Len() int {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return len(s.rows)
}

func NewStorer(opts ...storer.Option) storer.Storer {
	options := storer.NewOptions(opts...)

	s := &memoryStorer{
		options: options,
		columns: storer.Columns(options.Schema),
		index:   map[string]int{},
	}

	for _, rec := range RecordsFrom(options.Context) {
		if err := s.AppendRecord(options.Context, rec); err != nil {
			panic(fmt.Sprintf("failed to seed memory storer: %v", err))
		}
	}

	return s
}

// Rows returns a copy of the raw stored cells, header first.
func (s *memoryStorer) Rows() [][]string {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	out := make([][]string, 0, len(s.rows)+1)
	out = append(out, slices.Clone(s.columns))
	for _, row := range s.rows {
		out = append(out, slices.Clone(row))
	}
	return out
}

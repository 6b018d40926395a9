package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w-h-a/recommender/record"
	"github.com/w-h-a/recommender/storer"
)

func newTestStorer(t *testing.T) (storer.Storer, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "movies.db")
	return NewStorer(storer.WithLocation(path)), path
}

func movie(t *testing.T, id string, fields map[string]string) record.Record {
	t.Helper()
	rec := record.New(record.Movies)
	if len(id) > 0 {
		require.NoError(t, rec.SetText(record.FieldID, id))
	}
	for name, raw := range fields {
		require.NoError(t, rec.SetText(name, raw))
	}
	return rec
}

func TestReadAll_Empty(t *testing.T) {
	s, _ := newTestStorer(t)

	records, err := s.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAppendAndRead(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStorer(t)

	require.NoError(t, s.AppendRecord(ctx, movie(t, "z", map[string]string{
		record.FieldName:   "Lagaan",
		record.FieldYear:   "2001",
		record.FieldRating: "8.1",
	})))
	require.NoError(t, s.AppendRecord(ctx, movie(t, "a", map[string]string{
		record.FieldName: "Swades",
	})))
	require.NoError(t, s.AppendRecord(ctx, movie(t, "", map[string]string{
		record.FieldName: "Untitled",
	})))

	records, err := s.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "z", records[0].ID())
	assert.Equal(t, "a", records[1].ID())
	assert.Len(t, records[2].ID(), 36)

	label, err := records[0].Label()
	require.NoError(t, err)
	assert.Equal(t, 8.1, label)

	_, err = records[1].Label()
	assert.ErrorIs(t, err, record.ErrLabelAbsent)

	year, ok := records[1].Get(record.FieldYear).Float()
	assert.True(t, ok)
	assert.Equal(t, 0.0, year)

	for _, rec := range records {
		assert.Nil(t, rec.Embedding)
	}
}

func TestAppendRecord_Duplicate(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStorer(t)

	require.NoError(t, s.AppendRecord(ctx, movie(t, "1", nil)))

	err := s.AppendRecord(ctx, movie(t, "1", nil))
	var werr *storer.StoreWriteError
	require.ErrorAs(t, err, &werr)
	assert.ErrorIs(t, err, storer.ErrDuplicateID)
}

func TestWriteEmbedding(t *testing.T) {
	ctx := context.Background()
	s, path := newTestStorer(t)

	require.NoError(t, s.AppendRecord(ctx, movie(t, "1", nil)))
	require.NoError(t, s.AppendRecord(ctx, movie(t, "2", nil)))

	require.NoError(t, s.WriteEmbedding(ctx, "2", []float32{0.25, -1}))

	err := s.WriteEmbedding(ctx, "3", []float32{1})
	assert.ErrorIs(t, err, storer.ErrRecordNotFound)

	// a second handle sees the persisted vector
	reopened := NewStorer(storer.WithLocation(path))
	records, err := reopened.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Nil(t, records[0].Embedding)
	assert.Equal(t, []float32{0.25, -1}, records[1].Embedding)
}

func TestAppendRecord_WithEmbedding(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStorer(t)

	rec := movie(t, "1", map[string]string{record.FieldName: "Dangal"})
	rec.Embedding = []float32{1, 0, 0}
	require.NoError(t, s.AppendRecord(ctx, rec))

	records, err := s.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []float32{1, 0, 0}, records[0].Embedding)
}

package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w-h-a/recommender"
	"github.com/w-h-a/recommender/embedder"
	"github.com/w-h-a/recommender/embedder/hashing"
	modelstore "github.com/w-h-a/recommender/model_store"
	"github.com/w-h-a/recommender/rater"
	"github.com/w-h-a/recommender/rater/regression"
	"github.com/w-h-a/recommender/record"
	"github.com/w-h-a/recommender/retriever"
	"github.com/w-h-a/recommender/retriever/cosine"
	"github.com/w-h-a/recommender/storer/memory"
)

type errorBody struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

// stubRecommender fails every operation with err and records the last
// training config it saw.
type stubRecommender struct {
	err error
	cfg rater.TrainConfig
}

func (s *stubRecommender) Schema() record.Schema { return record.Movies }

func (s *stubRecommender) EmbedMissing(ctx context.Context) (recommender.EmbedReport, error) {
	return recommender.EmbedReport{}, s.err
}

func (s *stubRecommender) Query(ctx context.Context, text string, k int) ([]recommender.Match, error) {
	return nil, s.err
}

func (s *stubRecommender) Train(ctx context.Context, cfg rater.TrainConfig) (modelstore.Version, error) {
	s.cfg = cfg
	return 7, s.err
}

func (s *stubRecommender) Predict(ctx context.Context, partial record.Record) (float64, error) {
	return 0, s.err
}

func (s *stubRecommender) Assess(ctx context.Context, partial record.Record) (recommender.Assessment, error) {
	return recommender.Assessment{}, s.err
}

func (s *stubRecommender) AddRecord(ctx context.Context, rec record.Record) (record.Record, error) {
	return record.Record{}, s.err
}

func newRouter(r Recommender) *mux.Router {
	router := mux.NewRouter()
	NewHandler(r, rater.DefaultTrainConfig()).RegisterRoutes(router)
	return router
}

func do(t *testing.T, router http.Handler, method string, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rsp := httptest.NewRecorder()
	router.ServeHTTP(rsp, req)
	return rsp
}

func decode(t *testing.T, rsp *httptest.ResponseRecorder, v any) {
	t.Helper()
	assert.Equal(t, "application/json", rsp.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(rsp.Body.Bytes(), v))
}

func TestHandler_ErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"invalid record", fmt.Errorf("%w: rating", recommender.ErrInvalidRecord), http.StatusBadRequest, "invalid_input"},
		{"invalid k", recommender.ErrInvalidK, http.StatusBadRequest, "invalid_input"},
		{"model not found", &recommender.ModelNotFoundError{Dir: "/tmp/model"}, http.StatusNotFound, "model_not_found"},
		{"insufficient data", &recommender.InsufficientDataError{Have: 1, Need: 3}, http.StatusUnprocessableEntity, "insufficient_data"},
		{"store read", &recommender.StoreReadError{Store: "sheets", Err: errors.New("403")}, http.StatusBadGateway, "store_read"},
		{"store write", &recommender.StoreWriteError{Store: "sheets", ID: "1", Err: errors.New("403")}, http.StatusBadGateway, "store_write"},
		{"encoding", &recommender.EncodingError{Model: "m", Err: errors.New("quota")}, http.StatusBadGateway, "encoding"},
		{"dimension mismatch", &recommender.DimensionMismatchError{Expected: 3, Actual: 2}, http.StatusInternalServerError, "dimension_mismatch"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			router := newRouter(&stubRecommender{err: test.err})

			rsp := do(t, router, http.MethodPost, "/v1/embeddings", "")
			assert.Equal(t, test.status, rsp.Code)

			body := errorBody{}
			decode(t, rsp, &body)
			assert.Equal(t, test.kind, body.Error.Kind)
			assert.Equal(t, test.err.Error(), body.Error.Message)
		})
	}
}

func TestHandler_BadRequests(t *testing.T) {
	router := newRouter(&stubRecommender{})

	tests := []struct {
		name   string
		method string
		target string
		body   string
	}{
		{"non-numeric k", http.MethodGet, "/v1/movies?q=x&k=many", ""},
		{"missing body", http.MethodPost, "/v1/movies", ""},
		{"malformed body", http.MethodPost, "/v1/model/predict", "{"},
		{"missing record", http.MethodPost, "/v1/model/assess", `{"fields": {}}`},
		{"unknown field", http.MethodPost, "/v1/movies", `{"record": {"Mood": "happy"}}`},
		{"fractional epochs", http.MethodPost, "/v1/model/train", `{"epochs": 1.5}`},
		{"string rate", http.MethodPost, "/v1/model/train", `{"learning_rate": "fast"}`},
		{"negative seed", http.MethodPost, "/v1/model/train", `{"seed": -1}`},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rsp := do(t, router, test.method, test.target, test.body)
			assert.Equal(t, http.StatusBadRequest, rsp.Code)

			body := errorBody{}
			decode(t, rsp, &body)
			assert.Equal(t, "invalid_input", body.Error.Kind)
		})
	}
}

func TestHandler_TrainOverrides(t *testing.T) {
	stub := &stubRecommender{}
	router := newRouter(stub)

	rsp := do(t, router, http.MethodPost, "/v1/model/train", "")
	require.Equal(t, http.StatusOK, rsp.Code)
	assert.Equal(t, rater.DefaultTrainConfig(), stub.cfg)

	rsp = do(t, router, http.MethodPost, "/v1/model/train", `{"epochs": 3, "learning_rate": 0.1, "seed": 7}`)
	require.Equal(t, http.StatusOK, rsp.Code)

	want := rater.DefaultTrainConfig()
	want.Epochs = 3
	want.LearningRate = 0.1
	want.Seed = 7
	assert.Equal(t, want, stub.cfg)

	body := struct {
		Version string            `json:"version"`
		Config  rater.TrainConfig `json:"config"`
	}{}
	decode(t, rsp, &body)
	assert.Equal(t, "v-000007", body.Version)
	assert.Equal(t, want, body.Config)
}

func TestHandler_EndToEnd(t *testing.T) {
	encoder := hashing.NewEmbedder(embedder.WithDimension(256))
	store := memory.NewStorer()
	rec := recommender.New(
		store,
		encoder,
		cosine.NewRetriever(retriever.WithEmbedder(encoder)),
		regression.NewRater(
			rater.WithBackbone(encoder),
			rater.WithStore(modelstore.NewStore(filepath.Join(t.TempDir(), "model"))),
		),
		record.Movies,
	)
	router := newRouter(rec)

	// no model yet
	rsp := do(t, router, http.MethodPost, "/v1/model/predict", `{"record": {"Movie Name": "x"}}`)
	assert.Equal(t, http.StatusNotFound, rsp.Code)

	// too few labeled records
	rsp = do(t, router, http.MethodPost, "/v1/model/train", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rsp.Code)

	movies := []string{
		`{"record": {"Movie Name": "Grey Monsoon", "Genre": "Drama", "Year": 2011, "User Liking (words)": "dragged on", "User Rating": 2}}`,
		`{"record": {"Movie Name": "Second Platform", "Genre": "Romance", "Year": "2015", "User Liking (words)": "sweet enough", "User Rating": "5"}}`,
		`{"record": {"Movie Name": "Desert Song", "Genre": "Musical", "Year": 2019, "User Liking (words)": "loved it", "User Rating": 8}}`,
	}
	for _, body := range movies {
		rsp = do(t, router, http.MethodPost, "/v1/movies", body)
		require.Equal(t, http.StatusCreated, rsp.Code, rsp.Body.String())

		added := struct {
			Record map[string]any `json:"record"`
		}{}
		decode(t, rsp, &added)
		assert.Len(t, added.Record[record.FieldID], 36)
	}

	// a record without a rating is rejected
	rsp = do(t, router, http.MethodPost, "/v1/movies", `{"record": {"Movie Name": "x", "User Liking (words)": "ok"}}`)
	assert.Equal(t, http.StatusBadRequest, rsp.Code)

	rsp = do(t, router, http.MethodPost, "/v1/embeddings", "")
	require.Equal(t, http.StatusOK, rsp.Code)
	report := recommender.EmbedReport{}
	decode(t, rsp, &report)
	assert.Equal(t, recommender.EmbedReport{}, report)

	rsp = do(t, router, http.MethodGet, "/v1/movies?q=Desert+Song+musical&k=2", "")
	require.Equal(t, http.StatusOK, rsp.Code)
	results := struct {
		Results []struct {
			Record map[string]any `json:"record"`
			Score  float64        `json:"score"`
		} `json:"results"`
		Count int `json:"count"`
	}{}
	decode(t, rsp, &results)
	require.Equal(t, 2, results.Count)
	assert.Equal(t, "Desert Song", results.Results[0].Record[record.FieldName])
	assert.Equal(t, float64(2019), results.Results[0].Record[record.FieldYear])

	rsp = do(t, router, http.MethodGet, "/v1/movies?q=x&k=-1", "")
	assert.Equal(t, http.StatusBadRequest, rsp.Code)

	rsp = do(t, router, http.MethodPost, "/v1/model/train", `{"epochs": 20}`)
	require.Equal(t, http.StatusOK, rsp.Code, rsp.Body.String())

	rsp = do(t, router, http.MethodPost, "/v1/model/predict", `{"record": {"Movie Name": "Desert Song", "Genre": "Musical"}}`)
	require.Equal(t, http.StatusOK, rsp.Code)
	prediction := struct {
		Rating float64 `json:"rating"`
	}{}
	decode(t, rsp, &prediction)
	assert.Equal(t, recommender.Round2(prediction.Rating), prediction.Rating)

	rsp = do(t, router, http.MethodPost, "/v1/model/assess", `{"record": {"Movie Name": "Desert Song"}}`)
	require.Equal(t, http.StatusOK, rsp.Code)
	assessment := struct {
		Rating  float64  `json:"rating"`
		Reviews []string `json:"reviews"`
	}{}
	decode(t, rsp, &assessment)
	assert.NotNil(t, assessment.Reviews)

	stored, err := store.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, 3)
	for _, s := range stored {
		assert.Len(t, s.Embedding, 256)
	}
}

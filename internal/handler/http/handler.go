package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/w-h-a/recommender"
	modelstore "github.com/w-h-a/recommender/model_store"
	"github.com/w-h-a/recommender/rater"
	"github.com/w-h-a/recommender/record"
	getsafe "github.com/w-h-a/recommender/util/get_safe"
)

const (
	defaultK    = 5
	maxBodySize = 1 << 20
)

var errBadRequest = errors.New("bad request")

type Recommender interface {
	Schema() record.Schema
	EmbedMissing(ctx context.Context) (recommender.EmbedReport, error)
	Query(ctx context.Context, text string, k int) ([]recommender.Match, error)
	Train(ctx context.Context, cfg rater.TrainConfig) (modelstore.Version, error)
	Predict(ctx context.Context, partial record.Record) (float64, error)
	Assess(ctx context.Context, partial record.Record) (recommender.Assessment, error)
	AddRecord(ctx context.Context, rec record.Record) (record.Record, error)
}

type Handler struct {
	recommender Recommender
	defaults    rater.TrainConfig
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/v1").Subrouter()

	api.HandleFunc("/embeddings", h.embedMissing).Methods(http.MethodPost)
	api.HandleFunc("/movies", h.query).Methods(http.MethodGet)
	api.HandleFunc("/movies", h.addRecord).Methods(http.MethodPost)
	api.HandleFunc("/model/train", h.train).Methods(http.MethodPost)
	api.HandleFunc("/model/predict", h.predict).Methods(http.MethodPost)
	api.HandleFunc("/model/assess", h.assess).Methods(http.MethodPost)
}

func (h *Handler) embedMissing(w http.ResponseWriter, r *http.Request) {
	report, err := h.recommender.EmbedMissing(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, r, report, http.StatusOK)
}

func (h *Handler) query(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("q")

	k := defaultK
	if raw := r.URL.Query().Get("k"); len(raw) > 0 {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.respondError(w, r, fmt.Errorf("%w: k must be an integer", errBadRequest))
			return
		}
		k = n
	}

	matches, err := h.recommender.Query(r.Context(), text, k)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	results := make([]map[string]any, 0, len(matches))
	for _, m := range matches {
		results = append(results, map[string]any{
			"record": recordJSON(m.Record),
			"score":  m.Score,
		})
	}

	h.respondJSON(w, r, map[string]any{
		"query":   text,
		"results": results,
		"count":   len(results),
	}, http.StatusOK)
}

func (h *Handler) addRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.decodeRecord(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	added, err := h.recommender.AddRecord(r.Context(), rec)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, r, map[string]any{
		"record": recordJSON(added),
	}, http.StatusCreated)
}

// train accepts an optional body of overrides on top of the configured
// defaults, using the same keys as the config's JSON form.
func (h *Handler) train(w http.ResponseWriter, r *http.Request) {
	payload, err := decodePayload(r, true)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	cfg := h.defaults

	ints := map[string]*int{
		"epochs":              &cfg.Epochs,
		"batch_size":          &cfg.BatchSize,
		"warmup_steps":        &cfg.WarmupSteps,
		"max_sequence_length": &cfg.MaxSequenceLength,
		"min_examples":        &cfg.MinExamples,
	}
	for key, dst := range ints {
		if _, present := payload[key]; !present {
			continue
		}
		n, ok := getsafe.Int(payload, key)
		if !ok {
			h.respondError(w, r, fmt.Errorf("%w: %s must be an integer", errBadRequest, key))
			return
		}
		*dst = n
	}

	floats := map[string]*float64{
		"weight_decay":  &cfg.WeightDecay,
		"learning_rate": &cfg.LearningRate,
	}
	for key, dst := range floats {
		if _, present := payload[key]; !present {
			continue
		}
		f, ok := getsafe.Float(payload, key)
		if !ok {
			h.respondError(w, r, fmt.Errorf("%w: %s must be a number", errBadRequest, key))
			return
		}
		*dst = f
	}

	if _, present := payload["seed"]; present {
		n, ok := getsafe.Int(payload, "seed")
		if !ok || n < 0 {
			h.respondError(w, r, fmt.Errorf("%w: seed must be a non-negative integer", errBadRequest))
			return
		}
		cfg.Seed = uint64(n)
	}

	version, err := h.recommender.Train(r.Context(), cfg)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, r, map[string]any{
		"version": version.String(),
		"config":  cfg,
	}, http.StatusOK)
}

func (h *Handler) predict(w http.ResponseWriter, r *http.Request) {
	rec, err := h.decodeRecord(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	rating, err := h.recommender.Predict(r.Context(), rec)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, r, map[string]any{
		"rating": recommender.Round2(rating),
	}, http.StatusOK)
}

func (h *Handler) assess(w http.ResponseWriter, r *http.Request) {
	rec, err := h.decodeRecord(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	assessment, err := h.recommender.Assess(r.Context(), rec)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, r, map[string]any{
		"rating":  assessment.Rating,
		"reviews": assessment.Reviews,
	}, http.StatusOK)
}

// decodeRecord reads {"record": {...}} where the inner object is keyed by
// schema field names.
func (h *Handler) decodeRecord(r *http.Request) (record.Record, error) {
	payload, err := decodePayload(r, false)
	if err != nil {
		return record.Record{}, err
	}

	fields := getsafe.Object(payload, "record")
	if fields == nil {
		return record.Record{}, fmt.Errorf("%w: record object is required", errBadRequest)
	}

	rec, err := record.FromMap(h.recommender.Schema(), fields)
	if err != nil {
		return record.Record{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}

	return rec, nil
}

func decodePayload(r *http.Request, optional bool) (map[string]any, error) {
	payload := map[string]any{}

	err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&payload)
	if errors.Is(err, io.EOF) && optional {
		return payload, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: invalid request body: %v", errBadRequest, err)
	}

	return payload, nil
}

func recordJSON(rec record.Record) map[string]any {
	out := map[string]any{}
	for _, name := range rec.Present() {
		v := rec.Get(name)
		if f, ok := v.Float(); ok {
			out[name] = f
			continue
		}
		out[name] = v.String()
	}
	return out
}

func (h *Handler) respondJSON(w http.ResponseWriter, r *http.Request, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	kind, statusCode := classify(err)

	if statusCode >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "kind", kind, "error", err)
	} else {
		slog.WarnContext(r.Context(), "request rejected", "path", r.URL.Path, "kind", kind, "error", err)
	}

	h.respondJSON(w, r, map[string]any{
		"error": map[string]any{
			"kind":    kind,
			"message": err.Error(),
		},
	}, statusCode)
}

func classify(err error) (string, int) {
	var (
		notFound     *recommender.ModelNotFoundError
		insufficient *recommender.InsufficientDataError
		mismatch     *recommender.DimensionMismatchError
		encoding     *recommender.EncodingError
		readErr      *recommender.StoreReadError
		writeErr     *recommender.StoreWriteError
		serialErr    *recommender.SerializationError
	)

	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, recommender.ErrInvalidRecord),
		errors.Is(err, recommender.ErrInvalidK),
		errors.Is(err, recommender.ErrInvalidConfig),
		errors.Is(err, recommender.ErrUnknownField):
		return "invalid_input", http.StatusBadRequest
	case errors.As(err, &notFound):
		return "model_not_found", http.StatusNotFound
	case errors.As(err, &insufficient):
		return "insufficient_data", http.StatusUnprocessableEntity
	case errors.As(err, &mismatch):
		return "dimension_mismatch", http.StatusInternalServerError
	case errors.As(err, &encoding):
		return "encoding", http.StatusBadGateway
	case errors.As(err, &readErr):
		return "store_read", http.StatusBadGateway
	case errors.As(err, &writeErr):
		return "store_write", http.StatusBadGateway
	case errors.As(err, &serialErr):
		return "serialization", http.StatusInternalServerError
	default:
		return "internal", http.StatusInternalServerError
	}
}

func NewHandler(r Recommender, defaults rater.TrainConfig) *Handler {
	return &Handler{
		recommender: r,
		defaults:    defaults,
	}
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/w-h-a/recommender"
	"github.com/w-h-a/recommender/embedder"
	"github.com/w-h-a/recommender/embedder/google"
	"github.com/w-h-a/recommender/embedder/hashing"
	"github.com/w-h-a/recommender/embedder/openai"
	handler "github.com/w-h-a/recommender/internal/handler/http"
	modelstore "github.com/w-h-a/recommender/model_store"
	"github.com/w-h-a/recommender/rater"
	"github.com/w-h-a/recommender/rater/regression"
	"github.com/w-h-a/recommender/record"
	"github.com/w-h-a/recommender/retriever"
	"github.com/w-h-a/recommender/retriever/cosine"
	"github.com/w-h-a/recommender/server"
	httpserver "github.com/w-h-a/recommender/server/http"
	"github.com/w-h-a/recommender/storer"
	"github.com/w-h-a/recommender/storer/memory"
	"github.com/w-h-a/recommender/storer/postgres"
	"github.com/w-h-a/recommender/storer/sheets"
	"github.com/w-h-a/recommender/storer/sqlite"
)

var version = "dev"

var (
	cfg struct {
		// Server config
		Address         string        `help:"Address for the HTTP server" default:":8080" env:"ADDRESS"`
		ShutdownTimeout time.Duration `help:"Grace period for in-flight requests on shutdown" default:"15s"`
		LogLevel        string        `help:"Log level" enum:"debug,info,warn,error" default:"info" env:"LOG_LEVEL"`

		// Store config
		Store           string `help:"Record store backend" enum:"memory,sheets,postgres,sqlite" default:"sqlite" env:"STORE"`
		StoreLocation   string `help:"Spreadsheet id, postgres DSN, or sqlite path" default:"movies.db" env:"STORE_LOCATION"`
		SheetName       string `help:"Worksheet holding the movie table" default:"movies_list" env:"SHEET_NAME"`
		CredentialsFile string `help:"Service account credentials for the sheets store" default:"" env:"GOOGLE_APPLICATION_CREDENTIALS"`
		Table           string `help:"Table name for the postgres store" default:"movies" env:"TABLE"`

		// Embedder config
		Embedder          string `help:"Sentence encoder backend" enum:"hashing,openai,google" default:"hashing" env:"EMBEDDER"`
		EmbedderKey       string `help:"API Key for the embedder" default:"" env:"EMBEDDER_API_KEY"`
		EmbedderModel     string `help:"Model identifier for the embedder" default:"" env:"EMBEDDER_MODEL"`
		EmbedderDimension int    `help:"Embedding dimension" default:"0" env:"EMBEDDER_DIMENSION"`
		EmbedOnStart      bool   `help:"Embed every record missing a vector before serving"`

		// Retriever config
		ParallelThreshold int `help:"Candidate count above which scoring runs in parallel" default:"4096"`

		// Rater config
		ModelDir          string  `help:"Directory holding the versioned rating model" default:"model" env:"MODEL_DIR"`
		Epochs            int     `help:"Training epochs" default:"10"`
		BatchSize         int     `help:"Training batch size" default:"8"`
		WarmupSteps       int     `help:"Linear warmup steps" default:"10"`
		WeightDecay       float64 `help:"Decoupled weight decay" default:"0.01"`
		LearningRate      float64 `help:"Peak learning rate" default:"0.5"`
		MaxSequenceLength int     `help:"Maximum tokens per record including the leading marker" default:"512"`
		MinExamples       int     `help:"Minimum labeled records required to train" default:"3"`
		Seed              uint64  `help:"Shuffle seed" default:"42"`
	}
)

func main() {
	// Load .env before parsing so env defaults apply
	_ = godotenv.Load()

	_ = kong.Parse(&cfg, kong.Description("Movie recommendation and rating service."))

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level(cfg.LogLevel)})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Create store
	store := newStore()

	// Create shared encoder
	encoder := embedder.NewHandle(newEncoder)

	// Create retriever
	re := cosine.NewRetriever(
		retriever.WithEmbedder(encoder),
		retriever.WithParallelThreshold(cfg.ParallelThreshold),
	)

	// Create rater
	ra := regression.NewRater(
		rater.WithBackbone(encoder),
		rater.WithStore(modelstore.NewStore(cfg.ModelDir)),
	)

	// Create recommender
	rec := recommender.New(
		store,
		encoder,
		re,
		ra,
		record.Movies,
	)
	defer rec.Close()

	if cfg.EmbedOnStart {
		report, err := rec.EmbedMissing(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "failed to embed missing records", "error", err)
			os.Exit(1)
		}
		slog.InfoContext(ctx, "embedded missing records on start", "processed", report.Processed, "failed", report.Failed)
	}

	defaults := rater.TrainConfig{
		Epochs:            cfg.Epochs,
		BatchSize:         cfg.BatchSize,
		WarmupSteps:       cfg.WarmupSteps,
		WeightDecay:       cfg.WeightDecay,
		LearningRate:      cfg.LearningRate,
		MaxSequenceLength: cfg.MaxSequenceLength,
		MinExamples:       cfg.MinExamples,
		Seed:              cfg.Seed,
	}

	if err := defaults.Validate(); err != nil {
		slog.ErrorContext(ctx, "invalid training defaults", "error", err)
		os.Exit(1)
	}

	// Create routes
	router := mux.NewRouter()
	handler.NewHandler(rec, defaults).RegisterRoutes(router)

	// Create server
	srv := httpserver.NewServer(
		server.WithName("recommender"),
		server.WithVersion(version),
		server.WithAddress(cfg.Address),
		httpserver.WithMiddleware(recoverer),
	)
	srv.Handle(router)

	if err := srv.Start(); err != nil {
		slog.ErrorContext(ctx, "failed to start server", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()

	slog.InfoContext(context.Background(), "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "failed to stop server", "error", err)
	}
}

func newStore() storer.Storer {
	opts := []storer.Option{
		storer.WithLocation(cfg.StoreLocation),
		storer.WithSchema(record.Movies),
	}

	switch cfg.Store {
	case "memory":
		return memory.NewStorer(opts...)
	case "sheets":
		opts = append(opts, sheets.WithSheetName(cfg.SheetName))
		if len(cfg.CredentialsFile) > 0 {
			opts = append(opts, sheets.WithCredentialsFile(cfg.CredentialsFile))
		}
		return sheets.NewStorer(opts...)
	case "postgres":
		opts = append(opts, postgres.WithTable(cfg.Table))
		return postgres.NewStorer(opts...)
	default:
		return sqlite.NewStorer(opts...)
	}
}

// newEncoder builds the configured encoder. Remote clients are constructed
// here rather than at start-up so that a failed construction can be
// retried by the next caller.
func newEncoder(ctx context.Context) (e embedder.Embedder, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to construct %s encoder: %v", cfg.Embedder, r)
		}
	}()

	opts := []embedder.Option{
		embedder.WithApiKey(cfg.EmbedderKey),
		embedder.WithModel(cfg.EmbedderModel),
		embedder.WithDimension(cfg.EmbedderDimension),
	}

	switch cfg.Embedder {
	case "openai":
		return openai.NewEmbedder(opts...), nil
	case "google":
		return google.NewEmbedder(opts...), nil
	default:
		return hashing.NewEmbedder(opts...), nil
	}
}

func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.ErrorContext(r.Context(), "panic serving request", "path", r.URL.Path, "panic", rec)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func level(name string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return l
}

package embedder

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Factory constructs the underlying encoder. It is expensive and is
// called at most once per successful Handle.
type Factory func(ctx context.Context) (Embedder, error)

type holder struct {
	embedder Embedder
}

// Handle is a lazily constructed, shared encoder. The first caller builds
// the encoder under a mutex; every later caller, concurrent or not, gets
// the same instance. A failed construction is not cached.
type Handle struct {
	factory  Factory
	instance atomic.Pointer[holder]
	mtx      sync.Mutex
}

func (h *Handle) Get(ctx context.Context) (Embedder, error) {
	if hd := h.instance.Load(); hd != nil {
		return hd.embedder, nil
	}

	h.mtx.Lock()
	defer h.mtx.Unlock()

	if hd := h.instance.Load(); hd != nil {
		return hd.embedder, nil
	}

	e, err := h.factory(ctx)
	if err != nil {
		return nil, Wrap("", err)
	}
	if e == nil {
		return nil, Wrap("", errors.New("factory returned no encoder"))
	}

	h.instance.Store(&holder{embedder: e})

	slog.InfoContext(ctx, "constructed shared encoder", "model", e.Model(), "dimension", e.Dimension())

	return e, nil
}

func (h *Handle) Embed(ctx context.Context, text string) ([]float32, error) {
	e, err := h.Get(ctx)
	if err != nil {
		return nil, err
	}
	vec, err := e.Embed(ctx, text)
	if err != nil {
		return nil, Wrap(e.Model(), err)
	}
	return vec, nil
}

func (h *Handle) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	e, err := h.Get(ctx)
	if err != nil {
		return nil, err
	}
	vecs, err := e.EmbedMany(ctx, texts)
	if err != nil {
		return nil, Wrap(e.Model(), err)
	}
	return vecs, nil
}

// Dimension reports the encoder dimension, or 0 before construction.
func (h *Handle) Dimension() int {
	if hd := h.instance.Load(); hd != nil {
		return hd.embedder.Dimension()
	}
	return 0
}

func (h *Handle) Model() string {
	if hd := h.instance.Load(); hd != nil {
		return hd.embedder.Model()
	}
	return ""
}

func NewHandle(factory Factory) *Handle {
	if factory == nil {
		panic("embedder factory is required")
	}

	return &Handle{
		factory: factory,
	}
}

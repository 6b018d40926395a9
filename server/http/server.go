package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/w-h-a/recommender/server"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type httpServer struct {
	options  server.Options
	router   *mux.Router
	srv      *http.Server
	listener net.Listener
	mtx      sync.RWMutex
	done     chan struct{}
}

func (s *httpServer) Options() server.Options {
	return s.options
}

// Handle mounts h at the root of the router. Call before Start.
func (s *httpServer) Handle(h http.Handler) {
	s.router.PathPrefix("/").Handler(h)
}

func (s *httpServer) Start() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.listener != nil {
		return errors.New("server already started")
	}

	l, err := net.Listen("tcp", s.options.Address)
	if err != nil {
		return err
	}

	var handler http.Handler = s.router

	if ms, ok := MiddlewareFrom(s.options.Context); ok {
		for i := len(ms) - 1; i >= 0; i-- {
			handler = ms[i](handler)
		}
	}

	s.srv = &http.Server{
		Handler:           otelhttp.NewHandler(handler, s.options.Name),
		ReadHeaderTimeout: ReadHeaderTimeoutFrom(s.options.Context),
	}
	s.listener = l
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		if err := s.srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.ErrorContext(context.Background(), "http server stopped", "error", err)
		}
	}()

	slog.InfoContext(context.Background(), "http server listening", "name", s.options.Name, "version", s.options.Version, "address", l.Addr().String())

	return nil
}

func (s *httpServer) Stop(ctx context.Context) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.srv == nil {
		return nil
	}

	err := s.srv.Shutdown(ctx)

	select {
	case <-s.done:
	case <-ctx.Done():
	}

	s.srv = nil
	s.listener = nil

	return err
}

// Address reports the bound address once started, else the configured one.
func (s *httpServer) Address() string {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}

	return s.options.Address
}

func NewServer(opts ...server.Option) server.Server {
	options := server.NewOptions(opts...)

	return &httpServer{
		options: options,
		router:  mux.NewRouter(),
	}
}

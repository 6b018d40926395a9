package server

import (
	"context"
	"net/http"
)

// Server exposes a handler over a transport until stopped.
type Server interface {
	Options() Options
	Handle(h http.Handler)
	Start() error
	Stop(ctx context.Context) error
	Address() string
}

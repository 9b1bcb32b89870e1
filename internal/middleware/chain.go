package middleware

import (
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/mihaisavezi/llm-bridge/internal/config"
)

// Middleware represents a middleware function
type Middleware func(http.Handler) http.Handler

// Chain represents a middleware chain
type Chain struct {
	middlewares []Middleware
}

// New creates a new middleware chain
func New(middlewares ...Middleware) Chain {
	return Chain{middlewares: middlewares}
}

// Then adds more middleware to the chain
func (c Chain) Then(middlewares ...Middleware) Chain {
	all := make([]Middleware, 0, len(c.middlewares)+len(middlewares))
	all = append(all, c.middlewares...)
	return Chain{middlewares: append(all, middlewares...)}
}

// Handler applies all middleware in the chain to the given handler
func (c Chain) Handler(handler http.Handler) http.Handler {
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		handler = c.middlewares[i](handler)
	}

	return handler
}

// Slice returns the middlewares in order, for routers that take a list.
func (c Chain) Slice() []func(http.Handler) http.Handler {
	out := make([]func(http.Handler) http.Handler, len(c.middlewares))
	for i, m := range c.middlewares {
		out[i] = m
	}
	return out
}

// MiddlewareSet contains all configured middleware for easy composition
type MiddlewareSet struct {
	RequestID Middleware
	RealIP    Middleware
	Recoverer Middleware
	Logging   Middleware
	Auth      Middleware
}

func NewMiddlewareSet(config *config.Manager, logger *slog.Logger) MiddlewareSet {
	return MiddlewareSet{
		RequestID: chimw.RequestID,
		RealIP:    chimw.RealIP,
		Recoverer: chimw.Recoverer,
		Logging:   NewLoggingMiddleware(logger),
		Auth:      NewAuthMiddleware(config, logger),
	}
}

// BaseChain runs on every route.
func (ms MiddlewareSet) BaseChain() Chain {
	return New(
		ms.RequestID,
		ms.RealIP,
		ms.Recoverer,
	)
}

// DefaultChain is used for the query API.
func (ms MiddlewareSet) DefaultChain() Chain {
	return ms.BaseChain().Then(ms.Logging, ms.Auth)
}

// HealthChain returns the middleware chain for health endpoints (no auth)
func (ms MiddlewareSet) HealthChain() Chain {
	return ms.BaseChain().Then(ms.Logging)
}

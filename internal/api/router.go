// Package api exposes the staking ledger over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"staking-ledger/internal/custody"
	"staking-ledger/internal/events"
	"staking-ledger/internal/observability"
	"staking-ledger/internal/staking"
	"staking-ledger/internal/storage"
)

// AccountHeader carries the acting account of a request.
const AccountHeader = "X-Account"

// Options configures the HTTP server.
type Options struct {
	Service *staking.Service
	Events  storage.EventStore
	Hub     *events.Hub

	// Custody enables the development custody endpoints. Nil disables them.
	Custody custody.Book

	// Status returns the body of GET /status. Optional.
	Status func() interface{}

	Logger *zap.Logger
}

// Server holds the handler dependencies.
type Server struct {
	svc      *staking.Service
	events   storage.EventStore
	hub      *events.Hub
	custody  custody.Book
	status   func() interface{}
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewRouter builds the HTTP handler for all routes.
func NewRouter(opts Options) http.Handler {
	s := &Server{
		svc:    opts.Service,
		events: opts.Events,
		hub:    opts.Hub,
		custody: opts.Custody,
		status: opts.Status,
		logger: opts.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", observability.Handler())
	r.Get("/status", s.handleStatus)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/tokens", func(r chi.Router) {
			r.Post("/", s.handleAddToken)
			r.Get("/", s.handleListTokens)
			r.Route("/{token}", func(r chi.Router) {
				r.Get("/", s.handleIsAvailable)
				r.Get("/balance", s.handleGetBalance)
				r.Post("/fund", s.handleFund)
				r.Post("/owner-withdraw", s.handleOwnerWithdraw)
			})
		})

		r.Route("/investigations", func(r chi.Router) {
			r.Post("/", s.handleDeposit)
			r.Get("/last", s.handleLastID)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetByID)
				r.Get("/reward", s.handleEstimateReward)
				r.Post("/withdraw", s.handleWithdraw)
				r.Post("/refund", s.handleRefund)
			})
		})

		r.Post("/rewards/estimate", s.handleComputeReward)
		r.Get("/users/{user}/investigations", s.handleListByUser)

		if s.events != nil {
			r.Get("/events", s.handleEvents)
		}
		if s.hub != nil {
			r.Get("/events/stream", s.handleStream)
		}

		if s.custody != nil {
			r.Route("/custody/{token}", func(r chi.Router) {
				r.Post("/mint", s.handleMint)
				r.Post("/approve", s.handleApprove)
				r.Get("/accounts/{account}", s.handleCustodyBalance)
			})
		}
	})

	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var body interface{} = map[string]string{"status": "ok"}
	if s.status != nil {
		body = s.status()
	}
	writeJSON(w, http.StatusOK, body)
}

// requestLogger logs one line per request with zap.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

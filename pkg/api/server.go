// Package api exposes the ledger and delegation operations over REST plus a
// WebSocket feed of fills. The transport layer is deliberately thin: all
// semantics live in the venue and delegation packages.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/pairbook/pairbook/pkg/delegation"
	"github.com/pairbook/pairbook/pkg/venue"
)

// Server handles REST API and WebSocket connections.
type Server struct {
	base   *venue.Venue
	eph    *venue.Venue
	mgr    *delegation.Manager
	router *mux.Router
	hub    *Hub
	log    *zap.SugaredLogger
}

func NewServer(base, eph *venue.Venue, mgr *delegation.Manager, logger *zap.SugaredLogger) *Server {
	s := &Server{
		base:   base,
		eph:    eph,
		mgr:    mgr,
		router: mux.NewRouter(),
		hub:    NewHub(logger),
		log:    logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Ledger lifecycle
	api.HandleFunc("/ledgers", s.handleCreateLedger).Methods("POST")
	api.HandleFunc("/ledgers", s.handleListLedgers).Methods("GET")
	api.HandleFunc("/ledgers/{id}", s.handleGetLedger).Methods("GET")
	api.HandleFunc("/ledgers/{id}/book", s.handleGetBook).Methods("GET")
	api.HandleFunc("/ledgers/{id}/balances/{owner}", s.handleGetBalance).Methods("GET")

	// Trading
	api.HandleFunc("/ledgers/{id}/orders", s.handleCreateOrder).Methods("POST")
	api.HandleFunc("/ledgers/{id}/match", s.handleMatchOrder).Methods("POST")
	api.HandleFunc("/ledgers/{id}/deposit", s.handleDeposit).Methods("POST")
	api.HandleFunc("/ledgers/{id}/withdraw", s.handleWithdraw).Methods("POST")

	// Delegation handoff
	api.HandleFunc("/ledgers/{id}/delegate", s.handleDelegate).Methods("POST")
	api.HandleFunc("/ledgers/{id}/undelegate", s.handleUndelegate).Methods("POST")
	api.HandleFunc("/ledgers/{id}/status", s.handleForceStatus).Methods("POST")
	api.HandleFunc("/undelegations", s.handleProcessUndelegation).Methods("POST")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      c.Handler(s.router),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Infow("api_listening", "addr", addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// target picks the venue a mutating call is routed to. Default is the base
// venue; ?venue=ephemeral targets the fast venue.
func (s *Server) target(r *http.Request) *venue.Venue {
	if r.URL.Query().Get("venue") == string(venue.Ephemeral) {
		return s.eph
	}
	return s.base
}

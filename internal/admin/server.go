// SPDX-License-Identifier: AGPL-3.0-or-later

package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/warpfusion/warpfusion/internal/sink"
)

// Server is the admin HTTP surface, wrapped as a suture-compatible
// service the same way the teacher wraps *http.Server (spec §11,
// grounded on the teacher's HTTPServerService: start ListenAndServe in a
// goroutine, Shutdown on context cancellation).
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
	log             zerolog.Logger
}

// Config controls the admin server's bind address and the CORS origins
// allowed on its HTTP endpoints. The websocket upgrade for the live alert
// feed accepts any origin.
type Config struct {
	Listen          string
	CORSOrigins     []string
	ShutdownTimeout time.Duration
}

// New builds the admin server's router and binds it to cfg.Listen.
// alertFeed, if non-nil, is joined by every accepted websocket client so
// it can broadcast alert records (spec §6.2's ws sink).
func New(cfg Config, alertFeed *sink.WSSink, log zerolog.Logger) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	log = log.With().Str("component", "admin").Logger()

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/healthz", healthz)
	r.Handle("/metrics", promhttp.Handler())
	mountPprof(r)

	if alertFeed != nil {
		upgrader := websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true }, // operator-local, unauthenticated surface
		}
		r.Get("/ws", newWSHandler(upgrader, alertFeed, log))
	}

	return &Server{
		httpServer:      &http.Server{Addr: cfg.Listen, Handler: r},
		shutdownTimeout: cfg.ShutdownTimeout,
		log:             log,
	}
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func mountPprof(r chi.Router) {
	r.Route("/debug/pprof", func(r chi.Router) {
		r.Get("/", pprof.Index)
		r.Get("/cmdline", pprof.Cmdline)
		r.Get("/profile", pprof.Profile)
		r.Get("/symbol", pprof.Symbol)
		r.Post("/symbol", pprof.Symbol)
		r.Get("/trace", pprof.Trace)
		r.Get("/{name}", func(w http.ResponseWriter, req *http.Request) {
			pprof.Handler(chi.URLParam(req, "name")).ServeHTTP(w, req)
		})
	})
}

// Serve implements the blocking Serve(ctx) shape the supervisor tree
// expects of every component (grounded on the teacher's
// HTTPServerService.Serve).
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("admin: server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("admin: shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (s *Server) String() string { return "admin-server" }

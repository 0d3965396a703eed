// Package ops runs the operational sidecar: liveness, readiness and pprof
// on a separate port so the dashboard surface never exposes profiling.
package ops

import (
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"rnadash/internal"
	"rnadash/internal/session"
)

// Server is the ops HTTP sidecar.
type Server struct {
	router chi.Router
	store  *session.Store
	logger *internal.Logger
}

// NewServer builds the sidecar routes against the snapshot store.
func NewServer(store *session.Store, logger *internal.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		store:  store,
		logger: logger,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Heartbeat("/healthz"))

	s.router.Get("/readyz", s.handleReady)

	s.router.Route("/debug/pprof", func(r chi.Router) {
		r.Get("/", http.HandlerFunc(pprof.Index))
		r.Get("/cmdline", http.HandlerFunc(pprof.Cmdline))
		r.Get("/profile", http.HandlerFunc(pprof.Profile))
		r.Get("/symbol", http.HandlerFunc(pprof.Symbol))
		r.Get("/trace", http.HandlerFunc(pprof.Trace))
		r.Get("/{name}", func(w http.ResponseWriter, req *http.Request) {
			pprof.Handler(chi.URLParam(req, "name")).ServeHTTP(w, req)
		})
	})

	return s
}

// handleReady reports whether a snapshot has ever been committed. Useful to
// distinguish a fresh process from one carrying results.
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.store.Current() == nil {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"idle","has_results":false}`))
		return
	}
	w.Write([]byte(`{"status":"ready","has_results":true}`))
}

// Run serves the sidecar on the given port until the listener fails.
func (s *Server) Run(port string) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("[Ops] Sidecar listening on :%s", port)
	return srv.ListenAndServe()
}

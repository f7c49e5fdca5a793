package server

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/trakrf/action-spec-sub003/src/pkg/applier"
	"github.com/trakrf/action-spec-sub003/src/pkg/config"
	"github.com/trakrf/action-spec-sub003/src/pkg/github"
	"github.com/trakrf/action-spec-sub003/src/pkg/spec"
)

var logger = log.WithField("package", "server")

// Server is the HTTP entrypoint over the change pipeline.
type Server struct {
	applier *applier.Applier
	parser  spec.SpecParser
	client  github.RepoClient
	cfg     config.ServerConfig
	router  *mux.Router
}

func New(a *applier.Applier, parser spec.SpecParser, client github.RepoClient, cfg config.ServerConfig) *Server {
	s := &Server{
		applier: a,
		parser:  parser,
		client:  client,
		cfg:     cfg,
		router:  mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/api/specs/apply", s.handleApply).Methods(http.MethodPost)
	s.router.HandleFunc("/api/specs/validate", s.handleValidate).Methods(http.MethodPost)
	s.router.HandleFunc("/api/specs", s.handleGetSpec).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves until ctx is cancelled, then drains within the configured
// shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", s.cfg.ListenAddr).Info("server: listening...")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	logger.Info("server: shutting down...")
	return srv.Shutdown(shutdownCtx)
}

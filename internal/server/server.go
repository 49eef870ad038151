package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/forgeiq/forgeiq/internal/admission"
	"github.com/forgeiq/forgeiq/internal/ailink"
	"github.com/forgeiq/forgeiq/internal/config"
	apperrors "github.com/forgeiq/forgeiq/internal/errors"
	"github.com/forgeiq/forgeiq/internal/observability"
	servermw "github.com/forgeiq/forgeiq/internal/server/middleware"
)

// Options wires the server to the process-wide components built at startup.
type Options struct {
	Server      config.ServerConfig
	MetricsPort int

	Service   *ailink.Service
	Admission *admission.Controller
	Providers *ailink.Registry
}

// Server is the HTTP front end for the ailink service.
type Server struct {
	router *chi.Mux
	server *http.Server
	opts   Options
	api    *api
}

// New builds the router. Nothing listens until Start.
func New(opts Options) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(servermw.RequestID)
	r.Use(servermw.RequestMetrics)
	r.Use(servermw.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewNotFoundError("The requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource"))
	})

	if opts.MetricsPort > 0 {
		metricsFallbackPort = opts.MetricsPort
	}

	s := &Server{
		router: r,
		opts:   opts,
		api: &api{
			service:   opts.Service,
			admission: opts.Admission,
			providers: opts.Providers,
		},
	}

	s.registerRoutes()

	return s
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.Addr(), err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	cfg := s.opts.Server
	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  orDefault(cfg.ReadTimeout, 30*time.Second),
		WriteTimeout: orDefault(cfg.WriteTimeout, 300*time.Second),
		IdleTimeout:  orDefault(cfg.IdleTimeout, 120*time.Second),
	}

	if logger := observability.ServerLogger; logger != nil {
		logger.Info("Starting HTTP server",
			zap.String("addr", ln.Addr().String()),
			zap.Duration("write_timeout", s.server.WriteTimeout))
	}

	err := s.server.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if logger := observability.ServerLogger; logger != nil {
		logger.Info("Shutting down HTTP server")
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr is the configured host:port.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.opts.Server.Host, fmt.Sprint(s.opts.Server.Port))
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.opts.Server.Port
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

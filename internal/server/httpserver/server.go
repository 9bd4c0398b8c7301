// Package httpserver exposes the sync services over HTTP/JSON.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/journalsync/internal/logging"
	"github.com/dmitrijs2005/journalsync/internal/models"
	"github.com/dmitrijs2005/journalsync/internal/server/auth"
	"github.com/dmitrijs2005/journalsync/internal/server/metrics"
	"github.com/dmitrijs2005/journalsync/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Services bundles what the handlers call into.
type Services struct {
	Journals     *services.RecordService[*models.Journal]
	Content      *services.RecordService[*models.Content]
	Associations *services.AssociationService
	Media        *services.MediaService
	Status       *services.StatusService
}

type Server struct {
	address         string
	router          chi.Router
	svc             Services
	metrics         *metrics.Metrics
	jwtSecret       []byte
	shutdownTimeout time.Duration
	logger          logging.Logger
}

// NewServer builds the router. m may be nil, which disables /metrics and
// request instrumentation.
func NewServer(address string, svc Services, m *metrics.Metrics, secretKey string, shutdownTimeout time.Duration, l logging.Logger) *Server {
	if l == nil {
		l = logging.Nop()
	}
	s := &Server{
		address:         address,
		svc:             svc,
		metrics:         m,
		jwtSecret:       []byte(secretKey),
		shutdownTimeout: shutdownTimeout,
		logger:          l.With("module", "http_server"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(s.instrument)
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/sync", func(r chi.Router) {
		r.Use(auth.Middleware(s.jwtSecret, s.writeError))

		r.Route("/"+models.EntityJournals, func(r chi.Router) {
			r.Post("/", uploadRecord(s, s.svc.Journals, func() *models.Journal { return &models.Journal{} }))
			mountRecordRoutes(r, s, s.svc.Journals)
		})
		r.Route("/"+models.EntityContent, func(r chi.Router) {
			r.Post("/", uploadRecord(s, s.svc.Content, func() *models.Content { return &models.Content{} }))
			mountRecordRoutes(r, s, s.svc.Content)
		})
		r.Route("/"+models.EntityMedia, func(r chi.Router) {
			r.Post("/", s.uploadMedia)
			r.Get("/{id}", s.fetchMedia)
			mountRecordRoutes(r, s, s.svc.Media.RecordService)
		})
		r.Route("/"+models.EntityAssociations, func(r chi.Router) {
			r.Post("/", s.upsertAssociations)
			r.Post("/delete", s.deleteAssociations)
			r.Get("/changes", changes(s, s.svc.Associations.RecordService))
		})

		r.Get("/status", s.status)
	})
	return r
}

// instrument records latency per route pattern rather than raw path.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveRequest(r.Method, route, status, time.Since(start))
		s.logger.Debug(r.Context(), "request", "method", r.Method, "route", route, "status", status)
	})
}

// Run serves until ctx is cancelled, then drains in-flight requests for up to
// the shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

func (s *Server) Serve(ctx context.Context, listen net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// cancelled on return so the shutdown goroutine exits when Serve fails
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	done := make(chan error, 1)
	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
		defer cancel()
		done <- srv.Shutdown(sctx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())
	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return <-done
}

package api

import (
	"context"
	"kvpaste/cfg"
	"kvpaste/metrics"
	"kvpaste/pkg/domain"
	"kvpaste/svc/lim"
	"kvpaste/svc/svc"
	"kvpaste/svc/util"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/hlog"
)

// idPattern is the routing gate for GET /{id}; anything else is a 404.
const idPattern = "{id:[A-Za-z0-9]+}"

// OpsPrefix holds the operational endpoints. "_" is outside the id alphabet,
// so no paste id can collide with them.
const OpsPrefix = "/_"

type Server struct {
	router     *chi.Mux
	cfg        *cfg.Cfg
	paste      *svc.Paste
	httpServer *http.Server
}

func NewServer(c *cfg.Cfg, p *svc.Paste, l *lim.Limiter) *Server {
	r := chi.NewRouter()
	mw := NewMw(l, c)
	s := &Server{router: r, cfg: c, paste: p}
	r.Use(mw.RequestID)
	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	r.Route(OpsPrefix, func(r chi.Router) {
		r.Use(mw.Recoverer)
		r.Get("/health", s.Health)
		r.Get("/ready", s.Ready)
		r.Handle("/metrics", mw.BasicAuthMetrics(promhttp.Handler()))
		if c.Environment != "production" {
			r.Mount("/debug", middleware.Profiler())
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(mw.Recoverer)
		r.Use(hlog.NewHandler(util.GetLogger()))
		r.Use(hlog.AccessHandler(func(req *http.Request, status, size int, dur time.Duration) {
			route := chi.RouteContext(req.Context()).RoutePattern()
			metrics.RequestDuration.
				WithLabelValues(req.Method, route, strconv.Itoa(status)).
				Observe(dur.Seconds())
			hlog.FromRequest(req).Info().
				Str("method", req.Method).
				Str("route", route).
				Int("status", status).
				Int("size", size).
				Dur("duration", dur).
				Str("client_ip", util.RedactIP(lim.GetRealIP(req, c.TrustedProxies))).
				Str("request_id", util.GetRequestID(req.Context())).
				Msg("http request")
		}))
		r.Use(mw.ContextTimeout)
		r.Use(mw.SecurityHeaders)
		r.Use(mw.AnomalyDetection)
		hdl := &Hdl{paste: p, cfg: c, lim: l}
		r.With(mw.RateLimit("create")).Post("/", hdl.Upload)
		r.With(mw.RateLimit("read")).Get("/"+idPattern, hdl.Retrieve)
	})

	s.httpServer = &http.Server{
		Addr:              ":" + c.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    64 * 1024,
	}
	return s
}
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start blocks until the server stops. It returns nil after Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		util.Error().Err(err).Str("addr", s.httpServer.Addr).Msg("listen failed")
		return err
	}
	return s.Serve(ln)
}
func (s *Server) Serve(ln net.Listener) error {
	util.Info().Str("addr", ln.Addr().String()).Msg("starting server")
	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		util.Error().Err(err).Msg("server failed")
		return err
	}
	return nil
}
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeErr(w, domain.ErrRouteNotFound, util.GetRequestID(r.Context()))
}
func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeErr(w, domain.ErrMethodNotAllowed, util.GetRequestID(r.Context()))
}

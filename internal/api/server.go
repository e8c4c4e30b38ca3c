package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"time"

	"notirelay/internal/collate"
	"notirelay/internal/notifier"
	"notirelay/internal/relay"
	rtsup "notirelay/internal/runtime/supervisor"
	"notirelay/internal/task/scheduler"
	"notirelay/internal/transport"
	logx "notirelay/pkg/logx"
)

type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// ImageTimeout bounds fetching an image for /api/send_image_url.
	ImageTimeout time.Duration
	// Pprof mounts net/http/pprof under /debug/pprof/.
	Pprof bool
}

// Router is the routing surface used by the message endpoints.
type Router interface {
	Route(ctx context.Context, title, body string) (relay.Outcome, error)
	RouteUntitled(ctx context.Context, body string) error
}

// Flusher runs an on-demand flush.
type Flusher interface {
	Flush(ctx context.Context, reason string) (relay.Report, error)
	Last() *relay.Report
}

// Deps are the collaborators behind the handlers. Store, Scheduler,
// Notifier and Metrics are optional.
type Deps struct {
	Router      Router
	Flusher     Flusher
	Sender      transport.Sender
	Store       *collate.Store
	Scheduler   *scheduler.Service
	Notifier    *notifier.Service
	Supervisor  *rtsup.Supervisor
	Metrics     http.Handler
	ImageClient *http.Client
}

type Server struct {
	cfg     Config
	deps    Deps
	log     logx.Logger
	started time.Time
	srv     *http.Server
}

func New(cfg Config, deps Deps, log logx.Logger) *Server {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = ":8000"
	}
	if cfg.ImageTimeout <= 0 {
		cfg.ImageTimeout = 30 * time.Second
	}
	if deps.ImageClient == nil {
		deps.ImageClient = &http.Client{Timeout: cfg.ImageTimeout}
	}
	s := &Server{cfg: cfg, deps: deps, log: log, started: time.Now()}
	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// SetSupervisor exposes the app goroutine counters on /api/status. Call it
// before Serve.
func (s *Server) SetSupervisor(sup *rtsup.Supervisor) { s.deps.Supervisor = sup }

// Handler returns the full route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/send_message", s.handleSendMessage)
	mux.HandleFunc("POST /api/send_message_with_title", s.handleSendMessageWithTitle)
	mux.HandleFunc("POST /api/send_image_url", s.handleSendImageURL)
	mux.HandleFunc("GET /api/send_collated_messages", s.handleSendCollated)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", s.deps.Metrics)
	}
	if s.cfg.Pprof {
		mux.HandleFunc("/debug/pprof/", hpprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", hpprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", hpprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", hpprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", hpprof.Trace)
	}
	return s.logRequests(mux)
}

// Run listens and serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(cctx); err != nil {
			s.log.Warn("http shutdown incomplete", logx.Err(err))
		}
	}()

	s.log.Info("http server started", logx.String("addr", ln.Addr().String()), logx.Bool("pprof", s.cfg.Pprof))
	err := s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return nil
	}
	return err
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			return
		}
		s.log.Debug("http request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", sw.status),
			logx.Duration("took", time.Since(start)))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

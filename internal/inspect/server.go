package inspect

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// DefaultHeartbeat is the interval between websocket pings.
	DefaultHeartbeat = 15 * time.Second

	// DefaultWriteTimeout bounds every websocket write.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultSendBuffer is the number of change messages queued per watcher
	// before new changes are dropped.
	DefaultSendBuffer = 64

	// DefaultShutdownTimeout bounds graceful shutdown in ListenAndServe.
	DefaultShutdownTimeout = 5 * time.Second
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHeartbeat sets the ping interval of watch streams.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.heartbeat = d
		}
	}
}

// WithWriteTimeout sets the deadline applied to each websocket write.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// WithSendBuffer sets the per-watcher message queue length.
func WithSendBuffer(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.sendBuffer = n
		}
	}
}

// WithRegistry serves /metrics from reg and registers the inspector's own
// collectors with it. Without it /metrics serves the default registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.metrics = reg
	}
}

// WithCheckOrigin sets the websocket origin check. The default accepts
// same-origin requests only.
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(s *Server) {
		s.upgrader.CheckOrigin = fn
	}
}

// Server is the inspector HTTP server.
type Server struct {
	registry     *Registry
	logger       *slog.Logger
	heartbeat    time.Duration
	writeTimeout time.Duration
	sendBuffer   int
	metrics      *prometheus.Registry
	upgrader     websocket.Upgrader
	router       chi.Router

	watchersGauge prometheus.Gauge
	droppedTotal  prometheus.Counter
	failuresTotal prometheus.Counter

	mu       sync.Mutex
	watchers map[string]*watcher
}

// New creates a server exposing reg.
func New(reg *Registry, opts ...Option) *Server {
	s := &Server{
		registry:     reg,
		logger:       slog.Default().With("component", "inspect"),
		heartbeat:    DefaultHeartbeat,
		writeTimeout: DefaultWriteTimeout,
		sendBuffer:   DefaultSendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		watchers: make(map[string]*watcher),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.metrics != nil {
		factory := promauto.With(s.metrics)
		s.watchersGauge = factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "inspect",
			Name:      "watchers",
			Help:      "Number of open watch streams",
		})
		s.droppedTotal = factory.NewCounter(prometheus.CounterOpts{
			Namespace: "inspect",
			Name:      "dropped_messages_total",
			Help:      "Change messages dropped because a watcher fell behind",
		})
		s.failuresTotal = factory.NewCounter(prometheus.CounterOpts{
			Namespace: "inspect",
			Name:      "stream_failures_total",
			Help:      "Watch streams ended by a write or heartbeat failure",
		})
	}

	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Get("/refs", s.handleList)
	r.Get("/refs/{name}", s.handleRef)
	r.Get("/watch", s.handleWatch)

	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Watchers returns the number of open watch streams.
func (s *Server) Watchers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully and closes every watch stream.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("inspector listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()

	s.CloseWatchers()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}
	s.logger.Info("inspector stopped")
	return nil
}

// CloseWatchers closes every open watch stream.
func (s *Server) CloseWatchers() {
	s.mu.Lock()
	open := make([]*watcher, 0, len(s.watchers))
	for _, w := range s.watchers {
		open = append(open, w)
	}
	s.mu.Unlock()

	for _, w := range open {
		w.close()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.registry.Snapshot())
}

func (s *Server) handleRef(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	snap, ok := s.registry.Lookup(name)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, errorBody{Error: ErrUnknownRef.Error(), Name: name})
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

type errorBody struct {
	Error string `json:"error"`
	Name  string `json:"name,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("encode response", "error", err)
		http.Error(w, "encoding error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roman-kulish/rf-sentinel/internal/render"
	"github.com/roman-kulish/rf-sentinel/internal/spectrum"
	"github.com/roman-kulish/rf-sentinel/internal/storage"
)

const (
	DefaultListen = ":9108"

	shutdownTimeout = 5 * time.Second
	readTimeout     = 10 * time.Second
)

// Journal is the read side of the run journal
type Journal interface {
	Detections(ctx context.Context, sessionID string, opts ...storage.QueryOption) ([]storage.Detection, error)
	Captures(ctx context.Context, sessionID string) ([]storage.Capture, error)
}

// FrameSource provides the current waterfall, *spectrum.Waterfall satisfies it
type FrameSource interface {
	Frame() *spectrum.Frame
}

// Response is the envelope of every API response
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// WithLogger sets the logger for the server
func WithLogger(logger *slog.Logger) func(*Server) {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithGatherer serves the metrics of g on /metrics
func WithGatherer(g prometheus.Gatherer) func(*Server) {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithJournal serves the detections and captures of a session
func WithJournal(j Journal, sessionID string) func(*Server) {
	return func(s *Server) {
		s.journal = j
		s.sessionID = sessionID
	}
}

// WithWaterfall serves the live waterfall as JSON and as an image
func WithWaterfall(src FrameSource, r *render.Renderer) func(*Server) {
	return func(s *Server) {
		s.frames = src
		s.renderer = r
	}
}

// Server exposes metrics, status and the journal over HTTP
type Server struct {
	listen  string
	tracker *Tracker

	gatherer  prometheus.Gatherer
	journal   Journal
	sessionID string
	frames    FrameSource
	renderer  *render.Renderer

	logger *slog.Logger
}

func New(listen string, tracker *Tracker, options ...func(*Server)) *Server {
	if listen == "" {
		listen = DefaultListen
	}

	s := Server{
		listen:  listen,
		tracker: tracker,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// Handler returns the routes of the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok\n")
	})
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/detections", s.handleDetections)
	mux.HandleFunc("GET /api/captures", s.handleCaptures)
	mux.HandleFunc("GET /api/waterfall", s.handleWaterfall)
	mux.HandleFunc("GET /api/waterfall.png", s.handleWaterfallImage)

	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.logger.Info("serving", slog.String("address", ln.Addr().String()))

	select {
	case err := <-errCh:
		return fmt.Errorf("serving HTTP: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.tracker == nil {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("status is not tracked"))
		return
	}
	s.writeJSON(w, http.StatusOK, s.tracker.Status())
}

func (s *Server) handleDetections(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("journal is not enabled"))
		return
	}

	opts, err := detectionQuery(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	detections, err := s.journal.Detections(r.Context(), s.sessionID, opts...)
	if err != nil {
		s.logger.Error(fmt.Sprintf("querying detections: %s", err.Error()))
		s.writeError(w, http.StatusInternalServerError, errors.New("querying detections failed"))
		return
	}
	if detections == nil {
		detections = []storage.Detection{}
	}
	s.writeJSON(w, http.StatusOK, detections)
}

func (s *Server) handleCaptures(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("journal is not enabled"))
		return
	}

	captures, err := s.journal.Captures(r.Context(), s.sessionID)
	if err != nil {
		s.logger.Error(fmt.Sprintf("querying captures: %s", err.Error()))
		s.writeError(w, http.StatusInternalServerError, errors.New("querying captures failed"))
		return
	}
	if captures == nil {
		captures = []storage.Capture{}
	}
	s.writeJSON(w, http.StatusOK, captures)
}

func (s *Server) handleWaterfall(w http.ResponseWriter, r *http.Request) {
	if s.frames == nil {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("waterfall is not enabled"))
		return
	}
	s.writeJSON(w, http.StatusOK, s.frames.Frame())
}

func (s *Server) handleWaterfallImage(w http.ResponseWriter, r *http.Request) {
	if s.frames == nil || s.renderer == nil {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("waterfall is not enabled"))
		return
	}

	img, err := s.renderer.Render(s.frames.Frame())
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err = render.Encode(w, img, render.PNG); err != nil {
		s.logger.Warn(fmt.Sprintf("encoding waterfall: %s", err.Error()))
	}
}

// detectionQuery reads from, to (RFC 3339), min, max (Hz) and limit
func detectionQuery(r *http.Request) ([]storage.QueryOption, error) {
	q := r.URL.Query()
	var opts []storage.QueryOption

	for _, p := range []struct {
		name string
		opt  func(time.Time) storage.QueryOption
	}{
		{"from", storage.WithStartTime},
		{"to", storage.WithEndTime},
	} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", p.name, err)
		}
		opts = append(opts, p.opt(t))
	}

	if lo, hi := q.Get("min"), q.Get("max"); lo != "" || hi != "" {
		minFreq, maxFreq := 0.0, 1e12
		var err error
		if lo != "" {
			if minFreq, err = strconv.ParseFloat(lo, 64); err != nil {
				return nil, fmt.Errorf("invalid min: %w", err)
			}
		}
		if hi != "" {
			if maxFreq, err = strconv.ParseFloat(hi, 64); err != nil {
				return nil, fmt.Errorf("invalid max: %w", err)
			}
		}
		opts = append(opts, storage.WithFrequencyRange(minFreq, maxFreq))
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return nil, fmt.Errorf("invalid limit: %q", v)
		}
		opts = append(opts, storage.WithLimit(limit))
	}

	return opts, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(Response{Success: true, Data: data}); err != nil {
		s.logger.Warn(fmt.Sprintf("writing response: %s", err.Error()))
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(Response{Success: false, Error: err.Error()})
}

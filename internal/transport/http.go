// Package transport delivers chat events to the pipeline and serves its results
// over HTTP and Telegram.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ppiankov/ranger/internal/logging"
	"github.com/ppiankov/ranger/internal/metrics"
	"github.com/ppiankov/ranger/internal/model"
	"github.com/ppiankov/ranger/internal/pipeline"
)

const (
	transportHTTP   = "http"
	maxRequestBytes = 1 << 20
	shutdownTimeout = 5 * time.Second
)

// Service is the part of the pipeline the transports call; *pipeline.Pipeline implements it
type Service interface {
	ProcessMessage(ctx context.Context, msg model.Message) (pipeline.Outcome, error)
	Ask(ctx context.Context, query string) (pipeline.AskResult, error)
	Learn(ctx context.Context, topic string) (*model.KnowledgeRecord, error)
	Feedback(ctx context.Context, userID string, positive bool, comment string) error
	UnknownCommand(ctx context.Context, command string) error
	Improve() []model.Proposal
	Status(ctx context.Context) (model.StatusReport, error)
}

// HTTPServer exposes the pipeline as a JSON API
type HTTPServer struct {
	router   chi.Router
	service  Service
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewHTTPServer creates the API server. gatherer may be nil, which disables /metrics.
func NewHTTPServer(service Service, gatherer prometheus.Gatherer, logger *zap.Logger, m *metrics.Metrics) *HTTPServer {
	s := &HTTPServer{
		service:  service,
		gatherer: gatherer,
		logger:   logging.OrNop(logger).Named("http"),
		metrics:  m,
	}
	s.router = s.buildRouter()
	return s
}

// ServeHTTP implements http.Handler.
func (s *HTTPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *HTTPServer) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/messages", s.handleMessage)
		r.Get("/search", s.handleSearch)
		r.Post("/learn", s.handleLearn)
		r.Post("/feedback", s.handleFeedback)
		r.Get("/status", s.handleStatus)
		r.Post("/improve", s.handleImprove)
	})
	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *HTTPServer) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type requestIDKey struct{}

// requestID tags each request with a correlation id, reusing X-Request-ID when the
// caller supplies one
func (s *HTTPServer) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func (s *HTTPServer) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type messageRequest struct {
	ChannelID string    `json:"channel_id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *HTTPServer) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	s.metrics.ObserveMessage(transportHTTP)

	out, err := s.service.ProcessMessage(r.Context(), model.Message{
		ChannelID: req.ChannelID,
		UserID:    req.UserID,
		Content:   req.Content,
		Timestamp: req.Timestamp,
	})
	if err != nil {
		s.fail(w, r, "process message", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.Ask(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.fail(w, r, "search", err)
		return
	}
	if !res.Found() {
		writeError(w, http.StatusNotFound, "no knowledge about "+res.Query)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleLearn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topic string `json:"topic"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	rec, err := s.service.Learn(r.Context(), req.Topic)
	if err != nil {
		s.fail(w, r, "learn", err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *HTTPServer) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   string `json:"user_id"`
		Positive bool   `json:"positive"`
		Comment  string `json:"comment"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.service.Feedback(r.Context(), req.UserID, req.Positive, req.Comment); err != nil {
		s.fail(w, r, "feedback", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.Status(r.Context())
	if err != nil {
		s.fail(w, r, "status", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"headline": report.Headline(),
		"report":   report,
	})
}

func (s *HTTPServer) handleImprove(w http.ResponseWriter, r *http.Request) {
	applied := s.service.Improve()
	if applied == nil {
		applied = []model.Proposal{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"applied": applied})
}

// fail maps the error taxonomy onto status codes
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrRejectedInput):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrTransientFetch):
		status = http.StatusBadGateway
	case errors.Is(err, model.ErrStorageUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.Error(err))
	}
	writeError(w, status, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

package http

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cwygoda/tokbot/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	maxTimestampSkew = 5 * time.Minute
	maxBodyBytes     = 64 << 10
)

// Service is what the ops surface needs from the request pipeline.
type Service interface {
	Run(ctx context.Context, src domain.SourceURL, target domain.Target) domain.Report
	UserStats(ctx context.Context, telegramID int64) (*domain.UserStats, error)
	ServiceStats(ctx context.Context) (*domain.ServiceStats, error)
}

// Options configures optional parts of the server.
type Options struct {
	// Secret signs POST /deliver and the stats routes. Empty disables
	// /deliver and leaves stats open, for loopback-only listeners.
	Secret string
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// Health checks dependencies for /health.
	Health func(ctx context.Context) error
	Logger *slog.Logger
}

// Server is the HTTP adapter exposing health, metrics, stats and signed delivery.
type Server struct {
	svc    Service
	opts   Options
	router chi.Router
	server *http.Server
	logger *slog.Logger
}

// NewServer creates a new HTTP server.
func NewServer(svc Service, addr string, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		svc:    svc,
		opts:   opts,
		router: chi.NewRouter(),
		logger: opts.Logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)
	s.router.Group(func(r chi.Router) {
		if s.opts.Secret != "" {
			r.Use(s.requireSignature)
		}
		r.Get("/stats", s.handleServiceStats)
		r.Get("/users/{id}/stats", s.handleUserStats)
	})
	if s.opts.Metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.opts.Metrics)
	}
	if s.opts.Secret != "" {
		s.router.Post("/deliver", s.handleDeliver)
	}
}

// deliverRequest is the request body for POST /deliver.
type deliverRequest struct {
	URL    string `json:"url"`
	ChatID int64  `json:"chat_id"`
}

// outcomeResponse is the JSON response for POST /deliver.
type outcomeResponse struct {
	Success        bool   `json:"success"`
	Kind           string `json:"kind"`
	Provider       string `json:"provider,omitempty"`
	ItemsDelivered int    `json:"items_delivered"`
	TotalBytes     int64  `json:"total_bytes"`
	Attempts       int    `json:"attempts"`
	Error          string `json:"error,omitempty"`
}

type userStatsResponse struct {
	TelegramID         int64   `json:"telegram_id"`
	Username           string  `json:"username,omitempty"`
	TotalRequests      int64   `json:"total_requests"`
	SuccessfulRequests int64   `json:"successful_requests"`
	SuccessRate        float64 `json:"success_rate"`
	CreatedAt          string  `json:"created_at"`
	LastActivity       string  `json:"last_activity"`
}

type serviceStatsResponse struct {
	TotalUsers         int64   `json:"total_users"`
	TotalRequests      int64   `json:"total_requests"`
	SuccessfulRequests int64   `json:"successful_requests"`
	SuccessRate        float64 `json:"success_rate"`
}

// errorResponse is the JSON error response.
type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleDeliver(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	if err := s.verifySignature(r, body); err != nil {
		s.logger.Warn("deliver verification failed", "error", err, "request_id", middleware.GetReqID(r.Context()))
		s.writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	var req deliverRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ChatID == 0 {
		s.writeError(w, http.StatusBadRequest, "chat_id is required")
		return
	}

	src, err := domain.ExtractSourceURL(req.URL)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "url is not a supported TikTok link")
		return
	}

	rep := s.svc.Run(r.Context(), src, domain.Target{ChatID: req.ChatID, SourceURL: src})
	status := http.StatusOK
	if !rep.Outcome.Success {
		status = http.StatusBadGateway
	}
	s.writeJSON(w, status, reportToResponse(rep))
}

// requireSignature rejects bodiless requests whose X-Signature does not
// cover the timestamp.
func (s *Server) requireSignature(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.verifySignature(r, nil); err != nil {
			s.logger.Warn("stats verification failed", "error", err, "request_id", middleware.GetReqID(r.Context()))
			s.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// verifySignature checks X-Signature = hex(HMAC-SHA256(secret, timestamp + "\n" + body)).
func (s *Server) verifySignature(r *http.Request, body []byte) error {
	timestamp := r.Header.Get("X-Timestamp")
	if timestamp == "" {
		return fmt.Errorf("missing X-Timestamp header")
	}

	ts, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return fmt.Errorf("invalid X-Timestamp: must be ISO8601/RFC3339 format")
	}

	skew := time.Since(ts)
	if skew < 0 {
		skew = -skew
	}
	if skew > maxTimestampSkew {
		return fmt.Errorf("X-Timestamp too far from current time (skew: %v, max: %v)", skew.Truncate(time.Second), maxTimestampSkew)
	}

	signature := r.Header.Get("X-Signature")
	if signature == "" {
		return fmt.Errorf("missing X-Signature header")
	}
	got, err := hex.DecodeString(signature)
	if err != nil || !hmac.Equal(got, Sign(s.opts.Secret, timestamp, body)) {
		return fmt.Errorf("invalid signature")
	}
	return nil
}

// Sign computes the signature expected in X-Signature, before hex encoding.
func Sign(secret, timestamp string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("\n"))
	mac.Write(body)
	return mac.Sum(nil)
}

func (s *Server) handleUserStats(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid user ID")
		return
	}

	stats, err := s.svc.UserStats(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.writeError(w, http.StatusNotFound, "user not found")
			return
		}
		s.logger.Error("user stats error", "error", err, "user_id", id)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.writeJSON(w, http.StatusOK, userStatsResponse{
		TelegramID:         stats.TelegramID,
		Username:           stats.Username,
		TotalRequests:      stats.TotalRequests,
		SuccessfulRequests: stats.SuccessfulRequests,
		SuccessRate:        stats.SuccessRate,
		CreatedAt:          stats.CreatedAt.UTC().Format(time.RFC3339),
		LastActivity:       stats.LastActivity.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleServiceStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.ServiceStats(r.Context())
	if err != nil {
		s.logger.Error("service stats error", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.writeJSON(w, http.StatusOK, serviceStatsResponse(*stats))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.opts.Health != nil {
		if err := s.opts.Health(r.Context()); err != nil {
			s.logger.Warn("health check failed", "error", err)
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func reportToResponse(rep domain.Report) outcomeResponse {
	return outcomeResponse{
		Success:        rep.Outcome.Success,
		Kind:           rep.Outcome.Kind.String(),
		Provider:       rep.Provider,
		ItemsDelivered: rep.Outcome.ItemsDelivered,
		TotalBytes:     rep.Outcome.TotalBytes,
		Attempts:       len(rep.Attempts),
		Error:          rep.Outcome.ErrorReason,
	}
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// ServeHTTP implements http.Handler for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.server.Addr
}

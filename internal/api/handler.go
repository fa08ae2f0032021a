package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/devricklin/feedback-monitor/internal/biz/domain"
	"github.com/devricklin/feedback-monitor/internal/biz/usecase"
	"github.com/devricklin/feedback-monitor/internal/metrics"
)

const (
	defaultWindowHours = 24
	defaultDigestLimit = 20
)

// Server provides the localhost operator API
type Server struct {
	feedbackUC *usecase.FeedbackUsecase
	digestUC   *usecase.DigestUsecase
	batchUC    *usecase.BatchUsecase
	log        zerolog.Logger

	server *http.Server
	addr   string
}

// NewServer creates a new API server
func NewServer(feedbackUC *usecase.FeedbackUsecase, digestUC *usecase.DigestUsecase, batchUC *usecase.BatchUsecase, addr string, logger zerolog.Logger) *Server {
	return &Server{
		feedbackUC: feedbackUC,
		digestUC:   digestUC,
		batchUC:    batchUC,
		addr:       addr,
		log:        logger.With().Str("component", "api").Logger(),
	}
}

// Handler builds the route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Digest operations
	mux.HandleFunc("POST /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/destination", s.handleGetDestination)
	mux.HandleFunc("PUT /api/destination", s.handleSetDestination)
	mux.HandleFunc("GET /api/digests", s.handleDigests)

	// Feedback queries
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/feedback", s.handleFeedback)
	mux.HandleFunc("GET /api/feedback/actionable", s.handleActionable)
	mux.HandleFunc("GET /api/feedback/negative", s.handleNegative)
	mux.HandleFunc("GET /api/feedback/type/{type}", s.handleByType)

	// Queue
	mux.HandleFunc("GET /api/queue", s.handleQueue)

	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return mux
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info().Str("addr", s.addr).Msg("starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// ============ Digest Handlers ============

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	deliverTo := ""
	if deliver, _ := strconv.ParseBool(r.URL.Query().Get("deliver")); deliver {
		deliverTo = s.digestUC.Destination(r.Context())
		if deliverTo == "" {
			s.writeStatus(w, http.StatusBadRequest, errors.New("no summary channel configured"))
			return
		}
	}

	digest, run, err := s.digestUC.Run(r.Context(), domain.TriggerManual, deliverTo)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, map[string]interface{}{
		"title":         digest.Title,
		"text":          digest.Text,
		"message_count": digest.MessageCount,
		"run":           run,
	})
}

func (s *Server) handleGetDestination(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{"channel_id": s.digestUC.Destination(r.Context())})
}

func (s *Server) handleSetDestination(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		ChannelID string `json:"channel_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := s.digestUC.SetDestination(ctx, req.ChannelID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"channel_id": s.digestUC.Destination(ctx)})
}

func (s *Server) handleDigests(w http.ResponseWriter, r *http.Request) {
	runs, err := s.digestUC.History(r.Context(), intParam(r, "limit", defaultDigestLimit))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"digests": runs})
}

// ============ Feedback Handlers ============

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.feedbackUC.Stats(r.Context(), window(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, stats)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	records, err := s.feedbackUC.List(r.Context(), window(r), r.URL.Query().Get("app"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeRecords(w, records)
}

func (s *Server) handleActionable(w http.ResponseWriter, r *http.Request) {
	records, err := s.feedbackUC.Actionable(r.Context(), window(r), intParam(r, "limit", 0))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeRecords(w, records)
}

func (s *Server) handleNegative(w http.ResponseWriter, r *http.Request) {
	records, err := s.feedbackUC.Negative(r.Context(), window(r), intParam(r, "limit", 0))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeRecords(w, records)
}

func (s *Server) handleByType(w http.ResponseWriter, r *http.Request) {
	records, err := s.feedbackUC.ByType(r.Context(), window(r), r.PathValue("type"), intParam(r, "limit", 0))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeRecords(w, records)
}

// ============ Queue Handlers ============

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	depth, err := s.batchUC.QueueLen(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{
		"depth":        depth,
		"retry_count":  s.batchUC.RetryCount(),
		"last_backoff": s.batchUC.LastBackoff().String(),
	})
}

// ============ Helpers ============

// window reads ?hours=, defaulting to one day; 0 means all time
func window(r *http.Request) time.Duration {
	return time.Duration(intParam(r, "hours", defaultWindowHours)) * time.Hour
}

func intParam(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			return parsed
		}
	}
	return def
}

func (s *Server) writeRecords(w http.ResponseWriter, records []*domain.FeedbackRecord) {
	if records == nil {
		records = []*domain.FeedbackRecord{}
	}
	s.writeJSON(w, map[string]interface{}{"feedback": records, "count": len(records)})
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, domain.ErrInvalidArgument) {
		status = http.StatusBadRequest
	}
	s.writeStatus(w, status, err)
}

func (s *Server) writeStatus(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": fmt.Sprint(err)})
}

// Package httpapi exposes the engine over HTTP: starting research runs,
// streaming run events over WebSocket, health, and metrics. Report
// persistence and presentation stay with external collaborators.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/meridianvc/scout/internal/models"
	"github.com/meridianvc/scout/internal/orchestrator"
	"github.com/meridianvc/scout/internal/streaming"
)

// Service is the orchestrator surface the API depends on.
type Service interface {
	RunDiscoveryWithID(ctx context.Context, runID string, tasks []models.AgentTask) (*orchestrator.DiscoveryResult, error)
	RunDeepResearch(ctx context.Context, runID string, records []models.CompanyRecord, topN int) (*orchestrator.DeepResearchResult, error)
}

// TaskBuilder expands an optional segment filter into the AgentTask fan-out
// from configuration. Empty filter means all configured segments.
type TaskBuilder func(segments []string) []models.AgentTask

// Server wires the HTTP surface.
type Server struct {
	svc        Service
	buildTasks TaskBuilder
	events     *streaming.Manager
	logger     *zap.Logger
	upgrader   websocket.Upgrader
}

func NewServer(svc Service, buildTasks TaskBuilder, events *streaming.Manager, logger *zap.Logger) *Server {
	return &Server{
		svc:        svc,
		buildTasks: buildTasks,
		events:     events,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/research", s.handleResearch)
	mux.HandleFunc("GET /api/v1/runs/{id}/events", s.handleEvents)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

type researchRequest struct {
	Segments     []string `json:"segments,omitempty"`
	DeepResearch bool     `json:"deep_research"`
	TopN         int      `json:"top_n,omitempty"`

	// Async returns a run ID immediately; progress arrives on the run's
	// event stream.
	Async bool `json:"async"`
}

type asyncResponse struct {
	RunID string `json:"run_id"`
}

func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	var req researchRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}
	}

	tasks := s.buildTasks(req.Segments)
	if len(tasks) == 0 {
		writeError(w, http.StatusBadRequest, "no tasks for requested segments")
		return
	}
	runID := uuid.NewString()

	if req.Async {
		go s.execute(context.WithoutCancel(r.Context()), runID, tasks, req)
		writeJSON(w, http.StatusAccepted, asyncResponse{RunID: runID})
		return
	}

	payload, err := s.run(r.Context(), runID, tasks, req)
	if err != nil {
		if errors.Is(err, orchestrator.ErrAllProvidersFailed) {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		s.logger.Error("research run failed", zap.String("run_id", runID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "research run failed")
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) execute(ctx context.Context, runID string, tasks []models.AgentTask, req researchRequest) {
	if _, err := s.run(ctx, runID, tasks, req); err != nil {
		s.logger.Error("async research run failed",
			zap.String("run_id", runID), zap.Error(err))
	}
}

func (s *Server) run(ctx context.Context, runID string, tasks []models.AgentTask, req researchRequest) (*orchestrator.ReportPayload, error) {
	discovery, err := s.svc.RunDiscoveryWithID(ctx, runID, tasks)
	if err != nil {
		return nil, err
	}
	var deep *orchestrator.DeepResearchResult
	if req.DeepResearch {
		deep, err = s.svc.RunDeepResearch(ctx, runID, discovery.Companies, req.TopN)
		if err != nil {
			return nil, err
		}
	}
	return orchestrator.BuildReport(discovery, deep), nil
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	events, cancel := s.events.Subscribe(runID)
	defer cancel()

	// Drain client frames so close messages are processed.
	go func() {
		for {
			if _, _, rerr := conn.ReadMessage(); rerr != nil {
				cancel()
				return
			}
		}
	}()

	for ev := range events {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if werr := conn.WriteJSON(ev); werr != nil {
			return
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

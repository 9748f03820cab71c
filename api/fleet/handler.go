package fleet

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tankerfleet/tankerfleet/core/ml"
	"github.com/tankerfleet/tankerfleet/core/model"
	"github.com/tankerfleet/tankerfleet/infra/logger"
)

// predictions is the response body for GET /api/fleet/predictions.
type predictions struct {
	TankerID         string        `json:"tanker_id"`
	ArrivalTimeHours *float64      `json:"arrival_time_hours,omitempty"`
	DelayProbability *float64      `json:"delay_probability,omitempty"`
	NextStatus       *model.Status `json:"next_status,omitempty"`
}

// Handler exposes the fleet HTTP API.
type Handler struct {
	pipeline *ml.Pipeline
	workers  func() map[string]bool
	log      logger.Logger
}

// NewHandler builds the fleet API handler. The workers callback reports
// per-worker liveness for the health endpoint; nil omits the flags.
func NewHandler(pipeline *ml.Pipeline, workers func() map[string]bool, log logger.Logger) *Handler {
	return &Handler{pipeline: pipeline, workers: workers, log: log}
}

// Register mounts the API routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/fleet/health", h.handleHealth)
	mux.HandleFunc("/api/fleet/predictions", h.handlePredictions)
	mux.HandleFunc("/api/fleet/train", h.handleTrain)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := map[string]any{"status": "ok"}
	if h.workers != nil {
		resp["workers"] = h.workers()
	}
	writeJSON(w, resp)
}

func (h *Handler) handlePredictions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tankerID := r.URL.Query().Get("tanker_id")
	if tankerID == "" {
		http.Error(w, "tanker_id is required", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	resp := predictions{TankerID: tankerID}
	if v, ok := h.pipeline.PredictArrivalTime(ctx, tankerID); ok {
		resp.ArrivalTimeHours = &v
	}
	if v, ok := h.pipeline.PredictDelayProbability(ctx, tankerID); ok {
		resp.DelayProbability = &v
	}
	if s, ok := h.pipeline.PredictNextStatus(ctx, tankerID); ok {
		resp.NextStatus = &s
	}
	writeJSON(w, resp)
}

func (h *Handler) handleTrain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	trained, err := h.pipeline.TrainAll(r.Context())
	if err != nil {
		if errors.Is(err, ml.ErrInsufficientData) {
			writeJSON(w, map[string]any{"trained": false, "reason": "insufficient data"})
			return
		}
		h.log.Errorf("train request failed: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"trained": trained})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

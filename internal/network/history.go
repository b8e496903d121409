// Package network - history.go
// Alarm history endpoints: the stored event ledger replayed as alarm
// timelines, operator recaps and aggregate counts.
package network

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/MRamiBalles/StationAtmos/server/internal/infra/storage"
	"github.com/MRamiBalles/StationAtmos/server/internal/platform/logger"
)

// HistoryHandler serves alarm history from the event repository.
type HistoryHandler struct {
	repo          storage.EventRepository
	reconstructor *storage.Reconstructor
	logger        *logger.Logger
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(repo storage.EventRepository, log *logger.Logger) *HistoryHandler {
	return &HistoryHandler{
		repo:          repo,
		reconstructor: storage.NewReconstructor(repo),
		logger:        log,
	}
}

// TimelineResponse is the API response for an alarm timeline.
type TimelineResponse struct {
	Entity      string                    `json:"entity,omitempty"`
	SinceTick   int64                     `json:"since_tick"`
	Total       int                       `json:"total"`
	GeneratedAt string                    `json:"generated_at"`
	Transitions []storage.AlarmTransition `json:"transitions"`
}

// HandleTimeline returns alarm transitions.
// GET /api/history/alarms?entity=XXX&since=N
func (hh *HistoryHandler) HandleTimeline(w http.ResponseWriter, r *http.Request) {
	since, ok := hh.sinceParam(w, r)
	if !ok {
		return
	}
	entity := r.URL.Query().Get("entity")

	timeline, err := hh.reconstructor.AlarmTimeline(r.Context(), entity, since)
	if err != nil {
		hh.logger.Errorf("alarm timeline failed: %v", err)
		writeError(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	if timeline == nil {
		timeline = []storage.AlarmTransition{}
	}

	writeJSON(w, http.StatusOK, TimelineResponse{
		Entity:      entity,
		SinceTick:   since,
		Total:       len(timeline),
		GeneratedAt: time.Now().Format(time.RFC3339),
		Transitions: timeline,
	})
}

// HandleRecap returns a human-readable recap for one actor or the station.
// GET /api/history/recap?actor=XXX&since=N
func (hh *HistoryHandler) HandleRecap(w http.ResponseWriter, r *http.Request) {
	since, ok := hh.sinceParam(w, r)
	if !ok {
		return
	}
	actor := r.URL.Query().Get("actor")

	recap, err := hh.reconstructor.GenerateRecap(r.Context(), actor, since)
	if err != nil {
		hh.logger.Errorf("recap failed: %v", err)
		writeError(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	if recap == nil {
		recap = []storage.RecapEvent{}
	}
	hh.logger.Event("HISTORY_RECAP", "OPERATOR", "Actor:"+actor+" Events:"+strconv.Itoa(len(recap)))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"actor":  actor,
		"since":  since,
		"events": recap,
	})
}

// HandleLevels returns the last stored level of every alarm.
// GET /api/history/levels
func (hh *HistoryHandler) HandleLevels(w http.ResponseWriter, r *http.Request) {
	levels, err := hh.reconstructor.RebuildAlarmLevels(r.Context())
	if err != nil {
		hh.logger.Errorf("rebuild alarm levels failed: %v", err)
		writeError(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	out := make(map[string]string, len(levels))
	for entity, l := range levels {
		out[entity] = l.String()
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleStats returns aggregate event counts.
// GET /api/history/stats
func (hh *HistoryHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	all, err := hh.repo.GetAll(r.Context())
	if err != nil {
		hh.logger.Errorf("history stats failed: %v", err)
		writeError(w, "history unavailable", http.StatusInternalServerError)
		return
	}

	byType := make(map[string]int)
	for _, e := range all {
		byType[e.EventType]++
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"generated_at": time.Now().Format(time.RFC3339),
		"total_events": len(all),
		"by_type":      byType,
	})
}

// RegisterRoutes sets up the history API routes.
func (hh *HistoryHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/history/alarms", hh.HandleTimeline).Methods(http.MethodGet)
	r.HandleFunc("/api/history/recap", hh.HandleRecap).Methods(http.MethodGet)
	r.HandleFunc("/api/history/levels", hh.HandleLevels).Methods(http.MethodGet)
	r.HandleFunc("/api/history/stats", hh.HandleStats).Methods(http.MethodGet)
}

func (hh *HistoryHandler) sinceParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		return 0, true
	}
	since, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || since < 0 {
		writeError(w, "since must be a non-negative tick", http.StatusBadRequest)
		return 0, false
	}
	return since, true
}

// writeJSON sends a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError sends an error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

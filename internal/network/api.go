// Package network - api.go
// Operator REST API: tile inspection, zone reports, device and wire
// control, alarms and appearances.
package network

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/MRamiBalles/StationAtmos/server/internal/domain/alarm"
	"github.com/MRamiBalles/StationAtmos/server/internal/domain/tile"
	"github.com/MRamiBalles/StationAtmos/server/internal/engine"
	"github.com/MRamiBalles/StationAtmos/server/internal/platform/logger"
	"github.com/MRamiBalles/StationAtmos/server/internal/platform/metrics"
)

// API exposes the engine over HTTP.
type API struct {
	engine  *engine.Engine
	hub     *Hub
	history *HistoryHandler
	metrics *metrics.Collector
	logger  *logger.Logger
}

// NewAPI builds the handler set. hub, history and m may be nil; their
// routes are then left out.
func NewAPI(eng *engine.Engine, hub *Hub, history *HistoryHandler, m *metrics.Collector, log *logger.Logger) *API {
	return &API{engine: eng, hub: hub, history: history, metrics: m, logger: log}
}

// WireRequest is the body of a wire action.
type WireRequest struct {
	Actor  string `json:"actor"`
	Wire   string `json:"wire"`
	Action string `json:"action"`
}

// ZoneRequest is the body of a zone report.
type ZoneRequest struct {
	Actor  string          `json:"actor"`
	Coords []tile.Vector2i `json:"coords"`
}

// Router returns the full route table.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "tick": a.engine.Tick()})
	}).Methods(http.MethodGet)

	r.HandleFunc("/api/grids", a.handleGrids).Methods(http.MethodGet)
	r.HandleFunc("/api/grids/{grid}/tiles", a.handleGridTiles).Methods(http.MethodGet)
	r.HandleFunc("/api/grids/{grid}/tiles/{x}/{y}", a.handleTile).Methods(http.MethodGet)
	r.HandleFunc("/api/grids/{grid}/tiles/{x}/{y}/neighbors", a.handleNeighbors).Methods(http.MethodGet)
	r.HandleFunc("/api/grids/{grid}/zone", a.handleZone).Methods(http.MethodPost)
	r.HandleFunc("/api/grids/{grid}/hazards", a.handleHazard).Methods(http.MethodPost)

	r.HandleFunc("/api/devices", a.handleDevices).Methods(http.MethodGet)
	r.HandleFunc("/api/devices/{id}/wire", a.handleWire).Methods(http.MethodPost)
	r.HandleFunc("/api/devices/{id}/power", a.handlePower).Methods(http.MethodPost)
	r.HandleFunc("/api/devices/{id}/target", a.handleTarget).Methods(http.MethodPost)
	r.HandleFunc("/api/devices/{id}/mode", a.handleMode).Methods(http.MethodPost)

	r.HandleFunc("/api/alarms", a.handleAlarms).Methods(http.MethodGet)
	r.HandleFunc("/api/alarms/{id}", a.handleAlarmLevel).Methods(http.MethodGet)
	r.HandleFunc("/api/alarms/{id}/alert", a.handleAlert).Methods(http.MethodPost)

	r.HandleFunc("/api/appearances", a.handleAppearances).Methods(http.MethodGet)

	if a.metrics != nil {
		r.Handle("/api/metrics", a.metrics.Handler()).Methods(http.MethodGet)
		r.Handle("/metrics", a.metrics.PrometheusHandler()).Methods(http.MethodGet)
	}
	if a.history != nil {
		a.history.RegisterRoutes(r)
	}
	if a.hub != nil {
		r.HandleFunc("/ws", a.hub.ServeWS)
	}
	return r
}

func (a *API) handleGrids(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.engine.Grids())
}

func (a *API) handleGridTiles(w http.ResponseWriter, r *http.Request) {
	views, err := a.engine.GridView(tile.GridID(mux.Vars(r)["grid"]))
	if err != nil {
		a.engineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (a *API) handleTile(w http.ResponseWriter, r *http.Request) {
	grid, at, ok := tileVars(w, r)
	if !ok {
		return
	}
	view, err := a.engine.GetTile(grid, at)
	if err != nil {
		a.engineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleNeighbors(w http.ResponseWriter, r *http.Request) {
	grid, at, ok := tileVars(w, r)
	if !ok {
		return
	}
	views, err := a.engine.GetNeighbors(grid, at)
	if err != nil {
		a.engineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (a *API) handleZone(w http.ResponseWriter, r *http.Request) {
	var req ZoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	snap, err := a.engine.ZoneInfo(req.Actor, tile.GridID(mux.Vars(r)["grid"]), req.Coords)
	if err != nil {
		a.engineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HazardRequest is the body of a hazard drill.
type HazardRequest struct {
	Actor string `json:"actor"`
	Kind  string `json:"kind"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
}

func (a *API) handleHazard(w http.ResponseWriter, r *http.Request) {
	var req HazardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	kind, err := engine.ParseHazardKind(req.Kind)
	if err != nil {
		a.engineError(w, err)
		return
	}
	grid := tile.GridID(mux.Vars(r)["grid"])
	at := tile.Vector2i{X: req.X, Y: req.Y}
	if err := a.engine.TriggerHazard(grid, kind, at); err != nil {
		a.engineError(w, err)
		return
	}
	a.logger.Event("HAZARD_DRILL", req.Actor, string(kind)+" "+string(grid)+at.String())
	writeJSON(w, http.StatusOK, map[string]interface{}{"kind": kind, "grid": grid, "tile": at})
}

func (a *API) handleDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.engine.Devices())
}

func (a *API) handleWire(w http.ResponseWriter, r *http.Request) {
	var req WireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	id := mux.Vars(r)["id"]
	if err := a.engine.ApplyWire(req.Actor, id, req.Wire, req.Action); err != nil {
		a.engineError(w, err)
		return
	}
	a.logger.Event("WIRE_REQUEST", req.Actor, id+" "+req.Wire+" "+req.Action)
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"queued": true, "target": id})
}

func (a *API) handlePower(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Actor   string `json:"actor"`
		Enabled bool   `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	a.engine.Submit(engine.Command{
		Kind:    engine.CmdSetEnabled,
		Target:  mux.Vars(r)["id"],
		Actor:   req.Actor,
		Enabled: req.Enabled,
		Reason:  "OPERATOR",
	})
	writeJSON(w, http.StatusAccepted, map[string]bool{"queued": true})
}

func (a *API) handleTarget(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Actor string  `json:"actor"`
		KPa   float64 `json:"kpa"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !(req.KPa >= 0) {
		writeError(w, "kpa must be non-negative", http.StatusBadRequest)
		return
	}
	a.engine.Submit(engine.Command{Kind: engine.CmdSetTarget, Target: mux.Vars(r)["id"], Actor: req.Actor, KPa: req.KPa})
	writeJSON(w, http.StatusAccepted, map[string]bool{"queued": true})
}

func (a *API) handleMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Actor string `json:"actor"`
		Mode  string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	mode := engine.VentMode(req.Mode)
	if mode != engine.VentRelease && mode != engine.VentSiphon {
		writeError(w, "mode must be RELEASE or SIPHON", http.StatusBadRequest)
		return
	}
	a.engine.Submit(engine.Command{Kind: engine.CmdSetMode, Target: mux.Vars(r)["id"], Actor: req.Actor, Mode: mode})
	writeJSON(w, http.StatusAccepted, map[string]bool{"queued": true})
}

func (a *API) handleAlarms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.engine.Alarms())
}

func (a *API) handleAlarmLevel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	level, err := a.engine.GetHighestAlert(id)
	if err != nil {
		a.engineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"entity": id, "level": level.String()})
}

func (a *API) handleAlert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Level string `json:"level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	level, ok := alarm.ParseLevel(req.Level)
	if !ok {
		writeError(w, "unknown alarm level", http.StatusBadRequest)
		return
	}
	id := mux.Vars(r)["id"]
	if err := a.engine.Alert(id, level); err != nil {
		a.engineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"entity": id, "forced": level.String()})
}

func (a *API) handleAppearances(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.engine.Appearances())
}

// engineError maps sentinel engine errors onto HTTP statuses.
func (a *API) engineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrGridNotFound),
		errors.Is(err, engine.ErrTileNotFound),
		errors.Is(err, engine.ErrDeviceNotFound),
		errors.Is(err, engine.ErrPipeNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, engine.ErrUnknownWire), errors.Is(err, engine.ErrUnknownHazard):
		writeError(w, err.Error(), http.StatusBadRequest)
	default:
		a.logger.Errorf("api: %v", err)
		writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

func tileVars(w http.ResponseWriter, r *http.Request) (tile.GridID, tile.Vector2i, bool) {
	vars := mux.Vars(r)
	x, errX := strconv.Atoi(vars["x"])
	y, errY := strconv.Atoi(vars["y"])
	if errX != nil || errY != nil {
		writeError(w, "tile coordinates must be integers", http.StatusBadRequest)
		return "", tile.Vector2i{}, false
	}
	return tile.GridID(vars["grid"]), tile.Vector2i{X: x, Y: y}, true
}

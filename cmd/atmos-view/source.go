package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/MRamiBalles/StationAtmos/server/internal/domain/layout"
	"github.com/MRamiBalles/StationAtmos/server/internal/domain/tile"
	"github.com/MRamiBalles/StationAtmos/server/internal/engine"
	"github.com/MRamiBalles/StationAtmos/server/internal/events"
	"github.com/MRamiBalles/StationAtmos/server/internal/platform/config"
	"github.com/MRamiBalles/StationAtmos/server/internal/platform/logger"
	"github.com/MRamiBalles/StationAtmos/server/internal/platform/metrics"
)

// Frame is everything one redraw needs.
type Frame struct {
	Tick        int64
	Tiles       []engine.TileView
	Appearances []engine.Appearance
	Alarms      []engine.AlarmView
}

// Source produces frames for the viewer.
type Source interface {
	Frame(ctx context.Context) (Frame, error)
	// Breach punches a hull breach at the tile.
	Breach(at tile.Vector2i) error
	Name() string
}

// localSource runs its own engine.
type localSource struct {
	eng  *engine.Engine
	grid tile.GridID
}

func newLocalSource(ctx context.Context, preset, mapName string) (*localSource, error) {
	cfg, err := config.Preset(preset)
	if err != nil {
		return nil, err
	}
	m, err := layout.Load(mapName)
	if err != nil {
		return nil, err
	}
	eng := engine.NewEngine(cfg, events.NewEventLog(nil), logger.Discard(), metrics.NewCollector(), nil)
	if _, err := eng.LoadLayout(m, "station"); err != nil {
		return nil, err
	}
	eng.Start(ctx)
	return &localSource{eng: eng, grid: "station"}, nil
}

func (s *localSource) Name() string { return "local" }

func (s *localSource) Frame(ctx context.Context) (Frame, error) {
	tiles, err := s.eng.GridView(s.grid)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Tick:        s.eng.Tick(),
		Tiles:       tiles,
		Appearances: s.eng.Appearances(),
		Alarms:      s.eng.Alarms(),
	}, nil
}

func (s *localSource) Breach(at tile.Vector2i) error {
	return s.eng.TriggerHazard(s.grid, engine.HazardBreach, at)
}

func (s *localSource) Stop() { s.eng.Stop() }

// remoteSource polls a running server's REST API.
type remoteSource struct {
	base   string
	grid   string
	client *http.Client
}

func newRemoteSource(base, grid string) *remoteSource {
	return &remoteSource{base: base, grid: grid, client: &http.Client{Timeout: 3 * time.Second}}
}

func (s *remoteSource) Name() string { return s.base }

func (s *remoteSource) Frame(ctx context.Context) (Frame, error) {
	var f Frame
	var health struct {
		Tick int64 `json:"tick"`
	}
	if err := s.get(ctx, "/health", &health); err != nil {
		return f, err
	}
	f.Tick = health.Tick
	if err := s.get(ctx, "/api/grids/"+s.grid+"/tiles", &f.Tiles); err != nil {
		return f, err
	}
	if err := s.get(ctx, "/api/appearances", &f.Appearances); err != nil {
		return f, err
	}
	if err := s.get(ctx, "/api/alarms", &f.Alarms); err != nil {
		return f, err
	}
	return f, nil
}

func (s *remoteSource) Breach(at tile.Vector2i) error {
	body, err := json.Marshal(map[string]interface{}{"kind": "HULL_BREACH", "x": at.X, "y": at.Y})
	if err != nil {
		return err
	}
	resp, err := s.client.Post(s.base+"/api/grids/"+s.grid+"/hazards", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("breach: %s", resp.Status)
	}
	return nil
}

func (s *remoteSource) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

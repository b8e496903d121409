package config

// Recommendations provides suggestions based on observed metrics.
type Recommendations struct {
	ReduceTileBudget        bool
	IncreaseBroadcastBuffer bool
	IncreaseDBConnections   bool
	Notes                   []string
}

// Analyze examines a metrics snapshot against the configured tick rate.
func Analyze(cfg *Config, metrics map[string]interface{}) *Recommendations {
	rec := &Recommendations{
		Notes: make([]string, 0),
	}

	budgetMs := float64(cfg.Server.TickRate.Milliseconds())
	if tick, ok := metrics["tick"].(map[string]interface{}); ok {
		if avg, ok := tick["avg_latency_ms"].(float64); ok && budgetMs > 0 && avg > budgetMs/2 {
			rec.ReduceTileBudget = true
			rec.Notes = append(rec.Notes, "Average tick latency exceeds half the tick rate - lower the tile budget")
		}
	}

	if events, ok := metrics["events"].(map[string]interface{}); ok {
		if maxLat, ok := events["max_write_lat_ms"].(float64); ok && maxLat > 50 {
			rec.IncreaseDBConnections = true
			rec.Notes = append(rec.Notes, "Event write latency exceeds 50ms - increase DB connections")
		}
		if errors, ok := events["errors"].(int64); ok && errors > 0 {
			rec.IncreaseDBConnections = true
			rec.Notes = append(rec.Notes, "Event write errors detected - check DB connection pool")
		}
	}

	if ws, ok := metrics["websocket"].(map[string]interface{}); ok {
		if errors, ok := ws["errors"].(int64); ok && errors > 0 {
			rec.IncreaseBroadcastBuffer = true
			rec.Notes = append(rec.Notes, "WebSocket errors detected - increase client send buffer")
		}
	}

	return rec
}

// ApplyRecommendations modifies config based on recommendations.
func ApplyRecommendations(cfg *Config, rec *Recommendations) *Config {
	if rec.ReduceTileBudget && cfg.Atmos.TileBudget > 64 {
		cfg.Atmos.TileBudget /= 2
	}
	if rec.IncreaseBroadcastBuffer {
		cfg.Network.BroadcastChannelBuffer *= 2
		cfg.Network.ClientSendBuffer *= 2
	}
	if rec.IncreaseDBConnections {
		cfg.Storage.MaxOpenConns = int(float64(cfg.Storage.MaxOpenConns) * 1.5)
		cfg.Storage.MaxIdleConns = int(float64(cfg.Storage.MaxIdleConns) * 1.5)
	}
	return cfg
}

package engine

import (
	"time"

	"github.com/MRamiBalles/StationAtmos/server/internal/events"
	"github.com/MRamiBalles/StationAtmos/server/internal/platform/config"
	"github.com/MRamiBalles/StationAtmos/server/internal/platform/logger"
	"github.com/MRamiBalles/StationAtmos/server/internal/platform/metrics"
)

// SimContext is passed into every system update. Systems read shared
// state through it instead of reaching for globals.
type SimContext struct {
	Tick   int64
	Dt     time.Duration
	Config *config.Config

	Atmos    *AtmosphereSystem
	Devices  *DeviceSystem
	Monitors *AlarmSystem
	Power    PowerProvider

	Events  *events.EventLog
	Log     *logger.Logger
	Metrics *metrics.Collector
}

// emit appends an event stamped with the current tick.
func (sc *SimContext) emit(t events.EventType, actor, target string, payload interface{}) {
	if sc.Events == nil {
		return
	}
	sc.Events.Append(events.Event{
		Type:     t,
		ActorID:  actor,
		TargetID: target,
		Payload:  payload,
		Tick:     sc.Tick,
	})
}

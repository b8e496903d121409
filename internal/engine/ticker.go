package engine

import (
	"context"
	"sync"
	"time"

	"github.com/MRamiBalles/StationAtmos/server/internal/platform/logger"
)

// Ticker drives the simulation heartbeat. It knows nothing about gas,
// only about time: every rate it calls step with a fixed dt.
type Ticker struct {
	step     func(dt time.Duration)
	rate     time.Duration
	logger   *logger.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu      sync.Mutex
	running bool
}

// NewTicker creates a ticker calling step every rate.
func NewTicker(step func(dt time.Duration), rate time.Duration, log *logger.Logger) *Ticker {
	if rate <= 0 {
		rate = 500 * time.Millisecond
	}
	return &Ticker{
		step:     step,
		rate:     rate,
		logger:   log,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the loop. Call in a goroutine.
func (t *Ticker) Start(ctx context.Context) {
	t.mu.Lock()
	select {
	case <-t.stopChan:
		t.mu.Unlock()
		return
	default:
	}
	t.running = true
	t.mu.Unlock()
	defer close(t.done)

	t.logger.Infof("Engine ticker started at %s per tick.", t.rate)

	ticker := time.NewTicker(t.rate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("Engine ticker stopped by context.")
			return
		case <-t.stopChan:
			t.logger.Info("Engine ticker stopped manually.")
			return
		case <-ticker.C:
			// Fixed dt, even when a tick fires late.
			t.step(t.rate)
		}
	}
}

// Stop gracefully stops the ticker and waits for an in-flight step to
// finish. Safe to call more than once.
func (t *Ticker) Stop() {
	t.mu.Lock()
	t.stopOnce.Do(func() { close(t.stopChan) })
	running := t.running
	t.mu.Unlock()
	if running {
		<-t.done
	}
}

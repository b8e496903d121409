package engine

import "sync"

// PowerProvider answers whether a device currently has power.
type PowerProvider interface {
	IsPowered(deviceID string) bool
}

// AlwaysPowered powers everything.
type AlwaysPowered struct{}

func (AlwaysPowered) IsPowered(string) bool { return true }

// PowerGrid is a simple switchboard: devices are powered unless switched
// off. Safe for concurrent use by the API and the tick.
type PowerGrid struct {
	mu  sync.RWMutex
	off map[string]bool
}

// NewPowerGrid returns a switchboard with everything on.
func NewPowerGrid() *PowerGrid {
	return &PowerGrid{off: make(map[string]bool)}
}

// SetPowered switches one device.
func (p *PowerGrid) SetPowered(deviceID string, on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if on {
		delete(p.off, deviceID)
	} else {
		p.off[deviceID] = true
	}
}

func (p *PowerGrid) IsPowered(deviceID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.off[deviceID]
}

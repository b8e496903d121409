package engine

import "errors"

var (
	ErrGridNotFound   = errors.New("engine: grid not found")
	ErrGridExists     = errors.New("engine: grid already exists")
	ErrTileNotFound   = errors.New("engine: tile not found")
	ErrTileExists     = errors.New("engine: tile already exists")
	ErrDeviceNotFound = errors.New("engine: device not found")
	ErrDeviceExists   = errors.New("engine: device id already in use")
	ErrPipeNotFound   = errors.New("engine: pipe node not found")
	ErrUnknownWire    = errors.New("engine: unknown wire or action")
	ErrUnknownHazard  = errors.New("engine: unknown hazard")
)

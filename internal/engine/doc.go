// Package engine contains the tick loop and the atmospherics systems.
//
// ARCHITECTURAL RULE: every write to a tile or pipe mixture happens inside
// Engine.Step (or a public method holding the engine lock), sequentially
// and in creation order. Readers go through the same lock and receive
// copies, never live references.
package engine

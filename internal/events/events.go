// Package events is the boundary between the ingestion engine and whatever
// presents its results. The engine emits named domain events; subscribers
// are unknown to it.
package events

import (
	"time"

	"github.com/runger/edjournal/internal/journal"
	"github.com/runger/edjournal/internal/journal/signals"
)

// Name identifies a domain event.
type Name string

const (
	SystemChanged     Name = "system_changed"
	BodyScanned       Name = "body_scanned"
	BodyMapped        Name = "body_mapped"
	SignalsUpdated    Name = "signals_updated"
	BiologicalScanned Name = "biological_scanned"
	RoutePlotted      Name = "route_plotted"
	RouteCleared      Name = "route_cleared"
	CarrierJumped     Name = "carrier_jumped"
	Touchdown         Name = "touchdown"
	Liftoff           Name = "liftoff"
	FileRotated       Name = "file_rotated"
	SessionStarted    Name = "session_started"
	SessionStopped    Name = "session_stopped"
)

// Event is one emitted domain event. Payload holds one of the payload
// types below.
type Event struct {
	Name    Name
	Time    time.Time
	Payload any
}

// Emitter receives domain events. Emit must not block.
type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(ev Event) { f(ev) }

type discard struct{}

func (discard) Emit(Event) {}

// Discard drops every event.
var Discard Emitter = discard{}

// SystemPayload accompanies SystemChanged and CarrierJumped.
type SystemPayload struct {
	Address int64
	Name    string
	Pos     *journal.Position
	// Via is the journal event that moved the commander.
	Via journal.Kind
}

// BodyPayload accompanies BodyScanned and BodyMapped.
type BodyPayload struct {
	SystemAddress int64
	BodyID        int
	Name          string
	Type          journal.BodyType
	SubType       string
	Fidelity      journal.Fidelity
	Value         int64
	// Efficient is only meaningful for BodyMapped.
	Efficient bool
}

// SignalsPayload accompanies SignalsUpdated.
type SignalsPayload struct {
	SystemAddress int64
	BodyID        int
	BodyName      string
	Target        signals.Target
	Counts        signals.Counts
	Genuses       []string
	Hotspots      map[string]int
	// Pending is set when the body is not known yet and the counts were
	// buffered.
	Pending bool
}

// BiologicalPayload accompanies BiologicalScanned.
type BiologicalPayload struct {
	SystemAddress int64
	BodyID        int
	Genus         string
	Species       string
	Variant       string
	Progress      int
	Value         int64
}

// RoutePayload accompanies RoutePlotted.
type RoutePayload struct {
	Hops []journal.RouteHop
}

// SurfacePayload accompanies Touchdown and Liftoff.
type SurfacePayload struct {
	SystemAddress int64
	BodyID        int
	BodyName      string
	Latitude      *float64
	Longitude     *float64
}

// RotationPayload accompanies FileRotated.
type RotationPayload struct {
	Previous string
	Next     string
}

// SessionPayload accompanies SessionStarted and SessionStopped.
type SessionPayload struct {
	SessionID string
	Commander string
	FID       string
	GameMode  string
}

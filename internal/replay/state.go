package replay

import (
	"time"

	"github.com/runger/edjournal/internal/journal"
	"github.com/runger/edjournal/internal/journal/signals"
)

// State is the reconstructed "where is the commander and what do they see"
// aggregate. It is a plain value; Reconstructor.State returns a deep copy.
type State struct {
	Commander  Commander
	GameMode   string
	Odyssey    bool
	Ship       Ship
	SessionID  string
	InSession  bool
	System     System
	Target     *Target
	Carrier    Carrier
	Route      []journal.RouteHop
	Surface    Surface
	Ranks      Ranks
	Progress   Ranks
	Reputation Reputation
	Power      Power
	// Bodies are the bodies seen in the current system, keyed by body id.
	Bodies map[int]BodySummary
	// UpdatedAt is the timestamp of the last applied event.
	UpdatedAt time.Time
}

type Commander struct {
	Name string
	FID  string
}

type Ship struct {
	Type         string
	ID           int
	Name         string
	Ident        string
	FuelLevel    float64
	FuelCapacity float64
}

type System struct {
	Address        int64
	Name           string
	Pos            *journal.Position
	DeclaredBodies int
	AllBodiesFound bool
}

// Target is the next jump destination.
type Target struct {
	Name           string
	Address        int64
	StarClass      string
	RemainingJumps int
}

type Carrier struct {
	ID       int64
	Callsign string
	Name     string
	OnBoard  bool
	// PendingJump is set between a jump request and the jump or its
	// cancellation.
	PendingJump *CarrierJump
}

type CarrierJump struct {
	SystemName    string
	SystemAddress int64
	Body          string
	Departure     string
}

type Surface struct {
	Landed   bool
	OnFoot   bool
	BodyID   int
	BodyName string
	Lat      *float64
	Lon      *float64
	// Near is the body whose orbital cruise zone the ship is in.
	Near string
}

type Ranks struct {
	Combat       int
	Trade        int
	Explore      int
	Soldier      int
	Exobiologist int
	Empire       int
	Federation   int
	CQC          int
}

type Reputation struct {
	Empire      float64
	Federation  float64
	Independent float64
	Alliance    float64
}

type Power struct {
	Name   string
	Rank   int
	Merits int64
}

// BodySummary is what the current-system view knows about a body.
type BodySummary struct {
	Name     string
	Type     journal.BodyType
	SubType  string
	Fidelity journal.Fidelity
	Value    int64
	Signals  signals.Counts
	Mapped   bool
}

func (s State) clone() State {
	out := s
	if s.System.Pos != nil {
		p := *s.System.Pos
		out.System.Pos = &p
	}
	if s.Target != nil {
		t := *s.Target
		out.Target = &t
	}
	if s.Carrier.PendingJump != nil {
		j := *s.Carrier.PendingJump
		out.Carrier.PendingJump = &j
	}
	if s.Route != nil {
		out.Route = append([]journal.RouteHop(nil), s.Route...)
	}
	out.Surface.Lat = copyFloat(s.Surface.Lat)
	out.Surface.Lon = copyFloat(s.Surface.Lon)
	if s.Bodies != nil {
		out.Bodies = make(map[int]BodySummary, len(s.Bodies))
		for k, v := range s.Bodies {
			out.Bodies[k] = v
		}
	}
	return out
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

package store

import (
	"encoding/json"
	"time"

	"github.com/runger/edjournal/internal/journal"
	"github.com/runger/edjournal/internal/journal/signals"
)

// Raw snapshot tiers. A snapshot section from a higher tier wins on
// overlapping keys.
const (
	TierStub     = 0
	TierSignals  = 1
	TierBasic    = 1
	TierDetailed = 2
	TierMapped   = 3
)

// System is a star system row.
type System struct {
	Address           int64
	Name              string
	Pos               *journal.Position
	StarClass         string
	FirstVisited      time.Time
	LastVisited       time.Time
	VisitCount        int
	DeclaredBodyCount int
	AllBodiesFound    bool
	KnownBodies       int
	DiscoveredCount   int
	MappedCount       int
	EstimatedValue    int64
	MappedValue       int64
	UpdatedAt         time.Time
}

// SystemObservation is what a navigation event tells us about a system.
// A zero VisitedAt means the system was mentioned, not visited.
type SystemObservation struct {
	Address   int64
	Name      string
	Pos       *journal.Position
	StarClass string
	VisitedAt time.Time
}

// Visit is an arrival in a system that also lands in route history.
type Visit struct {
	System    SystemObservation
	SessionID string
	JumpDist  float64
	FuelUsed  float64
	Kind      journal.Kind
}

// Body is a bodies row.
type Body struct {
	RowID           int64
	SystemAddress   int64
	BodyID          int
	Name            string
	Type            journal.BodyType
	SubType         string
	DistanceLS      *float64
	Radius          *float64
	MassEM          *float64
	StellarMass     *float64
	Gravity         *float64
	SurfaceTemp     *float64
	SurfacePressure *float64
	Atmosphere      string
	Volcanism       string
	TerraformState  string
	Landable        *bool
	TidalLock       *bool
	Fidelity        journal.Fidelity
	Value           *int64
	Signals         signals.Counts
	WasDiscovered   *bool
	WasMapped       *bool
	WasFootfalled   *bool
	DiscoveredByMe  bool
	MappedByMe      bool
	FootfalledByMe  bool
	MappedEfficient bool
	ParentBodyID    *int
	Raw             json.RawMessage
	RawTier         int
	UpdatedAt       time.Time
}

// ValueInput rebuilds the payout formula inputs from stored columns.
func (b *Body) ValueInput() journal.ValueInput {
	in := journal.ValueInput{
		BodyType:       b.Type,
		SubType:        b.SubType,
		TerraformState: b.TerraformState,
		FirstDiscovery: b.WasDiscovered != nil && !*b.WasDiscovered,
		FirstMapped:    b.WasMapped != nil && !*b.WasMapped,
		Mapped:         b.MappedByMe,
		Efficient:      b.MappedEfficient,
	}
	if b.MassEM != nil {
		in.MassEM = *b.MassEM
	}
	if b.StellarMass != nil {
		in.StellarMass = *b.StellarMass
	}
	return in
}

// BodyObservation is one observation of a body. Nil or empty fields mean
// "not observed" and never overwrite stored values.
type BodyObservation struct {
	SystemAddress   int64
	SystemName      string
	BodyID          int
	Name            string
	Type            journal.BodyType
	SubType         string
	DistanceLS      *float64
	Radius          *float64
	MassEM          *float64
	StellarMass     *float64
	Gravity         *float64
	SurfaceTemp     *float64
	SurfacePressure *float64
	Atmosphere      string
	Volcanism       string
	TerraformState  string
	Landable        *bool
	TidalLock       *bool
	Fidelity        journal.Fidelity
	Value           *int64
	Signals         signals.Counts
	WasDiscovered   *bool
	WasMapped       *bool
	WasFootfalled   *bool
	DiscoveredByMe  bool
	MappedByMe      bool
	FootfalledByMe  bool
	MappedEfficient bool
	ParentBodyID    *int
	// Raw is merged into the stored snapshot, keyed by source
	// ("Scan", "Signals", "Genuses", "Hotspots", "Mapping").
	Raw        map[string]any
	RawTier    int
	ObservedAt time.Time
}

// SignalUpdate applies reconciled signal counts to an existing body.
type SignalUpdate struct {
	SystemAddress int64
	BodyID        int
	Counts        signals.Counts
	Genuses       []string
	Hotspots      map[string]int
	ObservedAt    time.Time
}

// MappingObservation records a completed surface mapping by the commander.
type MappingObservation struct {
	SystemAddress    int64
	SystemName       string
	BodyID           int
	Name             string
	ProbesUsed       int
	EfficiencyTarget int
	Efficient        bool
	Value            *int64
	ObservedAt       time.Time
}

// Biological is a biologicals row.
type Biological struct {
	ID            int64
	SystemAddress int64
	BodyID        int
	Genus         string
	GenusName     string
	Species       string
	SpeciesName   string
	Variant       string
	VariantName   string
	Progress      int
	FullyScanned  bool
	Value         int64
	FirstSeen     time.Time
	UpdatedAt     time.Time
}

// BiologicalObservation is one organic scan step.
type BiologicalObservation struct {
	SystemAddress int64
	BodyID        int
	Genus         string
	GenusName     string
	Species       string
	SpeciesName   string
	Variant       string
	VariantName   string
	Progress      int
	Value         int64
	ObservedAt    time.Time
}

// CodexEntry is a codex_entries row.
type CodexEntry struct {
	EntryID       int64
	Region        string
	Name          string
	Category      string
	SubCategory   string
	SystemAddress int64
	SystemName    string
	BodyID        *int
	Latitude      *float64
	Longitude     *float64
	IsNewEntry    bool
	VoucherAmount int64
	FirstSeen     time.Time
}

// RouteEntry is a route_history row.
type RouteEntry struct {
	ID            int64
	SessionID     string
	SystemAddress int64
	SystemName    string
	Timestamp     time.Time
	JumpDist      float64
	FuelUsed      float64
	Kind          journal.Kind
}

// CacheEntry is an upstream_cache row.
type CacheEntry struct {
	Key       string
	Kind      string
	Payload   json.RawMessage
	CreatedAt time.Time
	ExpiresAt time.Time
	HitCount  int64
}

// CacheStats summarizes the persistent cache tier.
type CacheStats struct {
	TotalEntries   int64
	ExpiredEntries int64
	TotalHits      int64
	ByKind         map[string]int64
}

func msToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func timeToMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

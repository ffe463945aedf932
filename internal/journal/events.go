// Package journal models the game's journal event vocabulary.
//
// Every journal line is a JSON object carrying an "event" discriminator and a
// "timestamp". Parse turns a line into one of the typed events below; kinds
// outside the vocabulary come back as *Unknown so callers can count them
// without treating them as errors.
package journal

import (
	"encoding/json"
	"time"
)

// Kind is the journal event discriminator.
type Kind string

// Event kinds understood by the engine.
const (
	KindFileheader           Kind = "Fileheader"
	KindLoadGame             Kind = "LoadGame"
	KindCommander            Kind = "Commander"
	KindShutdown             Kind = "Shutdown"
	KindLocation             Kind = "Location"
	KindFSDJump              Kind = "FSDJump"
	KindCarrierJump          Kind = "CarrierJump"
	KindFSDTarget            Kind = "FSDTarget"
	KindStartJump            Kind = "StartJump"
	KindNavRoute             Kind = "NavRoute"
	KindNavRouteClear        Kind = "NavRouteClear"
	KindScan                 Kind = "Scan"
	KindFSSDiscoveryScan     Kind = "FSSDiscoveryScan"
	KindFSSAllBodiesFound    Kind = "FSSAllBodiesFound"
	KindFSSBodySignals       Kind = "FSSBodySignals"
	KindSAASignalsFound      Kind = "SAASignalsFound"
	KindSAAScanComplete      Kind = "SAAScanComplete"
	KindScanOrganic          Kind = "ScanOrganic"
	KindCodexEntry           Kind = "CodexEntry"
	KindTouchdown            Kind = "Touchdown"
	KindLiftoff              Kind = "Liftoff"
	KindDisembark            Kind = "Disembark"
	KindEmbark               Kind = "Embark"
	KindApproachBody         Kind = "ApproachBody"
	KindLeaveBody            Kind = "LeaveBody"
	KindRank                 Kind = "Rank"
	KindProgress             Kind = "Progress"
	KindReputation           Kind = "Reputation"
	KindPowerplay            Kind = "Powerplay"
	KindCarrierStats         Kind = "CarrierStats"
	KindCarrierJumpRequest   Kind = "CarrierJumpRequest"
	KindCarrierJumpCancelled Kind = "CarrierJumpCancelled"
)

// Event is a parsed journal line. The set of implementations is closed:
// only types in this package embed Header.
type Event interface {
	Kind() Kind
	Time() time.Time
	// Raw returns the original JSON line.
	Raw() json.RawMessage
	header() *Header
}

// Header holds the fields shared by every journal line.
type Header struct {
	Timestamp time.Time `json:"timestamp"`
	Event     Kind      `json:"event"`

	raw json.RawMessage
}

// Kind returns the event discriminator.
func (h *Header) Kind() Kind { return h.Event }

// Time returns the event timestamp.
func (h *Header) Time() time.Time { return h.Timestamp }

// Raw returns the original JSON line.
func (h *Header) Raw() json.RawMessage { return h.raw }

func (h *Header) header() *Header { return h }

// Position is a galactic coordinate triple in light years.
type Position [3]float64

// --- session ---

type Fileheader struct {
	Header
	Part        int    `json:"part"`
	Language    string `json:"language"`
	Odyssey     bool   `json:"Odyssey"`
	GameVersion string `json:"gameversion"`
	Build       string `json:"build"`
}

type LoadGame struct {
	Header
	FID          string  `json:"FID"`
	Commander    string  `json:"Commander"`
	Horizons     bool    `json:"Horizons"`
	Odyssey      bool    `json:"Odyssey"`
	Ship         string  `json:"Ship"`
	ShipID       int     `json:"ShipID"`
	ShipName     string  `json:"ShipName"`
	ShipIdent    string  `json:"ShipIdent"`
	FuelLevel    float64 `json:"FuelLevel"`
	FuelCapacity float64 `json:"FuelCapacity"`
	GameMode     string  `json:"GameMode"`
	Group        string  `json:"Group"`
	Credits      int64   `json:"Credits"`
	Loan         int64   `json:"Loan"`
}

type Commander struct {
	Header
	FID  string `json:"FID"`
	Name string `json:"Name"`
}

type Shutdown struct {
	Header
}

// --- navigation ---

type Location struct {
	Header
	StarSystem    string   `json:"StarSystem"`
	SystemAddress int64    `json:"SystemAddress"`
	StarPos       Position `json:"StarPos"`
	Body          string   `json:"Body"`
	BodyID        int      `json:"BodyID"`
	BodyType      string   `json:"BodyType"`
	Docked        bool     `json:"Docked"`
	StationName   string   `json:"StationName"`
	StationType   string   `json:"StationType"`
	Taxi          bool     `json:"Taxi"`
	Multicrew     bool     `json:"Multicrew"`
	OnFoot        bool     `json:"OnFoot"`
	Latitude      *float64 `json:"Latitude"`
	Longitude     *float64 `json:"Longitude"`
}

type FSDJump struct {
	Header
	StarSystem    string   `json:"StarSystem"`
	SystemAddress int64    `json:"SystemAddress"`
	StarPos       Position `json:"StarPos"`
	Body          string   `json:"Body"`
	BodyID        int      `json:"BodyID"`
	BodyType      string   `json:"BodyType"`
	JumpDist      float64  `json:"JumpDist"`
	FuelUsed      float64  `json:"FuelUsed"`
	FuelLevel     float64  `json:"FuelLevel"`
	Taxi          bool     `json:"Taxi"`
	Multicrew     bool     `json:"Multicrew"`
}

type CarrierJump struct {
	Header
	StarSystem    string   `json:"StarSystem"`
	SystemAddress int64    `json:"SystemAddress"`
	StarPos       Position `json:"StarPos"`
	Body          string   `json:"Body"`
	BodyID        int      `json:"BodyID"`
	BodyType      string   `json:"BodyType"`
	Docked        bool     `json:"Docked"`
	StationName   string   `json:"StationName"`
	MarketID      int64    `json:"MarketID"`
}

type FSDTarget struct {
	Header
	Name                  string `json:"Name"`
	SystemAddress         int64  `json:"SystemAddress"`
	StarClass             string `json:"StarClass"`
	RemainingJumpsInRoute int    `json:"RemainingJumpsInRoute"`
}

type StartJump struct {
	Header
	JumpType      string `json:"JumpType"`
	StarSystem    string `json:"StarSystem"`
	SystemAddress int64  `json:"SystemAddress"`
	StarClass     string `json:"StarClass"`
}

// RouteHop is one system in a plotted route.
type RouteHop struct {
	StarSystem    string   `json:"StarSystem"`
	SystemAddress int64    `json:"SystemAddress"`
	StarPos       Position `json:"StarPos"`
	StarClass     string   `json:"StarClass"`
}

// NavRoute announces a plotted route. Newer clients leave Route empty and
// write the hops to NavRoute.json next to the journal.
type NavRoute struct {
	Header
	Route []RouteHop `json:"Route"`
}

type NavRouteClear struct {
	Header
}

// --- exploration ---

// Parent is one entry of a Scan's Parents array, e.g. {"Planet":3}.
// Exactly one key is present; "Null" marks a barycentre.
type Parent map[string]int

type Ring struct {
	Name      string  `json:"Name"`
	RingClass string  `json:"RingClass"`
	MassMT    float64 `json:"MassMT"`
	InnerRad  float64 `json:"InnerRad"`
	OuterRad  float64 `json:"OuterRad"`
}

type Material struct {
	Name    string  `json:"Name"`
	Percent float64 `json:"Percent"`
}

type Scan struct {
	Header
	ScanType              string     `json:"ScanType"`
	BodyName              string     `json:"BodyName"`
	BodyID                int        `json:"BodyID"`
	Parents               []Parent   `json:"Parents"`
	StarSystem            string     `json:"StarSystem"`
	SystemAddress         int64      `json:"SystemAddress"`
	DistanceFromArrivalLS float64    `json:"DistanceFromArrivalLS"`
	StarType              string     `json:"StarType"`
	Subclass              *int       `json:"Subclass"`
	StellarMass           *float64   `json:"StellarMass"`
	AbsoluteMagnitude     *float64   `json:"AbsoluteMagnitude"`
	Luminosity            string     `json:"Luminosity"`
	AgeMY                 *float64   `json:"Age_MY"`
	Radius                *float64   `json:"Radius"`
	TidalLock             *bool      `json:"TidalLock"`
	TerraformState        string     `json:"TerraformState"`
	PlanetClass           string     `json:"PlanetClass"`
	Atmosphere            string     `json:"Atmosphere"`
	AtmosphereType        string     `json:"AtmosphereType"`
	Volcanism             string     `json:"Volcanism"`
	MassEM                *float64   `json:"MassEM"`
	SurfaceGravity        *float64   `json:"SurfaceGravity"`
	SurfaceTemperature    *float64   `json:"SurfaceTemperature"`
	SurfacePressure       *float64   `json:"SurfacePressure"`
	Landable              *bool      `json:"Landable"`
	Materials             []Material `json:"Materials"`
	Rings                 []Ring     `json:"Rings"`
	ReserveLevel          string     `json:"ReserveLevel"`
	WasDiscovered         *bool      `json:"WasDiscovered"`
	WasMapped             *bool      `json:"WasMapped"`
	WasFootfalled         *bool      `json:"WasFootfalled"`
}

type FSSDiscoveryScan struct {
	Header
	Progress      float64 `json:"Progress"`
	BodyCount     int     `json:"BodyCount"`
	NonBodyCount  int     `json:"NonBodyCount"`
	SystemName    string  `json:"SystemName"`
	SystemAddress int64   `json:"SystemAddress"`
}

type FSSAllBodiesFound struct {
	Header
	SystemName    string `json:"SystemName"`
	SystemAddress int64  `json:"SystemAddress"`
	Count         int    `json:"Count"`
}

// Signal is one entry of a signals event, e.g. {"Type":"$SAA_SignalType_Biological;","Count":3}.
type Signal struct {
	Type          string `json:"Type"`
	TypeLocalised string `json:"Type_Localised"`
	Count         int    `json:"Count"`
}

type Genus struct {
	Genus          string `json:"Genus"`
	GenusLocalised string `json:"Genus_Localised"`
}

type FSSBodySignals struct {
	Header
	BodyName      string   `json:"BodyName"`
	BodyID        int      `json:"BodyID"`
	SystemAddress int64    `json:"SystemAddress"`
	Signals       []Signal `json:"Signals"`
}

type SAASignalsFound struct {
	Header
	BodyName      string   `json:"BodyName"`
	BodyID        int      `json:"BodyID"`
	SystemAddress int64    `json:"SystemAddress"`
	Signals       []Signal `json:"Signals"`
	Genuses       []Genus  `json:"Genuses"`
}

type SAAScanComplete struct {
	Header
	BodyName         string `json:"BodyName"`
	BodyID           int    `json:"BodyID"`
	SystemAddress    int64  `json:"SystemAddress"`
	ProbesUsed       int    `json:"ProbesUsed"`
	EfficiencyTarget int    `json:"EfficiencyTarget"`
}

// Efficient reports whether the mapping stayed within the probe target.
func (e *SAAScanComplete) Efficient() bool {
	return e.EfficiencyTarget > 0 && e.ProbesUsed <= e.EfficiencyTarget
}

type ScanOrganic struct {
	Header
	ScanType         string `json:"ScanType"`
	Genus            string `json:"Genus"`
	GenusLocalised   string `json:"Genus_Localised"`
	Species          string `json:"Species"`
	SpeciesLocalised string `json:"Species_Localised"`
	Variant          string `json:"Variant"`
	VariantLocalised string `json:"Variant_Localised"`
	SystemAddress    int64  `json:"SystemAddress"`
	Body             int    `json:"Body"`
}

type CodexEntry struct {
	Header
	EntryID         int64    `json:"EntryID"`
	Name            string   `json:"Name"`
	NameLocalised   string   `json:"Name_Localised"`
	SubCategory     string   `json:"SubCategory"`
	Category        string   `json:"Category"`
	Region          string   `json:"Region"`
	RegionLocalised string   `json:"Region_Localised"`
	System          string   `json:"System"`
	SystemAddress   int64    `json:"SystemAddress"`
	BodyID          *int     `json:"BodyID"`
	Latitude        *float64 `json:"Latitude"`
	Longitude       *float64 `json:"Longitude"`
	IsNewEntry      bool     `json:"IsNewEntry"`
	VoucherAmount   int64    `json:"VoucherAmount"`
}

// --- surface ---

type Touchdown struct {
	Header
	PlayerControlled   bool     `json:"PlayerControlled"`
	Taxi               bool     `json:"Taxi"`
	Latitude           *float64 `json:"Latitude"`
	Longitude          *float64 `json:"Longitude"`
	NearestDestination string   `json:"NearestDestination"`
	StarSystem         string   `json:"StarSystem"`
	SystemAddress      int64    `json:"SystemAddress"`
	Body               string   `json:"Body"`
	BodyID             int      `json:"BodyID"`
	OnStation          bool     `json:"OnStation"`
	OnPlanet           bool     `json:"OnPlanet"`
}

type Liftoff struct {
	Header
	PlayerControlled bool     `json:"PlayerControlled"`
	Taxi             bool     `json:"Taxi"`
	Latitude         *float64 `json:"Latitude"`
	Longitude        *float64 `json:"Longitude"`
	StarSystem       string   `json:"StarSystem"`
	SystemAddress    int64    `json:"SystemAddress"`
	Body             string   `json:"Body"`
	BodyID           int      `json:"BodyID"`
	OnStation        bool     `json:"OnStation"`
	OnPlanet         bool     `json:"OnPlanet"`
}

type Disembark struct {
	Header
	SRV           bool   `json:"SRV"`
	Taxi          bool   `json:"Taxi"`
	Multicrew     bool   `json:"Multicrew"`
	StarSystem    string `json:"StarSystem"`
	SystemAddress int64  `json:"SystemAddress"`
	Body          string `json:"Body"`
	BodyID        int    `json:"BodyID"`
	OnStation     bool   `json:"OnStation"`
	OnPlanet      bool   `json:"OnPlanet"`
}

type Embark struct {
	Header
	SRV           bool   `json:"SRV"`
	Taxi          bool   `json:"Taxi"`
	Multicrew     bool   `json:"Multicrew"`
	StarSystem    string `json:"StarSystem"`
	SystemAddress int64  `json:"SystemAddress"`
	Body          string `json:"Body"`
	BodyID        int    `json:"BodyID"`
	OnStation     bool   `json:"OnStation"`
	OnPlanet      bool   `json:"OnPlanet"`
}

type ApproachBody struct {
	Header
	StarSystem    string `json:"StarSystem"`
	SystemAddress int64  `json:"SystemAddress"`
	Body          string `json:"Body"`
	BodyID        int    `json:"BodyID"`
}

type LeaveBody struct {
	Header
	StarSystem    string `json:"StarSystem"`
	SystemAddress int64  `json:"SystemAddress"`
	Body          string `json:"Body"`
	BodyID        int    `json:"BodyID"`
}

// --- commander standing ---

type Rank struct {
	Header
	Combat       int `json:"Combat"`
	Trade        int `json:"Trade"`
	Explore      int `json:"Explore"`
	Soldier      int `json:"Soldier"`
	Exobiologist int `json:"Exobiologist"`
	Empire       int `json:"Empire"`
	Federation   int `json:"Federation"`
	CQC          int `json:"CQC"`
}

// Progress carries the percentage towards the next rank in each category.
type Progress struct {
	Header
	Combat       int `json:"Combat"`
	Trade        int `json:"Trade"`
	Explore      int `json:"Explore"`
	Soldier      int `json:"Soldier"`
	Exobiologist int `json:"Exobiologist"`
	Empire       int `json:"Empire"`
	Federation   int `json:"Federation"`
	CQC          int `json:"CQC"`
}

type Reputation struct {
	Header
	Empire      float64 `json:"Empire"`
	Federation  float64 `json:"Federation"`
	Independent float64 `json:"Independent"`
	Alliance    float64 `json:"Alliance"`
}

type Powerplay struct {
	Header
	Power       string `json:"Power"`
	Rank        int    `json:"Rank"`
	Merits      int64  `json:"Merits"`
	TimePledged int64  `json:"TimePledged"`
}

// --- fleet carrier ---

type CarrierStats struct {
	Header
	CarrierID     int64  `json:"CarrierID"`
	Callsign      string `json:"Callsign"`
	Name          string `json:"Name"`
	DockingAccess string `json:"DockingAccess"`
	FuelLevel     int    `json:"FuelLevel"`
}

type CarrierJumpRequest struct {
	Header
	CarrierID     int64  `json:"CarrierID"`
	SystemName    string `json:"SystemName"`
	SystemAddress int64  `json:"SystemAddress"`
	Body          string `json:"Body"`
	BodyID        int    `json:"BodyID"`
	DepartureTime string `json:"DepartureTime"`
}

type CarrierJumpCancelled struct {
	Header
	CarrierID int64 `json:"CarrierID"`
}

// Unknown is any journal line whose kind the engine does not model.
type Unknown struct {
	Header
}

// Name returns the unrecognized discriminator.
func (u *Unknown) Name() string { return string(u.Event) }

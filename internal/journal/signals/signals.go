// Package signals reconciles FSS and surface-scan signal reports into
// per-category counts and decides whether they belong to a body or a ring.
package signals

import (
	"sort"
	"strings"

	"github.com/runger/edjournal/internal/journal"
)

// Category is a decoded signal type.
type Category string

const (
	Biological Category = "Biological"
	Geological Category = "Geological"
	Human      Category = "Human"
	Thargoid   Category = "Thargoid"
	Guardian   Category = "Guardian"
	Other      Category = "Other"
)

// Target says where a signals report should be recorded.
type Target int

const (
	TargetBody Target = iota
	TargetRing
)

func (t Target) String() string {
	if t == TargetRing {
		return "ring"
	}
	return "body"
}

const signalTypePrefix = "$SAA_SignalType_"

// Counts holds signal counts per category.
type Counts struct {
	Biological int `json:"biological"`
	Geological int `json:"geological"`
	Human      int `json:"human"`
	Thargoid   int `json:"thargoid"`
	Guardian   int `json:"guardian"`
	Other      int `json:"other"`
}

// Zero reports whether no category has a signal.
func (c Counts) Zero() bool {
	return c == Counts{}
}

// Max returns the per-category maximum of c and o.
func (c Counts) Max(o Counts) Counts {
	return Counts{
		Biological: max(c.Biological, o.Biological),
		Geological: max(c.Geological, o.Geological),
		Human:      max(c.Human, o.Human),
		Thargoid:   max(c.Thargoid, o.Thargoid),
		Guardian:   max(c.Guardian, o.Guardian),
		Other:      max(c.Other, o.Other),
	}
}

func (c *Counts) add(cat Category, n int) {
	switch cat {
	case Biological:
		c.Biological += n
	case Geological:
		c.Geological += n
	case Human:
		c.Human += n
	case Thargoid:
		c.Thargoid += n
	case Guardian:
		c.Guardian += n
	default:
		c.Other += n
	}
}

// Result is a reconciled signals report for one body or ring.
type Result struct {
	SystemAddress int64
	BodyID        int
	BodyName      string
	Target        Target
	Counts        Counts
	// Hotspots counts ring resource hotspots by material, e.g. "Painite".
	Hotspots map[string]int
	// Genuses are localised genus names from a surface scan.
	Genuses []string
	// Surface is set when the report came from a surface mapping scan.
	Surface bool
}

// Decode maps a signal type such as "$SAA_SignalType_Biological;" to its
// category. ok is false for anything that is not an SAA signal type, which
// in practice means a ring hotspot material.
func Decode(signalType string) (cat Category, ok bool) {
	if !strings.HasPrefix(signalType, signalTypePrefix) {
		return "", false
	}
	name := strings.TrimSuffix(strings.TrimPrefix(signalType, signalTypePrefix), ";")
	switch Category(name) {
	case Biological, Geological, Human, Thargoid, Guardian:
		return Category(name), true
	default:
		return Other, true
	}
}

// Reconcile turns a FSSBodySignals or SAASignalsFound event into a Result.
// ok is false for any other event.
func Reconcile(ev journal.Event) (Result, bool) {
	var (
		res  Result
		sigs []journal.Signal
	)
	switch e := ev.(type) {
	case *journal.FSSBodySignals:
		res = Result{SystemAddress: e.SystemAddress, BodyID: e.BodyID, BodyName: e.BodyName}
		sigs = e.Signals
	case *journal.SAASignalsFound:
		res = Result{SystemAddress: e.SystemAddress, BodyID: e.BodyID, BodyName: e.BodyName, Surface: true}
		sigs = e.Signals
		for _, g := range e.Genuses {
			name := g.GenusLocalised
			if name == "" {
				name = g.Genus
			}
			res.Genuses = append(res.Genuses, name)
		}
		sort.Strings(res.Genuses)
	default:
		return Result{}, false
	}

	for _, s := range sigs {
		if cat, ok := Decode(s.Type); ok {
			res.Counts.add(cat, s.Count)
			continue
		}
		if res.Hotspots == nil {
			res.Hotspots = make(map[string]int)
		}
		name := s.TypeLocalised
		if name == "" {
			name = s.Type
		}
		res.Hotspots[name] += s.Count
	}

	if journal.IsRingName(res.BodyName) || (len(res.Hotspots) > 0 && res.Counts.Zero()) {
		res.Target = TargetRing
	}
	return res, true
}

// Merge combines two reports for the same body. Counts take the
// per-category maximum so a re-observation never lowers them; hotspots do
// the same per material and genus hints are unioned.
func (r Result) Merge(o Result) Result {
	out := r
	out.Counts = r.Counts.Max(o.Counts)
	out.Surface = r.Surface || o.Surface
	if out.BodyName == "" {
		out.BodyName = o.BodyName
	}
	if o.Target == TargetRing {
		out.Target = TargetRing
	}

	if len(r.Hotspots) > 0 || len(o.Hotspots) > 0 {
		out.Hotspots = make(map[string]int, len(r.Hotspots)+len(o.Hotspots))
		for k, v := range r.Hotspots {
			out.Hotspots[k] = v
		}
		for k, v := range o.Hotspots {
			out.Hotspots[k] = max(out.Hotspots[k], v)
		}
	}

	if len(o.Genuses) > 0 {
		seen := make(map[string]bool, len(r.Genuses)+len(o.Genuses))
		var genuses []string
		for _, g := range append(append([]string(nil), r.Genuses...), o.Genuses...) {
			if !seen[g] {
				seen[g] = true
				genuses = append(genuses, g)
			}
		}
		sort.Strings(genuses)
		out.Genuses = genuses
	}
	return out
}

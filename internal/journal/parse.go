package journal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/antonholmquist/jason"
)

// ErrEmptyLine is returned by Parse for blank or whitespace-only lines.
var ErrEmptyLine = errors.New("empty journal line")

// ParseError describes a line that could not be turned into an event.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse journal line: %s: %v", e.Reason, e.Err)
	}
	return "parse journal line: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse decodes one journal line. Blank lines yield ErrEmptyLine, malformed
// lines a *ParseError. Kinds outside the vocabulary decode to *Unknown.
func Parse(line []byte) (Event, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, ErrEmptyLine
	}

	envelope, err := jason.NewObjectFromBytes(line)
	if err != nil {
		return nil, &ParseError{Reason: "invalid json", Err: err}
	}
	name, err := envelope.GetString("event")
	if err != nil || name == "" {
		return nil, &ParseError{Reason: "missing event discriminator", Err: err}
	}

	ev := newEvent(Kind(name))
	if err := json.Unmarshal(line, ev); err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("decode %s", name), Err: err}
	}

	h := ev.header()
	h.raw = append(json.RawMessage(nil), line...)
	return ev, nil
}

// ParseString is Parse for a string line.
func ParseString(line string) (Event, error) {
	return Parse([]byte(line))
}

func newEvent(kind Kind) Event {
	switch kind {
	case KindFileheader:
		return &Fileheader{}
	case KindLoadGame:
		return &LoadGame{}
	case KindCommander:
		return &Commander{}
	case KindShutdown:
		return &Shutdown{}
	case KindLocation:
		return &Location{}
	case KindFSDJump:
		return &FSDJump{}
	case KindCarrierJump:
		return &CarrierJump{}
	case KindFSDTarget:
		return &FSDTarget{}
	case KindStartJump:
		return &StartJump{}
	case KindNavRoute:
		return &NavRoute{}
	case KindNavRouteClear:
		return &NavRouteClear{}
	case KindScan:
		return &Scan{}
	case KindFSSDiscoveryScan:
		return &FSSDiscoveryScan{}
	case KindFSSAllBodiesFound:
		return &FSSAllBodiesFound{}
	case KindFSSBodySignals:
		return &FSSBodySignals{}
	case KindSAASignalsFound:
		return &SAASignalsFound{}
	case KindSAAScanComplete:
		return &SAAScanComplete{}
	case KindScanOrganic:
		return &ScanOrganic{}
	case KindCodexEntry:
		return &CodexEntry{}
	case KindTouchdown:
		return &Touchdown{}
	case KindLiftoff:
		return &Liftoff{}
	case KindDisembark:
		return &Disembark{}
	case KindEmbark:
		return &Embark{}
	case KindApproachBody:
		return &ApproachBody{}
	case KindLeaveBody:
		return &LeaveBody{}
	case KindRank:
		return &Rank{}
	case KindProgress:
		return &Progress{}
	case KindReputation:
		return &Reputation{}
	case KindPowerplay:
		return &Powerplay{}
	case KindCarrierStats:
		return &CarrierStats{}
	case KindCarrierJumpRequest:
		return &CarrierJumpRequest{}
	case KindCarrierJumpCancelled:
		return &CarrierJumpCancelled{}
	default:
		return &Unknown{}
	}
}

// IsStateDefining reports whether only the latest event of this kind matters
// when rebuilding state from a whole file.
func IsStateDefining(ev Event) bool {
	switch ev.Kind() {
	case KindFileheader, KindLoadGame, KindCommander, KindShutdown,
		KindLocation, KindFSDJump, KindCarrierJump,
		KindRank, KindProgress, KindReputation, KindPowerplay,
		KindCarrierStats, KindCarrierJumpRequest, KindCarrierJumpCancelled,
		KindNavRoute, KindNavRouteClear, KindFSDTarget,
		KindTouchdown, KindLiftoff, KindDisembark, KindEmbark,
		KindApproachBody, KindLeaveBody:
		return true
	default:
		return false
	}
}

// IsNavigation reports whether ev places the commander in a system.
func IsNavigation(ev Event) bool {
	switch ev.Kind() {
	case KindLocation, KindFSDJump, KindCarrierJump:
		return true
	default:
		return false
	}
}

// IsDetail reports whether ev carries per-system exploration detail.
func IsDetail(ev Event) bool {
	switch ev.Kind() {
	case KindScan, KindSAAScanComplete, KindFSSBodySignals, KindSAASignalsFound,
		KindScanOrganic, KindCodexEntry, KindFSSDiscoveryScan, KindFSSAllBodiesFound:
		return true
	default:
		return false
	}
}

// SystemAddressOf returns the system the event refers to, if it names one.
func SystemAddressOf(ev Event) (int64, bool) {
	switch e := ev.(type) {
	case *Location:
		return e.SystemAddress, true
	case *FSDJump:
		return e.SystemAddress, true
	case *CarrierJump:
		return e.SystemAddress, true
	case *Scan:
		return e.SystemAddress, true
	case *FSSDiscoveryScan:
		return e.SystemAddress, true
	case *FSSAllBodiesFound:
		return e.SystemAddress, true
	case *FSSBodySignals:
		return e.SystemAddress, true
	case *SAASignalsFound:
		return e.SystemAddress, true
	case *SAAScanComplete:
		return e.SystemAddress, true
	case *ScanOrganic:
		return e.SystemAddress, true
	case *CodexEntry:
		return e.SystemAddress, true
	case *Touchdown:
		return e.SystemAddress, true
	case *Liftoff:
		return e.SystemAddress, true
	case *Disembark:
		return e.SystemAddress, true
	case *Embark:
		return e.SystemAddress, true
	case *ApproachBody:
		return e.SystemAddress, true
	case *LeaveBody:
		return e.SystemAddress, true
	default:
		return 0, false
	}
}

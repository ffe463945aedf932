package replay

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/runger/edjournal/internal/events"
	"github.com/runger/edjournal/internal/journal"
	"github.com/runger/edjournal/internal/journal/signals"
	"github.com/runger/edjournal/internal/store"
)

// apply persists ev and, depending on m, updates State and emits. A store
// failure stops the event: State is left untouched and nothing is emitted.
func (r *Reconstructor) apply(ctx context.Context, ev journal.Event, m mode) error {
	if m.track {
		r.state.UpdatedAt = ev.Time()
	}

	switch e := ev.(type) {
	case *journal.Fileheader:
		if m.track {
			r.state.Odyssey = e.Odyssey
		}
	case *journal.LoadGame:
		r.onLoadGame(e, m)
	case *journal.Commander:
		if m.track {
			r.state.Commander = Commander{Name: e.Name, FID: e.FID}
		}
	case *journal.Shutdown:
		if m.track {
			r.state.InSession = false
		}
		r.emit(m, events.SessionStopped, e.Time(), r.sessionPayload())
	case *journal.Location:
		return r.onLocation(ctx, e, m)
	case *journal.FSDJump:
		return r.onFSDJump(ctx, e, m)
	case *journal.CarrierJump:
		return r.onCarrierJump(ctx, e, m)
	case *journal.FSDTarget:
		return r.onFSDTarget(ctx, e, m)
	case *journal.StartJump:
		return r.onStartJump(ctx, e, m)
	case *journal.NavRoute:
		return r.onNavRoute(ctx, e, m)
	case *journal.NavRouteClear:
		if m.track {
			r.state.Route = nil
		}
		r.emit(m, events.RouteCleared, e.Time(), events.RoutePayload{})
	case *journal.Scan:
		return r.onScan(ctx, e, m)
	case *journal.FSSDiscoveryScan:
		if err := r.store.SetDeclaredBodyCount(ctx, e.SystemAddress, e.SystemName, e.BodyCount); err != nil {
			return r.storeErr("set declared body count", err)
		}
		if m.track && e.SystemAddress == r.state.System.Address {
			r.state.System.DeclaredBodies = max(r.state.System.DeclaredBodies, e.BodyCount)
		}
	case *journal.FSSAllBodiesFound:
		if err := r.store.MarkAllBodiesFound(ctx, e.SystemAddress, e.SystemName, e.Count); err != nil {
			return r.storeErr("mark all bodies found", err)
		}
		if m.track && e.SystemAddress == r.state.System.Address {
			r.state.System.AllBodiesFound = true
			r.state.System.DeclaredBodies = max(r.state.System.DeclaredBodies, e.Count)
		}
	case *journal.FSSBodySignals, *journal.SAASignalsFound:
		return r.onSignals(ctx, ev, m)
	case *journal.SAAScanComplete:
		return r.onMapped(ctx, e, m)
	case *journal.ScanOrganic:
		return r.onScanOrganic(ctx, e, m)
	case *journal.CodexEntry:
		return r.onCodexEntry(ctx, e)
	case *journal.Touchdown:
		return r.onTouchdown(e, m)
	case *journal.Liftoff:
		if m.track {
			r.state.Surface.Landed = false
			r.state.Surface.Lat = nil
			r.state.Surface.Lon = nil
		}
		r.emit(m, events.Liftoff, e.Time(), events.SurfacePayload{
			SystemAddress: e.SystemAddress,
			BodyID:        e.BodyID,
			BodyName:      e.Body,
			Latitude:      e.Latitude,
			Longitude:     e.Longitude,
		})
	case *journal.Disembark:
		return r.onDisembark(ctx, e, m)
	case *journal.Embark:
		if m.track {
			r.state.Surface.OnFoot = false
		}
	case *journal.ApproachBody:
		if m.track {
			r.state.Surface.Near = e.Body
			r.state.Surface.BodyID = e.BodyID
			r.state.Surface.BodyName = e.Body
		}
	case *journal.LeaveBody:
		if m.track {
			r.state.Surface.Near = ""
		}
	case *journal.Rank:
		if m.track {
			r.state.Ranks = Ranks{
				Combat: e.Combat, Trade: e.Trade, Explore: e.Explore, Soldier: e.Soldier,
				Exobiologist: e.Exobiologist, Empire: e.Empire, Federation: e.Federation, CQC: e.CQC,
			}
		}
	case *journal.Progress:
		if m.track {
			r.state.Progress = Ranks{
				Combat: e.Combat, Trade: e.Trade, Explore: e.Explore, Soldier: e.Soldier,
				Exobiologist: e.Exobiologist, Empire: e.Empire, Federation: e.Federation, CQC: e.CQC,
			}
		}
	case *journal.Reputation:
		if m.track {
			r.state.Reputation = Reputation{
				Empire:      e.Empire,
				Federation:  e.Federation,
				Independent: e.Independent,
				Alliance:    e.Alliance,
			}
		}
	case *journal.Powerplay:
		if m.track {
			r.state.Power = Power{Name: e.Power, Rank: e.Rank, Merits: e.Merits}
		}
	case *journal.CarrierStats:
		if m.track {
			r.state.Carrier.ID = e.CarrierID
			r.state.Carrier.Callsign = e.Callsign
			r.state.Carrier.Name = e.Name
		}
	case *journal.CarrierJumpRequest:
		if m.track {
			r.state.Carrier.ID = e.CarrierID
			r.state.Carrier.PendingJump = &CarrierJump{
				SystemName:    e.SystemName,
				SystemAddress: e.SystemAddress,
				Body:          e.Body,
				Departure:     e.DepartureTime,
			}
		}
	case *journal.CarrierJumpCancelled:
		if m.track {
			r.state.Carrier.PendingJump = nil
		}
	case *journal.Unknown:
		// Filtered out by parse; nothing to do.
	default:
		r.logger.Debug("no handler for journal event", "event", ev.Kind())
	}
	return nil
}

func (r *Reconstructor) sessionPayload() events.SessionPayload {
	return events.SessionPayload{
		SessionID: r.session,
		Commander: r.state.Commander.Name,
		FID:       r.state.Commander.FID,
		GameMode:  r.state.GameMode,
	}
}

func (r *Reconstructor) onLoadGame(e *journal.LoadGame, m mode) {
	r.session = SessionID(e.FID, e.Time())
	if m.track {
		r.state.Commander = Commander{Name: e.Commander, FID: e.FID}
		r.state.GameMode = e.GameMode
		r.state.Odyssey = e.Odyssey
		r.state.SessionID = r.session
		r.state.InSession = true
		r.state.Ship = Ship{
			Type:         e.Ship,
			ID:           e.ShipID,
			Name:         e.ShipName,
			Ident:        e.ShipIdent,
			FuelLevel:    e.FuelLevel,
			FuelCapacity: e.FuelCapacity,
		}
	}
	r.emit(m, events.SessionStarted, e.Time(), r.sessionPayload())
}

func (r *Reconstructor) onLocation(ctx context.Context, e *journal.Location, m mode) error {
	pos := e.StarPos
	if err := r.store.UpsertSystem(ctx, store.SystemObservation{
		Address:   e.SystemAddress,
		Name:      e.StarSystem,
		Pos:       &pos,
		VisitedAt: e.Time(),
	}); err != nil {
		return r.storeErr("upsert system", err)
	}
	if !m.track {
		return nil
	}

	changed := r.enterSystem(e.SystemAddress, e.StarSystem, &pos)
	r.state.Surface = Surface{OnFoot: e.OnFoot, Lat: copyFloat(e.Latitude), Lon: copyFloat(e.Longitude)}
	if e.Latitude != nil && !e.Docked {
		r.state.Surface.Landed = !e.OnFoot
		r.state.Surface.BodyID = e.BodyID
		r.state.Surface.BodyName = e.Body
	}
	if changed {
		r.emit(m, events.SystemChanged, e.Time(), events.SystemPayload{
			Address: e.SystemAddress, Name: e.StarSystem, Pos: &pos, Via: e.Kind(),
		})
	}
	return nil
}

func (r *Reconstructor) onFSDJump(ctx context.Context, e *journal.FSDJump, m mode) error {
	pos := e.StarPos
	if err := r.store.RecordVisit(ctx, store.Visit{
		System: store.SystemObservation{
			Address:   e.SystemAddress,
			Name:      e.StarSystem,
			Pos:       &pos,
			VisitedAt: e.Time(),
		},
		SessionID: r.session,
		JumpDist:  e.JumpDist,
		FuelUsed:  e.FuelUsed,
		Kind:      e.Kind(),
	}); err != nil {
		return r.storeErr("record visit", err)
	}
	if !m.track {
		return nil
	}

	r.enterSystem(e.SystemAddress, e.StarSystem, &pos)
	r.state.Surface = Surface{}
	r.state.Ship.FuelLevel = e.FuelLevel
	if r.state.Target != nil && r.state.Target.Address == e.SystemAddress {
		r.state.Target = nil
	}
	r.state.Route = trimRoute(r.state.Route, e.SystemAddress)
	r.emit(m, events.SystemChanged, e.Time(), events.SystemPayload{
		Address: e.SystemAddress, Name: e.StarSystem, Pos: &pos, Via: e.Kind(),
	})
	return nil
}

func (r *Reconstructor) onCarrierJump(ctx context.Context, e *journal.CarrierJump, m mode) error {
	pos := e.StarPos
	if err := r.store.RecordVisit(ctx, store.Visit{
		System: store.SystemObservation{
			Address:   e.SystemAddress,
			Name:      e.StarSystem,
			Pos:       &pos,
			VisitedAt: e.Time(),
		},
		SessionID: r.session,
		Kind:      e.Kind(),
	}); err != nil {
		return r.storeErr("record visit", err)
	}
	if !m.track {
		return nil
	}

	r.enterSystem(e.SystemAddress, e.StarSystem, &pos)
	r.state.Surface = Surface{}
	r.state.Carrier.OnBoard = e.Docked
	r.state.Carrier.PendingJump = nil
	r.emit(m, events.CarrierJumped, e.Time(), events.SystemPayload{
		Address: e.SystemAddress, Name: e.StarSystem, Pos: &pos, Via: e.Kind(),
	})
	return nil
}

// enterSystem makes address the current system. It reports whether the
// system changed; if so the body view is reset and pending signals of
// other systems are dropped.
func (r *Reconstructor) enterSystem(address int64, name string, pos *journal.Position) bool {
	changed := r.state.System.Address != address
	if changed {
		r.state.System = System{Address: address}
		r.state.Bodies = make(map[int]BodySummary)
		r.dropPendingExcept(address)
	}
	r.state.System.Name = name
	if pos != nil {
		p := *pos
		r.state.System.Pos = &p
	}
	return changed
}

func (r *Reconstructor) dropPendingExcept(address int64) {
	for k := range r.pending {
		if k.address != address {
			delete(r.pending, k)
		}
	}
	r.metrics.SetPendingSignals(len(r.pending))
}

// trimRoute drops every hop up to and including the system just reached.
// A route whose last hop was reached is done.
func trimRoute(route []journal.RouteHop, reached int64) []journal.RouteHop {
	for i, hop := range route {
		if hop.SystemAddress == reached {
			if i == len(route)-1 {
				return nil
			}
			return append([]journal.RouteHop(nil), route[i+1:]...)
		}
	}
	return route
}

func (r *Reconstructor) onFSDTarget(ctx context.Context, e *journal.FSDTarget, m mode) error {
	if err := r.store.UpsertSystem(ctx, store.SystemObservation{
		Address:   e.SystemAddress,
		Name:      e.Name,
		StarClass: e.StarClass,
	}); err != nil {
		return r.storeErr("upsert system", err)
	}
	if m.track {
		r.state.Target = &Target{
			Name:           e.Name,
			Address:        e.SystemAddress,
			StarClass:      e.StarClass,
			RemainingJumps: e.RemainingJumpsInRoute,
		}
	}
	return nil
}

func (r *Reconstructor) onStartJump(ctx context.Context, e *journal.StartJump, m mode) error {
	// Supercruise entries carry no destination.
	if e.JumpType != "Hyperspace" || e.SystemAddress == 0 {
		return nil
	}
	if err := r.store.UpsertSystem(ctx, store.SystemObservation{
		Address:   e.SystemAddress,
		Name:      e.StarSystem,
		StarClass: e.StarClass,
	}); err != nil {
		return r.storeErr("upsert system", err)
	}
	if m.track {
		t := Target{Name: e.StarSystem, Address: e.SystemAddress, StarClass: e.StarClass}
		if r.state.Target != nil && r.state.Target.Address == e.SystemAddress {
			t.RemainingJumps = r.state.Target.RemainingJumps
		}
		r.state.Target = &t
	}
	return nil
}

func (r *Reconstructor) onNavRoute(ctx context.Context, e *journal.NavRoute, m mode) error {
	hops := e.Route
	if len(hops) == 0 && m.track {
		fromFile, err := readNavRoute(r.navRoutePath(), e.Time())
		if err != nil {
			r.logger.Warn("failed to read NavRoute.json", "error", err)
		}
		hops = fromFile
	}

	for _, hop := range hops {
		pos := hop.StarPos
		if err := r.store.UpsertSystem(ctx, store.SystemObservation{
			Address:   hop.SystemAddress,
			Name:      hop.StarSystem,
			Pos:       &pos,
			StarClass: hop.StarClass,
		}); err != nil {
			return r.storeErr("upsert route system", err)
		}
	}

	if m.track {
		r.state.Route = append([]journal.RouteHop(nil), hops...)
	}
	r.emit(m, events.RoutePlotted, e.Time(), events.RoutePayload{Hops: append([]journal.RouteHop(nil), hops...)})
	return nil
}

func (r *Reconstructor) onScan(ctx context.Context, e *journal.Scan, m mode) error {
	obs := scanObservation(e)

	// Mapping can complete before the detailed scan lands. The scan then
	// carries the data to value the body, at the mapped tier.
	mappedFirst := false
	stored, err := r.store.GetBody(ctx, e.SystemAddress, e.BodyID)
	switch {
	case err == nil && stored.MappedByMe:
		mappedFirst = true
		v := journal.EstimateValue(e, true, stored.MappedEfficient)
		obs.Value = &v
		obs.Fidelity = journal.FidelityMapped
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return r.storeErr("get body", err)
	}

	if err := r.store.UpsertBody(ctx, obs); err != nil {
		return r.storeErr("upsert body", err)
	}

	key := bodyKey{address: e.SystemAddress, bodyID: e.BodyID}
	pending, buffered := r.pending[key]
	if buffered {
		if _, err := r.store.ApplySignals(ctx, signalUpdate(pending.result, pending.seen)); err != nil {
			return r.storeErr("apply pending signals", err)
		}
		delete(r.pending, key)
		r.metrics.SetPendingSignals(len(r.pending))
	}

	if m.track && e.SystemAddress == r.state.System.Address {
		summary := r.state.Bodies[e.BodyID]
		summary.Name = e.BodyName
		summary.Type = obs.Type
		summary.SubType = obs.SubType
		if obs.Fidelity >= summary.Fidelity {
			summary.Fidelity = obs.Fidelity
			summary.Value = *obs.Value
		}
		summary.Mapped = summary.Mapped || mappedFirst
		if buffered {
			summary.Signals = summary.Signals.Max(pending.result.Counts)
		}
		r.state.Bodies[e.BodyID] = summary
	}

	r.emit(m, events.BodyScanned, e.Time(), events.BodyPayload{
		SystemAddress: e.SystemAddress,
		BodyID:        e.BodyID,
		Name:          e.BodyName,
		Type:          obs.Type,
		SubType:       obs.SubType,
		Fidelity:      obs.Fidelity,
		Value:         *obs.Value,
	})
	return nil
}

// scanObservation maps a Scan onto a body observation. The whole line is
// kept as the "Scan" section of the raw snapshot.
func scanObservation(e *journal.Scan) store.BodyObservation {
	fidelity := journal.ScanFidelity(e.ScanType)
	value := journal.EstimateValue(e, false, false)
	distance := e.DistanceFromArrivalLS
	tier := store.TierBasic
	if fidelity >= journal.FidelityDetailed {
		tier = store.TierDetailed
	}

	obs := store.BodyObservation{
		SystemAddress:   e.SystemAddress,
		SystemName:      e.StarSystem,
		BodyID:          e.BodyID,
		Name:            e.BodyName,
		Type:            journal.InferBodyType(e),
		SubType:         e.SubType(),
		DistanceLS:      &distance,
		Radius:          e.Radius,
		MassEM:          e.MassEM,
		StellarMass:     e.StellarMass,
		Gravity:         e.SurfaceGravity,
		SurfaceTemp:     e.SurfaceTemperature,
		SurfacePressure: e.SurfacePressure,
		Atmosphere:      e.Atmosphere,
		Volcanism:       e.Volcanism,
		TerraformState:  e.TerraformState,
		Landable:        e.Landable,
		TidalLock:       e.TidalLock,
		Fidelity:        fidelity,
		Value:           &value,
		WasDiscovered:   e.WasDiscovered,
		WasMapped:       e.WasMapped,
		WasFootfalled:   e.WasFootfalled,
		Raw:             map[string]any{"Scan": json.RawMessage(e.Raw())},
		RawTier:         tier,
		ObservedAt:      e.Time(),
	}
	if parent, ok := journal.ParentBodyID(e.Parents); ok {
		obs.ParentBodyID = &parent
	}
	return obs
}

func signalUpdate(res signals.Result, at time.Time) store.SignalUpdate {
	return store.SignalUpdate{
		SystemAddress: res.SystemAddress,
		BodyID:        res.BodyID,
		Counts:        res.Counts,
		Genuses:       res.Genuses,
		Hotspots:      res.Hotspots,
		ObservedAt:    at,
	}
}

func (r *Reconstructor) onSignals(ctx context.Context, ev journal.Event, m mode) error {
	res, ok := signals.Reconcile(ev)
	if !ok {
		return nil
	}

	payload := events.SignalsPayload{
		SystemAddress: res.SystemAddress,
		BodyID:        res.BodyID,
		BodyName:      res.BodyName,
		Target:        res.Target,
		Counts:        res.Counts,
		Genuses:       res.Genuses,
		Hotspots:      res.Hotspots,
	}

	if res.Target == signals.TargetRing {
		raw := map[string]any{"Signals": res.Counts}
		if len(res.Hotspots) > 0 {
			raw["Hotspots"] = res.Hotspots
		}
		if err := r.store.UpsertBody(ctx, store.BodyObservation{
			SystemAddress: res.SystemAddress,
			BodyID:        res.BodyID,
			Name:          res.BodyName,
			Type:          journal.BodyRing,
			Signals:       res.Counts,
			Raw:           raw,
			RawTier:       store.TierSignals,
			ObservedAt:    ev.Time(),
		}); err != nil {
			return r.storeErr("upsert ring", err)
		}
		r.emit(m, events.SignalsUpdated, ev.Time(), payload)
		return nil
	}

	applied, err := r.store.ApplySignals(ctx, signalUpdate(res, ev.Time()))
	if err != nil {
		return r.storeErr("apply signals", err)
	}
	if !applied {
		key := bodyKey{address: res.SystemAddress, bodyID: res.BodyID}
		entry := pendingSignals{result: res, seen: ev.Time()}
		if prev, ok := r.pending[key]; ok {
			entry.result = prev.result.Merge(res)
			if prev.seen.After(entry.seen) {
				entry.seen = prev.seen
			}
		}
		r.pending[key] = entry
		res = entry.result
		r.metrics.SetPendingSignals(len(r.pending))
		payload.Counts = res.Counts
		payload.Pending = true
	}

	if m.track && res.SystemAddress == r.state.System.Address {
		summary := r.state.Bodies[res.BodyID]
		if summary.Name == "" {
			summary.Name = res.BodyName
		}
		summary.Signals = summary.Signals.Max(res.Counts)
		r.state.Bodies[res.BodyID] = summary
	}
	r.emit(m, events.SignalsUpdated, ev.Time(), payload)
	return nil
}

func (r *Reconstructor) onMapped(ctx context.Context, e *journal.SAAScanComplete, m mode) error {
	var value *int64
	body, err := r.store.GetBody(ctx, e.SystemAddress, e.BodyID)
	switch {
	case err == nil:
		in := body.ValueInput()
		in.Mapped = true
		in.Efficient = in.Efficient || e.Efficient()
		v := journal.BodyValue(in)
		value = &v
	case !errors.Is(err, store.ErrNotFound):
		return r.storeErr("get body", err)
	}

	if err := r.store.MarkMapped(ctx, store.MappingObservation{
		SystemAddress:    e.SystemAddress,
		BodyID:           e.BodyID,
		Name:             e.BodyName,
		ProbesUsed:       e.ProbesUsed,
		EfficiencyTarget: e.EfficiencyTarget,
		Efficient:        e.Efficient(),
		Value:            value,
		ObservedAt:       e.Time(),
	}); err != nil {
		return r.storeErr("mark mapped", err)
	}

	payload := events.BodyPayload{
		SystemAddress: e.SystemAddress,
		BodyID:        e.BodyID,
		Name:          e.BodyName,
		Fidelity:      journal.FidelityMapped,
		Efficient:     e.Efficient(),
	}
	if value != nil {
		payload.Value = *value
	}
	if body != nil {
		payload.Type = body.Type
		payload.SubType = body.SubType
	}

	if m.track && e.SystemAddress == r.state.System.Address {
		summary := r.state.Bodies[e.BodyID]
		summary.Name = e.BodyName
		summary.Fidelity = journal.FidelityMapped
		summary.Mapped = true
		if value != nil {
			summary.Value = *value
		}
		if body != nil {
			summary.Type = body.Type
			summary.SubType = body.SubType
		}
		r.state.Bodies[e.BodyID] = summary
	}
	r.emit(m, events.BodyMapped, e.Time(), payload)
	return nil
}

func (r *Reconstructor) onScanOrganic(ctx context.Context, e *journal.ScanOrganic, m mode) error {
	progress := journal.OrganicProgress(e.ScanType)
	if progress == 0 {
		r.logger.Debug("ignoring organic scan step", "scan_type", e.ScanType)
		return nil
	}
	value := journal.BioValue(e.SpeciesLocalised)
	if err := r.store.UpsertBiological(ctx, store.BiologicalObservation{
		SystemAddress: e.SystemAddress,
		BodyID:        e.Body,
		Genus:         e.Genus,
		GenusName:     e.GenusLocalised,
		Species:       e.Species,
		SpeciesName:   e.SpeciesLocalised,
		Variant:       e.Variant,
		VariantName:   e.VariantLocalised,
		Progress:      progress,
		Value:         value,
		ObservedAt:    e.Time(),
	}); err != nil {
		return r.storeErr("upsert biological", err)
	}

	species := e.SpeciesLocalised
	if species == "" {
		species = e.Species
	}
	r.emit(m, events.BiologicalScanned, e.Time(), events.BiologicalPayload{
		SystemAddress: e.SystemAddress,
		BodyID:        e.Body,
		Genus:         e.GenusLocalised,
		Species:       species,
		Variant:       e.VariantLocalised,
		Progress:      progress,
		Value:         value,
	})
	return nil
}

func (r *Reconstructor) onCodexEntry(ctx context.Context, e *journal.CodexEntry) error {
	name := e.NameLocalised
	if name == "" {
		name = e.Name
	}
	err := r.store.UpsertCodexEntry(ctx, store.CodexEntry{
		EntryID:       e.EntryID,
		Region:        e.Region,
		Name:          name,
		Category:      e.Category,
		SubCategory:   e.SubCategory,
		SystemAddress: e.SystemAddress,
		SystemName:    e.System,
		BodyID:        e.BodyID,
		Latitude:      e.Latitude,
		Longitude:     e.Longitude,
		IsNewEntry:    e.IsNewEntry,
		VoucherAmount: e.VoucherAmount,
		FirstSeen:     e.Time(),
	})
	return r.storeErr("upsert codex entry", err)
}

func (r *Reconstructor) onTouchdown(e *journal.Touchdown, m mode) error {
	if m.track {
		r.state.Surface.Landed = true
		r.state.Surface.BodyID = e.BodyID
		r.state.Surface.BodyName = e.Body
		r.state.Surface.Lat = copyFloat(e.Latitude)
		r.state.Surface.Lon = copyFloat(e.Longitude)
	}
	r.emit(m, events.Touchdown, e.Time(), events.SurfacePayload{
		SystemAddress: e.SystemAddress,
		BodyID:        e.BodyID,
		BodyName:      e.Body,
		Latitude:      e.Latitude,
		Longitude:     e.Longitude,
	})
	return nil
}

func (r *Reconstructor) onDisembark(ctx context.Context, e *journal.Disembark, m mode) error {
	if e.OnPlanet && !e.OnStation {
		if err := r.store.MarkFootfall(ctx, e.SystemAddress, e.BodyID, e.Body, store.BodyObservation{
			SystemName: e.StarSystem,
			ObservedAt: e.Time(),
		}); err != nil {
			return r.storeErr("mark footfall", err)
		}
	}
	if m.track {
		r.state.Surface.OnFoot = true
		r.state.Surface.BodyID = e.BodyID
		r.state.Surface.BodyName = e.Body
	}
	return nil
}

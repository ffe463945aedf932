package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runger/edjournal/internal/journal"
	"github.com/runger/edjournal/internal/journal/signals"
)

const testSystem int64 = 10477373803

var testTime = time.Date(3310, 5, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func detailedPlanet(value int64) BodyObservation {
	return BodyObservation{
		SystemAddress:  testSystem,
		SystemName:     "Sol",
		BodyID:         3,
		Name:           "Earth",
		Type:           journal.BodyPlanet,
		SubType:        "Earthlike body",
		DistanceLS:     ptr(499.0),
		MassEM:         ptr(1.0),
		Landable:       ptr(false),
		TerraformState: "",
		Fidelity:       journal.FidelityDetailed,
		Value:          ptr(value),
		WasDiscovered:  ptr(false),
		WasMapped:      ptr(false),
		ParentBodyID:   ptr(2),
		Raw:            map[string]any{"Scan": map[string]any{"BodyName": "Earth", "ScanType": "Detailed"}},
		RawTier:        TierDetailed,
		ObservedAt:     testTime,
	}
}

func TestUpsertBody_CreatesSystemAndBody(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpsertBody(ctx, detailedPlanet(1000)))

	b, err := s.GetBody(ctx, testSystem, 3)
	require.NoError(t, err)
	assert.Equal(t, "Earth", b.Name)
	assert.Equal(t, journal.BodyPlanet, b.Type)
	assert.Equal(t, journal.FidelityDetailed, b.Fidelity)
	require.NotNil(t, b.Value)
	assert.Equal(t, int64(1000), *b.Value)
	require.NotNil(t, b.ParentBodyID)
	assert.Equal(t, 2, *b.ParentBodyID)
	assert.True(t, b.DiscoveredByMe, "detailed scan of an undiscovered body")

	sys, err := s.GetSystem(ctx, testSystem)
	require.NoError(t, err)
	assert.Equal(t, "Sol", sys.Name)
	assert.Equal(t, 1, sys.KnownBodies)
	assert.Equal(t, 1, sys.DiscoveredCount)
	assert.Equal(t, int64(1000), sys.EstimatedValue)
}

func TestUpsertBody_FidelityNeverDecreases(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpsertBody(ctx, detailedPlanet(1000)))

	basic := BodyObservation{
		SystemAddress: testSystem,
		BodyID:        3,
		Type:          journal.BodyPlanet,
		Fidelity:      journal.FidelityBasic,
		Value:         ptr(int64(400)),
		ObservedAt:    testTime.Add(time.Minute),
	}
	require.NoError(t, s.UpsertBody(ctx, basic))

	b, err := s.GetBody(ctx, testSystem, 3)
	require.NoError(t, err)
	assert.Equal(t, journal.FidelityDetailed, b.Fidelity)
	assert.Equal(t, int64(1000), *b.Value)
	assert.Equal(t, "Earthlike body", b.SubType, "missing fields keep stored values")
	require.NotNil(t, b.DistanceLS)
	assert.InDelta(t, 499.0, *b.DistanceLS, 0.001)
}

func TestMarkMapped_RaisesFidelityAndSticks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpsertBody(ctx, detailedPlanet(1000)))
	require.NoError(t, s.MarkMapped(ctx, MappingObservation{
		SystemAddress:    testSystem,
		BodyID:           3,
		Name:             "Earth",
		ProbesUsed:       5,
		EfficiencyTarget: 7,
		Efficient:        true,
		Value:            ptr(int64(5000)),
		ObservedAt:       testTime.Add(time.Minute),
	}))

	// A later re-scan at lower fidelity must not undo the mapping.
	rescan := detailedPlanet(1000)
	rescan.ObservedAt = testTime.Add(2 * time.Minute)
	require.NoError(t, s.UpsertBody(ctx, rescan))

	b, err := s.GetBody(ctx, testSystem, 3)
	require.NoError(t, err)
	assert.Equal(t, journal.FidelityMapped, b.Fidelity)
	assert.True(t, b.MappedByMe)
	assert.True(t, b.MappedEfficient)
	assert.Equal(t, int64(5000), *b.Value)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b.Raw, &raw))
	assert.Contains(t, raw, "Scan")
	assert.Contains(t, raw, "Mapping")

	sys, err := s.GetSystem(ctx, testSystem)
	require.NoError(t, err)
	assert.Equal(t, 1, sys.MappedCount)
	assert.Equal(t, int64(5000), sys.MappedValue)
}

func TestUpsertBody_FirstGameFlagsWin(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpsertBody(ctx, detailedPlanet(1000)))

	later := detailedPlanet(1000)
	later.WasDiscovered = ptr(true)
	later.WasMapped = ptr(true)
	require.NoError(t, s.UpsertBody(ctx, later))

	b, err := s.GetBody(ctx, testSystem, 3)
	require.NoError(t, err)
	require.NotNil(t, b.WasDiscovered)
	assert.False(t, *b.WasDiscovered)
	assert.False(t, *b.WasMapped)
}

func TestUpsertBody_Idempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	apply := func() {
		require.NoError(t, s.UpsertBody(ctx, detailedPlanet(1000)))
		_, err := s.ApplySignals(ctx, SignalUpdate{
			SystemAddress: testSystem,
			BodyID:        3,
			Counts:        signals.Counts{Biological: 2},
			Genuses:       []string{"$Codex_Ent_Bacterial_Genus_Name;"},
			ObservedAt:    testTime,
		})
		require.NoError(t, err)
	}

	apply()
	first, err := s.GetBody(ctx, testSystem, 3)
	require.NoError(t, err)
	firstSys, err := s.GetSystem(ctx, testSystem)
	require.NoError(t, err)

	apply()
	second, err := s.GetBody(ctx, testSystem, 3)
	require.NoError(t, err)
	secondSys, err := s.GetSystem(ctx, testSystem)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, firstSys, secondSys)
}

func TestApplySignals(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	applied, err := s.ApplySignals(ctx, SignalUpdate{
		SystemAddress: testSystem,
		BodyID:        3,
		Counts:        signals.Counts{Biological: 3},
	})
	require.NoError(t, err)
	assert.False(t, applied, "unknown body")
	exists, err := s.BodyExists(ctx, testSystem, 3)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.UpsertBody(ctx, detailedPlanet(1000)))

	applied, err = s.ApplySignals(ctx, SignalUpdate{
		SystemAddress: testSystem,
		BodyID:        3,
		Counts:        signals.Counts{Biological: 3, Geological: 1},
	})
	require.NoError(t, err)
	assert.True(t, applied)

	// Re-observation with fewer signals never lowers counts.
	_, err = s.ApplySignals(ctx, SignalUpdate{
		SystemAddress: testSystem,
		BodyID:        3,
		Counts:        signals.Counts{Biological: 1},
	})
	require.NoError(t, err)

	b, err := s.GetBody(ctx, testSystem, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, b.Signals.Biological)
	assert.Equal(t, 1, b.Signals.Geological)
	assert.Equal(t, journal.FidelityDetailed, b.Fidelity)
}

func TestMarkFootfall(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.MarkFootfall(ctx, testSystem, 7, "Sol 7", BodyObservation{ObservedAt: testTime}))
	require.NoError(t, s.UpsertBody(ctx, BodyObservation{
		SystemAddress: testSystem,
		BodyID:        7,
		Fidelity:      journal.FidelityBasic,
		ObservedAt:    testTime,
	}))

	b, err := s.GetBody(ctx, testSystem, 7)
	require.NoError(t, err)
	assert.True(t, b.FootfalledByMe)
	assert.Equal(t, "Sol 7", b.Name)
}

func TestListBodies_Ordered(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	for _, id := range []int{5, 1, 3} {
		require.NoError(t, s.UpsertBody(ctx, BodyObservation{
			SystemAddress: testSystem,
			BodyID:        id,
			Type:          journal.BodyStar,
			Fidelity:      journal.FidelityBasic,
			ObservedAt:    testTime,
		}))
	}

	bodies, err := s.ListBodies(ctx, testSystem)
	require.NoError(t, err)
	require.Len(t, bodies, 3)
	assert.Equal(t, 1, bodies[0].BodyID)
	assert.Equal(t, 3, bodies[1].BodyID)
	assert.Equal(t, 5, bodies[2].BodyID)
}

func TestGetBody_NotFound(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	_, err := s.GetBody(context.Background(), testSystem, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAggregates_ExcludeRingsAndStubs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpsertBody(ctx, detailedPlanet(1000)))
	require.NoError(t, s.UpsertBody(ctx, BodyObservation{
		SystemAddress: testSystem,
		BodyID:        4,
		Name:          "Earth A Ring",
		Type:          journal.BodyRing,
		Fidelity:      journal.FidelityBasic,
		ObservedAt:    testTime,
	}))
	require.NoError(t, s.UpsertBody(ctx, BodyObservation{
		SystemAddress: testSystem,
		BodyID:        9,
		ObservedAt:    testTime,
	}))

	sys, err := s.GetSystem(ctx, testSystem)
	require.NoError(t, err)
	assert.Equal(t, 1, sys.KnownBodies)
}

package signals

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runger/edjournal/internal/journal"
)

func mustParse(t *testing.T, line string) journal.Event {
	t.Helper()
	ev, err := journal.ParseString(line)
	require.NoError(t, err)
	return ev
}

func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		want   Category
		wantOK bool
	}{
		{"$SAA_SignalType_Biological;", Biological, true},
		{"$SAA_SignalType_Geological;", Geological, true},
		{"$SAA_SignalType_Human;", Human, true},
		{"$SAA_SignalType_Thargoid;", Thargoid, true},
		{"$SAA_SignalType_Guardian;", Guardian, true},
		{"$SAA_SignalType_Other;", Other, true},
		{"$SAA_SignalType_PlanetAnomaly;", Other, true},
		{"Painite", "", false},
		{"LowTemperatureDiamond", "", false},
	}

	for _, tt := range tests {
		got, ok := Decode(tt.in)
		assert.Equal(t, tt.wantOK, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestReconcile_Body(t *testing.T) {
	t.Parallel()

	ev := mustParse(t, `{"timestamp":"2024-01-15T10:30:00Z","event":"FSSBodySignals","BodyName":"Foo 5","BodyID":5,"SystemAddress":100,
		"Signals":[{"Type":"$SAA_SignalType_Biological;","Count":3},{"Type":"$SAA_SignalType_Geological;","Count":2}]}`)

	res, ok := Reconcile(ev)
	require.True(t, ok)
	assert.Equal(t, TargetBody, res.Target)
	assert.Equal(t, int64(100), res.SystemAddress)
	assert.Equal(t, 5, res.BodyID)
	assert.Equal(t, Counts{Biological: 3, Geological: 2}, res.Counts)
	assert.False(t, res.Surface)
	assert.Empty(t, res.Hotspots)
}

func TestReconcile_Ring(t *testing.T) {
	t.Parallel()

	ev := mustParse(t, `{"timestamp":"2024-01-15T10:30:00Z","event":"SAASignalsFound","BodyName":"Foo 3 A Ring","BodyID":9,"SystemAddress":100,
		"Signals":[{"Type":"Painite","Type_Localised":"Painite","Count":2},{"Type":"tritium","Type_Localised":"Tritium","Count":1}]}`)

	res, ok := Reconcile(ev)
	require.True(t, ok)
	assert.Equal(t, TargetRing, res.Target)
	assert.True(t, res.Surface)
	assert.Equal(t, map[string]int{"Painite": 2, "Tritium": 1}, res.Hotspots)
	assert.True(t, res.Counts.Zero())
}

func TestReconcile_HotspotsOnlyRoutesToRing(t *testing.T) {
	t.Parallel()

	ev := mustParse(t, `{"timestamp":"2024-01-15T10:30:00Z","event":"FSSBodySignals","BodyName":"Odd Name","BodyID":9,"SystemAddress":100,
		"Signals":[{"Type":"Painite","Count":2}]}`)

	res, ok := Reconcile(ev)
	require.True(t, ok)
	assert.Equal(t, TargetRing, res.Target)
}

func TestReconcile_Genuses(t *testing.T) {
	t.Parallel()

	ev := mustParse(t, `{"timestamp":"2024-01-15T10:30:00Z","event":"SAASignalsFound","BodyName":"Foo 5","BodyID":5,"SystemAddress":100,
		"Signals":[{"Type":"$SAA_SignalType_Biological;","Count":2}],
		"Genuses":[{"Genus":"$Codex_Ent_Stratum_Genus_Name;","Genus_Localised":"Stratum"},{"Genus":"$Codex_Ent_Bacterial_Genus_Name;","Genus_Localised":"Bacterium"}]}`)

	res, ok := Reconcile(ev)
	require.True(t, ok)
	assert.Equal(t, []string{"Bacterium", "Stratum"}, res.Genuses)
}

func TestReconcile_OtherEvent(t *testing.T) {
	t.Parallel()

	_, ok := Reconcile(mustParse(t, `{"timestamp":"2024-01-15T10:30:00Z","event":"Scan"}`))
	assert.False(t, ok)
}

func TestMerge_NeverLowersCounts(t *testing.T) {
	t.Parallel()

	a := Result{BodyID: 5, Counts: Counts{Biological: 3, Geological: 1}}
	b := Result{BodyID: 5, Counts: Counts{Biological: 2, Human: 1}, Surface: true, Genuses: []string{"Tussock"}}

	ab := a.Merge(b)
	ba := b.Merge(a)

	want := Counts{Biological: 3, Geological: 1, Human: 1}
	assert.Equal(t, want, ab.Counts)
	assert.Equal(t, want, ba.Counts)
	assert.True(t, ab.Surface)
	assert.Equal(t, []string{"Tussock"}, ab.Genuses)

	// idempotent
	assert.Equal(t, ab.Counts, ab.Merge(ab).Counts)
}

func TestMerge_Hotspots(t *testing.T) {
	t.Parallel()

	a := Result{Hotspots: map[string]int{"Painite": 1}}
	b := Result{Hotspots: map[string]int{"Painite": 2, "Platinum": 1}}

	got := a.Merge(b)
	assert.Equal(t, map[string]int{"Painite": 2, "Platinum": 1}, got.Hotspots)
	assert.Equal(t, map[string]int{"Painite": 1}, a.Hotspots, "inputs are not mutated")
}

package journal

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_EmptyLine(t *testing.T) {
	t.Parallel()

	for _, line := range []string{"", "   ", "\t\r\n"} {
		_, err := ParseString(line)
		assert.ErrorIs(t, err, ErrEmptyLine)
	}
}

func TestParse_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		line   string
		reason string
	}{
		{"truncated", `{"timestamp":"2024-01-15T10:30:00Z", "event":"Sc`, "invalid json"},
		{"not an object", `[1,2,3]`, "invalid json"},
		{"no event", `{"timestamp":"2024-01-15T10:30:00Z"}`, "missing event discriminator"},
		{"event not a string", `{"timestamp":"2024-01-15T10:30:00Z","event":7}`, "missing event discriminator"},
		{"bad field type", `{"timestamp":"2024-01-15T10:30:00Z","event":"FSDJump","SystemAddress":"abc"}`, "decode FSDJump"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseString(tt.line)
			var pe *ParseError
			require.True(t, errors.As(err, &pe), "want *ParseError, got %v", err)
			assert.Equal(t, tt.reason, pe.Reason)
		})
	}
}

func TestParse_Unknown(t *testing.T) {
	t.Parallel()

	ev, err := ParseString(`{"timestamp":"2024-01-15T10:30:00Z","event":"Music","MusicTrack":"Exploration"}`)
	require.NoError(t, err)

	u, ok := ev.(*Unknown)
	require.True(t, ok)
	assert.Equal(t, "Music", u.Name())
	assert.Equal(t, Kind("Music"), ev.Kind())
	assert.Equal(t, time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), ev.Time())
}

func TestParse_FSDJump(t *testing.T) {
	t.Parallel()

	line := `{"timestamp":"2024-01-15T10:30:00Z","event":"FSDJump","StarSystem":"Col 285 Sector AB-C d1-2","SystemAddress":100,"StarPos":[1.5,-2.25,30],"JumpDist":45.2,"FuelUsed":3.1}`
	ev, err := ParseString(line)
	require.NoError(t, err)

	jump, ok := ev.(*FSDJump)
	require.True(t, ok)
	assert.Equal(t, KindFSDJump, jump.Kind())
	assert.Equal(t, int64(100), jump.SystemAddress)
	assert.Equal(t, "Col 285 Sector AB-C d1-2", jump.StarSystem)
	assert.Equal(t, Position{1.5, -2.25, 30}, jump.StarPos)
	assert.InDelta(t, 45.2, jump.JumpDist, 1e-9)
	assert.JSONEq(t, line, string(ev.Raw()))
}

func TestParse_Scan(t *testing.T) {
	t.Parallel()

	line := `{"timestamp":"2024-01-15T10:31:00Z","event":"Scan","ScanType":"Detailed","BodyName":"Foo 3 a","BodyID":7,
		"Parents":[{"Planet":3},{"Star":0}],"StarSystem":"Foo","SystemAddress":100,"DistanceFromArrivalLS":512.5,
		"PlanetClass":"High metal content body","TerraformState":"Terraformable","MassEM":0.42,"Landable":true,
		"WasDiscovered":false,"WasMapped":false}`
	ev, err := ParseString(line)
	require.NoError(t, err)

	scan := ev.(*Scan)
	assert.Equal(t, 7, scan.BodyID)
	assert.Equal(t, BodyMoon, InferBodyType(scan))
	require.NotNil(t, scan.Landable)
	assert.True(t, *scan.Landable)
	require.NotNil(t, scan.WasDiscovered)
	assert.False(t, *scan.WasDiscovered)

	parent, ok := ParentBodyID(scan.Parents)
	assert.True(t, ok)
	assert.Equal(t, 3, parent)
}

func TestParse_Signals(t *testing.T) {
	t.Parallel()

	ev, err := ParseString(`{"timestamp":"2024-01-15T10:32:00Z","event":"SAASignalsFound","BodyName":"Foo 5","BodyID":5,"SystemAddress":100,
		"Signals":[{"Type":"$SAA_SignalType_Biological;","Type_Localised":"Biological","Count":3}],
		"Genuses":[{"Genus":"$Codex_Ent_Bacterial_Genus_Name;","Genus_Localised":"Bacterium"}]}`)
	require.NoError(t, err)

	saa := ev.(*SAASignalsFound)
	require.Len(t, saa.Signals, 1)
	assert.Equal(t, 3, saa.Signals[0].Count)
	require.Len(t, saa.Genuses, 1)
	assert.Equal(t, "Bacterium", saa.Genuses[0].GenusLocalised)
}

func TestParse_EveryKindDecodes(t *testing.T) {
	t.Parallel()

	kinds := []Kind{
		KindFileheader, KindLoadGame, KindCommander, KindShutdown, KindLocation, KindFSDJump,
		KindCarrierJump, KindFSDTarget, KindStartJump, KindNavRoute, KindNavRouteClear, KindScan,
		KindFSSDiscoveryScan, KindFSSAllBodiesFound, KindFSSBodySignals, KindSAASignalsFound,
		KindSAAScanComplete, KindScanOrganic, KindCodexEntry, KindTouchdown, KindLiftoff,
		KindDisembark, KindEmbark, KindApproachBody, KindLeaveBody, KindRank, KindProgress,
		KindReputation, KindPowerplay, KindCarrierStats, KindCarrierJumpRequest, KindCarrierJumpCancelled,
	}

	for _, k := range kinds {
		ev, err := ParseString(`{"timestamp":"2024-01-15T10:30:00Z","event":"` + string(k) + `"}`)
		require.NoError(t, err, k)
		assert.Equal(t, k, ev.Kind())
		_, unknown := ev.(*Unknown)
		assert.False(t, unknown, "%s decoded as Unknown", k)
	}
}

func TestClassifiers(t *testing.T) {
	t.Parallel()

	jump, _ := ParseString(`{"timestamp":"2024-01-15T10:30:00Z","event":"FSDJump","SystemAddress":9}`)
	scan, _ := ParseString(`{"timestamp":"2024-01-15T10:30:00Z","event":"Scan","SystemAddress":9}`)
	rank, _ := ParseString(`{"timestamp":"2024-01-15T10:30:00Z","event":"Rank","Explore":5}`)
	codex, _ := ParseString(`{"timestamp":"2024-01-15T10:30:00Z","event":"CodexEntry","SystemAddress":11}`)

	assert.True(t, IsStateDefining(jump))
	assert.True(t, IsNavigation(jump))
	assert.False(t, IsDetail(jump))

	assert.True(t, IsDetail(scan))
	assert.False(t, IsStateDefining(scan))

	assert.True(t, IsStateDefining(rank))
	_, ok := SystemAddressOf(rank)
	assert.False(t, ok)

	addr, ok := SystemAddressOf(codex)
	assert.True(t, ok)
	assert.Equal(t, int64(11), addr)
}

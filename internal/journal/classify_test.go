package journal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInferBodyType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		scan Scan
		want BodyType
	}{
		{"star", Scan{StarType: "K"}, BodyStar},
		{"planet around star", Scan{PlanetClass: "Icy body", Parents: []Parent{{"Star": 0}}}, BodyPlanet},
		{"moon", Scan{PlanetClass: "Rocky body", Parents: []Parent{{"Planet": 4}, {"Star": 0}}}, BodyMoon},
		{"planet around barycentre", Scan{PlanetClass: "Rocky body", Parents: []Parent{{"Null": 2}}}, BodyPlanet},
		{"belt cluster", Scan{BodyName: "Foo A Belt Cluster 4"}, BodyBelt},
		{"ring", Scan{BodyName: "Foo 3 A Ring"}, BodyRing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InferBodyType(&tt.scan))
		})
	}
}

func TestParentBodyID(t *testing.T) {
	t.Parallel()

	_, ok := ParentBodyID(nil)
	assert.False(t, ok)

	_, ok = ParentBodyID([]Parent{{"Null": 1}, {"Star": 0}})
	assert.False(t, ok, "barycentre is never a parent")

	id, ok := ParentBodyID([]Parent{{"Star": 2}})
	assert.True(t, ok)
	assert.Equal(t, 2, id)
}

func TestScanFidelity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, FidelityDetailed, ScanFidelity("Detailed"))
	assert.Equal(t, FidelityDetailed, ScanFidelity("AutoScan"))
	assert.Equal(t, FidelityDetailed, ScanFidelity("NavBeaconDetail"))
	assert.Equal(t, FidelityBasic, ScanFidelity("Basic"))
	assert.Equal(t, FidelityBasic, ScanFidelity("NavBeacon"))
	assert.True(t, FidelityMapped > FidelityDetailed)
	assert.Equal(t, "mapped", FidelityMapped.String())
}

func TestIsJournalFile(t *testing.T) {
	t.Parallel()

	assert.True(t, IsJournalFile("Journal.2024-01-15T103000.01.log"))
	assert.True(t, IsJournalFile("/some/dir/Journal.170101120000.01.log"))
	assert.False(t, IsJournalFile("JournalAlpha.2024-01-15T103000.01.log"))
	assert.False(t, IsJournalFile("NavRoute.json"))
	assert.False(t, IsJournalFile("Journal.2024-01-15T103000.01.log.bak"))
}

func TestJournalTime(t *testing.T) {
	t.Parallel()

	ts, ok := JournalTime("Journal.2024-01-15T103000.01.log")
	assert.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), ts)

	ts, ok = JournalTime("Journal.170101120000.02.log")
	assert.True(t, ok)
	assert.Equal(t, time.Date(2017, 1, 1, 12, 0, 0, 0, time.UTC), ts)

	part, ok := JournalPart("Journal.170101120000.02.log")
	assert.True(t, ok)
	assert.Equal(t, 2, part)

	_, ok = JournalTime("Status.json")
	assert.False(t, ok)
}

func TestOrganicProgress(t *testing.T) {
	t.Parallel()

	assert.Equal(t, OrganicLog, OrganicProgress("Log"))
	assert.Equal(t, OrganicSample, OrganicProgress("Sample"))
	assert.Equal(t, OrganicAnalyse, OrganicProgress("Analyse"))
	assert.Equal(t, 0, OrganicProgress("Unknown"))
}

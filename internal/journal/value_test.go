package journal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func f64(v float64) *float64 { return &v }
func boolp(v bool) *bool     { return &v }

func TestBodyValue_Planets(t *testing.T) {
	t.Parallel()

	base := ValueInput{BodyType: BodyPlanet, SubType: "High metal content body", MassEM: 0.5}
	terra := base
	terra.TerraformState = "Terraformable"

	assert.Greater(t, BodyValue(terra), BodyValue(base))

	mapped := base
	mapped.Mapped = true
	assert.Greater(t, BodyValue(mapped), BodyValue(base))

	efficient := mapped
	efficient.Efficient = true
	assert.Greater(t, BodyValue(efficient), BodyValue(mapped))

	first := base
	first.FirstDiscovery = true
	assert.InDelta(t, float64(BodyValue(base))*2.6, float64(BodyValue(first)), 3)
}

func TestBodyValue_Floor(t *testing.T) {
	t.Parallel()

	v := BodyValue(ValueInput{BodyType: BodyPlanet, SubType: "Icy body", MassEM: 0.0001})
	assert.Equal(t, int64(minimumBodyValue), v)
}

func TestBodyValue_Stars(t *testing.T) {
	t.Parallel()

	main := BodyValue(ValueInput{BodyType: BodyStar, SubType: "G", StellarMass: 1})
	neutron := BodyValue(ValueInput{BodyType: BodyStar, SubType: "N", StellarMass: 1})
	dwarf := BodyValue(ValueInput{BodyType: BodyStar, SubType: "DA", StellarMass: 1})

	assert.Equal(t, int64(1218), main)
	assert.Greater(t, neutron, dwarf)
	assert.Greater(t, dwarf, main)
}

func TestBodyValue_NonBodies(t *testing.T) {
	t.Parallel()

	assert.Zero(t, BodyValue(ValueInput{BodyType: BodyBelt}))
	assert.Zero(t, BodyValue(ValueInput{BodyType: BodyRing}))
}

func TestEstimateValue(t *testing.T) {
	t.Parallel()

	scan := &Scan{
		PlanetClass:   "Earthlike body",
		MassEM:        f64(1),
		WasDiscovered: boolp(false),
		WasMapped:     boolp(false),
		Parents:       []Parent{{"Star": 0}},
	}

	unmapped := EstimateValue(scan, false, false)
	mapped := EstimateValue(scan, true, true)
	assert.Greater(t, unmapped, int64(500000))
	assert.Greater(t, mapped, unmapped*3)
}

func TestBioValue(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(19010800), BioValue("Stratum Tectonicas"))
	assert.Zero(t, BioValue("Made Up Species"))
}

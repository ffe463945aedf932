package journal

import (
	"math"
	"strings"
)

// ValueInput is what the exploration payout formula needs to know about a body.
type ValueInput struct {
	BodyType       BodyType
	SubType        string // star type or planet class
	TerraformState string
	MassEM         float64
	StellarMass    float64
	FirstDiscovery bool
	FirstMapped    bool
	Mapped         bool
	Efficient      bool
}

// ValueInputFromScan builds a ValueInput from a scan. A missing WasDiscovered
// or WasMapped flag counts as already discovered or mapped.
func ValueInputFromScan(s *Scan) ValueInput {
	in := ValueInput{
		BodyType:       InferBodyType(s),
		SubType:        s.SubType(),
		TerraformState: s.TerraformState,
		FirstDiscovery: s.WasDiscovered != nil && !*s.WasDiscovered,
		FirstMapped:    s.WasMapped != nil && !*s.WasMapped,
	}
	if s.MassEM != nil {
		in.MassEM = *s.MassEM
	}
	if s.StellarMass != nil {
		in.StellarMass = *s.StellarMass
	}
	return in
}

// EstimateValue returns the estimated cartographic payout for a scanned body.
func EstimateValue(s *Scan, mapped, efficient bool) int64 {
	in := ValueInputFromScan(s)
	in.Mapped = mapped
	in.Efficient = efficient
	return BodyValue(in)
}

const (
	massExponentFactor = 0.56591828
	minimumBodyValue   = 500
	firstDiscoveryMult = 2.6
)

// BodyValue applies the community-documented payout formula.
func BodyValue(in ValueInput) int64 {
	switch in.BodyType {
	case BodyStar:
		return starValue(in)
	case BodyPlanet, BodyMoon:
		return planetValue(in)
	default:
		return 0
	}
}

func starValue(in ValueInput) int64 {
	k := 1200.0
	switch {
	case in.SubType == "SupermassiveBlackHole":
		k = 33.5678
	case in.SubType == "N" || in.SubType == "H":
		k = 22628
	case strings.HasPrefix(in.SubType, "D"):
		k = 14057
	}
	v := k + in.StellarMass*k/66.25
	if in.FirstDiscovery {
		v *= firstDiscoveryMult
	}
	return int64(math.Round(v))
}

func planetValue(in ValueInput) int64 {
	terraformable := in.TerraformState == "Terraformable" || in.TerraformState == "Terraforming"

	var k float64
	switch in.SubType {
	case "Metal rich body":
		k = 21790
	case "Ammonia world":
		k = 96932
	case "Sudarsky class I gas giant":
		k = 1656
	case "Sudarsky class II gas giant":
		k = 9654
	case "High metal content body":
		k = 9654
		if terraformable {
			k += 100677
		}
	case "Water world":
		k = 64831
		if terraformable {
			k += 116295
		}
	case "Earthlike body":
		k = 64831 + 116295
	default:
		k = 300
		if terraformable {
			k += 93328
		}
	}

	v := k + k*massExponentFactor*math.Pow(math.Max(in.MassEM, 0), 0.2)

	if in.Mapped {
		mult := 3.3333333333
		switch {
		case in.FirstDiscovery && in.FirstMapped:
			mult = 3.699622554
		case in.FirstMapped:
			mult = 8.0956
		}
		if in.Efficient {
			mult *= 1.25
		}
		v *= mult
		v += math.Max(v*0.3, 555)
	}

	v = math.Max(v, minimumBodyValue)
	if in.FirstDiscovery {
		v *= firstDiscoveryMult
	}
	return int64(math.Round(v))
}

// bioValues holds base payouts by species. Names are the English localised
// species names written by the game.
var bioValues = map[string]int64{
	"Aleoida Arcus":          7252500,
	"Aleoida Coronamus":      6284600,
	"Aleoida Gravis":         12934900,
	"Bacterium Aurasus":      1000000,
	"Bacterium Cerbrus":      1689800,
	"Bacterium Informem":     8418000,
	"Bacterium Vesicula":     1000000,
	"Bacterium Alcyoneum":    1658500,
	"Cactoida Cortexum":      3667600,
	"Clypeus Lacrimam":       8418000,
	"Clypeus Speculumi":      16202800,
	"Concha Renibus":         4572400,
	"Concha Biconcavis":      16777600,
	"Electricae Pluma":       6284600,
	"Electricae Radialem":    6284600,
	"Fonticulua Segmentatus": 19010800,
	"Fonticulua Campestris":  1000000,
	"Frutexa Flabellum":      1808900,
	"Fumerola Carbosis":      6284600,
	"Fungoida Setisis":       1670100,
	"Fungoida Stabitis":      2680300,
	"Osseus Fractus":         4027800,
	"Osseus Discus":          12934900,
	"Recepta Umbrux":         12934900,
	"Stratum Tectonicas":     19010800,
	"Stratum Paleas":         1362000,
	"Tubus Conifer":          2415500,
	"Tussock Pennata":        5853800,
	"Tussock Stigmasis":      19010800,
}

// BioValue returns the base payout for a species, 0 when unknown.
func BioValue(species string) int64 {
	return bioValues[species]
}

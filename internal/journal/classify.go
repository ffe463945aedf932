package journal

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// BodyType is the coarse classification of a scanned body.
type BodyType string

const (
	BodyStar   BodyType = "Star"
	BodyPlanet BodyType = "Planet"
	BodyMoon   BodyType = "Moon"
	BodyBelt   BodyType = "Belt"
	BodyRing   BodyType = "Ring"
)

// Fidelity is how much is known about a body. It only ever increases.
type Fidelity int

const (
	FidelityNone Fidelity = iota
	FidelityBasic
	FidelityDetailed
	FidelityMapped
)

func (f Fidelity) String() string {
	switch f {
	case FidelityBasic:
		return "basic"
	case FidelityDetailed:
		return "detailed"
	case FidelityMapped:
		return "mapped"
	default:
		return "none"
	}
}

// ScanFidelity maps a Scan's ScanType to the fidelity it establishes.
// AutoScan, Detailed and NavBeaconDetail all carry full body data; Basic and
// NavBeacon only the essentials.
func ScanFidelity(scanType string) Fidelity {
	switch scanType {
	case "Detailed", "AutoScan", "NavBeaconDetail":
		return FidelityDetailed
	case "Basic", "NavBeacon":
		return FidelityBasic
	default:
		return FidelityBasic
	}
}

// InferBodyType classifies a scan. Asteroid belt clusters carry neither a
// star type nor a planet class, so the name is the only hint.
func InferBodyType(s *Scan) BodyType {
	switch {
	case s.StarType != "":
		return BodyStar
	case s.PlanetClass != "":
		if len(s.Parents) > 0 {
			if _, ok := s.Parents[0]["Planet"]; ok {
				return BodyMoon
			}
		}
		return BodyPlanet
	case strings.Contains(s.BodyName, "Belt Cluster"):
		return BodyBelt
	case IsRingName(s.BodyName):
		return BodyRing
	default:
		return BodyBelt
	}
}

// SubType returns the star type or planet class, whichever is present.
func (s *Scan) SubType() string {
	if s.StarType != "" {
		return s.StarType
	}
	return s.PlanetClass
}

// IsRingName reports whether a body name refers to a planetary ring.
func IsRingName(name string) bool {
	return strings.HasSuffix(name, " Ring")
}

// ParentBodyID returns the body id of the nearest parent. Barycentres
// ("Null" entries) are never recorded as parents, so a body orbiting one
// has no parent.
func ParentBodyID(parents []Parent) (int, bool) {
	if len(parents) == 0 {
		return 0, false
	}
	for kind, id := range parents[0] {
		if kind == "Null" {
			return 0, false
		}
		return id, true
	}
	return 0, false
}

var (
	journalNameRE = regexp.MustCompile(`^Journal\.(\d{12}|\d{4}-\d{2}-\d{2}T\d{6})\.(\d{2})\.log$`)
)

// IsJournalFile reports whether name (a base name or path) is a journal file.
// Both the legacy Journal.YYMMDDhhmmss.NN.log and the current
// Journal.YYYY-MM-DDThhmmss.NN.log forms are accepted.
func IsJournalFile(name string) bool {
	return journalNameRE.MatchString(filepath.Base(name))
}

// JournalTime returns the session start encoded in a journal file name.
// Times are UTC; the legacy form was written in local time but carries no zone.
func JournalTime(name string) (time.Time, bool) {
	m := journalNameRE.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return time.Time{}, false
	}
	layout := "060102150405"
	if strings.Contains(m[1], "T") {
		layout = "2006-01-02T150405"
	}
	t, err := time.ParseInLocation(layout, m[1], time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// JournalPart returns the NN part number of a journal file name.
func JournalPart(name string) (int, bool) {
	m := journalNameRE.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return 0, false
	}
	return int(m[2][0]-'0')*10 + int(m[2][1]-'0'), true
}

// Organic scan steps. Three samples complete a species.
const (
	OrganicLog     = 1
	OrganicSample  = 2
	OrganicAnalyse = 3
)

// OrganicProgress maps a ScanOrganic ScanType onto its step, 0 if unknown.
func OrganicProgress(scanType string) int {
	switch scanType {
	case "Log":
		return OrganicLog
	case "Sample":
		return OrganicSample
	case "Analyse":
		return OrganicAnalyse
	default:
		return 0
	}
}

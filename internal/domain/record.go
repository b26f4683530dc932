package domain

import (
	"fmt"
	"time"
)

// Family identifies which SPC product a risk record came from.
type Family string

const (
	FamilyOutlook Family = "outlook"
	FamilyMeso    Family = "md"
	FamilyStorm   Family = "cat"
	FamilyThreat  Family = "threat"
	FamilyWatch   Family = "watch"
)

// ThreatType identifies a probabilistic severe-threat layer.
type ThreatType string

const (
	ThreatTornado ThreatType = "torn"
	ThreatWind    ThreatType = "wind"
	ThreatHail    ThreatType = "hail"
)

// RiskLevel is an SPC categorical outlook tier, ordered by severity.
type RiskLevel int

const (
	RiskNone RiskLevel = iota
	RiskThunder
	RiskMarginal
	RiskSlight
	RiskEnhanced
	RiskModerate
	RiskHigh
)

// riskTokens maps the SPC categorical label to its tier. Keys match the
// LABEL property on storm-risk GeoJSON features and the tokens embedded in
// outlook text.
var riskTokens = map[string]RiskLevel{
	"TSTM": RiskThunder,
	"MRGL": RiskMarginal,
	"SLGT": RiskSlight,
	"ENH":  RiskEnhanced,
	"MDT":  RiskModerate,
	"HIGH": RiskHigh,
}

// ParseRiskLevel maps an SPC categorical token to its tier.
// Unknown tokens map to RiskNone.
func ParseRiskLevel(token string) RiskLevel {
	return riskTokens[token]
}

// Token returns the SPC label for a risk level, or "NONE".
func (r RiskLevel) Token() string {
	for tok, lvl := range riskTokens {
		if lvl == r {
			return tok
		}
	}
	return "NONE"
}

// Coordinate is a WGS-84 latitude/longitude pair.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Ring is an ordered list of coordinates; the last point implicitly closes
// back to the first.
type Ring []Coordinate

// Record is one canonical risk record. Exactly one family-specific field
// group is meaningful, selected by Family; the shared fields are always set.
type Record struct {
	Key        string    `json:"key"`
	Family     Family    `json:"family"`
	Issued     time.Time `json:"issued"`
	ValidStart time.Time `json:"valid_start"`
	ValidEnd   time.Time `json:"valid_end"`
	Rings      []Ring    `json:"rings,omitempty"`
	Summary    string    `json:"summary,omitempty"`
	Title      string    `json:"title,omitempty"`
	Link       string    `json:"link,omitempty"`

	// Outlook / categorical fields.
	Day  int       `json:"day,omitempty"`
	Risk RiskLevel `json:"risk,omitempty"`

	// Severe-threat fields.
	Threat      ThreatType `json:"threat,omitempty"`
	Probability int        `json:"probability,omitempty"` // DN percentage bucket
	Significant bool       `json:"significant,omitempty"`

	// Mesoscale discussion fields.
	Number           int     `json:"number,omitempty"`
	WatchProbability int     `json:"watch_probability,omitempty"`
	AreasAffected    string  `json:"areas_affected,omitempty"`
	Concerning       string  `json:"concerning,omitempty"`
	PeakWindMPH      int     `json:"peak_wind_mph,omitempty"`
	MaxHailInches    float64 `json:"max_hail_in,omitempty"`
	TornadoStrength  string  `json:"tornado_strength,omitempty"`
}

// Severity is the shared projection across families used by notification
// rules: a 0–100 score plus the significant qualifier.
type Severity struct {
	Score       int
	Significant bool
}

// Severity projects the family-specific magnitude onto the shared scale.
// Categorical tiers map onto 0–100 so a HIGH outlook and a 60% tornado
// probability compare on one axis.
func (r Record) Severity() Severity {
	switch r.Family {
	case FamilyThreat:
		return Severity{Score: r.Probability, Significant: r.Significant}
	case FamilyStorm, FamilyOutlook:
		return Severity{Score: int(r.Risk) * 100 / int(RiskHigh)}
	case FamilyMeso:
		return Severity{Score: r.WatchProbability}
	case FamilyWatch:
		return Severity{Score: 100}
	default:
		return Severity{}
	}
}

// Bounds returns the enclosing bounding box of all rings, and false when the
// record has no polygon at all.
func (r Record) Bounds() (minLat, minLon, maxLat, maxLon float64, ok bool) {
	first := true
	for _, ring := range r.Rings {
		for _, c := range ring {
			if first {
				minLat, maxLat = c.Lat, c.Lat
				minLon, maxLon = c.Lon, c.Lon
				first = false
				continue
			}
			if c.Lat < minLat {
				minLat = c.Lat
			}
			if c.Lat > maxLat {
				maxLat = c.Lat
			}
			if c.Lon < minLon {
				minLon = c.Lon
			}
			if c.Lon > maxLon {
				maxLon = c.Lon
			}
		}
	}
	return minLat, minLon, maxLat, maxLon, !first
}

// ActiveAt reports whether the record's valid window contains t.
// Both bounds are inclusive.
func (r Record) ActiveAt(t time.Time) bool {
	return !t.Before(r.ValidStart) && !t.After(r.ValidEnd)
}

// CategoricalKey derives the identity key for a categorical storm-risk record:
// cat_{issuedEpoch}_{riskToken}.
func CategoricalKey(issued time.Time, level RiskLevel) string {
	return fmt.Sprintf("cat_%d_%s", issued.Unix(), level.Token())
}

// ThreatKey derives the identity key for a severe-threat record:
// {threatToken}_{issuedEpoch}_p{DN:02d}, with a "sig" suffix for the
// significant hatched layer. The suffix keeps a 10% significant-tornado
// contour distinct from the plain 10% contour issued at the same time.
func ThreatKey(threat ThreatType, issued time.Time, probability int, significant bool) string {
	key := fmt.Sprintf("%s_%d_p%02d", threat, issued.Unix(), probability)
	if significant {
		key += "sig"
	}
	return key
}

// OutlookKey derives the identity key for a convective outlook record:
// outlook_{issuedEpoch}_d{day}.
func OutlookKey(issued time.Time, day int) string {
	return fmt.Sprintf("outlook_%d_d%d", issued.Unix(), day)
}

// MesoKey derives the identity key for a mesoscale discussion record:
// md_{issuedEpoch}_{number}.
func MesoKey(issued time.Time, number int) string {
	return fmt.Sprintf("md_%d_%d", issued.Unix(), number)
}

// WatchKey derives the identity key for a watch record:
// watch_{issuedEpoch}_{number}.
func WatchKey(issued time.Time, number int) string {
	return fmt.Sprintf("watch_%d_%d", issued.Unix(), number)
}

package domain

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/severe-alert-service/internal/feed"
)

// Content-filter markers. Feed items whose titles lack the family marker are
// unrelated syndication entries sharing the feed (forecast discussions,
// administrative messages) and are dropped silently, not errors.
const (
	outlookMarker = "Convective Outlook"
	mesoMarker    = "Mesoscale Discussion"
	watchMarker   = "Watch"
)

var (
	// outlookDayRe matches "Day 1", "Day 2" in outlook titles.
	outlookDayRe = regexp.MustCompile(`Day (\d)`)

	// outlookRiskRe finds the highest categorical token in outlook text,
	// e.g. "THERE IS AN ENHANCED RISK OF SEVERE THUNDERSTORMS".
	outlookRiskRe = regexp.MustCompile(`(?i)THERE IS (?:A|AN) (HIGH|MODERATE|MDT|ENHANCED|ENH|SLIGHT|SLGT|MARGINAL|MRGL) RISK`)

	// watchNumberRe matches "Severe Thunderstorm Watch 243" / "Tornado Watch 57".
	watchNumberRe = regexp.MustCompile(`Watch (\d{1,4})`)

	// issuedRe matches the product issuance stamp, e.g.
	// "1130 AM CDT Mon Jun 01 2026" is preceded by an "Issued at" line in
	// some products. The Z-form "0530 PM CDT" lines are not parsed; the
	// feed publish date is authoritative when body parsing fails.
	issuedRe = regexp.MustCompile(`(\d{4})Z?\s*(?:UTC)?\s*(\d{2})/(\d{2})/(\d{4})`)

	outlookRiskAliases = map[string]string{
		"MODERATE": "MDT",
		"ENHANCED": "ENH",
		"SLIGHT":   "SLGT",
		"MARGINAL": "MRGL",
	}
)

// NormalizeOutlook maps one outlook feed item to zero or one record.
// Items without the outlook marker are dropped (nil, no error).
func NormalizeOutlook(item feed.Item) *Record {
	if !strings.Contains(item.Title, outlookMarker) {
		return nil
	}

	issued := issuedOrPublished(item)
	day := 1
	if m := outlookDayRe.FindStringSubmatch(item.Title); len(m) == 2 {
		if n, err := strconv.Atoi(m[1]); err == nil {
			day = n
		}
	}

	risk := RiskNone
	if m := outlookRiskRe.FindStringSubmatch(item.Body); len(m) == 2 {
		tok := strings.ToUpper(m[1])
		if alias, ok := outlookRiskAliases[tok]; ok {
			tok = alias
		}
		risk = ParseRiskLevel(tok)
	}

	// Outlooks are valid through the end of the convective day (12Z next day).
	validEnd := issued.Truncate(24 * time.Hour).Add((24 + 12) * time.Hour)

	return &Record{
		Key:        OutlookKey(issued, day),
		Family:     FamilyOutlook,
		Issued:     issued,
		ValidStart: issued,
		ValidEnd:   validEnd,
		Summary:    summarize(item.Body),
		Title:      item.Title,
		Link:       item.Link,
		Day:        day,
		Risk:       risk,
	}
}

// NormalizeMeso maps one mesoscale-discussion feed item to zero or one
// record, running the field extractor over the body.
func NormalizeMeso(item feed.Item) *Record {
	if !strings.Contains(item.Title, mesoMarker) && !mdTitleNumberRe.MatchString(item.Title) {
		return nil
	}

	issued := issuedOrPublished(item)
	fields := ExtractMesoFields(item.Title, item.Body, issued)

	summary := fields.Summary
	if summary == "" {
		summary = summarize(item.Body)
	}

	return &Record{
		Key:              MesoKey(issued, fields.Number),
		Family:           FamilyMeso,
		Issued:           issued,
		ValidStart:       fields.ValidStart,
		ValidEnd:         fields.ValidEnd,
		Rings:            fields.Rings,
		Summary:          summary,
		Title:            item.Title,
		Link:             item.Link,
		Number:           fields.Number,
		WatchProbability: fields.WatchProbability,
		AreasAffected:    fields.AreasAffected,
		Concerning:       fields.Concerning,
		PeakWindMPH:      fields.PeakWindMPH,
		MaxHailInches:    fields.MaxHailInches,
		TornadoStrength:  fields.TornadoStrength,
	}
}

// NormalizeWatch maps one watch feed item to zero or one record.
func NormalizeWatch(item feed.Item) *Record {
	if !strings.Contains(item.Title, watchMarker) {
		return nil
	}

	issued := issuedOrPublished(item)
	number := 0
	if m := watchNumberRe.FindStringSubmatch(item.Title); len(m) == 2 {
		if n, err := strconv.Atoi(m[1]); err == nil {
			number = n
		}
	}

	// Watch text rarely carries a machine-readable expiry; degrade to a
	// fixed window past issuance.
	const watchFallback = 8 * time.Hour

	return &Record{
		Key:        WatchKey(issued, number),
		Family:     FamilyWatch,
		Issued:     issued,
		ValidStart: issued,
		ValidEnd:   issued.Add(watchFallback),
		Summary:    summarize(item.Body),
		Title:      item.Title,
		Link:       item.Link,
		Number:     number,
	}
}

// NormalizeThreats maps a severe-threat GeoJSON collection to records, one
// per MultiPolygon feature. threat selects the probability layer (tornado,
// wind, hail). Features with empty geometry decode to no record: a threat
// record without a polygon can never match a containment query, so there is
// nothing to store.
func NormalizeThreats(threat ThreatType, fc feed.FeatureCollection) []Record {
	var records []Record
	for _, pf := range fc.Polygons {
		if len(pf.Rings) == 0 {
			continue
		}
		issued := parseShapeTime(pf.Props.Issue)
		validStart := parseShapeTime(pf.Props.Valid)
		validEnd := parseShapeTime(pf.Props.Expire)
		if validStart.IsZero() {
			validStart = issued
		}
		if validEnd.IsZero() {
			validEnd = validStart.Add(24 * time.Hour)
		}

		significant := strings.EqualFold(pf.Props.Label, "SIGN")

		records = append(records, Record{
			Key:         ThreatKey(threat, issued, pf.Props.DN, significant),
			Family:      FamilyThreat,
			Issued:      issued,
			ValidStart:  validStart,
			ValidEnd:    validEnd,
			Rings:       convertRings(pf.Rings),
			Summary:     pf.Props.Label2,
			Title:       pf.Title,
			Threat:      threat,
			Probability: pf.Props.DN,
			Significant: significant,
		})
	}
	return records
}

// NormalizeStormRisk maps the categorical storm-risk GeoJSON collection to
// records, one per categorical contour.
func NormalizeStormRisk(fc feed.FeatureCollection) []Record {
	var records []Record
	for _, pf := range fc.Polygons {
		if len(pf.Rings) == 0 {
			continue
		}
		level := ParseRiskLevel(strings.ToUpper(pf.Props.Label))
		issued := parseShapeTime(pf.Props.Issue)
		validStart := parseShapeTime(pf.Props.Valid)
		validEnd := parseShapeTime(pf.Props.Expire)
		if validStart.IsZero() {
			validStart = issued
		}
		if validEnd.IsZero() {
			validEnd = validStart.Add(24 * time.Hour)
		}

		records = append(records, Record{
			Key:        CategoricalKey(issued, level),
			Family:     FamilyStorm,
			Issued:     issued,
			ValidStart: validStart,
			ValidEnd:   validEnd,
			Rings:      convertRings(pf.Rings),
			Summary:    pf.Props.Label2,
			Title:      pf.Title,
			Risk:       level,
		})
	}
	return records
}

// issuedOrPublished pulls the issuance stamp from the body, falling back to
// the feed's publish metadata, falling back to the clock (skew tolerated).
func issuedOrPublished(item feed.Item) time.Time {
	if m := issuedRe.FindStringSubmatch(item.Body); len(m) == 5 {
		hhmm, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		year, _ := strconv.Atoi(m[4])
		if month >= 1 && month <= 12 && day >= 1 && day <= 31 && hhmm < 2400 {
			return time.Date(year, time.Month(month), day, hhmm/100, hhmm%100, 0, 0, time.UTC)
		}
	}
	if !item.Published.IsZero() {
		return item.Published.UTC()
	}
	return clock.Now().UTC()
}

// parseShapeTime decodes the yyyymmddHHMM stamps used by shape properties.
// Zero time on any mismatch; callers apply window fallbacks.
func parseShapeTime(s string) time.Time {
	t, err := time.Parse("200601021504", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func convertRings(in [][]feed.LatLon) []Ring {
	rings := make([]Ring, 0, len(in))
	for _, r := range in {
		ring := make(Ring, 0, len(r))
		for _, pt := range r {
			ring = append(ring, Coordinate{Lat: pt.Lat, Lon: pt.Lon})
		}
		rings = append(rings, ring)
	}
	return rings
}

// summarize keeps the first paragraph of a bulletin body, collapsed to one
// line, capped for storage.
func summarize(body string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}
	if i := strings.Index(body, "\n\n"); i > 0 {
		body = body[:i]
	}
	s := collapseWhitespace(body)
	const maxLen = 500
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return s
}

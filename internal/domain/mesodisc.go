package domain

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// mdNumberRe matches the discussion number in the body header,
	// e.g. "Mesoscale Discussion 1484".
	mdNumberRe = regexp.MustCompile(`Mesoscale Discussion (\d{1,4})`)

	// mdTitleNumberRe is the secondary pattern against the feed title,
	// e.g. "SPC MD 1484".
	mdTitleNumberRe = regexp.MustCompile(`MD\s*(\d{1,4})`)

	// mdAreasRe captures the "Areas affected..." block up to the next blank line.
	mdAreasRe = regexp.MustCompile(`Areas affected\.\.\.([\s\S]*?)\n\s*\n`)

	// mdSummaryRe captures the "SUMMARY..." block up to the next "FIELD..." header
	// or a blank line.
	mdSummaryRe = regexp.MustCompile(`SUMMARY\.\.\.([\s\S]*?)\n\s*\n`)

	// mdValidRe matches the DDHHMM Z validity window, e.g. "Valid 011830Z - 012030Z".
	mdValidRe = regexp.MustCompile(`Valid (\d{6})Z - (\d{6})Z`)

	// mdWatchProbRe matches "Probability of Watch Issuance...40 percent".
	mdWatchProbRe = regexp.MustCompile(`Probability of Watch Issuance\.\.\.(\d{1,3}) percent`)

	// mdConcerningRe captures the single "Concerning..." line.
	mdConcerningRe = regexp.MustCompile(`Concerning\.\.\.(.+)`)

	// mdWindRe matches peak gust phrasing: "gusts to 70 mph", "gusts of 60-75 mph",
	// "wind gusts up to 65 mph". The last number in a range is the peak.
	mdWindRe = regexp.MustCompile(`gusts(?: of| to| up to)?\s+(?:(\d{2,3})[- ]to[- ]|(\d{2,3})-)?(\d{2,3})\s*mph`)

	// mdHailRe matches hail size phrasing: "hail up to 2 inches",
	// "hail to 2.5 inches", "large hail of 1.5-2.5 inches".
	mdHailRe = regexp.MustCompile(`hail(?: up to| to| of)?\s+(?:(\d+(?:\.\d+)?)-)?(\d+(?:\.\d+)?)\s*(?:inch|inches|")`)

	// mdTornadoRe matches tornado strength descriptors, e.g. "a strong tornado
	// or two", "a couple of tornadoes possible".
	mdTornadoRe = regexp.MustCompile(`(?i)\b((?:strong|intense|brief|weak)\s+tornado(?:es)?|tornado(?:es)?\s+(?:possible|likely|expected))`)

	// mdLatLonRe locates the embedded polygon line. Coordinate pairs may wrap
	// across continuation lines indented under the LAT...LON header.
	mdLatLonRe = regexp.MustCompile(`LAT\.\.\.LON((?:[\s\n]+\d{8}|[\s\n]+\d{4})+)`)
)

// MesoFields is the structured extraction from one MD free-text body.
// Fields that fail to match carry their zero value; only Number has a
// fallback chain (body header, then title, then 0).
type MesoFields struct {
	Number           int
	AreasAffected    string
	Summary          string
	ValidStart       time.Time
	ValidEnd         time.Time
	WatchProbability int
	Concerning       string
	PeakWindMPH      int
	MaxHailInches    float64
	TornadoStrength  string
	Rings            []Ring
}

// ExtractMesoFields pulls the structured fields out of an MD body.
// issued anchors the DDHHMM validity window to a month and year. Individual
// pattern misses never fail the extraction as a whole.
func ExtractMesoFields(title, body string, issued time.Time) MesoFields {
	f := MesoFields{
		Number:           extractMDNumber(title, body),
		AreasAffected:    extractBlock(mdAreasRe, body),
		Summary:          extractBlock(mdSummaryRe, body),
		WatchProbability: extractInt(mdWatchProbRe, body),
		Concerning:       extractLine(mdConcerningRe, body),
		PeakWindMPH:      extractPeakWind(body),
		MaxHailInches:    extractMaxHail(body),
		TornadoStrength:  extractLine(mdTornadoRe, body),
	}
	f.ValidStart, f.ValidEnd = extractValidWindow(body, issued)
	if ring := extractLatLonRing(body); len(ring) >= 3 {
		f.Rings = []Ring{ring}
	}
	return f
}

// extractMDNumber tries the body header first, then the feed title.
// Returns 0 when neither matches.
func extractMDNumber(title, body string) int {
	if m := mdNumberRe.FindStringSubmatch(body); len(m) == 2 {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	if m := mdTitleNumberRe.FindStringSubmatch(title); len(m) == 2 {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	return 0
}

func extractBlock(re *regexp.Regexp, body string) string {
	m := re.FindStringSubmatch(body)
	if len(m) != 2 {
		return ""
	}
	return collapseWhitespace(m[1])
}

func extractLine(re *regexp.Regexp, body string) string {
	m := re.FindStringSubmatch(body)
	if len(m) != 2 {
		return ""
	}
	return strings.TrimSuffix(strings.TrimSpace(m[1]), "...")
}

func extractInt(re *regexp.Regexp, body string) int {
	m := re.FindStringSubmatch(body)
	if len(m) != 2 {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// extractPeakWind returns the highest gust figure mentioned. Ranges like
// "60-75 mph" report the upper bound.
func extractPeakWind(body string) int {
	peak := 0
	for _, m := range mdWindRe.FindAllStringSubmatch(body, -1) {
		if n, err := strconv.Atoi(m[3]); err == nil && n > peak {
			peak = n
		}
	}
	return peak
}

// extractMaxHail returns the largest hail diameter mentioned, in inches.
func extractMaxHail(body string) float64 {
	size := 0.0
	for _, m := range mdHailRe.FindAllStringSubmatch(body, -1) {
		if v, err := strconv.ParseFloat(m[2], 64); err == nil && v > size {
			size = v
		}
	}
	return size
}

// extractValidWindow parses "Valid DDHHMMZ - DDHHMMZ" anchored to the issued
// month. A window whose end day is smaller than its start day rolls over to
// the next month. When the line is absent or malformed the window degrades
// to issued through issued+4h, the typical MD lifetime.
func extractValidWindow(body string, issued time.Time) (time.Time, time.Time) {
	const fallback = 4 * time.Hour

	m := mdValidRe.FindStringSubmatch(body)
	if len(m) != 3 {
		return issued, issued.Add(fallback)
	}

	start, okS := parseDDHHMM(m[1], issued)
	end, okE := parseDDHHMM(m[2], issued)
	if !okS || !okE {
		return issued, issued.Add(fallback)
	}
	if end.Before(start) {
		end = end.AddDate(0, 1, 0)
	}
	return start, end
}

// parseDDHHMM decodes SPC DDHHMM notation against the issued month and year.
func parseDDHHMM(s string, issued time.Time) (time.Time, bool) {
	if len(s) != 6 {
		return time.Time{}, false
	}
	day, errD := strconv.Atoi(s[0:2])
	hour, errH := strconv.Atoi(s[2:4])
	mins, errM := strconv.Atoi(s[4:6])
	if errD != nil || errH != nil || errM != nil {
		return time.Time{}, false
	}
	if day < 1 || day > 31 || hour > 23 || mins > 59 {
		return time.Time{}, false
	}
	return time.Date(issued.Year(), issued.Month(), day, hour, mins, 0, 0, time.UTC), true
}

// extractLatLonRing decodes the LAT...LON coordinate line. Values are
// hundredths of degrees, latitude before longitude; longitudes below 50
// after scaling are west of 100°W and gain 100 before negation. A missing
// or odd-length line yields nil.
func extractLatLonRing(body string) Ring {
	m := mdLatLonRe.FindStringSubmatch(body)
	if len(m) != 2 {
		return nil
	}

	fields := strings.Fields(m[1])
	var values []float64
	for _, f := range fields {
		// 8-digit groups are a packed lat/lon pair.
		if len(f) == 8 {
			hi, errHi := strconv.ParseFloat(f[:4], 64)
			lo, errLo := strconv.ParseFloat(f[4:], 64)
			if errHi != nil || errLo != nil {
				return nil
			}
			values = append(values, hi, lo)
			continue
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil
		}
		values = append(values, v)
	}
	if len(values) < 2 || len(values)%2 != 0 {
		return nil
	}

	ring := make(Ring, 0, len(values)/2)
	for i := 0; i < len(values); i += 2 {
		lat := values[i] / 100
		lon := values[i+1] / 100
		if lon < 50 {
			lon += 100
		}
		ring = append(ring, Coordinate{Lat: lat, Lon: -lon})
	}
	return ring
}

// collapseWhitespace joins wrapped lines into a single-space-separated string.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

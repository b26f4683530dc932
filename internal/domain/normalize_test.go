package domain

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/severe-alert-service/internal/feed"
)

const outlookTestBody = `Day 1 Convective Outlook
NWS Storm Prediction Center Norman OK
1630Z 06/01/2026

...THERE IS AN ENHANCED RISK OF SEVERE THUNDERSTORMS ACROSS PARTS OF
CENTRAL OKLAHOMA...

...SUMMARY...
Severe thunderstorms capable of very large hail are expected.
`

func TestNormalizeOutlook(t *testing.T) {
	t.Run("enhanced risk day 1", func(t *testing.T) {
		item := feed.Item{
			Title: "SPC Day 1 Convective Outlook",
			Link:  "https://www.spc.noaa.gov/products/outlook/day1otlk.html",
			Body:  outlookTestBody,
		}
		rec := NormalizeOutlook(item)
		require.NotNil(t, rec)

		issued := time.Date(2026, 6, 1, 16, 30, 0, 0, time.UTC)
		assert.Equal(t, FamilyOutlook, rec.Family)
		assert.Equal(t, OutlookKey(issued, 1), rec.Key)
		assert.Equal(t, issued, rec.Issued)
		assert.Equal(t, 1, rec.Day)
		assert.Equal(t, RiskEnhanced, rec.Risk)
		// Valid through the end of the convective day, 12Z next day.
		assert.Equal(t, time.Date(2026, 6, 2, 12, 0, 0, 0, time.UTC), rec.ValidEnd)
		assert.Contains(t, rec.Summary, "Day 1 Convective Outlook")
	})

	t.Run("unrelated feed item dropped", func(t *testing.T) {
		item := feed.Item{Title: "SPC Forecast Discussion", Body: "nothing"}
		assert.Nil(t, NormalizeOutlook(item))
	})

	t.Run("risk token aliases", func(t *testing.T) {
		item := feed.Item{
			Title: "SPC Day 2 Convective Outlook",
			Body:  "1730Z 06/01/2026\n\n...THERE IS A SLIGHT RISK OF SEVERE THUNDERSTORMS...",
		}
		rec := NormalizeOutlook(item)
		require.NotNil(t, rec)
		assert.Equal(t, 2, rec.Day)
		assert.Equal(t, RiskSlight, rec.Risk)
	})

	t.Run("no risk phrase", func(t *testing.T) {
		item := feed.Item{
			Title: "SPC Day 1 Convective Outlook",
			Body:  "1630Z 06/01/2026\n\nGeneral thunderstorms are possible.",
		}
		rec := NormalizeOutlook(item)
		require.NotNil(t, rec)
		assert.Equal(t, RiskNone, rec.Risk)
	})

	t.Run("identical item derives identical record", func(t *testing.T) {
		item := feed.Item{Title: "SPC Day 1 Convective Outlook", Body: outlookTestBody}
		a := NormalizeOutlook(item)
		b := NormalizeOutlook(item)
		require.NotNil(t, a)
		assert.Equal(t, a, b)
	})
}

func TestNormalizeMeso(t *testing.T) {
	item := feed.Item{
		Title:     "SPC MD 1484",
		Link:      "https://www.spc.noaa.gov/products/md/md1484.html",
		Body:      mdTestBody,
		Published: time.Date(2026, 6, 1, 18, 47, 0, 0, time.UTC),
	}
	rec := NormalizeMeso(item)
	require.NotNil(t, rec)

	assert.Equal(t, FamilyMeso, rec.Family)
	assert.Equal(t, 1484, rec.Number)
	assert.Equal(t, MesoKey(rec.Issued, 1484), rec.Key)
	assert.Equal(t, 80, rec.WatchProbability)
	assert.Equal(t, 75, rec.PeakWindMPH)
	assert.Len(t, rec.Rings, 1)
	assert.Equal(t, time.Date(2026, 6, 1, 18, 45, 0, 0, time.UTC), rec.ValidStart)

	t.Run("unrelated title dropped", func(t *testing.T) {
		assert.Nil(t, NormalizeMeso(feed.Item{Title: "SPC Day 1 Fire Weather Outlook"}))
	})
}

func TestNormalizeWatch(t *testing.T) {
	t.Run("severe thunderstorm watch", func(t *testing.T) {
		issued := time.Date(2026, 6, 1, 19, 5, 0, 0, time.UTC)
		item := feed.Item{
			Title:     "Severe Thunderstorm Watch 243",
			Body:      "Watch issued for parts of central Oklahoma.",
			Published: issued,
		}
		rec := NormalizeWatch(item)
		require.NotNil(t, rec)

		assert.Equal(t, FamilyWatch, rec.Family)
		assert.Equal(t, 243, rec.Number)
		assert.Equal(t, WatchKey(issued, 243), rec.Key)
		assert.Equal(t, issued, rec.ValidStart)
		assert.Equal(t, issued.Add(8*time.Hour), rec.ValidEnd)
	})

	t.Run("unrelated title dropped", func(t *testing.T) {
		assert.Nil(t, NormalizeWatch(feed.Item{Title: "SPC Forecast Discussion"}))
	})
}

func TestNormalizeThreats(t *testing.T) {
	rings := [][]feed.LatLon{{
		{Lat: 35.0, Lon: -98.0},
		{Lat: 35.0, Lon: -97.0},
		{Lat: 36.0, Lon: -97.0},
		{Lat: 36.0, Lon: -98.0},
	}}
	props := feed.Properties{
		DN:     10,
		Issue:  "202606011630",
		Valid:  "202606011630",
		Expire: "202606021200",
		Label:  "0.10",
		Label2: "10% Tornado Risk",
	}

	t.Run("plain and significant contours stay distinct", func(t *testing.T) {
		sig := props
		sig.Label = "SIGN"
		sig.Label2 = "Significant Tornado Risk"
		fc := feed.FeatureCollection{Product: "tornado", Polygons: []feed.PolygonFeature{
			{Title: "tornado", Rings: rings, Props: props},
			{Title: "tornado", Rings: rings, Props: sig},
		}}

		records := NormalizeThreats(ThreatTornado, fc)
		require.Len(t, records, 2)
		assert.NotEqual(t, records[0].Key, records[1].Key)
		assert.False(t, records[0].Significant)
		assert.True(t, records[1].Significant)
		assert.Equal(t, 10, records[0].Probability)
		assert.Equal(t, time.Date(2026, 6, 2, 12, 0, 0, 0, time.UTC), records[0].ValidEnd)
	})

	t.Run("empty geometry stores nothing", func(t *testing.T) {
		fc := feed.FeatureCollection{Product: "tornado", Polygons: []feed.PolygonFeature{
			{Title: "tornado", Props: props},
		}}
		assert.Empty(t, NormalizeThreats(ThreatTornado, fc))
	})

	t.Run("empty collection is not an error", func(t *testing.T) {
		assert.Empty(t, NormalizeThreats(ThreatTornado, feed.FeatureCollection{Product: "tornado"}))
	})
}

func TestNormalizeStormRisk(t *testing.T) {
	rings := [][]feed.LatLon{{
		{Lat: 35.0, Lon: -98.0},
		{Lat: 35.0, Lon: -97.0},
		{Lat: 36.0, Lon: -97.0},
	}}
	fc := feed.FeatureCollection{Product: "cat", Polygons: []feed.PolygonFeature{
		{Title: "cat", Rings: rings, Props: feed.Properties{
			Label: "ENH", Label2: "Enhanced Risk",
			Issue: "202606011630", Valid: "202606011630", Expire: "202606021200",
		}},
	}}

	records := NormalizeStormRisk(fc)
	require.Len(t, records, 1)
	assert.Equal(t, FamilyStorm, records[0].Family)
	assert.Equal(t, RiskEnhanced, records[0].Risk)
	assert.Equal(t, CategoricalKey(records[0].Issued, RiskEnhanced), records[0].Key)
	assert.Len(t, records[0].Rings, 1)
}

func TestIssuedOrPublished(t *testing.T) {
	t.Run("body stamp wins", func(t *testing.T) {
		item := feed.Item{
			Body:      "1630Z 06/01/2026\n\ntext",
			Published: time.Date(2026, 6, 1, 17, 0, 0, 0, time.UTC),
		}
		assert.Equal(t, time.Date(2026, 6, 1, 16, 30, 0, 0, time.UTC), issuedOrPublished(item))
	})

	t.Run("publish date fallback", func(t *testing.T) {
		pub := time.Date(2026, 6, 1, 17, 0, 0, 0, time.UTC)
		item := feed.Item{Body: "no stamp", Published: pub}
		assert.Equal(t, pub, issuedOrPublished(item))
	})

	t.Run("clock fallback", func(t *testing.T) {
		fixed := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
		SetClock(clockwork.NewFakeClockAt(fixed))
		defer SetClock(nil)

		assert.Equal(t, fixed, issuedOrPublished(feed.Item{Body: "no stamp"}))
	})
}

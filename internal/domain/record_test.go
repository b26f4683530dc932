package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testIssued = time.Date(2026, 6, 1, 16, 30, 0, 0, time.UTC)

func TestKeys(t *testing.T) {
	t.Run("categorical", func(t *testing.T) {
		assert.Equal(t, "cat_1780331400_ENH", CategoricalKey(testIssued, RiskEnhanced))
	})

	t.Run("threat pads probability", func(t *testing.T) {
		assert.Equal(t, "torn_1780331400_p05", ThreatKey(ThreatTornado, testIssued, 5, false))
		assert.Equal(t, "wind_1780331400_p15", ThreatKey(ThreatWind, testIssued, 15, false))
	})

	t.Run("significant suffix distinguishes hatched layer", func(t *testing.T) {
		plain := ThreatKey(ThreatTornado, testIssued, 10, false)
		sig := ThreatKey(ThreatTornado, testIssued, 10, true)
		assert.NotEqual(t, plain, sig)
		assert.Equal(t, plain+"sig", sig)
	})

	t.Run("outlook", func(t *testing.T) {
		assert.Equal(t, "outlook_1780331400_d1", OutlookKey(testIssued, 1))
	})

	t.Run("meso and watch carry the bulletin number", func(t *testing.T) {
		assert.Equal(t, "md_1780331400_1484", MesoKey(testIssued, 1484))
		assert.Equal(t, "watch_1780331400_243", WatchKey(testIssued, 243))
	})

	t.Run("same inputs derive the same key", func(t *testing.T) {
		assert.Equal(t,
			ThreatKey(ThreatHail, testIssued, 30, true),
			ThreatKey(ThreatHail, testIssued, 30, true))
	})
}

func TestParseRiskLevel(t *testing.T) {
	assert.Equal(t, RiskHigh, ParseRiskLevel("HIGH"))
	assert.Equal(t, RiskMarginal, ParseRiskLevel("MRGL"))
	assert.Equal(t, RiskThunder, ParseRiskLevel("TSTM"))
	assert.Equal(t, RiskNone, ParseRiskLevel("BOGUS"))
	assert.Equal(t, RiskNone, ParseRiskLevel(""))
}

func TestRiskLevelToken(t *testing.T) {
	assert.Equal(t, "ENH", RiskEnhanced.Token())
	assert.Equal(t, "NONE", RiskNone.Token())
}

func TestRiskLevelOrdering(t *testing.T) {
	assert.True(t, RiskHigh > RiskModerate)
	assert.True(t, RiskModerate > RiskEnhanced)
	assert.True(t, RiskSlight > RiskMarginal)
	assert.True(t, RiskMarginal > RiskThunder)
}

func TestSeverity(t *testing.T) {
	t.Run("threat uses probability", func(t *testing.T) {
		r := Record{Family: FamilyThreat, Probability: 30, Significant: true}
		sev := r.Severity()
		assert.Equal(t, 30, sev.Score)
		assert.True(t, sev.Significant)
	})

	t.Run("categorical maps tier onto the shared scale", func(t *testing.T) {
		assert.Equal(t, 100, Record{Family: FamilyStorm, Risk: RiskHigh}.Severity().Score)
		assert.Equal(t, 0, Record{Family: FamilyStorm, Risk: RiskNone}.Severity().Score)
		mid := Record{Family: FamilyStorm, Risk: RiskSlight}.Severity().Score
		assert.Greater(t, mid, 0)
		assert.Less(t, mid, 100)
	})

	t.Run("meso uses watch probability", func(t *testing.T) {
		assert.Equal(t, 80, Record{Family: FamilyMeso, WatchProbability: 80}.Severity().Score)
	})

	t.Run("watch is maximal", func(t *testing.T) {
		assert.Equal(t, 100, Record{Family: FamilyWatch}.Severity().Score)
	})
}

func TestBounds(t *testing.T) {
	t.Run("spans all rings", func(t *testing.T) {
		r := Record{Rings: []Ring{
			{{35, -98}, {36, -97}, {35.5, -97.5}},
			{{34, -99}, {34.5, -98.5}, {34.2, -98.8}},
		}}
		minLat, minLon, maxLat, maxLon, ok := r.Bounds()
		require.True(t, ok)
		assert.Equal(t, 34.0, minLat)
		assert.Equal(t, -99.0, minLon)
		assert.Equal(t, 36.0, maxLat)
		assert.Equal(t, -97.0, maxLon)
	})

	t.Run("no rings", func(t *testing.T) {
		_, _, _, _, ok := Record{}.Bounds()
		assert.False(t, ok)
	})
}

func TestActiveAt(t *testing.T) {
	r := Record{
		ValidStart: time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC),
		ValidEnd:   time.Date(2026, 6, 1, 20, 0, 0, 0, time.UTC),
	}

	assert.True(t, r.ActiveAt(r.ValidStart), "start bound is inclusive")
	assert.True(t, r.ActiveAt(r.ValidEnd), "end bound is inclusive")
	assert.True(t, r.ActiveAt(r.ValidStart.Add(time.Hour)))
	assert.False(t, r.ActiveAt(r.ValidStart.Add(-time.Second)))
	assert.False(t, r.ActiveAt(r.ValidEnd.Add(time.Second)))
}

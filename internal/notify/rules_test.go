package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/severe-alert-service/internal/domain"
)

var central = time.FixedZone("CDT", -5*60*60)

func morningCtx(now time.Time) MorningContext {
	return MorningContext{
		Now:            now,
		Location:       central,
		CheckHour:      7,
		CheckMinute:    30,
		QuietStartHour: 22,
		QuietEndHour:   7,
		TodayRisk:      domain.RiskEnhanced,
		OutlookSummary: "Severe thunderstorms expected this afternoon.",
		LocationLabel:  "Oklahoma City",
	}
}

func TestMorningOutlookRule(t *testing.T) {
	morning := time.Date(2026, 6, 1, 8, 0, 0, 0, central)

	t.Run("fires after the check time", func(t *testing.T) {
		event := MorningOutlookRule{Ctx: morningCtx(morning)}.Evaluate()
		require.NotNil(t, event)
		assert.Equal(t, KindMorning, event.Kind)
		assert.Equal(t, "2026-06-01", event.DedupKey, "one per local calendar day")
		assert.Equal(t, "ENH", event.Payload["risk"])
	})

	t.Run("holds before the check time", func(t *testing.T) {
		early := time.Date(2026, 6, 1, 7, 15, 0, 0, central)
		assert.Nil(t, MorningOutlookRule{Ctx: morningCtx(early)}.Evaluate())
	})

	t.Run("suppressed during quiet hours", func(t *testing.T) {
		night := time.Date(2026, 6, 1, 23, 0, 0, 0, central)
		assert.Nil(t, MorningOutlookRule{Ctx: morningCtx(night)}.Evaluate())
	})

	t.Run("no risk no notification", func(t *testing.T) {
		ctx := morningCtx(morning)
		ctx.TodayRisk = domain.RiskNone
		assert.Nil(t, MorningOutlookRule{Ctx: ctx}.Evaluate())

		ctx.TodayRisk = domain.RiskThunder
		assert.Nil(t, MorningOutlookRule{Ctx: ctx}.Evaluate(), "plain thunderstorms are below the bar")
	})

	t.Run("marginal is the floor", func(t *testing.T) {
		ctx := morningCtx(morning)
		ctx.TodayRisk = domain.RiskMarginal
		assert.NotNil(t, MorningOutlookRule{Ctx: ctx}.Evaluate())
	})
}

func mesoRecord(key string, issued time.Time, prob int) domain.Record {
	return domain.Record{
		Key:              key,
		Family:           domain.FamilyMeso,
		Issued:           issued,
		Number:           1484,
		Summary:          "Storms intensifying.",
		Concerning:       "Severe potential...Watch likely",
		WatchProbability: prob,
	}
}

func TestMesoRule(t *testing.T) {
	afternoon := time.Date(2026, 6, 1, 15, 0, 0, 0, central)
	issued := afternoon.Add(-30 * time.Minute)

	base := MesoContext{
		Now:            afternoon,
		Location:       central,
		QuietStartHour: 22,
		QuietEndHour:   7,
		ActiveMDs:      []domain.Record{mesoRecord("md_1_1484", issued, 80)},
		LocationLabel:  "Oklahoma City",
	}

	t.Run("fires once per discussion", func(t *testing.T) {
		event := MesoRule{Ctx: base}.Evaluate()
		require.NotNil(t, event)
		assert.Equal(t, KindMeso, event.Kind)
		assert.Equal(t, "md_1_1484", event.DedupKey)
		assert.Equal(t, "80", event.Payload["watch_prob"])
	})

	t.Run("no active discussion", func(t *testing.T) {
		ctx := base
		ctx.ActiveMDs = nil
		assert.Nil(t, MesoRule{Ctx: ctx}.Evaluate())
	})

	t.Run("suppressed during quiet hours", func(t *testing.T) {
		ctx := base
		ctx.Now = time.Date(2026, 6, 1, 23, 30, 0, 0, central)
		assert.Nil(t, MesoRule{Ctx: ctx}.Evaluate())
	})

	t.Run("most recently issued discussion wins", func(t *testing.T) {
		ctx := base
		newer := mesoRecord("md_2_1490", issued.Add(20*time.Minute), 60)
		newer.Number = 1490
		ctx.ActiveMDs = append([]domain.Record{}, base.ActiveMDs...)
		ctx.ActiveMDs = append(ctx.ActiveMDs, newer)

		event := MesoRule{Ctx: ctx}.Evaluate()
		require.NotNil(t, event)
		assert.Equal(t, "md_2_1490", event.DedupKey)
		assert.Equal(t, "1490", event.Payload["number"])
	})

	t.Run("top threat attached when present", func(t *testing.T) {
		ctx := base
		ctx.ActiveThreats = []domain.Record{
			{Family: domain.FamilyThreat, Threat: domain.ThreatWind, Probability: 15},
			{Family: domain.FamilyThreat, Threat: domain.ThreatTornado, Probability: 30, Significant: true},
		}

		event := MesoRule{Ctx: ctx}.Evaluate()
		require.NotNil(t, event)
		assert.Equal(t, "torn", event.Payload["threat"])
		assert.Equal(t, "30", event.Payload["probability"])
		assert.Equal(t, "true", event.Payload["significant"])
	})
}

func TestWatchRule(t *testing.T) {
	now := time.Date(2026, 6, 1, 23, 30, 0, 0, central)
	watch := &domain.Record{
		Key:        "watch_1_243",
		Family:     domain.FamilyWatch,
		Number:     243,
		Title:      "Severe Thunderstorm Watch 243",
		Summary:    "Watch in effect for central Oklahoma.",
		ValidStart: now.Add(-time.Hour),
		ValidEnd:   now.Add(5 * time.Hour),
	}

	t.Run("fires even during quiet hours", func(t *testing.T) {
		event := WatchRule{Ctx: WatchContext{Now: now, LatestWatch: watch}}.Evaluate()
		require.NotNil(t, event)
		assert.Equal(t, KindWatch, event.Kind)
		assert.Equal(t, "watch_1_243", event.DedupKey)
	})

	t.Run("no watch on file", func(t *testing.T) {
		assert.Nil(t, WatchRule{Ctx: WatchContext{Now: now}}.Evaluate())
	})

	t.Run("expired watch", func(t *testing.T) {
		old := *watch
		old.ValidEnd = now.Add(-time.Minute)
		assert.Nil(t, WatchRule{Ctx: WatchContext{Now: now, LatestWatch: &old}}.Evaluate())
	})
}

func TestTopThreat(t *testing.T) {
	t.Run("probability wins", func(t *testing.T) {
		top, ok := topThreat([]domain.Record{
			{Family: domain.FamilyThreat, Threat: domain.ThreatHail, Probability: 15},
			{Family: domain.FamilyThreat, Threat: domain.ThreatWind, Probability: 45},
		})
		require.True(t, ok)
		assert.Equal(t, domain.ThreatWind, top.Threat)
	})

	t.Run("significant breaks ties", func(t *testing.T) {
		top, ok := topThreat([]domain.Record{
			{Family: domain.FamilyThreat, Threat: domain.ThreatWind, Probability: 30},
			{Family: domain.FamilyThreat, Threat: domain.ThreatHail, Probability: 30, Significant: true},
		})
		require.True(t, ok)
		assert.Equal(t, domain.ThreatHail, top.Threat)
	})

	t.Run("empty", func(t *testing.T) {
		_, ok := topThreat(nil)
		assert.False(t, ok)
	})
}

func TestCompose(t *testing.T) {
	t.Run("morning", func(t *testing.T) {
		msg := Compose(Event{Kind: KindMorning, Payload: map[string]string{
			"risk":     "ENH",
			"summary":  "Severe storms expected.",
			"location": "Oklahoma City",
		}})
		assert.Equal(t, "ENH risk of severe storms today", msg.Title)
		assert.Equal(t, "Severe storms expected.", msg.Body)
		assert.Equal(t, "Oklahoma City", msg.Subtitle)
	})

	t.Run("morning without summary gets fallback text", func(t *testing.T) {
		msg := Compose(Event{Kind: KindMorning, Payload: map[string]string{"risk": "SLGT"}})
		assert.NotEmpty(t, msg.Body)
	})

	t.Run("meso leads with watch probability", func(t *testing.T) {
		msg := Compose(Event{Kind: KindMeso, Payload: map[string]string{
			"number":     "1484",
			"summary":    "Storms intensifying.",
			"watch_prob": "80",
			"location":   "Oklahoma City",
		}})
		assert.Contains(t, msg.Title, "Oklahoma City")
		assert.Contains(t, msg.Body, "Watch probability 80%")
		assert.Equal(t, "Mesoscale Discussion 1484", msg.Subtitle)
	})

	t.Run("watch", func(t *testing.T) {
		msg := Compose(Event{Kind: KindWatch, Payload: map[string]string{
			"title":   "Tornado Watch 57",
			"summary": "Watch in effect until 03:00 UTC.",
		}})
		assert.Equal(t, "Tornado Watch 57", msg.Title)
		assert.Equal(t, "Watch in effect until 03:00 UTC.", msg.Body)
	})
}

func TestQuietHours(t *testing.T) {
	at := func(hour int) time.Time {
		return time.Date(2026, 6, 1, hour, 0, 0, 0, central)
	}

	t.Run("window wrapping midnight", func(t *testing.T) {
		assert.True(t, QuietHours(at(23), 22, 7))
		assert.True(t, QuietHours(at(3), 22, 7))
		assert.True(t, QuietHours(at(22), 22, 7), "start is inclusive")
		assert.False(t, QuietHours(at(7), 22, 7), "end is exclusive")
		assert.False(t, QuietHours(at(12), 22, 7))
	})

	t.Run("same-day window", func(t *testing.T) {
		assert.True(t, QuietHours(at(14), 13, 15))
		assert.False(t, QuietHours(at(15), 13, 15))
	})

	t.Run("degenerate window is always open", func(t *testing.T) {
		assert.False(t, QuietHours(at(8), 8, 8))
	})
}

package notify

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/couchcryptid/severe-alert-service/internal/domain"
)

// MorningContext is the snapshot the morning-outlook rule decides over.
type MorningContext struct {
	Now            time.Time
	Location       *time.Location
	CheckHour      int
	CheckMinute    int
	QuietStartHour int
	QuietEndHour   int
	TodayRisk      domain.RiskLevel
	OutlookSummary string
	LocationLabel  string
}

// MorningOutlookRule fires once per local calendar day, after the configured
// check time, when the day-1 outlook carries at least a marginal risk.
type MorningOutlookRule struct {
	Ctx MorningContext
}

func (MorningOutlookRule) Kind() Kind { return KindMorning }

func (r MorningOutlookRule) Evaluate() *Event {
	local := r.Ctx.Now.In(r.Ctx.Location)
	if QuietHours(local, r.Ctx.QuietStartHour, r.Ctx.QuietEndHour) {
		return nil
	}
	checkAt := time.Date(local.Year(), local.Month(), local.Day(),
		r.Ctx.CheckHour, r.Ctx.CheckMinute, 0, 0, r.Ctx.Location)
	if local.Before(checkAt) {
		return nil
	}
	if r.Ctx.TodayRisk < domain.RiskMarginal {
		return nil
	}

	return &Event{
		Kind: KindMorning,
		// One per local calendar day.
		DedupKey: local.Format("2006-01-02"),
		Payload: map[string]string{
			"risk":     r.Ctx.TodayRisk.Token(),
			"summary":  r.Ctx.OutlookSummary,
			"location": r.Ctx.LocationLabel,
		},
	}
}

// MesoContext is the snapshot the mesoscale rule decides over: the MDs and
// threat records currently active at the monitored point.
type MesoContext struct {
	Now            time.Time
	Location       *time.Location
	QuietStartHour int
	QuietEndHour   int
	ActiveMDs      []domain.Record
	ActiveThreats  []domain.Record
	LocationLabel  string
}

// MesoRule fires when a mesoscale discussion is active over the monitored
// point, once per discussion. Suppressed during quiet hours; a watch
// issuance will still get through via the watch rule.
type MesoRule struct {
	Ctx MesoContext
}

func (MesoRule) Kind() Kind { return KindMeso }

func (r MesoRule) Evaluate() *Event {
	if len(r.Ctx.ActiveMDs) == 0 {
		return nil
	}
	if QuietHours(r.Ctx.Now.In(r.Ctx.Location), r.Ctx.QuietStartHour, r.Ctx.QuietEndHour) {
		return nil
	}

	// Multiple active MDs surface the most recently issued one; ties among
	// threats are broken by the shared severity projection, significant
	// layers first. Policy lives here, never in the repository.
	mds := append([]domain.Record(nil), r.Ctx.ActiveMDs...)
	sort.Slice(mds, func(i, j int) bool { return mds[i].Issued.After(mds[j].Issued) })
	md := mds[0]

	payload := map[string]string{
		"number":     strconv.Itoa(md.Number),
		"summary":    md.Summary,
		"concerning": md.Concerning,
		"watch_prob": strconv.Itoa(md.WatchProbability),
		"location":   r.Ctx.LocationLabel,
	}
	if top, ok := topThreat(r.Ctx.ActiveThreats); ok {
		payload["threat"] = string(top.Threat)
		payload["probability"] = strconv.Itoa(top.Probability)
		if top.Significant {
			payload["significant"] = "true"
		}
	}

	return &Event{
		Kind:     KindMeso,
		DedupKey: md.Key, // once per bulletin
		Payload:  payload,
	}
}

// WatchContext is the snapshot the watch rule decides over.
type WatchContext struct {
	Now           time.Time
	LatestWatch   *domain.Record
	LocationLabel string
}

// WatchRule fires on each new watch issuance, regardless of quiet hours:
// a watch is the one product urgent enough to wake someone.
type WatchRule struct {
	Ctx WatchContext
}

func (WatchRule) Kind() Kind { return KindWatch }

func (r WatchRule) Evaluate() *Event {
	w := r.Ctx.LatestWatch
	if w == nil {
		return nil
	}
	if !w.ActiveAt(r.Ctx.Now) {
		return nil
	}

	return &Event{
		Kind:     KindWatch,
		DedupKey: w.Key, // once per watch
		Payload: map[string]string{
			"number":   strconv.Itoa(w.Number),
			"title":    w.Title,
			"summary":  w.Summary,
			"location": r.Ctx.LocationLabel,
			"until":    w.ValidEnd.UTC().Format("15:04 MST"),
		},
	}
}

// topThreat picks the highest-severity threat record: probability first,
// significant flag breaking ties.
func topThreat(threats []domain.Record) (domain.Record, bool) {
	if len(threats) == 0 {
		return domain.Record{}, false
	}
	best := threats[0]
	for _, t := range threats[1:] {
		bs, ts := best.Severity(), t.Severity()
		if ts.Score > bs.Score || (ts.Score == bs.Score && ts.Significant && !bs.Significant) {
			best = t
		}
	}
	return best, true
}

// Compose builds the user-visible message text for an event. Pure; all
// inputs come from the event payload.
func Compose(event Event) Message {
	p := event.Payload
	switch event.Kind {
	case KindMorning:
		msg := Message{
			Title:    fmt.Sprintf("%s risk of severe storms today", p["risk"]),
			Body:     p["summary"],
			Subtitle: p["location"],
		}
		if msg.Body == "" {
			msg.Body = "Severe weather is possible today. Review the outlook before heading out."
		}
		return msg

	case KindMeso:
		title := "Storms developing near " + orDefault(p["location"], "you")
		body := p["summary"]
		if p["watch_prob"] != "" && p["watch_prob"] != "0" {
			body = fmt.Sprintf("Watch probability %s%%. %s", p["watch_prob"], body)
		}
		return Message{
			Title:    title,
			Body:     body,
			Subtitle: "Mesoscale Discussion " + p["number"],
		}

	case KindWatch:
		return Message{
			Title:    orDefault(p["title"], "Severe weather watch issued"),
			Body:     orDefault(p["summary"], "A watch has been issued for your area until "+p["until"]+"."),
			Subtitle: p["location"],
		}

	default:
		return Message{Title: string(event.Kind)}
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

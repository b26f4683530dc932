// Package notify implements the rule → gate → compose → send pipeline.
// Rules are pure decisions over immutable context snapshots; the gate is the
// only stateful stage. New notification kinds plug in as Rule
// implementations without touching the driver.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/severe-alert-service/internal/observability"
)

// Kind is one of the closed set of notification kinds.
type Kind string

const (
	KindMorning Kind = "morning-outlook"
	KindMeso    Kind = "mesoscale"
	KindWatch   Kind = "watch"
)

// Event is a rule's decision to notify: what kind, how to dedup it, and the
// values the composer needs. Consumed exactly once.
type Event struct {
	Kind     Kind
	DedupKey string
	Payload  map[string]string
}

// Message is the composed notification text.
type Message struct {
	Title    string
	Body     string
	Subtitle string
}

// Rule evaluates one notification kind against the snapshot it was built
// over. Returning nil means no notification is warranted this cycle; that
// is the normal case, not an error.
type Rule interface {
	Kind() Kind
	Evaluate() *Event
}

// Gate decides whether an event may proceed. An approving gate has already
// persisted the event's dedup stamp by the time it returns true.
type Gate interface {
	Allow(ctx context.Context, event Event) (bool, error)
}

// Sender dispatches a composed message to the delivery mechanism.
type Sender interface {
	Send(ctx context.Context, msg Message, id string) error
}

// Driver runs the four-stage pipeline, short-circuiting on the first "no".
type Driver struct {
	gate    Gate
	sender  Sender
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewDriver wires the shared gate and sender stages.
func NewDriver(gate Gate, sender Sender, logger *slog.Logger, metrics *observability.Metrics) *Driver {
	return &Driver{gate: gate, sender: sender, logger: logger, metrics: metrics}
}

// Process evaluates one rule through the pipeline. It reports whether a
// notification was sent and, when it was not, the stage that declined.
// Send failures are logged, not retried; the next scheduled cycle is the
// implicit retry.
func (d *Driver) Process(ctx context.Context, rule Rule) (sent bool, reason string, err error) {
	kind := string(rule.Kind())

	event := rule.Evaluate()
	if event == nil {
		return false, "rule declined", nil
	}

	allowed, err := d.gate.Allow(ctx, *event)
	if err != nil {
		d.metrics.Notifications.WithLabelValues(kind, "error").Inc()
		return false, "gate error", fmt.Errorf("gate %s: %w", kind, err)
	}
	if !allowed {
		d.metrics.Notifications.WithLabelValues(kind, "gated").Inc()
		d.logger.Debug("notification gated", "kind", kind, "dedup_key", event.DedupKey)
		return false, "already sent", nil
	}

	msg := Compose(*event)

	id := fmt.Sprintf("%s:%s", event.Kind, event.DedupKey)
	if err := d.sender.Send(ctx, msg, id); err != nil {
		d.metrics.Notifications.WithLabelValues(kind, "error").Inc()
		d.logger.Error("notification send failed", "kind", kind, "id", id, "error", err)
		return false, "send failed", nil
	}

	d.metrics.Notifications.WithLabelValues(kind, "sent").Inc()
	d.logger.Info("notification sent", "kind", kind, "id", id, "title", msg.Title)
	return true, "", nil
}

// LogSender writes notifications to the log. Used when no delivery channel
// is configured.
type LogSender struct {
	Logger *slog.Logger
}

func (s *LogSender) Send(_ context.Context, msg Message, id string) error {
	s.Logger.Info("notification (log only)",
		"id", id, "title", msg.Title, "subtitle", msg.Subtitle, "body", msg.Body)
	return nil
}

// QuietHours reports whether local time t falls inside the [start, end)
// quiet window, which may wrap past midnight.
func QuietHours(t time.Time, startHour, endHour int) bool {
	h := t.Hour()
	if startHour == endHour {
		return false
	}
	if startHour < endHour {
		return h >= startHour && h < endHour
	}
	return h >= startHour || h < endHour
}

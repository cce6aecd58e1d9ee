// Package notifier implements the cooldown-gated alert emitter spec §7
// describes: "the notifier coalesces identical alerts within a 5-minute
// cooldown window." It is called by the reconciler, and the health
// aggregator reads its queue depth, mirroring the teacher's single Exception-audit
// pattern (src/repository/exception_repository.go) generalized from a
// persist-only sink to a persist-and-optionally-transport one.
package notifier

import (
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"
)

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is one notification instance. Key identifies the alert class
// for cooldown coalescing purposes — two alerts with the same Key within
// the cooldown window collapse into one emission.
type Alert struct {
	Key      string
	Severity Severity
	Message  string
	Fields   map[string]interface{}
}

// Transport is the external collaborator that actually delivers an
// alert (e-mail, etc). Its internals are out of this module's scope per
// spec §1; Notifier only decides whether and when to call it.
type Transport interface {
	Send(alert Alert) error
}

// Notifier coalesces repeated identical alerts within Config.Cooldown,
// per spec §7, before handing them to the injected Transport.
type Notifier struct {
	cfg       Config
	transport Transport

	mu       sync.Mutex
	lastSent map[string]time.Time
}

func New(cfg Config, transport Transport) *Notifier {
	return &Notifier{cfg: cfg, transport: transport, lastSent: map[string]time.Time{}}
}

// Notify emits the alert unless an identical-Key alert was already sent
// within the cooldown window, in which case it is silently dropped
// (logged at Debug) rather than queued.
func (n *Notifier) Notify(alert Alert) {
	n.mu.Lock()
	now := time.Now()
	last, seen := n.lastSent[alert.Key]
	if seen && now.Sub(last) < n.cfg.Cooldown {
		n.mu.Unlock()
		logger.WithField("key", alert.Key).Debug("alert suppressed by cooldown")
		return
	}
	n.lastSent[alert.Key] = now
	n.mu.Unlock()

	entry := logger.WithFields(map[string]interface{}{
		"component": "notifier", "key": alert.Key, "severity": alert.Severity,
	})
	for k, v := range alert.Fields {
		entry = entry.WithField(k, v)
	}
	if alert.Severity == SeverityCritical {
		entry.Error(alert.Message)
	} else {
		entry.Warn(alert.Message)
	}

	if err := n.transport.Send(alert); err != nil {
		logger.WithError(err).WithField("key", alert.Key).Error("notifier transport failed to deliver alert")
	}
}

// QueueDepth is always zero for this synchronous notifier — reported to
// the Health Aggregator per spec §4.8's "notifier's queue" field. Kept
// as a method rather than a field so a future async transport can wire
// in a real backlog count without changing the Health Aggregator's call
// site.
func (n *Notifier) QueueDepth() int { return 0 }

package notifier

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingTransport struct {
	sent []Alert
	err  error
}

func (c *countingTransport) Send(alert Alert) error {
	c.sent = append(c.sent, alert)
	return c.err
}

func TestNotifySuppressesWithinCooldown(t *testing.T) {
	transport := &countingTransport{}
	n := New(Config{Cooldown: time.Hour}, transport)

	n.Notify(Alert{Key: "reconcile_failing", Severity: SeverityWarning, Message: "first"})
	n.Notify(Alert{Key: "reconcile_failing", Severity: SeverityWarning, Message: "second"})

	assert.Len(t, transport.sent, 1)
	assert.Equal(t, "first", transport.sent[0].Message)
}

func TestNotifyDistinctKeysBothEmit(t *testing.T) {
	transport := &countingTransport{}
	n := New(Config{Cooldown: time.Hour}, transport)

	n.Notify(Alert{Key: "a", Message: "one"})
	n.Notify(Alert{Key: "b", Message: "two"})

	assert.Len(t, transport.sent, 2)
}

func TestNotifyResendsAfterCooldownElapses(t *testing.T) {
	transport := &countingTransport{}
	n := New(Config{Cooldown: 10 * time.Millisecond}, transport)

	n.Notify(Alert{Key: "a", Message: "one"})
	time.Sleep(20 * time.Millisecond)
	n.Notify(Alert{Key: "a", Message: "two"})

	assert.Len(t, transport.sent, 2)
}

func TestNotifySurvivesTransportError(t *testing.T) {
	transport := &countingTransport{err: errors.New("smtp down")}
	n := New(Config{Cooldown: time.Hour}, transport)

	assert.NotPanics(t, func() {
		n.Notify(Alert{Key: "a", Severity: SeverityCritical, Message: "boom"})
	})
	assert.Len(t, transport.sent, 1)
}

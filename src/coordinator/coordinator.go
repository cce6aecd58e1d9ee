// Package coordinator enforces the outbound request policy spec §4.2
// describes: a sliding-window rate limit, minimum inter-request spacing,
// a failure-driven circuit breaker, and soft/hard penalty windows keyed
// off exchange-reported 429/418 responses. One Coordinator instance is a
// per-exchange singleton; admission is globally serialized, mirroring
// the ticker-loop single-writer discipline of executors/start_loop.go.
package coordinator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"
)

// ErrBlocked is returned by Admit when a penalty window or open circuit
// prevents the call from proceeding. Callers must fall back to cached
// data rather than retry — spec §7's "coordinator-blocked" error kind.
type ErrBlocked struct {
	Reason    string
	Remaining time.Duration
}

func (e *ErrBlocked) Error() string {
	return fmt.Sprintf("coordinator blocked (%s), retry in %s", e.Reason, e.Remaining)
}

type Status struct {
	IsCircuitBreakerOpen bool
	BannedUntil          time.Time
	BackoffUntil         time.Time
	RemainingSeconds     int
	Reason               string
	RequestsLastMinute   int
	TopEndpoints         []EndpointCount
}

type EndpointCount struct {
	Endpoint string
	Count    int
}

type Coordinator struct {
	cfg Config

	mu                      sync.Mutex
	timestamps              []time.Time
	lastRequestTime         time.Time
	consecutiveFailures     int
	backoffUntil            time.Time
	ipBannedUntil           time.Time
	circuitBreakerOpenUntil time.Time
	circuitReason           string
	endpointCounts          map[string]int
}

func New(cfg Config) *Coordinator {
	return &Coordinator{cfg: cfg, endpointCounts: map[string]int{}}
}

// Admit implements spec §4.2's five-step admission protocol. It must be
// called before every outbound request; ctx cancellation aborts a wait
// but never skips the bookkeeping steps that already completed.
func (c *Coordinator) Admit(ctx context.Context, endpoint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()

	// Step 1: reject outright on an active penalty window.
	if blocked, reason, remaining := c.blockedLocked(now); blocked {
		return &ErrBlocked{Reason: reason, Remaining: remaining}
	}

	// Step 2: expire one-shot states whose deadlines have passed.
	c.expireOneShotsLocked(now)

	// Step 3: evict stale timestamps; wait if the ring is saturated.
	c.evictStaleLocked(now)
	if len(c.timestamps) >= c.cfg.MaxRequestsPerMinute {
		oldest := c.timestamps[0]
		wait := oldest.Add(60*time.Second + 100*time.Millisecond).Sub(now)
		if wait > 0 {
			if err := c.sleepLocked(ctx, wait); err != nil {
				return err
			}
		}
		now = time.Now()
		c.evictStaleLocked(now)
	}

	// Step 4: enforce minimum inter-request spacing.
	if !c.lastRequestTime.IsZero() {
		elapsed := now.Sub(c.lastRequestTime)
		if elapsed < c.cfg.MinRequestSpacing {
			if err := c.sleepLocked(ctx, c.cfg.MinRequestSpacing-elapsed); err != nil {
				return err
			}
			now = time.Now()
		}
	}

	// Step 5: record the admitted call.
	c.timestamps = append(c.timestamps, now)
	c.lastRequestTime = now
	c.endpointCounts[endpoint]++
	return nil
}

// sleepLocked waits while holding the coordinator lock — admission is
// globally serialized per exchange per spec §5.
func (c *Coordinator) sleepLocked(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) blockedLocked(now time.Time) (bool, string, time.Duration) {
	if now.Before(c.ipBannedUntil) {
		return true, "ip_ban", c.ipBannedUntil.Sub(now)
	}
	if now.Before(c.backoffUntil) {
		return true, "backoff", c.backoffUntil.Sub(now)
	}
	if now.Before(c.circuitBreakerOpenUntil) {
		return true, "circuit_open", c.circuitBreakerOpenUntil.Sub(now)
	}
	return false, "", 0
}

func (c *Coordinator) expireOneShotsLocked(now time.Time) {
	if !c.ipBannedUntil.IsZero() && now.After(c.ipBannedUntil) {
		logger.WithField("component", "coordinator").Info("ip ban window expired, resuming calls")
		c.ipBannedUntil = time.Time{}
	}
	if !c.backoffUntil.IsZero() && now.After(c.backoffUntil) {
		logger.WithField("component", "coordinator").Info("backoff window expired, resuming calls")
		c.backoffUntil = time.Time{}
	}
	if !c.circuitBreakerOpenUntil.IsZero() && now.After(c.circuitBreakerOpenUntil) {
		logger.WithField("component", "coordinator").Info("circuit breaker timeout elapsed, closing circuit")
		c.circuitBreakerOpenUntil = time.Time{}
		c.circuitReason = ""
		c.consecutiveFailures = 0
	}
}

func (c *Coordinator) evictStaleLocked(now time.Time) {
	cutoff := now.Add(-60 * time.Second)
	i := 0
	for i < len(c.timestamps) && c.timestamps[i].Before(cutoff) {
		i++
	}
	c.timestamps = c.timestamps[i:]
}

func (c *Coordinator) RecordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveFailures = 0
}

func (c *Coordinator) RecordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveFailures++
	if c.consecutiveFailures >= c.cfg.CircuitFailureThreshold {
		c.circuitBreakerOpenUntil = time.Now().Add(c.cfg.CircuitBreakerTimeout)
		c.circuitReason = "consecutive_failures"
		logger.WithField("component", "coordinator").
			WithField("failures", c.consecutiveFailures).
			Warn("circuit breaker opened")
	}
}

// Handle429 sets the soft backoff window and dumps the top endpoints.
func (c *Coordinator) Handle429() {
	c.mu.Lock()
	c.backoffUntil = time.Now().Add(c.cfg.BackoffWindow)
	top := c.topEndpointsLocked(10)
	c.mu.Unlock()

	logger.WithField("component", "coordinator").
		WithField("top_endpoints", top).
		Warn("received 429, backing off for " + c.cfg.BackoffWindow.String())
}

// Handle418 sets the hard IP-ban window and opens the circuit to match.
func (c *Coordinator) Handle418(banDuration *time.Duration) {
	d := c.cfg.DefaultBanWindow
	if banDuration != nil && *banDuration > 0 {
		d = *banDuration
	}

	c.mu.Lock()
	until := time.Now().Add(d)
	c.ipBannedUntil = until
	c.circuitBreakerOpenUntil = until
	c.circuitReason = "ip_ban"
	top := c.topEndpointsLocked(10)
	c.mu.Unlock()

	logger.WithField("component", "coordinator").
		WithField("top_endpoints", top).
		Error("received 418, banned for " + d.String())
}

func (c *Coordinator) topEndpointsLocked(n int) []EndpointCount {
	out := make([]EndpointCount, 0, len(c.endpointCounts))
	for ep, count := range c.endpointCounts {
		out = append(out, EndpointCount{Endpoint: ep, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func (c *Coordinator) Snapshot() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	_, reason, remaining := c.blockedLocked(now)

	return Status{
		IsCircuitBreakerOpen: !c.circuitBreakerOpenUntil.IsZero() && now.Before(c.circuitBreakerOpenUntil),
		BannedUntil:          c.ipBannedUntil,
		BackoffUntil:         c.backoffUntil,
		RemainingSeconds:     int(remaining.Seconds()),
		Reason:               reason,
		RequestsLastMinute:   len(c.timestamps),
		TopEndpoints:         c.topEndpointsLocked(10),
	}
}

// StartReporting runs the periodic per-endpoint reporting loop described
// in spec §4.2, emitting totals every ReportInterval and diagnostic
// hints for endpoints above the high-frequency threshold.
func (c *Coordinator) StartReporting(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			total := 0
			for _, n := range c.endpointCounts {
				total += n
			}
			top := c.topEndpointsLocked(10)
			var hot []EndpointCount
			for _, ep := range top {
				if ep.Count >= c.cfg.HighFrequencyThreshold {
					hot = append(hot, ep)
				}
			}
			c.endpointCounts = map[string]int{}
			c.mu.Unlock()

			entry := logger.WithField("component", "coordinator").
				WithField("total_requests", total).
				WithField("top_endpoints", top)
			if len(hot) > 0 {
				entry.WithField("high_frequency_endpoints", hot).Warn("periodic coordinator report")
			} else {
				entry.Info("periodic coordinator report")
			}
		}
	}
}

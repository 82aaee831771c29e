// Package dashboard polls the admin aggregate stats with a failure breaker.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/notary-booking/internal/backend"
	"github.com/wolfman30/notary-booking/internal/observability/metrics"
	"github.com/wolfman30/notary-booking/pkg/logging"
)

const (
	DefaultInterval    = 30 * time.Second
	DefaultMaxFailures = 3
	DefaultMaxBackoff  = 5 * time.Minute
)

// State is the poller's health.
type State int

const (
	// Healthy: polling on schedule (possibly backing off after a failure).
	Healthy State = iota
	// Degraded: too many consecutive failures; automatic polling is off
	// until Refresh or TabChanged.
	Degraded
)

func (s State) String() string {
	if s == Degraded {
		return "degraded"
	}
	return "healthy"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// StatsSource fetches the aggregate.
type StatsSource interface {
	DashboardStats(ctx context.Context) (*backend.DashboardStats, error)
}

// Options tunes a Poller. Zero values take the defaults.
type Options struct {
	Interval    time.Duration
	MaxFailures int
	MaxBackoff  time.Duration
	Metrics     *metrics.ClientMetrics
	Now         func() time.Time
}

// Snapshot is what the dashboard renders.
type Snapshot struct {
	Stats       *backend.DashboardStats `json:"stats"`
	State       State                   `json:"state"`
	Failures    int                     `json:"consecutive_failures"`
	LastError   string                  `json:"last_error,omitempty"`
	LastSuccess time.Time               `json:"last_success,omitempty"`
	NextPoll    time.Time               `json:"next_poll,omitempty"`
}

// Poller fetches stats on an interval. Consecutive failures stretch the
// delay; MaxFailures of them in a row stop the schedule.
type Poller struct {
	src     StatsSource
	opts    Options
	logger  *logging.Logger
	metrics *metrics.ClientMetrics

	inflight sync.Mutex
	wake     chan struct{}

	mu          sync.RWMutex
	stats       *backend.DashboardStats
	state       State
	failures    int
	lastErr     error
	lastSuccess time.Time
	nextPoll    time.Time
}

func NewPoller(src StatsSource, opts Options, logger *logging.Logger) *Poller {
	if src == nil {
		panic("dashboard: stats source required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = DefaultMaxFailures
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = DefaultMaxBackoff
	}
	if opts.MaxBackoff < opts.Interval {
		opts.MaxBackoff = opts.Interval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Poller{
		src:     src,
		opts:    opts,
		logger:  logger,
		metrics: opts.Metrics,
		wake:    make(chan struct{}, 1),
	}
}

// Run polls until ctx is done. It starts with an immediate poll.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("dashboard poller: started", "interval", p.opts.Interval.String(), "max_failures", p.opts.MaxFailures)
	_ = p.Poll(ctx)

	for {
		delay, paused := p.schedule()
		if paused {
			p.logger.Warn("dashboard poller: suspended after repeated failures", "failures", p.Snapshot().Failures)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-p.wake:
				continue
			}
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-p.wake:
			timer.Stop()
		case <-timer.C:
			_ = p.Poll(ctx)
		}
	}
}

// Poll runs one scheduled fetch. Failures count toward the breaker.
func (p *Poller) Poll(ctx context.Context) error {
	p.inflight.Lock()
	defer p.inflight.Unlock()

	stats, err := p.src.DashboardStats(ctx)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return err
	}

	p.mu.Lock()
	if err != nil {
		p.failures++
		p.lastErr = err
		if p.failures >= p.opts.MaxFailures {
			p.state = Degraded
		}
	} else {
		p.stats = stats
		p.failures = 0
		p.lastErr = nil
		p.state = Healthy
		p.lastSuccess = p.opts.Now()
	}
	state, failures := p.state, p.failures
	p.mu.Unlock()

	p.metrics.SetPollerState(state == Degraded, failures)
	if err != nil {
		p.logger.Warn("dashboard poller: fetch failed", "failures", failures, "state", state.String(), "error", err)
		return fmt.Errorf("dashboard: fetch stats: %w", err)
	}
	return nil
}

// Refresh is the manual refresh: it clears the breaker, polls once, and
// resumes the schedule.
func (p *Poller) Refresh(ctx context.Context) error {
	p.reset("refresh")
	err := p.Poll(ctx)
	p.signal()
	return err
}

// TabChanged resets the breaker the same way when the admin switches tabs.
func (p *Poller) TabChanged(ctx context.Context) error {
	p.reset("tab_changed")
	err := p.Poll(ctx)
	p.signal()
	return err
}

// Snapshot returns the latest state.
func (p *Poller) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := Snapshot{
		Stats:       p.stats,
		State:       p.state,
		Failures:    p.failures,
		LastSuccess: p.lastSuccess,
		NextPoll:    p.nextPoll,
	}
	if p.lastErr != nil {
		s.LastError = p.lastErr.Error()
	}
	return s
}

// Backoff is the delay after n consecutive failures.
func (p *Poller) Backoff(n int) time.Duration {
	d := p.opts.Interval
	for i := 0; i < n && d < p.opts.MaxBackoff; i++ {
		d *= 2
	}
	if d > p.opts.MaxBackoff {
		d = p.opts.MaxBackoff
	}
	return d
}

func (p *Poller) schedule() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Degraded {
		p.nextPoll = time.Time{}
		return 0, true
	}
	d := p.Backoff(p.failures)
	p.nextPoll = p.opts.Now().Add(d)
	return d, false
}

func (p *Poller) reset(trigger string) {
	p.mu.Lock()
	was := p.state
	p.failures = 0
	p.state = Healthy
	p.mu.Unlock()
	p.metrics.SetPollerState(false, 0)
	if was == Degraded {
		p.logger.Info("dashboard poller: resumed", "trigger", trigger)
	}
}

func (p *Poller) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

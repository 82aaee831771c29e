// Package limits tracks the caller's per-day booking quota.
package limits

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/notary-booking/internal/backend"
	"github.com/wolfman30/notary-booking/internal/events"
	"github.com/wolfman30/notary-booking/internal/identity"
	"github.com/wolfman30/notary-booking/pkg/logging"
)

// ErrNoIdentity means the check was skipped because the user is not known yet.
var ErrNoIdentity = errors.New("limits: identity not resolved")

const (
	reachedMessage  = "You have reached your daily booking limit for this date."
	checkingMessage = "Checking your daily booking limit..."
	unknownMessage  = "Unable to verify your daily booking limit. Please try again."
)

// Freshness says how far a snapshot can be trusted.
type Freshness int

const (
	// Unknown: never fetched for this date.
	Unknown Freshness = iota
	// Stale: fetched once, but the latest refresh failed or was invalidated.
	Stale
	// Fresh: the last fetch for this date succeeded.
	Fresh
)

func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "unknown"
	}
}

// Snapshot is the quota state for one date.
type Snapshot struct {
	Date      string
	Info      backend.DailyLimitInfo
	Freshness Freshness
	FetchedAt time.Time
	Err       error
}

// Decision is the gate the booking flow consults.
type Decision struct {
	Allowed   bool
	Reason    string
	Freshness Freshness
	Warning   string
}

// LimitSource fetches quota info.
type LimitSource interface {
	GetUserLimit(ctx context.Context, userID, date string) (*backend.DailyLimitInfo, error)
}

// IdentitySource yields the signed-in user.
type IdentitySource interface {
	Current() (identity.Identity, bool)
}

// Options tunes a Guard.
type Options struct {
	// FailOpen allows booking when the quota is not Fresh, with a warning.
	FailOpen bool
	Location *time.Location
	Now      func() time.Time
}

// Guard caches one Snapshot per date and answers whether booking is allowed.
type Guard struct {
	source   LimitSource
	ids      IdentitySource
	logger   *logging.Logger
	failOpen bool
	loc      *time.Location
	now      func() time.Time

	mu        sync.RWMutex
	snapshots map[string]Snapshot
	selected  string
}

// NewGuard creates a guard.
func NewGuard(source LimitSource, ids IdentitySource, opts Options, logger *logging.Logger) *Guard {
	if source == nil {
		panic("limits: limit source required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Guard{
		source:    source,
		ids:       ids,
		logger:    logger,
		failOpen:  opts.FailOpen,
		loc:       opts.Location,
		now:       opts.Now,
		snapshots: make(map[string]Snapshot),
	}
}

// SetSelectedDate records the booking date currently selected (YYYY-MM-DD).
func (g *Guard) SetSelectedDate(date string) {
	g.mu.Lock()
	g.selected = date
	g.mu.Unlock()
}

// SelectedDate returns the date set by SetSelectedDate.
func (g *Guard) SelectedDate() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.selected
}

// ResolveDate picks the explicit date, else the selected date, else today.
func (g *Guard) ResolveDate(date string) string {
	if date != "" {
		return date
	}
	if sel := g.SelectedDate(); sel != "" {
		return sel
	}
	return g.now().In(g.loc).Format(time.DateOnly)
}

// Check fetches the quota for date (see ResolveDate) and replaces that
// date's snapshot. Without a resolved identity it does nothing and returns
// ErrNoIdentity.
func (g *Guard) Check(ctx context.Context, date string) (Snapshot, error) {
	date = g.ResolveDate(date)

	var id identity.Identity
	ok := false
	if g.ids != nil {
		id, ok = g.ids.Current()
	}
	if !ok {
		g.logger.Info("limits: check skipped, identity not resolved", "date", date)
		return g.Snapshot(date), ErrNoIdentity
	}

	info, err := g.source.GetUserLimit(ctx, id.UserID, date)
	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil {
		snap := g.snapshots[date]
		snap.Date = date
		snap.Err = err
		if snap.Freshness != Unknown {
			snap.Freshness = Stale
		}
		g.snapshots[date] = snap
		g.logger.Warn("limits: check failed", "date", date, "freshness", snap.Freshness.String(), "error", err)
		return snap, fmt.Errorf("limits: check %s: %w", date, err)
	}

	snap := Snapshot{Date: date, Info: *info, Freshness: Fresh, FetchedAt: g.now()}
	g.snapshots[date] = snap
	g.logger.Debug("limits: checked", "date", date, "used", info.Used, "has_reached_limit", info.HasReachedLimit)
	return snap, nil
}

// Snapshot returns the cached state for date, Unknown if never fetched.
func (g *Guard) Snapshot(date string) Snapshot {
	date = g.ResolveDate(date)
	g.mu.RLock()
	defer g.mu.RUnlock()
	snap, ok := g.snapshots[date]
	if !ok {
		return Snapshot{Date: date, Freshness: Unknown}
	}
	return snap
}

// HasReachedLimit is the server's flag for date, trusted only when Fresh.
func (g *Guard) HasReachedLimit(date string) bool {
	snap := g.Snapshot(date)
	return snap.Freshness == Fresh && snap.Info.HasReachedLimit
}

// Decide reports whether a booking on date may be attempted. The server's
// has_reached_limit flag is authoritative even when used/remaining disagree.
func (g *Guard) Decide(date string) Decision {
	snap := g.Snapshot(date)
	if snap.Freshness == Fresh {
		if snap.Info.HasReachedLimit {
			reason := snap.Info.Message
			if reason == "" {
				reason = reachedMessage
			}
			return Decision{Allowed: false, Reason: reason, Freshness: Fresh}
		}
		return Decision{Allowed: true, Freshness: Fresh}
	}

	msg := checkingMessage
	if snap.Err != nil {
		msg = unknownMessage
	}
	if g.failOpen {
		return Decision{Allowed: true, Freshness: snap.Freshness, Warning: msg}
	}
	return Decision{Allowed: false, Reason: msg, Freshness: snap.Freshness}
}

// Merge applies a limit-conflict rejection as the newest data for date.
func (g *Guard) Merge(date string, conflict *backend.LimitConflict) Snapshot {
	date = g.ResolveDate(date)
	g.mu.Lock()
	defer g.mu.Unlock()
	snap := g.snapshots[date]
	snap.Date = date
	info := snap.Info
	info.Date = date
	info.HasReachedLimit = conflict.HasReachedLimit
	if conflict.Limit != nil {
		limit := *conflict.Limit
		info.Limit = &limit
	}
	if conflict.NextAvailableTime != "" {
		info.NextAvailableTime = conflict.NextAvailableTime
	}
	if conflict.Message != "" {
		info.Message = conflict.Message
	}
	if conflict.HasReachedLimit {
		zero := 0
		info.Remaining = &zero
		if info.Limit != nil && info.Used < *info.Limit {
			info.Used = *info.Limit
		}
	}
	snap.Info = info
	snap.Freshness = Fresh
	snap.FetchedAt = g.now()
	snap.Err = nil
	g.snapshots[date] = snap
	return snap
}

// Invalidate downgrades date's snapshot to Stale so the gate waits for a
// new Check.
func (g *Guard) Invalidate(date string) {
	date = g.ResolveDate(date)
	g.mu.Lock()
	defer g.mu.Unlock()
	if snap, ok := g.snapshots[date]; ok && snap.Freshness == Fresh {
		snap.Freshness = Stale
		g.snapshots[date] = snap
	}
}

// InvalidateAll downgrades every snapshot to Stale.
func (g *Guard) InvalidateAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for date, snap := range g.snapshots {
		if snap.Freshness == Fresh {
			snap.Freshness = Stale
			g.snapshots[date] = snap
		}
	}
}

// Watch re-checks after the admin changes appointment settings.
func (g *Guard) Watch(bus *events.Bus) func() {
	return bus.Subscribe(events.AppointmentSettingsChanged, func(ctx context.Context, ev events.Event) {
		g.InvalidateAll()
		if _, err := g.Check(ctx, ev.Date); err != nil && !errors.Is(err, ErrNoIdentity) {
			g.logger.Warn("limits: re-check after settings change failed", "error", err)
		}
	})
}

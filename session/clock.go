// Package session provides market-hours awareness for a single trading venue.
package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/rustyeddy/gapfill/config"
)

const (
	// weekendSleep is how long to sleep between weekend checks.
	weekendSleep = 30 * time.Minute

	// minWait and maxWait clamp the pre-open polling cadence.
	minWait = 5 * time.Second
	maxWait = 300 * time.Second
)

// Clock answers "is the venue open" questions in the venue's own time zone.
// It holds no mutable state; every answer is recomputed from the wall clock,
// so a long-running process never drifts.
type Clock struct {
	loc   *time.Location
	open  config.Clock
	close config.Clock

	// now is the time source, replaceable in tests.
	now func() time.Time
}

// NewClock builds a Clock from the session configuration.
func NewClock(sc config.SessionConfig) (*Clock, error) {
	loc, err := time.LoadLocation(sc.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", sc.Timezone, err)
	}
	open, err := config.ParseClock(sc.Open)
	if err != nil {
		return nil, fmt.Errorf("session open: %w", err)
	}
	cl, err := config.ParseClock(sc.Close)
	if err != nil {
		return nil, fmt.Errorf("session close: %w", err)
	}

	return &Clock{
		loc:   loc,
		open:  open,
		close: cl,
		now:   time.Now,
	}, nil
}

// Now returns the current time in the venue's time zone.
func (c *Clock) Now() time.Time {
	return c.now().In(c.loc)
}

// Location returns the venue's time zone.
func (c *Clock) Location() *time.Location {
	return c.loc
}

// IsWeekend reports whether t falls on a Saturday or Sunday at the venue.
func (c *Clock) IsWeekend(t time.Time) bool {
	wd := t.In(c.loc).Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// IsOpen reports whether t is inside the venue's open window, both
// boundaries inclusive.
func (c *Clock) IsOpen(t time.Time) bool {
	t = t.In(c.loc)
	if c.IsWeekend(t) {
		return false
	}
	mins := t.Hour()*60 + t.Minute()
	return mins >= c.open.Minutes() && mins <= c.close.Minutes()
}

// OpenToday returns the venue's open time on t's date.
func (c *Clock) OpenToday(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), c.open.Hour, c.open.Minute, 0, 0, c.loc)
}

// SessionDate returns t's trading date at the venue (midnight, venue zone).
func (c *Clock) SessionDate(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)
}

// WaitFor computes how long to sleep before re-checking the open window at
// time t. Weekends sleep a flat 30 minutes; otherwise the time until today's
// open, clamped to [5s, 300s]. A zero duration means the window is open (or
// already past open today) and the caller should proceed.
func (c *Clock) WaitFor(t time.Time) time.Duration {
	t = t.In(c.loc)
	if c.IsWeekend(t) {
		return weekendSleep
	}

	until := c.OpenToday(t).Sub(t)
	if until <= 0 {
		return 0
	}
	if until < minWait {
		return minWait
	}
	if until > maxWait {
		return maxWait
	}
	return until
}

// WaitUntilOpen blocks until the venue's open time has been reached on a
// weekday, or until ctx is done. Like the scan loop itself, it re-derives
// everything from the wall clock on every pass.
func (c *Clock) WaitUntilOpen(ctx context.Context) error {
	for {
		wait := c.WaitFor(c.now())
		if wait == 0 {
			return nil
		}
		if c.IsWeekend(c.now()) {
			log.Printf("[WAIT] weekend, sleeping %s", wait)
		} else {
			log.Printf("[WAIT] market closed, sleeping %s", wait)
		}
		if err := Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Sleep blocks for d or until ctx is done, returning ctx.Err() in that case.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

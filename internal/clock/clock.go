// Package clock provides the wall-clock/timezone capability that service
// dates, trip windows and staleness checks read time through. A few places
// call time.Now directly: the serial-data processor's future-date check, the
// Identity token cache, HTTP metrics, and uptime/startup timing.
package clock

import "time"

// Clock yields the current instant and the fixed civil timezone all
// handlers reason about. Service dates ("YYYYMMDD") are always derived
// through this capability so a test clock can pin them.
type Clock interface {
	Now() time.Time
	Location() *time.Location
	// Today returns the service date (YYYYMMDD) for the current instant
	// in the fixed civil timezone.
	Today() string
	// ServiceDate returns the service date (YYYYMMDD) for an arbitrary
	// instant in the fixed civil timezone.
	ServiceDate(t time.Time) string
}

// Real loads the named IANA timezone once and serves wall-clock time
// thereafter.
type Real struct {
	loc *time.Location
}

// New loads tz (e.g. "Pacific/Auckland") and returns a Clock backed by it.
func New(tz string) (*Real, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, err
	}
	return &Real{loc: loc}, nil
}

func (c *Real) Now() time.Time { return time.Now().In(c.loc) }

func (c *Real) Location() *time.Location { return c.loc }

func (c *Real) Today() string { return c.ServiceDate(c.Now()) }

func (c *Real) ServiceDate(t time.Time) string {
	return t.In(c.loc).Format("20060102")
}

// Fixed is a Clock returning a pinned instant; used by tests that need
// deterministic "now" and service-date behaviour.
type Fixed struct {
	At  time.Time
	Loc *time.Location
}

func (f Fixed) Now() time.Time { return f.At.In(f.Location()) }

func (f Fixed) Location() *time.Location {
	if f.Loc != nil {
		return f.Loc
	}
	return time.UTC
}

func (f Fixed) Today() string { return f.ServiceDate(f.At) }

func (f Fixed) ServiceDate(t time.Time) string {
	return t.In(f.Location()).Format("20060102")
}

// Package get implements Ground Elapsed Time parsing, formatting and
// comparison. GET is a nonnegative mission duration in seconds; every
// timestamp in the simulation kernel is expressed in GET, never wall time.
package get

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Epsilon is the tolerance used for GET comparisons across the kernel.
const Epsilon = 1e-6

var (
	// ErrMalformed indicates the input does not match HH:MM:SS[.fff].
	ErrMalformed = errors.New("get: malformed timestamp")
	// ErrNegative indicates a negative duration was supplied; GET is
	// nonnegative by definition.
	ErrNegative = errors.New("get: negative duration")
)

// Parse converts a textual GET of the form "HH:MM:SS[.fff]" into seconds.
// Hours may exceed 99 (e.g. "196:00:00"). Round-tripping Format(Parse(s))
// reproduces s to millisecond precision.
func Parse(s string) (float64, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrMalformed, s)
	}

	hours, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: hours %q: %w", ErrMalformed, parts[0], err)
	}

	minutes, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: minutes %q: %w", ErrMalformed, parts[1], err)
	}

	seconds, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: seconds %q: %w", ErrMalformed, parts[2], err)
	}

	total := hours*3600 + minutes*60 + seconds
	if total < 0 {
		return 0, fmt.Errorf("%w: %q", ErrNegative, s)
	}

	return total, nil
}

// Format renders seconds as "HH:MM:SS.fff". Hours are not bounded to 24.
func Format(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}

	totalMillis := int64(math.Round(seconds * 1000))
	millis := totalMillis % 1000
	totalSeconds := totalMillis / 1000
	secs := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	mins := totalMinutes % 60
	hours := totalMinutes / 60

	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, mins, secs, millis)
}

// Equal reports whether a and b are within Epsilon of one another.
func Equal(a, b float64) bool {
	return math.Abs(a-b) <= Epsilon
}

// GreaterOrEqual reports a >= b within Epsilon (i.e. a >= b-Epsilon).
func GreaterOrEqual(a, b float64) bool {
	return a-b >= -Epsilon
}

// Clock is a fixed-rate monotonic GET clock. dtSeconds is fixed at
// construction for determinism; advancing never accumulates fractional
// drift because Advance re-derives currentGetSeconds from the tick count
// (ticks * dtSeconds) instead of summing dt.
type Clock struct {
	currentGetSeconds float64
	tickRate          float64
	dtSeconds         float64
	ticks             uint64
}

// DefaultTickRate is the kernel's default simulation rate in Hz.
const DefaultTickRate = 20.0

// NewClock returns a Clock at GET 0 ticking at tickRate Hz. A
// non-positive tickRate falls back to DefaultTickRate.
func NewClock(tickRate float64) *Clock {
	if tickRate <= 0 {
		tickRate = DefaultTickRate
	}

	return &Clock{tickRate: tickRate, dtSeconds: 1.0 / tickRate}
}

// Now returns the current GET in seconds.
func (c *Clock) Now() float64 { return c.currentGetSeconds }

// DtSeconds returns the fixed timestep.
func (c *Clock) DtSeconds() float64 { return c.dtSeconds }

// TickRate returns the configured tick rate in Hz.
func (c *Clock) TickRate() float64 { return c.tickRate }

// Ticks returns the number of completed Advance calls.
func (c *Clock) Ticks() uint64 { return c.ticks }

// Advance moves the clock forward by exactly DtSeconds and returns the new
// GET. It is called once per tick, at the end of the tick, never mid-tick.
func (c *Clock) Advance() float64 {
	c.ticks++
	c.currentGetSeconds = float64(c.ticks) * c.dtSeconds

	return c.currentGetSeconds
}

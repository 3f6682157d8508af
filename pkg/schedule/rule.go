// Package schedule computes the desired toggle state from wall-clock time.
// The rule is a pure function of weekday and time of day: every day is enabled
// except a single disable window on the designated weekday.
package schedule

import (
	"fmt"
	"time"

	"github.com/umputun/kftoggle/pkg/domain"
)

// Default is the production schedule, disabled on Saturdays from 17:20 until 23:00
var Default = Rule{
	Weekday:     time.Saturday,
	DisableFrom: 17*time.Hour + 20*time.Minute,
	EnableFrom:  23 * time.Hour,
}

// Rule defines a half-open disable window [DisableFrom, EnableFrom) on a single weekday.
// Offsets are measured from local midnight of the evaluated time.
type Rule struct {
	Weekday     time.Weekday
	DisableFrom time.Duration
	EnableFrom  time.Duration
}

// Desired returns the toggle state for the given time,
// using the time's own location for weekday and time of day.
func (r Rule) Desired(now time.Time) domain.State {
	if now.Weekday() != r.Weekday {
		return domain.Enabled
	}

	offset := sinceMidnight(now)
	if offset >= r.EnableFrom {
		return domain.Enabled
	}
	if offset >= r.DisableFrom {
		return domain.Disabled
	}
	return domain.Enabled
}

// String returns rule description, i.e. "Saturday 17:20-23:00 disabled"
func (r Rule) String() string {
	return fmt.Sprintf("%s %s-%s disabled", r.Weekday, clock(r.DisableFrom), clock(r.EnableFrom))
}

// sinceMidnight returns wall-clock offset from the start of the day,
// computed from hour/minute/second so DST shifts don't move the window
func sinceMidnight(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second + time.Duration(t.Nanosecond())
}

func clock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}

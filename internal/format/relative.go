package format

import (
	"fmt"
	"time"
)

// Relative renders t as a coarse label relative to now: "Just now" under a
// minute, "{m}m ago" under an hour, "{h}h ago" under a day, and the calendar
// date (M/D/YYYY in now's location) beyond that.
func Relative(t, now time.Time) string {
	diff := int64(now.Sub(t) / time.Second)
	switch {
	case diff < 60:
		return "Just now"
	case diff < 3600:
		return fmt.Sprintf("%dm ago", diff/60)
	case diff < 86400:
		return fmt.Sprintf("%dh ago", diff/3600)
	default:
		return t.In(now.Location()).Format("1/2/2006")
	}
}

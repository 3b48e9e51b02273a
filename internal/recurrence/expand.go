package recurrence

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/meridian-hq/meridian/internal/core"
)

// expansionCap bounds unbounded rules so Expand cannot loop forever.
const expansionCap = 1000

var freqMap = map[string]rrule.Frequency{
	"DAILY":   rrule.DAILY,
	"WEEKLY":  rrule.WEEKLY,
	"MONTHLY": rrule.MONTHLY,
	"YEARLY":  rrule.YEARLY,
}

var weekdayMap = map[string]rrule.Weekday{
	"MO": rrule.MO,
	"TU": rrule.TU,
	"WE": rrule.WE,
	"TH": rrule.TH,
	"FR": rrule.FR,
	"SA": rrule.SA,
	"SU": rrule.SU,
}

// Expand computes up to n concrete occurrence start times of rec, beginning
// at dtstart (inclusive). Weekday codes with ordinal prefixes (e.g. "2TU")
// are skipped; the supported vocabulary matches what Parse produces.
func Expand(rec *core.Recurrence, dtstart time.Time, n int) ([]time.Time, error) {
	if rec == nil {
		return nil, fmt.Errorf("expand: %w: nil recurrence", core.ErrInvalidInput)
	}
	freq, ok := freqMap[rec.Freq]
	if !ok {
		return nil, fmt.Errorf("expand: %w: unsupported FREQ %q", core.ErrInvalidInput, rec.Freq)
	}
	if n <= 0 || n > expansionCap {
		n = expansionCap
	}

	opt := rrule.ROption{
		Freq:     freq,
		Interval: rec.Interval,
		Dtstart:  dtstart,
	}
	for _, code := range rec.ByWeekday {
		if wd, ok := weekdayMap[code]; ok {
			opt.Byweekday = append(opt.Byweekday, wd)
		} else {
			log.WithField("byday", code).Debug("skipping weekday code in expansion")
		}
	}
	opt.Bymonthday = append(opt.Bymonthday, rec.ByMonthday...)
	if rec.Count > 0 {
		opt.Count = rec.Count
	}
	if !rec.Until.IsZero() {
		opt.Until = rec.Until
	}

	rule, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("expand: build rule: %w", err)
	}

	out := make([]time.Time, 0, n)
	next := rule.Iterator()
	for len(out) < n {
		v, ok := next()
		if !ok {
			break
		}
		out = append(out, v)
	}
	return out, nil
}

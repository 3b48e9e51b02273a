// Package recurrence parses and builds RFC 5545-style recurrence rules and
// expands them into concrete occurrences.
package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/meridian-hq/meridian/internal/core"
	"github.com/meridian-hq/meridian/internal/logging"
)

var log = logging.Named("recurrence")

const rulePrefix = "RRULE:"

// untilLayouts are the accepted UNTIL encodings, both treated as UTC.
const (
	untilTimestampLayout = "20060102T150405"
	untilDateLayout      = "20060102"
)

// ParseList finds the first RRULE line in a provider recurrence list
// (Google returns e.g. ["RRULE:FREQ=WEEKLY;BYDAY=MO"]) and parses it.
// Returns nil when no rule line is present or the rule is unusable.
func ParseList(lines []string) *core.Recurrence {
	for _, l := range lines {
		if strings.HasPrefix(strings.ToUpper(l), rulePrefix) {
			return Parse(l)
		}
	}
	return nil
}

// Parse parses a single KEY=VALUE;... rule line into a Recurrence. A leading
// "RRULE:" prefix is accepted and stripped.
//
// FREQ is required; its absence fails the parse. Everything else is lenient:
// individually malformed values are dropped with a debug log rather than
// failing the whole rule. If both COUNT and UNTIL appear, UNTIL wins and the
// anomaly is logged.
func Parse(line string) *core.Recurrence {
	body := line
	if strings.HasPrefix(strings.ToUpper(body), rulePrefix) {
		body = body[len(rulePrefix):]
	}

	kv := make(map[string]string)
	for _, part := range strings.Split(body, ";") {
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		kv[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}

	freq := strings.ToUpper(kv["FREQ"])
	if freq == "" {
		log.Warn("recurrence rule missing FREQ: %q", line)
		return nil
	}

	rec := &core.Recurrence{Freq: freq, Interval: 1}

	if v, ok := kv["INTERVAL"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			rec.Interval = n
		} else {
			log.WithField("interval", v).Debug("dropping unparseable INTERVAL")
		}
	}

	if v := kv["BYDAY"]; v != "" {
		for _, d := range strings.Split(v, ",") {
			d = strings.ToUpper(strings.TrimSpace(d))
			if d != "" {
				rec.ByWeekday = append(rec.ByWeekday, d)
			}
		}
	}

	if v := kv["BYMONTHDAY"]; v != "" {
		for _, item := range strings.Split(v, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(item))
			if err != nil {
				log.WithField("value", item).Debug("dropping non-numeric BYMONTHDAY entry")
				continue
			}
			rec.ByMonthday = append(rec.ByMonthday, n)
		}
	}

	if v, ok := kv["COUNT"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			rec.Count = n
		} else {
			log.WithField("count", v).Debug("dropping unparseable COUNT")
		}
	}

	if v, ok := kv["UNTIL"]; ok {
		rec.Until = parseUntil(v)
	}

	if rec.Count > 0 && !rec.Until.IsZero() {
		// COUNT and UNTIL are alternative termination conditions; keep UNTIL.
		log.WithField("rule", body).Warn("rule sets both COUNT and UNTIL, keeping UNTIL")
		rec.Count = 0
	}

	rec.TZID = kv["TZID"]

	return rec
}

// parseUntil accepts YYYYMMDDTHHMMSSZ (UTC timestamp) or YYYYMMDD (date-only,
// UTC midnight). Anything else yields a zero time without failing the rule.
func parseUntil(s string) time.Time {
	base := strings.TrimSuffix(s, "Z")
	layout := untilDateLayout
	if strings.Contains(base, "T") {
		layout = untilTimestampLayout
	}
	t, err := time.Parse(layout, base)
	if err != nil {
		log.WithField("until", s).Warn("dropping unparseable UNTIL")
		return time.Time{}
	}
	return t.UTC()
}

// Build renders a Recurrence back into an "RRULE:..." line. Only set fields
// are emitted; UNTIL is always re-encoded as a UTC YYYYMMDDTHHMMSSZ
// timestamp so the output is deterministic.
func Build(rec *core.Recurrence) string {
	if rec == nil || rec.Freq == "" {
		return ""
	}
	parts := []string{"FREQ=" + rec.Freq}
	if rec.Interval > 1 {
		parts = append(parts, fmt.Sprintf("INTERVAL=%d", rec.Interval))
	}
	if len(rec.ByWeekday) > 0 {
		parts = append(parts, "BYDAY="+strings.Join(rec.ByWeekday, ","))
	}
	if len(rec.ByMonthday) > 0 {
		days := make([]string, len(rec.ByMonthday))
		for i, d := range rec.ByMonthday {
			days[i] = strconv.Itoa(d)
		}
		parts = append(parts, "BYMONTHDAY="+strings.Join(days, ","))
	}
	if rec.Count > 0 {
		parts = append(parts, fmt.Sprintf("COUNT=%d", rec.Count))
	}
	if !rec.Until.IsZero() {
		parts = append(parts, "UNTIL="+rec.Until.UTC().Format(untilTimestampLayout)+"Z")
	}
	if rec.TZID != "" {
		parts = append(parts, "TZID="+rec.TZID)
	}
	return rulePrefix + strings.Join(parts, ";")
}

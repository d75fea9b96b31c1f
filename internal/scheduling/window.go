package scheduling

import (
	"fmt"
	"time"

	"github.com/bluebrook/enroll-scheduler/internal/calendar"
	"github.com/bluebrook/enroll-scheduler/internal/contact"
	"github.com/bluebrook/enroll-scheduler/internal/ruleengine"
	"github.com/bluebrook/enroll-scheduler/internal/rules"
)

// exclusionWindow is one year's instance of the jurisdiction's
// enrollment exclusion window, built from whichever anchor the
// jurisdiction's variant names.
type exclusionWindow struct {
	year          int
	anchorKind    Kind // KindBirthday, KindEffectiveDate, or "" for year-round
	anchor        calendar.Date
	start, end    calendar.Date
	windowAfter   int // the window_after actually used, post special-override
	suppressed    bool
	yearRound     bool
}

// contains reports whether d falls within [w.start, w.end] inclusive.
func (w exclusionWindow) contains(d calendar.Date) bool {
	return d.InRange(w.start, w.end)
}

// preWindowPrefix reports whether d falls in the lead-only prefix
// immediately before the window: [start - preExclusionDays, start).
func (w exclusionWindow) preWindowPrefix(d calendar.Date, preExclusionDays int) bool {
	prefixStart := calendar.AddDays(w.start, -preExclusionDays)
	return !d.Before(prefixStart) && d.Before(w.start)
}

func (w exclusionWindow) describe() string {
	if w.yearRound {
		return "year-round enrollment state"
	}
	return fmt.Sprintf("kind=%s anchor=%s window=[%s,%s]", w.anchorKind, w.anchor, w.start, w.end)
}

// buildExclusionWindows constructs the per-year exclusion windows
// relevant to c's jurisdiction variant for every year in years.
func buildExclusionWindows(c contact.Contact, eff ruleengine.EffectiveRules, years []int) []exclusionWindow {
	windows := make([]exclusionWindow, 0, len(years))

	switch eff.Variant {
	case rules.VariantYearRound:
		for _, y := range years {
			windows = append(windows, exclusionWindow{
				year:      y,
				yearRound: true,
				start:     calendar.Date{Year: y, Month: time.January, Day: 1},
				end:       calendar.Date{Year: y, Month: time.December, Day: 31},
			})
		}

	case rules.VariantBirthdayWindow:
		if c.BirthDate == nil || !calendar.IsValid(*c.BirthDate) {
			return windows
		}
		for _, y := range years {
			windows = append(windows, buildAnchoredWindow(y, KindBirthday, *c.BirthDate, eff))
		}

	case rules.VariantEffectiveDateWindow:
		if c.EffectiveDate == nil || !calendar.IsValid(*c.EffectiveDate) {
			return windows
		}
		for _, y := range years {
			windows = append(windows, buildAnchoredWindow(y, KindEffectiveDate, *c.EffectiveDate, eff))
		}
	}

	return windows
}

func buildAnchoredWindow(year int, kind Kind, rawAnchor calendar.Date, eff ruleengine.EffectiveRules) exclusionWindow {
	var anchor calendar.Date
	if eff.UseMonthStart {
		anchor = calendar.MonthStart(year, rawAnchor)
	} else {
		anchor = calendar.AnniversaryIn(year, rawAnchor)
	}

	windowAfter := eff.WindowAfter
	if eff.PostWindowPeriodDays != nil {
		windowAfter = *eff.PostWindowPeriodDays
	}

	w := exclusionWindow{
		year:        year,
		anchorKind:  kind,
		anchor:      anchor,
		start:       calendar.AddDays(anchor, -eff.WindowBefore),
		end:         calendar.AddDays(anchor, windowAfter),
		windowAfter: windowAfter,
	}

	if eff.AgeLimit != nil && kind == KindBirthday {
		if calendar.AgeOn(rawAnchor, w.start) >= *eff.AgeLimit {
			w.suppressed = true
		}
	}

	return w
}

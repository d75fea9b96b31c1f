// Package scheduling implements the core scheduling engine: for one
// contact and date range it produces the ordered list of Scheduled
// Intents and the list of Skipped Intents with reasons, per spec §4.3.
package scheduling

import (
	"fmt"
	"sort"
	"time"

	"github.com/bluebrook/enroll-scheduler/internal/calendar"
	"github.com/bluebrook/enroll-scheduler/internal/contact"
	"github.com/bluebrook/enroll-scheduler/internal/observability"
	"github.com/bluebrook/enroll-scheduler/internal/ruleengine"
	"github.com/bluebrook/enroll-scheduler/internal/rules"
)

// Engine produces scheduled and skipped Intents for contacts against a
// single RuleConfig, accessed through a ruleengine.Engine.
type Engine struct {
	rules *ruleengine.Engine
	cfg   *rules.Config
}

// New builds a scheduling Engine bound to cfg via re.
func New(re *ruleengine.Engine, cfg *rules.Config) *Engine {
	return &Engine{rules: re, cfg: cfg}
}

// Schedule resolves, for contact c, every Intent whose target date
// falls in [start, end]. The result is deterministic for identical
// inputs and does not depend on the order contacts are scheduled in.
func (e *Engine) Schedule(c contact.Contact, start, end calendar.Date) (scheduled, skipped []Intent) {
	if !c.HasAnchor() {
		observability.IntentsSkippedTotal.WithLabelValues("", "missing anchor dates").Inc()
		return nil, []Intent{{
			ContactID: c.ID,
			Status:    StatusSkipped,
			Reason:    "missing anchor dates",
		}}
	}

	if c.BirthDate != nil && !calendar.IsValid(*c.BirthDate) {
		observability.IntentsSkippedTotal.WithLabelValues("", "invalid anchor").Inc()
		return nil, []Intent{{ContactID: c.ID, Status: StatusSkipped, Reason: "invalid anchor"}}
	}
	if c.EffectiveDate != nil && !calendar.IsValid(*c.EffectiveDate) {
		observability.IntentsSkippedTotal.WithLabelValues("", "invalid anchor").Inc()
		return nil, []Intent{{ContactID: c.ID, Status: StatusSkipped, Reason: "invalid anchor"}}
	}

	eff := e.rules.Resolve(c)
	jurisdiction, _ := c.ResolvedJurisdiction()

	years := paddedYears(start, end)
	windows := buildExclusionWindows(c, eff, years)

	candidates := e.generateCandidates(c, eff, years)
	candidates = append(candidates, e.generatePostWindowCandidates(c, eff, jurisdiction, windows)...)

	for _, cand := range candidates {
		status, reason := e.classify(cand, eff, windows, start, end)
		switch status {
		case dropSilently:
			continue
		case keepScheduled:
			cand.Status = StatusScheduled
			scheduled = append(scheduled, cand)
		case keepSkipped:
			cand.Status = StatusSkipped
			cand.Reason = reason
			skipped = append(skipped, cand)
		}
	}

	sort.SliceStable(scheduled, func(i, j int) bool { return Less(scheduled[i], scheduled[j]) })
	sort.SliceStable(skipped, func(i, j int) bool { return Less(skipped[i], skipped[j]) })

	for _, in := range scheduled {
		observability.IntentsScheduledTotal.WithLabelValues(string(in.Kind)).Inc()
	}
	for _, in := range skipped {
		observability.IntentsSkippedTotal.WithLabelValues(string(in.Kind), in.Reason).Inc()
	}

	return scheduled, skipped
}

// paddedYears widens [start, end] by one year on each side so that lead
// days or a +1 post-window day crossing a year boundary are still
// candidate-generated; Step 4 drops anything that lands outside
// [start, end] regardless.
func paddedYears(start, end calendar.Date) []int {
	years := calendar.YearsTouching(start, end)
	if len(years) == 0 {
		return nil
	}
	padded := make([]int, 0, len(years)+2)
	padded = append(padded, years[0]-1)
	padded = append(padded, years...)
	padded = append(padded, years[len(years)-1]+1)
	return padded
}

func (e *Engine) generateCandidates(c contact.Contact, eff ruleengine.EffectiveRules, years []int) []Intent {
	var out []Intent

	for _, y := range years {
		if c.BirthDate != nil {
			def := calendar.AnniversaryIn(y, *c.BirthDate)
			target := calendar.AddDays(def, -e.cfg.TimingConstants.BirthdayLeadDays)
			out = append(out, Intent{ContactID: c.ID, Kind: KindBirthday, TargetDate: target, DefaultDate: &def})
		}
		if c.EffectiveDate != nil {
			def := calendar.AnniversaryIn(y, *c.EffectiveDate)
			target := calendar.AddDays(def, -e.cfg.TimingConstants.EffectiveLeadDays)
			out = append(out, Intent{ContactID: c.ID, Kind: KindEffectiveDate, TargetDate: target, DefaultDate: &def})
		}
		if e.cfg.AEP.AppliesToYear(y) && eff.Variant != rules.VariantYearRound {
			target := eff.AEPSlot.In(y)
			out = append(out, Intent{ContactID: c.ID, Kind: KindAEP, TargetDate: target})
		}
	}

	return out
}

// generatePostWindowCandidates implements Step 3: one PostWindow Intent
// per non-suppressed, non-year-round exclusion window.
func (e *Engine) generatePostWindowCandidates(c contact.Contact, eff ruleengine.EffectiveRules, jurisdiction string, windows []exclusionWindow) []Intent {
	var out []Intent

	for _, w := range windows {
		if w.yearRound || w.suppressed {
			continue
		}

		target := calendar.AddDays(w.anchor, w.windowAfter+1)

		if override, ok := eff.ResolvedPostWindowOverride(c.BirthDate, jurisdiction); ok {
			target = override.In(w.year)
		} else if isLeapDayAnchor(w, c) && eff.LeapYearOverride != nil {
			target = eff.LeapYearOverride.In(w.year)
		}

		out = append(out, Intent{ContactID: c.ID, Kind: KindPostWindow, TargetDate: target})
	}

	return out
}

// isLeapDayAnchor reports whether the raw anchor backing w is Feb 29
// and w's anchor year actually lands on Feb 29 (i.e. the year is a leap
// year so no fold-down to Feb 28 occurred).
func isLeapDayAnchor(w exclusionWindow, c contact.Contact) bool {
	var raw *calendar.Date
	switch w.anchorKind {
	case KindBirthday:
		raw = c.BirthDate
	case KindEffectiveDate:
		raw = c.EffectiveDate
	}
	if raw == nil {
		return false
	}
	return raw.Month == time.February && raw.Day == 29 && calendar.IsLeapYear(w.year)
}

type classification int

const (
	dropSilently classification = iota
	keepScheduled
	keepSkipped
)

// classify implements Step 4: intersection against [start, end] and the
// exclusion windows, with AEP's force_aep bypass handled as a priority
// special case ahead of the generic exclusion-window skip.
func (e *Engine) classify(cand Intent, eff ruleengine.EffectiveRules, windows []exclusionWindow, start, end calendar.Date) (classification, string) {
	if !cand.TargetDate.InRange(start, end) {
		return dropSilently, ""
	}

	if yearRoundWindow := firstYearRound(windows, cand.TargetDate); yearRoundWindow != nil {
		if cand.Kind == KindAEP && eff.ForceAEP {
			return keepScheduled, ""
		}
		if cand.Kind == KindAEP {
			return keepSkipped, "AEP suppressed by exclusion window"
		}
		return keepSkipped, yearRoundWindow.describe()
	}

	containing := firstContaining(windows, cand.TargetDate)

	if cand.Kind == KindAEP {
		if containing != nil {
			if eff.ForceAEP {
				return keepScheduled, ""
			}
			return keepSkipped, "AEP suppressed by exclusion window"
		}
		return keepScheduled, ""
	}

	if cand.Kind == KindBirthday || cand.Kind == KindEffectiveDate {
		preExclusion := e.cfg.TimingConstants.PreWindowExclusionDays
		if w := firstPreWindowPrefix(windows, cand.Kind, cand.TargetDate, preExclusion); w != nil {
			return keepSkipped, "within pre-window exclusion"
		}
	}

	if containing != nil {
		return keepSkipped, fmt.Sprintf("inside exclusion window of %s", containing.describe())
	}

	return keepScheduled, ""
}

// firstYearRound returns the year-round exclusion window (if any)
// whose year matches d.
func firstYearRound(windows []exclusionWindow, d calendar.Date) *exclusionWindow {
	for i := range windows {
		if windows[i].yearRound && windows[i].year == d.Year {
			return &windows[i]
		}
	}
	return nil
}

// firstContaining returns the first non-year-round exclusion window
// whose [start, end] contains d.
func firstContaining(windows []exclusionWindow, d calendar.Date) *exclusionWindow {
	for i := range windows {
		if !windows[i].yearRound && !windows[i].suppressed && windows[i].contains(d) {
			return &windows[i]
		}
	}
	return nil
}

// firstPreWindowPrefix returns the first exclusion window of the given
// anchor kind whose pre-window exclusion prefix contains d.
func firstPreWindowPrefix(windows []exclusionWindow, kind Kind, d calendar.Date, preExclusionDays int) *exclusionWindow {
	for i := range windows {
		w := windows[i]
		if w.yearRound || w.suppressed || w.anchorKind != kind {
			continue
		}
		if w.preWindowPrefix(d, preExclusionDays) {
			return &windows[i]
		}
	}
	return nil
}

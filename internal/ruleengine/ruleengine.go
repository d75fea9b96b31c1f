// Package ruleengine resolves the effective rule set a single contact
// is scheduled under: its jurisdiction variant, window parameters after
// special-case adjustment, AEP slot, force_aep bit and ordered
// post-window rules.
package ruleengine

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/bluebrook/enroll-scheduler/internal/calendar"
	"github.com/bluebrook/enroll-scheduler/internal/contact"
	"github.com/bluebrook/enroll-scheduler/internal/rules"
)

// EffectiveRules is the fully-resolved rule set for one contact, ready
// for the scheduling engine to evaluate without further lookups.
type EffectiveRules struct {
	Jurisdiction  string
	Variant       rules.StateVariant
	WindowBefore  int
	WindowAfter   int
	AgeLimit      *int
	UseMonthStart bool

	PostWindowPeriodDays *int
	LeapYearOverride     *rules.MonthDay

	AEPSlot  rules.MonthDay
	ForceAEP bool

	PostWindowRules []rules.PostWindowRule
}

// Engine resolves EffectiveRules for contacts against a single
// immutable RuleConfig.
type Engine struct {
	cfg    *rules.Config
	logger zerolog.Logger
}

// New builds an Engine bound to cfg.
func New(cfg *rules.Config, logger zerolog.Logger) *Engine {
	return &Engine{cfg: cfg, logger: logger}
}

// Resolve computes the EffectiveRules for c. An unrecognized
// jurisdiction code falls through to a neutral, YearRound-free,
// zero-width variant with a logged warning rather than failing the run.
func (e *Engine) Resolve(c contact.Contact) EffectiveRules {
	jurisdiction, ok := c.ResolvedJurisdiction()

	var stateRule rules.StateRule
	if ok {
		stateRule, ok = e.cfg.StateRules[jurisdiction]
	}
	if !ok {
		e.logger.Warn().
			Str("contact_id", c.ID).
			Str("jurisdiction", jurisdiction).
			Msg("unknown jurisdiction, falling through to neutral rule")
		stateRule = rules.StateRule{Type: rules.VariantEffectiveDateWindow}
	}

	eff := EffectiveRules{
		Jurisdiction:         jurisdiction,
		Variant:              stateRule.Type,
		WindowBefore:         stateRule.WindowBefore,
		WindowAfter:          stateRule.WindowAfter,
		AgeLimit:             stateRule.AgeLimit,
		UseMonthStart:        stateRule.UseMonthStart,
		PostWindowPeriodDays: stateRule.PostWindowPeriodDays,
		LeapYearOverride:     stateRule.LeapYearOverride,
	}

	override, hasOverride := e.cfg.ContactRules[c.ID]
	if hasOverride {
		eff.ForceAEP = override.ForceAEP
		eff.PostWindowRules = override.PostWindowRules
	}

	eff.AEPSlot = e.resolveAEPSlot(c, jurisdiction, override, hasOverride)

	return eff
}

// resolveAEPSlot applies the precedence of spec.md §4.2: a contact-level
// override beats the global October-birthday rule, which beats the
// deterministic hash-based distribution across the slot table.
func (e *Engine) resolveAEPSlot(c contact.Contact, jurisdiction string, override rules.ContactOverride, hasOverride bool) rules.MonthDay {
	if hasOverride && override.AEPDateOverride != nil && !override.AEPDateOverride.IsZero() {
		return *override.AEPDateOverride
	}
	if c.BirthDate != nil && c.BirthDate.Month == time.October && !e.cfg.GlobalRules.OctoberBirthdayAEP.IsZero() {
		return e.cfg.GlobalRules.OctoberBirthdayAEP
	}
	slots := e.cfg.AEP.DefaultDates
	if len(slots) == 0 {
		return rules.MonthDay{}
	}
	idx := rules.AEPSlotIndex(c.ID, len(slots))
	return slots[idx]
}

// ResolvedPostWindowOverride returns the override date for year if a
// post_window_rules condition matches the contact's birth month and
// jurisdiction; the first match in list order wins.
func (eff EffectiveRules) ResolvedPostWindowOverride(birthDate *calendar.Date, jurisdiction string) (rules.MonthDay, bool) {
	var month time.Month
	hasMonth := birthDate != nil
	if hasMonth {
		month = birthDate.Month
	}
	for _, rule := range eff.PostWindowRules {
		if rule.Condition.Matches(month, hasMonth, jurisdiction) {
			return rule.OverrideDate, true
		}
	}
	return rules.MonthDay{}, false
}

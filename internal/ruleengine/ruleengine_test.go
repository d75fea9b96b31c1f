package ruleengine

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluebrook/enroll-scheduler/internal/calendar"
	"github.com/bluebrook/enroll-scheduler/internal/contact"
	"github.com/bluebrook/enroll-scheduler/internal/rules"
)

func mustDate(t *testing.T, s string) calendar.Date {
	t.Helper()
	d, err := calendar.Parse(s)
	require.NoError(t, err)
	return d
}

func TestResolve_UnknownJurisdictionFallsThroughNeutral(t *testing.T) {
	cfg := &rules.Config{
		AEP: rules.AEPConfig{DefaultDates: []rules.MonthDay{{Month: time.August, Day: 18}}},
	}
	e := New(cfg, zerolog.Nop())

	c := contact.Contact{ID: "1", Jurisdiction: "ZZ"}
	eff := e.Resolve(c)
	assert.Equal(t, rules.VariantEffectiveDateWindow, eff.Variant)
	assert.Equal(t, 0, eff.WindowBefore)
}

func TestResolve_AEPSlotPrecedence(t *testing.T) {
	october := time.October
	cfg := &rules.Config{
		AEP: rules.AEPConfig{DefaultDates: []rules.MonthDay{{Month: time.August, Day: 18}, {Month: time.September, Day: 7}}},
		GlobalRules: rules.GlobalRules{
			OctoberBirthdayAEP: rules.MonthDay{Month: time.October, Day: 15},
		},
		ContactRules: map[string]rules.ContactOverride{
			"override-me": {AEPDateOverride: &rules.MonthDay{Month: time.July, Day: 4}},
		},
	}
	e := New(cfg, zerolog.Nop())

	// Contact override beats everything.
	c1 := contact.Contact{ID: "override-me", BirthDate: ptr(mustDate(t, "1970-10-05"))}
	eff1 := e.Resolve(c1)
	assert.Equal(t, rules.MonthDay{Month: time.July, Day: 4}, eff1.AEPSlot)

	// October birthday beats the default hash distribution.
	c2 := contact.Contact{ID: "plain-october", BirthDate: ptr(mustDate(t, "1970-10-05"))}
	eff2 := e.Resolve(c2)
	assert.Equal(t, rules.MonthDay{Month: october, Day: 15}, eff2.AEPSlot)

	// No override, no October birthday: falls to the hash-distributed default.
	c3 := contact.Contact{ID: "plain", BirthDate: ptr(mustDate(t, "1970-05-05"))}
	eff3 := e.Resolve(c3)
	assert.Contains(t, cfg.AEP.DefaultDates, eff3.AEPSlot)
}

func TestResolve_ForceAEPAndPostWindowRulesComeFromContactOverride(t *testing.T) {
	cfg := &rules.Config{
		AEP: rules.AEPConfig{DefaultDates: []rules.MonthDay{{Month: time.August, Day: 18}}},
		ContactRules: map[string]rules.ContactOverride{
			"forced": {
				ForceAEP: true,
				PostWindowRules: []rules.PostWindowRule{
					{Condition: rules.PostWindowCondition{States: []string{"CA"}}, OverrideDate: rules.MonthDay{Month: time.November, Day: 1}},
				},
			},
		},
	}
	e := New(cfg, zerolog.Nop())

	eff := e.Resolve(contact.Contact{ID: "forced", Jurisdiction: "CA"})
	assert.True(t, eff.ForceAEP)
	require.Len(t, eff.PostWindowRules, 1)

	override, ok := eff.ResolvedPostWindowOverride(nil, "CA")
	require.True(t, ok)
	assert.Equal(t, rules.MonthDay{Month: time.November, Day: 1}, override)

	_, ok = eff.ResolvedPostWindowOverride(nil, "NV")
	assert.False(t, ok)
}

func ptr(d calendar.Date) *calendar.Date { return &d }

// Package rules holds the layered rule model a scheduling run is
// evaluated against: global timing constants, the AEP slot table,
// per-jurisdiction state rules, per-contact overrides and global
// special-case rules. A RuleConfig is loaded once and treated as
// read-only for the lifetime of the process.
package rules

import (
	"fmt"
	"hash/fnv"
	"os"
	"regexp"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bluebrook/enroll-scheduler/internal/calendar"
)

// StateVariant is the tagged variant a jurisdiction's enrollment rule
// dispatches on.
type StateVariant string

const (
	VariantBirthdayWindow      StateVariant = "birthday"
	VariantEffectiveDateWindow StateVariant = "effective_date"
	VariantYearRound           StateVariant = "year_round"
)

// MonthDay is a month/day pair with no year, used for AEP slots and
// date overrides that repeat every year.
type MonthDay struct {
	Month time.Month `yaml:"month"`
	Day   int        `yaml:"day"`
}

// In anchors md onto year.
func (md MonthDay) In(year int) calendar.Date {
	return calendar.Date{Year: year, Month: md.Month, Day: md.Day}
}

// IsZero reports whether md was never set.
func (md MonthDay) IsZero() bool { return md.Month == 0 && md.Day == 0 }

// TimingConstants are the global lead/exclusion day counts.
type TimingConstants struct {
	BirthdayLeadDays      int `yaml:"birthday_lead_days"`
	EffectiveLeadDays     int `yaml:"effective_lead_days"`
	PreWindowExclusionDays int `yaml:"pre_window_exclusion_days"`
}

// DefaultTimingConstants returns spec.md's documented defaults.
func DefaultTimingConstants() TimingConstants {
	return TimingConstants{
		BirthdayLeadDays:       14,
		EffectiveLeadDays:      30,
		PreWindowExclusionDays: 60,
	}
}

// AEPConfig configures the Annual Enrollment Period slot table.
type AEPConfig struct {
	DefaultDates []MonthDay `yaml:"default_dates"`
	Years        []int      `yaml:"years"`
}

// DefaultAEPConfig returns spec.md's documented four-slot default.
func DefaultAEPConfig() AEPConfig {
	return AEPConfig{
		DefaultDates: []MonthDay{
			{Month: time.August, Day: 18},
			{Month: time.August, Day: 25},
			{Month: time.September, Day: 1},
			{Month: time.September, Day: 7},
		},
	}
}

// AppliesToYear reports whether AEP is configured for year.
func (c AEPConfig) AppliesToYear(year int) bool {
	for _, y := range c.Years {
		if y == year {
			return true
		}
	}
	return false
}

// StateRule is the effective enrollment rule for one jurisdiction.
type StateRule struct {
	Type          StateVariant `yaml:"type"`
	WindowBefore  int          `yaml:"window_before"`
	WindowAfter   int          `yaml:"window_after"`
	AgeLimit      *int         `yaml:"age_limit,omitempty"`
	UseMonthStart bool         `yaml:"use_month_start"`

	// PostWindowPeriodDays and LeapYearOverride are per-state specials
	// read from global_rules.special_overrides; they live here after
	// load so the rule engine has one place to ask.
	PostWindowPeriodDays *int      `yaml:"-"`
	LeapYearOverride     *MonthDay `yaml:"-"`
}

// PostWindowCondition is a conjunction over birth month and a
// jurisdiction set; the first matching condition in an ordered
// post_window_rules list wins.
type PostWindowCondition struct {
	BirthMonth *time.Month `yaml:"birth_month,omitempty"`
	States     []string    `yaml:"states,omitempty"`
}

// Matches reports whether cond holds for the given birth month and
// jurisdiction code.
func (cond PostWindowCondition) Matches(birthMonth time.Month, hasBirthMonth bool, jurisdiction string) bool {
	if cond.BirthMonth != nil {
		if !hasBirthMonth || *cond.BirthMonth != birthMonth {
			return false
		}
	}
	if len(cond.States) > 0 {
		found := false
		for _, s := range cond.States {
			if s == jurisdiction {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// PostWindowRule pairs a condition with the override date to use when it
// matches.
type PostWindowRule struct {
	Condition    PostWindowCondition `yaml:"condition"`
	OverrideDate MonthDay            `yaml:"override_date"`
}

// ContactOverride is a per-contact customization of the default rule
// resolution.
type ContactOverride struct {
	ForceAEP        bool              `yaml:"force_aep"`
	AEPDateOverride *MonthDay         `yaml:"aep_date_override,omitempty"`
	PostWindowRules []PostWindowRule  `yaml:"post_window_rules,omitempty"`
}

// SpecialOverride carries per-state specials that don't fit the common
// StateRule shape: the day count used in place of window_after (so the
// window ends, and the post-window target falls, at anchor+N and
// anchor+N+1), and the month/day that replaces the post-window target
// date for a Feb 29 anchor.
type SpecialOverride struct {
	PostWindowPeriodDays *int      `yaml:"post_window_period_days,omitempty"`
	LeapYearOverride     *MonthDay `yaml:"leap_year_override,omitempty"`
}

// GlobalRules are rules that apply across jurisdictions.
type GlobalRules struct {
	OctoberBirthdayAEP MonthDay                   `yaml:"october_birthday_aep"`
	SpecialOverrides   map[string]SpecialOverride `yaml:"special_overrides"`
}

// Config is the full, read-only rule document described in spec.md §6.
type Config struct {
	TimingConstants TimingConstants            `yaml:"timing_constants"`
	AEP             AEPConfig                  `yaml:"aep_config"`
	StateRules      map[string]StateRule       `yaml:"state_rules"`
	ContactRules    map[string]ContactOverride `yaml:"contact_rules"`
	GlobalRules     GlobalRules                `yaml:"global_rules"`
}

var expandVarDefault = regexp.MustCompile(`\$\{([^}:]+):-([^}]*)\}`)

// expandEnvWithDefaults expands ${VAR} and ${VAR:-default} references in
// s against the process environment.
func expandEnvWithDefaults(s string) string {
	result := expandVarDefault.ReplaceAllStringFunc(s, func(match string) string {
		parts := expandVarDefault.FindStringSubmatch(match)
		if len(parts) != 3 {
			return match
		}
		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		return parts[2]
	})
	return os.ExpandEnv(result)
}

// Load reads and validates a RuleConfig document from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule config: %w", err)
	}
	data = []byte(expandEnvWithDefaults(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse rule config: %w", err)
	}
	cfg.applyDefaults()

	for code, override := range cfg.GlobalRules.SpecialOverrides {
		rule, ok := cfg.StateRules[code]
		if !ok {
			continue
		}
		rule.PostWindowPeriodDays = override.PostWindowPeriodDays
		rule.LeapYearOverride = override.LeapYearOverride
		cfg.StateRules[code] = rule
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.TimingConstants.BirthdayLeadDays == 0 {
		c.TimingConstants.BirthdayLeadDays = DefaultTimingConstants().BirthdayLeadDays
	}
	if c.TimingConstants.EffectiveLeadDays == 0 {
		c.TimingConstants.EffectiveLeadDays = DefaultTimingConstants().EffectiveLeadDays
	}
	if c.TimingConstants.PreWindowExclusionDays == 0 {
		c.TimingConstants.PreWindowExclusionDays = DefaultTimingConstants().PreWindowExclusionDays
	}
	if len(c.AEP.DefaultDates) == 0 {
		c.AEP.DefaultDates = DefaultAEPConfig().DefaultDates
	}
	sort.Slice(c.AEP.DefaultDates, func(i, j int) bool {
		di, dj := c.AEP.DefaultDates[i], c.AEP.DefaultDates[j]
		if di.Month != dj.Month {
			return di.Month < dj.Month
		}
		return di.Day < dj.Day
	})
	if c.StateRules == nil {
		c.StateRules = map[string]StateRule{}
	}
	if c.ContactRules == nil {
		c.ContactRules = map[string]ContactOverride{}
	}
}

// Validate checks the document is internally consistent: non-negative
// window sizes and a non-empty AEP slot table.
func (c *Config) Validate() error {
	if len(c.AEP.DefaultDates) == 0 {
		return fmt.Errorf("rule config: aep_config.default_dates must not be empty")
	}
	for code, rule := range c.StateRules {
		if rule.WindowBefore < 0 || rule.WindowAfter < 0 {
			return fmt.Errorf("rule config: state_rules.%s: window_before/window_after must be non-negative", code)
		}
		switch rule.Type {
		case VariantBirthdayWindow, VariantEffectiveDateWindow, VariantYearRound, "":
		default:
			return fmt.Errorf("rule config: state_rules.%s: unknown type %q", code, rule.Type)
		}
	}
	return nil
}

// AEPSlotIndex deterministically maps a contact ID to an index in
// slots via a stable (process-independent) hash. The specification
// leaves the exact hash unspecified beyond "stable across runs"; FNV-1a
// is used here because it is part of the standard library and has no
// seeding, so it reproduces identically on every run and every machine.
func AEPSlotIndex(contactID string, slotCount int) int {
	if slotCount <= 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(contactID))
	return int(h.Sum64() % uint64(slotCount))
}

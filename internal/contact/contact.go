// Package contact defines the Contact record the scheduling engine
// reads and the static postal-code-to-jurisdiction table used when a
// contact record omits its state code.
package contact

import (
	"github.com/bluebrook/enroll-scheduler/internal/calendar"
)

// Contact is an immutable input to a scheduling run. Contacts are owned
// by the caller; the engine only ever reads them.
type Contact struct {
	ID             string
	OrgID          int64
	FirstName      string
	LastName       string
	Email          string
	Jurisdiction   string // two-letter state code; derived from PostalCode if empty
	PostalCode     string
	BirthDate      *calendar.Date
	EffectiveDate  *calendar.Date
}

// HasAnchor reports whether c carries at least one of the two anchor
// dates the scheduler needs to propose any intent at all.
func (c Contact) HasAnchor() bool {
	return c.BirthDate != nil || c.EffectiveDate != nil
}

// ResolvedJurisdiction returns c.Jurisdiction if set, otherwise the
// jurisdiction inferred from c.PostalCode via the static prefix table.
// The second return value is false when neither source yields a code.
func (c Contact) ResolvedJurisdiction() (string, bool) {
	if c.Jurisdiction != "" {
		return c.Jurisdiction, true
	}
	return FromPostalCode(c.PostalCode)
}

package scheduling

import "github.com/bluebrook/enroll-scheduler/internal/calendar"

// Kind identifies the kind of message instance an Intent represents.
type Kind string

const (
	KindBirthday      Kind = "birthday"
	KindEffectiveDate Kind = "effective_date"
	KindAEP           Kind = "aep"
	KindPostWindow    Kind = "post_window"
)

// priority orders kinds for the Step 5 tie-break: Birthday < EffectiveDate
// < AEP < PostWindow.
func (k Kind) priority() int {
	switch k {
	case KindBirthday:
		return 0
	case KindEffectiveDate:
		return 1
	case KindAEP:
		return 2
	case KindPostWindow:
		return 3
	default:
		return 4
	}
}

// Status is the disposition of an Intent.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusSkipped   Status = "skipped"
)

// Intent is a candidate message the scheduling engine proposes or
// rejects for a contact. It is a transient product of scheduling: the
// caller that requested it owns it.
type Intent struct {
	ContactID   string
	Kind        Kind
	TargetDate  calendar.Date
	DefaultDate *calendar.Date // set for Birthday/EffectiveDate only
	Status      Status
	Reason      string // mandatory when Status == StatusSkipped
	Link        string // optional tracking link
}

// Less orders two Intents by the Step 5 tie-break: target date
// ascending, then kind priority, then contact ID.
func Less(a, b Intent) bool {
	if cmp := a.TargetDate.Compare(b.TargetDate); cmp != 0 {
		return cmp < 0
	}
	if a.Kind.priority() != b.Kind.priority() {
		return a.Kind.priority() < b.Kind.priority()
	}
	return a.ContactID < b.ContactID
}

package batch

import (
	"encoding/json"

	"github.com/bluebrook/enroll-scheduler/internal/scheduling"
)

// scheduleOutput is the wire shape of a Result: spec §6's scheduling
// output, snake_case with ISO-8601 dates, never the Go field names of
// Result or scheduling.Intent.
type scheduleOutput struct {
	ContactID string          `json:"contact_id"`
	Emails    []emailOutput   `json:"emails"`
	Skipped   []skippedOutput `json:"skipped"`
}

type emailOutput struct {
	Type        string  `json:"type"`
	Date        string  `json:"date"`
	DefaultDate *string `json:"default_date,omitempty"`
	Link        string  `json:"link,omitempty"`
}

type skippedOutput struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// MarshalJSON projects Result into spec §6's scheduling output shape
// instead of leaking Result's and scheduling.Intent's Go field names.
func (r Result) MarshalJSON() ([]byte, error) {
	emails := make([]emailOutput, 0, len(r.Scheduled))
	for _, in := range r.Scheduled {
		emails = append(emails, toEmailOutput(in))
	}
	skipped := make([]skippedOutput, 0, len(r.Skipped))
	for _, in := range r.Skipped {
		skipped = append(skipped, skippedOutput{Type: string(in.Kind), Reason: in.Reason})
	}
	return json.Marshal(scheduleOutput{ContactID: r.ContactID, Emails: emails, Skipped: skipped})
}

func toEmailOutput(in scheduling.Intent) emailOutput {
	e := emailOutput{Type: string(in.Kind), Date: in.TargetDate.String(), Link: in.Link}
	if in.DefaultDate != nil {
		d := in.DefaultDate.String()
		e.DefaultDate = &d
	}
	return e
}

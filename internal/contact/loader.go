package contact

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/bluebrook/enroll-scheduler/internal/calendar"
)

// record is the JSON wire shape of spec.md §6's contact input array.
// Dates are plain YYYY-MM-DD strings, matching the store's own
// scheduled_date representation.
type record struct {
	ID            string  `json:"id"`
	OrgID         int64   `json:"org_id"`
	FirstName     string  `json:"first_name,omitempty"`
	LastName      string  `json:"last_name,omitempty"`
	Email         string  `json:"email"`
	State         string  `json:"state,omitempty"`
	ZipCode       string  `json:"zip_code,omitempty"`
	BirthDate     *string `json:"birth_date,omitempty"`
	EffectiveDate *string `json:"effective_date,omitempty"`
}

// LoadJSON reads the JSON contact array of spec.md §6 from path.
func LoadJSON(path string) ([]Contact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read contacts file: %w", err)
	}

	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse contacts file: %w", err)
	}

	contacts := make([]Contact, 0, len(records))
	for _, r := range records {
		c, err := fromRecord(r)
		if err != nil {
			return nil, fmt.Errorf("contact %q: %w", r.ID, err)
		}
		contacts = append(contacts, c)
	}
	return contacts, nil
}

func fromRecord(r record) (Contact, error) {
	c := Contact{
		ID:           r.ID,
		OrgID:        r.OrgID,
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		Email:        r.Email,
		Jurisdiction: r.State,
		PostalCode:   r.ZipCode,
	}

	if r.BirthDate != nil {
		d, err := calendar.Parse(*r.BirthDate)
		if err != nil {
			return Contact{}, fmt.Errorf("birth_date: %w", err)
		}
		c.BirthDate = &d
	}
	if r.EffectiveDate != nil {
		d, err := calendar.Parse(*r.EffectiveDate)
		if err != nil {
			return Contact{}, fmt.Errorf("effective_date: %w", err)
		}
		c.EffectiveDate = &d
	}

	return c, nil
}

// MapResolver is a ContactResolver backed by an in-memory map, used by
// the pipeline when contacts were loaded from the JSON input form
// rather than a relational table.
type MapResolver struct {
	byID map[string]Contact
}

// NewMapResolver indexes contacts by ID.
func NewMapResolver(contacts []Contact) *MapResolver {
	m := make(map[string]Contact, len(contacts))
	for _, c := range contacts {
		m[c.ID] = c
	}
	return &MapResolver{byID: m}
}

func (r *MapResolver) Resolve(ctx context.Context, id string) (Contact, error) {
	c, ok := r.byID[id]
	if !ok {
		return Contact{}, fmt.Errorf("contact %q not found", id)
	}
	return c, nil
}

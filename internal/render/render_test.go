package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluebrook/enroll-scheduler/internal/contact"
)

func TestRender_BirthdayInterpolatesContactAndOrg(t *testing.T) {
	r := New()
	c := contact.Contact{FirstName: "Pat"}
	org := Organization{Name: "Bluebrook Enrollment"}

	out, err := r.Render("birthday", c, org, Links{})
	require.NoError(t, err)
	assert.Equal(t, "Happy Birthday, Pat!", out.Subject)
	assert.Contains(t, out.HTMLBody, "Pat")
	assert.Contains(t, out.HTMLBody, "Bluebrook Enrollment")
	assert.Contains(t, out.TextBody, "Pat")
}

func TestRender_EffectiveDateInterpolatesOrg(t *testing.T) {
	r := New()
	c := contact.Contact{FirstName: "Sam"}
	org := Organization{Name: "Acme Benefits"}

	out, err := r.Render("effective_date", c, org, Links{})
	require.NoError(t, err)
	assert.Contains(t, out.Subject, "Acme Benefits")
	assert.Contains(t, out.HTMLBody, "Sam")
	assert.Contains(t, out.TextBody, "another year")
}

func TestRender_AEPIncludesTrackingLink(t *testing.T) {
	r := New()
	c := contact.Contact{FirstName: "Jo"}
	links := Links{TrackingLink: "https://track.example/abc"}

	out, err := r.Render("aep", c, Organization{}, links)
	require.NoError(t, err)
	assert.Contains(t, out.HTMLBody, "https://track.example/abc")
	assert.Contains(t, out.TextBody, "https://track.example/abc")
	assert.Equal(t, "Annual Enrollment is open", out.Subject)
}

func TestRender_PostWindowInterpolatesOrgAndContact(t *testing.T) {
	r := New()
	c := contact.Contact{FirstName: "Lee"}
	org := Organization{Name: "Bluebrook Enrollment"}

	out, err := r.Render("post_window", c, org, Links{})
	require.NoError(t, err)
	assert.Contains(t, out.Subject, "Bluebrook Enrollment")
	assert.Contains(t, out.HTMLBody, "Lee")
}

func TestRender_UnknownKindReturnsError(t *testing.T) {
	r := New()
	_, err := r.Render("not_a_kind", contact.Contact{}, Organization{}, Links{})
	assert.Error(t, err)
}

func TestRender_EscapesHTMLInContactFields(t *testing.T) {
	r := New()
	c := contact.Contact{FirstName: `<script>alert(1)</script>`}

	out, err := r.Render("birthday", c, Organization{}, Links{})
	require.NoError(t, err)
	assert.NotContains(t, out.HTMLBody, "<script>")
	assert.Contains(t, out.HTMLBody, "&lt;script&gt;")
	// The text body uses text/template, which does not escape.
	assert.Contains(t, out.TextBody, "<script>")
}

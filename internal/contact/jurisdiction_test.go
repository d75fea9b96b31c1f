package contact

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromPostalCode(t *testing.T) {
	cases := []struct {
		zip    string
		want   string
		wantOK bool
	}{
		{"90210", "CA", true},
		{"02134", "MA", true},
		{"10001", "NY", true},
		{"", "", false},
		{"not-a-zip", "", false},
	}
	for _, tc := range cases {
		got, ok := FromPostalCode(tc.zip)
		assert.Equal(t, tc.wantOK, ok, tc.zip)
		if tc.wantOK {
			assert.Equal(t, tc.want, got, tc.zip)
		}
	}
}

func TestResolvedJurisdiction_PrefersExplicitCode(t *testing.T) {
	c := Contact{Jurisdiction: "TX", PostalCode: "90210"}
	code, ok := c.ResolvedJurisdiction()
	assert.True(t, ok)
	assert.Equal(t, "TX", code)

	c2 := Contact{PostalCode: "90210"}
	code2, ok2 := c2.ResolvedJurisdiction()
	assert.True(t, ok2)
	assert.Equal(t, "CA", code2)
}

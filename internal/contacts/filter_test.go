package contacts

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-enricher/internal/model"
)

func TestFilter_ExclusionRules(t *testing.T) {
	t.Parallel()

	raw := []model.Contact{
		{FirstName: "Pat", Email: "pat@agency.gov"},
		{FirstName: "Lee", Email: "lee@state.edu"},
		{FirstName: "Legal", Email: "legal@company.com"},
		{FirstName: "Jane", Email: "jane@company.com"},
	}
	f := Filter(raw, RulesFromTables(nil))

	require.Len(t, f.Kept, 1)
	assert.Equal(t, "jane@company.com", f.Kept[0].Email)
	assert.Equal(t, 2, f.Dropped[ReasonExcludedDomain])
	assert.Equal(t, 1, f.Dropped[ReasonExcludedRole])
}

func TestFilter_Cases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		email string
		want  Reason
	}{
		{"phone only", "", ReasonNoEmail},
		{"whitespace", "   ", ReasonNoEmail},
		{"no at", "info.acme.com", ReasonInvalidEmail},
		{"double dot host", "a@acme..com", ReasonInvalidEmail},
		{"mil", "ops@army.mil", ReasonExcludedDomain},
		{"foreign gov", "desk@tax.gov.uk", ReasonExcludedDomain},
		{"dmca", "dmca-notices@acme.com", ReasonExcludedRole},
		{"privacy token", "team.privacy@acme.com", ReasonExcludedRole},
		{"compliance prefix", "compliance@acme.com", ReasonExcludedRole},
		{"role address kept", "info@acme.com", ""},
		{"freemail kept", "bob.acme@gmail.com", ""},
		{"legend is not legal", "legends@acme.com", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := Filter([]model.Contact{{Email: tt.email, Phone: "555-0100"}}, RulesFromTables(nil))
			if tt.want == "" {
				assert.Len(t, f.Kept, 1)
				return
			}
			assert.Empty(t, f.Kept)
			assert.Equal(t, 1, f.Dropped[tt.want])
		})
	}
}

func TestFilter_DeduplicatesCaseInsensitive(t *testing.T) {
	t.Parallel()

	f := Filter([]model.Contact{
		{Email: "Info@Acme.com", Notes: "footer"},
		{Email: "info@acme.com", Notes: "contact page"},
	}, RulesFromTables(nil))
	require.Len(t, f.Kept, 1)
	assert.Equal(t, "info@acme.com", f.Kept[0].Email)
	assert.Equal(t, "footer", f.Kept[0].Notes)
	assert.Equal(t, "1 duplicate", f.Summary())
}

func TestFilteredSummary(t *testing.T) {
	t.Parallel()

	f := Filtered{Dropped: map[Reason]int{ReasonNoEmail: 2, ReasonExcludedRole: 1}}
	assert.Equal(t, "2 no email, 1 excluded role", f.Summary())
	assert.Equal(t, "", Filtered{}.Summary())
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	var list []model.Contact
	for i := 0; i < 40; i++ {
		list = append(list, model.Contact{Email: fmt.Sprintf("c%d@acme.com", i)})
	}
	list[24].Notes = "Found on team page"

	out := Truncate(list, 25, 40)
	require.Len(t, out, 25)
	assert.Equal(t, "Found on team page | Showing 25 of 40 contacts found", out[24].Notes)
	assert.Empty(t, out[23].Notes)

	short := Truncate([]model.Contact{{Email: "a@b.com"}}, 25, 1)
	assert.Empty(t, short[0].Notes)
}

func TestFindEmails(t *testing.T) {
	t.Parallel()

	text := `Contact: Info@Acme-HVAC.com, (555) 123-4567. Sales: sales@acme-hvac.com.
	<img src="logo@2x.png"> again info@acme-hvac.com`
	assert.Equal(t, []string{"info@acme-hvac.com", "sales@acme-hvac.com"}, FindEmails(text))
	assert.Empty(t, FindEmails("no addresses here"))
}

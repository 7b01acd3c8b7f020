package enrich

import (
	"fmt"

	"github.com/sells-group/prospect-enricher/internal/model"
)

// State is a prospect lifecycle state.
type State = model.ProspectStatus

// Outcome collects what the stages of one run produced.
type Outcome struct {
	// AcquisitionEmpty is set when no strategy returned website text.
	AcquisitionEmpty bool
	// Found counts raw contacts from extraction and search fallback.
	Found int
	// Persisted counts stored contacts carrying an email.
	Persisted int
	// Icebreaker is set when the prospect holds opener text.
	Icebreaker bool
	// Dropped summarizes why found contacts were not stored.
	Dropped string
	// Recovered names the failure that forced the decision, if any.
	Recovered string
}

// Decision is the terminal write derived from an Outcome.
type Decision struct {
	State State
	Note  string
}

// Decide maps stage outcomes to a terminal state. It is evaluated once per
// run, on the normal path and in recovery alike.
func Decide(o Outcome) Decision {
	var d Decision
	switch {
	case o.Persisted > 0 && o.Icebreaker:
		d = Decision{model.ProspectStatusEnriched, fmt.Sprintf("Enriched: %d contact(s) with email, icebreaker ready", o.Persisted)}
	case o.Persisted > 0:
		d = Decision{model.ProspectStatusReview, fmt.Sprintf("%d contact(s) with email saved but no icebreaker was generated", o.Persisted)}
	case o.Found > 0:
		note := fmt.Sprintf("Missing emails: %d contact(s) found, none with a usable email", o.Found)
		if o.Dropped != "" {
			note += " (" + o.Dropped + ")"
		}
		d = Decision{model.ProspectStatusMissingEmails, note}
	case o.AcquisitionEmpty:
		d = Decision{model.ProspectStatusReview, "No website content could be acquired from any source"}
	default:
		d = Decision{model.ProspectStatusReview, "No contacts found on website or in search results"}
	}
	if o.Recovered != "" {
		d.Note = "Recovered after " + o.Recovered + ": " + d.Note
	}
	return d
}

package bulk

import "time"

// EventType identifies a progress record on the job stream.
type EventType string

const (
	EventJobStarted  EventType = "job_started"
	EventProgress    EventType = "progress"
	EventSuccess     EventType = "success"
	EventNeedsReview EventType = "needs_review"
	EventError       EventType = "error"
	EventJobStopped  EventType = "job_stopped"
	EventComplete    EventType = "complete"
)

// Event is one streamed progress record.
type Event struct {
	Type          EventType `json:"type"`
	JobID         string    `json:"jobId"`
	ProspectID    string    `json:"prospectId,omitempty"`
	Domain        string    `json:"domain,omitempty"`
	Message       string    `json:"message,omitempty"`
	Status        string    `json:"status,omitempty"`
	Processed     int       `json:"processed"`
	Total         int       `json:"total"`
	Succeeded     int       `json:"succeeded"`
	Failed        int       `json:"failed"`
	ContactsFound int       `json:"contactsFound,omitempty"`
	EmailsFound   bool      `json:"emailsFound,omitempty"`
	Skipped       bool      `json:"skipped,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

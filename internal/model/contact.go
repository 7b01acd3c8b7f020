package model

import (
	"strings"
	"time"
)

// Contact is a person or role address found for a prospect.
type Contact struct {
	ID          string    `json:"id"`
	ProspectID  string    `json:"prospect_id"`
	TargetID    string    `json:"target_id"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Title       string    `json:"title"`
	LinkedInURL string    `json:"linkedin_url"`
	FacebookURL string    `json:"facebook_url"`
	Notes       string    `json:"notes"`
	CreatedAt   time.Time `json:"created_at"`
}

// HasEmail reports whether the contact is usable for outreach.
func (c Contact) HasEmail() bool {
	return strings.TrimSpace(c.Email) != ""
}

// EmailDomain returns the lowercased part after the @.
func (c Contact) EmailDomain() string {
	at := strings.LastIndex(c.Email, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(c.Email[at+1:]))
}

// EmailLocal returns the lowercased part before the @.
func (c Contact) EmailLocal() string {
	at := strings.LastIndex(c.Email, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(c.Email[:at]))
}

package identity

import (
	"encoding/json"
	"strings"

	"quizforge/internal/quiz"
)

const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
)

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type emailAddress struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
	Verification *struct {
		Status string `json:"status"`
	} `json:"verification"`
}

func (e emailAddress) verified() bool {
	return e.Verification != nil && e.Verification.Status == "verified"
}

// userData is the subset of the provider's user object we persist. Name
// parts and images are nullable upstream.
type userData struct {
	ID                    string         `json:"id"`
	EmailAddresses        []emailAddress `json:"email_addresses"`
	PrimaryEmailAddressID *string        `json:"primary_email_address_id"`
	FirstName             *string        `json:"first_name"`
	LastName              *string        `json:"last_name"`
	ImageURL              *string        `json:"image_url"`
	ProfileImageURL       *string        `json:"profile_image_url"`
}

func (d userData) profile() quiz.UserProfile {
	return quiz.UserProfile{
		ExternalID: strings.TrimSpace(d.ID),
		Email:      d.primaryEmail(),
		Name:       strings.TrimSpace(strings.TrimSpace(deref(d.FirstName)) + " " + strings.TrimSpace(deref(d.LastName))),
		ImageURL:   firstNonEmpty(deref(d.ImageURL), deref(d.ProfileImageURL)),
	}
}

// primaryEmail prefers the primary address when it is verified, then any
// verified address. Unverified addresses are never stored.
func (d userData) primaryEmail() string {
	primaryID := deref(d.PrimaryEmailAddressID)
	if primaryID != "" {
		for _, addr := range d.EmailAddresses {
			if addr.ID == primaryID && addr.verified() {
				return strings.TrimSpace(addr.EmailAddress)
			}
		}
	}
	for _, addr := range d.EmailAddresses {
		if addr.verified() {
			return strings.TrimSpace(addr.EmailAddress)
		}
	}
	return ""
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return ""
}

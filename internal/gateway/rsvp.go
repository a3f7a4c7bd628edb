package gateway

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"
)

// Field limits for submissions.
const (
	MaxNameLength    = 100
	MaxMessageLength = 500
	MaxDietaryLength = 200
	MaxGuestCount    = 10
)

// RSVP is one guest response as stored by the resource endpoint.
type RSVP struct {
	ID                  string `json:"id,omitempty"`
	Name                string `json:"name"`
	Email               string `json:"email"`
	Attending           bool   `json:"attending"`
	GuestCount          int    `json:"guestCount"`
	DietaryRestrictions string `json:"dietaryRestrictions,omitempty"`
	Message             string `json:"message,omitempty"`
	CreatedAt           string `json:"createdAt,omitempty"`
	UpdatedAt           string `json:"updatedAt,omitempty"`
}

// Submission is the public form payload.
type Submission struct {
	Name                string `json:"name"`
	Email               string `json:"email"`
	Attending           *bool  `json:"attending"`
	GuestCount          int    `json:"guestCount"`
	DietaryRestrictions string `json:"dietaryRestrictions"`
	Message             string `json:"message"`
}

// Normalize trims whitespace and lower-cases the email.
func (s *Submission) Normalize() {
	s.Name = strings.TrimSpace(s.Name)
	s.Email = strings.ToLower(strings.TrimSpace(s.Email))
	s.DietaryRestrictions = strings.TrimSpace(s.DietaryRestrictions)
	s.Message = strings.TrimSpace(s.Message)
}

// Validate returns field-level messages, nil when the submission is valid.
func (s Submission) Validate() map[string][]string {
	v := validation{}
	v.name(s.Name)
	v.email(s.Email)
	if s.Attending == nil {
		v.add("attending", "is required")
	}
	v.guestCount(s.GuestCount, s.Attending != nil && !*s.Attending)
	v.maxLength("dietaryRestrictions", s.DietaryRestrictions, MaxDietaryLength)
	v.maxLength("message", s.Message, MaxMessageLength)
	return v.result()
}

// RSVP converts a valid submission.
func (s Submission) RSVP() RSVP {
	r := RSVP{
		Name:                s.Name,
		Email:               s.Email,
		GuestCount:          s.GuestCount,
		DietaryRestrictions: s.DietaryRestrictions,
		Message:             s.Message,
	}
	if s.Attending != nil {
		r.Attending = *s.Attending
	}
	return r
}

// Patch is an admin partial update. Nil fields are left unchanged.
type Patch struct {
	Name                *string `json:"name"`
	Email               *string `json:"email"`
	Attending           *bool   `json:"attending"`
	GuestCount          *int    `json:"guestCount"`
	DietaryRestrictions *string `json:"dietaryRestrictions"`
	Message             *string `json:"message"`
}

// Validate returns field-level messages for the present fields.
func (p Patch) Validate() map[string][]string {
	v := validation{}
	if p.Name != nil {
		v.name(strings.TrimSpace(*p.Name))
	}
	if p.Email != nil {
		v.email(strings.ToLower(strings.TrimSpace(*p.Email)))
	}
	if p.GuestCount != nil {
		v.guestCount(*p.GuestCount, p.Attending != nil && !*p.Attending)
	}
	if p.DietaryRestrictions != nil {
		v.maxLength("dietaryRestrictions", *p.DietaryRestrictions, MaxDietaryLength)
	}
	if p.Message != nil {
		v.maxLength("message", *p.Message, MaxMessageLength)
	}
	return v.result()
}

// Fields returns the present fields in wire form.
func (p Patch) Fields() map[string]any {
	fields := map[string]any{}
	if p.Name != nil {
		fields["name"] = strings.TrimSpace(*p.Name)
	}
	if p.Email != nil {
		fields["email"] = strings.ToLower(strings.TrimSpace(*p.Email))
	}
	if p.Attending != nil {
		fields["attending"] = *p.Attending
	}
	if p.GuestCount != nil {
		fields["guestCount"] = *p.GuestCount
	}
	if p.DietaryRestrictions != nil {
		fields["dietaryRestrictions"] = strings.TrimSpace(*p.DietaryRestrictions)
	}
	if p.Message != nil {
		fields["message"] = strings.TrimSpace(*p.Message)
	}
	return fields
}

// Stats summarises all responses.
type Stats struct {
	Total        int `json:"total"`
	Attending    int `json:"attending"`
	NotAttending int `json:"notAttending"`
	Guests       int `json:"guests"`
}

// Summarize computes Stats. Guests counts attending respondents plus their
// additional guests.
func Summarize(rsvps []RSVP) Stats {
	stats := Stats{Total: len(rsvps)}
	for _, r := range rsvps {
		if r.Attending {
			stats.Attending++
			stats.Guests += 1 + r.GuestCount
		} else {
			stats.NotAttending++
		}
	}
	return stats
}

type validation map[string][]string

func (v validation) add(field, msg string) {
	v[field] = append(v[field], msg)
}

func (v validation) name(name string) {
	switch {
	case name == "":
		v.add("name", "is required")
	case utf8.RuneCountInString(name) > MaxNameLength:
		v.add("name", fmt.Sprintf("must be at most %d characters", MaxNameLength))
	}
}

func (v validation) email(email string) {
	if email == "" {
		v.add("email", "is required")
		return
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		v.add("email", "is invalid")
	}
}

func (v validation) guestCount(n int, declined bool) {
	switch {
	case n < 0 || n > MaxGuestCount:
		v.add("guestCount", fmt.Sprintf("must be between 0 and %d", MaxGuestCount))
	case declined && n > 0:
		v.add("guestCount", "must be 0 when not attending")
	}
}

func (v validation) maxLength(field, value string, max int) {
	if utf8.RuneCountInString(value) > max {
		v.add(field, fmt.Sprintf("must be at most %d characters", max))
	}
}

func (v validation) result() map[string][]string {
	if len(v) == 0 {
		return nil
	}
	return v
}

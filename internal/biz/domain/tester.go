package domain

import (
	"slices"
	"strings"
	"time"
)

// Tester represents one real person known to the beta program
type Tester struct {
	ID                    string // Store record ID
	DiscordID             string // Sole matching key
	Username              string
	Email                 string
	GivenName             string
	FamilyName            string
	RegistrationMessageID string   // Outstanding registration prompt (DM), if any
	LeaveMessageIDs       []string // "Left the server" notices mentioning this tester
	UpdatedAt             time.Time
}

// HasEmail checks if the tester has registered an email
func (t *Tester) HasEmail() bool {
	return strings.TrimSpace(t.Email) != ""
}

// FullName joins given and family name
func (t *Tester) FullName() string {
	return strings.TrimSpace(t.GivenName + " " + t.FamilyName)
}

// SameFields reports whether two records carry the same mutable fields.
// ID and UpdatedAt are ignored.
func (t *Tester) SameFields(o *Tester) bool {
	return t.DiscordID == o.DiscordID &&
		t.Username == o.Username &&
		t.Email == o.Email &&
		t.GivenName == o.GivenName &&
		t.FamilyName == o.FamilyName &&
		t.RegistrationMessageID == o.RegistrationMessageID &&
		slices.Equal(t.LeaveMessageIDs, o.LeaveMessageIDs)
}

// HasLeaveMessage checks if the leave notice belongs to this tester
func (t *Tester) HasLeaveMessage(messageID string) bool {
	return slices.Contains(t.LeaveMessageIDs, messageID)
}

func (t *Tester) String() string {
	return "(" + t.ID + ") " + t.Username
}

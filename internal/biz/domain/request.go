package domain

import (
	"fmt"
	"slices"
	"time"
)

// RequestStatus is the lifecycle status of a testing request
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "PENDING"
	RequestStatusApproved RequestStatus = "APPROVED"
	RequestStatusRejected RequestStatus = "REJECTED"
)

// Valid checks if the status is one of the known values
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusPending, RequestStatusApproved, RequestStatusRejected:
		return true
	}
	return false
}

// ApprovalFilter narrows request listings by status
type ApprovalFilter string

const (
	ApprovalFilterAll      ApprovalFilter = ""
	ApprovalFilterPending  ApprovalFilter = "PENDING"
	ApprovalFilterApproved ApprovalFilter = "APPROVED"
	ApprovalFilterRejected ApprovalFilter = "REJECTED"
)

// RequestFilter selects requests in a listing. Zero values match everything.
type RequestFilter struct {
	TesterDiscordID string
	AppIDs          []string
	Approval        ApprovalFilter
	ExcludeRemoved  bool
}

// TestingRequest is one tester's access request to one app
type TestingRequest struct {
	ID              string
	TesterID        string
	TesterDiscordID string
	AppID           string
	AppName         string   // Looked up from the app on read
	AppRoleIDs      []string // Roles mapped to the app, looked up on read
	ServerID        string
	// ApprovalChannelID falls back to the guild default when empty
	ApprovalChannelID             string
	Status                        RequestStatus
	NotificationMessageID         string
	FurtherNotificationMessageIDs []string
	Removed                       bool
	Created                       time.Time
}

// IsApproved checks if the request was approved
func (r *TestingRequest) IsApproved() bool {
	return r.Status == RequestStatusApproved
}

// IsRejected checks if the request was rejected
func (r *TestingRequest) IsRejected() bool {
	return r.Status == RequestStatusRejected
}

// IsActive checks if the request is neither rejected nor removed
func (r *TestingRequest) IsActive() bool {
	return !r.Removed && !r.IsRejected()
}

// HasNotification checks if a first notification was already sent
func (r *TestingRequest) HasNotification() bool {
	return r.NotificationMessageID != ""
}

// RecordNotification stores a sent notification message ID. The first
// one becomes the primary notification, later ones are duplicates.
func (r *TestingRequest) RecordNotification(messageID string) {
	if r.NotificationMessageID == "" {
		r.NotificationMessageID = messageID
		return
	}
	r.AddFurtherNotificationMessageID(messageID)
}

// AddFurtherNotificationMessageID appends a duplicate notification ID
func (r *TestingRequest) AddFurtherNotificationMessageID(messageID string) {
	if messageID == r.NotificationMessageID || slices.Contains(r.FurtherNotificationMessageIDs, messageID) {
		return
	}
	r.FurtherNotificationMessageIDs = append(r.FurtherNotificationMessageIDs, messageID)
}

// OtherNotificationMessageIDs lists every notification copy except the
// given one. The primary notification comes last.
func (r *TestingRequest) OtherNotificationMessageIDs(exclude string) []string {
	var ids []string
	for _, id := range r.FurtherNotificationMessageIDs {
		if id != exclude && id != "" {
			ids = append(ids, id)
		}
	}
	if r.NotificationMessageID != "" && r.NotificationMessageID != exclude {
		ids = append(ids, r.NotificationMessageID)
	}
	return ids
}

func (r *TestingRequest) String() string {
	return fmt.Sprintf("%s (%s for %s, %s)", r.ID, r.TesterDiscordID, r.AppName, r.Status)
}

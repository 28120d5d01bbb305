package domain

import (
	"errors"
	"fmt"
)

// StoreError wraps any failure of the record store. Callers use
// errors.As to route store failures to the approvals channel.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError wraps err, returning nil for a nil err
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// WorkflowError is a reportable failure of a reaction workflow step. It
// carries where the report goes and who to mention.
type WorkflowError struct {
	Message   string
	Reference MessageRef
	// MentionUserID is mentioned in the report when set
	MentionUserID string
	Err           error
}

func (e *WorkflowError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *WorkflowError) Unwrap() error { return e.Err }

// Report renders the text posted for this failure
func (e *WorkflowError) Report() string {
	if e.MentionUserID != "" {
		return MentionUser(e.MentionUserID) + " " + e.Message
	}
	return e.Message
}

// DistributionErrorKind classifies distribution API failures
type DistributionErrorKind int

const (
	DistributionErrorGeneric DistributionErrorKind = iota
	DistributionErrorCredentialsNotConfigured
	DistributionErrorGroupNotConfigured
	DistributionErrorInvalidAttribute
)

func (k DistributionErrorKind) String() string {
	switch k {
	case DistributionErrorCredentialsNotConfigured:
		return "credentials not configured"
	case DistributionErrorGroupNotConfigured:
		return "beta group not configured"
	case DistributionErrorInvalidAttribute:
		return "invalid attribute"
	default:
		return "distribution error"
	}
}

// DistributionError is a failure of the beta distribution API
type DistributionError struct {
	Kind    DistributionErrorKind
	AppName string
	// Details is the offending attribute for DistributionErrorInvalidAttribute
	Details string
	Err     error
}

func (e *DistributionError) Error() string {
	msg := e.Kind.String()
	if e.AppName != "" {
		msg = fmt.Sprintf("%s for %s", msg, e.AppName)
	}
	if e.Details != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Details)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *DistributionError) Unwrap() error { return e.Err }

// IsConfiguration checks if the failure is one of the reportable,
// non-fatal kinds
func (e *DistributionError) IsConfiguration() bool {
	return e.Kind != DistributionErrorGeneric
}

// AsDistributionError extracts a *DistributionError from err
func AsDistributionError(err error) (*DistributionError, bool) {
	var de *DistributionError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

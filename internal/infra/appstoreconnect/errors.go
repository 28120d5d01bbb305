package appstoreconnect

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CodeInvalidAttribute is returned for attributes the API rejects
const CodeInvalidAttribute = "ENTITY_ERROR.ATTRIBUTE.INVALID"

// ErrorObject is one entry of an error response
type ErrorObject struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Code   string `json:"code"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Source *struct {
		Pointer   string `json:"pointer"`
		Parameter string `json:"parameter"`
	} `json:"source,omitempty"`
}

// APIError is a non-success response
type APIError struct {
	StatusCode int
	Errors     []ErrorObject
	Body       string
}

func newAPIError(status int, body []byte) *APIError {
	e := &APIError{StatusCode: status}
	var parsed struct {
		Errors []ErrorObject `json:"errors"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		e.Errors = parsed.Errors
	} else {
		e.Body = string(body)
	}
	return e
}

func (e *APIError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("app store connect: status %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
	}
	parts := make([]string, 0, len(e.Errors))
	for _, o := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", o.Code, o.Detail))
	}
	return fmt.Sprintf("app store connect: status %d: %s", e.StatusCode, strings.Join(parts, "; "))
}

// Find returns the first error object with the code
func (e *APIError) Find(code string) (ErrorObject, bool) {
	for _, o := range e.Errors {
		if o.Code == code {
			return o, true
		}
	}
	return ErrorObject{}, false
}

// InvalidAttribute returns the rejected attribute when the response is a
// conflict caused by an invalid attribute
func (e *APIError) InvalidAttribute() (string, bool) {
	if e.StatusCode != 409 {
		return "", false
	}
	o, ok := e.Find(CodeInvalidAttribute)
	if !ok {
		return "", false
	}
	if o.Source != nil && o.Source.Pointer != "" {
		return strings.TrimPrefix(o.Source.Pointer, "/data/attributes/"), true
	}
	return o.Detail, true
}

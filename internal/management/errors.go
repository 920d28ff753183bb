package management

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNotFound matches any 404 from the management API, including
	// "The user does not exist." on reads and deletes of absent users.
	ErrNotFound       = errors.New("management: resource not found")
	ErrClientNotFound = errors.New("management: client not found")
	// ErrMissingTotal means a paged envelope came back without its total.
	ErrMissingTotal   = errors.New("management: paged response has no total")
)

// APIError is a non-2xx management API response.
type APIError struct {
	StatusCode int    `json:"statusCode"`
	Status     string `json:"error"`
	Message    string `json:"message"`
	ErrorCode  string `json:"errorCode,omitempty"`
	Method     string `json:"-"`
	Path       string `json:"-"`
}

func (e *APIError) Error() string {
	parts := make([]string, 0, 4)
	if e.Method != "" {
		parts = append(parts, e.Method+" "+e.Path)
	}
	parts = append(parts, fmt.Sprintf("%d", e.StatusCode))
	if e.ErrorCode != "" {
		parts = append(parts, "code="+e.ErrorCode)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	return "management api error: " + strings.Join(parts, ": ")
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// IsNotFound reports whether err is a 404 from the management API.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func parseAPIError(method, path string, status int, body []byte) *APIError {
	apiErr := &APIError{}
	if len(body) > 0 {
		_ = json.Unmarshal(body, apiErr)
	}
	apiErr.StatusCode = status
	apiErr.Method = method
	apiErr.Path = path
	if apiErr.Status == "" {
		apiErr.Status = http.StatusText(status)
	}
	if apiErr.Message == "" && len(body) > 0 && !json.Valid(body) {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

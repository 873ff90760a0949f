package instagram

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Graph API error code/subcode for an invalid or expired access token.
const (
	tokenErrorCode    = 190
	tokenErrorSubcode = 463
)

// GraphError is the machine-checkable error payload returned by the
// Graph API alongside a non-2xx response.
type GraphError struct {
	Message      string `json:"message"`
	Type         string `json:"type"`
	Code         int    `json:"code"`
	ErrorSubcode int    `json:"error_subcode"`
}

// IsTokenError reports whether the payload identifies an invalid or
// expired access token, as opposed to any other failure.
func (e *GraphError) IsTokenError() bool {
	if e == nil {
		return false
	}
	if e.Code == tokenErrorCode || e.ErrorSubcode == tokenErrorSubcode {
		return true
	}
	message := strings.ToLower(e.Message)
	return strings.Contains(message, "access token") ||
		strings.Contains(message, "oauth") ||
		strings.Contains(message, "session has expired") ||
		strings.Contains(strings.ToLower(e.Type), "oauth")
}

// ReconnectError signals that the stored Instagram credential is no longer
// valid and the user must re-authenticate. It is deliberately distinct from
// generic API failures so callers can prompt reconnection instead of
// showing an opaque error.
type ReconnectError struct {
	Message string
}

func (e *ReconnectError) Error() string {
	if e.Message == "" {
		return "Reconnect Instagram"
	}
	return e.Message
}

// IsReconnectError reports whether err (anywhere in its chain) requires
// Instagram re-authentication.
func IsReconnectError(err error) bool {
	var reconnect *ReconnectError
	return errors.As(err, &reconnect)
}

// APIError is a non-token Graph API failure with its HTTP status retained
// for diagnostics.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("instagram request failed (%d): %s", e.StatusCode, e.Message)
}

// IsFieldSelectionError reports whether a media-listing failure was caused
// by an unsupported or nonexistent field, which means the next (smaller)
// field set should be tried. This is the single place that parses the
// upstream wording for this category.
func IsFieldSelectionError(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "nonexisting field") ||
		strings.Contains(message, "cannot be queried") ||
		(strings.Contains(message, "field") && strings.Contains(message, "not exist"))
}

// IsRecoverableError reports whether an insights failure indicates the
// metric or endpoint is unsupported for this account/token, in which case
// the fetcher moves to the next candidate instead of surfacing it.
func IsRecoverableError(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "permission") ||
		strings.Contains(message, "not authorized") ||
		strings.Contains(message, "unsupported") ||
		strings.Contains(message, "cannot be queried") ||
		strings.Contains(message, "invalid metric")
}

// isTimeout reports whether err is a client-side timeout.
func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// Package errcode defines the classified errors returned by the issuance
// service and the predicate that separates fatal codes from retryable ones.
package errcode

import (
	"fmt"
	"strings"

	"github.com/juju/errors"
)

// Error codes used by the token client.
const (
	// InternalError marks transport, decoding and decryption failures.
	InternalError = "InternalError"
	// AuthFailurePrefix prefixes every authentication failure code.
	AuthFailurePrefix = "AuthFailure."
	// AuthFailureInvalidSecretID is returned for an unknown secret id.
	AuthFailureInvalidSecretID = "AuthFailure.InvalidSecretId"
	// AuthFailureSignatureFailure is returned for a bad request signature.
	AuthFailureSignatureFailure = "AuthFailure.SignatureFailure"
	// DataFlowAuthClose is returned when database authentication was disabled
	// for the resource.
	DataFlowAuthClose = "ResourceNotFound.DataFlowAuthClose"
	// InvalidRegion is returned for an empty or malformed region.
	InvalidRegion = "InvalidParameter.ResourceRegionError"
	// InvalidResource is returned for an empty or malformed instance id.
	InvalidResource = "InvalidParameter.ResourceError"
	// InvalidUserName is returned for an empty or malformed user name.
	InvalidUserName = "InvalidParameter.UserNameIllegal"
	// SecretNotExist is returned when no usable credential was supplied.
	SecretNotExist = "ResourceNotFound.SecretNotExist"
)

// Error is an error carrying a service error code.
type Error struct {
	Code      string
	Message   string
	RequestID string
}

// New returns a classified error.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf returns a classified error with a formatted message.
func Newf(code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithRequestID returns a copy of the error tagged with a request id.
func (e *Error) WithRequestID(requestID string) *Error {
	c := *e
	c.RequestID = requestID
	return &c
}

// Error implements error.
func (e *Error) Error() string {
	if e.RequestID == "" {
		return fmt.Sprintf("[code=%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[code=%s] %s (request_id=%s)", e.Code, e.Message, e.RequestID)
}

// Code returns the service error code carried by err, or "" when err is not
// a classified error.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsUserNotificationRequired reports whether code describes a failure that
// retrying cannot fix. The comparison is case-insensitive.
func IsUserNotificationRequired(code string) bool {
	if code == "" {
		return false
	}
	lower := strings.ToLower(code)
	return strings.HasPrefix(lower, strings.ToLower(AuthFailurePrefix)) ||
		lower == strings.ToLower(DataFlowAuthClose)
}

// RequiresUserNotification is IsUserNotificationRequired applied to the code
// carried by err.
func RequiresUserNotification(err error) bool {
	return IsUserNotificationRequired(Code(err))
}

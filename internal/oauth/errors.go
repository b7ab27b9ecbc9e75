package oauth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

// ErrorKind classifies a failed protocol operation
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindTransport         ErrorKind = "transport"
	KindProvider          ErrorKind = "provider"
	KindMalformedResponse ErrorKind = "malformed_response"
)

// ErrInvalidState is returned when a callback state is unknown, already used or expired
var ErrInvalidState = errors.New("invalid or expired oauth state")

// Error is returned by every Client operation
type Error struct {
	Kind ErrorKind
	Op   string

	// Provider errors only
	StatusCode int
	Code       string

	// Field name for validation errors, raw response body for provider
	// and malformed-response errors.
	Detail string

	Err error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindValidation:
		return fmt.Sprintf("oauth %s: missing required field %s", e.Op, e.Detail)
	case KindProvider:
		if e.Code != "" {
			return fmt.Sprintf("oauth %s: provider returned %d %s: %s", e.Op, e.StatusCode, e.Code, e.Detail)
		}
		return fmt.Sprintf("oauth %s: provider returned %d: %s", e.Op, e.StatusCode, e.Detail)
	case KindTransport:
		return fmt.Sprintf("oauth %s: transport failure: %v", e.Op, e.Err)
	default:
		if e.Err != nil {
			return fmt.Sprintf("oauth %s: malformed response: %v", e.Op, e.Err)
		}
		return fmt.Sprintf("oauth %s: malformed response: %s", e.Op, e.Detail)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an *Error of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var oe *Error
	return errors.As(err, &oe) && oe.Kind == kind
}

// IsInvalidGrant reports whether the provider rejected the grant itself.
// For a refresh this means the stored refresh token is revoked or expired.
func IsInvalidGrant(err error) bool {
	var oe *Error
	if !errors.As(err, &oe) || oe.Kind != KindProvider {
		return false
	}
	if oe.Code != "" {
		return oe.Code == "invalid_grant"
	}
	return strings.Contains(oe.Detail, "invalid_grant")
}

func validationError(op, field string) *Error {
	return &Error{Kind: KindValidation, Op: op, Detail: field}
}

func malformed(op, detail string) *Error {
	return &Error{Kind: KindMalformedResponse, Op: op, Detail: detail}
}

// classify maps an error from the oauth2 token endpoint round trip onto
// the taxonomy. Anything that is neither a transport failure nor a provider
// rejection is a response we could not use.
func classify(op string, err error) error {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		status := 0
		if rErr.Response != nil {
			status = rErr.Response.StatusCode
		}
		if rErr.ErrorCode != "" || status < 200 || status > 299 {
			return &Error{
				Kind:       KindProvider,
				Op:         op,
				StatusCode: status,
				Code:       rErr.ErrorCode,
				Detail:     string(rErr.Body),
				Err:        err,
			}
		}
		return &Error{Kind: KindMalformedResponse, Op: op, Detail: string(rErr.Body), Err: err}
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Kind: KindTransport, Op: op, Err: err}
	}

	return &Error{Kind: KindMalformedResponse, Op: op, Err: err}
}

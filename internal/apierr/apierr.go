// Package apierr normalises every failure of an API call into a ClassifiedError.
//
// Classification priority:
//
//   - no response received (DNS, refused, offline): Network, retryable
//   - per-attempt deadline hit: Timeout, retryable
//   - 401 Authentication, 403 Authorization, 400/422 Validation, 409 Conflict,
//     404 NotFound: surfaced immediately
//   - 429 RateLimited and 5xx ServerError: retryable
//   - anything else: Unknown, retryable
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Kind is the failure taxonomy shared by the whole client.
type Kind string

const (
	KindNetwork        Kind = "network"
	KindTimeout        Kind = "timeout"
	KindRateLimited    Kind = "rate_limited"
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindValidation     Kind = "validation"
	KindConflict       Kind = "conflict"
	KindNotFound       Kind = "not_found"
	KindServerError    Kind = "server_error"
	KindUnknown        Kind = "unknown"
)

// Generic messages. Authentication and conflict failures never echo the
// server detail so callers cannot tell which half of a check failed.
const (
	MsgInvalidCredentials = "invalid credentials"
	MsgEmailExists        = "email already exists"
	MsgConflict           = "that already exists"
	MsgForbidden          = "you do not have permission to do that"
	MsgNotFound           = "not found"
	MsgValidation         = "the request is invalid"
	MsgNetwork            = "unable to reach the server"
	MsgTimeout            = "the server took too long to respond"
	MsgRateLimited        = "too many requests, slow down"
	MsgServerError        = "the server encountered an error"
	MsgUnknown            = "something went wrong"
)

// ClassifiedError is the normalised failure representation.
type ClassifiedError struct {
	Kind        Kind
	Message     string
	Retryable   bool
	StatusCode  int
	FieldErrors map[string]string
	Cause       error
}

func (e *ClassifiedError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (%d)", e.StatusCode)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	b.WriteString(formatFields(e.FieldErrors))
	return b.String()
}

func formatFields(fields map[string]string) string {
	if len(fields) == 0 {
		return ""
	}
	names := make([]string, 0, len(fields))
	for f := range fields {
		names = append(names, f)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, f := range names {
		fmt.Fprintf(&b, "; %s: %s", f, fields[f])
	}
	return b.String()
}

func (e *ClassifiedError) Unwrap() error {
	return e.Cause
}

// Is matches another ClassifiedError by Kind so errors.Is(err, apierr.New(KindTimeout, ""))
// style checks work.
func (e *ClassifiedError) Is(target error) bool {
	var t *ClassifiedError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an error of the given kind with the default retry policy for that kind.
func New(kind Kind, message string) *ClassifiedError {
	if message == "" {
		message = defaultMessage(kind)
	}
	return &ClassifiedError{
		Kind:      kind,
		Message:   message,
		Retryable: retryableKind(kind),
	}
}

// Validation builds a Validation error carrying per-field messages.
func Validation(message string, fields map[string]string) *ClassifiedError {
	err := New(KindValidation, message)
	if len(fields) > 0 {
		err.FieldErrors = fields
	}
	return err
}

// As extracts a ClassifiedError from err. Errors that were never classified
// are classified on the fly.
func As(err error) *ClassifiedError {
	if err == nil {
		return nil
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce
	}
	return FromError(err)
}

// KindOf returns the kind of err, or "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return As(err).Kind
}

// IsKind reports whether err classifies as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func retryableKind(kind Kind) bool {
	switch kind {
	case KindNetwork, KindTimeout, KindRateLimited, KindServerError, KindUnknown:
		return true
	default:
		return false
	}
}

func defaultMessage(kind Kind) string {
	switch kind {
	case KindNetwork:
		return MsgNetwork
	case KindTimeout:
		return MsgTimeout
	case KindRateLimited:
		return MsgRateLimited
	case KindAuthentication:
		return MsgInvalidCredentials
	case KindAuthorization:
		return MsgForbidden
	case KindValidation:
		return MsgValidation
	case KindConflict:
		return MsgConflict
	case KindNotFound:
		return MsgNotFound
	case KindServerError:
		return MsgServerError
	default:
		return MsgUnknown
	}
}

// statusText is used when a server detail is missing.
func statusText(status int) string {
	if text := http.StatusText(status); text != "" {
		return strings.ToLower(text)
	}
	return fmt.Sprintf("unexpected status %d", status)
}

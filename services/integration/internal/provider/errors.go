package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/raqmix/kippis-possync/pkg/errors"
	"github.com/raqmix/kippis-possync/pkg/httpclient"
)

// Kind is the closed set of failures the client reports.
type Kind int

const (
	KindUnauthorized Kind = iota + 1
	KindForbidden
	KindNotFound
	KindValidation
	KindRateLimited
	KindServerError
	KindMaintenance
	KindTimeout
	KindConnectionFailure
)

// UnknownErrorCode stands in for an upstream body without a code.
const UnknownErrorCode = "UNKNOWN_ERROR"

type kindInfo struct {
	code      string
	message   string
	retryable bool
	sentinel  error
}

var kinds = map[Kind]kindInfo{
	KindUnauthorized:      {"UNAUTHORIZED", "Unauthenticated with the provider", false, apperrors.ErrUnauthorized},
	KindForbidden:         {"FORBIDDEN", "Access to the resource is forbidden", false, apperrors.ErrForbidden},
	KindNotFound:          {"NOT_FOUND", "Resource not found", false, apperrors.ErrNotFound},
	KindValidation:        {"VALIDATION_ERROR", "The request was rejected by the provider", false, apperrors.ErrInvalidInput},
	KindRateLimited:       {"RATE_LIMITED", "Too many requests", true, apperrors.ErrRateLimited},
	KindServerError:       {"SERVER_ERROR", "Provider server error", true, apperrors.ErrUpstream},
	KindMaintenance:       {"MAINTENANCE", "Provider is under maintenance", true, apperrors.ErrServiceUnavail},
	KindTimeout:           {"TIMEOUT", "Request to the provider timed out", true, apperrors.ErrTimeout},
	KindConnectionFailure: {"CONNECTION_FAILURE", "Could not connect to the provider", true, apperrors.ErrUpstream},
}

// Code is the stable machine-readable code of the kind.
func (k Kind) Code() string {
	if info, ok := kinds[k]; ok {
		return info.code
	}
	return UnknownErrorCode
}

func (k Kind) String() string { return k.Code() }

// Retryable reports whether a failure of this kind may succeed when resent.
func (k Kind) Retryable() bool {
	return kinds[k].retryable
}

// Error is the single failure type leaving the provider client.
type Error struct {
	Kind Kind
	// Code is the kind's stable code.
	Code string
	// UpstreamCode is the code from the provider's error body, or UNKNOWN_ERROR.
	UpstreamCode string
	Message      string
	// StatusCode is 0 when no response was received.
	StatusCode  int
	FieldErrors map[string][]string
	// RetryAfter is the provider's Retry-After hint, if any.
	RetryAfter time.Duration
	// Err is the transport error behind a Timeout or ConnectionFailure.
	Err error
}

func newError(kind Kind, status int, upstreamCode, message string) *Error {
	if upstreamCode == "" {
		upstreamCode = UnknownErrorCode
	}
	if message == "" {
		message = kinds[kind].message
	}
	return &Error{
		Kind:         kind,
		Code:         kind.Code(),
		UpstreamCode: upstreamCode,
		Message:      message,
		StatusCode:   status,
	}
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s (%d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %s: %s", e.Code, e.Message)
}

// Unwrap exposes the shared sentinel for the kind and the transport cause.
func (e *Error) Unwrap() []error {
	errs := []error{kinds[e.Kind].sentinel}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Retryable reports whether the request may be resent.
func (e *Error) Retryable() bool {
	return e.Kind.Retryable()
}

// Fields flattens the field errors into one message per field.
func (e *Error) Fields() map[string]string {
	if len(e.FieldErrors) == 0 {
		return nil
	}
	out := make(map[string]string, len(e.FieldErrors))
	for field, msgs := range e.FieldErrors {
		out[field] = strings.Join(msgs, "; ")
	}
	return out
}

// errorBody is the provider's error payload.
type errorBody struct {
	Code    any                        `json:"code"`
	Message string                     `json:"message"`
	Errors  map[string]json.RawMessage `json:"errors"`
}

// Classify maps a non-2xx response to a failure. It never performs I/O.
func Classify(status int, body []byte) *Error {
	var parsed errorBody
	_ = json.Unmarshal(body, &parsed)

	e := newError(kindForStatus(status), status, upstreamCode(parsed.Code), strings.TrimSpace(parsed.Message))
	if e.Kind == KindValidation {
		e.FieldErrors = fieldErrors(parsed.Errors)
	}
	return e
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusServiceUnavailable:
		return KindMaintenance
	case httpclient.IsClientError(status):
		return KindValidation
	default:
		return KindServerError
	}
}

func upstreamCode(v any) string {
	switch c := v.(type) {
	case string:
		return strings.TrimSpace(c)
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	default:
		return ""
	}
}

// fieldErrors accepts both {"field": ["msg", ...]} and {"field": "msg"}.
func fieldErrors(raw map[string]json.RawMessage) map[string][]string {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string][]string, len(raw))
	for field, v := range raw {
		var list []string
		if err := json.Unmarshal(v, &list); err == nil {
			out[field] = list
			continue
		}
		var single string
		if err := json.Unmarshal(v, &single); err == nil {
			out[field] = []string{single}
		}
	}
	return out
}

// ClassifyTransport maps a failure that produced no response.
func ClassifyTransport(err error) *Error {
	var e *Error
	switch {
	case httpclient.IsCircuitOpen(err):
		e = newError(KindConnectionFailure, 0, "", "Provider circuit breaker is open")
	case isTimeout(err):
		e = newError(KindTimeout, 0, "", "")
	default:
		e = newError(KindConnectionFailure, 0, "", "")
	}
	e.Err = err
	return e
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// malformedResponse is reported when a 2xx body cannot be understood.
func malformedResponse(status int, err error) *Error {
	e := newError(KindServerError, status, "MALFORMED_RESPONSE", "Provider returned an unreadable response")
	e.Err = err
	return e
}

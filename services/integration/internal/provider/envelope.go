package provider

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/raqmix/kippis-possync/pkg/pagination"
)

// Envelope is the normalized result of every request. Error is set exactly
// when Success is false; Meta is set only on successful list responses.
type Envelope struct {
	Success    bool
	StatusCode int
	// Data is the raw "data" member of the response body.
	Data json.RawMessage
	// Records holds the elements of Data when it is an array.
	Records []json.RawMessage
	Meta    *pagination.Meta
	Links   *pagination.Links
	Error   *Error
}

// Failure wraps a classified error in an envelope.
func Failure(err *Error) *Envelope {
	return &Envelope{StatusCode: err.StatusCode, Error: err}
}

// Err returns the failure as an error, or nil for a successful envelope.
func (e *Envelope) Err() error {
	if e.Success || e.Error == nil {
		return nil
	}
	return e.Error
}

type listBody struct {
	Data  json.RawMessage   `json:"data"`
	Links *pagination.Links `json:"links"`
	Meta  *pagination.Meta  `json:"meta"`
}

// decodeSuccess parses a 2xx body into an envelope.
func decodeSuccess(status int, body []byte) *Envelope {
	env := &Envelope{Success: true, StatusCode: status}
	if len(bytes.TrimSpace(body)) == 0 {
		return env
	}

	var parsed listBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Failure(malformedResponse(status, err))
	}
	env.Data = parsed.Data

	if trimmed := bytes.TrimSpace(parsed.Data); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &env.Records); err != nil {
			return Failure(malformedResponse(status, err))
		}
		if env.Records == nil {
			env.Records = []json.RawMessage{}
		}
		if parsed.Meta != nil {
			// An empty page past the end may report current_page > last_page.
			if err := parsed.Meta.Validate(); err != nil && len(env.Records) > 0 {
				return Failure(malformedResponse(status, fmt.Errorf("pagination meta: %w", err)))
			}
			env.Meta = parsed.Meta
			env.Links = parsed.Links
		}
	}
	return env
}

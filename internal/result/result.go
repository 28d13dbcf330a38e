// Package result carries the outcome of an engine operation to the API
// layer and renders it in either of the two wire formats: the structured
// JSON schema or the legacy {SDCERR, InfoMsg} envelope.
package result

import (
	"errors"
	"net/http"

	"grimm.is/halyard/internal/fault"
	"grimm.is/halyard/internal/settings"
)

// Legacy envelope status codes.
const (
	SDCSuccess = 0
	SDCFail    = 1
)

// Result is a tagged success or failure with an optional payload.
type Result struct {
	// Err is nil on success. Errors whose kind is a no-op still count as
	// success.
	Err error
	// Msg is the human readable summary. On failure an empty Msg falls back
	// to Err's text.
	Msg string
	// Payload keys are merged into the rendered body.
	Payload map[string]any
}

// OK returns a successful result.
func OK(msg string, payload map[string]any) Result {
	return Result{Msg: msg, Payload: payload}
}

// Fail returns a failed result. A nil err yields a successful result.
func Fail(err error) Result {
	return Result{Err: err}
}

// Failf returns a failed result with an explicit message.
func Failf(err error, msg string) Result {
	return Result{Err: err, Msg: msg}
}

// With adds a payload key and returns r.
func (r Result) With(key string, value any) Result {
	payload := make(map[string]any, len(r.Payload)+1)
	for k, v := range r.Payload {
		payload[k] = v
	}
	payload[key] = value
	r.Payload = payload
	return r
}

// Success reports whether the operation took effect or had nothing to do.
func (r Result) Success() bool {
	return r.Err == nil || fault.KindOf(r.Err).Noop()
}

// Message returns Msg, or the error text when Msg is empty.
func (r Result) Message() string {
	if r.Msg != "" || r.Err == nil {
		return r.Msg
	}
	return r.Err.Error()
}

// HTTPStatus maps the outcome to a status code for the structured API.
func (r Result) HTTPStatus() int {
	if r.Success() {
		return http.StatusOK
	}
	return StatusFor(r.Err)
}

// StatusFor maps an error kind to an HTTP status code.
func StatusFor(err error) int {
	switch fault.KindOf(err) {
	case fault.Validation:
		return http.StatusBadRequest
	case fault.NotFound:
		return http.StatusNotFound
	case fault.Conflict:
		return http.StatusConflict
	case fault.Reserved:
		return http.StatusForbidden
	case fault.AlreadyActive, fault.AlreadyInactive:
		return http.StatusOK
	case fault.BackendUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Legacy renders the {SDCERR, InfoMsg} envelope with the payload keys
// alongside. Payload keys never override the envelope fields.
func (r Result) Legacy() map[string]any {
	out := make(map[string]any, len(r.Payload)+2)
	for k, v := range r.Payload {
		out[k] = v
	}
	out["SDCERR"] = SDCSuccess
	if !r.Success() {
		out["SDCERR"] = SDCFail
	}
	out["InfoMsg"] = r.Message()
	return out
}

// ErrorBody is the structured error response.
type ErrorBody struct {
	Error    string                    `json:"error"`
	Kind     string                    `json:"kind"`
	Details  string                    `json:"details,omitempty"`
	Fields   settings.ValidationErrors `json:"fields,omitempty"`
	Restored *bool                     `json:"restored,omitempty"`
}

// restorer is implemented by replace failures that know whether the
// previous profile came back.
type restorer interface {
	WasRestored() bool
}

// Structured renders the body for the structured API. Successful results
// render their payload, or {"message": Msg} when there is none.
func (r Result) Structured() any {
	if r.Success() {
		if r.Payload != nil {
			return r.Payload
		}
		return map[string]any{"message": r.Message()}
	}

	body := ErrorBody{
		Error: r.Message(),
		Kind:  fault.KindOf(r.Err).String(),
	}
	if r.Msg != "" {
		body.Details = r.Err.Error()
	}
	var verrs settings.ValidationErrors
	if errors.As(r.Err, &verrs) {
		body.Fields = verrs
	}
	var rs restorer
	if errors.As(r.Err, &rs) {
		restored := rs.WasRestored()
		body.Restored = &restored
	}
	var cf *fault.CompensationFailure
	if errors.As(r.Err, &cf) {
		restored := false
		body.Restored = &restored
	}
	return body
}

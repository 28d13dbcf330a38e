package result

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/halyard/internal/fault"
	"grimm.is/halyard/internal/settings"
)

type restoreErr struct{ restored bool }

func (e restoreErr) Error() string     { return "add failed" }
func (e restoreErr) WasRestored() bool { return e.restored }

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind fault.Kind
		want int
	}{
		{fault.Validation, http.StatusBadRequest},
		{fault.NotFound, http.StatusNotFound},
		{fault.Conflict, http.StatusConflict},
		{fault.Reserved, http.StatusForbidden},
		{fault.AlreadyActive, http.StatusOK},
		{fault.AlreadyInactive, http.StatusOK},
		{fault.BackendUnavailable, http.StatusServiceUnavailable},
		{fault.Compensation, http.StatusInternalServerError},
		{fault.Internal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			err := fault.New(tt.kind, "op", "x", "failed")
			assert.Equal(t, tt.want, StatusFor(err))
			assert.Equal(t, tt.want, Fail(err).HTTPStatus())
		})
	}
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("plain")))
}

func TestNoopIsSuccess(t *testing.T) {
	r := Fail(fault.New(fault.AlreadyActive, "activate", "office", "already active"))
	assert.True(t, r.Success())
	assert.Equal(t, http.StatusOK, r.HTTPStatus())
	assert.Equal(t, SDCSuccess, r.Legacy()["SDCERR"])
}

func TestLegacy(t *testing.T) {
	ok := OK("Connection Activated", nil)
	assert.Equal(t, map[string]any{"SDCERR": 0, "InfoMsg": "Connection Activated"}, ok.Legacy())

	withPayload := OK("", map[string]any{"count": 2, "SDCERR": 7})
	body := withPayload.Legacy()
	assert.Equal(t, 2, body["count"])
	assert.Equal(t, 0, body["SDCERR"])
	assert.Equal(t, "", body["InfoMsg"])

	failed := Failf(fault.New(fault.NotFound, "delete", "x", "no such profile"), "Unable to delete connection")
	body = failed.Legacy()
	assert.Equal(t, SDCFail, body["SDCERR"])
	assert.Equal(t, "Unable to delete connection", body["InfoMsg"])

	bare := Fail(errors.New("bus gone"))
	assert.Equal(t, "bus gone", bare.Legacy()["InfoMsg"])
}

func TestWith(t *testing.T) {
	base := OK("done", map[string]any{"a": 1})
	extended := base.With("b", 2)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, extended.Payload)
	assert.Equal(t, map[string]any{"a": 1}, base.Payload)
}

func TestStructuredSuccess(t *testing.T) {
	assert.Equal(t, map[string]any{"message": "Scan requested"}, OK("Scan requested", nil).Structured())
	assert.Equal(t, map[string]any{"count": 0}, OK("", map[string]any{"count": 0}).Structured())
}

func TestStructuredValidationFields(t *testing.T) {
	var errs settings.ValidationErrors
	errs.Add("ipv4.method", "unknown value %q", "bogus")
	errs.Add("connection.id", "required")

	body, ok := Fail(fault.Wrap(fault.Validation, "create", "", errs)).Structured().(ErrorBody)
	require.True(t, ok)
	assert.Equal(t, "validation", body.Kind)
	assert.Len(t, body.Fields, 2)
	assert.Nil(t, body.Restored)

	raw, err := json.Marshal(body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"field":"ipv4.method"`)
}

func TestStructuredRestore(t *testing.T) {
	body := Failf(fault.Wrap(fault.Internal, "replace", "guest", restoreErr{restored: true}), "replace failed").Structured().(ErrorBody)
	require.NotNil(t, body.Restored)
	assert.True(t, *body.Restored)
	assert.Equal(t, "replace failed", body.Error)
	assert.Contains(t, body.Details, "add failed")

	cf := &fault.CompensationFailure{Identity: "guest", Cause: errors.New("add"), RestoreErr: errors.New("restore")}
	body = Fail(cf).Structured().(ErrorBody)
	require.NotNil(t, body.Restored)
	assert.False(t, *body.Restored)
	assert.Equal(t, "compensation_failure", body.Kind)
}

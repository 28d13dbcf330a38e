package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"grimm.is/halyard/internal/fault"
	"grimm.is/halyard/internal/result"
	"grimm.is/halyard/internal/settings"
	"grimm.is/halyard/internal/validation"
)

// WriteJSON sends a JSON success response
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeResult renders res in the structured schema.
func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, res result.Result) {
	s.logFailure(r, res)
	WriteJSON(w, res.HTTPStatus(), res.Structured())
}

// writeLegacy renders res in the {SDCERR, InfoMsg} envelope. Legacy
// endpoints always answer 200.
func (s *Server) writeLegacy(w http.ResponseWriter, r *http.Request, res result.Result) {
	s.logFailure(r, res)
	WriteJSON(w, http.StatusOK, res.Legacy())
}

func (s *Server) logFailure(r *http.Request, res result.Result) {
	if res.Success() {
		return
	}
	kind := fault.KindOf(res.Err)
	switch kind {
	case fault.Internal, fault.Compensation, fault.BackendUnavailable:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "kind", kind.String(), "error", res.Err)
	default:
		s.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "kind", kind.String(), "error", res.Err)
	}
}

// decodeBody decodes a JSON request body into v. Failures are classified as
// validation errors.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fault.New(fault.Validation, "decode", "", "request body is empty")
		}
		return fault.Wrapf(fault.Validation, "decode", "", err, "invalid JSON body")
	}
	return nil
}

// decodeDocument reads a profile document from the request body.
func decodeDocument(r *http.Request) (settings.Document, error) {
	var body map[string]any
	if err := decodeBody(r, &body); err != nil {
		return nil, err
	}
	doc, err := settings.DocumentFromMap(body)
	if err != nil {
		return nil, fault.Wrap(fault.Validation, "decode", "", err)
	}
	return doc, nil
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
		_ = v.RegisterValidation("ifname", func(fl validator.FieldLevel) bool {
			return validation.ValidateInterfaceName(fl.Field().String()) == nil
		})
		validate = v
	})
	return validate
}

// validateRequest runs struct validation and reports every failing field.
func validateRequest(op string, req any) error {
	err := requestValidator().Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fault.Wrap(fault.Validation, op, "", err)
	}
	var errs settings.ValidationErrors
	for _, fe := range verrs {
		errs.Add(fe.Field(), "%s", tagMessage(fe))
	}
	return fault.Wrap(fault.Validation, op, "", errs)
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "eq", "oneof":
		return fmt.Sprintf("must be %s", strings.ReplaceAll(fe.Param(), " ", " or "))
	case "ifname":
		return fmt.Sprintf("invalid interface name %q", fe.Value())
	}
	return fmt.Sprintf("failed %s validation", fe.Tag())
}

// parseFlag accepts the boolean spellings of the legacy query parameters.
// An absent value yields def.
func parseFlag(raw string, def bool) (bool, error) {
	if raw == "" {
		return def, nil
	}
	switch strings.ToLower(raw) {
	case "y", "yes", "t", "true", "on", "1":
		return true, nil
	case "n", "no", "f", "false", "off", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", raw)
}

package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"grimm.is/halyard/internal/validation"
)

// Severity levels for validation findings.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field    string
	Message  string
	Severity string // "error" (default), "warning"
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any findings with error severity.
func (e ValidationErrors) HasErrors() bool {
	return len(e.Errors()) > 0
}

// Errors drops warnings.
func (e ValidationErrors) Errors() ValidationErrors {
	var out ValidationErrors
	for _, v := range e {
		if v.Severity != SeverityWarning {
			out = append(out, v)
		}
	}
	return out
}

// Warnings returns only warnings.
func (e ValidationErrors) Warnings() ValidationErrors {
	var out ValidationErrors
	for _, v := range e {
		if v.Severity == SeverityWarning {
			out = append(out, v)
		}
	}
	return out
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		// Report HCL key names rather than Go field names.
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("hcl"), ",")
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
		_ = v.RegisterValidation("ifname", func(fl validator.FieldLevel) bool {
			return validation.ValidateInterfaceName(fl.Field().String()) == nil
		})
		_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
			d, err := time.ParseDuration(fl.Field().String())
			return err == nil && d > 0
		})
		validate = v
	})
	return validate
}

// Validate validates the entire configuration.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors

	errs = append(errs, c.validateStruct()...)
	errs = append(errs, c.validatePaths()...)
	errs = append(errs, c.validateDevices()...)

	return errs
}

func (c *Config) validateStruct() ValidationErrors {
	var errs ValidationErrors

	err := structValidator().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return ValidationErrors{{Field: "config", Message: err.Error(), Severity: SeverityError}}
	}
	for _, fe := range verrs {
		errs = append(errs, ValidationError{
			Field:    fieldPath(fe.Namespace()),
			Message:  tagMessage(fe),
			Severity: SeverityError,
		})
	}
	return errs
}

// fieldPath turns "Config.wifi.interface" into "wifi.interface".
func fieldPath(ns string) string {
	_, rest, ok := strings.Cut(ns, ".")
	if !ok {
		return ns
	}
	return rest
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "eq":
		return fmt.Sprintf("unsupported value %v (expected %s)", fe.Value(), fe.Param())
	case "hostname_port":
		return fmt.Sprintf("invalid listen address %q (expected host:port)", fe.Value())
	case "ifname":
		return fmt.Sprintf("invalid interface name %q", fe.Value())
	case "duration":
		return fmt.Sprintf("invalid duration %q", fe.Value())
	case "gte", "lte":
		return fmt.Sprintf("must be %s %s", map[string]string{"gte": ">=", "lte": "<="}[fe.Tag()], fe.Param())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

func (c *Config) validatePaths() ValidationErrors {
	var errs ValidationErrors

	if c.CertDir != "" && !filepath.IsAbs(c.CertDir) {
		errs = append(errs, ValidationError{
			Field:    "cert_dir",
			Message:  fmt.Sprintf("must be an absolute path: %s", c.CertDir),
			Severity: SeverityError,
		})
	}
	if c.Backend == BackendDBus && c.StateDB == "" {
		errs = append(errs, ValidationError{
			Field:    "state_db",
			Message:  "no replace journal configured; interrupted replaces cannot be recovered",
			Severity: SeverityWarning,
		})
	}
	if c.Wifi != nil && c.Wifi.IWPath != "" && !filepath.IsAbs(c.Wifi.IWPath) {
		errs = append(errs, ValidationError{
			Field:    "wifi.iw_path",
			Message:  fmt.Sprintf("must be an absolute path: %s", c.Wifi.IWPath),
			Severity: SeverityError,
		})
	}
	return errs
}

func (c *Config) validateDevices() ValidationErrors {
	var errs ValidationErrors

	if c.Wifi != nil && c.Wifi.Interface != "" && c.Wifi.Interface == c.Wifi.VirtualInterface {
		errs = append(errs, ValidationError{
			Field:    "wifi.virtual_interface",
			Message:  fmt.Sprintf("must differ from wifi.interface (%s)", c.Wifi.Interface),
			Severity: SeverityError,
		})
	}

	for _, name := range c.ManagedSoftwareDevices {
		if c.IsUnmanaged(name) {
			errs = append(errs, ValidationError{
				Field:    "managed_software_devices",
				Message:  fmt.Sprintf("%s is also listed in unmanaged_devices and will be hidden", name),
				Severity: SeverityWarning,
			})
		}
	}

	seen := make(map[string]bool)
	for _, name := range c.ReservedProfiles {
		if name == "" {
			errs = append(errs, ValidationError{
				Field:    "reserved_profiles",
				Message:  "empty profile identity",
				Severity: SeverityError,
			})
			continue
		}
		if seen[name] {
			errs = append(errs, ValidationError{
				Field:    "reserved_profiles",
				Message:  fmt.Sprintf("duplicate entry %s", name),
				Severity: SeverityWarning,
			})
		}
		seen[name] = true
	}
	return errs
}

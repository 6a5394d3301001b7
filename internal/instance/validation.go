package instance

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MinInstanceNameLength is the shortest accepted instance name
	MinInstanceNameLength = 3

	// MinPhoneNumberLength is the shortest accepted phone number (country + area code + line)
	MinPhoneNumberLength = 10
)

// Field names used in FieldError
const (
	FieldInstanceName = "instanceName"
	FieldPhoneNumber  = "phoneNumber"
)

var (
	instanceNamePattern = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
	phoneNumberPattern  = regexp.MustCompile(`^\d+$`)
)

// FieldError is a validation failure attached to a single form field.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every field failure of a draft.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.Error()
	}
	return "invalid instance: " + strings.Join(parts, "; ")
}

// For returns the message for a field, or "" when the field is valid.
func (v ValidationErrors) For(field string) string {
	for _, e := range v {
		if e.Field == field {
			return e.Message
		}
	}
	return ""
}

// ValidateInstanceName checks the name used as the remote primary key.
// Only ASCII letters and digits, at least three of them.
func ValidateInstanceName(name string) error {
	if utf8.RuneCountInString(name) < MinInstanceNameLength {
		return FieldError{Field: FieldInstanceName, Message: fmt.Sprintf("name must be at least %d characters", MinInstanceNameLength)}
	}
	if !instanceNamePattern.MatchString(name) {
		return FieldError{Field: FieldInstanceName, Message: "name cannot contain spaces or accents"}
	}
	return nil
}

// ValidatePhoneNumber checks the WhatsApp number, digits only with area code.
func ValidatePhoneNumber(number string) error {
	if utf8.RuneCountInString(number) < MinPhoneNumberLength {
		return FieldError{Field: FieldPhoneNumber, Message: "enter a valid number including area code"}
	}
	if !phoneNumberPattern.MatchString(number) {
		return FieldError{Field: FieldPhoneNumber, Message: "only digits are allowed"}
	}
	return nil
}

// Validate runs every field check. It returns nil or a ValidationErrors.
func (d Draft) Validate() error {
	var errs ValidationErrors

	if err := ValidateInstanceName(d.InstanceName); err != nil {
		errs = append(errs, err.(FieldError))
	}
	if err := ValidatePhoneNumber(d.PhoneNumber); err != nil {
		errs = append(errs, err.(FieldError))
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

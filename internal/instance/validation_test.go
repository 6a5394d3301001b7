package instance

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateInstanceName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"Valid: lowercase with digits", "atendimento01", false},
		{"Valid: exactly three chars", "abc", false},
		{"Valid: mixed case", "SupportBR", false},
		{"Valid: digits only", "123", false},
		{"Invalid: empty", "", true},
		{"Invalid: too short", "ab", true},
		{"Invalid: contains space", "my instance", true},
		{"Invalid: accented character", "atenção", true},
		{"Invalid: hyphen", "sales-01", true},
		{"Invalid: underscore", "sales_01", true},
		{"Invalid: trailing newline", "sales01\n", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInstanceName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateInstanceName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil {
				var fe FieldError
				if !errors.As(err, &fe) || fe.Field != FieldInstanceName {
					t.Errorf("expected FieldError for %s, got %T: %v", FieldInstanceName, err, err)
				}
			}
		})
	}
}

func TestValidatePhoneNumber(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"Valid: BR mobile", "5511999999999", false},
		{"Valid: exactly ten digits", "1234567890", false},
		{"Invalid: nine digits", "123456789", true},
		{"Invalid: plus prefix", "+5511999999999", true},
		{"Invalid: formatted", "(11) 99999-9999", true},
		{"Invalid: letters", "55119999abcd", true},
		{"Invalid: empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePhoneNumber(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePhoneNumber(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestDraftValidate(t *testing.T) {
	t.Run("valid draft", func(t *testing.T) {
		d := Draft{InstanceName: "atendimento01", PhoneNumber: "5511999999999"}
		if err := d.Validate(); err != nil {
			t.Fatalf("Validate() = %v, want nil", err)
		}
	})

	t.Run("both fields invalid", func(t *testing.T) {
		d := Draft{InstanceName: "ab", PhoneNumber: "12ab"}
		err := d.Validate()

		var verrs ValidationErrors
		if !errors.As(err, &verrs) {
			t.Fatalf("Validate() error type = %T, want ValidationErrors", err)
		}
		if len(verrs) != 2 {
			t.Fatalf("len(errors) = %d, want 2", len(verrs))
		}
		if verrs.For(FieldInstanceName) == "" {
			t.Error("missing instanceName message")
		}
		if verrs.For(FieldPhoneNumber) == "" {
			t.Error("missing phoneNumber message")
		}
		if !strings.HasPrefix(err.Error(), "invalid instance:") {
			t.Errorf("Error() = %q", err.Error())
		}
	})

	t.Run("only phone invalid", func(t *testing.T) {
		d := Draft{InstanceName: "vendas", PhoneNumber: "119999"}
		var verrs ValidationErrors
		if !errors.As(d.Validate(), &verrs) {
			t.Fatal("expected ValidationErrors")
		}
		if verrs.For(FieldInstanceName) != "" {
			t.Errorf("instanceName should be valid, got %q", verrs.For(FieldInstanceName))
		}
		if verrs.For(FieldPhoneNumber) == "" {
			t.Error("phoneNumber should be invalid")
		}
	})
}

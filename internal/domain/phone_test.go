package domain

import (
	"errors"
	"testing"
)

func TestNormalizePhone(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		country string
		want    Address
		wantErr bool
	}{
		{name: "local number with decimal artifact", raw: "3001234567.0", country: "+57", want: "+573001234567"},
		{name: "already canonical", raw: "+14155552671", country: "+57", want: "+14155552671"},
		{name: "surrounding whitespace", raw: "  3001234567 ", country: "+57", want: "+573001234567"},
		{name: "punctuation removed", raw: "(300) 123-4567", country: "+57", want: "+573001234567"},
		{name: "plus before digits is leading", raw: "(+57) 300 123 4567", country: "+1", want: "+573001234567"},
		{name: "plus after digits is dropped", raw: "300+1234567", country: "+57", want: "+573001234567"},
		{name: "country code without plus", raw: "3001234567", country: "57", want: "+573001234567"},
		{name: "multiple zero decimals", raw: "3001234567.00", country: "+57", want: "+573001234567"},
		{name: "any run of zero decimals", raw: "555.000", country: "+57", want: "+57555"},
		{name: "non zero decimal kept as digits", raw: "300.5", country: "+57", want: "+573005"},
		{name: "no digits", raw: "n/a", country: "+57", wantErr: true},
		{name: "empty", raw: "", country: "+57", wantErr: true},
		{name: "only plus", raw: "+", country: "+57", wantErr: true},
		{name: "invalid default country", raw: "3001234567", country: "+", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := NormalizePhone(tt.raw, tt.country)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPhone) {
					t.Fatalf("NormalizePhone() error = %v, want ErrInvalidPhone", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizePhone() unexpected error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("NormalizePhone() = %s, want %s", got, tt.want)
			}
			if !got.IsCanonical() {
				t.Fatalf("NormalizePhone() = %s, not canonical", got)
			}
		})
	}
}

func TestNormalizePhoneIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"3001234567.0",
		"+14155552671",
		" 300 123 4567 ",
		"(+57) 300-123-4567",
		"0057 300 1234567",
		"12.0",
		"+1 (415) 555-2671.0",
	}
	countries := []string{"+57", "1", "+351"}

	for _, raw := range inputs {
		for _, country := range countries {
			first, err := NormalizePhone(raw, country)
			if err != nil {
				t.Fatalf("NormalizePhone(%q, %q) unexpected error = %v", raw, country, err)
			}
			second, err := NormalizePhone(first.String(), country)
			if err != nil {
				t.Fatalf("NormalizePhone(%q, %q) second pass error = %v", first, country, err)
			}
			if first != second {
				t.Fatalf("NormalizePhone not idempotent for %q/%q: %s then %s", raw, country, first, second)
			}
		}
	}
}

func TestAddressDigits(t *testing.T) {
	t.Parallel()

	if got := Address("+573001234567").Digits(); got != "573001234567" {
		t.Fatalf("Digits() = %s, want 573001234567", got)
	}
	if Address("573001234567").IsCanonical() {
		t.Fatal("address without plus should not be canonical")
	}
	if Address("+57 300").IsCanonical() {
		t.Fatal("address with space should not be canonical")
	}
}

func TestNormalizeCountryCode(t *testing.T) {
	t.Parallel()

	got, err := NormalizeCountryCode(" 57 ")
	if err != nil {
		t.Fatalf("NormalizeCountryCode() unexpected error = %v", err)
	}
	if got != "+57" {
		t.Fatalf("NormalizeCountryCode() = %s, want +57", got)
	}

	if _, err := NormalizeCountryCode("abc"); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("NormalizeCountryCode() error = %v, want ErrConfiguration", err)
	}
}

package domain

import (
	"fmt"
	"strings"
)

// PhoneFieldName is the canonical name of the phone-bearing column.
const PhoneFieldName = "TELEFONO"

// phoneFieldHints are substring matches tried in order when no column is
// named exactly PhoneFieldName.
var phoneFieldHints = []string{"TELEFONO", "PHONE", "TEL"}

// Recipient is one row of a campaign: upper-cased field names in source
// order mapped to string values. It is immutable once built.
type Recipient struct {
	keys   []string
	values map[string]string
}

// NewRecipient builds a Recipient from parallel key/value slices. Keys are
// trimmed and upper-cased; missing values are empty strings. A repeated key
// keeps its first position and its last value.
func NewRecipient(keys []string, values []string) Recipient {
	r := Recipient{
		keys:   make([]string, 0, len(keys)),
		values: make(map[string]string, len(keys)),
	}
	for i, raw := range keys {
		key := NormalizeFieldName(raw)
		if key == "" {
			continue
		}
		value := ""
		if i < len(values) {
			value = values[i]
		}
		if _, seen := r.values[key]; !seen {
			r.keys = append(r.keys, key)
		}
		r.values[key] = value
	}
	return r
}

// NewRecipientFromMap builds a Recipient with the given key order.
func NewRecipientFromMap(order []string, fields map[string]string) Recipient {
	values := make([]string, len(order))
	for i, key := range order {
		values[i] = fields[key]
	}
	return NewRecipient(order, values)
}

// NormalizeFieldName upper-cases and trims a column header.
func NormalizeFieldName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// Keys returns the field names in source order.
func (r Recipient) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Get returns the value of a field; name is matched case-insensitively.
func (r Recipient) Get(name string) (string, bool) {
	value, ok := r.values[NormalizeFieldName(name)]
	return value, ok
}

// Len returns the number of fields.
func (r Recipient) Len() int { return len(r.keys) }

// IsBlank reports whether every field value is empty.
func (r Recipient) IsBlank() bool {
	for _, v := range r.values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// PhoneField returns the name of the phone-bearing field.
func (r Recipient) PhoneField() (string, bool) {
	return FindPhoneField(r.keys)
}

// Phone returns the raw phone value of the record.
func (r Recipient) Phone() (string, error) {
	field, ok := r.PhoneField()
	if !ok {
		return "", fmt.Errorf("%w: record has no phone field", ErrInvalidPhone)
	}
	return r.values[field], nil
}

// FindPhoneField resolves the phone column among keys: an exact
// PhoneFieldName match first, then the first key containing each hint in
// turn.
func FindPhoneField(keys []string) (string, bool) {
	for _, key := range keys {
		if NormalizeFieldName(key) == PhoneFieldName {
			return PhoneFieldName, true
		}
	}
	for _, hint := range phoneFieldHints {
		for _, key := range keys {
			normalized := NormalizeFieldName(key)
			if strings.Contains(normalized, hint) {
				return normalized, true
			}
		}
	}
	return "", false
}

// Package validate implements per-field validation rules for registration
// data. Rules are pure: they take a raw string and return either a
// normalized value or a user-facing rejection reason, with no session or
// network dependency.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DateLayout is the canonical storage format for dates.
const DateLayout = "2006-01-02"

var (
	emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	phonePattern = regexp.MustCompile(`^\+?[1-9][0-9]{1,14}$`)

	// Accepted input layouts, tried in order. The day-first variant comes
	// before month-first so ambiguous dates resolve the same way every
	// time. Dashes are reserved for the ISO layout.
	dateLayouts = []string{
		"2006-01-02",
		"02/01/2006",
		"01/02/2006",
	}

	minDateOfBirth = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
)

// FieldError is a field-local validation rejection with a reason suitable
// for showing to the user verbatim.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func reject(field, reason string) (string, error) {
	return "", &FieldError{Field: field, Reason: reason}
}

// Field validates a raw value against the rule for the named field and
// returns the normalized value on success.
func Field(field, raw string) (string, error) {
	switch field {
	case "full_name":
		return FullName(raw)
	case "email":
		return Email(raw)
	case "phone_number":
		return PhoneNumber(raw)
	case "date_of_birth":
		return DateOfBirth(raw)
	case "address":
		return Address(raw)
	default:
		return "", fmt.Errorf("no validation rule for field %q", field)
	}
}

// FullName requires a non-empty value after trimming; no shape is
// imposed beyond that.
func FullName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return reject("full_name", "name cannot be empty")
	}
	return name, nil
}

// Email checks shape only; uniqueness is a persistence concern surfaced
// at dispatch time. The accepted value is lowercased so lookups are
// case-insensitive.
func Email(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if !emailPattern.MatchString(email) {
		return reject("email", "that doesn't look like a valid email address (e.g. name@example.com)")
	}
	return email, nil
}

// PhoneNumber accepts E.164-compatible numbers: optional leading +,
// 2-15 digits, no leading zero. Common separators are stripped before
// matching and the result is normalized to +<digits>.
func PhoneNumber(raw string) (string, error) {
	phone := strings.TrimSpace(raw)
	for _, sep := range []string{" ", "-", "(", ")", "."} {
		phone = strings.ReplaceAll(phone, sep, "")
	}
	if !phonePattern.MatchString(phone) {
		return reject("phone_number", "invalid phone number, use international format (e.g. +1234567890)")
	}
	if !strings.HasPrefix(phone, "+") {
		phone = "+" + phone
	}
	return phone, nil
}

// DateOfBirth parses the accepted layouts and enforces the
// 1900-01-01 .. today range. The normalized value is YYYY-MM-DD.
func DateOfBirth(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	var parsed time.Time
	ok := false
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			parsed = t
			ok = true
			break
		}
	}
	if !ok {
		return reject("date_of_birth", "invalid date format, use YYYY-MM-DD, DD/MM/YYYY or MM/DD/YYYY")
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	if parsed.Before(minDateOfBirth) {
		return reject("date_of_birth", "date of birth must be on or after 1900-01-01")
	}
	if parsed.After(today) {
		return reject("date_of_birth", "date of birth cannot be in the future")
	}
	return parsed.Format(DateLayout), nil
}

// Address requires a non-empty value after trimming.
func Address(raw string) (string, error) {
	addr := strings.TrimSpace(raw)
	if addr == "" {
		return reject("address", "address cannot be empty")
	}
	return addr, nil
}

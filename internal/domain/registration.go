// Package domain contains core domain types for the registration assistant.
package domain

import (
	"time"
)

// Registration is the persisted user registration record.
type Registration struct {
	ID          int64     `json:"id"`
	FullName    string    `json:"full_name"`
	Email       string    `json:"email"`
	PhoneNumber string    `json:"phone_number"`
	DateOfBirth time.Time `json:"date_of_birth"`
	Address     string    `json:"address"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Field names used across collection, validation and persistence.
const (
	FieldFullName    = "full_name"
	FieldEmail       = "email"
	FieldPhoneNumber = "phone_number"
	FieldDateOfBirth = "date_of_birth"
	FieldAddress     = "address"
)

// RequiredFields lists every field a new registration must supply, in
// collection order.
var RequiredFields = []string{
	FieldFullName,
	FieldEmail,
	FieldPhoneNumber,
	FieldDateOfBirth,
	FieldAddress,
}

// UpdatableFields lists the fields an existing registration may change.
// Same set as RequiredFields today, kept separate so the two can diverge.
var UpdatableFields = []string{
	FieldFullName,
	FieldEmail,
	FieldPhoneNumber,
	FieldDateOfBirth,
	FieldAddress,
}

// FieldLabel returns the human-readable prompt label for a field name.
func FieldLabel(field string) string {
	switch field {
	case FieldFullName:
		return "full name"
	case FieldEmail:
		return "email address"
	case FieldPhoneNumber:
		return "phone number"
	case FieldDateOfBirth:
		return "date of birth (YYYY-MM-DD)"
	case FieldAddress:
		return "full address"
	default:
		return field
	}
}

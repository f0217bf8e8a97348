// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/akulikov/regdesk/internal/domain"
)

// Repository defines the interface for persisting registrations and the
// append-only audit log. Implementations signal a missing record with an
// error matching errdefs.IsNotFound and a duplicate email with an error
// matching errdefs.IsConflict, distinctly from generic I/O failures.
type Repository interface {
	// CreateRegistration inserts a new registration and returns it with
	// its assigned id and timestamps.
	CreateRegistration(ctx context.Context, reg *domain.Registration) (*domain.Registration, error)

	// GetRegistration looks a registration up by email (case-insensitive).
	GetRegistration(ctx context.Context, email string) (*domain.Registration, error)

	// UpdateRegistration applies a single-field mutation to the record
	// identified by email and returns the updated record.
	UpdateRegistration(ctx context.Context, email, field, value string) (*domain.Registration, error)

	// DeleteRegistration removes the record identified by email and
	// returns the record as it was before deletion.
	DeleteRegistration(ctx context.Context, email string) (*domain.Registration, error)

	// ListRegistrations returns registrations newest-first.
	ListRegistrations(ctx context.Context, limit, offset int) ([]*domain.Registration, error)

	// AppendAudit appends one immutable audit entry.
	AppendAudit(ctx context.Context, entry *domain.AuditEntry) error

	// ListAudit returns audit entries newest-first.
	ListAudit(ctx context.Context, limit, offset int) ([]*domain.AuditEntry, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// Package crud executes validated dialogue commands against the
// registration repository and records an audit entry for every operation
// that succeeds.
package crud

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/containerd/errdefs"

	"github.com/akulikov/regdesk/internal/domain"
	"github.com/akulikov/regdesk/internal/store"
	"github.com/akulikov/regdesk/internal/validate"
)

// ErrorKind classifies a dispatch failure for the dialogue engine.
type ErrorKind string

const (
	ErrNone           ErrorKind = ""
	ErrNotFound       ErrorKind = "NOT_FOUND"
	ErrDuplicateEmail ErrorKind = "DUPLICATE_EMAIL"
	ErrUnavailable    ErrorKind = "UNAVAILABLE"
)

// Payload carries everything an operation needs: collected fields for
// CREATE, the target email for READ/UPDATE/DELETE, and the single field
// mutation for UPDATE.
type Payload struct {
	Fields      map[string]string
	Email       string
	UpdateField string
	UpdateValue string
}

// Outcome is the structured result of one dispatch.
type Outcome struct {
	Success      bool
	Registration *domain.Registration
	ErrorKind    ErrorKind
	Err          error
}

// Dispatcher maps intents onto repository calls.
type Dispatcher struct {
	repo   store.Repository
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher over the given repository.
func NewDispatcher(repo store.Repository, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{repo: repo, logger: logger}
}

// Dispatch executes one completed command. It is called exactly once per
// execution attempt, synchronously. A successful dispatch emits exactly
// one audit entry; a failed dispatch emits none.
func (d *Dispatcher) Dispatch(ctx context.Context, intent domain.Intent, p Payload) Outcome {
	switch intent {
	case domain.IntentCreate:
		return d.create(ctx, p)
	case domain.IntentRead:
		return d.read(ctx, p)
	case domain.IntentUpdate:
		return d.update(ctx, p)
	case domain.IntentDelete:
		return d.delete(ctx, p)
	default:
		return Outcome{ErrorKind: ErrUnavailable, Err: fmt.Errorf("intent %q is not dispatchable", intent)}
	}
}

func (d *Dispatcher) create(ctx context.Context, p Payload) Outcome {
	dob, err := time.Parse(validate.DateLayout, p.Fields[domain.FieldDateOfBirth])
	if err != nil {
		// Collected values are validated upstream; a bad date here is an
		// invariant violation, not user error.
		return Outcome{ErrorKind: ErrUnavailable, Err: fmt.Errorf("collected date_of_birth is not normalized: %w", err)}
	}

	reg := &domain.Registration{
		FullName:    p.Fields[domain.FieldFullName],
		Email:       p.Fields[domain.FieldEmail],
		PhoneNumber: p.Fields[domain.FieldPhoneNumber],
		DateOfBirth: dob,
		Address:     p.Fields[domain.FieldAddress],
	}

	created, err := d.repo.CreateRegistration(ctx, reg)
	if err != nil {
		return d.failure(domain.OpCreate, err)
	}

	d.audit(ctx, domain.OpCreate, &created.ID, map[string]any{"email": created.Email})
	return Outcome{Success: true, Registration: created}
}

func (d *Dispatcher) read(ctx context.Context, p Payload) Outcome {
	reg, err := d.repo.GetRegistration(ctx, p.Email)
	if err != nil {
		return d.failure(domain.OpRead, err)
	}

	d.audit(ctx, domain.OpRead, &reg.ID, map[string]any{"email": reg.Email})
	return Outcome{Success: true, Registration: reg}
}

func (d *Dispatcher) update(ctx context.Context, p Payload) Outcome {
	reg, err := d.repo.UpdateRegistration(ctx, p.Email, p.UpdateField, p.UpdateValue)
	if err != nil {
		return d.failure(domain.OpUpdate, err)
	}

	d.audit(ctx, domain.OpUpdate, &reg.ID, map[string]any{
		"email":         reg.Email,
		"updated_field": p.UpdateField,
	})
	return Outcome{Success: true, Registration: reg}
}

func (d *Dispatcher) delete(ctx context.Context, p Payload) Outcome {
	reg, err := d.repo.DeleteRegistration(ctx, p.Email)
	if err != nil {
		return d.failure(domain.OpDelete, err)
	}

	d.audit(ctx, domain.OpDelete, &reg.ID, map[string]any{"email": reg.Email})
	return Outcome{Success: true, Registration: reg}
}

func (d *Dispatcher) failure(op domain.Operation, err error) Outcome {
	kind := ErrUnavailable
	switch {
	case errdefs.IsNotFound(err):
		kind = ErrNotFound
	case errdefs.IsConflict(err):
		kind = ErrDuplicateEmail
	default:
		d.logger.Error("Dispatch failed", "operation", string(op), "error", err)
	}
	return Outcome{ErrorKind: kind, Err: err}
}

// audit appends the entry for a successful operation. Appends are retried
// inside the store; a residual failure is logged loudly but does not fail
// the operation the user already saw succeed.
func (d *Dispatcher) audit(ctx context.Context, op domain.Operation, regID *int64, details map[string]any) {
	payload, err := json.Marshal(details)
	if err != nil {
		payload = nil
	}
	if err := d.repo.AppendAudit(ctx, &domain.AuditEntry{
		RegistrationID: regID,
		Operation:      op,
		Details:        string(payload),
		PerformedAt:    time.Now(),
	}); err != nil {
		d.logger.Error("Failed to append audit entry", "operation", string(op), "error", err)
	}
}

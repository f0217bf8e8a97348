package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	_ "modernc.org/sqlite"

	"github.com/akulikov/regdesk/internal/domain"
	"github.com/akulikov/regdesk/internal/shared"
)

const dateLayout = "2006-01-02"

// registrationColumns maps updatable field names to their columns. Acts
// as a whitelist so a field name can never inject SQL.
var registrationColumns = map[string]string{
	domain.FieldFullName:    "full_name",
	domain.FieldEmail:       "email",
	domain.FieldPhoneNumber: "phone_number",
	domain.FieldDateOfBirth: "date_of_birth",
	domain.FieldAddress:     "address",
}

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS registrations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		full_name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		phone_number TEXT NOT NULL,
		date_of_birth TEXT NOT NULL,
		address TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		registration_id INTEGER,
		operation TEXT NOT NULL,
		details TEXT,
		performed_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_performed ON audit_log(performed_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateRegistration inserts a new registration. A duplicate email yields
// an errdefs.IsConflict error.
func (s *SQLiteStore) CreateRegistration(ctx context.Context, reg *domain.Registration) (*domain.Registration, error) {
	now := time.Now()
	email := strings.ToLower(reg.Email)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO registrations (full_name, email, phone_number, date_of_birth, address, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		reg.FullName, email, reg.PhoneNumber,
		reg.DateOfBirth.Format(dateLayout), reg.Address,
		now.Unix(), now.Unix(),
	)
	if err != nil {
		if shared.IsUniqueConstraintError(err) {
			return nil, fmt.Errorf("email %s is already registered: %w", email, errdefs.ErrConflict)
		}
		return nil, fmt.Errorf("insert registration: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("registration insert id: %w", err)
	}

	created := *reg
	created.ID = id
	created.Email = email
	created.CreatedAt = now
	created.UpdatedAt = now
	return &created, nil
}

// GetRegistration looks a registration up by email.
func (s *SQLiteStore) GetRegistration(ctx context.Context, email string) (*domain.Registration, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, full_name, email, phone_number, date_of_birth, address, created_at, updated_at
		FROM registrations WHERE email = ?`,
		strings.ToLower(email),
	)
	return scanRegistration(row, email)
}

// UpdateRegistration applies a single-field mutation by email.
func (s *SQLiteStore) UpdateRegistration(ctx context.Context, email, field, value string) (*domain.Registration, error) {
	column, ok := registrationColumns[field]
	if !ok {
		return nil, fmt.Errorf("unknown registration field %q", field)
	}
	if field == domain.FieldEmail {
		value = strings.ToLower(value)
	}

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE registrations SET %s = ?, updated_at = ? WHERE email = ?`, column),
		value, time.Now().Unix(), strings.ToLower(email),
	)
	if err != nil {
		if shared.IsUniqueConstraintError(err) {
			return nil, fmt.Errorf("email %s is already registered: %w", value, errdefs.ErrConflict)
		}
		return nil, fmt.Errorf("update registration: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update registration rows affected: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("no registration for email %s: %w", email, errdefs.ErrNotFound)
	}

	if field == domain.FieldEmail {
		email = value
	}
	return s.GetRegistration(ctx, email)
}

// DeleteRegistration removes the record by email and returns it as it was
// before deletion, so callers can audit what was removed.
func (s *SQLiteStore) DeleteRegistration(ctx context.Context, email string) (*domain.Registration, error) {
	reg, err := s.GetRegistration(ctx, email)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM registrations WHERE id = ?`, reg.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("delete registration: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("delete registration rows affected: %w", err)
	}
	// A concurrent delete can win between the lookup and the DELETE;
	// reporting success twice would double-audit one removal.
	if affected == 0 {
		return nil, fmt.Errorf("no registration for email %s: %w", email, errdefs.ErrNotFound)
	}
	return reg, nil
}

// ListRegistrations returns registrations newest-first.
func (s *SQLiteStore) ListRegistrations(ctx context.Context, limit, offset int) ([]*domain.Registration, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, full_name, email, phone_number, date_of_birth, address, created_at, updated_at
		FROM registrations ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var regs []*domain.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows, "")
		if err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registrations: %w", err)
	}
	return regs, nil
}

// AppendAudit appends one audit entry. Transient SQLITE_BUSY failures are
// retried with backoff so a slow reader cannot lose an audit record.
func (s *SQLiteStore) AppendAudit(ctx context.Context, entry *domain.AuditEntry) error {
	var regID sql.NullInt64
	if entry.RegistrationID != nil {
		regID = sql.NullInt64{Int64: *entry.RegistrationID, Valid: true}
	}
	performedAt := entry.PerformedAt
	if performedAt.IsZero() {
		performedAt = time.Now()
	}

	var err error
	delay := 50 * time.Millisecond
	for attempt := 0; attempt < 3; attempt++ {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO audit_log (registration_id, operation, details, performed_at)
			VALUES (?, ?, ?, ?)`,
			regID, string(entry.Operation), entry.Details, performedAt.Unix(),
		)
		if err == nil {
			return nil
		}
		if !shared.IsSQLiteConflictError(err) || ctx.Err() != nil {
			break
		}
		time.Sleep(delay)
		delay *= 2
	}
	return fmt.Errorf("append audit entry: %w", err)
}

// ListAudit returns audit entries newest-first.
func (s *SQLiteStore) ListAudit(ctx context.Context, limit, offset int) ([]*domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, registration_id, operation, details, performed_at
		FROM audit_log ORDER BY performed_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*domain.AuditEntry
	for rows.Next() {
		var entry domain.AuditEntry
		var regID sql.NullInt64
		var details sql.NullString
		var performedAt int64

		if err := rows.Scan(&entry.ID, &regID, &entry.Operation, &details, &performedAt); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		if regID.Valid {
			entry.RegistrationID = &regID.Int64
		}
		entry.Details = details.String
		entry.PerformedAt = time.Unix(performedAt, 0)
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row rowScanner, email string) (*domain.Registration, error) {
	var reg domain.Registration
	var dob string
	var createdAt, updatedAt int64

	err := row.Scan(
		&reg.ID, &reg.FullName, &reg.Email, &reg.PhoneNumber,
		&dob, &reg.Address, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no registration for email %s: %w", email, errdefs.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan registration row: %w", err)
	}

	reg.DateOfBirth, err = time.Parse(dateLayout, dob)
	if err != nil {
		return nil, fmt.Errorf("parse stored date_of_birth %q: %w", dob, err)
	}
	reg.CreatedAt = time.Unix(createdAt, 0)
	reg.UpdatedAt = time.Unix(updatedAt, 0)
	return &reg, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/seccin/internal/domain/model"
	"github.com/ericfisherdev/seccin/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SecretStore = (*SecretRepo)(nil)

// SecretRepo is the SQLite implementation of the SecretStore port interface.
type SecretRepo struct {
	db *DB
}

// NewSecretRepo creates a new SecretRepo backed by the given DB.
func NewSecretRepo(db *DB) *SecretRepo {
	return &SecretRepo{db: db}
}

// Set stores or replaces the secret for the given service. The row id and
// created_at of an existing service are preserved.
func (r *SecretRepo) Set(ctx context.Context, service, value string) error {
	const query = `
		INSERT INTO secrets (service, value, created_at, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(service) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP`

	_, err := r.db.Writer.ExecContext(ctx, query, service, value)
	if err != nil {
		return fmt.Errorf("set secret %q: %w", service, err)
	}
	return nil
}

// Get retrieves the secret for the exact service name.
func (r *SecretRepo) Get(ctx context.Context, service string) (model.Secret, error) {
	const query = `SELECT id, service, value, updated_at FROM secrets WHERE service = ?`

	secret, err := scanSecret(r.db.Reader.QueryRowContext(ctx, query, service))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Secret{}, fmt.Errorf("get secret %q: %w", service, driven.ErrSecretNotFound)
	}
	if err != nil {
		return model.Secret{}, fmt.Errorf("get secret %q: %w", service, err)
	}
	return secret, nil
}

// List returns all stored secrets ordered by service.
func (r *SecretRepo) List(ctx context.Context) ([]model.Secret, error) {
	const query = `SELECT id, service, value, updated_at FROM secrets ORDER BY service`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list secrets: %w", err)
	}
	defer rows.Close()

	var secrets []model.Secret
	for rows.Next() {
		secret, err := scanSecret(rows)
		if err != nil {
			return nil, fmt.Errorf("scan secret: %w", err)
		}
		secrets = append(secrets, secret)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate secrets: %w", err)
	}

	return secrets, nil
}

// Services returns all service names in ascending order.
func (r *SecretRepo) Services(ctx context.Context) ([]string, error) {
	const query = `SELECT service FROM secrets ORDER BY service`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	services := []string{}
	for rows.Next() {
		var service string
		if err := rows.Scan(&service); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		services = append(services, service)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate services: %w", err)
	}

	return services, nil
}

// Delete removes the secret for the given service.
func (r *SecretRepo) Delete(ctx context.Context, service string) error {
	const query = `DELETE FROM secrets WHERE service = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, service)
	if err != nil {
		return fmt.Errorf("delete secret %q: %w", service, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("delete secret %q: %w", service, driven.ErrSecretNotFound)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSecret(row rowScanner) (model.Secret, error) {
	var secret model.Secret
	var updatedAt string
	if err := row.Scan(&secret.ID, &secret.Service, &secret.Value, &updatedAt); err != nil {
		return model.Secret{}, err
	}

	var err error
	secret.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return model.Secret{}, fmt.Errorf("parse updated_at for secret %q: %w", secret.Service, err)
	}
	return secret, nil
}

// parseTime tries multiple SQLite datetime formats.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000",
		time.RFC3339,
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %q", s)
}

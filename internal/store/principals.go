// ABOUTME: Principal store methods for the credential side of the gateway
// ABOUTME: Covers creation, login/API-key lookup, partial updates, and usage counters

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const principalColumns = `
	id, username, email, password_hash, role,
	api_key, api_key_usage_count, api_key_limit,
	is_active, last_login_at, created_at, updated_at
`

// CreatePrincipal inserts a new principal. Email is stored lowercased so
// later lookups are case-insensitive. Returns ErrDuplicateIdentifier if the
// username or email is already taken.
func (s *SQLiteStore) CreatePrincipal(ctx context.Context, p *Principal) error {
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}

	query := `
		INSERT INTO principals (
			id, username, email, password_hash, role,
			api_key, api_key_usage_count, api_key_limit,
			is_active, last_login_at, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		p.ID,
		p.Username,
		strings.ToLower(p.Email),
		p.PasswordHash,
		p.Role,
		nullString(p.APIKey),
		p.APIKeyUsageCount,
		p.APIKeyLimit,
		p.IsActive,
		nullTime(p.LastLoginAt),
		formatTime(p.CreatedAt),
		formatTime(p.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateIdentifier
		}
		return fmt.Errorf("inserting principal: %w", err)
	}

	s.logger.Info("created principal", "id", p.ID, "username", p.Username, "role", p.Role)
	return nil
}

// GetPrincipal retrieves a principal by ID.
func (s *SQLiteStore) GetPrincipal(ctx context.Context, id string) (*Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE id = ?`
	return s.queryPrincipal(ctx, query, id)
}

// GetPrincipalByLogin retrieves a principal by username or email.
// Email matching is case-insensitive; usernames match exactly.
func (s *SQLiteStore) GetPrincipalByLogin(ctx context.Context, usernameOrEmail string) (*Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE username = ? OR email = ?`
	return s.queryPrincipal(ctx, query, usernameOrEmail, strings.ToLower(usernameOrEmail))
}

// GetPrincipalByAPIKey retrieves an active principal by its API key.
// Unknown keys and keys belonging to deactivated principals both return
// ErrPrincipalNotFound, so the caller cannot tell the cases apart.
func (s *SQLiteStore) GetPrincipalByAPIKey(ctx context.Context, key string) (*Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE api_key = ? AND is_active = 1`
	return s.queryPrincipal(ctx, query, key)
}

// UpdatePrincipal applies a partial update and returns the updated record.
// Nil fields in upd are left unchanged. Password hashes must be computed by
// the caller; plaintext never reaches the store.
func (s *SQLiteStore) UpdatePrincipal(ctx context.Context, id string, upd PrincipalUpdate) (*Principal, error) {
	sets := []string{"updated_at = ?"}
	args := []any{formatTime(time.Now())}

	if upd.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, strings.ToLower(*upd.Email))
	}
	if upd.PasswordHash != nil {
		sets = append(sets, "password_hash = ?")
		args = append(args, *upd.PasswordHash)
	}
	if upd.Role != nil {
		sets = append(sets, "role = ?")
		args = append(args, *upd.Role)
	}
	if upd.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, *upd.IsActive)
	}
	if upd.APIKeyLimit != nil {
		sets = append(sets, "api_key_limit = ?")
		args = append(args, *upd.APIKeyLimit)
	}

	query := "UPDATE principals SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	args = append(args, id)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrDuplicateIdentifier
		}
		return nil, fmt.Errorf("updating principal: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, ErrPrincipalNotFound
	}

	s.logger.Info("updated principal", "id", id)
	return s.GetPrincipal(ctx, id)
}

// SetAPIKey assigns a new API key to a principal and resets its usage count.
func (s *SQLiteStore) SetAPIKey(ctx context.Context, id, key string, limit int64) error {
	query := `
		UPDATE principals
		SET api_key = ?, api_key_usage_count = 0, api_key_limit = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, key, limit, formatTime(time.Now()), id)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateAPIKey
		}
		return fmt.Errorf("setting api key: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrPrincipalNotFound
	}

	s.logger.Info("assigned api key", "id", id, "limit", limit)
	return nil
}

// IncrementAPIKeyUsage bumps the usage counter for a principal's API key.
// The counter is advisory; enforcement lives in the rate limiter.
func (s *SQLiteStore) IncrementAPIKeyUsage(ctx context.Context, id string) error {
	query := `UPDATE principals SET api_key_usage_count = api_key_usage_count + 1 WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("incrementing api key usage: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrPrincipalNotFound
	}

	return nil
}

// RecordLogin stamps the principal's last successful login.
func (s *SQLiteStore) RecordLogin(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE principals SET last_login_at = ?, updated_at = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, formatTime(at), formatTime(at), id)
	if err != nil {
		return fmt.Errorf("recording login: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrPrincipalNotFound
	}

	return nil
}

// ListPrincipals returns all principals, oldest first.
func (s *SQLiteStore) ListPrincipals(ctx context.Context) ([]*Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying principals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var principals []*Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, err
		}
		principals = append(principals, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating principals: %w", err)
	}

	return principals, nil
}

// CountPrincipals returns the number of principal records.
func (s *SQLiteStore) CountPrincipals(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM principals").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting principals: %w", err)
	}
	return count, nil
}

// queryPrincipal runs a single-row principal query.
func (s *SQLiteStore) queryPrincipal(ctx context.Context, query string, args ...any) (*Principal, error) {
	row := s.db.QueryRowContext(ctx, query, args...)

	p, err := scanPrincipal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPrincipalNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanPrincipal scans a principal row in principalColumns order.
func scanPrincipal(row scanner) (*Principal, error) {
	var p Principal
	var apiKey sql.NullString
	var lastLoginStr sql.NullString
	var createdAtStr, updatedAtStr string

	err := row.Scan(
		&p.ID,
		&p.Username,
		&p.Email,
		&p.PasswordHash,
		&p.Role,
		&apiKey,
		&p.APIKeyUsageCount,
		&p.APIKeyLimit,
		&p.IsActive,
		&lastLoginStr,
		&createdAtStr,
		&updatedAtStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning principal: %w", err)
	}

	p.APIKey = apiKey.String

	if lastLoginStr.Valid {
		t, err := parseTime(lastLoginStr.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_login_at: %w", err)
		}
		p.LastLoginAt = &t
	}

	if p.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if p.UpdatedAt, err = parseTime(updatedAtStr); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &p, nil
}

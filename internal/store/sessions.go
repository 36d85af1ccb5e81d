// ABOUTME: Session and message store methods with ownership-scoped queries
// ABOUTME: Every statement targeting an existing session carries (id, owner_id) as one predicate

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CreateSession inserts a new session for its owner.
func (s *SQLiteStore) CreateSession(ctx context.Context, sess *Session) error {
	now := time.Now()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = now
	}

	query := `
		INSERT INTO sessions (id, owner_id, title, description, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		sess.ID,
		sess.OwnerID,
		sess.Title,
		sess.Description,
		sess.IsActive,
		formatTime(sess.CreatedAt),
		formatTime(sess.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}

	s.logger.Info("created session", "id", sess.ID, "owner_id", sess.OwnerID)
	return nil
}

// ListSessions returns all sessions belonging to the owner,
// most recently updated first.
func (s *SQLiteStore) ListSessions(ctx context.Context, ownerID string) ([]*Session, error) {
	query := `
		SELECT id, owner_id, title, description, is_active, created_at, updated_at
		FROM sessions
		WHERE owner_id = ?
		ORDER BY updated_at DESC, id
	`

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}

	return sessions, nil
}

// GetSession retrieves a session by ID, scoped to its owner. A session owned
// by someone else is reported exactly like a missing one.
func (s *SQLiteStore) GetSession(ctx context.Context, id, ownerID string) (*Session, error) {
	query := `
		SELECT id, owner_id, title, description, is_active, created_at, updated_at
		FROM sessions
		WHERE id = ? AND owner_id = ?
	`

	sess, err := scanSession(s.db.QueryRowContext(ctx, query, id, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// UpdateSession applies a partial update, scoped to the owner, and returns
// the updated record. Nil fields in upd are left unchanged.
func (s *SQLiteStore) UpdateSession(ctx context.Context, id, ownerID string, upd SessionUpdate) (*Session, error) {
	sets := []string{"updated_at = ?"}
	args := []any{formatTime(time.Now())}

	if upd.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *upd.Title)
	}
	if upd.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *upd.Description)
	}
	if upd.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, *upd.IsActive)
	}

	query := "UPDATE sessions SET " + strings.Join(sets, ", ") + " WHERE id = ? AND owner_id = ?"
	args = append(args, id, ownerID)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("updating session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, ErrSessionNotFound
	}

	return s.GetSession(ctx, id, ownerID)
}

// DeleteSession removes a session, scoped to the owner. The foreign key
// cascade removes all of its messages in the same statement.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id, ownerID string) error {
	query := `DELETE FROM sessions WHERE id = ? AND owner_id = ?`

	result, err := s.db.ExecContext(ctx, query, id, ownerID)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrSessionNotFound
	}

	s.logger.Info("deleted session", "id", id, "owner_id", ownerID)
	return nil
}

// AppendMessage inserts a message and bumps the parent session's updated_at
// in one transaction. The ownership-scoped UPDATE both verifies the session
// and takes the write lock, so concurrent appends serialize and each message
// gets a distinct, increasing seq.
func (s *SQLiteStore) AppendMessage(ctx context.Context, sessionID, ownerID string, msg *Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()

	result, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ? AND owner_id = ?`,
		formatTime(now), sessionID, ownerID,
	)
	if err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrSessionNotFound
	}

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE session_id = ?`,
		sessionID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("assigning message seq: %w", err)
	}

	msg.SessionID = sessionID
	msg.Seq = seq
	msg.CreatedAt = now

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, seq, role, content, token_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, msg.Seq, msg.Role, msg.Content, msg.TokenCount, formatTime(msg.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing message: %w", err)
	}

	s.logger.Debug("appended message", "session_id", sessionID, "seq", seq, "role", msg.Role)
	return nil
}

// ListMessages returns a session's messages in canonical conversation order.
// The owner check rides on the session lookup inside the same query.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID, ownerID string) ([]*Message, error) {
	// Verify ownership with the compound predicate before reading messages.
	if _, err := s.GetSession(ctx, sessionID, ownerID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, session_id, seq, role, content, token_count, created_at
		FROM messages
		WHERE session_id = ?
		ORDER BY seq ASC
	`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := []*Message{}
	for rows.Next() {
		var msg Message
		var createdAtStr string

		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Seq, &msg.Role, &msg.Content, &msg.TokenCount, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}

		if msg.CreatedAt, err = parseTime(createdAtStr); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	return messages, nil
}

// ClearMessages deletes all messages in a session the owner holds. The
// subquery keeps the ownership check inside the DELETE statement itself.
func (s *SQLiteStore) ClearMessages(ctx context.Context, sessionID, ownerID string) error {
	// Scoped lookup doubles as the existence check; a session with zero
	// messages still clears successfully.
	if _, err := s.GetSession(ctx, sessionID, ownerID); err != nil {
		return err
	}

	query := `
		DELETE FROM messages
		WHERE session_id IN (SELECT id FROM sessions WHERE id = ? AND owner_id = ?)
	`

	if _, err := s.db.ExecContext(ctx, query, sessionID, ownerID); err != nil {
		return fmt.Errorf("clearing messages: %w", err)
	}

	s.logger.Info("cleared messages", "session_id", sessionID, "owner_id", ownerID)
	return nil
}

// scanSession scans a session row.
func scanSession(row scanner) (*Session, error) {
	var sess Session
	var createdAtStr, updatedAtStr string

	err := row.Scan(
		&sess.ID,
		&sess.OwnerID,
		&sess.Title,
		&sess.Description,
		&sess.IsActive,
		&createdAtStr,
		&updatedAtStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}

	if sess.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if sess.UpdatedAt, err = parseTime(updatedAtStr); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &sess, nil
}

package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Session represents a row in the sessions table. TrustLevel and
// AccessMode are stored as their canonical uppercase strings and parsed
// by the caller (unknown values fail closed there).
type Session struct {
	ID          string
	AgentID     string
	AgentName   string
	TrustLevel  string
	AccessMode  string
	TokenHash   string
	TokenPrefix string
	RunScope    sql.NullString
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// GenerateSessionToken creates a new ksk_ bearer token with its bcrypt
// hash and prefix. Returns (fullToken, hash, prefix, error). The full
// token is shown to the caller once and never stored.
func GenerateSessionToken() (string, string, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", "", fmt.Errorf("GenerateSessionToken: %w", err)
	}
	fullToken := "ksk_" + hex.EncodeToString(raw) // 68 chars total

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(fullToken), bcrypt.DefaultCost)
	if err != nil {
		return "", "", "", fmt.Errorf("GenerateSessionToken: %w", err)
	}

	prefix := fullToken[:8] // "ksk_abcd"
	return fullToken, string(hashBytes), prefix, nil
}

// CreateSession inserts a new agent session. Returns the session and
// the plaintext bearer token (shown once).
func (s *Store) CreateSession(ctx context.Context, agentID, agentName, trustLevel, accessMode string) (*Session, string, error) {
	fullToken, tokenHash, tokenPrefix, err := GenerateSessionToken()
	if err != nil {
		return nil, "", fmt.Errorf("CreateSession: %w", err)
	}

	var sess Session
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO sessions (agent_id, agent_name, trust_level, access_mode, token_hash, token_prefix)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, agent_id, agent_name, trust_level, access_mode,
		          token_hash, token_prefix, run_scope, created_at, updated_at`,
		agentID, agentName, trustLevel, accessMode, tokenHash, tokenPrefix,
	).Scan(&sess.ID, &sess.AgentID, &sess.AgentName, &sess.TrustLevel, &sess.AccessMode,
		&sess.TokenHash, &sess.TokenPrefix, &sess.RunScope, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("CreateSession: %w", err)
	}

	return &sess, fullToken, nil
}

// GetSession returns a session by ID, or nil if not found.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, agent_name, trust_level, access_mode,
		       token_hash, token_prefix, run_scope, created_at, updated_at
		FROM sessions WHERE id = $1`, id,
	).Scan(&sess.ID, &sess.AgentID, &sess.AgentName, &sess.TrustLevel, &sess.AccessMode,
		&sess.TokenHash, &sess.TokenPrefix, &sess.RunScope, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetSession: %w", err)
	}
	return &sess, nil
}

// LookupByPrefix finds a session by token prefix (first 8 chars).
// Used by auth to narrow candidates before bcrypt verify.
func (s *Store) LookupByPrefix(ctx context.Context, prefix string) (*Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, agent_name, trust_level, access_mode,
		       token_hash, token_prefix, run_scope, created_at, updated_at
		FROM sessions WHERE token_prefix = $1`, prefix,
	).Scan(&sess.ID, &sess.AgentID, &sess.AgentName, &sess.TrustLevel, &sess.AccessMode,
		&sess.TokenHash, &sess.TokenPrefix, &sess.RunScope, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LookupByPrefix: %w", err)
	}
	return &sess, nil
}

// RotateToken generates a new bearer token for a session.
// Returns the updated session and the plaintext token (shown once).
func (s *Store) RotateToken(ctx context.Context, id string) (*Session, string, error) {
	fullToken, tokenHash, tokenPrefix, err := GenerateSessionToken()
	if err != nil {
		return nil, "", fmt.Errorf("RotateToken: %w", err)
	}

	var sess Session
	err = s.db.QueryRowContext(ctx, `
		UPDATE sessions SET
			token_hash   = $2,
			token_prefix = $3,
			updated_at   = now()
		WHERE id = $1
		RETURNING id, agent_id, agent_name, trust_level, access_mode,
		          token_hash, token_prefix, run_scope, created_at, updated_at`,
		id, tokenHash, tokenPrefix,
	).Scan(&sess.ID, &sess.AgentID, &sess.AgentName, &sess.TrustLevel, &sess.AccessMode,
		&sess.TokenHash, &sess.TokenPrefix, &sess.RunScope, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, "", fmt.Errorf("RotateToken: session not found")
	}
	if err != nil {
		return nil, "", fmt.Errorf("RotateToken: %w", err)
	}

	return &sess, fullToken, nil
}

// OpenRunScope opens a sanctioned write window on a session and returns
// the run-scope token. Any previous scope on the session is replaced.
func (s *Store) OpenRunScope(ctx context.Context, sessionID string) (string, error) {
	raw := make([]byte, 12)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("OpenRunScope: %w", err)
	}
	token := "run_" + hex.EncodeToString(raw)

	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET run_scope = $2, updated_at = now() WHERE id = $1`,
		sessionID, token)
	if err != nil {
		return "", fmt.Errorf("OpenRunScope: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return "", sql.ErrNoRows
	}
	return token, nil
}

// CloseRunScope clears the session's write window.
func (s *Store) CloseRunScope(ctx context.Context, sessionID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET run_scope = NULL, updated_at = now() WHERE id = $1`,
		sessionID)
	if err != nil {
		return fmt.Errorf("CloseRunScope: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteSession removes a session by ID.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("DeleteSession: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

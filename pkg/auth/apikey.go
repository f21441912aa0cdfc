package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aihub-platform/backend/pkg/apperr"
)

// APIKeyPrefixLength is the number of leading characters of a raw key used
// for the indexed prefix lookup before the full hash comparison.
const APIKeyPrefixLength = 8

// HashAPIKey derives the stored comparison hash for a raw API key. SHA-256
// is sufficient here (unlike passwords, API keys are high-entropy random
// tokens, not user-chosen secrets, so no salted slow hash is needed).
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// KeyPrefix returns the indexed lookup prefix for a raw API key.
func KeyPrefix(raw string) string {
	if len(raw) <= APIKeyPrefixLength {
		return raw
	}
	return raw[:APIKeyPrefixLength]
}

type APIKeyStore struct {
	pool *pgxpool.Pool
}

func NewAPIKeyStore(pool *pgxpool.Pool) *APIKeyStore {
	return &APIKeyStore{pool: pool}
}

// VerifyAPIKey validates a presented raw key by prefix lookup followed by
// constant-time hash comparison and expiry check, then updates
// last_used_at on success (spec §4.10).
func (s *APIKeyStore) VerifyAPIKey(ctx context.Context, raw string) (userID string, err error) {
	prefix := KeyPrefix(raw)
	targetHash := HashAPIKey(raw)

	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, key_hash, expires_at, is_active
		FROM user_api_keys WHERE key_prefix = $1
	`, prefix)
	if err != nil {
		return "", fmt.Errorf("looking up api key: %w", err)
	}
	defer rows.Close()

	var matchedID, matchedUserID string
	found := false
	for rows.Next() {
		var id, uid, hash string
		var expiresAt *time.Time
		var isActive bool
		if err := rows.Scan(&id, &uid, &hash, &expiresAt, &isActive); err != nil {
			return "", fmt.Errorf("scanning api key row: %w", err)
		}
		if !isActive {
			continue
		}
		if expiresAt != nil && expiresAt.Before(time.Now()) {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(hash), []byte(targetHash)) == 1 {
			matchedID, matchedUserID, found = id, uid, true
			break
		}
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterating api key rows: %w", err)
	}
	if !found {
		return "", apperr.Authentication("invalid or expired API key")
	}

	_, err = s.pool.Exec(ctx, `UPDATE user_api_keys SET last_used_at = now() WHERE id = $1`, matchedID)
	if err != nil {
		return "", fmt.Errorf("updating api key last_used_at: %w", err)
	}

	return matchedUserID, nil
}

// Create inserts a new API key row and returns its ID; the raw key itself
// is only ever returned to the caller at creation time and never persisted.
func (s *APIKeyStore) Create(ctx context.Context, userID, name, raw string, expiresAt *time.Time) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO user_api_keys (user_id, name, key_hash, key_prefix, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, userID, name, HashAPIKey(raw), KeyPrefix(raw), expiresAt).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("creating api key: %w", err)
	}
	return id, nil
}

// Revoke deactivates an API key.
func (s *APIKeyStore) Revoke(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE user_api_keys SET is_active = false WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("api key not found")
	}
	return nil
}

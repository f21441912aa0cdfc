// Package vault implements the credential vault (C1): at-rest encryption,
// rotation, and provider-liveness probing of LLM provider API keys.
package vault

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aihub-platform/backend/pkg/apperr"
	"github.com/aihub-platform/backend/pkg/models"
)

// Store persists ProviderKey rows over a pgx pool, in the hand-written
// sqlc-style shape used throughout this repository in place of an ORM
// (grounded on wisbric-nightowl's pkg/apikey/store.go: const column list +
// scanRow helper + explicit SQL per operation).
type Store struct {
	pool   *pgxpool.Pool
	cipher *Cipher
}

// NewStore builds a Store whose cipher key is derived from secretKey.
func NewStore(pool *pgxpool.Pool, secretKey string) *Store {
	return &Store{pool: pool, cipher: NewCipher(secretKey)}
}

const providerKeyColumns = `id, provider, name, encrypted_key, is_active, is_default,
	last_used_at, last_tested_at, test_status, test_error, rotated_from_id, created_at`

func scanProviderKeyRow(row pgx.Row) (*models.ProviderKey, error) {
	var pk models.ProviderKey
	if err := row.Scan(&pk.ID, &pk.Provider, &pk.Name, &pk.EncryptedKey, &pk.IsActive, &pk.IsDefault,
		&pk.LastUsedAt, &pk.LastTestedAt, &pk.TestStatus, &pk.TestError, &pk.RotatedFromID, &pk.CreatedAt); err != nil {
		return nil, err
	}
	return &pk, nil
}

// List returns provider keys, optionally filtered by provider.
func (s *Store) List(ctx context.Context, provider *models.Provider) ([]*models.ProviderKey, error) {
	var rows pgx.Rows
	var err error
	if provider != nil {
		rows, err = s.pool.Query(ctx, `SELECT `+providerKeyColumns+` FROM provider_keys WHERE provider = $1 ORDER BY created_at DESC`, *provider)
	} else {
		rows, err = s.pool.Query(ctx, `SELECT `+providerKeyColumns+` FROM provider_keys ORDER BY created_at DESC`)
	}
	if err != nil {
		return nil, fmt.Errorf("listing provider keys: %w", err)
	}
	defer rows.Close()

	var out []*models.ProviderKey
	for rows.Next() {
		pk, err := scanProviderKeyRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning provider key: %w", err)
		}
		out = append(out, pk)
	}
	return out, rows.Err()
}

// Get fetches a single provider key by id.
func (s *Store) Get(ctx context.Context, id string) (*models.ProviderKey, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+providerKeyColumns+` FROM provider_keys WHERE id = $1`, id)
	pk, err := scanProviderKeyRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.NotFound("provider key not found")
		}
		return nil, fmt.Errorf("getting provider key: %w", err)
	}
	return pk, nil
}

// Create encrypts plaintext and inserts a new row. When isDefault is true,
// every other key for the same provider is demoted in the same
// transaction (spec §4.1 defaulting policy).
func (s *Store) Create(ctx context.Context, provider models.Provider, name, plaintext string, isDefault bool) (*models.ProviderKey, error) {
	encrypted, err := s.cipher.Encrypt(plaintext)
	if err != nil {
		return nil, fmt.Errorf("encrypting key: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if isDefault {
		if _, err := tx.Exec(ctx, `UPDATE provider_keys SET is_default = false WHERE provider = $1`, provider); err != nil {
			return nil, fmt.Errorf("clearing existing defaults: %w", err)
		}
	}

	id := uuid.NewString()
	row := tx.QueryRow(ctx, `INSERT INTO provider_keys (id, provider, name, encrypted_key, is_active, is_default, test_status)
		VALUES ($1, $2, $3, $4, true, $5, 'untested') RETURNING `+providerKeyColumns,
		id, provider, name, encrypted, isDefault)
	pk, err := scanProviderKeyRow(row)
	if err != nil {
		return nil, fmt.Errorf("inserting provider key: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return pk, nil
}

// Update changes mutable fields (name, is_active).
func (s *Store) Update(ctx context.Context, id string, name *string, isActive *bool) (*models.ProviderKey, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if name != nil {
		existing.Name = *name
	}
	if isActive != nil {
		existing.IsActive = *isActive
	}
	row := s.pool.QueryRow(ctx, `UPDATE provider_keys SET name = $2, is_active = $3 WHERE id = $1 RETURNING `+providerKeyColumns,
		id, existing.Name, existing.IsActive)
	return scanProviderKeyRow(row)
}

// Delete removes a provider key permanently.
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM provider_keys WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting provider key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("provider key not found")
	}
	return nil
}

// SetDefault clears is_default for every other key of the same provider and
// sets it on id, within one transaction.
func (s *Store) SetDefault(ctx context.Context, id string) (*models.ProviderKey, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	target, err := scanProviderKeyRow(tx.QueryRow(ctx, `SELECT `+providerKeyColumns+` FROM provider_keys WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.NotFound("provider key not found")
		}
		return nil, err
	}

	if _, err := tx.Exec(ctx, `UPDATE provider_keys SET is_default = false WHERE provider = $1`, target.Provider); err != nil {
		return nil, fmt.Errorf("clearing existing defaults: %w", err)
	}
	row := tx.QueryRow(ctx, `UPDATE provider_keys SET is_default = true WHERE id = $1 RETURNING `+providerKeyColumns, id)
	updated, err := scanProviderKeyRow(row)
	if err != nil {
		return nil, fmt.Errorf("setting default: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return updated, nil
}

// Rotate creates a new row pointing back to id via rotated_from_id, copies
// is_default, and deactivates the predecessor, in the same transaction.
func (s *Store) Rotate(ctx context.Context, id, newPlaintext string) (*models.ProviderKey, error) {
	encrypted, err := s.cipher.Encrypt(newPlaintext)
	if err != nil {
		return nil, fmt.Errorf("encrypting key: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	old, err := scanProviderKeyRow(tx.QueryRow(ctx, `SELECT `+providerKeyColumns+` FROM provider_keys WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.NotFound("provider key not found")
		}
		return nil, err
	}

	newID := uuid.NewString()
	row := tx.QueryRow(ctx, `INSERT INTO provider_keys (id, provider, name, encrypted_key, is_active, is_default, test_status, rotated_from_id)
		VALUES ($1, $2, $3, $4, true, $5, 'untested', $6) RETURNING `+providerKeyColumns,
		newID, old.Provider, old.Name, encrypted, old.IsDefault, old.ID)
	fresh, err := scanProviderKeyRow(row)
	if err != nil {
		return nil, fmt.Errorf("inserting rotated key: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE provider_keys SET is_active = false, is_default = false WHERE id = $1`, old.ID); err != nil {
		return nil, fmt.Errorf("deactivating predecessor: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return fresh, nil
}

// GetActive returns the decrypted plaintext of the default active key for a
// provider, falling back to the most recently created active key, and
// stamps last_used_at as a side effect.
func (s *Store) GetActive(ctx context.Context, provider models.Provider) (string, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+providerKeyColumns+` FROM provider_keys
		WHERE provider = $1 AND is_active = true
		ORDER BY is_default DESC, created_at DESC
		LIMIT 1`, provider)
	pk, err := scanProviderKeyRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", apperr.NotFound(fmt.Sprintf("no active key for provider %s", provider))
		}
		return "", err
	}

	plaintext, err := s.cipher.DecryptIfNeeded(pk.EncryptedKey)
	if err != nil {
		return "", fmt.Errorf("decrypting key: %w", err)
	}

	go func() {
		_, _ = s.pool.Exec(context.Background(), `UPDATE provider_keys SET last_used_at = $2 WHERE id = $1`, pk.ID, time.Now().UTC())
	}()

	return plaintext, nil
}

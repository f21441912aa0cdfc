package api

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aihub-platform/backend/pkg/apperr"
	"github.com/aihub-platform/backend/pkg/models"
)

func (s *Server) handleListAPIKeys(c *gin.Context) {
	caller := callerFrom(c)
	rows, err := s.db.Pool.Query(c.Request.Context(), `
		SELECT id, user_id, name, key_prefix, expires_at, is_active, last_used_at, created_at
		FROM user_api_keys WHERE user_id = $1 ORDER BY created_at DESC
	`, caller.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	defer rows.Close()

	out := []*models.UserApiKey{}
	for rows.Next() {
		var k models.UserApiKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyPrefix, &k.ExpiresAt, &k.IsActive, &k.LastUsedAt, &k.CreatedAt); err != nil {
			writeError(c, err)
			return
		}
		out = append(out, &k)
	}
	c.JSON(http.StatusOK, gin.H{"api_keys": out})
}

func (s *Server) handleCreateAPIKey(c *gin.Context) {
	var req createAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation(err.Error()))
		return
	}

	raw, err := randomAPIKey()
	if err != nil {
		writeError(c, err)
		return
	}

	var expiresAt *time.Time
	if req.ExpiresIn != nil {
		t := time.Now().UTC().AddDate(0, 0, *req.ExpiresIn)
		expiresAt = &t
	}

	caller := callerFrom(c)
	id, err := s.apiKeys.Create(c.Request.Context(), caller.UserID, req.Name, raw, expiresAt)
	if err != nil {
		writeError(c, err)
		return
	}

	s.auditWriter.RecordAPIKeyAction("created", id, caller.UserID, &caller.UserID, clientAddr(c), c.Request.UserAgent(), nil)
	c.JSON(http.StatusCreated, createAPIKeyResponse{ID: id, Key: raw})
}

func (s *Server) handleRevokeAPIKey(c *gin.Context) {
	id := c.Param("id")
	if err := s.apiKeys.Revoke(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}

	caller := callerFrom(c)
	s.auditWriter.RecordAPIKeyAction("revoked", id, caller.UserID, &caller.UserID, clientAddr(c), c.Request.UserAgent(), nil)
	c.Status(http.StatusNoContent)
}

// randomAPIKey generates a 256-bit hex-encoded key; the raw value is
// returned to the caller exactly once, at creation time, and is never
// stored (only its hash is, via auth.HashAPIKey).
func randomAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "ahp_" + hex.EncodeToString(buf), nil
}

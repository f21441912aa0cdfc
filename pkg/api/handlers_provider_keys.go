package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aihub-platform/backend/pkg/apperr"
	"github.com/aihub-platform/backend/pkg/models"
)

// providerKeyTestTimeout is the liveness-probe deadline from spec §5.
const providerKeyTestTimeout = 10 * time.Second

func (s *Server) handleListProviderKeys(c *gin.Context) {
	keys, err := s.vaultStore.List(c.Request.Context(), nil)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"provider_keys": keys})
}

func (s *Server) handleCreateProviderKey(c *gin.Context) {
	var req createProviderKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation(err.Error()))
		return
	}
	key, err := s.vaultStore.Create(c.Request.Context(), models.Provider(req.Provider), req.Name, req.Key, req.IsDefault)
	if err != nil {
		writeError(c, err)
		return
	}

	claims, _ := sessionClaims(c)
	s.auditWriter.RecordSettingsAction("provider_key.created", key.ID, claims.Subject, &claims.Subject, clientAddr(c), c.Request.UserAgent(), nil)
	c.JSON(http.StatusCreated, key)
}

func (s *Server) handleRotateProviderKey(c *gin.Context) {
	var req rotateProviderKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation(err.Error()))
		return
	}
	key, err := s.vaultStore.Rotate(c.Request.Context(), c.Param("id"), req.Key)
	if err != nil {
		writeError(c, err)
		return
	}

	claims, _ := sessionClaims(c)
	s.auditWriter.RecordSettingsAction("provider_key.rotated", key.ID, claims.Subject, &claims.Subject, clientAddr(c), c.Request.UserAgent(), nil)
	c.JSON(http.StatusOK, key)
}

func (s *Server) handleSetDefaultProviderKey(c *gin.Context) {
	key, err := s.vaultStore.SetDefault(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, key)
}

// handleTestProviderKey runs the provider's liveness probe (C1's Test
// operation, spec §4.1) and reports the result without persisting latency.
func (s *Server) handleTestProviderKey(c *gin.Context) {
	result, err := s.vaultStore.Test(c.Request.Context(), c.Param("id"), http.DefaultClient, providerKeyTestTimeout)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      result.Status,
		"error":       result.Error,
		"latency_ms":  result.Latency.Milliseconds(),
	})
}

func (s *Server) handleDeleteProviderKey(c *gin.Context) {
	id := c.Param("id")
	if err := s.vaultStore.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}

	claims, _ := sessionClaims(c)
	s.auditWriter.RecordSettingsAction("provider_key.deleted", id, claims.Subject, &claims.Subject, clientAddr(c), c.Request.UserAgent(), nil)
	c.Status(http.StatusNoContent)
}

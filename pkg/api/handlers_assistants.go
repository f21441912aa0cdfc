package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"

	"github.com/aihub-platform/backend/pkg/apperr"
	"github.com/aihub-platform/backend/pkg/models"
)

const assistantColumns = `id, workspace_id, name, description, instructions, model, temperature,
	max_tokens, max_retrieval_chunks, max_context_tokens, avatar_url, is_deleted, created_at`

func scanAssistant(row pgx.Row) (*models.Assistant, error) {
	var a models.Assistant
	if err := row.Scan(&a.ID, &a.WorkspaceID, &a.Name, &a.Description, &a.Instructions, &a.Model, &a.Temperature,
		&a.MaxTokens, &a.MaxRetrievalChunks, &a.MaxContextTokens, &a.AvatarURL, &a.IsDeleted, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Server) handleListAssistants(c *gin.Context) {
	rows, err := s.db.Pool.Query(c.Request.Context(),
		`SELECT `+assistantColumns+` FROM assistants WHERE is_deleted = false ORDER BY created_at DESC`)
	if err != nil {
		writeError(c, err)
		return
	}
	defer rows.Close()

	out := []*models.Assistant{}
	for rows.Next() {
		a, err := scanAssistant(rows)
		if err != nil {
			writeError(c, err)
			return
		}
		out = append(out, a)
	}
	c.JSON(http.StatusOK, gin.H{"assistants": out})
}

func (s *Server) handleGetAssistant(c *gin.Context) {
	row := s.db.Pool.QueryRow(c.Request.Context(), `SELECT `+assistantColumns+` FROM assistants WHERE id = $1 AND is_deleted = false`, c.Param("id"))
	a, err := scanAssistant(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			writeError(c, apperr.NotFound("assistant not found"))
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) handleCreateAssistant(c *gin.Context) {
	var req createAssistantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation(err.Error()))
		return
	}
	if req.Temperature == 0 {
		req.Temperature = 0.7
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = 2048
	}
	if req.MaxRetrievalChunks == 0 {
		req.MaxRetrievalChunks = 5
	}
	if req.MaxContextTokens == 0 {
		req.MaxContextTokens = 4000
	}

	row := s.db.Pool.QueryRow(c.Request.Context(), `
		INSERT INTO assistants (workspace_id, name, description, instructions, model, temperature, max_tokens, max_retrieval_chunks, max_context_tokens)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+assistantColumns,
		req.WorkspaceID, req.Name, req.Description, req.Instructions, req.Model, req.Temperature,
		req.MaxTokens, req.MaxRetrievalChunks, req.MaxContextTokens)
	a, err := scanAssistant(row)
	if err != nil {
		writeError(c, err)
		return
	}

	claims, _ := sessionClaims(c)
	s.auditWriter.RecordSettingsAction("assistant.created", a.ID, claims.Subject, &claims.Subject, clientAddr(c), c.Request.UserAgent(), nil)
	c.JSON(http.StatusCreated, a)
}

func (s *Server) handleUpdateAssistant(c *gin.Context) {
	var req updateAssistantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation(err.Error()))
		return
	}

	existing, err := s.getAssistant(c, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if req.Name != nil {
		existing.Name = *req.Name
	}
	if req.Description != nil {
		existing.Description = *req.Description
	}
	if req.Instructions != nil {
		existing.Instructions = *req.Instructions
	}
	if req.Model != nil {
		existing.Model = *req.Model
	}
	if req.Temperature != nil {
		existing.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		existing.MaxTokens = *req.MaxTokens
	}
	if req.MaxRetrievalChunks != nil {
		existing.MaxRetrievalChunks = *req.MaxRetrievalChunks
	}
	if req.MaxContextTokens != nil {
		existing.MaxContextTokens = *req.MaxContextTokens
	}

	row := s.db.Pool.QueryRow(c.Request.Context(), `
		UPDATE assistants SET name = $2, description = $3, instructions = $4, model = $5, temperature = $6, max_tokens = $7,
			max_retrieval_chunks = $8, max_context_tokens = $9
		WHERE id = $1 RETURNING `+assistantColumns,
		existing.ID, existing.Name, existing.Description, existing.Instructions, existing.Model, existing.Temperature, existing.MaxTokens,
		existing.MaxRetrievalChunks, existing.MaxContextTokens)
	updated, err := scanAssistant(row)
	if err != nil {
		writeError(c, err)
		return
	}

	claims, _ := sessionClaims(c)
	s.auditWriter.RecordSettingsAction("assistant.updated", updated.ID, claims.Subject, &claims.Subject, clientAddr(c), c.Request.UserAgent(), nil)
	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleDeleteAssistant(c *gin.Context) {
	id := c.Param("id")
	tag, err := s.db.Pool.Exec(c.Request.Context(), `UPDATE assistants SET is_deleted = true WHERE id = $1`, id)
	if err != nil {
		writeError(c, err)
		return
	}
	if tag.RowsAffected() == 0 {
		writeError(c, apperr.NotFound("assistant not found"))
		return
	}

	claims, _ := sessionClaims(c)
	s.auditWriter.RecordSettingsAction("assistant.deleted", id, claims.Subject, &claims.Subject, clientAddr(c), c.Request.UserAgent(), nil)
	c.Status(http.StatusNoContent)
}

func (s *Server) getAssistant(c *gin.Context, id string) (*models.Assistant, error) {
	row := s.db.Pool.QueryRow(c.Request.Context(), `SELECT `+assistantColumns+` FROM assistants WHERE id = $1 AND is_deleted = false`, id)
	a, err := scanAssistant(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.NotFound("assistant not found")
		}
		return nil, err
	}
	return a, nil
}

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"

	"github.com/aihub-platform/backend/pkg/apperr"
	"github.com/aihub-platform/backend/pkg/auth"
	"github.com/aihub-platform/backend/pkg/chat"
	"github.com/aihub-platform/backend/pkg/models"
)

func callerFrom(c *gin.Context) chat.Caller {
	claims, _ := sessionClaims(c)
	if claims == nil {
		return chat.Caller{}
	}
	return chat.Caller{
		UserID:  claims.Subject,
		IsAdmin: auth.RequireRole(claims, models.RoleAdmin),
	}
}

func (s *Server) handleListConversations(c *gin.Context) {
	caller := callerFrom(c)
	var rows pgx.Rows
	var err error
	if caller.IsAdmin {
		rows, err = s.db.Pool.Query(c.Request.Context(),
			`SELECT id, assistant_id, user_id, title, created_at FROM conversations ORDER BY created_at DESC`)
	} else {
		rows, err = s.db.Pool.Query(c.Request.Context(),
			`SELECT id, assistant_id, user_id, title, created_at FROM conversations WHERE user_id = $1 ORDER BY created_at DESC`, caller.UserID)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	defer rows.Close()

	out := []*models.Conversation{}
	for rows.Next() {
		var conv models.Conversation
		if err := rows.Scan(&conv.ID, &conv.AssistantID, &conv.UserID, &conv.Title, &conv.CreatedAt); err != nil {
			writeError(c, err)
			return
		}
		out = append(out, &conv)
	}
	c.JSON(http.StatusOK, gin.H{"conversations": out})
}

func (s *Server) handleCreateConversation(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation(err.Error()))
		return
	}
	caller := callerFrom(c)

	var conv models.Conversation
	err := s.db.Pool.QueryRow(c.Request.Context(), `
		INSERT INTO conversations (assistant_id, user_id) VALUES ($1, $2)
		RETURNING id, assistant_id, user_id, title, created_at
	`, req.AssistantID, caller.UserID).Scan(&conv.ID, &conv.AssistantID, &conv.UserID, &conv.Title, &conv.CreatedAt)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

// loadOwnedConversation enforces the same never-leak-existence ownership
// rule the chat orchestrator applies (spec §4.8 step 1).
func (s *Server) loadOwnedConversation(c *gin.Context, id string, caller chat.Caller) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.Pool.QueryRow(c.Request.Context(),
		`SELECT id, assistant_id, user_id, title, created_at FROM conversations WHERE id = $1`, id,
	).Scan(&conv.ID, &conv.AssistantID, &conv.UserID, &conv.Title, &conv.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.NotFound("conversation not found")
		}
		return nil, err
	}
	if !caller.IsAdmin && (conv.UserID == nil || *conv.UserID != caller.UserID) {
		return nil, apperr.NotFound("conversation not found")
	}
	return &conv, nil
}

func (s *Server) handleGetConversation(c *gin.Context) {
	conv, err := s.loadOwnedConversation(c, c.Param("id"), callerFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (s *Server) handleDeleteConversation(c *gin.Context) {
	conv, err := s.loadOwnedConversation(c, c.Param("id"), callerFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if _, err := s.db.Pool.Exec(c.Request.Context(), `DELETE FROM conversations WHERE id = $1`, conv.ID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListMessages(c *gin.Context) {
	conv, err := s.loadOwnedConversation(c, c.Param("id"), callerFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	rows, err := s.db.Pool.Query(c.Request.Context(), `
		SELECT id, conversation_id, role, content, model, tokens_used, feedback, feedback_reason, feedback_context, created_at
		FROM messages WHERE conversation_id = $1 ORDER BY created_at ASC
	`, conv.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	defer rows.Close()

	out := []*models.Message{}
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.Model, &m.TokensUsed,
			&m.Feedback, &m.FeedbackReason, &m.FeedbackContext, &m.CreatedAt); err != nil {
			writeError(c, err)
			return
		}
		out = append(out, &m)
	}
	c.JSON(http.StatusOK, gin.H{"messages": out})
}

func (s *Server) handleMessageFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation(err.Error()))
		return
	}
	tag, err := s.db.Pool.Exec(c.Request.Context(),
		`UPDATE messages SET feedback = $2, feedback_reason = $3 WHERE id = $1`,
		c.Param("messageID"), req.Feedback, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	if tag.RowsAffected() == 0 {
		writeError(c, apperr.NotFound("message not found"))
		return
	}
	c.Status(http.StatusNoContent)
}

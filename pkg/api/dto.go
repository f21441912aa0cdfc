package api

import "github.com/aihub-platform/backend/pkg/llmstream"

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	Token     string `json:"token"`
	CSRFToken string `json:"csrf_token"`
	Role      string `json:"role"`
}

// Bounds below match the entity invariants in spec §3: temperature∈[0,2],
// max_tokens∈[100,128000], max_retrieval_chunks∈[1,20],
// max_context_tokens∈[512,16000]. "omitempty" lets an absent/zero field fall
// through to handleCreateAssistant's defaulting instead of failing
// validation, while an explicit out-of-range value still rejects with 422.
type createAssistantRequest struct {
	WorkspaceID        *string `json:"workspace_id"`
	Name               string  `json:"name" binding:"required"`
	Description        string  `json:"description"`
	Instructions       string  `json:"instructions"`
	Model              string  `json:"model" binding:"required"`
	Temperature        float64 `json:"temperature" binding:"omitempty,min=0,max=2"`
	MaxTokens          int     `json:"max_tokens" binding:"omitempty,min=100,max=128000"`
	MaxRetrievalChunks int     `json:"max_retrieval_chunks" binding:"omitempty,min=1,max=20"`
	MaxContextTokens   int     `json:"max_context_tokens" binding:"omitempty,min=512,max=16000"`
}

type updateAssistantRequest struct {
	Name               *string  `json:"name"`
	Description        *string  `json:"description"`
	Instructions       *string  `json:"instructions"`
	Model              *string  `json:"model"`
	Temperature        *float64 `json:"temperature" binding:"omitempty,min=0,max=2"`
	MaxTokens          *int     `json:"max_tokens" binding:"omitempty,min=100,max=128000"`
	MaxRetrievalChunks *int     `json:"max_retrieval_chunks" binding:"omitempty,min=1,max=20"`
	MaxContextTokens   *int     `json:"max_context_tokens" binding:"omitempty,min=512,max=16000"`
}

type createConversationRequest struct {
	AssistantID string `json:"assistant_id" binding:"required"`
}

type chatTurnRequest struct {
	Content string `json:"content" binding:"required"`
}

type createProviderKeyRequest struct {
	Provider  string `json:"provider" binding:"required"`
	Name      string `json:"name" binding:"required"`
	Key       string `json:"key" binding:"required"`
	IsDefault bool   `json:"is_default"`
}

type rotateProviderKeyRequest struct {
	Key string `json:"key" binding:"required"`
}

type createAPIKeyRequest struct {
	Name      string  `json:"name" binding:"required"`
	ExpiresIn *int    `json:"expires_in_days"`
}

type createAPIKeyResponse struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

type feedbackRequest struct {
	Feedback string  `json:"feedback" binding:"required,oneof=positive negative"`
	Reason   *string `json:"reason"`
}

// sseFrame renders one of the events listed in the wire spec for the
// chat streaming endpoint.
type sseFrame struct {
	Type          string               `json:"type"`
	MessageID     string               `json:"message_id,omitempty"`
	Content       string               `json:"content,omitempty"`
	TokensUsed    *tokensUsedDTO       `json:"tokens_used,omitempty"`
	Error         string               `json:"error,omitempty"`
	QuotaExceeded bool                 `json:"quota_exceeded,omitempty"`
}

type tokensUsedDTO struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func tokensDTO(t llmstream.TokensUsed) *tokensUsedDTO {
	return &tokensUsedDTO{PromptTokens: t.Prompt, CompletionTokens: t.Completion, TotalTokens: t.Total}
}

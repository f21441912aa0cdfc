// Package models defines the domain entities from the data model.
package models

import "time"

// UserRole is totally ordered admin > manager > user (see pkg/auth.RoleLevel).
type UserRole string

const (
	RoleAdmin   UserRole = "admin"
	RoleManager UserRole = "manager"
	RoleUser    UserRole = "user"
)

// FileType enumerates the accepted knowledge-file extensions.
type FileType string

const (
	FileTypePDF  FileType = "pdf"
	FileTypeDOCX FileType = "docx"
	FileTypeTXT  FileType = "txt"
	FileTypeMD   FileType = "md"
)

// FileStatus is the knowledge-file ingestion state machine (C5).
type FileStatus string

const (
	FileStatusPending    FileStatus = "pending"
	FileStatusProcessing FileStatus = "processing"
	FileStatusIndexing   FileStatus = "indexing"
	FileStatusReady      FileStatus = "ready"
	FileStatusFailed     FileStatus = "failed"
)

// MessageRole is one of system, user, assistant.
type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// QuotaScope is global or user.
type QuotaScope string

const (
	QuotaScopeGlobal QuotaScope = "global"
	QuotaScopeUser   QuotaScope = "user"
)

// Provider enumerates supported LLM providers for ProviderKey.
type Provider string

const (
	ProviderOpenRouter Provider = "openrouter"
	ProviderOpenAI     Provider = "openai"
	ProviderAnthropic  Provider = "anthropic"
	ProviderGoogle     Provider = "google"
	ProviderAzure      Provider = "azure"
	ProviderCustom     Provider = "custom"
)

// TestStatus is the outcome of a provider-key liveness probe.
type TestStatus string

const (
	TestStatusValid     TestStatus = "valid"
	TestStatusInvalid   TestStatus = "invalid"
	TestStatusUntested  TestStatus = "untested"
)

type Workspace struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Name         string     `json:"name"`
	Role         UserRole   `json:"role"`
	IsActive     bool       `json:"is_active"`
	IsVerified   bool       `json:"is_verified"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type UserApiKey struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Name      string     `json:"name"`
	KeyHash   string     `json:"-"`
	KeyPrefix string     `json:"key_prefix"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	IsActive  bool       `json:"is_active"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type Assistant struct {
	ID                 string  `json:"id"`
	WorkspaceID        *string `json:"workspace_id,omitempty"`
	Name               string  `json:"name"`
	Description        string  `json:"description"`
	Instructions       string  `json:"instructions"`
	Model              string  `json:"model"`
	Temperature        float64 `json:"temperature"`
	MaxTokens          int     `json:"max_tokens"`
	MaxRetrievalChunks int     `json:"max_retrieval_chunks"`
	MaxContextTokens   int     `json:"max_context_tokens"`
	AvatarURL          string  `json:"avatar_url,omitempty"`
	IsDeleted          bool    `json:"is_deleted"`
	CreatedAt          time.Time `json:"created_at"`
}

type KnowledgeFile struct {
	ID                   string     `json:"id"`
	AssistantID          string     `json:"assistant_id"`
	WorkspaceID          *string    `json:"workspace_id,omitempty"`
	Filename             string     `json:"filename"`
	FileType             FileType   `json:"file_type"`
	FilePath             string     `json:"file_path"`
	SizeBytes            int64      `json:"size_bytes"`
	ChunkCount           int        `json:"chunk_count"`
	Status               FileStatus `json:"status"`
	AttemptCount         int        `json:"attempt_count"`
	MaxAttempts          int        `json:"max_attempts"`
	ProcessingStartedAt  *time.Time `json:"processing_started_at,omitempty"`
	NextRetryAt          *time.Time `json:"next_retry_at,omitempty"`
	LastError            *string    `json:"last_error,omitempty"`
	ErrorMessage         *string    `json:"error_message,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

type Conversation struct {
	ID          string    `json:"id"`
	AssistantID *string   `json:"assistant_id,omitempty"`
	UserID      *string   `json:"user_id,omitempty"`
	WorkspaceID *string   `json:"workspace_id,omitempty"`
	Title       string    `json:"title"`
	CreatedAt   time.Time `json:"created_at"`
}

type Message struct {
	ID              string      `json:"id"`
	ConversationID  string      `json:"conversation_id"`
	Role            MessageRole `json:"role"`
	Content         string      `json:"content"`
	Model           *string     `json:"model,omitempty"`
	TokensUsed      *int        `json:"tokens_used,omitempty"`
	Feedback        *string     `json:"feedback,omitempty"`
	FeedbackReason  *string     `json:"feedback_reason,omitempty"`
	FeedbackContext *string     `json:"feedback_context,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}

type UsageLog struct {
	ID               string    `json:"id"`
	AssistantID      *string   `json:"assistant_id,omitempty"`
	ConversationID   *string   `json:"conversation_id,omitempty"`
	MessageID        *string   `json:"message_id,omitempty"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	CostUSD          float64   `json:"cost_usd"`
	CreatedAt        time.Time `json:"created_at"`
}

type UsageQuota struct {
	ID                     string     `json:"id"`
	Scope                  QuotaScope `json:"scope"`
	ScopeID                *string    `json:"scope_id,omitempty"`
	DailyCostLimitUSD      *float64   `json:"daily_cost_limit_usd,omitempty"`
	MonthlyCostLimitUSD    *float64   `json:"monthly_cost_limit_usd,omitempty"`
	DailyTokenLimit        *int       `json:"daily_token_limit,omitempty"`
	MonthlyTokenLimit      *int       `json:"monthly_token_limit,omitempty"`
	RequestsPerMinute      *int       `json:"requests_per_minute,omitempty"`
	RequestsPerHour        *int       `json:"requests_per_hour,omitempty"`
	AlertThresholdPercent  int        `json:"alert_threshold_percent"`
}

type ProviderKey struct {
	ID              string     `json:"id"`
	Provider        Provider   `json:"provider"`
	Name            string     `json:"name"`
	EncryptedKey    string     `json:"-"`
	IsActive        bool       `json:"is_active"`
	IsDefault       bool       `json:"is_default"`
	LastUsedAt      *time.Time `json:"last_used_at,omitempty"`
	LastTestedAt    *time.Time `json:"last_tested_at,omitempty"`
	TestStatus      TestStatus `json:"test_status"`
	TestError       *string    `json:"test_error,omitempty"`
	RotatedFromID   *string    `json:"rotated_from_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

type AuditLog struct {
	ID           string    `json:"id"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   *string   `json:"resource_id,omitempty"`
	Actor        string    `json:"actor"`
	ActorID      *string   `json:"actor_id,omitempty"`
	IPAddress    *string   `json:"ip_address,omitempty"`
	UserAgent    *string   `json:"user_agent,omitempty"`
	Details      *string   `json:"details,omitempty"`
	OldValues    *string   `json:"old_values,omitempty"`
	NewValues    *string   `json:"new_values,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Package chat implements the Chat Orchestrator (C8): the seven-step
// per-turn protocol that loads a conversation, admits it against quota,
// persists the user turn, composes the prompt, streams the assistant reply,
// and auto-titles new conversations.
package chat

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aihub-platform/backend/pkg/apperr"
	"github.com/aihub-platform/backend/pkg/llmstream"
	"github.com/aihub-platform/backend/pkg/models"
	"github.com/aihub-platform/backend/pkg/quota"
	"github.com/aihub-platform/backend/pkg/rag"
)

// TurnEventKind mirrors the SSE event vocabulary in spec §6.
type TurnEventKind string

const (
	TurnEventUserMessage            TurnEventKind = "user_message"
	TurnEventAssistantMessageStart  TurnEventKind = "assistant_message_start"
	TurnEventContent                TurnEventKind = "content"
	TurnEventDone                   TurnEventKind = "done"
	TurnEventError                  TurnEventKind = "error"
)

type TurnEvent struct {
	Kind TurnEventKind

	MessageID string // user_message, assistant_message_start, done

	Content string // content

	TokensUsed llmstream.TokensUsed // done

	ErrorKind    string // error
	ErrorMessage string // error
}

const newConversationTitle = "New Conversation"

// Caller identifies who is driving the turn, for ownership enforcement.
type Caller struct {
	UserID  string
	IsAdmin bool
}

type QuotaAdmitter interface {
	Admit(ctx context.Context, userID *string) (quota.Decision, error)
	LogUsage(ctx context.Context, pricer quota.Pricer, assistantID, conversationID, messageID *string, model string, promptTokens, completionTokens int) error
}

type Composer interface {
	Compose(ctx context.Context, assistant rag.Assistant, query string) (*rag.Result, error)
}

type Streamer interface {
	Stream(ctx context.Context, req llmstream.StreamRequest) <-chan llmstream.Event
	Cost(ctx context.Context, model string, tokens llmstream.TokensUsed) float64
}

type streamerPricerAdapter struct{ s Streamer }

func (a streamerPricerAdapter) Cost(ctx context.Context, model string, promptTokens, completionTokens int) float64 {
	return a.s.Cost(ctx, model, llmstream.TokensUsed{Prompt: promptTokens, Completion: completionTokens, Total: promptTokens + completionTokens})
}

type Orchestrator struct {
	pool     *pgxpool.Pool
	quotaSvc QuotaAdmitter
	composer Composer
	streamer Streamer
}

func New(pool *pgxpool.Pool, quotaSvc QuotaAdmitter, composer Composer, streamer Streamer) *Orchestrator {
	return &Orchestrator{pool: pool, quotaSvc: quotaSvc, composer: composer, streamer: streamer}
}

// conversationRow is the joined conversation+assistant state the
// orchestrator needs for one turn.
type conversationRow struct {
	ID          string
	AssistantID *string
	UserID      *string
	Title       string

	assistant rag.Assistant
	model     string
	temperature float64
	maxTokens   int
}

func (o *Orchestrator) loadConversation(ctx context.Context, conversationID string, caller Caller) (*conversationRow, error) {
	var c conversationRow
	var assistantID, userID *string
	var model *string
	var temperature *float64
	var maxTokens, maxRetrieval, maxContextTokens *int
	var assistantName, assistantInstructions *string

	err := o.pool.QueryRow(ctx, `
		SELECT c.id, c.assistant_id, c.user_id, c.title,
		       a.model, a.temperature, a.max_tokens, a.max_retrieval_chunks, a.max_context_tokens, a.name, a.instructions
		FROM conversations c
		LEFT JOIN assistants a ON a.id = c.assistant_id
		WHERE c.id = $1
	`, conversationID).Scan(&c.ID, &assistantID, &userID, &c.Title,
		&model, &temperature, &maxTokens, &maxRetrieval, &maxContextTokens, &assistantName, &assistantInstructions)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.NotFound("conversation not found")
		}
		return nil, fmt.Errorf("loading conversation: %w", err)
	}

	// Ownership: a non-admin caller may only act on their own conversation.
	// A mismatch is reported identically to not-found so existence is never
	// leaked (spec §4.8 step 1).
	if !caller.IsAdmin {
		if userID == nil || *userID != caller.UserID {
			return nil, apperr.NotFound("conversation not found")
		}
	}

	c.AssistantID = assistantID
	c.UserID = userID
	if model != nil {
		c.model = *model
	}
	if temperature != nil {
		c.temperature = *temperature
	}
	if maxTokens != nil {
		c.maxTokens = *maxTokens
	}
	if assistantID != nil {
		c.assistant = rag.Assistant{ID: *assistantID}
	}
	if assistantName != nil {
		c.assistant.Name = *assistantName
	}
	if assistantInstructions != nil {
		c.assistant.Instructions = *assistantInstructions
	}
	if maxRetrieval != nil {
		c.assistant.MaxRetrievalChunks = *maxRetrieval
	}
	if maxContextTokens != nil {
		c.assistant.MaxContextTokens = *maxContextTokens
	}

	return &c, nil
}

func (o *Orchestrator) priorMessages(ctx context.Context, conversationID string) ([]llmstream.Message, error) {
	rows, err := o.pool.Query(ctx, `
		SELECT role, content FROM messages WHERE conversation_id = $1 ORDER BY created_at ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading prior messages: %w", err)
	}
	defer rows.Close()

	var out []llmstream.Message
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		out = append(out, llmstream.Message{Role: role, Content: content})
	}
	return out, rows.Err()
}

func (o *Orchestrator) insertMessage(ctx context.Context, conversationID string, role models.MessageRole, content string) (string, error) {
	var id string
	err := o.pool.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, role, content) VALUES ($1, $2, $3) RETURNING id
	`, conversationID, role, content).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("inserting message: %w", err)
	}
	return id, nil
}

// Turn runs the full per-turn protocol, sending ordered events to the
// returned channel. The channel is closed after a terminal done or error
// event, matching C7's shape.
func (o *Orchestrator) Turn(ctx context.Context, conversationID, userContent string, caller Caller) <-chan TurnEvent {
	events := make(chan TurnEvent, 16)

	go func() {
		defer close(events)

		// 1. Load + ownership.
		conv, err := o.loadConversation(ctx, conversationID, caller)
		if err != nil {
			events <- TurnEvent{Kind: TurnEventError, ErrorKind: "ConversationNotFound", ErrorMessage: err.Error()}
			return
		}

		// 2. Admit.
		var userIDPtr *string
		if conv.UserID != nil {
			userIDPtr = conv.UserID
		}
		decision, err := o.quotaSvc.Admit(ctx, userIDPtr)
		if err != nil {
			events <- TurnEvent{Kind: TurnEventError, ErrorKind: "QuotaServiceUnavailable", ErrorMessage: err.Error()}
			return
		}
		if !decision.Allowed {
			events <- TurnEvent{Kind: TurnEventError, ErrorKind: "quota_exceeded", ErrorMessage: decision.Reason}
			return
		}

		// 3. Persist user message.
		userMsgID, err := o.insertMessage(ctx, conversationID, models.MessageRoleUser, userContent)
		if err != nil {
			events <- TurnEvent{Kind: TurnEventError, ErrorKind: "PersistenceFailure", ErrorMessage: err.Error()}
			return
		}
		events <- TurnEvent{Kind: TurnEventUserMessage, MessageID: userMsgID}

		// 4. Compose prompt.
		priorTurns, err := o.priorMessages(ctx, conversationID)
		if err != nil {
			events <- TurnEvent{Kind: TurnEventError, ErrorKind: "PersistenceFailure", ErrorMessage: err.Error()}
			return
		}
		// Exclude the just-persisted user turn (last row) since it is
		// appended separately below.
		if n := len(priorTurns); n > 0 {
			priorTurns = priorTurns[:n-1]
		}

		composed, err := o.composer.Compose(ctx, conv.assistant, userContent)
		if err != nil {
			events <- TurnEvent{Kind: TurnEventError, ErrorKind: "RetrievalFailure", ErrorMessage: err.Error()}
			return
		}

		messages := make([]llmstream.Message, 0, len(priorTurns)+2)
		messages = append(messages, llmstream.Message{Role: "system", Content: composed.SystemPrompt})
		messages = append(messages, priorTurns...)
		messages = append(messages, llmstream.Message{Role: "user", Content: userContent})

		// 5. Reserve assistant row.
		assistantMsgID, err := o.insertMessage(ctx, conversationID, models.MessageRoleAssistant, "")
		if err != nil {
			events <- TurnEvent{Kind: TurnEventError, ErrorKind: "PersistenceFailure", ErrorMessage: err.Error()}
			return
		}
		events <- TurnEvent{Kind: TurnEventAssistantMessageStart, MessageID: assistantMsgID}

		// 6. Stream.
		upstream := o.streamer.Stream(ctx, llmstream.StreamRequest{
			Messages:    messages,
			Model:       conv.model,
			Temperature: conv.temperature,
			MaxTokens:   conv.maxTokens,
		})

		for ev := range upstream {
			switch ev.Kind {
			case llmstream.EventContent:
				events <- TurnEvent{Kind: TurnEventContent, Content: ev.Content}
			case llmstream.EventDone:
				if err := o.finalizeAssistantMessage(ctx, assistantMsgID, conv, conversationID, ev); err != nil {
					events <- TurnEvent{Kind: TurnEventError, ErrorKind: "PersistenceFailure", ErrorMessage: err.Error()}
					return
				}
				events <- TurnEvent{Kind: TurnEventDone, MessageID: assistantMsgID, TokensUsed: ev.Tokens}
			case llmstream.EventError:
				// The partially filled assistant row is kept for
				// auditability, per spec §4.8 step 6.
				events <- TurnEvent{Kind: TurnEventError, ErrorKind: ev.ErrKind, ErrorMessage: ev.Err.Error()}
				return
			}
		}

		// 7. Auto-title.
		o.maybeAutoTitle(ctx, conversationID, conv.Title, userContent)
	}()

	return events
}

func (o *Orchestrator) finalizeAssistantMessage(ctx context.Context, assistantMsgID string, conv *conversationRow, conversationID string, done llmstream.Event) error {
	_, err := o.pool.Exec(ctx, `
		UPDATE messages SET content = $2, model = $3, tokens_used = $4 WHERE id = $1
	`, assistantMsgID, done.Accumulated, conv.model, done.Tokens.Total)
	if err != nil {
		return fmt.Errorf("finalizing assistant message: %w", err)
	}

	pricer := streamerPricerAdapter{s: o.streamer}
	if err := o.quotaSvc.LogUsage(ctx, pricer, conv.AssistantID, &conversationID, &assistantMsgID, conv.model, done.Tokens.Prompt, done.Tokens.Completion); err != nil {
		return fmt.Errorf("logging usage: %w", err)
	}
	return nil
}

// maybeAutoTitle sets the conversation title to a truncated prefix of the
// user's first message, if it is still the default placeholder.
func (o *Orchestrator) maybeAutoTitle(ctx context.Context, conversationID, currentTitle, userContent string) {
	if currentTitle != newConversationTitle || userContent == "" {
		return
	}
	title := AutoTitle(userContent)
	_, _ = o.pool.Exec(ctx, `UPDATE conversations SET title = $2 WHERE id = $1`, conversationID, title)
}

// AutoTitle truncates content to 50 characters, appending "..." if it was
// truncated (spec §4.8 step 7).
func AutoTitle(content string) string {
	runes := []rune(content)
	if len(runes) <= 50 {
		return content
	}
	return string(runes[:50]) + "..."
}

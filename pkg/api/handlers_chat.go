package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aihub-platform/backend/pkg/apperr"
	"github.com/aihub-platform/backend/pkg/chat"
)

// handleChatTurn streams one conversation turn as Server-Sent Events (spec
// §6), grounded on RAGbox's sendEvent/flusher idiom: write "data: <json>\n\n"
// per frame and flush immediately so the client sees tokens as they arrive.
func (s *Server) handleChatTurn(c *gin.Context) {
	var req chatTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation(err.Error()))
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		writeError(c, fmt.Errorf("streaming unsupported by response writer"))
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	events := s.orchestrator.Turn(c.Request.Context(), c.Param("id"), req.Content, callerFrom(c))
	for ev := range events {
		sendSSE(c.Writer, flusher, toFrame(ev))
	}
}

func toFrame(ev chat.TurnEvent) sseFrame {
	switch ev.Kind {
	case chat.TurnEventUserMessage:
		return sseFrame{Type: "user_message", MessageID: ev.MessageID}
	case chat.TurnEventAssistantMessageStart:
		return sseFrame{Type: "assistant_message_start", MessageID: ev.MessageID}
	case chat.TurnEventContent:
		return sseFrame{Type: "content", Content: ev.Content}
	case chat.TurnEventDone:
		return sseFrame{Type: "done", MessageID: ev.MessageID, TokensUsed: tokensDTO(ev.TokensUsed)}
	default: // chat.TurnEventError
		return sseFrame{Type: "error", Error: ev.ErrorMessage, QuotaExceeded: ev.ErrorKind == "quota_exceeded"}
	}
}

func sendSSE(w http.ResponseWriter, flusher http.Flusher, frame sseFrame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
	flusher.Flush()
}

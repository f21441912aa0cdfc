// Package reqctx carries per-request correlation and principal identity
// through every component so log lines can be joined post-hoc (C12).
//
// Instances are attached to a context.Context rather than exposed as
// ambient globals — per spec §9's "never expose as ambient globals inside
// the hot path — pass via a context object".
package reqctx

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey struct{}

// Principal identifies the authenticated caller for a request (C10 sets
// this after verifying a session token or API key).
type Principal struct {
	UserID string // the session subject; "admin" for the legacy sentinel
	Email  string
	Role   string
	IsAdminSentinel bool
}

// RequestContext is the value propagated through context.Context.
type RequestContext struct {
	CorrelationID  string
	Principal      *Principal // nil until auth middleware runs
	ConversationID string
	AssistantID    string
}

// New creates a RequestContext with a fresh correlation id.
func New() *RequestContext {
	return &RequestContext{CorrelationID: uuid.NewString()}
}

// WithContext attaches rc to ctx, returning the derived context.
func WithContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, rc)
}

// From retrieves the RequestContext previously attached via WithContext, or
// a fresh zero-value one if none is present (e.g. in a unit test that
// doesn't go through middleware).
func From(ctx context.Context) *RequestContext {
	if rc, ok := ctx.Value(ctxKey{}).(*RequestContext); ok && rc != nil {
		return rc
	}
	return New()
}

// LogFields returns the correlation/principal/conversation/assistant ids as
// a flat slice suitable for slog.With(...).
func (rc *RequestContext) LogFields() []any {
	fields := []any{"request_id", rc.CorrelationID}
	if rc.Principal != nil {
		fields = append(fields, "user_id", rc.Principal.UserID, "role", rc.Principal.Role)
	}
	if rc.ConversationID != "" {
		fields = append(fields, "conversation_id", rc.ConversationID)
	}
	if rc.AssistantID != "" {
		fields = append(fields, "assistant_id", rc.AssistantID)
	}
	return fields
}

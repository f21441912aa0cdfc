package api

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aihub-platform/backend/pkg/apperr"
	"github.com/aihub-platform/backend/pkg/auth"
	"github.com/aihub-platform/backend/pkg/models"
	"github.com/aihub-platform/backend/pkg/reqctx"
)

const (
	headerSessionToken = "X-Admin-Token"
	headerCSRFToken    = "X-CSRF-Token"
	headerRequestID    = "X-Request-ID"

	ctxKeyClaims = "session_claims"
)

// securityHeaders sets the fixed response headers required on every
// response (spec §6), grounded on the teacher's securityHeaders middleware.
func securityHeaders(production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		h.Set("Content-Security-Policy", "default-src 'self'")
		if production {
			h.Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		}
		c.Next()
	}
}

// requestID propagates X-Request-ID, generating one if absent, and attaches
// a reqctx.RequestContext carrying it through the handler chain (C12).
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := reqctx.New()
		if incoming := c.GetHeader(headerRequestID); incoming != "" {
			rc.CorrelationID = incoming
		}
		c.Header(headerRequestID, rc.CorrelationID)
		c.Request = c.Request.WithContext(reqctx.WithContext(c.Request.Context(), rc))
		c.Next()
	}
}

// sessionAuth verifies the session token in X-Admin-Token and attaches its
// claims to the gin context and the request's reqctx.RequestContext.
func sessionAuth(sm *auth.SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(headerSessionToken)
		if token == "" {
			writeError(c, apperr.Authentication("missing session token"))
			c.Abort()
			return
		}
		claims, err := sm.Verify(token)
		if err != nil {
			writeError(c, err)
			c.Abort()
			return
		}
		c.Set(ctxKeyClaims, claims)

		rc := reqctx.From(c.Request.Context())
		rc.Principal = &reqctx.Principal{
			UserID:          claims.Subject,
			Email:           claims.Email,
			Role:            claims.Role,
			IsAdminSentinel: claims.Subject == auth.LegacyAdminSubject,
		}
		c.Request = c.Request.WithContext(reqctx.WithContext(c.Request.Context(), rc))
		c.Next()
	}
}

// csrfRequired verifies X-CSRF-Token against the session's bound CSRF value
// on state-changing requests, in constant time.
func csrfRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := sessionClaims(c)
		if !ok {
			writeError(c, apperr.Authentication("no session"))
			c.Abort()
			return
		}
		if !auth.VerifyCSRF(claims, c.GetHeader(headerCSRFToken)) {
			writeError(c, apperr.Authorization("invalid CSRF token"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// requireRole enforces RBAC ordering admin > manager > user (C10).
func requireRole(minRole models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := sessionClaims(c)
		if !ok || !auth.RequireRole(claims, minRole) {
			writeError(c, apperr.Authorization("insufficient role"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func sessionClaims(c *gin.Context) (*auth.SessionClaims, bool) {
	v, ok := c.Get(ctxKeyClaims)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.SessionClaims)
	return claims, ok
}

// loginRateLimited rate-limits by client address independent of session
// state, used on the login route only.
func loginRateLimited(rl *auth.LoginRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		addr := clientAddr(c)
		if err := rl.Check(c.Request.Context(), addr); err != nil {
			writeError(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}

// categoryRateLimited enforces one of spec §6's per-IP ceilings (chat,
// upload, settings, key management) independent of session state. A no-op
// when rate limiting is disabled (RATE_LIMIT_ENABLED=false), mirroring
// loginRateLimited's shape for the login-specific counter.
func categoryRateLimited(rl *auth.RateLimiter, enabled bool, category auth.Category) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled {
			c.Next()
			return
		}
		if err := rl.Allow(c.Request.Context(), category, clientAddr(c)); err != nil {
			writeError(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}

func clientAddr(c *gin.Context) string {
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return c.ClientIP()
}

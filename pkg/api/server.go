// Package api wires the HTTP surface (§6 external interfaces): REST CRUD
// over the data model plus the Server-Sent-Events chat endpoint, built on
// gin-gonic/gin in place of the teacher's echo router. Route registration,
// the Set*/ValidateWiring fail-fast wiring pattern, and the lifecycle
// methods are adapted from the teacher's pkg/api/server.go.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aihub-platform/backend/pkg/audit"
	"github.com/aihub-platform/backend/pkg/auth"
	"github.com/aihub-platform/backend/pkg/chat"
	"github.com/aihub-platform/backend/pkg/config"
	"github.com/aihub-platform/backend/pkg/database"
	"github.com/aihub-platform/backend/pkg/ingestion"
	"github.com/aihub-platform/backend/pkg/metrics"
	"github.com/aihub-platform/backend/pkg/models"
	"github.com/aihub-platform/backend/pkg/quota"
	"github.com/aihub-platform/backend/pkg/vault"
	"github.com/aihub-platform/backend/pkg/vectorstore"
)

// Server owns the gin engine and every service the handlers dispatch to. It
// is assembled by cmd/server via the Set* methods, then validated once
// before Start, mirroring the teacher's fail-fast wiring discipline.
type Server struct {
	cfg *config.Config

	db           *database.Client
	vaultStore   *vault.Store
	quotaSvc     *quota.Service
	sessions     *auth.SessionManager
	loginLimiter *auth.LoginRateLimiter
	rateLimiter  *auth.RateLimiter
	apiKeys      *auth.APIKeyStore
	auditWriter  *audit.Writer
	files        *ingestion.Store
	vectors      *vectorstore.Store
	orchestrator *chat.Orchestrator

	metricsReg *prometheus.Registry

	engine     *gin.Engine
	httpServer *http.Server
}

// New creates an unwired Server. Callers must invoke every Set* method and
// then ValidateWiring before Start. The metrics registry needs no external
// wiring, so it is built eagerly here.
func New(cfg *config.Config) *Server {
	return &Server{cfg: cfg, metricsReg: metrics.NewRegistry()}
}

func (s *Server) SetDatabase(db *database.Client) *Server           { s.db = db; return s }
func (s *Server) SetVault(v *vault.Store) *Server                   { s.vaultStore = v; return s }
func (s *Server) SetQuota(q *quota.Service) *Server                 { s.quotaSvc = q; return s }
func (s *Server) SetSessions(sm *auth.SessionManager) *Server       { s.sessions = sm; return s }
func (s *Server) SetLoginLimiter(rl *auth.LoginRateLimiter) *Server { s.loginLimiter = rl; return s }
func (s *Server) SetRateLimiter(rl *auth.RateLimiter) *Server       { s.rateLimiter = rl; return s }
func (s *Server) SetAPIKeys(ak *auth.APIKeyStore) *Server           { s.apiKeys = ak; return s }
func (s *Server) SetAudit(w *audit.Writer) *Server                  { s.auditWriter = w; return s }
func (s *Server) SetFiles(f *ingestion.Store) *Server               { s.files = f; return s }
func (s *Server) SetVectorStore(v *vectorstore.Store) *Server       { s.vectors = v; return s }
func (s *Server) SetOrchestrator(o *chat.Orchestrator) *Server      { s.orchestrator = o; return s }

// ValidateWiring collects every missing dependency into one error instead
// of failing on the first nil field, so a misconfigured bootstrap reports
// its whole shortfall at once.
func (s *Server) ValidateWiring() error {
	var errs []error
	if s.db == nil {
		errs = append(errs, errors.New("database client not wired"))
	}
	if s.vaultStore == nil {
		errs = append(errs, errors.New("vault store not wired"))
	}
	if s.quotaSvc == nil {
		errs = append(errs, errors.New("quota service not wired"))
	}
	if s.sessions == nil {
		errs = append(errs, errors.New("session manager not wired"))
	}
	if s.loginLimiter == nil {
		errs = append(errs, errors.New("login rate limiter not wired"))
	}
	if s.rateLimiter == nil {
		errs = append(errs, errors.New("rate limiter not wired"))
	}
	if s.apiKeys == nil {
		errs = append(errs, errors.New("api key store not wired"))
	}
	if s.auditWriter == nil {
		errs = append(errs, errors.New("audit writer not wired"))
	}
	if s.files == nil {
		errs = append(errs, errors.New("ingestion store not wired"))
	}
	if s.vectors == nil {
		errs = append(errs, errors.New("vector store not wired"))
	}
	if s.orchestrator == nil {
		errs = append(errs, errors.New("chat orchestrator not wired"))
	}
	return errors.Join(errs...)
}

// setupRoutes registers every route. Static/non-parameterized paths are
// registered before their `:id` siblings, matching the teacher's ordering
// discipline for overlapping route trees.
func (s *Server) setupRoutes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(securityHeaders(s.cfg.Production))
	r.Use(requestID())

	r.GET("/health", s.healthHandler)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metricsReg, promhttp.HandlerOpts{})))

	v1 := r.Group("/api/v1")

	v1.POST("/auth/login", loginRateLimited(s.loginLimiter), s.handleLogin)

	authed := v1.Group("")
	authed.Use(sessionAuth(s.sessions))
	{
		authed.POST("/auth/logout", csrfRequired(), s.handleLogout)

		settingsLimited := categoryRateLimited(s.rateLimiter, s.cfg.RateLimitEnabled, auth.CategorySettings)
		uploadLimited := categoryRateLimited(s.rateLimiter, s.cfg.RateLimitEnabled, auth.CategoryUpload)
		chatLimited := categoryRateLimited(s.rateLimiter, s.cfg.RateLimitEnabled, auth.CategoryChat)
		keyMgmtLimited := categoryRateLimited(s.rateLimiter, s.cfg.RateLimitEnabled, auth.CategoryKeyMgmt)

		authed.GET("/assistants", s.handleListAssistants)
		authed.POST("/assistants", csrfRequired(), requireRole(models.RoleManager), settingsLimited, s.handleCreateAssistant)
		authed.GET("/assistants/:id", s.handleGetAssistant)
		authed.PATCH("/assistants/:id", csrfRequired(), requireRole(models.RoleManager), settingsLimited, s.handleUpdateAssistant)
		authed.DELETE("/assistants/:id", csrfRequired(), requireRole(models.RoleManager), settingsLimited, s.handleDeleteAssistant)

		authed.GET("/assistants/:id/files", s.handleListFiles)
		authed.POST("/assistants/:id/files", csrfRequired(), uploadLimited, s.handleUploadFile)
		authed.DELETE("/files/:fileID", csrfRequired(), s.handleDeleteFile)
		authed.POST("/files/:fileID/reprocess", csrfRequired(), uploadLimited, s.handleReprocessFile)

		authed.GET("/conversations", s.handleListConversations)
		authed.POST("/conversations", csrfRequired(), s.handleCreateConversation)
		authed.GET("/conversations/:id", s.handleGetConversation)
		authed.DELETE("/conversations/:id", csrfRequired(), s.handleDeleteConversation)
		authed.GET("/conversations/:id/messages", s.handleListMessages)
		authed.POST("/conversations/:id/messages", csrfRequired(), chatLimited, s.handleChatTurn)
		authed.POST("/messages/:messageID/feedback", csrfRequired(), s.handleMessageFeedback)

		authed.GET("/provider-keys", requireRole(models.RoleAdmin), s.handleListProviderKeys)
		authed.POST("/provider-keys", csrfRequired(), requireRole(models.RoleAdmin), keyMgmtLimited, s.handleCreateProviderKey)
		authed.POST("/provider-keys/:id/rotate", csrfRequired(), requireRole(models.RoleAdmin), keyMgmtLimited, s.handleRotateProviderKey)
		authed.POST("/provider-keys/:id/default", csrfRequired(), requireRole(models.RoleAdmin), keyMgmtLimited, s.handleSetDefaultProviderKey)
		authed.POST("/provider-keys/:id/test", requireRole(models.RoleAdmin), keyMgmtLimited, s.handleTestProviderKey)
		authed.DELETE("/provider-keys/:id", csrfRequired(), requireRole(models.RoleAdmin), keyMgmtLimited, s.handleDeleteProviderKey)

		authed.GET("/api-keys", s.handleListAPIKeys)
		authed.POST("/api-keys", csrfRequired(), keyMgmtLimited, s.handleCreateAPIKey)
		authed.DELETE("/api-keys/:id", csrfRequired(), keyMgmtLimited, s.handleRevokeAPIKey)

		authed.GET("/quota/status", s.handleQuotaStatus)
		authed.GET("/quota/alerts", requireRole(models.RoleManager), s.handleQuotaAlerts)

		authed.GET("/audit-logs", requireRole(models.RoleAdmin), s.handleAuditLogs)
	}

	s.engine = r
	return r
}

func (s *Server) healthHandler(c *gin.Context) {
	dbHealth, err := s.db.Health(c.Request.Context())
	status := http.StatusOK
	if err != nil {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": dbHealth.Status, "database": dbHealth})
}

// Start builds the route table and listens on cfg.ListenAddr().
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("binding listener: %w", err)
	}
	return s.StartWithListener(ctx, ln)
}

// StartWithListener runs the HTTP server on a caller-supplied listener,
// blocking until the context is cancelled or the server fails.
func (s *Server) StartWithListener(ctx context.Context, ln net.Listener) error {
	s.setupRoutes()
	s.httpServer = &http.Server{
		Handler:      s.engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming chat responses are unbounded
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.Serve(ln) }()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// Shutdown drains in-flight requests with a bounded grace period.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

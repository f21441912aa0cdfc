package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aihub-platform/backend/pkg/audit"
)

// handleAuditLogs exposes audit.Query's filter-by-action/resource/actor/date
// paging directly as query parameters.
func (s *Server) handleAuditLogs(c *gin.Context) {
	f := audit.Filter{
		Action:       c.Query("action"),
		ResourceType: c.Query("resource_type"),
		Actor:        c.Query("actor"),
		Limit:        queryInt(c, "limit", 50),
		Offset:       queryInt(c, "offset", 0),
	}

	records, err := audit.Query(c.Request.Context(), s.db.Pool, f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"audit_logs": records})
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleQuotaStatus(c *gin.Context) {
	caller := callerFrom(c)
	var userID *string
	if !caller.IsAdmin {
		userID = &caller.UserID
	}

	decision, err := s.quotaSvc.Admit(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"allowed": decision.Allowed,
		"reason":  decision.Reason,
		"usage":   decision.Usage,
		"limits":  decision.Limits,
	})
}

func (s *Server) handleQuotaAlerts(c *gin.Context) {
	alerts, err := s.quotaSvc.Alerts(c.Request.Context(), nil)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

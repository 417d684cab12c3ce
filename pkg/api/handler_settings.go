package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/starfleetai/bridge/pkg/models"
)

// getSettings handles GET /api/v1/settings. Fresh tenants get defaults.
func (s *Server) getSettings(c *gin.Context) {
	settings, err := s.store.Settings.Get(c.Request.Context(), tenantID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// putSettings handles PUT /api/v1/settings.
func (s *Server) putSettings(c *gin.Context) {
	var settings models.Settings
	if err := c.ShouldBindJSON(&settings); err != nil {
		bindError(c, err)
		return
	}

	if err := s.store.Settings.Put(c.Request.Context(), tenantID(c), settings); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

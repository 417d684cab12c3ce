package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/starfleetai/bridge/pkg/models"
)

type agentRequest struct {
	Name                     string `json:"name" binding:"required"`
	Description              string `json:"description"`
	SystemMessage            string `json:"system_message"`
	IsEnabled                bool   `json:"is_enabled"`
	IsCodeInterpreterEnabled bool   `json:"is_code_interpreter_enabled"`
	IsWebBrowserEnabled      bool   `json:"is_web_browser_enabled"`
	ExecutionStepsLimit      *int   `json:"execution_steps_limit"`
}

// createAgent handles POST /api/v1/agents.
func (s *Server) createAgent(c *gin.Context) {
	var req agentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	agent := models.Agent{
		TenantID:                 tenantID(c),
		Name:                     req.Name,
		Description:              req.Description,
		SystemMessage:            req.SystemMessage,
		IsEnabled:                req.IsEnabled,
		IsCodeInterpreterEnabled: req.IsCodeInterpreterEnabled,
		IsWebBrowserEnabled:      req.IsWebBrowserEnabled,
		ExecutionStepsLimit:      req.ExecutionStepsLimit,
	}
	if err := s.store.Agents.Create(c.Request.Context(), &agent); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, agent)
}

// listAgents handles GET /api/v1/agents.
func (s *Server) listAgents(c *gin.Context) {
	agents, err := s.store.Agents.List(c.Request.Context(), tenantID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, agents)
}

// getAgent handles GET /api/v1/agents/:id.
func (s *Server) getAgent(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	agent, err := s.store.Agents.Get(c.Request.Context(), tenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

// updateAgent handles PUT /api/v1/agents/:id.
func (s *Server) updateAgent(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req agentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	agent, err := s.store.Agents.Get(c.Request.Context(), tenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	agent.Name = req.Name
	agent.Description = req.Description
	agent.SystemMessage = req.SystemMessage
	agent.IsEnabled = req.IsEnabled
	agent.IsCodeInterpreterEnabled = req.IsCodeInterpreterEnabled
	agent.IsWebBrowserEnabled = req.IsWebBrowserEnabled
	agent.ExecutionStepsLimit = req.ExecutionStepsLimit

	if err := s.store.Agents.Update(c.Request.Context(), &agent); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

// deleteAgent handles DELETE /api/v1/agents/:id.
func (s *Server) deleteAgent(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := s.store.Agents.Delete(c.Request.Context(), tenantID(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type setAbilitiesRequest struct {
	AbilityIDs []uuid.UUID `json:"ability_ids"`
}

// setAgentAbilities handles PUT /api/v1/agents/:id/abilities: replaces the
// agent's curated ability set.
func (s *Server) setAgentAbilities(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req setAbilitiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	agent, err := s.store.Agents.Get(c.Request.Context(), tenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := s.store.Agents.SetAbilities(c.Request.Context(), agent.ID, req.AbilityIDs); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

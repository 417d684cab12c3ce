package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/starfleetai/bridge/pkg/abilities"
	"github.com/starfleetai/bridge/pkg/models"
)

type abilityRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Code        string `json:"code" binding:"required"`
}

// createAbility handles POST /api/v1/abilities. The ability's function
// definition is probed by running its code in the sandbox.
func (s *Server) createAbility(c *gin.Context) {
	var req abilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	code := abilities.PreprocessCode(req.Code)
	parameters, err := s.probeFunctionDefinition(c, code)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	ability := models.Ability{
		TenantID:       tenantID(c),
		Name:           req.Name,
		Description:    req.Description,
		Code:           code,
		ParametersJSON: parameters,
	}
	if err := s.store.Abilities.Create(c.Request.Context(), &ability); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ability)
}

// listAbilities handles GET /api/v1/abilities.
func (s *Server) listAbilities(c *gin.Context) {
	list, err := s.store.Abilities.List(c.Request.Context(), tenantID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// getAbility handles GET /api/v1/abilities/:id.
func (s *Server) getAbility(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	ability, err := s.store.Abilities.Get(c.Request.Context(), tenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ability)
}

// updateAbility handles PUT /api/v1/abilities/:id. The function definition
// is probed again since the code may have changed.
func (s *Server) updateAbility(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req abilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	ability, err := s.store.Abilities.Get(c.Request.Context(), tenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	code := abilities.PreprocessCode(req.Code)
	parameters, err := s.probeFunctionDefinition(c, code)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	ability.Name = req.Name
	ability.Description = req.Description
	ability.Code = code
	ability.ParametersJSON = parameters

	if err := s.store.Abilities.Update(c.Request.Context(), &ability); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ability)
}

// deleteAbility handles DELETE /api/v1/abilities/:id.
func (s *Server) deleteAbility(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := s.store.Abilities.Delete(c.Request.Context(), tenantID(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) probeFunctionDefinition(c *gin.Context, code string) (json.RawMessage, error) {
	function, err := s.abilities.GetFunctionDefinition(c.Request.Context(), code)
	if err != nil {
		return nil, fmt.Errorf("determining function definition: %w", err)
	}
	raw, err := json.Marshal(function)
	if err != nil {
		return nil, fmt.Errorf("serializing function definition: %w", err)
	}
	return raw, nil
}

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/starfleetai/bridge/pkg/models"
)

type modelRequest struct {
	Provider        models.Provider `json:"provider" binding:"required"`
	Name            string          `json:"name" binding:"required"`
	ContextLength   int             `json:"context_length"`
	MaxTokens       int             `json:"max_tokens"`
	TextIn          bool            `json:"text_in"`
	TextOut         bool            `json:"text_out"`
	ImageIn         bool            `json:"image_in"`
	ImageOut        bool            `json:"image_out"`
	AudioIn         bool            `json:"audio_in"`
	AudioOut        bool            `json:"audio_out"`
	FunctionCalling bool            `json:"function_calling"`
	APIURL          *string         `json:"api_url"`
	APIKey          *string         `json:"api_key"`
}

// createModel handles POST /api/v1/models.
func (s *Server) createModel(c *gin.Context) {
	var req modelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	model := models.Model{
		TenantID:        tenantID(c),
		Provider:        req.Provider,
		Name:            req.Name,
		ContextLength:   req.ContextLength,
		MaxTokens:       req.MaxTokens,
		TextIn:          req.TextIn,
		TextOut:         req.TextOut,
		ImageIn:         req.ImageIn,
		ImageOut:        req.ImageOut,
		AudioIn:         req.AudioIn,
		AudioOut:        req.AudioOut,
		FunctionCalling: req.FunctionCalling,
		APIURL:          req.APIURL,
		APIKey:          req.APIKey,
	}
	if err := s.store.Models.Create(c.Request.Context(), &model); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, model)
}

// listModels handles GET /api/v1/models.
func (s *Server) listModels(c *gin.Context) {
	list, err := s.store.Models.List(c.Request.Context(), tenantID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// deleteModel handles DELETE /api/v1/models/:id.
func (s *Server) deleteModel(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := s.store.Models.Delete(c.Request.Context(), tenantID(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

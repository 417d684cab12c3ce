package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/starfleetai/bridge/pkg/chat"
	"github.com/starfleetai/bridge/pkg/events"
	"github.com/starfleetai/bridge/pkg/models"
)

type createChatRequest struct {
	Title   string     `json:"title"`
	AgentID uuid.UUID  `json:"agent_id" binding:"required"`
	ModelID *uuid.UUID `json:"model_id"`
}

// createChat handles POST /api/v1/chats.
func (s *Server) createChat(c *gin.Context) {
	var req createChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	newChat := models.Chat{
		TenantID: tenantID(c),
		ModelID:  req.ModelID,
		Title:    req.Title,
		Kind:     models.ChatKindDirect,
	}
	if err := s.store.Chats.Create(c.Request.Context(), &newChat); err != nil {
		respondError(c, err)
		return
	}
	if err := s.store.Chats.AddAgent(c.Request.Context(), req.AgentID, newChat.ID); err != nil {
		respondError(c, err)
		return
	}
	s.emitter.Emit(c.Request.Context(), tenantID(c), events.KindChatCreated, newChat)

	c.JSON(http.StatusCreated, newChat)
}

// listChats handles GET /api/v1/chats. The kind query defaults to Direct.
func (s *Server) listChats(c *gin.Context) {
	kind := models.ChatKind(c.DefaultQuery("kind", string(models.ChatKindDirect)))

	chats, err := s.store.Chats.List(c.Request.Context(), tenantID(c), kind)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, chats)
}

// getChat handles GET /api/v1/chats/:id.
func (s *Server) getChat(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	found, err := s.store.Chats.Get(c.Request.Context(), tenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, found)
}

type updateChatRequest struct {
	Title    string     `json:"title"`
	IsPinned bool       `json:"is_pinned"`
	ModelID  *uuid.UUID `json:"model_id"`
}

// updateChat handles PUT /api/v1/chats/:id.
func (s *Server) updateChat(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req updateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	found, err := s.store.Chats.Get(c.Request.Context(), tenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	found.Title = req.Title
	found.IsPinned = req.IsPinned
	found.ModelID = req.ModelID

	if err := s.store.Chats.Update(c.Request.Context(), &found); err != nil {
		respondError(c, err)
		return
	}
	s.emitter.Emit(c.Request.Context(), tenantID(c), events.KindChatUpdated, found)

	c.JSON(http.StatusOK, found)
}

// deleteChat handles DELETE /api/v1/chats/:id.
func (s *Server) deleteChat(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := s.store.Chats.Delete(c.Request.Context(), tenantID(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// listMessages handles GET /api/v1/chats/:id/messages.
func (s *Server) listMessages(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	messages, err := s.store.Messages.ListByChat(c.Request.Context(), tenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

type createMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// createMessage handles POST /api/v1/chats/:id/messages: stores the user
// message and kicks off the assistant's reply in the background.
func (s *Server) createMessage(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req createMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	tenant := tenantID(c)
	found, err := s.store.Chats.Get(c.Request.Context(), tenant, id)
	if err != nil {
		respondError(c, err)
		return
	}

	message := models.Message{
		TenantID: tenant,
		ChatID:   found.ID,
		UserID:   userID(c),
		Status:   models.MessageStatusCompleted,
		Role:     models.RoleUser,
		Content:  &req.Text,
	}
	if err := s.store.Messages.Create(c.Request.Context(), &message); err != nil {
		respondError(c, err)
		return
	}
	s.emitter.Emit(c.Request.Context(), tenantID(c), events.KindMessageCreated, message)

	go s.completeChat(tenant, found.ID)

	c.JSON(http.StatusCreated, message)
}

// completeChat runs one completion round for a chat. Failures are logged;
// the failed assistant message carries the state for the client.
func (s *Server) completeChat(tenant, chatID uuid.UUID) {
	ctx := context.Background()

	settings, err := s.store.Settings.Get(ctx, tenant)
	if err != nil {
		slog.Error("Failed to load settings for completion", "chat_id", chatID, "error", err)
		return
	}
	model, err := s.store.Models.GetByFullName(ctx, tenant, settings.DefaultModel)
	if err != nil {
		slog.Error("Failed to load model for completion", "chat_id", chatID, "error", err)
		return
	}
	apiKey, ok := settings.APIKeys[model.Provider]
	if !ok {
		slog.Error("No api key configured for provider", "chat_id", chatID, "provider", model.Provider)
		return
	}

	if _, err := s.engine.CreateCompletion(ctx, tenant, chatID, &model, apiKey, chat.CompletionParams{}); err != nil {
		slog.Error("Chat completion failed", "chat_id", chatID, "error", err)
	}
}

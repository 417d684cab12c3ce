// Package api exposes the orchestration core over HTTP: tasks, chats,
// messages, agents, abilities, models and settings, all tenant-scoped.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/starfleetai/bridge/pkg/abilities"
	"github.com/starfleetai/bridge/pkg/chat"
	"github.com/starfleetai/bridge/pkg/database"
	"github.com/starfleetai/bridge/pkg/events"
	"github.com/starfleetai/bridge/pkg/planner"
	"github.com/starfleetai/bridge/pkg/queue"
	"github.com/starfleetai/bridge/pkg/repo"
)

// Server is the HTTP API server.
type Server struct {
	db        *database.Client
	store     *repo.Store
	emitter   events.Emitter
	planner   *planner.Planner
	pool      *queue.WorkerPool
	abilities *abilities.Service
	engine    *chat.Engine

	httpServer *http.Server
}

// NewServer creates a new API server.
func NewServer(
	db *database.Client,
	store *repo.Store,
	emitter events.Emitter,
	taskPlanner *planner.Planner,
	pool *queue.WorkerPool,
	abilityService *abilities.Service,
	engine *chat.Engine,
) *Server {
	return &Server{
		db:        db,
		store:     store,
		emitter:   emitter,
		planner:   taskPlanner,
		pool:      pool,
		abilities: abilityService,
		engine:    engine,
	}
}

// Routes builds the router.
func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/health", s.health)

	v1 := r.Group("/api/v1", requireTenant())
	{
		v1.POST("/tasks", s.createTask)
		v1.GET("/tasks", s.listTasks)
		v1.GET("/tasks/:id", s.getTask)
		v1.DELETE("/tasks/:id", s.deleteTask)
		v1.POST("/tasks/:id/plan", s.planTask)
		v1.POST("/tasks/:id/execute", s.executeTask)
		v1.POST("/tasks/:id/cancel", s.cancelTask)
		v1.GET("/tasks/:id/results", s.listTaskResults)

		v1.POST("/chats", s.createChat)
		v1.GET("/chats", s.listChats)
		v1.GET("/chats/:id", s.getChat)
		v1.PUT("/chats/:id", s.updateChat)
		v1.DELETE("/chats/:id", s.deleteChat)
		v1.GET("/chats/:id/messages", s.listMessages)
		v1.POST("/chats/:id/messages", s.createMessage)

		v1.POST("/agents", s.createAgent)
		v1.GET("/agents", s.listAgents)
		v1.GET("/agents/:id", s.getAgent)
		v1.PUT("/agents/:id", s.updateAgent)
		v1.DELETE("/agents/:id", s.deleteAgent)
		v1.PUT("/agents/:id/abilities", s.setAgentAbilities)

		v1.POST("/abilities", s.createAbility)
		v1.GET("/abilities", s.listAbilities)
		v1.GET("/abilities/:id", s.getAbility)
		v1.PUT("/abilities/:id", s.updateAbility)
		v1.DELETE("/abilities/:id", s.deleteAbility)

		v1.POST("/models", s.createModel)
		v1.GET("/models", s.listModels)
		v1.DELETE("/models/:id", s.deleteModel)

		v1.GET("/settings", s.getSettings)
		v1.PUT("/settings", s.putSettings)
	}

	return r
}

// Start begins serving. Blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// health reports liveness, including database reachability.
func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := s.db.Pool().Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

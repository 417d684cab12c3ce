package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/starfleetai/bridge/pkg/events"
	"github.com/starfleetai/bridge/pkg/models"
)

type createTaskRequest struct {
	Title        string     `json:"title" binding:"required"`
	Summary      string     `json:"summary"`
	AgentID      *uuid.UUID `json:"agent_id"`
	OriginChatID *uuid.UUID `json:"origin_chat_id"`
	Execute      bool       `json:"execute"`
}

// createTask handles POST /api/v1/tasks. A task is created as a Draft unless
// execute is set, in which case it goes straight to the queue.
func (s *Server) createTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	status := models.TaskStatusDraft
	if req.Execute {
		status = models.TaskStatusToDo
	}

	task := models.Task{
		TenantID:     tenantID(c),
		Title:        req.Title,
		Summary:      req.Summary,
		OriginChatID: req.OriginChatID,
		Status:       status,
	}
	if uid := userID(c); uid != nil {
		task.UserID = *uid
	}
	if req.AgentID != nil {
		task.AgentID = *req.AgentID
	}

	if err := s.store.Tasks.Create(c.Request.Context(), &task); err != nil {
		respondError(c, err)
		return
	}
	s.emitter.Emit(c.Request.Context(), tenantID(c), events.KindTaskCreated, task)

	c.JSON(http.StatusCreated, task)
}

// listTasks handles GET /api/v1/tasks. Root tasks only; children come with
// the task itself.
func (s *Server) listTasks(c *gin.Context) {
	tasks, err := s.store.Tasks.ListRoots(c.Request.Context(), tenantID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// getTask handles GET /api/v1/tasks/:id. The response carries the whole
// subtree under "children".
func (s *Server) getTask(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	task, err := s.store.Tasks.Get(c.Request.Context(), tenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	children, err := s.store.Tasks.ListAllChildren(c.Request.Context(), task.TenantID, task.ChildrenAncestry())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"task": task, "children": children})
}

// deleteTask handles DELETE /api/v1/tasks/:id. Removes the whole subtree.
func (s *Server) deleteTask(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	task, err := s.store.Tasks.Get(c.Request.Context(), tenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := s.store.Tasks.Delete(c.Request.Context(), task.TenantID, &task); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// planTask handles POST /api/v1/tasks/:id/plan.
func (s *Server) planTask(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	task, err := s.store.Tasks.Get(c.Request.Context(), tenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := s.planner.Plan(c.Request.Context(), &task); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// executeTask handles POST /api/v1/tasks/:id/execute: queues a root task for
// execution.
func (s *Server) executeTask(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	task, err := s.store.Tasks.Get(c.Request.Context(), tenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if task.Ancestry != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "only root tasks can be queued"})
		return
	}

	switch task.Status {
	case models.TaskStatusDraft, models.TaskStatusWaitingForUser, models.TaskStatusFailed:
	default:
		c.JSON(http.StatusConflict, gin.H{"error": "task is not in an executable state"})
		return
	}

	task, err = s.store.Tasks.UpdateStatus(c.Request.Context(), task.TenantID, task.ID, models.TaskStatusToDo)
	if err != nil {
		respondError(c, err)
		return
	}
	s.emitter.Emit(c.Request.Context(), tenantID(c), events.KindTaskUpdated, task)

	c.JSON(http.StatusOK, task)
}

// cancelTask handles POST /api/v1/tasks/:id/cancel. Cancels a task running
// on this process.
func (s *Server) cancelTask(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if !s.pool.CancelTask(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "task is not running"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// listTaskResults handles GET /api/v1/tasks/:id/results.
func (s *Server) listTaskResults(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	results, err := s.store.TaskResults.ListByTask(c.Request.Context(), tenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

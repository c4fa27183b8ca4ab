package handlers

import (
	"net/http"

	"flowtrack/backend/internal/apperrors"
	"flowtrack/backend/internal/models"
	"flowtrack/backend/internal/services"

	"github.com/gin-gonic/gin"
)

type TaskHandler struct {
	taskService *services.TaskService
}

func NewTaskHandler(taskService *services.TaskService) *TaskHandler {
	return &TaskHandler{taskService: taskService}
}

type moveTaskRequest struct {
	Status models.TaskStatus `json:"status" binding:"required"`
}

func (h *TaskHandler) Create(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req services.TaskInput
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, err)
		return
	}
	task, err := h.taskService.Create(c.Request.Context(), p, req)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (h *TaskHandler) List(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	skip, limit, ok := pagination(c)
	if !ok {
		return
	}
	projectID, ok := queryID(c, "project_id")
	if !ok {
		return
	}
	assignedTo, ok := queryID(c, "assigned_to")
	if !ok {
		return
	}

	tasks, err := h.taskService.List(c.Request.Context(), p, services.TaskFilters{
		ProjectID:  projectID,
		Status:     queryEnum[models.TaskStatus](c, "status"),
		Priority:   queryEnum[models.TaskPriority](c, "priority"),
		AssignedTo: assignedTo,
		Skip:       skip,
		Limit:      limit,
	})
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (h *TaskHandler) Get(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	task, err := h.taskService.Get(c.Request.Context(), p, id)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) Update(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.TaskPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, err)
		return
	}
	task, err := h.taskService.Update(c.Request.Context(), p, id, req)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) Delete(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.taskService.Delete(c.Request.Context(), p, id); err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TaskHandler) Move(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req moveTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, err)
		return
	}
	task, err := h.taskService.Move(c.Request.Context(), p, id, req.Status)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

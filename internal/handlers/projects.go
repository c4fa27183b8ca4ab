package handlers

import (
	"net/http"

	"flowtrack/backend/internal/apperrors"
	"flowtrack/backend/internal/models"
	"flowtrack/backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
)

type ProjectHandler struct {
	projectService *services.ProjectService
}

func NewProjectHandler(projectService *services.ProjectService) *ProjectHandler {
	return &ProjectHandler{projectService: projectService}
}

type addMemberRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

func (h *ProjectHandler) Create(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req services.ProjectInput
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, err)
		return
	}
	project, err := h.projectService.Create(c.Request.Context(), p, req)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, project)
}

func (h *ProjectHandler) List(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	skip, limit, ok := pagination(c)
	if !ok {
		return
	}
	projects, err := h.projectService.List(c.Request.Context(), p, services.ProjectFilters{
		Status: queryEnum[models.ProjectStatus](c, "status"),
		Name:   c.Query("name"),
		Skip:   skip,
		Limit:  limit,
	})
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, projects)
}

func (h *ProjectHandler) Get(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	project, err := h.projectService.Get(c.Request.Context(), p, id)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func (h *ProjectHandler) Update(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.ProjectPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, err)
		return
	}
	project, err := h.projectService.Update(c.Request.Context(), p, id, req)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func (h *ProjectHandler) Delete(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.projectService.Delete(c.Request.Context(), p, id); err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ProjectHandler) Progress(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	progress, err := h.projectService.Progress(c.Request.Context(), p, id)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

func (h *ProjectHandler) Members(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	members, err := h.projectService.Members(c.Request.Context(), p, id)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, members)
}

func (h *ProjectHandler) AddMember(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req addMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, err)
		return
	}
	if err := h.projectService.AddMember(c.Request.Context(), p, id, req.UserID); err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"project_id": id, "user_id": req.UserID})
}

func (h *ProjectHandler) RemoveMember(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	if err := h.projectService.RemoveMember(c.Request.Context(), p, id, userID); err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

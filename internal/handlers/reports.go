package handlers

import (
	"net/http"

	"flowtrack/backend/internal/apperrors"
	"flowtrack/backend/internal/services"

	"github.com/gin-gonic/gin"
)

type ReportHandler struct {
	dashboard *services.DashboardService
	reports   *services.ReportService
}

func NewReportHandler(dashboard *services.DashboardService, reports *services.ReportService) *ReportHandler {
	return &ReportHandler{dashboard: dashboard, reports: reports}
}

func (h *ReportHandler) Dashboard(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	dashboard, err := h.dashboard.Get(c.Request.Context(), p)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, dashboard)
}

func (h *ReportHandler) Project(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	report, err := h.reports.Project(c.Request.Context(), p, id)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *ReportHandler) TeamPerformance(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	report, err := h.reports.TeamPerformance(c.Request.Context(), p)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *ReportHandler) Workload(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	report, err := h.reports.Workload(c.Request.Context(), p)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

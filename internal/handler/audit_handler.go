package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ecoleplanner/timetable-api/internal/service"
	appErrors "github.com/ecoleplanner/timetable-api/pkg/errors"
	"github.com/ecoleplanner/timetable-api/pkg/response"
)

// AuditHandler manages the weekly uniqueness audit endpoints.
type AuditHandler struct {
	service *service.AuditService
}

// NewAuditHandler constructs handler.
func NewAuditHandler(svc *service.AuditService) *AuditHandler {
	return &AuditHandler{service: svc}
}

// ListPeriodicSessions godoc
// @Summary List periodic sessions
// @Tags Audit
// @Produce json
// @Param entityKey query string false "Filter by entity"
// @Success 200 {object} response.Envelope
// @Router /periodic-sessions [get]
func (h *AuditHandler) ListPeriodicSessions(c *gin.Context) {
	sessions, err := h.service.ListPeriodicSessions(c.Request.Context(), c.Query("entityKey"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil)
}

// CreatePeriodicSession godoc
// @Summary Register a periodic session occurrence
// @Description Stores the occurrence and immediately audits its week. When the occurrence breaks the one-per-week rule the raised alert is returned alongside it.
// @Tags Audit
// @Accept json
// @Produce json
// @Param payload body service.CreatePeriodicSessionRequest true "Occurrence payload"
// @Success 201 {object} response.Envelope
// @Router /periodic-sessions [post]
func (h *AuditHandler) CreatePeriodicSession(c *gin.Context) {
	var req service.CreatePeriodicSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	session, alert, err := h.service.CreatePeriodicSession(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	var meta map[string]interface{}
	if alert != nil {
		meta = map[string]interface{}{"duplicate_alert": alert}
	}
	response.JSON(c, http.StatusCreated, session, nil, meta)
}

// DeletePeriodicSession godoc
// @Summary Remove a periodic session occurrence
// @Tags Audit
// @Param id path string true "Occurrence ID"
// @Success 204
// @Router /periodic-sessions/{id} [delete]
func (h *AuditHandler) DeletePeriodicSession(c *gin.Context) {
	if err := h.service.DeletePeriodicSession(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RunAudit godoc
// @Summary Trigger a weekly uniqueness audit
// @Description Schedules an audit pass on the background worker. The pass sweeps every periodic session and raises one alert per entity and week holding more than one occurrence.
// @Tags Audit
// @Produce json
// @Success 202 {object} response.Envelope
// @Router /audits/weekly/run [post]
func (h *AuditHandler) RunAudit(c *gin.Context) {
	if err := h.service.EnqueueAudit(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, gin.H{"status": "scheduled"})
}

// ListAlerts godoc
// @Summary List duplicate alerts
// @Tags Audit
// @Produce json
// @Param status query string false "Filter by status (ACTIVE or RESOLVED)"
// @Success 200 {object} response.Envelope
// @Router /alerts [get]
func (h *AuditHandler) ListAlerts(c *gin.Context) {
	alerts, err := h.service.Alerts(c.Query("status"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, alerts, nil)
}

// GetAlert godoc
// @Summary Get duplicate alert
// @Tags Audit
// @Produce json
// @Param id path string true "Alert ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /alerts/{id} [get]
func (h *AuditHandler) GetAlert(c *gin.Context) {
	alert, err := h.service.GetAlert(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, alert, nil)
}

// ResolveAlert godoc
// @Summary Resolve a duplicate alert
// @Description Applies the supervisory decision: cancel one named occurrence or allow the duplication as an exception. Resolving an already resolved alert changes nothing.
// @Tags Audit
// @Accept json
// @Produce json
// @Param id path string true "Alert ID"
// @Param payload body service.ResolveAlertRequest true "Resolution payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /alerts/{id}/resolve [post]
func (h *AuditHandler) ResolveAlert(c *gin.Context) {
	var req service.ResolveAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	alert, err := h.service.Resolve(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	var meta map[string]interface{}
	if claims := claimsFromContext(c); claims != nil {
		meta = map[string]interface{}{"resolved_by": claims.UserID}
	}
	response.JSON(c, http.StatusOK, alert, nil, meta)
}

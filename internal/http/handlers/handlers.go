package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fibredesk/backend/internal/db"
	"github.com/fibredesk/backend/internal/geocode"
	"github.com/fibredesk/backend/internal/models"
	"github.com/fibredesk/backend/internal/planning"
)

type Handler struct {
	Store          *db.Store
	Engine         *planning.Engine
	Geocoder       geocode.Geocoder
	Validator      *validator.Validate
	Logger         zerolog.Logger
	CountryDefault string
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type CreateInterventionRequest struct {
	Type        string     `json:"type" validate:"required"`
	Description string     `json:"description"`
	ClientID    *string    `json:"client_id"`
	Address     string     `json:"address" validate:"required"`
	City        string     `json:"city" validate:"required"`
	PostalCode  string     `json:"postal_code"`
	Country     string     `json:"country"`
	Latitude    *float64   `json:"latitude"`
	Longitude   *float64   `json:"longitude"`
	Priority    string     `json:"priority" validate:"omitempty,oneof=critique haute normale basse"`
	SLAHours    int        `json:"sla_hours" validate:"omitempty,min=1"`
	Deadline    *time.Time `json:"deadline"`
	AutoAssign  *bool      `json:"auto_assign"`
}

// @Summary Create an intervention
// @Description Creates the intervention, geocoding the address when no coordinates are given, and triggers auto-assignment unless auto_assign=false
// @Tags interventions
// @Accept json
// @Produce json
// @Param payload body CreateInterventionRequest true "Intervention"
// @Success 201 {object} map[string]any
// @Failure 400 {object} map[string]any
// @Router /api/interventions [post]
func (h *Handler) CreateIntervention(c *gin.Context) {
	var req CreateInterventionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	now := time.Now()
	itv := models.Intervention{
		ID:          uuid.NewString(),
		Reference:   fmt.Sprintf("INT-%d", now.UnixMilli()),
		Type:        req.Type,
		Description: req.Description,
		ClientID:    req.ClientID,
		Address:     req.Address,
		City:        req.City,
		PostalCode:  req.PostalCode,
		Country:     req.Country,
		Priority:    req.Priority,
		Status:      models.StatusPending,
		SLAHours:    req.SLAHours,
		Deadline:    req.Deadline,
	}
	if itv.Country == "" {
		itv.Country = h.CountryDefault
	}
	if itv.Priority == "" {
		itv.Priority = models.PriorityNormal
	}
	if itv.SLAHours == 0 {
		itv.SLAHours = 48
	}
	if itv.Deadline == nil {
		d := now.Add(time.Duration(itv.SLAHours) * time.Hour)
		itv.Deadline = &d
	}
	itv.PlanningMode = models.PlanningModeAuto

	if req.Latitude != nil && req.Longitude != nil {
		itv.Latitude = *req.Latitude
		itv.Longitude = *req.Longitude
	} else if h.Geocoder != nil {
		query := geocode.BuildQuery(itv.Address, itv.PostalCode, itv.City, itv.Country)
		lat, lon, err := h.Geocoder.Geocode(c.Request.Context(), query)
		if err != nil {
			// Stored at (0,0); distance scoring degrades but assignment
			// still works.
			h.Logger.Warn().Err(err).Str("query", query).Msg("geocode failed")
		} else {
			itv.Latitude = lat
			itv.Longitude = lon
		}
	}

	if err := h.Store.CreateIntervention(c.Request.Context(), itv); err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to create intervention", err.Error())
		return
	}

	resp := gin.H{"intervention_id": itv.ID, "reference": itv.Reference}
	if req.AutoAssign == nil || *req.AutoAssign {
		result, err := h.Engine.AutoAssign(c.Request.Context(), itv.ID)
		if err != nil {
			writeError(c, http.StatusInternalServerError, "PLANNING_ERROR", "Auto-assignment failed", err.Error())
			return
		}
		resp["planning"] = result
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) InterventionsList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	filter := db.InterventionFilter{
		Country:      c.Query("country"),
		Status:       c.Query("status"),
		TechnicianID: c.Query("technician_id"),
		Limit:        limit,
		Offset:       offset,
	}
	items, err := h.Store.ListInterventions(c.Request.Context(), filter)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list interventions", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "limit": filter.Limit, "offset": filter.Offset})
}

func (h *Handler) InterventionDetails(c *gin.Context) {
	itv, err := h.Store.GetIntervention(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "Intervention not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to get intervention", err.Error())
		return
	}
	c.JSON(http.StatusOK, itv)
}

func (h *Handler) InterventionHistory(c *gin.Context) {
	items, err := h.Store.GetInterventionHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load history", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// @Summary Auto-assign an intervention
// @Description Runs eligibility, scoring and slot search for a pending intervention
// @Tags planning
// @Produce json
// @Param id path string true "Intervention ID"
// @Success 200 {object} models.PlanningResult
// @Router /api/interventions/{id}/assign [post]
func (h *Handler) Assign(c *gin.Context) {
	result, err := h.Engine.AutoAssign(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, http.StatusInternalServerError, "PLANNING_ERROR", "Auto-assignment failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, result)
}

// @Summary Replan an intervention
// @Tags planning
// @Produce json
// @Param id path string true "Intervention ID"
// @Success 200 {object} models.PlanningResult
// @Router /api/interventions/{id}/replan [post]
func (h *Handler) Replan(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.Store.GetIntervention(c.Request.Context(), id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "Intervention not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load intervention", err.Error())
		return
	}
	result, err := h.Engine.Replan(c.Request.Context(), id)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "PLANNING_ERROR", "Replanning failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, result)
}

type ManualAssignRequest struct {
	TechnicianID string `json:"technician_id" validate:"required"`
	Date         string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime    string `json:"start_time" validate:"required,datetime=15:04"`
	EndTime      string `json:"end_time" validate:"required,datetime=15:04"`
	Reason       string `json:"reason" validate:"required"`
	PerformedBy  string `json:"performed_by"`
}

// @Summary Manually assign an intervention
// @Description Dispatcher override: bypasses eligibility, scoring and slot search
// @Tags planning
// @Accept json
// @Produce json
// @Param id path string true "Intervention ID"
// @Param payload body ManualAssignRequest true "Assignment"
// @Success 200 {object} models.PlanningResult
// @Router /api/interventions/{id}/manual-assign [post]
func (h *Handler) ManualAssign(c *gin.Context) {
	id := c.Param("id")
	var req ManualAssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	if _, err := h.Store.GetIntervention(c.Request.Context(), id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "Intervention not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load intervention", err.Error())
		return
	}

	result, err := h.Engine.ManualAssign(c.Request.Context(), planning.ManualAssignParams{
		InterventionID: id,
		TechnicianID:   req.TechnicianID,
		Date:           req.Date,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		Reason:         req.Reason,
		PerformedBy:    req.PerformedBy,
	})
	if err != nil {
		writeError(c, http.StatusInternalServerError, "PLANNING_ERROR", "Manual assignment failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, result)
}

type CancelRequest struct {
	Reason      string `json:"reason"`
	PerformedBy string `json:"performed_by"`
}

func (h *Handler) CancelIntervention(c *gin.Context) {
	var req CancelRequest
	_ = c.ShouldBindJSON(&req)

	ok, err := h.Store.CancelIntervention(c.Request.Context(), c.Param("id"), req.PerformedBy, req.Reason)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to cancel intervention", err.Error())
		return
	}
	if !ok {
		writeError(c, http.StatusConflict, "INVALID_STATE", "Intervention is already terminal", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.StatusCancelled})
}

type ActorRequest struct {
	PerformedBy string `json:"performed_by"`
}

func (h *Handler) StartIntervention(c *gin.Context) {
	var req ActorRequest
	_ = c.ShouldBindJSON(&req)

	ok, err := h.Store.StartIntervention(c.Request.Context(), c.Param("id"), req.PerformedBy)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to start intervention", err.Error())
		return
	}
	if !ok {
		writeError(c, http.StatusConflict, "INVALID_STATE", "Intervention is not in a startable status", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.StatusInProgress})
}

type CompleteRequest struct {
	Report      string `json:"report"`
	PerformedBy string `json:"performed_by"`
}

func (h *Handler) CompleteIntervention(c *gin.Context) {
	var req CompleteRequest
	_ = c.ShouldBindJSON(&req)

	ok, err := h.Store.CompleteIntervention(c.Request.Context(), c.Param("id"), req.PerformedBy, req.Report)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to complete intervention", err.Error())
		return
	}
	if !ok {
		writeError(c, http.StatusConflict, "INVALID_STATE", "Intervention is not in progress", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.StatusCompleted})
}

type JustifyDelayRequest struct {
	Justification string `json:"justification" validate:"required"`
	JustifiedBy   string `json:"justified_by" validate:"required"`
}

func (h *Handler) JustifyDelay(c *gin.Context) {
	var req JustifyDelayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	err := h.Store.JustifyDelay(c.Request.Context(), c.Param("id"), req.Justification, req.JustifiedBy)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "No violation recorded for this intervention", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to justify delay", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) TechniciansList(c *gin.Context) {
	items, err := h.Store.ListTechnicians(c.Request.Context(), c.Query("country"))
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list technicians", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type GPSUpdateRequest struct {
	Latitude  float64 `json:"latitude" validate:"required,min=-90,max=90"`
	Longitude float64 `json:"longitude" validate:"required,min=-180,max=180"`
}

func (h *Handler) UpdateTechnicianGPS(c *gin.Context) {
	var req GPSUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	err := h.Store.UpdateTechnicianGPS(c.Request.Context(), c.Param("id"), req.Latitude, req.Longitude)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "Technician not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to update position", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) NotificationsList(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "user_id is required", nil)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	items, err := h.Store.ListNotifications(c.Request.Context(), userID, limit)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list notifications", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) MarkNotificationRead(c *gin.Context) {
	err := h.Store.MarkNotificationRead(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "Notification not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to mark notification", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) SLAReport(c *gin.Context) {
	items, err := h.Store.SLAReport(c.Request.Context(), c.Query("country"))
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to build SLA report", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) DashboardStats(c *gin.Context) {
	stats, err := h.Store.DashboardStats(c.Request.Context(), c.Query("country"))
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to build stats", err.Error())
		return
	}
	c.JSON(http.StatusOK, stats)
}

// @Summary Trigger the SLA sweep
// @Description Marks every overdue open intervention as delayed and returns the count
// @Tags sla
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/sla/check [post]
func (h *Handler) CheckSLA(c *gin.Context) {
	marked, err := h.Engine.CheckSLAViolations(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, "SWEEP_ERROR", "SLA sweep failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": marked})
}

// @Summary Debug eligibility
// @Description Shows which filter stage each technician fell out at for an intervention
// @Tags debug
// @Produce json
// @Param intervention_id query string true "Intervention ID"
// @Success 200 {object} map[string]any
// @Router /api/debug/eligibility [get]
func (h *Handler) DebugEligibility(c *gin.Context) {
	interventionID := strings.TrimSpace(c.Query("intervention_id"))
	if interventionID == "" {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "intervention_id is required", nil)
		return
	}

	itv, err := h.Store.GetIntervention(c.Request.Context(), interventionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "Intervention not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load intervention", err.Error())
		return
	}

	elig, err := h.Engine.Eligibility(c.Request.Context(), itv)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to evaluate eligibility", err.Error())
		return
	}

	stageIDs := map[string][]string{}
	for _, stage := range elig.Stages {
		var ids []string
		for _, cand := range stage.Candidates {
			ids = append(ids, cand.ID)
		}
		stageIDs[stage.Name] = ids
	}

	var eligibleIDs []string
	for _, cand := range elig.Candidates {
		eligibleIDs = append(eligibleIDs, cand.ID)
	}

	c.JSON(http.StatusOK, gin.H{
		"intervention_id": itv.ID,
		"required_skills": elig.RequiredSkills,
		"stages":          stageIDs,
		"final": gin.H{
			"eligible":    eligibleIDs,
			"reason_code": elig.ReasonCode,
			"reason_text": elig.ReasonText,
		},
	})
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

// README: Booking-flow handlers; one endpoint per flow operation.
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"keralaride/internal/http/middleware"
	"keralaride/internal/modules/booking"
	"keralaride/internal/modules/flow"
	"keralaride/internal/types"
)

type FlowHandler struct {
	flow *flow.Service
}

func NewFlowHandler(svc *flow.Service) *FlowHandler {
	return &FlowHandler{flow: svc}
}

type choosePlaceReq struct {
	PlaceID string `json:"place_id" binding:"required"`
}

type submitReq struct {
	Phone string `json:"phone"`
	Date  string `json:"date"`
	Time  string `json:"time"`
}

// Start handles POST /api/flows.
func (h *FlowHandler) Start(c *gin.Context) {
	sess, err := h.flow.Start(c.Request.Context(), middleware.CallerID(c))
	if err != nil {
		writeFlowError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, sess)
}

// Get handles GET /api/flows/:id.
func (h *FlowHandler) Get(c *gin.Context) {
	sess, err := h.flow.Get(c.Request.Context(), middleware.CallerID(c), c.Param("id"))
	if err != nil {
		writeFlowError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, sess)
}

// Suggest handles GET /api/flows/:id/places/:field?q=.
func (h *FlowHandler) Suggest(c *gin.Context) {
	field, err := flow.ParseField(c.Param("field"))
	if err != nil {
		writeFlowError(c, err)
		return
	}
	places, err := h.flow.Suggest(c.Request.Context(), middleware.CallerID(c), c.Param("id"), field, c.Query("q"))
	if err != nil {
		writeFlowError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"field": field, "places": places})
}

// ChoosePlace handles POST /api/flows/:id/places/:field.
func (h *FlowHandler) ChoosePlace(c *gin.Context) {
	field, err := flow.ParseField(c.Param("field"))
	if err != nil {
		writeFlowError(c, err)
		return
	}
	var req choosePlaceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "place_id is required")
		return
	}
	sess, err := h.flow.ChoosePlace(c.Request.Context(), middleware.CallerID(c), c.Param("id"), field, strings.TrimSpace(req.PlaceID))
	if err != nil {
		writeFlowError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, sess)
}

// PlanRoutes handles POST /api/flows/:id/routes.
func (h *FlowHandler) PlanRoutes(c *gin.Context) {
	sess, err := h.flow.PlanRoutes(c.Request.Context(), middleware.CallerID(c), c.Param("id"))
	if err != nil {
		writeFlowError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, sess)
}

// SelectRoute handles POST /api/flows/:id/routes/:index/select.
func (h *FlowHandler) SelectRoute(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		writeFlowError(c, flow.ErrInvalidRoute)
		return
	}
	sess, err := h.flow.SelectRoute(c.Request.Context(), middleware.CallerID(c), c.Param("id"), index)
	if err != nil {
		writeFlowError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, sess)
}

// LoadVehicles handles GET /api/flows/:id/vehicles.
func (h *FlowHandler) LoadVehicles(c *gin.Context) {
	sess, err := h.flow.LoadVehicles(c.Request.Context(), middleware.CallerID(c), middleware.CallerToken(c), c.Param("id"))
	if err != nil {
		writeFlowError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, sess)
}

// SelectVehicle handles POST /api/flows/:id/vehicles/:vehicleId/select.
func (h *FlowHandler) SelectVehicle(c *gin.Context) {
	sess, err := h.flow.SelectVehicle(c.Request.Context(), middleware.CallerID(c), c.Param("id"), types.ID(c.Param("vehicleId")))
	if err != nil {
		writeFlowError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, sess)
}

// BeginContact handles POST /api/flows/:id/contact.
func (h *FlowHandler) BeginContact(c *gin.Context) {
	sess, err := h.flow.BeginContact(c.Request.Context(), middleware.CallerID(c), c.Param("id"))
	if err != nil {
		writeFlowError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, sess)
}

// Submit handles POST /api/flows/:id/submit. A failed post answers 502 with
// the session, which is then in submission_failed. A booking that was
// created but could not be saved to the session still answers 201 with its
// confirmation.
func (h *FlowHandler) Submit(c *gin.Context) {
	var req submitReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	contact := booking.ContactInfo{Phone: req.Phone, Date: req.Date, Time: req.Time}

	sess, err := h.flow.Submit(c.Request.Context(), middleware.CallerID(c), middleware.CallerToken(c), c.Param("id"), contact)
	var serr *booking.SubmissionError
	switch {
	case err == nil:
		writeJSON(c, http.StatusCreated, sess)
	case errors.Is(err, flow.ErrOutcomeNotSaved) && sess != nil && sess.Confirmation != nil:
		_ = c.Error(err)
		writeJSON(c, http.StatusCreated, sess)
	case errors.As(err, &serr) && sess != nil:
		writeJSON(c, http.StatusBadGateway, gin.H{"error": serr.Error(), "session": sess})
	default:
		writeFlowError(c, err)
	}
}

// Retry handles POST /api/flows/:id/retry.
func (h *FlowHandler) Retry(c *gin.Context) {
	sess, err := h.flow.Retry(c.Request.Context(), middleware.CallerID(c), c.Param("id"))
	if err != nil {
		writeFlowError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, sess)
}

// Reset handles POST /api/flows/:id/reset.
func (h *FlowHandler) Reset(c *gin.Context) {
	sess, err := h.flow.Reset(c.Request.Context(), middleware.CallerID(c), c.Param("id"))
	if err != nil {
		writeFlowError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, sess)
}

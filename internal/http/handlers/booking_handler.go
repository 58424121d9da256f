// README: Booking handlers for listing bookings and moving their status.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"keralaride/internal/http/middleware"
	"keralaride/internal/modules/booking"
)

type BookingHandler struct {
	booking *booking.Service
}

func NewBookingHandler(svc *booking.Service) *BookingHandler {
	return &BookingHandler{booking: svc}
}

type updateStatusReq struct {
	Status string `json:"status" binding:"required"`
}

// List handles GET /api/bookings.
func (h *BookingHandler) List(c *gin.Context) {
	bookings, err := h.booking.List(c.Request.Context(), middleware.CallerToken(c))
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"bookings": bookings})
}

// UpdateStatus handles PUT /api/bookings/:id/status.
func (h *BookingHandler) UpdateStatus(c *gin.Context) {
	var req updateStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "status is required")
		return
	}
	to, ok := booking.ParseStatus(req.Status)
	if !ok {
		writeError(c, http.StatusBadRequest, "unknown status")
		return
	}
	id := c.Param("id")
	if err := h.booking.UpdateStatus(c.Request.Context(), middleware.CallerToken(c), id, to); err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"bookingId": id, "status": to})
}

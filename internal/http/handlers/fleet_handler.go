// README: Fleet handlers; driver listing, the driver's own vehicles and fare quotes.
package handlers

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"keralaride/internal/http/middleware"
	"keralaride/internal/modules/fleet"
	"keralaride/internal/modules/pricing"
	"keralaride/internal/types"
)

type FleetHandler struct {
	fleet   *fleet.Service
	pricing *pricing.Service
}

func NewFleetHandler(fleetSvc *fleet.Service, pricingSvc *pricing.Service) *FleetHandler {
	return &FleetHandler{fleet: fleetSvc, pricing: pricingSvc}
}

// Drivers handles GET /api/drivers. Only drivers with a vehicle are listed.
func (h *FleetHandler) Drivers(c *gin.Context) {
	drivers, err := h.fleet.ListDrivers(c.Request.Context(), middleware.CallerToken(c))
	if err != nil {
		writeFlowError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"drivers": drivers})
}

// MyVehicles handles GET /api/vehicles/mine for a signed-in driver.
func (h *FleetHandler) MyVehicles(c *gin.Context) {
	email := middleware.CallerID(c)
	if !strings.Contains(email, "@") {
		writeError(c, http.StatusBadRequest, "token carries no email")
		return
	}
	vehicles, err := h.fleet.VehiclesByEmail(c.Request.Context(), middleware.CallerToken(c), email)
	if err != nil {
		writeFlowError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"vehicles": vehicles})
}

// Quote handles GET /api/fares/quote?distance_m=&vehicle_id=. Without a
// vehicle the legacy flat formula applies.
func (h *FleetHandler) Quote(c *gin.Context) {
	distance, err := strconv.ParseFloat(c.Query("distance_m"), 64)
	if err != nil || distance < 0 || math.IsNaN(distance) || math.IsInf(distance, 0) {
		writeError(c, http.StatusBadRequest, "distance_m must be a non-negative number")
		return
	}

	var fs *pricing.FareStructure
	if id := c.Query("vehicle_id"); id != "" {
		drivers, err := h.fleet.ListDrivers(c.Request.Context(), middleware.CallerToken(c))
		if err != nil {
			writeFlowError(c, err)
			return
		}
		v, _, err := fleet.FindVehicle(drivers, types.ID(id))
		if err != nil {
			writeFlowError(c, err)
			return
		}
		fs = v.FareStructure
	}
	writeJSON(c, http.StatusOK, h.pricing.Quote(distance, fs))
}

// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"keralaride/internal/ai"
	"keralaride/internal/apiclient"
	"keralaride/internal/maps"
	"keralaride/internal/modules/aiusage"
	"keralaride/internal/modules/booking"
	"keralaride/internal/modules/fleet"
	"keralaride/internal/modules/flow"
)

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
	Status string            `json:"status,omitempty"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeFlowError maps errors from the booking flow and everything it calls.
func writeFlowError(c *gin.Context, err error) {
	var (
		verr *booking.ValidationError
		serr *booking.SubmissionError
		rerr *maps.RoutingError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(c, http.StatusUnprocessableEntity, errorResponse{Error: "invalid contact info", Fields: verr.Fields})
	case errors.As(err, &serr):
		writeJSON(c, http.StatusBadGateway, errorResponse{Error: serr.Error()})
	case errors.As(err, &rerr):
		status := http.StatusBadGateway
		switch rerr.Status {
		case "ZERO_RESULTS", "NOT_FOUND", "INVALID_REQUEST":
			status = http.StatusUnprocessableEntity
		}
		writeJSON(c, status, errorResponse{Error: "no route found", Status: rerr.Status})
	case errors.Is(err, flow.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, flow.ErrInvalidState), errors.Is(err, flow.ErrConflict), errors.Is(err, flow.ErrStale):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, flow.ErrInvalidField), errors.Is(err, flow.ErrInvalidRoute),
		errors.Is(err, flow.ErrIncompletePlaces), errors.Is(err, maps.ErrNoPlace),
		errors.Is(err, fleet.ErrVehicleNotFound), errors.Is(err, booking.ErrMissingSelection):
		writeError(c, http.StatusBadRequest, err.Error())
	default:
		writeUpstreamError(c, err)
	}
}

func writeBookingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, booking.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, booking.ErrInvalidTransition):
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeUpstreamError(c, err)
	}
}

func writeVoiceError(c *gin.Context, err error) {
	var rl *ai.RateLimitError
	switch {
	case errors.Is(err, aiusage.ErrInsufficientTokens):
		writeError(c, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, aiusage.ErrDisabled):
		writeError(c, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, ai.ErrEmptyTranscript):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.As(err, &rl):
		if rl.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(rl.RetryAfter.Round(time.Second)/time.Second)))
		}
		writeError(c, http.StatusServiceUnavailable, "voice assistant is busy, try again shortly")
	default:
		writeUpstreamError(c, err)
	}
}

// writeUpstreamError covers failures of the booking API and timeouts.
func writeUpstreamError(c *gin.Context, err error) {
	var serr *apiclient.StatusError
	switch {
	case errors.Is(err, apiclient.ErrUnauthorized):
		writeError(c, http.StatusUnauthorized, "booking API rejected the token")
	case errors.Is(err, apiclient.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(c, http.StatusGatewayTimeout, "upstream timed out")
	case errors.As(err, &serr), errors.Is(err, apiclient.ErrMalformedPayload):
		writeError(c, http.StatusBadGateway, "booking API error")
	default:
		logrus.WithError(err).WithField("path", c.FullPath()).Error("unhandled error")
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

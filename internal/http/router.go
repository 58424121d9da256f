// README: HTTP router registration.
package http

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"keralaride/internal/http/handlers"
	"keralaride/internal/http/middleware"
	"keralaride/internal/modules/aiusage"
	"keralaride/internal/modules/booking"
	"keralaride/internal/modules/fleet"
	"keralaride/internal/modules/flow"
	"keralaride/internal/modules/pricing"
)

const defaultIdempotencyTTL = 24 * time.Hour

type RouterDeps struct {
	Flow    *flow.Service
	Booking *booking.Service
	Fleet   *fleet.Service
	Pricing *pricing.Service
	// Voice is nil when no quota store or LLM provider is configured.
	Voice *aiusage.Service

	// Redis backs Idempotency-Key handling on submit; nil disables it.
	Redis          redis.Cmdable
	IdempotencyTTL time.Duration

	JWTSecret      string
	AllowedOrigins []string
	Location       *time.Location
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Logging(), middleware.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     deps.AllowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", middleware.HeaderIdempotencyKey, middleware.HeaderRequestID},
		ExposeHeaders:    []string{middleware.HeaderRequestID, middleware.HeaderIdempotencyHit, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api", middleware.Auth(deps.JWTSecret))

	flowHandler := handlers.NewFlowHandler(deps.Flow)
	flows := api.Group("/flows")
	flows.POST("", flowHandler.Start)
	flows.GET("/:id", flowHandler.Get)
	flows.POST("/:id/reset", flowHandler.Reset)
	flows.GET("/:id/places/:field", flowHandler.Suggest)
	flows.POST("/:id/places/:field", flowHandler.ChoosePlace)
	flows.POST("/:id/routes", flowHandler.PlanRoutes)
	flows.POST("/:id/routes/:index/select", flowHandler.SelectRoute)
	flows.GET("/:id/vehicles", flowHandler.LoadVehicles)
	flows.POST("/:id/vehicles/:vehicleId/select", flowHandler.SelectVehicle)
	flows.POST("/:id/contact", flowHandler.BeginContact)
	flows.POST("/:id/retry", flowHandler.Retry)

	submit := []gin.HandlerFunc{flowHandler.Submit}
	if deps.Redis != nil {
		ttl := deps.IdempotencyTTL
		if ttl <= 0 {
			ttl = defaultIdempotencyTTL
		}
		submit = append([]gin.HandlerFunc{middleware.Idempotency(deps.Redis, ttl)}, submit...)
	}
	flows.POST("/:id/submit", submit...)

	fleetHandler := handlers.NewFleetHandler(deps.Fleet, deps.Pricing)
	api.GET("/fares/quote", fleetHandler.Quote)
	api.GET("/drivers", fleetHandler.Drivers)
	api.GET("/vehicles/mine", fleetHandler.MyVehicles)

	bookingHandler := handlers.NewBookingHandler(deps.Booking)
	api.GET("/bookings", bookingHandler.List)
	api.PUT("/bookings/:id/status", bookingHandler.UpdateStatus)

	if deps.Voice != nil {
		voiceHandler := handlers.NewVoiceHandler(deps.Voice, deps.Location)
		api.POST("/voice/parse", voiceHandler.Parse)
		api.GET("/voice/quota", voiceHandler.Quota)
	}

	return r
}

// README: Entry point; loads config, wires services, starts the HTTP server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"keralaride/internal/ai"
	"keralaride/internal/apiclient"
	"keralaride/internal/config"
	httptransport "keralaride/internal/http"
	"keralaride/internal/infra"
	"keralaride/internal/logger"
	"keralaride/internal/maps"
	"keralaride/internal/modules/aiusage"
	"keralaride/internal/modules/booking"
	"keralaride/internal/modules/fleet"
	"keralaride/internal/modules/flow"
	"keralaride/internal/modules/pricing"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatal(err)
	}
	logger.Setup(cfg.Log.Level, cfg.Log.File)
	if err := cfg.Validate(); err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	gin.SetMode(gin.ReleaseMode)
	if cfg.Auth.JWTSecret == "" {
		logrus.WithField("env", cfg.Env).Warn("KR_JWT_SECRET is unset: bearer tokens are NOT verified and session ownership trusts unsigned claims; never run like this outside development")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mapsClient, err := maps.NewClient(cfg.Maps.APIKey)
	if err != nil {
		logrus.WithError(err).Fatal("maps init")
	}
	region := maps.NewRegion(cfg.Maps.Region)
	placesSvc := maps.NewPlacesService(mapsClient, region)
	routeSvc := maps.NewRouteService(mapsClient, region)

	api := apiclient.New(cfg.API.BaseURL, cfg.API.Timeout)

	var sinks []booking.EventSink
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink := infra.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kafkaSink.Close()
		sinks = append(sinks, kafkaSink)
	}
	if cfg.Firebase.ProjectID != "" {
		notifier, err := infra.NewDriverNotifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			logrus.WithError(err).Warn("firebase init failed, drivers will not be notified")
		} else {
			sinks = append(sinks, notifier)
		}
	}

	pricingSvc := pricing.NewService(cfg.Booking.Fee, cfg.Booking.Currency)
	fleetSvc := fleet.NewService(api)
	bookingSvc := booking.NewService(api, pricingSvc, cfg.Booking.Location(), sinks...)

	deps := httptransport.RouterDeps{
		Booking:        bookingSvc,
		Fleet:          fleetSvc,
		Pricing:        pricingSvc,
		JWTSecret:      cfg.Auth.JWTSecret,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Location:       cfg.Booking.Location(),
	}

	var store flow.Store
	redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr)
	if err != nil {
		logrus.WithError(err).Warn("redis unavailable, keeping flow sessions in memory")
		store = flow.NewMemoryStore()
	} else {
		defer redisClient.Close()
		store = flow.NewRedisStore(redisClient, cfg.Redis.SessionTTL)
		deps.Redis = redisClient
	}
	deps.Flow = flow.NewService(store, placesSvc, routeSvc, fleetSvc, bookingSvc).
		WithSubmitWindow(3 * cfg.API.Timeout)

	parser, closeParser, err := ai.NewParser(ctx, cfg.AI)
	if err != nil {
		logrus.WithError(err).Warn("voice commands disabled")
	} else {
		defer closeParser()
		dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			logrus.WithError(err).Warn("postgres unavailable, voice commands disabled")
		} else {
			defer dbPool.Close()
			deps.Voice = aiusage.NewService(aiusage.NewStore(dbPool), parser)
		}
	}

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httptransport.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logrus.WithError(err).Error("graceful shutdown failed")
		}
	}()

	logrus.WithField("addr", cfg.HTTP.Addr).Info("keralaride api listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logrus.WithError(err).Fatal("http server")
	}
	logrus.Info("server stopped")
}

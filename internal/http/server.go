package http

import (
	"context"
	"net/http"
	"time"

	"github.com/bsocio/campaign-service/internal/config"
	"github.com/bsocio/campaign-service/internal/http/middleware"
	"github.com/bsocio/campaign-service/internal/logger"
	"github.com/bsocio/campaign-service/internal/metrics"
	"github.com/bsocio/campaign-service/internal/repository"
	"github.com/bsocio/campaign-service/internal/service/campaigns"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct{ e *echo.Echo }

func NewServer(cfg config.Config, pgDB, clickhouseDB *sqlx.DB, rds *redis.Client) *Server {
	// repos (Postgres)
	adminsRepo := repository.NewAdminsRepository(pgDB)
	campaignsRepo := repository.NewCampaignsRepository(pgDB)
	usersRepo := repository.NewUsersRepository(pgDB)
	jobsRepo := repository.NewDispatchJobsRepository(pgDB)
	outboxRepo := repository.NewOutboxRepository(pgDB)

	// repos (ClickHouse)
	eventsRepo := repository.NewCHEventsRepository(clickhouseDB)

	// services
	campaignSvc := campaigns.New(
		pgDB,
		campaignsRepo,
		usersRepo,
		jobsRepo,
		outboxRepo,
		eventsRepo,
		cfg.Kafka.Topic,
	)

	// echo
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	authMW := middleware.APIKeyMiddleware(adminsRepo)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          rds,
		DefaultRPS:     cfg.RateLimit.RPS,
		KeyPrefix:      "rl:admin:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// routes
	h := &campaignHandlers{svc: campaignSvc, log: logger.Log}

	v1 := e.Group("/v1", authMW, rlMW)
	v1.POST("/campaigns", h.create)
	v1.GET("/campaigns", h.list)
	v1.GET("/campaigns/:id", h.get)
	v1.PUT("/campaigns/:id", h.update)
	v1.DELETE("/campaigns/:id", h.delete)
	v1.POST("/campaigns/:id/send", h.send)
	v1.POST("/campaigns/:id/schedule", h.schedule)
	v1.GET("/campaigns/:id/recipients/preview", h.previewRecipients)
	v1.GET("/reports/campaigns/:id/events", listEventsHandler(eventsRepo))

	return &Server{e: e}
}

func (s *Server) Start(addr string) error {
	logger.Log.Info("http listening", zap.String("addr", addr))
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }

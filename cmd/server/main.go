// Package main runs the attendance HTTP server with the live WebSocket feed and graceful shutdown.
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
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-attendance/backend/config"
	"github.com/aura-attendance/backend/internal/attendance"
	"github.com/aura-attendance/backend/internal/auth"
	"github.com/aura-attendance/backend/internal/events"
	"github.com/aura-attendance/backend/internal/members"
	"github.com/aura-attendance/backend/internal/middleware"
	"github.com/aura-attendance/backend/internal/models"
	"github.com/aura-attendance/backend/internal/notifier"
	"github.com/aura-attendance/backend/internal/organizations"
	"github.com/aura-attendance/backend/internal/realtime"
	"github.com/aura-attendance/backend/internal/schema"
	"github.com/aura-attendance/backend/internal/sqlgw"
	"github.com/aura-attendance/backend/internal/stats"
	"github.com/aura-attendance/backend/internal/verification"
	"github.com/aura-attendance/backend/pkg/database"
	"github.com/aura-attendance/backend/pkg/queue"
	"github.com/aura-attendance/backend/pkg/redis"
	"github.com/aura-attendance/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb, err = redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
	}

	exec := sqlgw.NewGateway(pool, logger)
	prov := schema.NewProvisioner(exec, logger)
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	aggregator := stats.NewAggregator(exec, logger)

	// Scan engine and live change feed
	var engineOpts []verification.Option
	if cfg.Verification.DistributedLock {
		engineOpts = append(engineOpts, verification.WithLocker(
			verification.NewRedisLocker(rdb.Client, cfg.Verification.LockTTL, cfg.Verification.LockWait)))
	}
	var feed notifier.Feed
	switch cfg.ChangeFeed.Source {
	case config.FeedRedis:
		redisFeed := notifier.NewRedisFeed(rdb.Client, cfg.ChangeFeed.Buffer, logger)
		engineOpts = append(engineOpts, verification.WithPublisher(redisFeed))
		feed = redisFeed
	default:
		feed = notifier.NewPostgresFeed(pool, cfg.ChangeFeed.Buffer, logger)
	}
	engine := verification.NewEngine(logger, engineOpts...)
	notify := notifier.New(feed, aggregator, logger)

	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	hub := realtime.NewHub(hubCtx, notify, aggregator, logger)

	// Background jobs are only available with Redis.
	var (
		eventJobs events.Enqueuer
		orgJobs   organizations.Jobs
	)
	if rdb != nil {
		jobQueue := queue.NewQueue(rdb.Client, logger)
		eventJobs, orgJobs = jobQueue, jobQueue
	}

	orgHandler := organizations.NewHandler(organizations.NewRepository(exec, prov, logger), jwtService, orgJobs, logger)
	memberHandler := members.NewHandler(exec, jwtService, logger)
	eventHandler := events.NewHandler(exec, prov, eventJobs, logger)
	attendanceHandler := attendance.NewHandler(exec, logger)
	scanHandler := verification.NewHandler(engine, exec, logger)
	statsHandler := stats.NewHandler(aggregator, logger)

	authorize := func(ctx context.Context, token string, eventID uuid.UUID) (realtime.Room, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return realtime.Room{}, realtime.ErrUnauthorized
		}
		id := claims.Identity()
		ev, err := events.NewRepository(exec, prov, id.Partition, logger).GetByID(ctx, eventID)
		if err != nil {
			return realtime.Room{}, err
		}
		return realtime.Room{EventID: ev.ID, Tables: ev.Tables(id.Partition)}, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) {
		if err := pool.Ping(c.Request.Context()); err != nil {
			response.ServiceUnavailable(c, "database unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/signup", orgHandler.Signup)
		authGroup.POST("/login", orgHandler.Login)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		admin := middleware.RequireRole(models.RoleAdmin)
		manage := middleware.RequireManage()

		// Organization
		api.GET("/organization", orgHandler.Get)
		api.PATCH("/organization", admin, orgHandler.Update)
		api.DELETE("/organization", admin, orgHandler.Delete)
		api.PUT("/organization/password", admin, orgHandler.ChangePassword)
		api.POST("/organization/reconcile", admin, orgHandler.Reconcile)
		api.GET("/jobs/:id", orgHandler.JobStatus)

		// Members
		api.GET("/members", memberHandler.List)
		api.POST("/members", manage, memberHandler.Create)
		api.GET("/members/counts", memberHandler.Counts)
		api.PATCH("/members/:id/role", admin, memberHandler.UpdateRole)
		api.DELETE("/members/:id", manage, memberHandler.Delete)
		api.POST("/members/:id/token", admin, memberHandler.IssueToken)

		// Events
		api.GET("/events", eventHandler.List)
		api.POST("/events", manage, eventHandler.Create)

		ev := api.Group("/events/:id", events.Load(exec, prov, logger))
		ev.GET("", eventHandler.Get)
		ev.PATCH("", manage, eventHandler.Rename)
		ev.DELETE("", manage, eventHandler.Delete)
		ev.POST("/end", manage, eventHandler.End)
		ev.POST("/reactivate", manage, eventHandler.Reactivate)
		ev.POST("/export", manage, eventHandler.Export)
		ev.GET("/stats", statsHandler.Summary)
		ev.GET("/stats/full", statsHandler.Full)
		ev.GET("/viewers", realtime.ViewerCount(hub, func(c *gin.Context) uuid.UUID { return middleware.EventFrom(c).ID }))

		// Attendance list
		ev.GET("/attendees", attendanceHandler.ListAttendees)
		ev.POST("/attendees", manage, attendanceHandler.CreateAttendee)
		ev.POST("/attendees/import", manage, attendanceHandler.Import)
		ev.DELETE("/attendees/:participantId", manage, attendanceHandler.DeleteAttendee)

		// Verification
		ev.POST("/scan", scanHandler.Scan)
		ev.GET("/verifications", attendanceHandler.ListVerifications)
		ev.POST("/verifications/:participantId/invalid", manage, scanHandler.MarkInvalid)
		ev.GET("/participants/:participantId/state", scanHandler.State)
	}

	// WebSocket (token in query; no Authorization header required)
	origins := middleware.ParseOrigins(cfg.Server.CORSAllowedOrigins)
	router.GET("/ws", realtime.ServeWs(hub, logger, authorize, func(r *http.Request) bool {
		o := r.Header.Get("Origin")
		return o == "" || origins.AllowOrigin(o) != ""
	}))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening",
			zap.String("port", cfg.Server.Port),
			zap.String("change_feed", cfg.ChangeFeed.Source),
			zap.Bool("jobs", rdb != nil))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	hubCancel()
	notify.UnsubscribeAll()
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}

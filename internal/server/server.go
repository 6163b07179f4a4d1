// Package server exposes the HTTP surface: per-provider sync endpoints, the
// cron orchestrator entry, and account/key management APIs.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/haoran127/costix-sub001/internal/account"
	accountdomain "github.com/haoran127/costix-sub001/internal/account/domain"
	"github.com/haoran127/costix-sub001/internal/alert"
	alertdomain "github.com/haoran127/costix-sub001/internal/alert/domain"
	"github.com/haoran127/costix-sub001/internal/apikey"
	apikeydomain "github.com/haoran127/costix-sub001/internal/apikey/domain"
	"github.com/haoran127/costix-sub001/internal/auth"
	"github.com/haoran127/costix-sub001/internal/clock"
	"github.com/haoran127/costix-sub001/internal/config"
	"github.com/haoran127/costix-sub001/internal/observability"
	obslogger "github.com/haoran127/costix-sub001/internal/observability/logger"
	"github.com/haoran127/costix-sub001/internal/ratelimit"
	"github.com/haoran127/costix-sub001/internal/scheduler"
	"github.com/haoran127/costix-sub001/internal/secret"
	syncpkg "github.com/haoran127/costix-sub001/internal/sync"
	syncservice "github.com/haoran127/costix-sub001/internal/sync/service"
	"github.com/haoran127/costix-sub001/internal/usage"
	"github.com/haoran127/costix-sub001/pkg/db"
)

var Module = fx.Module("http.server",
	config.Module,
	observability.Module,
	clock.Module,
	db.Module,
	secret.Module,
	auth.Module,
	ratelimit.Module,
	account.Module,
	apikey.Module,
	alert.Module,
	usage.Module,
	syncpkg.Module,
	scheduler.Module,
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{Debug: obsCfg.Debug()}))
	r.Use(ErrorHandlingMiddleware())
	r.HandleMethodNotAllowed = true
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	authSvc    auth.Service
	accountSvc accountdomain.Service
	apiKeySvc  apikeydomain.Service
	alertSvc   alertdomain.Service
	registry   *syncservice.Registry
	scheduler  *scheduler.Scheduler
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	AuthSvc    auth.Service
	AccountSvc accountdomain.Service
	APIKeySvc  apikeydomain.Service
	AlertSvc   alertdomain.Service
	Registry   *syncservice.Registry
	Scheduler  *scheduler.Scheduler
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		db:         p.DB,
		log:        p.Log.Named("server"),
		genID:      p.GenID,
		authSvc:    p.AuthSvc,
		accountSvc: p.AccountSvc,
		apiKeySvc:  p.APIKeySvc,
		alertSvc:   p.AlertSvc,
		registry:   p.Registry,
		scheduler:  p.Scheduler,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Sync --------
	api.POST("/sync/:platform", s.UserAuthRequired(), s.SyncPlatform)

	// -------- Cron --------
	api.POST("/cron/sync", s.CronAuthRequired(), s.CronSync)
	api.POST("/cron/alerts", s.CronAuthRequired(), s.CronAlerts)

	// -------- Platform accounts --------
	api.POST("/accounts", s.UserAuthRequired(), s.CreateAccount)
	api.GET("/accounts", s.UserAuthRequired(), s.ListAccounts)
	api.GET("/accounts/:id", s.UserAuthRequired(), s.GetAccount)

	// -------- API keys --------
	api.POST("/keys/import", s.UserAuthRequired(), s.ImportKey)
	api.GET("/keys", s.UserAuthRequired(), s.ListKeys)
	api.GET("/keys/:id/usage", s.UserAuthRequired(), s.KeyUsage)
	api.DELETE("/keys/:id", s.UserAuthRequired(), s.DeleteKey)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glamlot/glamlot/internal/auction"
	auctiondomain "github.com/glamlot/glamlot/internal/auction/domain"
	"github.com/glamlot/glamlot/internal/audit"
	auditdomain "github.com/glamlot/glamlot/internal/audit/domain"
	"github.com/glamlot/glamlot/internal/config"
	"github.com/glamlot/glamlot/internal/notification"
	"github.com/glamlot/glamlot/internal/observability"
	obsmiddleware "github.com/glamlot/glamlot/internal/observability/logger"
	obsmetrics "github.com/glamlot/glamlot/internal/observability/metrics"
	obstracing "github.com/glamlot/glamlot/internal/observability/tracing"
	"github.com/glamlot/glamlot/internal/payout"
	"github.com/glamlot/glamlot/internal/providers"
	"github.com/glamlot/glamlot/internal/ratelimit"
	"github.com/glamlot/glamlot/internal/settlement"
	"github.com/glamlot/glamlot/internal/videotoken"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	audit.Module,
	auction.Module,
	payout.Module,
	providers.Module,
	videotoken.Module,
	notification.Module,
	settlement.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
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

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	db     *gorm.DB
	log    *zap.Logger

	genID        *snowflake.Node
	settler      *settlement.Engine
	auctionRepo  auctiondomain.Repository
	payouts      payout.Repository
	auditSvc     auditdomain.Service
	adminLimiter *ratelimit.AdminLimiter
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Settler     *settlement.Engine
	AuctionRepo auctiondomain.Repository
	Payouts     payout.Repository
	AuditSvc    auditdomain.Service

	AdminLimiter *ratelimit.AdminLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine: p.Gin,
		cfg:    p.Cfg,
		db:     p.DB,
		log:    p.Log.Named("http.server"),

		genID:        p.GenID,
		settler:      p.Settler,
		auctionRepo:  p.AuctionRepo,
		payouts:      p.Payouts,
		auditSvc:     p.AuditSvc,
		adminLimiter: p.AdminLimiter,
	}

	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")

	admin.Use(s.AdminAuthRequired())
	admin.Use(s.AdminRateLimit())

	admin.POST("/settlements/run", s.RunSettlements)

	admin.GET("/auctions/:id", s.GetAuctionSettlement)
	admin.POST("/auctions/:id/resend-winner", s.ResendWinnerNotification)

	admin.GET("/audit-logs", s.ListAuditLogs)
}

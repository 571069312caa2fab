package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/feeledger/internal/audit"
	auditdomain "github.com/smallbiznis/feeledger/internal/audit/domain"
	"github.com/smallbiznis/feeledger/internal/config"
	"github.com/smallbiznis/feeledger/internal/feecatalog"
	feecatalogdomain "github.com/smallbiznis/feeledger/internal/feecatalog/domain"
	"github.com/smallbiznis/feeledger/internal/feeledger"
	feeledgerdomain "github.com/smallbiznis/feeledger/internal/feeledger/domain"
	"github.com/smallbiznis/feeledger/internal/ledgermetrics"
	"github.com/smallbiznis/feeledger/internal/observability"
	obsmiddleware "github.com/smallbiznis/feeledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/feeledger/internal/observability/metrics"
	obstracing "github.com/smallbiznis/feeledger/internal/observability/tracing"
	"github.com/smallbiznis/feeledger/internal/ratelimit"
	"github.com/smallbiznis/feeledger/internal/waiver"
	waiverdomain "github.com/smallbiznis/feeledger/internal/waiver/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	audit.Module,
	feecatalog.Module,
	waiver.Module,
	feeledger.Module,
	ratelimit.Module,
	ledgermetrics.Module,
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
	if obsCfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
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
	engine     *gin.Engine
	cfg        config.Config
	catalogSvc feecatalogdomain.Service
	waiverSvc  waiverdomain.Service
	ledgerSvc  feeledgerdomain.Service
	auditSvc   auditdomain.Service
	guard      *ratelimit.LedgerGuard
	obsMetrics *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	CatalogSvc feecatalogdomain.Service
	WaiverSvc  waiverdomain.Service
	LedgerSvc  feeledgerdomain.Service
	AuditSvc   auditdomain.Service
	Guard      *ratelimit.LedgerGuard `optional:"true"`
	ObsMetrics *obsmetrics.Metrics    `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		catalogSvc: p.CatalogSvc,
		waiverSvc:  p.WaiverSvc,
		ledgerSvc:  p.LedgerSvc,
		auditSvc:   p.AuditSvc,
		guard:      p.Guard,
		obsMetrics: p.ObsMetrics,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Fee catalog --------
	api.POST("/fee-heads", s.CreateFeeHead)
	api.GET("/fee-heads", s.ListFeeHeads)
	api.POST("/fee-definitions", s.CreateFeeDefinition)
	api.GET("/fee-definitions", s.ListFeeDefinitions)
	api.GET("/fee-definitions/:id", s.GetFeeDefinition)

	// -------- Waivers --------
	api.POST("/waiver-rules", s.CreateWaiverRule)
	api.GET("/waiver-rules", s.ListWaiverRules)
	api.DELETE("/waiver-rules/:id", s.DeleteWaiverRule)

	// -------- Students --------
	students := api.Group("/students/:id")
	{
		students.GET("/statement", s.GetStatement)
		students.POST("/payments", s.PaymentRateLimit(), s.SubmitPayments)
		students.POST("/tombstones", s.WithdrawFees)
		students.GET("/tombstones", s.ListTombstones)
	}

	// -------- Ledger --------
	api.GET("/ledger-entries", s.ListLedgerEntries)
	api.GET("/ledger-entries/:id", s.GetLedgerEntry)

	api.GET("/audit-logs", s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}

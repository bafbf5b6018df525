package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/flightclub/internal/audit"
	auditdomain "github.com/smallbiznis/flightclub/internal/audit/domain"
	"github.com/smallbiznis/flightclub/internal/authorization"
	"github.com/smallbiznis/flightclub/internal/charge"
	chargedomain "github.com/smallbiznis/flightclub/internal/charge/domain"
	"github.com/smallbiznis/flightclub/internal/config"
	"github.com/smallbiznis/flightclub/internal/flight"
	flightdomain "github.com/smallbiznis/flightclub/internal/flight/domain"
	"github.com/smallbiznis/flightclub/internal/ledger"
	ledgerdomain "github.com/smallbiznis/flightclub/internal/ledger/domain"
	"github.com/smallbiznis/flightclub/internal/lock"
	"github.com/smallbiznis/flightclub/internal/observability"
	obsmiddleware "github.com/smallbiznis/flightclub/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/flightclub/internal/observability/metrics"
	obstracing "github.com/smallbiznis/flightclub/internal/observability/tracing"
	"github.com/smallbiznis/flightclub/internal/owner"
	"github.com/smallbiznis/flightclub/internal/ratelimit"
	"github.com/smallbiznis/flightclub/internal/statement"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	lock.Module,
	ratelimit.Module,
	authorization.Module,
	audit.Module,
	owner.Module,
	flight.Module,
	ledger.Module,
	charge.Module,
	statement.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, cfg config.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(corsConfig(cfg)))
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

func corsConfig(cfg config.Config) cors.Config {
	corsCfg := cors.DefaultConfig()
	switch {
	case cfg.IsProduction() && len(cfg.CORSAllowedOrigins) > 0:
		corsCfg.AllowOrigins = cfg.CORSAllowedOrigins
		corsCfg.AllowCredentials = true
	case cfg.IsProduction():
		corsCfg.AllowOriginFunc = func(string) bool { return false }
	default:
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AddAllowMethods("GET", "POST", "PATCH", "OPTIONS")
	corsCfg.AddAllowHeaders("Origin", "Content-Type", "Authorization", HeaderActorID, HeaderActorType, HeaderActorRoles, "X-Request-Id")
	corsCfg.AddExposeHeaders("Content-Length", "Content-Disposition", "Retry-After", "X-Request-Id")
	return corsCfg
}

func registerGin(obsCfg observability.Config, cfg config.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, cfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	engine    *gin.Engine
	cfg       config.Config
	log       *zap.Logger
	authzSvc  authorization.Service
	auditSvc  auditdomain.Service
	ledgerSvc ledgerdomain.Service
	chargeSvc chargedomain.Service
	flightSvc flightdomain.Service
	statement *statement.Exporter
	limiter   *ratelimit.ChargeLimiter
}

type ServerParams struct {
	fx.In

	Gin       *gin.Engine
	Cfg       config.Config
	Log       *zap.Logger
	AuthzSvc  authorization.Service
	AuditSvc  auditdomain.Service
	LedgerSvc ledgerdomain.Service
	ChargeSvc chargedomain.Service
	FlightSvc flightdomain.Service
	Statement *statement.Exporter
	Limiter   *ratelimit.ChargeLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:    p.Gin,
		cfg:       p.Cfg,
		log:       p.Log.Named("http.server"),
		authzSvc:  p.AuthzSvc,
		auditSvc:  p.AuditSvc,
		ledgerSvc: p.LedgerSvc,
		chargeSvc: p.ChargeSvc,
		flightSvc: p.FlightSvc,
		statement: p.Statement,
		limiter:   p.Limiter,
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
	api.Use(ActorRequired())

	users := api.Group("/users/:id")
	users.POST("/payments", s.authorize(ObjectLedger, ActionLedgerPost), s.AddUserPayment)
	users.POST("/charges", s.authorize(ObjectLedger, ActionLedgerPost), s.AddUserCharge)
	users.POST("/adjustments", s.authorize(ObjectLedger, ActionLedgerPost), s.AddUserAdjustment)
	users.GET("/transactions", s.ListUserTransactions)
	users.GET("/transactions/export", s.ExportUserStatement)

	costCenters := api.Group("/cost-centers/:id")
	costCenters.POST("/credits", s.authorize(ObjectLedger, ActionLedgerPost), s.AddCostCenterCredit)
	costCenters.POST("/charges", s.authorize(ObjectLedger, ActionLedgerPost), s.AddCostCenterCharge)
	costCenters.POST("/adjustments", s.authorize(ObjectLedger, ActionLedgerPost), s.AddCostCenterAdjustment)
	costCenters.GET("/transactions", s.ListCostCenterTransactions)
	costCenters.GET("/transactions/export", s.ExportCostCenterStatement)

	userTx := api.Group("/user-transactions/:id")
	userTx.GET("", s.authorize(ObjectLedger, ActionLedgerView), s.GetUserTransaction)
	userTx.PATCH("", s.authorize(ObjectLedger, ActionLedgerEdit), s.EditUserTransaction)
	userTx.POST("/reverse", s.authorize(ObjectLedger, ActionLedgerReverse), s.ReverseUserTransaction)
	userTx.POST("/reverse-flight-charge", s.authorize(ObjectLedger, ActionLedgerReverse), s.ReverseUserFlightCharge)

	costCenterTx := api.Group("/cost-center-transactions/:id")
	costCenterTx.GET("", s.authorize(ObjectLedger, ActionLedgerView), s.GetCostCenterTransaction)
	costCenterTx.PATCH("", s.authorize(ObjectLedger, ActionLedgerEdit), s.EditCostCenterTransaction)
	costCenterTx.POST("/reverse", s.authorize(ObjectLedger, ActionLedgerReverse), s.ReverseCostCenterTransaction)
	costCenterTx.POST("/reverse-flight-charge", s.authorize(ObjectLedger, ActionLedgerReverse), s.ReverseCostCenterFlightCharge)

	balances := api.Group("/balances", s.authorize(ObjectBalance, ActionBalanceView))
	balances.GET("/users", s.ListUserBalances)
	balances.GET("/cost-centers", s.ListCostCenterBalances)

	flights := api.Group("/flights")
	flights.GET("/uncharged", s.authorize(ObjectFlight, ActionFlightView), s.ListUnchargedFlights)
	flights.POST("/batch-charge", s.authorize(ObjectFlight, ActionFlightCharge), s.chargeRateLimit(ratelimit.CostBatchCharge), s.BatchChargeFlights)
	flights.GET("/:id", s.authorize(ObjectFlight, ActionFlightView), s.GetFlight)
	flights.POST("/:id/quote", s.authorize(ObjectFlight, ActionFlightView), s.QuoteFlight)
	flights.POST("/:id/charge", s.authorize(ObjectFlight, ActionFlightCharge), s.chargeRateLimit(ratelimit.CostSingleCharge), s.ChargeFlight)
	flights.POST("/:id/split-charge", s.authorize(ObjectFlight, ActionFlightCharge), s.chargeRateLimit(ratelimit.CostSingleCharge), s.SplitChargeFlight)

	api.GET("/audit-logs", s.authorize(ObjectAuditLog, ActionAuditLogView), s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}

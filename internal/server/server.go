package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/placementpay/internal/access"
	auditdomain "github.com/smallbiznis/placementpay/internal/audit/domain"
	"github.com/smallbiznis/placementpay/internal/config"
	escrowdomain "github.com/smallbiznis/placementpay/internal/escrow/domain"
	obslogger "github.com/smallbiznis/placementpay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/placementpay/internal/observability/metrics"
	obstracing "github.com/smallbiznis/placementpay/internal/observability/tracing"
	promodomain "github.com/smallbiznis/placementpay/internal/promo/domain"
	"github.com/smallbiznis/placementpay/internal/ratelimit"
	scheduledomain "github.com/smallbiznis/placementpay/internal/schedule/domain"
	splitdomain "github.com/smallbiznis/placementpay/internal/split/domain"
	webhookdomain "github.com/smallbiznis/placementpay/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(classifyErrorForLog))
	r.Use(obstracing.GinMiddleware())
	if httpMetrics != nil {
		r.Use(httpMetrics.Middleware())
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
	engine     *gin.Engine
	log        *zap.Logger
	resolver   access.Resolver
	authorizer *access.Authorizer
	schedules  scheduledomain.Service
	escrow     escrowdomain.Service
	splits     splitdomain.Service
	audit      auditdomain.Service
	promos     promodomain.Service
	webhooks   webhookdomain.Service
	promoLimit *ratelimit.PromoLookupLimiter
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Log        *zap.Logger
	Resolver   access.Resolver
	Authorizer *access.Authorizer
	Schedules  scheduledomain.Service
	Escrow     escrowdomain.Service
	Splits     splitdomain.Service
	Audit      auditdomain.Service
	Promos     promodomain.Service
	Webhooks   webhookdomain.Service
	PromoLimit *ratelimit.PromoLookupLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		log:        p.Log.Named("http.server"),
		resolver:   p.Resolver,
		authorizer: p.Authorizer,
		schedules:  p.Schedules,
		escrow:     p.Escrow,
		splits:     p.Splits,
		audit:      p.Audit,
		promos:     p.Promos,
		webhooks:   p.Webhooks,
		promoLimit: p.PromoLimit,
	}

	svc.registerWebhookRoutes()
	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/stripe", s.HandleStripeWebhook)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/v1", s.AuthRequired())

	// -------- Payout schedules --------
	api.GET("/payout-schedules", s.ListPayoutSchedules)
	api.POST("/payout-schedules", s.CreatePayoutSchedule)
	api.POST("/payout-schedules/process-due",
		s.authorizeAction(access.ObjectPayoutSchedule, access.ActionProcessDue),
		s.ProcessDuePayoutSchedules)
	api.GET("/payout-schedules/:id", s.GetPayoutSchedule)
	api.PATCH("/payout-schedules/:id", s.UpdatePayoutSchedule)
	api.POST("/payout-schedules/:id/trigger", s.TriggerPayoutSchedule)
	api.POST("/payout-schedules/:id/cancel", s.CancelPayoutSchedule)

	// -------- Escrow holds --------
	api.GET("/escrow-holds", s.ListEscrowHolds)
	api.POST("/escrow-holds", s.CreateEscrowHold)
	api.POST("/escrow-holds/process-due",
		s.authorizeAction(access.ObjectEscrowHold, access.ActionProcessDue),
		s.ProcessDueEscrowReleases)
	api.GET("/escrow-holds/:id", s.GetEscrowHold)
	api.PATCH("/escrow-holds/:id", s.UpdateEscrowHold)
	api.POST("/escrow-holds/:id/release", s.ReleaseEscrowHold)
	api.POST("/escrow-holds/:id/cancel", s.CancelEscrowHold)
	api.POST("/escrow-holds/:id/expire", s.ExpireEscrowHold)

	// -------- Placements --------
	api.GET("/placements/:id/splits",
		s.authorizeAction(access.ObjectPlacement, access.ActionView),
		s.GetPlacementSplits)

	// -------- Payout audit --------
	api.GET("/payouts/:id/audit-logs",
		s.authorizeAction(access.ObjectAuditLog, access.ActionView),
		s.ListPayoutAuditLogs)

	// -------- Promo codes --------
	api.GET("/promo-codes/:code", s.limitPromoLookups(), s.ValidatePromoCode)
}

package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/mailseat/internal/audit"
	"github.com/smallbiznis/mailseat/internal/config"
	"github.com/smallbiznis/mailseat/internal/notification"
	"github.com/smallbiznis/mailseat/internal/observability"
	obsmiddleware "github.com/smallbiznis/mailseat/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/mailseat/internal/observability/metrics"
	obstracing "github.com/smallbiznis/mailseat/internal/observability/tracing"
	"github.com/smallbiznis/mailseat/internal/organization"
	organizationdomain "github.com/smallbiznis/mailseat/internal/organization/domain"
	"github.com/smallbiznis/mailseat/internal/providers"
	"github.com/smallbiznis/mailseat/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	audit.Module,
	providers.Module,
	notification.Module,
	ratelimit.Module,
	organization.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, reg *prometheus.Registry) *gin.Engine {
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

	gatherers := prometheus.Gatherers{prometheus.DefaultGatherer}
	if reg != nil {
		gatherers = append(gatherers, reg)
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{})))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, reg *prometheus.Registry) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics, reg)
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
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server failed", zap.Error(err))
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
	engine          *gin.Engine
	log             *zap.Logger
	organizationSvc organizationdomain.Service
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Log             *zap.Logger
	OrganizationSvc organizationdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		log:             p.Log.Named("http.server"),
		organizationSvc: p.OrganizationSvc,
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

	// Resolving a token needs no identity; the invitee may not be signed in.
	api.GET("/invites/:token", s.ValidateInvite)

	authed := api.Group("", s.CallerRequired())

	// -------- Organizations --------
	authed.POST("/organizations", s.CreateOrganization)
	authed.GET("/organizations/:orgId", s.GetOrganization)
	authed.PATCH("/organizations/:orgId/seats", s.UpdateSeats)
	authed.POST("/organizations/:orgId/transfer-ownership", s.TransferOwnership)
	authed.GET("/organizations/:orgId/members", s.ListMembers)
	authed.GET("/organizations/:orgId/invites", s.ListInvites)
	authed.GET("/organizations/:orgId/audit-logs", s.ListAuditLogs)

	// -------- Members --------
	authed.POST("/members", s.AddUserDirect)
	authed.DELETE("/members/:orgId/:userId", s.RemoveMember)
	authed.PATCH("/members/:orgId/:userId", s.ChangeRole)

	// -------- Invites --------
	authed.POST("/invites", s.InviteMember)
	authed.POST("/invites/:token/accept", s.AcceptInvite)
	authed.DELETE("/invites/:id", s.RevokeInvite)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}

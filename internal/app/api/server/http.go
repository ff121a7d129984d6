package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/lintasdata/enforcer/internal/app/api/handlers"
	mw "github.com/lintasdata/enforcer/internal/app/api/middleware"
	migsvc "github.com/lintasdata/enforcer/internal/app/service/migration"
	"github.com/lintasdata/enforcer/internal/app/service/provisioning"
	"github.com/lintasdata/enforcer/internal/app/service/scheduler"
	subsvc "github.com/lintasdata/enforcer/internal/app/service/subscription"
	cfgpkg "github.com/lintasdata/enforcer/pkg/config"
	"github.com/lintasdata/enforcer/pkg/metrics"
)

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// Add request tracing middleware only; request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware())
	return r
}

func registerRoutes(r *gin.Engine, log *zap.SugaredLogger, cfg *cfgpkg.Config,
	prov *provisioning.Service, sub *subsvc.Service, mig *migsvc.Service, sched *scheduler.Driver) {

	// Prometheus metrics
	if cfg != nil && cfg.MetricsAddr != "" {
		h := metrics.NewHTTP("enforcer")
		h.Use(r)
		log.Infow("metrics started", "path", h.MetricsPath)
	}

	// Public group: request logger + access log
	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterHealthRoutes(pub)

	// Admin APIs used by billing-layer actions
	apiV1 := r.Group("/api/v1")
	apiV1.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterProvisioningRoutes(apiV1, prov)
	handlers.RegisterSubscriptionRoutes(apiV1, sub)
	handlers.RegisterMigrationRoutes(apiV1, mig)
	handlers.RegisterSchedulerRoutes(apiV1, sched)
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Errorf("server error: %v", err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)

package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/lintasdata/enforcer/internal/app/api/server"
	"github.com/lintasdata/enforcer/internal/app/service/ipresolver"
	"github.com/lintasdata/enforcer/internal/app/service/migration"
	"github.com/lintasdata/enforcer/internal/app/service/notifier"
	"github.com/lintasdata/enforcer/internal/app/service/provisioning"
	"github.com/lintasdata/enforcer/internal/app/service/reconciler"
	"github.com/lintasdata/enforcer/internal/app/service/scheduler"
	"github.com/lintasdata/enforcer/internal/app/service/subscription"
	"github.com/lintasdata/enforcer/internal/platform/db"
	"github.com/lintasdata/enforcer/internal/platform/router"
	"github.com/lintasdata/enforcer/internal/platform/settings"
	"github.com/lintasdata/enforcer/pkg/config"
	"github.com/lintasdata/enforcer/pkg/logger"
	"github.com/lintasdata/enforcer/pkg/metrics"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

// Module aggregates every application component for Fx.
var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	settings.Module,
	router.Module,
	ipresolver.Module,
	reconciler.Module,
	provisioning.Module,
	notifier.Module,
	subscription.Module,
	migration.Module,
	scheduler.Module,
	server.Module,
	fx.Provide(
		func() *metrics.Enforcer { return metrics.NewEnforcer("enforcer") },
		func(r *reconciler.Service) subscription.Enforcer { return r },
		func(r *reconciler.Service) migration.NetworkEnforcer { return r },
	),
)

package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.elastic.co/apm/module/apmgin"

	entityController "github.com/lloydmeta/settle/internal/api/controllers/entity"
	reconcileController "github.com/lloydmeta/settle/internal/api/controllers/reconcile"
	recordController "github.com/lloydmeta/settle/internal/api/controllers/record"
	"github.com/lloydmeta/settle/internal/config"
	"github.com/lloydmeta/settle/internal/domain/reconcile"
	"github.com/lloydmeta/settle/internal/domain/record"
	"github.com/lloydmeta/settle/internal/domain/uniqueness"
	"github.com/lloydmeta/settle/internal/infra/apm/tracing"
	metrics "github.com/lloydmeta/settle/internal/infra/prometheus"
	"github.com/lloydmeta/settle/internal/infra/server/binding/validation"
	"github.com/lloydmeta/settle/internal/infra/server/routing"
	"github.com/lloydmeta/settle/internal/infra/server/routing/keyspaces"
	"github.com/lloydmeta/settle/internal/infra/storage"
)

const defaultMetricsPath = "/metrics"
const defaultShutdownTimeout = 10 * time.Second

// Components holds everything needed to serve the API
type Components struct {
	config    *config.App
	backend   *storage.Backend
	ginEngine *gin.Engine
}

// Domain holds the domain services built over the configured store
type Domain struct {
	Schema      record.Schema
	Engines     []reconcile.Engine
	Coordinator uniqueness.Coordinator
	// Set when the backend cannot run the Coordinator
	CoordinatorErr error
}

// NewDomain builds the engines and the coordinator for every configured keyspace
func NewDomain(appConfig *config.App, backend *storage.Backend) (*Domain, error) {
	schema, err := storage.NewSchema(appConfig.Keyspaces)
	if err != nil {
		return nil, err
	}
	settings, err := storage.NewReconcileSettings(appConfig.Reconcile)
	if err != nil {
		return nil, err
	}
	observer := metrics.Observer{}
	tracer := tracing.NewTracer()

	engines := make([]reconcile.Engine, 0, len(appConfig.Keyspaces))
	for _, keyspace := range storage.Keyspaces(appConfig.Keyspaces) {
		engines = append(engines, reconcile.NewEngine(backend.Store, keyspace, settings, tracer, observer))
	}
	d := Domain{Schema: schema, Engines: engines}
	if store, err := backend.TransactionalStore(); err == nil {
		d.Coordinator = uniqueness.NewCoordinator(store, schema, observer)
	} else {
		log.Warn().Err(err).Msg("Entity creation is disabled")
		d.CoordinatorErr = err
	}
	return &d, nil
}

// Engine returns the Engine of a keyspace
func (d *Domain) Engine(keyspace record.Keyspace) (reconcile.Engine, error) {
	for _, e := range d.Engines {
		if e.Keyspace() == keyspace {
			return e, nil
		}
	}
	return nil, record.UnknownKeyspace{Keyspace: keyspace}
}

func NewComponents(appConfig *config.App) (*Components, error) {
	ctx := context.Background()
	backend, err := storage.Open(ctx, appConfig.Store)
	if err != nil {
		return nil, err
	}
	if err := NewSetup(backend, appConfig).Check(ctx); err != nil {
		log.Warn().Err(err).Msg("Store setup incomplete")
	}
	domain, err := NewDomain(appConfig, backend)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	validation.SetUpValidators()
	ginEngine := gin.New()
	ginEngine.Use(
		gin.Recovery(),
		routing.RequestId(),
		logger.SetLogger(logger.Config{Logger: &log.Logger, UTC: true}),
		apmgin.Middleware(ginEngine),
	)
	ginEngine.NoRoute(routing.NoRoute)
	ginEngine.NoMethod(routing.NoMethod)

	if appConfig.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			_ = backend.Close()
			return nil, err
		}
		path := appConfig.Metrics.Path
		if path == "" {
			path = defaultMetricsPath
		}
		ginEngine.GET(path, gin.WrapH(promhttp.Handler()))
	}

	var entities entityController.Controller
	if domain.Coordinator != nil {
		entities = entityController.New(domain.Coordinator)
	} else {
		entities = entityController.Unsupported(domain.CoordinatorErr)
	}
	topLevelGroup := routing.NewTopLevelRoutesGroup(ginEngine)
	entitiesHandler := routing.EntitiesRoutesHandler{Controller: entities}
	entitiesHandler.RegisterRoutes(topLevelGroup)
	keyspacesHandler := keyspaces.RoutesHandler{
		ReconcileController: reconcileController.New(domain.Engines, domain.Schema),
		RecordController:    recordController.New(backend.Store, domain.Schema),
	}
	keyspacesHandler.RegisterRoutes(topLevelGroup)

	return &Components{
		config:    appConfig,
		backend:   backend,
		ginEngine: ginEngine,
	}, nil
}

// Run serves until SIGINT or SIGTERM, then drains in-flight requests
func (c *Components) Run() {
	srv := &http.Server{
		Addr:    c.config.BindAddress,
		Handler: c.ginEngine,
	}
	go func() {
		log.Info().Str("bind_address", c.config.BindAddress).Msg("Serving")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to serve")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down")

	timeout := c.config.ShutdownTimeout
	if timeout == 0 {
		timeout = defaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Forced shutdown")
	}
	if err := c.backend.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close the store")
	}
	log.Info().Msg("Exiting")
}

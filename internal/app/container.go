package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"

	"driver-agent/internal/broadcast"
	"driver-agent/internal/config"
	"driver-agent/internal/domain"
	"driver-agent/internal/gateway/deliveryapi"
	"driver-agent/internal/http/handlers"
	mw "driver-agent/internal/http/middleware"
	"driver-agent/internal/http/router"
	"driver-agent/internal/logx"
	"driver-agent/internal/metrics"
	"driver-agent/internal/notify"
	"driver-agent/internal/realtime"
	"driver-agent/internal/realtime/kafka"
	"driver-agent/internal/realtime/ws"
	"driver-agent/internal/service/accept"
	"driver-agent/internal/service/coordinator"
	"driver-agent/internal/session"
)

// ContainerBuilder is a dig container builder.
type ContainerBuilder struct {
	logFatalf func(string, ...interface{})
	registry  prometheus.Registerer
}

// NewContainerBuilder returns a new dig container builder
func NewContainerBuilder() *ContainerBuilder {
	return &ContainerBuilder{
		logFatalf: log.Fatalf,
		registry:  prometheus.DefaultRegisterer,
	}
}

// WithLogFatalf sets the log.Fatalf function
func (b *ContainerBuilder) WithLogFatalf(fn func(string, ...interface{})) *ContainerBuilder {
	if fn != nil {
		b.logFatalf = fn
	}
	return b
}

// WithRegistry sets the prometheus registerer (tests pass their own).
func (b *ContainerBuilder) WithRegistry(reg prometheus.Registerer) *ContainerBuilder {
	if reg != nil {
		b.registry = reg
	}
	return b
}

// MustBuild builds and returns a new dig container
func (b *ContainerBuilder) MustBuild(ctx context.Context) *dig.Container {
	container, err := b.build(ctx)
	if err != nil {
		b.logFatalf("failed to build container: %v", err)
	}
	return container
}

// build builds and returns a new dig container
func (b *ContainerBuilder) build(ctx context.Context) (*dig.Container, error) {
	container := dig.New()

	if err := registerCore(container, ctx); err != nil {
		return nil, fmt.Errorf("core: %w", err)
	}
	if err := registerMetrics(container, b.registry); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	if err := registerSession(container); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	if err := registerGateway(container); err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}
	if err := registerBroadcast(container); err != nil {
		return nil, fmt.Errorf("broadcast: %w", err)
	}
	if err := registerRealtime(container); err != nil {
		return nil, fmt.Errorf("realtime: %w", err)
	}
	if err := registerCoordinator(container); err != nil {
		return nil, fmt.Errorf("coordinator: %w", err)
	}
	if err := registerHTTP(container, b.registry); err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	return container, nil
}

// MustBuildContainer builds and returns a new dig container
func MustBuildContainer(ctx context.Context) *dig.Container {
	return NewContainerBuilder().MustBuild(ctx)
}

func provideAll(container *dig.Container, providers ...any) error {
	for _, provider := range providers {
		if err := container.Provide(provider); err != nil {
			return fmt.Errorf("provide %T: %w", provider, err)
		}
	}
	return nil
}

func registerCore(container *dig.Container, ctx context.Context) error {
	return provideAll(container,
		func() context.Context { return ctx },
		NewLogger,
		config.Load,
		func() broadcast.Clock { return broadcast.RealClock{} },
	)
}

type metricsOut struct {
	dig.Out

	RateLimited prometheus.Counter     `name:"rate_limit_exceeded_total"`
	Retries     prometheus.Counter     `name:"gateway_retries_total"`
	Received    prometheus.Counter     `name:"broadcasts_received_total"`
	Removed     *prometheus.CounterVec `name:"broadcasts_removed_total"`
	Attempts    *prometheus.CounterVec `name:"accept_attempts_total"`
}

func registerMetrics(container *dig.Container, reg prometheus.Registerer) error {
	return provideAll(container, func() metricsOut {
		out := metricsOut{
			RateLimited: metrics.NewRateLimitExceededTotal(),
			Retries:     metrics.NewGatewayRetriesTotal(),
			Received:    metrics.NewBroadcastsReceivedTotal(),
			Removed:     metrics.NewBroadcastsRemovedTotal(),
			Attempts:    metrics.NewAcceptAttemptsTotal(),
		}
		reg.MustRegister(out.RateLimited, out.Retries, out.Received, out.Removed, out.Attempts)
		return out
	})
}

func registerSession(container *dig.Container) error {
	return provideAll(container, func(cfg *config.Config, logger logx.Logger) (*session.Store, error) {
		store := session.NewStore(cfg.Session.Path)
		if err := store.Load(); err != nil {
			return nil, fmt.Errorf("load session: %w", err)
		}
		if !store.Authenticated() {
			logger.Warn("no stored session, upstream calls will be unauthenticated",
				logx.String("path", cfg.Session.Path),
			)
		}
		return store, nil
	})
}

type gatewayIn struct {
	dig.In

	Cfg     *config.Config
	Logger  logx.Logger
	Store   *session.Store
	Retries prometheus.Counter `name:"gateway_retries_total"`
}

func registerGateway(container *dig.Container) error {
	return provideAll(container, func(in gatewayIn) deliveryapi.Gateway {
		client := deliveryapi.NewClient(in.Cfg.API.BaseURL, in.Cfg.API.Timeout, in.Store, in.Logger)
		breaker := deliveryapi.NewBreakerGateway(client, in.Logger)
		return deliveryapi.NewRetryingGateway(breaker, in.Logger, in.Retries, deliveryapi.RetryConfig{
			MaxAttempts: in.Cfg.Gateway.MaxAttempts,
			BaseDelay:   in.Cfg.Gateway.BaseDelay,
			MaxDelay:    in.Cfg.Gateway.MaxDelay,
		})
	})
}

type broadcastIn struct {
	dig.In

	Cfg      *config.Config
	Logger   logx.Logger
	Clock    broadcast.Clock
	Gateway  deliveryapi.Gateway
	Received prometheus.Counter `name:"broadcasts_received_total"`
}

type acceptIn struct {
	dig.In

	Logger   logx.Logger
	Clock    broadcast.Clock
	Gateway  deliveryapi.Gateway
	State    *broadcast.Container
	Notifier notify.Notifier
	Attempts *prometheus.CounterVec `name:"accept_attempts_total"`
	Cfg      *config.Config
}

func registerBroadcast(container *dig.Container) error {
	return provideAll(container,
		func(logger logx.Logger) *notify.Ring { return notify.NewRing(logger, 100) },
		func(ring *notify.Ring) notify.Notifier { return ring },
		func(in broadcastIn) *broadcast.Container {
			return broadcast.NewContainer(in.Gateway, in.Clock, in.Logger, in.Received, broadcast.Config{
				DefaultDuration:  in.Cfg.Broadcast.DefaultDuration,
				MinFetchInterval: in.Cfg.Broadcast.MinFetchInterval,
			})
		},
		func(in acceptIn) *accept.Flow {
			return accept.NewFlow(in.Gateway, in.State, in.Notifier, in.Logger, in.Attempts, in.Clock, in.Cfg.API.Timeout)
		},
	)
}

type adapterIn struct {
	dig.In

	Logger   logx.Logger
	State    *broadcast.Container
	Notifier notify.Notifier
	Removed  *prometheus.CounterVec `name:"broadcasts_removed_total"`
}

func registerRealtime(container *dig.Container) error {
	return provideAll(container,
		func(in adapterIn) *realtime.Adapter {
			return realtime.NewAdapter(in.State, in.Logger, in.Notifier, in.Removed)
		},
		func(cfg *config.Config, store *session.Store, logger logx.Logger) realtime.Transport {
			if cfg.Realtime.WSURL == "" {
				return nil
			}
			return ws.New(ws.Config{
				URL:            cfg.Realtime.WSURL,
				ReconnectDelay: cfg.Realtime.ReconnectDelay,
			}, store, logger)
		},
		func(cfg *config.Config, logger logx.Logger, adapter *realtime.Adapter) (*kafka.Consumer, error) {
			rt := cfg.Realtime
			return kafka.NewConsumer(logger, rt.KafkaBrokers, rt.KafkaGroupID, rt.KafkaTopic, adapter.Dispatch)
		},
	)
}

type coordinatorIn struct {
	dig.In

	Cfg       *config.Config
	Logger    logx.Logger
	Clock     broadcast.Clock
	State     *broadcast.Container
	Adapter   *realtime.Adapter
	Transport realtime.Transport
	Notifier  notify.Notifier
	Store     *session.Store
	Removed   *prometheus.CounterVec `name:"broadcasts_removed_total"`
}

func registerCoordinator(container *dig.Container) error {
	return provideAll(container, func(in coordinatorIn) *coordinator.Coordinator {
		return coordinator.New(
			in.State, in.Adapter, in.Transport,
			in.Clock, in.Logger, in.Notifier, in.Removed,
			coordinator.Config{
				PollInterval:    in.Cfg.Broadcast.PollInterval,
				SweepInterval:   in.Cfg.Broadcast.SweepInterval,
				InitialLocation: domainLocation(in.Cfg),
				DriverID:        in.Store.User().ID,
			},
		)
	})
}

func domainLocation(cfg *config.Config) domain.Location {
	return domain.Location{Lat: cfg.Driver.Lat, Lng: cfg.Driver.Lng}
}

func registerHTTP(container *dig.Container, reg prometheus.Registerer) error {
	serverProvider := func(cfg *config.Config, mux http.Handler) *http.Server {
		return &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
	}
	return provideAll(container,
		handlers.New,
		func(
			logger logx.Logger,
			state *broadcast.Container,
			flow *accept.Flow,
			coord *coordinator.Coordinator,
			gw deliveryapi.Gateway,
			clk broadcast.Clock,
		) *handlers.BroadcastHandler {
			return handlers.NewBroadcastHandler(logger, state, flow, coord, gw, clk)
		},
		func(logger logx.Logger, coord *coordinator.Coordinator, ring *notify.Ring) *handlers.DriverHandler {
			return handlers.NewDriverHandler(logger, coord, ring)
		},
		func(logger logx.Logger) *mw.Observability { return mw.NewObservability(logger, reg) },
		newRateLimitClock,
		newRateLimiter,
		newRateLimitMiddleware,
		router.New,
		serverProvider,
	)
}

package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"go.uber.org/dig"
	"golang.org/x/sync/errgroup"

	"driver-agent/internal/logx"
	"driver-agent/internal/realtime/kafka"
	"driver-agent/internal/service/coordinator"
)

// MustRun starts the agent using the provided DI container
func MustRun(container *dig.Container) {
	if err := run(container); err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			log.Println("shutdown requested, exiting")
			return
		case errors.Is(err, context.DeadlineExceeded):
			log.Println("startup aborted: startup timeout exceeded")
			return
		default:
			log.Fatalf("run error: %v", err)
		}
	}
}

func run(container *dig.Container) error {
	return container.Invoke(agentRun)
}

func agentRun(
	ctx context.Context,
	server *http.Server,
	logger logx.Logger,
	coord *coordinator.Coordinator,
	consumer *kafka.Consumer,
) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("driver-agent dashboard listening", logx.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return coord.Run(gctx)
	})

	if consumer != nil {
		g.Go(func() error {
			return consumer.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down driver-agent")

		shCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shCtx); err != nil {
			logger.Warn("graceful shutdown error", logx.Any("err", err))
		}
		if err := consumer.Close(); err != nil {
			logger.Warn("kafka close error", logx.Any("err", err))
		}
		return gctx.Err()
	})

	return g.Wait()
}

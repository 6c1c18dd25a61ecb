// Package runner manages the lifecycle of the cart daemon's long-lived
// components: sequential startup, signal handling and graceful
// reverse-order shutdown.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Service is a long-lived component managed by the Runner.
type Service interface {
	// Name identifies the service in logs and errors.
	Name() string

	// Start brings the service up. It must return once the service is
	// ready and must respect context cancellation.
	Start(ctx context.Context) error

	// Stop shuts the service down within the context deadline.
	Stop(ctx context.Context) error
}

// Runner starts services sequentially in registration order and stops
// them all concurrently when the context is cancelled or a signal
// arrives.
type Runner struct {
	services        []Service
	logger          *slog.Logger
	shutdownTimeout time.Duration
	startupTimeout  time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithShutdownTimeout bounds graceful shutdown. Default 30s.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(r *Runner) { r.shutdownTimeout = timeout }
}

// WithStartupTimeout bounds each service's Start. Default 1m.
func WithStartupTimeout(timeout time.Duration) Option {
	return func(r *Runner) { r.startupTimeout = timeout }
}

// New creates a Runner over the given services.
func New(services []Service, opts ...Option) *Runner {
	r := &Runner{
		services:        services,
		logger:          slog.Default(),
		shutdownTimeout: 30 * time.Second,
		startupTimeout:  time.Minute,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts all services and blocks until the context is cancelled,
// a shutdown signal arrives, or a service fails to start. It always
// attempts to stop every service it managed to start.
func (r *Runner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		WaitForShutdownSignal()
		r.logger.Info("shutdown signal received")
		cancel()
	}()

	var started []Service
	for _, svc := range r.services {
		startCtx, startCancel := context.WithTimeout(ctx, r.startupTimeout)
		err := svc.Start(startCtx)
		startCancel()

		if err != nil {
			r.logger.Error("service failed to start",
				slog.String("service", svc.Name()),
				slog.String("error", err.Error()),
			)
			stopErr := r.stopServices(started)
			return errors.Join(fmt.Errorf("start service %s: %w", svc.Name(), err), stopErr)
		}

		started = append(started, svc)
		r.logger.Info("service started", slog.String("service", svc.Name()))
	}

	<-ctx.Done()

	r.logger.Info("shutting down", slog.Duration("timeout", r.shutdownTimeout))
	return r.stopServices(started)
}

// stopServices stops services concurrently, honoring the shutdown
// timeout. Registration order is not a dependency order at stop time;
// every service must tolerate its peers being already gone.
func (r *Runner) stopServices(services []Service) error {
	if len(services) == 0 {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), r.shutdownTimeout)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, len(services))

	for _, svc := range services {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.Stop(shutdownCtx); err != nil {
				r.logger.Error("service stop failed",
					slog.String("service", svc.Name()),
					slog.String("error", err.Error()),
				)
				errCh <- fmt.Errorf("stop %s: %w", svc.Name(), err)
				return
			}
			r.logger.Info("service stopped", slog.String("service", svc.Name()))
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		close(errCh)
		var errs []error
		for err := range errCh {
			errs = append(errs, err)
		}
		return errors.Join(errs...)

	case <-shutdownCtx.Done():
		return fmt.Errorf("shutdown timeout of %s exceeded", r.shutdownTimeout)
	}
}

package observability

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownManager handles graceful shutdown of the console servers
type ShutdownManager struct {
	logger          *Logger
	servers         []*http.Server
	shutdownFuncs   []NamedShutdownFunc
	shutdownTimeout time.Duration
	mu              sync.Mutex
}

// ShutdownFunc is a function to call during shutdown
type ShutdownFunc func(context.Context) error

// NamedShutdownFunc pairs a shutdown function with a name for logging
type NamedShutdownFunc struct {
	Name string
	Fn   ShutdownFunc
}

// NewShutdownManager creates a new shutdown manager
func NewShutdownManager(logger *Logger, timeout time.Duration, servers ...*http.Server) *ShutdownManager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{
		logger:          logger,
		servers:         servers,
		shutdownTimeout: timeout,
	}
}

// RegisterShutdownFunc registers a named function to call during shutdown.
// Functions run in registration order after the HTTP servers have drained.
func (sm *ShutdownManager) RegisterShutdownFunc(name string, fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.shutdownFuncs = append(sm.shutdownFuncs, NamedShutdownFunc{Name: name, Fn: fn})
}

// WaitForShutdown blocks until SIGINT or SIGTERM, then drains
func (sm *ShutdownManager) WaitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	sm.logger.Infof("Received signal %s, starting graceful shutdown", sig)

	ctx, cancel := context.WithTimeout(context.Background(), sm.shutdownTimeout)
	defer cancel()

	return sm.Shutdown(ctx)
}

// Shutdown drains the HTTP servers and runs the registered shutdown
// functions in order. It is exported separately from WaitForShutdown so
// callers driving shutdown from their own signal handling can reuse it.
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	var errs []error

	for _, srv := range sm.servers {
		if srv == nil {
			continue
		}
		sm.logger.Infof("Shutting down HTTP server on %s", srv.Addr)
		if err := srv.Shutdown(ctx); err != nil {
			sm.logger.WithError(err).Error("HTTP server shutdown error")
			errs = append(errs, fmt.Errorf("http server %s: %w", srv.Addr, err))
		}
	}

	sm.mu.Lock()
	funcs := sm.shutdownFuncs
	sm.mu.Unlock()

	for _, nf := range funcs {
		select {
		case <-ctx.Done():
			sm.logger.Warn("Shutdown timeout reached, forcing shutdown")
			return fmt.Errorf("shutdown timeout reached")
		default:
		}

		if err := nf.Fn(ctx); err != nil {
			sm.logger.WithError(err).Errorf("Shutdown of %s failed", nf.Name)
			errs = append(errs, fmt.Errorf("%s: %w", nf.Name, err))
		} else {
			sm.logger.Infof("Shutdown of %s complete", nf.Name)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown completed with %d errors", len(errs))
	}

	sm.logger.Info("Graceful shutdown complete")
	return nil
}

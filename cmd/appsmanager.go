package cmd

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const (
	RestApp = "rest"

	shutdownTimeout = 10 * time.Second
)

// App is a long-running component managed by AppsManager.
// Start blocks until the app stops; Stop must make Start return.
type App interface {
	Start() error
	Stop(ctx context.Context) error
}

type AppsManager struct {
	apps map[string]App
	wg   *sync.WaitGroup

	// failed receives the name of an app whose Start returned an error
	failed chan string

	logger *zap.Logger
}

func NewAppsManager(logger *zap.Logger) *AppsManager {
	return &AppsManager{
		apps:   make(map[string]App),
		wg:     &sync.WaitGroup{},
		failed: make(chan string, 1),
		logger: logger,
	}
}

func (am *AppsManager) Register(name string, app App) {
	am.apps[name] = app
}

func (am *AppsManager) RunAll() {
	for name, app := range am.apps {
		am.wg.Add(1)
		go func(name string, app App) {
			defer am.wg.Done()
			am.logger.Info("App started", zap.String("name", name))
			if err := app.Start(); err != nil {
				am.logger.Error("App failed", zap.String("name", name), zap.Error(err))
				select {
				case am.failed <- name:
				default:
				}
			}
		}(name, app)
	}
}

func (am *AppsManager) StopAll() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for name, app := range am.apps {
		if err := app.Stop(ctx); err != nil {
			am.logger.Error("Failed to stop app", zap.String("name", name), zap.Error(err))
			continue
		}
		am.logger.Info("App stopped", zap.String("name", name))
	}
}

// WaitForShutdown blocks until SIGINT/SIGTERM or until an app fails, then stops every app.
func (am *AppsManager) WaitForShutdown() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case sig := <-stop:
		am.logger.Info("Shutting down", zap.String("signal", sig.String()))
	case name := <-am.failed:
		am.logger.Info("Shutting down after app failure", zap.String("name", name))
	}

	am.StopAll()
	am.wg.Wait()
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"saga-transaction/internal/common/logger"
	httphandler "saga-transaction/internal/infrastructure/http"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "serve the saga HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), root.configPath)
		},
	}
}

func serve(ctx context.Context, configPath string) error {
	deps, err := newDependencies(ctx, configPath, false)
	if err != nil {
		return err
	}
	defer deps.Close()
	l := deps.logger

	gin.SetMode(gin.ReleaseMode)
	sagaHandler := httphandler.NewSagaHandler(deps.runner, deps.journal)
	failureHandler := httphandler.NewFailureHandler(deps.failures)
	router := httphandler.NewRouter(sagaHandler, failureHandler, deps.checker, deps.registry)

	server := &http.Server{
		Addr:    ":" + deps.config.Port,
		Handler: router,
	}

	l.Info("Starting saga orchestrator", logger.Field{Key: "port", Value: deps.config.Port})

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
	case err := <-errCh:
		l.Error("Server failed", logger.Field{Key: "error", Value: err})
		return err
	}

	l.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		l.Error("Server forced to shutdown", logger.Field{Key: "error", Value: err})
	}
	// let background sagas finish their compensation before the journal closes
	deps.runner.Wait()
	return nil
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"saga-transaction/internal/common/configs"
	"saga-transaction/internal/common/logger"
	"saga-transaction/internal/infrastructure/participant"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

type participantOptions struct {
	port   string
	config participant.Config
}

func newParticipantCmd(root *rootOptions) *cobra.Command {
	opts := &participantOptions{}

	cmd := &cobra.Command{
		Use:   "participant",
		Short: "serve a simulated remote participant for http stages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveParticipant(root.configPath, opts)
		},
	}
	cmd.Flags().StringVar(&opts.port, "port", "8081", "port to listen on")
	cmd.Flags().DurationVar(&opts.config.Latency, "latency", 100*time.Millisecond, "delay before every answer")
	cmd.Flags().Float64Var(&opts.config.FailureRate, "failure-rate", 0, "fraction of transactions rejected going forward")
	cmd.Flags().Float64Var(&opts.config.CompensationFailureRate, "compensation-failure-rate", 0, "fraction of transactions whose release fails")

	return cmd
}

func serveParticipant(configPath string, opts *participantOptions) error {
	cfg, err := configs.Load(configPath)
	if err != nil {
		return err
	}
	l := logger.New(cfg.LogLevel, "saga-participant")

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	participant.New(opts.config, l).Register(router)

	server := &http.Server{
		Addr:    ":" + opts.port,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	l.Info("Starting participant", logger.Field{Key: "port", Value: opts.port})

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

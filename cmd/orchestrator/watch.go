package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"saga-transaction/internal/common/configs"
	"saga-transaction/internal/common/logger"
	"saga-transaction/internal/domain/events"
	"saga-transaction/internal/infrastructure/eventbus"

	"github.com/spf13/cobra"
)

func newWatchCmd(root *rootOptions) *cobra.Command {
	var groupID string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "log saga lifecycle events published on Kafka",
		RunE: func(cmd *cobra.Command, args []string) error {
			return watch(root.configPath, groupID)
		},
	}
	cmd.Flags().StringVar(&groupID, "group", "", "consumer group id, defaults to <service_name>-watch")

	return cmd
}

func watch(configPath, groupID string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := configs.Load(configPath)
	if err != nil {
		return err
	}
	l := logger.New(cfg.LogLevel, cfg.ServiceName)

	bus := eventbus.NewKafkaEventBus(cfg.Kafka.Brokers, l)
	defer bus.Close()

	if groupID == "" {
		groupID = cfg.ServiceName + "-watch"
	}

	err = bus.SubscribeWithGroupID(ctx, cfg.Kafka.Topic, groupID, func(ctx context.Context, event events.Event) error {
		l.Info("Saga event",
			logger.Field{Key: "transaction_id", Value: event.AggregateID()},
			logger.Field{Key: "event_type", Value: event.Type()},
			logger.Field{Key: "sequence", Value: event.SequenceNumber()},
			logger.Field{Key: "data", Value: event.Data()},
		)
		return nil
	})
	if err != nil {
		return err
	}

	l.Info("Watching saga events",
		logger.Field{Key: "topic", Value: cfg.Kafka.Topic},
		logger.Field{Key: "group", Value: groupID},
	)
	<-ctx.Done()
	return nil
}

package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bsocio/campaign-service/internal/config"
	"github.com/bsocio/campaign-service/internal/db"
	"github.com/bsocio/campaign-service/internal/logger"
	"github.com/bsocio/campaign-service/internal/repository"
	"github.com/bsocio/campaign-service/internal/worker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Enqueue dispatch jobs for due scheduled campaigns",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := logger.Init(cfg.Log.Level); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer func() { _ = logger.Log.Sync() }()

		pgDB, err := db.NewPostgresConnection(cfg.Postgres.DSN, db.PostgresOpts{
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Postgres.ConnMaxIdleTime,
			PingTimeout:     cfg.Postgres.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("postgres connect: %w", err)
		}
		defer pgDB.Close()

		s := &worker.Scheduler{
			DB:        pgDB,
			Campaigns: repository.NewCampaignsRepository(pgDB),
			Jobs:      repository.NewDispatchJobsRepository(pgDB),
			Outbox:    repository.NewOutboxRepository(pgDB),
			Topic:     cfg.Kafka.Topic,
			Interval:  cfg.Scheduler.Interval,
			Logger:    logger.Log,
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Log.Info("scheduler started", zap.Duration("interval", s.Interval))

		return s.Run(ctx)
	},
}

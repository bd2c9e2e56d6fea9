package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bsocio/campaign-service/internal/config"
	"github.com/bsocio/campaign-service/internal/db"
	"github.com/bsocio/campaign-service/internal/kafka"
	"github.com/bsocio/campaign-service/internal/logger"
	"github.com/bsocio/campaign-service/internal/mailer"
	"github.com/bsocio/campaign-service/internal/metrics"
	"github.com/bsocio/campaign-service/internal/repository"
	"github.com/bsocio/campaign-service/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var dispatcherCmd = &cobra.Command{
	Use:   "dispatcher",
	Short: "Run the campaign dispatch worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := logger.Init(cfg.Log.Level); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer func() { _ = logger.Log.Sync() }()

		metrics.MustRegister(prometheus.DefaultRegisterer)

		if cfg.SMTP.Addr == "" || cfg.SMTP.From == "" {
			return fmt.Errorf("smtp addr and from are required")
		}

		// 2) DB connections
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

		chDB, err := db.NewClickHouseConnection(db.ClickHouseOpts{
			DSN:             cfg.ClickHouse.DSN,
			MaxOpenConns:    cfg.ClickHouse.MaxOpenConns,
			MaxIdleConns:    cfg.ClickHouse.MaxIdleConns,
			ConnMaxLifetime: cfg.ClickHouse.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.ClickHouse.ConnMaxIdleTime,
			PingTimeout:     cfg.ClickHouse.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("clickhouse connect: %w", err)
		}
		defer func() { _ = chDB.Close() }()

		// 3) repositories
		jobsRepo := repository.NewDispatchJobsRepository(pgDB)
		campaignsRepo := repository.NewCampaignsRepository(pgDB)
		usersRepo := repository.NewUsersRepository(pgDB)
		eventsRepo := repository.NewCHEventsRepository(chDB)

		// 4) kafka consumer
		groupID := cfg.Kafka.GroupID
		if groupID == "" {
			groupID = "bsocio-dispatcher"
		}
		consumer := kafka.NewConsumerFromConfig(kafka.Config{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          cfg.Kafka.Topic,
			GroupID:        groupID,
			MinBytes:       cfg.Kafka.MinBytes,
			MaxBytes:       cfg.Kafka.MaxBytes,
			CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
		})
		defer consumer.Close()

		// 5) mailer
		m := mailer.NewSMTPMailer(mailer.SMTPOpts{
			Addr:       cfg.SMTP.Addr,
			Hostname:   cfg.SMTP.Hostname,
			Username:   cfg.SMTP.Username,
			Password:   cfg.SMTP.Password,
			From:       cfg.SMTP.From,
			FromName:   cfg.SMTP.FromName,
			Timeout:    cfg.SMTP.Timeout,
			DisableTLS: cfg.SMTP.DisableTLS,
		}, logger.Log)

		d := &worker.Dispatcher{
			Consumer:  consumer,
			Jobs:      jobsRepo,
			Campaigns: campaignsRepo,
			Users:     usersRepo,
			Events:    eventsRepo,
			Checkpoints: &worker.CheckpointWriter{
				DB:        pgDB,
				Jobs:      jobsRepo,
				Campaigns: campaignsRepo,
			},
			Mailer:    m,
			Logger:    logger.Log,
			PageSize:  cfg.Dispatch.PageSize,
			SendDelay: cfg.Dispatch.SendDelay,
		}

		// 6) graceful shutdown
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Log.Info("dispatcher started",
			zap.String("topic", cfg.Kafka.Topic),
			zap.String("group", groupID),
			zap.Int("page_size", d.PageSize),
			zap.Duration("send_delay", d.SendDelay),
		)

		return d.Run(ctx)
	},
}

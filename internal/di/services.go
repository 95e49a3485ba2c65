package di

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/tracker/internal/clients/pricefeed"
	"github.com/aristath/tracker/internal/config"
	"github.com/aristath/tracker/internal/modules/history"
	"github.com/aristath/tracker/internal/modules/portfolio"
	"github.com/aristath/tracker/internal/modules/prices"
	"github.com/aristath/tracker/internal/modules/snapshots"
	"github.com/aristath/tracker/internal/reliability"
	"github.com/rs/zerolog"
)

// InitializeServices creates the business services and the price feed client
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	container.SnapshotWriter = snapshots.NewWriter(
		container.SnapshotRepo,
		container.Clock,
		snapshots.WriterConfig{
			Location: location(cfg),
			Attempts: cfg.SnapshotWriteAttempts,
		},
		log,
	)

	container.Propagator = prices.NewPropagator(container.PositionRepo, prices.DefaultWorkers, log)

	container.PortfolioService = portfolio.NewPortfolioService(
		container.PositionRepo,
		container.SnapshotWriter,
		container.Clock,
		log,
	)

	container.HistoryService = history.NewService(
		container.PositionRepo,
		container.SnapshotRepo,
		container.Clock,
		log,
	)

	container.PriceFeed = pricefeed.NewClient(cfg.PriceFeedURL, container.Propagator, log)

	if cfg.Backup.Enabled() {
		s3Client, err := reliability.NewS3Client(ctx, reliability.S3Config{
			Bucket:          cfg.Backup.Bucket,
			Region:          cfg.Backup.Region,
			Endpoint:        cfg.Backup.Endpoint,
			AccessKeyID:     cfg.Backup.AccessKeyID,
			SecretAccessKey: cfg.Backup.SecretAccessKey,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to create backup client: %w", err)
		}
		container.BackupService = reliability.NewBackupService(
			container.HistoryDB,
			s3Client,
			cfg.DataDir,
			cfg.Backup.Prefix,
			container.Clock,
			log,
		)
		log.Info().Str("bucket", cfg.Backup.Bucket).Msg("History backups enabled")
	}

	return nil
}

func location(cfg *config.Config) *time.Location {
	if cfg.Location != nil {
		return cfg.Location
	}
	return time.UTC
}

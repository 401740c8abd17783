package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"seedbed/internal/automation"
	"seedbed/internal/config"
	"seedbed/internal/models"
	"seedbed/internal/observability"
	"seedbed/internal/services"
	"seedbed/pkg/fetcher"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the seedbed worker process",
	Long:  `Run the seedbed worker process`,
	Run:   run,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func run(cmd *cobra.Command, args []string) {
	cfg := config.Load()

	if err := config.InitLogger(cfg); err != nil {
		logrus.Fatalf("Failed to initialize logger: %v", err)
	}
	appLogger := logrus.StandardLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg)
	if err != nil {
		appLogger.Warnf("tracing setup: %v", err)
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			appLogger.Warnf("tracing shutdown: %v", err)
		}
	}()

	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		cfg.Database.Host, cfg.Database.User, cfg.Database.Password, cfg.Database.Name, cfg.Database.Port,
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		appLogger.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.Transaction{}, &models.Seed{}, &models.Tag{}, &models.Sprout{},
		&models.Automation{}, &models.Job{},
	); err != nil {
		appLogger.Fatalf("Failed to migrate database: %v", err)
	}

	txService := services.NewTransactionService(db, appLogger)
	seedService := services.NewSeedService(db, txService, appLogger)
	jobQueue := services.NewDBJobQueue(db, appLogger)
	completions := services.NewCompletionClient(cfg.AI.OpenAI, appLogger)
	fetchClient := fetcher.NewClient(&fetcher.Config{
		BaseURL:      cfg.Fetcher.BaseURL,
		APIKey:       cfg.Fetcher.APIKey,
		Timeout:      cfg.Fetcher.Timeout,
		MaxBodyBytes: cfg.Fetcher.MaxBodyBytes,
	}, appLogger)

	actx := &automation.Context{
		Completions: completions,
		Fetcher:     fetchClient,
		Queue:       jobQueue,
		Sprouts:     seedService,
		Logger:      appLogger,
	}

	registry := automation.NewRegistry(db, appLogger)
	if err := registry.LoadFromDatabase(ctx, []automation.Automation{
		automation.NewFollowUpAutomation(),
		automation.NewClassifierAutomation(),
		automation.NewWebLinkAutomation(),
	}); err != nil {
		appLogger.Fatalf("Failed to load automation registry: %v", err)
	}

	worker := automation.NewWorker(jobQueue, txService, registry, actx,
		cfg.Automation.WorkerPollPeriod, cfg.Automation.ProcessTimeout, appLogger)

	appLogger.Info("seedbed worker running, press Ctrl+C to stop")
	worker.Run(ctx)
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"seedbed/internal/automation"
	"seedbed/internal/config"
	"seedbed/internal/models"
	"seedbed/internal/observability"
	"seedbed/internal/services"
	"seedbed/pkg/fetcher"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

func main() {
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()

	cfg := config.Load()
	if err := config.InitLogger(cfg); err != nil {
		logrus.Warnf("init logger: %v", err)
	}
	appLogger := logrus.StandardLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg)
	if err != nil {
		appLogger.Warnf("tracing setup: %v", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		cfg.Database.Host, cfg.Database.User, cfg.Database.Password, cfg.Database.Name, cfg.Database.Port,
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		appLogger.Fatalf("Failed to connect to database: %v", err)
	}
	if cfg.Monitoring.Tracing.Enabled {
		if err := db.Use(tracing.NewPlugin()); err != nil {
			appLogger.Warnf("gorm tracing plugin: %v", err)
		}
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
	followUp := automation.NewFollowUpAutomation()
	classifier := automation.NewClassifierAutomation()
	webLink := automation.NewWebLinkAutomation()
	if err := registry.LoadFromDatabase(ctx, []automation.Automation{followUp, classifier, webLink}); err != nil {
		appLogger.Fatalf("Failed to load automation registry: %v", err)
	}

	if cfg.Automation.WorkerEnabled {
		worker := automation.NewWorker(jobQueue, txService, registry, actx,
			cfg.Automation.WorkerPollPeriod, cfg.Automation.ProcessTimeout, appLogger)
		go worker.Run(ctx)
	}

	if cfg.Automation.ClassifyPeriod > 0 {
		go runClassifyLoop(ctx, cfg.Automation.ClassifyPeriod, classifier, seedService, txService, actx, appLogger)
	}

	appLogger.Infof("seedbed started (worker=%v)", cfg.Automation.WorkerEnabled)
	<-ctx.Done()
	appLogger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := shutdownTracing(shutdownCtx); err != nil {
		appLogger.Warnf("tracing shutdown: %v", err)
	}
	appLogger.Info("Server exited")
	os.Exit(0)
}

// runClassifyLoop periodically batch-classifies every seed and appends
// the resulting suggestion transactions.
func runClassifyLoop(ctx context.Context, period time.Duration, classifier *automation.ClassifierAutomation, seeds *services.SeedService, txs *services.TransactionService, actx *automation.Context, log *logrus.Logger) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			states, err := seeds.ListAllSeeds(ctx)
			if err != nil {
				log.Warnf("classify loop: %v", err)
				continue
			}
			results, err := classifier.ClassifyBatch(ctx, states, actx)
			if err != nil {
				log.Warnf("classify loop: %v", err)
				continue
			}
			for i := range results {
				if err := txs.Append(ctx, &results[i]); err != nil {
					log.Warnf("classify loop: append: %v", err)
				}
			}
			if len(results) > 0 {
				log.Infof("classify loop: appended %d suggestion(s)", len(results))
			}
		}
	}
}

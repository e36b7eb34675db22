package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"

	"pyramidtracker/src/connectors"
	"pyramidtracker/src/database"
	"pyramidtracker/src/fees"
	"pyramidtracker/src/handler"
	"pyramidtracker/src/notify"
	"pyramidtracker/src/pricing"
	"pyramidtracker/src/report"
	"pyramidtracker/src/repository"
	"pyramidtracker/src/server"
	"pyramidtracker/src/trade"
)

var (
	PORT     = os.Getenv("SERVER_PORT")
	APP_NAME = os.Getenv("APP_NAME")
)

func SetupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		level = logger.InfoLevel
	}

	logger.SetLevel(level)
	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	SetupLogger()
	defer handlePanic()

	if err := database.InitDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	engineConfig := trade.GetConfig()

	feeTable := fees.Default()
	if engineConfig.FeeConfigPath != "" {
		loaded, err := fees.Load(engineConfig.FeeConfigPath)
		if err != nil {
			logger.WithError(err).Fatal("Failed to load fee schedule")
		}
		feeTable = loaded
	}

	notifier, err := notify.NewNotifier(notify.GetConfig())
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize Telegram notifier")
	}

	registry := connectors.NewRegistry(connectors.GetConfig())
	gateway := pricing.NewService(registry, repository.NewSymbolRuleRepository(), pricing.GetConfig())

	trades := repository.NewTradeRepository()
	engine := trade.NewEngine(gateway, trades, repository.NewAnomalyRepository(), notifier, feeTable, engineConfig)

	reportConfig := report.GetConfig()
	reports, err := report.NewService(trades, repository.NewReportRepository(), reportConfig)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize report service")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if reportConfig.SchedulerEnabled {
		scheduler, err := report.NewScheduler(reports, notifier, reportConfig)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize report scheduler")
		}
		go scheduler.Start(ctx)
	}

	secret := handler.GetConfig().WebhookSecret
	server.StartServer(PORT, server.Handlers{
		Webhook:     handler.WebhookHandler(engine, secret),
		ListTrades:  handler.ListTradesHandler(trades),
		GetTrade:    handler.GetTradeHandler(trades),
		DailyReport: handler.DailyReportHandler(reports),
	})
}

func handlePanic() {
	if r := recover(); r != nil {
		logger.WithError(fmt.Errorf("%+v", r)).Error(fmt.Sprintf("Application %s panic", APP_NAME))
	}
	//nolint
	time.Sleep(time.Second * 5)
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

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

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "pyramidtracker"
	app.Usage = "Pyramid signal tracker command line interface"

	app.Commands = []cli.Command{
		serveCMD,
		reportCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	serveCMD = cli.Command{
		Name:        "serve",
		Usage:       "run the webhook server",
		Action:      serveAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the signal ingestion server with the daily report scheduler`,
	}
	reportCMD = cli.Command{
		Name:      "report",
		Usage:     "generate a daily report",
		Action:    reportAction,
		ArgsUsage: "",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "date",
				Usage: "report day as YYYY-MM-DD (default: today in the reporting timezone)",
			},
		},
		Description: `Aggregate one day of closed trades, store the result and print it as JSON`,
	}
)

func serveAction(_ *cli.Context) error {
	logrus.Info("Starting serve CMD")

	if err := database.InitDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	engineConfig := trade.GetConfig()

	feeTable := fees.Default()
	if engineConfig.FeeConfigPath != "" {
		loaded, err := fees.Load(engineConfig.FeeConfigPath)
		if err != nil {
			return err
		}
		feeTable = loaded
	}

	notifier, err := notify.NewNotifier(notify.GetConfig())
	if err != nil {
		return err
	}

	registry := connectors.NewRegistry(connectors.GetConfig())
	gateway := pricing.NewService(registry, repository.NewSymbolRuleRepository(), pricing.GetConfig())

	trades := repository.NewTradeRepository()
	engine := trade.NewEngine(gateway, trades, repository.NewAnomalyRepository(), notifier, feeTable, engineConfig)

	reportConfig := report.GetConfig()
	reports, err := report.NewService(trades, repository.NewReportRepository(), reportConfig)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if reportConfig.SchedulerEnabled {
		scheduler, err := report.NewScheduler(reports, notifier, reportConfig)
		if err != nil {
			return err
		}
		go scheduler.Start(ctx)
	}

	secret := handler.GetConfig().WebhookSecret
	server.StartServer(os.Getenv("SERVER_PORT"), server.Handlers{
		Webhook:     handler.WebhookHandler(engine, secret),
		ListTrades:  handler.ListTradesHandler(trades),
		GetTrade:    handler.GetTradeHandler(trades),
		DailyReport: handler.DailyReportHandler(reports),
	})

	return nil
}

func reportAction(c *cli.Context) error {
	logrus.Info("Starting report CMD")

	if err := database.InitDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	trades := repository.NewTradeRepository()
	reports, err := report.NewService(trades, repository.NewReportRepository(), report.GetConfig())
	if err != nil {
		return err
	}

	date := c.String("date")
	if date == "" {
		date = reports.Today()
	}

	generated, err := reports.GenerateAndStore(context.Background(), date)
	if err != nil {
		logrus.WithError(err).Error("Generating daily report")
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(generated)
}

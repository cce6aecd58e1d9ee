package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	logger "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"perpagent/src/cache"
	"perpagent/src/config"
	"perpagent/src/coordinator"
	"perpagent/src/database"
	"perpagent/src/exchange"
	"perpagent/src/health"
	"perpagent/src/llm"
	"perpagent/src/notifier"
	"perpagent/src/reconciler"
	"perpagent/src/repository"
	"perpagent/src/reversal"
	"perpagent/src/risk"
	"perpagent/src/scheduler"
	"perpagent/src/server"
)

func setupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))
	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		level = logger.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logger.TextFormatter{FullTimestamp: true})
}

// app is the fully wired set of components one process needs, built in
// the order the project's design notes require: config -> store ->
// exchange adapter -> coordinator -> cache -> notifier -> risk engine
// -> reversal monitor -> scheduler -> reconciler -> health aggregator
// -> HTTP.
type app struct {
	cfg         config.Config
	ex          exchange.Exchange
	coordinator *coordinator.Coordinator
	cache       *cache.Cache
	notify      *notifier.Notifier
	riskEngine  *risk.Engine
	closeQueue  *risk.CloseQueue
	reversalMon *reversal.Monitor
	sched       *scheduler.Scheduler
	recon       *reconciler.Reconciler
	healthAgg   *health.Aggregator

	positions   *repository.PositionRepository
	trades      *repository.TradeRepository
	priceOrders *repository.PriceOrderRepository
	closeEvents *repository.CloseEventRepository
	accountHist *repository.AccountHistoryRepository
	decisions   *repository.AgentDecisionRepository
	states      *repository.InconsistentStateRepository
}

func build() (*app, error) {
	cfg := config.Load()

	if err := database.InitDB(); err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	innerEx, err := exchange.New(cfg.Exchange)
	if err != nil {
		return nil, fmt.Errorf("init exchange adapter: %w", err)
	}

	coord := coordinator.New(cfg.Coordinator)
	ch := cache.New(cfg.Cache)
	ex := exchange.NewGuarded(innerEx, coord, ch)

	notify := notifier.New(cfg.Notifier, notifier.LogTransport{})

	positions := repository.NewPositionRepository()
	trades := repository.NewTradeRepository()
	priceOrders := repository.NewPriceOrderRepository()
	closeEvents := repository.NewCloseEventRepository()
	accountHist := repository.NewAccountHistoryRepository()
	decisions := repository.NewAgentDecisionRepository()
	states := repository.NewInconsistentStateRepository()

	riskEngine := risk.NewEngine(cfg.Risk, positions, trades, priceOrders, states)
	closeQueue := risk.NewCloseQueue(riskEngine, 32)

	reversalMon := reversal.NewMonitor(cfg.Reversal, ex, positions, closeQueue)

	dispatcher := llm.NewDispatcher(cfg.LLM, ex, riskEngine, positions)
	sched := scheduler.NewScheduler(cfg.Scheduler, ex, dispatcher, llm.NoopDecider{}, positions, decisions, accountHist)

	recon := reconciler.NewReconciler(cfg.Reconciler, ex, states, positions, priceOrders, trades, notify)

	healthAgg := health.NewAggregator(cfg.Health, coord, recon, ex, positions, priceOrders, states, notify)

	return &app{
		cfg: cfg, ex: ex, coordinator: coord, cache: ch, notify: notify,
		riskEngine: riskEngine, closeQueue: closeQueue, reversalMon: reversalMon,
		sched: sched, recon: recon, healthAgg: healthAgg,
		positions: positions, trades: trades, priceOrders: priceOrders,
		closeEvents: closeEvents, accountHist: accountHist, decisions: decisions, states: states,
	}, nil
}

func (a *app) router() *server.Server {
	deps := server.Dependencies{
		Exchange: a.ex, Positions: a.positions, Trades: a.trades,
		CloseEvents: a.closeEvents, AccountHistory: a.accountHist,
		Decisions: a.decisions, PriceOrders: a.priceOrders, Health: a.healthAgg,
	}
	return server.New(a.cfg.Server, server.NewRouter(deps))
}

func main() {
	setupLogger()
	defer handlePanic()

	cliApp := cli.NewApp()
	cliApp.Name = "perpagent"
	cliApp.Usage = "autonomous perpetual-futures trading control plane"
	cliApp.Commands = []cli.Command{
		serveCommand,
		reconcileOnceCommand,
		healthCommand,
	}

	if err := cliApp.Run(os.Args); err != nil {
		logger.WithError(err).Fatal("perpagent exited with error")
	}
}

var serveCommand = cli.Command{
	Name:   "serve",
	Usage:  "run the decision loop, reversal monitor, reconciler, and dashboard API together",
	Action: serveAction,
}

func serveAction(_ *cli.Context) error {
	a, err := build()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go a.coordinator.StartReporting(ctx)
	go a.closeQueue.StartWorker(ctx, a.ex)
	go a.reversalMon.StartLoop(ctx)
	go a.recon.StartLoop(ctx)
	go a.recon.StartTriggerPollLoop(ctx)
	go func() {
		if err := a.sched.StartLoop(ctx); err != nil {
			logger.WithError(err).Error("decision loop exited")
		}
	}()

	return a.router().Run(ctx)
}

var reconcileOnceCommand = cli.Command{
	Name:   "reconcile-once",
	Usage:  "run a single reconciler pass and exit, for operator-triggered cleanup",
	Action: reconcileOnceAction,
}

func reconcileOnceAction(_ *cli.Context) error {
	a, err := build()
	if err != nil {
		return err
	}
	return a.recon.Run(context.Background())
}

var healthCommand = cli.Command{
	Name:   "health",
	Usage:  "print the current health verdict and exit",
	Action: healthAction,
}

func healthAction(_ *cli.Context) error {
	a, err := build()
	if err != nil {
		return err
	}
	report := a.healthAgg.Compute(context.Background())
	fmt.Printf("healthy=%t issues=%v warnings=%v\n", report.Healthy, report.Issues, report.Warnings)
	return nil
}

func handlePanic() {
	if r := recover(); r != nil {
		logger.WithError(fmt.Errorf("%+v", r)).Error("perpagent panic")
	}
}

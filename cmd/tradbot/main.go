// Command tradbot runs the single-pair futures bot: it loads configuration,
// wires the exchange adapter, signal generator, approval gate, risk manager
// and engine, reconciles persisted state against the exchange, and polls
// until interrupted. Shutdown leaves any open position on the exchange; the
// next startup reconciles it.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/juanjaure777-art/TRAD/bot"
	"github.com/juanjaure777-art/TRAD/config"
	"github.com/juanjaure777-art/TRAD/exchange"
	"github.com/juanjaure777-art/TRAD/executor"
	"github.com/juanjaure777-art/TRAD/gate"
	"github.com/juanjaure777-art/TRAD/logger"
	"github.com/juanjaure777-art/TRAD/risk"
	"github.com/juanjaure777-art/TRAD/signal"
	"github.com/juanjaure777-art/TRAD/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	paper := flag.Bool("paper", false, "simulate fills in-process instead of trading live")
	paperEquity := flag.Float64("paper-equity", 10000, "starting equity for paper trading")
	flag.Parse()

	log, err := logger.NewZapLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("config_load_failed",
			logger.String("path", *configPath), logger.Err(err))
		os.Exit(1)
	}

	client := exchange.NewClient(cfg.Exchange, log)

	var exec executor.Executor
	if *paper {
		exec = executor.NewPaperExecutor(*paperEquity)
	} else {
		if cfg.Exchange.APIKey == "" || cfg.Exchange.SecretKey == "" {
			log.Error("missing_exchange_credentials",
				logger.String("hint", "set BINANCE_API_KEY and BINANCE_SECRET_KEY, or run with -paper"))
			os.Exit(1)
		}
		exec = exchange.NewLiveExecutor(client, log)
	}

	engine := bot.New(cfg, log, exec, client,
		signal.NewGenerator(cfg.Signal, cfg.Exit, log),
		gate.New(cfg.Gate, log),
		nil, // standard trend/zones/void gate
		risk.NewManager(cfg.Risk, log, nil),
		store.New(cfg.Engine.StateFile),
		nil)

	if addr := cfg.Engine.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics_server_failed", logger.Err(err))
			}
		}()
		defer srv.Close()
		log.Info("metrics_listening", logger.String("addr", addr))
	}

	ctx, stop := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("tradbot_starting",
		logger.String("symbol", cfg.Engine.Symbol),
		logger.String("timeframe", cfg.Engine.Timeframe),
		logger.Bool("paper", *paper),
		logger.Bool("testnet", cfg.Exchange.UseTestnet))

	if err := engine.Recover(ctx); err != nil {
		log.Error("recovery_failed", logger.Err(err))
		os.Exit(1)
	}
	if halted, reason := engine.Halted(); halted {
		log.Error("starting_halted", logger.String("reason", reason))
	}

	engine.Run(ctx)
	log.Info("tradbot_stopped")
}

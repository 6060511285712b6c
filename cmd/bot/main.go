package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"trading-agent/internal/logger"
	"trading-agent/internal/server"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML or JSON config file")
	runMode := flag.String("run", "loop", "once | loop | rebalance | serve")
	withLoop := flag.Bool("loop", false, "in serve mode, also run the strategy loop")
	flag.Parse()

	if err := initializeSystem(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, *configPath, *runMode, *withLoop)
	stop()

	if err != nil {
		logger.ErrorWithErr(context.Background(), "Agent stopped with error", err)
	}
	_ = logger.Shutdown(context.Background())
	if err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, mode string, withLoop bool) error {
	a, err := buildApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.journal.Close()

	logger.Info(ctx, "Agent started", "run", mode, "mode", a.cfg.Mode, "asset", a.cfg.TradingPair.BaseAsset)

	switch mode {
	case "once":
		res, err := a.engine.Step(ctx)
		printJSON(res)
		return err
	case "rebalance":
		res, err := a.engine.Rebalance(ctx)
		printJSON(res)
		return err
	case "loop":
		a.loop(ctx)
		a.summarize()
		return nil
	case "serve":
		srv := server.New(a.engine, server.Options{
			Addr:          a.cfg.Server.Addr,
			RatePerSecond: a.cfg.Server.RatePerSecond,
			Burst:         a.cfg.Server.Burst,
			PlanTTL:       a.cfg.PlanTTL(),
			Metrics:       a.metrics.Handler(),
		})
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return srv.Run(gctx) })
		if withLoop {
			g.Go(func() error { a.loop(gctx); return nil })
		}
		err := g.Wait()
		a.summarize()
		return err
	}
	return fmt.Errorf("unknown run mode %q", mode)
}

// loop runs a strategy cycle every poll interval and the day summary after
// its cutoff, until ctx is done.
func (a *app) loop(ctx context.Context) {
	tick := time.NewTicker(time.Duration(a.cfg.PollSeconds) * time.Second)
	defer tick.Stop()
	eodTick := time.NewTicker(time.Minute)
	defer eodTick.Stop()

	a.step(ctx)
	for {
		select {
		case <-tick.C:
			a.step(ctx)
		case <-eodTick.C:
			if ok, _ := a.eod.ShouldRunNow(); ok {
				a.summarize()
			}
		case <-ctx.Done():
			logger.Info(context.Background(), "Shutting down")
			return
		}
	}
}

func (a *app) step(ctx context.Context) {
	res, err := a.engine.Step(ctx)
	if err != nil {
		// logged by the engine middleware; the next tick retries
		return
	}
	printJSON(res)
}

func (a *app) summarize() {
	_, _ = a.eod.SummarizeToday(context.Background())
}

func printJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Println(string(b))
}

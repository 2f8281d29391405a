// Command robotd is the onboard process entrypoint: it wires the broker,
// worker pool, control cascade, motion adapters, gains watcher, and
// diagnostics surface together, then runs until SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/triton-robotics/onboard/broker"
	"github.com/triton-robotics/onboard/config"
	"github.com/triton-robotics/onboard/control"
	"github.com/triton-robotics/onboard/diagnostics"
	"github.com/triton-robotics/onboard/lifecycle"
	"github.com/triton-robotics/onboard/logger"
	"github.com/triton-robotics/onboard/motion"
	"github.com/triton-robotics/onboard/workerpool"
)

func main() {
	configPath := flag.String("config", "", "path to the TOML config file (optional)")
	flag.Parse()

	log := logger.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("robotd: failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	b := broker.New(log)
	pool := workerpool.New(ctx, cfg.WorkerPoolSize, log)
	defer pool.Close()

	controlSubsystem := control.New(control.Config{
		Frequency:         cfg.Frequency,
		OutputCap:         cfg.OutputCap,
		InitDelay:         cfg.InitDelay(),
		BindRetryInterval: cfg.BindRetryInterval(),
	}, log)

	estimator := motion.NewEstimator(motion.EstimatorConfig{
		BindRetryInterval: cfg.BindRetryInterval(),
	}, log)

	translator := motion.NewTranslator(motion.TranslatorConfig{
		BindRetryInterval: cfg.BindRetryInterval(),
	}, log)

	gainsWatcher := config.NewGainsWatcher(cfg.GainsFile, cfg.Gains.ToWire(), log)

	reporter := diagnostics.NewReporter(b, controlSubsystem, cfg.DiagnosticsCron, log)
	httpSurface := diagnostics.NewServer(cfg.DiagnosticsAddr, b, controlSubsystem, log)

	rt := lifecycle.NewRuntime(b, pool, log)
	rt.Register(gainsWatcher)
	rt.Register(estimator)
	rt.Register(translator)
	rt.Register(controlSubsystem)
	rt.Register(reporter)
	rt.Register(httpSurface)

	rt.Start(ctx, func(module string, err error) {
		log.Error("robotd: module failed to start, it will not run", "module", module, "error", err)
	})

	log.Info("robotd: running", "frequency_hz", cfg.Frequency, "output_cap", cfg.OutputCap)
	<-ctx.Done()
	log.Info("robotd: shutting down")
}

// oxidekeys remaps physical keyboards through a configurable pipeline of
// layout translation, positional overlaps, layered alternate maps, and
// temporal tap-hold arbitration, replaying the result onto a synthetic
// uinput keyboard.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/leonard/oxidekeys/internal/config"
	"github.com/leonard/oxidekeys/internal/device"
	"github.com/leonard/oxidekeys/internal/features/layers"
	"github.com/leonard/oxidekeys/internal/features/overlaps"
	"github.com/leonard/oxidekeys/internal/features/terms"
	"github.com/leonard/oxidekeys/internal/mappings"
	"github.com/leonard/oxidekeys/internal/pipeline"
	"github.com/leonard/oxidekeys/internal/syn"
	"github.com/leonard/oxidekeys/internal/tray"
	"github.com/leonard/oxidekeys/internal/worker"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	showVersion := flag.Bool("version", false, "Show version information")
	noTray := flag.Bool("no-tray", false, "Run without system tray")
	flag.Parse()
	if *configPath == "" && flag.NArg() > 0 {
		*configPath = flag.Arg(0)
	}

	if *showVersion {
		fmt.Printf("oxidekeys %s (%s) built %s\n", version, commit, buildDate)
		os.Exit(0)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(*logLevel),
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger.Info("oxidekeys starting", "version", version, "keyboards", len(cfg.Keyboards))

	wantedNames := make(map[string]struct{}, len(cfg.Keyboards))
	for name := range cfg.Keyboards {
		wantedNames[name] = struct{}{}
	}

	devManager := device.NewManager(logger)
	defer devManager.Close()

	matched, err := devManager.FindMatching(wantedNames)
	if err != nil {
		logger.Error("failed to enumerate input devices", "error", err)
		os.Exit(1)
	}
	if len(matched) == 0 {
		logger.Error("no configured keyboards found")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		wg          sync.WaitGroup
		workers     []*worker.Worker
		deviceNames []string
	)

	for _, dev := range matched {
		kbCfg := cfg.Keyboards[dev.Name()]

		if !cfg.Globals.NoEmit {
			if err := dev.Grab(); err != nil {
				logger.Error("failed to grab keyboard", "name", dev.Name(), "error", err)
				continue
			}
		}

		sink, err := syn.New(dev.Name())
		if err != nil {
			logger.Error("failed to create virtual keyboard", "name", dev.Name(), "error", err)
			dev.Ungrab()
			continue
		}

		layout, err := mappings.ParseLayoutName(kbCfg.Layout)
		if err != nil {
			logger.Error("invalid layout", "name", dev.Name(), "layout", kbCfg.Layout, "error", err)
			sink.Close()
			dev.Ungrab()
			continue
		}

		w := worker.New(dev, sink, &kbCfg, &cfg.Globals, logger)
		w.SetPipeline(buildFeatures(cfg, w), layout)

		workers = append(workers, w)
		deviceNames = append(deviceNames, dev.Name())

		wg.Add(1)
		go func(w *worker.Worker, dev *device.Device, sink *syn.Keyboard) {
			defer wg.Done()
			defer sink.Close()
			defer dev.Ungrab()
			if err := w.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("worker stopped", "device", dev.Name(), "error", err)
			}
		}(w, dev, sink)
	}

	if len(workers) == 0 {
		logger.Error("no configured keyboard could be started")
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if *noTray {
		logger.Info("running without system tray, press Ctrl+C to quit")
		<-sigChan
		logger.Info("shutting down...")
		cancel()
	} else {
		trayCfg := tray.Config{
			Devices: deviceNames,
			Enabled: true,
			OnToggle: func(enabled bool) {
				for _, w := range workers {
					w.SetEnabled(enabled)
				}
			},
			OnQuit: func() {
				logger.Info("shutting down...")
				cancel()
			},
			Logger: logger,
		}
		trayIcon := tray.New(trayCfg)

		go func() {
			<-sigChan
			logger.Info("shutting down...")
			cancel()
			trayIcon.Quit()
		}()

		trayIcon.Run()
	}

	wg.Wait()
	logger.Info("oxidekeys stopped")
}

// buildFeatures assembles the canonical Overlaps -> Layers -> Terms chain,
// skipping any feature the configuration disables.
func buildFeatures(cfg *config.Config, scheduler terms.Scheduler) []pipeline.Feature {
	var features []pipeline.Feature
	if cfg.FeatureEnabled("overlaps") {
		features = append(features, overlaps.New())
	}
	if cfg.FeatureEnabled("layers") {
		features = append(features, layers.New())
	}
	if cfg.FeatureEnabled("terms") {
		features = append(features, terms.New(scheduler))
	}
	return features
}

func parseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

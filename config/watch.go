package config

import (
	"context"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"

	"github.com/triton-robotics/onboard/broker"
	"github.com/triton-robotics/onboard/logger"
	"github.com/triton-robotics/onboard/topics"
)

// GainsWatcher is the producer of PID/Constants: it binds the slot with
// the configured gain set as its default at startup, then publishes whenever
// GainsFile changes on disk. It implements lifecycle.Module so it can be
// registered on the same Runtime as every other module, even though it
// has nothing to bind as a subscriber.
type GainsWatcher struct {
	path string
	init topics.GainSet5
	log  logger.Logger

	pub *broker.LatestPublisher[topics.GainSet5]
}

// NewGainsWatcher constructs a watcher that binds init as the slot default
// and, if path is non-empty, watches it for further updates.
func NewGainsWatcher(path string, init topics.GainSet5, log logger.Logger) *GainsWatcher {
	if log == nil {
		log = logger.Nop{}
	}
	return &GainsWatcher{path: path, init: init, log: log}
}

// Name implements lifecycle.Module.
func (w *GainsWatcher) Name() string { return "gains-watcher" }

// Init implements lifecycle.Module: binds the PID/Constants publisher
// with the configured default.
func (w *GainsWatcher) Init(ctx context.Context, b *broker.Broker) error {
	pub, err := broker.BindLatestPublisher(b, topics.PIDConstants, w.init)
	if err != nil {
		return err
	}
	w.pub = pub
	return nil
}

// Run implements lifecycle.Module. With no GainsFile configured it exits
// immediately, leaving the default bound by Init in place — there is
// nothing further to do.
func (w *GainsWatcher) Run(ctx context.Context) {
	if w.path == "" {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.log.Error("config: gains watcher unavailable", "error", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(w.path); err != nil {
		w.log.Error("config: cannot watch gains file", "path", w.path, "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			gains, err := loadGainsFile(w.path)
			if err != nil {
				w.log.Warn("config: gains file reload failed, keeping previous gains", "error", err)
				continue
			}
			w.pub.Publish(gains.ToWire())
			w.log.Info("config: gains reloaded", "path", w.path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("config: gains watcher error", "error", err)
		}
	}
}

// loadGainsFile decodes just the `gains` table of a config-shaped TOML
// file, so the watched file can be either the full process config or a
// standalone gains document.
func loadGainsFile(path string) (GainSet5, error) {
	var doc struct {
		Gains GainSet5 `toml:"gains"`
	}
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return GainSet5{}, fmt.Errorf("config: decode gains file %s: %w", path, err)
	}
	return doc.Gains, nil
}

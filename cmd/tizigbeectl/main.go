// Command tizigbeectl brings up a TI Zigbee Network Processor coordinator
// from a YAML config file and keeps it running until interrupted, logging
// device joins, leaves, and incoming application data.
package main

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tizigbee/internal/cache"
	"tizigbee/internal/config"
	"tizigbee/internal/serialport"
	"tizigbee/internal/znp"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		bootLogger.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)
	logger.Info("tizigbee starting", "version", version)

	store, err := cache.Open(cfg.Cache.Path)
	if err != nil {
		logger.Error("open cache", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	requestTimeout, _ := cfg.RequestTimeout()
	watchdogInterval, _ := cfg.WatchdogInterval()

	driver, err := openDriver(cfg, logger, requestTimeout, watchdogInterval)
	if err != nil {
		logger.Error("open driver", "err", err)
		os.Exit(1)
	}
	defer driver.Close()

	logger.Info("coprocessor identified",
		"major", driver.Version().MajorRel,
		"minor", driver.Version().MinorRel,
		"zstack", driver.Version().ZStack)

	subscribeLogging(driver, logger)

	if err := startCoordinator(driver, cfg, store, logger, requestTimeout); err != nil {
		logger.Error("start coordinator", "err", err)
		os.Exit(1)
	}

	logger.Info("coordinator running", "state", driver.State())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	signal.Stop(sigCh)
	logger.Info("shutting down", "signal", sig)

	if snap, err := driver.Backup(context.Background()); err == nil {
		var ieeeBytes [8]byte
		binary.BigEndian.PutUint64(ieeeBytes[:], driver.IEEE())
		name := hex.EncodeToString(ieeeBytes[:])
		if err := store.SaveSnapshot(name, snap, time.Now()); err != nil {
			logger.Error("save snapshot", "err", err)
		}
	}

	logger.Info("goodbye")
}

func openDriver(cfg *config.Config, logger *slog.Logger, requestTimeout, watchdogInterval time.Duration) (*znp.Driver, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	return znp.Open(ctx, znp.Config{
		Serial: serialport.Config{
			Device:         cfg.Serial.Port,
			BaudRate:       cfg.Serial.Baud,
			SkipBootloader: cfg.Serial.SkipBootloader,
		},
		RequestTimeout:   requestTimeout,
		MaxConcurrentReqs: cfg.Bus.MaxConcurrentReq,
		WatchdogInterval: watchdogInterval,
	}, logger)
}

func startCoordinator(driver *znp.Driver, cfg *config.Config, store *cache.Cache, logger *slog.Logger, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	opts := znp.StartOptions{
		Mode:    znp.ModeAuto,
		Timeout: timeout,
		Network: znp.NetworkConfig{
			Channel: cfg.ChannelMask(),
			PANID:   cfg.Network.PanID,
		},
	}
	return driver.Start(ctx, opts)
}

func subscribeLogging(driver *znp.Driver, logger *slog.Logger) {
	driver.Events().OnAll(func(ev znp.Event) {
		logger.Info("indication", "type", ev.Type, "data", fmt.Sprintf("%+v", ev.Data))
	})
}

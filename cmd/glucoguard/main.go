// cmd/glucoguard/main.go
package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tamzrod/glucoguard/internal/config"
	"github.com/tamzrod/glucoguard/internal/logging"
	"github.com/tamzrod/glucoguard/internal/poller"
	"github.com/tamzrod/glucoguard/internal/transport"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: glucoguard <config.yaml>")
	}

	cfgPath := os.Args[1]

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("config validation failed: %v", err)
	}
	if cfg.Device == nil {
		log.Fatal("config: device section required")
	}
	config.Normalize(cfg)
	d := cfg.Device

	variant, err := transport.ParseVariant(d.Variant)
	if err != nil {
		log.Fatalf("variant: %v", err)
	}

	// --------------------
	// Hardware
	// --------------------

	var line *transport.SerialLine
	if d.Serial.Port != "" {
		line, err = transport.OpenSerial(transport.SerialConfig{
			Port:     d.Serial.Port,
			BaudRate: d.Serial.BaudRate,
			Timeout:  time.Duration(d.Serial.TimeoutMs) * time.Millisecond,
		})
		if err != nil {
			log.Fatalf("serial open failed: %v", err)
		}
		defer line.Close()
	}

	// the debug variant mirrors its log on the serial line
	var logOut io.Writer = os.Stderr
	if variant == transport.VariantDebug && line != nil {
		logOut = io.MultiWriter(os.Stderr, line)
	}
	logger := logging.NewWriter(logOut, d.Log.Level, d.Log.Format, "glucoguard")
	slog.SetDefault(logger)

	spi, err := transport.OpenSPI(d.SPI.Port, d.SPI.Hz)
	if err != nil {
		logger.Error("spi open failed", "err", err)
		os.Exit(1)
	}
	defer spi.Close()

	pins, err := transport.OpenPins(transport.PinConfig{
		Green:      d.Pins.Green,
		Red:        d.Pins.Red,
		Beeper:     d.Pins.Beeper,
		RadioPower: d.Pins.RadioPower,
	}, logger)
	if err != nil {
		logger.Error("gpio open failed", "err", err)
		os.Exit(1)
	}

	set := transport.Set{
		Variant: variant,
		SPI:     spi,
		Sleep:   transport.NewHostSleeper(),
		Battery: transport.FixedBattery(d.BatteryTicks),
		LEDs:    pins,
		Beeper:  pins,
	}
	if variant.Radio() {
		set.Line = line
		set.RX = line
		set.Radio = pins
	}

	// --------------------
	// Poller
	// --------------------

	p, closeStore, err := poller.Build(d, set, logger)
	if err != nil {
		logger.Error("poller build failed", "err", err)
		os.Exit(1)
	}
	defer closeStore()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := make(chan poller.PollResult)
	go func() {
		defer close(out)
		p.Run(ctx, out)
	}()

	for res := range out {
		if res.Err != nil {
			logger.Warn("pass failed", "pass", res.Pass, "code", res.RawErrorCode, "wait_ms", res.WaitMs)
			continue
		}
		logger.Debug("pass done",
			"pass", res.Pass,
			"glucose_mgdl", int(res.Average)<<1,
			"status", res.Status.String(),
			"changed", len(res.Delta.Values),
			"wait_ms", res.WaitMs,
		)
	}

	logger.Info("shutdown")
}

// cmd/bridge/main.go
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tamzrod/glucoguard/internal/config"
	"github.com/tamzrod/glucoguard/internal/logging"
	"github.com/tamzrod/glucoguard/internal/telegram"
	"github.com/tamzrod/glucoguard/internal/transport"
	"github.com/tamzrod/glucoguard/internal/writer"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: bridge <config.yaml>")
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
	if cfg.Bridge == nil {
		log.Fatal("config: bridge section required")
	}
	config.Normalize(cfg)
	b := cfg.Bridge

	logger := logging.New(b.Log.Level, b.Log.Format, "bridge")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --------------------
	// Outputs
	// --------------------

	sinks, closeSinks, err := writer.BuildSinks(b, logger)
	if err != nil {
		log.Fatalf("writer build failed: %v", err)
	}
	defer closeSinks()

	if sinks.MQTT != nil {
		cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := sinks.MQTT.Connect(cctx)
		cancel()
		if err != nil {
			log.Fatalf("mqtt connect failed: %v", err)
		}
	}

	// --------------------
	// Receiver
	// --------------------

	line, err := transport.OpenSerial(transport.SerialConfig{
		Port:     b.Serial.Port,
		BaudRate: b.Serial.BaudRate,
		Timeout:  time.Duration(b.Serial.TimeoutMs) * time.Millisecond,
	})
	if err != nil {
		log.Fatalf("serial open failed: %v", err)
	}
	defer line.Close()

	events := make(chan writer.Event)
	readErr := make(chan error, 1)
	go receive(ctx, telegram.NewStreamReader(line), events, readErr, logger)

	logger.Info("bridge started", "serial", b.Serial.Port, "mqtt", sinks.MQTT != nil, "status", sinks.Status != nil)

	secTicker := time.NewTicker(time.Second)
	defer secTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown")
			return

		case err := <-readErr:
			logger.Error("receiver stopped", "err", err)
			return

		case ev := <-events:
			if err := sinks.Writer.Write(ev); err != nil {
				logger.Warn("writer error", "sender", ev.SenderHex(), "err", err)
			}

		case now := <-secTicker.C:
			if sinks.Status == nil {
				continue
			}
			if err := sinks.Status.Tick(now); err != nil {
				logger.Warn("status tick write failed", "err", err)
			}
		}
	}
}

// receive decodes telegrams off the line until ctx ends or the port fails.
// Frames that fail data checks are logged and dropped.
func receive(ctx context.Context, sr *telegram.StreamReader, out chan<- writer.Event, errc chan<- error, log *slog.Logger) {
	for ctx.Err() == nil {
		t, err := sr.Next()
		switch {
		case err == nil:
		case errors.Is(err, transport.ErrNoData):
			continue
		case decodeError(err):
			log.Debug("telegram dropped", "reason", err)
			continue
		default:
			errc <- err
			return
		}

		select {
		case out <- writer.Event{At: time.Now(), Telegram: t}:
		case <-ctx.Done():
			return
		}
	}
}

// decodeError reports whether err came from a malformed frame rather than the port.
func decodeError(err error) bool {
	for _, target := range []error{
		telegram.ErrShortTelegram,
		telegram.ErrSync,
		telegram.ErrHeaderCRC,
		telegram.ErrDataCRC,
		telegram.ErrPacketType,
		telegram.ErrNotVLD,
		telegram.ErrPayload,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// internal/poller/builder.go
package poller

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/tamzrod/glucoguard/internal/cache"
	cfg "github.com/tamzrod/glucoguard/internal/config"
	"github.com/tamzrod/glucoguard/internal/params"
	"github.com/tamzrod/glucoguard/internal/rfid"
	"github.com/tamzrod/glucoguard/internal/telegram"
	"github.com/tamzrod/glucoguard/internal/transport"
)

// Build constructs a Poller for the capability set and wires the parameter
// store, cache and radio the variant calls for.
// The returned closer flushes and closes the store.
func Build(d *cfg.DeviceConfig, set transport.Set, log *slog.Logger) (*Poller, func() error, error) {
	if d == nil {
		return nil, nil, errors.New("poller: device config required")
	}
	if log == nil {
		log = slog.Default()
	}

	store, closer, err := openStore(d.Store)
	if err != nil {
		return nil, nil, err
	}
	fail := func(err error) (*Poller, func() error, error) {
		_ = closer()
		return nil, nil, err
	}

	p, err := loadParams(d.ParamsFile, store, log)
	if err != nil {
		return fail(err)
	}

	var c *cache.Cache
	if set.Variant.Cache() {
		c = cache.New(store)
	}

	var radio Transmitter
	if set.Variant.Radio() {
		policy, err := telegram.ParsePolicy(d.HandshakePolicy)
		if err != nil {
			return fail(err)
		}
		r, err := telegram.NewRadio(set, policy, log)
		if err != nil {
			return fail(err)
		}
		radio = r
	}

	pl, err := New(
		Config{Params: p, BeeperDisabled: d.BeeperDisabled},
		set,
		rfid.NewReader(set.SPI, set.Sleep, log),
		c,
		radio,
		log,
	)
	if err != nil {
		return fail(err)
	}
	return pl, closer, nil
}

func openStore(s cfg.StoreConfig) (cache.Store, func() error, error) {
	switch s.Kind {
	case "", "memory":
		return cache.NewMemStore(), func() error { return nil }, nil
	case "bolt":
		b, err := cache.OpenBolt(s.Path)
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	default:
		return nil, nil, fmt.Errorf("poller: unknown store kind %q", s.Kind)
	}
}

// loadParams prefers a provisioning file (and stores it), then the stored
// blob, then the built-in defaults.
func loadParams(file string, store cache.Store, log *slog.Logger) (params.Params, error) {
	if file != "" {
		p, err := params.LoadFile(file)
		if err != nil {
			return params.Params{}, err
		}
		if err := cache.WriteParams(store, p); err != nil {
			return params.Params{}, fmt.Errorf("poller: store params: %w", err)
		}
		log.Info("params provisioned", "file", file)
		return p, nil
	}

	p, err := cache.ReadParams(store)
	if err == nil {
		return p, nil
	}
	log.Warn("stored params unusable, using defaults", "err", err)
	return params.Default(), nil
}

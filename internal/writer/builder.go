// internal/writer/builder.go
package writer

import (
	"errors"
	"log/slog"
	"time"

	cfg "github.com/tamzrod/glucoguard/internal/config"
	wmodbus "github.com/tamzrod/glucoguard/internal/writer/modbus"
	wmqtt "github.com/tamzrod/glucoguard/internal/writer/mqtt"
)

// BuildPlan converts the bridge config into a Writer Plan.
// Assumes config has already passed validation.
func BuildPlan(b *cfg.BridgeConfig) (Plan, error) {
	if b == nil {
		return Plan{}, errors.New("writer: bridge config required")
	}

	plan := Plan{StaleAfter: time.Duration(b.StaleAfterSec) * time.Second}
	if m := b.Modbus; m != nil {
		plan.Status = &StatusPlan{
			Endpoint:   m.Endpoint,
			UnitID:     uint16(m.UnitID),
			BaseSlot:   m.BaseSlot,
			DeviceName: m.DeviceName,
		}
	}
	return plan, nil
}

// Sinks are the outputs built for one bridge.
type Sinks struct {
	Writer Writer

	// Status is nil when the status block is disabled.
	Status *statusSink

	// MQTT is nil when mqtt is disabled; it must be connected by the caller.
	MQTT *wmqtt.Publisher
}

// BuildSinks creates the mqtt publisher and the status block writer.
func BuildSinks(b *cfg.BridgeConfig, log *slog.Logger) (Sinks, func() error, error) {
	plan, err := BuildPlan(b)
	if err != nil {
		return Sinks{}, nil, err
	}

	var (
		sinks   Sinks
		writers []Writer
		closers []func() error
	)
	closeAll := func() error {
		var last error
		for _, fn := range closers {
			if err := fn(); err != nil {
				last = err
			}
		}
		return last
	}

	if m := b.MQTT; m != nil {
		pub, err := wmqtt.New(wmqtt.Config{
			Broker:   m.Broker,
			ClientID: m.ClientID,
			Topic:    m.Topic,
			QoS:      m.QoS,
			Username: m.Username,
			Password: m.Password,
		}, log)
		if err != nil {
			return Sinks{}, nil, err
		}
		sinks.MQTT = pub
		writers = append(writers, NewMQTTSink(pub))
		closers = append(closers, pub.Close)
	}

	if plan.Status != nil {
		c, err := wmodbus.NewEndpointClient(wmodbus.Config{
			Endpoint: plan.Status.Endpoint,
			Timeout:  time.Duration(b.Modbus.TimeoutMs) * time.Millisecond,
		})
		if err != nil {
			_ = closeAll()
			return Sinks{}, nil, err
		}
		closers = append(closers, c.Close)

		sw, _ := NewDeviceStatusWriter(plan, map[string]endpointClient{plan.Status.Endpoint: c})
		sinks.Status = NewStatusSink(sw, plan.StaleAfter)
		writers = append(writers, sinks.Status)
	}

	sinks.Writer = New(writers...)
	return sinks, closeAll, nil
}

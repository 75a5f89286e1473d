// internal/config/validate_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
)

// helper to build a device section quickly
func device(variant, port string) *DeviceConfig {
	return &DeviceConfig{
		Variant: variant,
		Serial:  SerialConfig{Port: port},
	}
}

// helper to build a bridge section quickly
func bridge(port, broker, endpoint string) *BridgeConfig {
	b := &BridgeConfig{Serial: SerialConfig{Port: port}}
	if broker != "" {
		b.MQTT = &MQTTConfig{Broker: broker}
	}
	if endpoint != "" {
		b.Modbus = &ModbusConfig{Endpoint: endpoint}
	}
	return b
}

// ---- tests ----

func TestValidate_EmptyConfig(t *testing.T) {
	if err := Validate(&Config{}); err == nil {
		t.Fatalf("expected error for empty config")
	}
}

func TestValidate_DeviceVariants(t *testing.T) {
	cases := []struct {
		name    string
		dev     *DeviceConfig
		wantErr bool
	}{
		{"debug without port", device("debug", ""), false},
		{"silent without port", device("silent", ""), false},
		{"enocean with port", device("enocean", "/dev/ttyS0"), false},
		{"enocean without port", device("enocean", ""), true},
		{"unknown variant", device("lora", "/dev/ttyS0"), true},
	}

	for _, tc := range cases {
		err := Validate(&Config{Device: tc.dev})
		if tc.wantErr && err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
	}
}

func TestValidate_DeviceStore(t *testing.T) {
	d := device("silent", "")
	d.Store = StoreConfig{Kind: "bolt"}
	if err := Validate(&Config{Device: d}); err == nil {
		t.Fatalf("expected error for bolt store without path")
	}

	d.Store.Path = "/var/lib/glucoguard/eeprom.db"
	if err := Validate(&Config{Device: d}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d.Store.Kind = "flash"
	if err := Validate(&Config{Device: d}); err == nil {
		t.Fatalf("expected error for unknown store kind")
	}
}

func TestValidate_HandshakePolicy(t *testing.T) {
	d := device("enocean", "/dev/ttyS0")
	d.HandshakePolicy = "suppress"
	if err := Validate(&Config{Device: d}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d.HandshakePolicy = "retry"
	if err := Validate(&Config{Device: d}); err == nil {
		t.Fatalf("expected error for unknown handshake policy")
	}
}

func TestValidate_BridgeOutputs(t *testing.T) {
	if err := Validate(&Config{Bridge: bridge("/dev/ttyUSB0", "", "")}); err == nil {
		t.Fatalf("expected error for bridge without outputs")
	}
	if err := Validate(&Config{Bridge: bridge("", "tcp://localhost:1883", "")}); err == nil {
		t.Fatalf("expected error for bridge without serial port")
	}
	if err := Validate(&Config{Bridge: bridge("/dev/ttyUSB0", "tcp://localhost:1883", "")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Validate(&Config{Bridge: bridge("/dev/ttyUSB0", "", "127.0.0.1:502")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_BridgeMQTTTopicWildcard(t *testing.T) {
	b := bridge("/dev/ttyUSB0", "tcp://localhost:1883", "")
	b.MQTT.Topic = "glucose/#"
	if err := Validate(&Config{Bridge: b}); err == nil {
		t.Fatalf("expected error for wildcard topic")
	}
}

func TestValidate_DeviceNameASCII(t *testing.T) {
	b := bridge("/dev/ttyUSB0", "", "127.0.0.1:502")
	b.Modbus.DeviceName = "sensör"
	if err := Validate(&Config{Bridge: b}); err == nil {
		t.Fatalf("expected error for non-ASCII device name")
	}
}

func TestValidate_LogLevel(t *testing.T) {
	d := device("debug", "")
	d.Log.Level = "verbose"
	if err := Validate(&Config{Device: d}); err == nil {
		t.Fatalf("expected error for unknown log level")
	}
}

func TestNormalize_Defaults(t *testing.T) {
	cfg := &Config{
		Device: device(" EnOcean ", "/dev/ttyS0"),
		Bridge: bridge("/dev/ttyUSB0", "tcp://localhost:1883", "127.0.0.1:502"),
	}
	cfg.Bridge.MQTT.Topic = "home/glucose/"
	cfg.Bridge.Modbus.DeviceName = "a-very-long-device-name"

	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	Normalize(cfg)

	d := cfg.Device
	if d.Variant != "enocean" || d.Store.Kind != "memory" || d.HandshakePolicy != "transmit" {
		t.Fatalf("device defaults not applied: %+v", d)
	}
	if d.Serial.BaudRate != 57600 || d.Serial.TimeoutMs != DefaultSerialTimeoutMs {
		t.Fatalf("serial defaults not applied: %+v", d.Serial)
	}
	if d.Log.Level != "info" || d.Log.Format != "text" {
		t.Fatalf("log defaults not applied: %+v", d.Log)
	}

	b := cfg.Bridge
	if b.MQTT.Topic != "home/glucose" || b.MQTT.ClientID != DefaultMQTTClientID {
		t.Fatalf("mqtt defaults not applied: %+v", b.MQTT)
	}
	if len(b.Modbus.DeviceName) != 16 || b.Modbus.TimeoutMs != DefaultModbusTimeoutMs {
		t.Fatalf("modbus defaults not applied: %+v", b.Modbus)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glucoguard.yaml")
	doc := `
device:
  variant: enocean
  serial:
    port: /dev/ttyS0
  store:
    kind: bolt
    path: /tmp/eeprom.db
  handshake_policy: suppress
bridge:
  serial:
    port: /dev/ttyUSB0
  mqtt:
    broker: tcp://localhost:1883
    qos: 1
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}
	if cfg.Device == nil || cfg.Device.Store.Kind != "bolt" || cfg.Device.HandshakePolicy != "suppress" {
		t.Fatalf("device section not parsed: %+v", cfg.Device)
	}
	if cfg.Bridge == nil || cfg.Bridge.MQTT == nil || cfg.Bridge.MQTT.QoS != 1 {
		t.Fatalf("bridge section not parsed: %+v", cfg.Bridge)
	}
	if cfg.Bridge.Modbus != nil {
		t.Fatalf("modbus should be absent")
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoad_Missing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

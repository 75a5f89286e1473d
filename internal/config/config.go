// internal/config/config.go
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds either or both process sections.
// glucoguard reads Device, bridge reads Bridge.
type Config struct {
	Device *DeviceConfig `yaml:"device"`
	Bridge *BridgeConfig `yaml:"bridge"`
}

// ---- DEVICE ----

type DeviceConfig struct {
	Variant         string       `yaml:"variant"` // debug | enocean | silent
	ParamsFile      string       `yaml:"params_file"`
	Store           StoreConfig  `yaml:"store"`
	Serial          SerialConfig `yaml:"serial"`
	SPI             SPIConfig    `yaml:"spi"`
	Pins            PinsConfig   `yaml:"pins"`
	BatteryTicks    uint16       `yaml:"battery_charge_time"`
	BeeperDisabled  bool         `yaml:"beeper_disabled"` // jumper
	HandshakePolicy string       `yaml:"handshake_policy"` // transmit | suppress
	Log             LogConfig    `yaml:"log"`
}

type StoreConfig struct {
	Kind string `yaml:"kind"` // memory | bolt
	Path string `yaml:"path"`
}

type SerialConfig struct {
	Port      string `yaml:"port"`
	BaudRate  int    `yaml:"baud_rate"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type SPIConfig struct {
	Port string `yaml:"port"`
	Hz   int64  `yaml:"hz"`
}

type PinsConfig struct {
	Green      string `yaml:"green"`
	Red        string `yaml:"red"`
	Beeper     string `yaml:"beeper"`
	RadioPower string `yaml:"radio_power"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// ---- BRIDGE ----

type BridgeConfig struct {
	Serial        SerialConfig  `yaml:"serial"`
	MQTT          *MQTTConfig   `yaml:"mqtt"`
	Modbus        *ModbusConfig `yaml:"modbus"`
	StaleAfterSec int           `yaml:"stale_after_sec"`
	Log           LogConfig     `yaml:"log"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"` // prefix; the sender id is appended
	QoS      byte   `yaml:"qos"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type ModbusConfig struct {
	Endpoint   string `yaml:"endpoint"`
	UnitID     uint8  `yaml:"unit_id"`
	BaseSlot   uint16 `yaml:"base_slot"`
	TimeoutMs  int    `yaml:"timeout_ms"`
	DeviceName string `yaml:"device_name"`
}

// Load reads and parses the YAML file at path.
// It does not validate.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}

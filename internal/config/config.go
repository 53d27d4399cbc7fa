// Package config loads the deployment configuration. Control timing is not
// configurable and does not appear here.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/generator-ats/internal/analog"
	"github.com/sweeney/generator-ats/internal/console"
	"github.com/sweeney/generator-ats/internal/expander"
	"github.com/sweeney/generator-ats/internal/gpio"
	"github.com/sweeney/generator-ats/internal/logic"
)

// DefaultPath is where the daemon looks for its config file.
const DefaultPath = "/etc/generator-ats.yaml"

// Relay backends
const (
	BackendGPIO    = "gpio"
	BackendPCF8575 = "pcf8575"
)

// Config represents the daemon configuration.
type Config struct {
	MQTT   MQTTConfig   `yaml:"mqtt"`
	HTTP   HTTPConfig   `yaml:"http"`
	Sense  SenseConfig  `yaml:"sense"`
	Relays RelayConfig  `yaml:"relays"`
	ADC    ADCConfig    `yaml:"adc"`
	Serial SerialConfig `yaml:"serial"`
}

// MQTTConfig contains telemetry broker settings.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	// WSBroker is the websocket URL for the live UI. "=broker" derives it
	// from Broker, "off" disables it.
	WSBroker string `yaml:"ws_broker"`
}

// HTTPConfig contains the status server address. Empty disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// SenseConfig contains the sense-loop GPIO wiring (BCM numbering).
type SenseConfig struct {
	GridOut int `yaml:"grid_out"`
	GridIn  int `yaml:"grid_in"`
	GenOut  int `yaml:"gen_out"`
	GenIn   int `yaml:"gen_in"`
}

// RelayConfig selects the relay backend and wiring. Pins are BCM offsets for
// the gpio backend and expander bits for pcf8575.
type RelayConfig struct {
	Backend   string `yaml:"backend"`
	ActiveLow bool   `yaml:"active_low"`
	Address   int    `yaml:"address"`
	PowerOn   *int   `yaml:"power_on"`
	Choke     *int   `yaml:"choke"`
	Starter   *int   `yaml:"starter"`
	ATS       *int   `yaml:"ats"`
}

// ADCConfig contains the ADS1115 settings.
type ADCConfig struct {
	Address     int  `yaml:"address"`
	GridChannel *int `yaml:"grid_channel"`
	GenChannel  *int `yaml:"gen_channel"`
}

// SerialConfig contains the serial console settings. Empty Port disables it.
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

func intPtr(v int) *int { return &v }

// Default returns a default configuration matching the reference wiring.
func Default() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker:   "tcp://192.168.1.200:1883",
			ClientID: "generator-ats",
			WSBroker: "=broker",
		},
		HTTP: HTTPConfig{
			Addr: ":80",
		},
		Sense: SenseConfig{
			GridOut: gpio.PinGridSenseOut,
			GridIn:  gpio.PinGridSenseIn,
			GenOut:  gpio.PinGenSenseOut,
			GenIn:   gpio.PinGenSenseIn,
		},
		Relays: RelayConfig{
			Backend: BackendGPIO,
			Address: expander.DefaultAddress,
			PowerOn: intPtr(gpio.PinPowerOn),
			Choke:   intPtr(gpio.PinChoke),
			Starter: intPtr(gpio.PinStarter),
			ATS:     intPtr(gpio.PinATS),
		},
		ADC: ADCConfig{
			Address:     analog.DefaultAddress,
			GridChannel: intPtr(analog.DefaultGridChannel),
			GenChannel:  intPtr(analog.DefaultGenChannel),
		},
		Serial: SerialConfig{
			Baud: console.DefaultBaudRate,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Pin fields are pointers so that a file naming only some relays keeps
	// the defaults for the rest; clear them so yaml leaves absent keys nil.
	cfg.Relays.PowerOn, cfg.Relays.Choke, cfg.Relays.Starter, cfg.Relays.ATS = nil, nil, nil, nil
	cfg.ADC.GridChannel, cfg.ADC.GenChannel = nil, nil

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// ensureDefaults fills in fields left empty by the file.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}
	if c.MQTT.WSBroker == "" {
		c.MQTT.WSBroker = def.MQTT.WSBroker
	}

	if c.Sense == (SenseConfig{}) {
		c.Sense = def.Sense
	}

	if c.Relays.Backend == "" {
		c.Relays.Backend = def.Relays.Backend
	}
	if c.Relays.Address == 0 {
		c.Relays.Address = def.Relays.Address
	}
	pins := gpio.DefaultRelayPins()
	if c.Relays.Backend == BackendPCF8575 {
		pins = expander.DefaultPins()
	}
	fill := func(p **int, v int) {
		if *p == nil {
			*p = intPtr(v)
		}
	}
	fill(&c.Relays.PowerOn, pins[logic.RelayPowerOn])
	fill(&c.Relays.Choke, pins[logic.RelayChoke])
	fill(&c.Relays.Starter, pins[logic.RelayStarter])
	fill(&c.Relays.ATS, pins[logic.RelayATS])

	if c.ADC.Address == 0 {
		c.ADC.Address = def.ADC.Address
	}
	fill(&c.ADC.GridChannel, analog.DefaultGridChannel)
	fill(&c.ADC.GenChannel, analog.DefaultGenChannel)

	if c.Serial.Baud == 0 {
		c.Serial.Baud = def.Serial.Baud
	}
}

// Validate checks values that would otherwise fail late during hardware setup.
func (c *Config) Validate() error {
	switch c.Relays.Backend {
	case BackendGPIO, BackendPCF8575:
	default:
		return fmt.Errorf("relays.backend: unknown backend %q", c.Relays.Backend)
	}
	if c.Relays.Address < 0x03 || c.Relays.Address > 0x77 {
		return fmt.Errorf("relays.address: 0x%02X is not a 7-bit i2c address", c.Relays.Address)
	}
	if c.ADC.Address < 0x03 || c.ADC.Address > 0x77 {
		return fmt.Errorf("adc.address: 0x%02X is not a 7-bit i2c address", c.ADC.Address)
	}
	if c.Serial.Baud < 0 {
		return fmt.Errorf("serial.baud: %d is negative", c.Serial.Baud)
	}
	return c.validatePins()
}

// validatePins rejects GPIO lines claimed twice. Expander bits live on a
// separate chip and are checked by expander.New.
func (c *Config) validatePins() error {
	owner := map[int]string{}
	claim := func(name string, pin int) error {
		if pin < 0 {
			return fmt.Errorf("%s: pin %d is negative", name, pin)
		}
		if other, ok := owner[pin]; ok {
			return fmt.Errorf("%s: pin %d already used by %s", name, pin, other)
		}
		owner[pin] = name
		return nil
	}

	for _, p := range []struct {
		name string
		pin  int
	}{
		{"sense.grid_out", c.Sense.GridOut},
		{"sense.grid_in", c.Sense.GridIn},
		{"sense.gen_out", c.Sense.GenOut},
		{"sense.gen_in", c.Sense.GenIn},
	} {
		if err := claim(p.name, p.pin); err != nil {
			return err
		}
	}

	if c.Relays.Backend != BackendGPIO {
		return nil
	}
	for _, p := range []struct {
		name string
		pin  *int
	}{
		{"relays.power_on", c.Relays.PowerOn},
		{"relays.choke", c.Relays.Choke},
		{"relays.starter", c.Relays.Starter},
		{"relays.ats", c.Relays.ATS},
	} {
		if p.pin == nil {
			return fmt.Errorf("%s: pin not set", p.name)
		}
		if err := claim(p.name, *p.pin); err != nil {
			return err
		}
	}
	return nil
}

// RelayPins returns the relay wiring indexed by logic.Relay.
func (c *Config) RelayPins() [logic.NumRelays]int {
	var pins [logic.NumRelays]int
	pins[logic.RelayPowerOn] = *c.Relays.PowerOn
	pins[logic.RelayChoke] = *c.Relays.Choke
	pins[logic.RelayStarter] = *c.Relays.Starter
	pins[logic.RelayATS] = *c.Relays.ATS
	return pins
}

// SensePins returns the sense-loop wiring.
func (c *Config) SensePins() gpio.SensePins {
	return gpio.SensePins{
		GridOut: c.Sense.GridOut,
		GridIn:  c.Sense.GridIn,
		GenOut:  c.Sense.GenOut,
		GenIn:   c.Sense.GenIn,
	}
}

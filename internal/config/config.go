package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"meshlink/internal/identity"
)

const (
	DefaultSenderTickMs          = 20
	DefaultRelayTickMs           = 10
	DefaultReceiverTickMs        = 5
	DefaultBootJitterMs          = 400
	DefaultBootWindowMs          = 600
	DefaultBootStepMs            = 10
	DefaultIdentityIntervalMs    = 30000
	DefaultIdentityFirstJitterMs = 2500
	DefaultIdentityJitterMs      = 3500
	DefaultHeartbeatIntervalMs   = 12000
	DefaultHeartbeatFirstJitter  = 1500
	DefaultHeartbeatJitterMs     = 2000
	DefaultHeartbeatTimeoutMs    = 90000
	DefaultPingWaitMs            = 800
	DefaultPingRetries           = 2
	DefaultPongRetries           = 3
	DefaultReceiverAliveMs       = 5000

	DefaultQueueCapacity = 64
	DefaultDrainBatch    = 28
	DefaultTableSize     = 64

	DefaultDriver        = "udp"
	DefaultListen        = "0.0.0.0:47000"
	DefaultGroup         = "239.77.77.77:47001"
	DefaultSTUNTimeoutMs = 5000

	DefaultOutput = "stdout"
	DefaultBaud   = 115200

	DefaultSensorSource = "static"
	DefaultRampUpPin    = 33
	DefaultRampDownPin  = 25
	DefaultSimHomePin   = 26

	DefaultLogLevel = "info"
)

// Config holds everything one node process needs.
type Config struct {
	Identity  IdentityConfig  `yaml:"identity"`
	Network   NetworkConfig   `yaml:"network"`
	Timing    TimingConfig    `yaml:"timing"`
	Relay     RelayConfig     `yaml:"relay"`
	Radio     RadioConfig     `yaml:"radio"`
	Receiver  ReceiverConfig  `yaml:"receiver"`
	Sensor    SensorConfig    `yaml:"sensor"`
	Indicator IndicatorConfig `yaml:"indicator"`
	Log       LogConfig       `yaml:"log"`
}

// IdentityConfig either names the role and id directly or supplies strap
// pin levels to decode them from.
type IdentityConfig struct {
	Role     string       `yaml:"role,omitempty"`
	ID       int          `yaml:"id"`
	Revision string       `yaml:"revision,omitempty"`
	Pins     map[int]bool `yaml:"pins,omitempty"`
}

// NetworkConfig is shared by every node of one network.
type NetworkConfig struct {
	Receiver string `yaml:"receiver"`
}

type TimingConfig struct {
	SenderTickMs          int    `yaml:"sender_tick_ms"`
	RelayTickMs           int    `yaml:"relay_tick_ms"`
	ReceiverTickMs        int    `yaml:"receiver_tick_ms"`
	BootJitterMs          int    `yaml:"boot_jitter_ms"`
	BootWindowMs          int    `yaml:"boot_window_ms"`
	BootStepMs            int    `yaml:"boot_step_ms"`
	IdentityIntervalMs    int    `yaml:"identity_interval_ms"`
	IdentityFirstJitterMs int    `yaml:"identity_first_jitter_ms"`
	IdentityJitterMs      int    `yaml:"identity_jitter_ms"`
	HeartbeatIntervalMs   int    `yaml:"heartbeat_interval_ms"`
	HeartbeatFirstJitter  int    `yaml:"heartbeat_first_jitter_ms"`
	HeartbeatJitterMs     int    `yaml:"heartbeat_jitter_ms"`
	HeartbeatTimeoutMs    int    `yaml:"heartbeat_timeout_ms"`
	PingWaitMs            int    `yaml:"ping_wait_ms"`
	PingRetries           int    `yaml:"ping_retries"`
	PongRetries           int    `yaml:"pong_retries"`
	ReceiverAliveMs       int    `yaml:"receiver_alive_ms"`
	JitterSeed            uint64 `yaml:"jitter_seed,omitempty"`
}

type RelayConfig struct {
	QueueCapacity int `yaml:"queue_capacity"`
	DrainBatch    int `yaml:"drain_batch"`
	TableSize     int `yaml:"table_size"`
}

type RadioConfig struct {
	Driver        string   `yaml:"driver"`
	Listen        string   `yaml:"listen"`
	Group         string   `yaml:"group"`
	Interface     string   `yaml:"interface,omitempty"`
	Advertise     string   `yaml:"advertise,omitempty"`
	STUNServers   []string `yaml:"stun_servers,omitempty"`
	STUNTimeoutMs int      `yaml:"stun_timeout_ms"`
}

type ReceiverConfig struct {
	Output           string `yaml:"output"`
	SerialPort       string `yaml:"serial_port,omitempty"`
	Baud             int    `yaml:"baud"`
	EmitAlive        *bool  `yaml:"emit_alive,omitempty"`
	MetricsPath      string `yaml:"metrics_path,omitempty"`
	StatsIntervalSec int    `yaml:"stats_interval_sec,omitempty"`
}

type SensorConfig struct {
	Source    string        `yaml:"source"`
	Ramp      uint16        `yaml:"ramp"`
	Motion    *uint16       `yaml:"motion,omitempty"`
	Pins      SensorPins    `yaml:"pins"`
	PinLevels map[int]bool  `yaml:"pin_levels,omitempty"`
	Mapping   MotionMapping `yaml:"motion_mapping"`
}

type SensorPins struct {
	RampUp   int `yaml:"ramp_up"`
	RampDown int `yaml:"ramp_down"`
	SimHome  int `yaml:"sim_home"`
}

// MotionMapping is the site's interpretation of the motion field; the wire
// format does not fix it.
type MotionMapping struct {
	Standby   uint16 `yaml:"standby"`
	Operating uint16 `yaml:"operating"`
}

type IndicatorConfig struct {
	Enabled bool `yaml:"enabled"`
}

type LogConfig struct {
	Level  string            `yaml:"level"`
	Scopes map[string]string `yaml:"scopes,omitempty"`
}

// Load reads and parses a YAML config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}

	ApplyDefaults(&cfg)
	return cfg, nil
}

// Save writes a YAML config file to disk.
func Save(path string, cfg Config) error {
	ApplyDefaults(&cfg)
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Default returns a config with every default filled in.
func Default() Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return cfg
}

// Validate rejects configs no node can run with.
func Validate(cfg Config) error {
	if cfg.Identity.Role != "" {
		if _, err := identity.ParseRole(cfg.Identity.Role); err != nil {
			return fmt.Errorf("identity.role: %w", err)
		}
		if cfg.Identity.ID < 0 || cfg.Identity.ID > identity.MaxID {
			return fmt.Errorf("identity.id: %w: %d", identity.ErrInvalidID, cfg.Identity.ID)
		}
	} else if len(cfg.Identity.Pins) == 0 {
		return fmt.Errorf("identity requires role/id or strap pins")
	}
	if _, err := identity.ParseRevision(cfg.Identity.Revision); err != nil {
		return fmt.Errorf("identity.revision: %w", err)
	}

	recv := identity.VirtualAddress(cfg.Network.Receiver)
	if !recv.Valid() || recv.Role() != identity.RoleReceiver {
		return fmt.Errorf("network.receiver %q is not a receiver address", cfg.Network.Receiver)
	}
	dev, err := cfg.Identity.Device()
	if err != nil {
		return fmt.Errorf("identity: %w", err)
	}
	if dev.Role == identity.RoleReceiver && dev.Virtual() != recv {
		return fmt.Errorf("identity %s answers to %s but network.receiver is %s", dev, dev.Virtual(), recv)
	}

	t := cfg.Timing
	for name, v := range map[string]int{
		"sender_tick_ms":        t.SenderTickMs,
		"relay_tick_ms":         t.RelayTickMs,
		"receiver_tick_ms":      t.ReceiverTickMs,
		"heartbeat_timeout_ms":  t.HeartbeatTimeoutMs,
		"ping_wait_ms":          t.PingWaitMs,
		"ping_retries":          t.PingRetries,
		"pong_retries":          t.PongRetries,
		"identity_interval_ms":  t.IdentityIntervalMs,
		"heartbeat_interval_ms": t.HeartbeatIntervalMs,
	} {
		if v <= 0 {
			return fmt.Errorf("timing.%s must be positive", name)
		}
	}

	switch cfg.Radio.Driver {
	case "udp", "sim":
	default:
		return fmt.Errorf("radio.driver %q must be udp or sim", cfg.Radio.Driver)
	}

	switch cfg.Receiver.Output {
	case "stdout":
	case "serial":
		if cfg.Receiver.SerialPort == "" {
			return fmt.Errorf("receiver.serial_port is required for serial output")
		}
	default:
		return fmt.Errorf("receiver.output %q must be stdout or serial", cfg.Receiver.Output)
	}

	switch cfg.Sensor.Source {
	case "static", "pins":
	default:
		return fmt.Errorf("sensor.source %q must be static or pins", cfg.Sensor.Source)
	}
	if cfg.Sensor.Mapping.Standby == cfg.Sensor.Mapping.Operating {
		return fmt.Errorf("sensor.motion_mapping: standby and operating must differ")
	}

	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	for scope, lvl := range cfg.Log.Scopes {
		if _, err := ParseLevel(lvl); err != nil {
			return fmt.Errorf("log.scopes.%s: %w", scope, err)
		}
	}
	return nil
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(cfg *Config) {
	if cfg.Identity.Revision == "" {
		cfg.Identity.Revision = string(identity.RevisionAuto)
	}
	if cfg.Network.Receiver == "" {
		cfg.Network.Receiver = string(identity.DefaultReceiver)
	}

	t := &cfg.Timing
	setInt(&t.SenderTickMs, DefaultSenderTickMs)
	setInt(&t.RelayTickMs, DefaultRelayTickMs)
	setInt(&t.ReceiverTickMs, DefaultReceiverTickMs)
	setInt(&t.BootJitterMs, DefaultBootJitterMs)
	setInt(&t.BootWindowMs, DefaultBootWindowMs)
	setInt(&t.BootStepMs, DefaultBootStepMs)
	setInt(&t.IdentityIntervalMs, DefaultIdentityIntervalMs)
	setInt(&t.IdentityFirstJitterMs, DefaultIdentityFirstJitterMs)
	setInt(&t.IdentityJitterMs, DefaultIdentityJitterMs)
	setInt(&t.HeartbeatIntervalMs, DefaultHeartbeatIntervalMs)
	setInt(&t.HeartbeatFirstJitter, DefaultHeartbeatFirstJitter)
	setInt(&t.HeartbeatJitterMs, DefaultHeartbeatJitterMs)
	setInt(&t.HeartbeatTimeoutMs, DefaultHeartbeatTimeoutMs)
	setInt(&t.PingWaitMs, DefaultPingWaitMs)
	setInt(&t.PingRetries, DefaultPingRetries)
	setInt(&t.PongRetries, DefaultPongRetries)
	setInt(&t.ReceiverAliveMs, DefaultReceiverAliveMs)

	setInt(&cfg.Relay.QueueCapacity, DefaultQueueCapacity)
	setInt(&cfg.Relay.DrainBatch, DefaultDrainBatch)
	setInt(&cfg.Relay.TableSize, DefaultTableSize)

	if cfg.Radio.Driver == "" {
		cfg.Radio.Driver = DefaultDriver
	}
	if cfg.Radio.Listen == "" {
		cfg.Radio.Listen = DefaultListen
	}
	if cfg.Radio.Group == "" {
		cfg.Radio.Group = DefaultGroup
	}
	setInt(&cfg.Radio.STUNTimeoutMs, DefaultSTUNTimeoutMs)

	if cfg.Receiver.Output == "" {
		cfg.Receiver.Output = DefaultOutput
	}
	setInt(&cfg.Receiver.Baud, DefaultBaud)
	if cfg.Receiver.EmitAlive == nil {
		v := true
		cfg.Receiver.EmitAlive = &v
	}

	if cfg.Sensor.Source == "" {
		cfg.Sensor.Source = DefaultSensorSource
	}
	setInt(&cfg.Sensor.Pins.RampUp, DefaultRampUpPin)
	setInt(&cfg.Sensor.Pins.RampDown, DefaultRampDownPin)
	setInt(&cfg.Sensor.Pins.SimHome, DefaultSimHomePin)
	if cfg.Sensor.Mapping.Standby == 0 && cfg.Sensor.Mapping.Operating == 0 {
		cfg.Sensor.Mapping = MotionMapping{Standby: 1, Operating: 2}
	}
	if cfg.Sensor.Motion == nil {
		m := cfg.Sensor.Mapping.Standby
		cfg.Sensor.Motion = &m
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
}

func setInt(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

// Device resolves the node identity from the explicit role/id or, when no
// role is given, from the strap pins.
func (c IdentityConfig) Device() (identity.Device, error) {
	if c.Role != "" {
		role, err := identity.ParseRole(c.Role)
		if err != nil {
			return identity.Device{}, err
		}
		dev := identity.Device{Role: role, ID: uint8(c.ID)}
		if c.ID < 0 || c.ID > identity.MaxID {
			return dev, fmt.Errorf("%w: %d", identity.ErrInvalidID, c.ID)
		}
		return dev, nil
	}
	rev, err := identity.ParseRevision(c.Revision)
	if err != nil {
		return identity.Device{}, err
	}
	return identity.DecodeStraps(rev, identity.StaticPins(c.Pins))
}

// StaticMotion is the configured static motion, or standby when unset.
func (s SensorConfig) StaticMotion() uint16 {
	if s.Motion == nil {
		return s.Mapping.Standby
	}
	return *s.Motion
}

// Ms converts a millisecond config field.
func Ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// Alive reports whether the receiver prints R,1 lines.
func (r ReceiverConfig) Alive() bool { return r.EmitAlive == nil || *r.EmitAlive }

// Normalize lowercases free-form enum fields.
func Normalize(cfg *Config) {
	cfg.Identity.Role = strings.ToLower(strings.TrimSpace(cfg.Identity.Role))
	cfg.Radio.Driver = strings.ToLower(strings.TrimSpace(cfg.Radio.Driver))
	cfg.Receiver.Output = strings.ToLower(strings.TrimSpace(cfg.Receiver.Output))
	cfg.Sensor.Source = strings.ToLower(strings.TrimSpace(cfg.Sensor.Source))
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
}

package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"meshlink/internal/identity"
)

func TestApplyDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{Identity: IdentityConfig{Role: "sender", ID: 5}}
	ApplyDefaults(&cfg)

	if cfg.Network.Receiver != string(identity.DefaultReceiver) {
		t.Fatalf("receiver=%q", cfg.Network.Receiver)
	}
	if cfg.Timing.HeartbeatTimeoutMs != DefaultHeartbeatTimeoutMs || cfg.Timing.PingRetries != DefaultPingRetries {
		t.Fatalf("timing=%+v", cfg.Timing)
	}
	if cfg.Relay.DrainBatch != DefaultDrainBatch || cfg.Relay.QueueCapacity != DefaultQueueCapacity {
		t.Fatalf("relay=%+v", cfg.Relay)
	}
	if cfg.Sensor.Mapping != (MotionMapping{Standby: 1, Operating: 2}) || cfg.Sensor.StaticMotion() != 1 {
		t.Fatalf("sensor=%+v", cfg.Sensor)
	}
	if !cfg.Receiver.Alive() {
		t.Fatalf("emit_alive default not true")
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no identity", func(c *Config) { c.Identity = IdentityConfig{} }},
		{"bad role", func(c *Config) { c.Identity.Role = "gateway" }},
		{"bad id", func(c *Config) { c.Identity.ID = 16 }},
		{"sender as receiver address", func(c *Config) { c.Network.Receiver = "AC:DB:00:01:01" }},
		{"bad driver", func(c *Config) { c.Radio.Driver = "lora" }},
		{"serial without port", func(c *Config) { c.Receiver.Output = "serial" }},
		{"same motion mapping", func(c *Config) { c.Sensor.Mapping = MotionMapping{Standby: 2, Operating: 2} }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad scope level", func(c *Config) { c.Log.Scopes = map[string]string{"relay": "x"} }},
		{"bad revision", func(c *Config) { c.Identity.Revision = "mk2" }},
		{"receiver not at network address", func(c *Config) { c.Identity = IdentityConfig{Role: "receiver", ID: 2} }},
		{"strapped receiver not at network address", func(c *Config) {
			c.Identity = IdentityConfig{Pins: map[int]bool{identity.PinMKIVFlag: true, identity.PinRoleHigh: true}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Config{Identity: IdentityConfig{Role: "relay", ID: 1}}
			ApplyDefaults(&cfg)
			tt.mutate(&cfg)
			if err := Validate(cfg); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestValidate_ReceiverAddress(t *testing.T) {
	t.Parallel()

	cfg := Config{Identity: IdentityConfig{Role: "receiver", ID: 2}, Network: NetworkConfig{Receiver: "AC:DB:02:02:02"}}
	ApplyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		t.Fatalf("matching receiver rejected: %v", err)
	}
	cfg.Identity = IdentityConfig{Role: "sender", ID: 4}
	if err := Validate(cfg); err != nil {
		t.Fatalf("sender rejected: %v", err)
	}
}

func TestSensorMotionZero(t *testing.T) {
	t.Parallel()

	zero := uint16(0)
	cfg := Config{Identity: IdentityConfig{Role: "sender", ID: 1}, Sensor: SensorConfig{Motion: &zero}}
	ApplyDefaults(&cfg)
	if got := cfg.Sensor.StaticMotion(); got != 0 {
		t.Fatalf("motion=%d", got)
	}

	path := filepath.Join(t.TempDir(), "sender.yaml")
	if err := os.WriteFile(path, []byte("identity: {role: sender, id: 1}\nsensor: {motion: 0}\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := loaded.Sensor.StaticMotion(); got != 0 {
		t.Fatalf("loaded motion=%d", got)
	}
}

func TestIdentityDevice(t *testing.T) {
	t.Parallel()

	dev, err := IdentityConfig{Role: "receiver", ID: 1}.Device()
	if err != nil || dev.Virtual() != identity.DefaultReceiver {
		t.Fatalf("dev=%s err=%v", dev, err)
	}

	// Strapped MKIV sender with all id pins low decodes to id 15.
	dev, err = IdentityConfig{Pins: map[int]bool{identity.PinMKIVFlag: true}}.Device()
	if err != nil || dev.Role != identity.RoleSender || dev.ID != 15 {
		t.Fatalf("dev=%s err=%v", dev, err)
	}

	if _, err := (IdentityConfig{Role: "sender", ID: 20}).Device(); !errors.Is(err, identity.ErrInvalidID) {
		t.Fatalf("err=%v", err)
	}
}

func TestSave_Writes0600(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	path := filepath.Join(tmp, "node.yaml")
	cfg := Config{Identity: IdentityConfig{Role: "sender", ID: 3}}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("mode=%o", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Identity.Role != "sender" || loaded.Identity.ID != 3 {
		t.Fatalf("identity=%+v", loaded.Identity)
	}
	if loaded.Timing.SenderTickMs != DefaultSenderTickMs {
		t.Fatalf("timing=%+v", loaded.Timing)
	}
}

func TestLoggerFactory(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	f, err := LogConfig{Level: "warn", Scopes: map[string]string{"relay": "debug"}}.LoggerFactory(&buf)
	if err != nil {
		t.Fatalf("LoggerFactory: %v", err)
	}
	f.NewLogger("peers").Info("hidden")
	f.NewLogger("relay").Debug("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("out=%q", out)
	}
}

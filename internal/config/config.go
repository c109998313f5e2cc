package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Input     InputConfig     `yaml:"input"`
	Output    OutputConfig    `yaml:"output"`
	Packet    PacketConfig    `yaml:"packet"`
	Limits    LimitsConfig    `yaml:"limits"`
	Mirror    MirrorConfig    `yaml:"mirror"`
	Web       WebConfig       `yaml:"web"`
	StatusLED StatusLEDConfig `yaml:"status_led"`
	Log       LogConfig       `yaml:"log"`
}

// InputConfig is the serial link from the radio/Arduino bridge.
type InputConfig struct {
	// Port is a device path, "auto" for the first USB serial device, or
	// "tcp://host:port" for a serial-over-TCP bridge.
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`

	// MaxRecordBytes bounds an unterminated record before it is discarded.
	MaxRecordBytes int `yaml:"max_record_bytes"`
}

// OutputConfig is the serial link to the downstream display device.
type OutputConfig struct {
	Enable bool   `yaml:"enable"`
	Port   string `yaml:"port"`
	Baud   int    `yaml:"baud"`
}

type PacketConfig struct {
	TeamID int `yaml:"team_id"`
}

type LimitsConfig struct {
	AltitudeMinM    *float64 `yaml:"altitude_min_m"`
	AltitudeMaxM    *float64 `yaml:"altitude_max_m"`
	TemperatureMinC *float64 `yaml:"temperature_min_c"`
	TemperatureMaxC *float64 `yaml:"temperature_max_c"`
}

// MirrorConfig copies every outbound packet to a UDP listener.
type MirrorConfig struct {
	Enable bool   `yaml:"enable"`
	Dest   string `yaml:"dest"`
}

type WebConfig struct {
	Listen string `yaml:"listen"`
}

type StatusLEDConfig struct {
	Enable bool `yaml:"enable"`
	Pin    int  `yaml:"pin"`
}

type LogConfig struct {
	Debug       bool   `yaml:"debug"`
	Path        string `yaml:"path"`
	MaxSizeMB   int    `yaml:"max_size_mb"`
	MaxBackups  int    `yaml:"max_backups"`
	MaxAgeDays  int    `yaml:"max_age_days"`
	BufferLines int    `yaml:"buffer_lines"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultAndValidate fills defaults in place and rejects inconsistent
// settings.
func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	cfg.Input.Port = strings.TrimSpace(cfg.Input.Port)
	if cfg.Input.Port == "" {
		return fmt.Errorf("input.port is required")
	}
	if cfg.Input.Baud == 0 {
		cfg.Input.Baud = 115200
	}
	if cfg.Input.Baud < 0 {
		return fmt.Errorf("input.baud must be > 0")
	}
	if cfg.Input.MaxRecordBytes <= 0 {
		cfg.Input.MaxRecordBytes = 4096
	}

	cfg.Output.Port = strings.TrimSpace(cfg.Output.Port)
	if cfg.Output.Enable {
		if cfg.Output.Port == "" {
			return fmt.Errorf("output.port is required when output.enable is true")
		}
		if cfg.Output.Baud == 0 {
			cfg.Output.Baud = 19200
		}
		if cfg.Output.Baud < 0 {
			return fmt.Errorf("output.baud must be > 0")
		}
		if strings.EqualFold(cfg.Output.Port, cfg.Input.Port) {
			return fmt.Errorf("input.port and output.port must differ")
		}
	}

	if cfg.Packet.TeamID < 0 || cfg.Packet.TeamID > 255 {
		return fmt.Errorf("packet.team_id must be in [0,255]")
	}

	def := func(p **float64, v float64) {
		if *p == nil {
			*p = &v
		}
	}
	def(&cfg.Limits.AltitudeMinM, -1000)
	def(&cfg.Limits.AltitudeMaxM, 50000)
	def(&cfg.Limits.TemperatureMinC, -50)
	def(&cfg.Limits.TemperatureMaxC, 85)
	if *cfg.Limits.AltitudeMinM >= *cfg.Limits.AltitudeMaxM {
		return fmt.Errorf("limits.altitude_min_m must be < limits.altitude_max_m")
	}
	if *cfg.Limits.TemperatureMinC >= *cfg.Limits.TemperatureMaxC {
		return fmt.Errorf("limits.temperature_min_c must be < limits.temperature_max_c")
	}

	if cfg.Mirror.Enable && strings.TrimSpace(cfg.Mirror.Dest) == "" {
		return fmt.Errorf("mirror.dest is required when mirror.enable is true")
	}

	if cfg.StatusLED.Enable && cfg.StatusLED.Pin <= 0 {
		return fmt.Errorf("status_led.pin must be > 0 when status_led.enable is true")
	}

	if cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = 20
	}
	if cfg.Log.MaxBackups <= 0 {
		cfg.Log.MaxBackups = 3
	}
	if cfg.Log.MaxAgeDays <= 0 {
		cfg.Log.MaxAgeDays = 14
	}
	if cfg.Log.BufferLines <= 0 {
		cfg.Log.BufferLines = 2000
	}
	return nil
}

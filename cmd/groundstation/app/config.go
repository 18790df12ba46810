package app

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stratosonde/groundstation/internal/frame"
	"github.com/stratosonde/groundstation/internal/transport/serialport"
	"github.com/stratosonde/groundstation/internal/transport/udp"
)

const (
	TransportSerial = "serial"
	TransportUDP    = "udp"
)

const (
	defaultLogDirectory     = "Telemetry"
	defaultArchiveDirectory = "data"
	defaultListenAddr       = ":8080"
	defaultQueueSize        = 256
	defaultMaxBatchSize     = 100
	defaultUDPPort          = 16886
)

// Config represents the main application configuration
type Config struct {
	Settings   Settings         `yaml:"settings"`
	Transport  TransportConfig  `yaml:"transport"`
	Validation *frame.Limits    `yaml:"validation"`
	Log        LogConfig        `yaml:"log"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Trajectory TrajectoryConfig `yaml:"trajectory"`
	Feed       FeedConfig       `yaml:"feed"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// Level parses the configured log level, defaulting to info.
func (s Settings) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// TransportConfig selects and configures the frame source
type TransportConfig struct {
	Kind   string             `yaml:"kind"`
	Serial *serialport.Config `yaml:"serial"`
	UDP    *udp.Config        `yaml:"udp"`
}

// LogConfig configures the CSV flight log
type LogConfig struct {
	Directory string `yaml:"directory"`
}

// ArchiveConfig configures the Sqlite flight archive
type ArchiveConfig struct {
	Directory    string `yaml:"directory"`
	MaxBatchSize int    `yaml:"maxBatchSize"`
}

// TrajectoryConfig points at the predicted flight path
type TrajectoryConfig struct {
	Path string `yaml:"path"`
}

// FeedConfig configures the live WebSocket feed
type FeedConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listenAddr"`
}

// PipelineConfig tunes the ingestion pipeline
type PipelineConfig struct {
	QueueSize int `yaml:"queueSize"`
}

// LoadConfig reads and validates the YAML configuration at path,
// applying defaults for omitted values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	var config Config
	if err = yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	config.applyDefaults()
	if err = config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	c.Transport.Kind = strings.ToLower(c.Transport.Kind)

	if c.Log.Directory == "" {
		c.Log.Directory = defaultLogDirectory
	}
	if c.Archive.Directory == "" {
		c.Archive.Directory = defaultArchiveDirectory
	}
	if c.Archive.MaxBatchSize <= 0 {
		c.Archive.MaxBatchSize = defaultMaxBatchSize
	}
	if c.Feed.ListenAddr == "" {
		c.Feed.ListenAddr = defaultListenAddr
	}
	if c.Pipeline.QueueSize <= 0 {
		c.Pipeline.QueueSize = defaultQueueSize
	}
	// Every UDP setting has a usable default, so the whole block may be
	// omitted. Serial has no default device, so validate rejects a missing
	// serial block instead.
	if c.Transport.Kind == TransportUDP {
		if c.Transport.UDP == nil {
			c.Transport.UDP = &udp.Config{}
		}
		if c.Transport.UDP.Port == 0 {
			c.Transport.UDP.Port = defaultUDPPort
		}
	}
}

func (c *Config) validate() error {
	switch c.Transport.Kind {
	case TransportSerial:
		if c.Transport.Serial == nil || c.Transport.Serial.Device == "" {
			return fmt.Errorf("transport %q requires a serial device", TransportSerial)
		}
		if _, err := c.Transport.Serial.Mode(); err != nil {
			return fmt.Errorf("invalid serial configuration: %w", err)
		}

	case TransportUDP:
		if c.Transport.UDP.Port <= 0 || c.Transport.UDP.Port > 65535 {
			return fmt.Errorf("invalid UDP port %d", c.Transport.UDP.Port)
		}

	case "":
		return fmt.Errorf("no transport kind configured")

	default:
		return fmt.Errorf("unknown transport kind %q", c.Transport.Kind)
	}

	if c.Validation != nil {
		if c.Validation.AltitudeMin >= c.Validation.AltitudeMax {
			return fmt.Errorf("invalid altitude limits [%f, %f]", c.Validation.AltitudeMin, c.Validation.AltitudeMax)
		}
		if c.Validation.TemperatureMin >= c.Validation.TemperatureMax {
			return fmt.Errorf("invalid temperature limits [%f, %f]", c.Validation.TemperatureMin, c.Validation.TemperatureMax)
		}
		if c.Validation.PressureMin >= c.Validation.PressureMax {
			return fmt.Errorf("invalid pressure limits [%f, %f]", c.Validation.PressureMin, c.Validation.PressureMax)
		}
	}

	return nil
}

// Limits returns the configured validation limits, or the defaults when
// no validation section is present.
func (c *Config) Limits() frame.Limits {
	if c.Validation != nil {
		return *c.Validation
	}
	return frame.DefaultLimits()
}

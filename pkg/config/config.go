// Package config loads drumgrid settings from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/james-see/drumgrid/pkg/emitter"
	"github.com/james-see/drumgrid/pkg/pattern"
)

// Velocities maps the three audible levels to MIDI velocities.
type Velocities struct {
	Low  uint8 `yaml:"low"`
	Mid  uint8 `yaml:"mid"`
	High uint8 `yaml:"high"`
}

// MIDIConfig holds output settings.
type MIDIConfig struct {
	OutputPort      string     `yaml:"output_port"`
	TicksPerQuarter uint16     `yaml:"ticks_per_quarter"`
	GateRatio       float64    `yaml:"gate_ratio"`
	Velocities      Velocities `yaml:"velocities"`
}

// MetronomeConfig holds the click settings.
type MetronomeConfig struct {
	Enabled  bool  `yaml:"enabled"`
	Channel  uint8 `yaml:"channel"`
	Note     uint8 `yaml:"note"`
	Velocity uint8 `yaml:"velocity"`
}

// PlaybackConfig holds scheduler settings.
type PlaybackConfig struct {
	// Resolution is how often the player polls the clock, e.g. "1ms".
	Resolution string `yaml:"resolution"`
}

// ServerConfig holds REST API settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// Config is the main configuration structure
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	MIDI      MIDIConfig      `yaml:"midi"`
	Metronome MetronomeConfig `yaml:"metronome"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Server    ServerConfig    `yaml:"server"`
}

// Default returns the built-in settings.
func Default() *Config {
	m := emitter.DefaultMetronome
	v := pattern.DefaultVelocities
	return &Config{
		LogLevel: "info",
		MIDI: MIDIConfig{
			TicksPerQuarter: emitter.DefaultTicksPerQuarter,
			GateRatio:       emitter.DefaultGateRatio,
			Velocities:      Velocities{Low: v[pattern.Low], Mid: v[pattern.Mid], High: v[pattern.High]},
		},
		Metronome: MetronomeConfig{
			Enabled:  m.Enabled,
			Channel:  m.Channel,
			Note:     m.Note,
			Velocity: m.Velocity,
		},
		Playback: PlaybackConfig{Resolution: "1ms"},
		Server:   ServerConfig{Port: 8080},
	}
}

// DefaultPath returns ~/.config/drumgrid/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "drumgrid", "config.yaml"), nil
}

// Load reads path over the defaults. A missing file yields the defaults;
// keys absent from the file keep their default values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every setting.
func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if err := c.VelocityMap().Validate(); err != nil {
		return fmt.Errorf("midi.velocities: %w", err)
	}
	if _, err := c.Resolution(); err != nil {
		return fmt.Errorf("playback.resolution: %w", err)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	_, err := emitter.New(c.EmitterOptions()...)
	return err
}

// VelocityMap returns the configured level to velocity mapping.
func (c *Config) VelocityMap() pattern.VelocityMap {
	v := c.MIDI.Velocities
	return pattern.VelocityMap{0, v.Low, v.Mid, v.High}
}

// Resolution parses the playback polling interval.
func (c *Config) Resolution() (time.Duration, error) {
	d, err := time.ParseDuration(c.Playback.Resolution)
	if err != nil {
		return 0, err
	}
	if d <= 0 || d > 50*time.Millisecond {
		return 0, fmt.Errorf("%v must be between 0 and 50ms", d)
	}
	return d, nil
}

// EmitterOptions converts the MIDI and metronome sections into emitter
// options.
func (c *Config) EmitterOptions() []emitter.Option {
	return []emitter.Option{
		emitter.WithVelocities(c.VelocityMap()),
		emitter.WithTicksPerQuarter(c.MIDI.TicksPerQuarter),
		emitter.WithGateRatio(c.MIDI.GateRatio),
		emitter.WithMetronome(emitter.Metronome{
			Enabled:  c.Metronome.Enabled,
			Channel:  c.Metronome.Channel,
			Note:     c.Metronome.Note,
			Velocity: c.Metronome.Velocity,
		}),
	}
}

// Save writes the config as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

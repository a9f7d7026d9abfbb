package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig  `yaml:"server"`
	Session     SessionConfig `yaml:"session"`
	Audio       AudioConfig   `yaml:"audio"`
	Output      OutputConfig  `yaml:"output"`
	Inject      InjectConfig  `yaml:"inject"`
	Hotkey      HotkeyConfig  `yaml:"hotkey"`
	MQTT        MQTTConfig    `yaml:"mqtt"`
	MetricsAddr string        `yaml:"metrics_addr"` // e.g. ":9100"; empty disables
	LogLevel    string        `yaml:"log_level"`
}

// ServerConfig says where the transcription server listens.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	Secure           bool          `yaml:"secure"` // wss instead of ws
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
}

// SessionConfig holds the options sent to the server on connect.
type SessionConfig struct {
	Model                  string        `yaml:"model"`
	Language               string        `yaml:"language"` // empty or "auto" for detection
	Translate              bool          `yaml:"translate"`
	UseVAD                 bool          `yaml:"use_vad"`
	MaxClients             int           `yaml:"max_clients"`
	MaxConnectionTime      int           `yaml:"max_connection_time"` // seconds
	DisconnectAfterSilence time.Duration `yaml:"disconnect_after_silence"`
}

// AudioConfig holds audio capture settings.
type AudioConfig struct {
	SampleRate  uint32 `yaml:"sample_rate"`
	Channels    uint32 `yaml:"channels"`
	ChunkFrames int    `yaml:"chunk_frames"`
}

// OutputConfig holds the files written when a run ends.
type OutputConfig struct {
	SRTPath       string `yaml:"srt_path"`
	SaveRecording bool   `yaml:"save_recording"`
	WAVPath       string `yaml:"wav_path"`
}

// InjectConfig holds text injection settings.
type InjectConfig struct {
	Enabled bool   `yaml:"enabled"`
	Method  string `yaml:"method"` // "type" or "paste"
}

// HotkeyConfig holds the pause/resume hotkey settings.
type HotkeyConfig struct {
	Enabled bool     `yaml:"enabled"`
	Keys    []string `yaml:"keys"`
	Mode    string   `yaml:"mode"` // "hold" or "toggle"
}

// MQTTConfig holds the optional transcript publisher settings.
type MQTTConfig struct {
	Broker   string `yaml:"broker"` // e.g. tcp://localhost:1883; empty disables
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      int    `yaml:"qos"`
	Retain   bool   `yaml:"retain"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "gostt-live")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "localhost",
			Port:             9090,
			HandshakeTimeout: 10 * time.Second,
		},
		Session: SessionConfig{
			Model:                  "small",
			UseVAD:                 true,
			MaxClients:             4,
			MaxConnectionTime:      600,
			DisconnectAfterSilence: 15 * time.Second,
		},
		Audio: AudioConfig{
			SampleRate:  16000,
			Channels:    1,
			ChunkFrames: 4096,
		},
		Output: OutputConfig{
			SRTPath: "output.srt",
			WAVPath: "output_recording.wav",
		},
		Inject: InjectConfig{
			Method: "type",
		},
		Hotkey: HotkeyConfig{
			Keys: []string{"ctrl", "shift", "l"},
			Mode: "toggle",
		},
		MQTT: MQTTConfig{
			Topic: "gostt-live/transcript",
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in output paths is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Output.SRTPath = expandTilde(cfg.Output.SRTPath)
	cfg.Output.WAVPath = expandTilde(cfg.Output.WAVPath)

	return cfg, nil
}

const defaultHeader = `# gostt-live configuration
# Flags given on the command line override these values.
`

// WriteDefault writes the default config to DefaultConfigPath and returns
// the path. If a config already exists it is left alone and "" is returned.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("checking config file: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Server.Host == "" {
		return fmt.Errorf("server.host must not be empty")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Session.Model == "" {
		return fmt.Errorf("session.model must not be empty")
	}
	if c.Session.MaxClients <= 0 {
		return fmt.Errorf("session.max_clients must be > 0")
	}
	if c.Session.MaxConnectionTime <= 0 {
		return fmt.Errorf("session.max_connection_time must be > 0")
	}
	if c.Session.DisconnectAfterSilence <= 0 {
		return fmt.Errorf("session.disconnect_after_silence must be > 0")
	}

	if c.Audio.SampleRate == 0 {
		return fmt.Errorf("audio.sample_rate must be > 0")
	}
	if c.Audio.Channels == 0 {
		return fmt.Errorf("audio.channels must be > 0")
	}
	if c.Audio.ChunkFrames <= 0 {
		return fmt.Errorf("audio.chunk_frames must be > 0")
	}

	if c.Output.SaveRecording && c.Output.WAVPath == "" {
		return fmt.Errorf("output.wav_path must be set when output.save_recording is true")
	}

	switch c.Inject.Method {
	case "type", "paste":
	default:
		return fmt.Errorf("inject.method must be \"type\" or \"paste\", got %q", c.Inject.Method)
	}

	if c.Hotkey.Enabled && len(c.Hotkey.Keys) == 0 {
		return fmt.Errorf("hotkey.keys must not be empty")
	}
	switch c.Hotkey.Mode {
	case "hold", "toggle":
	default:
		return fmt.Errorf("hotkey.mode must be \"hold\" or \"toggle\", got %q", c.Hotkey.Mode)
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1, or 2, got %d", c.MQTT.QoS)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// ParseLogLevel maps a log_level value to a slog level. Unknown values
// mean info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

package adapter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const envPrefix = "BREWSYNC"

// Config holds all application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Session SessionConfig `mapstructure:"session"`
	Store   StoreConfig   `mapstructure:"store"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Network NetworkConfig `mapstructure:"network"`
	Logging LoggingConfig `mapstructure:"logging"`
	Editor  EditorConfig  `mapstructure:"editor"`
}

// ServerConfig holds API server configuration
type ServerConfig struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
}

// SessionConfig identifies the logged in user
type SessionConfig struct {
	UserID     string `mapstructure:"user_id"`
	Username   string `mapstructure:"username"`
	UnitSystem string `mapstructure:"unit_system"` // "imperial" or "metric"
}

// StoreConfig selects the local storage backend
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // bolt, sqlite or memory
	Path   string `mapstructure:"path"`
}

// SyncConfig holds the sync engine policy
type SyncConfig struct {
	Cooldown      time.Duration `mapstructure:"cooldown"`
	CheckInterval time.Duration `mapstructure:"check_interval"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	BackoffBase   time.Duration `mapstructure:"backoff_base"`
	BackoffMax    time.Duration `mapstructure:"backoff_max"`
	WriteThrough  bool          `mapstructure:"write_through"` // sync after every local write
}

// NetworkConfig controls reachability probing
type NetworkConfig struct {
	ProbePath     string        `mapstructure:"probe_path"`
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`
	ForceOffline  bool          `mapstructure:"force_offline"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File       string `mapstructure:"file"`
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// EditorConfig holds external editor configuration
type EditorConfig struct {
	Command string   `mapstructure:"command"` // empty uses $VISUAL, $EDITOR, then a platform default
	Args    []string `mapstructure:"args"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			URL: "http://localhost:8080",
		},
		Session: SessionConfig{
			UnitSystem: "imperial",
		},
		Store: StoreConfig{
			Driver: "bolt",
			Path:   defaultDataPath(),
		},
		Sync: SyncConfig{
			Cooldown:      5 * time.Minute,
			CheckInterval: time.Minute,
			MaxAttempts:   8,
			BackoffBase:   30 * time.Second,
			BackoffMax:    time.Hour,
			WriteThrough:  true,
		},
		Network: NetworkConfig{
			ProbePath:     "/health",
			ProbeInterval: 30 * time.Second,
			ProbeTimeout:  5 * time.Second,
		},
		Logging: LoggingConfig{
			File:       defaultLogPath(),
			Level:      "INFO",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// defaultLogPath returns the default log file path for the current OS
func defaultLogPath() string {
	return filepath.Join(defaultDataPath(), "brewsync.log")
}

// defaultDataPath returns the default data directory for the current OS
func defaultDataPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "brewsync")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "brewsync")
	}
}

// DefaultConfigDir returns the default config directory for the current OS
func DefaultConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "brewsync")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "brewsync")
	}
}

func newViper(dir string) *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	// Environment variable overrides, e.g. BREWSYNC_SERVER_URL
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, DefaultConfig())
	return v
}

// setDefaults registers every key so env overrides apply to keys missing
// from the file.
func setDefaults(v *viper.Viper, cfg *Config) {
	for key, value := range flatten(cfg) {
		v.SetDefault(key, value)
	}
}

func flatten(cfg *Config) map[string]any {
	return map[string]any{
		"server.url":             cfg.Server.URL,
		"server.token":           cfg.Server.Token,
		"session.user_id":        cfg.Session.UserID,
		"session.username":       cfg.Session.Username,
		"session.unit_system":    cfg.Session.UnitSystem,
		"store.driver":           cfg.Store.Driver,
		"store.path":             cfg.Store.Path,
		"sync.cooldown":          cfg.Sync.Cooldown.String(),
		"sync.check_interval":    cfg.Sync.CheckInterval.String(),
		"sync.max_attempts":      cfg.Sync.MaxAttempts,
		"sync.backoff_base":      cfg.Sync.BackoffBase.String(),
		"sync.backoff_max":       cfg.Sync.BackoffMax.String(),
		"sync.write_through":     cfg.Sync.WriteThrough,
		"network.probe_path":     cfg.Network.ProbePath,
		"network.probe_interval": cfg.Network.ProbeInterval.String(),
		"network.probe_timeout":  cfg.Network.ProbeTimeout.String(),
		"network.force_offline":  cfg.Network.ForceOffline,
		"logging.file":           cfg.Logging.File,
		"logging.level":          cfg.Logging.Level,
		"logging.max_size_mb":    cfg.Logging.MaxSizeMB,
		"logging.max_backups":    cfg.Logging.MaxBackups,
		"editor.command":         cfg.Editor.Command,
		"editor.args":            cfg.Editor.Args,
	}
}

// LoadConfig loads configuration from the default directory and environment
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigDir())
}

// LoadConfigFrom loads config.yaml from dir. A missing file is not an error.
func LoadConfigFrom(dir string) (*Config, error) {
	v := newViper(dir)
	return readConfig(v)
}

func readConfig(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to the default directory
func SaveConfig(cfg *Config) error {
	return SaveConfigTo(DefaultConfigDir(), cfg)
}

// SaveConfigTo writes cfg to dir/config.yaml
func SaveConfigTo(dir string, cfg *Config) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	for key, value := range flatten(cfg) {
		v.Set(key, value)
	}

	configFile := filepath.Join(dir, "config.yaml")
	if err := v.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveSession stores the credentials of a successful login
func SaveSession(dir string, cfg *Config, token, userID, username string) error {
	cfg.Server.Token = token
	cfg.Session.UserID = userID
	cfg.Session.Username = username
	return SaveConfigTo(dir, cfg)
}

// ClearSession removes credentials while preserving other settings
func ClearSession(dir string, cfg *Config) error {
	cfg.Server.Token = ""
	cfg.Session.UserID = ""
	cfg.Session.Username = ""
	return SaveConfigTo(dir, cfg)
}

// IsConfigured returns true if the server URL, token and user are set
func (c *Config) IsConfigured() bool {
	return c.Server.URL != "" && c.Server.Token != "" && c.Session.UserID != ""
}

// WatchConfig calls onChange with the reloaded config whenever
// dir/config.yaml is written. The file must exist.
func WatchConfig(dir string, onChange func(*Config, error)) error {
	v := newViper(dir)
	if _, err := readConfig(v); err != nil {
		return err
	}
	if v.ConfigFileUsed() == "" {
		return fmt.Errorf("no config file in %s", dir)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg := DefaultConfig()
		if err := v.Unmarshal(cfg); err != nil {
			onChange(nil, fmt.Errorf("error parsing config: %w", err))
			return
		}
		onChange(cfg, nil)
	})
	v.WatchConfig()
	return nil
}

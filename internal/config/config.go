package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "RELAY"

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Client ClientConfig `mapstructure:"client"`
	Log    LogConfig    `mapstructure:"log"`
}

type ServerConfig struct {
	Listen          string        `mapstructure:"listen"`
	Path            string        `mapstructure:"path"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ClientConfig tunes each WebSocket connection.
type ClientConfig struct {
	SendBuffer   int           `mapstructure:"send_buffer"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PongTimeout  time.Duration `mapstructure:"pong_timeout"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var defaults = map[string]any{
	"server.listen":           ":8081",
	"server.path":             "/ws",
	"server.allowed_origins":  []string{},
	"server.shutdown_timeout": 5 * time.Second,
	"client.send_buffer":      64,
	"client.read_limit":       int64(64 * 1024),
	"client.write_timeout":    10 * time.Second,
	"client.pong_timeout":     60 * time.Second,
	"client.ping_interval":    54 * time.Second,
	"log.level":               "info",
	"log.format":              "text",
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"listen":         "server.listen",
	"path":           "server.path",
	"allowed-origin": "server.allowed_origins",
	"log-level":      "log.level",
	"log-format":     "log.format",
}

// RegisterFlags adds the flags that Load understands to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a YAML config file")
	fs.String("listen", defaults["server.listen"].(string), "address to listen on")
	fs.String("path", defaults["server.path"].(string), "WebSocket endpoint path")
	fs.StringSlice("allowed-origin", nil, "allowed Origin for WebSocket upgrades (repeatable; empty allows any)")
	fs.String("log-level", defaults["log.level"].(string), "log level: debug, info, warn, error")
	fs.String("log-format", defaults["log.format"].(string), "log format: text or json")
}

// Load resolves the configuration from defaults, the optional file at path,
// RELAY_* environment variables and fs, in increasing precedence.
// fs may be nil.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			flag := fs.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Listen == "" {
		errs = append(errs, errors.New("server.listen is empty"))
	}
	if !strings.HasPrefix(c.Server.Path, "/") {
		errs = append(errs, fmt.Errorf("server.path %q must start with /", c.Server.Path))
	}
	if c.Server.Path == "/healthz" {
		errs = append(errs, errors.New("server.path collides with /healthz"))
	}
	if c.Client.SendBuffer < 1 {
		errs = append(errs, fmt.Errorf("client.send_buffer must be at least 1, got %d", c.Client.SendBuffer))
	}
	if c.Client.ReadLimit < 1 {
		errs = append(errs, fmt.Errorf("client.read_limit must be positive, got %d", c.Client.ReadLimit))
	}
	if c.Client.WriteTimeout <= 0 {
		errs = append(errs, errors.New("client.write_timeout must be positive"))
	}
	if c.Client.PingInterval <= 0 || c.Client.PingInterval >= c.Client.PongTimeout {
		errs = append(errs, fmt.Errorf("client.ping_interval (%s) must be positive and shorter than client.pong_timeout (%s)",
			c.Client.PingInterval, c.Client.PongTimeout))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

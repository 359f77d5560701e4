// Package config loads client settings from defaults, an optional YAML file,
// CHATSYNC_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Profile   string    `mapstructure:"profile"`
	Server    Server    `mapstructure:"server"`
	Sync      Sync      `mapstructure:"sync"`
	Transport Transport `mapstructure:"transport"`
	HTTP      HTTP      `mapstructure:"http"`
	Log       Log       `mapstructure:"log"`
}

type Server struct {
	WSURL  string `mapstructure:"wsURL"`
	APIURL string `mapstructure:"apiURL"`
}

type Sync struct {
	ReconnectDelay time.Duration `mapstructure:"reconnectDelay"`
	TypingIdle     time.Duration `mapstructure:"typingIdle"`
	TypingExpiry   time.Duration `mapstructure:"typingExpiry"`
	MatchWindow    time.Duration `mapstructure:"matchWindow"`
	MembersTTL     time.Duration `mapstructure:"membersTTL"`
}

type Transport struct {
	HandshakeTimeout time.Duration `mapstructure:"handshakeTimeout"`
	PingPeriod       time.Duration `mapstructure:"pingPeriod"`
	WriteWait        time.Duration `mapstructure:"writeWait"`
}

type HTTP struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type Log struct {
	Enabled bool   `mapstructure:"enabled"`
	File    string `mapstructure:"file"`
	Level   string `mapstructure:"level"`
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"profile":   "profile",
	"server":    "server.wsURL",
	"api":       "server.apiURL",
	"debug":     "log.enabled",
	"log-file":  "log.file",
	"log-level": "log.level",
}

// RegisterFlags adds the client flags to fs. It also registers --config.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a YAML config file")
	fs.StringP("profile", "p", "default", "session profile name")
	fs.String("server", "ws://localhost:8080/ws", "real-time websocket URL")
	fs.String("api", "http://localhost:8080", "HTTP API base URL")
	fs.Bool("debug", false, "write logs to the log file")
	fs.String("log-file", "debug.log", "log file used when --debug is set")
	fs.String("log-level", "info", "log level")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("profile", "default")
	v.SetDefault("server.wsURL", "ws://localhost:8080/ws")
	v.SetDefault("server.apiURL", "http://localhost:8080")
	v.SetDefault("sync.reconnectDelay", "800ms")
	v.SetDefault("sync.typingIdle", "900ms")
	v.SetDefault("sync.typingExpiry", "6s")
	v.SetDefault("sync.matchWindow", "30s")
	v.SetDefault("sync.membersTTL", "60s")
	v.SetDefault("transport.handshakeTimeout", "10s")
	v.SetDefault("transport.pingPeriod", "30s")
	v.SetDefault("transport.writeWait", "10s")
	v.SetDefault("http.timeout", "30s")
	v.SetDefault("log.enabled", false)
	v.SetDefault("log.file", "debug.log")
	v.SetDefault("log.level", "info")
}

// Load builds the configuration. An explicit path must exist; without one,
// chatsync.yaml is looked up in the working directory and ~/.config/chatsync.
// flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("chatsync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "chatsync"))
		}
	}

	v.SetEnvPrefix("CHATSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Keep the original client's server variable working.
	if err := v.BindEnv("server.wsURL", "CHATSYNC_SERVER_WSURL", "CLDZMSG_SERVER"); err != nil {
		return nil, err
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.WSURL == "" {
		return errors.New("config: server.wsURL is required")
	}
	if c.Profile == "" {
		return errors.New("config: profile is required")
	}
	if c.Sync.ReconnectDelay <= 0 {
		return fmt.Errorf("config: sync.reconnectDelay must be positive, got %s", c.Sync.ReconnectDelay)
	}
	return nil
}

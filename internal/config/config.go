// Package config loads server settings from defaults, an optional YAML file,
// a .env file and ASANA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. ASANA_SERVER_ADDR.
const EnvPrefix = "ASANA"

type Server struct {
	Addr      string `mapstructure:"addr"`
	StaticDir string `mapstructure:"static_dir"`
}

type Game struct {
	HoldThreshold time.Duration `mapstructure:"hold_threshold"`
	Poses         []string      `mapstructure:"poses"`
}

type Smoothing struct {
	Alpha float64 `mapstructure:"alpha"`
}

type Normalize struct {
	TorsoMultiplier float64 `mapstructure:"torso_multiplier"`
}

type Session struct {
	Strategy string `mapstructure:"strategy"`
}

type Redis struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

type Classifier struct {
	Backend        string        `mapstructure:"backend"`
	LabelsFile     string        `mapstructure:"labels_file"`
	CentroidsFile  string        `mapstructure:"centroids_file"`
	Temperature    float64       `mapstructure:"temperature"`
	RemoteAddr     string        `mapstructure:"remote_addr"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
}

type Leaderboard struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type MQTT struct {
	Broker      string `mapstructure:"broker"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	ClientID    string `mapstructure:"client_id"`
}

type WebSocket struct {
	PongWait        time.Duration `mapstructure:"pong_wait"`
	WriteWait       time.Duration `mapstructure:"write_wait"`
	MaxMessageBytes int64         `mapstructure:"max_message_bytes"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the complete server configuration.
type Config struct {
	Server      Server      `mapstructure:"server"`
	Game        Game        `mapstructure:"game"`
	Smoothing   Smoothing   `mapstructure:"smoothing"`
	Normalize   Normalize   `mapstructure:"normalize"`
	Session     Session     `mapstructure:"session"`
	Redis       Redis       `mapstructure:"redis"`
	Classifier  Classifier  `mapstructure:"classifier"`
	Leaderboard Leaderboard `mapstructure:"leaderboard"`
	MQTT        MQTT        `mapstructure:"mqtt"`
	WS          WebSocket   `mapstructure:"ws"`
	Log         Log         `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.static_dir", "")

	v.SetDefault("game.hold_threshold", "5s")
	v.SetDefault("game.poses", []string{"chair", "tree", "warrior"})
	v.SetDefault("smoothing.alpha", 0.5)
	v.SetDefault("normalize.torso_multiplier", 2.5)

	v.SetDefault("session.strategy", "memory")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "asana:session:")
	v.SetDefault("redis.ttl", "0s")

	v.SetDefault("classifier.backend", "centroid")
	v.SetDefault("classifier.labels_file", "")
	v.SetDefault("classifier.centroids_file", "")
	v.SetDefault("classifier.temperature", 1.0)
	v.SetDefault("classifier.remote_addr", "localhost:50051")
	v.SetDefault("classifier.timeout", "2s")
	v.SetDefault("classifier.max_concurrency", 16)

	v.SetDefault("leaderboard.driver", "sqlite")
	v.SetDefault("leaderboard.dsn", "~/.asana/asana.db")

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.topic_prefix", "asana/holds")
	v.SetDefault("mqtt.client_id", "")

	v.SetDefault("ws.pong_wait", "60s")
	v.SetDefault("ws.write_wait", "10s")
	v.SetDefault("ws.max_message_bytes", 65536)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads the configuration. path may be empty; a missing .env file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "asana-" + uuid.New().String()
	}
	if cfg.Leaderboard.Driver == "sqlite" {
		dsn, err := expandHome(cfg.Leaderboard.DSN)
		if err != nil {
			return nil, err
		}
		cfg.Leaderboard.DSN = dsn
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error

	if c.Smoothing.Alpha <= 0 || c.Smoothing.Alpha > 1 {
		errs = append(errs, fmt.Errorf("smoothing.alpha must be in (0, 1], got %g", c.Smoothing.Alpha))
	}
	if c.Game.HoldThreshold <= 0 {
		errs = append(errs, fmt.Errorf("game.hold_threshold must be positive, got %s", c.Game.HoldThreshold))
	}
	if c.Normalize.TorsoMultiplier <= 0 {
		errs = append(errs, fmt.Errorf("normalize.torso_multiplier must be positive, got %g", c.Normalize.TorsoMultiplier))
	}
	if len(c.Game.Poses) == 0 {
		errs = append(errs, errors.New("game.poses must name at least one pose"))
	}
	if !oneOf(c.Session.Strategy, "memory", "redis") {
		errs = append(errs, fmt.Errorf("unknown session.strategy %q", c.Session.Strategy))
	}
	if !oneOf(c.Classifier.Backend, "centroid", "remote") {
		errs = append(errs, fmt.Errorf("unknown classifier.backend %q", c.Classifier.Backend))
	}
	if c.Classifier.Backend == "centroid" && c.Classifier.Temperature <= 0 {
		errs = append(errs, fmt.Errorf("classifier.temperature must be positive, got %g", c.Classifier.Temperature))
	}
	if !oneOf(c.Leaderboard.Driver, "sqlite", "pgx") {
		errs = append(errs, fmt.Errorf("unknown leaderboard.driver %q", c.Leaderboard.Driver))
	}
	if !oneOf(c.Log.Format, "text", "json") {
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

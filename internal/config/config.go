package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/satindergrewal/astrosonic/internal/cache"
	"github.com/satindergrewal/astrosonic/internal/journal"
	"github.com/satindergrewal/astrosonic/internal/logger"
	"github.com/satindergrewal/astrosonic/internal/mapper"
	"github.com/satindergrewal/astrosonic/internal/telemetry"
)

// Config holds all runtime configuration: YAML file, then defaults for
// anything unset, then environment overrides.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Log       logger.Config    `yaml:"log"`
	Audio     AudioConfig      `yaml:"audio"`
	Stream    StreamConfig     `yaml:"stream"`
	Cache     cache.Config     `yaml:"cache"`
	Journal   journal.Config   `yaml:"journal"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	AllowOrigins    []string      `yaml:"allow_origins" default:"[\"*\"]"`
	BodyLimit       string        `yaml:"body_limit" default:"1M"`
}

// AudioConfig holds defaults applied to requests that omit them.
type AudioConfig struct {
	Genre       string  `yaml:"genre" default:"ambient"`
	DurationSec float64 `yaml:"duration_sec" default:"30" validate:"gte=1,lte=300"`
	SampleRate  int     `yaml:"sample_rate" default:"22050" validate:"oneof=16000 22050"`
	MaxStreams  int     `yaml:"max_streams" default:"32" validate:"gte=1"`
}

type StreamConfig struct {
	WSWriteTimeout time.Duration `yaml:"ws_write_timeout" default:"10s"`
	WSReadTimeout  time.Duration `yaml:"ws_read_timeout" default:"30s"`
	ICEServers     []string      `yaml:"ice_servers"`
	HighWater      uint64        `yaml:"high_water" default:"1048576"`
	LowWater       uint64        `yaml:"low_water" default:"262144" validate:"ltfield=HighWater"`
}

// Load reads path (optional), applies defaults and env overrides, and
// validates the result.
func Load(path string) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = envInt("ASTROSONIC_PORT", c.Server.Port)
	c.Log.Level = envStr("ASTROSONIC_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envStr("ASTROSONIC_LOG_FORMAT", c.Log.Format)

	c.Audio.Genre = envStr("ASTROSONIC_GENRE", c.Audio.Genre)
	c.Audio.DurationSec = envFloat("ASTROSONIC_DURATION", c.Audio.DurationSec)
	c.Audio.SampleRate = envInt("ASTROSONIC_SAMPLE_RATE", c.Audio.SampleRate)
	c.Audio.MaxStreams = envInt("ASTROSONIC_MAX_STREAMS", c.Audio.MaxStreams)

	if v := envStr("ASTROSONIC_ICE_SERVERS", ""); v != "" {
		c.Stream.ICEServers = strings.Split(v, ",")
	}

	c.Cache.Driver = envStr("ASTROSONIC_CACHE", c.Cache.Driver)
	c.Cache.Redis.Addr = envStr("ASTROSONIC_REDIS_ADDR", c.Cache.Redis.Addr)
	c.Cache.Redis.Password = envStr("ASTROSONIC_REDIS_PASSWORD", c.Cache.Redis.Password)

	c.Journal.Path = envStr("ASTROSONIC_JOURNAL_PATH", c.Journal.Path)
	c.Journal.Retention = envStr("ASTROSONIC_JOURNAL_RETENTION", c.Journal.Retention)

	c.Telemetry.Exporter = envStr("ASTROSONIC_TRACE_EXPORTER", c.Telemetry.Exporter)
	c.Telemetry.OTLPEndpoint = envStr("ASTROSONIC_OTLP_ENDPOINT", c.Telemetry.OTLPEndpoint)
	c.Telemetry.SampleRatio = envFloat("ASTROSONIC_TRACE_SAMPLE_RATIO", c.Telemetry.SampleRatio)
}

// Validate checks the configuration with struct tags.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		if !mapper.IsValidGenre(c.Audio.Genre) {
			return fmt.Errorf("audio.genre: unknown genre %q", c.Audio.Genre)
		}
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %s %s", fe.Namespace(), fe.Tag(), fe.Param()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

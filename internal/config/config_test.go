package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var envVars = []string{
	"ASTROSONIC_PORT", "ASTROSONIC_LOG_LEVEL", "ASTROSONIC_LOG_FORMAT",
	"ASTROSONIC_GENRE", "ASTROSONIC_DURATION", "ASTROSONIC_SAMPLE_RATE",
	"ASTROSONIC_MAX_STREAMS", "ASTROSONIC_ICE_SERVERS", "ASTROSONIC_CACHE",
	"ASTROSONIC_REDIS_ADDR", "ASTROSONIC_REDIS_PASSWORD", "ASTROSONIC_JOURNAL_PATH",
	"ASTROSONIC_JOURNAL_RETENTION", "ASTROSONIC_TRACE_EXPORTER",
	"ASTROSONIC_OTLP_ENDPOINT", "ASTROSONIC_TRACE_SAMPLE_RATIO",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envVars {
		if v, ok := os.LookupEnv(k); ok {
			os.Unsetenv(k)
			t.Cleanup(func() { os.Setenv(k, v) })
		}
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 10s", cfg.Server.ShutdownTimeout)
	}
	if len(cfg.Server.AllowOrigins) != 1 || cfg.Server.AllowOrigins[0] != "*" {
		t.Errorf("AllowOrigins = %v, want [*]", cfg.Server.AllowOrigins)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.Audio.Genre != "ambient" {
		t.Errorf("Audio.Genre = %q, want ambient", cfg.Audio.Genre)
	}
	if cfg.Audio.DurationSec != 30 {
		t.Errorf("Audio.DurationSec = %v, want 30", cfg.Audio.DurationSec)
	}
	if cfg.Audio.SampleRate != 22050 {
		t.Errorf("Audio.SampleRate = %d, want 22050", cfg.Audio.SampleRate)
	}
	if cfg.Stream.HighWater != 1<<20 || cfg.Stream.LowWater != 256<<10 {
		t.Errorf("watermarks = %d/%d", cfg.Stream.HighWater, cfg.Stream.LowWater)
	}
	if cfg.Cache.Driver != "memory" {
		t.Errorf("Cache.Driver = %q, want memory", cfg.Cache.Driver)
	}
	if cfg.Cache.TTL != 10*time.Minute {
		t.Errorf("Cache.TTL = %v, want 10m", cfg.Cache.TTL)
	}
	if cfg.Journal.Retention != "persistent" {
		t.Errorf("Journal.Retention = %q, want persistent", cfg.Journal.Retention)
	}
	if cfg.Telemetry.Exporter != "none" {
		t.Errorf("Telemetry.Exporter = %q, want none", cfg.Telemetry.Exporter)
	}
	if cfg.Journal.PruneInterval != 5*time.Minute {
		t.Errorf("Journal.PruneInterval = %v, want 5m", cfg.Journal.PruneInterval)
	}
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
server:
  port: 9000
audio:
  genre: techno
  sample_rate: 16000
cache:
  driver: none
  ttl: 30s
journal:
  retention: ephemeral
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Audio.Genre != "techno" || cfg.Audio.SampleRate != 16000 {
		t.Errorf("Audio = %+v", cfg.Audio)
	}
	if cfg.Audio.DurationSec != 30 {
		t.Errorf("unset duration lost its default: %v", cfg.Audio.DurationSec)
	}
	if cfg.Cache.Driver != "none" || cfg.Cache.TTL != 30*time.Second {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.Journal.Retention != "ephemeral" {
		t.Errorf("Journal.Retention = %q", cfg.Journal.Retention)
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("ASTROSONIC_PORT", "3000")
	t.Setenv("ASTROSONIC_GENRE", "lofi")
	t.Setenv("ASTROSONIC_DURATION", "12.5")
	t.Setenv("ASTROSONIC_ICE_SERVERS", "stun:a:3478,stun:b:3478")
	t.Setenv("ASTROSONIC_CACHE", "redis")
	t.Setenv("ASTROSONIC_REDIS_ADDR", "cache:6379")
	t.Setenv("ASTROSONIC_TRACE_SAMPLE_RATIO", "0.25")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Port = %d, want 3000", cfg.Server.Port)
	}
	if cfg.Audio.Genre != "lofi" {
		t.Errorf("Genre = %q, want lofi", cfg.Audio.Genre)
	}
	if cfg.Audio.DurationSec != 12.5 {
		t.Errorf("DurationSec = %v, want 12.5", cfg.Audio.DurationSec)
	}
	if len(cfg.Stream.ICEServers) != 2 || cfg.Stream.ICEServers[1] != "stun:b:3478" {
		t.Errorf("ICEServers = %v", cfg.Stream.ICEServers)
	}
	if cfg.Cache.Driver != "redis" || cfg.Cache.Redis.Addr != "cache:6379" {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.Telemetry.SampleRatio != 0.25 {
		t.Errorf("SampleRatio = %v, want 0.25", cfg.Telemetry.SampleRatio)
	}
}

func TestEnvIntInvalidFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("ASTROSONIC_PORT", "not-a-number")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Invalid int env should fallback to default: got %d, want 8080", cfg.Server.Port)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad sample rate", "audio:\n  sample_rate: 44100\n", "SampleRate"},
		{"unknown genre", "audio:\n  genre: polka\n", "genre"},
		{"bad cache driver", "cache:\n  driver: memcached\n", "Driver"},
		{"low above high", "stream:\n  high_water: 100\n  low_water: 200\n", "LowWater"},
		{"bad log level", "log:\n  level: chatty\n", "Level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := Load(writeFile(t, tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %s", err, tt.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

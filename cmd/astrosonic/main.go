package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/satindergrewal/astrosonic/internal/api"
	"github.com/satindergrewal/astrosonic/internal/cache"
	"github.com/satindergrewal/astrosonic/internal/config"
	"github.com/satindergrewal/astrosonic/internal/journal"
	"github.com/satindergrewal/astrosonic/internal/logger"
	"github.com/satindergrewal/astrosonic/internal/metrics"
	"github.com/satindergrewal/astrosonic/internal/render"
	"github.com/satindergrewal/astrosonic/internal/stream"
	"github.com/satindergrewal/astrosonic/internal/telemetry"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage:
  astrosonic [serve] [-config file]     run the HTTP, WebSocket and WebRTC server
  astrosonic render -in req.json -out out.wav [-config file]
`)
}

func main() {
	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = serve(args)
	case "render":
		err = renderFile(args)
	case "help":
		usage()
		return
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "astrosonic:", err)
		os.Exit(1)
	}
}

func serve(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", os.Getenv("ASTROSONIC_CONFIG"), "path to YAML config")
	_ = fs.Parse(args)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	log, err := logger.New(&cfg.Log)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("astrosonic starting up",
		logger.String("genre", cfg.Audio.Genre),
		logger.Int("sample_rate", cfg.Audio.SampleRate),
		logger.String("cache", cfg.Cache.Driver),
		logger.String("journal", cfg.Journal.Retention))

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, log)
	if err != nil {
		return err
	}

	rec := metrics.New()
	svc, closeDeps, err := buildService(ctx, cfg, log, rec)
	if err != nil {
		_ = shutdownTracing(context.Background())
		return err
	}

	peers := stream.NewPeers(webrtcConfig(cfg.Stream.ICEServers), cfg.Stream.HighWater, cfg.Stream.LowWater)

	audioHandler := api.NewAudioHandler(log, svc, peers, api.AudioHandlerConfig{
		WSWriteTimeout: cfg.Stream.WSWriteTimeout,
		WSReadTimeout:  cfg.Stream.WSReadTimeout,
		AllowOrigins:   cfg.Server.AllowOrigins,
	})
	server := api.NewServer(log, []api.Handler{audioHandler},
		api.WithPort(cfg.Server.Port),
		api.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.ShutdownTimeout),
		api.WithAllowOrigins(cfg.Server.AllowOrigins),
		api.WithBodyLimit(cfg.Server.BodyLimit),
		api.WithMetrics(rec.Handler()),
		api.WithBaseContext(ctx),
	)
	if err := server.Start(); err != nil {
		closeDeps()
		_ = shutdownTracing(context.Background())
		return err
	}

	<-ctx.Done()
	log.Info("shutting down")

	if err := server.Stop(context.Background()); err != nil {
		log.Error("server shutdown", logger.Error(err))
	}
	peers.Close()
	closeDeps()

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	if err := shutdownTracing(flushCtx); err != nil {
		log.Error("telemetry shutdown", logger.Error(err))
	}
	return nil
}

// buildService opens the cache and journal and wires them into a render
// service. The returned func releases both.
func buildService(ctx context.Context, cfg *config.Config, log *logger.Logger, rec *metrics.Recorder) (*render.Service, func(), error) {
	c, err := cache.New(ctx, cfg.Cache)
	if err != nil {
		return nil, nil, err
	}
	j, err := journal.Open(ctx, cfg.Journal, log)
	if err != nil {
		closeCache(c)
		return nil, nil, err
	}

	opts := []render.Option{
		render.WithLogger(log),
		render.WithJournal(j),
		render.WithDefaults(render.Defaults{
			Genre:       cfg.Audio.Genre,
			DurationSec: cfg.Audio.DurationSec,
			SampleRate:  cfg.Audio.SampleRate,
		}),
		render.WithMaxStreams(cfg.Audio.MaxStreams),
	}
	if rec != nil {
		opts = append(opts, render.WithMetrics(rec))
	}
	if c != nil {
		opts = append(opts, render.WithCache(c, cfg.Cache.TTL, cfg.Cache.MaxBytes))
	}

	go j.RunPruner(ctx)

	closeDeps := func() {
		if err := j.Close(); err != nil {
			log.Error("journal close", logger.Error(err))
		}
		closeCache(c)
	}
	return render.New(opts...), closeDeps, nil
}

func closeCache(c cache.BytesCache) {
	if rc, ok := c.(*cache.RedisCache); ok {
		_ = rc.Close()
	}
}

func webrtcConfig(urls []string) webrtc.Configuration {
	var cfg webrtc.Configuration
	if len(urls) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: urls}}
	}
	return cfg
}

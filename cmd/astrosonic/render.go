package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/satindergrewal/astrosonic/internal/config"
	"github.com/satindergrewal/astrosonic/internal/logger"
	"github.com/satindergrewal/astrosonic/internal/render"
)

// renderFile writes one finished WAV from a JSON render request. The
// request has the same shape as the HTTP API body.
func renderFile(args []string) error {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	cfgPath := fs.String("config", os.Getenv("ASTROSONIC_CONFIG"), "path to YAML config")
	in := fs.String("in", "-", "render request JSON, - for stdin")
	out := fs.String("out", "", "output WAV path")
	_ = fs.Parse(args)
	if *out == "" {
		return errors.New("render: -out is required")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	log, err := logger.New(&cfg.Log)
	if err != nil {
		return err
	}

	req, err := readRequest(*in)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, closeDeps, err := buildService(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer closeDeps()

	job, err := svc.Prepare(req)
	if err != nil {
		return err
	}
	wav, _, err := svc.Render(ctx, job)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, wav, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", *out, err)
	}

	p := job.Gen.Params()
	log.Info("render written",
		logger.String("path", *out),
		logger.String("seed", job.Seed()),
		logger.String("key", p.Key),
		logger.Float("tempo", p.Tempo),
		logger.Int("bytes", len(wav)))
	return nil
}

func readRequest(path string) (render.Request, error) {
	var req render.Request
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return req, err
		}
		defer f.Close()
		r = f
	}
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return req, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

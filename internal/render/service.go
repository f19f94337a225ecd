// Package render prepares validated render jobs and drives them into
// sinks or finished WAV files.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/satindergrewal/astrosonic/internal/audio"
	"github.com/satindergrewal/astrosonic/internal/cache"
	"github.com/satindergrewal/astrosonic/internal/chart"
	"github.com/satindergrewal/astrosonic/internal/journal"
	"github.com/satindergrewal/astrosonic/internal/logger"
	"github.com/satindergrewal/astrosonic/internal/mapper"
	"github.com/satindergrewal/astrosonic/internal/metrics"
	"github.com/satindergrewal/astrosonic/internal/prng"
	"github.com/satindergrewal/astrosonic/internal/stream"
	"github.com/satindergrewal/astrosonic/internal/synth"
)

// Transport names used in metrics and the journal.
const (
	TransportHTTP   = "http"
	TransportWS     = "ws"
	TransportWebRTC = "webrtc"
	TransportFile   = "file"
)

// ErrTooManyStreams is returned by Admit when every stream slot is taken.
var ErrTooManyStreams = errors.New("too many concurrent streams")

// Request is the body accepted by every render endpoint.
type Request struct {
	Config audio.Config `json:"config"`
	Chart  *chart.Data  `json:"chart"`
	ChartB *chart.Data  `json:"chartB,omitempty"`
}

// Defaults fill request fields the caller left empty.
type Defaults struct {
	Genre       string
	DurationSec float64
	SampleRate  int
}

// Job is one prepared render. It owns its generator and must be consumed
// by exactly one Stream or Render call.
type Job struct {
	ID       string
	Config   audio.Config
	Gen      *synth.Generator
	CacheKey string
}

// Seed is the seed driving the job's generator.
func (j *Job) Seed() string { return j.Gen.Seed() }

// Summary describes a job without synthesizing it.
type Summary struct {
	ID         string         `json:"id"`
	Seed       string         `json:"seed"`
	Mode       audio.Mode     `json:"mode"`
	Genre      string         `json:"genre"`
	SampleRate int            `json:"sampleRate"`
	Frames     int            `json:"frames"`
	FrameLen   int            `json:"frameLen"`
	DataSize   int            `json:"dataSize"`
	Params     mapper.Params  `json:"params"`
	Partner    *mapper.Params `json:"partner,omitempty"`
}

// Service runs render jobs. Every collaborator is optional.
type Service struct {
	log      *logger.Logger
	metrics  *metrics.Recorder
	journal  *journal.Store
	cache    cache.BytesCache
	cacheTTL time.Duration
	cacheMax int
	defaults Defaults
	slots    chan struct{}
	tracer   trace.Tracer
	now      func() time.Time
}

type Option func(*Service)

func WithLogger(l *logger.Logger) Option { return func(s *Service) { s.log = l } }

func WithMetrics(m *metrics.Recorder) Option { return func(s *Service) { s.metrics = m } }

func WithJournal(j *journal.Store) Option { return func(s *Service) { s.journal = j } }

// WithCache stores finished renders up to maxBytes each; 0 means no size limit.
func WithCache(c cache.BytesCache, ttl time.Duration, maxBytes int) Option {
	return func(s *Service) {
		s.cache = c
		s.cacheTTL = ttl
		s.cacheMax = maxBytes
	}
}

func WithDefaults(d Defaults) Option { return func(s *Service) { s.defaults = d } }

// WithMaxStreams caps concurrently delivering streams.
func WithMaxStreams(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.slots = make(chan struct{}, n)
		}
	}
}

func New(opts ...Option) *Service {
	s := &Service{
		log:    logger.Nop(),
		tracer: otel.Tracer("github.com/satindergrewal/astrosonic/internal/render"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Prepare fills defaults, validates the request and builds its generator.
// Invalid requests fail here with an error matching audio.ErrInvalidConfig.
func (s *Service) Prepare(req Request) (*Job, error) {
	cfg := req.Config
	if cfg.Genre == "" {
		cfg.Genre = s.defaults.Genre
	}
	if cfg.DurationSec == 0 {
		cfg.DurationSec = s.defaults.DurationSec
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = s.defaults.SampleRate
	}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	a, b := req.Chart, req.ChartB
	if cfg.Mode != audio.ModeSynastry {
		b = nil
	}
	if err := validateChart("chart", a); err != nil {
		return nil, err
	}
	if err := validateChart("chartB", b); err != nil {
		return nil, err
	}

	gen, err := synth.NewGenerator(cfg, a, b)
	if err != nil {
		return nil, err
	}

	resolved := cfg
	resolved.Seed = gen.Seed()
	return &Job{
		ID:       uuid.NewString(),
		Config:   cfg,
		Gen:      gen,
		CacheKey: "wav:" + prng.DeriveSeed(resolved, a, b),
	}, nil
}

// validateChart checks chart ranges and prefixes field paths with name.
func validateChart(name string, c *chart.Data) error {
	if c == nil {
		return nil
	}
	err := audio.ValidateStruct(c)
	var ce *audio.ConfigError
	if !errors.As(err, &ce) {
		return err
	}
	for i := range ce.Fields {
		if ce.Fields[i].Field != "" {
			ce.Fields[i].Field = name + "." + ce.Fields[i].Field
		}
	}
	return ce
}

// Describe summarizes a prepared job.
func (s *Service) Describe(j *Job) Summary {
	sum := Summary{
		ID:         j.ID,
		Seed:       j.Gen.Seed(),
		Mode:       j.Config.Mode,
		Genre:      j.Config.Genre,
		SampleRate: j.Config.SampleRate,
		Frames:     j.Gen.FrameCount(),
		FrameLen:   j.Gen.FrameLen(),
		DataSize:   j.Gen.DataSize(),
		Params:     j.Gen.Params(),
	}
	if p, ok := j.Gen.PartnerParams(); ok {
		sum.Partner = &p
	}
	return sum
}

// Admit reserves a stream slot. The returned func releases it and is
// safe to call more than once.
func (s *Service) Admit() (func(), error) {
	if s.slots == nil {
		return func() {}, nil
	}
	select {
	case s.slots <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-s.slots }) }, nil
	default:
		return nil, ErrTooManyStreams
	}
}

// Stream writes a streaming WAV header and then every frame of the job
// into sink. On error the bytes already accepted by the sink remain a
// valid prefix.
func (s *Service) Stream(ctx context.Context, job *Job, sink io.Writer, transport string) (stream.Result, error) {
	ctx, span := s.startSpan(ctx, "render.stream", job, transport)
	defer span.End()

	if s.metrics != nil {
		defer s.metrics.StreamStarted(transport)()
	}

	start := s.now()
	header := audio.StreamingWAVHeader(job.Config.SampleRate)
	res, err := stream.Deliver(ctx, job.Gen, header[:], sink)
	s.finish(ctx, span, job, transport, res, Outcome(err), err, start)
	return res, err
}

// Render produces the finished WAV with exact header sizes. The second
// result reports whether it came from the cache.
func (s *Service) Render(ctx context.Context, job *Job) ([]byte, bool, error) {
	ctx, span := s.startSpan(ctx, "render.file", job, TransportFile)
	defer span.End()

	start := s.now()
	if b, ok := s.cached(ctx, job.CacheKey); ok {
		span.SetAttributes(attribute.Bool("render.cached", true))
		res := stream.Result{Frames: job.Gen.FrameCount(), Bytes: int64(len(b))}
		s.finish(ctx, span, job, TransportFile, res, OutcomeCached, nil, start)
		return b, true, nil
	}

	size := job.Gen.DataSize()
	var buf bytes.Buffer
	buf.Grow(audio.HeaderSize + size)
	header := audio.WAVHeader(job.Config.SampleRate, uint32(size))
	res, err := stream.Deliver(ctx, job.Gen, header[:], &buf)
	s.finish(ctx, span, job, TransportFile, res, Outcome(err), err, start)
	if err != nil {
		return nil, false, err
	}

	out := buf.Bytes()
	s.store(ctx, job.CacheKey, out)
	return out, false, nil
}

// Recent lists journal entries, newest first.
func (s *Service) Recent(ctx context.Context, limit int) ([]journal.Entry, error) {
	if s.journal == nil {
		return nil, nil
	}
	return s.journal.Recent(ctx, limit)
}

func (s *Service) cached(ctx context.Context, key string) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}
	b, ok, err := s.cache.GetBytes(ctx, key)
	if err != nil {
		s.log.Warn("render cache read failed", logger.String("key", key), logger.Error(err))
		ok = false
	}
	if s.metrics != nil {
		s.metrics.RecordCache(ok)
	}
	return b, ok
}

func (s *Service) store(ctx context.Context, key string, b []byte) {
	if s.cache == nil || (s.cacheMax > 0 && len(b) > s.cacheMax) {
		return
	}
	if err := s.cache.SetBytes(ctx, key, b, s.cacheTTL); err != nil {
		s.log.Warn("render cache write failed", logger.String("key", key), logger.Error(err))
	}
}

func (s *Service) startSpan(ctx context.Context, name string, job *Job, transport string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("render.id", job.ID),
		attribute.String("render.transport", transport),
		attribute.String("render.mode", string(job.Config.Mode)),
		attribute.String("render.genre", job.Config.Genre),
		attribute.String("render.seed", job.Gen.Seed()),
		attribute.Int("render.frames", job.Gen.FrameCount()),
	))
}

// finish records one completed delivery in metrics, the journal, the span
// and the log.
func (s *Service) finish(ctx context.Context, span trace.Span, job *Job, transport string, res stream.Result, out string, err error, start time.Time) {
	elapsed := s.now().Sub(start)
	params := job.Gen.Params()

	span.SetAttributes(
		attribute.Int("render.frames_sent", res.Frames),
		attribute.Int64("render.bytes_sent", res.Bytes),
		attribute.String("render.outcome", out),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, out)
	}

	if s.metrics != nil {
		s.metrics.RecordDelivery(transport, res.Frames, res.Bytes, res.Waits)
		s.metrics.RecordRender(transport, string(job.Config.Mode), out, elapsed.Seconds())
	}

	entry := journal.Entry{
		ID:          job.ID,
		Transport:   transport,
		Mode:        string(job.Config.Mode),
		Genre:       job.Config.Genre,
		Seed:        job.Gen.Seed(),
		Key:         params.Key,
		Tempo:       params.Tempo,
		DurationSec: job.Config.DurationSec,
		SampleRate:  job.Config.SampleRate,
		Frames:      res.Frames,
		Bytes:       res.Bytes,
		Outcome:     out,
		ElapsedMs:   elapsed.Milliseconds(),
		CreatedAt:   start,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if s.journal != nil {
		if jerr := s.journal.Record(context.WithoutCancel(ctx), entry); jerr != nil {
			s.log.Warn("journal write failed", logger.String("render_id", job.ID), logger.Error(jerr))
		}
	}

	fields := []logger.Field{
		logger.String("render_id", job.ID),
		logger.String("transport", transport),
		logger.String("seed", job.Gen.Seed()),
		logger.Int("frames", res.Frames),
		logger.Int("total_frames", job.Gen.FrameCount()),
		logger.Int("sink_waits", res.Waits),
		logger.Duration("elapsed_ms", elapsed),
		logger.String("outcome", out),
	}
	switch out {
	case "ok", "canceled", OutcomeCached:
		s.log.Info("render finished", fields...)
	default:
		s.log.Error("render failed", append(fields, logger.Error(err))...)
	}
}

// OutcomeCached marks a finished file served from the render cache.
const OutcomeCached = "cached"

// Outcome classifies a delivery error for metrics and the journal.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, stream.ErrSinkFailure):
		return "sink_failure"
	default:
		return "error"
	}
}

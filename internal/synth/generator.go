// Package synth turns chart data into PCM frames.
package synth

import (
	"github.com/satindergrewal/astrosonic/internal/audio"
	"github.com/satindergrewal/astrosonic/internal/chart"
	"github.com/satindergrewal/astrosonic/internal/mapper"
	"github.com/satindergrewal/astrosonic/internal/prng"
)

// mixer renders one chart: one voice per body, summed with saturation.
type mixer struct {
	params   mapper.Params
	voices   []*Voice
	frameLen int
	total    int
	scratch  []int16
	acc      []int32
}

func newMixer(c *chart.Data, cfg audio.Config, seed string, frameLen, total int) *mixer {
	rng := prng.New(seed)
	params := mapper.FromChart(c, cfg.Genre)
	env := NewEnvelope(params.Tempo, params.Density, cfg.SampleRate)

	m := &mixer{
		params:   params,
		frameLen: frameLen,
		total:    total,
		scratch:  make([]int16, frameLen),
		acc:      make([]int32, frameLen),
	}
	if c != nil {
		for _, p := range c.Planets {
			m.voices = append(m.voices, NewVoice(p, cfg.Genre, cfg.SampleRate, env, rng))
		}
	}
	return m
}

func (m *mixer) frame(idx int) []int16 {
	clear(m.acc)
	start := int64(idx) * int64(m.frameLen)
	for _, v := range m.voices {
		v.Render(m.scratch, start)
		for i, s := range m.scratch {
			m.acc[i] += int32(s)
		}
	}

	out := make([]int16, m.frameLen)
	for i, s := range m.acc {
		out[i] = audio.Saturate(s)
	}
	if idx == 0 {
		audio.FadeIn(out)
	}
	if idx == m.total-1 {
		audio.FadeOut(out)
	}
	return out
}

// Generator is a lazy, finite, single-pass sequence of frames. Frames
// are freshly allocated and never touched again after Next returns them.
// A Generator is owned by one request and is not safe for concurrent use.
type Generator struct {
	cfg      audio.Config
	seed     string
	primary  *mixer
	partner  *mixer
	frameLen int
	total    int
	next     int
}

// ResolveSeed returns cfg.Seed, or a seed derived from every input that
// affects the output.
func ResolveSeed(cfg audio.Config, a, b *chart.Data) string {
	if cfg.Seed != "" {
		return cfg.Seed
	}
	if cfg.Mode != audio.ModeSynastry {
		b = nil
	}
	return prng.DeriveSeed(cfg, a, b)
}

// NewGenerator validates cfg and prepares a generator. b is only used in
// synastry mode, where it is required.
func NewGenerator(cfg audio.Config, a, b *chart.Data) (*Generator, error) {
	if err := cfg.Validate(b != nil); err != nil {
		return nil, err
	}
	if a == nil {
		a = &chart.Data{}
	}

	g := &Generator{
		cfg:      cfg,
		seed:     ResolveSeed(cfg, a, b),
		frameLen: audio.FrameLen(cfg.SampleRate),
		total:    audio.FrameCount(cfg.DurationSec),
	}
	g.primary = newMixer(a, cfg, g.seed, g.frameLen, g.total)
	if cfg.Mode == audio.ModeSynastry {
		g.partner = newMixer(b, cfg, g.seed, g.frameLen, g.total)
	}
	return g, nil
}

// Next returns the next frame, or false once every frame was produced.
func (g *Generator) Next() ([]int16, bool) {
	if g.next >= g.total {
		return nil, false
	}
	idx := g.next
	g.next++

	frame := g.primary.frame(idx)
	if g.partner != nil {
		frame = audio.Blend(frame, g.partner.frame(idx))
	}
	return frame, true
}

// Seed is the explicit or derived seed driving this render.
func (g *Generator) Seed() string { return g.seed }

// FrameLen is the number of samples in every frame.
func (g *Generator) FrameLen() int { return g.frameLen }

// FrameCount is the total number of frames the generator yields.
func (g *Generator) FrameCount() int { return g.total }

// Emitted is the number of frames already returned by Next.
func (g *Generator) Emitted() int { return g.next }

// DataSize is the PCM payload size in bytes of the full render.
func (g *Generator) DataSize() int { return g.total * g.frameLen * 2 }

// Params returns the mapped parameters of the primary chart.
func (g *Generator) Params() mapper.Params { return g.primary.params }

// PartnerParams returns the partner chart's parameters in synastry mode.
func (g *Generator) PartnerParams() (mapper.Params, bool) {
	if g.partner == nil {
		return mapper.Params{}, false
	}
	return g.partner.params, true
}

package synth

import (
	"math"

	"github.com/satindergrewal/astrosonic/internal/audio"
	"github.com/satindergrewal/astrosonic/internal/chart"
	"github.com/satindergrewal/astrosonic/internal/mapper"
	"github.com/satindergrewal/astrosonic/internal/prng"
)

const (
	// PeakAmplitude bounds a single voice, leaving headroom below 32767.
	PeakAmplitude = 8192
	// MaxDetune is the relative detuning range drawn per voice.
	MaxDetune = 0.05
	// RetrogradeGain softens bodies in retrograde motion.
	RetrogradeGain = 0.7

	nyquistMargin = 0.45
)

type partial struct {
	ratio float64 // cycles per sample
	amp   float64
}

// Voice is one body's oscillator. Its detune is fixed at construction
// so rendering is a pure function of the sample position.
type Voice struct {
	body     Body
	freq     float64
	gain     float64
	partials []partial
	env      Envelope
}

// NewVoice maps a body to a pitch in the genre's scale and draws its
// detune from rng.
func NewVoice(p chart.Planet, genre string, sampleRate int, env Envelope, rng *prng.Rand) *Voice {
	body := LookupBody(p.Name)
	scale := mapper.ScaleFromGenre(genre)
	semitone := scale[DegreeIndex(p.Lon, len(scale))]

	freq := body.BaseFreq * math.Pow(2, float64(semitone)/12)
	freq *= 1 + rng.NextRange(-MaxDetune, MaxDetune)

	v := &Voice{
		body: body,
		freq: freq,
		gain: PeakAmplitude,
		env:  env,
	}
	if p.Retrograde() {
		v.gain *= RetrogradeGain
	}

	limit := math.Min(body.Cutoff, nyquistMargin*float64(sampleRate))
	var total float64
	for k, amp := range harmonics[body.Shape] {
		f := freq * float64(k+1)
		if amp == 0 || f > limit {
			continue
		}
		v.partials = append(v.partials, partial{ratio: f / float64(sampleRate), amp: amp})
		total += amp
	}
	for i := range v.partials {
		v.partials[i].amp /= total
	}
	return v
}

// DegreeIndex maps a longitude onto one of n scale degrees.
func DegreeIndex(lon float64, n int) int {
	if n <= 0 {
		return 0
	}
	lon = mapper.NormalizeLon(lon)
	idx := int(math.Floor(lon * float64(n) / 360))
	if idx >= n {
		idx = n - 1
	}
	return idx
}

// Frequency is the detuned fundamental in Hz.
func (v *Voice) Frequency() float64 {
	return v.freq
}

// Render fills dst with the samples starting at absolute position start.
// Phase is computed from the absolute position, so consecutive frames join
// without discontinuity.
func (v *Voice) Render(dst []int16, start int64) {
	for i := range dst {
		pos := start + int64(i)
		var s float64
		for _, p := range v.partials {
			cycles := math.Mod(p.ratio*float64(pos), 1)
			s += p.amp * math.Sin(2*math.Pi*cycles)
		}
		dst[i] = audio.Clamp16(s * v.gain * v.env.Gain(pos))
	}
}

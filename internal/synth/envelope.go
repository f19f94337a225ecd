package synth

import "math"

const (
	basePulseDepth = 0.2
	densityStep    = 0.05
	maxPulseDepth  = 0.8
	pulseDecay     = 4.0
)

// Envelope is a per-beat amplitude pulse. Tempo sets the beat length;
// aspect density sets how deep each pulse dips between beats.
type Envelope struct {
	beatLen int64 // samples per beat
	depth   float64
}

// NewEnvelope builds the pulse for a tempo in BPM and an aspect density.
func NewEnvelope(tempo, density float64, sampleRate int) Envelope {
	if tempo <= 0 || math.IsNaN(tempo) || math.IsInf(tempo, 0) {
		tempo = 60
	}
	beat := int64(math.Round(60 / tempo * float64(sampleRate)))
	if beat < 1 {
		beat = 1
	}
	if density < 0 || math.IsNaN(density) {
		density = 0
	}
	return Envelope{
		beatLen: beat,
		depth:   math.Min(maxPulseDepth, basePulseDepth+density*densityStep),
	}
}

// BeatLen returns the beat length in samples.
func (e Envelope) BeatLen() int64 {
	return e.beatLen
}

// Gain returns the envelope at absolute sample pos, always in (0, 1].
func (e Envelope) Gain(pos int64) float64 {
	if e.beatLen <= 0 {
		return 1
	}
	phase := float64(pos%e.beatLen) / float64(e.beatLen)
	return (1 - e.depth) + e.depth*math.Exp(-pulseDecay*phase)
}

package audio

import (
	"math"
	"time"
)

const (
	Channels      = 1
	BitDepth      = 16
	FrameDuration = 100 * time.Millisecond

	frameMillis = int64(FrameDuration / time.Millisecond)
	frameMicros = int64(FrameDuration / time.Microsecond)
)

// FrameLen returns samples per frame: floor(FrameDuration * sampleRate).
func FrameLen(sampleRate int) int {
	return int(int64(sampleRate) * frameMillis / 1000)
}

// FrameCount returns ceil(duration / FrameDuration). The duration is
// rounded to whole microseconds first so that float error cannot add a
// frame (1.1s is 11 frames, not 12) while 1.0004s still needs 11.
func FrameCount(durationSec float64) int {
	if durationSec <= 0 || math.IsNaN(durationSec) || math.IsInf(durationSec, 0) {
		return 0
	}
	us := int64(math.Round(durationSec * 1e6))
	return int((us + frameMicros - 1) / frameMicros)
}

// DataSize returns the byte length of the PCM payload for n frames.
func DataSize(sampleRate, frames int) int {
	return frames * FrameLen(sampleRate) * Channels * BitDepth / 8
}

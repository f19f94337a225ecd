package audio

import "math"

// Smoothstep returns the smoothstep interpolation for t in [0,1].
// Formula: 3t^2 - 2t^3.
func Smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

// Clamp16 rounds v half away from zero and clips it to the int16 range.
// NaN and infinities become silence.
func Clamp16(v float64) int16 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	v = math.Round(v)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// Saturate clips an integer accumulator to the int16 range.
func Saturate(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// Blend returns the per-sample rounded average of two equal-length frames.
func Blend(a, b []int16) []int16 {
	result := make([]int16, len(a))
	for i := range a {
		result[i] = Clamp16((float64(a[i]) + float64(b[i])) / 2)
	}
	return result
}

// FadeIn scales frame in place with a smoothstep ramp from 0 to 1.
func FadeIn(frame []int16) {
	n := len(frame)
	if n < 2 {
		return
	}
	for i := range frame {
		frame[i] = Clamp16(float64(frame[i]) * Smoothstep(float64(i)/float64(n-1)))
	}
}

// FadeOut scales frame in place with a smoothstep ramp from 1 to 0.
func FadeOut(frame []int16) {
	n := len(frame)
	if n < 2 {
		return
	}
	for i := range frame {
		frame[i] = Clamp16(float64(frame[i]) * Smoothstep(float64(n-1-i)/float64(n-1)))
	}
}

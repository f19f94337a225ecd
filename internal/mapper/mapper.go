// Package mapper derives musical parameters from chart data. Every
// function here is total: any well-typed chart yields a value.
package mapper

import (
	"math"

	"github.com/satindergrewal/astrosonic/internal/chart"
)

// Keys is the circle of fifths starting at C.
var Keys = [12]string{"C", "G", "D", "A", "E", "B", "F#", "C#", "G#", "D#", "A#", "F"}

// motionCeiling is the mean daily motion (degrees) that maps to the top
// of a genre's tempo window.
const motionCeiling = 4.0

var aspectWeight = map[chart.AspectType]float64{
	chart.Conjunction: 1.0,
	chart.Opposition:  0.8,
	chart.Square:      0.6,
	chart.Trine:       0.4,
	chart.Sextile:     0.2,
}

// Params is the full mapping for one chart and genre.
type Params struct {
	Key     string  `json:"key"`
	Tempo   float64 `json:"tempo"`
	Scale   []int   `json:"scale"`
	Density float64 `json:"density"`
}

// FromChart computes all parameters at once.
func FromChart(c *chart.Data, genre string) Params {
	return Params{
		Key:     KeyFromChart(c),
		Tempo:   TempoFromMotion(c, genre),
		Scale:   ScaleFromGenre(genre),
		Density: AspectWeights(c),
	}
}

// KeyFromChart picks a key from the Sun's longitude. Charts without a
// Sun get the first key.
func KeyFromChart(c *chart.Data) string {
	sun, ok := c.Planet("Sun")
	if !ok {
		return Keys[0]
	}
	return Keys[twelfth(sun.Lon)]
}

func twelfth(lon float64) int {
	lon = NormalizeLon(lon)
	idx := int(math.Floor(lon * 12 / 360))
	if idx < 0 {
		return 0
	}
	if idx > 11 {
		return 11
	}
	return idx
}

// NormalizeLon folds a longitude into [0, 360). Non-finite input maps to 0.
func NormalizeLon(lon float64) float64 {
	if math.IsNaN(lon) || math.IsInf(lon, 0) {
		return 0
	}
	lon = math.Mod(lon, 360)
	if lon < 0 {
		lon += 360
	}
	if lon >= 360 {
		lon = 0
	}
	return lon
}

// TempoFromMotion maps mean absolute daily motion onto the genre's BPM
// window, clamped to that window.
func TempoFromMotion(c *chart.Data, genre string) float64 {
	lo, hi := tempoWindow(genre)
	if c == nil || len(c.Planets) == 0 {
		return lo
	}

	var sum float64
	for _, p := range c.Planets {
		if math.IsNaN(p.Speed) || math.IsInf(p.Speed, 0) {
			continue
		}
		sum += math.Abs(p.Speed)
	}
	mean := sum / float64(len(c.Planets))

	bpm := lo + (mean/motionCeiling)*(hi-lo)
	return math.Max(lo, math.Min(hi, bpm))
}

// ScaleFromGenre returns the genre's scale degrees as semitone offsets.
// The returned slice is a copy.
func ScaleFromGenre(genre string) []int {
	src := defaultScale
	if g, ok := Genres[genre]; ok {
		src = g.Scale
	}
	out := make([]int, len(src))
	copy(out, src)
	return out
}

// AspectWeights sums the per-type weight of every aspect.
func AspectWeights(c *chart.Data) float64 {
	if c == nil {
		return 0
	}
	var w float64
	for _, a := range c.Aspects {
		w += aspectWeight[a.Type]
	}
	return w
}

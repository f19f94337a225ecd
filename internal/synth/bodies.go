package synth

// Shape names a fixed harmonic amplitude series.
type Shape string

const (
	ShapeSine     Shape = "sine"
	ShapeSoft     Shape = "soft"
	ShapeTriangle Shape = "triangle"
	ShapeSquare   Shape = "square"
	ShapeSaw      Shape = "saw"
)

// harmonics[k] is the relative amplitude of partial k+1.
var harmonics = map[Shape][]float64{
	ShapeSine:     {1},
	ShapeSoft:     {1, 0.5, 0.25, 0.125},
	ShapeTriangle: {1, 0, 1.0 / 9, 0, 1.0 / 25},
	ShapeSquare:   {1, 0, 1.0 / 3, 0, 1.0 / 5, 0, 1.0 / 7},
	ShapeSaw:      {1, 1.0 / 2, 1.0 / 3, 1.0 / 4, 1.0 / 5, 1.0 / 6},
}

// Body is the static voice profile of one celestial body.
type Body struct {
	Name     string
	BaseFreq float64 // Hz
	Shape    Shape
	Cutoff   float64 // Hz; partials above this are dropped
}

// Bodies is keyed by the names the ephemeris collaborator emits.
var Bodies = map[string]Body{
	"Sun":       {Name: "Sun", BaseFreq: 261.63, Shape: ShapeSoft, Cutoff: 4000},
	"Moon":      {Name: "Moon", BaseFreq: 293.66, Shape: ShapeSine, Cutoff: 2500},
	"Mercury":   {Name: "Mercury", BaseFreq: 329.63, Shape: ShapeTriangle, Cutoff: 5000},
	"Venus":     {Name: "Venus", BaseFreq: 349.23, Shape: ShapeSine, Cutoff: 3000},
	"Mars":      {Name: "Mars", BaseFreq: 392.00, Shape: ShapeSquare, Cutoff: 3500},
	"Jupiter":   {Name: "Jupiter", BaseFreq: 196.00, Shape: ShapeSoft, Cutoff: 3000},
	"Saturn":    {Name: "Saturn", BaseFreq: 146.83, Shape: ShapeTriangle, Cutoff: 2000},
	"Uranus":    {Name: "Uranus", BaseFreq: 440.00, Shape: ShapeSaw, Cutoff: 6000},
	"Neptune":   {Name: "Neptune", BaseFreq: 174.61, Shape: ShapeSine, Cutoff: 2200},
	"Pluto":     {Name: "Pluto", BaseFreq: 110.00, Shape: ShapeTriangle, Cutoff: 1800},
	"NorthNode": {Name: "NorthNode", BaseFreq: 164.81, Shape: ShapeSine, Cutoff: 1500},
	"Chiron":    {Name: "Chiron", BaseFreq: 233.08, Shape: ShapeTriangle, Cutoff: 2500},
}

var defaultBody = Body{Name: "default", BaseFreq: 220, Shape: ShapeSoft, Cutoff: 4000}

// LookupBody returns the profile for name, or the 220 Hz default.
func LookupBody(name string) Body {
	if b, ok := Bodies[name]; ok {
		return b
	}
	b := defaultBody
	b.Name = name
	return b
}

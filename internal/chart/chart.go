package chart

// AspectType classifies the angular relationship between two bodies.
type AspectType string

const (
	Conjunction AspectType = "conj"
	Opposition  AspectType = "opp"
	Trine       AspectType = "trine"
	Square      AspectType = "square"
	Sextile     AspectType = "sextile"
)

// Data is a resolved chart as produced by the ephemeris collaborator.
// It is read-only to everything in this module.
type Data struct {
	JulianDay float64   `json:"julianDay"`
	Planets   []Planet  `json:"planets" validate:"dive"`
	Houses    []float64 `json:"houses,omitempty" validate:"omitempty,len=12,dive,gte=0,lt=360"`
	Aspects   []Aspect  `json:"aspects" validate:"dive"`
}

// Planet is one body position. Speed is signed daily motion in degrees.
type Planet struct {
	Name   string  `json:"name" validate:"required"`
	Lon    float64 `json:"lon" validate:"gte=0,lt=360"`
	LatEcl float64 `json:"latEcl"`
	Speed  float64 `json:"speed"`
}

// Retrograde reports whether the body is in apparent backward motion.
func (p Planet) Retrograde() bool {
	return p.Speed < 0
}

// Aspect links two bodies by name.
type Aspect struct {
	A     string     `json:"a" validate:"required"`
	B     string     `json:"b" validate:"required"`
	Angle float64    `json:"angle"`
	Orb   float64    `json:"orb"`
	Type  AspectType `json:"type" validate:"oneof=conj opp trine square sextile"`
}

// Planet returns the first body with the given name.
func (d *Data) Planet(name string) (Planet, bool) {
	if d == nil {
		return Planet{}, false
	}
	for _, p := range d.Planets {
		if p.Name == name {
			return p, true
		}
	}
	return Planet{}, false
}

package mapper

import "sort"

// Genre holds the fixed musical traits of one genre.
type Genre struct {
	Name     string   `json:"name"`
	MinBPM   float64  `json:"minBpm"`
	MaxBPM   float64  `json:"maxBpm"`
	Scale    []int    `json:"scale"` // semitone offsets from the root, ascending
	Adjacent []string `json:"adjacent"`
}

// Genres maps genre names to their traits. Adjacent lists the genres a
// client may offer as a smooth alternative; edges are symmetric.
var Genres = map[string]*Genre{
	"ambient": {
		Name:     "ambient",
		MinBPM:   60,
		MaxBPM:   90,
		Scale:    []int{0, 2, 4, 7, 9}, // major pentatonic
		Adjacent: []string{"lofi", "classical"},
	},
	"lofi": {
		Name:     "lofi",
		MinBPM:   70,
		MaxBPM:   95,
		Scale:    []int{0, 2, 3, 5, 7, 9, 10}, // dorian
		Adjacent: []string{"ambient", "synthwave"},
	},
	"classical": {
		Name:     "classical",
		MinBPM:   72,
		MaxBPM:   108,
		Scale:    []int{0, 2, 4, 5, 7, 9, 11}, // major
		Adjacent: []string{"ambient", "cinematic"},
	},
	"cinematic": {
		Name:     "cinematic",
		MinBPM:   80,
		MaxBPM:   115,
		Scale:    []int{0, 2, 3, 5, 7, 8, 11}, // harmonic minor
		Adjacent: []string{"classical", "synthwave"},
	},
	"synthwave": {
		Name:     "synthwave",
		MinBPM:   95,
		MaxBPM:   118,
		Scale:    []int{0, 3, 5, 7, 10}, // minor pentatonic
		Adjacent: []string{"lofi", "cinematic", "techno"},
	},
	"techno": {
		Name:     "techno",
		MinBPM:   120,
		MaxBPM:   140,
		Scale:    []int{0, 2, 3, 5, 7, 8, 10}, // natural minor
		Adjacent: []string{"synthwave"},
	},
}

const (
	defaultMinBPM = 80
	defaultMaxBPM = 120
)

// defaultScale is the whole-tone scale used for unknown genres.
var defaultScale = []int{0, 2, 4, 6, 8, 10}

// GenreNames returns all genre names in sorted order.
func GenreNames() []string {
	names := make([]string, 0, len(Genres))
	for name := range Genres {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsValidGenre checks if a genre exists in the table.
func IsValidGenre(name string) bool {
	_, ok := Genres[name]
	return ok
}

func tempoWindow(genre string) (float64, float64) {
	if g, ok := Genres[genre]; ok {
		return g.MinBPM, g.MaxBPM
	}
	return defaultMinBPM, defaultMaxBPM
}

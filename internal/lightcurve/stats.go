package lightcurve

import "math"

// Summary holds basic statistics over a deviation array, ignoring NaN bins.
type Summary struct {
	Points int     `json:"points"`  // bins with a valid value
	Empty  int     `json:"empty"`   // bins holding the NaN marker
	Mean   float64 `json:"mean"`    // mean deviation (%)
	Std    float64 `json:"std"`     // standard deviation (%)
	Min    float64 `json:"min"`     // most negative deviation (%)
	Max    float64 `json:"max"`     // most positive deviation (%)
}

// Summarize computes NaN-aware statistics for a deviation array.
// An array with no valid values yields a zero Summary with Empty set.
func Summarize(devs []float64) Summary {
	s := Summary{}
	var sum float64
	for _, v := range devs {
		if math.IsNaN(v) {
			s.Empty++
			continue
		}
		if s.Points == 0 || v < s.Min {
			s.Min = v
		}
		if s.Points == 0 || v > s.Max {
			s.Max = v
		}
		s.Points++
		sum += v
	}
	if s.Points == 0 {
		return s
	}
	s.Mean = sum / float64(s.Points)

	var sq float64
	for _, v := range devs {
		if math.IsNaN(v) {
			continue
		}
		d := v - s.Mean
		sq += d * d
	}
	s.Std = math.Sqrt(sq / float64(s.Points))
	return s
}

package lightcurve

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// DefaultBinSize is the time-bin width in days used when Options.BinSize is 0.
const DefaultBinSize = 0.5

// Cleaning constants for the transform stages.
const (
	// outlierSigma is the clipping threshold: samples further than this many
	// standard deviations from the median flux are dropped.
	outlierSigma = 5.0

	// flattenWindowDays is the width of the moving-median window used to
	// estimate the long-term trend before normalization.
	flattenWindowDays = 2.0
)

// ErrEmptyWindow is returned by Convert when no samples fall inside the
// resolved [start, end] window.
var ErrEmptyWindow = errors.New("lightcurve: no samples in requested window")

// Options control the Convert transform.
// Nil pointer fields mean "use the curve's own extent".
type Options struct {
	// StartDay is the requested window start in days. Values before the
	// curve's first sample are clamped to the curve start.
	StartDay *float64

	// DurationDays is the requested window length. The window end is clamped
	// to the curve's last sample.
	DurationDays *float64

	// BinSize is the averaging bin width in days. 0 means DefaultBinSize.
	BinSize float64
}

// Convert turns a raw curve into a binned percentage-deviation array.
//
// Stages, in order: window selection, invalid-sample removal, sigma clipping,
// moving-median detrend, normalization to a median baseline of 1.0, and
// fixed-width time binning. Each bin's value is (meanFlux - 1.0) * 100; a bin
// with no surviving samples holds NaN.
func Convert(c *Curve, opts Options) ([]float64, error) {
	binSize := opts.BinSize
	if binSize <= 0 {
		binSize = DefaultBinSize
	}

	start, end, err := resolveWindow(c, opts)
	if err != nil {
		return nil, err
	}

	times, flux := selectWindow(c, start, end)
	if len(times) == 0 {
		return nil, ErrEmptyWindow
	}

	times, flux = dropInvalid(times, flux)
	times, flux = clipOutliers(times, flux)
	if len(times) == 0 {
		return nil, fmt.Errorf("lightcurve: window [%g, %g]: no valid samples after cleaning", start, end)
	}

	flux = flatten(times, flux)
	flux = normalize(flux)

	return binDeviation(times, flux, start, end, binSize), nil
}

// resolveWindow computes the effective [start, end] range for opts.
func resolveWindow(c *Curve, opts Options) (start, end float64, err error) {
	if c.Len() == 0 {
		return 0, 0, ErrEmptyWindow
	}
	tmin, tmax := c.TimeRange()

	start = tmin
	if opts.StartDay != nil && *opts.StartDay > tmin {
		start = *opts.StartDay
	}

	end = tmax
	if opts.DurationDays != nil {
		end = start + *opts.DurationDays
		if end > tmax {
			end = tmax
		}
	}

	if start > end {
		return 0, 0, ErrEmptyWindow
	}
	return start, end, nil
}

func selectWindow(c *Curve, start, end float64) (times, flux []float64) {
	for i, t := range c.Time {
		if t >= start && t <= end {
			times = append(times, t)
			flux = append(flux, c.Flux[i])
		}
	}
	return times, flux
}

// dropInvalid removes samples whose time or flux is NaN or infinite.
func dropInvalid(times, flux []float64) ([]float64, []float64) {
	outT := times[:0]
	outF := flux[:0]
	for i := range times {
		if isFinite(times[i]) && isFinite(flux[i]) {
			outT = append(outT, times[i])
			outF = append(outF, flux[i])
		}
	}
	return outT, outF
}

// clipOutliers drops samples more than outlierSigma standard deviations from
// the median flux. A zero spread leaves the input unchanged.
func clipOutliers(times, flux []float64) ([]float64, []float64) {
	if len(flux) == 0 {
		return times, flux
	}
	med := median(flux)
	sd := stddev(flux)
	if sd == 0 {
		return times, flux
	}
	outT := times[:0]
	outF := flux[:0]
	for i := range flux {
		if math.Abs(flux[i]-med) <= outlierSigma*sd {
			outT = append(outT, times[i])
			outF = append(outF, flux[i])
		}
	}
	return outT, outF
}

// flatten removes the long-term trend by dividing each sample by the median
// flux within a flattenWindowDays-wide window centred on its time. Samples
// whose local trend is zero are left untouched.
func flatten(times, flux []float64) []float64 {
	out := make([]float64, len(flux))
	half := flattenWindowDays / 2
	lo := 0
	for i := range times {
		// Advance the left edge; times are in file order, typically sorted.
		for lo < i && times[lo] < times[i]-half {
			lo++
		}
		hi := i
		for hi+1 < len(times) && times[hi+1] <= times[i]+half {
			hi++
		}
		trend := median(flux[lo : hi+1])
		if trend == 0 {
			out[i] = flux[i]
			continue
		}
		out[i] = flux[i] / trend
	}
	return out
}

// normalize scales flux so its median is 1.0.
func normalize(flux []float64) []float64 {
	med := median(flux)
	if med == 0 {
		return flux
	}
	out := make([]float64, len(flux))
	for i, f := range flux {
		out[i] = f / med
	}
	return out
}

// binDeviation averages samples into fixed-width bins over [start, end] and
// converts each bin mean to a percentage deviation from 1.0.
func binDeviation(times, flux []float64, start, end, binSize float64) []float64 {
	nbins := int(math.Ceil((end - start) / binSize))
	if nbins < 1 {
		nbins = 1
	}
	sums := make([]float64, nbins)
	counts := make([]int, nbins)
	for i, t := range times {
		idx := int((t - start) / binSize)
		if idx >= nbins {
			idx = nbins - 1
		}
		if idx < 0 {
			idx = 0
		}
		sums[idx] += flux[i]
		counts[idx]++
	}

	out := make([]float64, nbins)
	for i := range out {
		if counts[i] == 0 {
			out[i] = math.NaN()
			continue
		}
		mean := sums[i] / float64(counts[i])
		out[i] = (mean - 1.0) * 100
	}
	return out
}

// median returns the median of vs. vs is not modified.
func median(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), vs...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// stddev returns the population standard deviation of vs.
func stddev(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	mean := sum / float64(len(vs))
	var sq float64
	for _, v := range vs {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(vs)))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

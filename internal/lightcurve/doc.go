// Package lightcurve converts raw light-curve time series into percentage
// flux-deviation arrays.
//
// curve.go parses the archive's CSV rendition of a light curve into a Curve
// (parallel time/flux samples, time in days).
//
// convert.go provides the pure Convert(Curve, Options) transform: window
// selection, invalid-sample removal, sigma clipping, moving-median detrend,
// normalization to a baseline of 1.0, and fixed-width time binning. The output
// is (binFlux - 1.0) * 100 per bin; bins without valid samples hold NaN.
// Convert is deterministic — identical input and options yield identical
// output.
package lightcurve

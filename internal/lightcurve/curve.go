package lightcurve

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Curve holds one light curve as parallel sample slices.
// Time is in days (mission-relative), Flux in the instrument's native units.
// Samples are kept in file order; Time is expected to be non-decreasing but
// this is not enforced.
type Curve struct {
	Time []float64
	Flux []float64
}

// Len returns the number of samples.
func (c *Curve) Len() int { return len(c.Time) }

// TimeRange returns the earliest and latest sample times.
// Both are 0 if the curve is empty.
func (c *Curve) TimeRange() (min, max float64) {
	if len(c.Time) == 0 {
		return 0, 0
	}
	min, max = c.Time[0], c.Time[0]
	for _, t := range c.Time[1:] {
		if t < min {
			min = t
		}
		if t > max {
			max = t
		}
	}
	return min, max
}

// ReadCSV parses a light curve from the archive's CSV format: one
// "time,flux" pair per line. A header line and blank lines are skipped;
// the literal "nan" (any case) is accepted in either column and becomes NaN.
func ReadCSV(r io.Reader) (*Curve, error) {
	c := &Curve{}
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		tStr, fStr, ok := strings.Cut(text, ",")
		if !ok {
			return nil, fmt.Errorf("lightcurve: line %d: want \"time,flux\", got %q", line, text)
		}
		t, err := parseValue(tStr)
		if err != nil {
			if line == 1 {
				// Header row.
				continue
			}
			return nil, fmt.Errorf("lightcurve: line %d: time: %w", line, err)
		}
		f, err := parseValue(fStr)
		if err != nil {
			return nil, fmt.Errorf("lightcurve: line %d: flux: %w", line, err)
		}
		c.Time = append(c.Time, t)
		c.Flux = append(c.Flux, f)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("lightcurve: read: %w", err)
	}
	return c, nil
}

// ReadFile reads and parses the light-curve CSV file at path.
func ReadFile(path string) (*Curve, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("lightcurve: open %q: %w", path, err)
	}
	defer f.Close()
	return ReadCSV(f)
}

func parseValue(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "nan") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

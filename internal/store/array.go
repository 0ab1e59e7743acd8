package store

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// writeArray writes one value per line. NaN — the missing-value marker for
// bins without valid samples — is written as the literal "nan".
func writeArray(path string, array []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("store: create array file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, v := range array {
		if math.IsNaN(v) {
			w.WriteString("nan\n") //nolint:errcheck // checked on Flush
			continue
		}
		w.WriteString(strconv.FormatFloat(v, 'g', -1, 64)) //nolint:errcheck
		w.WriteByte('\n')                                  //nolint:errcheck
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("store: write array: %w", err)
	}
	return nil
}

// readArray reads a newline-delimited float array, accepting "nan" (any case)
// as the missing-value marker. Blank lines are skipped.
func readArray(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("store: open array file: %w", err)
	}
	defer f.Close()

	var out []float64
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		if strings.EqualFold(text, "nan") {
			out = append(out, math.NaN())
			continue
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("store: %s line %d: %w", path, line, err)
		}
		out = append(out, v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("store: read array: %w", err)
	}
	return out, nil
}

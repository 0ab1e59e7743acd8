package notify

import (
	"strconv"
	"strings"

	"github.com/dipscan/dipscan/internal/batch"
)

// evalCondition evaluates a rule condition string against a batch result.
//
// Supported expressions (field operator value):
//
//	skipped_pct > 50
//	processed == 0
//	skipped >= 3
//	total < 1
//	status == all_skipped
//
// Returns (fires bool, triggering value float64).
// Returns (false, 0) if the expression cannot be parsed or the field is
// unknown.
func evalCondition(cond string, res *batch.Result) (bool, float64) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false, 0
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	if field == "status" {
		if op == "==" {
			return string(res.Status) == rhs, 0
		}
		return false, 0
	}

	v, ok := numericField(field, res)
	if !ok {
		return false, 0
	}
	threshold, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return false, 0
	}
	return compareFloat(v, op, threshold), v
}

// numericField maps a field name to its value in the result.
func numericField(field string, res *batch.Result) (float64, bool) {
	switch field {
	case "skipped_pct":
		return res.SkippedPct(), true
	case "processed":
		return float64(res.Meta.ProcessedFiles), true
	case "skipped":
		return float64(res.Meta.SkippedFiles), true
	case "total":
		return float64(res.Meta.TotalFiles), true
	default:
		return 0, false
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	default:
		return false
	}
}

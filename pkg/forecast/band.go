package forecast

import (
	"fmt"
	"strconv"
	"strings"
)

// Band names the quantile levels drawn around each prediction.
type Band struct {
	Low  float64
	High float64
}

// DefaultBand is the 10th to 90th percentile band.
var DefaultBand = Band{Low: 0.1, High: 0.9}

// Levels returns the quantile levels a model should report for the band,
// including the median.
func (b Band) Levels() []float64 {
	return []float64{b.Low, 0.5, b.High}
}

func (b Band) String() string {
	return FormatLevel(b.Low) + "," + FormatLevel(b.High)
}

// ParseBand parses "low,high" where each side is a level accepted by
// ParseLevel, e.g. "p10,p90" or "0.25,0.75".
func ParseBand(s string) (Band, error) {
	lo, hi, ok := strings.Cut(s, ",")
	if !ok {
		return Band{}, fmt.Errorf("invalid band %q (want low,high)", s)
	}
	low, err := ParseLevel(lo)
	if err != nil {
		return Band{}, err
	}
	high, err := ParseLevel(hi)
	if err != nil {
		return Band{}, err
	}
	if low >= high {
		return Band{}, fmt.Errorf("band %q: low level must be below high level", s)
	}
	return Band{Low: low, High: high}, nil
}

// ParseLevel parses a quantile level from either p-notation (p10, p90)
// or decimal notation (0.10, 0.90).
//
// Examples:
//   - "p10" → 0.10
//   - "P90" → 0.90
//   - "0.25" → 0.25
func ParseLevel(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty quantile level")
	}

	if strings.HasPrefix(strings.ToLower(s), "p") {
		percentile, err := strconv.ParseFloat(s[1:], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid p-notation %q: %w", s, err)
		}
		if percentile <= 0 || percentile >= 100 {
			return 0, fmt.Errorf("percentile %v out of range (0, 100)", percentile)
		}
		return percentile / 100.0, nil
	}

	q, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid quantile %q: %w", s, err)
	}
	if q <= 0 || q >= 1 {
		return 0, fmt.Errorf("quantile %v out of range (0, 1)", q)
	}
	return q, nil
}

// FormatLevel formats a quantile level as p-notation.
func FormatLevel(q float64) string {
	percentile := q * 100
	if percentile == float64(int(percentile)) {
		return fmt.Sprintf("p%d", int(percentile))
	}
	return fmt.Sprintf("p%.1f", percentile)
}

// Package occupancy derives a per-frame person count from detector output
// and defines the Sample that every storage backend persists.
package occupancy

import (
	"errors"
	"time"

	"github.com/HatiCode/linecast/pkg/detect"
)

// PersonClass is the detector label counted as occupancy.
const PersonClass = "person"

// Sample is one occupancy observation.
type Sample struct {
	Count     int
	Timestamp time.Time
}

// NewSample returns a Sample truncated to whole seconds, the resolution
// used by every storage encoding.
func NewSample(count int, ts time.Time) Sample {
	return Sample{Count: count, Timestamp: ts.Truncate(time.Second)}
}

// MondayWeekday converts Go's Sunday-based weekday to 0=Monday … 6=Sunday,
// the numbering used by the training log and the forecast features.
func MondayWeekday(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// Validate reports whether s can be stored: the count is non-negative and
// the timestamp is set.
func (s Sample) Validate() error {
	if s.Count < 0 {
		return errors.New("occupancy count cannot be negative")
	}
	if s.Timestamp.IsZero() {
		return errors.New("occupancy timestamp required")
	}
	return nil
}

// CountPersons returns the number of detections labelled "person" whose
// confidence is at least minConfidence. Other classes never contribute.
func CountPersons(detections []detect.Detection, minConfidence float64) int {
	count := 0
	for _, d := range detections {
		if d.Class == PersonClass && d.Confidence >= minConfidence {
			count++
		}
	}
	return count
}

// Estimator counts persons at a fixed confidence threshold.
type Estimator struct {
	MinConfidence float64
}

// Estimate returns the occupancy count for one frame's detections.
func (e Estimator) Estimate(detections []detect.Detection) int {
	return CountPersons(detections, e.MinConfidence)
}

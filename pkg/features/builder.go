// Package features turns occupancy samples and prediction times into the
// calendar feature rows the regression models consume.
package features

import (
	"time"

	"github.com/HatiCode/linecast/pkg/models"
	"github.com/HatiCode/linecast/pkg/occupancy"
)

// Column names.
const (
	Weekday     = "weekday" // 0=Monday
	Hour        = "hour"
	Minute      = "minute"
	MinuteOfDay = "minute_of_day"
)

// Columns is the input column order handed to the forest. MinuteOfDay
// comes first so it wins ties against the hour and minute it is built from.
var Columns = []string{MinuteOfDay, Weekday, Hour, Minute}

// Builder derives features in a fixed timezone, so the training rows and
// the prediction grid agree no matter where the process runs.
type Builder struct {
	Location *time.Location
}

// NewBuilder returns a Builder for loc (UTC when nil).
func NewBuilder(loc *time.Location) Builder {
	if loc == nil {
		loc = time.UTC
	}
	return Builder{Location: loc}
}

func (b Builder) loc() *time.Location {
	if b.Location == nil {
		return time.UTC
	}
	return b.Location
}

// Row returns the calendar features of t.
func (b Builder) Row(t time.Time) map[string]float64 {
	lt := t.In(b.loc())
	h, m := lt.Hour(), lt.Minute()
	return map[string]float64{
		Weekday:     float64(occupancy.MondayWeekday(lt.Weekday())),
		Hour:        float64(h),
		Minute:      float64(m),
		MinuteOfDay: float64(h*60 + m),
	}
}

// Training builds one row per sample with the target column set.
func (b Builder) Training(samples []occupancy.Sample) models.FeatureFrame {
	rows := make([]map[string]float64, 0, len(samples))
	for _, s := range samples {
		row := b.Row(s.Timestamp)
		row[models.Target] = float64(s.Count)
		rows = append(rows, row)
	}
	return models.FeatureFrame{Rows: rows}
}

// Grid builds one row per prediction time.
func (b Builder) Grid(times []time.Time) models.FeatureFrame {
	rows := make([]map[string]float64, 0, len(times))
	for _, t := range times {
		rows = append(rows, b.Row(t))
	}
	return models.FeatureFrame{Rows: rows}
}

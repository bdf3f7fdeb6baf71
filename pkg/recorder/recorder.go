// Package recorder appends occupancy samples to a local CSV training log,
// restricted to a fixed daily clock window.
//
// The window is an inclusive range on the HHMM encoding of the local wall
// clock (hour*100 + minute); the default 1130 to 1330 covers lunch service.
// Outside the window RecordIfInWindow does nothing. The header row is
// written once, when the file is first created; existing rows are never
// rewritten.
package recorder

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/HatiCode/linecast/pkg/occupancy"
)

// Default window bounds and file name.
const (
	DefaultWindowStart = 1130
	DefaultWindowEnd   = 1330
	DefaultPath        = "ai_training_data.csv"
)

// Header is the fixed column layout of the training log.
var Header = []string{"timestamp", "year", "month", "day", "weekday", "hour", "minute", "people"}

// Record is one denormalized training row.
type Record struct {
	Timestamp int64
	Year      int
	Month     int
	Day       int
	Weekday   int // 0=Monday
	Hour      int
	Minute    int
	People    int
}

// Fields returns the CSV columns in Header order.
func (r Record) Fields() []string {
	return []string{
		strconv.FormatInt(r.Timestamp, 10),
		strconv.Itoa(r.Year),
		strconv.Itoa(r.Month),
		strconv.Itoa(r.Day),
		strconv.Itoa(r.Weekday),
		strconv.Itoa(r.Hour),
		strconv.Itoa(r.Minute),
		strconv.Itoa(r.People),
	}
}

// NewRecord derives a training row from s using loc for the clock fields.
func NewRecord(s occupancy.Sample, loc *time.Location) Record {
	t := s.Timestamp.In(loc)
	return Record{
		Timestamp: s.Timestamp.Unix(),
		Year:      t.Year(),
		Month:     int(t.Month()),
		Day:       t.Day(),
		Weekday:   occupancy.MondayWeekday(t.Weekday()),
		Hour:      t.Hour(),
		Minute:    t.Minute(),
		People:    s.Count,
	}
}

// Window is an inclusive HHMM clock range.
type Window struct {
	Start int
	End   int
}

// DefaultWindow returns the 11:30 to 13:30 lunch window.
func DefaultWindow() Window {
	return Window{Start: DefaultWindowStart, End: DefaultWindowEnd}
}

// Validate checks both bounds are valid HHMM values and Start <= End.
func (w Window) Validate() error {
	for _, v := range []int{w.Start, w.End} {
		if v < 0 || v > 2359 || v%100 > 59 {
			return fmt.Errorf("invalid HHMM clock value %04d", v)
		}
	}
	if w.Start > w.End {
		return fmt.Errorf("window start %04d is after end %04d", w.Start, w.End)
	}
	return nil
}

// Contains reports whether hour:minute falls inside the window.
func (w Window) Contains(hour, minute int) bool {
	clock := hour*100 + minute
	return clock >= w.Start && clock <= w.End
}

// InWindow applies the default lunch window.
func InWindow(hour, minute int) bool {
	return DefaultWindow().Contains(hour, minute)
}

// Recorder appends training rows to a CSV file.
type Recorder struct {
	path     string
	window   Window
	location *time.Location
	logger   *slog.Logger
	onResult func(outcome string)
	open     func(path string) (io.WriteCloser, error)

	mu sync.Mutex
}

func openAppend(path string) (io.WriteCloser, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithWindow overrides the default clock window.
func WithWindow(w Window) Option {
	return func(r *Recorder) { r.window = w }
}

// WithLocation sets the timezone used for the clock fields and window check.
func WithLocation(loc *time.Location) Option {
	return func(r *Recorder) {
		if loc != nil {
			r.location = loc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithResultHook registers a callback invoked with "written", "skipped" or
// "error" after each RecordIfInWindow call.
func WithResultHook(fn func(outcome string)) Option {
	return func(r *Recorder) { r.onResult = fn }
}

// New creates a Recorder writing to path (DefaultPath when empty).
func New(path string, opts ...Option) *Recorder {
	if path == "" {
		path = DefaultPath
	}
	r := &Recorder{
		path:     path,
		window:   DefaultWindow(),
		location: time.Local,
		logger:   slog.Default(),
		open:     openAppend,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Path returns the log file path.
func (r *Recorder) Path() string { return r.path }

// RecordIfInWindow appends s when its local clock time is inside the window.
// Errors are logged and the row is dropped.
func (r *Recorder) RecordIfInWindow(s occupancy.Sample) {
	written, err := r.Record(s)
	switch {
	case err != nil:
		r.logger.Error("failed to append training record", "path", r.path, "error", err)
		r.report("error")
	case written:
		t := s.Timestamp.In(r.location)
		r.logger.Info("recorded training row", "time", t.Format("15:04"), "people", s.Count)
		r.report("written")
	default:
		r.report("skipped")
	}
}

func (r *Recorder) report(outcome string) {
	if r.onResult != nil {
		r.onResult(outcome)
	}
}

// Record appends s if it falls inside the window and reports whether a row
// was written. A row only counts as written once the file closed cleanly.
func (r *Recorder) Record(s occupancy.Sample) (written bool, err error) {
	rec := NewRecord(s, r.location)
	if !r.window.Contains(rec.Hour, rec.Minute) {
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, statErr := os.Stat(r.path)
	exists := statErr == nil
	if statErr != nil && !errors.Is(statErr, fs.ErrNotExist) {
		return false, fmt.Errorf("stat training file: %w", statErr)
	}

	f, err := r.open(r.path)
	if err != nil {
		return false, fmt.Errorf("open training file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			written, err = false, fmt.Errorf("close training file: %w", cerr)
		}
	}()

	w := csv.NewWriter(f)
	if !exists {
		if err := w.Write(Header); err != nil {
			return false, fmt.Errorf("write header: %w", err)
		}
	}
	if err := w.Write(rec.Fields()); err != nil {
		return false, fmt.Errorf("write row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return false, fmt.Errorf("flush training file: %w", err)
	}

	return true, nil
}

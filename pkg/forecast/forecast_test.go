package forecast

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultGrid_Times(t *testing.T) {
	jst := time.FixedZone("JST", 9*3600)
	day := time.Date(2026, 10, 14, 8, 17, 0, 0, jst)

	times := DefaultGrid().Times(day)
	if len(times) != 19 {
		t.Fatalf("len(times) = %d, want 19", len(times))
	}
	if got := times[0].Format("2006-01-02 15:04"); got != "2026-10-14 11:00" {
		t.Errorf("first = %s", got)
	}
	if got := times[18].Format("15:04"); got != "14:00" {
		t.Errorf("last = %s, want 14:00", got)
	}
	if times[0].Location() != jst {
		t.Errorf("location = %v, want JST", times[0].Location())
	}
}

func TestGrid_Validate(t *testing.T) {
	tests := []struct {
		name    string
		g       Grid
		wantErr bool
	}{
		{name: "default", g: DefaultGrid()},
		{name: "zero step", g: Grid{Start: time.Hour, End: 2 * time.Hour}, wantErr: true},
		{name: "reversed", g: Grid{Start: 2 * time.Hour, End: time.Hour, Step: time.Minute}, wantErr: true},
		{name: "past midnight", g: Grid{Start: time.Hour, End: 24 * time.Hour, Step: time.Hour}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.g.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTomorrow(t *testing.T) {
	jst := time.FixedZone("JST", 9*3600)
	// 20:00 UTC Tuesday is already Wednesday in Tokyo.
	now := time.Date(2026, 10, 13, 20, 0, 0, 0, time.UTC)
	if got := Tomorrow(now, jst).Weekday(); got != time.Thursday {
		t.Errorf("Tomorrow weekday = %v, want Thursday", got)
	}
}

func pts(counts ...float64) []Point {
	base := time.Date(2026, 10, 14, 11, 0, 0, 0, time.UTC)
	out := make([]Point, len(counts))
	for i, c := range counts {
		out[i] = Point{Time: base.Add(time.Duration(i) * 10 * time.Minute), Count: c, Low: c, High: c}
	}
	return out
}

func TestFindPeak(t *testing.T) {
	tests := []struct {
		name      string
		points    []Point
		wantClock string
		wantCount float64
	}{
		{name: "single max", points: pts(1, 5, 3), wantClock: "11:10", wantCount: 5},
		{name: "ties keep first", points: pts(2, 7, 7, 1), wantClock: "11:10", wantCount: 7},
		{name: "all zero keeps first point", points: pts(0, 0, 0), wantClock: "11:00", wantCount: 0},
		{name: "max at end", points: pts(1, 2, 3.5), wantClock: "11:20", wantCount: 3.5},
		{name: "equal after rounding keeps first", points: pts(12.96, 12.99), wantClock: "11:00", wantCount: 12.96},
		{name: "later point wins when it prints higher", points: pts(12.94, 12.96), wantClock: "11:10", wantCount: 12.96},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			peak, ok := FindPeak(tt.points)
			if !ok {
				t.Fatal("FindPeak() ok = false")
			}
			if peak.Clock() != tt.wantClock || peak.Count != tt.wantCount {
				t.Errorf("peak = %s %.2f, want %s %.2f", peak.Clock(), peak.Count, tt.wantClock, tt.wantCount)
			}
		})
	}

	if _, ok := FindPeak(nil); ok {
		t.Error("FindPeak(nil) ok = true")
	}
}

func TestReport_WriteText(t *testing.T) {
	rep, err := NewReport("forest", time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC), pts(3.04, 12.96, 8))
	if err != nil {
		t.Fatalf("NewReport() error = %v", err)
	}

	var buf bytes.Buffer
	if err := rep.WriteText(&buf); err != nil {
		t.Fatalf("WriteText() error = %v", err)
	}

	want := "--- 明日の混雑予報 ---\n" +
		"11:00 -> 約 3.0 人\n" +
		"11:10 -> 約 13.0 人\n" +
		"11:20 -> 約 8.0 人\n" +
		"-------------------------\n" +
		"明日のピーク予想: 11:10 頃（約 13 人）\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestNewReport_Empty(t *testing.T) {
	if _, err := NewReport("forest", time.Now(), nil); err == nil {
		t.Error("expected error for empty points")
	}
}

func TestReport_PeakMatchesPrintedCurve(t *testing.T) {
	base := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	points := []Point{
		{Time: base, Count: 12.96},
		{Time: base.Add(10 * time.Minute), Count: 12.99},
	}
	rep, err := NewReport("forest", base, points)
	if err != nil {
		t.Fatalf("NewReport() error = %v", err)
	}

	var buf bytes.Buffer
	if err := rep.WriteText(&buf); err != nil {
		t.Fatal(err)
	}
	want := "--- 明日の混雑予報 ---\n" +
		"12:00 -> 約 13.0 人\n" +
		"12:10 -> 約 13.0 人\n" +
		"-------------------------\n" +
		"明日のピーク予想: 12:00 頃（約 13 人）\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestDisplayed(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{12.96, 13},
		{12.94, 12.9},
		{0.04, 0},
		{7, 7},
	}
	for _, tt := range tests {
		if got := Displayed(tt.in); got != tt.want {
			t.Errorf("Displayed(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// Package daterange turns ambiguous caller input into concrete date windows
// for time-bounded feed queries. Dates are UTC calendar dates in YYYY-MM-DD
// form so they survive a query-string round trip unchanged.
//
// Nothing in this package returns an error or panics: invalid input degrades
// to a documented default (preset fallback, DefaultWindow, or a false ok).
package daterange

import "time"

// Window is a named relative date range ("30" = the last 30 days), or the
// Custom sentinel meaning the caller supplies explicit bounds.
type Window string

const (
	Window7      Window = "7"
	Window30     Window = "30"
	Window90     Window = "90"
	Window365    Window = "365"
	WindowCustom Window = "custom"
)

// DefaultWindow is used when the caller supplies neither a valid explicit
// range nor a valid window.
const DefaultWindow = Window30

// customLookbackDays is the lookback used when WindowCustom has to be
// resolved without explicit dates.
const customLookbackDays = 90

const isoLayout = "2006-01-02"

var presetDays = map[Window]int{
	Window7:   7,
	Window30:  30,
	Window90:  90,
	Window365: 365,
}

// Windows lists the accepted window values in display order.
func Windows() []Window {
	return []Window{Window7, Window30, Window90, Window365, WindowCustom}
}

// Valid reports whether w is a preset or the custom sentinel.
func (w Window) Valid() bool {
	return w.IsPreset() || w == WindowCustom
}

// IsPreset reports whether w is one of the relative presets.
func (w Window) IsPreset() bool {
	_, ok := presetDays[w]
	return ok
}

// Days returns the lookback length of w. Custom and unknown windows use the
// fixed custom lookback.
func (w Window) Days() int {
	if d, ok := presetDays[w]; ok {
		return d
	}
	return customLookbackDays
}

// Range is a concrete [Start, End] pair of YYYY-MM-DD dates.
type Range struct {
	Start  string `json:"start"`
	End    string `json:"end"`
	Window Window `json:"window,omitempty"`
}

// IsValidISODate reports whether s is a strict YYYY-MM-DD calendar date.
// "2024-02-30" is rejected: the value must round-trip through a UTC date
// unchanged.
func IsValidISODate(s string) bool {
	if len(s) != len(isoLayout) {
		return false
	}
	t, err := time.ParseInLocation(isoLayout, s, time.UTC)
	if err != nil {
		return false
	}
	return t.Format(isoLayout) == s
}

// normalizeDate accepts a YYYY-MM-DD date or an RFC 3339 timestamp and
// returns the UTC calendar date.
func normalizeDate(s string) (string, bool) {
	if IsValidISODate(s) {
		return s, true
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return "", false
	}
	return t.UTC().Format(isoLayout), true
}

func parseDate(s string) (time.Time, bool) {
	d, ok := normalizeDate(s)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(isoLayout, d, time.UTC)
	return t, err == nil
}

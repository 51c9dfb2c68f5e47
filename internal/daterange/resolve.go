package daterange

import "time"

// Resolver resolves filters against a clock. The zero value uses time.Now
// and DefaultWindow.
type Resolver struct {
	// Now returns the current instant; its local calendar date is "today".
	Now func() time.Time
	// DefaultWindow replaces an absent or invalid window. Empty means
	// the package DefaultWindow.
	DefaultWindow Window
}

var defaultResolver Resolver

// WindowRange resolves w against the local clock. See Resolver.WindowRange.
func WindowRange(w Window) Range { return defaultResolver.WindowRange(w) }

// Resolve resolves f against the local clock. See Resolver.Resolve.
func Resolve(f Filters) Range { return defaultResolver.Resolve(f) }

// Clamp clamps f against the local clock. See Resolver.Clamp.
func Clamp(f Filters, a Availability) (Filters, bool) { return defaultResolver.Clamp(f, a) }

// today returns the local calendar date as a UTC midnight so that day
// arithmetic is not affected by DST transitions.
func (r Resolver) today() time.Time {
	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (r Resolver) defaultWindow() Window {
	if r.DefaultWindow.Valid() {
		return r.DefaultWindow
	}
	return DefaultWindow
}

// WindowRange returns [today - w.Days(), today]. Custom resolves to the fixed
// 90-day lookback; an unknown window resolves as the default window.
func (r Resolver) WindowRange(w Window) Range {
	if !w.Valid() {
		w = r.defaultWindow()
	}
	end := r.today()
	start := end.AddDate(0, 0, -w.Days())
	return Range{
		Start:  start.Format(isoLayout),
		End:    end.Format(isoLayout),
		Window: w,
	}
}

// Resolve returns the explicit Start/End of f verbatim when both are valid
// dates and Start <= End. Otherwise it falls back to the window of f, or the
// default window. An inverted explicit range is never swapped.
func (r Resolver) Resolve(f Filters) Range {
	if IsValidISODate(f.Start) && IsValidISODate(f.End) && f.Start <= f.End {
		return Range{Start: f.Start, End: f.End, Window: f.Window}
	}
	return r.WindowRange(f.Window)
}

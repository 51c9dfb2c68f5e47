package daterange

// Availability holds the known bounds of data for a subject. Either bound may
// be empty when unknown. Bounds are YYYY-MM-DD dates or RFC 3339 timestamps.
type Availability struct {
	StartAt string `json:"start_at,omitempty"`
	EndAt   string `json:"end_at,omitempty"`
}

// bounds returns the normalized availability dates. ok is false when either
// bound is missing, unparseable, or the bounds are inverted.
func (a Availability) bounds() (start, end string, ok bool) {
	start, okStart := normalizeDate(a.StartAt)
	end, okEnd := normalizeDate(a.EndAt)
	if !okStart || !okEnd || start > end {
		return "", "", false
	}
	return start, end, true
}

// Clamp restricts the range of f to a. It returns false when no update is
// needed: either the bounds of a are unknown, or f already lies inside a and
// no preset window is active.
//
// An active preset window is first resolved to concrete dates; the clamped
// result then carries explicit dates and WindowCustom. If clamping would
// invert the range, both ends reset to the full availability range.
func (r Resolver) Clamp(f Filters, a Availability) (Filters, bool) {
	availStart, availEnd, ok := a.bounds()
	if !ok {
		return f, false
	}

	start, end := f.Start, f.End
	preset := f.Window.IsPreset()
	if preset {
		rng := r.Resolve(f)
		start, end = rng.Start, rng.End
	}
	if !IsValidISODate(start) {
		start = ""
	}
	if !IsValidISODate(end) {
		end = ""
	}

	effStart := availStart
	if start > availStart {
		effStart = start
	}
	effEnd := availEnd
	if end != "" && end < availEnd {
		effEnd = end
	}
	if effStart > effEnd {
		effStart, effEnd = availStart, availEnd
	}

	if !preset && effStart == f.Start && effEnd == f.End {
		return f, false
	}

	out := f.clone()
	out.Start, out.End = effStart, effEnd
	if preset {
		out.Window = WindowCustom
	}
	return out, true
}

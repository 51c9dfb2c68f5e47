package daterange

import (
	"maps"
	"net/url"
)

// Query-string keys understood by ParseFilters.
const (
	KeyStart     = "start"
	KeyEnd       = "end"
	KeyWindow    = "window"
	KeyAccount   = "account"
	KeyCategory  = "category"
	KeyQuery     = "q"
	KeyDirection = "direction"
)

// Filters is the caller-owned filter state of a time-windowed view. Start and
// End are opaque until Resolve validates them. Keys this package does not
// know are kept in Extra and written back unchanged by Values.
type Filters struct {
	Start  string
	End    string
	Window Window

	Account   string
	Category  string
	Query     string
	Direction string

	Extra map[string]string
}

// ParseFilters extracts filter state from a key=value map. A window outside
// the accepted set is dropped; date values are not validated here.
func ParseFilters(query map[string]string) Filters {
	var f Filters
	for k, v := range query {
		switch k {
		case KeyStart:
			f.Start = v
		case KeyEnd:
			f.End = v
		case KeyWindow:
			if w := Window(v); w.Valid() {
				f.Window = w
			}
		case KeyAccount:
			f.Account = v
		case KeyCategory:
			f.Category = v
		case KeyQuery:
			f.Query = v
		case KeyDirection:
			f.Direction = v
		default:
			if f.Extra == nil {
				f.Extra = make(map[string]string)
			}
			f.Extra[k] = v
		}
	}
	return f
}

// ParseQuery is ParseFilters over url.Values, taking the first value of each key.
func ParseQuery(values url.Values) Filters {
	flat := make(map[string]string, len(values))
	for k, vs := range values {
		if len(vs) > 0 {
			flat[k] = vs[0]
		}
	}
	return ParseFilters(flat)
}

// Values serializes f back to a key=value map. Empty fields are omitted.
func (f Filters) Values() map[string]string {
	out := make(map[string]string, len(f.Extra)+7)
	maps.Copy(out, f.Extra)
	set := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	set(KeyStart, f.Start)
	set(KeyEnd, f.End)
	set(KeyWindow, string(f.Window))
	set(KeyAccount, f.Account)
	set(KeyCategory, f.Category)
	set(KeyQuery, f.Query)
	set(KeyDirection, f.Direction)
	return out
}

// Encode returns f as a URL query string with keys in sorted order.
func (f Filters) Encode() string {
	v := url.Values{}
	for k, val := range f.Values() {
		v.Set(k, val)
	}
	return v.Encode()
}

// clone copies f so the result does not share Extra with the input.
func (f Filters) clone() Filters {
	f.Extra = maps.Clone(f.Extra)
	return f
}

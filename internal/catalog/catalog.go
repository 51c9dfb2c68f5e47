// Package catalog declares the explorer's views in CUE. A view fixes, per
// call site, the feed it reads, the page size, the accumulate target, the
// kinds it displays, and how far locate may look for a target entry.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed schema.cue
var schemaSource []byte

//go:embed views.cue
var builtinSource []byte

// Locate is the locate budget of a view.
type Locate struct {
	MaxExtraAttempts int    `json:"max_extra_attempts"`
	Match            string `json:"match"`
}

// View is one entry of the catalog.
type View struct {
	Name         string   `json:"name"`
	Feed         string   `json:"feed"`
	PageSize     int      `json:"page_size"`
	Target       int      `json:"target"`
	IncludeKinds []string `json:"include_kinds"`
	ExcludeKinds []string `json:"exclude_kinds"`
	Locate       Locate   `json:"locate"`
}

// Allows reports whether entries of kind are displayed by v.
func (v View) Allows(kind string) bool {
	if len(v.IncludeKinds) > 0 && !slices.Contains(v.IncludeKinds, kind) {
		return false
	}
	return !slices.Contains(v.ExcludeKinds, kind)
}

// Catalog is an immutable set of views keyed by name.
type Catalog struct {
	views map[string]View
}

// Default returns the built-in catalog.
func Default() (*Catalog, error) {
	return Parse("views.cue", builtinSource)
}

// Load returns the built-in catalog when path is empty, otherwise the views
// declared in the CUE file at path, which replace the built-in ones.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading views: %w", err)
	}
	return Parse(filepath.Base(path), src)
}

// Parse unifies src with the view schema and decodes the result. Every view
// must be concrete once defaults are applied.
func Parse(filename string, src []byte) (*Catalog, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compiling view schema: %w", err)
	}
	user := ctx.CompileBytes(src, cue.Filename(filename))
	if err := user.Err(); err != nil {
		return nil, fmt.Errorf("compiling %s: %w", filename, err)
	}

	val := schema.Unify(user)
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validating %s: %w", filename, err)
	}

	views := make(map[string]View)
	if err := val.LookupPath(cue.ParsePath("views")).Decode(&views); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filename, err)
	}
	if len(views) == 0 {
		return nil, fmt.Errorf("%s declares no views", filename)
	}
	return &Catalog{views: views}, nil
}

// View returns the view called name.
func (c *Catalog) View(name string) (View, bool) {
	v, ok := c.views[name]
	return v, ok
}

// Names returns the view names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.views))
	for n := range c.views {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

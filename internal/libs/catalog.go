package libs

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// Library names known to the planner and the import shims.
const (
	Three       = "three"
	Controls    = "three-controls"
	P5          = "p5"
	React       = "react"
	ReactDOM    = "react-dom"
	Compiler    = "compiler"
	DefaultRoot = "/static/libs"
)

var ErrUnknownLibrary = errors.New("unknown library")

//go:embed catalog.yaml
var defaultCatalog []byte

// Library describes one runtime library served under the static root.
type Library struct {
	Name      string `yaml:"name" toml:"name"`
	Path      string `yaml:"path" toml:"path"`
	Module    string `yaml:"module,omitempty" toml:"module,omitempty"`
	CDN       string `yaml:"cdn" toml:"cdn"`
	ModuleCDN string `yaml:"module_cdn,omitempty" toml:"module_cdn,omitempty"`
	Global    string `yaml:"global" toml:"global"`
}

// Catalog is the set of libraries a preview document may reference.
type Catalog struct {
	Root      string    `yaml:"root" toml:"root"`
	Libraries []Library `yaml:"libraries" toml:"libraries"`

	byName map[string]Library
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("libs: embedded catalog is invalid: %v", err))
	}
	return c
}

// LoadCatalog reads a catalog file; an empty path yields the embedded catalog.
// Files ending in .toml are read as TOML, anything else as YAML.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return ParseCatalogTOML(data)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return c.index()
}

// ParseCatalogTOML decodes and validates a TOML catalog.
func ParseCatalogTOML(data []byte) (*Catalog, error) {
	var c Catalog
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return c.index()
}

func (c Catalog) index() (*Catalog, error) {
	if c.Root == "" {
		c.Root = DefaultRoot
	}
	c.Root = "/" + strings.Trim(c.Root, "/")
	c.byName = make(map[string]Library, len(c.Libraries))
	for _, lib := range c.Libraries {
		if lib.Name == "" || lib.Path == "" {
			return nil, fmt.Errorf("parse catalog: library entry needs name and path")
		}
		if _, dup := c.byName[lib.Name]; dup {
			return nil, fmt.Errorf("parse catalog: duplicate library %q", lib.Name)
		}
		c.byName[lib.Name] = lib
	}
	return &c, nil
}

// Get returns a library by name.
func (c *Catalog) Get(name string) (Library, bool) {
	lib, ok := c.byName[name]
	return lib, ok
}

// CDNFor returns the CDN URL registered for a root-relative asset path, if any.
func (c *Catalog) CDNFor(assetPath string) (string, bool) {
	assetPath = strings.TrimPrefix(assetPath, "/")
	for _, lib := range c.Libraries {
		switch assetPath {
		case lib.Path:
			return lib.CDN, lib.CDN != ""
		case lib.Module:
			if lib.Module != "" {
				return lib.ModuleCDN, lib.ModuleCDN != ""
			}
		}
	}
	return "", false
}

// Resolver binds a catalog to the public origin so every reference injected
// into a preview document is absolute.
type Resolver struct {
	origin  string
	catalog *Catalog
}

// NewResolver creates a resolver for origin (scheme://host[:port]).
func NewResolver(catalog *Catalog, origin string) *Resolver {
	return &Resolver{origin: strings.TrimRight(origin, "/"), catalog: catalog}
}

// Origin returns the host origin.
func (r *Resolver) Origin() string { return r.origin }

// Root returns the absolute URL of the static library root.
func (r *Resolver) Root() string { return r.origin + r.catalog.Root }

// Catalog returns the underlying catalog.
func (r *Resolver) Catalog() *Catalog { return r.catalog }

// Classic returns the absolute URL of the classic (global script) build.
func (r *Resolver) Classic(name string) string {
	lib, ok := r.catalog.Get(name)
	if !ok {
		return ""
	}
	return r.Root() + "/" + strings.TrimPrefix(lib.Path, "/")
}

// Module returns the absolute URL of the ES module build, falling back to the
// classic path for libraries that only ship one build.
func (r *Resolver) Module(name string) string {
	lib, ok := r.catalog.Get(name)
	if !ok {
		return ""
	}
	p := lib.Module
	if p == "" {
		p = lib.Path
	}
	return r.Root() + "/" + strings.TrimPrefix(p, "/")
}

// Fallback returns the CDN URL of the classic build.
func (r *Resolver) Fallback(name string) string {
	lib, _ := r.catalog.Get(name)
	return lib.CDN
}

// ModuleFallback returns the CDN URL of the module build.
func (r *Resolver) ModuleFallback(name string) string {
	lib, _ := r.catalog.Get(name)
	if lib.ModuleCDN != "" {
		return lib.ModuleCDN
	}
	return lib.CDN
}

// Global returns the global variable a classic build defines.
func (r *Resolver) Global(name string) string {
	lib, _ := r.catalog.Get(name)
	return lib.Global
}

// ExternalOrigins lists the distinct CDN origins, sorted, for the content
// security policy.
func (r *Resolver) ExternalOrigins() []string {
	seen := make(map[string]bool)
	for _, lib := range r.catalog.Libraries {
		for _, raw := range []string{lib.CDN, lib.ModuleCDN} {
			if raw == "" {
				continue
			}
			u, err := url.Parse(raw)
			if err != nil || u.Host == "" {
				continue
			}
			seen[u.Scheme+"://"+u.Host] = true
		}
	}
	out := make([]string, 0, len(seen))
	for o := range seen {
		out = append(out, o)
	}
	sort.Strings(out)
	return out
}

// Absolute rewrites a relative library reference ("libs/x.js", "./libs/x.js",
// "/static/libs/x.js") to an absolute URL. Other references are returned
// unchanged with ok=false.
func (r *Resolver) Absolute(ref string) (string, bool) {
	trimmed := strings.TrimPrefix(ref, "./")
	root := strings.TrimPrefix(r.catalog.Root, "/")
	switch {
	case strings.HasPrefix(trimmed, "/"+root+"/"):
		return r.origin + trimmed, true
	case strings.HasPrefix(trimmed, root+"/"):
		return r.origin + "/" + trimmed, true
	case strings.HasPrefix(trimmed, "libs/"):
		return r.Root() + "/" + strings.TrimPrefix(trimmed, "libs/"), true
	}
	return ref, false
}

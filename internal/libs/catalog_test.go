package libs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()

	assert.Equal(t, "/static/libs", c.Root)
	for _, name := range []string{Three, Controls, P5, React, ReactDOM, Compiler} {
		lib, ok := c.Get(name)
		require.True(t, ok, name)
		assert.NotEmpty(t, lib.Global, name)
		assert.NotEmpty(t, lib.CDN, name)
	}
}

func TestParseCatalogValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing path", "libraries:\n  - name: three\n"},
		{"duplicate", "libraries:\n  - {name: a, path: a.js}\n  - {name: a, path: b.js}\n"},
		{"not yaml", "libraries: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "libs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("root: assets/\nlibraries:\n  - {name: three, path: t.js, global: THREE}\n"), 0o644))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, "/assets", c.Root)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadCatalogTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "libs.toml")
	body := `root = "/vendor"

[[libraries]]
name = "p5"
path = "p5/p5.min.js"
cdn = "https://cdn.example/p5.min.js"
global = "p5"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, "/vendor", c.Root)
	lib, ok := c.Get(P5)
	require.True(t, ok)
	assert.Equal(t, "p5/p5.min.js", lib.Path)
	cdn, ok := c.CDNFor("/p5/p5.min.js")
	assert.True(t, ok)
	assert.Equal(t, "https://cdn.example/p5.min.js", cdn)

	_, err = ParseCatalogTOML([]byte("[[libraries]]\nname = \"p5\"\n"))
	assert.ErrorContains(t, err, "needs name and path")
}

func TestResolver(t *testing.T) {
	r := NewResolver(DefaultCatalog(), "http://localhost:8000/")

	assert.Equal(t, "http://localhost:8000", r.Origin())
	assert.Equal(t, "http://localhost:8000/static/libs/three/three.min.js", r.Classic(Three))
	assert.Equal(t, "http://localhost:8000/static/libs/three/three.module.js", r.Module(Three))
	assert.Equal(t, "http://localhost:8000/static/libs/p5/p5.min.js", r.Module(P5), "single-build libraries reuse the classic path")
	assert.Contains(t, r.Fallback(Three), "three.min.js")
	assert.Contains(t, r.ModuleFallback(Three), "three.module.js")
	assert.Equal(t, "THREE", r.Global(Three))
	assert.Empty(t, r.Classic("jquery"))
	assert.Equal(t, []string{"https://cdn.jsdelivr.net", "https://unpkg.com"}, r.ExternalOrigins())
}

func TestResolverAbsolute(t *testing.T) {
	r := NewResolver(DefaultCatalog(), "http://localhost:8000")

	tests := []struct {
		ref    string
		want   string
		wantOK bool
	}{
		{"/static/libs/three/three.min.js", "http://localhost:8000/static/libs/three/three.min.js", true},
		{"static/libs/p5/p5.min.js", "http://localhost:8000/static/libs/p5/p5.min.js", true},
		{"./libs/p5/p5.min.js", "http://localhost:8000/static/libs/p5/p5.min.js", true},
		{"https://cdn.example/x.js", "https://cdn.example/x.js", false},
		{"app.js", "app.js", false},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, ok := r.Absolute(tt.ref)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestCDNFor(t *testing.T) {
	c := DefaultCatalog()

	url, ok := c.CDNFor("three/three.module.js")
	require.True(t, ok)
	assert.Contains(t, url, "three.module.js")

	_, ok = c.CDNFor("unknown/lib.js")
	assert.False(t, ok)
}

package libs

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAsset(t *testing.T, root, name, body string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(body), 0o644))
}

func TestAssetsServesLocalFile(t *testing.T) {
	root := t.TempDir()
	writeAsset(t, root, "three/three.min.js", "window.THREE = {};")

	assets := NewAssets(root, DefaultCatalog(), nil, nil)
	rec := httptest.NewRecorder()
	assets.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/three/three.min.js", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "window.THREE = {};", rec.Body.String())
	assert.Equal(t, "text/javascript; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestAssetsRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	writeAsset(t, root, "ok.js", "1")
	assets := NewAssets(root, DefaultCatalog(), nil, nil)

	rec := httptest.NewRecorder()
	assets.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/../../etc/passwd", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAssetsMissingWithoutFallback(t *testing.T) {
	assets := NewAssets(t.TempDir(), DefaultCatalog(), nil, nil)

	rec := httptest.NewRecorder()
	assets.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/p5/p5.min.js", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAssetsFetchesFromCDNOnce(t *testing.T) {
	var hits atomic.Int32
	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, "window.p5 = function () {};")
	}))
	defer cdn.Close()

	catalog, err := ParseCatalog([]byte(fmt.Sprintf("libraries:\n  - {name: p5, path: p5/p5.min.js, cdn: %q, global: p5}\n", cdn.URL+"/p5.min.js")))
	require.NoError(t, err)

	assets := NewAssets(t.TempDir(), catalog, NewFetcher(nil), nil)

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		assets.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/p5/p5.min.js", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "window.p5 = function () {};", rec.Body.String())
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestAssetsCDNFailure(t *testing.T) {
	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer cdn.Close()

	catalog, err := ParseCatalog([]byte(fmt.Sprintf("libraries:\n  - {name: p5, path: p5/p5.min.js, cdn: %q, global: p5}\n", cdn.URL+"/p5.min.js")))
	require.NoError(t, err)

	assets := NewAssets(t.TempDir(), catalog, NewFetcher(nil), nil)
	rec := httptest.NewRecorder()
	assets.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/p5/p5.min.js", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

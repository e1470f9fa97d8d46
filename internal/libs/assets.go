package libs

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Assets serves library builds from the static root. A build missing on
// disk is fetched once from its CDN fallback and kept in memory.
type Assets struct {
	root    string
	catalog *Catalog
	fetcher *Fetcher
	logger  *zap.Logger

	mu    sync.RWMutex
	cache map[string]cachedAsset
	group singleflight.Group
}

type cachedAsset struct {
	body        []byte
	contentType string
	fetchedAt   time.Time
}

// NewAssets creates an asset server rooted at dir. fetcher may be nil to
// disable the CDN fallback.
func NewAssets(dir string, catalog *Catalog, fetcher *Fetcher, logger *zap.Logger) *Assets {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assets{
		root:    dir,
		catalog: catalog,
		fetcher: fetcher,
		logger:  logger,
		cache:   make(map[string]cachedAsset),
	}
}

// ServeHTTP serves the asset named by the request path, relative to the
// catalog root (callers strip the root prefix).
func (a *Assets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name, ok := cleanAssetPath(r.URL.Path)
	if !ok {
		http.Error(w, "invalid asset path", http.StatusBadRequest)
		return
	}

	body, contentType, modTime, err := a.Open(r.Context(), name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		a.logger.Warn("Library asset unavailable", zap.String("asset", name), zap.Error(err))
		http.Error(w, "asset unavailable", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	http.ServeContent(w, r, name, modTime, bytes.NewReader(body))
}

// Open returns the asset body, reading the static root first and the CDN
// fallback second.
func (a *Assets) Open(ctx context.Context, name string) ([]byte, string, time.Time, error) {
	full := filepath.Join(a.root, filepath.FromSlash(name))
	if info, err := os.Stat(full); err == nil && !info.IsDir() {
		body, err := os.ReadFile(full)
		if err != nil {
			return nil, "", time.Time{}, err
		}
		return body, contentTypeFor(name, body), info.ModTime(), nil
	}

	a.mu.RLock()
	cached, ok := a.cache[name]
	a.mu.RUnlock()
	if ok {
		return cached.body, cached.contentType, cached.fetchedAt, nil
	}

	cdn, ok := a.catalog.CDNFor(name)
	if !ok || a.fetcher == nil {
		return nil, "", time.Time{}, fs.ErrNotExist
	}

	v, err, _ := a.group.Do(name, func() (interface{}, error) {
		body, err := a.fetcher.Fetch(ctx, cdn)
		if err != nil {
			return nil, err
		}
		asset := cachedAsset{body: body, contentType: contentTypeFor(name, body), fetchedAt: time.Now()}
		a.mu.Lock()
		a.cache[name] = asset
		a.mu.Unlock()
		a.logger.Info("Library fetched from CDN", zap.String("asset", name), zap.String("url", cdn), zap.Int("bytes", len(body)))
		return asset, nil
	})
	if err != nil {
		return nil, "", time.Time{}, err
	}
	asset := v.(cachedAsset)
	return asset.body, asset.contentType, asset.fetchedAt, nil
}

// ReadLocal reads an asset from the static root only.
func (a *Assets) ReadLocal(name string) ([]byte, error) {
	name, ok := cleanAssetPath(name)
	if !ok {
		return nil, fs.ErrInvalid
	}
	return os.ReadFile(filepath.Join(a.root, filepath.FromSlash(name)))
}

func cleanAssetPath(p string) (string, bool) {
	if strings.Contains(p, "\x00") {
		return "", false
	}
	cleaned := path.Clean("/" + p)
	if cleaned == "/" {
		return "", false
	}
	return strings.TrimPrefix(cleaned, "/"), true
}

// contentTypeFor prefers the extension so module scripts always get a
// JavaScript MIME type, then sniffs the body.
func contentTypeFor(name string, body []byte) string {
	switch path.Ext(name) {
	case ".js", ".mjs":
		return "text/javascript; charset=utf-8"
	}
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return mimetype.Detect(body).String()
}

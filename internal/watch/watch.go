package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"github.com/fsnotify/fsnotify"
	"github.com/saintfish/chardet"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/source"
)

// Facet names a SourceBundle field a file contributes to.
type Facet string

const (
	FacetMarkup    Facet = "markup"
	FacetStyle     Facet = "style"
	FacetScript    Facet = "script"
	FacetComponent Facet = "component"
)

// facetOrder is the precedence when a file matches several facets.
var facetOrder = []Facet{FacetComponent, FacetMarkup, FacetStyle, FacetScript}

// DefaultPatterns maps facets to doublestar globs relative to the root.
func DefaultPatterns() map[Facet][]string {
	return map[Facet][]string{
		FacetMarkup:    {"**/*.html", "**/*.htm"},
		FacetStyle:     {"**/*.css"},
		FacetScript:    {"**/*.js", "**/*.mjs"},
		FacetComponent: {"**/*.jsx", "**/*.tsx"},
	}
}

var skipDirs = map[string]struct{}{
	".git":         {},
	"node_modules": {},
	"dist":         {},
}

// Sink receives every collected bundle with the configured profile.
type Sink func(b source.Bundle, p source.Profile)

// Options configures a watcher.
type Options struct {
	Patterns map[Facet][]string
	// Profile is passed through to the sink unchanged.
	Profile source.Profile
	// Settle is how long to wait for a burst of events to end before
	// re-reading the tree.
	Settle time.Duration
}

// Watcher turns a directory of source files into SourceBundles.
type Watcher struct {
	root   string
	opts   Options
	sink   Sink
	logger *zap.Logger
}

// New creates a watcher for root.
func New(root string, opts Options, sink Sink, logger *zap.Logger) (*Watcher, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("watch root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch root %s: not a directory", root)
	}
	if !opts.Profile.Valid() {
		return nil, fmt.Errorf("unknown runtime profile %q", opts.Profile)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Patterns == nil {
		opts.Patterns = DefaultPatterns()
	}
	if opts.Settle <= 0 {
		opts.Settle = 50 * time.Millisecond
	}
	for facet, globs := range opts.Patterns {
		for _, g := range globs {
			if !doublestar.ValidatePattern(g) {
				return nil, fmt.Errorf("invalid %s pattern %q", facet, g)
			}
		}
	}
	return &Watcher{root: root, opts: opts, sink: sink, logger: logger}, nil
}

// Collect reads the tree once.
func (w *Watcher) Collect() (source.Bundle, error) {
	return Collect(w.root, w.opts.Patterns)
}

// Run emits the current bundle, then a new one after every relevant change,
// until ctx ends.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	if err := addDirs(fsw, w.root); err != nil {
		return err
	}
	w.emit()

	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() && !skipped(info.Name()) {
					if err := addDirs(fsw, ev.Name); err != nil {
						w.logger.Warn("Failed to watch new directory", zap.String("path", ev.Name), zap.Error(err))
					}
					// Files written before the watch was added raise no event.
					settle = time.After(w.opts.Settle)
				}
			}
			if relevant(ev.Op) && w.matches(ev.Name) {
				settle = time.After(w.opts.Settle)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watcher error", zap.Error(err))
		case <-settle:
			settle = nil
			w.emit()
		}
	}
}

func (w *Watcher) emit() {
	b, err := w.Collect()
	if err != nil {
		w.logger.Warn("Failed to collect sources", zap.String("root", w.root), zap.Error(err))
		return
	}
	w.logger.Debug("Collected sources", zap.String("root", w.root), zap.String("hash", source.Hash(b.Markup, b.Style, b.Script, b.Component)))
	w.sink(b, w.opts.Profile)
}

func (w *Watcher) matches(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	_, ok := facetFor(filepath.ToSlash(rel), w.opts.Patterns)
	return ok
}

func relevant(op fsnotify.Op) bool {
	return op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
}

func skipped(name string) bool {
	_, ok := skipDirs[name]
	return ok
}

func addDirs(fsw *fsnotify.Watcher, root string) error {
	conf := fastwalk.Config{Follow: false}
	return fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipped(d.Name()) {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}

func facetFor(rel string, patterns map[Facet][]string) (Facet, bool) {
	for _, facet := range facetOrder {
		for _, g := range patterns[facet] {
			if ok, _ := doublestar.Match(g, rel); ok {
				return facet, true
			}
		}
	}
	return "", false
}

// Collect reads every matching file under root into a bundle. The tree is
// walked in parallel; files of one facet are joined in path order.
func Collect(root string, patterns map[Facet][]string) (source.Bundle, error) {
	parts := make(map[Facet][]string)
	var (
		mu    sync.Mutex
		paths []string
	)
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && skipped(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		mu.Lock()
		paths = append(paths, path)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return source.Bundle{}, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(paths)

	for _, path := range paths {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			continue
		}
		facet, ok := facetFor(filepath.ToSlash(rel), patterns)
		if !ok {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return source.Bundle{}, fmt.Errorf("read %s: %w", rel, err)
		}
		parts[facet] = append(parts[facet], Decode(data))
	}

	b := source.Bundle{
		Markup:    strings.Join(parts[FacetMarkup], "\n"),
		Style:     strings.Join(parts[FacetStyle], "\n"),
		Script:    strings.Join(parts[FacetScript], "\n"),
		Component: strings.Join(parts[FacetComponent], "\n"),
	}
	b.Complete = len(parts[FacetMarkup]) == 1 && source.IsCompleteDocument(b.Markup)
	return b, nil
}

// Decode returns data as UTF-8, transcoding from the detected charset when
// it is not valid UTF-8 already.
func Decode(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	detector := chardet.NewTextDetector()
	if result, err := detector.DetectBest(data); err == nil && result != nil {
		if enc, _ := charset.Lookup(strings.ToLower(result.Charset)); enc != nil {
			if out, err := enc.NewDecoder().Bytes(data); err == nil {
				return string(out)
			}
		}
	}
	return strings.ToValidUTF8(string(data), "�")
}

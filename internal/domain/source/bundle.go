package source

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// Bundle is one immutable snapshot of user source.
type Bundle struct {
	Markup    string `json:"markup"`
	Style     string `json:"style"`
	Script    string `json:"script"`
	Component string `json:"component,omitempty"`
	// Complete marks the markup facet as a self-contained document.
	Complete bool `json:"complete,omitempty"`
}

// Empty reports whether every facet is blank.
func (b Bundle) Empty() bool {
	return strings.TrimSpace(b.Markup+b.Style+b.Script+b.Component) == ""
}

// Normalized is a bundle cleaned and adapted for one profile.
type Normalized struct {
	Markup    string
	Style     string
	Script    string
	Component string
	Complete  bool
	// Libraries names the catalog libraries whose imports were shimmed.
	Libraries []string
	Warnings  []string
}

// Combined returns every facet joined, for marker scanning.
func (n Normalized) Combined() string {
	return n.Markup + "\n" + n.Script + "\n" + n.Component
}

// Imports reports whether an import of lib was shimmed.
func (n Normalized) Imports(lib string) bool {
	for _, l := range n.Libraries {
		if l == lib {
			return true
		}
	}
	return false
}

// Hash fingerprints a component source; the compiler tracker keys on it.
func Hash(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

var (
	docOpen  = regexp.MustCompile(`(?i)<!doctype\s+html|<html[\s>]`)
	docClose = regexp.MustCompile(`(?i)</html\s*>`)
)

// IsCompleteDocument reports whether markup carries paired document markers.
func IsCompleteDocument(markup string) bool {
	return docOpen.MatchString(markup) && docClose.MatchString(markup)
}

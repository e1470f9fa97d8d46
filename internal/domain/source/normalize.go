package source

import (
	"fmt"
	"strings"
)

// Normalize cleans and adapts a bundle for profile. It never fails: malformed
// input degrades to empty or comment output plus warnings that the session
// later surfaces as warning-level log entries.
//
// The component facet passes through untouched under the compiled-component
// profile (the compiler applies its own shims) and is dropped otherwise.
func Normalize(b Bundle, p Profile) (n Normalized) {
	defer func() {
		if r := recover(); r != nil {
			n = Normalized{
				Markup:   b.Markup,
				Style:    EscapeStyleClose(b.Style),
				Script:   "/* script omitted: normalization failed */",
				Warnings: []string{fmt.Sprintf("source normalization failed: %v", r)},
			}
		}
	}()

	n.Markup = b.Markup
	n.Style = EscapeStyleClose(b.Style)
	n.Complete = b.Complete || IsCompleteDocument(b.Markup)

	switch {
	case p == ProfileComponent:
		n.Component = b.Component
	case p.RunsScript():
		n.Script = normalizeScript(b.Script, &n)
	}
	return n
}

func normalizeScript(script string, n *Normalized) string {
	if strings.TrimSpace(script) == "" {
		return ""
	}

	script, removed := StripLeakedMarkup(script)
	if removed > 0 {
		n.Warnings = append(n.Warnings, fmt.Sprintf("removed %d markup fragment(s) from the script", removed))
	}

	shim := ShimImports(script)
	n.Libraries = append(n.Libraries, shim.Libraries...)
	n.Warnings = append(n.Warnings, shim.Warnings...)

	return EscapeScriptClose(shim.Text)
}

package source

import (
	"regexp"
	"strings"
)

// rule is one pattern → action entry. The tables below stand in for a parser;
// replacing them does not change the Normalize contract.
type rule struct {
	name    string
	pattern *regexp.Regexp
	replace string
}

// leakRules strip markup that leaks into script facets when source is
// extracted from a larger document or a chat answer.
var leakRules = []rule{
	{"code-fence", regexp.MustCompile("(?m)^[ \t]*```[\\w+-]*[ \t]*$\n?"), ""},
	{"doctype", regexp.MustCompile(`(?i)<!doctype[^>]*>`), ""},
	{"style-block", regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style\s*>`), ""},
	{"title-block", regexp.MustCompile(`(?is)<title\b[^>]*>.*?</title\s*>`), ""},
	{"document-tag", regexp.MustCompile(`(?i)</?(?:html|head|body)\b[^>]*>`), ""},
	{"head-tag", regexp.MustCompile(`(?i)<(?:meta|link)\b[^>]*>`), ""},
	{"script-tag", regexp.MustCompile(`(?i)<script\b[^>]*>|</script\s*>`), ""},
}

// StripLeakedMarkup removes markup-like fragments from a script facet and
// reports how many were removed.
func StripLeakedMarkup(script string) (string, int) {
	removed := 0
	for _, r := range leakRules {
		matches := r.pattern.FindAllStringIndex(script, -1)
		if len(matches) == 0 {
			continue
		}
		removed += len(matches)
		script = r.pattern.ReplaceAllString(script, r.replace)
	}
	if removed > 0 {
		script = strings.TrimSpace(script) + "\n"
	}
	return script, removed
}

var (
	scriptClose = regexp.MustCompile(`(?i)</script`)
	styleClose  = regexp.MustCompile(`(?i)</style`)
	htmlComment = regexp.MustCompile(`<!--`)
)

// EscapeScriptClose makes text safe to embed inside a <script> element.
func EscapeScriptClose(s string) string {
	s = scriptClose.ReplaceAllStringFunc(s, func(m string) string { return `<\/` + m[2:] })
	return htmlComment.ReplaceAllString(s, `<\!--`)
}

// EscapeStyleClose makes text safe to embed inside a <style> element.
func EscapeStyleClose(s string) string {
	return styleClose.ReplaceAllStringFunc(s, func(m string) string { return `<\/` + m[2:] })
}

var jsQuoter = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "<", `\u003c`, "\u2028", `\u2028`, "\u2029", `\u2029`)

// QuoteJS quotes s as a double-quoted JavaScript string literal that is safe
// inside a script element.
func QuoteJS(s string) string {
	return `"` + jsQuoter.Replace(s) + `"`
}

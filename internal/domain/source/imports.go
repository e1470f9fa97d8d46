package source

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/GriffinCanCode/AgentOS/preview/internal/libs"
)

// shimTarget maps a module specifier to the global that the classic build
// of a library defines.
type shimTarget struct {
	library   string
	specifier *regexp.Regexp
	global    string
	// namespace is where named imports are read from.
	namespace string
}

// shimTargets is the closed set of libraries whose imports are rewritten.
var shimTargets = []shimTarget{
	{libs.Controls, regexp.MustCompile(`(?:^|/)(?:examples/jsm|addons)/controls/OrbitControls(?:\.js)?$`), "OrbitControls", "window"},
	{libs.Three, regexp.MustCompile(`^(?:three|.*/three(?:@[^/]+)?(?:/build/three\.module(?:\.min)?\.js)?)$`), "THREE", "THREE"},
	{libs.P5, regexp.MustCompile(`^(?:p5|.*/p5(?:@[^/]+)?(?:/lib/p5(?:\.min)?\.js)?)$`), "p5", "p5"},
	{libs.ReactDOM, regexp.MustCompile(`^react-dom(?:/client)?$`), "ReactDOM", "ReactDOM"},
	{libs.React, regexp.MustCompile(`^react$`), "React", "React"},
}

var (
	importStmt = regexp.MustCompile(`(?m)^[ \t]*import\s+(?:([\w$]+)\s*(?:,\s*)?)?(?:\*\s*as\s+([\w$]+)|\{([^}]*)\})?\s*from\s*['"]([^'"]+)['"][ \t]*;?[ \t]*$`)
	sideEffect = regexp.MustCompile(`(?m)^[ \t]*import\s*['"]([^'"]+)['"][ \t]*;?[ \t]*$`)
	identifier = regexp.MustCompile(`^[A-Za-z_$][\w$]*$`)
)

// ShimResult is the outcome of rewriting import statements.
type ShimResult struct {
	Text      string
	Libraries []string
	Warnings  []string
}

// ShimImports rewrites imports of known libraries into bindings of their
// globals. Unknown imports become comments, because an import statement is
// invalid outside a module context.
//
// A binding is emitted at most once per name: names emitted earlier in the
// same pass are tracked exactly, and names the source already declares are
// found by a textual search. An import whose local name equals the global
// emits nothing, since the global resolves lazily at call time.
func ShimImports(text string) ShimResult {
	var res ShimResult
	declared := make(map[string]bool)
	seenLib := make(map[string]bool)

	body := importStmt.ReplaceAllString(text, "")
	body = sideEffect.ReplaceAllString(body, "")

	out := importStmt.ReplaceAllStringFunc(text, func(stmt string) string {
		m := importStmt.FindStringSubmatch(stmt)
		def, ns, named, spec := m[1], m[2], m[3], m[4]

		target, ok := lookupShim(spec)
		if !ok {
			res.Warnings = append(res.Warnings, fmt.Sprintf("unsupported import removed: %s", strings.TrimSpace(stmt)))
			return placeholder(stmt)
		}
		if !seenLib[target.library] {
			seenLib[target.library] = true
			res.Libraries = append(res.Libraries, target.library)
		}

		var lines []string
		for _, local := range []string{def, ns} {
			if local == "" || local == target.global {
				continue
			}
			if claim(local, declared, body) {
				lines = append(lines, fmt.Sprintf("const %s = window.%s;", local, target.global))
			}
		}

		var fields []string
		for _, spec := range splitSpecifiers(named) {
			if spec.local == spec.imported && target.namespace == "window" {
				continue
			}
			if !claim(spec.local, declared, body) {
				continue
			}
			if spec.local == spec.imported {
				fields = append(fields, spec.local)
			} else {
				fields = append(fields, spec.imported+": "+spec.local)
			}
		}
		if len(fields) > 0 {
			lines = append(lines, fmt.Sprintf("const { %s } = window.%s;", strings.Join(fields, ", "), namespaceGlobal(target)))
		}

		if len(lines) == 0 {
			return fmt.Sprintf("/* %s provided as a global */", target.global)
		}
		return strings.Join(lines, "\n")
	})

	out = sideEffect.ReplaceAllStringFunc(out, func(stmt string) string {
		spec := sideEffect.FindStringSubmatch(stmt)[1]
		if target, ok := lookupShim(spec); ok {
			if !seenLib[target.library] {
				seenLib[target.library] = true
				res.Libraries = append(res.Libraries, target.library)
			}
			return fmt.Sprintf("/* %s provided as a global */", target.global)
		}
		res.Warnings = append(res.Warnings, fmt.Sprintf("unsupported import removed: %s", strings.TrimSpace(stmt)))
		return placeholder(stmt)
	})

	res.Text = out
	return res
}

func lookupShim(spec string) (shimTarget, bool) {
	for _, t := range shimTargets {
		if t.specifier.MatchString(spec) {
			return t, true
		}
	}
	return shimTarget{}, false
}

func namespaceGlobal(t shimTarget) string {
	if t.namespace == "window" {
		return "THREE"
	}
	return t.namespace
}

type specifier struct {
	imported string
	local    string
}

func splitSpecifiers(named string) []specifier {
	var out []specifier
	for _, part := range strings.Split(named, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		imported, local := part, part
		if before, after, ok := strings.Cut(part, " as "); ok {
			imported, local = strings.TrimSpace(before), strings.TrimSpace(after)
		}
		if !identifier.MatchString(imported) || !identifier.MatchString(local) {
			continue
		}
		out = append(out, specifier{imported: imported, local: local})
	}
	return out
}

// claim reserves name for a shim binding. It fails when the pass already
// emitted the name or the remaining source appears to declare it.
func claim(name string, declared map[string]bool, body string) bool {
	if declared[name] {
		return false
	}
	declared[name] = true
	return !declaresName(body, name)
}

func declaresName(body, name string) bool {
	q := regexp.QuoteMeta(name)
	re := regexp.MustCompile(`(?:\b(?:const|let|var|function|class)\s+` + q + `\b)|(?:\b(?:const|let|var)\s*\{[^}]*\b` + q + `\b[^}]*\}\s*=)`)
	return re.MatchString(body)
}

func placeholder(stmt string) string {
	stmt = strings.TrimSpace(strings.ReplaceAll(stmt, "*/", "* /"))
	return "/* import removed: " + stmt + " */"
}

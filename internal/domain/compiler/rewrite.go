package compiler

import (
	"regexp"
	"strings"

	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/source"
)

// defaultSlot receives the default export inside the harness.
const defaultSlot = "__default"

type rewrite struct {
	name    string
	pattern *regexp.Regexp
	apply   func(src string, appendix *[]string) string
}

var (
	exportDefaultDecl = regexp.MustCompile(`(?m)^([ \t]*)export\s+default\s+((?:async\s+)?function\s*\*?\s*|class\s+)([A-Za-z_$][\w$]*)`)
	exportDefaultExpr = regexp.MustCompile(`(?m)^([ \t]*)export\s+default\s+`)
	exportDecl        = regexp.MustCompile(`(?m)^([ \t]*)export\s+((?:async\s+)?function\b|class\b|const\b|let\b|var\b)`)
	exportList        = regexp.MustCompile(`(?m)^[ \t]*export\s*\{([^}]*)\}\s*(?:from\s*['"][^'"]*['"])?\s*;?[ \t]*$`)

	// a?.b = v is rejected by transpilers; only the single-level form at the
	// start of a statement is rewritten.
	optionalAssign = regexp.MustCompile(`(?m)^([ \t]*)([A-Za-z_$][\w$]*(?:\.[A-Za-z_$][\w$]*)*)\?\.([A-Za-z_$][\w$]*)(\s*=[^=>])`)
)

var rewrites = []rewrite{
	{"export-default-declaration", exportDefaultDecl, func(src string, appendix *[]string) string {
		return exportDefaultDecl.ReplaceAllStringFunc(src, func(m string) string {
			sub := exportDefaultDecl.FindStringSubmatch(m)
			*appendix = append(*appendix, defaultSlot+" = "+sub[3]+";")
			return sub[1] + sub[2] + sub[3]
		})
	}},
	{"export-list", exportList, func(src string, appendix *[]string) string {
		return exportList.ReplaceAllStringFunc(src, func(m string) string {
			var aliases []string
			for _, part := range strings.Split(exportList.FindStringSubmatch(m)[1], ",") {
				local, exported, found := strings.Cut(strings.TrimSpace(part), " as ")
				local, exported = strings.TrimSpace(local), strings.TrimSpace(exported)
				switch {
				case !found || local == "":
					continue
				case exported == "default":
					*appendix = append(*appendix, defaultSlot+" = "+local+";")
				default:
					aliases = append(aliases, "var "+exported+" = "+local+";")
				}
			}
			if len(aliases) == 0 {
				return "/* export list removed */"
			}
			return strings.Join(aliases, " ")
		})
	}},
	{"export-default-expression", exportDefaultExpr, func(src string, _ *[]string) string {
		return exportDefaultExpr.ReplaceAllString(src, "${1}"+defaultSlot+" = ")
	}},
	{"export-declaration", exportDecl, func(src string, _ *[]string) string {
		return exportDecl.ReplaceAllString(src, "${1}${2}")
	}},
	{"optional-chain-assignment", optionalAssign, func(src string, _ *[]string) string {
		return optionalAssign.ReplaceAllString(src, "${1}if (${2}) ${2}.${3}${4}")
	}},
}

// Prepare applies the import shims and the component rewrites. It returns the
// rewritten source and the shim warnings.
func Prepare(src string) (string, []string) {
	shim := source.ShimImports(src)
	out := shim.Text

	var appendix []string
	for _, r := range rewrites {
		out = r.apply(out, &appendix)
	}
	if len(appendix) > 0 {
		out = strings.TrimRight(out, "\n") + "\n" + strings.Join(appendix, "\n") + "\n"
	}
	return out, shim.Warnings
}

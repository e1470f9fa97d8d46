package isolate

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	dynamicImport = regexp.MustCompile(`\bimport\s*\(`)

	staticImport = regexp.MustCompile(`(?m)^[ \t]*import\s+(?:([A-Za-z_$][\w$]*)\s*,?\s*)?(?:\*\s*as\s+([A-Za-z_$][\w$]*)|\{([^}]*)\})?\s*from\s*['"]([^'"]+)['"][ \t]*;?`)
	bareImport   = regexp.MustCompile(`(?m)^[ \t]*import\s*['"]([^'"]+)['"][ \t]*;?`)

	reExport      = regexp.MustCompile(`(?m)^[ \t]*export\s*\{([^}]*)\}\s*from\s*['"]([^'"]+)['"][ \t]*;?`)
	reExportAll   = regexp.MustCompile(`(?m)^[ \t]*export\s*\*\s*from\s*['"]([^'"]+)['"][ \t]*;?`)
	exportList    = regexp.MustCompile(`(?m)^[ \t]*export\s*\{([^}]*)\}[ \t]*;?`)
	exportDefDecl = regexp.MustCompile(`(?m)^([ \t]*)export\s+default\s+((?:async\s+)?function\*?|class)\s+([A-Za-z_$][\w$]*)`)
	exportDefault = regexp.MustCompile(`(?m)^([ \t]*)export\s+default\s+`)
	exportDecl    = regexp.MustCompile(`(?m)^([ \t]*)export\s+((?:async\s+)?function\*?|class|const|let|var)\s+([A-Za-z_$][\w$]*)`)
)

// rewriteDynamic routes import() calls through the frame's module loader.
func rewriteDynamic(src string) string {
	return dynamicImport.ReplaceAllString(src, "__isolate.importModule(")
}

type binding struct {
	local, exported string
}

func parseBindings(list string) []binding {
	var out []binding
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Fields(part)
		b := binding{local: fields[0], exported: fields[0]}
		if len(fields) == 3 && fields[1] == "as" {
			b.exported = fields[2]
		}
		out = append(out, b)
	}
	return out
}

func requireCall(spec string) string {
	return fmt.Sprintf("__isolate.requireModule(%q, __referrer)", spec)
}

// rewriteImports replaces static imports with synchronous loads of
// already-fetchable modules.
func rewriteImports(src string) string {
	src = staticImport.ReplaceAllStringFunc(src, func(stmt string) string {
		m := staticImport.FindStringSubmatch(stmt)
		def, ns, named, spec := m[1], m[2], m[3], m[4]
		if def == "" && ns == "" && named == "" {
			return stmt
		}
		var parts []string
		call := requireCall(spec)
		if ns != "" {
			parts = append(parts, "var "+ns+" = "+call+";")
		}
		if def != "" {
			parts = append(parts, "var "+def+" = "+call+".default;")
		}
		if named != "" {
			var fields []string
			for _, b := range parseBindings(named) {
				fields = append(fields, b.local+": "+b.exported)
			}
			parts = append(parts, "var { "+strings.Join(fields, ", ")+" } = "+call+";")
		}
		return strings.Join(parts, " ")
	})
	return bareImport.ReplaceAllStringFunc(src, func(stmt string) string {
		spec := bareImport.FindStringSubmatch(stmt)[1]
		return requireCall(spec) + ";"
	})
}

// transformModule turns ES module text into a function body that fills
// __exports and returns it.
func transformModule(src string) string {
	var tail []string

	src = reExportAll.ReplaceAllStringFunc(src, func(stmt string) string {
		spec := reExportAll.FindStringSubmatch(stmt)[1]
		return "Object.assign(__exports, " + requireCall(spec) + ");"
	})
	src = reExport.ReplaceAllStringFunc(src, func(stmt string) string {
		m := reExport.FindStringSubmatch(stmt)
		var out []string
		for _, b := range parseBindings(m[1]) {
			out = append(out, "__exports."+b.exported+" = "+requireCall(m[2])+"."+b.local+";")
		}
		return strings.Join(out, " ")
	})
	src = rewriteImports(src)
	src = exportList.ReplaceAllStringFunc(src, func(stmt string) string {
		for _, b := range parseBindings(exportList.FindStringSubmatch(stmt)[1]) {
			tail = append(tail, "__exports."+b.exported+" = "+b.local+";")
		}
		return ""
	})
	src = exportDefDecl.ReplaceAllStringFunc(src, func(stmt string) string {
		m := exportDefDecl.FindStringSubmatch(stmt)
		tail = append(tail, "__exports.default = "+m[3]+";")
		return m[1] + m[2] + " " + m[3]
	})
	src = exportDefault.ReplaceAllString(src, "${1}__exports.default = ")
	src = exportDecl.ReplaceAllStringFunc(src, func(stmt string) string {
		m := exportDecl.FindStringSubmatch(stmt)
		tail = append(tail, "__exports."+m[3]+" = "+m[3]+";")
		return m[1] + m[2] + " " + m[3]
	})
	src = dynamicImport.ReplaceAllString(src, "__isolate.importFrom(__referrer, ")

	return "(function (__exports, __referrer) {\n" + src + "\n" + strings.Join(tail, "\n") + "\nreturn __exports;\n})"
}

// resolve maps a specifier to an absolute URL: bare names through the import
// map, relative and absolute paths against the referrer.
func resolve(imports map[string]string, spec, referrer string) (string, error) {
	if target, ok := imports[spec]; ok {
		spec = target
	} else {
		for prefix, target := range imports {
			if strings.HasSuffix(prefix, "/") && strings.HasPrefix(spec, prefix) {
				spec = target + strings.TrimPrefix(spec, prefix)
				break
			}
		}
	}
	if !strings.HasPrefix(spec, "/") && !strings.HasPrefix(spec, "./") && !strings.HasPrefix(spec, "../") && !strings.Contains(spec, "://") {
		return "", fmt.Errorf("failed to resolve module specifier %q", spec)
	}
	base, err := url.Parse(referrer)
	if err != nil {
		return "", fmt.Errorf("invalid referrer %q: %w", referrer, err)
	}
	ref, err := url.Parse(spec)
	if err != nil {
		return "", fmt.Errorf("invalid module specifier %q: %w", spec, err)
	}
	return base.ResolveReference(ref).String(), nil
}

package compiler

import (
	"regexp"
	"strings"

	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/source"
)

// MountID is the element the harness renders into.
const MountID = "root"

// FallbackExport is tried after the requested name and the default export.
const FallbackExport = "App"

// hookAliases are bound from the UI runtime so user code can call hooks
// without importing them.
var hookAliases = []string{
	"useState", "useEffect", "useLayoutEffect", "useRef", "useMemo",
	"useCallback", "useReducer", "useContext", "createContext", "Fragment",
}

var exportIdent = regexp.MustCompile(`^[A-Za-z_$][\w$]*$`)

const harnessHead = `(function () {
  var React = window.React, ReactDOM = window.ReactDOM;
  if (!React || !ReactDOM) {
    console.error("UI runtime is not available; the component cannot mount");
    return;
  }
`

const boundary = `  function __PreviewBoundary(props) {
    React.Component.call(this, props);
    this.state = { error: null };
  }
  __PreviewBoundary.prototype = Object.create(React.Component.prototype);
  __PreviewBoundary.prototype.constructor = __PreviewBoundary;
  __PreviewBoundary.getDerivedStateFromError = function (error) { return { error: error }; };
  __PreviewBoundary.prototype.componentDidCatch = function (error) { console.error(error); };
  __PreviewBoundary.prototype.render = function () {
    var err = this.state.error;
    if (err) {
      return React.createElement("pre", { className: "preview-runtime-error" }, "Component error: " + (err && err.message ? err.message : String(err)));
    }
    return this.props.children;
  };
`

const harnessMount = `  var mount = document.getElementById("` + MountID + `");
  if (!__component || (typeof __component !== "function" && typeof __component !== "object")) {
    console.error(__missing);
    return;
  }
  try {
    var element = React.createElement(__PreviewBoundary, null, React.createElement(__component));
    if (typeof ReactDOM.createRoot === "function") {
      ReactDOM.createRoot(mount).render(element);
    } else {
      ReactDOM.render(element, mount);
    }
  } catch (err) {
    console.error(err);
  }
})();
`

// Wrap embeds transpiled component code in the mount harness. exportName is
// resolved first, then the default export, then FallbackExport.
func Wrap(code, exportName string) string {
	var b strings.Builder
	b.WriteString(harnessHead)
	for _, h := range hookAliases {
		b.WriteString("  var " + h + " = React." + h + ";\n")
	}
	b.WriteString(boundary)

	b.WriteString("  var __component;\n  try {\n    __component = (function () {\n      var " + defaultSlot + ";\n")
	b.WriteString(strings.TrimRight(code, "\n"))
	b.WriteString("\n")
	for _, name := range candidates(exportName) {
		if name == defaultSlot {
			b.WriteString("      if (typeof " + defaultSlot + " !== \"undefined\") return " + defaultSlot + ";\n")
			continue
		}
		b.WriteString("      if (typeof " + name + " !== \"undefined\") return " + name + ";\n")
	}
	b.WriteString("      return undefined;\n    })();\n  } catch (err) {\n    console.error(err);\n    return;\n  }\n")

	b.WriteString("  var __missing = " + source.QuoteJS(missingMessage(exportName)) + ";\n")
	b.WriteString(harnessMount)
	return b.String()
}

func candidates(exportName string) []string {
	var out []string
	if exportIdent.MatchString(exportName) && exportName != defaultSlot {
		out = append(out, exportName)
	}
	out = append(out, defaultSlot)
	if exportName != FallbackExport {
		out = append(out, FallbackExport)
	}
	return out
}

func missingMessage(exportName string) string {
	if exportName == "" {
		return "No component found: export a default component or define " + FallbackExport
	}
	return "No component found: define " + exportName + ", export a default component, or define " + FallbackExport
}

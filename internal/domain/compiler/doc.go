// Package compiler turns component-style source into a script that mounts the
// component into a preview document.
//
// A Bridge owns one transpiler Engine and its readiness state machine. Engines
// are esbuild (in-process, the default) or the standalone browser compiler run
// inside goja. Compile shims imports, rewrites exports into local
// declarations, fixes single-level optional-chaining assignments, transpiles,
// and wraps the result in a harness with hook aliases, an error boundary and
// export resolution.
//
// A Tracker sits in front of the bridge for one preview and decides when the
// current artifact may be reused.
package compiler

// Package watch feeds a session from a directory of source files.
//
// Files are assigned to bundle facets by doublestar globs, decoded to UTF-8
// and concatenated in path order. A Watcher re-reads the tree after every
// burst of filesystem events and hands the result to a Sink, usually
// Session.Update, which applies its own debounce.
package watch

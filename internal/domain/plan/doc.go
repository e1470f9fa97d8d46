// Package plan decides which runtime libraries a preview document loads, in
// which mode (classic global script or ES module), and whether each loads
// before or after user code.
//
// Classification is a table of marker patterns over the normalized facets,
// not a parser. The resulting Plan also carries the capability flags that
// choose the delivery strategy and the readiness gate that defers user code
// until required globals exist.
package plan

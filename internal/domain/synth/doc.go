// Package synth assembles preview documents.
//
// Four templates (plain-markup, vanilla-script, canvas-optimized which shares
// the vanilla-script template with a different layout, and compiled-component)
// share one content-security-policy and one console-relay bootstrap. Script
// profiles also carry a small runtime: a per-frame capability registry, a
// classic loader with one CDN fallback, and the readiness gate that defers
// user code until the planned libraries are ready.
//
// Self-contained documents bypass the templates; only relative library
// references are rewritten. Any internal failure yields a minimal error
// document instead of an unrenderable preview.
package synth

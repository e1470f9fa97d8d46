// Package probe loads the host page in a headless browser and reports the
// messages the mounted frame posted. It is the end-to-end check that a
// sandboxed preview actually runs in a real engine.
package probe

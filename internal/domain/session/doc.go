// Package session drives one live preview through the pipeline.
//
// A Session holds the latest submitted source and runs
// Normalizer → Planner → Compiler → Synthesizer → Host on it:
//
//   - Update is debounced; edits within the quiet period coalesce into one
//     render of the newest snapshot.
//   - Submit and Render run immediately.
//   - A compiler reaching Ready or LoadFailed re-renders a component preview
//     so its placeholder is replaced without a new edit.
//   - Normalizer warnings and compilation errors become console entries.
//   - With a Preflight configured, compiled components are also mounted in a
//     headless frame and the errors it logs are reported as warnings.
//
// Example Usage:
//
//	s := session.New(session.Deps{Planner: p, Compiler: c, Synth: sy, Host: h, Telemetry: t}, session.Options{}, logger)
//	s.Update(bundle, source.ProfileComponent, "Widget")
package session

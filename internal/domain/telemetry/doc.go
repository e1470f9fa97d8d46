// Package telemetry is the host side of the frame relay.
//
// The isolated document posts {source, level, message, stack} messages for
// console output and uncaught errors, and {type, data|message} replies to the
// one-shot scene export command. Bridge.Receive drops anything from a frame
// that is no longer mounted, appends telemetry to the Console and hands export
// replies to the Exchange.
//
// The Console keeps entries in arrival order, suppresses an error identical
// to the one immediately before it, and derives counts, a problem flag and a
// dismissible banner for the latest runtime error.
package telemetry

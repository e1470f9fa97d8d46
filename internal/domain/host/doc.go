// Package host mounts synthesized documents into an isolated frame.
//
// Delivery is chosen by a Strategy from the document's needs-module-resolution
// capability: inline srcdoc, or an object-URL served from a BlobStore. The
// Host is the only writer of that store and keeps at most one object-URL
// live. Every mount, reload and full-screen change issues a fresh frame key;
// telemetry compares incoming messages against the current key.
package host

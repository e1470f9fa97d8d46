// Package ws connects host pages to the preview over a websocket.
//
// The server pushes frame notices (mount a new execution context), view
// changes, console entries and commands. The page relays every message its
// current iframe posts, tagged with the frame key the page itself recorded
// for that iframe, and forwards keyboard shortcuts. With several pages open
// only the oldest one's frame messages are kept and only it receives
// commands; the next oldest takes over when it disconnects.
package ws

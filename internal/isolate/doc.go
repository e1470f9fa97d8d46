/*
Package isolate runs preview documents headlessly.

A Frame is a goja VM dressed as a browsing context: a small DOM built from
the parsed document, window events, console, timers and a captured
parent.postMessage channel. Nothing touches the network: every URL the
document requests is looked up in Options.Resources, each with an optional
delay and failure flag.

# Time

Timers, script loads and dynamic imports are tasks on a virtual clock. Run
advances the clock by a fixed amount; Settle runs until no task remains or
the budget is spent. Wall-clock time is bounded separately by
Options.Timeout, which interrupts the VM.

# Scripts

Parser-inserted classic scripts run in document order while loading. Module
scripts run after parsing, with static imports resolved through the
document's import map. Dynamically inserted scripts honor async=false
ordering. Uncaught exceptions and unhandled rejections are dispatched to the
window as error and unhandledrejection events.

The DOM is built from the complete document before any script runs, so a
script can see elements that follow it.
*/
package isolate

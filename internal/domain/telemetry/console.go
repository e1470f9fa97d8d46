package telemetry

import (
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/preview/internal/shared/id"
)

// Console is the ordered LogEntry sequence. Only the telemetry listener and
// the preview pipeline append; everyone else reads.
type Console struct {
	capacity int
	now      func() time.Time

	mu sync.RWMutex
	// entries[head:] are live; the prefix is evicted and compacted away once
	// it grows as large as the bound.
	entries    []Entry
	head       int
	banner     *Entry
	suppressed int
	dropped    int
	listeners  []func(Entry)
}

// NewConsole creates a console. capacity <= 0 keeps every entry until Clear;
// a positive capacity evicts the oldest entries beyond it.
func NewConsole(capacity int) *Console {
	return &Console{capacity: capacity, now: time.Now}
}

// Subscribe registers fn for every appended entry.
func (c *Console) Subscribe(fn func(Entry)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Append adds e and reports whether it was kept. An error identical to the
// immediately preceding entry is suppressed; any other entry in between
// resets suppression.
func (c *Console) Append(e Entry) (Entry, bool) {
	if e.ID == "" {
		e.ID = id.NewEntryID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = c.now()
	}
	if e.Level == "" {
		e.Level = LevelLog
	}
	if e.Origin == "" {
		e.Origin = FromHost
	}

	c.mu.Lock()
	if n := len(c.entries); n > c.head && e.Level == LevelError {
		last := c.entries[n-1]
		if last.Level == LevelError && last.Message == e.Message {
			c.suppressed++
			c.mu.Unlock()
			return last, false
		}
	}

	c.entries = append(c.entries, e)
	if c.capacity > 0 && len(c.entries)-c.head > c.capacity {
		c.head++
		c.dropped++
		if c.head >= c.capacity {
			n := copy(c.entries, c.entries[c.head:])
			clear(c.entries[n:])
			c.entries = c.entries[:n]
			c.head = 0
		}
	}
	if e.Level == LevelError && e.Origin == FromFrame {
		b := e
		c.banner = &b
	}
	listeners := append([]func(Entry){}, c.listeners...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(e)
	}
	return e, true
}

// Entries returns the entries at the given levels, or all entries when no
// level is given.
func (c *Console) Entries(levels ...Level) []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	live := c.entries[c.head:]
	if len(levels) == 0 {
		return append([]Entry(nil), live...)
	}
	want := make(map[Level]bool, len(levels))
	for _, l := range levels {
		want[l] = true
	}
	var out []Entry
	for _, e := range live {
		if want[e.Level] {
			out = append(out, e)
		}
	}
	return out
}

// Clear drops every entry and the banner.
func (c *Console) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries, c.head = nil, 0
	c.banner = nil
}

// Counts returns per-level totals of the retained entries.
func (c *Console) Counts() Counts {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out Counts
	for _, e := range c.entries[c.head:] {
		out.add(e.Level)
	}
	return out
}

// HasProblems reports whether any error or warning is retained.
func (c *Console) HasProblems() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.entries[c.head:] {
		if e.Level == LevelError || e.Level == LevelWarn {
			return true
		}
	}
	return false
}

// Banner returns the latest runtime error from the frame until it is
// dismissed.
func (c *Console) Banner() (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.banner == nil {
		return Entry{}, false
	}
	return *c.banner, true
}

// DismissBanner hides the banner until the next runtime error.
func (c *Console) DismissBanner() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.banner = nil
}

// Suppressed returns how many duplicate errors were not appended.
func (c *Console) Suppressed() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.suppressed
}

// Dropped returns how many entries were evicted by the capacity bound.
func (c *Console) Dropped() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dropped
}

// Package id provides prefixed ULID generation for preview identities.
//
// Every identity the preview engine hands out (frames, object-URL blobs, log
// entries, sessions) is a ULID behind a short type prefix:
//   - Lexicographic sortability: log entries and frames sort by creation time
//   - Prefixed types: frm_*, blob_*, log_*, sess_* are readable in logs
//   - Type safety: separate string types prevent mixing a frame key with a blob
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ============================================================================
// Type-Safe ID Wrappers
// ============================================================================

// FrameID identifies one mounted execution context (a frame identity key)
type FrameID string

// BlobID identifies one object-URL backed document
type BlobID string

// EntryID identifies one telemetry log entry
type EntryID string

// SessionID identifies a preview session
type SessionID string

// ============================================================================
// ID Prefixes
// ============================================================================

const (
	FramePrefix   = "frm"
	BlobPrefix    = "blob"
	EntryPrefix   = "log"
	SessionPrefix = "sess"
	TracePrefix   = "trc"
	SpanPrefix    = "spn"
)

// ============================================================================
// ULID Generator
// ============================================================================

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by a monotonic entropy source so
// IDs minted within the same millisecond still sort in creation order.
func NewGenerator() *Generator {
	return NewGeneratorWithEntropy(rand.Reader)
}

// NewGeneratorWithEntropy creates a generator with custom entropy source
// Useful for testing with deterministic entropy
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: ulid.Monotonic(entropy, 0),
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// ============================================================================
// Typed ID Generators
// ============================================================================

// NewFrameID generates a fresh frame identity key
func NewFrameID() FrameID {
	return FrameID(Default().GenerateWithPrefix(FramePrefix))
}

// NewBlobID generates a new blob ID
func NewBlobID() BlobID {
	return BlobID(Default().GenerateWithPrefix(BlobPrefix))
}

// NewEntryID generates a new log entry ID
func NewEntryID() EntryID {
	return EntryID(Default().GenerateWithPrefix(EntryPrefix))
}

// NewSessionID generates a new session ID
func NewSessionID() SessionID {
	return SessionID(Default().GenerateWithPrefix(SessionPrefix))
}

func (id FrameID) String() string   { return string(id) }
func (id BlobID) String() string    { return string(id) }
func (id EntryID) String() string   { return string(id) }
func (id SessionID) String() string { return string(id) }

// ============================================================================
// Validation
// ============================================================================

// IsValid checks if an ID string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

// HasPrefix reports whether a prefixed ID carries the given prefix and a valid ULID
func HasPrefix(s, prefix string) bool {
	rest, ok := strings.CutPrefix(s, prefix+"_")
	return ok && IsValid(rest)
}

// Timestamp extracts the timestamp from a prefixed or bare ULID
func Timestamp(s string) (time.Time, error) {
	if i := strings.LastIndexByte(s, '_'); i >= 0 {
		s = s[i+1:]
	}
	parsed, err := ulid.Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}

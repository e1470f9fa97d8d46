package host

import (
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/synth"
	"github.com/GriffinCanCode/AgentOS/preview/internal/shared/id"
)

// DeliveryKind is how a document reaches the frame.
type DeliveryKind string

const (
	// Inline embeds the document in the frame's srcdoc.
	Inline DeliveryKind = "inline"
	// ObjectURL serves the document from a revocable URL with a stable origin.
	ObjectURL DeliveryKind = "object-url"
)

// DefaultInlineLimit is the largest document delivered inline.
const DefaultInlineLimit = 1 << 20

// Delivery is the handle for one mounted document: an inline marker, or an
// object-URL owned by the Host.
type Delivery struct {
	Kind   DeliveryKind `json:"kind"`
	URL    string       `json:"url,omitempty"`
	BlobID id.BlobID    `json:"blobId,omitempty"`
	SrcDoc string       `json:"srcdoc,omitempty"`
}

// Strategy picks a delivery kind for a document.
type Strategy interface {
	Choose(doc synth.Document) DeliveryKind
}

// CapabilityStrategy decides purely from the document's needs-module-resolution
// capability, falling back to an object-URL for documents too large to inline.
type CapabilityStrategy struct {
	InlineLimit int
}

func (s CapabilityStrategy) Choose(doc synth.Document) DeliveryKind {
	limit := s.InlineLimit
	if limit <= 0 {
		limit = DefaultInlineLimit
	}
	if doc.NeedsModules || doc.Size() > limit {
		return ObjectURL
	}
	return Inline
}

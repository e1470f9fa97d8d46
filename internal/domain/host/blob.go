package host

import (
	"errors"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/preview/internal/shared/id"
)

// ErrRevoked is returned for an object-URL that no longer exists.
var ErrRevoked = errors.New("object-url revoked")

// Blob is the content behind one object-URL.
type Blob struct {
	ID          id.BlobID
	Content     []byte
	ContentType string
	CreatedAt   time.Time
}

// BlobStore holds object-URL content until it is revoked. The Host is its
// only writer.
type BlobStore struct {
	mu      sync.RWMutex
	blobs   map[id.BlobID]*Blob
	peak    int
	created int
	revoked int
}

// NewBlobStore creates an empty store.
func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[id.BlobID]*Blob)}
}

// Create stores content and returns its id.
func (s *BlobStore) Create(content []byte, contentType string) id.BlobID {
	b := &Blob{ID: id.NewBlobID(), Content: content, ContentType: contentType, CreatedAt: time.Now()}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[b.ID] = b
	s.created++
	if len(s.blobs) > s.peak {
		s.peak = len(s.blobs)
	}
	return b.ID
}

// Revoke drops a blob; later lookups fail.
func (s *BlobStore) Revoke(blobID id.BlobID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[blobID]; !ok {
		return ErrRevoked
	}
	delete(s.blobs, blobID)
	s.revoked++
	return nil
}

// Get returns a live blob.
func (s *BlobStore) Get(blobID id.BlobID) (*Blob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[blobID]
	return b, ok
}

// Live returns the number of unrevoked blobs.
func (s *BlobStore) Live() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// BlobStats summarizes store activity.
type BlobStats struct {
	Live    int `json:"live"`
	Peak    int `json:"peak"`
	Created int `json:"created"`
	Revoked int `json:"revoked"`
}

// Stats returns counters since creation.
func (s *BlobStore) Stats() BlobStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return BlobStats{Live: len(s.blobs), Peak: s.peak, Created: s.created, Revoked: s.revoked}
}

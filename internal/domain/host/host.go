package host

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/source"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/synth"
	"github.com/GriffinCanCode/AgentOS/preview/internal/shared/id"
)

const (
	MinZoom     = 0.25
	MaxZoom     = 3.0
	DefaultZoom = 1.0

	// KeyEscape exits full-screen.
	KeyEscape = "Escape"

	htmlContentType = "text/html; charset=utf-8"
)

// ErrNothingMounted is returned by actions that need a mounted document.
var ErrNothingMounted = errors.New("no document mounted")

// Frame is the host-visible state of the mounted execution context.
type Frame struct {
	Key        id.FrameID     `json:"key"`
	Profile    source.Profile `json:"profile"`
	Document   synth.Document `json:"document"`
	Delivery   Delivery       `json:"delivery"`
	Zoom       float64        `json:"zoom"`
	FullScreen bool           `json:"fullScreen"`
	MountedAt  time.Time      `json:"mountedAt"`
}

// View is the compensating transform for the current zoom: the frame is laid
// out at Width×Height percent and scaled back down.
type View struct {
	Zoom      float64 `json:"zoom"`
	Transform string  `json:"transform"`
	Origin    string  `json:"transformOrigin"`
	Width     string  `json:"width"`
	Height    string  `json:"height"`
}

// ViewFor computes the view for zoom z.
func ViewFor(z float64) View {
	pct := fmt.Sprintf("%g%%", math.Round(10000/z)/100)
	return View{
		Zoom:      z,
		Transform: fmt.Sprintf("scale(%g)", z),
		Origin:    "0 0",
		Width:     pct,
		Height:    pct,
	}
}

// Host mounts preview documents and is the single owner of the object-URL
// slot: at most one object-URL is live, and it is revoked before a new one is
// created and on teardown.
type Host struct {
	blobs    *BlobStore
	strategy Strategy
	origin   string
	logger   *zap.Logger

	mu        sync.RWMutex
	frame     *Frame
	zoom      float64
	listeners []func(Frame)
}

// Options configures a Host.
type Options struct {
	// Origin prefixes object-URLs.
	Origin   string
	Strategy Strategy
}

// New creates a host storing object-URL content in blobs.
func New(blobs *BlobStore, opts Options, logger *zap.Logger) *Host {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Strategy == nil {
		opts.Strategy = CapabilityStrategy{}
	}
	return &Host{
		blobs:    blobs,
		strategy: opts.Strategy,
		origin:   strings.TrimRight(opts.Origin, "/"),
		logger:   logger,
		zoom:     DefaultZoom,
	}
}

// OnMount registers fn to receive every new frame identity.
func (h *Host) OnMount(fn func(Frame)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// Mount delivers doc into a fresh execution context.
func (h *Host) Mount(doc synth.Document) Frame {
	h.mu.Lock()
	h.releaseLocked()
	delivery := h.deliverLocked(doc)
	f := &Frame{
		Key:       id.NewFrameID(),
		Profile:   doc.Profile,
		Document:  doc,
		Delivery:  delivery,
		Zoom:      h.zoom,
		MountedAt: time.Now(),
	}
	if h.frame != nil {
		f.FullScreen = h.frame.FullScreen
	}
	h.frame = f
	out, listeners := *f, h.snapshotListenersLocked()
	h.mu.Unlock()

	h.logger.Debug("Mounted preview document",
		zap.String("frame", out.Key.String()),
		zap.String("delivery", string(delivery.Kind)),
		zap.String("profile", string(doc.Profile)),
		zap.Int("bytes", doc.Size()))
	notify(listeners, out)
	return out
}

// Reload remounts the current document under a fresh identity key, discarding
// all in-frame state.
func (h *Host) Reload() (Frame, error) {
	h.mu.RLock()
	cur := h.frame
	h.mu.RUnlock()
	if cur == nil {
		return Frame{}, ErrNothingMounted
	}
	return h.Mount(cur.Document), nil
}

// SetZoom applies a compensating transform. It does not remount.
func (h *Host) SetZoom(z float64) View {
	if math.IsNaN(z) || z <= 0 {
		z = DefaultZoom
	}
	z = math.Max(MinZoom, math.Min(MaxZoom, z))

	h.mu.Lock()
	defer h.mu.Unlock()
	h.zoom = z
	if h.frame != nil {
		h.frame.Zoom = z
	}
	return ViewFor(z)
}

// Zoom returns the current view.
func (h *Host) Zoom() View {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return ViewFor(h.zoom)
}

// SetFullScreen moves the frame in or out of the full-screen portal.
// Re-parenting starts a fresh execution context, so a change of state issues
// a new identity key; the delivery is reused.
func (h *Host) SetFullScreen(on bool) (Frame, error) {
	h.mu.Lock()
	if h.frame == nil {
		h.mu.Unlock()
		return Frame{}, ErrNothingMounted
	}
	if h.frame.FullScreen == on {
		out := *h.frame
		h.mu.Unlock()
		return out, nil
	}
	f := *h.frame
	f.Key = id.NewFrameID()
	f.FullScreen = on
	f.MountedAt = time.Now()
	h.frame = &f
	listeners := h.snapshotListenersLocked()
	h.mu.Unlock()

	notify(listeners, f)
	return f, nil
}

// HandleKey applies a host keyboard shortcut. It reports whether the key
// changed anything.
func (h *Host) HandleKey(key string) (bool, error) {
	if key != KeyEscape {
		return false, nil
	}
	h.mu.RLock()
	full := h.frame != nil && h.frame.FullScreen
	h.mu.RUnlock()
	if !full {
		return false, nil
	}
	_, err := h.SetFullScreen(false)
	return err == nil, err
}

// Current returns the mounted frame.
func (h *Host) Current() (Frame, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.frame == nil {
		return Frame{}, false
	}
	return *h.frame, true
}

// IsCurrent reports whether key identifies the mounted frame. Messages from
// any other frame are stale.
func (h *Host) IsCurrent(key id.FrameID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.frame != nil && h.frame.Key == key
}

// Teardown unmounts and revokes the live object-URL.
func (h *Host) Teardown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.releaseLocked()
	h.frame = nil
}

// Blobs exposes the store for serving object-URL content.
func (h *Host) Blobs() *BlobStore { return h.blobs }

func (h *Host) deliverLocked(doc synth.Document) Delivery {
	if h.strategy.Choose(doc) == Inline {
		return Delivery{Kind: Inline, SrcDoc: doc.HTML}
	}
	blobID := h.blobs.Create([]byte(doc.HTML), htmlContentType)
	return Delivery{Kind: ObjectURL, BlobID: blobID, URL: h.origin + "/blob/" + blobID.String()}
}

// releaseLocked revokes the current object-URL, if any.
func (h *Host) releaseLocked() {
	if h.frame == nil || h.frame.Delivery.Kind != ObjectURL {
		return
	}
	if err := h.blobs.Revoke(h.frame.Delivery.BlobID); err != nil {
		h.logger.Warn("Object-URL already revoked", zap.String("blob", h.frame.Delivery.BlobID.String()))
	}
}

func (h *Host) snapshotListenersLocked() []func(Frame) {
	return append([]func(Frame){}, h.listeners...)
}

func notify(listeners []func(Frame), f Frame) {
	for _, fn := range listeners {
		fn(f)
	}
}

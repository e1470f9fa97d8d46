package host

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/source"
	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/synth"
	"github.com/GriffinCanCode/AgentOS/preview/internal/shared/id"
)

func moduleDoc(body string) synth.Document {
	return synth.Document{HTML: "<html>" + body + "</html>", Profile: source.ProfileCanvas, Kind: synth.KindTemplate, NeedsModules: true}
}

func inlineDoc(body string) synth.Document {
	return synth.Document{HTML: "<p>" + body + "</p>", Profile: source.ProfileMarkup, Kind: synth.KindTemplate}
}

func newHost() *Host {
	return New(NewBlobStore(), Options{Origin: "http://localhost:8000/"}, nil)
}

func TestStrategy(t *testing.T) {
	s := CapabilityStrategy{InlineLimit: 10}

	assert.Equal(t, Inline, s.Choose(synth.Document{HTML: "small"}))
	assert.Equal(t, ObjectURL, s.Choose(synth.Document{HTML: "small", NeedsModules: true}))
	assert.Equal(t, ObjectURL, s.Choose(synth.Document{HTML: strings.Repeat("x", 11)}))
	assert.Equal(t, Inline, CapabilityStrategy{}.Choose(synth.Document{HTML: strings.Repeat("x", 4096)}))
}

func TestSequentialModuleMountsLeaveOneLiveURL(t *testing.T) {
	h := newHost()

	first := h.Mount(moduleDoc("a"))
	second := h.Mount(moduleDoc("b"))

	assert.Equal(t, 1, h.Blobs().Live())
	_, ok := h.Blobs().Get(first.Delivery.BlobID)
	assert.False(t, ok, "the first object-url must be revoked")
	blob, ok := h.Blobs().Get(second.Delivery.BlobID)
	require.True(t, ok)
	assert.Equal(t, "<html>b</html>", string(blob.Content))
	assert.Equal(t, "http://localhost:8000/blob/"+second.Delivery.BlobID.String(), second.Delivery.URL)
	assert.NotEqual(t, first.Key, second.Key)
}

func TestManyDeliveriesNeverOverlap(t *testing.T) {
	h := newHost()
	const n = 25

	for i := 0; i < n; i++ {
		doc := moduleDoc(strings.Repeat("m", i))
		if i%3 == 1 {
			doc = inlineDoc("i")
		}
		h.Mount(doc)
		assert.LessOrEqual(t, h.Blobs().Live(), 1)
	}
	last := h.Mount(moduleDoc("final"))

	stats := h.Blobs().Stats()
	assert.Equal(t, 1, stats.Peak, "at most one object-url is ever live")
	assert.Equal(t, 1, stats.Live)
	assert.Equal(t, stats.Created-1, stats.Revoked)
	_, ok := h.Blobs().Get(last.Delivery.BlobID)
	assert.True(t, ok)
}

func TestInlineMountRevokesPreviousURL(t *testing.T) {
	h := newHost()
	h.Mount(moduleDoc("a"))

	f := h.Mount(inlineDoc("b"))

	assert.Equal(t, Inline, f.Delivery.Kind)
	assert.Equal(t, "<p>b</p>", f.Delivery.SrcDoc)
	assert.Zero(t, h.Blobs().Live())
}

func TestReloadIssuesFreshKey(t *testing.T) {
	h := newHost()
	_, err := h.Reload()
	assert.ErrorIs(t, err, ErrNothingMounted)

	first := h.Mount(moduleDoc("a"))
	reloaded, err := h.Reload()

	require.NoError(t, err)
	assert.NotEqual(t, first.Key, reloaded.Key)
	assert.Equal(t, first.Document, reloaded.Document)
	assert.NotEqual(t, first.Delivery.BlobID, reloaded.Delivery.BlobID)
	assert.Equal(t, 1, h.Blobs().Live())
	assert.False(t, h.IsCurrent(first.Key))
	assert.True(t, h.IsCurrent(reloaded.Key))
}

func TestZoomDoesNotRemount(t *testing.T) {
	h := newHost()
	f := h.Mount(inlineDoc("a"))

	v := h.SetZoom(0.5)

	assert.Equal(t, 0.5, v.Zoom)
	assert.Equal(t, "scale(0.5)", v.Transform)
	assert.Equal(t, "200%", v.Width)
	assert.True(t, h.IsCurrent(f.Key))

	assert.Equal(t, MaxZoom, h.SetZoom(10).Zoom)
	assert.Equal(t, MinZoom, h.SetZoom(0.01).Zoom)
	assert.Equal(t, DefaultZoom, h.SetZoom(-1).Zoom)

	cur, _ := h.Current()
	assert.Equal(t, DefaultZoom, cur.Zoom)
}

func TestFullScreenAndEscape(t *testing.T) {
	h := newHost()
	_, err := h.SetFullScreen(true)
	assert.ErrorIs(t, err, ErrNothingMounted)

	f := h.Mount(moduleDoc("a"))
	full, err := h.SetFullScreen(true)
	require.NoError(t, err)
	assert.True(t, full.FullScreen)
	assert.NotEqual(t, f.Key, full.Key, "re-parenting is a fresh execution context")
	assert.Equal(t, f.Delivery, full.Delivery)
	assert.Equal(t, 1, h.Blobs().Live())

	same, err := h.SetFullScreen(true)
	require.NoError(t, err)
	assert.Equal(t, full.Key, same.Key)

	changed, err := h.HandleKey("Enter")
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = h.HandleKey(KeyEscape)
	require.NoError(t, err)
	assert.True(t, changed)
	cur, _ := h.Current()
	assert.False(t, cur.FullScreen)

	changed, _ = h.HandleKey(KeyEscape)
	assert.False(t, changed)
}

func TestTeardownRevokes(t *testing.T) {
	h := newHost()
	f := h.Mount(moduleDoc("a"))

	h.Teardown()

	assert.Zero(t, h.Blobs().Live())
	assert.False(t, h.IsCurrent(f.Key))
	_, ok := h.Current()
	assert.False(t, ok)
	h.Teardown()
}

func TestOnMountReceivesEveryIdentity(t *testing.T) {
	h := newHost()
	var keys []id.FrameID
	h.OnMount(func(f Frame) { keys = append(keys, f.Key) })

	a := h.Mount(inlineDoc("a"))
	b, _ := h.Reload()
	c, _ := h.SetFullScreen(true)

	assert.Equal(t, []id.FrameID{a.Key, b.Key, c.Key}, keys)
}

func TestBlobStoreRevoke(t *testing.T) {
	s := NewBlobStore()
	blobID := s.Create([]byte("x"), "text/html")

	require.NoError(t, s.Revoke(blobID))
	assert.ErrorIs(t, s.Revoke(blobID), ErrRevoked)
	_, ok := s.Get(blobID)
	assert.False(t, ok)
}

package http

import (
	"errors"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"

	"github.com/GriffinCanCode/AgentOS/preview/internal/domain/host"
	"github.com/GriffinCanCode/AgentOS/preview/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/preview/internal/shared/utils"
)

// GetFrame returns the mounted frame and the current view
func (h *Handlers) GetFrame(c *gin.Context) {
	f, ok := h.host.Current()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": host.ErrNothingMounted.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"frame": frameResponse(f, c.Query("document") == "true"),
		"view":  h.host.Zoom(),
	})
}

// Reload remounts the current document under a fresh key
func (h *Handlers) Reload(c *gin.Context) {
	f, err := h.host.Reload()
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"frame": frameResponse(f, false)})
}

type zoomRequest struct {
	Zoom float64 `json:"zoom" binding:"required"`
}

// SetZoom applies a zoom level without remounting
func (h *Handlers) SetZoom(c *gin.Context) {
	var req zoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	v := h.host.SetZoom(req.Zoom)
	h.hub.PublishView(v)
	c.JSON(http.StatusOK, gin.H{"view": v})
}

type fullScreenRequest struct {
	On bool `json:"on"`
}

// SetFullScreen moves the frame in or out of the portal
func (h *Handlers) SetFullScreen(c *gin.Context) {
	var req fullScreenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	f, err := h.host.SetFullScreen(req.On)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"frame": frameResponse(f, false)})
}

type keyRequest struct {
	Key string `json:"key" binding:"required"`
}

// HandleKey applies a host keyboard shortcut
func (h *Handlers) HandleKey(c *gin.Context) {
	var req keyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := utils.ValidateKey(req.Key); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	handled, err := h.host.HandleKey(req.Key)
	if err != nil && !errors.Is(err, host.ErrNothingMounted) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"handled": handled})
}

// Blob serves object-URL content. Revoked URLs are gone.
func (h *Handlers) Blob(c *gin.Context) {
	h.blobHandler.ServeHTTP(c.Writer, c.Request)
}

func (h *Handlers) serveBlob(w http.ResponseWriter, r *http.Request) {
	blobID := path.Base(r.URL.Path)
	if err := utils.ValidateID(blobID, "blob_id", true); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	b, ok := h.host.Blobs().Get(id.BlobID(blobID))
	if !ok {
		http.Error(w, host.ErrRevoked.Error(), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", b.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(b.Content)
	}
}

func newBlobHandler(h *Handlers) http.Handler {
	return gzhttp.GzipHandler(http.HandlerFunc(h.serveBlob))
}

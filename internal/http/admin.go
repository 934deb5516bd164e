package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mail-market/internal/storage"
)

const orphanURLExpiry = 15 * time.Minute

func (h *Handler) listOrphans(c *gin.Context) {
	if h.archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "object storage not configured"})
		return
	}

	objects, err := h.archive.ListObjects(c.Request.Context(), storage.OrphanPrefix)
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := make([]StorageObjectResponse, len(objects))
	for i := range objects {
		resp[i] = objectToResponse(objects[i])
		url, err := h.archive.GetObjectURL(c.Request.Context(), objects[i].Key, orphanURLExpiry)
		if err != nil {
			h.log.WithError(err).WithField("key", objects[i].Key).Warn("presign orphan")
			continue
		}
		resp[i].URL = url
	}
	c.JSON(http.StatusOK, resp)
}

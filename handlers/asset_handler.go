package handlers

import (
	"io/fs"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AssetHandler serves the service worker and static page assets
type AssetHandler struct {
	static fs.FS
}

// NewAssetHandler creates a new asset handler
func NewAssetHandler(static fs.FS) *AssetHandler {
	return &AssetHandler{static: static}
}

// Static returns the filesystem mounted under /static
func (h *AssetHandler) Static() http.FileSystem {
	return http.FS(h.static)
}

// ServiceWorker handles GET /service-worker.js
func (h *AssetHandler) ServiceWorker(c *gin.Context) {
	script, err := fs.ReadFile(h.static, "service-worker.js")
	if err != nil {
		c.String(http.StatusNotFound, "service worker not found")
		return
	}

	c.Header("Service-Worker-Allowed", "/")
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "application/javascript; charset=utf-8", script)
}

// RegistrationReport is sent by the page after trying to register the worker
type RegistrationReport struct {
	Outcome string `json:"outcome"`
	Detail  string `json:"detail"`
}

// ReportRegistration handles POST /api/sw/registration. The outcome is only
// logged and the answer is always 204.
func (h *AssetHandler) ReportRegistration(c *gin.Context) {
	var report RegistrationReport
	if err := c.ShouldBindJSON(&report); err != nil {
		log.Printf("Service worker registration report unreadable: %v", err)
		c.Status(http.StatusNoContent)
		return
	}

	switch report.Outcome {
	case "registered":
		log.Printf("Service worker registered with scope: %s", report.Detail)
	default:
		log.Printf("Service worker registration failed: %s", report.Detail)
	}
	c.Status(http.StatusNoContent)
}

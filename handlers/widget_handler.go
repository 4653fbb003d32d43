package handlers

import (
	"bytes"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"casefinder-web/models"
	"casefinder-web/render"
	"casefinder-web/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SessionCookieName is the cookie carrying the widget session ID
const SessionCookieName = "casefinder_session"

// WidgetHandler handles HTTP requests for the upload widget
type WidgetHandler struct {
	widgetService *service.WidgetService
	renderer      *render.Renderer
}

// NewWidgetHandler creates a new widget handler
func NewWidgetHandler(widgetService *service.WidgetService, renderer *render.Renderer) *WidgetHandler {
	return &WidgetHandler{
		widgetService: widgetService,
		renderer:      renderer,
	}
}

// sessionID returns the session of the caller, issuing a cookie if needed
func sessionID(c *gin.Context) uuid.UUID {
	if raw, err := c.Cookie(SessionCookieName); err == nil {
		if id, err := uuid.Parse(raw); err == nil {
			return id
		}
	}

	id := uuid.New()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookieName, id.String(), 0, "/", "", false, true)
	return id
}

func wantsJSON(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "application/json")
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func respondView(c *gin.Context, session *models.Session) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"session_id":    session.ID,
			"display_limit": session.Pagination.Limit,
			"view":          session.View,
		},
	})
}

// Index handles GET /
func (h *WidgetHandler) Index(c *gin.Context) {
	session, err := h.widgetService.Session(c.Request.Context(), sessionID(c))
	if err != nil {
		log.Printf("Failed to load session: %v", err)
		c.String(http.StatusInternalServerError, "Failed to load session")
		return
	}

	var page bytes.Buffer
	if err := h.renderer.RenderPage(&page, session); err != nil {
		log.Printf("Failed to render page: %v", err)
		c.String(http.StatusInternalServerError, "Error rendering page")
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "text/html; charset=utf-8", page.Bytes())
}

// fileUpload reads the optional "file" part. A missing part means no file
// is selected.
func fileUpload(c *gin.Context) (*service.FileUpload, func(), error) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, func() {}, nil
		}
		return nil, func() {}, err
	}
	if fileHeader.Filename == "" {
		return nil, func() {}, nil
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, func() {}, err
	}

	return &service.FileUpload{
		Filename: fileHeader.Filename,
		MimeType: fileHeader.Header.Get("Content-Type"),
		Size:     fileHeader.Size,
		Data:     file,
	}, func() { file.Close() }, nil
}

// ChooseFile handles POST /file
func (h *WidgetHandler) ChooseFile(c *gin.Context) {
	upload, done, err := fileUpload(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_FILE", err.Error())
		return
	}
	defer done()

	session, err := h.widgetService.ChooseFile(c.Request.Context(), sessionID(c), upload)
	if err != nil {
		log.Printf("Failed to record file selection: %v", err)
		respondError(c, http.StatusInternalServerError, "FILE_SELECTION_FAILED", err.Error())
		return
	}

	if wantsJSON(c) {
		respondView(c, session)
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

// Submit handles POST /submit. A file sent with the form replaces the
// current selection before the upload runs.
func (h *WidgetHandler) Submit(c *gin.Context) {
	id := sessionID(c)

	upload, done, err := fileUpload(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_FILE", err.Error())
		return
	}
	defer done()

	if upload != nil {
		if _, err := h.widgetService.ChooseFile(c.Request.Context(), id, upload); err != nil {
			log.Printf("Failed to record file selection: %v", err)
			respondError(c, http.StatusInternalServerError, "FILE_SELECTION_FAILED", err.Error())
			return
		}
	}

	result, err := h.widgetService.Submit(c.Request.Context(), id)
	h.finishSubmit(c, result, err)
}

// ShowMore handles POST /more
func (h *WidgetHandler) ShowMore(c *gin.Context) {
	result, err := h.widgetService.ShowMore(c.Request.Context(), sessionID(c))
	h.finishSubmit(c, result, err)
}

// finishSubmit answers after a submission. Widget errors are already part
// of the session view; only infrastructure failures fail the request.
func (h *WidgetHandler) finishSubmit(c *gin.Context, result *service.SubmitResult, err error) {
	if err != nil && !isWidgetError(err) {
		log.Printf("Submission failed: %v", err)
		respondError(c, http.StatusInternalServerError, "SUBMISSION_FAILED", err.Error())
		return
	}

	if wantsJSON(c) {
		respondView(c, result.Session)
		return
	}
	c.Redirect(http.StatusSeeOther, "/#results")
}

func isWidgetError(err error) bool {
	var validationErr *service.ValidationError
	var backendErr *service.BackendError
	var transportErr *service.TransportError
	return errors.As(err, &validationErr) ||
		errors.As(err, &backendErr) ||
		errors.As(err, &transportErr) ||
		errors.Is(err, service.ErrSuperseded)
}

// View handles GET /api/view
func (h *WidgetHandler) View(c *gin.Context) {
	session, err := h.widgetService.Session(c.Request.Context(), sessionID(c))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "SESSION_ERROR", err.Error())
		return
	}
	respondView(c, session)
}

// Submissions handles GET /api/submissions
func (h *WidgetHandler) Submissions(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(c, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer")
			return
		}
		limit = n
	}

	submissions, err := h.widgetService.RecentSubmissions(c.Request.Context(), sessionID(c), limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "SUBMISSIONS_ERROR", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    submissions,
	})
}

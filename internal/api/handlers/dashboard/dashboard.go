// Package dashboard provides the sales dashboard API handlers.
// Every view is recomputed from the current session on each request.
package dashboard

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/bleedingdev/salesdash/internal/export"
	"github.com/bleedingdev/salesdash/internal/report"
	"github.com/bleedingdev/salesdash/internal/sales"
	"github.com/bleedingdev/salesdash/internal/session"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Loader resolves a dataset location, e.g. *source.Loader.
type Loader interface {
	Load(ctx context.Context, location string) (*sales.Dataset, error)
}

// Handler serves the dashboard API for one session manager.
type Handler struct {
	sessions *session.Manager
	loader   Loader
	now      func() time.Time
}

// NewHandler creates a handler. loader may be nil, which disables reloads.
func NewHandler(sessions *session.Manager, loader Loader) *Handler {
	return &Handler{sessions: sessions, loader: loader, now: time.Now}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	Version string `json:"version"`
	Dataset bool   `json:"dataset"`
	Session string `json:"session,omitempty"`
	Rows    int    `json:"rows,omitempty"`
}

// LoadErrorResponse is returned when a dataset fails validation.
type LoadErrorResponse struct {
	Error  string `json:"error"`
	Line   int    `json:"line,omitempty"`
	Column string `json:"column,omitempty"`
}

// GetHealth handles GET /health requests.
func (h *Handler) GetHealth(c *gin.Context) {
	response := HealthResponse{OK: true, Version: Version}
	if s, err := h.sessions.Current(); err == nil {
		response.Dataset = true
		response.Session = s.ID
		response.Rows = s.Dataset.Len()
	}
	c.JSON(http.StatusOK, response)
}

// current returns the active session or writes a 409 and returns nil.
func (h *Handler) current(c *gin.Context) *session.Session {
	s, err := h.sessions.Current()
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return nil
	}
	return s
}

// notModified sets the ETag for the session's dataset and reports whether the client
// copy is still current.
func notModified(c *gin.Context, s *session.Session) bool {
	etag := `"` + s.Dataset.Fingerprint() + `"`
	c.Header("ETag", etag)
	c.Header("Cache-Control", "no-cache")
	for _, candidate := range strings.Split(c.GetHeader("If-None-Match"), ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == etag || candidate == "*" {
			c.Status(http.StatusNotModified)
			return true
		}
	}
	return false
}

// GetDataset handles GET /api/dataset requests.
func (h *Handler) GetDataset(c *gin.Context) {
	s := h.current(c)
	if s == nil {
		return
	}
	c.JSON(http.StatusOK, s.Info())
}

// PostDataset handles POST /api/dataset requests.
// The CSV (optionally gzip or zstd compressed) is taken from the multipart field "file"
// or, for any other content type, from the raw request body.
func (h *Handler) PostDataset(c *gin.Context) {
	body, name, err := uploadBody(c)
	if err != nil {
		writeUploadError(c, err)
		return
	}
	defer body.Close()

	ds, err := sales.Load(body)
	if err != nil {
		writeLoadError(c, err, http.StatusBadRequest)
		return
	}
	s := h.sessions.Replace("upload:"+name, ds)
	c.JSON(http.StatusCreated, s.Info())
}

func uploadBody(c *gin.Context) (io.ReadCloser, string, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			return nil, "", err
		}
		f, err := fh.Open()
		if err != nil {
			return nil, "", err
		}
		return f, fh.Filename, nil
	}
	name := c.Query("name")
	if name == "" {
		name = "body"
	}
	return c.Request.Body, name, nil
}

func writeUploadError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid upload: " + err.Error()})
}

// writeLoadError maps a dataset load failure to a response. Failures that are neither
// validation errors nor oversized bodies are reported with fallback.
func writeLoadError(c *gin.Context, err error, fallback int) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
		return
	}
	var loadErr *sales.LoadError
	if errors.As(err, &loadErr) {
		log.WithError(err).Warn("Rejected dataset")
		c.JSON(http.StatusUnprocessableEntity, LoadErrorResponse{
			Error:  loadErr.Error(),
			Line:   loadErr.Line,
			Column: loadErr.Column,
		})
		return
	}
	log.WithError(err).Error("Failed to load dataset")
	c.JSON(fallback, gin.H{"error": "failed to load dataset: " + err.Error()})
}

// ReloadDataset handles POST /api/dataset/reload requests by re-reading the current
// session's source location.
func (h *Handler) ReloadDataset(c *gin.Context) {
	s := h.current(c)
	if s == nil {
		return
	}
	if h.loader == nil || strings.HasPrefix(s.Source, "upload:") {
		c.JSON(http.StatusConflict, gin.H{"error": "dataset was uploaded and cannot be reloaded"})
		return
	}
	ds, err := h.loader.Load(c.Request.Context(), s.Source)
	if err != nil {
		writeLoadError(c, err, http.StatusBadGateway)
		return
	}
	next := h.sessions.Replace(s.Source, ds)
	c.JSON(http.StatusOK, next.Info())
}

// DeleteDataset handles DELETE /api/dataset requests.
func (h *Handler) DeleteDataset(c *gin.Context) {
	h.sessions.Clear()
	c.Status(http.StatusNoContent)
}

// GetSelections handles GET /api/selections requests.
func (h *Handler) GetSelections(c *gin.Context) {
	s := h.current(c)
	if s == nil || notModified(c, s) {
		return
	}
	c.JSON(http.StatusOK, report.BuildSelections(s.Rows()))
}

// GetOverview handles GET /api/overview requests.
func (h *Handler) GetOverview(c *gin.Context) {
	s := h.current(c)
	if s == nil || notModified(c, s) {
		return
	}
	c.JSON(http.StatusOK, report.BuildOverview(s.Rows()))
}

// GetStore handles GET /api/stores/:store requests.
func (h *Handler) GetStore(c *gin.Context) {
	s := h.current(c)
	if s == nil {
		return
	}
	store, err := sales.ParseInt(c.Param("store"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid store number: " + c.Param("store")})
		return
	}
	h.writeBundle(c, s, report.Query{View: report.ViewStore, Store: &store}, func(b *report.Bundle) any { return b.Store })
}

// GetState handles GET /api/states/:state requests.
func (h *Handler) GetState(c *gin.Context) {
	s := h.current(c)
	if s == nil {
		return
	}
	h.writeBundle(c, s, report.Query{View: report.ViewState, State: c.Param("state")}, func(b *report.Bundle) any { return b.State })
}

// GetComparison handles GET /api/comparison requests.
// Query parameters:
//   - state: state name or "all" (default: all)
//   - year: year or "all" (default: all)
func (h *Handler) GetComparison(c *gin.Context) {
	s := h.current(c)
	if s == nil {
		return
	}
	f, err := report.ParseFilter(c.Query("state"), c.Query("year"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if notModified(c, s) {
		return
	}
	c.JSON(http.StatusOK, report.BuildComparison(s.Rows(), f))
}

func (h *Handler) writeBundle(c *gin.Context, s *session.Session, q report.Query, pick func(*report.Bundle) any) {
	b, err := report.BuildBundle(s.Rows(), q)
	if err != nil {
		writeQueryError(c, err)
		return
	}
	if notModified(c, s) {
		return
	}
	c.JSON(http.StatusOK, pick(b))
}

func writeQueryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, report.ErrUnknownSelection):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, report.ErrUnknownView),
		errors.Is(err, report.ErrInvalidFilter),
		errors.Is(err, export.ErrUnknownFormat):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.WithError(err).Error("Failed to build report")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build report"})
	}
}

// GetExport handles GET /api/export requests.
// Query parameters:
//   - format: json, pretty, text, csv, xlsx or sqlite (default: csv)
//   - view: overview, store, state, comparison or all (default: all)
//   - store: store number for the store view (default: first store)
//   - state, year: comparison filter; state also selects the state view
//   - store_state: state view selection when it should differ from the filter
func (h *Handler) GetExport(c *gin.Context) {
	s := h.current(c)
	if s == nil {
		return
	}
	format, err := export.ParseFormat(c.DefaultQuery("format", "csv"))
	if err != nil {
		writeQueryError(c, err)
		return
	}
	q, err := report.ParseQuery(c.Query("view"), c.Query("store"), c.Query("store_state"), c.Query("state"), c.Query("year"))
	if err != nil {
		writeQueryError(c, err)
		return
	}
	b, err := report.BuildBundle(s.Rows(), q)
	if err != nil {
		writeQueryError(c, err)
		return
	}

	doc := export.Document{
		Bundle: b,
		Rows:   s.Rows(),
		Meta: export.Meta{
			Session:     s.ID,
			Source:      s.DisplaySource,
			Fingerprint: s.Dataset.Fingerprint(),
			Rows:        s.Dataset.Len(),
			GeneratedAt: h.now().UTC(),
		},
	}
	var buf bytes.Buffer
	if err := export.Render(c.Request.Context(), &buf, format, doc); err != nil {
		log.WithError(err).WithField("format", format).Error("Failed to render export")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render export"})
		return
	}

	filename := "salesdash-" + string(q.View) + format.Extension()
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

// RegisterRoutes registers the dashboard routes to the router.
func RegisterRoutes(router gin.IRouter, h *Handler) {
	router.GET("/health", h.GetHealth)

	api := router.Group("/api")
	{
		api.GET("/dataset", h.GetDataset)
		api.POST("/dataset", h.PostDataset)
		api.POST("/dataset/reload", h.ReloadDataset)
		api.DELETE("/dataset", h.DeleteDataset)

		api.GET("/selections", h.GetSelections)
		api.GET("/overview", h.GetOverview)
		api.GET("/stores/:store", h.GetStore)
		api.GET("/states/:state", h.GetState)
		api.GET("/comparison", h.GetComparison)
		api.GET("/export", h.GetExport)
	}

	log.WithField("prefix", "/api").Debug("Dashboard API registered")
}

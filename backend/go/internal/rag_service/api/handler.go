// Package api exposes the document QA service over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"DocQA/backend/go/internal/rag_service/console"
	"DocQA/backend/go/internal/rag_service/rag/schema"
	"DocQA/backend/go/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handler serves the /api/v1/rag routes.
type Handler struct {
	svc console.Service
	log *logger.Logger
}

func NewHandler(svc console.Service, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{svc: svc, log: log}
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/healthz", h.health)
	r.GET("/ws/console", h.console)

	v1 := r.Group("/api/v1/rag")
	{
		v1.POST("/ask", h.ask)
		v1.GET("/index", h.describe)
		v1.DELETE("/index/records", h.deleteRecords)
		v1.POST("/reindex", h.reindex)
	}
}

type AskRequest struct {
	Question string `json:"question" binding:"required"`
}

type ReindexRequest struct {
	Purge bool `json:"purge"`
}

// FailureResponse is a DocumentFailure with its error as text.
type FailureResponse struct {
	SourcePath string `json:"source_path"`
	FirstChunk int    `json:"first_chunk"`
	LastChunk  int    `json:"last_chunk"`
	Kind       string `json:"kind"`
	Error      string `json:"error"`
}

// ReportResponse is the JSON form of an ingestion report.
type ReportResponse struct {
	*schema.IngestReport
	Failures []FailureResponse `json:"failures,omitempty"`
}

func newReportResponse(r *schema.IngestReport) ReportResponse {
	resp := ReportResponse{IngestReport: r}
	for _, f := range r.Failures {
		fr := FailureResponse{SourcePath: f.SourcePath, FirstChunk: f.FirstChunk, LastChunk: f.LastChunk, Kind: string(f.Kind)}
		if f.Err != nil {
			fr.Error = f.Err.Error()
		}
		resp.Failures = append(resp.Failures, fr)
	}
	return resp
}

func (h *Handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	if _, err := h.svc.Describe(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "index": h.svc.IndexName()})
}

func (h *Handler) ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ans, err := h.svc.Ask(c.Request.Context(), req.Question)
	if err != nil {
		h.fail(c, "ask", err)
		return
	}
	c.JSON(http.StatusOK, ans)
}

func (h *Handler) describe(c *gin.Context) {
	stats, err := h.svc.Describe(c.Request.Context())
	if err != nil {
		h.fail(c, "describe", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// deleteRecords needs ?confirm=true since it cannot be undone.
func (h *Handler) deleteRecords(c *gin.Context) {
	if c.Query("confirm") != "true" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "deleting every record cannot be undone; repeat with ?confirm=true"})
		return
	}
	if err := h.svc.Delete(c.Request.Context()); err != nil {
		h.fail(c, "delete", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true, "index": h.svc.IndexName()})
}

func (h *Handler) reindex(c *gin.Context) {
	var req ReindexRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	report, err := h.svc.Reindex(c.Request.Context(), req.Purge)
	if err != nil {
		h.fail(c, "reindex", err)
		return
	}
	c.JSON(http.StatusOK, newReportResponse(report))
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	status := StatusOf(err)
	if status >= http.StatusInternalServerError {
		h.log.With("op", op).WithError(err).Error("Request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// StatusOf maps a service error to an HTTP status code.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, schema.ErrEmptyQuestion):
		return http.StatusBadRequest
	case errors.Is(err, schema.ErrIndexNotFound):
		return http.StatusNotFound
	case errors.Is(err, schema.ErrReadinessTimeout),
		errors.Is(err, schema.ErrProviderUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, schema.ErrConfiguration):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

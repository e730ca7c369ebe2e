// Package httpapi exposes the session to presentation clients over HTTP.
package httpapi

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ghalamif/SensorLens/internal/adapters/chart"
	"github.com/ghalamif/SensorLens/internal/app/coordinator"
	"github.com/ghalamif/SensorLens/internal/domain"
	"github.com/ghalamif/SensorLens/internal/ports"
)

// Service is the part of the coordinator the API drives.
type Service interface {
	RequestBulkData() error
	NormalizedBatch() (*domain.Batch, error)
	CheckConnectivity(creds coordinator.Credentials) error
	ConnectivityResult() (domain.ConnectivityResult, error)
	LastOutcome(kind domain.RequestKind) (domain.FetchOutcome, bool)
	SetOfflineMode(offline bool) error
	Status() (coordinator.Status, error)
}

type Handler struct {
	svc Service
	obs ports.Observability
}

type checkRequest struct {
	ServiceURL string `json:"service_url"`
	Username   string `json:"username"`
	Password   string `json:"password"`
}

type offlineRequest struct {
	Offline *bool `json:"offline" binding:"required"`
}

type connectivityResponse struct {
	Result   domain.ConnectivityResult      `json:"result"`
	Outcomes map[string]domain.FetchOutcome `json:"outcomes"`
}

// NewRouter builds the gin engine serving the API.
func NewRouter(svc Service, obs ports.Observability) *gin.Engine {
	h := &Handler{svc: svc, obs: obs}

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	v1 := r.Group("/v1")
	v1.GET("/status", h.GetStatus)
	v1.PUT("/offline", h.PutOffline)
	v1.GET("/batch", h.GetBatch)
	v1.GET("/batch/chart.png", h.GetBatchChart)
	v1.POST("/batch/refresh", h.PostRefresh)
	v1.GET("/connectivity", h.GetConnectivity)
	v1.POST("/connectivity/check", h.PostCheck)
	return r
}

func (h *Handler) GetStatus(c *gin.Context) {
	st, err := h.svc.Status()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) PutOffline(c *gin.Context) {
	var req offlineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}
	if err := h.svc.SetOfflineMode(*req.Offline); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"offline": *req.Offline})
}

func (h *Handler) GetBatch(c *gin.Context) {
	batch, err := h.svc.NormalizedBatch()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

func (h *Handler) GetBatchChart(c *gin.Context) {
	batch, err := h.svc.NormalizedBatch()
	if err != nil {
		h.fail(c, err)
		return
	}
	var buf bytes.Buffer
	if err := chart.RenderPNG(&buf, batch, chart.Options{Title: batch.ID}); err != nil {
		if errors.Is(err, chart.ErrTooFewRecords) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		h.obs.LogError("chart_render_failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "render failed"})
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

func (h *Handler) PostRefresh(c *gin.Context) {
	if err := h.svc.RequestBulkData(); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "bulk data requested"})
}

func (h *Handler) GetConnectivity(c *gin.Context) {
	res, err := h.svc.ConnectivityResult()
	if err != nil {
		h.fail(c, err)
		return
	}
	out := connectivityResponse{Result: res, Outcomes: map[string]domain.FetchOutcome{}}
	for _, kind := range []domain.RequestKind{domain.ConnectivityProbe, domain.CredentialCheck, domain.BulkData} {
		if o, ok := h.svc.LastOutcome(kind); ok {
			out.Outcomes[kind.String()] = o
		}
	}
	c.JSON(http.StatusOK, out)
}

// PostCheck starts a connectivity check. An empty body reuses the session target.
func (h *Handler) PostCheck(c *gin.Context) {
	var req checkRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
			return
		}
	}
	creds := coordinator.Credentials{ServiceURL: req.ServiceURL, Username: req.Username, Password: req.Password}
	if err := h.svc.CheckConnectivity(creds); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "connectivity check started"})
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, coordinator.ErrNoData):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, coordinator.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		h.obs.LogError("api_request_failed", err, ports.Field{Key: "path", Value: c.FullPath()})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

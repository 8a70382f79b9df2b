package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/stockcast/internal/domain"
	"github.com/andresuchdata/stockcast/internal/forecast"
	"github.com/andresuchdata/stockcast/internal/service"
)

type ForecastHandler struct {
	service *service.ForecastService
}

func NewForecastHandler(service *service.ForecastService) *ForecastHandler {
	return &ForecastHandler{service: service}
}

type predictRequest struct {
	ProductID int `json:"product_id" binding:"required,min=1"`
}

func (h *ForecastHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Health())
}

func (h *ForecastHandler) Predict(c *gin.Context) {
	var req predictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	prediction, err := h.service.Predict(c.Request.Context(), req.ProductID)
	if err != nil {
		respondError(c, err, "prediction failed")
		return
	}
	c.JSON(http.StatusOK, prediction)
}

func (h *ForecastHandler) Alerts(c *gin.Context) {
	alerts, err := h.service.Alerts(c.Request.Context())
	if err != nil {
		respondError(c, err, "alert generation failed")
		return
	}
	c.JSON(http.StatusOK, alerts)
}

// Train runs detached from the request context so a client disconnect does
// not abort a shared training run.
func (h *ForecastHandler) Train(c *gin.Context) {
	report, err := h.service.Train(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		respondError(c, err, "training failed")
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *ForecastHandler) TrainingRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	runs, err := h.service.TrainingRuns(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err, "failed to fetch training runs")
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "total": len(runs)})
}

func respondError(c *gin.Context, err error, message string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg(message)
	}
	c.JSON(status, gin.H{"error": message, "details": err.Error()})
}

func statusFor(err error) int {
	var (
		unknown *domain.UnknownProductError
		dataErr *domain.DataError
	)
	switch {
	case errors.As(err, &unknown), errors.As(err, &dataErr), errors.Is(err, forecast.ErrInvalidHorizon):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotTrained), errors.Is(err, service.ErrRunsUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/temcen/livelab/internal/middleware"
	"github.com/temcen/livelab/internal/services"
	"github.com/temcen/livelab/pkg/models"
)

// EvaluationHandler serves reward series to authenticated systems. A system
// always queries its own performance; the normalization against the
// concurrent field happens inside the aggregator.
type EvaluationHandler struct {
	logger     *logrus.Logger
	evaluation services.EvaluationServiceInterface
	validator  *validator.Validate
}

func NewEvaluationHandler(logger *logrus.Logger, evaluation services.EvaluationServiceInterface) *EvaluationHandler {
	return &EvaluationHandler{
		logger:     logger,
		evaluation: evaluation,
		validator:  validator.New(),
	}
}

// Rewards handles GET /evaluation/rewards?start=&end=&mode=&aggregation=.
func (h *EvaluationHandler) Rewards(c *gin.Context) {
	window, ok := h.parseWindow(c)
	if !ok {
		return
	}

	series, err := h.evaluation.NormalizedRewards(c.Request.Context(), window)
	if err != nil {
		h.logger.WithError(err).Error("Failed to compute normalized rewards")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{"code": "INTERNAL_SERVER_ERROR", "message": "Internal server error"},
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": series})
}

// Outcomes handles GET /evaluation/outcomes with the same query shape.
func (h *EvaluationHandler) Outcomes(c *gin.Context) {
	window, ok := h.parseWindow(c)
	if !ok {
		return
	}

	series, err := h.evaluation.Outcomes(c.Request.Context(), window)
	if err != nil {
		h.logger.WithError(err).Error("Failed to compute outcomes")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{"code": "INTERNAL_SERVER_ERROR", "message": "Internal server error"},
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": series})
}

func (h *EvaluationHandler) parseWindow(c *gin.Context) (services.RewardWindow, bool) {
	var query models.RewardQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.badRequest(c, err.Error())
		return services.RewardWindow{}, false
	}
	if err := h.validator.Struct(&query); err != nil {
		h.badRequest(c, err.Error())
		return services.RewardWindow{}, false
	}

	start, err := time.Parse("2006-01-02", query.Start)
	if err != nil {
		h.badRequest(c, "start must be a YYYY-MM-DD date")
		return services.RewardWindow{}, false
	}
	end, err := time.Parse("2006-01-02", query.End)
	if err != nil {
		h.badRequest(c, "end must be a YYYY-MM-DD date")
		return services.RewardWindow{}, false
	}
	if end.Before(start) {
		h.badRequest(c, "end must not be before start")
		return services.RewardWindow{}, false
	}

	mode := query.Mode
	if mode == "" {
		mode = "article"
	}
	aggregation := query.Aggregation
	if aggregation == "" {
		aggregation = "day"
	}

	return services.RewardWindow{
		Start:       start,
		End:         end,
		SystemID:    middleware.SystemFromContext(c),
		Mode:        mode,
		Aggregation: aggregation,
	}, true
}

func (h *EvaluationHandler) badRequest(c *gin.Context, details string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": gin.H{"code": "INVALID_QUERY", "message": "Invalid query parameters", "details": details},
	})
}

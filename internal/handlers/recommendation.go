package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/livelab/internal/middleware"
	"github.com/temcen/livelab/internal/services"
	"github.com/temcen/livelab/internal/validation"
	"github.com/temcen/livelab/pkg/models"
)

// RecommendationHandler is the ingestion surface for external recommender
// systems. Responses use the legacy {"success": bool, "error": string}
// envelope those systems parse.
type RecommendationHandler struct {
	logger    *logrus.Logger
	ingestion services.IngestionServiceInterface
	schemas   *validation.SchemaValidator
}

func NewRecommendationHandler(logger *logrus.Logger, ingestion services.IngestionServiceInterface,
	schemas *validation.SchemaValidator) *RecommendationHandler {
	return &RecommendationHandler{
		logger:    logger,
		ingestion: ingestion,
		schemas:   schemas,
	}
}

// SubmitArticles handles POST /recommendations/articles.
func (h *RecommendationHandler) SubmitArticles(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, models.SimpleResponse{Error: "No JSON submitted."})
		return
	}

	if msg := h.schemas.ValidateArticleRecommendations(body); msg != "" {
		c.JSON(http.StatusBadRequest, models.SimpleResponse{Error: msg})
		return
	}

	var req models.ArticleRecommendationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, models.SimpleResponse{Error: "No JSON submitted."})
		return
	}

	systemID := middleware.SystemFromContext(c)
	if err := h.ingestion.SubmitArticleRecommendations(c.Request.Context(), systemID, &req); err != nil {
		h.respondError(c, "article", err)
		return
	}

	c.JSON(http.StatusOK, models.SimpleResponse{Success: true})
}

// SubmitTopics handles POST /recommendations/topics.
func (h *RecommendationHandler) SubmitTopics(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, models.SimpleResponse{Error: "No JSON submitted."})
		return
	}

	if msg := h.schemas.ValidateTopicRecommendations(body); msg != "" {
		c.JSON(http.StatusBadRequest, models.SimpleResponse{Error: msg})
		return
	}

	var req models.TopicRecommendationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, models.SimpleResponse{Error: "No JSON submitted."})
		return
	}

	systemID := middleware.SystemFromContext(c)
	if err := h.ingestion.SubmitTopicRecommendations(c.Request.Context(), systemID, &req); err != nil {
		h.respondError(c, "topic", err)
		return
	}

	c.JSON(http.StatusOK, models.SimpleResponse{Success: true})
}

func (h *RecommendationHandler) respondError(c *gin.Context, surface string, err error) {
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, models.SimpleResponse{Error: verr.Msg})
		return
	}

	h.logger.WithError(err).WithField("surface", surface).
		Error("Failed to store recommendations")
	c.JSON(http.StatusInternalServerError, models.SimpleResponse{Error: "Internal server error."})
}

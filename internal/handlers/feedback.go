package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/temcen/livelab/internal/services"
	"github.com/temcen/livelab/pkg/models"
)

// FeedbackHandler is the surface the web UI collaborator calls: interaction
// events on article impressions plus the on-demand topic suggestion path.
type FeedbackHandler struct {
	logger    *logrus.Logger
	feedback  services.FeedbackServiceInterface
	topics    services.TopicSuggestionServiceInterface
	validator *validator.Validate
}

func NewFeedbackHandler(logger *logrus.Logger, feedback services.FeedbackServiceInterface,
	topics services.TopicSuggestionServiceInterface) *FeedbackHandler {
	return &FeedbackHandler{
		logger:    logger,
		feedback:  feedback,
		topics:    topics,
		validator: validator.New(),
	}
}

type clickRequest struct {
	UserID    int64  `json:"user_id" validate:"required"`
	ArticleID string `json:"article_id" validate:"required"`
}

type seenRequest struct {
	UserID     int64    `json:"user_id" validate:"required"`
	ArticleIDs []string `json:"article_ids" validate:"required,min=1"`
}

type savedRequest struct {
	UserID    int64  `json:"user_id" validate:"required"`
	ArticleID string `json:"article_id" validate:"required"`
	Saved     *bool  `json:"saved" validate:"required"`
}

type topicStateRequest struct {
	UserID int64  `json:"user_id" validate:"required"`
	Topic  string `json:"topic" validate:"required"`
	State  string `json:"state" validate:"required"`
}

// RecordClick handles POST /feedback/clicks.
func (h *FeedbackHandler) RecordClick(c *gin.Context) {
	var req clickRequest
	if !h.bind(c, &req) {
		return
	}

	if err := h.feedback.ClickWeb(c.Request.Context(), req.UserID, req.ArticleID); err != nil {
		h.internalError(c, "record web click", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// RecordSeen handles POST /feedback/seen.
func (h *FeedbackHandler) RecordSeen(c *gin.Context) {
	var req seenRequest
	if !h.bind(c, &req) {
		return
	}

	if err := h.feedback.SeenWeb(c.Request.Context(), req.UserID, req.ArticleIDs); err != nil {
		h.internalError(c, "record seen articles", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// RecordSaved handles PUT /feedback/saved.
func (h *FeedbackHandler) RecordSaved(c *gin.Context) {
	var req savedRequest
	if !h.bind(c, &req) {
		return
	}

	if err := h.feedback.SaveWeb(c.Request.Context(), req.UserID, req.ArticleID, *req.Saved); err != nil {
		h.internalError(c, "record save", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SuggestTopics handles GET /topics/suggestions?user_id=.
func (h *FeedbackHandler) SuggestTopics(c *gin.Context) {
	var query struct {
		UserID int64 `form:"user_id" validate:"required"`
	}
	if err := c.ShouldBindQuery(&query); err != nil || query.UserID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "INVALID_REQUEST", "message": "user_id is required"},
		})
		return
	}

	suggestions, err := h.topics.SuggestTopics(c.Request.Context(), query.UserID)
	if err != nil {
		h.internalError(c, "suggest topics", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"topics": suggestions}})
}

// SetTopicState handles POST /topics/state.
func (h *FeedbackHandler) SetTopicState(c *gin.Context) {
	var req topicStateRequest
	if !h.bind(c, &req) {
		return
	}

	err := h.feedback.SetTopicState(c.Request.Context(), req.UserID, req.Topic,
		models.TopicState(req.State))
	if errors.Is(err, services.ErrInvalidTopicState) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "INVALID_STATE", "message": err.Error()},
		})
		return
	}
	if err != nil {
		h.internalError(c, "set topic state", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *FeedbackHandler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "INVALID_REQUEST", "message": "Invalid request format", "details": err.Error()},
		})
		return false
	}
	if err := h.validator.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "VALIDATION_FAILED", "message": "Request validation failed", "details": err.Error()},
		})
		return false
	}
	return true
}

func (h *FeedbackHandler) internalError(c *gin.Context, action string, err error) {
	h.logger.WithError(err).Errorf("Failed to %s", action)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{"code": "INTERNAL_SERVER_ERROR", "message": "Internal server error"},
	})
}

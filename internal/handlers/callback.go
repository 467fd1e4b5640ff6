package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/temcen/livelab/internal/config"
	"github.com/temcen/livelab/internal/services"
)

// CallbackHandler serves the trace-bearing links embedded in digest emails.
// The links must keep working for the reader even when attribution fails, so
// every handler redirects no matter what — a bad trace only means the click
// is not credited.
type CallbackHandler struct {
	config   *config.Config
	logger   *logrus.Logger
	feedback services.FeedbackServiceInterface
}

func NewCallbackHandler(cfg *config.Config, logger *logrus.Logger,
	feedback services.FeedbackServiceInterface) *CallbackHandler {
	return &CallbackHandler{
		config:   cfg,
		logger:   logger,
		feedback: feedback,
	}
}

// Read handles GET /mail/read/:userID/:articleID/:trace — marks the email
// click and sends the reader on to the article.
func (h *CallbackHandler) Read(c *gin.Context) {
	articleID := c.Param("articleID")
	userID, trace, ok := h.parseTraceParams(c)
	if ok {
		err := h.feedback.ClickEmail(c.Request.Context(), userID, articleID, trace)
		h.logAttribution(c, "clicked_email", userID, articleID, err)
	}

	c.Redirect(http.StatusFound, fmt.Sprintf("https://arxiv.org/abs/%s", articleID))
}

// Save handles GET /mail/save/:userID/:articleID/:trace.
func (h *CallbackHandler) Save(c *gin.Context) {
	articleID := c.Param("articleID")
	userID, trace, ok := h.parseTraceParams(c)
	if ok {
		err := h.feedback.SaveEmail(c.Request.Context(), userID, articleID, trace)
		h.logAttribution(c, "saved", userID, articleID, err)
	}

	c.Redirect(http.StatusFound, h.config.Server.WebAddress+"/saved")
}

// Unsubscribe handles GET /mail/unsubscribe/:trace — turns the digest off for
// the trace owner and rotates the trace.
func (h *CallbackHandler) Unsubscribe(c *gin.Context) {
	trace, err := uuid.Parse(c.Param("trace"))
	if err == nil {
		if err := h.feedback.Unsubscribe(c.Request.Context(), trace); err != nil {
			h.logger.WithError(err).Debug("Unsubscribe trace not matched")
		}
	}

	c.Redirect(http.StatusFound, h.config.Server.WebAddress+"/unsubscribed")
}

func (h *CallbackHandler) parseTraceParams(c *gin.Context) (int64, uuid.UUID, bool) {
	userID, err := strconv.ParseInt(c.Param("userID"), 10, 64)
	if err != nil {
		return 0, uuid.Nil, false
	}
	trace, err := uuid.Parse(c.Param("trace"))
	if err != nil {
		return 0, uuid.Nil, false
	}
	return userID, trace, true
}

func (h *CallbackHandler) logAttribution(c *gin.Context, kind string, userID int64, articleID string, err error) {
	if err == nil {
		return
	}
	entry := h.logger.WithFields(logrus.Fields{
		"kind":       kind,
		"user_id":    userID,
		"article_id": articleID,
	})
	if errors.Is(err, services.ErrTraceMismatch) {
		entry.Debug("Email callback with unmatched trace, not credited")
		return
	}
	entry.WithError(err).Error("Failed to attribute email callback")
}

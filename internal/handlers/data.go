package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/livelab/internal/middleware"
	"github.com/temcen/livelab/internal/services"
)

const (
	defaultUserPageSize = 1000
	maxIDsPerRequest    = 100
)

// DataHandler serves ledger reads to authenticated external systems.
type DataHandler struct {
	logger *logrus.Logger
	data   services.DataServiceInterface
}

func NewDataHandler(logger *logrus.Logger, data services.DataServiceInterface) *DataHandler {
	return &DataHandler{logger: logger, data: data}
}

// Users handles GET /users?limit=&offset=.
func (h *DataHandler) Users(c *gin.Context) {
	limit, err := positiveIntQuery(c, "limit", defaultUserPageSize)
	if err != nil {
		h.badRequest(c, "limit must be a positive integer")
		return
	}
	offset, err := positiveIntQuery(c, "offset", 0)
	if err != nil {
		h.badRequest(c, "offset must be a non-negative integer")
		return
	}

	users, err := h.data.Users(c.Request.Context(), limit, offset)
	if err != nil {
		h.internalError(c, "list users", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// UserInfo handles GET /user_info?ids=1,2,3.
func (h *DataHandler) UserInfo(c *gin.Context) {
	ids, err := parseInt64List(c.Query("ids"))
	if err != nil || len(ids) == 0 {
		h.badRequest(c, "ids must be a comma separated list of user ids")
		return
	}
	if len(ids) > maxIDsPerRequest {
		h.badRequest(c, "too many ids requested")
		return
	}

	info, err := h.data.UserInfo(c.Request.Context(), ids)
	if err != nil {
		h.internalError(c, "load user info", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_info": info})
}

// Articles handles GET /articles — the currently recommendable article ids.
func (h *DataHandler) Articles(c *gin.Context) {
	ids, err := h.data.EligibleArticles(c.Request.Context())
	if err != nil {
		h.internalError(c, "list eligible articles", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"articles": gin.H{"article_ids": ids}})
}

// ArticleData handles GET /article_data?article_id=a,b.
func (h *DataHandler) ArticleData(c *gin.Context) {
	raw := c.Query("article_id")
	if raw == "" {
		h.badRequest(c, "article_id is required")
		return
	}
	ids := splitList(raw)
	if len(ids) > maxIDsPerRequest {
		h.badRequest(c, "too many ids requested")
		return
	}

	articles, err := h.data.ArticleData(c.Request.Context(), ids)
	if err != nil {
		h.internalError(c, "load article data", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"articles": articles})
}

// UserFeedback handles GET /user_feedback/articles?user_id=1,2 — the calling
// system's own impressions with interaction flags.
func (h *DataHandler) UserFeedback(c *gin.Context) {
	ids, err := parseInt64List(c.Query("user_id"))
	if err != nil || len(ids) == 0 {
		h.badRequest(c, "user_id must be a comma separated list of user ids")
		return
	}
	if len(ids) > maxIDsPerRequest {
		h.badRequest(c, "too many ids requested")
		return
	}

	systemID := middleware.SystemFromContext(c)
	rows, err := h.data.SystemFeedback(c.Request.Context(), systemID, ids)
	if err != nil {
		h.internalError(c, "load system feedback", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_feedback": rows})
}

func (h *DataHandler) badRequest(c *gin.Context, details string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": gin.H{"code": "INVALID_QUERY", "message": "Invalid query parameters", "details": details},
	})
}

func (h *DataHandler) internalError(c *gin.Context, action string, err error) {
	h.logger.WithError(err).Errorf("Failed to %s", action)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{"code": "INTERNAL_SERVER_ERROR", "message": "Internal server error"},
	})
}

func positiveIntQuery(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, strconv.ErrSyntax
	}
	return v, nil
}

func parseInt64List(raw string) ([]int64, error) {
	if raw == "" {
		return nil, nil
	}
	parts := splitList(raw)
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/livelab/internal/ledger"
	"github.com/temcen/livelab/pkg/models"
)

// SystemResolver resolves an opaque API key to a registered system.
// Satisfied by *ledger.Store.
type SystemResolver interface {
	SystemByAPIKey(ctx context.Context, apiKey string) (*models.System, error)
}

// SystemAuth authenticates external recommender systems by their opaque API
// key, passed in the api-key header. Unknown and inactive systems both get a
// 401 without detail.
func SystemAuth(resolver SystemResolver, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("api-key")
		if apiKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing api key."})
			c.Abort()
			return
		}

		system, err := resolver.SystemByAPIKey(c.Request.Context(), apiKey)
		if errors.Is(err, ledger.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid api key."})
			c.Abort()
			return
		}
		if err != nil {
			logger.WithError(err).Error("Failed to resolve system api key")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error."})
			c.Abort()
			return
		}
		if !system.Active {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid api key."})
			c.Abort()
			return
		}

		c.Set("system_id", system.ID)
		c.Set("system_name", system.Name)
		c.Next()
	}
}

// SystemFromContext returns the authenticated system's id, set by SystemAuth.
func SystemFromContext(c *gin.Context) int64 {
	id, _ := c.Get("system_id")
	systemID, _ := id.(int64)
	return systemID
}

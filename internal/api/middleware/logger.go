package middleware

import (
	"net/http"
	"strconv"
	"time"

	"face-registry/internal/logger"
	"face-registry/internal/models"
	"face-registry/internal/observability"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Logger логирует каждый запрос и пишет длительность в метрики
func Logger() gin.HandlerFunc {
	entry := logger.Component("http")

	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(started)

		observability.HTTPRequestDuration.
			WithLabelValues(c.Request.Method, path, strconv.Itoa(status)).
			Observe(elapsed.Seconds())

		fields := log.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   status,
			"duration": elapsed.String(),
			"client":   c.ClientIP(),
		}
		switch {
		case status >= http.StatusInternalServerError:
			entry.WithFields(fields).Error("request")
		case status >= http.StatusBadRequest:
			entry.WithFields(fields).Warn("request")
		default:
			entry.WithFields(fields).Debug("request")
		}
	}
}

// Recovery восстанавливает приложение после паники и отвечает Outcome
func Recovery() gin.HandlerFunc {
	entry := logger.Component("http")

	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		entry.WithField("panic", recovered).Error("❌ Паника в обработчике")
		c.AbortWithStatusJSON(http.StatusInternalServerError, models.Failed("internal error"))
	})
}

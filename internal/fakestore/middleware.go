package fakestore

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLogger logs one line per request.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(context *gin.Context) {
		start := time.Now()
		context.Next()
		logger.Info("http",
			zap.String("method", context.Request.Method),
			zap.String("path", context.Request.URL.Path),
			zap.Int("status", context.Writer.Status()),
			zap.Duration("dur", time.Since(start)),
			zap.String("ip", context.ClientIP()),
			zap.String("ua", context.Request.UserAgent()),
		)
	}
}

// requireUnlocked sends visitors without an unlocked storefront session to the password gate.
func (server *Server) requireUnlocked() gin.HandlerFunc {
	return func(context *gin.Context) {
		storefrontSession := server.storefrontSession(context)
		if unlocked, _ := storefrontSession.Values[sessionKeyUnlocked].(bool); unlocked {
			context.Next()
			return
		}
		context.Redirect(http.StatusFound, RoutePassword)
		context.Abort()
	}
}

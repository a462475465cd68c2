package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tripdesk/tripdesk-server/internal/auth"
)

const (
	// ContextKeySubjectID is the context key for the authenticated account id.
	ContextKeySubjectID = "subject_id"
	// ContextKeyName is the context key for the account display name.
	ContextKeyName = "name"
	// ContextKeyIsAdmin is the context key for the staff flag.
	ContextKeyIsAdmin = "is_admin"
)

// AuthMiddleware creates a middleware that validates JWT tokens.
func AuthMiddleware(authService *auth.Service, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logger.Debug().Msg("missing authorization header")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing authorization header"})
			c.Abort()
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			logger.Debug().Msg("invalid authorization header format")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid authorization header format"})
			c.Abort()
			return
		}

		token := parts[1]
		claims, err := authService.ValidateToken(token)
		if err != nil {
			logger.Debug().Err(err).Msg("invalid token")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			c.Abort()
			return
		}

		// Store account info in context
		c.Set(ContextKeySubjectID, claims.SubjectID)
		c.Set(ContextKeyName, claims.Name)
		c.Set(ContextKeyIsAdmin, claims.IsAdmin())

		c.Next()
	}
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Process request
		c.Next()

		// Log after request
		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}

// subjectFromContext pulls the authenticated identity set by AuthMiddleware.
func subjectFromContext(c *gin.Context) (id string, isAdmin bool, ok bool) {
	rawID, exists := c.Get(ContextKeySubjectID)
	if !exists {
		return "", false, false
	}
	id, ok = rawID.(string)
	if !ok {
		return "", false, false
	}
	if rawAdmin, exists := c.Get(ContextKeyIsAdmin); exists {
		if flag, good := rawAdmin.(bool); good {
			isAdmin = flag
		}
	}
	return id, isAdmin, true
}

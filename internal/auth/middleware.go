package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	ctxUserIDKey    = "authUserID"
	ctxAuthTokenKey = "authToken"
)

// Middleware authenticates every request on a protected route. The token is
// taken from the Authorization bearer header first, then from the auth
// cookie; a missing or invalid token ends the request with 401. On success
// the user id and the raw token are stored on the context for the handlers.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := s.requestToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		userID, err := s.ValidateToken(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(ctxUserIDKey, userID)
		c.Set(ctxAuthTokenKey, token)
		c.Next()
	}
}

// UserIDFromContext returns the user id stored by Middleware.
func UserIDFromContext(c *gin.Context) (int64, bool) {
	val, ok := c.Get(ctxUserIDKey)
	if !ok {
		return 0, false
	}
	userID, ok := val.(int64)
	return userID, ok
}

// AuthTokenFromContext returns the raw token stored by Middleware; logout
// uses it to revoke the active session.
func AuthTokenFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(ctxAuthTokenKey)
	if !ok {
		return "", false
	}
	token, ok := val.(string)
	return token, ok
}

func (s *Service) requestToken(c *gin.Context) string {
	if header := c.GetHeader(s.headerName); strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[len("bearer "):])
	}
	token, err := c.Cookie(s.cookieName)
	if err != nil {
		return ""
	}
	return token
}

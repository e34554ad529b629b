package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vigilant-eye/facewatch/pkg/dto"
)

const (
	headerName = "X-API-Key"
	userKey    = "auth.user_id"
)

// APIKeyMiddleware validates the X-API-Key header against keys and stores the
// mapped user id in the context. An empty keys map disables authentication.
func APIKeyMiddleware(keys map[string]string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(keys) == 0 {
			c.Next()
			return
		}

		provided := c.GetHeader(headerName)
		if provided == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "missing API key"})
			return
		}

		user, ok := lookup(keys, provided)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, dto.ErrorResponse{Error: "invalid API key"})
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

// lookup compares against every key so timing does not reveal a prefix match.
func lookup(keys map[string]string, provided string) (string, bool) {
	var user string
	found := false
	for key, u := range keys {
		if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) == 1 {
			user, found = u, true
		}
	}
	return user, found
}

// UserID returns the authenticated user, or nil for anonymous requests.
func UserID(c *gin.Context) *string {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	user, ok := v.(string)
	if !ok || user == "" {
		return nil
	}
	return &user
}

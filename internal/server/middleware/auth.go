package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xiaoshi569/nextchat/internal/server/models"
	"github.com/xiaoshi569/nextchat/internal/server/services"
	"github.com/xiaoshi569/nextchat/pkg/types"
)

const userKey = "user"

func UserFromContext(c *gin.Context) *models.User {
	if v, ok := c.Get(userKey); ok {
		if u, ok := v.(*models.User); ok {
			return u
		}
	}
	return nil
}

func UserIDFromContext(c *gin.Context) string {
	if u := UserFromContext(c); u != nil {
		return u.ID
	}
	return ""
}

// Auth requires a valid bearer token for an active account.
func Auth(svc *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(strings.ToLower(h), "bearer ") || strings.TrimSpace(h[7:]) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, types.ErrorResponse{Error: "unauthorized"})
			return
		}
		u, err := svc.Authenticate(c.Request.Context(), strings.TrimSpace(h[7:]))
		switch {
		case errors.Is(err, services.ErrAccountDisabled):
			c.AbortWithStatusJSON(http.StatusForbidden, types.ErrorResponse{Error: err.Error()})
			return
		case err != nil:
			c.AbortWithStatusJSON(http.StatusUnauthorized, types.ErrorResponse{Error: "unauthorized"})
			return
		}
		c.Set(userKey, u)
		c.Next()
	}
}

// AdminOnly must run after Auth.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		u := UserFromContext(c)
		if u == nil || u.Role != string(types.RoleAdmin) {
			c.AbortWithStatusJSON(http.StatusForbidden, types.ErrorResponse{Error: "admin access required"})
			return
		}
		c.Next()
	}
}

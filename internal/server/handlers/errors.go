// Package handlers maps the chat server's HTTP API onto the services.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/xiaoshi569/nextchat/internal/logging"
	"github.com/xiaoshi569/nextchat/internal/server/services"
	"github.com/xiaoshi569/nextchat/pkg/types"
)

func writeError(c *gin.Context, logger *logging.Logger, err error) {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: ve.Message})
	case errors.Is(err, services.ErrInvalidCredentials), errors.Is(err, services.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, types.ErrorResponse{Error: err.Error()})
	case errors.Is(err, services.ErrAccountDisabled), errors.Is(err, services.ErrRegistrationClosed), errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, types.ErrorResponse{Error: err.Error()})
	case errors.Is(err, services.ErrSessionNotFound), errors.Is(err, services.ErrUserNotFound), errors.Is(err, services.ErrAPIKeyNotFound):
		c.JSON(http.StatusNotFound, types.ErrorResponse{Error: err.Error()})
	default:
		logger.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "internal server error"})
	}
}

// bindJSON decodes the body and answers 400 with the first validation
// message on failure.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: bindMessage(err)})
		return false
	}
	return true
}

func bindMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := lowerFirst(fe.Field())
		switch fe.Tag() {
		case "required":
			return field + " is required"
		case "email":
			return field + " must be a valid email"
		case "min":
			return field + " must be at least " + fe.Param() + " characters"
		case "max":
			return field + " must be at most " + fe.Param() + " characters"
		case "oneof":
			return field + " must be one of " + fe.Param()
		}
		return field + " is invalid"
	}
	return "invalid json body"
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'A' && b[0] <= 'Z' {
		b[0] += 'a' - 'A'
	}
	return string(b)
}

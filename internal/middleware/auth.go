package middleware

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"story-archive-backend/internal/models"
)

const UserIDKey = "user_id"

// Authorize validates an HS256 bearer token signed with secret and stores its
// subject under UserIDKey. An empty secret disables the check. On failure the
// request is aborted with 401 and false is returned.
func Authorize(c *gin.Context, secret string) bool {
	if secret == "" {
		return true
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		unauthorized(c, "missing authorization header", "")
		return false
	}

	// Extract token from "Bearer <token>"
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		unauthorized(c, "invalid authorization header format", "")
		return false
	}

	tokenString := strings.TrimSpace(parts[1])
	if tokenString == "" {
		unauthorized(c, "empty token", "")
		return false
	}

	// Some clients URL-encode the token.
	if decoded, err := url.QueryUnescape(tokenString); err == nil {
		tokenString = decoded
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		unauthorized(c, "invalid token", tokenMessage(err))
		return false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		unauthorized(c, "invalid token claims", "")
		return false
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		unauthorized(c, "missing user id in token", "")
		return false
	}

	c.Set(UserIDKey, sub)
	return true
}

func tokenMessage(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "token signature is invalid - check JWT secret"
	case errors.Is(err, jwt.ErrTokenExpired):
		return "token has expired"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "token is malformed"
	default:
		return err.Error()
	}
}

func unauthorized(c *gin.Context, msg, detail string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: msg, Message: detail})
}

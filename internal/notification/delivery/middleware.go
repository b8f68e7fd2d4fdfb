package delivery

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"notify-backend/internal/notification/realtime"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Claims identify the caller. Tokens are issued by the membership service.
type Claims struct {
	TenantID string `json:"churchId"`
	PersonID string `json:"personId"`
	jwt.RegisteredClaims
}

// ParseToken validates an HS256 token and returns its claims.
func ParseToken(tokenString, secret string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.TenantID == "" || claims.PersonID == "" {
		return nil, errors.New("token missing tenant or person")
	}
	return claims, nil
}

// AuthMiddleware accepts a bearer token, or a token query parameter for
// websocket upgrades where browsers cannot set headers.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
				c.Abort()
				return
			}
			token = parts[1]
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			c.Abort()
			return
		}

		claims, err := ParseToken(token, secret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(realtime.CtxTenantID, claims.TenantID)
		c.Set(realtime.CtxPersonID, claims.PersonID)
		c.Next()
	}
}

// InternalKeyMiddleware guards service-to-service routes. With no key
// configured the routes are closed.
func InternalKeyMiddleware(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		given := c.GetHeader("X-Internal-Key")
		if key == "" || subtle.ConstantTimeCompare([]byte(given), []byte(key)) != 1 {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			c.Abort()
			return
		}
		c.Next()
	}
}

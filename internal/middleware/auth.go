package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ContextUserIDKey 认证后的用户 ID 在 gin.Context 中的键
const ContextUserIDKey = "user_id"

// Claims 令牌声明，用户 ID 存放在 sub 中
type Claims struct {
	jwt.RegisteredClaims
}

// GenerateToken 为用户签发 HS256 令牌
func GenerateToken(secret, userID string, ttl time.Duration) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.New("user id is required")
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken 校验签名与有效期并返回声明
func ParseToken(secret, tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// AuthRequired 要求 Bearer 令牌，并将 sub 写入上下文
func AuthRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortJSON(c, http.StatusUnauthorized, "authorization header missing")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			abortJSON(c, http.StatusUnauthorized, "invalid authorization header format")
			return
		}

		claims, err := ParseToken(secret, strings.TrimSpace(parts[1]))
		if err != nil {
			abortJSON(c, http.StatusUnauthorized, "invalid token")
			return
		}

		c.Set(ContextUserIDKey, claims.Subject)
		c.Next()
	}
}

// UserID 返回当前请求的用户 ID，未认证时为空
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserIDKey)
}

func abortJSON(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

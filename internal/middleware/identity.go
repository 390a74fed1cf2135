package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go-gin-cinema-booking/internal/model"
	"go-gin-cinema-booking/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	actorKey = "actor"

	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// Claims access token 內容，sub 為使用者 ID
type Claims struct {
	Role model.Role `json:"role"`
	jwt.RegisteredClaims
}

// NewToken 簽發 HS256 access token
func NewToken(secret string, userID string, role model.Role, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parseToken(secret, raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func parseRole(role string) model.Role {
	switch model.Role(strings.ToLower(strings.TrimSpace(role))) {
	case model.RoleAdmin:
		return model.RoleAdmin
	case model.RoleSystem:
		return model.RoleSystem
	}
	return model.RoleCustomer
}

// Identity 解析操作者身分放入 context。
// secret 有設定時必須帶 Bearer token；未設定時（本機開發）改讀 X-User-ID / X-User-Role。
func Identity(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Set(actorKey, model.Actor{
				UserID: strings.TrimSpace(c.GetHeader(HeaderUserID)),
				Role:   parseRole(c.GetHeader(HeaderUserRole)),
			})
			c.Next()
			return
		}

		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "missing bearer token",
			})
			return
		}

		claims, err := parseToken(secret, strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			logger.WithComponent("handler").Warn("rejected token", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "invalid token",
			})
			return
		}

		c.Set(actorKey, model.Actor{UserID: claims.Subject, Role: parseRole(string(claims.Role))})
		c.Next()
	}
}

// ActorFrom 取出 Identity 放入的操作者；沒有時回傳匿名顧客
func ActorFrom(c *gin.Context) model.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(model.Actor); ok {
			return actor
		}
	}
	return model.Actor{Role: model.RoleCustomer}
}

// RequireAdmin 只允許管理員
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ActorFrom(c).IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "admin role required",
			})
			return
		}
		c.Next()
	}
}

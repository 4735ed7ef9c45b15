package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/waifu-verifier-backend/internal/http/response"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/ctxutil"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/logger"
	"github.com/yungbote/waifu-verifier-backend/internal/services"
)

const tokenCookie = "access_token"

// AdminChecker reports whether a user holds the admin role.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error)
}

type AuthMiddleware struct {
	log         *logger.Logger
	authService services.AuthService
	admins      AdminChecker
}

func NewAuthMiddleware(log *logger.Logger, authService services.AuthService, admins AdminChecker) *AuthMiddleware {
	middlewareLogger := log.With("Middleware", "AuthMiddleware")
	return &AuthMiddleware{log: middlewareLogger, authService: authService, admins: admins}
}

func (am *AuthMiddleware) attach(c *gin.Context) (uuid.UUID, error) {
	tokenString := extractTokenFromAll(c)
	if tokenString == "" {
		return uuid.Nil, nil
	}
	ctx, err := am.authService.SetContextFromToken(c.Request.Context(), tokenString)
	if err != nil {
		return uuid.Nil, err
	}
	c.Request = c.Request.WithContext(ctx)
	return ctxutil.UserID(ctx), nil
}

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := am.attach(c)
		if err != nil || userID == uuid.Nil {
			if err != nil {
				am.log.Debug("Token rejected", "error", err)
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "missing or invalid token", "code": "unauthorized"},
			})
			return
		}
		c.Next()
	}
}

// RequireAuthLegacy rejects with the {success,message} body used by the appraisal route.
func (am *AuthMiddleware) RequireAuthLegacy() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := am.attach(c)
		if err != nil || userID == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.LegacyEnvelope{Success: false, Message: "Unauthorized"})
			return
		}
		c.Next()
	}
}

// OptionalAuth attaches the user when a valid token is present and never rejects.
func (am *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := am.attach(c); err != nil {
			am.log.Debug("Ignoring invalid optional token", "error", err)
		}
		c.Next()
	}
}

// RequireAdmin must run after RequireAuth.
func (am *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := am.admins.IsAdmin(c.Request.Context(), ctxutil.UserID(c.Request.Context()))
		if err != nil {
			am.log.Error("Admin lookup failed", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": gin.H{"message": "internal server error", "code": "internal"},
			})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{"message": "forbidden", "code": "forbidden"},
			})
			return
		}
		c.Next()
	}
}

func extractTokenFromAll(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	if qToken := c.Query("token"); qToken != "" {
		return qToken
	}
	if cookie, err := c.Cookie(tokenCookie); err == nil && cookie != "" {
		return cookie
	}
	return ""
}

// Package middleware provides authentication and authorization middleware for the Gin web framework.
package middleware

import (
	"net/http"
	"strings"

	"questly/internal/config"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Session and context keys for the authenticated user
const (
	// UserIDKey is the key used to store user ID in session and context
	UserIDKey = "user_id"
	// UsernameKey is the key used to store username in session and context
	UsernameKey = "username"
	// ExternalIDKey is the context key for an identity-provider subject
	// carried by a bearer token instead of a session
	ExternalIDKey = "external_id"
)

// identityClaims are the claims expected on an identity-provider bearer token
type identityClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func unauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"error": "Authentication required",
		"code":  "UNAUTHORIZED",
	})
	c.Abort()
}

// sessionUser pulls the authenticated user out of the cookie session.
// Returns false when the session carries no valid identity.
func sessionUser(c *gin.Context) (int, string, bool) {
	session := sessions.Default(c)

	userID := session.Get(UserIDKey)
	if userID == nil {
		return 0, "", false
	}
	userIDInt, ok := userID.(int)
	if !ok {
		// JSON round trips store numbers as float64
		userIDFloat, ok := userID.(float64)
		if !ok {
			return 0, "", false
		}
		userIDInt = int(userIDFloat)
	}

	username := session.Get(UsernameKey)
	if username == nil {
		return 0, "", false
	}
	usernameStr, ok := username.(string)
	if !ok || usernameStr == "" {
		return 0, "", false
	}

	return userIDInt, usernameStr, true
}

// bearerSubject verifies an HS256 identity token from the Authorization
// header and returns its subject and email. Returns false when the header is
// absent or the token does not verify.
func bearerSubject(c *gin.Context, secret string) (subject, email string, ok bool) {
	if secret == "" {
		return "", "", false
	}
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", "", false
	}
	tokenString := strings.TrimPrefix(header, "Bearer ")

	claims := &identityClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		return "", "", false
	}
	return claims.Subject, claims.Email, true
}

// IdentityResolver maps a verified identity-provider subject to a local user.
type IdentityResolver interface {
	ResolveIdentity(c *gin.Context, externalID, email string) (userID int, username string, err error)
}

// RequireAuth returns a middleware that requires authentication via the
// cookie session or an identity-provider bearer token. On success the user id
// and username are stored in the gin context.
func RequireAuth(cfg *config.Config, resolver IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID, username, ok := sessionUser(c); ok {
			c.Set(UserIDKey, userID)
			c.Set(UsernameKey, username)
			c.Next()
			return
		}

		if subject, email, ok := bearerSubject(c, cfg.Server.IdentitySecret); ok && resolver != nil {
			userID, username, err := resolver.ResolveIdentity(c, subject, email)
			if err != nil {
				unauthorized(c)
				return
			}
			c.Set(UserIDKey, userID)
			c.Set(UsernameKey, username)
			c.Set(ExternalIDKey, subject)
			c.Next()
			return
		}

		unauthorized(c)
	}
}

// AdminChecker reports whether a user has the admin flag.
type AdminChecker interface {
	IsAdmin(c *gin.Context, userID int) (bool, error)
}

// RequireAdmin returns a middleware guarding the admin surface. Access is
// granted by the shared admin secret header, by the scheduler token header,
// or, outside production, by an authenticated admin session.
func RequireAdmin(cfg *config.Config, checker AdminChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret := c.GetHeader(config.AdminSecretHeader); secret != "" && cfg.Server.AdminSecret != "" && secret == cfg.Server.AdminSecret {
			c.Next()
			return
		}
		if token := c.GetHeader(config.SchedulerHeader); token != "" && cfg.Server.WebhookSecret != "" && token == cfg.Server.WebhookSecret {
			c.Next()
			return
		}

		if cfg.Server.IsProduction() {
			unauthorized(c)
			return
		}

		userID, username, ok := sessionUser(c)
		if !ok {
			unauthorized(c)
			return
		}

		isAdmin, err := checker.IsAdmin(c, userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to check admin status",
				"code":  "INTERNAL_ERROR",
			})
			c.Abort()
			return
		}
		if !isAdmin {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Admin access required",
				"code":  "FORBIDDEN",
			})
			c.Abort()
			return
		}

		c.Set(UserIDKey, userID)
		c.Set(UsernameKey, username)
		c.Next()
	}
}

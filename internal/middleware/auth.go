// Package middleware provides Gin HTTP middleware for authentication, authorization,
// rate limiting, security headers, and request identification.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Security → RateLimit → Auth → Permission → Handler
//
// Security headers run first so they appear on all responses including errors.
// Rate limiting runs before auth to block brute-force attacks before any DB work.
// Auth populates the actor identity; the permission middleware reads it back
// from the context and consults the authorization gate.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tarim-tours/backoffice/internal/auth"
	"github.com/tarim-tours/backoffice/internal/db/repositories"
)

// Context keys set by the auth middleware and read by handlers.
const (
	ContextActor  = "actor"
	ContextUserID = "user_id"
	ContextUser   = "user"
)

// ActorFromContext returns the authenticated actor, or a zero Actor when the
// request carried no valid token.
func ActorFromContext(c *gin.Context) auth.Actor {
	if v, ok := c.Get(ContextActor); ok {
		if actor, ok := v.(auth.Actor); ok {
			return actor
		}
	}
	return auth.Actor{}
}

// AuthMiddleware validates the Bearer JWT on incoming requests. Staff tokens
// additionally load the user record so handlers can reject tokens whose
// account has since been deactivated; customer tokens carry no staff record.
func AuthMiddleware(userRepo *repositories.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			return
		}

		claims, err := auth.ValidateJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			return
		}

		actor := auth.Actor{ID: claims.UserID, Email: claims.Email, Kind: claims.Kind}

		if claims.Kind == auth.ActorStaff {
			user, err := userRepo.GetUserByID(c.Request.Context(), claims.UserID)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Failed to load user",
				})
				return
			}
			if user == nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "User not found",
				})
				return
			}
			// Deactivated accounts keep their unexpired tokens; reject here so
			// deactivation takes effect on the next request.
			if !user.IsActive {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "Account is deactivated",
				})
				return
			}
			c.Set(ContextUser, user)
		}

		c.Set(ContextActor, actor)
		c.Set(ContextUserID, actor.ID)

		c.Next()
	}
}

// CustomerAuthMiddleware validates a Bearer JWT and requires that it was
// issued to a customer portal account. Staff tokens are rejected so staff
// sessions never masquerade as clients when self-service endpoints resolve
// records by the token's subject.
func CustomerAuthMiddleware(clientRepo *repositories.ClientRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			return
		}

		claims, err := auth.ValidateJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			return
		}

		if claims.Kind != auth.ActorCustomer {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Customer account required",
			})
			return
		}

		client, err := clientRepo.GetClientByID(c.Request.Context(), claims.UserID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to load client",
			})
			return
		}
		if client == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Client not found",
			})
			return
		}

		c.Set(ContextActor, auth.Actor{ID: claims.UserID, Email: claims.Email, Kind: auth.ActorCustomer})
		c.Set(ContextUserID, claims.UserID)
		c.Set("client", client)

		c.Next()
	}
}

// bearerToken extracts the Bearer token from the Authorization header,
// aborting the request with 401 when the header is missing or malformed.
func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "Missing authorization header",
		})
		return "", false
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "Authorization header must start with 'Bearer '",
		})
		return "", false
	}

	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "Authorization token is empty",
		})
		return "", false
	}

	return token, true
}

// Package middleware (permission.go) implements permission-based authorization
// middleware backed by the authorization gate.
//
// Permissions (e.g. "clients.edit", "system.audit") are resolved at request
// time rather than being embedded in the JWT. This is a deliberate design
// choice: when a user's roles change, the change takes effect immediately on
// their next request without needing to invalidate or reissue their token.
// Embedding permissions in the JWT would require token rotation on every role
// change, which is operationally expensive and error-prone.

package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tarim-tours/backoffice/internal/auth"
)

// RequirePermission aborts the request unless the authenticated actor holds
// the given permission. It must run after AuthMiddleware, which puts the
// actor in the context.
func RequirePermission(gate *auth.Gate, required auth.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := ActorFromContext(c)
		if actor.ID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "User not authenticated",
			})
			return
		}

		decision, err := gate.Evaluate(c.Request.Context(), actor, required)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to check permissions",
			})
			return
		}

		if !decision.Allowed {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "Missing required permission",
				"details": "Required permission: " + string(required),
			})
			return
		}

		c.Next()
	}
}

// RequireAnyPermission aborts unless the actor holds at least one of the
// given permissions. Used for routes shared by several roles, such as the
// dashboard stats endpoint.
func RequireAnyPermission(gate *auth.Gate, required ...auth.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := ActorFromContext(c)
		if actor.ID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "User not authenticated",
			})
			return
		}

		for _, perm := range required {
			decision, err := gate.Evaluate(c.Request.Context(), actor, perm)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Failed to check permissions",
				})
				return
			}
			if decision.Allowed {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "Missing required permission",
		})
	}
}

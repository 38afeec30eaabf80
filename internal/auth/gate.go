// Package auth - gate.go implements the authorization gate that every
// protected operation passes through. The gate resolves the acting user's
// permissions from the database on each check so role changes apply
// immediately, without waiting for tokens to expire.
package auth

import (
	"context"
	"fmt"

	"github.com/tarim-tours/backoffice/internal/apperr"
)

// Actor is the authenticated identity attached to a request.
type Actor struct {
	ID    string
	Email string
	Kind  ActorKind
}

// PermissionSource resolves the permission codes granted to a staff user
// through their role assignments.
type PermissionSource interface {
	GetUserPermissions(ctx context.Context, userID string) ([]string, error)
}

// Decision is the result of evaluating an access request.
type Decision struct {
	Allowed bool
	// Missing is the permission that was required but not held. Zero when allowed.
	Missing Permission
	// Reason is a short human-readable explanation for denied decisions.
	Reason string
}

// Gate answers "may this actor perform this operation" for the whole API.
type Gate struct {
	perms PermissionSource
}

// NewGate creates an authorization gate backed by the given permission source
func NewGate(perms PermissionSource) *Gate {
	return &Gate{perms: perms}
}

// Evaluate checks whether the actor holds the required permission. It returns
// an error only for infrastructure failures; a denial is a Decision, not an
// error. Customer actors are denied outright: permissions only exist for staff.
func (g *Gate) Evaluate(ctx context.Context, actor Actor, required Permission) (Decision, error) {
	if actor.ID == "" {
		return Decision{Reason: "authentication required"}, nil
	}

	if actor.Kind == ActorCustomer {
		return Decision{
			Missing: required,
			Reason:  "customer accounts cannot access staff operations",
		}, nil
	}

	userPerms, err := g.perms.GetUserPermissions(ctx, actor.ID)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to resolve permissions for user %s: %w", actor.ID, err)
	}

	if !HasPermission(userPerms, required) {
		return Decision{
			Missing: required,
			Reason:  fmt.Sprintf("missing permission: %s", required),
		}, nil
	}

	return Decision{Allowed: true}, nil
}

// Authorize is the error-returning form of Evaluate used by handlers: nil
// means proceed, otherwise the error carries the kind the HTTP layer maps to
// 401, 403, or 500.
func (g *Gate) Authorize(ctx context.Context, actor Actor, required Permission) error {
	decision, err := g.Evaluate(ctx, actor, required)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "authorization check failed", err)
	}
	if decision.Allowed {
		return nil
	}
	if actor.ID == "" {
		return apperr.E(apperr.Unauthenticated, decision.Reason)
	}
	return apperr.E(apperr.Forbidden, decision.Reason)
}

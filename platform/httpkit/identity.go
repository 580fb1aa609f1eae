// Package httpkit provides HTTP utilities including identity abstraction.
package httpkit

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Identity represents the authenticated user's identity.
// This interface abstracts identity extraction from the web framework,
// allowing handlers to access user information without depending on Gin.
type Identity interface {
	// UserID returns the authenticated user's ID.
	UserID() uuid.UUID
	// Name returns the user's display name as carried in the token.
	Name() string
	// Role returns the user's portal role.
	Role() string
	// OrganizationID returns the user's organization, nil for ColorGarb staff
	// operating cross-organization.
	OrganizationID() *uuid.UUID
	// IsStaff reports whether the user is ColorGarb staff (admin mode).
	IsStaff() bool
	// IsAuthenticated returns true if the user is authenticated.
	IsAuthenticated() bool
}

// identity is the concrete implementation of Identity.
type identity struct {
	userID        uuid.UUID
	name          string
	role          string
	orgID         *uuid.UUID
	authenticated bool
}

func (i *identity) UserID() uuid.UUID {
	return i.userID
}

func (i *identity) Name() string {
	return i.name
}

func (i *identity) Role() string {
	return i.role
}

func (i *identity) OrganizationID() *uuid.UUID {
	return i.orgID
}

func (i *identity) IsStaff() bool {
	return i.role == RoleStaff
}

func (i *identity) IsAuthenticated() bool {
	return i.authenticated
}

// GetIdentity extracts the Identity from a Gin context.
// Returns an unauthenticated identity if user info is not present.
func GetIdentity(c *gin.Context) Identity {
	userID, userOK := c.Get(ContextUserIDKey)
	if !userOK {
		return &identity{authenticated: false}
	}

	uid, ok := userID.(uuid.UUID)
	if !ok {
		return &identity{authenticated: false}
	}

	var name string
	if value, ok := c.Get(ContextNameKey); ok {
		name, _ = value.(string)
	}

	var role string
	if value, ok := c.Get(ContextRoleKey); ok {
		role, _ = value.(string)
	}

	var orgID *uuid.UUID
	if value, ok := c.Get(ContextOrgIDKey); ok {
		if parsed, ok := value.(uuid.UUID); ok {
			orgID = &parsed
		}
	}

	return &identity{
		userID:        uid,
		name:          name,
		role:          role,
		orgID:         orgID,
		authenticated: true,
	}
}

// MustGetIdentity extracts the Identity from a Gin context.
// If the user is not authenticated, it aborts with 401 Unauthorized and returns nil.
func MustGetIdentity(c *gin.Context) Identity {
	id := GetIdentity(c)
	if !id.IsAuthenticated() {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil
	}
	return id
}

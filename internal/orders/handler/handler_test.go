package handler

import (
	"net/http/httptest"
	"testing"

	"colorgarb_portal_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func staffContext(t *testing.T, userID uuid.UUID, name string) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Set(httpkit.ContextUserIDKey, userID)
	if name != "" {
		c.Set(httpkit.ContextNameKey, name)
	}
	c.Set(httpkit.ContextRoleKey, httpkit.RoleStaff)
	return c
}

func TestActorFromUsesDisplayName(t *testing.T) {
	aliceID := uuid.New()
	bobID := uuid.New()

	alice := actorFrom(httpkit.GetIdentity(staffContext(t, aliceID, "Alice Nguyen")))
	bob := actorFrom(httpkit.GetIdentity(staffContext(t, bobID, "Bob Castillo")))

	if alice.Name != "Alice Nguyen" {
		t.Errorf("actor name = %q, want Alice Nguyen", alice.Name)
	}
	if bob.Name != "Bob Castillo" {
		t.Errorf("actor name = %q, want Bob Castillo", bob.Name)
	}
	// Two staff users acting on the same order must stay distinguishable in
	// the stage history they write.
	if alice.Name == bob.Name {
		t.Errorf("distinct staff users produced the same actor name %q", alice.Name)
	}
	if alice.ID != aliceID || bob.ID != bobID {
		t.Error("actor IDs do not match the authenticated users")
	}
}

func TestActorFromFallsBackToRole(t *testing.T) {
	actor := actorFrom(httpkit.GetIdentity(staffContext(t, uuid.New(), "")))
	if actor.Name != httpkit.RoleStaff {
		t.Errorf("actor name = %q, want %q", actor.Name, httpkit.RoleStaff)
	}
}

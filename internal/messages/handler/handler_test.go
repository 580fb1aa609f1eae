package handler

import (
	"net/http/httptest"
	"testing"

	"colorgarb_portal_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func memberContext(t *testing.T, name string) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Set(httpkit.ContextUserIDKey, uuid.New())
	if name != "" {
		c.Set(httpkit.ContextNameKey, name)
	}
	c.Set(httpkit.ContextRoleKey, httpkit.RoleDirector)
	c.Set(httpkit.ContextOrgIDKey, uuid.New())
	return c
}

func TestReaderFromCarriesDisplayName(t *testing.T) {
	reader := readerFrom(httpkit.GetIdentity(memberContext(t, "Jordan Blake")))

	if reader.Name != "Jordan Blake" {
		t.Errorf("sender name = %q, want Jordan Blake", reader.Name)
	}
	if reader.Role != httpkit.RoleDirector {
		t.Errorf("sender role = %q, want %q", reader.Role, httpkit.RoleDirector)
	}
	if reader.Name == reader.Role {
		t.Error("sender name must not collapse to the role string")
	}
}

func TestReaderFromFallsBackToRole(t *testing.T) {
	reader := readerFrom(httpkit.GetIdentity(memberContext(t, "")))
	if reader.Name != httpkit.RoleDirector {
		t.Errorf("sender name = %q, want %q", reader.Name, httpkit.RoleDirector)
	}
}

package handler

import (
	"errors"
	"net/http"

	"colorgarb_portal_backend/internal/auth/repository"
	"colorgarb_portal_backend/internal/auth/service"
	"colorgarb_portal_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *service.Service
}

func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the public auth endpoints.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/login", h.Login)
	rg.POST("/refresh", h.Refresh)
	rg.POST("/logout", h.Logout)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// UserResponse is the wire shape of an authenticated user.
type UserResponse struct {
	ID             string  `json:"id"`
	OrganizationID *string `json:"organizationId,omitempty"`
	Name           string  `json:"name"`
	Email          string  `json:"email"`
	Role           string  `json:"role"`
}

type tokenResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	User         UserResponse `json:"user"`
}

func toUserResponse(u repository.User) UserResponse {
	resp := UserResponse{
		ID:    u.ID.String(),
		Name:  u.Name,
		Email: u.Email,
		Role:  u.Role,
	}
	if u.OrganizationID != nil {
		orgID := u.OrganizationID.String()
		resp.OrganizationID = &orgID
	}
	return resp
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "email and password are required", nil)
		return
	}

	user, pair, err := h.svc.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			httpkit.Error(c, http.StatusUnauthorized, "invalid credentials", nil)
			return
		}
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         toUserResponse(user),
	})
}

func (h *Handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "refreshToken is required", nil)
		return
	}

	user, pair, err := h.svc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, service.ErrTokenInvalid) || errors.Is(err, service.ErrTokenExpired) {
			httpkit.Error(c, http.StatusUnauthorized, "invalid refresh token", nil)
			return
		}
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         toUserResponse(user),
	})
}

func (h *Handler) Logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "refreshToken is required", nil)
		return
	}

	if err := h.svc.SignOut(c.Request.Context(), req.RefreshToken); httpkit.HandleError(c, err) {
		return
	}

	c.Status(http.StatusNoContent)
}

// GetMe returns the authenticated user's own profile.
func (h *Handler) GetMe(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	user, err := h.svc.Me(c.Request.Context(), identity.UserID())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			httpkit.Error(c, http.StatusNotFound, "user not found", nil)
			return
		}
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, toUserResponse(user))
}

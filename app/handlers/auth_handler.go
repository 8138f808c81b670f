package handlers

import (
	"log"

	"github.com/amirphl/gymdesk/app/services"
	"github.com/gofiber/fiber/v3"
)

// AuthHandler manages the lifetime of the caller's own access token
type AuthHandler struct {
	baseHandler
	tokenService services.TokenService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(tokenService services.TokenService) *AuthHandler {
	return &AuthHandler{
		baseHandler:  newBaseHandler(),
		tokenService: tokenService,
	}
}

// Logout revokes the access token used for this request
// @Summary Logout
// @Description Revoke the current access token until it expires
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse
// @Failure 401 {object} dto.APIResponse
// @Failure 503 {object} dto.APIResponse
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) Logout(c fiber.Ctx) error {
	claims, ok := c.Locals("token_claims").(*services.StaffClaims)
	if !ok || claims == nil {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Token claims not found in context", "MISSING_TOKEN_CLAIMS", nil)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/auth/logout")
	defer cancel()

	if err := h.tokenService.RevokeToken(ctx, claims); err != nil {
		log.Printf("revoke token %s of user %d failed: %v", claims.TokenID, claims.UserID, err)
		return h.ErrorResponse(c, fiber.StatusServiceUnavailable, "Logout is unavailable", "TOKEN_REVOCATION_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Logged out", nil)
}

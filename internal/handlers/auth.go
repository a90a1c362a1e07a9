package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/vehicle-ledger/internal/auth"
	"github.com/ukydev/vehicle-ledger/internal/middleware"
	"github.com/ukydev/vehicle-ledger/internal/models"
)

// OwnerRepository loads and stores the single local account.
type OwnerRepository interface {
	Owner(ctx context.Context) (*models.Owner, error)
	SaveOwner(ctx context.Context, o *models.Owner) error
}

// AuthHandler handles authentication requests
type AuthHandler struct {
	authService *auth.Service
	owners      OwnerRepository
	now         func() time.Time
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(authService *auth.Service, owners OwnerRepository) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		owners:      owners,
		now:         time.Now,
	}
}

// Status reports whether the owner account exists yet.
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	owner, err := h.owners.Owner(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"setupComplete": owner != nil})
}

// Setup creates the owner account. It only succeeds once.
func (h *AuthHandler) Setup(w http.ResponseWriter, r *http.Request) {
	var req models.SetupRequest
	if !readJSON(w, r, &req) {
		return
	}

	if err := h.authService.ValidateUsername(req.Username); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_parameter", err.Error())
		return
	}
	if err := h.authService.ValidatePassword(req.Password); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_parameter", err.Error())
		return
	}

	existing, err := h.owners.Owner(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if existing != nil {
		writeJSONError(w, http.StatusConflict, "conflict", auth.ErrOwnerExists.Error())
		return
	}

	passwordHash, err := h.authService.HashPassword(req.Password)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "server_error", "Failed to hash password")
		return
	}

	owner := &models.Owner{
		Username:     req.Username,
		PasswordHash: passwordHash,
		CreatedAt:    h.now().UTC(),
	}
	if err := h.owners.SaveOwner(r.Context(), owner); err != nil {
		writeError(w, err)
		return
	}
	log.WithField("username", owner.Username).Info("Owner account created")

	h.respondWithTokens(w, http.StatusCreated, owner.Username)
}

// Login handles owner login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !readJSON(w, r, &req) {
		return
	}

	if req.Username == "" || req.Password == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_parameter", "Username and password are required")
		return
	}

	owner, err := h.owners.Owner(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if owner == nil {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized", auth.ErrOwnerNotFound.Error())
		return
	}

	if owner.Username != req.Username || !h.authService.CheckPassword(req.Password, owner.PasswordHash) {
		log.WithField("username", req.Username).Warn("Failed login attempt")
		writeJSONError(w, http.StatusUnauthorized, "unauthorized", auth.ErrInvalidCredentials.Error())
		return
	}

	now := h.now().UTC()
	owner.LastLogin = &now
	if err := h.owners.SaveOwner(r.Context(), owner); err != nil {
		// Log error but don't fail the login
		log.WithError(err).Error("Failed to update last login")
	}

	h.respondWithTokens(w, http.StatusOK, owner.Username)
}

// ChangePassword replaces the owner's password after checking the current one.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetOwnerFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Owner context not found")
		return
	}

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if !readJSON(w, r, &req) {
		return
	}

	if req.CurrentPassword == "" || req.NewPassword == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_parameter", "Current password and new password are required")
		return
	}
	if err := h.authService.ValidatePassword(req.NewPassword); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_parameter", err.Error())
		return
	}

	owner, err := h.owners.Owner(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if owner == nil || owner.Username != claims.Username {
		writeJSONError(w, http.StatusNotFound, "not_found", auth.ErrOwnerNotFound.Error())
		return
	}

	if !h.authService.CheckPassword(req.CurrentPassword, owner.PasswordHash) {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Current password is incorrect")
		return
	}

	owner.PasswordHash, err = h.authService.HashPassword(req.NewPassword)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "server_error", "Failed to hash password")
		return
	}
	if err := h.owners.SaveOwner(r.Context(), owner); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Password changed successfully"})
}

func (h *AuthHandler) respondWithTokens(w http.ResponseWriter, status int, username string) {
	token, err := h.authService.GenerateToken(username)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "server_error", "Failed to generate token")
		return
	}

	refreshToken, err := h.authService.GenerateRefreshToken()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "server_error", "Failed to generate refresh token")
		return
	}

	writeJSON(w, status, models.LoginResponse{
		Token:        token,
		RefreshToken: refreshToken,
		Username:     username,
	})
}

// readJSON decodes the request body into v, answering 400 on failure.
func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON")
		return false
	}
	return true
}

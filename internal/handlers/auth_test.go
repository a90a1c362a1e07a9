package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/vehicle-ledger/internal/auth"
	"github.com/ukydev/vehicle-ledger/internal/middleware"
	"github.com/ukydev/vehicle-ledger/internal/models"
)

// MockOwnerRepository is a mock implementation of OwnerRepository
type MockOwnerRepository struct {
	mock.Mock
}

func (m *MockOwnerRepository) Owner(ctx context.Context) (*models.Owner, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Owner), args.Error(1)
}

func (m *MockOwnerRepository) SaveOwner(ctx context.Context, o *models.Owner) error {
	args := m.Called(ctx, o)
	return args.Error(0)
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func existingOwner(t *testing.T, authService *auth.Service) *models.Owner {
	t.Helper()
	hash, err := authService.HashPassword("password123")
	require.NoError(t, err)
	return &models.Owner{Username: "owner", PasswordHash: hash}
}

func TestAuthHandler_Status(t *testing.T) {
	authService := auth.NewService("", 0)

	for _, tt := range []struct {
		name  string
		owner *models.Owner
		want  bool
	}{
		{"before setup", nil, false},
		{"after setup", &models.Owner{Username: "owner"}, true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockOwnerRepository)
			if tt.owner == nil {
				repo.On("Owner", mock.Anything).Return(nil, nil)
			} else {
				repo.On("Owner", mock.Anything).Return(tt.owner, nil)
			}
			handler := NewAuthHandler(authService, repo)

			w := httptest.NewRecorder()
			handler.Status(w, httptest.NewRequest("GET", "/api/auth/status", nil))

			assert.Equal(t, http.StatusOK, w.Code)
			var resp map[string]bool
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.want, resp["setupComplete"])
			repo.AssertExpectations(t)
		})
	}
}

func TestAuthHandler_Setup(t *testing.T) {
	authService := auth.NewService("", 0)

	t.Run("creates owner once", func(t *testing.T) {
		repo := new(MockOwnerRepository)
		repo.On("Owner", mock.Anything).Return(nil, nil)
		repo.On("SaveOwner", mock.Anything, mock.MatchedBy(func(o *models.Owner) bool {
			return o.Username == "owner" && authService.CheckPassword("password123", o.PasswordHash)
		})).Return(nil)
		handler := NewAuthHandler(authService, repo)

		req := httptest.NewRequest("POST", "/api/auth/setup",
			jsonBody(t, models.SetupRequest{Username: "owner", Password: "password123"}))
		w := httptest.NewRecorder()
		handler.Setup(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		var resp models.LoginResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Token)
		assert.NotEmpty(t, resp.RefreshToken)
		assert.Equal(t, "owner", resp.Username)

		claims, err := authService.ValidateToken(resp.Token)
		require.NoError(t, err)
		assert.Equal(t, "owner", claims.Username)
		repo.AssertExpectations(t)
	})

	t.Run("already set up", func(t *testing.T) {
		repo := new(MockOwnerRepository)
		repo.On("Owner", mock.Anything).Return(&models.Owner{Username: "owner"}, nil)
		handler := NewAuthHandler(authService, repo)

		req := httptest.NewRequest("POST", "/api/auth/setup",
			jsonBody(t, models.SetupRequest{Username: "other", Password: "password123"}))
		w := httptest.NewRecorder()
		handler.Setup(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
		repo.AssertNotCalled(t, "SaveOwner", mock.Anything, mock.Anything)
	})

	t.Run("weak password", func(t *testing.T) {
		repo := new(MockOwnerRepository)
		handler := NewAuthHandler(authService, repo)

		req := httptest.NewRequest("POST", "/api/auth/setup",
			jsonBody(t, models.SetupRequest{Username: "owner", Password: "short"}))
		w := httptest.NewRecorder()
		handler.Setup(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		repo.AssertExpectations(t)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		handler := NewAuthHandler(authService, new(MockOwnerRepository))
		w := httptest.NewRecorder()
		handler.Setup(w, httptest.NewRequest("POST", "/api/auth/setup", bytes.NewBufferString("{bad")))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAuthHandler_Login(t *testing.T) {
	authService := auth.NewService("", 0)

	t.Run("successful login", func(t *testing.T) {
		repo := new(MockOwnerRepository)
		owner := existingOwner(t, authService)
		repo.On("Owner", mock.Anything).Return(owner, nil)
		repo.On("SaveOwner", mock.Anything, mock.MatchedBy(func(o *models.Owner) bool {
			return o.LastLogin != nil
		})).Return(nil)
		handler := NewAuthHandler(authService, repo)

		req := httptest.NewRequest("POST", "/api/auth/login",
			jsonBody(t, models.LoginRequest{Username: "owner", Password: "password123"}))
		w := httptest.NewRecorder()
		handler.Login(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp models.LoginResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, "owner", resp.Username)
		repo.AssertExpectations(t)
	})

	t.Run("last login failure does not block", func(t *testing.T) {
		repo := new(MockOwnerRepository)
		repo.On("Owner", mock.Anything).Return(existingOwner(t, authService), nil)
		repo.On("SaveOwner", mock.Anything, mock.Anything).Return(assert.AnError)
		handler := NewAuthHandler(authService, repo)

		req := httptest.NewRequest("POST", "/api/auth/login",
			jsonBody(t, models.LoginRequest{Username: "owner", Password: "password123"}))
		w := httptest.NewRecorder()
		handler.Login(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	rejected := []struct {
		name     string
		username string
		password string
	}{
		{"wrong password", "owner", "wrongpassword"},
		{"wrong username", "intruder", "password123"},
	}
	for _, tt := range rejected {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockOwnerRepository)
			repo.On("Owner", mock.Anything).Return(existingOwner(t, authService), nil)
			handler := NewAuthHandler(authService, repo)

			req := httptest.NewRequest("POST", "/api/auth/login",
				jsonBody(t, models.LoginRequest{Username: tt.username, Password: tt.password}))
			w := httptest.NewRecorder()
			handler.Login(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			repo.AssertNotCalled(t, "SaveOwner", mock.Anything, mock.Anything)
		})
	}

	t.Run("before setup", func(t *testing.T) {
		repo := new(MockOwnerRepository)
		repo.On("Owner", mock.Anything).Return(nil, nil)
		handler := NewAuthHandler(authService, repo)

		req := httptest.NewRequest("POST", "/api/auth/login",
			jsonBody(t, models.LoginRequest{Username: "owner", Password: "password123"}))
		w := httptest.NewRecorder()
		handler.Login(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		handler := NewAuthHandler(authService, new(MockOwnerRepository))
		req := httptest.NewRequest("POST", "/api/auth/login", jsonBody(t, models.LoginRequest{Username: "owner"}))
		w := httptest.NewRecorder()
		handler.Login(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("repository failure", func(t *testing.T) {
		repo := new(MockOwnerRepository)
		repo.On("Owner", mock.Anything).Return(nil, assert.AnError)
		handler := NewAuthHandler(authService, repo)

		req := httptest.NewRequest("POST", "/api/auth/login",
			jsonBody(t, models.LoginRequest{Username: "owner", Password: "password123"}))
		w := httptest.NewRecorder()
		handler.Login(w, req)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestAuthHandler_ChangePassword(t *testing.T) {
	authService := auth.NewService("", 0)
	withOwner := func(r *http.Request) *http.Request {
		ctx := context.WithValue(r.Context(), middleware.OwnerContextKey, &models.Claims{Username: "owner"})
		return r.WithContext(ctx)
	}

	t.Run("changes password", func(t *testing.T) {
		repo := new(MockOwnerRepository)
		repo.On("Owner", mock.Anything).Return(existingOwner(t, authService), nil)
		repo.On("SaveOwner", mock.Anything, mock.MatchedBy(func(o *models.Owner) bool {
			return authService.CheckPassword("newpassword456", o.PasswordHash)
		})).Return(nil)
		handler := NewAuthHandler(authService, repo)

		req := withOwner(httptest.NewRequest("POST", "/api/auth/password", jsonBody(t, map[string]string{
			"current_password": "password123",
			"new_password":     "newpassword456",
		})))
		w := httptest.NewRecorder()
		handler.ChangePassword(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		repo.AssertExpectations(t)
	})

	t.Run("wrong current password", func(t *testing.T) {
		repo := new(MockOwnerRepository)
		repo.On("Owner", mock.Anything).Return(existingOwner(t, authService), nil)
		handler := NewAuthHandler(authService, repo)

		req := withOwner(httptest.NewRequest("POST", "/api/auth/password", jsonBody(t, map[string]string{
			"current_password": "nope-nope",
			"new_password":     "newpassword456",
		})))
		w := httptest.NewRecorder()
		handler.ChangePassword(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		repo.AssertNotCalled(t, "SaveOwner", mock.Anything, mock.Anything)
	})

	t.Run("no owner in context", func(t *testing.T) {
		handler := NewAuthHandler(authService, new(MockOwnerRepository))
		w := httptest.NewRecorder()
		handler.ChangePassword(w, httptest.NewRequest("POST", "/api/auth/password", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

package models

import "time"

// Owner is the single local account allowed to use the API. It is kept in
// the "owner" setting.
type Owner struct {
	Username     string     `json:"username"`
	PasswordHash string     `json:"passwordHash"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SetupRequest creates the owner account on first run
type SetupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse represents a successful login response
type LoginResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	Username     string `json:"username"`
}

// Claims represents JWT claims
type Claims struct {
	Username string `json:"username"`
	Exp      int64  `json:"exp"`
}

// velvet/utils/types/user.go
package types

import "github.com/google/uuid"

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string     `json:"access_token"`
	TokenType   string     `json:"token_type"`
	UserID      *uuid.UUID `json:"user_id,omitempty"`
}

type UserProfile struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	Email       string         `json:"email"`
	AvatarURL   *string        `json:"avatar_url"`
	Preferences map[string]any `json:"preferences"`
}

type UpdateProfileRequest struct {
	Name        string         `json:"name"`
	Email       string         `json:"email"`
	AvatarURL   *string        `json:"avatar_url,omitempty"`
	Preferences map[string]any `json:"preferences,omitempty"`
}

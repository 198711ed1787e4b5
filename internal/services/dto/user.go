package dto

import (
	"time"

	"messaging_backend/internal/models"
)

// ---------------- Requests ----------------

type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email,max=255"`
	Password  string `json:"password" validate:"required,min=8,max=128"`
	Username  string `json:"username" validate:"omitempty,max=150"`
	FirstName string `json:"first_name" validate:"omitempty,max=150"`
	LastName  string `json:"last_name" validate:"omitempty,max=150"`
	Role      string `json:"role" validate:"omitempty,is-user-role"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type UpdateProfileRequest struct {
	Username           *string `json:"username,omitempty" validate:"omitempty,max=150"`
	FirstName          *string `json:"first_name,omitempty" validate:"omitempty,max=150"`
	LastName           *string `json:"last_name,omitempty" validate:"omitempty,max=150"`
	IsProfilePublic    *bool   `json:"is_profile_public,omitempty"`
	IsPhoneVisible     *bool   `json:"is_phone_visible,omitempty"`
	ShowOnlineStatus   *bool   `json:"show_online_status,omitempty"`
	EmailNotifications *bool   `json:"email_notifications,omitempty"`
	PushNotifications  *bool   `json:"push_notifications,omitempty"`
}

type UserCriteria struct {
	Role       string `form:"role" validate:"omitempty,is-user-role"`
	IsActive   *bool  `form:"is_active"`
	IsVerified *bool  `form:"is_verified"`
	Search     string `form:"search" validate:"omitempty,max=100"`
	Pagination
}

// ---------------- Responses ----------------

type UserResponse struct {
	ID                 string     `json:"id"`
	Email              string     `json:"email"`
	Username           string     `json:"username,omitempty"`
	FirstName          string     `json:"first_name,omitempty"`
	LastName           string     `json:"last_name,omitempty"`
	DisplayName        string     `json:"display_name"`
	Role               string     `json:"role"`
	IsStaff            bool       `json:"is_staff"`
	IsActive           bool       `json:"is_active"`
	IsVerified         bool       `json:"is_verified"`
	IsSuspended        bool       `json:"is_suspended"`
	IsProfilePublic    bool       `json:"is_profile_public"`
	ShowOnlineStatus   bool       `json:"show_online_status"`
	EmailNotifications bool       `json:"email_notifications"`
	PushNotifications  bool       `json:"push_notifications"`
	IsOnline           bool       `json:"is_online"`
	LastSeen           *time.Time `json:"last_seen,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

type UserListResponse struct {
	Users    []*UserResponse `json:"users"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

type AuthResponse struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	User      *UserResponse `json:"user"`
}

type OnlineStatusResponse struct {
	UserID   string `json:"user_id"`
	IsOnline bool   `json:"is_online"`
}

// NewUserResponse hides the last_seen of users who do not share their status.
func NewUserResponse(user *models.User, now time.Time) *UserResponse {
	resp := &UserResponse{
		ID:                 user.ID,
		Email:              user.Email,
		Username:           user.Username,
		FirstName:          user.FirstName,
		LastName:           user.LastName,
		DisplayName:        user.DisplayName(),
		Role:               string(user.Role),
		IsStaff:            user.IsStaff,
		IsActive:           user.IsActive,
		IsVerified:         user.IsVerified,
		IsSuspended:        user.IsSuspended,
		IsProfilePublic:    user.IsProfilePublic,
		ShowOnlineStatus:   user.ShowOnlineStatus,
		EmailNotifications: user.EmailNotifications,
		PushNotifications:  user.PushNotifications,
		IsOnline:           user.IsOnline(now),
		CreatedAt:          user.CreatedAt,
	}
	if user.ShowOnlineStatus {
		resp.LastSeen = user.LastSeen
	}
	return resp
}

package models

import (
	"strings"
	"time"
)

const (
	OnlineWindow     = 5 * time.Minute
	MaxLoginAttempts = 5
	LockoutDuration  = 30 * time.Minute
)

type User struct {
	BaseModel
	Email        string   `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Username     string   `gorm:"size:150" json:"username"`
	FirstName    string   `gorm:"size:150" json:"first_name"`
	LastName     string   `gorm:"size:150" json:"last_name"`
	PasswordHash string   `gorm:"not null" json:"-"`
	Role         UserRole `gorm:"type:varchar(20);not null;default:'guest'" json:"role"`
	IsStaff      bool     `gorm:"default:false" json:"is_staff"`

	IsActive    bool `json:"is_active"`
	IsVerified  bool `gorm:"default:false" json:"is_verified"`
	IsSuspended bool `gorm:"default:false" json:"is_suspended"`

	IsProfilePublic  bool `json:"is_profile_public"`
	IsPhoneVisible   bool `gorm:"default:false" json:"is_phone_visible"`
	ShowOnlineStatus bool `json:"show_online_status"`

	EmailNotifications bool `json:"email_notifications"`
	PushNotifications  bool `json:"push_notifications"`

	LastSeen      *time.Time `gorm:"index" json:"last_seen,omitempty"`
	LoginAttempts int        `gorm:"default:0" json:"-"`
	LockedUntil   *time.Time `json:"-"`
}

// NewUser returns an active account with the default visibility and
// notification settings.
func NewUser(email, passwordHash string, role UserRole) *User {
	if role == "" {
		role = UserRoleGuest
	}
	return &User{
		Email:              email,
		PasswordHash:       passwordHash,
		Role:               role,
		IsActive:           true,
		IsProfilePublic:    true,
		ShowOnlineStatus:   true,
		EmailNotifications: true,
		PushNotifications:  true,
	}
}

// DisplayName is the full name, falling back to username then email.
func (u *User) DisplayName() string {
	full := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if full != "" {
		return full
	}
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}

func (u *User) IsOnline(now time.Time) bool {
	if !u.ShowOnlineStatus || u.LastSeen == nil {
		return false
	}
	return now.Sub(*u.LastSeen) < OnlineWindow
}

func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// CanSignIn is false for inactive or suspended accounts.
func (u *User) CanSignIn() bool {
	return u.IsActive && !u.IsSuspended
}

func (u *User) CanCreateConversations() bool {
	return u.IsStaff || u.Role == UserRoleHost || u.Role == UserRoleAdmin
}

func (u *User) HasModerationPermissions() bool {
	return u.IsStaff || u.Role == UserRoleAdmin
}

// RegisterFailedLogin counts a bad password and locks the account once the
// threshold is hit. Returns true when this call locked it.
func (u *User) RegisterFailedLogin(now time.Time) bool {
	u.LoginAttempts++
	if u.LoginAttempts >= MaxLoginAttempts {
		until := now.Add(LockoutDuration)
		u.LockedUntil = &until
		u.LoginAttempts = 0
		return true
	}
	return false
}

func (u *User) RegisterSuccessfulLogin(now time.Time) {
	u.LoginAttempts = 0
	u.LockedUntil = nil
	u.LastSeen = &now
}

func (u *User) Unlock() {
	u.LoginAttempts = 0
	u.LockedUntil = nil
}

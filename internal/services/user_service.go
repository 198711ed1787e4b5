package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"messaging_backend/internal/auth"
	"messaging_backend/internal/cache"
	"messaging_backend/internal/logger"
	"messaging_backend/internal/models"
	"messaging_backend/internal/repositories"
	"messaging_backend/internal/services/dto"
	"messaging_backend/pkg/apperrors"

	"gorm.io/gorm"
)

type UserService interface {
	Register(db *gorm.DB, req *dto.RegisterRequest) (*dto.UserResponse, error)
	Authenticate(db *gorm.DB, req *dto.LoginRequest) (*dto.AuthResponse, error)
	GetUser(db *gorm.DB, userID string) (*dto.UserResponse, error)
	ListUsers(db *gorm.DB, criteria dto.UserCriteria) (*dto.UserListResponse, error)
	UpdateProfile(db *gorm.DB, userID string, req *dto.UpdateProfileRequest) (*dto.UserResponse, error)

	// Presence
	TouchLastSeen(ctx context.Context, db *gorm.DB, userID string) error
	IsOnline(ctx context.Context, db *gorm.DB, userID string) (bool, error)

	// Admin operations
	Suspend(db *gorm.DB, userID string) error
	Unsuspend(db *gorm.DB, userID string) error
	Verify(db *gorm.DB, userID string) error
	Unlock(db *gorm.DB, userID string) error
	EnsureAdmin(db *gorm.DB, email, password string) (*models.User, error)
}

type userService struct {
	userRepo repositories.UserRepository
	tokens   *auth.TokenManager
	presence cache.Cache
}

func NewUserService(userRepo repositories.UserRepository, tokens *auth.TokenManager, presence cache.Cache) UserService {
	if presence == nil {
		presence = cache.NewMemoryCache()
	}
	return &userService{
		userRepo: userRepo,
		tokens:   tokens,
		presence: presence,
	}
}

func (s *userService) Register(db *gorm.DB, req *dto.RegisterRequest) (*dto.UserResponse, error) {
	if err := auth.ValidatePassword(req.Password); err != nil {
		return nil, apperrors.FieldError("password", err.Error())
	}
	role := models.UserRole(req.Role)
	if role == models.UserRoleAdmin {
		return nil, apperrors.FieldError("role", "Admin accounts cannot be self-registered")
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}

	user := models.NewUser(strings.ToLower(strings.TrimSpace(req.Email)), hash, role)
	user.Username = req.Username
	user.FirstName = req.FirstName
	user.LastName = req.LastName

	tx := db.Begin()
	if tx.Error != nil {
		return nil, apperrors.InternalError(tx.Error)
	}
	defer tx.Rollback()

	if _, err := s.userRepo.FindByEmail(tx, user.Email); err == nil {
		return nil, apperrors.ErrEmailTaken
	} else if !errors.Is(err, repositories.ErrUserNotFound) {
		return nil, apperrors.InternalError(err)
	}

	if err := s.userRepo.Create(tx, user); err != nil {
		return nil, handleUserError(err)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, apperrors.InternalError(err)
	}

	logger.Info("user registered", "user_id", user.ID, "role", user.Role)
	return dto.NewUserResponse(user, models.Now()), nil
}

// Authenticate checks credentials and applies the lockout policy. Failed
// attempts are committed even though the call returns an error.
func (s *userService) Authenticate(db *gorm.DB, req *dto.LoginRequest) (*dto.AuthResponse, error) {
	now := models.Now()

	tx := db.Begin()
	if tx.Error != nil {
		return nil, apperrors.InternalError(tx.Error)
	}
	defer tx.Rollback()

	user, err := s.userRepo.FindByEmail(tx, req.Email)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, apperrors.InternalError(err)
	}

	if user.IsLocked(now) {
		return nil, apperrors.ErrAccountLocked
	}

	if !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		locked := user.RegisterFailedLogin(now)
		if err := s.userRepo.Update(tx, user); err != nil {
			return nil, apperrors.InternalError(err)
		}
		if err := tx.Commit().Error; err != nil {
			return nil, apperrors.InternalError(err)
		}
		if locked {
			logger.Warn("account locked after failed logins", "user_id", user.ID)
		}
		return nil, apperrors.ErrInvalidCredentials
	}

	if !user.CanSignIn() {
		return nil, apperrors.ErrAccountInactive
	}

	user.RegisterSuccessfulLogin(now)
	if err := s.userRepo.Update(tx, user); err != nil {
		return nil, apperrors.InternalError(err)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, apperrors.InternalError(err)
	}

	token, expiresAt, err := s.tokens.GenerateToken(user.ID, string(user.Role), user.IsStaff)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}

	return &dto.AuthResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      dto.NewUserResponse(user, now),
	}, nil
}

func (s *userService) GetUser(db *gorm.DB, userID string) (*dto.UserResponse, error) {
	user, err := s.userRepo.FindByID(db, userID)
	if err != nil {
		return nil, handleUserError(err)
	}
	return dto.NewUserResponse(user, models.Now()), nil
}

func (s *userService) ListUsers(db *gorm.DB, criteria dto.UserCriteria) (*dto.UserListResponse, error) {
	page, pageSize := criteria.Normalize()
	users, total, err := s.userRepo.FindWithFilter(db, repositories.UserFilter{
		Role:       models.UserRole(criteria.Role),
		IsActive:   criteria.IsActive,
		IsVerified: criteria.IsVerified,
		Search:     criteria.Search,
		Page:       page,
		PageSize:   pageSize,
	})
	if err != nil {
		return nil, apperrors.InternalError(err)
	}

	now := models.Now()
	resp := &dto.UserListResponse{
		Users:    make([]*dto.UserResponse, 0, len(users)),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}
	for i := range users {
		resp.Users = append(resp.Users, dto.NewUserResponse(&users[i], now))
	}
	return resp, nil
}

func (s *userService) UpdateProfile(db *gorm.DB, userID string, req *dto.UpdateProfileRequest) (*dto.UserResponse, error) {
	tx := db.Begin()
	if tx.Error != nil {
		return nil, apperrors.InternalError(tx.Error)
	}
	defer tx.Rollback()

	user, err := s.userRepo.FindByID(tx, userID)
	if err != nil {
		return nil, handleUserError(err)
	}

	if req.Username != nil {
		user.Username = *req.Username
	}
	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.IsProfilePublic != nil {
		user.IsProfilePublic = *req.IsProfilePublic
	}
	if req.IsPhoneVisible != nil {
		user.IsPhoneVisible = *req.IsPhoneVisible
	}
	if req.ShowOnlineStatus != nil {
		user.ShowOnlineStatus = *req.ShowOnlineStatus
	}
	if req.EmailNotifications != nil {
		user.EmailNotifications = *req.EmailNotifications
	}
	if req.PushNotifications != nil {
		user.PushNotifications = *req.PushNotifications
	}

	if err := s.userRepo.Update(tx, user); err != nil {
		return nil, handleUserError(err)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, apperrors.InternalError(err)
	}
	return dto.NewUserResponse(user, models.Now()), nil
}

// ============================================
// Presence
// ============================================

// TouchLastSeen persists last_seen and refreshes the presence key. A cache
// failure is logged; the database stays the source of truth.
func (s *userService) TouchLastSeen(ctx context.Context, db *gorm.DB, userID string) error {
	now := models.Now()
	if err := s.userRepo.UpdateLastSeen(db, userID, now); err != nil {
		return handleUserError(err)
	}
	if err := s.presence.Set(ctx, cache.PresenceKey(userID), now.Format(time.RFC3339Nano), models.OnlineWindow); err != nil {
		logger.CtxWithError(ctx, "failed to write presence", err, "user_id", userID)
	}
	return nil
}

func (s *userService) IsOnline(ctx context.Context, db *gorm.DB, userID string) (bool, error) {
	user, err := s.userRepo.FindByID(db, userID)
	if err != nil {
		return false, handleUserError(err)
	}
	if !user.ShowOnlineStatus {
		return false, nil
	}

	now := models.Now()
	value, err := s.presence.Get(ctx, cache.PresenceKey(userID))
	if err == nil {
		if seen, parseErr := time.Parse(time.RFC3339Nano, value); parseErr == nil {
			return now.Sub(seen) < models.OnlineWindow, nil
		}
	} else if !errors.Is(err, cache.ErrMiss) {
		logger.CtxWithError(ctx, "failed to read presence", err, "user_id", userID)
	}
	return user.IsOnline(now), nil
}

// ============================================
// Admin operations
// ============================================

func (s *userService) Suspend(db *gorm.DB, userID string) error {
	return s.updateUser(db, userID, func(u *models.User) { u.IsSuspended = true })
}

func (s *userService) Unsuspend(db *gorm.DB, userID string) error {
	return s.updateUser(db, userID, func(u *models.User) { u.IsSuspended = false })
}

func (s *userService) Verify(db *gorm.DB, userID string) error {
	return s.updateUser(db, userID, func(u *models.User) { u.IsVerified = true })
}

func (s *userService) Unlock(db *gorm.DB, userID string) error {
	return s.updateUser(db, userID, func(u *models.User) { u.Unlock() })
}

// EnsureAdmin creates the first admin account if the email is not taken.
func (s *userService) EnsureAdmin(db *gorm.DB, email, password string) (*models.User, error) {
	existing, err := s.userRepo.FindByEmail(db, email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repositories.ErrUserNotFound) {
		return nil, apperrors.InternalError(err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	admin := models.NewUser(strings.ToLower(email), hash, models.UserRoleAdmin)
	admin.IsStaff = true
	admin.IsVerified = true
	admin.Username = "admin"

	if err := s.userRepo.Create(db, admin); err != nil {
		return nil, handleUserError(err)
	}
	return admin, nil
}

func (s *userService) updateUser(db *gorm.DB, userID string, mutate func(*models.User)) error {
	tx := db.Begin()
	if tx.Error != nil {
		return apperrors.InternalError(tx.Error)
	}
	defer tx.Rollback()

	user, err := s.userRepo.FindByID(tx, userID)
	if err != nil {
		return handleUserError(err)
	}
	mutate(user)
	if err := s.userRepo.Update(tx, user); err != nil {
		return handleUserError(err)
	}
	return tx.Commit().Error
}

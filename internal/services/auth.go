package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"taskhub/backend/internal/models"

	"github.com/gofrs/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type RegistrationRequest struct {
	Name     string `json:"name" form:"name"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
	Role     string `json:"role" form:"role"`
}

type AuthService interface {
	Register(ctx context.Context, req RegistrationRequest) (*models.User, error)
	Login(ctx context.Context, email, password string) (string, *models.User, error)
	Profile(ctx context.Context, userID uuid.UUID) (*models.User, error)
	ListUsers(ctx context.Context, caller Caller) ([]models.User, error)
}

type AuthServiceImpl struct {
	db              *gorm.DB
	tokens          TokenService
	bcryptCost      int
	allowRoleSignup bool
	log             *slog.Logger
}

type AuthOptions struct {
	BCryptCost      int
	AllowRoleSignup bool
}

func NewAuthService(db *gorm.DB, tokens TokenService, opts AuthOptions, log *slog.Logger) *AuthServiceImpl {
	cost := opts.BCryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &AuthServiceImpl{
		db:              db,
		tokens:          tokens,
		bcryptCost:      cost,
		allowRoleSignup: opts.AllowRoleSignup,
		log:             log,
	}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthServiceImpl) Register(ctx context.Context, req RegistrationRequest) (*models.User, error) {
	name := strings.TrimSpace(req.Name)
	email := NormalizeEmail(req.Email)
	if name == "" {
		return nil, validationError("name is required")
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, validationError("a valid email is required")
	}
	if req.Password == "" {
		return nil, validationError("password is required")
	}

	role := models.RoleUser
	if req.Role != "" {
		if !models.ValidRole(req.Role) {
			return nil, validationError(fmt.Sprintf("unknown role %q", req.Role))
		}
		if req.Role != models.RoleUser && !s.allowRoleSignup {
			return nil, validationError("role cannot be chosen at signup")
		}
		role = req.Role
	}

	db := s.db.WithContext(ctx)

	var existing int64
	if err := db.Model(&models.User{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if existing > 0 {
		return nil, ErrEmailInUse
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Name:     name,
		Email:    email,
		Password: string(hash),
		Role:     role,
	}
	if err := db.Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailInUse
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.log.Info("user registered", "user_id", user.ID, "role", user.Role)
	return user, nil
}

func (s *AuthServiceImpl) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, fmt.Errorf("find user: %w", err)
	}

	if !VerifyPassword(user.Password, password) {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(&user)
	if err != nil {
		return "", nil, err
	}
	return token, &user, nil
}

func (s *AuthServiceImpl) Profile(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Select("id", "name", "email", "role").
		First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

func (s *AuthServiceImpl) ListUsers(ctx context.Context, caller Caller) ([]models.User, error) {
	if !caller.IsAdmin() {
		return nil, ErrAdminRequired
	}

	users := []models.User{}
	if err := s.db.WithContext(ctx).Select("id", "name", "email").Order("name").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func VerifyPassword(hashedPassword, plainPassword string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(plainPassword)) == nil
}

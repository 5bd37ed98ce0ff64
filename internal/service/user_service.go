package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the cost factor for password hashes
const BcryptCost = 10

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token has expired")
	ErrEmailTaken         = errors.New("email is already registered")
)

// TokenConfig controls how access and refresh tokens are minted
type TokenConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Registration is the data a customer supplies when signing up
type Registration struct {
	Email       string
	Password    string
	FirstName   string
	LastName    string
	PhoneNumber string
}

// ProfileUpdate replaces the editable fields of a customer's profile
type ProfileUpdate struct {
	Email       string
	FirstName   string
	LastName    string
	PhoneNumber string
	Address     string
	City        string
	State       string
	PostalCode  string
}

// Session is what a successful login hands back to the client
type Session struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int64        `json:"expires_in"`
	User         *domain.User `json:"user"`
}

// UserService covers account registration and token issuance
type UserService interface {
	Register(ctx context.Context, reg Registration) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*Session, error)
	Logout(ctx context.Context, refreshToken string) error
	Refresh(ctx context.Context, refreshToken string) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
	GetUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, update ProfileUpdate) (*domain.User, error)
}

// Claims are the JWT claims carried by access tokens
type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	Role   string    `json:"role"`
	jwt.RegisteredClaims
}

type userService struct {
	users  repository.UserRepository
	tokens repository.RefreshTokenRepository
	cfg    TokenConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewUserService creates a new instance of UserService
func NewUserService(
	users repository.UserRepository,
	tokens repository.RefreshTokenRepository,
	cfg TokenConfig,
	logger *zap.Logger,
) UserService {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	return &userService{
		users:  users,
		tokens: tokens,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

func (s *userService) Register(ctx context.Context, reg Registration) (*domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(reg.Email))

	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	user := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: string(hash),
		FirstName:    reg.FirstName,
		LastName:     reg.LastName,
		PhoneNumber:  reg.PhoneNumber,
		Role:         domain.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserAlreadyExists) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("User registered", zap.String("user_id", user.ID.String()))
	return user, nil
}

func (s *userService) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	access, err := s.signAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	// Expired tokens are dropped at login so the table does not grow unbounded.
	if _, err := s.tokens.PruneExpired(ctx, user.ID, s.now()); err != nil {
		s.logger.Warn("Failed to prune refresh tokens", zap.String("user_id", user.ID.String()), zap.Error(err))
	}

	refresh, err := s.issueRefreshToken(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return &Session{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.cfg.AccessTTL.Seconds()),
		User:         user,
	}, nil
}

// Logout revokes the refresh token; an unknown token counts as logged out
func (s *userService) Logout(ctx context.Context, refreshToken string) error {
	err := s.tokens.Revoke(ctx, refreshToken)
	if err != nil && !errors.Is(err, repository.ErrRefreshTokenNotFound) {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

func (s *userService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	stored, err := s.tokens.FindByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) || errors.Is(err, repository.ErrRefreshTokenRevoked) {
			return "", ErrInvalidToken
		}
		return "", fmt.Errorf("failed to find refresh token: %w", err)
	}

	if s.now().After(stored.ExpiresAt) {
		return "", ErrTokenExpired
	}

	user, err := s.users.FindByID(ctx, stored.UserID)
	if err != nil {
		return "", fmt.Errorf("failed to find user: %w", err)
	}

	access, err := s.signAccessToken(user)
	if err != nil {
		return "", fmt.Errorf("failed to generate access token: %w", err)
	}
	return access, nil
}

func (s *userService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *userService) GetUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (s *userService) UpdateProfile(ctx context.Context, userID uuid.UUID, update ProfileUpdate) (*domain.User, error) {
	current, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	user := *current
	user.Email = strings.ToLower(strings.TrimSpace(update.Email))
	user.FirstName = strings.TrimSpace(update.FirstName)
	user.LastName = strings.TrimSpace(update.LastName)
	user.PhoneNumber = strings.TrimSpace(update.PhoneNumber)
	user.Address = strings.TrimSpace(update.Address)
	user.City = strings.TrimSpace(update.City)
	user.State = strings.TrimSpace(update.State)
	user.PostalCode = strings.TrimSpace(update.PostalCode)

	if err := s.users.Update(ctx, &user); err != nil {
		switch {
		case errors.Is(err, repository.ErrUserAlreadyExists):
			return nil, ErrEmailTaken
		case errors.Is(err, repository.ErrUserNotFound):
			return nil, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	s.logger.Info("Profile updated", zap.String("user_id", user.ID.String()))
	return &user, nil
}

func (s *userService) signAccessToken(user *domain.User) (string, error) {
	now := s.now()
	claims := &Claims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
}

func (s *userService) issueRefreshToken(ctx context.Context, user *domain.User) (string, error) {
	now := s.now()
	token := &domain.RefreshToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		Token:     uuid.NewString(),
		ExpiresAt: now.Add(s.cfg.RefreshTTL),
		CreatedAt: now,
	}

	if err := s.tokens.Create(ctx, token); err != nil {
		return "", err
	}
	return token.Token, nil
}

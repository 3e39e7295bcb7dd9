package services

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/xiaoshi569/nextchat/internal/server/models"
	"github.com/xiaoshi569/nextchat/internal/server/repos"
	"github.com/xiaoshi569/nextchat/pkg/types"
)

const (
	ConfigAllowRegister = "ALLOW_REGISTER"
	DefaultTokenTTL     = 7 * 24 * time.Hour
)

type AuthConfig struct {
	JWTSecret     string
	TokenTTL      time.Duration
	AllowRegister bool
}

type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

type AuthService struct {
	users  *repos.UserRepo
	config *repos.ConfigRepo
	cfg    AuthConfig
	now    func() time.Time
}

func NewAuthService(db *repos.DB, cfg AuthConfig) *AuthService {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	return &AuthService{
		users:  repos.NewUserRepo(db),
		config: repos.NewConfigRepo(db),
		cfg:    cfg,
		now:    time.Now,
	}
}

// Login checks the password and issues a token. Unknown emails and wrong
// passwords are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	u, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, repos.ErrNotFound) {
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", errors.Wrap(err, "load user")
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, "", ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, "", ErrAccountDisabled
	}
	token, err := s.IssueToken(u)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

func (s *AuthService) Register(ctx context.Context, in types.RegisterRequest) (*models.User, string, error) {
	if !s.registrationOpen(ctx) {
		return nil, "", ErrRegistrationClosed
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	username := strings.TrimSpace(in.Username)
	if n := len([]rune(username)); n < 3 || n > 20 {
		return nil, "", invalid("username must be 3 to 20 characters")
	}
	if len(in.Password) < 6 {
		return nil, "", invalid("password must be at least 6 characters")
	}
	taken, err := s.users.ExistsEmailOrUsername(ctx, email, username)
	if err != nil {
		return nil, "", errors.Wrap(err, "check user")
	}
	if taken {
		return nil, "", invalid("email or username already exists")
	}
	u, err := s.CreateUser(ctx, email, username, in.Password, string(types.RoleMember))
	if err != nil {
		return nil, "", err
	}
	token, err := s.IssueToken(u)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// CreateUser stores a new active account with a bcrypt password hash.
func (s *AuthService) CreateUser(ctx context.Context, email, username, password, role string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}
	now := s.now().UnixMilli()
	u := &models.User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		Username:     strings.TrimSpace(username),
		PasswordHash: string(hash),
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Insert(ctx, u); err != nil {
		return nil, errors.Wrap(err, "insert user")
	}
	return u, nil
}

func (s *AuthService) IssueToken(u *models.User) (string, error) {
	now := s.now()
	claims := Claims{
		Email: u.Email,
		Role:  u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	return token, errors.Wrap(err, "sign token")
}

// Authenticate resolves a bearer token to an active user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return nil, ErrUnauthorized
	}
	u, err := s.users.GetByID(ctx, claims.Subject)
	if errors.Is(err, repos.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, errors.Wrap(err, "load user")
	}
	if !u.IsActive {
		return nil, ErrAccountDisabled
	}
	return u, nil
}

func (s *AuthService) registrationOpen(ctx context.Context) bool {
	v, err := s.config.Get(ctx, ConfigAllowRegister)
	if err != nil {
		return s.cfg.AllowRegister
	}
	return strings.EqualFold(strings.TrimSpace(v), "true")
}

// Seed creates the admin account if its email is unused and records the
// registration switch.
func (s *AuthService) Seed(ctx context.Context, email, username, password string) (*models.User, bool, error) {
	if _, err := s.config.Get(ctx, ConfigAllowRegister); errors.Is(err, repos.ErrNotFound) {
		v := "false"
		if s.cfg.AllowRegister {
			v = "true"
		}
		if err := s.config.Set(ctx, ConfigAllowRegister, v, s.now().UnixMilli()); err != nil {
			return nil, false, errors.Wrap(err, "seed config")
		}
	}
	if u, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email))); err == nil {
		return u, false, nil
	} else if !errors.Is(err, repos.ErrNotFound) {
		return nil, false, errors.Wrap(err, "load admin")
	}
	if len(password) < 6 {
		return nil, false, invalid("admin password must be at least 6 characters")
	}
	u, err := s.CreateUser(ctx, email, username, password, string(types.RoleAdmin))
	return u, err == nil, err
}

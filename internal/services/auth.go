package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"flowtrack/backend/internal/apperrors"
	"flowtrack/backend/internal/config"
	"flowtrack/backend/internal/logging"
	"flowtrack/backend/internal/models"
	"flowtrack/backend/internal/policy"
	"flowtrack/backend/internal/repositories"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

type RegisterRequest struct {
	Name     string `json:"name" binding:"required,min=1,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TokenPair carries both credentials. The refresh token travels in a
// cookie, never in the body.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"`
	RefreshToken     string    `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
}

type AuthResult struct {
	TokenPair
	User *models.User `json:"user"`
}

// Claims is the access token payload. Subject holds the user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type AuthService struct {
	store repositories.Store
	cfg   config.AuthConfig
	now   func() time.Time
}

func NewAuthService(store repositories.Store, cfg config.AuthConfig) *AuthService {
	if cfg.BCryptCost == 0 {
		cfg.BCryptCost = bcrypt.DefaultCost
	}
	if cfg.AccessTokenTTL == 0 {
		cfg.AccessTokenTTL = time.Hour
	}
	if cfg.RefreshTokenTTL == 0 {
		cfg.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	return &AuthService{store: store, cfg: cfg, now: time.Now}
}

func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func VerifyPassword(hashedPassword, plainPassword string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(plainPassword)) == nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a member account and signs it in.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	name := strings.TrimSpace(req.Name)
	email := normalizeEmail(req.Email)
	if name == "" || email == "" {
		return nil, apperrors.Validation("name and email are required")
	}
	if len(req.Password) < minPasswordLength {
		return nil, apperrors.Validationf("password must be at least %d characters", minPasswordLength)
	}

	hash, err := HashPassword(req.Password, s.cfg.BCryptCost)
	if err != nil {
		return nil, apperrors.Internal("failed to hash password", err)
	}
	user := &models.User{
		Name:     name,
		Email:    email,
		Password: hash,
		Role:     models.RoleMember,
		IsActive: true,
	}

	var pair *TokenPair
	err = s.store.Transaction(ctx, func(tx repositories.Store) error {
		if err := tx.Users().Create(ctx, user); err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				return apperrors.Conflict("email already registered")
			}
			return err
		}
		pair, err = s.issue(ctx, tx, user)
		return err
	})
	if err != nil {
		return nil, storeError(err, "user not found")
	}

	logging.Info().Str("user_id", user.ID.String()).Msg("User registered")
	return &AuthResult{TokenPair: *pair, User: user}, nil
}

func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	user, err := s.store.Users().FindByEmail(ctx, normalizeEmail(req.Email))
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apperrors.Authentication("incorrect email or password")
	}
	if err != nil {
		return nil, storeError(err, "user not found")
	}
	if !VerifyPassword(user.Password, req.Password) {
		return nil, apperrors.Authentication("incorrect email or password")
	}
	if !user.IsActive {
		return nil, apperrors.Authentication("account is disabled")
	}

	pair, err := s.issue(ctx, s.store, user)
	if err != nil {
		return nil, storeError(err, "user not found")
	}
	return &AuthResult{TokenPair: *pair, User: user}, nil
}

var errRefreshExpired = errors.New("refresh token expired")

// Refresh rotates the refresh token: the presented one is consumed and a
// new pair is returned.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if refreshToken == "" {
		return nil, apperrors.Authentication("refresh token required")
	}

	var (
		user *models.User
		pair *TokenPair
	)
	err := s.store.Transaction(ctx, func(tx repositories.Store) error {
		token, err := tx.Tokens().FindByRefreshToken(ctx, refreshToken)
		if errors.Is(err, repositories.ErrNotFound) {
			return apperrors.Authentication("invalid refresh token")
		}
		if err != nil {
			return err
		}
		if token.Expired(s.now()) {
			return errRefreshExpired
		}
		if err := tx.Tokens().Delete(ctx, refreshToken); err != nil {
			return err
		}

		user, err = tx.Users().FindByID(ctx, token.UserID)
		if errors.Is(err, repositories.ErrNotFound) {
			return apperrors.Authentication("user no longer exists")
		}
		if err != nil {
			return err
		}
		if !user.IsActive {
			return apperrors.Authentication("account is disabled")
		}
		pair, err = s.issue(ctx, tx, user)
		return err
	})
	if errors.Is(err, errRefreshExpired) {
		// Outside the transaction so the cleanup is not rolled back.
		if err := s.store.Tokens().Delete(ctx, refreshToken); err != nil {
			logging.Warn().Err(err).Msg("Failed to delete expired refresh token")
		}
		return nil, apperrors.Authentication("refresh token expired")
	}
	if err != nil {
		return nil, storeError(err, "user not found")
	}
	return &AuthResult{TokenPair: *pair, User: user}, nil
}

// Logout revokes the refresh token. Unknown tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return storeError(s.store.Tokens().Delete(ctx, refreshToken), "token not found")
}

func (s *AuthService) issue(ctx context.Context, store repositories.Store, user *models.User) (*TokenPair, error) {
	now := s.now()
	access, err := s.signAccessToken(user, now)
	if err != nil {
		return nil, apperrors.Internal("failed to sign access token", err)
	}

	refresh, err := uuid.NewV4()
	if err != nil {
		return nil, apperrors.Internal("failed to generate refresh token", err)
	}
	token := &models.Token{
		UserID:       user.ID,
		RefreshToken: refresh.String(),
		ExpiresAt:    now.Add(s.cfg.RefreshTokenTTL),
	}
	if err := store.Tokens().Create(ctx, token); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      access,
		TokenType:        "bearer",
		ExpiresIn:        int64(s.cfg.AccessTokenTTL.Seconds()),
		RefreshToken:     token.RefreshToken,
		RefreshExpiresAt: token.ExpiresAt,
	}, nil
}

func (s *AuthService) signAccessToken(user *models.User, now time.Time) (string, error) {
	claims := Claims{
		Role: string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
}

// ParseAccessToken validates a bearer token and returns its principal.
func (s *AuthService) ParseAccessToken(tokenString string) (policy.Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWTSecret), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return policy.Principal{}, apperrors.Authentication("token expired")
		}
		return policy.Principal{}, apperrors.Authentication("invalid token")
	}

	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return policy.Principal{}, apperrors.Authentication("invalid token subject")
	}
	role := models.Role(claims.Role)
	if !role.Valid() {
		return policy.Principal{}, apperrors.Authentication(fmt.Sprintf("invalid role %q", claims.Role))
	}
	return policy.Principal{ID: id, Role: role}, nil
}

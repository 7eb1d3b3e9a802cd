// Package account manages document-service users: sign-up, login with JWT
// issuance, token validation and password-reset requests.
package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hyperengineering/smartshop/internal/types"
	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"
)

const (
	// TokenIssuer identifies tokens issued by this service.
	TokenIssuer = "smartshop"

	// MinSecretLength is the minimum acceptable length for the signing key.
	MinSecretLength = 32

	// ResetRequestTTL is how long a password-reset request stays valid.
	ResetRequestTTL = time.Hour
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid token")
)

// Claims are the JWT claims issued at login.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// Service implements account operations over the server database.
type Service struct {
	db         *sql.DB
	secret     []byte
	tokenTTL   time.Duration
	bcryptCost int
	now        func() time.Time
}

// NewService creates an account Service. secret signs HS256 tokens.
func NewService(db *sql.DB, secret string, tokenTTL time.Duration) (*Service, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("token secret must be at least %d characters", MinSecretLength)
	}
	return &Service{
		db:         db,
		secret:     []byte(secret),
		tokenTTL:   tokenTTL,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
	}, nil
}

// SignUp registers a new user.
func (s *Service) SignUp(ctx context.Context, email, password string) (*types.UserResponse, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := types.UserResponse{
		ID:        ulid.Make().String(),
		Email:     normalizeEmail(email),
		CreatedAt: s.now().UTC().Truncate(time.Second),
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, created_at)
		VALUES (?, ?, ?, ?)
	`, user.ID, user.Email, string(hash), user.CreatedAt.Format(time.RFC3339))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return &user, nil
}

// Login verifies credentials and issues a signed token.
func (s *Service) Login(ctx context.Context, email, password string) (*types.TokenResponse, error) {
	var id, storedEmail, hash string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash FROM users WHERE email = ?
	`, normalizeEmail(email)).Scan(&id, &storedEmail, &hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	expiresAt := now.Add(s.tokenTTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuer,
			Subject:   id,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
		Email: storedEmail,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &types.TokenResponse{
		Token:     token,
		ExpiresAt: expiresAt.UTC().Truncate(time.Second),
		UserID:    id,
		Email:     storedEmail,
	}, nil
}

// ValidateToken parses a token and returns its claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(TokenIssuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// RequestPasswordReset records a reset request for email. Unknown emails are
// accepted silently so callers cannot discover which addresses are registered.
// It reports whether a request was recorded.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (bool, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM users WHERE email = ?`, normalizeEmail(email)).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query user: %w", err)
	}

	now := s.now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO password_resets (id, user_id, requested_at, expires_at)
		VALUES (?, ?, ?, ?)
	`, ulid.Make().String(), userID, now.Format(time.RFC3339), now.Add(ResetRequestTTL).Format(time.RFC3339))
	if err != nil {
		return false, fmt.Errorf("insert reset request: %w", err)
	}

	return true, nil
}

// PurgeExpiredResets deletes reset requests that expired before threshold.
func (s *Service) PurgeExpiredResets(ctx context.Context, threshold time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM password_resets WHERE expires_at < ?
	`, threshold.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("purge reset requests: %w", err)
	}
	return result.RowsAffected()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

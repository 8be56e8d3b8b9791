package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/argon2"

	"ttrpg-tracker/internal/platform/validation"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailInUse         = errors.New("email already in use")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrWeakPassword       = errors.New("weak password")
)

const MinPasswordLength = 6

// ErrTooManyAttempts is returned by Login while the server-side limiter holds.
type ErrTooManyAttempts struct {
	RetryAfter time.Duration
}

func (e ErrTooManyAttempts) Error() string {
	return fmt.Sprintf("too many login attempts, retry in %ds", e.Seconds())
}

// Seconds is the wait rounded up, so it is never zero while the limiter holds.
func (e ErrTooManyAttempts) Seconds() int {
	return int(math.Ceil(e.RetryAfter.Seconds()))
}

type Service struct {
	users     Users
	limiter   AttemptLimiter
	jwtSecret []byte
	jwtTTL    time.Duration
	logger    zerolog.Logger
}

type AuthResult struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	Token  string    `json:"token"`
}

type Identity struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
}

// Limiter errors never block a login: the attempt is logged and let through, and
// the password check still applies.
func NewService(users Users, limiter AttemptLimiter, jwtSecret string, jwtTTL time.Duration, logger zerolog.Logger) *Service {
	return &Service{users: users, limiter: limiter, jwtSecret: []byte(jwtSecret), jwtTTL: jwtTTL, logger: logger}
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func (s *Service) Register(ctx context.Context, email, password string) (AuthResult, error) {
	email = normalizeEmail(email)
	if !validation.Email(email) {
		return AuthResult{}, ErrInvalidEmail
	}
	if len(password) < MinPasswordLength {
		return AuthResult{}, ErrWeakPassword
	}
	hash, err := hashPassword(password)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}
	id := uuid.New()
	if err := s.users.Insert(ctx, UserRecord{ID: id, Email: email, PasswordHash: hash}); err != nil {
		return AuthResult{}, err
	}
	token, err := s.issueToken(id, email)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{UserID: id, Email: email, Token: token}, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (AuthResult, error) {
	email = normalizeEmail(email)
	if !validation.Email(email) {
		return AuthResult{}, ErrInvalidEmail
	}
	if s.limiter != nil {
		ok, wait, err := s.limiter.Allow(ctx, email)
		if err != nil {
			s.logger.Warn().Err(err).Msg("login limiter check failed")
		} else if !ok {
			return AuthResult{}, ErrTooManyAttempts{RetryAfter: wait}
		}
	}

	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.recordFailure(ctx, email)
		}
		return AuthResult{}, err
	}
	ok, err := verifyPassword(u.PasswordHash, password)
	if err != nil || !ok {
		s.recordFailure(ctx, email)
		return AuthResult{}, ErrInvalidCredentials
	}
	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, email); err != nil {
			s.logger.Warn().Err(err).Msg("login limiter reset failed")
		}
	}
	token, err := s.issueToken(u.ID, u.Email)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{UserID: u.ID, Email: u.Email, Token: token}, nil
}

// Identify resolves a verified token subject to the stored account.
func (s *Service) Identify(ctx context.Context, userID uuid.UUID) (Identity, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return Identity{}, err
	}
	return Identity{UserID: u.ID, Email: u.Email}, nil
}

func (s *Service) recordFailure(ctx context.Context, email string) {
	if s.limiter != nil {
		if err := s.limiter.Fail(ctx, email); err != nil {
			s.logger.Warn().Err(err).Msg("login limiter failure not recorded")
		}
	}
}

func (s *Service) ParseToken(tokenString string) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, ErrInvalidCredentials
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return uuid.Nil, ErrInvalidCredentials
	}
	uid, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, ErrInvalidCredentials
	}
	return uid, nil
}

func (s *Service) issueToken(userID uuid.UUID, email string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":   userID.String(),
		"email": email,
		"iat":   now.Unix(),
		"exp":   now.Add(s.jwtTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

const (
	argonMemory      = 64 * 1024
	argonIterations  = 3
	argonParallelism = 2
	argonKeyLength   = 32
)

func hashPassword(password string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	hash := argon2.IDKey([]byte(password), salt, argonIterations, argonMemory, argonParallelism, argonKeyLength)
	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)
	return fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s", argonMemory, argonIterations, argonParallelism, b64Salt, b64Hash), nil
}

func verifyPassword(encodedHash, password string) (bool, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false, fmt.Errorf("invalid hash format")
	}
	var memory uint32
	var iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false, fmt.Errorf("parse hash params: %w", err)
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, err
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, err
	}
	computed := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(hash)))
	if len(computed) != len(hash) {
		return false, nil
	}
	var diff byte
	for i := range hash {
		diff |= hash[i] ^ computed[i]
	}
	return diff == 0, nil
}

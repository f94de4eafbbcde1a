package auth

import (
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/ZanzyTHEbar/rx-fraud-scorer/internal/errors"
)

// Service checks the single configured dashboard account and issues
// session tokens for it.
type Service struct {
	email     string
	password  string
	jwtSecret []byte
	ttl       time.Duration
	now       func() time.Time
}

// NewService creates a login service for one stub account
func NewService(email, password, jwtSecret string, ttl time.Duration) *Service {
	return &Service{
		email:     email,
		password:  password,
		jwtSecret: []byte(jwtSecret),
		ttl:       ttl,
		now:       time.Now,
	}
}

// Login returns a signed session token when the credentials match
func (s *Service) Login(email, password string) (string, error) {
	emailOK := subtle.ConstantTimeCompare([]byte(email), []byte(s.email)) == 1
	passwordOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.password)) == 1
	if !emailOK || !passwordOK {
		return "", apperrors.NewAuthenticationError("Invalid credentials")
	}
	return s.GenerateSessionToken(email)
}

// GenerateSessionToken signs a token carrying the account email
func (s *Service) GenerateSessionToken(email string) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"email": email,
		"exp":   now.Add(s.ttl).Unix(),
		"iat":   now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	return tokenString, nil
}

// ValidateSessionToken verifies a token and returns the account email
func (s *Service) ValidateSessionToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", apperrors.NewAuthenticationError("Invalid session token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", apperrors.NewAuthenticationError("Invalid session token")
	}
	email, ok := claims["email"].(string)
	if !ok {
		return "", apperrors.NewAuthenticationError("email not found in token")
	}
	return email, nil
}

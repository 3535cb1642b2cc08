// Package auth gates the site's web surface behind a single admin
// account: a bcrypt password hash checked at login, and a signed JWT
// handed back for subsequent requests. Adapted from the teacher's
// multi-role SSO auth package down to the one admin account the site's
// JSON document names (spec §6's "users: {name: passwordHash}").
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Auth issues and validates admin session tokens.
type Auth struct {
	jwtSecret []byte
	tokenTTL  time.Duration
}

// Claims is the JWT payload carried by an admin session token.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// LoginRequest is the admin login request body.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse is returned on a successful login.
type LoginResponse struct {
	Token     string `json:"token"`
	Username  string `json:"username"`
	ExpiresAt int64  `json:"expiresAt"`
}

// New builds an Auth instance. If secret is empty, a random one is
// generated via crypto/rand (unlike the teacher's config loader, which
// had a non-random fallback; see DESIGN.md).
func New(secret []byte, tokenTTL time.Duration) (*Auth, error) {
	if len(secret) == 0 {
		random := make([]byte, 32)
		if _, err := rand.Read(random); err != nil {
			return nil, fmt.Errorf("auth: generate jwt secret: %w", err)
		}
		secret = []byte(hex.EncodeToString(random))
	}
	if tokenTTL <= 0 {
		tokenTTL = 12 * time.Hour
	}
	return &Auth{jwtSecret: secret, tokenTTL: tokenTTL}, nil
}

// HashPassword hashes a password using bcrypt.
func (a *Auth) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a password with its stored hash.
func (a *Auth) CheckPassword(password, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// GenerateToken issues a signed session token for username.
func (a *Auth) GenerateToken(username string) (string, int64, error) {
	expiresAt := time.Now().Add(a.tokenTTL)
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "watchkeep",
			Subject:   username,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.jwtSecret)
	if err != nil {
		return "", 0, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, expiresAt.Unix(), nil
}

// ValidateToken parses and verifies a session token.
func (a *Auth) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("auth: parse token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("auth: invalid token")
	}
	return claims, nil
}

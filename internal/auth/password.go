package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Credentials is the stored login record of a user.
type Credentials struct {
	UserID       string
	Email        string
	PasswordHash string
	Disabled     bool
}

// CredentialStore finds login records. Missing users return ErrNotFound.
type CredentialStore interface {
	FindCredentials(ctx context.Context, email string) (Credentials, error)
}

// HashPassword hashes plaintext password using bcrypt.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("%w: password is empty", ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword compares plaintext password with stored hash.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("auth: compare password: %w", err)
	}
	return nil
}

// Token is an issued session.
type Token struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login exchanges email and password for a session token. Unknown users,
// disabled users and wrong passwords all return ErrInvalidCredentials.
func Login(ctx context.Context, store CredentialStore, sessions *Sessions, email, password string) (Token, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return Token{}, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	creds, err := store.FindCredentials(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Token{}, ErrInvalidCredentials
		}
		return Token{}, fmt.Errorf("auth: find credentials: %w", err)
	}
	if creds.Disabled {
		return Token{}, ErrInvalidCredentials
	}
	if err := VerifyPassword(creds.PasswordHash, password); err != nil {
		return Token{}, err
	}
	signed, expires, err := sessions.Issue(creds.UserID, creds.Email)
	if err != nil {
		return Token{}, err
	}
	return Token{Token: signed, UserID: creds.UserID, ExpiresAt: expires}, nil
}

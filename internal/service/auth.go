package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/trogers1052/form4-tracker/internal/database"
	"github.com/trogers1052/form4-tracker/internal/models"
)

// APIKeyPrefix marks keys issued by this service
const APIKeyPrefix = "f4_"

// AuthService issues and verifies API keys. Only the SHA-256 of a key is
// stored; the key itself is shown once at creation.
type AuthService struct {
	repo UserRepository
}

// NewAuthService creates a new AuthService
func NewAuthService(repo UserRepository) *AuthService {
	return &AuthService{repo: repo}
}

// Register creates an active user and returns it with its API key
func (s *AuthService) Register(_ context.Context, email string) (*models.User, string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return nil, "", fmt.Errorf("%w: invalid email %q", ErrInvalidInput, email)
	}

	key := GenerateAPIKey()
	user := &models.User{
		Email:      strings.ToLower(addr.Address),
		APIKeyHash: HashAPIKey(key),
		IsActive:   true,
	}
	if err := s.repo.CreateUser(user); err != nil {
		return nil, "", err
	}
	return user, key, nil
}

// Authenticate returns the active user owning key
func (s *AuthService) Authenticate(_ context.Context, key string) (*models.User, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrInvalidAPIKey
	}
	user, err := s.repo.GetUserByAPIKeyHash(HashAPIKey(key))
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrInvalidAPIKey
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// RotateAPIKey replaces a user's API key and returns the new one
func (s *AuthService) RotateAPIKey(_ context.Context, userID string) (string, error) {
	key := GenerateAPIKey()
	if err := s.repo.UpdateUserAPIKeyHash(userID, HashAPIKey(key)); err != nil {
		return "", err
	}
	return key, nil
}

// GenerateAPIKey returns a new random API key
func GenerateAPIKey() string {
	a, b := uuid.New(), uuid.New()
	return APIKeyPrefix + hex.EncodeToString(a[:]) + hex.EncodeToString(b[:])
}

// HashAPIKey returns the hex SHA-256 of key, the form stored in the database
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

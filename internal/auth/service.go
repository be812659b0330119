package auth

import (
	"context"
	"errors"
	"fmt"
	"log"

	"supportdesk/internal/model"
	"supportdesk/internal/store"
)

const (
	BootstrapAccountID       = "admin-001"
	DefaultBootstrapUsername = "admin"
	// DefaultBootstrapPassword must be rotated before production use.
	DefaultBootstrapPassword = "admin123"
)

// Service verifies staff credentials and issues stateless session tokens.
type Service struct {
	accounts store.AccountStore
	tokens   TokenConfig
}

func NewService(accounts store.AccountStore, tokens TokenConfig) *Service {
	return &Service{accounts: accounts, tokens: tokens}
}

func (s *Service) Login(ctx context.Context, username, password string) (model.SessionCredential, error) {
	acct, err := s.accounts.AccountByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			burnComparison(password)
			return model.SessionCredential{}, ErrInvalidCredentials
		}
		return model.SessionCredential{}, fmt.Errorf("lookup account: %w", err)
	}
	if !CheckPassword(acct.PasswordHash, password) {
		return model.SessionCredential{}, ErrInvalidCredentials
	}

	role := acct.Role
	if role == "" {
		role = model.DefaultRole
	}
	identity := model.Identity{AccountID: acct.ID, Username: acct.Username, Role: role}
	token, expiresAt, err := CreateToken(identity, s.tokens)
	if err != nil {
		return model.SessionCredential{}, fmt.Errorf("create token: %w", err)
	}
	return model.SessionCredential{Token: token, Identity: identity, ExpiresAt: expiresAt}, nil
}

// Verify checks signature and expiry only; it never touches the account store.
func (s *Service) Verify(token string) (model.Identity, error) {
	if token == "" {
		return model.Identity{}, ErrUnauthenticated
	}
	claims, err := VerifyToken(token, s.tokens)
	if err != nil {
		return model.Identity{}, ErrInvalidToken
	}
	return claims.Identity(), nil
}

// Bootstrap creates or resets the administrator account.
func Bootstrap(ctx context.Context, accounts store.AccountStore, username, password string) error {
	if username == "" || password == "" {
		return errors.New("bootstrap: username and password are required")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("bootstrap: hash password: %w", err)
	}
	if err := accounts.UpsertAccount(ctx, model.StaffAccount{
		ID:           BootstrapAccountID,
		Username:     username,
		PasswordHash: hash,
		Role:         "admin",
	}); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	if password == DefaultBootstrapPassword {
		log.Printf("auth: bootstrap account %q uses the default password; rotate it before production use", username)
	}
	return nil
}

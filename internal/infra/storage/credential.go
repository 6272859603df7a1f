package storage

import (
	"strings"

	"market_sync/internal/domain"
)

// CredentialKey is the app_configs key holding the bearer token.
const CredentialKey = "auth_token"

// CredentialStore keeps the bearer token in the app_configs table.
type CredentialStore struct {
	s *Storage
}

// NewCredentialStore adapts s to domain.CredentialStore.
func NewCredentialStore(s *Storage) *CredentialStore {
	return &CredentialStore{s: s}
}

func (c *CredentialStore) Get() (string, error) {
	token, ok, err := c.s.GetConfig(CredentialKey)
	if err != nil {
		return "", err
	}
	if !ok || strings.TrimSpace(token) == "" {
		return "", domain.ErrNoCredential
	}
	return token, nil
}

func (c *CredentialStore) Set(token string) error {
	return c.s.SaveConfig(CredentialKey, strings.TrimSpace(token))
}

func (c *CredentialStore) Clear() error {
	return c.s.DeleteConfig(CredentialKey)
}

var _ domain.CredentialStore = (*CredentialStore)(nil)
var _ domain.TradeJournal = (*Storage)(nil)

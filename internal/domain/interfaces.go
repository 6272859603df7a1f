package domain

import "context"

// CredentialStore holds the bearer credential between runs.
// Get returns ErrNoCredential when nothing is stored.
type CredentialStore interface {
	Get() (string, error)
	Set(token string) error
	Clear() error
}

// TradeJournal records resolved trades.
type TradeJournal interface {
	RecordTrade(ctx context.Context, rec *TradeRecord) error
}

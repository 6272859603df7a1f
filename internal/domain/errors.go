package domain

import "errors"

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError represents a network-related error that may be retriable
type NetworkError struct {
	Op        string // Operation that failed (e.g., "dial", "read", "write")
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// NewFatalNetworkError creates a non-retriable network error
func NewFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrAlreadyPending is returned by Submit while another trade is in flight.
	ErrAlreadyPending = errors.New("a trade is already pending")

	// ErrSessionUnavailable is returned by Submit when the session is not connected.
	ErrSessionUnavailable = errors.New("not connected")

	// ErrGameNotRunning is returned by Submit while the game clock is stopped.
	ErrGameNotRunning = errors.New("game is not running")

	// ErrInvalidQuantity is returned for a non-positive trade quantity.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrInvalidIntent is returned for an unknown trade kind.
	ErrInvalidIntent = errors.New("invalid trade intent")

	// ErrUnauthorized is returned when the server refuses the credential. Not retriable.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNoCredential is returned when no credential is stored.
	ErrNoCredential = errors.New("no credential")

	// ErrCredentialExpired is returned when the stored credential is past its expiry.
	ErrCredentialExpired = errors.New("credential expired")

	// ErrConnectionFailed is returned when websocket connection fails. It's usually retriable.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)

// IsAuthError reports whether err means the user must sign in again.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrNoCredential) || errors.Is(err, ErrCredentialExpired)
}

// User-visible messages.
const (
	MsgNotConnected   = "not connected"
	MsgSessionExpired = "session expired, please re-authenticate"
)

// UserMessage maps an error to the text the presentation layer shows.
func UserMessage(err error) string {
	var failure *TradeFailure
	switch {
	case err == nil:
		return ""
	case errors.As(err, &failure):
		return failure.Error()
	case IsAuthError(err):
		return MsgSessionExpired
	case errors.Is(err, ErrSessionUnavailable):
		return MsgNotConnected
	default:
		return err.Error()
	}
}

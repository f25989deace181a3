// Package credentials keeps the relay API token in the OS keychain.
package credentials

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	// DefaultService is the keychain service name
	DefaultService = "celojack"
	// EnvToken overrides the keychain when set
	EnvToken = "CELOJACK_RELAY_TOKEN"
)

// ErrNotFound is returned when no token is stored for an endpoint
var ErrNotFound = errors.New("credentials: no relay token stored")

// Tokens stores relay tokens keyed by relay host
type Tokens struct {
	service string
	getenv  func(string) string
}

// New returns a token store for the given keychain service.
func New(service string) *Tokens {
	if strings.TrimSpace(service) == "" {
		service = DefaultService
	}
	return &Tokens{service: service, getenv: os.Getenv}
}

// account reduces an endpoint URL to the host it authenticates against
func account(endpoint string) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", fmt.Errorf("credentials: relay endpoint is required")
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint, nil
	}
	return u.Host, nil
}

// Set stores token for the relay at endpoint.
func (t *Tokens) Set(endpoint, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("credentials: token is empty")
	}
	acct, err := account(endpoint)
	if err != nil {
		return err
	}
	if err := keyring.Set(t.service, acct, token); err != nil {
		return fmt.Errorf("credentials: keyring set: %w", err)
	}
	return nil
}

// Get returns the token for endpoint. The environment wins over the
// keychain.
func (t *Tokens) Get(endpoint string) (string, error) {
	if tok := strings.TrimSpace(t.getenv(EnvToken)); tok != "" {
		return tok, nil
	}
	acct, err := account(endpoint)
	if err != nil {
		return "", err
	}
	tok, err := keyring.Get(t.service, acct)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("credentials: keyring get: %w", err)
	}
	return tok, nil
}

// Lookup is Get that treats a missing token as empty.
func (t *Tokens) Lookup(endpoint string) (string, error) {
	tok, err := t.Get(endpoint)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return tok, err
}

// Delete removes the stored token for endpoint. Deleting a missing token is
// not an error.
func (t *Tokens) Delete(endpoint string) error {
	acct, err := account(endpoint)
	if err != nil {
		return err
	}
	if err := keyring.Delete(t.service, acct); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("credentials: keyring delete: %w", err)
	}
	return nil
}

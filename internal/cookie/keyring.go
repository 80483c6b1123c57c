package cookie

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zalando/go-keyring"
)

// KeyringService is the OS keychain service entries are stored under
const KeyringService = "pricedash"

// KeyringJar persists values in the OS keychain/credential manager. Paths
// have no meaning there and are ignored; MaxAge is enforced on read.
type KeyringJar struct {
	service string
	now     func() time.Time
}

type keyringEntry struct {
	Value     string     `json:"value"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// NewKeyringJar returns a jar storing entries under service
func NewKeyringJar(service string) *KeyringJar {
	if service == "" {
		service = KeyringService
	}
	return &KeyringJar{service: service, now: time.Now}
}

func (k *KeyringJar) Get(name string) (string, error) {
	raw, err := keyring.Get(k.service, name)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to load %s: %w", name, err)
	}

	var entry keyringEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return "", fmt.Errorf("failed to decode %s: %w", name, err)
	}

	if entry.ExpiresAt != nil && !k.now().Before(*entry.ExpiresAt) {
		_ = keyring.Delete(k.service, name)
		return "", ErrNotFound
	}

	return entry.Value, nil
}

func (k *KeyringJar) Set(name, value string, opts Options) error {
	entry := keyringEntry{Value: value}
	if opts.MaxAge > 0 {
		expires := k.now().Add(opts.MaxAge).UTC()
		entry.ExpiresAt = &expires
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}

	if err := keyring.Set(k.service, name, string(data)); err != nil {
		return fmt.Errorf("failed to save %s: %w", name, err)
	}
	return nil
}

func (k *KeyringJar) Remove(name, _ string) error {
	if err := keyring.Delete(k.service, name); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	return nil
}

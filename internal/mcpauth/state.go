package mcpauth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// StateTTL bounds how long a user may dwell on the upstream consent screen
// before the flow must restart. Expiry is the normal "please retry" case.
const StateTTL = 10 * time.Minute

// ProviderOptions is the configuration snapshot embedded in a StateRecord.
// The callback may arrive on a different process instance than the one that
// issued the redirect, so everything needed to reconstruct an equivalent
// provider travels with the state.
type ProviderOptions struct {
	ServerURL        string `json:"serverUrl"`
	StorageKeyPrefix string `json:"storageKeyPrefix"`
	ClientName       string `json:"clientName"`
	ClientURI        string `json:"clientUri"`
	CallbackURL      string `json:"callbackUrl"`
}

// StateRecord binds an issued authorization redirect to its eventual callback.
type StateRecord struct {
	ServerHash string          `json:"serverUrlHash"`
	Expiry     time.Time       `json:"expiry"`
	Options    ProviderOptions `json:"providerOptions"`
}

// Expired reports whether the record's absolute expiry has passed.
func (r *StateRecord) Expired(now time.Time) bool {
	return now.After(r.Expiry)
}

// StateRegistry issues, validates and expires anti-CSRF state tokens scoped to
// one upstream server identity. Records live in the CookieStore under
// {prefix}_{serverHash}_state_{token}.
type StateRegistry struct {
	store      *CookieStore
	prefix     string
	serverHash string
	logger     *slog.Logger
	now        func() time.Time
}

// NewStateRegistry creates a registry for one (store, server identity) pair.
func NewStateRegistry(store *CookieStore, prefix, serverHash string) *StateRegistry {
	return &StateRegistry{
		store:      store,
		prefix:     prefix,
		serverHash: serverHash,
		logger:     slog.Default(),
		now:        time.Now,
	}
}

func (reg *StateRegistry) key(token string) string {
	return fmt.Sprintf("%s_%s_state_%s", reg.prefix, reg.serverHash, token)
}

// Issue generates a fresh random state token, persists a StateRecord with a
// 10-minute absolute expiry, and returns the token.
func (reg *StateRegistry) Issue(opts ProviderOptions) (string, error) {
	token, err := generateStateToken()
	if err != nil {
		return "", err
	}

	record := StateRecord{
		ServerHash: reg.serverHash,
		Expiry:     reg.now().Add(StateTTL),
		Options:    opts,
	}
	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("failed to encode state record: %w", err)
	}

	if err := reg.store.Set(reg.key(token), data, StateTTL); err != nil {
		return "", fmt.Errorf("failed to persist state record: %w", err)
	}
	return token, nil
}

// Consume looks up the record for a state token. Missing, corrupt and expired
// records all return ErrStateNotFound (corrupt and expired ones are deleted on
// the way out). A valid record is NOT deleted here: a failed exchange may
// retry within the TTL window, so the caller deletes after successful use.
func (reg *StateRegistry) Consume(token string) (*StateRecord, error) {
	key := reg.key(token)

	data, ok := reg.store.Get(key)
	if !ok {
		return nil, ErrStateNotFound
	}

	var record StateRecord
	if err := json.Unmarshal(data, &record); err != nil {
		reg.logger.Warn("discarding unparseable state record", "error", err)
		reg.store.Delete(key)
		return nil, ErrStateNotFound
	}

	if record.Expired(reg.now()) {
		reg.store.Delete(key)
		return nil, ErrStateNotFound
	}
	return &record, nil
}

// Delete removes the record for a state token.
func (reg *StateRegistry) Delete(token string) {
	reg.store.Delete(reg.key(token))
}

// PurgeForServer deletes every stored state record whose embedded server hash
// matches, regardless of the key it was stored under. Returns the count.
func (reg *StateRegistry) PurgeForServer(serverHash string) int {
	count := 0
	for _, key := range reg.store.Keys(reg.prefix + "_") {
		if !strings.Contains(key, "_state_") {
			continue
		}
		data, ok := reg.store.Get(key)
		if !ok {
			continue
		}
		var record StateRecord
		if err := json.Unmarshal(data, &record); err != nil {
			reg.logger.Warn("skipping unparseable state record during purge", "key", key, "error", err)
			continue
		}
		if record.ServerHash == serverHash {
			reg.store.Delete(key)
			count++
		}
	}
	return count
}

// generateStateToken returns 32 random bytes base64url-encoded: 256 bits of
// entropy, well past the point where collision or guessing is a concern.
func generateStateToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate state token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

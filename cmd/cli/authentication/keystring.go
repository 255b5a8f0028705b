package authentication

// keystring.go keeps the CLI's tokens in the OS keyring.
import (
	"encoding/json"
	"errors"
	"time"

	"github.com/zalando/go-keyring"
)

const (
	serviceName = "meetrix-cli"
	tokenKey    = "auth_tokens"

	// refresh a little before the server would reject the token
	expiryLeeway = 30 * time.Second
)

// ErrNotLoggedIn is returned when the keyring holds no credentials
var ErrNotLoggedIn = errors.New("not logged in, run `meetrix auth login`")

type StoredCredentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Username     string `json:"username"`
	UserID       string `json:"user_id"`
	ExpiresAt    int64  `json:"expires_at"`
}

// Expired reports whether the access token is at or near its expiry
func (c *StoredCredentials) Expired(now time.Time) bool {
	return c.ExpiresAt > 0 && now.Add(expiryLeeway).Unix() >= c.ExpiresAt
}

// ExpiresAtFrom converts an expires_in answer into an absolute unix time
func ExpiresAtFrom(now time.Time, expiresIn int64) int64 {
	return now.Add(time.Duration(expiresIn) * time.Second).Unix()
}

func StoreTokens(creds *StoredCredentials) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	return keyring.Set(serviceName, tokenKey, string(data))
}

func GetTokens() (*StoredCredentials, error) {
	value, err := keyring.Get(serviceName, tokenKey)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrNotLoggedIn
	}
	if err != nil {
		return nil, err
	}

	var creds StoredCredentials
	if err := json.Unmarshal([]byte(value), &creds); err != nil {
		return nil, err
	}
	return &creds, nil
}

func DeleteTokens() error {
	err := keyring.Delete(serviceName, tokenKey)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

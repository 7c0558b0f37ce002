package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"smartfarm-go-panel/internal/api"
	"smartfarm-go-panel/internal/storage"
)

// User is the panel's view of the signed-in account.
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	IsActive bool   `json:"is_active"`
}

var (
	// ErrInvalidCredentials maps a 401 from the token endpoint.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrMalformedLogin maps a 422 from the token endpoint.
	ErrMalformedLogin = errors.New("malformed login request")
)

// Manager owns the session: token and user info in the durable store, the
// logged-in flag in the volatile store. Being authenticated requires both
// the durable token and the volatile flag, so a restart always demands a
// fresh login even when a token survives on disk.
type Manager struct {
	client   api.Doer
	durable  storage.Store
	volatile storage.Store
	logger   *slog.Logger
}

// NewManager creates a Manager over the given stores.
func NewManager(client api.Doer, durable, volatile storage.Store, logger *slog.Logger) *Manager {
	return &Manager{
		client:   client,
		durable:  durable,
		volatile: volatile,
		logger:   logger.With("component", "auth"),
	}
}

// Token implements api.TokenSource. Returns "" when no token is stored.
func (m *Manager) Token() string {
	tok, err := m.durable.Get(storage.KeyAccessToken)
	if err != nil {
		return ""
	}
	return tok
}

// Login exchanges credentials for a token at /token. The endpoint takes
// form-encoded fields, not JSON.
func (m *Manager) Login(ctx context.Context, username, password string) (*api.LoginResponse, error) {
	form := url.Values{
		"username": {username},
		"password": {password},
	}
	var resp api.LoginResponse
	err := m.client.PostForm(ctx, "/token", form, &resp)
	if err != nil {
		var he *api.HTTPError
		if errors.As(err, &he) {
			switch he.Status {
			case http.StatusUnauthorized:
				return nil, ErrInvalidCredentials
			case http.StatusUnprocessableEntity:
				return nil, ErrMalformedLogin
			default:
				return nil, fmt.Errorf("login failed with status %d: %w", he.Status, err)
			}
		}
		return nil, fmt.Errorf("login: %w", err)
	}
	return &resp, nil
}

// FetchCurrentUser lists /users/ and scans for the given username.
// Any failure, including the user not appearing in the list, yields nil
// without error; callers fall back to the synthesized stored user.
func (m *Manager) FetchCurrentUser(ctx context.Context, username string) *User {
	var users []api.APIUser
	if err := m.client.Get(ctx, "/users/", &users); err != nil {
		m.logger.Warn("fetch current user", "err", err)
		return nil
	}
	for _, u := range users {
		if u.Username == username {
			return &User{ID: u.UserID, Username: u.Username, IsActive: true}
		}
	}
	return nil
}

// SaveToken persists the token durably and raises the volatile flag.
func (m *Manager) SaveToken(token string) error {
	if err := m.durable.Set(storage.KeyAccessToken, token); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	if err := m.volatile.Set(storage.KeyIsLoggedIn, "true"); err != nil {
		return fmt.Errorf("save login flag: %w", err)
	}
	return nil
}

// StoredToken returns the durable token, or "" when absent.
func (m *Manager) StoredToken() string { return m.Token() }

// SaveUserInfo persists the user record durably.
func (m *Manager) SaveUserInfo(u *User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode user info: %w", err)
	}
	if err := m.durable.Set(storage.KeyUserInfo, string(data)); err != nil {
		return fmt.Errorf("save user info: %w", err)
	}
	return nil
}

// StoredUserInfo returns the persisted user. When a token exists but no
// user record does, a default admin record is synthesized and persisted
// so the session keeps working after a partial login.
func (m *Manager) StoredUserInfo() *User {
	raw, err := m.durable.Get(storage.KeyUserInfo)
	if err == nil {
		var u User
		if err := json.Unmarshal([]byte(raw), &u); err == nil {
			return &u
		}
		m.logger.Warn("stored user info unreadable, discarding")
	}
	if m.Token() == "" {
		return nil
	}
	u := &User{ID: 1, Username: "admin", IsActive: true}
	if err := m.SaveUserInfo(u); err != nil {
		m.logger.Warn("persist synthesized user", "err", err)
	}
	return u
}

// IsAuthenticated reports whether the session is live: a durable token
// AND the volatile flag. Either alone is not enough.
func (m *Manager) IsAuthenticated() bool {
	if m.Token() == "" {
		return false
	}
	flag, err := m.volatile.Get(storage.KeyIsLoggedIn)
	return err == nil && flag == "true"
}

// Logout clears all session persistence unconditionally, then notifies
// the server best-effort. A failed notification is logged, never raised.
func (m *Manager) Logout(ctx context.Context) {
	if err := m.durable.Delete(storage.KeyAccessToken); err != nil {
		m.logger.Warn("clear token", "err", err)
	}
	if err := m.durable.Delete(storage.KeyUserInfo); err != nil {
		m.logger.Warn("clear user info", "err", err)
	}
	if err := m.volatile.Delete(storage.KeyIsLoggedIn); err != nil {
		m.logger.Warn("clear login flag", "err", err)
	}
	m.tryNotifyServerLogout(ctx)
}

func (m *Manager) tryNotifyServerLogout(ctx context.Context) {
	if err := m.client.Post(ctx, "/logout", nil, nil); err != nil {
		m.logger.Debug("server logout notification failed", "err", err)
	}
}

// SignIn composes the full flow: login, persist token, fetch and persist
// the user record. A missing user record is tolerated; StoredUserInfo
// synthesizes one on demand.
func (m *Manager) SignIn(ctx context.Context, username, password string) (*User, error) {
	resp, err := m.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}
	if err := m.SaveToken(resp.AccessToken); err != nil {
		return nil, err
	}
	u := m.FetchCurrentUser(ctx, username)
	if u != nil {
		if err := m.SaveUserInfo(u); err != nil {
			return nil, err
		}
		return u, nil
	}
	return m.StoredUserInfo(), nil
}

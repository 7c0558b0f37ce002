package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"smartfarm-go-panel/internal/api"
	"smartfarm-go-panel/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func newTestManager(t *testing.T, backendURL string) (*Manager, storage.Store, storage.Store) {
	t.Helper()
	durable := storage.NewMemStore()
	volatile := storage.NewMemStore()
	client := api.NewClient(backendURL, testLogger())
	m := NewManager(client, durable, volatile, testLogger())
	return m, durable, volatile
}

func TestIsAuthenticatedTruthTable(t *testing.T) {
	cases := []struct {
		name  string
		token bool
		flag  bool
		want  bool
	}{
		{"token and flag", true, true, true},
		{"token only", true, false, false},
		{"flag only", false, true, false},
		{"neither", false, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, durable, volatile := newTestManager(t, "http://unused.invalid")
			if tc.token {
				if err := durable.Set(storage.KeyAccessToken, "tok"); err != nil {
					t.Fatal(err)
				}
			}
			if tc.flag {
				if err := volatile.Set(storage.KeyIsLoggedIn, "true"); err != nil {
					t.Fatal(err)
				}
			}
			if got := m.IsAuthenticated(); got != tc.want {
				t.Errorf("IsAuthenticated = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestLoginStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrInvalidCredentials},
		{"unprocessable", http.StatusUnprocessableEntity, ErrMalformedLogin},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"detail":"no"}`, tc.status)
			}))
			defer srv.Close()

			m, _, _ := newTestManager(t, srv.URL)
			_, err := m.Login(context.Background(), "admin", "pw")
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestLoginOtherStatusKeepsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	m, _, _ := newTestManager(t, srv.URL)
	_, err := m.Login(context.Background(), "admin", "pw")
	var he *api.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("err = %v, want wrapped *HTTPError", err)
	}
	if he.Status != http.StatusInternalServerError {
		t.Errorf("Status = %d, want 500", he.Status)
	}
}

func TestStoredUserInfoSynthesizesAdmin(t *testing.T) {
	m, durable, _ := newTestManager(t, "http://unused.invalid")
	if err := durable.Set(storage.KeyAccessToken, "tok"); err != nil {
		t.Fatal(err)
	}

	u := m.StoredUserInfo()
	if u == nil {
		t.Fatal("StoredUserInfo = nil, want synthesized user")
	}
	if u.ID != 1 || u.Username != "admin" || !u.IsActive {
		t.Errorf("synthesized user = %+v", u)
	}

	// The synthesized record must be persisted.
	if _, err := durable.Get(storage.KeyUserInfo); err != nil {
		t.Errorf("user info not persisted: %v", err)
	}
}

func TestStoredUserInfoNilWithoutToken(t *testing.T) {
	m, _, _ := newTestManager(t, "http://unused.invalid")
	if u := m.StoredUserInfo(); u != nil {
		t.Errorf("StoredUserInfo = %+v, want nil", u)
	}
}

func TestLogoutClearsEverythingAndSwallowsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	m, durable, volatile := newTestManager(t, srv.URL)
	durable.Set(storage.KeyAccessToken, "tok")
	durable.Set(storage.KeyUserInfo, `{"id":1}`)
	volatile.Set(storage.KeyIsLoggedIn, "true")

	m.Logout(context.Background())

	for _, key := range []string{storage.KeyAccessToken, storage.KeyUserInfo} {
		if _, err := durable.Get(key); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("durable %q not cleared", key)
		}
	}
	if _, err := volatile.Get(storage.KeyIsLoggedIn); !errors.Is(err, storage.ErrNotFound) {
		t.Error("volatile flag not cleared")
	}
	if m.IsAuthenticated() {
		t.Error("still authenticated after logout")
	}
}

func TestSignInEndToEnd(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if r.PostForm.Get("username") != "grower" || r.PostForm.Get("password") != "secret" {
			http.Error(w, "bad credentials", http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"access_token":"tok-xyz","token_type":"bearer"}`))
	})
	mux.HandleFunc("/users/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"user_id":7,"username":"grower"},{"user_id":8,"username":"other"}]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	durable := storage.NewMemStore()
	volatile := storage.NewMemStore()
	var m *Manager
	client := api.NewClient(srv.URL, testLogger(), api.WithTokenSource(tokenFunc(func() string {
		if m == nil {
			return ""
		}
		return m.Token()
	})))
	m = NewManager(client, durable, volatile, testLogger())

	u, err := m.SignIn(context.Background(), "grower", "secret")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if u == nil || u.ID != 7 || u.Username != "grower" {
		t.Fatalf("user = %+v, want grower/7", u)
	}
	if !m.IsAuthenticated() {
		t.Error("not authenticated after sign-in")
	}
	if m.Token() != "tok-xyz" {
		t.Errorf("Token = %q, want tok-xyz", m.Token())
	}
	stored := m.StoredUserInfo()
	if stored == nil || stored.Username != "grower" {
		t.Errorf("stored user = %+v", stored)
	}
}

type tokenFunc func() string

func (f tokenFunc) Token() string { return f() }

func TestSignInUserLookupFailureFallsBack(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"tok","token_type":"bearer"}`))
	})
	mux.HandleFunc("/users/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m, _, _ := newTestManager(t, srv.URL)
	u, err := m.SignIn(context.Background(), "admin", "pw")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if u == nil || u.Username != "admin" || u.ID != 1 {
		t.Fatalf("user = %+v, want synthesized admin", u)
	}
	if !m.IsAuthenticated() {
		t.Error("not authenticated after fallback sign-in")
	}
}

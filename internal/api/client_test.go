package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestClientBearerHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"device_id":1,"device_name":"d","device_type":"farm","device_serial":"s"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testLogger(), WithTokenSource(staticToken("abc")))
	var dev Device
	if err := c.Get(context.Background(), "/devices/1", &dev); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if gotAuth != "Bearer abc" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer abc")
	}
	if dev.DeviceID != 1 {
		t.Errorf("device_id = %d, want 1", dev.DeviceID)
	}
}

func TestClientNoTokenNoHeader(t *testing.T) {
	var sawAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawAuth = r.Header["Authorization"]
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testLogger(), WithTokenSource(staticToken("")))
	var devs []Device
	if err := c.Get(context.Background(), "/devices/", &devs); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sawAuth {
		t.Error("Authorization header sent for anonymous session")
	}
}

func TestClientHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testLogger())
	err := c.Get(context.Background(), "/devices/999", nil)
	var he *HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("err = %v, want *HTTPError", err)
	}
	if he.Status != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", he.Status)
	}
	if he.Body == "" {
		t.Error("error body not captured")
	}
}

func TestClientNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // immediately, so the dial fails

	c := NewClient(srv.URL, testLogger())
	err := c.Get(context.Background(), "/devices/", nil)
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
}

func TestClientDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{broken`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testLogger())
	var dev Device
	err := c.Get(context.Background(), "/devices/1", &dev)
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want *DecodeError", err)
	}
}

func TestClientPostForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		if r.PostForm.Get("username") != "admin" {
			t.Errorf("username = %q", r.PostForm.Get("username"))
		}
		w.Write([]byte(`{"access_token":"tok","token_type":"bearer"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testLogger())
	var lr LoginResponse
	form := url.Values{"username": {"admin"}, "password": {"pw"}}
	if err := c.PostForm(context.Background(), "/token", form, &lr); err != nil {
		t.Fatalf("PostForm: %v", err)
	}
	if lr.AccessToken != "tok" {
		t.Errorf("access_token = %q", lr.AccessToken)
	}
}

func TestClientProxyPrefix(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient("http://unreachable.invalid", testLogger(),
		WithProxyPrefix(srv.URL+"/api/proxy"))
	if err := c.Get(context.Background(), "/devices/", &[]Device{}); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if gotPath != "/api/proxy/devices/" {
		t.Errorf("path = %q, want /api/proxy/devices/", gotPath)
	}
}

func TestClientContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewClient(srv.URL, testLogger())
	err := c.Get(ctx, "/devices/", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

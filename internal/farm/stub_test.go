package farm

import (
	"context"
	"log/slog"
	"net/url"
)

// stubClient records every request and delegates to a handler, so tests
// can assert on traffic (including its absence) without a live server.
type stubClient struct {
	calls   []stubCall
	handler func(method, path string, body, out any) error
}

type stubCall struct {
	method string
	path   string
}

func (s *stubClient) record(method, path string, body, out any) error {
	s.calls = append(s.calls, stubCall{method: method, path: path})
	if s.handler == nil {
		return nil
	}
	return s.handler(method, path, body, out)
}

func (s *stubClient) Get(_ context.Context, path string, out any) error {
	return s.record("GET", path, nil, out)
}

func (s *stubClient) Post(_ context.Context, path string, body, out any) error {
	return s.record("POST", path, body, out)
}

func (s *stubClient) Put(_ context.Context, path string, body, out any) error {
	return s.record("PUT", path, body, out)
}

func (s *stubClient) Delete(_ context.Context, path string) error {
	return s.record("DELETE", path, nil, nil)
}

func (s *stubClient) PostForm(_ context.Context, path string, _ url.Values, out any) error {
	return s.record("POST", path, nil, out)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package interceptor

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/staranto/swproxy/internal/store"
)

const testOrigin = "http://bank.test"

var errNetworkDown = errors.New("dial tcp: connection refused")

type route func(*http.Request) (*http.Response, error)

// fakeNetwork answers every request with 200 "page:<path>" unless a route
// overrides the path or the network is down.
type fakeNetwork struct {
	mu      sync.Mutex
	offline bool
	routes  map[string]route
	calls   []string
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{routes: map[string]route{}}
}

func (n *fakeNetwork) RoundTrip(req *http.Request) (*http.Response, error) {
	n.mu.Lock()
	n.calls = append(n.calls, req.Method+" "+req.URL.String())
	offline := n.offline
	r, ok := n.routes[req.URL.Path]
	n.mu.Unlock()

	if offline {
		return nil, errNetworkDown
	}
	if ok {
		return r(req)
	}
	return respond(req, http.StatusOK, "page:"+req.URL.Path), nil
}

func (n *fakeNetwork) setOffline(offline bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.offline = offline
}

func (n *fakeNetwork) handle(path string, r route) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routes[path] = r
}

func (n *fakeNetwork) callCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func respond(req *http.Request, status int, body string) *http.Response {
	return &http.Response{
		Status:        http.StatusText(status),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": {"text/html; charset=utf-8"}},
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

func testConfig(t *testing.T, paths ...string) Config {
	t.Helper()
	origin, err := ParseOrigin(testOrigin)
	require.NoError(t, err)
	cfg := DefaultConfig(origin)
	cfg.CacheName = "test-cache-v1"
	if len(paths) > 0 {
		cfg.Paths = NewPathSet(paths...)
	}
	return cfg
}

func newTestInterceptor(t *testing.T, cfg Config) (*Interceptor, *fakeNetwork, store.Storage) {
	t.Helper()
	net := newFakeNetwork()
	st := store.NewMemory()
	t.Cleanup(func() { _ = st.Close() })
	ic, err := New(cfg, st, net)
	require.NoError(t, err)
	return ic, net, st
}

func get(t *testing.T, target string, navigate bool) *http.Request {
	t.Helper()
	if strings.HasPrefix(target, "/") {
		target = testOrigin + target
	}
	req, err := http.NewRequest(http.MethodGet, target, nil)
	require.NoError(t, err)
	if navigate {
		req.Header.Set("Sec-Fetch-Mode", "navigate")
	} else {
		req.Header.Set("Sec-Fetch-Mode", "cors")
	}
	return req
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func cached(t *testing.T, st store.Storage, cacheName, path string) (*store.Entry, bool) {
	t.Helper()
	c, err := st.Open(context.Background(), cacheName)
	require.NoError(t, err)
	e, err := c.Match(context.Background(), store.Key(testOrigin+path))
	if errors.Is(err, store.ErrNotFound) {
		return nil, false
	}
	require.NoError(t, err)
	return e, true
}

func seed(t *testing.T, st store.Storage, cacheName, path, body string) {
	t.Helper()
	c, err := st.Open(context.Background(), cacheName)
	require.NoError(t, err)
	key := store.Key(testOrigin + path)
	require.NoError(t, c.Put(context.Background(), key, &store.Entry{
		URL:    string(key),
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": {"text/html"}},
		Body:   []byte(body),
	}))
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("connection reset by peer") }

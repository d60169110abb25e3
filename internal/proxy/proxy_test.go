// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staranto/swproxy/internal/interceptor"
	"github.com/staranto/swproxy/internal/store"
)

type site struct {
	upstream *httptest.Server
	proxy    *httptest.Server
	ic       *interceptor.Interceptor
	st       store.Storage
	network  *http.Transport
}

func newSite(t *testing.T) *site {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "live:"+r.URL.Path)
	})
	mux.HandleFunc("/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "pong")
	})
	upstream := httptest.NewServer(mux)
	t.Cleanup(upstream.Close)

	origin, err := interceptor.ParseOrigin(upstream.URL)
	require.NoError(t, err)
	cfg := interceptor.DefaultConfig(origin)
	cfg.Paths = interceptor.NewPathSet("/", "/offline", "/withdrawals/STN")

	network := &http.Transport{}
	t.Cleanup(network.CloseIdleConnections)

	st := store.NewMemory()
	ic, err := interceptor.New(cfg, st, network)
	require.NoError(t, err)

	p := httptest.NewServer(New(origin, ic))
	t.Cleanup(p.Close)

	return &site{upstream: upstream, proxy: p, ic: ic, st: st, network: network}
}

func (s *site) goOffline() {
	s.upstream.Close()
	s.network.CloseIdleConnections()
}

func (s *site) get(t *testing.T, path string, navigate bool) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, s.proxy.URL+path, nil)
	require.NoError(t, err)
	if navigate {
		req.Header.Set("Sec-Fetch-Mode", "navigate")
	} else {
		req.Header.Set("Sec-Fetch-Mode", "cors")
	}
	resp, err := s.proxy.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestProxy_OnlineThenOffline(t *testing.T) {
	s := newSite(t)

	status, body := s.get(t, "/withdrawals/STN", true)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "live:/withdrawals/STN", body)
	s.ic.Wait()

	s.goOffline()

	status, body = s.get(t, "/withdrawals/STN", true)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "live:/withdrawals/STN", body)

	status, body = s.get(t, "/some/random/api", false)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "Offline and not cached", body)

	status, _ = s.get(t, "/market", true)
	assert.Equal(t, http.StatusBadGateway, status)

	status, _ = s.get(t, "/ping", false)
	assert.Equal(t, http.StatusBadGateway, status)
}

func TestProxy_InstallServesOfflinePage(t *testing.T) {
	s := newSite(t)

	report, err := s.ic.Install(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Stored())

	status, body := s.get(t, "/ping", false)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "pong", body)

	s.goOffline()

	status, body = s.get(t, "/market", true)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "live:/offline", body)
}

func TestProxy_AbsoluteFormKeepsURL(t *testing.T) {
	s := newSite(t)

	// A forward-proxy style request to another origin is not cached.
	u, err := url.Parse(s.upstream.URL)
	require.NoError(t, err)
	other := "http://localhost:" + u.Port() + "/withdrawals/STN"

	proxyURL, err := url.Parse(s.proxy.URL)
	require.NoError(t, err)
	client := &http.Client{Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)}}

	resp, err := client.Get(other)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "live:/withdrawals/STN", string(body))

	s.ic.Wait()
	names, err := s.st.Names(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}

type countingDrainer struct{ n atomic.Int32 }

func (d *countingDrainer) Wait() { d.n.Add(1) }

func TestServer_RunAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	drainer := &countingDrainer{}
	srv := &Server{
		Listener: ln,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "ok")
		}),
		Drainer:         drainer,
		ShutdownTimeout: time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.Equal(t, int32(1), drainer.n.Load())
}

func TestServer_ListenFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := &Server{Addr: ln.Addr().String(), Handler: http.NotFoundHandler()}
	err = srv.Run(context.Background())
	assert.Error(t, err)
}

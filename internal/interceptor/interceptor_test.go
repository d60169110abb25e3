// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package interceptor

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staranto/swproxy/internal/store"
)

func TestRoundTrip_OnlineThenOffline(t *testing.T) {
	ic, net, st := newTestInterceptor(t, testConfig(t))

	resp, err := ic.RoundTrip(get(t, "/withdrawals/STN", true))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "page:/withdrawals/STN", readBody(t, resp))

	ic.Wait()
	entry, ok := cached(t, st, "test-cache-v1", "/withdrawals/STN")
	require.True(t, ok)
	assert.Equal(t, "page:/withdrawals/STN", string(entry.Body))

	net.setOffline(true)
	resp, err = ic.RoundTrip(get(t, "/withdrawals/STN", true))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "page:/withdrawals/STN", readBody(t, resp))
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
}

func TestRoundTrip_NonCacheableSuccessIsNotStored(t *testing.T) {
	ic, _, st := newTestInterceptor(t, testConfig(t))

	resp, err := ic.RoundTrip(get(t, "/market", true))
	require.NoError(t, err)
	assert.Equal(t, "page:/market", readBody(t, resp))

	ic.Wait()
	_, ok := cached(t, st, "test-cache-v1", "/market")
	assert.False(t, ok)
}

func TestRoundTrip_ErrorStatusIsReturnedAndNotStored(t *testing.T) {
	ic, net, st := newTestInterceptor(t, testConfig(t))
	net.handle("/deposits", func(req *http.Request) (*http.Response, error) {
		return respond(req, http.StatusInternalServerError, "boom"), nil
	})

	resp, err := ic.RoundTrip(get(t, "/deposits", true))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "boom", readBody(t, resp))

	ic.Wait()
	_, ok := cached(t, st, "test-cache-v1", "/deposits")
	assert.False(t, ok)
}

func TestRoundTrip_OfflineNavigation(t *testing.T) {
	t.Run("offline page cached", func(t *testing.T) {
		ic, net, st := newTestInterceptor(t, testConfig(t))
		seed(t, st, "test-cache-v1", "/offline", "you are offline")
		net.setOffline(true)

		resp, err := ic.RoundTrip(get(t, "/market", true))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "you are offline", readBody(t, resp))
	})

	t.Run("nothing cached", func(t *testing.T) {
		ic, net, _ := newTestInterceptor(t, testConfig(t))
		net.setOffline(true)

		resp, err := ic.RoundTrip(get(t, "/market", true))
		assert.Nil(t, resp)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrOffline)
		assert.ErrorIs(t, err, errNetworkDown)

		var oe *OfflineError
		require.ErrorAs(t, err, &oe)
		assert.Equal(t, testOrigin+"/market", oe.URL)
	})

	t.Run("specific entry wins over offline page", func(t *testing.T) {
		ic, net, st := newTestInterceptor(t, testConfig(t))
		seed(t, st, "test-cache-v1", "/offline", "you are offline")
		seed(t, st, "test-cache-v1", "/my_account", "account page")
		net.setOffline(true)

		resp, err := ic.RoundTrip(get(t, "/my_account", true))
		require.NoError(t, err)
		assert.Equal(t, "account page", readBody(t, resp))
	})
}

func TestRoundTrip_OfflineSubresourceMiss(t *testing.T) {
	ic, net, _ := newTestInterceptor(t, testConfig(t))
	net.setOffline(true)

	resp, err := ic.RoundTrip(get(t, "/some/random/api", false))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "Service Unavailable", http.StatusText(resp.StatusCode))
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	assert.Equal(t, "Offline and not cached", readBody(t, resp))
}

func TestRoundTrip_Bypass(t *testing.T) {
	// The bypass path wins even when it is also listed as cacheable.
	ic, net, st := newTestInterceptor(t, testConfig(t, "/", "/offline", "/ping"))
	seed(t, st, "test-cache-v1", "/ping", "stale pong")

	resp, err := ic.RoundTrip(get(t, "/ping", false))
	require.NoError(t, err)
	assert.Equal(t, "page:/ping", readBody(t, resp))

	net.setOffline(true)
	resp, err = ic.RoundTrip(get(t, "/ping", false))
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, errNetworkDown)

	ic.Wait()
	entry, ok := cached(t, st, "test-cache-v1", "/ping")
	require.True(t, ok)
	assert.Equal(t, "stale pong", string(entry.Body))
}

func TestRoundTrip_CrossOriginPassesThrough(t *testing.T) {
	ic, net, st := newTestInterceptor(t, testConfig(t))

	resp, err := ic.RoundTrip(get(t, "http://cdn.test/withdrawals", true))
	require.NoError(t, err)
	assert.Equal(t, "page:/withdrawals", readBody(t, resp))

	ic.Wait()
	names, err := st.Names(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)

	net.setOffline(true)
	_, err = ic.RoundTrip(get(t, "https://bank.test/withdrawals", true))
	assert.ErrorIs(t, err, errNetworkDown)
	assert.NotErrorIs(t, err, ErrOffline)
}

func TestRoundTrip_NonGET(t *testing.T) {
	ic, net, st := newTestInterceptor(t, testConfig(t))

	req, err := http.NewRequest(http.MethodPost, testOrigin+"/withdrawals", strings.NewReader("amount=1"))
	require.NoError(t, err)
	resp, err := ic.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ic.Wait()
	_, ok := cached(t, st, "test-cache-v1", "/withdrawals")
	assert.False(t, ok)

	seed(t, st, "test-cache-v1", "/withdrawals", "withdrawals page")
	net.setOffline(true)
	req, err = http.NewRequest(http.MethodPost, testOrigin+"/withdrawals", strings.NewReader("amount=1"))
	require.NoError(t, err)
	resp, err = ic.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRoundTrip_QueryIsPartOfIdentity(t *testing.T) {
	ic, net, st := newTestInterceptor(t, testConfig(t))

	resp, err := ic.RoundTrip(get(t, "/get_account_name?account_id=7", false))
	require.NoError(t, err)
	readBody(t, resp)
	ic.Wait()

	c, err := st.Open(context.Background(), "test-cache-v1")
	require.NoError(t, err)
	keys, err := c.Keys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []store.Key{testOrigin + "/get_account_name?account_id=7"}, keys)

	net.setOffline(true)
	resp, err = ic.RoundTrip(get(t, "/get_account_name?account_id=8", false))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRoundTrip_Timeout(t *testing.T) {
	cfg := testConfig(t)
	cfg.NetworkTimeout = 20 * time.Millisecond
	ic, net, st := newTestInterceptor(t, cfg)
	net.handle("/my_trades", func(req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	})
	seed(t, st, "test-cache-v1", "/my_trades", "trades from cache")

	resp, err := ic.RoundTrip(get(t, "/my_trades", true))
	require.NoError(t, err)
	assert.Equal(t, "trades from cache", readBody(t, resp))
}

func TestRoundTrip_TimeoutDoesNotCutSuccessfulBody(t *testing.T) {
	cfg := testConfig(t)
	cfg.NetworkTimeout = time.Second
	ic, _, _ := newTestInterceptor(t, cfg)

	resp, err := ic.RoundTrip(get(t, "/market", true))
	require.NoError(t, err)
	assert.Equal(t, "page:/market", readBody(t, resp))
}

func TestRoundTrip_TimeoutDoesNotCutSlowBody(t *testing.T) {
	cfg := testConfig(t)
	cfg.NetworkTimeout = 20 * time.Millisecond
	ic, net, st := newTestInterceptor(t, cfg)
	net.handle("/my_account", func(req *http.Request) (*http.Response, error) {
		pr, pw := io.Pipe()
		go func() {
			select {
			case <-time.After(80 * time.Millisecond):
				_, _ = pw.Write([]byte("balance"))
				_ = pw.Close()
			case <-req.Context().Done():
				_ = pw.CloseWithError(req.Context().Err())
			}
		}()
		resp := respond(req, http.StatusOK, "")
		resp.Body = pr
		resp.ContentLength = -1
		return resp, nil
	})

	resp, err := ic.RoundTrip(get(t, "/my_account", true))
	require.NoError(t, err)
	assert.Equal(t, "balance", readBody(t, resp))

	ic.Wait()
	entry, ok := cached(t, st, "test-cache-v1", "/my_account")
	require.True(t, ok)
	assert.Equal(t, "balance", string(entry.Body))
}

func TestRoundTrip_BodyReadErrorIsNotStored(t *testing.T) {
	ic, net, st := newTestInterceptor(t, testConfig(t))
	seed(t, st, "test-cache-v1", "/static/css/main.css", "body{}")
	net.handle("/static/css/main.css", func(req *http.Request) (*http.Response, error) {
		resp := respond(req, http.StatusOK, "")
		resp.Body = io.NopCloser(io.MultiReader(strings.NewReader("body{col"), errReader{}))
		resp.ContentLength = 20
		return resp, nil
	})

	resp, err := ic.RoundTrip(get(t, "/static/css/main.css", false))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	b, err := io.ReadAll(resp.Body)
	assert.Error(t, err, "the caller sees the network error")
	assert.Equal(t, "body{col", string(b))
	require.NoError(t, resp.Body.Close())

	ic.Wait()
	entry, ok := cached(t, st, "test-cache-v1", "/static/css/main.css")
	require.True(t, ok)
	assert.Equal(t, "body{}", string(entry.Body), "a partial body never replaces an entry")
}

func TestRoundTrip_ReturnsBeforeBodyArrives(t *testing.T) {
	ic, net, st := newTestInterceptor(t, testConfig(t))
	pr, pw := io.Pipe()
	net.handle("/deposits", func(req *http.Request) (*http.Response, error) {
		resp := respond(req, http.StatusOK, "")
		resp.Body = pr
		resp.ContentLength = -1
		return resp, nil
	})
	go func() { _, _ = pw.Write([]byte("head")) }()

	req := get(t, "/deposits", true)
	got := make(chan *http.Response, 1)
	go func() {
		resp, err := ic.RoundTrip(req)
		assert.NoError(t, err)
		got <- resp
	}()

	var resp *http.Response
	select {
	case resp = <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("RoundTrip waited for the whole body")
	}

	head := make([]byte, 4)
	_, err := io.ReadFull(resp.Body, head)
	require.NoError(t, err)
	assert.Equal(t, "head", string(head))

	ic.Wait()
	_, ok := cached(t, st, "test-cache-v1", "/deposits")
	assert.False(t, ok, "nothing is stored before the body is complete")

	go func() {
		_, _ = pw.Write([]byte("-tail"))
		_ = pw.Close()
	}()
	assert.Equal(t, "-tail", readBody(t, resp))

	ic.Wait()
	entry, ok := cached(t, st, "test-cache-v1", "/deposits")
	require.True(t, ok)
	assert.Equal(t, "head-tail", string(entry.Body))
}

func TestRoundTrip_EarlyCloseIsNotStored(t *testing.T) {
	ic, _, st := newTestInterceptor(t, testConfig(t))

	resp, err := ic.RoundTrip(get(t, "/admin", true))
	require.NoError(t, err)
	_, err = io.ReadFull(resp.Body, make([]byte, 4))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	ic.Wait()
	_, ok := cached(t, st, "test-cache-v1", "/admin")
	assert.False(t, ok)
}

func TestRoundTrip_EmptyBodyIsStoredUnread(t *testing.T) {
	ic, net, st := newTestInterceptor(t, testConfig(t))
	net.handle("/my_trades", func(req *http.Request) (*http.Response, error) {
		return respond(req, http.StatusOK, ""), nil
	})

	_, err := ic.RoundTrip(get(t, "/my_trades", true))
	require.NoError(t, err)

	ic.Wait()
	entry, ok := cached(t, st, "test-cache-v1", "/my_trades")
	require.True(t, ok)
	assert.Empty(t, entry.Body)
}

func TestRoundTrip_HostSpellingsShareIdentity(t *testing.T) {
	ic, net, _ := newTestInterceptor(t, testConfig(t, "/", "/offline", "/withdrawals/STN"))
	_, err := ic.Install(context.Background())
	require.NoError(t, err)
	net.setOffline(true)

	for _, target := range []string{
		"http://bank.test:80/withdrawals/STN",
		"http://BANK.test/withdrawals/STN",
		"HTTP://Bank.Test:80/withdrawals/STN",
	} {
		resp, err := ic.RoundTrip(get(t, target, false))
		require.NoError(t, err, target)
		assert.Equal(t, http.StatusOK, resp.StatusCode, target)
		assert.Equal(t, "page:/withdrawals/STN", readBody(t, resp), target)
	}
}

func TestRoundTrip_MatchesOtherCaches(t *testing.T) {
	ic, net, st := newTestInterceptor(t, testConfig(t))
	seed(t, st, "flask-pwa-cache-v0", "/how_it_works", "old how it works")
	net.setOffline(true)

	resp, err := ic.RoundTrip(get(t, "/how_it_works", true))
	require.NoError(t, err)
	assert.Equal(t, "old how it works", readBody(t, resp))
}

func TestRoundTrip_CachedResponseIsRepeatable(t *testing.T) {
	ic, net, st := newTestInterceptor(t, testConfig(t))
	seed(t, st, "test-cache-v1", "/", "home")
	net.setOffline(true)

	for range 3 {
		resp, err := ic.RoundTrip(get(t, "/", true))
		require.NoError(t, err)
		assert.Equal(t, "home", readBody(t, resp))
	}
}

type brokenStorage struct {
	store.Storage
}

func (brokenStorage) Open(context.Context, string) (store.Cache, error) {
	return nil, errors.New("disk full")
}

func TestRoundTrip_StoreFailureIsNotPropagated(t *testing.T) {
	net := newFakeNetwork()
	ic, err := New(testConfig(t), brokenStorage{Storage: store.NewMemory()}, net)
	require.NoError(t, err)

	resp, err := ic.RoundTrip(get(t, "/admin", true))
	require.NoError(t, err)
	assert.Equal(t, "page:/admin", readBody(t, resp))
	ic.Wait()
}

func TestRoundTrip_ConcurrentRequests(t *testing.T) {
	ic, _, st := newTestInterceptor(t, testConfig(t))

	done := make(chan struct{})
	for range 16 {
		go func() {
			defer func() { done <- struct{}{} }()
			resp, err := ic.RoundTrip(get(t, "/my_transfers", true))
			if assert.NoError(t, err) {
				_, _ = io.Copy(io.Discard, resp.Body)
				_ = resp.Body.Close()
			}
		}()
	}
	for range 16 {
		<-done
	}
	ic.Wait()

	entry, ok := cached(t, st, "test-cache-v1", "/my_transfers")
	require.True(t, ok)
	assert.Equal(t, "page:/my_transfers", string(entry.Body))
}

func TestNew(t *testing.T) {
	_, err := New(Config{}, store.NewMemory(), nil)
	require.Error(t, err)

	_, err = New(testConfig(t), nil, nil)
	require.Error(t, err)

	ic, err := New(testConfig(t), store.NewMemory(), nil)
	require.NoError(t, err)
	assert.Equal(t, http.DefaultTransport, ic.network)
	assert.Equal(t, "test-cache-v1", ic.Config().CacheName)
}

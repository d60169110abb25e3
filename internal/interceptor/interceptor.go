// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package interceptor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"

	"github.com/staranto/swproxy/internal/store"
)

// UnavailableBody is the body of the synthetic 503 returned for a
// subresource that is neither reachable nor cached.
const UnavailableBody = "Offline and not cached"

// Interceptor is a network-first, cache-fallback http.RoundTripper.
type Interceptor struct {
	cfg     Config
	storage store.Storage
	network http.RoundTripper

	pending sync.WaitGroup
}

var _ http.RoundTripper = (*Interceptor)(nil)

// New validates cfg and returns an Interceptor that reads and writes storage
// and reaches the network through network. A nil network means
// http.DefaultTransport.
func New(cfg Config, storage store.Storage, network http.RoundTripper) (*Interceptor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid interceptor config: %w", err)
	}
	if storage == nil {
		return nil, errors.New("cache storage is required")
	}
	if network == nil {
		network = http.DefaultTransport
	}
	return &Interceptor{cfg: cfg, storage: storage, network: network}, nil
}

// Config returns the configuration the interceptor was built with.
func (i *Interceptor) Config() Config {
	return i.cfg
}

// RoundTrip implements http.RoundTripper.
func (i *Interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	if i.cfg.BypassPath != "" && req.URL.Path == i.cfg.BypassPath {
		return i.network.RoundTrip(req)
	}
	if !i.cfg.sameOrigin(req.URL) {
		return i.network.RoundTrip(req)
	}
	return i.intercept(req)
}

// Wait blocks until every background cache write started so far is done.
func (i *Interceptor) Wait() {
	i.pending.Wait()
}

func (i *Interceptor) intercept(req *http.Request) (*http.Response, error) {
	logger := log.WithFields(log.Fields{"method": req.Method, "url": req.URL.String()})

	resp, err := i.attempt(req)
	if err != nil {
		logger.WithError(err).Debug("network attempt failed")
		return i.fallback(req, err)
	}

	if !successful(resp) || !i.cfg.Paths.Has(req.URL.Path) {
		return resp, nil
	}

	key, ok := store.KeyFor(req)
	if !ok {
		logger.Debug("not storing response for non-GET request")
		return resp, nil
	}

	// The snapshot takes the header now, before the caller can change it.
	entry := store.NewEntry(key, resp, nil)
	save := func(e *store.Entry) { i.storeInBackground(req.Context(), key, e) }
	if resp.ContentLength == 0 {
		save(entry)
		return resp, nil
	}
	resp.Body = newTeeBody(resp, entry, save)
	return resp, nil
}

// attempt is the single network attempt. NetworkTimeout, when set, bounds
// the wait for the response header. A body already on its way to the caller
// is not cut.
func (i *Interceptor) attempt(req *http.Request) (*http.Response, error) {
	if i.cfg.NetworkTimeout <= 0 {
		return i.network.RoundTrip(req)
	}

	ctx, cancel := context.WithCancel(req.Context())
	timer := time.AfterFunc(i.cfg.NetworkTimeout, cancel)
	resp, err := i.network.RoundTrip(req.WithContext(ctx))
	expired := !timer.Stop()
	if err != nil {
		cancel()
		return nil, err
	}
	if expired {
		_ = resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("no response within %s: %w", i.cfg.NetworkTimeout, context.DeadlineExceeded)
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func (i *Interceptor) fallback(req *http.Request, netErr error) (*http.Response, error) {
	ctx := req.Context()

	if key, ok := store.KeyFor(req); ok {
		if entry := i.lookup(ctx, key); entry != nil {
			log.WithField("url", key).Debug("served from cache")
			return entry.Response(req), nil
		}
	}

	if IsNavigation(req) {
		if i.cfg.OfflinePath != "" {
			if entry := i.lookup(ctx, i.cfg.offlineKey()); entry != nil {
				log.WithField("url", req.URL.String()).Debug("served offline page")
				return entry.Response(req), nil
			}
		}
		return nil, &OfflineError{URL: req.URL.String(), Err: netErr}
	}

	return unavailable(req), nil
}

// lookup treats store failures as misses.
func (i *Interceptor) lookup(ctx context.Context, key store.Key) *store.Entry {
	entry, err := store.MatchAll(ctx, i.storage, i.cfg.CacheName, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.WithError(err).WithField("url", key).Warn("cache lookup failed")
		}
		return nil
	}
	return entry
}

func (i *Interceptor) storeInBackground(ctx context.Context, key store.Key, entry *store.Entry) {
	ctx = context.WithoutCancel(ctx)

	i.pending.Add(1)
	go func() {
		defer i.pending.Done()

		cache, err := i.storage.Open(ctx, i.cfg.CacheName)
		if err == nil {
			err = cache.Put(ctx, key, entry)
		}
		if err != nil {
			log.WithError(err).WithFields(log.Fields{
				"cache": i.cfg.CacheName,
				"url":   key,
			}).Error("cache write failed")
			return
		}
		log.WithFields(log.Fields{"cache": i.cfg.CacheName, "url": key}).Debug("cached")
	}()
}

func successful(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func unavailable(req *http.Request) *http.Response {
	return &http.Response{
		Status:        "503 Service Unavailable",
		StatusCode:    http.StatusServiceUnavailable,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": {"text/plain"}},
		Body:          io.NopCloser(strings.NewReader(UnavailableBody)),
		ContentLength: int64(len(UnavailableBody)),
		Request:       req,
	}
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

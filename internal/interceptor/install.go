// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package interceptor

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/apex/log"

	"github.com/staranto/swproxy/internal/store"
)

// InstallResult is the outcome for one cacheable path.
type InstallResult struct {
	Path   string
	URL    string
	Status int
	Size   int
	Err    error
}

func (r InstallResult) OK() bool {
	return r.Err == nil
}

// InstallReport lists every attempted path in install order.
type InstallReport struct {
	CacheName string
	Results   []InstallResult
}

// Stored counts the paths that made it into the cache.
func (r *InstallReport) Stored() int {
	n := 0
	for _, res := range r.Results {
		if res.OK() {
			n++
		}
	}
	return n
}

// Failed returns the results that were skipped.
func (r *InstallReport) Failed() []InstallResult {
	var failed []InstallResult
	for _, res := range r.Results {
		if !res.OK() {
			failed = append(failed, res)
		}
	}
	return failed
}

// Install opens the cache and stores every cacheable path, one at a time, in
// set order. A failing path is logged and skipped. Install fails only when
// the cache cannot be opened or ctx is done; the partial report is returned
// either way.
func (i *Interceptor) Install(ctx context.Context) (*InstallReport, error) {
	cache, err := i.storage.Open(ctx, i.cfg.CacheName)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache %s: %w", i.cfg.CacheName, err)
	}

	report := &InstallReport{CacheName: i.cfg.CacheName}
	for _, path := range i.cfg.Paths.Paths() {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		res := i.add(ctx, cache, path)
		fields := log.Fields{"cache": i.cfg.CacheName, "path": path, "status": res.Status}
		if res.Err != nil {
			log.WithFields(fields).WithError(res.Err).Warn("failed to cache")
		} else {
			log.WithFields(fields).Debug("cached")
		}
		report.Results = append(report.Results, res)
	}

	return report, nil
}

// add fetches path directly over the network and stores the response.
func (i *Interceptor) add(ctx context.Context, cache store.Cache, path string) InstallResult {
	u := i.cfg.URLFor(path)
	res := InstallResult{Path: path, URL: u.String()}

	// Install reads each body itself, so the timeout covers the whole fetch.
	fetchCtx := ctx
	if i.cfg.NetworkTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, i.cfg.NetworkTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		res.Err = err
		return res
	}

	resp, err := i.attempt(req)
	if err != nil {
		res.Err = fmt.Errorf("fetch failed: %w", err)
		return res
	}
	defer resp.Body.Close()

	res.Status = resp.StatusCode
	if !successful(resp) {
		res.Err = fmt.Errorf("%w: %s", ErrBadStatus, resp.Status)
		return res
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		res.Err = fmt.Errorf("failed to read body: %w", err)
		return res
	}

	key := store.KeyForURL(u)
	if err := cache.Put(ctx, key, store.NewEntry(key, resp, body)); err != nil {
		res.Err = fmt.Errorf("failed to store: %w", err)
		return res
	}

	res.Size = len(body)
	return res
}

// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package interceptor

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/staranto/swproxy/internal/store"
)

const (
	DefaultCacheName   = "flask-pwa-cache-v1"
	DefaultBypassPath  = "/ping"
	DefaultOfflinePath = "/offline"
)

// ErrOfflineNotCacheable is returned by Validate when the offline fallback
// path would never be populated.
var ErrOfflineNotCacheable = errors.New("offline path is not in the cacheable path set")

// DefaultPaths is the cacheable path set of the front end: its views, the
// offline page, the account-name endpoint and the static assets.
var DefaultPaths = []string{
	"/",
	"/admin",
	"/admin/accounts",
	"/deposits",
	"/my_account",
	"/my_trades",
	"/my_transfers",
	"/withdrawals",
	"/withdrawals/STN",
	"/how_it_works",
	"/offline",

	"/get_account_name",

	"/static/css/alerts.css",
	"/static/css/balance.css",
	"/static/css/fontawesome-all.min.css",
	"/static/css/main.css",
	"/static/css/noscript.css",

	"/static/images/icon.png",
	"/static/images/icon-192.png",
	"/static/images/icon-512.png",
	"/static/images/Sao_Tome.avif",

	"/static/js/breakpoints.min.js",
	"/static/js/browser.min.js",
	"/static/js/getname.js",
	"/static/js/jquery.min.js",
	"/static/js/jquery.scrollex.min.js",
	"/static/js/jquery.scrolly.min.js",
	"/static/js/main.js",
	"/static/js/util.js",

	"/static/webfonts/fa-brands-400.eot",
	"/static/webfonts/fa-brands-400.svg",
	"/static/webfonts/fa-brands-400.ttf",
	"/static/webfonts/fa-brands-400.woff",
	"/static/webfonts/fa-brands-400.woff2",
	"/static/webfonts/fa-regular-400.eot",
	"/static/webfonts/fa-regular-400.svg",
	"/static/webfonts/fa-regular-400.ttf",
	"/static/webfonts/fa-regular-400.woff",
	"/static/webfonts/fa-regular-400.woff2",
	"/static/webfonts/fa-solid-900.eot",
	"/static/webfonts/fa-solid-900.svg",
	"/static/webfonts/fa-solid-900.ttf",
	"/static/webfonts/fa-solid-900.woff",
	"/static/webfonts/fa-solid-900.woff2",

	"/static/manifest.json",
}

// PathSet is an ordered set of origin-relative paths. The order is the
// install order. The zero value is an empty set.
type PathSet struct {
	order   []string
	members map[string]struct{}
}

// NewPathSet builds a set from paths, dropping empties and duplicates.
func NewPathSet(paths ...string) PathSet {
	ps := PathSet{members: make(map[string]struct{}, len(paths))}
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := ps.members[p]; ok {
			continue
		}
		ps.members[p] = struct{}{}
		ps.order = append(ps.order, p)
	}
	return ps
}

// Has reports whether path is an exact member.
func (ps PathSet) Has(path string) bool {
	_, ok := ps.members[path]
	return ok
}

// Paths returns the members in install order.
func (ps PathSet) Paths() []string {
	return append([]string(nil), ps.order...)
}

func (ps PathSet) Len() int {
	return len(ps.order)
}

// Config is everything the interceptor needs to know about the site it
// fronts. It is fixed for the life of an Interceptor.
type Config struct {
	// CacheName tags the cache that install fills and runtime writes go to.
	CacheName string
	// Origin is the interceptor's own origin; other origins pass through.
	Origin *url.URL
	// Paths is the cacheable path set.
	Paths PathSet
	// BypassPath is never intercepted.
	BypassPath string
	// OfflinePath is served to navigations that fail with no cache entry. It
	// must be a member of Paths.
	OfflinePath string
	// NetworkTimeout bounds the single network attempt. Zero means none.
	NetworkTimeout time.Duration
}

// DefaultConfig returns the stock configuration for origin.
func DefaultConfig(origin *url.URL) Config {
	return Config{
		CacheName:   DefaultCacheName,
		Origin:      origin,
		Paths:       NewPathSet(DefaultPaths...),
		BypassPath:  DefaultBypassPath,
		OfflinePath: DefaultOfflinePath,
	}
}

// ParseOrigin parses raw and reduces it to scheme and host.
func ParseOrigin(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid origin %q: %w", raw, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("invalid origin %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid origin %q: missing host", raw)
	}
	return &url.URL{Scheme: scheme, Host: strings.ToLower(u.Host)}, nil
}

// Validate checks the invariants the interceptor relies on.
func (c Config) Validate() error {
	if c.Origin == nil || c.Origin.Host == "" {
		return errors.New("origin is required")
	}
	if c.CacheName == "" {
		return errors.New("cache name is required")
	}
	for _, p := range c.Paths.order {
		if !strings.HasPrefix(p, "/") || strings.ContainsAny(p, "?#") {
			return fmt.Errorf("cacheable path %q must be origin-relative without query or fragment", p)
		}
	}
	if c.OfflinePath != "" && !c.Paths.Has(c.OfflinePath) {
		return fmt.Errorf("%w: %s", ErrOfflineNotCacheable, c.OfflinePath)
	}
	if c.NetworkTimeout < 0 {
		return errors.New("network timeout must not be negative")
	}
	return nil
}

// URLFor resolves an origin-relative path against the origin.
func (c Config) URLFor(path string) *url.URL {
	return c.Origin.ResolveReference(&url.URL{Path: path})
}

func (c Config) offlineKey() store.Key {
	return store.KeyForURL(c.URLFor(c.OfflinePath))
}

// sameOrigin compares scheme, host and effective port by the rule request
// identities use.
func (c Config) sameOrigin(u *url.URL) bool {
	if !strings.EqualFold(u.Scheme, c.Origin.Scheme) {
		return false
	}
	return store.CanonicalHost(u.Scheme, u.Host) == store.CanonicalHost(c.Origin.Scheme, c.Origin.Host)
}

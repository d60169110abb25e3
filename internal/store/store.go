// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned by Cache.Match when no entry exists for a key.
	ErrNotFound = errors.New("cache entry not found")
	// ErrUnsupportedSpec is returned by Open for an unknown backend spec.
	ErrUnsupportedSpec = errors.New("unsupported store spec")
	// ErrNoCache is returned by Storage.Get for a cache that does not exist.
	ErrNoCache = errors.New("cache does not exist")
)

// Key is the identity of a request within a cache: its URL without fragment,
// with the scheme and host lowercased and a default port dropped.
type Key string

// KeyFor returns the identity of req. Only GET requests have one; other
// methods are never stored or matched.
func KeyFor(req *http.Request) (Key, bool) {
	if req.Method != "" && req.Method != http.MethodGet {
		return "", false
	}
	return KeyForURL(req.URL), true
}

// KeyForURL returns the identity of a GET request for u.
func KeyForURL(u *url.URL) Key {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	c.Scheme = strings.ToLower(c.Scheme)
	c.Host = CanonicalHost(c.Scheme, c.Host)
	return Key(c.String())
}

// CanonicalHost lowercases host and drops the port when it is the default
// for scheme, so http://BANK.test:80 and http://bank.test agree.
func CanonicalHost(scheme, host string) string {
	if host == "" {
		return ""
	}
	h := &url.URL{Host: host}
	name, port := strings.ToLower(h.Hostname()), h.Port()
	if port == defaultPort(scheme) {
		port = ""
	}
	switch {
	case port != "":
		return net.JoinHostPort(name, port)
	case strings.Contains(name, ":"):
		return "[" + name + "]"
	default:
		return name
	}
}

func defaultPort(scheme string) string {
	switch strings.ToLower(scheme) {
	case "http":
		return "80"
	case "https":
		return "443"
	}
	return ""
}

// Entry is a stored response snapshot.
type Entry struct {
	URL      string
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

// NewEntry snapshots the status and header of resp with body. The header is
// cloned, so later changes to resp do not reach the entry.
func NewEntry(key Key, resp *http.Response, body []byte) *Entry {
	return &Entry{
		URL:      string(key),
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: time.Now().UTC(),
	}
}

// Response builds a fresh, unread response from the snapshot. It may be
// called any number of times.
func (e *Entry) Response(req *http.Request) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status)),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

// Size is the number of body bytes held by the entry.
func (e *Entry) Size() int {
	return len(e.Body)
}

func (e *Entry) clone() *Entry {
	c := *e
	c.Header = e.Header.Clone()
	c.Body = bytes.Clone(e.Body)
	return &c
}

// Storage is a set of named caches.
type Storage interface {
	// Open returns the cache with the given name, creating it if absent.
	Open(ctx context.Context, name string) (Cache, error)
	// Get returns an existing cache without creating it, or ErrNoCache.
	Get(ctx context.Context, name string) (Cache, error)
	// Names lists every existing cache, sorted.
	Names(ctx context.Context) ([]string, error)
	// Delete destroys a cache and reports whether it existed.
	Delete(ctx context.Context, name string) (bool, error)
	Close() error
}

// Cache maps request identities to response snapshots. Puts are
// last-write-wins.
type Cache interface {
	Name() string
	Match(ctx context.Context, key Key) (*Entry, error)
	Put(ctx context.Context, key Key, entry *Entry) error
	Delete(ctx context.Context, key Key) (bool, error)
	Keys(ctx context.Context) ([]Key, error)
}

// MatchAll looks key up in the cache named first, then in every other cache
// in name order. It returns ErrNotFound when no cache holds the key.
func MatchAll(ctx context.Context, s Storage, first string, key Key) (*Entry, error) {
	names, err := s.Names(ctx)
	if err != nil {
		return nil, err
	}

	// Caches that do not exist yet are not created by a lookup.
	ordered := make([]string, 0, len(names))
	for _, n := range names {
		if n == first {
			ordered = append([]string{n}, ordered...)
		} else {
			ordered = append(ordered, n)
		}
	}

	for _, name := range ordered {
		cache, err := s.Get(ctx, name)
		if errors.Is(err, ErrNoCache) {
			// Deleted since it was listed.
			continue
		}
		if err != nil {
			return nil, err
		}
		entry, err := cache.Match(ctx, key)
		if err == nil {
			return entry, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	return nil, ErrNotFound
}

// Entries returns every entry of c, keyed in Keys order. Entries that vanish
// between listing and reading are skipped.
func Entries(ctx context.Context, c Cache) ([]*Entry, error) {
	keys, err := c.Keys(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]*Entry, 0, len(keys))
	for _, k := range keys {
		e, err := c.Match(ctx, k)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// encodeKey hashes k with MD5 and returns the hex string.
func encodeKey(k Key) string {
	h := md5.New()
	_, _ = h.Write([]byte(k))
	return hex.EncodeToString(h.Sum(nil))
}

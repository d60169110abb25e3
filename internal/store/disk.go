// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
	"gopkg.in/yaml.v3"
)

const (
	metaSuffix = ".yaml"
	bodySuffix = ".body"
)

// DefaultDir resolves the base cache directory.
// Precedence:
//  1. SWPROXY_CACHE_DIR, if set and non-empty
//  2. os.UserCacheDir()/swproxy
//
// Returns ("", false) if a base cannot be resolved.
func DefaultDir() (string, bool) {
	if c, ok := os.LookupEnv("SWPROXY_CACHE_DIR"); ok && c != "" {
		return c, true
	}
	if dir, err := os.UserCacheDir(); err == nil && dir != "" {
		return filepath.Join(dir, "swproxy"), true
	}
	return "", false
}

// Disk keeps each cache in its own directory beneath a base directory. An
// entry is a pair of files named by the MD5 of its key: a YAML metadata file
// and the raw body.
type Disk struct {
	base string
	mu   sync.RWMutex
}

type diskMeta struct {
	URL      string              `yaml:"url"`
	Status   int                 `yaml:"status"`
	Header   map[string][]string `yaml:"header,omitempty"`
	StoredAt time.Time           `yaml:"stored_at"`
}

// NewDisk returns a Disk rooted at base, creating the directory.
func NewDisk(base string) (*Disk, error) {
	if err := os.MkdirAll(base, 0o755); err != nil { //nolint:mnd
		return nil, fmt.Errorf("failed to create cache base directory: %w", err)
	}
	return &Disk{base: base}, nil
}

func (d *Disk) dir(name string) string {
	return filepath.Join(d.base, url.PathEscape(name))
}

func (d *Disk) Open(_ context.Context, name string) (Cache, error) {
	if name == "" || name == "." || name == ".." {
		return nil, fmt.Errorf("invalid cache name %q", name)
	}
	dir := d.dir(name)
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:mnd
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &diskCache{disk: d, name: name, dir: dir}, nil
}

func (d *Disk) Get(_ context.Context, name string) (Cache, error) {
	if name == "" || name == "." || name == ".." {
		return nil, ErrNoCache
	}
	dir := d.dir(name)
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.IsDir()) {
		return nil, ErrNoCache
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open cache %s: %w", name, err)
	}
	return &diskCache{disk: d, name: name, dir: dir}, nil
}

func (d *Disk) Names(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.base)
	if err != nil {
		return nil, fmt.Errorf("failed to list caches: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name, err := url.PathUnescape(e.Name())
		if err != nil {
			log.WithError(err).Warnf("skipping cache directory %s", e.Name())
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (d *Disk) Delete(_ context.Context, name string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	dir := d.dir(name)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return false, fmt.Errorf("failed to delete cache %s: %w", name, err)
	}
	return true, nil
}

func (d *Disk) Close() error { return nil }

type diskCache struct {
	disk *Disk
	name string
	dir  string
}

func (c *diskCache) Name() string { return c.name }

func (c *diskCache) paths(key Key) (meta, body string) {
	encoded := encodeKey(key)
	return filepath.Join(c.dir, encoded+metaSuffix), filepath.Join(c.dir, encoded+bodySuffix)
}

func (c *diskCache) Match(_ context.Context, key Key) (*Entry, error) {
	c.disk.mu.RLock()
	defer c.disk.mu.RUnlock()

	metaPath, bodyPath := c.paths(key)
	return readDiskEntry(metaPath, bodyPath)
}

func readDiskEntry(metaPath, bodyPath string) (*Entry, error) {
	raw, err := os.ReadFile(metaPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache metadata: %w", err)
	}

	var meta diskMeta
	if err := yaml.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse cache metadata %s: %w", metaPath, err)
	}

	body, err := os.ReadFile(bodyPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache body: %w", err)
	}

	return &Entry{
		URL:      meta.URL,
		Status:   meta.Status,
		Header:   http.Header(meta.Header),
		Body:     body,
		StoredAt: meta.StoredAt,
	}, nil
}

func (c *diskCache) Put(_ context.Context, key Key, entry *Entry) error {
	c.disk.mu.Lock()
	defer c.disk.mu.Unlock()

	// The cache may have been deleted since it was opened.
	if err := os.MkdirAll(c.dir, 0o755); err != nil { //nolint:mnd
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	meta, err := yaml.Marshal(diskMeta{
		URL:      string(key),
		Status:   entry.Status,
		Header:   entry.Header,
		StoredAt: entry.StoredAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode cache metadata: %w", err)
	}

	metaPath, bodyPath := c.paths(key)
	if err := writeFileAtomic(bodyPath, entry.Body); err != nil {
		return err
	}
	return writeFileAtomic(metaPath, meta)
}

func (c *diskCache) Delete(_ context.Context, key Key) (bool, error) {
	c.disk.mu.Lock()
	defer c.disk.mu.Unlock()

	metaPath, bodyPath := c.paths(key)
	err := os.Remove(metaPath)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete cache entry: %w", err)
	}
	if err := os.Remove(bodyPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return true, fmt.Errorf("failed to delete cache body: %w", err)
	}
	return true, nil
}

func (c *diskCache) Keys(_ context.Context) ([]Key, error) {
	c.disk.mu.RLock()
	defer c.disk.mu.RUnlock()

	files, err := os.ReadDir(c.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list cache %s: %w", c.name, err)
	}

	var keys []Key
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), metaSuffix) {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(c.dir, f.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read cache metadata: %w", err)
		}
		var meta diskMeta
		if err := yaml.Unmarshal(raw, &meta); err != nil {
			log.WithError(err).Warnf("skipping unreadable cache metadata %s", f.Name())
			continue
		}
		keys = append(keys, Key(meta.URL))
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys, nil
}

// writeFileAtomic writes data next to path and renames it into place so that
// readers never observe a partial file.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to write to cache: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write to cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write to cache: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil { //nolint:mnd
		return fmt.Errorf("failed to write to cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write to cache: %w", err)
	}
	return nil
}

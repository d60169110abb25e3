// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Storage. Nothing survives the process.
type Memory struct {
	mu     sync.RWMutex
	caches map[string]*memoryCache
}

// NewMemory returns an empty in-memory Storage.
func NewMemory() *Memory {
	return &Memory{caches: make(map[string]*memoryCache)}
}

func (m *Memory) Open(_ context.Context, name string) (Cache, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.caches[name]
	if !ok {
		c = &memoryCache{parent: m, name: name, entries: make(map[Key]*Entry)}
		m.caches[name] = c
	}
	return c, nil
}

func (m *Memory) Get(_ context.Context, name string) (Cache, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.caches[name]
	if !ok {
		return nil, ErrNoCache
	}
	return c, nil
}

// attach returns the registered cache named like c. A handle whose cache was
// deleted after it was opened registers itself again. m.mu must be held.
func (m *Memory) attach(c *memoryCache) *memoryCache {
	if cur, ok := m.caches[c.name]; ok {
		return cur
	}
	m.caches[c.name] = c
	return c
}

func (m *Memory) Names(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.caches))
	for n := range m.caches {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (m *Memory) Delete(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.caches[name]
	if !ok {
		return false, nil
	}
	delete(m.caches, name)

	// Handles still held by writers start over empty if they put again.
	c.mu.Lock()
	c.entries = make(map[Key]*Entry)
	c.mu.Unlock()
	return true, nil
}

func (m *Memory) Close() error { return nil }

type memoryCache struct {
	parent  *Memory
	name    string
	mu      sync.RWMutex
	entries map[Key]*Entry
}

func (c *memoryCache) Name() string { return c.name }

func (c *memoryCache) Match(_ context.Context, key Key) (*Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return e.clone(), nil
}

func (c *memoryCache) Put(_ context.Context, key Key, entry *Entry) error {
	c.parent.mu.Lock()
	defer c.parent.mu.Unlock()
	target := c.parent.attach(c)

	target.mu.Lock()
	defer target.mu.Unlock()

	target.entries[key] = entry.clone()
	return nil
}

func (c *memoryCache) Delete(_ context.Context, key Key) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok, nil
}

func (c *memoryCache) Keys(_ context.Context) ([]Key, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]Key, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys, nil
}

// Copyright © 2025 Steve Taranto staranto@gmail.com
// SPDX-License-Identifier: Apache-2.0

// Package interceptor implements an offline cache interceptor for a web front
// end. At install time it fills a named cache with a fixed set of same-origin
// paths. At runtime it is an http.RoundTripper that goes to the network first,
// stores successful responses for cacheable paths in the background, and
// falls back to the cache, an offline page or a 503 when the network fails.
package interceptor

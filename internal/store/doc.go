// Copyright © 2025 Steve Taranto staranto@gmail.com
// SPDX-License-Identifier: Apache-2.0

// Package store provides named caches of request/response snapshots. A
// Storage holds any number of caches identified by a string tag; each Cache
// maps a request identity to the last response stored for it. Backends live
// in memory, on disk, in SQLite or in S3.
package store

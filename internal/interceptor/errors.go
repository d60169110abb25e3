// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package interceptor

import (
	"errors"
	"fmt"
)

var (
	// ErrOffline is matched by every OfflineError.
	ErrOffline = errors.New("offline and not cached")
	// ErrBadStatus marks an install fetch that returned a non-2xx status.
	ErrBadStatus = errors.New("response status is not ok")
)

// OfflineError is returned by RoundTrip for a navigation that failed on the
// network with neither a cache entry nor a cached offline page.
type OfflineError struct {
	URL string
	Err error
}

func (e *OfflineError) Error() string {
	return fmt.Sprintf("%s: offline and no fallback page cached: %v", e.URL, e.Err)
}

func (e *OfflineError) Unwrap() []error {
	return []error{ErrOffline, e.Err}
}

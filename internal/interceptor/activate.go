// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package interceptor

import (
	"context"
	"fmt"

	"github.com/apex/log"
)

// Activate deletes every cache whose name differs from the configured one
// and returns the names it deleted.
func (i *Interceptor) Activate(ctx context.Context) ([]string, error) {
	names, err := i.storage.Names(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list caches: %w", err)
	}

	var deleted []string
	for _, name := range names {
		if name == i.cfg.CacheName {
			continue
		}
		ok, err := i.storage.Delete(ctx, name)
		if err != nil {
			return deleted, fmt.Errorf("failed to delete cache %s: %w", name, err)
		}
		if ok {
			log.WithField("cache", name).Info("deleted stale cache")
			deleted = append(deleted, name)
		}
	}

	return deleted, nil
}

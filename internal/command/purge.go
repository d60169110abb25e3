// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"

	"github.com/apex/log"
	"github.com/urfave/cli/v3"

	"github.com/staranto/swproxy/internal/interceptor"
	"github.com/staranto/swproxy/internal/meta"
	"github.com/staranto/swproxy/internal/store"
)

// purgeAll deletes every cache in st.
func purgeAll(ctx context.Context, st store.Storage) ([]string, error) {
	names, err := st.Names(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list caches: %w", err)
	}
	var deleted []string
	for _, name := range names {
		ok, err := st.Delete(ctx, name)
		if err != nil {
			return deleted, fmt.Errorf("failed to delete cache %s: %w", name, err)
		}
		if ok {
			log.WithField("cache", name).Info("deleted cache")
			deleted = append(deleted, name)
		}
	}
	return deleted, nil
}

// PurgeCommandAction deletes every cache but the configured one, or every
// cache with --all, and prints the deleted names.
func PurgeCommandAction(ctx context.Context, cmd *cli.Command) error {
	st, err := store.Open(ctx, cmd.String("store"))
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	var deleted []string
	if cmd.Bool("all") {
		deleted, err = purgeAll(ctx, st)
	} else {
		// Only the cache name matters for activation, so any valid origin
		// will do when --upstream is absent.
		sc := interceptor.DefaultConfig(nil)
		sc.CacheName = cmd.String("cache-name")
		if sc.Origin, err = interceptor.ParseOrigin(cmd.String("upstream")); err != nil {
			sc.Origin, _ = interceptor.ParseOrigin("http://localhost")
		}
		var ic *interceptor.Interceptor
		if ic, err = interceptor.New(sc, st, nil); err != nil {
			return err
		}
		deleted, err = ic.Activate(ctx)
	}

	w := writer(cmd)
	for _, name := range deleted {
		fmt.Fprintln(w, name)
	}
	return err
}

// PurgeCommandBuilder constructs the cli.Command for "purge".
func PurgeCommandBuilder(meta meta.Meta) *cli.Command {
	return (&CommandBuilder{
		Name:      "purge",
		Usage:     "delete stale caches",
		UsageText: `swproxy purge [--all] [options]`,
		Meta:      meta,
		Site:      true,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "all",
				Usage: "delete every cache, including the current one",
			},
		},
		Action: PurgeCommandAction,
	}).Build()
}

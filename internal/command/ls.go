// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/apex/log"
	"github.com/urfave/cli/v3"

	"github.com/staranto/swproxy/internal/meta"
	"github.com/staranto/swproxy/internal/store"
)

// entryDoc is the listing document of one cache entry.
type entryDoc struct {
	Cache       string      `json:"cache"`
	URL         string      `json:"url"`
	Path        string      `json:"path"`
	Query       string      `json:"query,omitempty"`
	Status      int         `json:"status"`
	ContentType string      `json:"content_type"`
	Size        int         `json:"size"`
	StoredAt    time.Time   `json:"stored_at"`
	Header      http.Header `json:"header"`
}

func newEntryDoc(cache string, e *store.Entry) entryDoc {
	d := entryDoc{
		Cache:       cache,
		URL:         e.URL,
		Status:      e.Status,
		ContentType: e.Header.Get("Content-Type"),
		Size:        e.Size(),
		StoredAt:    e.StoredAt,
		Header:      e.Header,
	}
	if u, err := url.Parse(e.URL); err == nil {
		d.Path = u.Path
		d.Query = u.RawQuery
	}
	return d
}

// listEntries returns the documents of every entry of the named caches.
// Caches that do not exist are skipped, never created.
func listEntries(ctx context.Context, st store.Storage, names []string) ([]entryDoc, error) {
	docs := make([]entryDoc, 0)
	for _, name := range names {
		c, err := st.Get(ctx, name)
		if errors.Is(err, store.ErrNoCache) {
			log.WithField("cache", name).Debug("cache does not exist")
			continue
		}
		if err != nil {
			return nil, err
		}
		entries, err := store.Entries(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("failed to read cache %s: %w", name, err)
		}
		for _, e := range entries {
			docs = append(docs, newEntryDoc(name, e))
		}
	}
	return docs, nil
}

// LsCommandAction lists the entries of the configured cache, or of every
// cache with --all.
func LsCommandAction(ctx context.Context, cmd *cli.Command) error {
	defaults := []string{"path", "status", "content_type:type", "size::h", "stored_at:stored:h"}
	if cmd.Bool("all") {
		defaults = append([]string{"cache"}, defaults...)
	}
	al, err := BuildAttrs(cmd, defaults...)
	if err != nil {
		return err
	}
	log.Debugf("attrs: %v", al)

	st, err := store.Open(ctx, cmd.String("store"))
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	names := []string{cmd.String("cache-name")}
	if cmd.Bool("all") {
		if names, err = st.Names(ctx); err != nil {
			return err
		}
	}

	docs, err := listEntries(ctx, st, names)
	if err != nil {
		return err
	}
	return EmitSlice(cmd, docs, al)
}

// LsCommandBuilder constructs the cli.Command for "ls". It needs only the
// store, so the upstream is not required.
func LsCommandBuilder(meta meta.Meta) *cli.Command {
	return (&CommandBuilder{
		Name:      "ls",
		Usage:     "list cached entries",
		UsageText: `swproxy ls [options]`,
		Meta:      meta,
		Site:      true,
		Output:    true,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "all",
				Usage: "list entries of every cache",
			},
		},
		Action: LsCommandAction,
	}).Build()
}

// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/staranto/swproxy/internal/interceptor"
	"github.com/staranto/swproxy/internal/meta"
)

// FetchCommandAction runs a single GET through the interceptor and prints
// the response body.
func FetchCommandAction(ctx context.Context, cmd *cli.Command) error {
	target := cmd.Args().First()
	if target == "" {
		return errors.New("a path to fetch is required")
	}

	site, err := OpenSite(ctx, cmd)
	if err != nil {
		return err
	}
	defer site.Close() //nolint:errcheck

	ref, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("invalid path %q: %w", target, err)
	}
	u := site.Config.Origin.ResolveReference(ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	if cmd.Bool("navigate") {
		req.Header.Set("Sec-Fetch-Mode", interceptor.ModeNavigate)
		req.Header.Set("Accept", "text/html")
	} else {
		req.Header.Set("Sec-Fetch-Mode", "no-cors")
	}

	resp, err := site.Interceptor.RoundTrip(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	w := writer(cmd)
	if cmd.Bool("include") {
		fmt.Fprintf(w, "%s %s\n", resp.Proto, resp.Status)
		keys := make([]string, 0, len(resp.Header))
		for k := range resp.Header {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "%s: %s\n", k, strings.Join(resp.Header[k], ", "))
		}
		fmt.Fprintln(w)
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 && cmd.Bool("fail") {
		return fmt.Errorf("%s: %s", u, resp.Status)
	}
	return nil
}

// FetchCommandBuilder constructs the cli.Command for "fetch".
func FetchCommandBuilder(meta meta.Meta) *cli.Command {
	return (&CommandBuilder{
		Name:      "fetch",
		Usage:     "fetch one path through the interceptor",
		UsageText: `swproxy fetch PATH --upstream URL [options]`,
		Meta:      meta,
		Site:      true,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "navigate",
				Usage: "send the request as a document navigation",
			},
			&cli.BoolFlag{
				Name:    "include",
				Aliases: []string{"i"},
				Usage:   "print the status line and headers",
			},
			&cli.BoolFlag{
				Name:  "fail",
				Usage: "exit non-zero on a 4xx or 5xx status",
			},
		},
		Action: FetchCommandAction,
	}).Build()
}

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
)

type installDoc struct {
	Path   string `json:"path"`
	URL    string `json:"url"`
	Status int    `json:"status,omitempty"`
	Size   int    `json:"size"`
	Error  string `json:"error,omitempty"`
}

func installDocs(report *interceptor.InstallReport) []installDoc {
	docs := make([]installDoc, 0, len(report.Results))
	for _, r := range report.Results {
		d := installDoc{Path: r.Path, URL: r.URL, Status: r.Status, Size: r.Size}
		if r.Err != nil {
			d.Error = r.Err.Error()
		}
		docs = append(docs, d)
	}
	return docs
}

// InstallCommandAction fills the cache and reports every path.
func InstallCommandAction(ctx context.Context, cmd *cli.Command) error {
	al, err := BuildAttrs(cmd, "path", "status", "size::h", "error")
	if err != nil {
		return err
	}
	log.Debugf("attrs: %v", al)

	site, err := OpenSite(ctx, cmd)
	if err != nil {
		return err
	}
	defer site.Close() //nolint:errcheck

	report, err := site.Interceptor.Install(ctx)
	if err != nil {
		return err
	}

	if err := EmitSlice(cmd, installDocs(report), al); err != nil {
		return err
	}

	if failed := len(report.Failed()); failed > 0 && cmd.Bool("strict") {
		return fmt.Errorf("%d of %d paths failed to cache", failed, len(report.Results))
	}
	return nil
}

// InstallCommandBuilder constructs the cli.Command for "install".
func InstallCommandBuilder(meta meta.Meta) *cli.Command {
	return (&CommandBuilder{
		Name:      "install",
		Usage:     "fill the cache with every cacheable path",
		UsageText: `swproxy install --upstream URL [options]`,
		Meta:      meta,
		Site:      true,
		Output:    true,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "strict",
				Usage: "exit non-zero when any path fails to cache",
			},
		},
		Action: InstallCommandAction,
	}).Build()
}

// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/apex/log"
	altsrc "github.com/urfave/cli-altsrc/v3"
	yaml "github.com/urfave/cli-altsrc/v3/yaml"
	"github.com/urfave/cli/v3"

	"github.com/staranto/swproxy/internal/meta"
	"github.com/staranto/swproxy/internal/proxy"
)

// ServeCommandAction runs the caching reverse proxy until interrupted.
func ServeCommandAction(ctx context.Context, cmd *cli.Command) error {
	site, err := OpenSite(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() {
		if err := site.Close(); err != nil {
			log.WithError(err).Error("failed to close store")
		}
	}()

	if cmd.Bool("install") {
		report, err := site.Interceptor.Install(ctx)
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{
			"cache":  report.CacheName,
			"stored": report.Stored(),
			"failed": len(report.Failed()),
		}).Info("install complete")
	}

	if cmd.Bool("purge-stale") {
		if _, err := site.Interceptor.Activate(ctx); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &proxy.Server{
		Addr:    cmd.String("listen"),
		Handler: proxy.New(site.Config.Origin, site.Interceptor),
		Drainer: site.Interceptor,
	}
	return srv.Run(ctx)
}

// ServeCommandBuilder constructs the cli.Command for "serve".
func ServeCommandBuilder(meta meta.Meta) *cli.Command {
	return (&CommandBuilder{
		Name:      "serve",
		Usage:     "run the caching reverse proxy",
		UsageText: `swproxy serve --upstream URL [options]`,
		Meta:      meta,
		Site:      true,
		Flags: []cli.Flag{
			NameSpacedValueChainFlagFromConfigFile("serve", meta.Config.Source, &cli.StringFlag{
				Name:    "listen",
				Aliases: []string{"l"},
				Usage:   "address to listen on",
				Sources: cli.NewValueSourceChain(cli.EnvVar("SWPROXY_LISTEN")),
				Value:   ":8080",
			}),
			&cli.BoolFlag{
				Name:  "install",
				Usage: "fill the cache before serving",
				Sources: cli.NewValueSourceChain(
					yaml.YAML("serve.install", altsrc.StringSourcer(meta.Config.Source)),
				),
			},
			&cli.BoolFlag{
				Name:  "purge-stale",
				Usage: "delete every other cache before serving",
				Sources: cli.NewValueSourceChain(
					yaml.YAML("serve.purge-stale", altsrc.StringSourcer(meta.Config.Source)),
				),
			},
		},
		Action: ServeCommandAction,
	}).Build()
}

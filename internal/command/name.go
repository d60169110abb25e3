// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/staranto/swproxy/internal/accountname"
	"github.com/staranto/swproxy/internal/meta"
)

// NameCommandAction looks up an account name through the interceptor, so a
// previously seen id resolves offline.
func NameCommandAction(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return errors.New("an account id is required")
	}

	site, err := OpenSite(ctx, cmd)
	if err != nil {
		return err
	}
	defer site.Close() //nolint:errcheck

	name, err := accountname.New(site.Config.Origin, site.Interceptor).Lookup(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintln(writer(cmd), name)
	return nil
}

// NameCommandBuilder constructs the cli.Command for "name".
func NameCommandBuilder(meta meta.Meta) *cli.Command {
	return (&CommandBuilder{
		Name:      "name",
		Usage:     "look up an account name",
		UsageText: `swproxy name ACCOUNT_ID --upstream URL [options]`,
		Meta:      meta,
		Site:      true,
		Action:    NameCommandAction,
	}).Build()
}

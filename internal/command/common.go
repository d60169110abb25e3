// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/apex/log"
	"github.com/urfave/cli/v3"

	"github.com/staranto/swproxy/internal/attrs"
	"github.com/staranto/swproxy/internal/config"
	"github.com/staranto/swproxy/internal/interceptor"
	"github.com/staranto/swproxy/internal/meta"
	"github.com/staranto/swproxy/internal/output"
	"github.com/staranto/swproxy/internal/store"
)

// ShortCircuitTLDR checks the --tldr flag and, if present and available,
// runs `tldr swproxy-<subcmd>` and returns true so the caller can exit early.
func ShortCircuitTLDR(ctx context.Context, cmd *cli.Command, subcmd string) bool {
	if cmd.Bool("tldr") {
		if _, err := exec.LookPath("tldr"); err == nil {
			c := exec.CommandContext(ctx, "tldr", "swproxy-"+subcmd)
			c.Stdout = os.Stdout
			c.Stderr = os.Stderr
			_ = c.Run()
		}
		return true
	}
	return false
}

// BuildAttrs constructs an AttrList with defaults and optional extras from
// --attrs, then applies the global transform spec.
func BuildAttrs(cmd *cli.Command, defaults ...string) (al attrs.AttrList, err error) {
	for _, d := range defaults {
		if err = al.Set(d); err != nil {
			return nil, err
		}
	}
	if extras := cmd.String("attrs"); extras != "" {
		if err = al.Set(extras); err != nil {
			return nil, fmt.Errorf("invalid --attrs: %w", err)
		}
	}
	al.SetGlobalTransformSpec()
	return al, nil
}

// OutputOptions collects the presentation flags of cmd.
func OutputOptions(cmd *cli.Command) output.Options {
	return output.Options{
		Format: cmd.String("output"),
		Filter: cmd.String("filter"),
		Sort:   cmd.String("sort"),
		Titles: cmd.Bool("titles"),
		Color:  cmd.Bool("color"),
	}
}

// EmitSlice marshals docs as JSON and passes it to the common output
// routine.
func EmitSlice(cmd *cli.Command, docs any, al attrs.AttrList) error {
	raw, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	return output.SliceDiceSpit(raw, al, OutputOptions(cmd), writer(cmd))
}

// GetMeta returns the meta.Meta stored in the command's Metadata. If missing
// or of an unexpected type, it returns the zero value.
func GetMeta(cmd *cli.Command) meta.Meta {
	if cmd == nil || cmd.Metadata == nil {
		return meta.Meta{}
	}
	if m, ok := cmd.Metadata["meta"].(meta.Meta); ok {
		return m
	}
	return meta.Meta{}
}

func writer(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

// SiteConfig builds the interceptor configuration from the site flags. When
// --path is not given, the paths config key and then the default set apply.
func SiteConfig(cmd *cli.Command) (interceptor.Config, error) {
	upstream := cmd.String("upstream")
	if upstream == "" {
		return interceptor.Config{}, errors.New("--upstream is required")
	}
	origin, err := interceptor.ParseOrigin(upstream)
	if err != nil {
		return interceptor.Config{}, err
	}

	sc := interceptor.DefaultConfig(origin)
	sc.CacheName = cmd.String("cache-name")
	sc.BypassPath = cmd.String("bypass")
	sc.OfflinePath = cmd.String("offline")
	sc.NetworkTimeout = cmd.Duration("timeout")

	switch {
	case cmd.IsSet("path"):
		sc.Paths = interceptor.NewPathSet(cmd.StringSlice("path")...)
	default:
		paths, err := config.GetStringSlice("paths", interceptor.DefaultPaths)
		if err != nil {
			return interceptor.Config{}, fmt.Errorf("invalid paths config: %w", err)
		}
		sc.Paths = interceptor.NewPathSet(paths...)
	}

	if err := sc.Validate(); err != nil {
		return interceptor.Config{}, err
	}
	return sc, nil
}

// Site is an interceptor wired to its cache store.
type Site struct {
	Config      interceptor.Config
	Storage     store.Storage
	Interceptor *interceptor.Interceptor
}

// OpenSite opens the store named by --store and builds the interceptor.
// Callers must Close the site.
func OpenSite(ctx context.Context, cmd *cli.Command) (*Site, error) {
	sc, err := SiteConfig(cmd)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cmd.String("store"))
	if err != nil {
		return nil, err
	}

	ic, err := interceptor.New(sc, st, nil)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	log.WithFields(log.Fields{
		"origin": sc.Origin.String(),
		"store":  cmd.String("store"),
		"cache":  sc.CacheName,
		"paths":  sc.Paths.Len(),
	}).Debug("site opened")

	return &Site{Config: sc, Storage: st, Interceptor: ic}, nil
}

// Close waits for pending cache writes and closes the store.
func (s *Site) Close() error {
	s.Interceptor.Wait()
	return s.Storage.Close()
}

// CommandBuilder constructs a cli.Command for a subcommand using the common
// pattern: metadata, the --tldr flag, the site flags and, for commands that
// emit datasets, the output flags.
type CommandBuilder struct {
	Name      string
	Usage     string
	UsageText string
	Flags     []cli.Flag
	Action    func(context.Context, *cli.Command) error
	Meta      meta.Meta
	// Site adds the site flags.
	Site bool
	// Output adds the output flags.
	Output bool
}

// Build returns a configured cli.Command from the builder.
func (cb *CommandBuilder) Build() *cli.Command {
	flags := append([]cli.Flag{tldrFlag}, cb.Flags...)
	if cb.Site {
		flags = append(flags, NewSiteFlags(cb.Name, cb.Meta.Config.Source)...)
	}
	if cb.Output {
		flags = append(flags, NewOutputFlags(cb.Name)...)
	}

	name := cb.Name
	action := cb.Action
	return &cli.Command{
		Name:      cb.Name,
		Usage:     cb.Usage,
		UsageText: cb.UsageText,
		Metadata: map[string]any{
			"meta": cb.Meta,
		},
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			m := GetMeta(c)
			if len(m.Args) > 1 {
				log.Debugf("Executing action for %v", m.Args[1:])
			}
			if ShortCircuitTLDR(ctx, c, name) {
				return nil
			}
			return action(ctx, c)
		},
	}
}

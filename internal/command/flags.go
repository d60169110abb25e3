// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"os/exec"

	altsrc "github.com/urfave/cli-altsrc/v3"
	yaml "github.com/urfave/cli-altsrc/v3/yaml"
	"github.com/urfave/cli/v3"

	"github.com/staranto/swproxy/internal/config"
	"github.com/staranto/swproxy/internal/interceptor"
)

func init() {
	cfg, _ = config.Load("")
}

var (
	cfg config.Type

	tldrFlag *cli.BoolFlag = &cli.BoolFlag{
		Name:        "tldr",
		Usage:       "show tldr page",
		Hidden:      !pathHas("tldr"),
		HideDefault: true,
	}
)

// NewOutputFlags returns the presentation flags of commands that emit a
// dataset. params[0] is the config namespace.
func NewOutputFlags(params ...string) (flags []cli.Flag) {
	flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "attrs",
			Aliases: []string{"a"},
			Usage:   "comma-separated list of attributes to include in results",
		},
		&cli.BoolWithInverseFlag{
			Name:    "color",
			Aliases: []string{"c"},
			Usage:   "enable colored text output",
			Sources: cli.NewValueSourceChain(
				yaml.YAML(params[0]+"."+"color", altsrc.StringSourcer(cfg.Source)),
				yaml.YAML("color", altsrc.StringSourcer(cfg.Source)),
			),
			Value: false,
		},
		&cli.StringFlag{
			Name:    "filter",
			Aliases: []string{"f"},
			Usage:   "comma-separated list of filters to apply to results",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "output format",
			Sources: cli.NewValueSourceChain(
				yaml.YAML(params[0]+"."+"output", altsrc.StringSourcer(cfg.Source)),
				yaml.YAML("output", altsrc.StringSourcer(cfg.Source)),
			),
			Value: "text",
			Validator: func(value string) error {
				return FlagValidators(value, OutputValidator)
			},
		},
		&cli.StringFlag{
			Name:    "sort",
			Aliases: []string{"s"},
			Usage:   "comma-separated list of attributes to sort the results by",
			Sources: cli.NewValueSourceChain(
				yaml.YAML(params[0]+"."+"sort", altsrc.StringSourcer(cfg.Source)),
			),
		},
		&cli.BoolWithInverseFlag{
			Name:    "titles",
			Aliases: []string{"t"},
			Usage:   "show titles with text output",
			Sources: cli.NewValueSourceChain(
				yaml.YAML(params[0]+"."+"titles", altsrc.StringSourcer(cfg.Source)),
				yaml.YAML("titles", altsrc.StringSourcer(cfg.Source)),
			),
			Value: false,
		},
	}

	return
}

// NewSiteFlags returns the flags that describe the fronted site and its
// cache, namespaced to ns in the config file at path.
func NewSiteFlags(ns string, path string) []cli.Flag {
	return []cli.Flag{
		NameSpacedValueChainFlagFromConfigFile(ns, path, &cli.StringFlag{
			Name:    "upstream",
			Aliases: []string{"u"},
			Usage:   "origin of the front end, e.g. http://localhost:5000",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SWPROXY_UPSTREAM")),
			Validator: func(value string) error {
				return FlagValidators(value, JammedFlagValidator, UpstreamValidator)
			},
		}),
		NameSpacedValueChainFlagFromConfigFile(ns, path, &cli.StringFlag{
			Name:  "store",
			Usage: "cache store: memory, disk[:dir], sqlite:path or s3://bucket[/prefix]",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("SWPROXY_STORE"),
			),
			Value: "disk",
			Validator: func(value string) error {
				return FlagValidators(value, JammedFlagValidator, StoreValidator)
			},
		}),
		NameSpacedValueChainFlagFromConfigFile(ns, path, &cli.StringFlag{
			Name:    "cache-name",
			Aliases: []string{"n"},
			Usage:   "name of the cache to fill and serve from",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SWPROXY_CACHE_NAME")),
			Value:   interceptor.DefaultCacheName,
		}),
		NameSpacedValueChainFlagFromConfigFile(ns, path, &cli.StringFlag{
			Name:  "bypass",
			Usage: "path that is never intercepted",
			Value: interceptor.DefaultBypassPath,
		}),
		NameSpacedValueChainFlagFromConfigFile(ns, path, &cli.StringFlag{
			Name:  "offline",
			Usage: "cacheable path served to navigations that fail",
			Value: interceptor.DefaultOfflinePath,
		}),
		&cli.StringSliceFlag{
			Name:    "path",
			Aliases: []string{"p"},
			Usage:   "cacheable path, repeatable. Replaces the default set and the paths config key",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "deadline for each network attempt, 0 for none",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("SWPROXY_TIMEOUT"),
				yaml.YAML(ns+"."+"timeout", altsrc.StringSourcer(path)),
				yaml.YAML("timeout", altsrc.StringSourcer(path)),
			),
		},
	}
}

// NameSpacedValueChainFlagFromConfigFile adds namespaced and global config file
// sources to the given flag's Sources chain.
func NameSpacedValueChainFlagFromConfigFile(ns string, path string, flag *cli.StringFlag) *cli.StringFlag {
	src := yaml.YAML(ns+"."+flag.Name, altsrc.StringSourcer(path))
	flag.Sources.Chain = append(flag.Sources.Chain, src)

	src = yaml.YAML(flag.Name, altsrc.StringSourcer(path))
	flag.Sources.Chain = append(flag.Sources.Chain, src)

	return flag
}

// pathHas reports whether target is an executable on PATH.
func pathHas(target string) bool {
	_, err := exec.LookPath(target)
	return err == nil
}

// Copyright © 2025 Steve Taranto staranto@gmail.com
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/staranto/swproxy/internal/meta"
)

const bashCompletionScript = `# bash completion for swproxy
# Fallback if bash-completion is not installed
if ! declare -F _get_comp_words_by_ref >/dev/null 2>&1; then
  _get_comp_words_by_ref() {
    cur=${COMP_WORDS[COMP_CWORD]}
    prev=${COMP_WORDS[COMP_CWORD-1]}
  }
fi

_swproxy()
{
    local cur prev cmd
    COMPREPLY=()
    _get_comp_words_by_ref -n : cur prev

    if [[ ${COMP_CWORD} -eq 1 ]]; then
        COMPREPLY=( $(compgen -W "serve install fetch ls purge name completion --help --version" -- "$cur") )
        return 0
    fi

    cmd=${COMP_WORDS[1]}
    local site="--upstream -u --store --cache-name -n --bypass --offline --path -p --timeout --tldr"
    local out="--attrs -a --color -c --filter -f --output -o --sort -s --titles -t"

    case "$prev" in
    --output|-o)
        COMPREPLY=( $(compgen -W "text json yaml raw" -- "$cur") )
        return 0
        ;;
    --store)
        COMPREPLY=( $(compgen -W "memory disk disk: sqlite: s3://" -- "$cur") )
        return 0
        ;;
    esac

    case "$cmd" in
    serve)
      local opts="$site --listen -l --install --purge-stale"
      ;;
    install)
      local opts="$site $out --strict"
      ;;
    fetch)
      local opts="$site --navigate --include -i --fail"
      ;;
    ls)
      local opts="$site $out --all"
      ;;
    purge)
      local opts="$site --all"
      ;;
    name)
      local opts="$site"
      ;;
    completion)
      local opts="bash zsh"
      ;;
    *)
      local opts="$site"
      ;;
    esac

    COMPREPLY=( $(compgen -W "$opts" -- "$cur") )
    return 0
}

complete -F _swproxy swproxy
`

const zshCompletionScript = `#compdef swproxy

_swproxy() {
  local -a site out
  site=(
    '(-u --upstream)'{-u,--upstream}'[origin of the front end]:url:'
    '--store[cache store]:store:(memory disk disk\: sqlite\: s3\://)'
    '(-n --cache-name)'{-n,--cache-name}'[cache name]:name:'
    '--bypass[path that is never intercepted]:path:'
    '--offline[offline fallback path]:path:'
    '*'{-p,--path}'[cacheable path]:path:'
    '--timeout[network attempt deadline]:duration:'
    '--tldr[show tldr page]'
  )
  out=(
    '(-a --attrs)'{-a,--attrs}'[attributes]:attrs:'
    '(-c --color)'{-c,--color}'[colored output]'
    '(-f --filter)'{-f,--filter}'[filters]:filter:'
    '(-o --output)'{-o,--output}'[output format]:format:(text json yaml raw)'
    '(-s --sort)'{-s,--sort}'[sort attributes]:sort:'
    '(-t --titles)'{-t,--titles}'[show titles]'
  )

  if (( CURRENT == 2 )); then
    _values 'command' serve install fetch ls purge name completion
    return
  fi

  case $words[2] in
    serve)
      _arguments -C $site \
        '(-l --listen)'{-l,--listen}'[listen address]:addr:' \
        '--install[fill the cache before serving]' \
        '--purge-stale[delete other caches before serving]'
      ;;
    install)
      _arguments -C $site $out '--strict[fail when any path fails]'
      ;;
    fetch)
      _arguments -C $site \
        '--navigate[send as a navigation]' \
        '(-i --include)'{-i,--include}'[print status and headers]' \
        '--fail[fail on 4xx and 5xx]' \
        '1:path:'
      ;;
    ls)
      _arguments -C $site $out '--all[every cache]'
      ;;
    purge)
      _arguments -C $site '--all[delete every cache]'
      ;;
    name)
      _arguments -C $site '1:account id:'
      ;;
    completion)
      _arguments '1: :((bash zsh))'
      ;;
  esac
}

# If this file is sourced directly (not autoloaded via fpath), ensure compsys is initialized and register the completion
if ! typeset -f compdef >/dev/null 2>&1; then
  autoload -Uz compinit && compinit -i
fi
compdef _swproxy swproxy
`

func CompletionCommandAction(ctx context.Context, cmd *cli.Command) error {
	w := writer(cmd)

	shell := cmd.Args().First()
	if shell == "" {
		// Try to detect from SHELL.
		sh := os.Getenv("SHELL")
		switch {
		case strings.HasSuffix(sh, "zsh"):
			shell = "zsh"
		case strings.HasSuffix(sh, "bash"):
			shell = "bash"
		}
	}

	switch shell {
	case "bash":
		fmt.Fprint(w, bashCompletionScript)
	case "zsh":
		fmt.Fprint(w, zshCompletionScript)
	default:
		return fmt.Errorf("usage: swproxy completion [bash|zsh]")
	}
	return nil
}

func CompletionCommandBuilder(meta meta.Meta) *cli.Command {
	return &cli.Command{
		Name:      "completion",
		Usage:     "generate shell completion script",
		UsageText: "swproxy completion [bash|zsh]",
		Metadata: map[string]any{
			"meta": meta,
		},
		Action: CompletionCommandAction,
	}
}

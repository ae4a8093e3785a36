package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/starford/livevars/internal"
	"github.com/starford/livevars/internal/diff"
	"github.com/starford/livevars/internal/resolver"
	"github.com/starford/livevars/internal/value"
	"github.com/urfave/cli/v3"
)

var docFlag = &cli.StringFlag{
	Name:    "doc",
	Aliases: []string{"d"},
	Usage:   "Current document; local paths resolve against it",
}

// openVault loads the config and the vault for a one-shot command. Logs go
// to stderr so stdout carries only the result.
func openVault(ctx context.Context, cmd *cli.Command) (*internal.Vault, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: max(cfg.App.LogLevel, slog.LevelWarn),
	}))
	return internal.OpenVault(ctx, cfg, logger)
}

func resolveCommand() *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Usage:     "Print the value of a variable path",
		ArgsUsage: "<path>",
		Flags:     []cli.Flag{docFlag},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return errors.New("resolve: path is required")
			}
			vault, err := openVault(ctx, cmd)
			if err != nil {
				return err
			}
			v, ok := vault.Session.Resolve(path, cmd.String("doc"))
			if !ok {
				return fmt.Errorf("resolve: %s: no value", path)
			}
			fmt.Fprintln(cmd.Root().Writer, value.Display(v))
			return nil
		},
	}
}

func pathsCommand() *cli.Command {
	return &cli.Command{
		Name:      "paths",
		Usage:     "List variable paths, optionally filtered",
		ArgsUsage: "[query]",
		Flags: []cli.Flag{
			docFlag,
			&cli.BoolFlag{Name: "prefix", Usage: "Match the query as a prefix instead of a substring"},
			&cli.StringFlag{Name: "scope", Value: "local", Usage: "local or all"},
			&cli.BoolFlag{Name: "values", Usage: "Print a preview of each value"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			scope, err := resolver.ParseScope(cmd.String("scope"))
			if err != nil {
				return err
			}
			vault, err := openVault(ctx, cmd)
			if err != nil {
				return err
			}
			q, doc := cmd.Args().First(), cmd.String("doc")
			out := cmd.Root().Writer

			if cmd.Bool("values") {
				for _, p := range vault.Session.Properties(q, scope, doc, 50) {
					fmt.Fprintf(out, "%s\t%s\n", p.Path, p.Value)
				}
				return nil
			}
			paths := vault.Session.FindPathsContaining(q, scope, doc)
			if cmd.Bool("prefix") {
				paths = vault.Session.FindPathsStartingWith(q, scope, doc)
			}
			if len(paths) > 0 {
				fmt.Fprintln(out, strings.Join(paths, "\n"))
			}
			return nil
		},
	}
}

func setCommand() *cli.Command {
	return &cli.Command{
		Name:      "set",
		Usage:     "Write a variable into its document's front matter",
		ArgsUsage: "<path> <value>",
		Flags: []cli.Flag{
			docFlag,
			&cli.BoolFlag{Name: "dry-run", Aliases: []string{"n"}, Usage: "Print the diff without writing"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 2 {
				return errors.New("set: expected <path> <value>")
			}
			path, v := cmd.Args().Get(0), value.ParseScalar(cmd.Args().Get(1))
			vault, err := openVault(ctx, cmd)
			if err != nil {
				return err
			}
			out := cmd.Root().Writer

			if cmd.Bool("dry-run") {
				ch, err := vault.Session.Plan(path, cmd.String("doc"), v)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s\n%s", ch.Document, diff.Unified(ch.Diff))
				return nil
			}
			ch, err := vault.Session.Set(ctx, path, cmd.String("doc"), v)
			if err != nil {
				return err
			}
			if !ch.Persisted {
				return fmt.Errorf("set: %s: no target document, use --doc or a global path", path)
			}
			fmt.Fprintf(out, "%s: %s = %s\n", ch.Document, ch.Key, ch.Literal)
			return nil
		},
	}
}

func renderCommand() *cli.Command {
	return &cli.Command{
		Name:      "render",
		Usage:     "Print a document with its variables substituted",
		ArgsUsage: "<document>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "html", Usage: "Render the body to HTML"},
			&cli.BoolFlag{Name: "highlight", Usage: "Mark substituted values in HTML output"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			doc := cmd.Args().First()
			if doc == "" {
				return errors.New("render: document is required")
			}
			vault, err := openVault(ctx, cmd)
			if err != nil {
				return err
			}
			raw, err := vault.Session.Read(doc)
			if err != nil {
				return err
			}
			lookup := func(p string) (value.Value, bool) { return vault.Session.Resolve(p, doc) }

			text := vault.Scanner.Substitute(string(raw), lookup)
			if cmd.Bool("html") {
				if text, err = vault.Scanner.HTML(string(raw), lookup, cmd.Bool("highlight")); err != nil {
					return err
				}
			}
			fmt.Fprint(cmd.Root().Writer, text)
			return nil
		},
	}
}

// Command trigramsearch is a small demonstration harness exercising the
// codesearch façade end-to-end. It is not part of the module's public
// contract; real embedders call the codesearch package directly.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	codesearch "github.com/devpushing/codesearch"
	"github.com/devpushing/codesearch/internal/config"
)

func loadConfig(c *cli.Context) (*config.Config, error) {
	root := c.String("root")
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		root = cwd
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root %q: %w", root, err)
	}

	configDir := absRoot
	if dir := c.String("config"); dir != "" {
		configDir = dir
	}
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg.Project.Root = absRoot

	if include := c.StringSlice("include"); len(include) > 0 {
		cfg.Include = include
	}
	if exclude := c.StringSlice("exclude"); len(exclude) > 0 {
		cfg.Exclude = append(cfg.Exclude, exclude...)
	}
	return cfg, nil
}

func main() {
	app := &cli.App{
		Name:  "trigramsearch",
		Usage: "trigram/token workspace search",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "workspace root to index (defaults to the current directory)",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "project config directory (reads .trigramsearch.kdl there)",
			},
			&cli.StringSliceFlag{
				Name:  "include",
				Usage: "glob patterns stored as the config's include list (the directory walk does not filter by them)",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "exclude files matching glob patterns",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "search",
				Usage:     "search the workspace index",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "maximum results",
						Value:   50,
					},
				},
				Action: runSearch,
			},
			{
				Name:   "stats",
				Usage:  "print index statistics",
				Action: runStats,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "trigramsearch:", err)
		os.Exit(1)
	}
}

func newEngine(c *cli.Context) (*codesearch.Engine, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	return codesearch.New(cfg, codesearch.WithEnumerator(&dirEnumerator{root: cfg.Project.Root})), nil
}

func runSearch(c *cli.Context) error {
	query := c.Args().First()
	if query == "" {
		return fmt.Errorf("usage: trigramsearch search <query>")
	}

	eng, err := newEngine(c)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	defer eng.Shutdown()

	if err := eng.Initialize(ctx); err != nil {
		return err
	}

	results, err := eng.Search(ctx, query, c.Int("limit"))
	if err != nil {
		return err
	}

	for _, r := range results {
		fmt.Printf("%6d  %-8s %s\n", r.Score, r.Item.Kind, r.Item.Path)
	}
	return nil
}

func runStats(c *cli.Context) error {
	eng, err := newEngine(c)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	defer eng.Shutdown()

	if err := eng.Initialize(ctx); err != nil {
		return err
	}

	stats, err := eng.Stats(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("items:            %d\n", stats.Items)
	fmt.Printf("distinct trigrams: %d\n", stats.DistinctTrigram)
	fmt.Printf("distinct tokens:   %d\n", stats.DistinctToken)
	fmt.Printf("last updated:      %s\n", stats.LastUpdated)
	return nil
}

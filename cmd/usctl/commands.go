package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/app"
	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/domain"
	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/loadtest"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/logger"
)

// annotationRemote marks commands that talk to a running service and need
// no local app.
const annotationRemote = "remote"

type cli struct {
	configPath   string
	reindexFirst bool
	app          *app.App
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "usctl",
		Short:         "Administer the unified search index",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[annotationRemote] != "" {
				return nil
			}
			return c.open(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.app != nil {
				c.app.Close()
			}
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "path to config file")
	root.PersistentFlags().BoolVar(&c.reindexFirst, "reindex-first", false, "rebuild the index before running the command (for in-memory stores)")

	root.AddCommand(
		c.reindexCmd(),
		c.searchCmd(),
		c.eventCmd(),
		c.deleteCmd(),
		c.countCmd(),
		c.cacheCmd(),
		loadtestCmd(),
	)
	return root
}

func (c *cli) open(cmd *cobra.Command) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	logger.SetupWriter(cmd.ErrOrStderr(), cfg.Logging.Level, "text")

	c.app, err = app.New(cfg)
	if err != nil {
		return err
	}
	c.app.Start(cmd.Context())
	if c.reindexFirst {
		if _, err := c.app.Engine.ReindexAll(cmd.Context()); err != nil {
			return fmt.Errorf("reindex: %w", err)
		}
	}
	return nil
}

func (c *cli) reindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Truncate the index and rebuild it from the content source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := c.app.Engine.ReindexAll(cmd.Context())
			cmd.Printf("indexed %d items\n", n)
			if err != nil {
				return fmt.Errorf("reindex incomplete: %w", err)
			}
			return nil
		},
	}
}

func (c *cli) searchCmd() *cobra.Command {
	var (
		limit   int
		grouped bool
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Run a search with the configured settings",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			var settings *domain.Settings
			if limit > 0 {
				s := c.app.Search.Defaults()
				s.MaxResults = limit
				s.ResultsPerType = min(s.ResultsPerType, limit)
				settings = &s
			}

			if grouped {
				res, err := c.app.Search.SearchGrouped(cmd.Context(), query, settings)
				if err != nil {
					return fmt.Errorf("search failed: %w", err)
				}
				if asJSON {
					return printJSON(cmd, res)
				}
				printResults(cmd, "Products", res.Products)
				printResults(cmd, "Articles", res.Articles)
				return nil
			}

			results, err := c.app.Search.Search(cmd.Context(), query, settings)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			if asJSON {
				return printJSON(cmd, results)
			}
			printResults(cmd, "Results", results)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of results (default from settings)")
	cmd.Flags().BoolVar(&grouped, "grouped", false, "group results by content type")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output results as JSON")
	return cmd
}

func (c *cli) eventCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "event [publish|update|delete] [source-id]",
		Short: "Replay a content lifecycle event",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			event, err := domain.ParseLifecycleEvent(args[0])
			if err != nil {
				return err
			}
			outcome, err := c.app.Engine.Dispatch(cmd.Context(), event, args[1])
			if err != nil {
				return err
			}
			cmd.Printf("%s %s: %s\n", event, args[1], outcome)
			return nil
		},
	}
}

func (c *cli) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [source-id]",
		Short: "Remove an item from the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := c.app.Engine.OnDelete(cmd.Context(), args[0]); err != nil {
				return err
			}
			cmd.Printf("deleted %s\n", args[0])
			return nil
		},
	}
}

func (c *cli) countCmd() *cobra.Command {
	var typ string
	cmd := &cobra.Command{
		Use:   "count",
		Short: "Print the number of indexed records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if typ == "" {
				n, err := c.app.Store.Count(cmd.Context())
				if err != nil {
					return err
				}
				cmd.Printf("%d records\n", n)
				return nil
			}
			ct, err := domain.ParseContentType(typ)
			if err != nil {
				return err
			}
			ids, err := c.app.Store.Scan(cmd.Context(), &ct)
			if err != nil {
				return err
			}
			cmd.Printf("%d %s records\n", len(ids), ct)
			return nil
		},
	}
	cmd.Flags().StringVarP(&typ, "type", "t", "", "count only product or article records")
	return cmd
}

func (c *cli) cacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the search result cache",
	}
	cacheCmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete every cached search result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.app.Cache == nil {
				return errors.New("caching is disabled")
			}
			n, err := c.app.Cache.Purge(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("purged %d keys\n", n)
			return nil
		},
	})
	return cacheCmd
}

func loadtestCmd() *cobra.Command {
	cfg := loadtest.Config{}
	cmd := &cobra.Command{
		Use:         "loadtest",
		Short:       "Drive concurrent search traffic at a running searcher",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationRemote: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.Printf("searching %s with %d workers for %s\n", cfg.BaseURL, cfg.Concurrency, cfg.Duration)
			report, err := loadtest.Run(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			report.Write(cmd.OutOrStdout())
			if report.Total == 0 {
				return errors.New("no requests completed, is the searcher running?")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.BaseURL, "url", "http://localhost:8080", "base URL of the searcher")
	cmd.Flags().IntVar(&cfg.Concurrency, "concurrency", 10, "number of concurrent workers")
	cmd.Flags().DurationVar(&cfg.Duration, "duration", 30*time.Second, "how long to run")
	cmd.Flags().Int64Var(&cfg.Requests, "requests", 0, "stop after this many requests (0 means no limit)")
	cmd.Flags().StringSliceVarP(&cfg.Queries, "query", "q", nil, "query to send, repeatable (defaults to a storefront mix)")
	cmd.Flags().BoolVar(&cfg.Grouped, "grouped", false, "hit the grouped endpoint")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func printResults(cmd *cobra.Command, heading string, results []domain.ScoredResult) {
	if len(results) == 0 {
		cmd.Printf("%s: none\n", heading)
		return
	}
	cmd.Printf("%s:\n", heading)
	for i, r := range results {
		line := fmt.Sprintf("  [%d] %s (%s, %s) score=%.0f", i+1, r.Title, r.Type, r.ID, r.Score)
		if r.Price != "" {
			line += " " + r.Price
		}
		cmd.Println(line)
	}
}

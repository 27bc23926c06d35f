package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/0xmhha/fskit/pkg/config"
	"github.com/0xmhha/fskit/pkg/disposer"
	"github.com/0xmhha/fskit/pkg/display"
	"github.com/0xmhha/fskit/pkg/fsio"
	"github.com/0xmhha/fskit/pkg/logger"
	"github.com/0xmhha/fskit/pkg/watch"
)

// watchCommand prints events for one or more paths until interrupted.
type watchCommand struct {
	opts       *globalOptions
	recursive  bool
	events     string
	excludes   []string
	format     string
	timestamps bool
}

func newWatchCmd(opts *globalOptions) *cobra.Command {
	c := &watchCommand{opts: opts}

	cmd := &cobra.Command{
		Use:   "watch <path>...",
		Short: "Print change events for files and directories",
		Example: `  # Watch a tree, skipping dependencies
  fskit watch -r --exclude 'node_modules' --exclude '**/*.tmp' ./src

  # Only creations and deletions, as JSON Lines
  fskit watch -r --events created,deleted --format json /srv/data`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Execute(cmd, args)
		},
	}

	flags := cmd.Flags()
	flags.BoolVarP(&c.recursive, "recursive", "r", false, "watch every descendant directory")
	flags.StringVar(&c.events, "events", "all", "event kinds to report (created, modified, deleted, overflow)")
	flags.StringSliceVar(&c.excludes, "exclude", nil, "doublestar pattern relative to the root to skip (repeatable)")
	flags.StringVar(&c.format, "format", "", "output format (simple, table, json); default simple on a terminal, json otherwise")
	flags.BoolVar(&c.timestamps, "timestamps", false, "show event timestamps")

	return cmd
}

// watchSession is what the watch command holds while running.
type watchSession struct {
	rt     *runtime
	engine *watch.Engine
}

// Execute runs the watch command.
func (c *watchCommand) Execute(cmd *cobra.Command, paths []string) error {
	kinds, err := watch.ParseKinds(c.events)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	format, err := c.outputFormat(out)
	if err != nil {
		return err
	}
	formatter := display.New(display.Config{
		Format:         format,
		ShowTimestamps: c.timestamps,
		Compact:        true,
	})

	cfg, err := c.opts.loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := newMetricsRegistry(cfg)
	session := disposer.FlatMap(runtimeResource(cfg), func(rt *runtime) disposer.Disposer[*watchSession] {
		return disposer.FlatMap(c.metrics(cfg, reg, rt.log), func(registerer prometheus.Registerer) disposer.Disposer[*watchSession] {
			return disposer.Map(engineResource(rt, registerer), func(engine *watch.Engine) *watchSession {
				return &watchSession{rt: rt, engine: engine}
			})
		})
	})

	return session.RunContext(ctx, func(s *watchSession) error {
		return c.run(ctx, s, out, formatter, paths, kinds)
	})
}

// metrics starts the metrics endpoint when enabled and yields the
// registerer the engine should use.
func (c *watchCommand) metrics(cfg *config.Config, reg *prometheus.Registry, log logger.Logger) disposer.Disposer[prometheus.Registerer] {
	if reg == nil {
		return disposer.Pure[prometheus.Registerer](nil)
	}
	return disposer.Map(metricsServer(cfg.Metrics.Address, reg, log.Named("metrics")), func(*http.Server) prometheus.Registerer {
		return reg
	})
}

func (c *watchCommand) run(ctx context.Context, s *watchSession, out io.Writer, formatter display.Formatter, paths []string, kinds watch.Kind) error {
	log := s.rt.log

	// Handlers of different subscriptions run concurrently.
	var mu sync.Mutex
	handler := func(ev watch.Event) {
		mu.Lock()
		defer mu.Unlock()
		if err := formatter.FormatEvent(out, ev); err != nil {
			log.Warn("failed to write event", "path", ev.Path, "error", err)
		}
	}

	for _, path := range paths {
		if _, err := s.engine.Watch(path, c.recursive, kinds, handler, watch.WithExclude(c.excludes...)); err != nil {
			return err
		}
	}

	log.Info("watching", "paths", len(paths), "recursive", c.recursive, "events", kinds.String())
	<-ctx.Done()

	stats := s.engine.Stats()
	log.Info("watch finished",
		"delivered", stats.Delivered,
		"dropped", stats.Dropped,
		"watches", stats.Watches)
	return nil
}

func (c *watchCommand) outputFormat(out io.Writer) (display.Format, error) {
	if c.format != "" {
		return display.ParseFormat(c.format)
	}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return display.FormatSimple, nil
	}
	return display.FormatJSON, nil
}

// historyCommand prints journaled events.
type historyCommand struct {
	opts       *globalOptions
	since      uint64
	limit      int
	format     string
	timestamps bool
	compact    bool
}

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	c := &historyCommand{opts: opts}

	cmd := &cobra.Command{
		Use:   "history [root]",
		Short: "Show journaled events of a watched root, or list journaled roots",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Execute(cmd.OutOrStdout(), args)
		},
	}

	flags := cmd.Flags()
	flags.Uint64Var(&c.since, "since", 0, "show records with a sequence number above this")
	flags.IntVar(&c.limit, "limit", 0, "maximum number of records (0 for all)")
	flags.StringVar(&c.format, "format", "table", "output format (table, json, simple)")
	flags.BoolVar(&c.timestamps, "timestamps", true, "show record timestamps")
	flags.BoolVar(&c.compact, "compact", false, "compact output")

	return cmd
}

// Execute runs the history command.
func (c *historyCommand) Execute(out io.Writer, args []string) error {
	format, err := display.ParseFormat(c.format)
	if err != nil {
		return err
	}

	cfg, err := c.opts.loadConfig()
	if err != nil {
		return err
	}
	if cfg.Storage.JournalPath == "" {
		return errJournalDisabled
	}

	return runtimeResource(cfg).Run(func(rt *runtime) error {
		if len(args) == 0 {
			return c.listRoots(out, rt)
		}

		root, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("failed to resolve root %s: %w", args[0], err)
		}

		records, err := rt.journal.Since(root, c.since, c.limit)
		if err != nil {
			return fmt.Errorf("failed to read journal: %w", err)
		}

		formatter := display.New(display.Config{
			Format:         format,
			ShowTimestamps: c.timestamps,
			Compact:        c.compact,
		})
		return formatter.FormatRecords(out, records)
	})
}

func (c *historyCommand) listRoots(out io.Writer, rt *runtime) error {
	roots, err := rt.journal.Roots()
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}
	if len(roots) == 0 {
		_, err := fmt.Fprintln(out, "No journaled roots")
		return err
	}

	for _, root := range roots {
		last, err := rt.journal.LastSeq(root)
		if err != nil {
			return fmt.Errorf("failed to read journal: %w", err)
		}
		if _, err := fmt.Fprintf(out, "%s (last seq %d)\n", root, last); err != nil {
			return err
		}
	}
	return nil
}

// linesCommand prints a file line by line.
type linesCommand struct {
	limit int
}

func newLinesCmd() *cobra.Command {
	c := &linesCommand{}

	cmd := &cobra.Command{
		Use:   "lines <file>",
		Short: "Print the lines of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Execute(cmd.OutOrStdout(), args[0])
		},
	}
	cmd.Flags().IntVar(&c.limit, "limit", 0, "stop after this many lines (0 for all)")

	return cmd
}

// Execute runs the lines command. The file is closed as soon as the limit
// is reached.
func (c *linesCommand) Execute(out io.Writer, path string) error {
	it := fsio.Lines(path)

	var (
		n        int
		writeErr error
	)
	for line := range it.All() {
		if _, writeErr = fmt.Fprintln(out, line); writeErr != nil {
			break
		}
		n++
		if c.limit > 0 && n >= c.limit {
			break
		}
	}

	if err := it.Err(); err != nil {
		return err
	}
	return writeErr
}

func newCopyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "copy <src> <dst>",
		Short: "Copy a file, creating missing parent directories",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := fsio.Copy(args[0], args[1])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "copied %d bytes to %s\n", n, args[1])
			return err
		},
	}
}

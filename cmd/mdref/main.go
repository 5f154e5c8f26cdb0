package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/mdref/internal"
	"github.com/starford/mdref/internal/index"
	"github.com/starford/mdref/internal/models"
	"github.com/starford/mdref/internal/mover"
	"github.com/starford/mdref/internal/refindex"
	"github.com/starford/mdref/internal/storage"
	pkgconfig "github.com/starford/mdref/pkg/config"
)

var version = "dev"

// errBrokenLinks makes `check` exit non-zero without further output.
var errBrokenLinks = errors.New("broken links found")

// cliEnv is the state shared by every command action.
type cliEnv struct {
	stdout io.Writer
	stderr io.Writer
}

// setup loads the configuration and builds a stderr logger honoring --verbose.
func (e *cliEnv) setup(cmd *cli.Command) (*internal.Config, *slog.Logger, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if root := cmd.String("root"); root != "" {
		cfg.Tree.Root = root
	}
	level := cfg.App.LogLevel
	if cmd.Bool("verbose") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(e.stderr, &slog.HandlerOptions{Level: level}))
	return cfg, logger, nil
}

func (e *cliEnv) scanner(cfg *internal.Config, logger *slog.Logger) (*refindex.Index, storage.Provider) {
	store := storage.NewFS()
	return refindex.New(
		refindex.WithStore(store),
		refindex.WithWorkers(cfg.Tree.Workers),
		refindex.WithLogger(logger),
	), store
}

func requireArgs(cmd *cli.Command, n int) error {
	if cmd.Args().Len() != n {
		return fmt.Errorf("%s: expected %d argument(s), got %d (usage: %s %s)",
			cmd.Name, n, cmd.Args().Len(), cmd.Name, cmd.ArgsUsage)
	}
	return nil
}

func (e *cliEnv) find(_ context.Context, cmd *cli.Command) error {
	if err := requireArgs(cmd, 1); err != nil {
		return err
	}
	cfg, logger, err := e.setup(cmd)
	if err != nil {
		return err
	}
	idx, _ := e.scanner(cfg, logger)

	target := cmd.Args().Get(0)
	refs, err := idx.FindReferences(target, cfg.Tree.Root)
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		fmt.Fprintf(e.stdout, "No references found for %s\n", target)
		return nil
	}
	fmt.Fprintf(e.stdout, "References to %s:\n", target)
	printRefs(e.stdout, refs)
	return nil
}

func (e *cliEnv) links(_ context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() > 1 {
		return requireArgs(cmd, 1)
	}
	cfg, logger, err := e.setup(cmd)
	if err != nil {
		return err
	}
	idx, _ := e.scanner(cfg, logger)

	if cmd.Args().Len() == 0 {
		all := idx.AllLinks(cfg.Tree.Root)
		if len(all) == 0 {
			fmt.Fprintf(e.stdout, "No links found under %s\n", cfg.Tree.Root)
			return nil
		}
		fmt.Fprintf(e.stdout, "Links under %s:\n", cfg.Tree.Root)
		printRefs(e.stdout, all)
		return nil
	}

	path := cmd.Args().Get(0)
	links, err := idx.FindLinks(path)
	if err != nil {
		return err
	}
	if len(links) == 0 {
		fmt.Fprintf(e.stdout, "No links found in %s\n", path)
		return nil
	}
	fmt.Fprintf(e.stdout, "Links in %s:\n", path)
	printRefs(e.stdout, links)
	return nil
}

func (e *cliEnv) move(_ context.Context, cmd *cli.Command) error {
	if err := requireArgs(cmd, 2); err != nil {
		return err
	}
	cfg, logger, err := e.setup(cmd)
	if err != nil {
		return err
	}
	idx, store := e.scanner(cfg, logger)

	report, err := mover.New(store, idx, logger).Move(cmd.Args().Get(0), cmd.Args().Get(1), cfg.Tree.Root)
	if report != nil {
		e.printReport(report)
	}
	return err
}

func (e *cliEnv) rename(_ context.Context, cmd *cli.Command) error {
	if err := requireArgs(cmd, 2); err != nil {
		return err
	}
	cfg, logger, err := e.setup(cmd)
	if err != nil {
		return err
	}
	idx, store := e.scanner(cfg, logger)

	report, err := mover.New(store, idx, logger).Rename(cmd.Args().Get(0), cmd.Args().Get(1), cfg.Tree.Root)
	if report != nil {
		e.printReport(report)
	}
	return err
}

func (e *cliEnv) check(_ context.Context, cmd *cli.Command) error {
	cfg, logger, err := e.setup(cmd)
	if err != nil {
		return err
	}
	idx, _ := e.scanner(cfg, logger)

	broken, err := idx.FindBroken(cfg.Tree.Root)
	if err != nil {
		return err
	}
	if len(broken) == 0 {
		fmt.Fprintf(e.stdout, "No broken links under %s\n", cfg.Tree.Root)
		return nil
	}
	fmt.Fprintf(e.stdout, "Broken links under %s:\n", cfg.Tree.Root)
	printRefs(e.stdout, broken)
	return fmt.Errorf("%w: %d", errBrokenLinks, len(broken))
}

func (e *cliEnv) export(_ context.Context, cmd *cli.Command) error {
	cfg, logger, err := e.setup(cmd)
	if err != nil {
		return err
	}
	if dbPath := cmd.String("db"); dbPath != "" {
		cfg.SQLite.Path = dbPath
	}
	idx, store := e.scanner(cfg, logger)

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := index.Sync(db, idx, store, cfg.Tree.Root, logger); err != nil {
		return err
	}
	stats, err := db.Stats()
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "Exported %d documents, %d links (%d resolved) to %s\n",
		stats.Documents, stats.Links, stats.Resolved, cfg.SQLite.Path)
	return nil
}

func (e *cliEnv) serve(ctx context.Context, cmd *cli.Command) error {
	cfg, _, err := e.setup(cmd)
	if err != nil {
		return err
	}
	if cmd.Bool("verbose") {
		cfg.App.LogLevel = slog.LevelDebug
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func (e *cliEnv) mcp(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := e.setup(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx,
		internal.WithConfig(cfg),
		internal.WithLogger(logger),
		internal.WithVersion(version))
}

func (e *cliEnv) printReport(report *mover.Report) {
	fmt.Fprintf(e.stdout, "Moved %s -> %s (%d references updated)\n",
		report.Old, report.New, len(report.Rewritten))
	for _, s := range report.Skipped {
		fmt.Fprintf(e.stderr, "warning: %s: %s\n", s.Reference, s.Reason)
	}
}

func printRefs(w io.Writer, refs []models.Reference) {
	for _, r := range refs {
		fmt.Fprintf(w, "  %s\n", r)
	}
}

func newApp(stdout, stderr io.Writer) *cli.Command {
	e := &cliEnv{stdout: stdout, stderr: stderr}
	return &cli.Command{
		Name:    "mdref",
		Usage:   "Find and rewrite references between Markdown documents",
		Version: version,
		Writer:  stdout,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "mdref.yaml",
				Value:       "mdref.yaml",
				Sources:     cli.EnvVars("MDREF_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Root of the document tree (overrides tree.root)",
				Sources: cli.EnvVars("MDREF_ROOT"),
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "find",
				Usage:     "Find every link that resolves to a file",
				ArgsUsage: "<file>",
				Action:    e.find,
			},
			{
				Name:      "links",
				Usage:     "List every link inside a document, or under the root when no file is given",
				ArgsUsage: "[file]",
				Action:    e.links,
			},
			{
				Name:      "mv",
				Aliases:   []string{"move"},
				Usage:     "Move a file and rewrite the links that point at it",
				ArgsUsage: "<src> <dst>",
				Action:    e.move,
			},
			{
				Name:      "rename",
				Usage:     "Rename a file within its directory and rewrite links",
				ArgsUsage: "<old> <new-name>",
				Action:    e.rename,
			},
			{
				Name:   "check",
				Usage:  "Report relative links whose target does not exist",
				Action: e.check,
			},
			{
				Name:  "export",
				Usage: "Export the link graph into SQLite",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "db",
						Usage: "Path to the SQLite database (overrides sqlite.path)",
					},
				},
				Action: e.export,
			},
			{
				Name:   "serve",
				Usage:  "Serve the HTTP API with live updates",
				Action: e.serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the MCP tools over stdio",
				Action: e.mcp,
			},
		},
	}
}

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(context.Background(), os.Args); err != nil {
		if !errors.Is(err, errBrokenLinks) {
			slog.Error("application error", slog.String("error", err.Error()))
		}
		os.Exit(1)
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"
)

const usage = `basable - browse and edit database tables

Usage:
  basable [flags]          open the table viewer
  basable serve [flags]    serve sql sources over HTTP
  basable dump [flags]     load one table and print it

Run "basable <command> -h" for the flags of a command.
`

type cliOptions struct {
	configPath string
	source     string
	table      string
	sqlitePath string
	url        string
	timeout    time.Duration
	pageSize   int
	offset     int
	logFile    string
	listen     string
	verbose    bool
	raw        bool
}

func newFlagSet(name string, opts *cliOptions, output io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.configPath, "config", "", "config file (default ./basable.json or ~/.basable/config.json)")
	fs.StringVar(&opts.source, "source", "", "name of the source to open")
	fs.StringVar(&opts.sqlitePath, "sqlite", "", "open a sqlite database file as a source")
	fs.StringVar(&opts.url, "url", "", "open a basable backend url as a source")
	fs.DurationVar(&opts.timeout, "timeout", 0, "per request fetch timeout (overrides fetch_timeout)")
	fs.IntVar(&opts.pageSize, "page-size", 0, "rows per page (overrides page_size)")
	fs.StringVar(&opts.logFile, "log", "", "log file, - for stderr (overrides log_file)")
	fs.BoolVar(&opts.verbose, "v", false, "debug logging")

	switch name {
	case "basable":
		fs.StringVar(&opts.table, "table", "", "table to open on start")
	case "serve":
		fs.StringVar(&opts.listen, "listen", "", "listen address (overrides listen_addr)")
	case "dump":
		fs.StringVar(&opts.table, "table", "", "table to dump")
		fs.IntVar(&opts.offset, "offset", 0, "first row to dump")
		fs.BoolVar(&opts.raw, "raw", false, "dump the loaded snapshot structure")
	}
	return fs
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		color.New(color.FgRed).Fprintf(os.Stderr, "basable: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	command := "basable"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}

	switch command {
	case "basable", "tui":
		return runCommand("basable", args, stderr, runTUI)
	case "serve":
		return runCommand("serve", args, stderr, func(opts *cliOptions, cfg *Config, logger *slog.Logger) error {
			return runServe(opts, cfg, logger, stdout)
		})
	case "dump":
		return runCommand("dump", args, stderr, func(opts *cliOptions, cfg *Config, logger *slog.Logger) error {
			return runDump(opts, cfg, logger, stdout)
		})
	case "help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func runCommand(name string, args []string, stderr io.Writer, fn func(*cliOptions, *Config, *slog.Logger) error) error {
	opts := &cliOptions{}
	fs := newFlagSet(name, opts, stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger, closeLog, err := SetupLogger(cfg, level)
	if err != nil {
		return err
	}
	defer closeLog()

	logger.Debug("config loaded", "path", cfg.Path(), "sources", len(cfg.Sources))
	return fn(opts, cfg, logger)
}

// loadConfig reads the config file and applies command line overrides.
func loadConfig(opts *cliOptions) (*Config, error) {
	cfg, err := LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.timeout > 0 {
		cfg.FetchTimeout = Duration(opts.timeout)
	}
	if opts.pageSize > 0 {
		cfg.PageSize = opts.pageSize
	}
	if opts.logFile != "" {
		cfg.LogFile = opts.logFile
	}
	if opts.listen != "" {
		cfg.ListenAddr = opts.listen
	}

	if opts.sqlitePath != "" {
		name := strings.TrimSuffix(filepath.Base(opts.sqlitePath), filepath.Ext(opts.sqlitePath))
		if err := cfg.AddSource(&SourceConfig{Name: name, Type: SourceSQLite, Path: opts.sqlitePath}); err != nil {
			return nil, err
		}
		if opts.source == "" {
			opts.source = name
		}
	}
	if opts.url != "" {
		name := "backend"
		if err := cfg.AddSource(&SourceConfig{Name: name, Type: SourceHTTP, URL: opts.url}); err != nil {
			return nil, err
		}
		if opts.source == "" {
			opts.source = name
		}
	}
	if opts.source != "" {
		if _, ok := cfg.Source(opts.source); !ok {
			return nil, fmt.Errorf("no source named %q in %s", opts.source, cfg.Path())
		}
	}
	return cfg, nil
}

func runTUI(opts *cliOptions, cfg *Config, logger *slog.Logger) error {
	if len(cfg.Sources) == 0 {
		return fmt.Errorf("no sources configured: add one to %s or pass -sqlite / -url", cfg.Path())
	}

	app := NewApp(cfg, logger, AppOptions{
		InitialSource: opts.source,
		InitialTable:  opts.table,
	})
	defer app.Close()

	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("application error: %w", err)
	}
	return nil
}

func runServe(opts *cliOptions, cfg *Config, logger *slog.Logger, stdout io.Writer) error {
	server, err := NewServer(cfg, opts.source, nil, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		color.New(color.FgGreen).Fprintf(stdout, "serving %s on %s/core\n", server.defaultSource, cfg.ListenAddr)
		return server.Listen(cfg.ListenAddr)
	})
	g.Go(func() error {
		<-ctx.Done()
		color.New(color.FgYellow).Fprintln(stdout, "shutting down")
		return server.Shutdown()
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	return nil
}

func runDump(opts *cliOptions, cfg *Config, logger *slog.Logger, stdout io.Writer) error {
	name := opts.source
	if name == "" {
		sources := cfg.SortedSources()
		if len(sources) == 0 {
			return fmt.Errorf("no sources configured: add one to %s or pass -sqlite / -url", cfg.Path())
		}
		name = sources[0].Name
	}
	srcCfg, _ := cfg.Source(name)

	source, err := NewTableSource(srcCfg, logger)
	if err != nil {
		return err
	}
	defer source.Close()

	return dumpTable(stdout, source, cfg, dumpOptions{
		tableID: opts.table,
		page:    Page{Limit: cfg.PageSize, Offset: opts.offset},
		raw:     opts.raw,
	}, logger)
}

// Package main is the kilimo CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/kilimo/internal/cli"
	"github.com/hyperjump/kilimo/internal/config"
	"github.com/hyperjump/kilimo/internal/dataset"
	"github.com/hyperjump/kilimo/internal/models"
	"github.com/hyperjump/kilimo/internal/search"
	"github.com/hyperjump/kilimo/internal/server"
	"github.com/hyperjump/kilimo/internal/storage"
	"github.com/hyperjump/kilimo/internal/watcher"
	"github.com/hyperjump/kilimo/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/kilimo/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory; if that exists it is used, so that
// "kilimo server" from a project dir picks up the project's config.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	if path == defaultConfigPath {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			// No config anywhere: run on defaults against ./qadatav2.xlsx.
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ask":
		runAsk()
	case "summary":
		runSummary()
	case "counties":
		runCounties()
	case "import":
		runImport()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kilimo version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (reloads, watcher events, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.String("dataset_source", cfg.Dataset.Source),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.NewServer(components.Engine, &cfg.Server, logger)
	// A missing or broken dataset at startup is not fatal: dashboards answer 503
	// until a reload succeeds.
	if _, err := srv.Reload(ctx); err != nil {
		logger.Warn("initial dataset load failed", zap.String("source", components.Source.Name()), zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	if cfg.Dataset.Source == config.SourceFile && cfg.Watch.EnabledOrDefault() {
		watchOpts := []watcher.WatcherOption{watcher.WithDebounce(cfg.Watch.Debounce)}
		if debugMode {
			watchOpts = append(watchOpts, watcher.WithLogger(logger))
		}
		watchSvc := watcher.NewWatcher(
			[]string{cfg.Dataset.Path},
			func(path string) {
				if _, err := srv.Reload(gctx); err != nil {
					logger.Warn("watch reload failed", zap.String("path", path), zap.Error(err))
				}
			},
			watchOpts...,
		)
		logger.Info("watching dataset", zap.Strings("files", watchSvc.Files()), zap.Duration("debounce", cfg.Watch.Debounce))
		g.Go(func() error { return watchSvc.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Shut down")
}

// printAskUsage prints ask subcommand usage.
func printAskUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: kilimo ask [flags] <question>\n\n")
	fmt.Fprintf(fs.Output(), "The question is all remaining arguments joined by spaces.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
The best matching past question is shown with its stored answer.
  • Use --limit to also show the next best matches.
  • Use --server "" to answer from the dataset directly when no server is running.

Examples:
  kilimo ask how do i control fall armyworm
  kilimo ask "best feed for dairy cows" --limit 3
  kilimo ask --output json when to plant beans
`)
}

// buildAskQuery joins all positional args with spaces so multi-word questions
// work the same with or without shell quoting.
func buildAskQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the question
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument, so "kilimo ask maize -limit 3" would
// otherwise leave -limit unparsed.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func parseFormat(s string) cli.OutputFormat {
	format, err := cli.ParseOutputFormat(s)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return format
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = answer from the dataset directly)")
	limit := fs.Int("limit", 0, "number of answers, best match included (default from config)")
	outputFormat := fs.String("output", "text", "output format: text (human-readable), compact (one answer per line), or json (parseable)")
	fs.Usage = func() { printAskUsage(fs) }
	_ = fs.Parse(argsReorder(os.Args[2:]))

	question := buildAskQuery(fs.Args())
	if question == "" {
		printAskUsage(fs)
		os.Exit(1)
	}
	format := parseFormat(*outputFormat)
	ask := &models.AskQuery{Query: question, Limit: *limit}

	var (
		response *models.AskResponse
		err      error
	)
	if *serverURL != "" {
		response, err = askViaHTTP(*serverURL, ask)
	} else {
		response, err = withEngine(*configPath, func(ctx context.Context, c *Components) (*models.AskResponse, error) {
			return c.Engine.Ask(ctx, ask)
		})
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteAskResponse(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// errNoSimilarQuestion is what the server's 404 on ask means.
var errNoSimilarQuestion = errors.New("no similar question found")

func askViaHTTP(serverURL string, ask *models.AskQuery) (*models.AskResponse, error) {
	body, err := json.Marshal(ask)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/ask", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, errNoSimilarQuestion
	}
	var response models.AskResponse
	if err := decodeResponse(resp, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

func decodeResponse(resp *http.Response, v any) error {
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func getJSON(serverURL, path string, v any) error {
	resp, err := http.Get(serverURL + path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, v)
}

func runSummary() {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read the dataset directly)")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	_ = fs.Parse(os.Args[2:])
	format := parseFormat(*outputFormat)

	var (
		summary *models.Summary
		err     error
	)
	if *serverURL != "" {
		summary = &models.Summary{}
		err = getJSON(*serverURL, "/api/v1/summary", summary)
	} else {
		summary, err = withEngine(*configPath, func(_ context.Context, c *Components) (*models.Summary, error) {
			return c.Engine.Summary()
		})
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Summary failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSummary(os.Stdout, summary, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runCounties() {
	fs := flag.NewFlagSet("counties", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read the dataset directly)")
	county := fs.String("county", "", "list the records of this county instead of the counts")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	_ = fs.Parse(os.Args[2:])
	format := parseFormat(*outputFormat)

	if *county != "" {
		runCountyRecords(*configPath, *serverURL, *county, format)
		return
	}

	var (
		counts []models.ValueCount
		err    error
	)
	if *serverURL != "" {
		var out struct {
			Counties []models.ValueCount `json:"counties"`
		}
		err = getJSON(*serverURL, "/api/v1/counties", &out)
		counts = out.Counties
	} else {
		counts, err = withEngine(*configPath, func(_ context.Context, c *Components) ([]models.ValueCount, error) {
			return c.Engine.Counties()
		})
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Counties failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteCounties(os.Stdout, counts, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runCountyRecords(configPath, serverURL, county string, format cli.OutputFormat) {
	var (
		records []*models.Record
		err     error
	)
	if serverURL != "" {
		var out struct {
			Records []*models.Record `json:"records"`
		}
		err = getJSON(serverURL, countyRecordsPath(county), &out)
		records = out.Records
	} else {
		records, err = withEngine(configPath, func(_ context.Context, c *Components) ([]*models.Record, error) {
			return c.Engine.CountyRecords(county)
		})
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "County records failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteRecords(os.Stdout, records, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read the dataset directly)")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	_ = fs.Parse(os.Args[2:])
	format := parseFormat(*outputFormat)

	var (
		status *models.Status
		err    error
	)
	if *serverURL != "" {
		status = &models.Status{}
		err = getJSON(*serverURL, "/api/v1/status", status)
	} else {
		status, err = withEngine(*configPath, func(ctx context.Context, c *Components) (*models.Status, error) {
			return c.Engine.Status(ctx)
		})
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// importName is the source name an import is stored under: the -as flag when
// given, otherwise the cleaned file path as typed.
func importName(as, path string) string {
	if as = strings.TrimSpace(as); as != "" {
		return as
	}
	return filepath.Clean(path)
}

func runImport() {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	as := fs.String("as", "", "source name to store the records under (default: the file path)")
	sheet := fs.String("sheet", "", "worksheet to read (default from config, or the first sheet)")
	list := fs.Bool("list", false, "list imported sources and their record counts")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *list {
		if err := listImports(context.Background(), cfg.Storage.DatabasePath, os.Stdout); err != nil {
			fmt.Printf("List failed: %v\n", err)
			os.Exit(1)
		}
		return
	}
	path := cfg.Dataset.Path
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	if path == "" {
		fmt.Println("Usage: kilimo import [flags] <file.xlsx|file.csv>")
		os.Exit(1)
	}
	if *sheet == "" {
		*sheet = cfg.Dataset.Sheet
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Fatal("Failed to open storage", zap.Error(err))
	}
	defer store.Close()

	name := importName(*as, path)
	src := &namedSource{
		Source: &dataset.FileSource{Path: path, Format: cfg.Dataset.Format, Sheet: *sheet, Columns: columnsFromConfig(cfg)},
		name:   name,
	}
	n, err := search.Import(context.Background(), src, store)
	if err != nil {
		fmt.Printf("Import failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Imported %d record(s) from %s as %q\n", n, path, name)
	fmt.Printf("Serve them with dataset.source: %s and dataset.path: %q\n", config.SourceDatabase, name)
}

// listImports prints each imported source name with its record count.
func listImports(ctx context.Context, dbPath string, w io.Writer) error {
	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	sources, err := store.Sources(ctx)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		fmt.Fprintln(w, "No imported sources")
		return nil
	}
	for _, name := range sources {
		n, err := store.CountRecords(ctx, name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\n", name, n)
	}
	return nil
}

// namedSource loads through Source but stores under a different name.
type namedSource struct {
	dataset.Source
	name string
}

func (s *namedSource) Name() string { return s.name }

func (s *namedSource) Load(ctx context.Context) (*dataset.Dataset, error) {
	ds, err := s.Source.Load(ctx)
	if err != nil {
		return nil, err
	}
	ds.Source = s.name
	return ds, nil
}

// Components holds initialized services.
type Components struct {
	Storage storage.Storage
	Source  dataset.Source
	Engine  *search.Engine
}

func (c *Components) Close() {
	if c.Engine != nil {
		_ = c.Engine.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func columnsFromConfig(cfg *config.Config) dataset.Columns {
	c := cfg.Dataset.Columns
	return dataset.Columns{
		Question:   c.Question,
		Answer:     c.Answer,
		CustomerID: c.CustomerID,
		County:     c.County,
		About:      c.About,
		Category:   c.Category,
		Response:   c.Response,
	}
}

// buildSource returns the dataset source named by cfg.Dataset.Source.
func buildSource(cfg *config.Config, store storage.Storage) (dataset.Source, error) {
	d := cfg.Dataset
	cols := columnsFromConfig(cfg)
	switch d.Source {
	case config.SourceFile, "":
		return &dataset.FileSource{Path: d.Path, Format: d.Format, Sheet: d.Sheet, Columns: cols}, nil
	case config.SourceObject:
		o := d.Object
		format := d.Format
		if format == "" {
			format = dataset.FormatFromName(o.Key)
		}
		return dataset.NewObjectSource(dataset.ObjectConfig{
			Endpoint:        o.Endpoint,
			Bucket:          o.Bucket,
			Key:             o.Key,
			Region:          o.Region,
			AccessKeyID:     o.AccessKeyID,
			SecretAccessKey: o.SecretAccessKey,
			UseSSL:          o.UseSSLOrDefault(),
		}, format, d.Sheet, cols)
	case config.SourceDatabase:
		if store == nil {
			return nil, fmt.Errorf("dataset source %q needs storage.database_path", config.SourceDatabase)
		}
		return dataset.NewStoreSource(store, d.Path), nil
	default:
		return nil, fmt.Errorf("unknown dataset source %q", d.Source)
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	var store storage.Storage
	if cfg.Storage.DatabasePath != "" {
		s, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		store = s
	}
	src, err := buildSource(cfg, store)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, fmt.Errorf("failed to initialize dataset source: %w", err)
	}
	return &Components{
		Storage: store,
		Source:  src,
		Engine:  search.NewEngine(src, store, cfg, logger),
	}, nil
}

// withEngine loads config, builds the engine, loads the dataset once and calls fn.
func withEngine[T any](configPath string, fn func(context.Context, *Components) (T, error)) (T, error) {
	var zero T
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return zero, fmt.Errorf("load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return zero, fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return zero, err
	}
	defer components.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if _, err := components.Engine.Reload(ctx); err != nil {
		return zero, fmt.Errorf("load dataset %s: %w", components.Source.Name(), err)
	}
	return fn(ctx, components)
}

// countyRecordsPath is the API path for one county's records.
func countyRecordsPath(county string) string {
	return "/api/v1/counties/" + url.PathEscape(county) + "/records"
}

func printUsage() {
	fmt.Println(`kilimo - Farmer advisory question answering

Usage:
  kilimo server [flags]             Start the HTTP server
  kilimo ask [flags] <question>     Find the most similar past question and its answer
  kilimo summary [flags]            Show total queries, unique farmers and counties
  kilimo counties [flags]           Show query counts per county, or one county's records
  kilimo import [flags] [file]      Store a spreadsheet in the database
  kilimo status [flags]             Show the loaded dataset and matcher state
  kilimo version                    Show version
  kilimo help                       Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kilimo/config.yaml)
  --debug            Enable debug logging

Ask Flags:
  --config string    Config file path (for direct mode)
  --server string    Server URL (default: http://localhost:8080). Use --server "" to read the dataset directly.
  --limit int        Number of answers, best match included (max 10)
  --output string    Output format: text, compact, or json (default: text)

Summary, Counties and Status Flags:
  --config string    Config file path (for direct mode)
  --server string    Server URL (default: http://localhost:8080). Use --server "" to read the dataset directly.
  --output string    Output format: text, compact, or json (default: text)

Counties Flags:
  --county string    List the records of this county instead of the counts

Import Flags:
  --config string    Config file path
  --as string        Source name to store the records under (default: the file path)
  --sheet string     Worksheet to read (default: first sheet)
  --list             List imported sources and their record counts

Examples:
  kilimo server
  kilimo ask how do i control fall armyworm
  kilimo ask --limit 3 --output json "best feed for dairy cows"
  kilimo ask --server "" when to plant beans
  kilimo counties --output compact
  kilimo counties --county Nakuru
  kilimo import --as advisory-2024 ./qadatav2.xlsx
  kilimo status --output json`)
}

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-archive/config"
	"github.com/aluiziolira/go-scrape-archive/models"
	"github.com/aluiziolira/go-scrape-archive/pipeline"
	"github.com/aluiziolira/go-scrape-archive/scraper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	f := newScraperFlags(flag.CommandLine, config.DefaultConfig())
	flag.Parse()

	cfg, err := resolveConfig(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolving configuration: %v\n", err)
		os.Exit(1)
	}

	promptMissing(cfg)
	if cfg.MaxStories < 0 {
		cfg.MaxStories = config.DefaultConfig().MaxStories
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening log file: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("starting scrape",
		slog.String("search_url", cfg.SearchURL),
		slog.Int("stories", cfg.MaxStories),
		slog.String("output", cfg.OutputFile),
	)

	s, err := scraper.NewScraper(cfg)
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		os.Exit(1)
	}

	writer, err := createWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		slog.Error("creating writer", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, finishing in-flight work")
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" && s.Metrics != nil {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	p := pipeline.NewPipeline(writer)
	p.Start()

	result, runErr := s.Run(ctx, p)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("scrape ended early", slog.Any("error", runErr))
	}
	if result == nil {
		p.Close()
		os.Exit(1)
	}

	if err := p.Close(); err != nil {
		slog.Error("pipeline shutdown failed", slog.Any("error", err))
		os.Exit(1)
	}

	if result.Stories > 0 {
		if err := writer.Validate(); err != nil {
			slog.Error("output validation failed", slog.Any("error", err))
			os.Exit(1)
		}
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(result, cfg.OutputFile)
}

// scraperFlags holds the command-line values together with the flag set
// that parsed them, so resolveConfig can tell set flags from defaults.
type scraperFlags struct {
	fs *flag.FlagSet

	searchURL      string
	maxStories     int
	configFile     string
	delayMs        int
	timeoutMs      int
	maxRetries     int
	retryDelayMs   int
	outputFile     string
	outputFormat   string
	contentDir     string
	downloadFormat string
	logFile        string
	respectRobots  bool
	verbose        bool
	metricsAddr    string
}

func newScraperFlags(fs *flag.FlagSet, defaults *config.Config) *scraperFlags {
	f := &scraperFlags{fs: fs}
	fs.StringVar(&f.searchURL, "url", defaults.SearchURL, "Search results URL containing page=1 (prompted when empty)")
	fs.IntVar(&f.maxStories, "count", -1, "Number of stories to scrape (prompted when not provided)")
	fs.StringVar(&f.configFile, "config", "", "Optional YAML config file")
	fs.IntVar(&f.delayMs, "delay", int(defaults.Delay/time.Millisecond), "Delay between requests (milliseconds)")
	fs.IntVar(&f.timeoutMs, "timeout", int(defaults.Timeout/time.Millisecond), "Request timeout (milliseconds)")
	fs.IntVar(&f.maxRetries, "max-retries", defaults.MaxRetries, "Maximum fetch attempts per URL")
	fs.IntVar(&f.retryDelayMs, "retry-delay", int(defaults.RetryDelay/time.Millisecond), "Delay between retry attempts (milliseconds)")
	fs.StringVar(&f.outputFile, "output", defaults.OutputFile, "Output file path")
	fs.StringVar(&f.outputFormat, "format", defaults.OutputFormat, "Output format: csv, json, dual, or sqlite")
	fs.StringVar(&f.contentDir, "content-dir", defaults.ContentDir, "Directory for downloaded content files")
	fs.StringVar(&f.downloadFormat, "download-format", defaults.DownloadFormat, "Content download format: epub, mobi, pdf, or html")
	fs.StringVar(&f.logFile, "log-file", defaults.LogFile, "Append-only log file path")
	fs.BoolVar(&f.respectRobots, "respect-robots", defaults.RespectRobotsTxt, "Respect robots.txt directives")
	fs.BoolVar(&f.verbose, "v", false, "Enable verbose logging")
	fs.StringVar(&f.metricsAddr, "metrics-addr", defaults.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	return f
}

// resolveConfig layers configuration sources in increasing precedence:
// built-in defaults, the YAML config file, SCRAPER_* environment
// variables, then flags the user explicitly set. MaxStories stays
// negative when no source supplies it so the caller can prompt.
func resolveConfig(f *scraperFlags) (*config.Config, error) {
	cfg := config.DefaultConfig()
	cfg.MaxStories = -1

	if err := config.LoadFile(f.configFile, cfg); err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "url":
			cfg.SearchURL = f.searchURL
		case "count":
			cfg.MaxStories = f.maxStories
		case "delay":
			cfg.Delay = time.Duration(f.delayMs) * time.Millisecond
		case "timeout":
			cfg.Timeout = time.Duration(f.timeoutMs) * time.Millisecond
		case "max-retries":
			cfg.MaxRetries = f.maxRetries
		case "retry-delay":
			cfg.RetryDelay = time.Duration(f.retryDelayMs) * time.Millisecond
		case "output":
			cfg.OutputFile = f.outputFile
		case "format":
			cfg.OutputFormat = strings.ToLower(f.outputFormat)
		case "content-dir":
			cfg.ContentDir = f.contentDir
		case "download-format":
			cfg.DownloadFormat = strings.ToLower(f.downloadFormat)
		case "log-file":
			cfg.LogFile = f.logFile
		case "respect-robots":
			cfg.RespectRobotsTxt = f.respectRobots
		case "v":
			cfg.Verbose = f.verbose
		case "metrics-addr":
			cfg.MetricsAddr = f.metricsAddr
		}
	})

	return cfg, nil
}

func applyEnv(cfg *config.Config) error {
	if value, ok := config.EnvString("SCRAPER_URL"); ok {
		cfg.SearchURL = value
	}
	if value, ok, err := config.EnvInt("SCRAPER_COUNT"); err != nil {
		return fmt.Errorf("invalid SCRAPER_COUNT: %w", err)
	} else if ok {
		cfg.MaxStories = value
	}
	if value, ok := config.EnvString("SCRAPER_OUTPUT"); ok {
		cfg.OutputFile = value
	}
	if value, ok := config.EnvString("SCRAPER_METRICS_ADDR"); ok {
		cfg.MetricsAddr = value
	}
	return nil
}

// promptMissing asks interactively for values not supplied by flags,
// env, or config file.
func promptMissing(cfg *config.Config) {
	reader := bufio.NewReader(os.Stdin)
	if cfg.SearchURL == "" {
		fmt.Print("Enter the search results link (with page=1): ")
		if line, err := reader.ReadString('\n'); err == nil {
			cfg.SearchURL = strings.TrimSpace(line)
		}
	}
	if cfg.MaxStories < 0 {
		fmt.Print("Enter the number of stories to scrape: ")
		if line, err := reader.ReadString('\n'); err == nil {
			if value, err := strconv.Atoi(strings.TrimSpace(line)); err == nil {
				cfg.MaxStories = value
			}
		}
	}
}

func createWriter(format, filename string) (pipeline.OutputWriter, error) {
	switch format {
	case "json":
		return pipeline.NewJSONWriter(filename)
	case "csv":
		return pipeline.NewCSVWriter(filename)
	case "dual":
		jsonFilename := strings.TrimSuffix(filename, ".csv") + ".json"
		return pipeline.NewDualWriter(filename, jsonFilename)
	case "sqlite":
		return pipeline.NewSQLiteWriter(filename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func printSummary(result *models.ScrapeResult, outputFile string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")
	fmt.Printf("  Stories:       %d\n", result.Stories)
	fmt.Printf("  Downloads:     %d\n", result.Downloads)
	fmt.Printf("  Pages:         %d\n", result.Pages)
	fmt.Printf("  Requests:      %d\n", result.RequestCount)
	fmt.Printf("  Errors:        %d\n", result.ErrorCount)
	fmt.Printf("  Retries:       %d\n", result.RetryCount)
	fmt.Printf("  Failed URLs:   %d\n", len(result.FailedURLs))
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
	}
	fmt.Printf("  Duration:      %v\n", result.EndTime.Sub(result.StartTime).Round(time.Millisecond))
	fmt.Printf("  Output file:   %s\n", outputFile)
	fmt.Println(separator)
}

// newLogger logs to the console and tees everything into the append-only
// log file, matching where operators expect to find retry history.
func newLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}

	out := io.Writer(os.Stdout)
	closeLog := func() {}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, err
		}
		out = io.MultiWriter(os.Stdout, f)
		closeLog = func() { f.Close() }
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler), closeLog, nil
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-products/config"
	"github.com/aluiziolira/go-scrape-products/logging"
	"github.com/aluiziolira/go-scrape-products/models"
	"github.com/aluiziolira/go-scrape-products/scraper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	os.Exit(run())
}

func run() int {
	defaultCfg := config.DefaultConfig()
	pagesDefault := defaultCfg.MaxPages
	if value, ok, err := config.EnvInt("SCRAPER_PAGES"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid SCRAPER_PAGES: %v\n", err)
		return 1
	} else if ok {
		pagesDefault = value
	}
	timeoutDefault := defaultCfg.Timeout
	if value, ok, err := config.EnvDuration("SCRAPER_TIMEOUT"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid SCRAPER_TIMEOUT: %v\n", err)
		return 1
	} else if ok {
		timeoutDefault = value
	}
	outputDefault := defaultCfg.OutputDir
	if value, ok := config.EnvString("SCRAPER_OUTPUT_DIR"); ok {
		outputDefault = value
	}
	tokenDefault, _ := config.EnvString("SCRAPER_TOKEN")
	metricsDefault, _ := config.EnvString("SCRAPER_METRICS_ADDR")

	baseURL := flag.String("base-url", defaultCfg.BaseURL, "Base URL used to resolve links and images")
	startURL := flag.String("start-url", defaultCfg.StartURL, "First page to fetch (empty = the base URL)")
	maxPages := flag.Int("pages", pagesDefault, "Maximum catalogue pages to scrape (0 = no limit)")
	timeout := flag.Duration("timeout", timeoutDefault, "Per-request timeout")
	outputDir := flag.String("output-dir", outputDefault, "Directory for JSON/CSV results")
	downloadDir := flag.String("download-dir", defaultCfg.DownloadDir, "Directory for product images")
	logDir := flag.String("log-dir", defaultCfg.LogDir, "Directory for the run log")
	name := flag.String("name", defaultCfg.OutputName, "Base name of the result and log files")
	outputFormat := flag.String("format", defaultCfg.OutputFormat, "Output format: csv, json, or dual")
	selectorsFile := flag.String("selectors", "", "JSON file with product, name, price, image, rating and next_page selectors")
	imageWorkers := flag.Int("image-workers", defaultCfg.ImageWorkers, "Concurrent image downloads per page")
	token := flag.String("token", tokenDefault, "Bearer token sent with every request")
	webhookURL := flag.String("webhook", "", "URL that receives the results as JSON when the run ends")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	cfg := config.DefaultConfig()
	cfg.BaseURL = *baseURL
	cfg.StartURL = *startURL
	cfg.MaxPages = *maxPages
	cfg.Timeout = *timeout
	cfg.OutputDir = *outputDir
	cfg.DownloadDir = *downloadDir
	cfg.LogDir = *logDir
	cfg.OutputName = *name
	cfg.OutputFormat = strings.ToLower(*outputFormat)
	cfg.ImageWorkers = *imageWorkers
	cfg.AuthToken = *token
	cfg.WebhookURL = *webhookURL
	cfg.WebhookToken = *token
	cfg.MetricsAddr = *metricsAddr
	cfg.Verbose = *verbose
	if *selectorsFile != "" {
		selectors, err := config.LoadSelectors(*selectorsFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "loading selectors: %v\n", err)
			return 1
		}
		cfg.Selectors = selectors
	}

	logger, closeLog, err := logging.New(cfg.OutputName, cfg.LogDir, cfg.Verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "initialising logger: %v\n", err)
		return 1
	}
	defer closeLog()
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.Any("error", err))
		return 1
	}

	s, err := scraper.NewScraper(cfg, logger)
	if err != nil {
		logger.Error("initialising scraper", slog.Any("error", err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		logger.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	startTime := time.Now()
	result, runErr := s.Run(ctx)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	if result != nil {
		printSummary(result, time.Since(startTime))
	}
	if runErr != nil {
		logger.Error("scrape finished with errors", slog.Any("error", runErr))
		return 1
	}
	return 0
}

func printSummary(result *models.ScraperResult, duration time.Duration) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")
	fmt.Printf("  Products:      %d\n", len(result.Products))
	fmt.Printf("  Pages:         %d\n", result.PageCount)
	fmt.Printf("  Stop reason:   %s\n", result.StopReason)
	fmt.Printf("  Requests:      %d\n", result.RequestCount)
	fmt.Printf("  Errors:        %d\n", result.ErrorCount)
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
	}
	fmt.Printf("  Images:        %d saved, %d failed\n", result.ImagesDownloaded, result.ImageFailures)
	if result.SkippedItems > 0 {
		fmt.Printf("  Skipped:       %d\n", result.SkippedItems)
	}
	fmt.Printf("  Duration:      %v\n", duration)
	for _, path := range result.OutputFiles {
		fmt.Printf("  Output file:   %s\n", path)
	}
	fmt.Println(separator)
}

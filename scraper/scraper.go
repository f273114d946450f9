package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-scrape-products/config"
	"github.com/aluiziolira/go-scrape-products/httpclient"
	"github.com/aluiziolira/go-scrape-products/models"
	"github.com/aluiziolira/go-scrape-products/parser"
	"github.com/aluiziolira/go-scrape-products/pipeline"
	"github.com/gocolly/colly/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Scraper walks a paginated catalogue one page at a time, extracts products,
// downloads their images and persists the collected records.
type Scraper struct {
	cfg       *config.Config
	base      *url.URL
	collector *colly.Collector
	client    *httpclient.Client
	writer    pipeline.OutputWriter
	logger    *slog.Logger
	Metrics   *Metrics

	requestCount int64
	errorCount   int64
	imagesOK     int64
	imagesFailed int64

	mu           sync.Mutex
	errorsByType map[string]int
}

// session is the state of one Run.
type session struct {
	currentURL string
	pageCount  int
	skipped    int
	products   []*models.Product
}

// NewScraper builds a scraper instance configured from cfg. A nil logger
// falls back to slog.Default().
func NewScraper(cfg *config.Config, logger *slog.Logger) (*Scraper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	writer, err := pipeline.NewWriter(cfg.OutputFormat, cfg.OutputDir, cfg.OutputName)
	if err != nil {
		return nil, fmt.Errorf("create writer: %w", err)
	}

	client := httpclient.New(httpclient.Options{
		UserAgent: cfg.UserAgent,
		AuthToken: cfg.AuthToken,
		Headers:   cfg.Headers,
		Timeout:   cfg.Timeout,
		Logger:    logger,
	})

	// Pages are fetched synchronously, one at a time. Revisits are allowed
	// here because the run loop tracks visited pages itself.
	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.IgnoreRobotsTxt = true
	// Status codes are judged in FetchPage: only 4xx and 5xx fail a page.
	collector.ParseHTTPErrorResponse = true
	collector.SetRequestTimeout(client.Timeout())
	collector.SetRedirectHandler(client.CheckRedirect)
	collector.WithTransport(client.Transport())

	s := &Scraper{
		cfg:          cfg,
		base:         parsed,
		collector:    collector,
		client:       client,
		writer:       writer,
		logger:       logger,
		Metrics:      NewMetrics(),
		errorsByType: make(map[string]int),
	}
	s.configureHandlers()
	return s, nil
}

// WithTransport routes page fetches and image downloads through rt.
func (s *Scraper) WithTransport(rt http.RoundTripper) {
	s.client.SetTransport(rt)
	s.collector.WithTransport(rt)
}

// Client returns the HTTP client used for downloads and the webhook.
func (s *Scraper) Client() *httpclient.Client {
	return s.client
}

// Run scrapes from the configured start URL until there is no next link, the
// page cap is reached, a page cannot be fetched or ctx is done. Whatever was
// collected is persisted once after the loop. Fetch, extraction and download
// failures never surface as errors; the returned error only reports a failed
// write, and the result is returned either way.
func (s *Scraper) Run(ctx context.Context) (*models.ScraperResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.reset()

	visited, err := lru.New[string, struct{}](s.cfg.VisitedCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create visited cache: %w", err)
	}

	result := &models.ScraperResult{StartTime: time.Now()}
	sess := &session{currentURL: s.cfg.EntryURL()}

	s.logger.Info("starting scrape",
		slog.String("start_url", sess.currentURL),
		slog.Int("max_pages", s.cfg.MaxPages),
	)

	for {
		if sess.currentURL == "" {
			result.StopReason = models.StopNoNextLink
			break
		}
		if s.cfg.MaxPages > 0 && sess.pageCount >= s.cfg.MaxPages {
			result.StopReason = models.StopPageCap
			break
		}
		if ctx.Err() != nil {
			result.StopReason = models.StopCanceled
			break
		}
		if visited.Contains(sess.currentURL) {
			s.logger.Warn("pagination loops back to a visited page", slog.String("url", sess.currentURL))
			result.StopReason = models.StopPageCycle
			break
		}
		visited.Add(sess.currentURL, struct{}{})

		products, next, err := s.scrapePage(ctx, sess)
		if err != nil {
			s.recordError(err)
			s.logger.Error("failed to fetch page, stopping",
				slog.String("url", sess.currentURL),
				slog.String("category", httpclient.Label(err)),
				slog.Any("error", err),
			)
			result.StopReason = models.StopFetchFailed
			break
		}

		sess.products = append(sess.products, products...)
		sess.pageCount++
		s.Metrics.IncPages()
		s.logger.Info("page scraped",
			slog.String("url", sess.currentURL),
			slog.Int("page", sess.pageCount),
			slog.Int("products", len(products)),
		)
		sess.currentURL = next
	}

	result.Products = sess.products
	result.PageCount = sess.pageCount
	result.SkippedItems = sess.skipped
	result.LastURL = sess.currentURL

	persistErr := s.persist(ctx, result)

	result.EndTime = time.Now()
	result.RequestCount = int(atomic.LoadInt64(&s.requestCount))
	result.ErrorCount = int(atomic.LoadInt64(&s.errorCount))
	result.ImagesDownloaded = int(atomic.LoadInt64(&s.imagesOK))
	result.ImageFailures = int(atomic.LoadInt64(&s.imagesFailed))
	result.ErrorsByType = s.snapshotErrors()

	s.logger.Info("scrape finished",
		slog.String("stop_reason", string(result.StopReason)),
		slog.Int("pages", result.PageCount),
		slog.Int("products", len(result.Products)),
	)
	return result, persistErr
}

// scrapePage runs fetch, parse, extract and download for one page and returns
// its products and the next page URL ("" when there is none).
func (s *Scraper) scrapePage(ctx context.Context, sess *session) ([]*models.Product, string, error) {
	html, err := s.FetchPage(sess.currentURL)
	if err != nil {
		return nil, "", err
	}
	doc, err := parser.Parse(html)
	if err != nil {
		return nil, "", fmt.Errorf("parse %s: %w", sess.currentURL, err)
	}

	var products []*models.Product
	for _, item := range ExtractProducts(doc, s.cfg.Selectors) {
		if item.Err != nil {
			sess.skipped++
			s.Metrics.IncSkipped()
			s.logger.Error("skipping product container",
				slog.String("url", sess.currentURL),
				slog.Int("index", item.Index),
				slog.Any("error", item.Err),
			)
			continue
		}
		products = append(products, item.Product)
	}
	s.Metrics.AddItems(len(products))

	s.downloadImages(ctx, products)

	return products, s.nextPage(doc), nil
}

// FetchPage issues a GET for pageURL through the collector and returns the
// body. Failures are *httpclient.Error values.
func (s *Scraper) FetchPage(pageURL string) (string, error) {
	reqCtx := colly.NewContext()
	hdr := s.client.Headers(http.MethodGet, nil, "")
	err := s.collector.Request(http.MethodGet, pageURL, nil, reqCtx, hdr)
	status, _ := reqCtx.GetAny("status").(int)
	if err != nil {
		return "", httpclient.ClassifyURL(err, status, pageURL)
	}
	if status >= http.StatusBadRequest {
		return "", httpclient.ClassifyURL(nil, status, pageURL)
	}
	body, _ := reqCtx.GetAny("body").([]byte)
	s.logger.Info("successfully fetched", slog.String("url", pageURL))
	return string(body), nil
}

func (s *Scraper) nextPage(doc *parser.Document) string {
	link, err := doc.SelectOne(s.cfg.Selectors.NextPage)
	if err != nil {
		s.logger.Error("next page selector failed", slog.Any("error", err))
		return ""
	}
	if link == nil {
		return ""
	}
	href, ok := link.Attr("href")
	if !ok || href == "" {
		return ""
	}
	next, err := s.base.Parse(href)
	if err != nil {
		s.logger.Error("invalid next page link", slog.String("href", href), slog.Any("error", err))
		return ""
	}
	return next.String()
}

func (s *Scraper) persist(ctx context.Context, result *models.ScraperResult) error {
	if len(result.Products) == 0 {
		s.logger.Info("no products collected, nothing to write")
		return nil
	}
	if err := s.writer.Write(result.Products); err != nil {
		s.logger.Error("failed to write results", slog.Any("error", err))
		return fmt.Errorf("persist results: %w", err)
	}
	result.OutputFiles = s.writer.Paths()
	s.logger.Info("results written", slog.Any("files", result.OutputFiles))

	if s.cfg.WebhookURL != "" {
		// Deliver even when the run was interrupted.
		hookCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout)
		defer cancel()
		if err := pipeline.PostResults(hookCtx, s.client, s.cfg.WebhookURL, s.cfg.WebhookToken, result); err != nil {
			s.recordError(err)
			s.logger.Error("webhook delivery failed", slog.String("url", s.cfg.WebhookURL), slog.Any("error", err))
		} else {
			s.logger.Info("webhook delivered", slog.String("url", s.cfg.WebhookURL))
		}
	}
	return nil
}

func (s *Scraper) configureHandlers() {
	s.collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put("start", time.Now())
		atomic.AddInt64(&s.requestCount, 1)
		s.Metrics.IncRequest("started")
		s.logger.Debug("fetching page", slog.String("url", r.URL.String()))
	})

	s.collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put("status", r.StatusCode)
		r.Ctx.Put("body", r.Body)
		if r.StatusCode >= http.StatusBadRequest {
			s.Metrics.IncRequest("failed")
		} else {
			s.Metrics.IncRequest("completed")
		}
		s.observe(r.Ctx)
	})

	s.collector.OnError(func(r *colly.Response, err error) {
		if r == nil || r.Ctx == nil {
			return
		}
		r.Ctx.Put("status", r.StatusCode)
		s.Metrics.IncRequest("failed")
		s.observe(r.Ctx)
	})
}

func (s *Scraper) observe(ctx *colly.Context) {
	if start, ok := ctx.GetAny("start").(time.Time); ok {
		s.Metrics.ObserveDuration(time.Since(start))
	}
}

func (s *Scraper) recordError(err error) {
	atomic.AddInt64(&s.errorCount, 1)
	category := httpclient.Label(err)
	s.mu.Lock()
	s.errorsByType[category]++
	s.mu.Unlock()
	s.Metrics.IncError(category)
}

func (s *Scraper) reset() {
	atomic.StoreInt64(&s.requestCount, 0)
	atomic.StoreInt64(&s.errorCount, 0)
	atomic.StoreInt64(&s.imagesOK, 0)
	atomic.StoreInt64(&s.imagesFailed, 0)
	s.mu.Lock()
	s.errorsByType = make(map[string]int)
	s.mu.Unlock()
}

func (s *Scraper) snapshotErrors() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.errorsByType))
	for k, v := range s.errorsByType {
		out[k] = v
	}
	return out
}

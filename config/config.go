package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/aluiziolira/go-scrape-products/httpclient"
	"github.com/aluiziolira/go-scrape-products/parser"
)

// Selectors locate product data on a catalogue page. Product picks the
// containers; Name, Price, Image and Rating are evaluated inside each
// container; NextPage is evaluated against the whole page.
type Selectors struct {
	Product  string `json:"product"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	Image    string `json:"image"`
	Rating   string `json:"rating"`
	NextPage string `json:"next_page"`
}

// DefaultSelectors match the books.toscrape.com demo catalogue.
func DefaultSelectors() Selectors {
	return Selectors{
		Product:  "article.product_pod",
		Name:     "h3 a",
		Price:    "p.price_color",
		Image:    "img",
		Rating:   "p.star-rating",
		NextPage: "li.next a",
	}
}

// Validate compiles every selector.
func (s Selectors) Validate() error {
	fields := []struct {
		key, value string
	}{
		{"product", s.Product},
		{"name", s.Name},
		{"price", s.Price},
		{"image", s.Image},
		{"rating", s.Rating},
		{"next_page", s.NextPage},
	}
	var errs []error
	for _, f := range fields {
		if err := parser.CompileSelector(f.value); err != nil {
			errs = append(errs, fmt.Errorf("selector %s: %w", f.key, err))
		}
	}
	return errors.Join(errs...)
}

// LoadSelectors reads a JSON object with the six selector keys.
func LoadSelectors(path string) (Selectors, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Selectors{}, fmt.Errorf("read selectors: %w", err)
	}
	var s Selectors
	if err := json.Unmarshal(data, &s); err != nil {
		return Selectors{}, fmt.Errorf("decode selectors %s: %w", path, err)
	}
	return s, nil
}

// Config holds scraper configuration.
type Config struct {
	BaseURL  string
	StartURL string // defaults to BaseURL
	MaxPages int    // 0 means no cap

	Timeout   time.Duration
	UserAgent string
	AuthToken string
	Headers   map[string]string

	Selectors Selectors

	OutputDir    string
	OutputName   string
	OutputFormat string // csv, json, or dual
	DownloadDir  string
	LogDir       string

	ImageWorkers     int
	VisitedCacheSize int

	WebhookURL   string
	WebhookToken string
	MetricsAddr  string
	Verbose      bool
}

// DefaultConfig returns conservative defaults for the demo target.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:          "https://books.toscrape.com/catalogue/",
		StartURL:         "https://books.toscrape.com/catalogue/page-1.html",
		MaxPages:         50,
		Timeout:          10 * time.Second,
		UserAgent:        httpclient.DefaultUserAgent,
		Selectors:        DefaultSelectors(),
		OutputDir:        "output",
		OutputName:       "products",
		OutputFormat:     "dual",
		DownloadDir:      "downloads",
		LogDir:           "logs",
		ImageWorkers:     1,
		VisitedCacheSize: 1024,
	}
}

// EntryURL returns the first page to fetch.
func (c *Config) EntryURL() string {
	if c.StartURL != "" {
		return c.StartURL
	}
	return c.BaseURL
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	if err := validateURL("base URL", c.BaseURL); err != nil {
		return err
	}
	if c.StartURL != "" {
		if err := validateURL("start URL", c.StartURL); err != nil {
			return err
		}
	}

	if c.MaxPages < 0 {
		return fmt.Errorf("max pages cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if err := c.Selectors.Validate(); err != nil {
		return fmt.Errorf("invalid selectors: %w", err)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output dir cannot be empty")
	}
	if c.OutputName == "" {
		return fmt.Errorf("output name cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.DownloadDir == "" {
		return fmt.Errorf("download dir cannot be empty")
	}
	if c.ImageWorkers <= 0 {
		return fmt.Errorf("image workers must be positive")
	}
	if c.VisitedCacheSize <= 0 {
		return fmt.Errorf("visited cache size must be positive")
	}
	if c.WebhookURL != "" {
		if err := validateURL("webhook URL", c.WebhookURL); err != nil {
			return err
		}
	}

	return nil
}

func validateURL(name, raw string) error {
	parsedURL, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("%s must use http or https", name)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	return nil
}

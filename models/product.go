// Package models defines data structures for the scraper.
package models

import "time"

// Missing is stored in text fields whose element was not found on the page.
const Missing = "N/A"

// Product represents one product container extracted from a catalogue page.
type Product struct {
	Name      string  `json:"name"`
	Price     string  `json:"price"`
	ImageURL  *string `json:"image_url"`
	Rating    string  `json:"rating"`
	ImagePath *string `json:"image_path"`
}

var productHeader = []string{"name", "price", "image_url", "rating", "image_path"}

// Header returns the column names in record order.
func (p *Product) Header() []string {
	out := make([]string, len(productHeader))
	copy(out, productHeader)
	return out
}

// Record returns the product as a CSV row. Absent values become empty cells.
func (p *Product) Record() []string {
	return []string{p.Name, p.Price, deref(p.ImageURL), p.Rating, deref(p.ImagePath)}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// StopReason explains why a scrape loop ended.
type StopReason string

const (
	StopNoNextLink  StopReason = "no_next_link"
	StopPageCap     StopReason = "page_cap"
	StopFetchFailed StopReason = "fetch_failed"
	StopPageCycle   StopReason = "page_cycle"
	StopCanceled    StopReason = "canceled"
)

// ScraperResult holds the overall result of a scraping operation
type ScraperResult struct {
	Products         []*Product
	StartTime        time.Time
	EndTime          time.Time
	PageCount        int
	RequestCount     int
	ErrorCount       int
	ErrorsByType     map[string]int
	ImagesDownloaded int
	ImageFailures    int
	SkippedItems     int
	StopReason       StopReason
	LastURL          string
	OutputFiles      []string
}

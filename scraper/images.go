package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/aluiziolira/go-scrape-products/models"
	"github.com/aluiziolira/go-scrape-products/parser"
	"golang.org/x/sync/errgroup"
)

// downloadImages fills ImagePath for every product of one page that has an
// image URL. It returns only when all downloads for the page are finished.
func (s *Scraper) downloadImages(ctx context.Context, products []*models.Product) {
	var g errgroup.Group
	g.SetLimit(s.cfg.ImageWorkers)
	for _, product := range products {
		product := product // per-iteration copy (pre-Go 1.22 loop semantics)
		if product.ImageURL == nil {
			continue
		}
		g.Go(func() error {
			product.ImagePath = s.DownloadImage(ctx, product.ImageURL, product.Name)
			return nil
		})
	}
	_ = g.Wait()
}

// DownloadImage resolves imageURL against the base URL and saves it as
// <download dir>/<sanitized product name>.jpg. It returns the file path, or
// nil when imageURL is nil or anything goes wrong; failures are logged only.
func (s *Scraper) DownloadImage(ctx context.Context, imageURL *string, productName string) *string {
	if imageURL == nil {
		return nil
	}

	full, err := s.base.Parse(*imageURL)
	if err != nil {
		s.imageFailed(*imageURL, productName, fmt.Errorf("resolve image url: %w", err))
		return nil
	}
	if err := os.MkdirAll(s.cfg.DownloadDir, 0o755); err != nil {
		s.imageFailed(full.String(), productName, fmt.Errorf("create download dir: %w", err))
		return nil
	}

	filename := parser.SanitizeFilename(productName)
	path := filepath.Join(s.cfg.DownloadDir, filename)
	if err := s.saveImage(ctx, full.String(), path); err != nil {
		s.imageFailed(full.String(), productName, err)
		return nil
	}

	atomic.AddInt64(&s.imagesOK, 1)
	s.Metrics.IncImage("ok")
	s.logger.Info("image downloaded", slog.String("file", filename))
	return &path
}

// saveImage downloads into a temporary file next to path and renames it into
// place only once the whole body is on disk. A failed download never touches
// an existing file at path.
func (s *Scraper) saveImage(ctx context.Context, imageURL, path string) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return fmt.Errorf("create temp image file: %w", err)
	}
	tmp := f.Name()

	if _, err := s.client.Download(ctx, imageURL, f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close image file: %w", err)
	}
	// CreateTemp uses 0600.
	if err := os.Chmod(tmp, 0o644); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("chmod image file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("move image into place: %w", err)
	}
	return nil
}

func (s *Scraper) imageFailed(imageURL, productName string, err error) {
	atomic.AddInt64(&s.imagesFailed, 1)
	s.Metrics.IncImage("failed")
	s.recordError(err)
	s.logger.Error("failed to download image",
		slog.String("url", imageURL),
		slog.String("product", productName),
		slog.Any("error", err),
	)
}

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aluiziolira/go-scrape-products/httpclient"
	"github.com/aluiziolira/go-scrape-products/models"
)

// Event is the payload posted to the results webhook.
type Event struct {
	Type      string            `json:"type"`
	Timestamp int64             `json:"timestamp"`
	Pages     int               `json:"pages"`
	Stop      models.StopReason `json:"stop_reason"`
	Products  []*models.Product `json:"products"`
}

// PostResults sends the finished run to url as JSON. It is a single attempt.
func PostResults(ctx context.Context, client *httpclient.Client, url, token string, result *models.ScraperResult) error {
	event := &Event{
		Type:      "scrape.completed",
		Timestamp: time.Now().Unix(),
		Pages:     result.PageCount,
		Stop:      result.StopReason,
		Products:  result.Products,
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	_, err = client.Post(ctx, url, &httpclient.RequestOptions{
		Headers:   map[string]string{"Content-Type": "application/json", "Accept": "application/json"},
		Body:      body,
		AuthToken: token,
	})
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	return nil
}

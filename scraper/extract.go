package scraper

import (
	"fmt"

	"github.com/aluiziolira/go-scrape-products/config"
	"github.com/aluiziolira/go-scrape-products/models"
	"github.com/aluiziolira/go-scrape-products/parser"
)

// Extraction is the outcome for one product container: either Product is set
// or Err explains why the container was skipped.
type Extraction struct {
	Index   int
	Product *models.Product
	Err     error
}

// ExtractProducts reads every container matched by sel.Product on doc. A page
// without containers yields an empty slice. A failure in one container does
// not affect the others.
func ExtractProducts(doc *parser.Document, sel config.Selectors) []Extraction {
	containers, err := doc.SelectAll(sel.Product)
	if err != nil {
		return []Extraction{{Index: -1, Err: fmt.Errorf("select product containers: %w", err)}}
	}

	out := make([]Extraction, 0, len(containers))
	for i, container := range containers {
		product, err := extractProduct(container, sel)
		out = append(out, Extraction{Index: i, Product: product, Err: err})
	}
	return out
}

func extractProduct(container parser.Node, sel config.Selectors) (*models.Product, error) {
	name, err := childText(container, sel.Name)
	if err != nil {
		return nil, fmt.Errorf("name: %w", err)
	}
	price, err := childText(container, sel.Price)
	if err != nil {
		return nil, fmt.Errorf("price for %s: %w", name, err)
	}
	imageURL, err := childAttr(container, sel.Image, "src")
	if err != nil {
		return nil, fmt.Errorf("image for %s: %w", name, err)
	}
	rating, err := childText(container, sel.Rating)
	if err != nil {
		return nil, fmt.Errorf("rating for %s: %w", name, err)
	}

	return &models.Product{
		Name:     name,
		Price:    price,
		ImageURL: imageURL,
		Rating:   rating,
	}, nil
}

// childText returns the cleaned text of the first match, or models.Missing.
func childText(container parser.Node, selector string) (string, error) {
	node, err := container.SelectOne(selector)
	if err != nil {
		return "", err
	}
	if node == nil {
		return models.Missing, nil
	}
	return parser.CleanText(node.Text()), nil
}

// childAttr returns the cleaned attribute of the first match, or nil when the
// element or the attribute is absent or blank.
func childAttr(container parser.Node, selector, attr string) (*string, error) {
	node, err := container.SelectOne(selector)
	if err != nil || node == nil {
		return nil, err
	}
	raw, ok := node.Attr(attr)
	if !ok {
		return nil, nil
	}
	value := parser.CleanText(raw)
	if value == "" {
		return nil, nil
	}
	return &value, nil
}

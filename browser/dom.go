package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Document parses the page's current DOM into a goquery document for
// structural assertions.
func (p *Page) Document(ctx context.Context) (*goquery.Document, error) {
	html, err := p.Content(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parsing page content: %w", err)
	}
	return doc, nil
}

// ElementExists reports whether the selector matches anything in the
// current DOM.
func (p *Page) ElementExists(ctx context.Context, selector string) (bool, error) {
	doc, err := p.Document(ctx)
	if err != nil {
		return false, err
	}
	return doc.Find(selector).Length() > 0, nil
}

// ElementText returns the trimmed text content of the first element
// matching the selector.
func (p *Page) ElementText(ctx context.Context, selector string) (string, error) {
	doc, err := p.Document(ctx)
	if err != nil {
		return "", err
	}
	sel := doc.Find(selector)
	if sel.Length() == 0 {
		return "", fmt.Errorf("no element matches %q", selector)
	}
	return strings.TrimSpace(sel.First().Text()), nil
}

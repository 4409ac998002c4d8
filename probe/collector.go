package probe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/copymill/webprobe/browser"
)

// Collector passively accumulates diagnostic records observed while a
// probe runs. It never fails a run by itself; records are for the
// human reading the report.
type Collector struct {
	mu      sync.Mutex
	records []Record
}

// Summary tallies collected records. For any sequence of adds,
// Total == sum of BySeverity == sum of ByType.
type Summary struct {
	Total      int            `json:"total"`
	BySeverity map[string]int `json:"by_severity"`
	ByType     map[string]int `json:"by_type"`
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Add appends a record, stamping it with the current time if unset.
func (c *Collector) Add(rec Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	if rec.Severity == "" {
		rec.Severity = SeverityLow
	}
	c.mu.Lock()
	c.records = append(c.records, rec)
	c.mu.Unlock()
}

// Records returns a copy of everything collected so far.
func (c *Collector) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Record, len(c.records))
	copy(out, c.records)
	return out
}

// Summarize tallies the collected records.
func (c *Collector) Summarize() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Summary{
		Total:      len(c.records),
		BySeverity: make(map[string]int),
		ByType:     make(map[string]int),
	}
	for _, rec := range c.records {
		s.BySeverity[rec.Severity]++
		s.ByType[rec.Type]++
	}
	return s
}

// Attach subscribes the collector to the page's console, exception and
// network response streams, tagging records with pageName. The
// returned stop func unsubscribes and waits for the pumps to drain.
func (c *Collector) Attach(ctx context.Context, p *browser.Page, pageName string) func() {
	console, stopConsole := p.ConsoleMessages(ctx)
	exceptions, stopExceptions := p.Exceptions(ctx)
	responses, stopResponses := p.Responses(ctx)

	var g errgroup.Group
	g.Go(func() error {
		for msg := range console {
			c.ObserveConsole(pageName, msg)
		}
		return nil
	})
	g.Go(func() error {
		for pe := range exceptions {
			c.ObserveException(pageName, pe)
		}
		return nil
	})
	g.Go(func() error {
		for resp := range responses {
			c.ObserveResponse(pageName, resp)
		}
		return nil
	})

	return func() {
		stopConsole()
		stopExceptions()
		stopResponses()
		_ = g.Wait()
	}
}

// ObserveConsole records console errors and warnings. Plain log output
// is not a diagnostic and is dropped.
func (c *Collector) ObserveConsole(pageName string, msg browser.ConsoleMessage) {
	var severity string
	switch msg.Type {
	case "error", "assert":
		severity = SeverityMedium
	case "warning":
		severity = SeverityLow
	default:
		return
	}
	c.Add(Record{
		Type:     TypeConsoleError,
		Page:     pageName,
		Message:  msg.Text,
		Severity: severity,
	})
}

// ObserveException records an uncaught page exception.
func (c *Collector) ObserveException(pageName string, pe browser.PageError) {
	c.Add(Record{
		Type:     TypePageError,
		Page:     pageName,
		Message:  pe.Message,
		Severity: SeverityHigh,
		Stack:    pe.Stack,
	})
}

// ObserveResponse records failed network responses. 5xx responses rank
// above 4xx; anything below 400 is not an error.
func (c *Collector) ObserveResponse(pageName string, resp browser.ResponseInfo) {
	if resp.Status < 400 {
		return
	}
	severity := SeverityMedium
	if resp.Status >= 500 {
		severity = SeverityHigh
	}
	c.Add(Record{
		Type:     TypeNetworkError,
		Page:     pageName,
		Message:  formatResponse(resp),
		Severity: severity,
	})
}

func formatResponse(resp browser.ResponseInfo) string {
	s := fmt.Sprintf("%s -> %d", resp.URL, resp.Status)
	if resp.StatusText != "" {
		s += " " + resp.StatusText
	}
	return s
}

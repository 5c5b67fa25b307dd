package rates

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"scadenze/internal/core"
)

// DefaultFeedURL is the ECB daily reference-rate feed (EUR base).
const DefaultFeedURL = "https://www.ecb.europa.eu/stats/eurofxref/eurofxref-daily.xml"

// Rates is one published rate table: units of each currency per one unit
// of the base.
type Rates struct {
	Base  string
	AsOf  time.Time
	Pairs map[string]decimal.Decimal
}

// FeedClient fetches and parses the daily reference-rate XML document.
type FeedClient struct {
	url    string
	client *http.Client
}

// NewFeedClient creates a client for the given feed URL. An empty URL
// selects the ECB daily feed.
func NewFeedClient(url string) *FeedClient {
	if strings.TrimSpace(url) == "" {
		url = DefaultFeedURL
	}
	return &FeedClient{
		url:    url,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Fetch downloads and parses the current rate table.
func (c *FeedClient) Fetch(ctx context.Context) (Rates, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return Rates{}, fmt.Errorf("build rates request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Rates{}, fmt.Errorf("fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Rates{}, fmt.Errorf("fetch rates: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Rates{}, fmt.Errorf("read rates response: %w", err)
	}

	rates, err := parseFeed(body)
	if err != nil {
		return Rates{}, err
	}

	slog.InfoContext(ctx, "Fetched currency rates",
		"url", c.url,
		"as_of", rates.AsOf.Format("2006-01-02"),
		"currencies", len(rates.Pairs))

	return rates, nil
}

// parseFeed extracts the Cube nodes from a eurofxref-style document. The
// feed publishes EUR-based rates, one Cube per currency, under a dated
// parent Cube.
func parseFeed(body []byte) (Rates, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return Rates{}, fmt.Errorf("parse rates document: %w", err)
	}

	rates := Rates{
		Base:  "EUR",
		Pairs: make(map[string]decimal.Decimal),
	}

	if dated := doc.FindElement("//Cube[@time]"); dated != nil {
		if t, err := time.Parse("2006-01-02", dated.SelectAttrValue("time", "")); err == nil {
			rates.AsOf = t
		}
	}

	for _, cube := range doc.FindElements("//Cube[@currency]") {
		currency := strings.ToUpper(cube.SelectAttrValue("currency", ""))
		rateStr := cube.SelectAttrValue("rate", "")
		if currency == "" || rateStr == "" {
			continue
		}
		rate, err := decimal.NewFromString(rateStr)
		if err != nil || rate.LessThanOrEqual(decimal.Zero) {
			slog.Warn("Skipping malformed rate", "currency", currency, "rate", rateStr)
			continue
		}
		rates.Pairs[currency] = rate
	}

	if len(rates.Pairs) == 0 {
		return Rates{}, fmt.Errorf("%w: rates document contains no currencies", core.ErrConversionUnavailable)
	}
	return rates, nil
}

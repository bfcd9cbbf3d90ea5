/**
 * @description
 * This package provides a client for the Central Bank of Russia daily exchange
 * rate feed. The feed is a windows-1251 encoded XML document listing the ruble
 * price of `Nominal` units of each foreign currency.
 *
 * @dependencies
 * - encoding/xml, net/http: Standard Go libraries.
 * - golang.org/x/net/html/charset: decodes the windows-1251 payload.
 * - github.com/shopspring/decimal: exact rate values.
 */
package cbrclient

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/net/html/charset"
)

// DefaultDailyURL is the public daily rates endpoint.
const DefaultDailyURL = "https://www.cbr.ru/scripts/XML_daily.asp"

const feedDateLayout = "02.01.2006"

// ErrInvalidFeed is returned when the payload has no date or no rates.
var ErrInvalidFeed = errors.New("invalid exchange rate feed")

// Client is a client for the CBR rates feed.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new CBR feed client.
func NewClient(baseURL string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultDailyURL
	}
	return &Client{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Rate is a single currency line of the feed.
type Rate struct {
	CharCode string
	Nominal  int64
	Value    decimal.Decimal
}

// DailyRates is the parsed feed for one date.
type DailyRates struct {
	Date  time.Time
	Rates []Rate
}

type valCurs struct {
	XMLName xml.Name `xml:"ValCurs"`
	Date    string   `xml:"Date,attr"`
	Valutes []valute `xml:"Valute"`
}

type valute struct {
	ID       string `xml:"ID,attr"`
	CharCode string `xml:"CharCode"`
	Nominal  int64  `xml:"Nominal"`
	Value    string `xml:"Value"`
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("cbr feed returned status %d: %s", e.StatusCode, e.Body)
}

// FetchDaily downloads the most recent published rates.
func (c *Client) FetchDaily(ctx context.Context) (DailyRates, error) {
	return c.fetch(ctx, c.BaseURL)
}

// FetchForDate downloads the rates published for date.
func (c *Client) FetchForDate(ctx context.Context, date time.Time) (DailyRates, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return DailyRates{}, fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	q.Set("date_req", date.Format("02/01/2006"))
	u.RawQuery = q.Encode()
	return c.fetch(ctx, u.String())
}

func (c *Client) fetch(ctx context.Context, endpoint string) (DailyRates, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return DailyRates{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/xml")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return DailyRates{}, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return DailyRates{}, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	return Parse(resp.Body)
}

// Parse decodes a feed document.
func Parse(r io.Reader) (DailyRates, error) {
	decoder := xml.NewDecoder(r)
	decoder.CharsetReader = charset.NewReaderLabel

	var doc valCurs
	if err := decoder.Decode(&doc); err != nil {
		return DailyRates{}, fmt.Errorf("failed to decode feed: %w", err)
	}

	if strings.TrimSpace(doc.Date) == "" || len(doc.Valutes) == 0 {
		return DailyRates{}, ErrInvalidFeed
	}
	date, err := time.Parse(feedDateLayout, strings.TrimSpace(doc.Date))
	if err != nil {
		return DailyRates{}, fmt.Errorf("%w: bad date %q", ErrInvalidFeed, doc.Date)
	}

	daily := DailyRates{Date: date, Rates: make([]Rate, 0, len(doc.Valutes))}
	for _, v := range doc.Valutes {
		value, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(v.Value), ",", "."))
		if err != nil {
			return DailyRates{}, fmt.Errorf("%w: bad value %q for %s", ErrInvalidFeed, v.Value, v.CharCode)
		}
		daily.Rates = append(daily.Rates, Rate{
			CharCode: strings.ToUpper(strings.TrimSpace(v.CharCode)),
			Nominal:  v.Nominal,
			Value:    value,
		})
	}
	return daily, nil
}

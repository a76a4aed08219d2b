package mse

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	"historysync/internal/domain/entity/calendar"
	"historysync/internal/domain/entity/instruments"
	"historysync/internal/domain/entity/timeseries"
	"historysync/internal/domain/interfaces"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const (
	DefaultBaseURL  = "https://www.mse.mk/en"
	DefaultSeedCode = "KMB"
	defaultTimeout  = 30 * time.Second
	userAgent       = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

	historyPath   = "/stats/symbolhistory/{code}"
	queryDate     = calendar.StoreLayout
	tableSelector = "table.table"
	codeSelector  = "select#Code option"
)

type Config struct {
	BaseURL string
	Timeout time.Duration
	// RetryCount is the number of extra attempts for transport errors and
	// 5xx answers. Zero disables retries.
	RetryCount int
	RetryWait  time.Duration
	// SeedCode is the symbol whose history page carries the instrument list.
	SeedCode string
}

// Client reads the exchange's symbol history pages.
type Client struct {
	http   *resty.Client
	cfg    Config
	logger *logrus.Entry
}

var (
	_ interfaces.HistoryFetcher   = (*Client)(nil)
	_ interfaces.InstrumentLister = (*Client)(nil)
)

func NewClient(cfg Config, logger *logrus.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.SeedCode == "" {
		cfg.SeedCode = DefaultSeedCode
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetTimeout(cfg.Timeout)
	client.SetHeader("User-Agent", userAgent)
	client.SetHeader("Accept", "text/html")
	if cfg.RetryCount > 0 {
		client.SetRetryCount(cfg.RetryCount)
		if cfg.RetryWait > 0 {
			client.SetRetryWaitTime(cfg.RetryWait)
		}
		client.AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err != nil || resp.StatusCode() >= http.StatusInternalServerError
		})
	}

	return &Client{
		http:   client,
		cfg:    cfg,
		logger: logger.WithField("component", "mse_client"),
	}
}

// FetchHistory returns the rows of the history table for code within chunk,
// in the order the page lists them.
func (c *Client) FetchHistory(ctx context.Context, code string, chunk calendar.Range) ([]timeseries.RawRow, error) {
	doc, err := c.get(ctx, code, map[string]string{
		"fromDate": chunk.Start.Format(queryDate),
		"toDate":   chunk.End.Format(queryDate),
	})
	if err != nil {
		return nil, err
	}
	return ExtractRows(doc)
}

// ListInstruments reads the symbol dropdown of the seed page.
func (c *Client) ListInstruments(ctx context.Context) ([]instruments.Instrument, error) {
	doc, err := c.get(ctx, c.cfg.SeedCode, nil)
	if err != nil {
		return nil, err
	}
	list := ExtractInstruments(doc)
	c.logger.WithField("instruments", len(list)).Debug("instrument list read")
	return list, nil
}

func (c *Client) get(ctx context.Context, code string, query map[string]string) (*goquery.Document, error) {
	req := c.http.R().
		SetContext(ctx).
		SetPathParam("code", code)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}

	resp, err := req.Get(historyPath)
	if err != nil {
		return nil, &timeseries.HTTPError{URL: requestURL(c.cfg.BaseURL, code, resp), Err: err}
	}
	if !resp.IsSuccess() {
		return nil, &timeseries.HTTPError{StatusCode: resp.StatusCode(), URL: requestURL(c.cfg.BaseURL, code, resp)}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, &timeseries.DocumentError{Reason: "unreadable html", Err: err}
	}
	return doc, nil
}

func requestURL(base, code string, resp *resty.Response) string {
	if resp != nil && resp.Request != nil && resp.Request.URL != "" {
		return resp.Request.URL
	}
	return base + strings.Replace(historyPath, "{code}", code, 1)
}

// ExtractRows reads the first history table of doc. Header rows, and rows
// holding a single spanning message cell, are skipped.
func ExtractRows(doc *goquery.Document) ([]timeseries.RawRow, error) {
	table := doc.Find(tableSelector).First()
	if table.Length() == 0 {
		return nil, timeseries.ErrEmptyTable
	}

	var rows []timeseries.RawRow
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() <= 1 {
			return
		}
		row := make(timeseries.RawRow, 0, cells.Length())
		cells.Each(func(_ int, td *goquery.Selection) {
			row = append(row, strings.TrimSpace(td.Text()))
		})
		rows = append(rows, row)
	})
	if len(rows) == 0 {
		return nil, timeseries.ErrEmptyTable
	}
	return rows, nil
}

// ExtractInstruments reads code/name pairs from the symbol dropdown.
func ExtractInstruments(doc *goquery.Document) []instruments.Instrument {
	var list []instruments.Instrument
	doc.Find(codeSelector).Each(func(_ int, opt *goquery.Selection) {
		code, ok := opt.Attr("value")
		code = strings.TrimSpace(code)
		if !ok || code == "" {
			return
		}
		list = append(list, instruments.New(code, opt.Text()))
	})
	return list
}

package integration

import (
	"context"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/abelzeko/riverflow/internal/entities"
)

// Unit conversions for metric gauge tables
const (
	cmPerFoot          = 30.48
	cfsPerCubicMeterPS = 35.3147
)

// timestampPattern matches "18.04.2025. време: 8:00" and "18.04.2025 08:00".
var timestampPattern = regexp.MustCompile(`(\d{1,2})\.(\d{1,2})\.(\d{4})\.?\D{0,40}?(\d{1,2}):(\d{2})`)

// ScraperOptions describes the layout of an HTML gauge table
type ScraperOptions struct {
	URL             string
	SiteColumn      int
	HeightColumn    int // negative when the table has no height column
	DischargeColumn int // negative when the table has no discharge column
	MetricUnits     bool
	Location        *time.Location
	HTTPClient      *http.Client
}

// WaterScraper provides functionality to scrape water data from an HTML gauge table
type WaterScraper struct {
	opts   ScraperOptions
	client *http.Client
	now    func() time.Time
}

// NewWaterScraper creates a new water data scraper
func NewWaterScraper(opts ScraperOptions) *WaterScraper {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &WaterScraper{opts: opts, client: client, now: time.Now}
}

// Name returns the station source handled by this scraper
func (ws *WaterScraper) Name() string {
	return entities.SourceHTML
}

// FetchLatest retrieves the table and returns rows for the requested sites
func (ws *WaterScraper) FetchLatest(ctx context.Context, siteIDs []string) ([]SiteReading, error) {
	if ws.opts.URL == "" {
		return nil, eris.Wrap(ErrUpstreamFetch, "scraper: no page URL configured")
	}
	wanted := make(map[string]bool, len(siteIDs))
	for _, id := range siteIDs {
		wanted[id] = true
	}

	zap.L().Debug("sending HTTP request to gauge table", zap.String("url", ws.opts.URL))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ws.opts.URL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "scraper: build request")
	}
	res, err := ws.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(ErrUpstreamFetch, "scraper: failed to fetch the webpage: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, eris.Wrapf(ErrUpstreamFetch, "scraper: unexpected status code: %d %s", res.StatusCode, res.Status)
	}

	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return nil, eris.Wrapf(ErrUpstreamFetch, "scraper: failed to parse the webpage: %v", err)
	}

	timestamp := ws.ExtractTimestamp(doc)

	var data []SiteReading
	rowCount := 0
	minCells := max(ws.opts.SiteColumn, ws.opts.HeightColumn, ws.opts.DischargeColumn) + 1

	doc.Find("table tr").Each(func(index int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < minCells {
			return
		}
		rowCount++

		site := strings.TrimSpace(cells.Eq(ws.opts.SiteColumn).Text())
		if !wanted[site] {
			return
		}

		r := SiteReading{SiteID: site, Timestamp: timestamp}
		if ws.opts.HeightColumn >= 0 {
			if v, ok := parseNumber(cells.Eq(ws.opts.HeightColumn).Text()); ok {
				if ws.opts.MetricUnits {
					v /= cmPerFoot
				}
				r.HeightFt = &v
			}
		}
		if ws.opts.DischargeColumn >= 0 {
			if v, ok := parseNumber(cells.Eq(ws.opts.DischargeColumn).Text()); ok {
				if ws.opts.MetricUnits {
					v *= cfsPerCubicMeterPS
				}
				r.DischargeCfs = &v
			}
		}
		if r.HeightFt == nil && r.DischargeCfs == nil {
			return
		}
		data = append(data, r)
	})

	zap.L().Info("scraper: parsed gauge table",
		zap.Int("rows", rowCount),
		zap.Int("readings", len(data)),
	)
	return data, nil
}

// ExtractTimestamp finds the observation time printed on the page, falling
// back to the fetch time when none can be parsed
func (ws *WaterScraper) ExtractTimestamp(doc *goquery.Document) time.Time {
	selectors := []string{"h1", "h2", "h3", "h4", "caption", "div.col-md-12", "p"}

	for _, selector := range selectors {
		var found time.Time
		doc.Find(selector).EachWithBreak(func(i int, s *goquery.Selection) bool {
			t, ok := ws.parseTimestampText(s.Text())
			if ok {
				found = t
				return false
			}
			return true
		})
		if !found.IsZero() {
			zap.L().Debug("extracted page timestamp",
				zap.String("selector", selector),
				zap.Time("timestamp", found),
			)
			return found
		}
	}

	zap.L().Debug("timestamp text not found, using fetch time")
	return ws.now().UTC()
}

// parseTimestampText parses "DD.MM.YYYY ... HH:MM" in the configured zone
func (ws *WaterScraper) parseTimestampText(text string) (time.Time, bool) {
	m := timestampPattern.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	hour, _ := strconv.Atoi(m[4])
	minute, _ := strconv.Atoi(m[5])
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, hour, minute, 0, 0, ws.opts.Location), true
}

// parseNumber reads a table cell, accepting a comma decimal separator.
// Empty cells and "-" placeholders are reported as missing.
func parseNumber(text string) (float64, bool) {
	s := strings.TrimSpace(text)
	if s == "" || s == "-" || s == "\u2014" {
		return 0, false
	}
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\u00a0", "")
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

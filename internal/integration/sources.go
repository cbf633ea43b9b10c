package integration

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/abelzeko/riverflow/internal/config"
)

// NewMultiSourceFromConfig builds the USGS client and, when a scrape URL is
// configured, the HTML table scraper.
func NewMultiSourceFromConfig(cfg *config.Config) (*MultiSource, error) {
	sources := []GaugeSource{
		NewUSGSClient(USGSOptions{
			BaseURL:           cfg.USGS.BaseURL,
			BatchSize:         cfg.USGS.BatchSize,
			Timeout:           time.Duration(cfg.USGS.TimeoutSecs) * time.Second,
			RequestsPerSecond: cfg.USGS.RequestsPerSecond,
			BreakerFailures:   cfg.USGS.BreakerFailures,
			BreakerTimeout:    time.Duration(cfg.USGS.BreakerTimeoutSecs) * time.Second,
			Lookback:          cfg.Polling.Rule().Lookback,
		}),
	}

	if cfg.Scrape.URL != "" {
		loc, err := time.LoadLocation(cfg.Scrape.TimeZone)
		if err != nil {
			return nil, eris.Wrapf(err, "scrape time zone %q", cfg.Scrape.TimeZone)
		}
		sources = append(sources, NewWaterScraper(ScraperOptions{
			URL:             cfg.Scrape.URL,
			SiteColumn:      cfg.Scrape.SiteColumn,
			HeightColumn:    cfg.Scrape.HeightColumn,
			DischargeColumn: cfg.Scrape.DischargeColumn,
			MetricUnits:     cfg.Scrape.MetricUnits,
			Location:        loc,
		}))
	}

	return NewMultiSource(sources...), nil
}

package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/abelzeko/riverflow/internal/entities"
)

// NWIS parameter codes
const (
	paramDischarge = "00060"
	paramHeight    = "00065"
)

// USGSOptions configures the NWIS instantaneous-values client
type USGSOptions struct {
	BaseURL           string
	BatchSize         int
	Timeout           time.Duration
	RequestsPerSecond float64
	BreakerFailures   uint32
	BreakerTimeout    time.Duration
	// Lookback asks NWIS for every value in the trailing window instead of
	// only the latest one. Zero requests the latest value.
	Lookback   time.Duration
	HTTPClient *http.Client
}

// USGSClient reads the latest gauge height and discharge from USGS NWIS
type USGSClient struct {
	opts    USGSOptions
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]SiteReading]
}

// NewUSGSClient creates a new NWIS client
func NewUSGSClient(opts USGSOptions) *USGSClient {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://waterservices.usgs.gov/nwis/iv/"
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 5
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 3
	}
	if opts.BreakerTimeout == 0 {
		opts.BreakerTimeout = 5 * time.Minute
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	settings := gobreaker.Settings{
		Name:        "usgs",
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			zap.L().Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &USGSClient{
		opts:    opts,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		breaker: gobreaker.NewCircuitBreaker[[]SiteReading](settings),
	}
}

// Name returns the station source handled by this client
func (c *USGSClient) Name() string {
	return entities.SourceUSGS
}

// FetchLatest fetches the most recent values for siteIDs in batches.
// Batches that fail are reported in the returned error; readings from the
// other batches are still returned.
func (c *USGSClient) FetchLatest(ctx context.Context, siteIDs []string) ([]SiteReading, error) {
	if len(siteIDs) == 0 {
		return nil, nil
	}

	var batches [][]string
	for start := 0; start < len(siteIDs); start += c.opts.BatchSize {
		end := min(start+c.opts.BatchSize, len(siteIDs))
		batches = append(batches, siteIDs[start:end])
	}

	var (
		mu   sync.Mutex
		out  []SiteReading
		errs []error
	)
	var g errgroup.Group
	g.SetLimit(4)
	for _, batch := range batches {
		g.Go(func() error {
			readings, err := c.fetchBatch(ctx, batch)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return nil
			}
			out = append(out, readings...)
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("usgs: fetched latest readings",
		zap.Int("sites", len(siteIDs)),
		zap.Int("batches", len(batches)),
		zap.Int("readings", len(out)),
		zap.Int("failed_batches", len(errs)),
	)
	if len(errs) > 0 {
		return out, eris.Wrapf(ErrUpstreamFetch, "usgs: %d of %d batches failed: %v", len(errs), len(batches), errs[0])
	}
	return out, nil
}

func (c *USGSClient) fetchBatch(ctx context.Context, sites []string) ([]SiteReading, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "usgs: rate limiter")
	}

	readings, err := c.breaker.Execute(func() ([]SiteReading, error) {
		return c.request(ctx, sites)
	})
	if err != nil {
		if eris.Is(err, ErrUpstreamFetch) {
			return nil, err
		}
		return nil, eris.Wrapf(ErrUpstreamFetch, "usgs: %v", err)
	}
	return readings, nil
}

func (c *USGSClient) request(ctx context.Context, sites []string) ([]SiteReading, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("sites", strings.Join(sites, ","))
	q.Set("parameterCd", paramDischarge+","+paramHeight)
	q.Set("siteStatus", "active")
	if p := isoPeriod(c.opts.Lookback); p != "" {
		q.Set("period", p)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "usgs: build request")
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(ErrUpstreamFetch, "usgs: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, eris.Wrapf(ErrUpstreamFetch, "usgs: unexpected status code: %d %s", res.StatusCode, res.Status)
	}

	var body ivResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, eris.Wrapf(ErrUpstreamFetch, "usgs: decode response: %v", err)
	}
	return body.readings(), nil
}

// isoPeriod renders d as an ISO-8601 duration in whole minutes, rounding up.
func isoPeriod(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	minutes := int64((d + time.Minute - 1) / time.Minute)
	return "PT" + strconv.FormatInt(minutes, 10) + "M"
}

// ivResponse mirrors the parts of the NWIS IV JSON document we read.
type ivResponse struct {
	Value struct {
		TimeSeries []ivTimeSeries `json:"timeSeries"`
	} `json:"value"`
}

type ivTimeSeries struct {
	SourceInfo struct {
		SiteName string `json:"siteName"`
		SiteCode []struct {
			Value string `json:"value"`
		} `json:"siteCode"`
	} `json:"sourceInfo"`
	Variable struct {
		VariableCode []struct {
			Value string `json:"value"`
		} `json:"variableCode"`
		NoDataValue *float64 `json:"noDataValue"`
	} `json:"variable"`
	Values []struct {
		Value []struct {
			Value    string `json:"value"`
			DateTime string `json:"dateTime"`
		} `json:"value"`
	} `json:"values"`
}

// readings merges the per-parameter series into one reading per site and timestamp.
func (r *ivResponse) readings() []SiteReading {
	type key struct {
		site string
		ts   int64
	}
	merged := make(map[key]*SiteReading)
	var order []key

	for _, ts := range r.Value.TimeSeries {
		if len(ts.SourceInfo.SiteCode) == 0 || len(ts.Variable.VariableCode) == 0 {
			continue
		}
		site := ts.SourceInfo.SiteCode[0].Value
		param := ts.Variable.VariableCode[0].Value
		if param != paramHeight && param != paramDischarge {
			continue
		}

		for _, block := range ts.Values {
			for _, v := range block.Value {
				at, err := time.Parse(time.RFC3339Nano, v.DateTime)
				if err != nil {
					zap.L().Warn("usgs: skipping value with bad timestamp",
						zap.String("site_id", site), zap.String("date_time", v.DateTime))
					continue
				}
				val, err := strconv.ParseFloat(strings.TrimSpace(v.Value), 64)
				if err != nil {
					continue
				}
				if ts.Variable.NoDataValue != nil && val == *ts.Variable.NoDataValue {
					continue
				}

				k := key{site: site, ts: at.Unix()}
				sr, ok := merged[k]
				if !ok {
					sr = &SiteReading{SiteID: site, Timestamp: at.UTC()}
					merged[k] = sr
					order = append(order, k)
				}
				if param == paramHeight {
					sr.HeightFt = &val
				} else {
					sr.DischargeCfs = &val
				}
			}
		}
	}

	out := make([]SiteReading, 0, len(order))
	for _, k := range order {
		out = append(out, *merged[k])
	}
	return out
}

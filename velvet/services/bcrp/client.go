// Package bcrp queries the statistics API of the Banco Central de Reserva
// del Perú.
package bcrp

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"velvet/velvet/utils/errs"
	httputils "velvet/velvet/utils/http"
	"velvet/velvet/utils/logging"
	"velvet/velvet/utils/types"

	"go.uber.org/zap"
)

const (
	HealthSeries = "PN01288PM"
	maxSeries    = 10
	StatusDemo   = "demo_data"
)

var (
	seriesCode = regexp.MustCompile(`^[A-Z0-9]{4,20}$`)
	periodRe   = regexp.MustCompile(`^\d{4}(-\d{1,2}(-\d{1,2})?)?$`)
)

// Cache is the JSON cache the client reads through. sources/cache.RedisCache
// satisfies it.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
}

type Client struct {
	baseURL       string
	defaultSeries string
	client        *http.Client
	cache         Cache
	ttl           time.Duration
}

func NewClient(baseURL, defaultSeries string, cache Cache, ttl time.Duration) *Client {
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		defaultSeries: defaultSeries,
		client:        &http.Client{Timeout: 60 * time.Second},
		cache:         cache,
		ttl:           ttl,
	}
}

// apiResponse is the JSON body of {base}/{codes}/json/{start}/{end}.
type apiResponse struct {
	Config struct {
		Title  string `json:"title"`
		Series []struct {
			Name string `json:"name"`
		} `json:"series"`
	} `json:"config"`
	Periods []struct {
		Name   string   `json:"name"`
		Values []string `json:"values"`
	} `json:"periods"`
}

func validate(req types.SeriesRequest) ([]string, error) {
	const op = "bcrp.get_series"
	if len(req.Series) == 0 {
		return nil, errs.InvalidArgument(op, "at least one series is required")
	}
	if len(req.Series) > maxSeries {
		return nil, errs.InvalidArgument(op, fmt.Sprintf("at most %d series per query", maxSeries))
	}
	codes := make([]string, len(req.Series))
	for i, s := range req.Series {
		code := strings.ToUpper(strings.TrimSpace(s))
		if !seriesCode.MatchString(code) {
			return nil, errs.InvalidArgument(op, "invalid series code: "+s)
		}
		codes[i] = code
	}
	for _, d := range []string{req.StartDate, req.EndDate} {
		if d != "" && !periodRe.MatchString(d) {
			return nil, errs.InvalidArgument(op, "invalid period: "+d)
		}
	}
	if req.EndDate != "" && req.StartDate == "" {
		return nil, errs.InvalidArgument(op, "end_date requires start_date")
	}
	return codes, nil
}

func (c *Client) seriesURL(codes []string, start, end string) string {
	u := c.baseURL + "/" + strings.Join(codes, "-") + "/json"
	if start != "" {
		u += "/" + start
		if end != "" {
			u += "/" + end
		}
	}
	return u
}

// GetSeries returns the requested series. Invalid requests fail with
// InvalidArgument; any upstream failure yields the demo data set instead of
// an error.
func (c *Client) GetSeries(ctx context.Context, req types.SeriesRequest) (*types.SeriesResponse, error) {
	defer logging.LogDuration(ctx, "bcrp_get_series")()

	codes, err := validate(req)
	if err != nil {
		return nil, err
	}
	key := "bcrp:" + strings.Join(codes, "-") + ":" + req.StartDate + ":" + req.EndDate

	if c.cache != nil {
		var cached types.SeriesResponse
		ok, err := c.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			logging.ErrorLogger.Error("BCRP cache read failed", zap.Error(err))
		}
		if ok {
			return &cached, nil
		}
	}

	var raw apiResponse
	if err := httputils.GetJSON(ctx, c.client, c.seriesURL(codes, req.StartDate, req.EndDate), &raw); err != nil {
		logging.ErrorLogger.Error("BCRP query failed", zap.Strings("series", codes), zap.Error(err))
		return demoData(codes, err), nil
	}

	resp := toResponse(codes, raw)
	if c.cache != nil {
		if err := c.cache.SetJSON(ctx, key, resp, c.ttl); err != nil {
			logging.ErrorLogger.Error("BCRP cache write failed", zap.Error(err))
		}
	}
	return resp, nil
}

func toResponse(codes []string, raw apiResponse) *types.SeriesResponse {
	resp := &types.SeriesResponse{
		Series:    codes,
		Data:      []types.SeriesPoint{},
		Metadata:  map[string]any{"source": "BCRP"},
		QueryTime: time.Now().UTC(),
	}
	if raw.Config.Title != "" {
		resp.Metadata["title"] = raw.Config.Title
	}
	for _, p := range raw.Periods {
		for i, v := range p.Values {
			if i >= len(codes) {
				break
			}
			// "n.d." marks a missing observation
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				continue
			}
			resp.Data = append(resp.Data, types.SeriesPoint{Date: p.Name, Value: f, SeriesCode: codes[i]})
		}
	}
	return resp
}

func demoData(codes []string, cause error) *types.SeriesResponse {
	code := "demo"
	if len(codes) > 0 {
		code = codes[0]
	}
	return &types.SeriesResponse{
		Series: codes,
		Data: []types.SeriesPoint{
			{Date: "2024-01", Value: 2.1, SeriesCode: code},
			{Date: "2024-02", Value: 2.3, SeriesCode: code},
		},
		Metadata:  map[string]any{"source": "BCRP", "status": StatusDemo},
		Error:     cause.Error(),
		QueryTime: time.Now().UTC(),
	}
}

// SeriesContext renders the latest observations of the default series as
// prompt context. Demo data is reported as an error so it never reaches the
// model as if it were real.
func (c *Client) SeriesContext(ctx context.Context) (string, error) {
	resp, err := c.GetSeries(ctx, types.SeriesRequest{Series: []string{c.defaultSeries}})
	if err != nil {
		return "", err
	}
	if resp.Metadata["status"] == StatusDemo {
		return "", fmt.Errorf("bcrp unavailable: %s", resp.Error)
	}
	if len(resp.Data) == 0 {
		return "", nil
	}
	points := resp.Data
	if len(points) > 12 {
		points = points[len(points)-12:]
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "BCRP series %s", c.defaultSeries)
	if title, ok := resp.Metadata["title"].(string); ok && title != "" {
		fmt.Fprintf(&sb, " (%s)", title)
	}
	sb.WriteString(":\n")
	for _, p := range points {
		fmt.Fprintf(&sb, "%s: %s\n", p.Date, strconv.FormatFloat(p.Value, 'f', -1, 64))
	}
	return strings.TrimSpace(sb.String()), nil
}

// Health probes the API with the monthly inflation series.
func (c *Client) Health(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httputils.GetJSON(ctx, c.client, c.seriesURL([]string{HealthSeries}, "", ""), nil); err != nil {
		return "unhealthy"
	}
	return "healthy"
}

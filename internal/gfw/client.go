// Package gfw is a client for the Global Fishing Watch API.
package gfw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/maritimeviz/maritimeviz/internal/observability"
)

// DefaultBaseURL is the v3 gateway.
const DefaultBaseURL = "https://gateway.api.globalfishingwatch.org/v3"

// TokenEnv is read when no token is passed explicitly.
const TokenEnv = "GFW_API_TOKEN"

// Attribution must accompany data obtained from the API.
const Attribution = "Powered by Global Fishing Watch. https://globalfishingwatch.org/"

// Datasets queried by the client.
const (
	DatasetVesselIdentity = "public-global-vessel-identity:latest"
	DatasetFishingEvents  = "public-global-fishing-events:latest"
	DatasetFishingEffort  = "public-global-fishing-effort:latest"
)

const (
	endpointVessels = "vessels/search"
	endpointEvents  = "events"
	endpointStats   = "4wings/stats"

	dateLayout = "2006-01-02"
)

var (
	// ErrEmptyToken is returned when no API token can be found or an empty one is set.
	ErrEmptyToken = errors.New("GFW API token cannot be empty")
	// ErrInvalidArgument is returned for malformed identifiers or dates.
	ErrInvalidArgument = errors.New("invalid argument")
)

// APIError is returned for non-2xx responses.
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("GFW API error: %s: status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Entry is one record of an API result list; its shape depends on the dataset.
type Entry map[string]any

// Stats holds the key/value statistics of a 4wings report.
type Stats map[string]any

// API is implemented by Client and CachedClient.
type API interface {
	SearchVessel(ctx context.Context, identifier string) ([]Entry, error)
	FishingEvents(ctx context.Context, vesselID, startDate, endDate string, limit, offset int) ([]Entry, error)
	FishingStats(ctx context.Context, startDate, endDate string) (Stats, error)
}

// Options configures a Client. Only a token source is required.
type Options struct {
	Token   string
	BaseURL string
	Timeout time.Duration
	// Prompt is asked for a token when neither Token nor GFW_API_TOKEN is set.
	Prompt     func() (string, error)
	HTTPClient *http.Client
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// Client talks to the Global Fishing Watch API. The token is never exposed
// or logged.
type Client struct {
	mu         sync.RWMutex
	token      string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewClient resolves the API token (explicit, then GFW_API_TOKEN, then
// Prompt) and creates a client.
func NewClient(opts Options) (*Client, error) {
	token, err := resolveToken(opts)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	c := &Client{
		token:      token,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger.Named("gfw"),
		metrics:    opts.Metrics,
	}
	c.logger.Info(Attribution)
	return c, nil
}

func resolveToken(opts Options) (string, error) {
	if t := strings.TrimSpace(opts.Token); t != "" {
		return t, nil
	}
	if t := strings.TrimSpace(os.Getenv(TokenEnv)); t != "" {
		return t, nil
	}
	if opts.Prompt != nil {
		t, err := opts.Prompt()
		if err != nil {
			return "", fmt.Errorf("read GFW API token: %w", err)
		}
		if t = strings.TrimSpace(t); t != "" {
			return t, nil
		}
	}
	return "", ErrEmptyToken
}

// SetToken replaces the API token.
func (c *Client) SetToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyToken
	}
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	return nil
}

// SearchVessel looks a vessel up by MMSI, IMO, call sign or name.
func (c *Client) SearchVessel(ctx context.Context, identifier string) ([]Entry, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, fmt.Errorf("%w: empty vessel identifier", ErrInvalidArgument)
	}
	params := url.Values{
		"query":       {identifier},
		"datasets[0]": {DatasetVesselIdentity},
	}

	var resp listResponse
	if err := c.get(ctx, endpointVessels, "vessels", params, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// FishingEvents lists fishing events of one vessel between two YYYY-MM-DD
// dates. A limit of zero uses 10.
func (c *Client) FishingEvents(ctx context.Context, vesselID, startDate, endDate string, limit, offset int) ([]Entry, error) {
	if strings.TrimSpace(vesselID) == "" {
		return nil, fmt.Errorf("%w: empty vessel id", ErrInvalidArgument)
	}
	if err := validateDates(startDate, endDate); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: negative offset", ErrInvalidArgument)
	}
	params := url.Values{
		"vessels[0]":  {vesselID},
		"datasets[0]": {DatasetFishingEvents},
		"start-date":  {startDate},
		"end-date":    {endDate},
		"limit":       {strconv.Itoa(limit)},
		"offset":      {strconv.Itoa(offset)},
	}

	var resp listResponse
	if err := c.get(ctx, endpointEvents, "events", params, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// FishingStats returns global fishing effort statistics between two
// YYYY-MM-DD dates.
func (c *Client) FishingStats(ctx context.Context, startDate, endDate string) (Stats, error) {
	if err := validateDates(startDate, endDate); err != nil {
		return nil, err
	}
	params := url.Values{
		"datasets[0]": {DatasetFishingEffort},
		"fields":      {"FLAGS,VESSEL-IDS,ACTIVITY-HOURS"},
		"date-range":  {startDate + "," + endDate},
	}

	var raw json.RawMessage
	if err := c.get(ctx, endpointStats, "stats", params, &raw); err != nil {
		return nil, err
	}
	return decodeStats(raw)
}

// decodeStats accepts either a single object or a list of objects; lists are
// merged in order.
func decodeStats(raw json.RawMessage) (Stats, error) {
	var obj Stats
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj, nil
	}
	var list []Stats
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}
	out := Stats{}
	for _, s := range list {
		for k, v := range s {
			out[k] = v
		}
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, endpoint, label string, params url.Values, out any) error {
	fullURL := c.baseURL + "/" + endpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.mu.RLock()
	req.Header.Set("Authorization", "Bearer "+c.token)
	c.mu.RUnlock()
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	err = c.do(req, endpoint, out)
	if c.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		c.metrics.GFWRequests.WithLabelValues(label, outcome).Inc()
		c.metrics.GFWDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		c.logger.Warn("request failed", zap.String("endpoint", endpoint), zap.Error(err))
		return err
	}
	c.logger.Debug("request complete", zap.String("endpoint", endpoint), zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (c *Client) do(req *http.Request, endpoint string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

func validateDates(startDate, endDate string) error {
	start, err := time.Parse(dateLayout, startDate)
	if err != nil {
		return fmt.Errorf("%w: start date %q is not YYYY-MM-DD", ErrInvalidArgument, startDate)
	}
	end, err := time.Parse(dateLayout, endDate)
	if err != nil {
		return fmt.Errorf("%w: end date %q is not YYYY-MM-DD", ErrInvalidArgument, endDate)
	}
	if end.Before(start) {
		return fmt.Errorf("%w: end date before start date", ErrInvalidArgument)
	}
	return nil
}

// API response types.

type listResponse struct {
	Entries []Entry `json:"entries"`
}

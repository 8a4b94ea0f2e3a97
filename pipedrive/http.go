package pipedrive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const maxResponseBytes = 16 << 20

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) {
		if hc != nil {
			c.hc = hc
		}
	}
}

// WithLogger sets the logger used for per-request debug events.
func WithLogger(l *slog.Logger) HTTPOption {
	return func(c *HTTPClient) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRequestObserver registers a callback receiving the operation name,
// HTTP status (0 on transport failure) and latency of every request.
func WithRequestObserver(fn func(op string, status int, dur time.Duration)) HTTPOption {
	return func(c *HTTPClient) { c.observe = fn }
}

// HTTPClient implements Client against the Pipedrive v1 REST API. The API
// token travels in the x-api-token header, never in the URL.
type HTTPClient struct {
	base    *url.URL
	token   string
	hc      *http.Client
	log     *slog.Logger
	observe func(op string, status int, dur time.Duration)
}

// BaseURLForDomain returns the v1 API root of a company domain such as
// "acme.pipedrive.com".
func BaseURLForDomain(domain string) string {
	return "https://" + strings.TrimSuffix(domain, "/") + "/api/v1"
}

// NewHTTPClient validates baseURL and returns a client authenticating with token.
func NewHTTPClient(baseURL, token string, opts ...HTTPOption) (*HTTPClient, error) {
	if token == "" {
		return nil, errors.New("pipedrive: api token is required")
	}
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("pipedrive: invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("pipedrive: base url must be http or https, got %q", baseURL)
	}
	c := &HTTPClient{
		base:  u,
		token: token,
		hc:    &http.Client{Timeout: 30 * time.Second},
		log:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
	ErrorInfo string          `json:"error_info"`
}

// get performs a GET on path and returns the envelope's data member.
func (c *HTTPClient) get(ctx context.Context, op, path string, q url.Values) (json.RawMessage, error) {
	u := *c.base
	u.Path = c.base.Path + path
	if q != nil {
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("pipedrive: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-token", c.token)

	start := time.Now()
	res, err := c.hc.Do(req)
	if err != nil {
		err = stripURL(err)
		c.done(ctx, op, 0, start, err)
		return nil, fmt.Errorf("pipedrive: %s: %w", op, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		c.done(ctx, op, res.StatusCode, start, err)
		return nil, fmt.Errorf("pipedrive: %s: read body: %w", op, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(body, &env)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		apiErr := &APIError{StatusCode: res.StatusCode}
		if decodeErr == nil {
			apiErr.Message = env.Error
		}
		c.done(ctx, op, res.StatusCode, start, apiErr)
		return nil, apiErr
	}
	if decodeErr != nil {
		c.done(ctx, op, res.StatusCode, start, decodeErr)
		return nil, fmt.Errorf("pipedrive: %s: decode response: %w", op, decodeErr)
	}
	if !env.Success {
		apiErr := &APIError{StatusCode: res.StatusCode, Message: env.Error}
		if apiErr.Message == "" {
			apiErr.Message = "request was not successful"
		}
		c.done(ctx, op, res.StatusCode, start, apiErr)
		return nil, apiErr
	}

	c.done(ctx, op, res.StatusCode, start, nil)
	if len(env.Data) == 0 {
		return json.RawMessage("null"), nil
	}
	return env.Data, nil
}

func (c *HTTPClient) done(ctx context.Context, op string, status int, start time.Time, err error) {
	dur := time.Since(start)
	if c.observe != nil {
		c.observe(op, status, dur)
	}
	if err != nil {
		c.log.DebugContext(ctx, "pipedrive.request.fail", slog.String("op", op), slog.Int("status", status), slog.Duration("dur", dur), slog.String("err", err.Error()))
		return
	}
	c.log.DebugContext(ctx, "pipedrive.request.ok", slog.String("op", op), slog.Int("status", status), slog.Duration("dur", dur))
}

func decodeList[T any](data json.RawMessage, err error) ([]T, error) {
	if err != nil {
		return nil, err
	}
	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("pipedrive: decode list: %w", err)
	}
	return out, nil
}

func formatID(n int64) string { return strconv.FormatInt(n, 10) }

func termQuery(term string) url.Values {
	return url.Values{"term": {term}}
}

func (c *HTTPClient) ListUsers(ctx context.Context) ([]User, error) {
	return decodeList[User](c.get(ctx, "users.list", "/users", nil))
}

func (c *HTTPClient) ListDeals(ctx context.Context, f DealFilter) ([]Deal, error) {
	q := url.Values{"sort": {"last_activity_date DESC"}}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.OwnerID != 0 {
		q.Set("user_id", formatID(f.OwnerID))
	}
	if f.StageID != 0 {
		q.Set("stage_id", formatID(f.StageID))
	}
	if f.PipelineID != 0 {
		q.Set("pipeline_id", formatID(f.PipelineID))
	}
	return decodeList[Deal](c.get(ctx, "deals.list", "/deals", q))
}

func (c *HTTPClient) SearchDeals(ctx context.Context, term string) (json.RawMessage, error) {
	return c.get(ctx, "deals.search", "/deals/search", termQuery(term))
}

func (c *HTTPClient) GetDeal(ctx context.Context, dealID int64) (json.RawMessage, error) {
	return c.get(ctx, "deals.get", "/deals/"+formatID(dealID), nil)
}

func (c *HTTPClient) ListDealNotes(ctx context.Context, dealID int64, limit int) ([]json.RawMessage, error) {
	q := url.Values{"deal_id": {formatID(dealID)}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return decodeList[json.RawMessage](c.get(ctx, "notes.list", "/notes", q))
}

func (c *HTTPClient) ListPersons(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "persons.list", "/persons", nil)
}

func (c *HTTPClient) GetPerson(ctx context.Context, personID int64) (json.RawMessage, error) {
	return c.get(ctx, "persons.get", "/persons/"+formatID(personID), nil)
}

func (c *HTTPClient) SearchPersons(ctx context.Context, term string) (json.RawMessage, error) {
	return c.get(ctx, "persons.search", "/persons/search", termQuery(term))
}

func (c *HTTPClient) ListOrganizations(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "organizations.list", "/organizations", nil)
}

func (c *HTTPClient) GetOrganization(ctx context.Context, orgID int64) (json.RawMessage, error) {
	return c.get(ctx, "organizations.get", "/organizations/"+formatID(orgID), nil)
}

func (c *HTTPClient) SearchOrganizations(ctx context.Context, term string) (json.RawMessage, error) {
	return c.get(ctx, "organizations.search", "/organizations/search", termQuery(term))
}

func (c *HTTPClient) ListPipelines(ctx context.Context) ([]Pipeline, error) {
	return decodeList[Pipeline](c.get(ctx, "pipelines.list", "/pipelines", nil))
}

func (c *HTTPClient) GetPipeline(ctx context.Context, pipelineID int64) (json.RawMessage, error) {
	return c.get(ctx, "pipelines.get", "/pipelines/"+formatID(pipelineID), nil)
}

func (c *HTTPClient) ListStages(ctx context.Context, pipelineID int64) ([]Stage, error) {
	return decodeList[Stage](c.get(ctx, "stages.list", "/stages", url.Values{"pipeline_id": {formatID(pipelineID)}}))
}

func (c *HTTPClient) SearchLeads(ctx context.Context, term string) (json.RawMessage, error) {
	return c.get(ctx, "leads.search", "/leads/search", termQuery(term))
}

func (c *HTTPClient) SearchItems(ctx context.Context, term string, itemTypes string) (json.RawMessage, error) {
	q := termQuery(term)
	if itemTypes != "" {
		q.Set("item_types", itemTypes)
	}
	return c.get(ctx, "items.search", "/itemSearch", q)
}

var _ Client = (*HTTPClient)(nil)

// stripURL drops the request URL from transport errors so callers only see
// the operation and cause.
func stripURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s request: %w", strings.ToLower(urlErr.Op), urlErr.Err)
	}
	return err
}

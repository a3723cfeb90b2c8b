package botsync

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	OpListFlows     = "list_flows"
	OpCreateFlow    = "create_flow"
	OpUpdateFlow    = "update_flow"
	OpDeleteFlow    = "delete_flow"
	OpUpdateAirules = "update_airules"
	OpBuild         = "build"
	OpCreateLabel   = "create_label"
	OpDeleteLabel   = "delete_label"
)

// RemoteStore is the studio API for one bot.
type RemoteStore interface {
	ListFlows(ctx context.Context) ([]Flow, error)
	CreateFlow(ctx context.Context, flow Flow) (Flow, error)
	UpdateFlow(ctx context.Context, id string, flow Flow) (Flow, error)
	DeleteFlow(ctx context.Context, id string) error
	UpdateAirules(ctx context.Context, rules Airules) error
	Build(ctx context.Context) error
	CreateLabel(ctx context.Context, name string) (Label, error)
	DeleteLabel(ctx context.Context, name string) (Label, error)
}

type HTTPClientOptions struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	HTTPClient *http.Client
	// RequestsPerSecond throttles outgoing calls; zero disables throttling.
	RequestsPerSecond float64
	UserAgent         string
}

type HTTPClient struct {
	baseURL    string
	signer     *Signer
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
}

var _ RemoteStore = (*HTTPClient)(nil)

func NewHTTPClient(opts HTTPClientOptions) *HTTPClient {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = "botsync/1.0"
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		signer:     NewSigner(opts.APIKey, opts.APISecret),
		httpClient: httpClient,
		limiter:    limiter,
		userAgent:  userAgent,
	}
}

func (c *HTTPClient) ListFlows(ctx context.Context) ([]Flow, error) {
	var out []Flow
	if err := c.doJSON(ctx, OpListFlows, http.MethodGet, "/api/bot/flows", nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []Flow{}
	}
	return out, nil
}

func (c *HTTPClient) CreateFlow(ctx context.Context, flow Flow) (Flow, error) {
	var out Flow
	err := c.doJSON(ctx, OpCreateFlow, http.MethodPost, "/api/bot/flows", flow, &out)
	return out, err
}

func (c *HTTPClient) UpdateFlow(ctx context.Context, id string, flow Flow) (Flow, error) {
	var out Flow
	err := c.doJSON(ctx, OpUpdateFlow, http.MethodPut, "/api/bot/flows/"+url.PathEscape(id), flow, &out)
	return out, err
}

func (c *HTTPClient) DeleteFlow(ctx context.Context, id string) error {
	return c.doJSON(ctx, OpDeleteFlow, http.MethodDelete, "/api/bot/flows/"+url.PathEscape(id), nil, nil)
}

func (c *HTTPClient) UpdateAirules(ctx context.Context, rules Airules) error {
	if rules == nil {
		rules = Airules{}
	}
	body := map[string]any{"airules": rules}
	return c.doJSON(ctx, OpUpdateAirules, http.MethodPut, "/api/bot", body, nil)
}

func (c *HTTPClient) Build(ctx context.Context) error {
	return c.doJSON(ctx, OpBuild, http.MethodPost, "/api/bot/build", nil, nil)
}

func (c *HTTPClient) CreateLabel(ctx context.Context, name string) (Label, error) {
	var out json.RawMessage
	body := map[string]string{"label": name}
	if err := c.doJSON(ctx, OpCreateLabel, http.MethodPost, "/api/bot/label", body, &out); err != nil {
		return nil, err
	}
	return Label(out), nil
}

func (c *HTTPClient) DeleteLabel(ctx context.Context, name string) (Label, error) {
	var out json.RawMessage
	if err := c.doJSON(ctx, OpDeleteLabel, http.MethodDelete, "/api/bot/label/"+url.PathEscape(name), nil, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return Label(out), nil
}

func (c *HTTPClient) doJSON(
	ctx context.Context,
	op, method, requestPath string,
	body any,
	out any,
) error {
	fail := func(err error) error {
		return &RemoteCallError{Op: op, Method: method, Path: requestPath, Err: err}
	}

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fail(err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fail(err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
	if err != nil {
		return fail(err)
	}
	c.signer.Sign().Apply(req)
	req.Header.Set("X-Correlation-Id", correlationID())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fail(err)
	}
	payloadBytes, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return fail(readErr)
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		if out == nil || len(bytes.TrimSpace(payloadBytes)) == 0 {
			return nil
		}
		if err := json.Unmarshal(payloadBytes, out); err != nil {
			return fail(err)
		}
		return nil
	}

	var errPayload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(payloadBytes, &errPayload)
	message := errPayload.Message
	if message == "" {
		message = strings.TrimSpace(string(payloadBytes))
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return &RemoteCallError{
		Op:         op,
		Method:     method,
		Path:       requestPath,
		StatusCode: resp.StatusCode,
		Code:       errPayload.Code,
		Message:    message,
	}
}

func correlationID() string {
	return "botsync_" + uuid.NewString()
}

package grouping

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dormship-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dormship-backend/pkg/errors"
)

const (
	defaultTimeout              = 10 * time.Second
	responseBodyReadLimit int64 = 1024
	apiKeyHeader                = "X-Api-Key"
)

// Client calls the external grouping and routing service. The algorithms are
// opaque to this system; requests pass constraints through and results are
// consumed as returned.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithAPIKey sets the key sent on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = strings.TrimSpace(key)
	}
}

// WithTimeout bounds each call.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient builds a grouping client for baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("grouping base url is required")
	}
	client := &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Order is the view of an order the grouping service works with.
type Order struct {
	ID        uuid.UUID       `json:"id"`
	Weight    decimal.Decimal `json:"weight"`
	Dormitory string          `json:"dormitory"`
	Building  string          `json:"building"`
	Room      string          `json:"room"`
	TimeSlot  string          `json:"timeSlot"`
}

// GroupRequest asks for candidate deliveries under a weight cap.
type GroupRequest struct {
	MaxWeight decimal.Decimal    `json:"maxWeight"`
	Dormitory string             `json:"dormitory"`
	TimeSlot  string             `json:"timeSlot"`
	Mode      enums.GroupingMode `json:"mode"`
	Orders    []Order            `json:"orders"`
}

// GroupResult lists suggested deliveries and the orders left for later.
type GroupResult struct {
	Deliveries [][]Order `json:"deliveries"`
	Delayed    []Order   `json:"delayed"`
}

// Stop is one drop-off point in a route.
type Stop struct {
	ID        uuid.UUID `json:"id"`
	Room      string    `json:"room"`
	Building  string    `json:"building"`
	Dormitory string    `json:"dormitory"`
}

// GroupOrders calls groupOrders.
func (c *Client) GroupOrders(ctx context.Context, req GroupRequest) (*GroupResult, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "grouping client not configured")
	}
	if !req.MaxWeight.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "max weight must be positive")
	}
	if !req.Mode.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid grouping mode")
	}
	var result GroupResult
	if err := c.post(ctx, "v1/group-orders", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RouteOrders calls routeOrders and returns the stops in visiting order.
func (c *Client) RouteOrders(ctx context.Context, stops []Stop) ([]Stop, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "grouping client not configured")
	}
	if len(stops) == 0 {
		return nil, nil
	}
	var resp struct {
		Orders []Stop `json:"orders"`
	}
	if err := c.post(ctx, "v1/route-orders", map[string]any{"orders": stops}, &resp); err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal grouping request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+path, bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build grouping request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute grouping request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "grouping request failed")
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode grouping response")
	}
	return nil
}

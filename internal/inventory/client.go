package inventory

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	DefaultStockPath    = "/api/mail/getStock"
	DefaultAllocatePath = "/api/mail/getMail"

	maxBodyBytes = 1 << 20
)

type Config struct {
	BaseURL      string
	ClientKey    string
	StockPath    string
	AllocatePath string
	Timeout      time.Duration
	Logger       logrus.FieldLogger
}

// Client is the HTTP implementation of Provider.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        logrus.FieldLogger
}

func NewClient(cfg Config) *Client {
	if cfg.StockPath == "" {
		cfg.StockPath = DefaultStockPath
	}
	if cfg.AllocatePath == "" {
		cfg.AllocatePath = DefaultAllocatePath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        cfg.Logger.WithField("component", "inventory"),
	}
}

func (c *Client) CheckStock(ctx context.Context, itemType string) int {
	body, err := c.get(ctx, c.cfg.StockPath, url.Values{"type": {itemType}})
	if err != nil {
		c.log.WithError(err).WithField("item_type", itemType).Warn("stock check failed, reporting zero")
		return 0
	}
	if err := upstreamFailure(body); err != nil {
		c.log.WithError(err).WithField("item_type", itemType).Warn("stock check rejected, reporting zero")
		return 0
	}

	available := gjson.GetBytes(body, "available")
	if !available.Exists() {
		available = gjson.GetBytes(body, "data")
	}
	if available.Type != gjson.Number || available.Int() < 0 {
		c.log.WithField("item_type", itemType).Warn("stock response has no usable count, reporting zero")
		return 0
	}
	return int(available.Int())
}

func (c *Client) Allocate(ctx context.Context, itemType string, quantity int) ([]string, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrAllocationFailed)
	}

	body, err := c.get(ctx, c.cfg.AllocatePath, url.Values{
		"type": {itemType},
		"qty":  {strconv.Itoa(quantity)},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllocationFailed, err)
	}
	if err := upstreamFailure(body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllocationFailed, err)
	}

	items := gjson.GetBytes(body, "items")
	if !items.Exists() {
		items = gjson.GetBytes(body, "data")
	}
	if !items.IsArray() {
		return nil, fmt.Errorf("%w: response carries no item list", ErrAllocationFailed)
	}

	tokens := make([]string, 0, quantity)
	for _, item := range items.Array() {
		token := strings.TrimSpace(item.String())
		if token == "" {
			continue
		}
		tokens = append(tokens, token)
	}
	if len(tokens) < quantity {
		return nil, fmt.Errorf("%w: received %d of %d items", ErrAllocationFailed, len(tokens), quantity)
	}
	if len(tokens) > quantity {
		c.log.WithFields(logrus.Fields{
			"item_type": itemType,
			"requested": quantity,
			"received":  len(tokens),
		}).Warn("upstream returned more items than requested, keeping the requested count")
		tokens = tokens[:quantity]
	}
	return tokens, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	query.Set("clientKey", c.cfg.ClientKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call upstream: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("upstream status %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("malformed upstream body")
	}
	return body, nil
}

// upstreamFailure inspects the supplier envelope, which reports errors either as a
// non-zero code or as success=false.
func upstreamFailure(body []byte) error {
	if code := gjson.GetBytes(body, "code"); code.Exists() && code.Int() != 0 {
		return fmt.Errorf("upstream code %d: %s", code.Int(), gjson.GetBytes(body, "message").String())
	}
	if ok := gjson.GetBytes(body, "success"); ok.Exists() && !ok.Bool() {
		return fmt.Errorf("upstream reported failure: %s", gjson.GetBytes(body, "message").String())
	}
	return nil
}

var _ Provider = (*Client)(nil)

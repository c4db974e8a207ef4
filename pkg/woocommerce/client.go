package woocommerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/ravewear-storefront/pkg/config"
	pkgerrors "github.com/angelmondragon/ravewear-storefront/pkg/errors"
)

const (
	restAPIPath           = "/wp-json/wc/v3"
	userAgent             = "ravewear-storefront/1.0"
	defaultTimeout        = 30 * time.Second
	errorBodyReadLimit    = 4096
	variationsPerPage     = 100
	maxVariationPages     = 20
	metaCheckoutAttemptID = "_checkout_attempt_id"
	metaCartSessionID     = "_cart_session_id"
)

var (
	errStoreURLRequired    = errors.New("woocommerce store url is required")
	errCredentialsRequired = errors.New("woocommerce consumer key and secret are required")
)

// Client talks to the WooCommerce REST API (v3) with consumer key/secret auth.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	consumerKey    string
	consumerSecret string
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

// NewClient builds the WooCommerce client from configuration.
func NewClient(cfg config.WooCommerceConfig, opts ...Option) (*Client, error) {
	storeURL := strings.TrimSuffix(strings.TrimSpace(cfg.StoreURL), "/")
	if storeURL == "" {
		return nil, errStoreURLRequired
	}
	key := strings.TrimSpace(cfg.ConsumerKey)
	secret := strings.TrimSpace(cfg.ConsumerSecret)
	if key == "" || secret == "" {
		return nil, errCredentialsRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := &Client{
		httpClient:     &http.Client{Timeout: timeout},
		baseURL:        storeURL + restAPIPath,
		consumerKey:    key,
		consumerSecret: secret,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, resource string, out any) (http.Header, error) {
	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal woocommerce request")
		}
		bodyReader = bytes.NewReader(payload)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build woocommerce request")
	}
	req.SetBasicAuth(c.consumerKey, c.consumerSecret)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "woocommerce unavailable")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return nil, parseErrorResponse(resp.StatusCode, raw, resource)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode woocommerce response")
		}
	}
	return resp.Header, nil
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// parseErrorResponse maps WooCommerce failures onto typed errors.
func parseErrorResponse(status int, body []byte, resource string) error {
	var wcErr apiError
	_ = json.Unmarshal(body, &wcErr)
	cause := fmt.Errorf("status %d: %s %s", status, wcErr.Code, strings.TrimSpace(wcErr.Message))

	switch {
	case status == http.StatusNotFound:
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, cause, resource+" not found")
	case status == http.StatusBadRequest:
		msg := strings.TrimSpace(wcErr.Message)
		if msg == "" {
			msg = "invalid " + resource + " request"
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, cause, msg)
	case status == http.StatusTooManyRequests:
		return pkgerrors.Wrap(pkgerrors.CodeRateLimit, cause, "woocommerce rate limited")
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "woocommerce rejected credentials")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "woocommerce request failed")
	}
}

func totalPages(header http.Header) int {
	if header == nil {
		return 1
	}
	pages, err := strconv.Atoi(header.Get("X-WP-TotalPages"))
	if err != nil || pages < 1 {
		return 1
	}
	return pages
}

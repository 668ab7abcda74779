// Package binance is a minimal client for the Binance spot REST API.
//
// Public market-data endpoints need no credentials. Account and order
// endpoints are signed: the query string (with timestamp and recvWindow) is
// HMAC-SHA256 signed with the secret key and the API key is sent in the
// X-MBX-APIKEY header.
//
//	c := binance.New(binance.Config{APIKey: key, SecretKey: secret})
//	klines, err := c.Klines(ctx, "BTCUSDT", "1h", 100)
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultRoot = "https://api.binance.com"

var routes = map[string]string{
	"api.ping":        "/api/v3/ping",
	"api.klines":      "/api/v3/klines",
	"api.ticker.24hr": "/api/v3/ticker/24hr",
	"api.depth":       "/api/v3/depth",
	"api.account":     "/api/v3/account",
	"api.order":       "/api/v3/order",
	"api.open.orders": "/api/v3/openOrders",
}

// ErrMissingCredentials is returned by signed endpoints when no key pair is configured.
var ErrMissingCredentials = errors.New("binance: api key and secret required")

// APIError is the error body Binance returns with a non-2xx status.
type APIError struct {
	Status int    `json:"-"`
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance: http %d code %d: %s", e.Status, e.Code, e.Msg)
}

// Config for the REST client.
type Config struct {
	APIKey    string
	SecretKey string

	RootURL    string        // default: https://api.binance.com
	RecvWindow time.Duration // default: 5s
	Timeout    time.Duration // default: 10s
	ProxyURL   string        // optional HTTP proxy URL
	Debug      bool

	// HTTPClient overrides the transport entirely (tests).
	HTTPClient *http.Client
	// Now overrides the clock used for request timestamps (tests).
	Now func() time.Time
}

// Client talks to the Binance REST API. It is safe for concurrent use.
type Client struct {
	apiKey     string
	secretKey  string
	rootURL    string
	recvWindow time.Duration
	debug      bool
	httpClient *http.Client
	now        func() time.Time
}

// New creates a client.
func New(cfg Config) *Client {
	if cfg.RootURL == "" {
		cfg.RootURL = defaultRoot
	}
	if cfg.RecvWindow == 0 {
		cfg.RecvWindow = 5 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	client := cfg.HTTPClient
	if client == nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.ProxyURL != "" {
			if purl, err := url.Parse(cfg.ProxyURL); err == nil {
				tr.Proxy = http.ProxyURL(purl)
			}
		}
		client = &http.Client{Transport: tr, Timeout: cfg.Timeout}
	}

	return &Client{
		apiKey:     cfg.APIKey,
		secretKey:  cfg.SecretKey,
		rootURL:    strings.TrimRight(cfg.RootURL, "/"),
		recvWindow: cfg.RecvWindow,
		debug:      cfg.Debug,
		httpClient: client,
		now:        cfg.Now,
	}
}

// HasCredentials reports whether signed endpoints can be called.
func (c *Client) HasCredentials() bool {
	return c.apiKey != "" && c.secretKey != ""
}

// Sign returns the hex HMAC-SHA256 of payload under the secret key.
func (c *Client) Sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) buildURL(route string) (string, error) {
	uri, ok := routes[route]
	if !ok {
		return "", fmt.Errorf("unknown route: %s", route)
	}
	return c.rootURL + uri, nil
}

// doRequest sends the request and returns the raw body of a 2xx response.
func (c *Client) doRequest(ctx context.Context, method, route string, params url.Values, signed bool) ([]byte, error) {
	fullURL, err := c.buildURL(route)
	if err != nil {
		return nil, err
	}
	if params == nil {
		params = url.Values{}
	}

	query := params.Encode()
	if signed {
		if !c.HasCredentials() {
			return nil, ErrMissingCredentials
		}
		params.Set("recvWindow", strconv.FormatInt(c.recvWindow.Milliseconds(), 10))
		params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
		query = params.Encode()
		query += "&signature=" + c.Sign(query)
	}
	if query != "" {
		fullURL += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	if c.debug {
		log.Printf("[binance] request: %s %s", method, route)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("binance %s: %w", route, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("binance %s: read body: %w", route, err)
	}

	if c.debug {
		log.Printf("[binance] response: code=%d bytes=%d", resp.StatusCode, len(raw))
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Msg == "" {
			apiErr.Msg = strings.TrimSpace(string(raw))
		}
		return nil, apiErr
	}
	return raw, nil
}

func (c *Client) getJSON(ctx context.Context, route string, params url.Values, signed bool, out any) error {
	raw, err := c.doRequest(ctx, http.MethodGet, route, params, signed)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("binance %s: decode: %w", route, err)
	}
	return nil
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.doRequest(ctx, http.MethodGet, "api.ping", nil, false)
	return err
}

// Package client talks to a running salience server.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/lazypower/salience/internal/attention"
	"github.com/lazypower/salience/internal/engine"
	"github.com/lazypower/salience/internal/store"
)

const (
	// DefaultServerURL is used when SALIENCE_URL is unset.
	DefaultServerURL = "http://127.0.0.1:37778"
	httpTimeout      = 30 * time.Second
)

// Client talks to the salience server.
type Client struct {
	http      *http.Client
	serverURL string
}

// New creates a new HTTP client.
// Respects SALIENCE_URL env var, falls back to http://127.0.0.1:37778.
func New() *Client {
	u := os.Getenv("SALIENCE_URL")
	if u == "" {
		u = DefaultServerURL
	}
	return NewWithURL(u, nil)
}

// NewWithURL creates a client for serverURL. A nil hc gets a client with the
// default timeout.
func NewWithURL(serverURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: httpTimeout}
	}
	return &Client{http: hc, serverURL: serverURL}
}

// URL returns the server base URL.
func (c *Client) URL() string { return c.serverURL }

// Post sends a POST request with JSON body. Returns response body.
func (c *Client) Post(path string, body []byte) ([]byte, error) {
	resp, err := c.http.Post(c.serverURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		return data, fmt.Errorf("POST %s: status %d: %s", path, resp.StatusCode, data)
	}
	return data, nil
}

// Get sends a GET request. Returns response body.
func (c *Client) Get(path string) ([]byte, error) {
	resp, err := c.http.Get(c.serverURL + path)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		return data, fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, data)
	}
	return data, nil
}

// Healthy checks if the server is reachable.
func (c *Client) Healthy() bool {
	resp, err := c.http.Get(c.serverURL + "/api/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	Stats        attention.Stats   `json:"stats"`
	Mechanism    string            `json:"mechanism"`
	Initialized  bool              `json:"initialized"`
	Economy      attention.Economy `json:"economy"`
	GradientNorm float64           `json:"gradient_norm"`
	Atoms        int               `json:"atoms"`
	Links        int               `json:"links"`
	Cycles       int               `json:"cycles"`
}

// Stats fetches the server's current statistics.
func (c *Client) Stats() (*StatsResponse, error) {
	data, err := c.Get("/api/stats")
	if err != nil {
		return nil, err
	}
	var out StatsResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}
	return &out, nil
}

// RunCycle asks the server to run n cycles and returns the last result.
func (c *Client) RunCycle(n int) (*engine.CycleResult, error) {
	if n <= 0 {
		n = 1
	}
	data, err := c.Post("/api/cycles?n="+strconv.Itoa(n), nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Result *engine.CycleResult `json:"result"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode cycle: %w", err)
	}
	return out.Result, nil
}

// Flows fetches up to limit of the most recent flows, oldest first.
func (c *Client) Flows(limit int) ([]attention.Flow, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/flows"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	data, err := c.Get(path)
	if err != nil {
		return nil, err
	}
	var out struct {
		Flows []attention.Flow `json:"flows"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode flows: %w", err)
	}
	return out.Flows, nil
}

// Cycles fetches the most recent cycle history, newest first.
func (c *Client) Cycles(limit int) ([]store.Cycle, error) {
	data, err := c.Get("/api/cycles?limit=" + strconv.Itoa(limit))
	if err != nil {
		return nil, err
	}
	var out struct {
		Cycles []store.Cycle `json:"cycles"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode cycles: %w", err)
	}
	return out.Cycles, nil
}

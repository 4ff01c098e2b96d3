// Package client provides a Go client for a Micropub endpoint.
package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client posts entries to a Micropub endpoint.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Token      string
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Create posts an h-entry as JSON and returns the created entry's URL
// from the Location header.
func (c *Client) Create(properties map[string]any) (string, error) {
	payload := map[string]any{"h": "entry"}
	for name, value := range properties {
		payload[name] = value
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequest(http.MethodPost, c.BaseURL+"/micropub", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	return c.doCreate(req)
}

// CreateForm posts an h-entry form-encoded, for clients that cannot
// produce JSON.
func (c *Client) CreateForm(values url.Values) (string, error) {
	form := url.Values{}
	for key, vals := range values {
		form[key] = vals
	}
	form.Set("h", "entry")

	req, err := http.NewRequest(http.MethodPost, c.BaseURL+"/micropub", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.authorize(req)

	return c.doCreate(req)
}

func (c *Client) doCreate(req *http.Request) (string, error) {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", errorFromResponse(resp)
	}
	location := resp.Header.Get("Location")
	if location == "" {
		return "", errors.New("no Location header in response")
	}
	return location, nil
}

// Config queries the endpoint's q=config document.
func (c *Client) Config() (map[string]any, error) {
	req, err := http.NewRequest(http.MethodGet, c.BaseURL+"/micropub?q=config", nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errorFromResponse(resp)
	}
	var config map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&config); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
}

func errorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	var payload struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return fmt.Errorf("%s (%d): %s", payload.Error, resp.StatusCode, payload.Description)
	}
	return fmt.Errorf("request failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

// Package accountname is a client for the front end's account-name endpoint.
package accountname

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/apex/log"
	"github.com/tidwall/gjson"
)

// Path is the endpoint path relative to the origin.
const Path = "/get_account_name"

// ErrNoAccountName is returned when the response has no account_name string.
var ErrNoAccountName = errors.New("response has no account_name")

type Client struct {
	base *url.URL
	http *http.Client
}

// New returns a client for the origin base. Requests go through rt, or
// http.DefaultTransport when rt is nil.
func New(base *url.URL, rt http.RoundTripper) *Client {
	if rt == nil {
		rt = http.DefaultTransport
	}
	return &Client{base: base, http: &http.Client{Transport: rt}}
}

// URL is the lookup URL for id.
func (c *Client) URL(id string) *url.URL {
	u := c.base.ResolveReference(&url.URL{Path: Path})
	u.RawQuery = url.Values{"account_id": {id}}.Encode()
	return u
}

// Lookup returns the display name of account id.
func (c *Client) Lookup(ctx context.Context, id string) (string, error) {
	u := c.URL(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("account name lookup failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read account name response: %w", err)
	}
	log.WithFields(log.Fields{"url": u.String(), "status": resp.StatusCode}).Debug("account name response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("account name lookup failed: %s", resp.Status)
	}
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("account name response is not JSON")
	}

	name := gjson.GetBytes(body, "account_name")
	if name.Type != gjson.String {
		return "", ErrNoAccountName
	}
	return name.String(), nil
}

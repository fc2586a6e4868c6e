package network

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// broadcastTimeout is the hard per-request timeout for gossip (spec.md
// §4.7 / §5's "500 ms per outbound request" resource budget).
const broadcastTimeout = 500 * time.Millisecond

// syncTimeout bounds a single catch-up request (header/block batch fetch),
// grounded on the teacher's p2p.Syncer syncReadTimeout.
const syncTimeout = 30 * time.Second

// maxResponseBytes caps a single response body read during sync, mirroring
// the teacher's maxSyncResponseBytes guard against a misbehaving peer.
const maxResponseBytes = 10 << 20

// httpClient is the outbound transport shared by the broadcaster, the
// syncer, and peer-set cycling. It is unexported, so code outside this
// package cannot replace it.
var httpClient = &http.Client{}

// getJSON issues a GET request against url and decodes the JSON response
// body into out. A nil out discards the body after reading the error path.
func getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return doJSON(req, out)
}

// getJSONBody issues a GET request carrying a JSON body — spec.md §4.6
// models /get-blocks, /get-headers, and /get-data as GET with a payload,
// which net/http permits (a body on GET is unusual but well-defined).
func getJSONBody(ctx context.Context, url string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return doJSON(req, out)
}

// postJSON issues a POST request with body JSON-encoded from in, decoding
// the JSON response into out (nil to ignore a body-less response).
func postJSON(ctx context.Context, url string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return doJSON(req, out)
}

// deleteJSON issues a DELETE request with a JSON body, per /unpair's
// "same payload as /pair_up" contract.
func deleteJSON(ctx context.Context, url string, in any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return doJSON(req, nil)
}

func doJSON(req *http.Request, out any) error {
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var wireErr WireError
		if json.Unmarshal(body, &wireErr) == nil && wireErr.Error != "" {
			return fmt.Errorf("%s: %s: %s", req.URL, wireErr.Error, wireErr.Message)
		}
		return fmt.Errorf("%s: http %d", req.URL, resp.StatusCode)
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

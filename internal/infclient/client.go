package infclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"raggate/pkg/types"
)

// Client is a thin typed wrapper over the inference daemon's HTTP
// surface. It holds no connection state beyond the pooled transport, so
// reconnecting is implicit: the next call simply dials again.
type Client struct {
	baseURL string
	http    *http.Client
}

// New constructs a client for the given base URL, e.g. "http://inferd:8090".
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// No overall timeout: chat streams are long-lived and bounded
		// by the caller's context instead.
		http: &http.Client{},
	}
}

// RemoteError is an error frame received from the inference side.
type RemoteError struct{ Detail string }

func (e RemoteError) Error() string { return "inference error: " + e.Detail }

// IsRemote reports whether err originated on the inference side.
func IsRemote(err error) bool {
	_, ok := err.(RemoteError)
	return ok
}

// StatusError is a non-200 response to a non-streaming call.
type StatusError struct {
	Code   int
	Detail string
}

func (e StatusError) Error() string {
	return fmt.Sprintf("inference rpc status %d: %s", e.Code, e.Detail)
}

// Ping verifies the inference side is reachable.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return StatusError{Code: resp.StatusCode, Detail: "health check failed"}
	}
	return nil
}

// ListModels returns the inference side's model inventory.
func (c *Client) ListModels(ctx context.Context) (types.ModelListResponse, error) {
	var out types.ModelListResponse
	err := c.getJSON(ctx, "/v1/models", &out)
	return out, err
}

// Status returns the inference side's slot status.
func (c *Client) Status(ctx context.Context) (types.StatusResponse, error) {
	var out types.StatusResponse
	err := c.getJSON(ctx, "/status", &out)
	return out, err
}

// SwitchModel asks the inference side to load a different model. The
// response is an acknowledgement; busy and not-found come back with
// Success=false rather than as transport errors.
func (c *Client) SwitchModel(ctx context.Context, name string, kind types.ModelKind) (types.SwitchModelResponse, error) {
	var out types.SwitchModelResponse
	status, err := c.postJSON(ctx, "/v1/models/switch", types.SwitchModelRequest{ModelName: name, ModelType: kind}, &out)
	if err != nil {
		return out, err
	}
	switch status {
	case http.StatusOK, http.StatusNotFound, http.StatusTooManyRequests:
		return out, nil
	default:
		return out, StatusError{Code: status, Detail: out.Message}
	}
}

// Embeddings returns one vector per text, in input order.
func (c *Client) Embeddings(ctx context.Context, texts []string) ([][]float32, error) {
	var out types.EmbeddingsResponse
	status, err := c.postJSON(ctx, "/v1/embeddings", types.EmbeddingsRequest{Texts: texts}, &out)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, StatusError{Code: status, Detail: "embeddings failed"}
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embeddings count mismatch: got %d want %d", len(out.Embeddings), len(texts))
	}
	return out.Embeddings, nil
}

// ChatStream issues a streaming chat call and forwards each token to
// onToken in arrival order. A remote error frame aborts the stream with
// a RemoteError; canceling ctx aborts the underlying request.
func (c *Client) ChatStream(ctx context.Context, req types.ChatRequest, onToken func(string) error) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return StatusError{Code: resp.StatusCode, Detail: readErrorDetail(resp.Body)}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var frame types.StreamFrame
		if err := json.Unmarshal(line, &frame); err != nil {
			return fmt.Errorf("malformed stream frame: %w", err)
		}
		if frame.Error != "" {
			return RemoteError{Detail: frame.Error}
		}
		if err := onToken(frame.Token); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return StatusError{Code: resp.StatusCode, Detail: readErrorDetail(resp.Body)}
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

// postJSON returns the HTTP status and decodes the body into dst when
// the response carries JSON, letting callers interpret non-200 acks.
func (c *Client) postJSON(ctx context.Context, path string, payload, dst any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); strings.HasPrefix(ct, "application/json") {
		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil && resp.StatusCode == http.StatusOK {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func readErrorDetail(r io.Reader) string {
	var e types.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(r, 4096)).Decode(&e); err == nil && e.Error != "" {
		return e.Error
	}
	return "request failed"
}

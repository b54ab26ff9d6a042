// Package triton is a small HTTP client for the Triton inference
// server's KServe v2 protocol: readiness, model metadata, and JSON
// tensor inference.
package triton

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DatatypeFP32 is the tensor datatype used for image inputs and
// detection outputs.
const DatatypeFP32 = "FP32"

// TensorMeta describes one declared model input or output.
type TensorMeta struct {
	Name     string  `json:"name"`
	Datatype string  `json:"datatype"`
	Shape    []int64 `json:"shape"`
}

// ModelMetadata is the server's description of a loaded model.
type ModelMetadata struct {
	Name     string       `json:"name"`
	Platform string       `json:"platform"`
	Versions []string     `json:"versions"`
	Inputs   []TensorMeta `json:"inputs"`
	Outputs  []TensorMeta `json:"outputs"`
}

// InferInput is one input tensor, flattened row-major.
type InferInput struct {
	Name     string    `json:"name"`
	Shape    []int64   `json:"shape"`
	Datatype string    `json:"datatype"`
	Data     []float32 `json:"data"`
}

// InferOutput is one output tensor, flattened row-major.
type InferOutput struct {
	Name     string    `json:"name"`
	Datatype string    `json:"datatype"`
	Shape    []int64   `json:"shape"`
	Data     []float32 `json:"data"`
}

type inferRequest struct {
	Inputs  []InferInput      `json:"inputs"`
	Outputs []requestedOutput `json:"outputs,omitempty"`
}

type requestedOutput struct {
	Name string `json:"name"`
}

type inferResponse struct {
	ModelName string        `json:"model_name"`
	Outputs   []InferOutput `json:"outputs"`
}

// Client talks to one Triton instance.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the given base URL (for example
// http://localhost:8000). Call deadlines come from the caller's context.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
}

// Ready reports whether the server answers its readiness probe.
func (c *Client) Ready(ctx context.Context) error {
	resp, err := c.get(ctx, "/v2/health/ready")
	if err != nil {
		return err
	}
	defer drain(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server not ready: status %s", resp.Status)
	}
	return nil
}

// ModelMetadata fetches the declared inputs, outputs and versions of a
// loaded model.
func (c *Client) ModelMetadata(ctx context.Context, model string) (*ModelMetadata, error) {
	resp, err := c.get(ctx, "/v2/models/"+model)
	if err != nil {
		return nil, err
	}
	defer drain(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model %s: %s", model, errorBody(resp))
	}

	var meta ModelMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("failed to decode model metadata: %w", err)
	}
	return &meta, nil
}

// Infer runs one inference and returns the requested output tensors.
// With no output names the server returns all outputs.
func (c *Client) Infer(ctx context.Context, model string, inputs []InferInput, outputs ...string) ([]InferOutput, error) {
	reqBody := inferRequest{Inputs: inputs}
	for _, name := range outputs {
		reqBody.Outputs = append(reqBody.Outputs, requestedOutput{Name: name})
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	url := fmt.Sprintf("%s/v2/models/%s/infer", c.baseURL, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach triton: %w", err)
	}
	defer drain(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("infer %s: %s", model, errorBody(resp))
	}

	var out inferResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode inference response: %w", err)
	}
	return out.Outputs, nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach triton: %w", err)
	}
	return resp, nil
}

// errorBody summarizes a non-200 response, keeping a short snippet of
// the body for the log line.
func errorBody(resp *http.Response) string {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	s := strings.TrimSpace(string(snippet))
	if s == "" {
		return fmt.Sprintf("unexpected status %s", resp.Status)
	}
	return fmt.Sprintf("unexpected status %s: %s", resp.Status, s)
}

func drain(body io.ReadCloser) {
	io.Copy(io.Discard, body)
	body.Close()
}

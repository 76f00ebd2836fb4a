package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// DefaultURL is the hosted hate-speech classifier.
const DefaultURL = "https://api-inference.huggingface.co/models/facebook/roberta-hate-speech-dynabench-r4-target"

// maxResponseBytes bounds how much of a classifier response is read.
const maxResponseBytes = 1 << 20

// Hosted calls a hosted text-classification inference endpoint.
type Hosted struct {
	url        string
	token      string
	httpClient *http.Client
}

// NewHosted creates a classifier for url (DefaultURL when empty) that
// authenticates with token. Timeouts are applied per call by the Gate.
func NewHosted(url, token string) *Hosted {
	if url == "" {
		url = DefaultURL
	}
	return &Hosted{
		url:        url,
		token:      token,
		httpClient: &http.Client{},
	}
}

// Name implements Classifier.
func (h *Hosted) Name() string { return ProviderHosted }

type hostedRequest struct {
	Inputs string `json:"inputs"`
}

type hostedError struct {
	Error string `json:"error"`
}

// Classify implements Classifier. The endpoint answers with an array whose
// first element is the label/score list for the single input.
func (h *Hosted) Classify(ctx context.Context, text string) ([]Label, error) {
	reqBody, err := json.Marshal(hostedRequest{Inputs: text})
	if err != nil {
		return nil, &Error{Reason: ReasonDecode, Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, &Error{Reason: ReasonTransport, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Reason: ReasonTransport, Err: fmt.Errorf("send request: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &Error{Reason: ReasonTransport, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		var he hostedError
		if json.Unmarshal(body, &he) == nil && he.Error != "" {
			return nil, &Error{Reason: ReasonStatus, Err: fmt.Errorf("status %d: %s", resp.StatusCode, he.Error)}
		}
		return nil, &Error{Reason: ReasonStatus, Err: fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 256))}
	}

	return parseLabels(body)
}

func parseLabels(body []byte) ([]Label, error) {
	var batches [][]Label
	if err := json.Unmarshal(body, &batches); err != nil {
		var he hostedError
		if json.Unmarshal(body, &he) == nil && he.Error != "" {
			return nil, &Error{Reason: ReasonUpstream, Err: errors.New(he.Error)}
		}
		return nil, &Error{Reason: ReasonDecode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(batches) == 0 {
		return nil, &Error{Reason: ReasonDecode, Err: errors.New("empty response")}
	}
	return batches[0], nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

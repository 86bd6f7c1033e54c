package fabric

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chriscow/livekit-postop-sub000/pkg/config"
)

// HTTPClient talks to the fabric control plane over its JSON API.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient builds a fabric client from configuration.
func NewHTTPClient(cfg config.FabricConfig) (*HTTPClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("call fabric url is required")
	}
	return &HTTPClient{
		baseURL: cfg.URL,
		http:    &http.Client{Timeout: 5 * time.Minute}, // SIP answer waits are long
	}, nil
}

type dispatchResponse struct {
	DispatchID string `json:"dispatch_id"`
}

type participantResponse struct {
	ParticipantID string `json:"participant_id"`
	SIPStatusCode int    `json:"sip_status_code,omitempty"`
	SIPStatus     string `json:"sip_status,omitempty"`
}

type errorResponse struct {
	Error         string `json:"error"`
	SIPStatusCode int    `json:"sip_status_code,omitempty"`
	SIPStatus     string `json:"sip_status,omitempty"`
}

// CreateAgentDispatch implements Client.
func (c *HTTPClient) CreateAgentDispatch(ctx context.Context, req AgentDispatchRequest) (string, error) {
	var resp dispatchResponse
	if err := c.post(ctx, "/v1/agent-dispatches", req, &resp); err != nil {
		return "", fmt.Errorf("creating agent dispatch for %s: %w", req.RoomName, err)
	}
	return resp.DispatchID, nil
}

// CreateSIPParticipant implements Client.
func (c *HTTPClient) CreateSIPParticipant(ctx context.Context, req SIPParticipantRequest) (string, error) {
	var resp participantResponse
	if err := c.post(ctx, "/v1/sip-participants", req, &resp); err != nil {
		return "", fmt.Errorf("creating sip participant for %s: %w", req.RoomName, err)
	}
	return resp.ParticipantID, nil
}

// post sends a JSON request and decodes the response, converting fabric
// error payloads into SIPError values at the adapter boundary.
func (c *HTTPClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: reading response: %w", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if jsonErr := json.Unmarshal(raw, &errResp); jsonErr == nil && errResp.SIPStatusCode != 0 {
			return &SIPError{Code: errResp.SIPStatusCode, Status: errResp.SIPStatus}
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w: fabric returned %d", ErrUnavailable, resp.StatusCode)
		}
		return fmt.Errorf("fabric returned %d: %s", resp.StatusCode, string(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Package httpparticipant adapts a remote HTTP participant to
// participant.Participant, using a (tx_id, component_id, request_arg / ack)
// wire shape over plain JSON POSTs to {baseURL}/try, /confirm, /cancel.
package httpparticipant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/brnsampaio/tcc-coordinator/participant"
	"github.com/brnsampaio/tcc-coordinator/txerr"
)

// wireRequest/wireResponse are the over-the-wire request/response shapes.
type wireRequest struct {
	TxID        string                 `json:"tx_id"`
	ComponentID string                 `json:"component_id"`
	RequestArg  map[string]interface{} `json:"request_arg,omitempty"`
}

type wireResponse struct {
	TxID        string `json:"tx_id"`
	ComponentID string `json:"component_id"`
	Ack         bool   `json:"ack"`
	// Terminal distinguishes a business rejection (do not retry) from a
	// transient failure (retry). Absent/false means retryable.
	Terminal bool `json:"terminal,omitempty"`
}

// Client is an HTTP-backed participant.Participant.
type Client struct {
	id      string
	baseURL string
	http    *http.Client
}

// New builds a Client identified by id, issuing requests to baseURL (no
// trailing slash) with the given timeout.
func New(id, baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		id:      id,
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) Try(ctx context.Context, req *participant.Request) (*participant.Response, error) {
	resp, err := c.post(ctx, "/try", wireRequest{
		TxID:        req.TxID,
		ComponentID: c.id,
		RequestArg:  req.Args,
	})
	if err != nil {
		return nil, err
	}
	return toResponse(resp), nil
}

func (c *Client) Confirm(ctx context.Context, txID string) (*participant.Response, error) {
	resp, err := c.post(ctx, "/confirm", wireRequest{TxID: txID, ComponentID: c.id})
	if err != nil {
		return nil, err
	}
	return toResponse(resp), nil
}

func (c *Client) Cancel(ctx context.Context, txID string) (*participant.Response, error) {
	resp, err := c.post(ctx, "/cancel", wireRequest{TxID: txID, ComponentID: c.id})
	if err != nil {
		return nil, err
	}
	return toResponse(resp), nil
}

func (c *Client) post(ctx context.Context, path string, body wireRequest) (*wireResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		// network/timeout failures are retryable.
		return nil, txerr.NewStorageError("httpparticipant."+path, err)
	}
	defer httpResp.Body.Close()

	var wire wireResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&wire); err != nil {
		return nil, txerr.NewStorageError("httpparticipant."+path, err)
	}

	if httpResp.StatusCode >= 500 {
		return nil, txerr.NewStorageError("httpparticipant."+path, fmt.Errorf("status %d", httpResp.StatusCode))
	}
	if httpResp.StatusCode >= 400 && wire.Terminal {
		return nil, txerr.NewParticipantError(path[1:], c.id, fmt.Errorf("status %d", httpResp.StatusCode), false)
	}
	if httpResp.StatusCode >= 400 {
		return nil, txerr.NewStorageError("httpparticipant."+path, fmt.Errorf("status %d", httpResp.StatusCode))
	}
	return &wire, nil
}

func toResponse(wire *wireResponse) *participant.Response {
	return &participant.Response{
		TxID:          wire.TxID,
		ParticipantID: wire.ComponentID,
		Ack:           wire.Ack,
	}
}

var _ participant.Participant = (*Client)(nil)

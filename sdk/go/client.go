// Package phasegatesdk is a small client for the phase-gate HTTP API.
package phasegatesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal phase-gate HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BasePath:    "/v0",
		BearerToken: token,
		Timeout:     10 * time.Second,
	}
}

// WorkPackage represents the API work package model (partial).
type WorkPackage struct {
	ID               string `json:"id"`
	ProjectID        string `json:"project_id"`
	Name             string `json:"name"`
	Phase            string `json:"phase"`
	ScopeDescription string `json:"scope_description,omitempty"`
	Version          int64  `json:"version"`
	UpdatedAt        string `json:"updated_at,omitempty"`
}

// GateResult is one gate's outcome inside a trace.
type GateResult struct {
	Gate    string   `json:"gate"`
	Pass    bool     `json:"pass"`
	Reasons []string `json:"reasons"`
	Actions []string `json:"actions"`
}

// Trace is the result of evaluating one transition.
type Trace struct {
	ID            string       `json:"id"`
	WorkPackageID string       `json:"work_package_id"`
	From          string       `json:"from"`
	To            string       `json:"to"`
	EvaluatedAt   string       `json:"evaluated_at"`
	EdgeLegal     bool         `json:"edge_legal"`
	Gates         []GateResult `json:"gates"`
	Reasons       []string     `json:"reasons"`
	Actions       []string     `json:"actions"`
	Pass          bool         `json:"pass"`
}

// TransitionResult reports whether a requested transition was applied.
type TransitionResult struct {
	Applied     bool        `json:"applied"`
	WorkPackage WorkPackage `json:"work_package"`
	Trace       Trace       `json:"trace"`
}

// Event is one transition audit entry.
type Event struct {
	ID            int64  `json:"id"`
	TS            string `json:"ts"`
	Type          string `json:"type"`
	WorkPackageID string `json:"work_package_id"`
	ActorID       string `json:"actor_id"`
	Trace         Trace  `json:"trace"`
}

// Options overrides gate strictness for one request. Nil fields keep the
// server defaults.
type Options struct {
	RequireCloseoutDocs       *bool `json:"require_closeout_docs,omitempty"`
	RequireFinalInspection    *bool `json:"require_final_inspection,omitempty"`
	RequireClientAcceptance   *bool `json:"require_client_acceptance,omitempty"`
	CheckMaterialAvailability *bool `json:"check_material_availability,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsConflict reports a lost optimistic-concurrency race; the caller may
// reload and retry.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

// GetWorkPackage fetches a work package by id.
func (c *Client) GetWorkPackage(ctx context.Context, id string) (WorkPackage, error) {
	var resp WorkPackage
	err := c.do(ctx, http.MethodGet, "work-packages/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// NextPhases returns the legal successors of phase.
func (c *Client) NextPhases(ctx context.Context, phase string) ([]string, error) {
	var resp struct {
		Next []string `json:"next"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("phases/%s/next", url.PathEscape(phase)), nil, &resp)
	return resp.Next, err
}

// Evaluate dry-runs a transition and returns its trace.
func (c *Client) Evaluate(ctx context.Context, id, target string, opts *Options) (Trace, error) {
	var resp Trace
	err := c.do(ctx, http.MethodPost, "work-packages/"+url.PathEscape(id)+"/evaluate", transitionBody(target, opts), &resp)
	return resp, err
}

// Transition evaluates and applies a transition. A blocked transition is
// not an error: check Applied and the trace's reasons.
func (c *Client) Transition(ctx context.Context, id, target string, opts *Options) (TransitionResult, error) {
	var resp TransitionResult
	err := c.do(ctx, http.MethodPost, "work-packages/"+url.PathEscape(id)+"/transition", transitionBody(target, opts), &resp)
	return resp, err
}

// Readiness evaluates every successor of the work package's phase.
func (c *Client) Readiness(ctx context.Context, id string) ([]Trace, error) {
	var resp struct {
		Traces []Trace `json:"traces"`
	}
	err := c.do(ctx, http.MethodGet, "work-packages/"+url.PathEscape(id)+"/readiness", nil, &resp)
	return resp.Traces, err
}

// Events returns the newest transition events for a work package.
func (c *Client) Events(ctx context.Context, id string, limit int) ([]Event, error) {
	endpoint := "work-packages/" + url.PathEscape(id) + "/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp struct {
		Items []Event `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func transitionBody(target string, opts *Options) map[string]any {
	body := map[string]any{"target": target}
	if opts != nil {
		body["options"] = opts
	}
	return body
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	u := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code, apiErr.Message = envelope.Error.Code, envelope.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(c.BasePath, "/")
}

// Package client implements the HTTP surface of the workflow backend: start,
// status and cancel. It satisfies poller.Source so a Client can back poll
// sessions directly.
package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/flowwatch/flowwatch/model/job"
	"github.com/flowwatch/flowwatch/model/status"
	"github.com/flowwatch/flowwatch/tracing"
)

// Client is a typed client over the workflow endpoints.
type Client struct {
	rest       *resty.Client
	baseURL    string
	auth       *authenticator
	newBackoff func() backoff.BackOff
}

type startResponse struct {
	WorkflowID string `json:"workflow_id"`
	Error      string `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error,omitempty"`
}

// New creates a client for the backend rooted at baseURL.
func New(baseURL string, options ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("client: base URL is required")
	}
	ret := &Client{
		baseURL: baseURL,
		auth:    &authenticator{},
	}
	for _, option := range options {
		option(ret)
	}
	if ret.rest == nil {
		ret.rest = resty.New().
			SetTimeout(defaultRequestTimeout)
	}
	ret.rest.
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if ret.newBackoff == nil {
		ret.newBackoff = defaultBackoff
	}
	return ret, nil
}

// Start submits the job and returns the server-assigned workflow identifier.
// Transport-level failures and 5xx responses are retried with bounded
// exponential backoff; 4xx responses are permanent.
func (c *Client) Start(ctx context.Context, aJob *job.Job) (workflowID string, err error) {
	if err = aJob.Validate(); err != nil {
		return "", err
	}
	ctx, span := tracing.StartSpan(ctx, "client.start "+aJob.Kind, "CLIENT")
	defer func() { tracing.EndSpan(span, err) }()

	operation := func() error {
		resp, reqErr := c.request(ctx).
			SetBody(aJob).
			SetResult(&startResponse{}).
			SetError(&errorResponse{}).
			Post("/v1/workflows")
		if reqErr != nil {
			return reqErr
		}
		span.SetStatusFromHTTPCode(resp.StatusCode())
		if resp.IsError() {
			apiErr := newAPIError(resp)
			if resp.StatusCode() < http.StatusInternalServerError {
				return backoff.Permanent(apiErr)
			}
			return apiErr
		}
		result := resp.Result().(*startResponse)
		if result.Error != "" {
			return backoff.Permanent(&APIError{StatusCode: resp.StatusCode(), Message: result.Error})
		}
		if result.WorkflowID == "" {
			return backoff.Permanent(fmt.Errorf("client: start response carries no workflow_id"))
		}
		workflowID = result.WorkflowID
		return nil
	}
	if err = backoff.Retry(operation, backoff.WithContext(c.newBackoff(), ctx)); err != nil {
		return "", fmt.Errorf("failed to start workflow %q: %w", aJob.Kind, err)
	}
	span.WithAttributes(map[string]string{"workflow.id": workflowID})
	return workflowID, nil
}

// Status fetches a single status observation. It performs exactly one
// request; retry cadence belongs to the poll loop, not the transport.
func (c *Client) Status(ctx context.Context, workflowID string) (*status.Status, error) {
	if workflowID == "" {
		return nil, fmt.Errorf("client: workflow id is required")
	}
	resp, err := c.request(ctx).
		SetResult(&status.Status{}).
		SetError(&errorResponse{}).
		SetPathParam("id", workflowID).
		Get("/v1/workflows/{id}")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("%w: workflow %q", ErrNotFound, workflowID)
	}
	if resp.IsError() {
		return nil, newAPIError(resp)
	}
	observed := resp.Result().(*status.Status)
	if observed.WorkflowID == "" {
		observed.WorkflowID = workflowID
	}
	return observed, nil
}

// Cancel requests server-side cancellation. Best effort: callers must not
// depend on it succeeding to stop their own poll sessions.
func (c *Client) Cancel(ctx context.Context, workflowID string) error {
	if workflowID == "" {
		return fmt.Errorf("client: workflow id is required")
	}
	resp, err := c.request(ctx).
		SetError(&errorResponse{}).
		SetPathParam("id", workflowID).
		Post("/v1/workflows/{id}/cancel")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return newAPIError(resp)
	}
	return nil
}

func (c *Client) request(ctx context.Context) *resty.Request {
	req := c.rest.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", uuid.New().String())
	if token, err := c.auth.token(ctx); err == nil && token != "" {
		req.SetAuthToken(token)
	}
	return req
}

func newAPIError(resp *resty.Response) *APIError {
	message := resp.Status()
	if body, ok := resp.Error().(*errorResponse); ok && body != nil && body.Error != "" {
		message = body.Error
	}
	return &APIError{StatusCode: resp.StatusCode(), Message: message}
}

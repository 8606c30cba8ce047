package govlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Govline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		Timeout:    10 * time.Second,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Routine represents the API routine model (partial).
type Routine struct {
	ID        string `json:"id"`
	AreaID    string `json:"area_id"`
	Title     string `json:"title"`
	Frequency string `json:"frequency"`
	Priority  string `json:"priority"`
	IsActive  bool   `json:"is_active"`
	RiskScore *int   `json:"risk_score,omitempty"`
}

// Cycle represents a compliance cycle with its derived bucket.
type Cycle struct {
	ID            string  `json:"id"`
	RoutineID     string  `json:"routine_id"`
	DueDate       string  `json:"due_date"`
	Status        string  `json:"status"`
	Bucket        string  `json:"bucket,omitempty"`
	DaysRemaining *int    `json:"days_remaining,omitempty"`
	CompletedAt   *string `json:"completed_at,omitempty"`
	CompletedBy   *string `json:"completed_by,omitempty"`
	Notes         string  `json:"notes,omitempty"`
}

// ApprovalStep is one step of a cycle's approval chain.
type ApprovalStep struct {
	Order       int     `json:"order"`
	UserID      string  `json:"user_id"`
	UserName    string  `json:"user_name,omitempty"`
	Status      string  `json:"status"`
	CompletedAt *string `json:"completed_at,omitempty"`
}

// CycleDetail is a cycle with its routine and approval chain.
type CycleDetail struct {
	Cycle
	Routine   Routine        `json:"routine"`
	Approvals []ApprovalStep `json:"approvals,omitempty"`
}

// GenerationReport summarizes an ensure run.
type GenerationReport struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Created int    `json:"created"`
	Skipped int    `json:"skipped"`
}

// DashboardStats are the headline compliance counters for a window.
type DashboardStats struct {
	From     string         `json:"from"`
	To       string         `json:"to"`
	Total    int            `json:"total"`
	Late     int            `json:"late"`
	DueSoon  int            `json:"due_soon"`
	InReview int            `json:"in_review"`
	Done     int            `json:"done"`
	OnTrack  int            `json:"on_track"`
	ByArea   map[string]int `json:"by_area,omitempty"`
}

// Event represents an audit log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// EnsureCycles asks the server to generate missing cycles for a window.
func (c *Client) EnsureCycles(ctx context.Context, from, to string) (GenerationReport, error) {
	body := map[string]any{"from": from, "to": to}
	var resp GenerationReport
	err := c.do(ctx, http.MethodPost, "v0/cycles/ensure", body, &resp)
	return resp, err
}

// ListCycles returns classified cycles for a window.
func (c *Client) ListCycles(ctx context.Context, from, to string) ([]Cycle, error) {
	var resp []Cycle
	endpoint := "v0/cycles"
	if from != "" || to != "" {
		endpoint = fmt.Sprintf("%s?from=%s&to=%s", endpoint, url.QueryEscape(from), url.QueryEscape(to))
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GetCycle fetches a cycle with its routine and approval chain.
func (c *Client) GetCycle(ctx context.Context, id string) (CycleDetail, error) {
	var resp CycleDetail
	err := c.do(ctx, http.MethodGet, "v0/cycles/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// SetCycleStatus transitions a cycle.
func (c *Client) SetCycleStatus(ctx context.Context, id, status string, notes *string) (Cycle, error) {
	body := map[string]any{"status": status}
	if notes != nil {
		body["notes"] = *notes
	}
	var resp Cycle
	err := c.do(ctx, http.MethodPatch, "v0/cycles/"+url.PathEscape(id)+"/status", body, &resp)
	return resp, err
}

// RecordDecision approves or rejects an approval step.
func (c *Client) RecordDecision(ctx context.Context, cycleID string, order int, decision, comment string) (Cycle, error) {
	body := map[string]any{"decision": decision, "comment": comment}
	var resp Cycle
	endpoint := fmt.Sprintf("v0/cycles/%s/approvals/%d", url.PathEscape(cycleID), order)
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Dashboard returns KPI counters for a window.
func (c *Client) Dashboard(ctx context.Context, from, to string) (DashboardStats, error) {
	var resp DashboardStats
	endpoint := fmt.Sprintf("v0/reports/dashboard?from=%s&to=%s", url.QueryEscape(from), url.QueryEscape(to))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent audit events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	var resp []Event
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	// read into a local so concurrent calls never mutate the shared client
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

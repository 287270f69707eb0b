package inprocsdk

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

// Client is a minimal Inproc HTTP API client.
type Client struct {
	BaseURL    string
	Actor      string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// RequestAttrs carries the intake form fields.
type RequestAttrs struct {
	EmpName              string  `json:"emp_name"`
	EmpType              string  `json:"emp_type"`
	GradeRank            string  `json:"grade_rank,omitempty"`
	MPCN                 int     `json:"mpcn,omitempty"`
	SAR                  int     `json:"sar,omitempty"`
	SensitivityCode      int     `json:"sensitivity_code,omitempty"`
	WorkLocation         string  `json:"work_location,omitempty"`
	Office               string  `json:"office,omitempty"`
	IsNewCivMil          string  `json:"is_new_civ_mil,omitempty"`
	PrevOrg              string  `json:"prev_org,omitempty"`
	IsNewToBaseAndCenter string  `json:"is_new_to_base_and_center,omitempty"`
	HasExistingCAC       string  `json:"has_existing_cac,omitempty"`
	CACExpiration        *string `json:"cac_expiration,omitempty"`
	ETA                  string  `json:"eta"`
	CompletionDate       string  `json:"completion_date,omitempty"`
	SupervisorName       string  `json:"supervisor_name,omitempty"`
	SupervisorEmail      string  `json:"supervisor_email"`
	EmployeeName         string  `json:"employee_name,omitempty"`
	EmployeeEmail        string  `json:"employee_email,omitempty"`
	IsTraveler           string  `json:"is_traveler,omitempty"`
	IsSupervisor         string  `json:"is_supervisor,omitempty"`
}

// Request represents the API request model.
type Request struct {
	ID                    int64   `json:"id"`
	EmpName               string  `json:"emp_name"`
	EmpType               string  `json:"emp_type"`
	Office                string  `json:"office,omitempty"`
	ETA                   string  `json:"eta"`
	SupervisorID          int64   `json:"supervisor_id"`
	EmployeeID            *int64  `json:"employee_id,omitempty"`
	Status                string  `json:"status"`
	ClosedOrCancelledDate *string `json:"closed_or_cancelled_date,omitempty"`
	CancelReason          *string `json:"cancel_reason,omitempty"`
	CreatedAt             string  `json:"created_at"`
}

// ChecklistItem represents one task on a request's checklist.
type ChecklistItem struct {
	ID            int64   `json:"id"`
	RequestID     int64   `json:"request_id"`
	TemplateID    int     `json:"template_id"`
	Lead          string  `json:"lead"`
	Title         string  `json:"title"`
	Active        bool    `json:"active"`
	CompletedDate *string `json:"completed_date,omitempty"`
	CompletedByID *int64  `json:"completed_by_id,omitempty"`
}

// CreateRequestResult is the response from CreateRequest.
type CreateRequestResult struct {
	Request       Request         `json:"request"`
	Checklist     []ChecklistItem `json:"checklist"`
	NotifyWarning string          `json:"notify_warning,omitempty"`
}

// CompleteItemResult is the response from CompleteItem.
type CompleteItemResult struct {
	Item             ChecklistItem   `json:"item"`
	AlreadyCompleted bool            `json:"already_completed,omitempty"`
	Activated        []ChecklistItem `json:"activated"`
	NotifyWarning    string          `json:"notify_warning,omitempty"`
}

// Role represents a role group membership.
type Role struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"user_id"`
	Role      string `json:"role"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	RequestID  int64          `json:"request_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateRequest submits a new in-processing request.
func (c *Client) CreateRequest(ctx context.Context, attrs RequestAttrs) (CreateRequestResult, error) {
	var resp CreateRequestResult
	err := c.do(ctx, http.MethodPost, "v0/requests", attrs, &resp)
	return resp, err
}

// GetRequest fetches a request by id.
func (c *Client) GetRequest(ctx context.Context, id int64) (Request, error) {
	var resp Request
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v0/requests/%d", id), nil, &resp)
	return resp, err
}

// ListRequests returns requests, optionally only open ones.
func (c *Client) ListRequests(ctx context.Context, openOnly bool) ([]Request, error) {
	endpoint := "v0/requests"
	if openOnly {
		endpoint += "?open=true"
	}
	var resp []Request
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// UpdateRequest rewrites the intake fields of an open request.
func (c *Client) UpdateRequest(ctx context.Context, id int64, attrs RequestAttrs) (Request, error) {
	var resp Request
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("v0/requests/%d", id), attrs, &resp)
	return resp, err
}

// CloseRequest closes a request once every item is complete.
func (c *Client) CloseRequest(ctx context.Context, id int64) (Request, error) {
	var resp Request
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/requests/%d/close", id), nil, &resp)
	return resp, err
}

// CancelRequest abandons a request with a reason.
func (c *Client) CancelRequest(ctx context.Context, id int64, reason string) (Request, error) {
	var resp Request
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/requests/%d/cancel", id), map[string]any{"reason": reason}, &resp)
	return resp, err
}

// DeleteRequest removes a request and its checklist.
func (c *Client) DeleteRequest(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("v0/requests/%d", id), nil, nil)
}

// Checklist returns the checklist for a request.
func (c *Client) Checklist(ctx context.Context, requestID int64) ([]ChecklistItem, error) {
	var resp []ChecklistItem
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v0/requests/%d/checklist", requestID), nil, &resp)
	return resp, err
}

// CompleteItem marks an item done on behalf of the user with the given email.
func (c *Client) CompleteItem(ctx context.Context, itemID int64, completedByEmail string) (CompleteItemResult, error) {
	var resp CompleteItemResult
	body := map[string]any{"completed_by_email": completedByEmail}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/checklist/%d/complete", itemID), body, &resp)
	return resp, err
}

// ReactivateItem reopens a completed item.
func (c *Client) ReactivateItem(ctx context.Context, itemID int64) (ChecklistItem, error) {
	var resp ChecklistItem
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/checklist/%d/reactivate", itemID), nil, &resp)
	return resp, err
}

// MyItems returns the active items awaiting a user's action.
func (c *Client) MyItems(ctx context.Context, email string, incompleteOnly bool) ([]ChecklistItem, error) {
	endpoint := "v0/checklist/mine?email=" + url.QueryEscape(email)
	if incompleteOnly {
		endpoint += "&incomplete_only=true"
	}
	var resp []ChecklistItem
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// AddRole puts a user into a role group.
func (c *Client) AddRole(ctx context.Context, name, email, role string) (Role, error) {
	var resp Role
	body := map[string]any{"name": name, "email": email, "role": role}
	err := c.do(ctx, http.MethodPost, "v0/roles", body, &resp)
	return resp, err
}

// ListRoles returns role assignments, optionally filtered by role.
func (c *Client) ListRoles(ctx context.Context, role string) ([]Role, error) {
	endpoint := "v0/roles"
	if role != "" {
		endpoint += "?role=" + url.QueryEscape(role)
	}
	var resp []Role
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// RemoveRole removes a role assignment.
func (c *Client) RemoveRole(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("v0/roles/%d", id), nil, nil)
}

// Events returns recent events, optionally scoped to a request.
func (c *Client) Events(ctx context.Context, requestID int64, limit int) ([]Event, error) {
	endpoint := "v0/events"
	params := url.Values{}
	if requestID != 0 {
		params.Set("request_id", fmt.Sprint(requestID))
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprint(limit))
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
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
	if c.Actor != "" {
		req.Header.Set("X-Actor", c.Actor)
	}
	resp, err := c.HTTPClient.Do(req)
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

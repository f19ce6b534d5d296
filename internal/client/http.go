package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/storescan/internal/model"
)

// Request headers identifying the calling client; mirrored by the server.
const (
	headerActor  = "X-Storescan-Actor"
	headerOrigin = "X-Storescan-Origin"
)

// HTTPClient is a ScanClient over the JSON API under /v1.
type HTTPClient struct {
	baseURL    string
	token      string
	identity   Identity
	httpClient *http.Client
}

var _ ScanClient = (*HTTPClient)(nil)

// NewHTTPClient talks to the server at baseURL, e.g.
// "http://localhost:8080". A non-empty token is sent as a bearer token.
func NewHTTPClient(baseURL, token string, id Identity) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		identity:   id,
		httpClient: &http.Client{},
	}
}

// BaseURL returns the server base URL without a trailing slash.
func (c *HTTPClient) BaseURL() string { return c.baseURL }

func (c *HTTPClient) Close() error { return nil }

func scopePath(scope string) string {
	return "/v1/scopes/" + url.PathEscape(scope)
}

// Insert writes code to its store scope. The server assigns the ID and the
// capture time of the returned record.
func (c *HTTPClient) Insert(ctx context.Context, code model.ScannedCode) (*model.ScannedCode, error) {
	body := map[string]string{
		"payload":    code.Payload,
		"symbology":  string(code.Symbology),
		"created_by": c.identity.Actor,
		"origin":     c.identity.Origin,
	}
	if code.CreatedBy != "" {
		body["created_by"] = code.CreatedBy
	}
	var out model.ScannedCode
	if err := c.doJSON(ctx, "insert", http.MethodPost, scopePath(code.StoreScope)+"/codes", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Delete(ctx context.Context, scope, id string) error {
	return c.doJSON(ctx, "delete", http.MethodDelete, scopePath(scope)+"/codes/"+url.PathEscape(id), nil, nil)
}

func (c *HTTPClient) ListCodes(ctx context.Context, req *ListCodesRequest) (*ListCodesResponse, error) {
	q := url.Values{}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Offset > 0 {
		q.Set("offset", strconv.Itoa(req.Offset))
	}
	path := scopePath(req.Scope) + "/codes"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp ListCodesResponse
	if err := c.doJSON(ctx, "list", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListByScope returns every code of scope, newest first.
func (c *HTTPClient) ListByScope(ctx context.Context, scope string) ([]*model.ScannedCode, error) {
	return listAll(ctx, scope, c.ListCodes)
}

func (c *HTTPClient) ClearScope(ctx context.Context, scope string) (int64, error) {
	var resp struct {
		Deleted int64 `json:"deleted"`
	}
	if err := c.doJSON(ctx, "clear", http.MethodDelete, scopePath(scope)+"/codes", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Deleted, nil
}

func (c *HTTPClient) GetCode(ctx context.Context, id string) (*model.ScannedCode, error) {
	var out model.ScannedCode
	if err := c.doJSON(ctx, "get", http.MethodGet, "/v1/codes/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListEvents returns the persisted events of scope with IDs above afterID.
func (c *HTTPClient) ListEvents(ctx context.Context, scope string, afterID int64, limit int) ([]*model.Event, error) {
	q := url.Values{}
	q.Set("after", strconv.FormatInt(afterID, 10))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Events []*model.Event `json:"events"`
	}
	if err := c.doJSON(ctx, "events", http.MethodGet, scopePath(scope)+"/events?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// Clients returns the presence roster of scope.
func (c *HTTPClient) Clients(ctx context.Context, scope string) ([]ClientInfo, error) {
	var resp struct {
		Clients []ClientInfo `json:"clients"`
	}
	if err := c.doJSON(ctx, "clients", http.MethodGet, scopePath(scope)+"/clients", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Clients, nil
}

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, "health", http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// APIError is a non-2xx reply from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// NewRequest builds an authenticated request carrying the client identity.
func (c *HTTPClient) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.identity.Actor != "" {
		req.Header.Set(headerActor, c.identity.Actor)
	}
	if c.identity.Origin != "" {
		req.Header.Set(headerOrigin, c.identity.Origin)
	}
	return req, nil
}

// doJSON sends body (if any) as JSON and decodes the reply into result (if
// any). Failures come back as *model.Error: a status of 400 or above maps
// through model.KindForStatus, anything that never got a reply is
// NetworkFailure.
func (c *HTTPClient) doJSON(ctx context.Context, op, method, path string, body, result any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", op, err)
		}
		payload = bytes.NewReader(data)
	}
	req, err := c.NewRequest(ctx, method, path, payload)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.NewError(model.KindNetworkFailure, op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	switch {
	case err != nil:
		return model.NewError(model.KindNetworkFailure, op, err)
	case resp.StatusCode >= 400:
		return model.NewError(model.KindForStatus(resp.StatusCode), op, apiError(resp.StatusCode, raw))
	case result == nil || len(raw) == 0:
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("%s: decode reply: %w", op, err)
	}
	return nil
}

// apiError prefers the server's {"error": ...} message over the raw body.
func apiError(status int, raw []byte) *APIError {
	var reply struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &reply) == nil && reply.Error != "" {
		return &APIError{StatusCode: status, Message: reply.Error}
	}
	return &APIError{StatusCode: status, Message: string(raw)}
}

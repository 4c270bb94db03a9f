// Package remote implements recordstore.Client over the PocketBase-compatible REST API
// served by "clubhub serve".
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jon4hz/clubhub/internal/recordstore"
	"github.com/jon4hz/clubhub/internal/version"
)

var _ recordstore.Client = (*Client)(nil)

const pageSize = 200

// Client is a record store client talking to a clubhub server.
type Client struct {
	baseURL        string
	authCollection string
	httpClient     *http.Client
	tokens         recordstore.TokenStore
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a new client for the server at baseURL. A nil token store starts with no identity.
func New(baseURL string, tokens recordstore.TokenStore, opts ...Option) *Client {
	if tokens == nil {
		tokens = recordstore.NewMemoryTokenStore("")
	}
	c := &Client{
		baseURL:        baseURL,
		authCollection: recordstore.CollectionUsers,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		tokens:         tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ErrorResponse is the error body returned by the API.
type ErrorResponse struct {
	Code    int                   `json:"code"`
	Message string                `json:"message"`
	Data    map[string]FieldIssue `json:"data"`
}

// FieldIssue describes a rejected field.
type FieldIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ListResponse is a page of records.
type ListResponse struct {
	Page       int                  `json:"page"`
	PerPage    int                  `json:"perPage"`
	TotalItems int                  `json:"totalItems"`
	TotalPages int                  `json:"totalPages"`
	Items      []recordstore.Record `json:"items"`
}

type authRequest struct {
	Identity string `json:"identity"`
	Password string `json:"password"`
}

// doRequest performs an HTTP request and decodes the JSON response into out, if out is not nil.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, queryParams url.Values, body, out any) error {
	reqURL := c.baseURL + endpoint
	if len(queryParams) > 0 {
		reqURL += "?" + queryParams.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("error encoding request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "clubhub/"+version.Version)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.tokens.Load(); token != "" {
		req.Header.Set("Authorization", token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", recordstore.ErrUnavailable, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: error decoding response: %v", recordstore.ErrUnavailable, err)
	}
	return nil
}

// decodeError maps an error response onto the recordstore error taxonomy.
func decodeError(resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(resp.Body)
	var apiErr ErrorResponse
	_ = json.Unmarshal(bodyBytes, &apiErr)
	msg := apiErr.Message
	if msg == "" {
		msg = string(bodyBytes)
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		fe := &recordstore.FieldError{Fields: make(map[string]string, len(apiErr.Data))}
		for field, issue := range apiErr.Data {
			if issue.Code == "validation_not_unique" {
				return fmt.Errorf("%w: %s", recordstore.ErrConflict, field)
			}
			fe.Fields[field] = issue.Code
		}
		if len(fe.Fields) == 0 {
			fe.Fields["request"] = msg
		}
		return fe
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", recordstore.ErrUnauthorized, msg)
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", recordstore.ErrForbidden, msg)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", recordstore.ErrNotFound, msg)
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", recordstore.ErrConflict, msg)
	}
	return fmt.Errorf("%w: API request failed with status %d: %s", recordstore.ErrUnavailable, resp.StatusCode, msg)
}

func collectionPath(collection string) string {
	return "/api/collections/" + url.PathEscape(collection)
}

func recordPath(collection, id string) string {
	return collectionPath(collection) + "/records/" + url.PathEscape(id)
}

func (c *Client) Connect(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodGet, "/api/health", nil, nil, nil)
}

func (c *Client) Authenticate(ctx context.Context, identifier, secret string) (*recordstore.AuthResult, error) {
	var res recordstore.AuthResult
	err := c.doRequest(ctx, http.MethodPost, collectionPath(c.authCollection)+"/auth-with-password", nil,
		authRequest{Identity: identifier, Password: secret}, &res)
	if err != nil {
		if errors.Is(err, recordstore.ErrValidation) {
			return nil, recordstore.ErrInvalidCredentials
		}
		return nil, err
	}
	c.tokens.Save(res.Token)
	return &res, nil
}

func (c *Client) PersistedIdentity(ctx context.Context) (recordstore.Record, error) {
	if c.tokens.Load() == "" {
		return nil, nil
	}
	var res recordstore.AuthResult
	err := c.doRequest(ctx, http.MethodPost, collectionPath(c.authCollection)+"/auth-refresh", nil, nil, &res)
	if err != nil {
		if errors.Is(err, recordstore.ErrUnauthorized) || errors.Is(err, recordstore.ErrForbidden) ||
			errors.Is(err, recordstore.ErrNotFound) {
			c.tokens.Clear()
			return nil, nil
		}
		return nil, err
	}
	c.tokens.Save(res.Token)
	return res.Record, nil
}

func (c *Client) ClearPersistedIdentity() {
	c.tokens.Clear()
}

func (c *Client) CreateRecord(ctx context.Context, collection string, fields recordstore.Record) (recordstore.Record, error) {
	var rec recordstore.Record
	if err := c.doRequest(ctx, http.MethodPost, collectionPath(collection)+"/records", nil, fields, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *Client) GetRecord(ctx context.Context, collection, id string) (recordstore.Record, error) {
	var rec recordstore.Record
	if err := c.doRequest(ctx, http.MethodGet, recordPath(collection, id), nil, nil, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListRecords follows the pagination until every record has been fetched.
func (c *Client) ListRecords(ctx context.Context, collection string) ([]recordstore.Record, error) {
	records := []recordstore.Record{}
	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("page", strconv.Itoa(page))
		params.Set("perPage", strconv.Itoa(pageSize))

		var res ListResponse
		if err := c.doRequest(ctx, http.MethodGet, collectionPath(collection)+"/records", params, nil, &res); err != nil {
			return nil, err
		}
		records = append(records, res.Items...)
		if page >= res.TotalPages || len(res.Items) == 0 {
			return records, nil
		}
	}
}

func (c *Client) UpdateRecord(ctx context.Context, collection, id string, fields recordstore.Record) (recordstore.Record, error) {
	var rec recordstore.Record
	if err := c.doRequest(ctx, http.MethodPatch, recordPath(collection, id), nil, fields, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *Client) DeleteRecord(ctx context.Context, collection, id string) error {
	return c.doRequest(ctx, http.MethodDelete, recordPath(collection, id), nil, nil, nil)
}

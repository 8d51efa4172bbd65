package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	headerSessionID    = "session-id"
	headerConnectionID = "connection-id"
	headerRequestID    = "x-request-id"
)

// StatusError is a non-2xx answer from the backend. It is distinct from an
// empty result.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.Code, body)
}

// HTTPSource reads tables from a basable backend:
//
//	GET   {base}/tables
//	GET   {base}/tables/columns/{tableID}
//	GET   {base}/tables/data/{tableID}
//	PATCH {base}/tables/data/{tableID}
type HTTPSource struct {
	name         string
	baseURL      *url.URL
	client       *http.Client
	sessionID    string
	connectionID string
	logger       *slog.Logger
}

func NewHTTPSource(cfg *SourceConfig, client *http.Client, logger *slog.Logger) (*HTTPSource, error) {
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid url for source %s: %w", cfg.Name, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("source %s: url must be http or https, got %q", cfg.Name, cfg.URL)
	}
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = discardLogger()
	}

	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	return &HTTPSource{
		name:         cfg.Name,
		baseURL:      base,
		client:       client,
		sessionID:    sessionID,
		connectionID: cfg.ConnectionID,
		logger:       logger.With("source", cfg.Name),
	}, nil
}

func (s *HTTPSource) Name() string {
	return s.name
}

func (s *HTTPSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *HTTPSource) endpoint(parts ...string) *url.URL {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	ref := &url.URL{Path: strings.Join(parts, "/"), RawPath: strings.Join(escaped, "/")}
	return s.baseURL.ResolveReference(ref)
}

func (s *HTTPSource) do(ctx context.Context, method string, target *url.URL, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerSessionID, s.sessionID)
	req.Header.Set(headerRequestID, requestID)
	if s.connectionID != "" {
		req.Header.Set(headerConnectionID, s.connectionID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	s.logger.Debug("request", "method", method, "url", target.String(), "request_id", requestID)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, target.Redacted(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Method: method, URL: target.Redacted(), Code: resp.StatusCode, Body: string(msg)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("failed to decode %s response: %w", target.Path, err)
	}
	return nil
}

func (s *HTTPSource) ListTables(ctx context.Context) ([]TableSummary, error) {
	var tables []TableSummary
	if err := s.do(ctx, http.MethodGet, s.endpoint("tables"), nil, &tables); err != nil {
		return nil, err
	}
	return tables, nil
}

func (s *HTTPSource) FetchColumns(ctx context.Context, tableID string) ([]ColumnDescriptor, error) {
	columns := make([]ColumnDescriptor, 0)
	if err := s.do(ctx, http.MethodGet, s.endpoint("tables", "columns", tableID), nil, &columns); err != nil {
		return nil, err
	}
	return columns, nil
}

func (s *HTTPSource) FetchRows(ctx context.Context, tableID string, page Page) ([]RowRecord, error) {
	target := s.endpoint("tables", "data", tableID)
	q := target.Query()
	if page.Limit > 0 {
		q.Set("limit", strconv.Itoa(page.Limit))
	}
	if page.Offset > 0 {
		q.Set("offset", strconv.Itoa(page.Offset))
	}
	target.RawQuery = q.Encode()

	rows := make([]RowRecord, 0)
	if err := s.do(ctx, http.MethodGet, target, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// UpdateCell falls back to the sent key when the backend answers without one.
func (s *HTTPSource) UpdateCell(ctx context.Context, tableID string, update CellUpdate) (string, error) {
	var result updateResult
	if err := s.do(ctx, http.MethodPatch, s.endpoint("tables", "data", tableID), update, &result); err != nil {
		return "", err
	}
	if result.Key == "" {
		return update.RowKey, nil
	}
	return result.Key, nil
}

type updateResult struct {
	Key string `json:"key"`
}

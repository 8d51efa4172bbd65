package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return newTestServerWith(t, newTestSQLite(t))
}

func newTestServerWith(t *testing.T, src *SQLSource) *Server {
	t.Helper()
	cfg := &Config{
		Sources: []*SourceConfig{
			{Name: "test", Type: SourceSQLite, Path: "unused.db"},
			{Name: "remote", Type: SourceHTTP, URL: "http://localhost:1"},
		},
		PageSize: 100,
	}
	open := func(sc *SourceConfig, logger *slog.Logger) (TableSource, error) {
		return src, nil
	}
	s, err := NewServer(cfg, "", open, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func doRequest(t *testing.T, s *Server, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL, err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	return resp, body
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("error body %s: %v", body, err)
	}
	return payload.Error.Code
}

func TestServerListTables(t *testing.T) {
	s := newTestServer(t)

	resp, body := doRequest(t, s, httptest.NewRequest(http.MethodGet, "/core/tables", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	if resp.Header.Get(headerRequestID) == "" {
		t.Error("expected a request id on the response")
	}

	var tables []TableSummary
	if err := json.Unmarshal(body, &tables); err != nil {
		t.Fatal(err)
	}
	if len(tables) != 2 || tables[1].Name != "users" || tables[1].RowCount != 3 {
		t.Errorf("tables = %+v", tables)
	}
}

func TestServerColumnsAndRows(t *testing.T) {
	s := newTestServer(t)

	resp, body := doRequest(t, s, httptest.NewRequest(http.MethodGet, "/core/tables/columns/users", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("columns status = %d: %s", resp.StatusCode, body)
	}
	var columns []ColumnDescriptor
	if err := json.Unmarshal(body, &columns); err != nil {
		t.Fatal(err)
	}
	if len(columns) != 6 || columns[0].Name != "id" {
		t.Errorf("columns = %+v", columns)
	}

	resp, body = doRequest(t, s, httptest.NewRequest(http.MethodGet, "/core/tables/data/users?limit=2&offset=1", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rows status = %d: %s", resp.StatusCode, body)
	}
	var rows []RowRecord
	if err := json.Unmarshal(body, &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	if email, _ := ResolveText("email", rows[0]); email != "b@x.com" {
		t.Errorf("email = %q", email)
	}
	if rows[0].Key() != "2" {
		t.Errorf("key = %q", rows[0].Key())
	}
}

func TestServerErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		req    *http.Request
		status int
		code   string
	}{
		{
			name:   "unknown table",
			req:    httptest.NewRequest(http.MethodGet, "/core/tables/columns/missing", nil),
			status: http.StatusNotFound,
			code:   "NOT_FOUND",
		},
		{
			name:   "bad limit",
			req:    httptest.NewRequest(http.MethodGet, "/core/tables/data/users?limit=-1", nil),
			status: http.StatusBadRequest,
			code:   "BAD_REQUEST",
		},
		{
			name: "unknown connection",
			req: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/core/tables", nil)
				r.Header.Set(headerConnectionID, "nope")
				return r
			}(),
			status: http.StatusBadRequest,
			code:   "BAD_REQUEST",
		},
		{
			name: "http source is not served",
			req: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/core/tables", nil)
				r.Header.Set(headerConnectionID, "remote")
				return r
			}(),
			status: http.StatusBadRequest,
			code:   "BAD_REQUEST",
		},
		{
			name:   "unknown route",
			req:    httptest.NewRequest(http.MethodGet, "/core/nothing", nil),
			status: http.StatusNotFound,
			code:   "NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doRequest(t, s, tt.req)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d: %s", resp.StatusCode, tt.status, body)
			}
			if code := errorCode(t, body); code != tt.code {
				t.Errorf("code = %q, want %q", code, tt.code)
			}
		})
	}
}

func patchRequest(table, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPatch, "/core/tables/data/"+table, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestServerUpdateCellRoundTrip(t *testing.T) {
	s := newTestServer(t)

	resp, body := doRequest(t, s, patchRequest("users", `{"row":0,"key":"1","column":"email","value":{"String":"q@x.com"}}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	var result updateResult
	if err := json.Unmarshal(body, &result); err != nil || result.Key != "1" {
		t.Errorf("update result = %s (%v)", body, err)
	}

	_, body = doRequest(t, s, httptest.NewRequest(http.MethodGet, "/core/tables/data/users?limit=1", nil))
	var rows []RowRecord
	if err := json.Unmarshal(body, &rows); err != nil {
		t.Fatal(err)
	}
	if email, _ := ResolveText("email", rows[0]); email != "q@x.com" {
		t.Errorf("email after update = %q", email)
	}
}

func TestServerServesNonFiniteFloats(t *testing.T) {
	src := newTestSQLite(t)
	if _, err := src.db.Exec(`UPDATE users SET score = 9e999 WHERE id = 2`); err != nil {
		t.Fatal(err)
	}
	s := newTestServerWith(t, src)

	resp, body := doRequest(t, s, httptest.NewRequest(http.MethodGet, "/core/tables/data/users", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	var rows []RowRecord
	if err := json.Unmarshal(body, &rows); err != nil {
		t.Fatal(err)
	}
	cell, err := ResolveCell("score", rows[1])
	if err != nil {
		t.Fatal(err)
	}
	if cell.Tag() != "Float" || cell.Text() != "+Inf" {
		t.Errorf("score = %s:%q, want Float:+Inf", cell.Tag(), cell.Text())
	}
}

func TestServerUpdateCellRejects(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"not json", `{`, http.StatusBadRequest},
		{"no column", `{"key":"1","value":{"String":"x"}}`, http.StatusUnprocessableEntity},
		{"malformed value", `{"key":"1","column":"email","value":{"String":"x","Int":1}}`, http.StatusUnprocessableEntity},
		{"unknown column", `{"key":"1","column":"nope","value":{"String":"x"}}`, http.StatusUnprocessableEntity},
		{"unknown row", `{"key":"99","column":"email","value":{"String":"x"}}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doRequest(t, s, patchRequest("users", tt.body))
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d: %s", resp.StatusCode, tt.status, body)
			}
		})
	}
}

func TestNewServerNeedsSQLSource(t *testing.T) {
	cfg := &Config{Sources: []*SourceConfig{{Name: "remote", Type: SourceHTTP, URL: "http://localhost:1"}}}
	if _, err := NewServer(cfg, "", nil, nil); err == nil {
		t.Error("expected error with only http sources")
	}
	if _, err := NewServer(cfg, "remote", nil, nil); err == nil {
		t.Error("expected error when serving an http source")
	}
}

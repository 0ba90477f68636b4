package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/nflpipe/internal/query"
	"github.com/leapstack-labs/nflpipe/internal/testutil"
	"github.com/leapstack-labs/nflpipe/pkg/adapter"
)

type fakeQuerier struct {
	lastSQL  string
	lastArgs []any
	result   *query.Result
	err      error
	tables   []string
	meta     map[string]*adapter.Metadata

	existsErr   error
	schemaCalls int
}

func (f *fakeQuerier) Query(_ context.Context, sql string, args ...any) (*query.Result, error) {
	f.lastSQL, f.lastArgs = sql, args
	return f.result, f.err
}

func (f *fakeQuerier) Tables(context.Context) ([]string, error) { return f.tables, f.err }

func (f *fakeQuerier) TableExists(_ context.Context, table string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.meta[table]
	return ok, nil
}

func (f *fakeQuerier) Schema(_ context.Context, table string) (*adapter.Metadata, error) {
	f.schemaCalls++
	if m, ok := f.meta[table]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("table %s not found", table)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, r))
	return rec
}

func TestQueryEndpoint(t *testing.T) {
	fq := &fakeQuerier{result: &query.Result{
		Columns: []string{"off", "n"},
		Rows:    [][]any{{"NE", int64(3)}},
	}}
	h := New(fq, Config{Logger: testutil.NewTestLogger(t)}).Handler()

	rec := do(t, h, http.MethodPost, "/api/query", `{"sql":"SELECT off, COUNT(*) n FROM plays WHERE gid = ?","params":[1]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got query.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, []string{"off", "n"}, got.Columns)
	assert.Equal(t, "NE", got.Rows[0][0])
	assert.Equal(t, "SELECT off, COUNT(*) n FROM plays WHERE gid = ?", fq.lastSQL)
	assert.Equal(t, []any{float64(1)}, fq.lastArgs)
}

func TestQueryEndpoint_BadRequests(t *testing.T) {
	h := New(&fakeQuerier{}, Config{}).Handler()

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"sql":`},
		{"missing sql", `{"params":[1]}`},
		{"blank sql", `{"sql":"   "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/query", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var er ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &er))
			assert.NotEmpty(t, er.Error)
		})
	}
}

func TestQueryEndpoint_Errors(t *testing.T) {
	fq := &fakeQuerier{err: errors.New("Parser Error: syntax error")}
	h := New(fq, Config{}).Handler()
	rec := do(t, h, http.MethodPost, "/api/query", `{"sql":"SELEC 1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "syntax error")

	fq.err = query.ErrClosed
	rec = do(t, h, http.MethodPost, "/api/query", `{"sql":"SELECT 1"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTablesEndpoint(t *testing.T) {
	h := New(&fakeQuerier{tables: []string{"games", "plays"}}, Config{}).Handler()
	rec := do(t, h, http.MethodGet, "/api/tables", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"tables":["games","plays"]}`, rec.Body.String())

	h = New(&fakeQuerier{}, Config{}).Handler()
	rec = do(t, h, http.MethodGet, "/api/tables", "")
	assert.JSONEq(t, `{"tables":[]}`, rec.Body.String())
}

func TestTableSchemaEndpoint(t *testing.T) {
	fq := &fakeQuerier{meta: map[string]*adapter.Metadata{
		"games": {
			Name:     "games",
			RowCount: 3,
			Columns: []adapter.Column{
				{Name: "gid", Type: "BIGINT", Nullable: true, Position: 1},
				{Name: "seas", Type: "BIGINT", Nullable: true, Position: 2},
			},
		},
	}}
	h := New(fq, Config{}).Handler()

	rec := do(t, h, http.MethodGet, "/api/tables/games", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"name":"games","row_count":3,"columns":[
		{"name":"gid","type":"BIGINT","nullable":true},
		{"name":"seas","type":"BIGINT","nullable":true}]}`, rec.Body.String())

	require.Equal(t, 1, fq.schemaCalls)

	rec = do(t, h, http.MethodGet, "/api/tables/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "table nope not found")
	assert.Equal(t, 1, fq.schemaCalls)
}

func TestTableSchemaEndpoint_ExistenceError(t *testing.T) {
	// The error text mentions "not found" but is a server failure.
	fq := &fakeQuerier{existsErr: errors.New("catalog file not found")}
	h := New(fq, Config{}).Handler()

	rec := do(t, h, http.MethodGet, "/api/tables/games", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Zero(t, fq.schemaCalls)
}

func TestHealthAndMetrics(t *testing.T) {
	h := New(&fakeQuerier{}, Config{}).Handler()

	rec := do(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "nflpipe_http_requests_total")
}

func TestServeListener_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	srv := New(&fakeQuerier{}, Config{Logger: testutil.NewTestLogger(t)})

	done := make(chan error, 1)
	go func() { done <- srv.ServeListener(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url) //nolint:noctx // test request
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabletalk/tabletalk/internal/assistant"
	"github.com/tabletalk/tabletalk/internal/auth"
	"github.com/tabletalk/tabletalk/internal/catalog"
	"github.com/tabletalk/tabletalk/internal/config"
	"github.com/tabletalk/tabletalk/internal/errs"
	"github.com/tabletalk/tabletalk/internal/guard"
	"github.com/tabletalk/tabletalk/internal/llm"
	"github.com/tabletalk/tabletalk/internal/nl2sql"
	"github.com/tabletalk/tabletalk/internal/query"
)

func TestHealthEndpoint(t *testing.T) {
	rr := serve(t, newTestHandler(t, nil, Dependencies{}), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok","service":"tabletalk-api"}`, rr.Body.String())
}

func TestReadyEndpointReturns503WhenDependencyFails(t *testing.T) {
	h := newTestHandler(t, nil, Dependencies{
		Readiness: func(context.Context) error { return errors.New("dependency down") },
	})
	rr := serve(t, h, http.MethodGet, "/ready", "")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	env := decodeEnvelope(t, rr)
	assert.Equal(t, "SERVICE_UNAVAILABLE", env.HTTPStatus)
	assert.Equal(t, "dependency down", env.Message)
}

func TestWelcomeAndNotFound(t *testing.T) {
	h := newTestHandler(t, nil, Dependencies{})

	rr := serve(t, h, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Welcome to our Website", decodeEnvelope(t, rr).Message)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/nope"},
		{http.MethodGet, "/dbQuery"},
		{http.MethodPost, "/"},
	} {
		rr := serve(t, h, tc.method, tc.path, "")
		require.Equalf(t, http.StatusNotFound, rr.Code, "%s %s", tc.method, tc.path)
		env := decodeEnvelope(t, rr)
		assert.Equal(t, 404, env.StatusCode)
		assert.Equal(t, "NOT_FOUND", env.HTTPStatus)
		assert.Equal(t, "Route not found", env.Message)
		assert.NotEmpty(t, env.Timestamp)
		assert.NotEmpty(t, env.TraceID)
	}
}

func TestAskReturnsAnswer(t *testing.T) {
	fake := &fakeAssistant{answer: "There are 3 students."}
	h := newTestHandler(t, nil, Dependencies{Assistant: fake})

	rr := serve(t, h, http.MethodPost, "/dbQuery", `{"tableName":"students","question":"How many students?"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"answer":"There are 3 students."}`, rr.Body.String())
	assert.Equal(t, "students", fake.table)
	assert.Equal(t, "How many students?", fake.question)
}

func TestQuestionRoutesValidateBody(t *testing.T) {
	fake := &fakeAssistant{}
	h := newTestHandler(t, nil, Dependencies{Assistant: fake})

	for _, body := range []string{
		`not json`,
		`{"question":"how many?"}`,
		`{"tableName":"students"}`,
		`{"tableName":"students","question":"   "}`,
		`{"tableName":"stu dents","question":"how many?"}`,
		`{"tableName":"` + strings.Repeat("t", 65) + `","question":"how many?"}`,
	} {
		for _, path := range []string{"/dbQuery", "/dbQuery/show", "/dbQuery/plot"} {
			rr := serve(t, h, http.MethodPost, path, body)
			require.Equalf(t, http.StatusBadRequest, rr.Code, "%s %s", path, body)
			assert.Equal(t, "BAD_REQUEST", decodeEnvelope(t, rr).HTTPStatus)
		}
	}
	assert.Zero(t, fake.calls)
}

func TestShowReturnsRowSet(t *testing.T) {
	fake := &fakeAssistant{rows: query.Result{
		Columns: []string{"SNO", "name", "age"},
		Rows:    [][]any{{int64(1), "Amy", int64(20)}},
	}}
	h := newTestHandler(t, nil, Dependencies{Assistant: fake})

	rr := serve(t, h, http.MethodPost, "/dbQuery/show", `{"tableName":"students","question":"show me all students"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[{"SNO":1,"name":"Amy","age":20}]`, rr.Body.String())
}

func TestPlotReturnsDescriptorAndData(t *testing.T) {
	fake := &fakeAssistant{plot: assistant.PlotResult{
		Plot: guard.PlotDescriptor{Plot: guard.PlotBar, Columns: []string{"age"}},
		Data: query.Result{Columns: []string{"age"}, Rows: [][]any{{int64(20)}}},
	}}
	h := newTestHandler(t, nil, Dependencies{Assistant: fake})

	rr := serve(t, h, http.MethodPost, "/dbQuery/plot", `{"tableName":"students","question":"plot a bar chart of age"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"plotData":{"plot":2,"columns":["age"]},"allData":[{"age":20}]}`, rr.Body.String())
}

func TestErrorKindsMapToStatus(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"not a plot request", errs.E(errs.Validation, nl2sql.ErrNotAPlotRequest), http.StatusBadRequest, nl2sql.ErrNotAPlotRequest.Error()},
		{"unknown table", errs.E(errs.ExecutionNotFound, catalog.ErrNotFound), http.StatusNotFound, catalog.ErrNotFound.Error()},
		{"conflict", errs.E(errs.ExecutionConflict, catalog.ErrAlreadyExists), http.StatusBadRequest, catalog.ErrAlreadyExists.Error()},
		{"timeout", errs.E(errs.Timeout, llm.ErrTimeout), http.StatusGatewayTimeout, llm.ErrTimeout.Error()},
		{"quota", errs.E(errs.ProviderQuota, "quota exceeded"), http.StatusBadGateway, "quota exceeded"},
		{"invalid plot", errs.E(errs.ProviderOther, guard.ErrInvalidColumns), http.StatusBadGateway, guard.ErrInvalidColumns.Error()},
		{"missing key", errs.E(errs.Config, llm.ErrMissingAPIKey), http.StatusInternalServerError, llm.ErrMissingAPIKey.Error()},
		{"sql failure", errs.E(errs.Internal, "Unknown column 'x' in 'field list'"), http.StatusInternalServerError, "An internal error occurred"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, nil, Dependencies{Assistant: &fakeAssistant{err: tt.err}})
			rr := serve(t, h, http.MethodPost, "/dbQuery/plot", `{"tableName":"students","question":"plot it"}`)
			require.Equal(t, tt.status, rr.Code)
			env := decodeEnvelope(t, rr)
			assert.Equal(t, tt.status, env.StatusCode)
			assert.Equal(t, tt.message, env.Message)
		})
	}
}

func TestProvisionAcceptsStringAndInlineDocument(t *testing.T) {
	fake := &fakeAssistant{}
	h := newTestHandler(t, nil, Dependencies{Assistant: fake})

	doc := `{"tableName":"students","metaData":"{\"name\":\"varchar(50)\"}","data":"[]"}`
	quoted, err := json.Marshal(doc)
	require.NoError(t, err)

	rr := serve(t, h, http.MethodPost, "/metaData", `{"metaData":`+string(quoted)+`}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "students Table Created Successfully", decodeEnvelope(t, rr).Message)
	assert.Equal(t, doc, fake.raw)

	rr = serve(t, h, http.MethodPost, "/metaData", `{"metaData":`+doc+`}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, doc, fake.raw)

	for _, body := range []string{`{}`, `{"metaData":null}`, `{"metaData":""}`} {
		rr := serve(t, h, http.MethodPost, "/metaData", body)
		assert.Equalf(t, http.StatusBadRequest, rr.Code, body)
	}
}

func TestDrop(t *testing.T) {
	fake := &fakeAssistant{}
	h := newTestHandler(t, nil, Dependencies{Assistant: fake})

	rr := serve(t, h, http.MethodPost, "/metaData/drop", `{"tableName":"students"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "students table dropped successfully", decodeEnvelope(t, rr).Message)
	assert.Equal(t, "students", fake.table)

	fake.err = errs.E(errs.ExecutionNotFound, catalog.ErrNotFound)
	rr = serve(t, h, http.MethodPost, "/metaData/drop", `{"tableName":"ghost"}`)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRestore(t *testing.T) {
	fake := &fakeAssistant{}
	h := newTestHandler(t, nil, Dependencies{Assistant: fake})

	rr := serve(t, h, http.MethodPost, "/metaData/restore", `{"tableName":"students"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "students Table Restored Successfully", decodeEnvelope(t, rr).Message)
	assert.Equal(t, "students", fake.table)

	rr = serve(t, h, http.MethodPost, "/metaData/restore", `{"tableName":"stu dents"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	fake.err = errs.E(errs.ExecutionNotFound, "no archived dataset for table ghost")
	rr = serve(t, h, http.MethodPost, "/metaData/restore", `{"tableName":"ghost"}`)
	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "no archived dataset for table ghost", decodeEnvelope(t, rr).Message)

	fake.err = errs.E(errs.ExecutionConflict, catalog.ErrAlreadyExists)
	rr = serve(t, h, http.MethodPost, "/metaData/restore", `{"tableName":"students"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRoutesWithoutAssistantAreNotImplemented(t *testing.T) {
	rr := serve(t, newTestHandler(t, nil, Dependencies{}), http.MethodPost, "/dbQuery", `{"tableName":"t","question":"q"}`)
	assert.Equal(t, http.StatusNotImplemented, rr.Code)
}

func TestAuthGatesRoutesByRole(t *testing.T) {
	validator, err := auth.NewStaticAPIKeyValidator("rk:reader,ak:admin")
	require.NoError(t, err)
	h := newTestHandler(t, map[string]string{"AUTH_REQUIRED": "true"}, Dependencies{
		Assistant:     &fakeAssistant{answer: "ok"},
		AuthValidator: validator,
	})

	ask := `{"tableName":"students","question":"how many?"}`
	drop := `{"tableName":"students"}`

	rr := serve(t, h, http.MethodPost, "/dbQuery", ask)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeEnvelope(t, rr).HTTPStatus)

	assert.Equal(t, http.StatusOK, serveWithKey(t, h, "/dbQuery", ask, "rk").Code)
	assert.Equal(t, http.StatusOK, serveWithKey(t, h, "/dbQuery", ask, "ak").Code)
	assert.Equal(t, http.StatusForbidden, serveWithKey(t, h, "/metaData/drop", drop, "rk").Code)
	assert.Equal(t, http.StatusOK, serveWithKey(t, h, "/metaData/drop", drop, "ak").Code)
	assert.Equal(t, http.StatusForbidden, serveWithKey(t, h, "/metaData/restore", drop, "rk").Code)
	assert.Equal(t, http.StatusOK, serveWithKey(t, h, "/metaData/restore", drop, "ak").Code)

	assert.Equal(t, http.StatusOK, serve(t, h, http.MethodGet, "/health", "").Code)
}

func TestAuthRequiredWithoutValidatorFailsClosed(t *testing.T) {
	h := newTestHandler(t, map[string]string{"AUTH_REQUIRED": "true"}, Dependencies{Assistant: &fakeAssistant{}})
	rr := serve(t, h, http.MethodPost, "/dbQuery", `{"tableName":"t","question":"q"}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestCORSPreflight(t *testing.T) {
	h := newTestHandler(t, nil, Dependencies{Assistant: &fakeAssistant{}})

	req := httptest.NewRequest(http.MethodOptions, "/dbQuery", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestCombineReadinessChecksStopsOnFirstFailure(t *testing.T) {
	order := make([]int, 0, 3)
	combined := CombineReadinessChecks(
		func(context.Context) error { order = append(order, 1); return nil },
		nil,
		func(context.Context) error { order = append(order, 2); return errors.New("boom") },
		func(context.Context) error { order = append(order, 3); return nil },
	)

	require.Error(t, combined(context.Background()))
	assert.Equal(t, []int{1, 2}, order)
}

func TestStatusName(t *testing.T) {
	assert.Equal(t, "OK", statusName(http.StatusOK))
	assert.Equal(t, "INTERNAL_SERVER_ERROR", statusName(http.StatusInternalServerError))
	assert.Equal(t, "GATEWAY_TIMEOUT", statusName(http.StatusGatewayTimeout))
	assert.Equal(t, "UNKNOWN", statusName(599))
}

type fakeAssistant struct {
	answer   string
	rows     query.Result
	plot     assistant.PlotResult
	err      error
	calls    int
	table    string
	question string
	raw      string
}

func (f *fakeAssistant) Ask(_ context.Context, tableName, question string) (string, error) {
	f.record(tableName, question)
	return f.answer, f.err
}

func (f *fakeAssistant) Show(_ context.Context, tableName, question string) (query.Result, error) {
	f.record(tableName, question)
	return f.rows, f.err
}

func (f *fakeAssistant) Plot(_ context.Context, tableName, question string) (assistant.PlotResult, error) {
	f.record(tableName, question)
	return f.plot, f.err
}

func (f *fakeAssistant) Provision(_ context.Context, raw string) (catalog.TableDef, error) {
	f.calls++
	f.raw = raw
	if f.err != nil {
		return catalog.TableDef{}, f.err
	}
	return catalog.TableDef{Name: "students"}, nil
}

func (f *fakeAssistant) Drop(_ context.Context, tableName string) error {
	f.record(tableName, "")
	return f.err
}

func (f *fakeAssistant) Restore(_ context.Context, tableName string) (catalog.TableDef, error) {
	f.record(tableName, "")
	if f.err != nil {
		return catalog.TableDef{}, f.err
	}
	return catalog.TableDef{Name: tableName}, nil
}

func (f *fakeAssistant) record(tableName, question string) {
	f.calls++
	f.table = tableName
	f.question = question
}

func newTestHandler(t *testing.T, env map[string]string, deps Dependencies) http.Handler {
	t.Helper()
	if env == nil {
		env = map[string]string{}
	}
	cfg, err := config.Load("tabletalk-api", mapLookup(env))
	require.NoError(t, err)
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	return NewHandler(cfg, deps)
}

func serve(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, bytes.NewBufferString(body)))
	return rr
}

func serveWithKey(t *testing.T, h http.Handler, path, body, key string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("X-API-Key", key)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	return env
}

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

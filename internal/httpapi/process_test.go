package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/subgeo/subgeo/internal/fetch"
	"github.com/subgeo/subgeo/internal/model"
	"github.com/subgeo/subgeo/internal/pipeline"
)

type stubProvider struct {
	clash, singbox bool
}

func (s stubProvider) Ensure(kind model.CoreKind) bool {
	if kind == model.CoreClash {
		return s.clash
	}
	return s.singbox
}

func (s stubProvider) Path(kind model.CoreKind) string { return "/opt/cores/" + string(kind) }

type fixedProber struct {
	class model.Classification
}

func (p fixedProber) Probe(ctx context.Context, n *model.Node) model.Outcome {
	return model.NewOutcome(n, p.class)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.NewFile(0, os.DevNull))
	log.SetLevel(logrus.PanicLevel)
	return log
}

func testOptions(provider stubProvider, fetchBody string, fetchErr error) Options {
	return Options{
		Provider: provider,
		Log:      quietLogger(),
		Pipeline: &pipeline.Pipeline{
			Prober:   fixedProber{class: model.Country("US")},
			Provider: provider,
			Log:      quietLogger(),
			Fetch: func(ctx context.Context, rawURL string) (string, error) {
				if fetchErr != nil {
					return "", fetchErr
				}
				return fetchBody, nil
			},
		},
	}
}

func postProcess(t *testing.T, mux http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/process", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeAPIError(t *testing.T, rec *httptest.ResponseRecorder) model.AppError {
	t.Helper()
	var resp model.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("error body is not json: %v (%s)", err, rec.Body.String())
	}
	return resp.Error
}

func TestProcess_ClashOutput(t *testing.T) {
	opt := testOptions(stubProvider{clash: true}, "trojan://pw@9.9.9.9:443#edge\n", nil)
	mux := NewMux(opt)

	rec := postProcess(t, mux, `{"urls":["https://example.com/sub"],"output_format":"clash"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/yaml") {
		t.Fatalf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "[US] edge") {
		t.Fatalf("output lacks relabeled node: %s", rec.Body.String())
	}
}

func TestProcess_InvalidJSON(t *testing.T) {
	opt := testOptions(stubProvider{clash: true}, "", nil)
	mux := NewMux(opt)

	rec := postProcess(t, mux, "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if e := decodeAPIError(t, rec); e.Code != "INVALID_ARGUMENT" {
		t.Fatalf("Code = %q", e.Code)
	}
}

func TestProcess_ValidatesRequest(t *testing.T) {
	opt := testOptions(stubProvider{clash: true}, "", nil)
	mux := NewMux(opt)

	cases := []struct {
		name string
		body string
	}{
		{"empty urls", `{"urls":[],"output_format":"clash"}`},
		{"bad scheme", `{"urls":["ftp://example.com/sub"],"output_format":"clash"}`},
		{"bad format", `{"urls":["https://example.com/sub"],"output_format":"surge"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postProcess(t, mux, tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestProcess_NoCoreIs503(t *testing.T) {
	opt := testOptions(stubProvider{}, "trojan://pw@9.9.9.9:443#edge\n", nil)
	mux := NewMux(opt)

	rec := postProcess(t, mux, `{"urls":["https://example.com/sub"],"output_format":"clash"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	if e := decodeAPIError(t, rec); e.Code != "NO_CORE_AVAILABLE" {
		t.Fatalf("Code = %q", e.Code)
	}
}

func TestProcess_AllSourcesFailedIs502(t *testing.T) {
	opt := testOptions(stubProvider{clash: true}, "", errors.New("unreachable"))
	mux := NewMux(opt)

	rec := postProcess(t, mux, `{"urls":["https://example.com/sub"],"output_format":"v2rayn"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rec.Code)
	}
	if e := decodeAPIError(t, rec); e.Code != "ALL_SOURCES_FAILED" {
		t.Fatalf("Code = %q", e.Code)
	}
}

func TestProcess_BatchFailureOutranksWrappedFetchError(t *testing.T) {
	// The batch error carries the last per-source fetch error as its cause;
	// the response must still be the batch-level 502, not the cause's status.
	cause := &fetch.FetchError{
		Status: http.StatusGatewayTimeout,
		AppError: model.AppError{
			Code:    "FETCH_TIMEOUT",
			Message: "拉取订阅超时",
			Stage:   "fetch_sub",
		},
	}
	opt := testOptions(stubProvider{clash: true}, "", cause)
	mux := NewMux(opt)

	rec := postProcess(t, mux, `{"urls":["https://example.com/sub"],"output_format":"clash"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if e := decodeAPIError(t, rec); e.Code != "ALL_SOURCES_FAILED" {
		t.Fatalf("Code = %q", e.Code)
	}
}

func TestHealthz(t *testing.T) {
	opt := testOptions(stubProvider{clash: true}, "", nil)
	mux := NewMux(opt)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	opt = testOptions(stubProvider{}, "", nil)
	mux = NewMux(opt)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded status = %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	opt := testOptions(stubProvider{clash: true}, "trojan://pw@9.9.9.9:443#edge\n", nil)
	h := NewHandler(opt)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/process",
		strings.NewReader(`{"urls":["https://example.com/sub"],"output_format":"clash"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("process status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "subgeo_http_requests_total") {
		t.Fatal("metrics output lacks request counter")
	}
	if !strings.Contains(body, `subgeo_probe_outcomes_total{class="country"}`) {
		t.Fatalf("metrics output lacks outcome counter:\n%s", body)
	}
}

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"expense-predictor/internal/classifier"
	"expense-predictor/internal/log"
	"expense-predictor/internal/services"
	"expense-predictor/internal/sheets/memory"
)

type fakeCategorizer struct {
	categories map[string]string
	err        error
	calls      int
}

func (f *fakeCategorizer) Predict(_ context.Context, description string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if c, ok := f.categories[description]; ok {
		return c, nil
	}
	return "Other", nil
}

type panicPredictor struct{}

func (panicPredictor) Predict(context.Context, services.PredictRequest) (services.PredictResult, error) {
	panic("boom")
}

type testServer struct {
	srv    *Server
	cat    *fakeCategorizer
	ledger *memory.Store
	logs   *bytes.Buffer
}

func newTestServer(t *testing.T, opts ...func(*Options)) *testServer {
	t.Helper()
	logs := &bytes.Buffer{}
	logger := log.New(log.Config{Output: logs, Component: log.ComponentHTTP})
	cat := &fakeCategorizer{categories: map[string]string{"Coffee shop purchase": "Food & Dining"}}
	ledger := memory.New()
	svc := services.NewPredictionService(cat, ledger,
		services.WithClock(func() time.Time { return time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC) }),
		services.WithLocation(time.UTC),
		services.WithLogger(logger))

	o := Options{
		Predictor:          svc,
		Lister:             ledger,
		Categories:         []string{"Bills", "Food & Dining"},
		Logger:             logger,
		RateLimitPerMinute: 1000,
	}
	for _, opt := range opts {
		opt(&o)
	}
	srv, err := NewServer(":0", o)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testServer{srv: srv, cat: cat, ledger: ledger, logs: logs}
}

func (ts *testServer) do(method, path, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON %q: %v", rr.Body.String(), err)
	}
	return out
}

func TestIndexAndHealth(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(http.MethodGet, "/", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("index status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"Expense Category Predictor", `id="description"`, `id="amount"`, "/static/app.js", "Food &amp; Dining"} {
		if !strings.Contains(body, want) {
			t.Errorf("index body missing %q", want)
		}
	}
	if rr.Header().Get("Content-Security-Policy") == "" || rr.Header().Get("X-Request-ID") == "" {
		t.Error("index should carry security and request id headers")
	}

	for path, want := range map[string]string{"/healthz": "ok", "/readyz": "ready"} {
		rr := ts.do(http.MethodGet, path, "", "")
		if rr.Code != http.StatusOK || rr.Body.String() != want {
			t.Fatalf("%s = %d %q", path, rr.Code, rr.Body.String())
		}
	}

	rr = ts.do(http.MethodGet, "/static/app.js", "", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "/predict") {
		t.Fatalf("static asset status=%d", rr.Code)
	}

	rr = ts.do(http.MethodGet, "/nope", "", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown path status=%d", rr.Code)
	}
}

func TestReadyzReportsBackendFailure(t *testing.T) {
	ts := newTestServer(t, func(o *Options) {
		o.Ready = func(context.Context) error { return errors.New("db locked") }
	})
	rr := ts.do(http.MethodGet, "/readyz", "", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestPredictSuccess(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(http.MethodPost, "/predict", "application/json", `{"description": "Coffee shop purchase", "amount": "4.50"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	got := decode(t, rr)
	if got["category"] != "Food & Dining" || got["recorded"] != true || got["ref"] != "mem:1" {
		t.Fatalf("unexpected body: %v", got)
	}
	if _, ok := got["warning"]; ok {
		t.Fatalf("success must not carry a warning: %v", got)
	}

	rows, _ := ts.ledger.List(context.Background())
	if len(rows) != 1 {
		t.Fatalf("expected 1 ledger row, got %d", len(rows))
	}
	want := []string{"15-03-2024", "Coffee shop purchase", "4.5", "Food & Dining"}
	for i, cell := range rows[0].Row() {
		if cell != want[i] {
			t.Fatalf("row = %v, want %v", rows[0].Row(), want)
		}
	}
}

func TestPredictAcceptsNumberAndForm(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(http.MethodPost, "/predict", "application/json", `{"description": "Rent", "amount": 1200}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("numeric amount status=%d body=%s", rr.Code, rr.Body.String())
	}
	rr = ts.do(http.MethodPost, "/predict", "application/x-www-form-urlencoded", "description=Taxi&amount=12%2C30")
	if rr.Code != http.StatusOK {
		t.Fatalf("form status=%d body=%s", rr.Code, rr.Body.String())
	}

	rows, _ := ts.ledger.List(context.Background())
	if len(rows) != 2 || rows[0].Amount.String() != "1200" || rows[1].Amount.String() != "12.3" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestPredictValidation(t *testing.T) {
	tests := []struct {
		name      string
		method    string
		body      string
		wantCode  int
		wantField string
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed, ""},
		{"malformed json", http.MethodPost, `{"description": `, http.StatusBadRequest, "body"},
		{"missing description", http.MethodPost, `{"amount": "4.50"}`, http.StatusBadRequest, "description"},
		{"blank description", http.MethodPost, `{"description": "   ", "amount": "4.50"}`, http.StatusBadRequest, "description"},
		{"missing amount", http.MethodPost, `{"description": "Coffee"}`, http.StatusBadRequest, "amount"},
		{"non-numeric amount", http.MethodPost, `{"description": "Coffee", "amount": "abc"}`, http.StatusUnprocessableEntity, "amount"},
		{"object amount", http.MethodPost, `{"description": "Coffee", "amount": {}}`, http.StatusUnprocessableEntity, "amount"},
		{"array amount", http.MethodPost, `{"description": "Coffee", "amount": [4.5]}`, http.StatusUnprocessableEntity, "amount"},
		{"overflowing amount", http.MethodPost, `{"description": "Coffee", "amount": 1e400}`, http.StatusUnprocessableEntity, "amount"},
		{"object description", http.MethodPost, `{"description": {"text": "Coffee"}, "amount": 1}`, http.StatusUnprocessableEntity, "description"},
		{"trailing data", http.MethodPost, `{"description": "Coffee", "amount": 1} junk`, http.StatusBadRequest, "body"},
		{"two json values", http.MethodPost, `{"description": "Coffee", "amount": 1}{"description": "Tea", "amount": 2}`, http.StatusBadRequest, "body"},
		{"too large", http.MethodPost, `{"description": "` + strings.Repeat("x", MaxBodyBytes) + `", "amount": 1}`, http.StatusRequestEntityTooLarge, "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			rr := ts.do(tt.method, "/predict", "application/json", tt.body)
			if rr.Code != tt.wantCode {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.wantCode, rr.Body.String())
			}
			got := decode(t, rr)
			if got["error"] == "" {
				t.Fatalf("missing error message: %v", got)
			}
			if tt.wantField != "" && got["field"] != tt.wantField {
				t.Fatalf("field = %v, want %s", got["field"], tt.wantField)
			}
			if ts.cat.calls != 0 || ts.ledger.Len() != 0 {
				t.Fatalf("validation failure must not infer or record (calls=%d rows=%d)", ts.cat.calls, ts.ledger.Len())
			}
		})
	}
}

func TestPredictInferenceFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.cat.err = classifier.ErrUnknownLabel

	rr := ts.do(http.MethodPost, "/predict", "application/json", `{"description": "Coffee", "amount": "1"}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rr.Code)
	}
	if got := decode(t, rr); got["error"] != "classification failed" {
		t.Fatalf("unexpected body: %v", got)
	}
	if ts.ledger.Len() != 0 {
		t.Fatal("inference failure must not record")
	}
}

func TestPredictLedgerFailureWarns(t *testing.T) {
	ts := newTestServer(t)
	ts.ledger.FailAppends(errors.New("permission denied"))

	rr := ts.do(http.MethodPost, "/predict", "application/json", `{"description": "Coffee shop purchase", "amount": "4.50"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	got := decode(t, rr)
	if got["category"] != "Food & Dining" || got["recorded"] != false || got["warning"] != services.NotRecordedWarning {
		t.Fatalf("unexpected body: %v", got)
	}
	if !strings.Contains(ts.logs.String(), "level=ERROR") {
		t.Fatal("ledger failure should be logged at error level")
	}
}

func TestPanicIsRecovered(t *testing.T) {
	ts := newTestServer(t, func(o *Options) { o.Predictor = panicPredictor{} })

	rr := ts.do(http.MethodPost, "/predict", "application/json", `{"description": "Coffee", "amount": "1"}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rr.Code)
	}
	if got := decode(t, rr); got["error"] != "internal error" {
		t.Fatalf("unexpected body: %v", got)
	}
	if !strings.Contains(ts.logs.String(), "Handler panic recovered") {
		t.Fatal("panic should be logged")
	}
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, func(o *Options) { o.RateLimitPerMinute = 2 })

	for i := 0; i < 2; i++ {
		if rr := ts.do(http.MethodPost, "/predict", "application/json", `{"description": "Coffee", "amount": "1"}`); rr.Code != http.StatusOK {
			t.Fatalf("request %d status=%d", i, rr.Code)
		}
	}
	rr := ts.do(http.MethodPost, "/predict", "application/json", `{"description": "Coffee", "amount": "1"}`)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if ts.ledger.Len() != 2 {
		t.Fatalf("rate limited request must not record, rows=%d", ts.ledger.Len())
	}
}

func TestRateLimitKeysOnForwardedClientBehindTrustedProxy(t *testing.T) {
	ts := newTestServer(t, func(o *Options) {
		o.RateLimitPerMinute = 1
		o.TrustedProxies = []string{"192.0.2.0/24"}
	})

	send := func(client string) int {
		req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(`{"description": "Coffee", "amount": "1"}`))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "192.0.2.10:4000"
		req.Header.Set("X-Forwarded-For", client)
		rr := httptest.NewRecorder()
		ts.srv.Handler.ServeHTTP(rr, req)
		return rr.Code
	}

	if code := send("203.0.113.1"); code != http.StatusOK {
		t.Fatalf("first client status=%d", code)
	}
	if code := send("203.0.113.2"); code != http.StatusOK {
		t.Fatalf("second client should have its own budget, status=%d", code)
	}
	if code := send("203.0.113.1"); code != http.StatusTooManyRequests {
		t.Fatalf("repeat client should be limited, status=%d", code)
	}
}

func TestNewServerRejectsBadTrustedProxy(t *testing.T) {
	_, err := NewServer(":0", Options{
		Predictor:          panicPredictor{},
		RateLimitPerMinute: 10,
		TrustedProxies:     []string{"not-a-cidr"},
	})
	if err == nil {
		t.Fatal("expected error for invalid trusted proxy")
	}
}

func TestTransactions(t *testing.T) {
	ts := newTestServer(t)
	for _, body := range []string{
		`{"description": "Coffee shop purchase", "amount": "4.50"}`,
		`{"description": "Coffee shop purchase", "amount": "3"}`,
		`{"description": "Bus", "amount": "2"}`,
	} {
		ts.do(http.MethodPost, "/predict", "application/json", body)
	}

	rr := ts.do(http.MethodGet, "/transactions", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var got transactionsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Transactions) != 3 || got.Transactions[2].Description != "Bus" || got.Transactions[0].Date != "15-03-2024" {
		t.Fatalf("unexpected transactions: %+v", got.Transactions)
	}
	if len(got.Totals) != 2 || got.Totals[0].Category != "Food & Dining" || got.Totals[0].Amount != "7.5" || got.Totals[0].Count != 2 {
		t.Fatalf("unexpected totals: %+v", got.Totals)
	}
}

func TestTransactionsWithoutLister(t *testing.T) {
	ts := newTestServer(t, func(o *Options) { o.Lister = nil })
	rr := ts.do(http.MethodGet, "/transactions", "", "")
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", rr.Code)
	}
}

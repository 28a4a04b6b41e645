package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newParser(t *testing.T, contentType, body string) *RequestBodyParser {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return NewRequestBodyParser(httptest.NewRecorder(), req)
}

func TestRequestBodyParser(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantDesc    string
		wantAmount  string
		hasAmount   bool
	}{
		{
			name:        "JSON string amount",
			contentType: "application/json",
			body:        `{"description": "Coffee shop purchase", "amount": "4.50"}`,
			wantDesc:    "Coffee shop purchase",
			wantAmount:  "4.50",
			hasAmount:   true,
		},
		{
			name:       "JSON number keeps its literal",
			body:       `{"description": "Rent", "amount": 1200.10}`,
			wantDesc:   "Rent",
			wantAmount: "1200.10",
			hasAmount:  true,
		},
		{
			name:      "JSON null amount is missing",
			body:      `{"description": "Rent", "amount": null}`,
			wantDesc:  "Rent",
			hasAmount: false,
		},
		{
			name:        "form encoded",
			contentType: "application/x-www-form-urlencoded",
			body:        "description=Taxi+ride&amount=12%2C30",
			wantDesc:    "Taxi ride",
			wantAmount:  "12,30",
			hasAmount:   true,
		},
		{
			name:     "control characters are dropped",
			body:     "{\"description\": \"  Bus\\u0000 ticket \"}",
			wantDesc: "Bus ticket",
		},
		{
			name: "empty body",
			body: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newParser(t, tt.contentType, tt.body)
			if err := p.Parse(); err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got, _, err := p.Field("description"); err != nil || got != tt.wantDesc {
				t.Errorf("description = %q (%v), want %q", got, err, tt.wantDesc)
			}
			amount, ok, err := p.Field("amount")
			if err != nil || ok != tt.hasAmount || amount != tt.wantAmount {
				t.Errorf("amount = %q,%v,%v want %q,%v", amount, ok, err, tt.wantAmount, tt.hasAmount)
			}
		})
	}
}

func TestRequestBodyParserMalformed(t *testing.T) {
	for _, body := range []string{
		`{"description": `,
		`["a", "b"]`,
		`null`,
		`{"description": "x", "amount": 1} junk`,
		`{"description": "x"}{"description": "y"}`,
		`{"description": "x"} 5`,
	} {
		p := newParser(t, "application/json", body)
		if err := p.Parse(); !errors.Is(err, ErrMalformedBody) {
			t.Errorf("Parse(%q) error = %v, want ErrMalformedBody", body, err)
		}
		// Parse is memoized.
		if err := p.Parse(); !errors.Is(err, ErrMalformedBody) {
			t.Errorf("second Parse(%q) error = %v", body, err)
		}
	}
}

func TestRequestBodyParserNonScalarField(t *testing.T) {
	for _, body := range []string{
		`{"description": "Rent", "amount": {}}`,
		`{"description": "Rent", "amount": []}`,
		`{"description": "Rent", "amount": {"value": 900}}`,
	} {
		p := newParser(t, "application/json", body)
		if err := p.Parse(); err != nil {
			t.Fatalf("Parse(%q) error = %v", body, err)
		}
		v, ok, err := p.Field("amount")
		if !errors.Is(err, ErrFieldType) || !ok || v != "" {
			t.Errorf("Field(amount) for %q = %q,%v,%v want ErrFieldType", body, v, ok, err)
		}
		if desc, _, err := p.Field("description"); err != nil || desc != "Rent" {
			t.Errorf("description = %q,%v", desc, err)
		}
	}
}

func TestRequestBodyParserTooLarge(t *testing.T) {
	body := `{"description": "` + strings.Repeat("x", MaxBodyBytes) + `"}`
	p := newParser(t, "application/json", body)
	if err := p.Parse(); !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("Parse() error = %v, want ErrBodyTooLarge", err)
	}
}

func TestRequireMethod(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/predict", nil)
	resp := RequirePOST(req)
	if resp == nil {
		t.Fatal("expected a response for GET")
	}
	w := httptest.NewRecorder()
	resp.Write(w)
	if w.Code != http.StatusMethodNotAllowed || w.Header().Get("Allow") != http.MethodPost {
		t.Fatalf("unexpected response: %d Allow=%q", w.Code, w.Header().Get("Allow"))
	}

	req = httptest.NewRequest(http.MethodPost, "/predict", nil)
	if RequirePOST(req) != nil {
		t.Fatal("POST should be allowed")
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := map[string]string{
		"  hello  ":      "hello",
		"a\x00b":         "ab",
		"line\nbreak":    "line\nbreak",
		"tab\there":      "tab\there",
		"\x1b[31mred":    "[31mred",
		"Caffè & Dolci ": "Caffè & Dolci",
	}
	for in, want := range tests {
		if got := sanitizeInput(in); got != want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", in, got, want)
		}
	}
}

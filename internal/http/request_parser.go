// Package http provides HTTP server and handler implementations.
//
// This file implements request body parsing for the predict endpoint. JSON
// and form-encoded bodies are read through the same accessors.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// MaxBodyBytes caps request bodies.
const MaxBodyBytes = 64 << 10

var (
	// ErrBodyTooLarge is returned when the body exceeds MaxBodyBytes.
	ErrBodyTooLarge = errors.New("request body too large")
	// ErrMalformedBody is returned for bodies that are neither JSON objects
	// nor form data.
	ErrMalformedBody = errors.New("malformed request body")
	// ErrFieldType is returned for JSON fields holding an object or array.
	ErrFieldType = errors.New("field is not a scalar value")
)

// RequestBodyParser reads a JSON or form-encoded body once and exposes its
// fields by name.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads at most MaxBodyBytes from the request body.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{contentType: r.Header.Get("Content-Type")}
	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	var maxErr *http.MaxBytesError
	if errors.As(p.err, &maxErr) {
		p.err = ErrBodyTooLarge
	}
	return p
}

// Parse decodes the body. JSON is used when the content type says so or the
// body starts with '{'; anything else is parsed as a form.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := bytes.TrimSpace(p.body)
	if len(trimmed) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if strings.HasPrefix(p.contentType, "application/json") || trimmed[0] == '{' || trimmed[0] == '[' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&p.jsonData); err != nil {
			p.jsonData = nil
			p.err = fmt.Errorf("%w: %v", ErrMalformedBody, err)
			return p.err
		}
		if p.jsonData == nil {
			p.err = fmt.Errorf("%w: expected a JSON object", ErrMalformedBody)
			return p.err
		}
		if _, err := dec.Token(); err != io.EOF {
			p.jsonData = nil
			p.err = fmt.Errorf("%w: unexpected data after JSON object", ErrMalformedBody)
		}
		return p.err
	}

	p.formData, p.err = url.ParseQuery(string(trimmed))
	if p.err != nil {
		p.err = fmt.Errorf("%w: %v", ErrMalformedBody, p.err)
	}
	return p.err
}

// Field returns the sanitized field value and whether the field was sent.
// JSON numbers are returned in their literal form; objects and arrays are
// reported as present with ErrFieldType.
func (p *RequestBodyParser) Field(key string) (string, bool, error) {
	if p.jsonData != nil {
		val, ok := p.jsonData[key]
		if !ok || val == nil {
			return "", false, nil
		}
		switch val.(type) {
		case map[string]interface{}, []interface{}:
			return "", true, fmt.Errorf("%w: %s", ErrFieldType, key)
		}
		return sanitizeInput(stringValue(val)), true, nil
	}
	if p.formData != nil {
		if _, ok := p.formData[key]; !ok {
			return "", false, nil
		}
		return sanitizeInput(p.formData.Get(key)), true, nil
	}
	return "", false, nil
}

func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// RequireMethod returns a 405 response unless the request uses one of
// methods.
func RequireMethod(r *http.Request, methods ...string) *JSONResponseBuilder {
	for _, m := range methods {
		if r.Method == m {
			return nil
		}
	}
	return MethodNotAllowedError(strings.Join(methods, ", "))
}

// RequirePOST is a convenience function for POST-only handlers.
func RequirePOST(r *http.Request) *JSONResponseBuilder {
	return RequireMethod(r, http.MethodPost)
}
